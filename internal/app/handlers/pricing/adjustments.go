package pricing

import (
	"context"
	"errors"
	"log/slog"
	"strings"

	"cloud.google.com/go/civil"
	"github.com/google/uuid"
	"github.com/shopspring/decimal"

	"staysane/internal/app/clock"
	"staysane/internal/app/commands"
	"staysane/internal/app/dto"
	"staysane/internal/app/handlers/support"
	"staysane/internal/app/queries"
	"staysane/internal/app/uow"
	domainpricing "staysane/internal/domain/pricing"
	"staysane/internal/domain/property"
	"staysane/internal/domain/user"
)

const (
	createAdjustmentKey = "pricing.adjustment.create"
	updateAdjustmentKey = "pricing.adjustment.update"
	deleteAdjustmentKey = "pricing.adjustment.delete"
	listAdjustmentsKey  = "pricing.adjustment.list"
)

// AdjustmentInput is the rule definition shared by create and update.
type AdjustmentInput struct {
	Title         string `validate:"max=120"`
	Start         civil.Date
	End           civil.Date
	Kind          string `validate:"required"`
	Value         decimal.Decimal
	ApplyAllDates bool
	Dates         []civil.Date
	Priority      int
}

func (in AdjustmentInput) params(id domainpricing.AdjustmentID, roomID property.RoomID, c clock.Clock) (domainpricing.AdjustmentParams, error) {
	kind, err := domainpricing.ParseKind(in.Kind)
	if err != nil {
		return domainpricing.AdjustmentParams{}, err
	}
	return domainpricing.AdjustmentParams{
		ID:            id,
		RoomID:        roomID,
		Title:         in.Title,
		Start:         in.Start,
		End:           in.End,
		Kind:          kind,
		Value:         in.Value,
		ApplyAllDates: in.ApplyAllDates,
		Dates:         in.Dates,
		Priority:      in.Priority,
		Now:           c.Now(),
	}, nil
}

type CreateAdjustmentCommand struct {
	RoomID string `validate:"required"`
	AdjustmentInput
}

func (c CreateAdjustmentCommand) Key() string { return createAdjustmentKey }

func (c CreateAdjustmentCommand) RequiredRole() user.Role { return user.RoleTenant }

type UpdateAdjustmentCommand struct {
	AdjustmentID string `validate:"required"`
	AdjustmentInput
}

func (c UpdateAdjustmentCommand) Key() string { return updateAdjustmentKey }

func (c UpdateAdjustmentCommand) RequiredRole() user.Role { return user.RoleTenant }

type DeleteAdjustmentCommand struct {
	AdjustmentID string `validate:"required"`
}

func (c DeleteAdjustmentCommand) Key() string { return deleteAdjustmentKey }

func (c DeleteAdjustmentCommand) RequiredRole() user.Role { return user.RoleTenant }

// AdjustmentHandler manages a tenant's price adjustments. It runs inside the
// transaction opened by the command pipeline.
type AdjustmentHandler struct {
	Clock  clock.Clock
	NewID  func() string
	Logger *slog.Logger
}

func (h *AdjustmentHandler) Create(ctx context.Context, cmd CreateAdjustmentCommand) (dto.Adjustment, error) {
	unit, ok := uow.FromContext(ctx)
	if !ok {
		return dto.Adjustment{}, uow.ErrUnitOfWorkMissing
	}
	room, _, err := support.OwnedRoom(ctx, unit, property.RoomID(strings.TrimSpace(cmd.RoomID)))
	if err != nil {
		return dto.Adjustment{}, err
	}
	params, err := cmd.params(domainpricing.AdjustmentID(h.newID()), room.ID, h.clock())
	if err != nil {
		return dto.Adjustment{}, err
	}
	adj, err := domainpricing.NewAdjustment(params)
	if err != nil {
		return dto.Adjustment{}, err
	}
	if err := unit.Adjustments().Save(ctx, adj); err != nil {
		return dto.Adjustment{}, err
	}
	h.logger().Info("price adjustment created", "adjustment_id", adj.ID, "room_id", adj.RoomID, "kind", adj.Kind, "priority", adj.Priority)
	return dto.MapAdjustment(adj), nil
}

func (h *AdjustmentHandler) Update(ctx context.Context, cmd UpdateAdjustmentCommand) (dto.Adjustment, error) {
	unit, ok := uow.FromContext(ctx)
	if !ok {
		return dto.Adjustment{}, uow.ErrUnitOfWorkMissing
	}
	adj, err := h.owned(ctx, unit, cmd.AdjustmentID)
	if err != nil {
		return dto.Adjustment{}, err
	}
	params, err := cmd.params(adj.ID, adj.RoomID, h.clock())
	if err != nil {
		return dto.Adjustment{}, err
	}
	if err := adj.Update(params); err != nil {
		return dto.Adjustment{}, err
	}
	if err := unit.Adjustments().Save(ctx, adj); err != nil {
		return dto.Adjustment{}, err
	}
	h.logger().Info("price adjustment updated", "adjustment_id", adj.ID, "room_id", adj.RoomID)
	return dto.MapAdjustment(adj), nil
}

func (h *AdjustmentHandler) Delete(ctx context.Context, cmd DeleteAdjustmentCommand) (dto.Adjustment, error) {
	unit, ok := uow.FromContext(ctx)
	if !ok {
		return dto.Adjustment{}, uow.ErrUnitOfWorkMissing
	}
	adj, err := h.owned(ctx, unit, cmd.AdjustmentID)
	if err != nil {
		return dto.Adjustment{}, err
	}
	if err := unit.Adjustments().Delete(ctx, adj.ID); err != nil {
		return dto.Adjustment{}, err
	}
	h.logger().Info("price adjustment deleted", "adjustment_id", adj.ID, "room_id", adj.RoomID)
	return dto.MapAdjustment(adj), nil
}

func (h *AdjustmentHandler) owned(ctx context.Context, unit uow.UnitOfWork, rawID string) (*domainpricing.Adjustment, error) {
	adj, err := unit.Adjustments().ByID(ctx, domainpricing.AdjustmentID(strings.TrimSpace(rawID)))
	if err != nil {
		return nil, err
	}
	if _, _, err := support.OwnedRoom(ctx, unit, adj.RoomID); err != nil {
		if errors.Is(err, property.ErrPropertyNotOwned) {
			return nil, domainpricing.ErrAdjustmentNotOwned
		}
		return nil, err
	}
	return adj, nil
}

func (h *AdjustmentHandler) clock() clock.Clock {
	if h.Clock != nil {
		return h.Clock
	}
	return clock.NewSystem()
}

func (h *AdjustmentHandler) newID() string {
	if h.NewID != nil {
		return h.NewID()
	}
	return uuid.NewString()
}

func (h *AdjustmentHandler) logger() *slog.Logger {
	if h.Logger != nil {
		return h.Logger
	}
	return slog.Default()
}

func (h *AdjustmentHandler) CreateHandler() commands.Handler[CreateAdjustmentCommand, dto.Adjustment] {
	return commands.HandlerFunc[CreateAdjustmentCommand, dto.Adjustment](h.Create)
}

func (h *AdjustmentHandler) UpdateHandler() commands.Handler[UpdateAdjustmentCommand, dto.Adjustment] {
	return commands.HandlerFunc[UpdateAdjustmentCommand, dto.Adjustment](h.Update)
}

func (h *AdjustmentHandler) DeleteHandler() commands.Handler[DeleteAdjustmentCommand, dto.Adjustment] {
	return commands.HandlerFunc[DeleteAdjustmentCommand, dto.Adjustment](h.Delete)
}

// ListAdjustmentsQuery lists a room's adjustments in the order they are applied.
type ListAdjustmentsQuery struct {
	RoomID string `validate:"required"`
}

func (q ListAdjustmentsQuery) Key() string { return listAdjustmentsKey }

type ListAdjustmentsHandler struct {
	UoWFactory uow.Factory
}

func (h *ListAdjustmentsHandler) Handle(ctx context.Context, q ListAdjustmentsQuery) (dto.AdjustmentCollection, error) {
	unit, execCtx, cleanup, err := support.BeginReadOnlyUnit(ctx, h.UoWFactory)
	if err != nil {
		return dto.AdjustmentCollection{}, err
	}
	if cleanup != nil {
		defer cleanup()
	}
	items, err := unit.Adjustments().ListByRoom(execCtx, property.RoomID(strings.TrimSpace(q.RoomID)))
	if err != nil {
		return dto.AdjustmentCollection{}, err
	}
	ordered := append([]*domainpricing.Adjustment(nil), items...)
	domainpricing.SortByPrecedence(ordered)
	return dto.MapAdjustments(ordered), nil
}

var _ queries.Handler[ListAdjustmentsQuery, dto.AdjustmentCollection] = (*ListAdjustmentsHandler)(nil)
