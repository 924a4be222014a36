package availability

import (
	"context"
	"log/slog"
	"strings"
	"time"

	"cloud.google.com/go/civil"

	"staysane/internal/app/clock"
	"staysane/internal/app/commands"
	"staysane/internal/app/dto"
	"staysane/internal/app/handlers/support"
	"staysane/internal/app/outbox"
	"staysane/internal/app/uow"
	domainavailability "staysane/internal/domain/availability"
	"staysane/internal/domain/property"
	"staysane/internal/domain/shared/events"
	"staysane/internal/domain/user"
)

const toggleDatesKey = "availability.toggle"

// ToggleDatesCommand blocks dates on a room, or releases them when Available
// is set. Existing reservations are not touched.
type ToggleDatesCommand struct {
	RoomID    string       `validate:"required"`
	Dates     []civil.Date `validate:"required,min=1"`
	Available bool
}

func (c ToggleDatesCommand) Key() string { return toggleDatesKey }

func (c ToggleDatesCommand) RequiredRole() user.Role { return user.RoleTenant }

type ToggleDatesHandler struct {
	Outbox   outbox.Outbox
	Encoder  outbox.EventEncoder
	Clock    clock.Clock
	Location *time.Location
	Logger   *slog.Logger
}

func (h *ToggleDatesHandler) Handle(ctx context.Context, cmd ToggleDatesCommand) (dto.ToggleResult, error) {
	unit, ok := uow.FromContext(ctx)
	if !ok {
		return dto.ToggleResult{}, uow.ErrUnitOfWorkMissing
	}
	room, _, err := support.OwnedRoom(ctx, unit, property.RoomID(strings.TrimSpace(cmd.RoomID)))
	if err != nil {
		return dto.ToggleResult{}, err
	}

	c := h.Clock
	if c == nil {
		c = clock.NewSystem()
	}
	now := c.Now()
	toggle := domainavailability.Toggle{RoomID: room.ID, Dates: cmd.Dates, Available: cmd.Available}
	upserts, clears, ev, err := toggle.Plan(clock.Today(c, h.Location), now)
	if err != nil {
		return dto.ToggleResult{}, err
	}
	if len(upserts) > 0 {
		if err := unit.Blackouts().Upsert(ctx, upserts); err != nil {
			return dto.ToggleResult{}, err
		}
	}
	if len(clears) > 0 {
		if err := unit.Blackouts().Delete(ctx, room.ID, clears); err != nil {
			return dto.ToggleResult{}, err
		}
	}
	if err := outbox.RecordDomainEvents(ctx, h.Outbox, h.Encoder, []events.DomainEvent{ev}); err != nil {
		return dto.ToggleResult{}, err
	}
	if h.Logger != nil {
		h.Logger.Info("calendar updated", "room_id", room.ID, "available", cmd.Available, "dates", len(cmd.Dates))
	}

	result := dto.ToggleResult{RoomID: string(room.ID), Available: cmd.Available, Ranges: make([]dto.RangeDTO, 0, len(ev.Ranges))}
	for _, dr := range ev.Ranges {
		result.Ranges = append(result.Ranges, dto.MapRange(dr))
	}
	return result, nil
}

var _ commands.Handler[ToggleDatesCommand, dto.ToggleResult] = (*ToggleDatesHandler)(nil)
