package pricing

import (
	"context"
	"strings"
	"time"

	"cloud.google.com/go/civil"

	"staysane/internal/app/clock"
	"staysane/internal/app/dto"
	"staysane/internal/app/handlers/support"
	"staysane/internal/app/queries"
	"staysane/internal/app/uow"
	"staysane/internal/domain/availability"
	domainpricing "staysane/internal/domain/pricing"
	"staysane/internal/domain/property"
	"staysane/internal/domain/shared/daterange"
)

const quotePriceKey = "pricing.quote"

// QuotePriceQuery prices a stay the same way booking creation does, so the
// returned total can be sent back unchanged.
type QuotePriceQuery struct {
	RoomID   string `validate:"required"`
	CheckIn  civil.Date
	CheckOut civil.Date
	Quantity int `validate:"gte=0,lte=20"`
}

func (q QuotePriceQuery) Key() string { return quotePriceKey }

type QuotePriceHandler struct {
	UoWFactory uow.Factory
	Clock      clock.Clock
	Location   *time.Location
}

func (h *QuotePriceHandler) Handle(ctx context.Context, q QuotePriceQuery) (dto.Quote, error) {
	c := h.Clock
	if c == nil {
		c = clock.NewSystem()
	}
	stay := daterange.DateRange{CheckIn: q.CheckIn, CheckOut: q.CheckOut}
	if err := availability.ValidateStay(stay, clock.Today(c, h.Location)); err != nil {
		return dto.Quote{}, err
	}

	unit, execCtx, cleanup, err := support.BeginReadOnlyUnit(ctx, h.UoWFactory)
	if err != nil {
		return dto.Quote{}, err
	}
	if cleanup != nil {
		defer cleanup()
	}
	room, err := unit.Rooms().ByID(execCtx, property.RoomID(strings.TrimSpace(q.RoomID)))
	if err != nil {
		return dto.Quote{}, err
	}
	adjustments, err := unit.Adjustments().ListByRoom(execCtx, room.ID)
	if err != nil {
		return dto.Quote{}, err
	}
	breakdown, err := domainpricing.ComputeTotal(room.BasePrice, stay, adjustments, q.Quantity)
	if err != nil {
		return dto.Quote{}, err
	}
	return dto.MapQuote(string(room.ID), stay.CheckIn, stay.CheckOut, breakdown), nil
}

var _ queries.Handler[QuotePriceQuery, dto.Quote] = (*QuotePriceHandler)(nil)
