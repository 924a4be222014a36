package availability

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
	domainavailability "staysane/internal/domain/availability"
	"staysane/internal/domain/property"
	"staysane/internal/domain/shared/daterange"
)

const checkAvailabilityKey = "availability.check"

type CheckAvailabilityQuery struct {
	RoomID   string `validate:"required"`
	CheckIn  civil.Date
	CheckOut civil.Date
}

func (q CheckAvailabilityQuery) Key() string { return checkAvailabilityKey }

// CheckAvailabilityHandler answers whether a room can be booked for a stay.
// An unavailable room is a normal answer, not an error.
type CheckAvailabilityHandler struct {
	UoWFactory uow.Factory
	Clock      clock.Clock
	Location   *time.Location
}

func (h *CheckAvailabilityHandler) Handle(ctx context.Context, q CheckAvailabilityQuery) (dto.Availability, error) {
	stay := daterange.DateRange{CheckIn: q.CheckIn, CheckOut: q.CheckOut}
	if err := domainavailability.ValidateStay(stay, h.today()); err != nil {
		return dto.Availability{}, err
	}
	unit, execCtx, cleanup, err := support.BeginReadOnlyUnit(ctx, h.UoWFactory)
	if err != nil {
		return dto.Availability{}, err
	}
	if cleanup != nil {
		defer cleanup()
	}
	room, err := unit.Rooms().ByID(execCtx, property.RoomID(strings.TrimSpace(q.RoomID)))
	if err != nil {
		return dto.Availability{}, err
	}
	checker := domainavailability.NewChecker(unit.Blackouts(), unit.Bookings())
	res, err := checker.Check(execCtx, room.ID, stay, h.today())
	if err != nil {
		return dto.Availability{}, err
	}
	return dto.MapAvailability(string(room.ID), stay, res), nil
}

func (h *CheckAvailabilityHandler) today() civil.Date {
	c := h.Clock
	if c == nil {
		c = clock.NewSystem()
	}
	return clock.Today(c, h.Location)
}

var _ queries.Handler[CheckAvailabilityQuery, dto.Availability] = (*CheckAvailabilityHandler)(nil)
