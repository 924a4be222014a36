package availability

import (
	"context"
	"strings"

	"cloud.google.com/go/civil"

	"staysane/internal/app/dto"
	"staysane/internal/app/handlers/support"
	"staysane/internal/app/queries"
	"staysane/internal/app/uow"
	domainavailability "staysane/internal/domain/availability"
	"staysane/internal/domain/property"
)

const getCalendarKey = "availability.calendar"

// GetCalendarQuery reads a room's calendar for [From, To).
type GetCalendarQuery struct {
	RoomID string `validate:"required"`
	From   civil.Date
	To     civil.Date
}

func (q GetCalendarQuery) Key() string { return getCalendarKey }

type GetCalendarHandler struct {
	UoWFactory uow.Factory
}

func (h *GetCalendarHandler) Handle(ctx context.Context, q GetCalendarQuery) (dto.Calendar, error) {
	window, err := domainavailability.CalendarWindow(q.From, q.To)
	if err != nil {
		return dto.Calendar{}, err
	}
	unit, execCtx, cleanup, err := support.BeginReadOnlyUnit(ctx, h.UoWFactory)
	if err != nil {
		return dto.Calendar{}, err
	}
	if cleanup != nil {
		defer cleanup()
	}

	room, err := unit.Rooms().ByID(execCtx, property.RoomID(strings.TrimSpace(q.RoomID)))
	if err != nil {
		return dto.Calendar{}, err
	}
	rows, err := unit.Blackouts().InRange(execCtx, room.ID, window)
	if err != nil {
		return dto.Calendar{}, err
	}
	bookings, err := unit.Bookings().ActiveOverlapping(execCtx, room.ID, window)
	if err != nil {
		return dto.Calendar{}, err
	}
	cal := domainavailability.BuildCalendar(room.ID, window, rows, domainavailability.ConflictsOf(bookings, window))
	return dto.MapCalendar(cal), nil
}

var _ queries.Handler[GetCalendarQuery, dto.Calendar] = (*GetCalendarHandler)(nil)
