package availability

import (
	"context"
	"errors"
	"sort"
	"time"

	"cloud.google.com/go/civil"

	"staysane/internal/domain/property"
	"staysane/internal/domain/shared/daterange"
)

var (
	ErrNoDates        = errors.New("availability: at least one date is required")
	ErrTooManyDates   = errors.New("availability: too many dates in one toggle")
	ErrDateInPast     = errors.New("availability: cannot change dates in the past")
	ErrWindowTooLarge = errors.New("availability: calendar window is too large")
)

const (
	// MaxToggleDates bounds how many dates a single toggle may touch.
	MaxToggleDates = 366
	// MaxCalendarDays bounds the window a calendar read may cover.
	MaxCalendarDays = 400
)

// UnavailableDate is a host-declared override for one calendar date of a room.
// A room with no row for a date is available on it.
type UnavailableDate struct {
	RoomID      property.RoomID
	Date        civil.Date
	IsAvailable bool
	UpdatedAt   time.Time
}

func (u UnavailableDate) Blocks() bool {
	return !u.IsAvailable
}

type Repository interface {
	// InRange returns every row of the room whose date falls inside dr.
	InRange(ctx context.Context, roomID property.RoomID, dr daterange.DateRange) ([]UnavailableDate, error)
	Upsert(ctx context.Context, rows []UnavailableDate) error
	Delete(ctx context.Context, roomID property.RoomID, dates []civil.Date) error
}

// Toggle is a host's request to open or close a set of dates on a room.
type Toggle struct {
	RoomID    property.RoomID
	Dates     []civil.Date
	Available bool
}

// Plan validates the toggle and returns the rows to write and the dates to
// clear, along with the event describing the change.
func (t Toggle) Plan(today civil.Date, now time.Time) (upserts []UnavailableDate, clears []civil.Date, event DatesToggled, err error) {
	dates := uniqueSorted(t.Dates)
	switch {
	case len(dates) == 0:
		return nil, nil, DatesToggled{}, ErrNoDates
	case len(dates) > MaxToggleDates:
		return nil, nil, DatesToggled{}, ErrTooManyDates
	case dates[0].Before(today):
		return nil, nil, DatesToggled{}, ErrDateInPast
	}
	if t.Available {
		clears = dates
	} else {
		upserts = make([]UnavailableDate, 0, len(dates))
		for _, d := range dates {
			upserts = append(upserts, UnavailableDate{RoomID: t.RoomID, Date: d, UpdatedAt: now.UTC()})
		}
	}
	event = DatesToggled{
		RoomID:    t.RoomID,
		Ranges:    daterange.Coalesce(dates),
		Available: t.Available,
		At:        now.UTC(),
	}
	return upserts, clears, event, nil
}

// Calendar is the read model of a room over a window: merged blackout ranges
// and the reservations that hold dates inside it.
type Calendar struct {
	RoomID       property.RoomID
	Window       daterange.DateRange
	Blackouts    []daterange.DateRange
	Reservations []Conflict
}

func CalendarWindow(from, to civil.Date) (daterange.DateRange, error) {
	window, err := daterange.New(from, to)
	if err != nil {
		return daterange.DateRange{}, err
	}
	if window.Nights() > MaxCalendarDays {
		return daterange.DateRange{}, ErrWindowTooLarge
	}
	return window, nil
}

func BuildCalendar(roomID property.RoomID, window daterange.DateRange, rows []UnavailableDate, reservations []Conflict) Calendar {
	var blocked []civil.Date
	for _, row := range rows {
		if row.Blocks() && window.ContainsDate(row.Date) {
			blocked = append(blocked, row.Date)
		}
	}
	return Calendar{
		RoomID:       roomID,
		Window:       window,
		Blackouts:    daterange.Coalesce(blocked),
		Reservations: reservations,
	}
}

func uniqueSorted(in []civil.Date) []civil.Date {
	if len(in) == 0 {
		return nil
	}
	seen := make(map[civil.Date]struct{}, len(in))
	out := make([]civil.Date, 0, len(in))
	for _, d := range in {
		if _, ok := seen[d]; ok {
			continue
		}
		seen[d] = struct{}{}
		out = append(out, d)
	}
	sort.Slice(out, func(i, j int) bool { return out[i].Before(out[j]) })
	return out
}
