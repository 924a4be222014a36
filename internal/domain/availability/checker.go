package availability

import (
	"context"
	"errors"
	"fmt"
	"strings"

	"cloud.google.com/go/civil"

	"staysane/internal/domain/booking"
	"staysane/internal/domain/property"
	"staysane/internal/domain/shared/daterange"
)

var (
	ErrInvalidDateRange = errors.New("availability: invalid date range")
	ErrRoomUnavailable  = errors.New("availability: room is not available for the requested dates")
)

// MaxStayNights is the longest stay that can be checked or booked.
const MaxStayNights = 365

// ValidateStay checks the preconditions every availability check and booking
// shares: a non-empty range of at most MaxStayNights that does not start
// before today.
func ValidateStay(stay daterange.DateRange, today civil.Date) error {
	if err := stay.Validate(); err != nil {
		return fmt.Errorf("%w: %v", ErrInvalidDateRange, err)
	}
	if n := stay.Nights(); n < 1 || n > MaxStayNights {
		return fmt.Errorf("%w: stay must be between 1 and %d nights, got %d", ErrInvalidDateRange, MaxStayNights, n)
	}
	if stay.CheckIn.Before(today) {
		return fmt.Errorf("%w: check-in %s is before today %s", ErrInvalidDateRange, stay.CheckIn, today)
	}
	return nil
}

// Conflict is an active reservation that already holds some of the requested dates.
type Conflict struct {
	BookingID booking.BookingID
	OrderCode string
	Status    booking.Status
	Range     daterange.DateRange
}

type Result struct {
	Available bool
	Blackouts []civil.Date
	Conflicts []Conflict
}

// Err turns an unavailable result into an *UnavailableError.
func (r Result) Err() error {
	if r.Available {
		return nil
	}
	return &UnavailableError{Blackouts: r.Blackouts, Conflicts: r.Conflicts}
}

// UnavailableError lists what stands in the way of a stay.
type UnavailableError struct {
	Blackouts []civil.Date
	Conflicts []Conflict
}

func (e *UnavailableError) Error() string {
	var parts []string
	if len(e.Blackouts) > 0 {
		dates := make([]string, 0, len(e.Blackouts))
		for _, d := range e.Blackouts {
			dates = append(dates, d.String())
		}
		parts = append(parts, "blocked dates "+strings.Join(dates, ", "))
	}
	for _, c := range e.Conflicts {
		parts = append(parts, fmt.Sprintf("reservation %s for %s to %s", c.OrderCode, c.Range.CheckIn, c.Range.CheckOut))
	}
	if len(parts) == 0 {
		return ErrRoomUnavailable.Error()
	}
	return ErrRoomUnavailable.Error() + ": " + strings.Join(parts, "; ")
}

func (e *UnavailableError) Is(target error) bool {
	return target == ErrRoomUnavailable
}

// ReservationReader finds bookings in the active set that overlap a range.
type ReservationReader interface {
	ActiveOverlapping(ctx context.Context, roomID property.RoomID, dr daterange.DateRange) ([]*booking.Booking, error)
}

type BlackoutReader interface {
	InRange(ctx context.Context, roomID property.RoomID, dr daterange.DateRange) ([]UnavailableDate, error)
}

// Checker decides whether a room can take a stay. It only reads.
type Checker struct {
	Blackouts    BlackoutReader
	Reservations ReservationReader
}

func NewChecker(blackouts BlackoutReader, reservations ReservationReader) Checker {
	return Checker{Blackouts: blackouts, Reservations: reservations}
}

// Check looks at host blackouts first and reports them alone when any exist;
// otherwise it reports the overlapping active reservations.
func (c Checker) Check(ctx context.Context, roomID property.RoomID, stay daterange.DateRange, today civil.Date) (Result, error) {
	if err := ValidateStay(stay, today); err != nil {
		return Result{}, err
	}

	rows, err := c.Blackouts.InRange(ctx, roomID, stay)
	if err != nil {
		return Result{}, fmt.Errorf("load blackouts: %w", err)
	}
	var blocked []civil.Date
	for _, row := range rows {
		if row.Blocks() && stay.ContainsDate(row.Date) {
			blocked = append(blocked, row.Date)
		}
	}
	if len(blocked) > 0 {
		return Result{Blackouts: uniqueSorted(blocked)}, nil
	}

	existing, err := c.Reservations.ActiveOverlapping(ctx, roomID, stay)
	if err != nil {
		return Result{}, fmt.Errorf("load reservations: %w", err)
	}
	conflicts := ConflictsOf(existing, stay)
	if len(conflicts) > 0 {
		return Result{Conflicts: conflicts}, nil
	}
	return Result{Available: true}, nil
}

// ConflictsOf keeps the bookings that hold dates and overlap stay.
func ConflictsOf(bookings []*booking.Booking, stay daterange.DateRange) []Conflict {
	var out []Conflict
	for _, b := range bookings {
		if b == nil || !b.HoldsDates() || !b.Range.Overlaps(stay) {
			continue
		}
		out = append(out, Conflict{BookingID: b.ID, OrderCode: b.OrderCode, Status: b.Status, Range: b.Range})
	}
	return out
}
