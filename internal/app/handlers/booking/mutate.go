package booking

import (
	"context"
	"errors"
	"strings"

	"staysane/internal/app/authz"
	"staysane/internal/app/handlers/support"
	"staysane/internal/app/outbox"
	"staysane/internal/app/uow"
	domainbooking "staysane/internal/domain/booking"
	"staysane/internal/domain/user"
)

var (
	ErrBookingIDRequired = errors.New("booking: booking id is required")
	ErrNotParticipant    = errors.New("booking: caller is not a party to this booking")
)

// mutateBooking loads a booking, applies change and saves it together with
// the events it recorded. Nothing is written when change reports no change.
func mutateBooking(
	ctx context.Context,
	factory uow.Factory,
	box outbox.Outbox,
	encoder outbox.EventEncoder,
	id domainbooking.BookingID,
	change func(b *domainbooking.Booking) (bool, error),
) (*domainbooking.Booking, bool, error) {
	scope, err := support.Enter(ctx, factory, uow.TxOptions{})
	if err != nil {
		return nil, false, err
	}
	defer scope.Close()

	b, err := scope.Unit.Bookings().ByID(scope.Ctx, id)
	if err != nil {
		return nil, false, err
	}
	changed, err := change(b)
	if err != nil {
		return nil, false, err
	}
	if changed {
		if err := scope.Unit.Bookings().Save(scope.Ctx, b); err != nil {
			return nil, false, err
		}
		if err := outbox.RecordDomainEvents(scope.Ctx, box, encoder, b.DrainEvents()); err != nil {
			return nil, false, err
		}
	}
	if err := scope.Commit(); err != nil {
		return nil, false, err
	}
	return b, changed, nil
}

// authorizeParty checks that the caller is the booking's guest or its tenant.
// Calls without a principal come from trusted internal callers.
func authorizeParty(ctx context.Context, b *domainbooking.Booking) error {
	p, ok := authz.FromContext(ctx)
	if !ok {
		return nil
	}
	switch p.Role {
	case user.RoleGuest:
		if b.GuestID == p.UserID {
			return nil
		}
	case user.RoleTenant:
		if string(b.TenantID) == string(p.UserID) {
			return nil
		}
	}
	return ErrNotParticipant
}

func bookingID(raw string) (domainbooking.BookingID, error) {
	id := strings.TrimSpace(raw)
	if id == "" {
		return "", ErrBookingIDRequired
	}
	return domainbooking.BookingID(id), nil
}
