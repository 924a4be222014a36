package booking

import (
	"context"
	"errors"
	"log/slog"
	"strings"
	"time"

	"cloud.google.com/go/civil"

	"staysane/internal/app/authz"
	"staysane/internal/app/clock"
	"staysane/internal/app/commands"
	"staysane/internal/app/dto"
	"staysane/internal/app/outbox"
	"staysane/internal/app/uow"
	domainbooking "staysane/internal/domain/booking"
	"staysane/internal/domain/user"
)

const (
	cancelBookingKey    = "booking.cancel"
	transitionStatusKey = "booking.transition"
)

var ErrGuestCancelNotAllowed = errors.New("booking: guests can only cancel before paying")

type CancelBookingCommand struct {
	BookingID string `validate:"required"`
	Reason    string `validate:"max=500"`
}

func (c CancelBookingCommand) Key() string { return cancelBookingKey }

// CancelBookingHandler cancels a booking on behalf of its guest or tenant.
// Guests may only cancel while payment is still outstanding.
type CancelBookingHandler struct {
	UoWFactory uow.Factory
	Outbox     outbox.Outbox
	Encoder    outbox.EventEncoder
	Clock      clock.Clock
	Logger     *slog.Logger
}

func (h *CancelBookingHandler) Handle(ctx context.Context, cmd CancelBookingCommand) (dto.StatusChange, error) {
	id, err := bookingID(cmd.BookingID)
	if err != nil {
		return dto.StatusChange{}, err
	}
	now := nowFrom(h.Clock)
	b, changed, err := mutateBooking(ctx, h.UoWFactory, h.Outbox, h.Encoder, id, func(b *domainbooking.Booking) (bool, error) {
		if err := authorizeParty(ctx, b); err != nil {
			return false, err
		}
		if p, ok := authz.FromContext(ctx); ok && p.Role == user.RoleGuest &&
			b.Status != domainbooking.StatusWaitingPayment && b.Status != domainbooking.StatusCanceled {
			return false, ErrGuestCancelNotAllowed
		}
		return b.Cancel(strings.TrimSpace(cmd.Reason), now)
	})
	if err != nil {
		return dto.StatusChange{}, err
	}
	if changed && h.Logger != nil {
		h.Logger.Info("booking canceled", "booking_id", b.ID, "reason", b.CancelReason)
	}
	return statusChange(b, changed), nil
}

// TransitionStatusCommand moves a booking to Target through the matching
// lifecycle operation. It is the tenant-facing generic status endpoint.
type TransitionStatusCommand struct {
	BookingID     string `validate:"required"`
	Target        string `validate:"required"`
	Reason        string `validate:"max=500"`
	TransactionID string
}

func (c TransitionStatusCommand) Key() string { return transitionStatusKey }

func (c TransitionStatusCommand) RequiredRole() user.Role { return user.RoleTenant }

type TransitionStatusHandler struct {
	UoWFactory  uow.Factory
	Outbox      outbox.Outbox
	Encoder     outbox.EventEncoder
	Clock       clock.Clock
	Location    *time.Location
	RetryWindow time.Duration
	Logger      *slog.Logger
}

func (h *TransitionStatusHandler) Handle(ctx context.Context, cmd TransitionStatusCommand) (dto.StatusChange, error) {
	id, err := bookingID(cmd.BookingID)
	if err != nil {
		return dto.StatusChange{}, err
	}
	target, err := domainbooking.ParseStatus(cmd.Target)
	if err != nil {
		return dto.StatusChange{}, err
	}
	now := nowFrom(h.Clock)
	req := domainbooking.TransitionRequest{
		Target:        target,
		Reason:        strings.TrimSpace(cmd.Reason),
		TransactionID: cmd.TransactionID,
		RetryWindow:   retryWindow(h.RetryWindow),
		Now:           now,
		Today:         civil.DateOf(now.In(locationOr(h.Location))),
	}
	b, changed, err := mutateBooking(ctx, h.UoWFactory, h.Outbox, h.Encoder, id, func(b *domainbooking.Booking) (bool, error) {
		if err := authorizeParty(ctx, b); err != nil {
			return false, err
		}
		return b.TransitionTo(req)
	})
	if err != nil {
		return dto.StatusChange{}, err
	}
	if changed && h.Logger != nil {
		h.Logger.Info("booking status changed", "booking_id", b.ID, "status", b.Status, "target", target)
	}
	return statusChange(b, changed), nil
}

func statusChange(b *domainbooking.Booking, changed bool) dto.StatusChange {
	return dto.StatusChange{BookingID: string(b.ID), Status: string(b.Status), Changed: changed}
}

func nowFrom(c clock.Clock) time.Time {
	if c == nil {
		return time.Now().UTC()
	}
	return c.Now()
}

func locationOr(loc *time.Location) *time.Location {
	if loc == nil {
		return time.UTC
	}
	return loc
}

func retryWindow(d time.Duration) time.Duration {
	if d > 0 {
		return d
	}
	return DefaultPaymentWindow
}

var (
	_ commands.Handler[CancelBookingCommand, dto.StatusChange]    = (*CancelBookingHandler)(nil)
	_ commands.Handler[TransitionStatusCommand, dto.StatusChange] = (*TransitionStatusHandler)(nil)
)
