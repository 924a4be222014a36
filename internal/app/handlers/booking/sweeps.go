package booking

import (
	"context"
	"errors"
	"log/slog"
	"time"

	"cloud.google.com/go/civil"

	"staysane/internal/app/clock"
	"staysane/internal/app/commands"
	"staysane/internal/app/dto"
	"staysane/internal/app/handlers/support"
	"staysane/internal/app/middleware"
	"staysane/internal/app/outbox"
	"staysane/internal/app/uow"
	domainbooking "staysane/internal/domain/booking"
	"staysane/internal/domain/shared/errs"
)

const (
	expireBookingsKey   = "booking.sweep.expire"
	completeBookingsKey = "booking.sweep.complete"

	DefaultSweepLimit = 500
)

// ExpireBookingsCommand cancels unpaid bookings whose payment window has
// closed. A zero Now means the handler's clock.
type ExpireBookingsCommand struct {
	Now   time.Time
	Limit int `validate:"gte=0"`
}

func (c ExpireBookingsCommand) Key() string { return expireBookingsKey }

func (c ExpireBookingsCommand) OwnsTransaction() bool { return true }

// CompleteBookingsCommand completes paid bookings whose check-out date has
// been reached. A zero Today means the current date in the handler's location.
type CompleteBookingsCommand struct {
	Today civil.Date
	Limit int `validate:"gte=0"`
}

func (c CompleteBookingsCommand) Key() string { return completeBookingsKey }

func (c CompleteBookingsCommand) OwnsTransaction() bool { return true }

// SweepHandler serves both scheduler sweeps. Each booking is changed in its
// own transaction so one stale row does not hold back the rest.
type SweepHandler struct {
	UoWFactory uow.Factory
	Outbox     outbox.Outbox
	Encoder    outbox.EventEncoder
	Clock      clock.Clock
	Location   *time.Location
	Logger     *slog.Logger
}

func (h *SweepHandler) Expire(ctx context.Context, cmd ExpireBookingsCommand) (dto.SweepResult, error) {
	now := cmd.Now
	if now.IsZero() {
		now = nowFrom(h.Clock)
	}
	due, err := h.list(ctx, func(ctx context.Context, repo domainbooking.Repository) ([]*domainbooking.Booking, error) {
		return repo.ListExpired(ctx, now, limitOr(cmd.Limit))
	})
	if err != nil {
		return dto.SweepResult{}, err
	}
	result := h.apply(ctx, "expire", due, func(b *domainbooking.Booking) (bool, error) {
		return b.Expire(now), nil
	})
	return result, nil
}

func (h *SweepHandler) Complete(ctx context.Context, cmd CompleteBookingsCommand) (dto.SweepResult, error) {
	now := nowFrom(h.Clock)
	today := cmd.Today
	if today.IsZero() {
		today = civil.DateOf(now.In(locationOr(h.Location)))
	}
	due, err := h.list(ctx, func(ctx context.Context, repo domainbooking.Repository) ([]*domainbooking.Booking, error) {
		return repo.ListCompletable(ctx, today, limitOr(cmd.Limit))
	})
	if err != nil {
		return dto.SweepResult{}, err
	}
	result := h.apply(ctx, "complete", due, func(b *domainbooking.Booking) (bool, error) {
		return b.Complete(today, now)
	})
	return result, nil
}

func (h *SweepHandler) list(
	ctx context.Context,
	load func(ctx context.Context, repo domainbooking.Repository) ([]*domainbooking.Booking, error),
) ([]*domainbooking.Booking, error) {
	unit, execCtx, cleanup, err := support.BeginReadOnlyUnit(ctx, h.UoWFactory)
	if err != nil {
		return nil, err
	}
	if cleanup != nil {
		defer cleanup()
	}
	return load(execCtx, unit.Bookings())
}

func (h *SweepHandler) apply(
	ctx context.Context,
	sweep string,
	due []*domainbooking.Booking,
	change func(b *domainbooking.Booking) (bool, error),
) dto.SweepResult {
	result := dto.SweepResult{Scanned: len(due)}
	for _, candidate := range due {
		if ctx.Err() != nil {
			break
		}
		_, changed, err := mutateBooking(ctx, h.UoWFactory, h.Outbox, h.Encoder, candidate.ID, change)
		switch {
		case err == nil && changed:
			result.Changed++
		case err == nil:
		case errors.Is(err, errs.ErrConcurrentConflict):
			result.Conflicts++
		default:
			result.Failed++
			h.logger().Error("sweep failed for booking", "sweep", sweep, "booking_id", candidate.ID, "error", err)
		}
	}
	if result.Changed > 0 || result.Failed > 0 {
		h.logger().Info("booking sweep finished",
			"sweep", sweep,
			"scanned", result.Scanned,
			"changed", result.Changed,
			"conflicts", result.Conflicts,
			"failed", result.Failed,
		)
	}
	return result
}

func (h *SweepHandler) logger() *slog.Logger {
	if h.Logger != nil {
		return h.Logger
	}
	return slog.Default()
}

func limitOr(limit int) int {
	if limit > 0 {
		return limit
	}
	return DefaultSweepLimit
}

// ExpireHandler and CompleteHandler expose the sweeps for router registration.
func (h *SweepHandler) ExpireHandler() commands.Handler[ExpireBookingsCommand, dto.SweepResult] {
	return commands.HandlerFunc[ExpireBookingsCommand, dto.SweepResult](h.Expire)
}

func (h *SweepHandler) CompleteHandler() commands.Handler[CompleteBookingsCommand, dto.SweepResult] {
	return commands.HandlerFunc[CompleteBookingsCommand, dto.SweepResult](h.Complete)
}

var (
	_ middleware.SelfTransacted = ExpireBookingsCommand{}
	_ middleware.SelfTransacted = CompleteBookingsCommand{}
)
