package booking

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"strings"
	"time"

	"cloud.google.com/go/civil"
	"github.com/google/uuid"
	"github.com/shopspring/decimal"

	"staysane/internal/app/authz"
	"staysane/internal/app/clock"
	"staysane/internal/app/commands"
	"staysane/internal/app/dto"
	"staysane/internal/app/handlers/support"
	"staysane/internal/app/middleware"
	"staysane/internal/app/outbox"
	"staysane/internal/app/policies"
	"staysane/internal/app/uow"
	"staysane/internal/domain/availability"
	domainbooking "staysane/internal/domain/booking"
	"staysane/internal/domain/pricing"
	"staysane/internal/domain/property"
	"staysane/internal/domain/shared/daterange"
	"staysane/internal/domain/user"
)

const (
	createBookingKey     = "booking.create"
	DefaultPaymentWindow = time.Hour
)

type CreateBookingCommand struct {
	GuestID       string `validate:"required"`
	PropertyID    string `validate:"required"`
	RoomID        string `validate:"required"`
	CheckIn       civil.Date
	CheckOut      civil.Date
	Guests        int `validate:"gt=0"`
	Quantity      int `validate:"gte=0,lte=20"`
	Total         decimal.Decimal
	PaymentMethod string `validate:"omitempty,oneof=MANUAL_TRANSFER PAYMENT_GATEWAY"`
	RequestKey    string
}

func (c CreateBookingCommand) Key() string { return createBookingKey }

func (c CreateBookingCommand) RequiredRole() user.Role { return user.RoleGuest }

func (c CreateBookingCommand) OwnsTransaction() bool { return true }

func (c CreateBookingCommand) IdempotencyKey() string {
	if c.RequestKey == "" {
		return ""
	}
	return c.GuestID + ":" + c.RequestKey
}

func (c CreateBookingCommand) ResultPrototype() any { return &dto.Booking{} }

// CreateBookingHandler reserves a room for a guest. The availability re-check,
// price verification and insert run in one transaction under the room lock;
// a gateway payment is opened only after that transaction commits.
type CreateBookingHandler struct {
	UoWFactory    uow.Factory
	Locker        policies.RoomLocker
	Payments      policies.PaymentInitiator
	Outbox        outbox.Outbox
	Encoder       outbox.EventEncoder
	Clock         clock.Clock
	Location      *time.Location
	PaymentWindow time.Duration
	Tolerance     decimal.Decimal
	NewID         func() string
	NewOrderCode  func(now time.Time) string
	Logger        *slog.Logger
}

func (h *CreateBookingHandler) Handle(ctx context.Context, cmd CreateBookingCommand) (*dto.Booking, error) {
	if p, ok := authz.FromContext(ctx); ok && string(p.UserID) != strings.TrimSpace(cmd.GuestID) {
		return nil, authz.ErrForbidden
	}
	now := h.clock().Now()
	today := civil.DateOf(now.In(h.location()))

	stay := daterange.DateRange{CheckIn: cmd.CheckIn, CheckOut: cmd.CheckOut}
	if err := availability.ValidateStay(stay, today); err != nil {
		return nil, err
	}
	method, err := domainbooking.ParsePaymentMethod(cmd.PaymentMethod)
	if err != nil {
		return nil, err
	}

	roomID := property.RoomID(strings.TrimSpace(cmd.RoomID))
	unlock, err := h.locker().LockRoom(ctx, roomID)
	if err != nil {
		return nil, err
	}
	reserved, err := h.reserve(ctx, cmd, roomID, stay, method, today, now)
	if unlockErr := unlock(context.WithoutCancel(ctx)); unlockErr != nil {
		h.logger().Warn("room unlock failed", "room_id", roomID, "error", unlockErr)
	}
	if err != nil {
		return nil, err
	}
	h.logger().Info("booking created",
		"booking_id", reserved.ID,
		"order_code", reserved.OrderCode,
		"room_id", reserved.RoomID,
		"check_in", reserved.Range.CheckIn.String(),
		"check_out", reserved.Range.CheckOut.String(),
		"total", reserved.Total.Amount,
		"method", reserved.Method(),
	)

	if method != domainbooking.MethodPaymentGateway {
		result := dto.MapBooking(reserved)
		return &result, nil
	}
	return h.startGatewayPayment(ctx, reserved, now)
}

func (h *CreateBookingHandler) reserve(
	ctx context.Context,
	cmd CreateBookingCommand,
	roomID property.RoomID,
	stay daterange.DateRange,
	method domainbooking.PaymentMethod,
	today civil.Date,
	now time.Time,
) (*domainbooking.Booking, error) {
	scope, err := support.Isolated(ctx, h.UoWFactory)
	if err != nil {
		return nil, err
	}
	defer scope.Close()
	unit, txCtx := scope.Unit, scope.Ctx

	guest, err := unit.Users().ByID(txCtx, user.ID(strings.TrimSpace(cmd.GuestID)))
	if err != nil {
		return nil, err
	}
	prop, err := unit.Properties().ByID(txCtx, property.ID(strings.TrimSpace(cmd.PropertyID)))
	if err != nil {
		return nil, err
	}
	room, err := unit.Rooms().ByIDForUpdate(txCtx, roomID)
	if err != nil {
		return nil, err
	}
	if !room.BelongsTo(prop.ID) {
		return nil, property.ErrRoomNotInProperty
	}
	if cmd.Guests > prop.MaxGuests {
		return nil, fmt.Errorf("%w: %d guests requested, property allows %d", domainbooking.ErrGuestLimitExceeded, cmd.Guests, prop.MaxGuests)
	}

	checker := availability.NewChecker(unit.Blackouts(), unit.Bookings())
	res, err := checker.Check(txCtx, room.ID, stay, today)
	if err != nil {
		return nil, err
	}
	if err := res.Err(); err != nil {
		return nil, err
	}

	adjustments, err := unit.Adjustments().ListByRoom(txCtx, room.ID)
	if err != nil {
		return nil, err
	}
	quote, err := pricing.ComputeTotal(room.BasePrice, stay, adjustments, cmd.Quantity)
	if err != nil {
		return nil, err
	}
	if err := pricing.CheckTotal(cmd.Total, quote.Total, h.tolerance()); err != nil {
		return nil, err
	}

	b, err := domainbooking.NewBooking(domainbooking.CreateParams{
		ID:         domainbooking.BookingID(h.newID()),
		OrderCode:  h.orderCode(now),
		GuestID:    guest.ID,
		TenantID:   prop.TenantID,
		PropertyID: prop.ID,
		RoomID:     room.ID,
		Range:      stay,
		Guests:     cmd.Guests,
		Quote:      quote,
		Method:     method,
		ExpiresAt:  now.Add(h.paymentWindow()),
		CreatedAt:  now,
	})
	if err != nil {
		return nil, err
	}
	if err := unit.Bookings().Insert(txCtx, b); err != nil {
		return nil, err
	}
	if err := outbox.RecordDomainEvents(txCtx, h.Outbox, h.Encoder, b.DrainEvents()); err != nil {
		return nil, err
	}
	if err := scope.Commit(); err != nil {
		return nil, err
	}
	return b, nil
}

// startGatewayPayment asks the gateway for a payment token. When the gateway
// fails, the booking is switched to manual transfer and kept.
func (h *CreateBookingHandler) startGatewayPayment(ctx context.Context, b *domainbooking.Booking, now time.Time) (*dto.Booking, error) {
	token, initErr := h.payments().Initiate(ctx, policies.PaymentRequest{
		OrderRef:   b.OrderCode,
		Amount:     b.Total,
		CustomerID: string(b.GuestID),
	})
	if initErr == nil {
		updated, _, err := mutateBooking(ctx, h.UoWFactory, h.Outbox, h.Encoder, b.ID, func(current *domainbooking.Booking) (bool, error) {
			return true, current.AttachGatewayToken(token.Token, token.RedirectURL, now)
		})
		if err != nil {
			return nil, fmt.Errorf("store gateway token for %s: %w", b.OrderCode, err)
		}
		result := dto.MapBooking(updated)
		return &result, nil
	}

	h.logger().Warn("payment gateway unavailable, downgrading to manual transfer",
		"booking_id", b.ID, "order_code", b.OrderCode, "error", initErr)
	updated, _, err := mutateBooking(ctx, h.UoWFactory, h.Outbox, h.Encoder, b.ID, func(current *domainbooking.Booking) (bool, error) {
		return true, current.DowngradeToManual(initErr.Error(), now)
	})
	if err != nil {
		return nil, errors.Join(fmt.Errorf("downgrade %s to manual transfer: %w", b.OrderCode, err), initErr)
	}
	result := dto.MapBooking(updated)
	return &result, &domainbooking.GatewayUnavailableError{Booking: updated, Err: initErr}
}

func (h *CreateBookingHandler) clock() clock.Clock {
	if h.Clock != nil {
		return h.Clock
	}
	return clock.NewSystem()
}

func (h *CreateBookingHandler) location() *time.Location {
	if h.Location != nil {
		return h.Location
	}
	return time.UTC
}

func (h *CreateBookingHandler) locker() policies.RoomLocker {
	if h.Locker != nil {
		return h.Locker
	}
	return policies.NoopLocker{}
}

func (h *CreateBookingHandler) payments() policies.PaymentInitiator {
	if h.Payments != nil {
		return h.Payments
	}
	return policies.DisabledInitiator{}
}

func (h *CreateBookingHandler) paymentWindow() time.Duration {
	if h.PaymentWindow > 0 {
		return h.PaymentWindow
	}
	return DefaultPaymentWindow
}

func (h *CreateBookingHandler) tolerance() decimal.Decimal {
	if h.Tolerance.IsPositive() {
		return h.Tolerance
	}
	return pricing.DefaultTolerance
}

func (h *CreateBookingHandler) newID() string {
	if h.NewID != nil {
		return h.NewID()
	}
	return uuid.NewString()
}

func (h *CreateBookingHandler) orderCode(now time.Time) string {
	if h.NewOrderCode != nil {
		return h.NewOrderCode(now)
	}
	return NewOrderCode(now)
}

func (h *CreateBookingHandler) logger() *slog.Logger {
	if h.Logger != nil {
		return h.Logger
	}
	return slog.Default()
}

// NewOrderCode builds a human-readable reference such as INV-20250601-1A2B3C4D.
func NewOrderCode(now time.Time) string {
	suffix := strings.ToUpper(strings.ReplaceAll(uuid.NewString(), "-", "")[:8])
	return "INV-" + now.UTC().Format("20060102") + "-" + suffix
}

var (
	_ commands.Handler[CreateBookingCommand, *dto.Booking] = (*CreateBookingHandler)(nil)
	_ middleware.IdempotentCommand                         = CreateBookingCommand{}
	_ middleware.SelfTransacted                            = CreateBookingCommand{}
)
