package booking

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"

	"cloud.google.com/go/civil"

	"staysane/internal/domain/pricing"
	"staysane/internal/domain/property"
	"staysane/internal/domain/shared/daterange"
	"staysane/internal/domain/shared/errs"
	"staysane/internal/domain/shared/events"
	"staysane/internal/domain/shared/money"
	"staysane/internal/domain/user"
)

var (
	ErrInvalidGuests             = errors.New("booking: guests count must be positive")
	ErrInvalidQuantity           = errors.New("booking: quantity must be positive")
	ErrGuestLimitExceeded        = errors.New("booking: guest count exceeds property limit")
	ErrInvalidState              = errors.New("booking: invalid state transition")
	ErrInvalidStatus             = errors.New("booking: unknown status")
	ErrWrongPaymentMethod        = errors.New("booking: operation not allowed for payment method")
	ErrPaymentWindowClosed       = errors.New("booking: payment window has closed")
	ErrProofRequired             = errors.New("booking: payment proof is required")
	ErrStayNotFinished           = errors.New("booking: stay has not ended yet")
	ErrTotalNotPositive          = errors.New("booking: total must be positive")
	ErrOrderCodeRequired         = errors.New("booking: order code is required")
	ErrBookingNotFound           = errs.NotFound("booking")
	ErrBookingConflict           = errs.Conflict("booking")
	ErrPaymentGatewayUnavailable = errors.New("booking: payment gateway unavailable")
)

type BookingID string

type Status string

const (
	StatusWaitingPayment      Status = "WAITING_PAYMENT"
	StatusWaitingConfirmation Status = "WAITING_CONFIRMATION"
	StatusProcessing          Status = "PROCESSING"
	StatusCompleted           Status = "COMPLETED"
	StatusCanceled            Status = "CANCELED"
)

var activeStatuses = []Status{
	StatusWaitingPayment,
	StatusWaitingConfirmation,
	StatusProcessing,
	StatusCompleted,
}

// ActiveStatuses lists the statuses that hold a room's dates.
func ActiveStatuses() []Status {
	return append([]Status(nil), activeStatuses...)
}

func (s Status) IsActive() bool {
	for _, candidate := range activeStatuses {
		if s == candidate {
			return true
		}
	}
	return false
}

func (s Status) IsTerminal() bool {
	return s == StatusCompleted || s == StatusCanceled
}

func ParseStatus(raw string) (Status, error) {
	switch s := Status(strings.ToUpper(strings.TrimSpace(raw))); s {
	case StatusWaitingPayment, StatusWaitingConfirmation, StatusProcessing, StatusCompleted, StatusCanceled:
		return s, nil
	default:
		return "", fmt.Errorf("%w: %q", ErrInvalidStatus, raw)
	}
}

// Booking is a guest's reservation of one room for a half-open date range.
type Booking struct {
	ID            BookingID
	OrderCode     string
	GuestID       user.ID
	TenantID      property.TenantID
	PropertyID    property.ID
	RoomID        property.RoomID
	Range         daterange.DateRange
	Guests        int
	Quantity      int
	Nightly       []pricing.Night
	PricePerNight money.Money
	Total         money.Money
	Payment       Payment
	Status        Status
	ExpiresAt     time.Time
	CancelReason  string
	CreatedAt     time.Time
	UpdatedAt     time.Time
	Version       int64
	events.EventRecorder
}

type Repository interface {
	ByID(ctx context.Context, id BookingID) (*Booking, error)
	ByOrderCode(ctx context.Context, code string) (*Booking, error)
	// Insert stores a new booking. Storage-level overlap protection surfaces as ErrBookingConflict.
	Insert(ctx context.Context, b *Booking) error
	// Save persists a modified booking, failing with ErrBookingConflict when
	// the stored version moved on since it was loaded.
	Save(ctx context.Context, b *Booking) error
	ActiveOverlapping(ctx context.Context, roomID property.RoomID, dr daterange.DateRange) ([]*Booking, error)
	ListByGuest(ctx context.Context, guestID user.ID) ([]*Booking, error)
	ListByTenant(ctx context.Context, tenantID property.TenantID, statuses []Status) ([]*Booking, error)
	// ListExpired returns WAITING_PAYMENT bookings whose payment window closed at or before now.
	ListExpired(ctx context.Context, now time.Time, limit int) ([]*Booking, error)
	// ListCompletable returns PROCESSING bookings whose check-out is on or before today.
	ListCompletable(ctx context.Context, today civil.Date, limit int) ([]*Booking, error)
}

type CreateParams struct {
	ID         BookingID
	OrderCode  string
	GuestID    user.ID
	TenantID   property.TenantID
	PropertyID property.ID
	RoomID     property.RoomID
	Range      daterange.DateRange
	Guests     int
	Quote      pricing.Breakdown
	Method     PaymentMethod
	ExpiresAt  time.Time
	CreatedAt  time.Time
}

func NewBooking(params CreateParams) (*Booking, error) {
	if params.Guests <= 0 {
		return nil, ErrInvalidGuests
	}
	if params.Quote.Quantity <= 0 {
		return nil, ErrInvalidQuantity
	}
	if strings.TrimSpace(params.OrderCode) == "" {
		return nil, ErrOrderCodeRequired
	}
	if err := params.Range.Validate(); err != nil {
		return nil, err
	}
	if !params.Quote.Total.IsPositive() {
		return nil, ErrTotalNotPositive
	}
	payment, err := newPayment(params.Method, params.OrderCode)
	if err != nil {
		return nil, err
	}
	now := params.CreatedAt.UTC()
	quote := params.Quote.Copy()
	b := &Booking{
		ID:            params.ID,
		OrderCode:     params.OrderCode,
		GuestID:       params.GuestID,
		TenantID:      params.TenantID,
		PropertyID:    params.PropertyID,
		RoomID:        params.RoomID,
		Range:         params.Range,
		Guests:        params.Guests,
		Quantity:      quote.Quantity,
		Nightly:       quote.Nights,
		PricePerNight: quote.AverageNightly,
		Total:         quote.Total,
		Payment:       payment,
		Status:        StatusWaitingPayment,
		ExpiresAt:     params.ExpiresAt.UTC(),
		CreatedAt:     now,
		UpdatedAt:     now,
	}
	b.Record(BookingCreated{
		BookingID: b.ID,
		OrderCode: b.OrderCode,
		GuestID:   b.GuestID,
		RoomID:    b.RoomID,
		CheckIn:   b.Range.CheckIn,
		CheckOut:  b.Range.CheckOut,
		Total:     b.Total,
		Method:    payment.Method(),
		ExpiresAt: b.ExpiresAt,
		At:        now,
	})
	return b, nil
}

func (b *Booking) Nights() int {
	return b.Range.Nights()
}

// HoldsDates reports whether the booking still blocks its room for its range.
func (b *Booking) HoldsDates() bool {
	return b.Status.IsActive()
}

// GatewayUnavailableError is returned when a booking was stored but the
// payment gateway could not start a payment for it. The booking has been
// switched to manual transfer and remains valid.
type GatewayUnavailableError struct {
	Booking *Booking
	Err     error
}

func (e *GatewayUnavailableError) Error() string {
	return fmt.Sprintf("booking %s: payment gateway unavailable: %v", e.Booking.ID, e.Err)
}

func (e *GatewayUnavailableError) Unwrap() error {
	return e.Err
}

// Committed reports that the booking itself was stored.
func (e *GatewayUnavailableError) Committed() bool { return true }

func (e *GatewayUnavailableError) Is(target error) bool {
	return target == ErrPaymentGatewayUnavailable
}
