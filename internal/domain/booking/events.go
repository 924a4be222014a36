package booking

import (
	"time"

	"cloud.google.com/go/civil"

	"staysane/internal/domain/property"
	"staysane/internal/domain/shared/money"
	"staysane/internal/domain/user"
)

type BookingCreated struct {
	BookingID BookingID       `json:"booking_id"`
	OrderCode string          `json:"order_code"`
	GuestID   user.ID         `json:"guest_id"`
	RoomID    property.RoomID `json:"room_id"`
	CheckIn   civil.Date      `json:"check_in"`
	CheckOut  civil.Date      `json:"check_out"`
	Total     money.Money     `json:"total"`
	Method    PaymentMethod   `json:"payment_method"`
	ExpiresAt time.Time       `json:"expires_at"`
	At        time.Time       `json:"at"`
}

func (e BookingCreated) EventName() string     { return "booking.created" }
func (e BookingCreated) AggregateID() string   { return string(e.BookingID) }
func (e BookingCreated) OccurredAt() time.Time { return e.At }

type GatewayPaymentInitiated struct {
	BookingID BookingID `json:"booking_id"`
	OrderRef  string    `json:"order_ref"`
	At        time.Time `json:"at"`
}

func (e GatewayPaymentInitiated) EventName() string     { return "booking.gateway_initiated" }
func (e GatewayPaymentInitiated) AggregateID() string   { return string(e.BookingID) }
func (e GatewayPaymentInitiated) OccurredAt() time.Time { return e.At }

type PaymentMethodDowngraded struct {
	BookingID BookingID     `json:"booking_id"`
	From      PaymentMethod `json:"from"`
	To        PaymentMethod `json:"to"`
	Reason    string        `json:"reason"`
	At        time.Time     `json:"at"`
}

func (e PaymentMethodDowngraded) EventName() string     { return "booking.payment_downgraded" }
func (e PaymentMethodDowngraded) AggregateID() string   { return string(e.BookingID) }
func (e PaymentMethodDowngraded) OccurredAt() time.Time { return e.At }

// StatusChanged is recorded on every lifecycle transition.
type StatusChanged struct {
	BookingID BookingID `json:"booking_id"`
	From      Status    `json:"from"`
	To        Status    `json:"to"`
	Trigger   string    `json:"trigger"`
	Reason    string    `json:"reason,omitempty"`
	At        time.Time `json:"at"`
}

func (e StatusChanged) EventName() string     { return "booking.status_changed" }
func (e StatusChanged) AggregateID() string   { return string(e.BookingID) }
func (e StatusChanged) OccurredAt() time.Time { return e.At }

const (
	TriggerProofUploaded = "proof_uploaded"
	TriggerProofApproved = "proof_approved"
	TriggerProofRejected = "proof_rejected"
	TriggerGatewayPaid   = "gateway_paid"
	TriggerCanceled      = "canceled"
	TriggerExpired       = "expired"
	TriggerCompleted     = "completed"
)
