package booking

import (
	"fmt"
	"strings"
	"time"

	"cloud.google.com/go/civil"
)

const ExpiredReason = "payment window expired"

// SubmitPaymentProof attaches a manual-transfer proof and hands the booking to
// the tenant for review.
func (b *Booking) SubmitPaymentProof(proofURL string, now time.Time) error {
	if strings.TrimSpace(proofURL) == "" {
		return ErrProofRequired
	}
	if b.Status != StatusWaitingPayment {
		return b.invalid(StatusWaitingConfirmation)
	}
	pay, ok := b.manual()
	if !ok {
		return ErrWrongPaymentMethod
	}
	if b.windowClosed(now) {
		return ErrPaymentWindowClosed
	}
	pay.ProofURL = proofURL
	pay.ProofUploaded = now.UTC()
	pay.RejectedReason = ""
	b.Payment = pay
	b.moveTo(StatusWaitingConfirmation, TriggerProofUploaded, "", now)
	return nil
}

// ApprovePaymentProof is the tenant accepting the uploaded proof.
func (b *Booking) ApprovePaymentProof(now time.Time) error {
	if b.Status != StatusWaitingConfirmation {
		return b.invalid(StatusProcessing)
	}
	b.ExpiresAt = time.Time{}
	b.moveTo(StatusProcessing, TriggerProofApproved, "", now)
	return nil
}

// RejectPaymentProof sends the booking back for a new proof with a fresh
// payment window, or cancels it outright.
func (b *Booking) RejectPaymentProof(reason string, cancel bool, window time.Duration, now time.Time) error {
	if b.Status != StatusWaitingConfirmation {
		return b.invalid(StatusWaitingPayment)
	}
	pay, _ := b.manual()
	pay.ProofURL = ""
	pay.ProofUploaded = time.Time{}
	pay.RejectedReason = reason
	b.Payment = pay
	if cancel {
		b.CancelReason = reason
		b.ExpiresAt = time.Time{}
		b.moveTo(StatusCanceled, TriggerProofRejected, reason, now)
		return nil
	}
	b.ExpiresAt = now.UTC().Add(window)
	b.moveTo(StatusWaitingPayment, TriggerProofRejected, reason, now)
	return nil
}

// ConfirmGatewayPayment marks a gateway booking as paid. Redelivered
// notifications for an already-paid booking are ignored.
func (b *Booking) ConfirmGatewayPayment(transactionID string, now time.Time) (bool, error) {
	pay, ok := b.gateway()
	if !ok {
		return false, ErrWrongPaymentMethod
	}
	if b.Status == StatusProcessing || b.Status == StatusCompleted {
		return false, nil
	}
	if b.Status != StatusWaitingPayment {
		return false, b.invalid(StatusProcessing)
	}
	pay.TransactionID = transactionID
	pay.PaidAt = now.UTC()
	b.Payment = pay
	b.ExpiresAt = time.Time{}
	b.moveTo(StatusProcessing, TriggerGatewayPaid, "", now)
	return true, nil
}

// Cancel moves any non-terminal booking to CANCELED. Canceling twice is a no-op.
func (b *Booking) Cancel(reason string, now time.Time) (bool, error) {
	switch b.Status {
	case StatusCanceled:
		return false, nil
	case StatusCompleted:
		return false, b.invalid(StatusCanceled)
	}
	if strings.TrimSpace(reason) == "" {
		reason = "canceled"
	}
	b.CancelReason = reason
	b.ExpiresAt = time.Time{}
	b.moveTo(StatusCanceled, TriggerCanceled, reason, now)
	return true, nil
}

// Expire cancels an unpaid booking whose payment window has elapsed. It does
// nothing for bookings in any other situation.
func (b *Booking) Expire(now time.Time) bool {
	if b.Status != StatusWaitingPayment || !b.windowClosed(now) {
		return false
	}
	b.CancelReason = ExpiredReason
	b.moveTo(StatusCanceled, TriggerExpired, ExpiredReason, now)
	return true
}

// Complete closes a paid booking once its check-out date is reached.
func (b *Booking) Complete(today civil.Date, now time.Time) (bool, error) {
	switch b.Status {
	case StatusCompleted, StatusCanceled:
		return false, nil
	case StatusProcessing:
	default:
		return false, b.invalid(StatusCompleted)
	}
	if today.Before(b.Range.CheckOut) {
		return false, ErrStayNotFinished
	}
	b.moveTo(StatusCompleted, TriggerCompleted, "", now)
	return true, nil
}

// AttachGatewayToken stores the gateway's answer to a payment initiation.
func (b *Booking) AttachGatewayToken(token, redirectURL string, now time.Time) error {
	pay, ok := b.gateway()
	if !ok {
		return ErrWrongPaymentMethod
	}
	pay.Token = token
	pay.RedirectURL = redirectURL
	b.Payment = pay
	b.UpdatedAt = now.UTC()
	b.Record(GatewayPaymentInitiated{BookingID: b.ID, OrderRef: pay.OrderRef, At: b.UpdatedAt})
	return nil
}

// DowngradeToManual switches a gateway booking whose initiation failed to
// manual transfer. The booking keeps its status and dates.
func (b *Booking) DowngradeToManual(reason string, now time.Time) error {
	if _, ok := b.gateway(); !ok {
		return ErrWrongPaymentMethod
	}
	if b.Status != StatusWaitingPayment {
		return b.invalid(b.Status)
	}
	b.Payment = ManualTransfer{}
	b.UpdatedAt = now.UTC()
	b.Record(PaymentMethodDowngraded{
		BookingID: b.ID,
		From:      MethodPaymentGateway,
		To:        MethodManualTransfer,
		Reason:    reason,
		At:        b.UpdatedAt,
	})
	return nil
}

// TransitionRequest carries what a generic status change may need.
type TransitionRequest struct {
	Target        Status
	Reason        string
	ProofURL      string
	TransactionID string
	RetryWindow   time.Duration
	Now           time.Time
	Today         civil.Date
}

// TransitionTo routes a requested target status to the matching lifecycle
// operation. changed is false when the booking was already where the request
// would have put it.
func (b *Booking) TransitionTo(req TransitionRequest) (changed bool, err error) {
	switch req.Target {
	case StatusWaitingConfirmation:
		if b.Status == StatusWaitingConfirmation {
			return false, nil
		}
		return applied(b.SubmitPaymentProof(req.ProofURL, req.Now))
	case StatusProcessing:
		if b.Method() == MethodPaymentGateway {
			return b.ConfirmGatewayPayment(req.TransactionID, req.Now)
		}
		if b.Status == StatusProcessing {
			return false, nil
		}
		return applied(b.ApprovePaymentProof(req.Now))
	case StatusWaitingPayment:
		return applied(b.RejectPaymentProof(req.Reason, false, req.RetryWindow, req.Now))
	case StatusCanceled:
		return b.Cancel(req.Reason, req.Now)
	case StatusCompleted:
		return b.Complete(req.Today, req.Now)
	default:
		return false, fmt.Errorf("%w: %q", ErrInvalidStatus, req.Target)
	}
}

func applied(err error) (bool, error) {
	if err != nil {
		return false, err
	}
	return true, nil
}

func (b *Booking) windowClosed(now time.Time) bool {
	return !b.ExpiresAt.IsZero() && !now.Before(b.ExpiresAt)
}

func (b *Booking) moveTo(to Status, trigger, reason string, now time.Time) {
	from := b.Status
	b.Status = to
	b.UpdatedAt = now.UTC()
	b.Record(StatusChanged{BookingID: b.ID, From: from, To: to, Trigger: trigger, Reason: reason, At: b.UpdatedAt})
}

func (b *Booking) invalid(to Status) error {
	return fmt.Errorf("%w: %s -> %s", ErrInvalidState, b.Status, to)
}
