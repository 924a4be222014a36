package booking

import (
	"fmt"
	"strings"
	"time"
)

type PaymentMethod string

const (
	MethodManualTransfer PaymentMethod = "MANUAL_TRANSFER"
	MethodPaymentGateway PaymentMethod = "PAYMENT_GATEWAY"
)

func ParsePaymentMethod(raw string) (PaymentMethod, error) {
	switch m := PaymentMethod(strings.ToUpper(strings.TrimSpace(raw))); m {
	case "":
		return MethodManualTransfer, nil
	case MethodManualTransfer, MethodPaymentGateway:
		return m, nil
	default:
		return "", fmt.Errorf("%w: unknown payment method %q", ErrWrongPaymentMethod, raw)
	}
}

// Payment is the method-specific state of a booking's payment. The concrete
// type is either ManualTransfer or GatewayPayment.
type Payment interface {
	Method() PaymentMethod
	sealed()
}

// ManualTransfer is paid by bank transfer and confirmed from an uploaded proof.
type ManualTransfer struct {
	ProofURL       string
	ProofUploaded  time.Time
	RejectedReason string
}

func (ManualTransfer) Method() PaymentMethod { return MethodManualTransfer }
func (ManualTransfer) sealed()               {}

func (m ManualTransfer) HasProof() bool {
	return m.ProofURL != ""
}

// GatewayPayment is settled through the external payment gateway. OrderRef is
// the reference handed to the gateway; Token and RedirectURL come back from it.
type GatewayPayment struct {
	OrderRef      string
	Token         string
	RedirectURL   string
	TransactionID string
	PaidAt        time.Time
}

func (GatewayPayment) Method() PaymentMethod { return MethodPaymentGateway }
func (GatewayPayment) sealed()               {}

func (g GatewayPayment) Initiated() bool {
	return g.Token != ""
}

func newPayment(method PaymentMethod, orderCode string) (Payment, error) {
	switch method {
	case MethodManualTransfer, "":
		return ManualTransfer{}, nil
	case MethodPaymentGateway:
		return GatewayPayment{OrderRef: orderCode}, nil
	default:
		return nil, fmt.Errorf("%w: unknown payment method %q", ErrWrongPaymentMethod, method)
	}
}

// Method returns the method of a booking's payment, defaulting to manual transfer.
func (b *Booking) Method() PaymentMethod {
	if b.Payment == nil {
		return MethodManualTransfer
	}
	return b.Payment.Method()
}

func (b *Booking) manual() (ManualTransfer, bool) {
	switch p := b.Payment.(type) {
	case ManualTransfer:
		return p, true
	case nil:
		return ManualTransfer{}, true
	default:
		return ManualTransfer{}, false
	}
}

func (b *Booking) gateway() (GatewayPayment, bool) {
	p, ok := b.Payment.(GatewayPayment)
	return p, ok
}

// PaymentRecord is the flat form of a Payment kept by storage backends.
type PaymentRecord struct {
	Method         PaymentMethod
	ProofURL       string
	ProofUploaded  time.Time
	RejectedReason string
	OrderRef       string
	Token          string
	RedirectURL    string
	TransactionID  string
	PaidAt         time.Time
}

func RecordOf(p Payment) PaymentRecord {
	switch v := p.(type) {
	case GatewayPayment:
		return PaymentRecord{
			Method:        MethodPaymentGateway,
			OrderRef:      v.OrderRef,
			Token:         v.Token,
			RedirectURL:   v.RedirectURL,
			TransactionID: v.TransactionID,
			PaidAt:        v.PaidAt,
		}
	case ManualTransfer:
		return PaymentRecord{
			Method:         MethodManualTransfer,
			ProofURL:       v.ProofURL,
			ProofUploaded:  v.ProofUploaded,
			RejectedReason: v.RejectedReason,
		}
	default:
		return PaymentRecord{Method: MethodManualTransfer}
	}
}

func (r PaymentRecord) Payment() Payment {
	if r.Method == MethodPaymentGateway {
		return GatewayPayment{
			OrderRef:      r.OrderRef,
			Token:         r.Token,
			RedirectURL:   r.RedirectURL,
			TransactionID: r.TransactionID,
			PaidAt:        r.PaidAt,
		}
	}
	return ManualTransfer{
		ProofURL:       r.ProofURL,
		ProofUploaded:  r.ProofUploaded,
		RejectedReason: r.RejectedReason,
	}
}
