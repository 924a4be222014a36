package dto

import (
	"time"

	"cloud.google.com/go/civil"

	domainbooking "staysane/internal/domain/booking"
	"staysane/internal/domain/pricing"
	"staysane/internal/domain/shared/money"
)

type MoneyDTO struct {
	Amount   int64  `json:"amount"`
	Currency string `json:"currency"`
}

func MapMoney(value money.Money) MoneyDTO {
	return MoneyDTO{Amount: value.Amount, Currency: value.Currency}
}

type NightDTO struct {
	Date         civil.Date `json:"date"`
	Price        MoneyDTO   `json:"price"`
	AdjustmentID string     `json:"adjustment_id,omitempty"`
}

func MapNights(nights []pricing.Night) []NightDTO {
	out := make([]NightDTO, 0, len(nights))
	for _, n := range nights {
		out = append(out, NightDTO{Date: n.Date, Price: MapMoney(n.Price), AdjustmentID: string(n.AdjustmentID)})
	}
	return out
}

type PaymentDTO struct {
	Method          string     `json:"method"`
	ProofURL        string     `json:"proof_url,omitempty"`
	ProofUploadedAt *time.Time `json:"proof_uploaded_at,omitempty"`
	RejectedReason  string     `json:"rejected_reason,omitempty"`
	OrderRef        string     `json:"order_ref,omitempty"`
	Token           string     `json:"token,omitempty"`
	RedirectURL     string     `json:"redirect_url,omitempty"`
	TransactionID   string     `json:"transaction_id,omitempty"`
	PaidAt          *time.Time `json:"paid_at,omitempty"`
}

type Booking struct {
	ID            string     `json:"id"`
	OrderCode     string     `json:"order_code"`
	GuestID       string     `json:"guest_id"`
	TenantID      string     `json:"tenant_id"`
	PropertyID    string     `json:"property_id"`
	RoomID        string     `json:"room_id"`
	CheckIn       civil.Date `json:"check_in"`
	CheckOut      civil.Date `json:"check_out"`
	Nights        int        `json:"nights"`
	Guests        int        `json:"guests"`
	Quantity      int        `json:"quantity"`
	PricePerNight MoneyDTO   `json:"price_per_night"`
	Nightly       []NightDTO `json:"nightly"`
	Total         MoneyDTO   `json:"total"`
	Payment       PaymentDTO `json:"payment"`
	Status        string     `json:"status"`
	ExpiresAt     *time.Time `json:"expires_at,omitempty"`
	CancelReason  string     `json:"cancel_reason,omitempty"`
	CreatedAt     time.Time  `json:"created_at"`
	UpdatedAt     time.Time  `json:"updated_at"`
	Version       int64      `json:"version"`
}

type BookingCollection struct {
	Items []Booking `json:"items"`
}

func MapBooking(b *domainbooking.Booking) Booking {
	return Booking{
		ID:            string(b.ID),
		OrderCode:     b.OrderCode,
		GuestID:       string(b.GuestID),
		TenantID:      string(b.TenantID),
		PropertyID:    string(b.PropertyID),
		RoomID:        string(b.RoomID),
		CheckIn:       b.Range.CheckIn,
		CheckOut:      b.Range.CheckOut,
		Nights:        b.Nights(),
		Guests:        b.Guests,
		Quantity:      b.Quantity,
		PricePerNight: MapMoney(b.PricePerNight),
		Nightly:       MapNights(b.Nightly),
		Total:         MapMoney(b.Total),
		Payment:       mapPayment(b),
		Status:        string(b.Status),
		ExpiresAt:     optionalTime(b.ExpiresAt),
		CancelReason:  b.CancelReason,
		CreatedAt:     b.CreatedAt,
		UpdatedAt:     b.UpdatedAt,
		Version:       b.Version,
	}
}

func MapBookings(items []*domainbooking.Booking) BookingCollection {
	out := BookingCollection{Items: make([]Booking, 0, len(items))}
	for _, b := range items {
		out.Items = append(out.Items, MapBooking(b))
	}
	return out
}

func mapPayment(b *domainbooking.Booking) PaymentDTO {
	out := PaymentDTO{Method: string(b.Method())}
	switch p := b.Payment.(type) {
	case domainbooking.ManualTransfer:
		out.ProofURL = p.ProofURL
		out.ProofUploadedAt = optionalTime(p.ProofUploaded)
		out.RejectedReason = p.RejectedReason
	case domainbooking.GatewayPayment:
		out.OrderRef = p.OrderRef
		out.Token = p.Token
		out.RedirectURL = p.RedirectURL
		out.TransactionID = p.TransactionID
		out.PaidAt = optionalTime(p.PaidAt)
	}
	return out
}

func optionalTime(t time.Time) *time.Time {
	if t.IsZero() {
		return nil
	}
	v := t
	return &v
}

// StatusChange reports the outcome of a lifecycle command.
type StatusChange struct {
	BookingID string `json:"booking_id"`
	Status    string `json:"status"`
	Changed   bool   `json:"changed"`
}

// SweepResult counts what a scheduler sweep did.
type SweepResult struct {
	Scanned   int `json:"scanned"`
	Changed   int `json:"changed"`
	Conflicts int `json:"conflicts"`
	Failed    int `json:"failed"`
}
