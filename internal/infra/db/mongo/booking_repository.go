package mongo

import (
	"context"
	"errors"
	"fmt"
	"time"

	"cloud.google.com/go/civil"
	"go.mongodb.org/mongo-driver/bson"
	"go.mongodb.org/mongo-driver/mongo"
	"go.mongodb.org/mongo-driver/mongo/options"

	domainbooking "staysane/internal/domain/booking"
	domainpricing "staysane/internal/domain/pricing"
	"staysane/internal/domain/property"
	"staysane/internal/domain/shared/daterange"
	"staysane/internal/domain/shared/money"
	"staysane/internal/domain/user"
)

type bookingRepo struct{ u *Unit }

func (r bookingRepo) ByID(ctx context.Context, id domainbooking.BookingID) (*domainbooking.Booking, error) {
	return r.one(ctx, bson.M{"_id": string(id)})
}

func (r bookingRepo) ByOrderCode(ctx context.Context, code string) (*domainbooking.Booking, error) {
	return r.one(ctx, bson.M{"order_code": code})
}

// Insert re-checks overlaps inside the transaction; concurrent inserts for
// the same room already collide on the room's lock_version.
func (r bookingRepo) Insert(ctx context.Context, b *domainbooking.Booking) error {
	if err := r.u.writable(); err != nil {
		return err
	}
	if b.HoldsDates() {
		clash, err := r.ActiveOverlapping(ctx, b.RoomID, b.Range)
		if err != nil {
			return err
		}
		if len(clash) > 0 {
			return domainbooking.ErrBookingConflict
		}
	}
	doc := newBookingDocument(b)
	doc.Version = 1
	if _, err := r.u.col(colBookings).InsertOne(ctx, doc); err != nil {
		return mapError(fmt.Errorf("insert booking: %w", err), domainbooking.ErrBookingConflict)
	}
	b.Version = 1
	return nil
}

func (r bookingRepo) Save(ctx context.Context, b *domainbooking.Booking) error {
	if err := r.u.writable(); err != nil {
		return err
	}
	doc := newBookingDocument(b)
	doc.Version = b.Version + 1
	res, err := r.u.col(colBookings).ReplaceOne(ctx, bson.M{"_id": doc.ID, "version": b.Version}, doc)
	if err != nil {
		return mapError(fmt.Errorf("save booking: %w", err), domainbooking.ErrBookingConflict)
	}
	if res.MatchedCount == 0 {
		if _, err := r.ByID(ctx, b.ID); err != nil {
			return err
		}
		return domainbooking.ErrBookingConflict
	}
	b.Version = doc.Version
	return nil
}

func (r bookingRepo) ActiveOverlapping(ctx context.Context, roomID property.RoomID, dr daterange.DateRange) ([]*domainbooking.Booking, error) {
	filter := bson.M{
		"room_id":   string(roomID),
		"status":    bson.M{"$in": statusStrings(domainbooking.ActiveStatuses())},
		"check_in":  bson.M{"$lt": dr.CheckOut.String()},
		"check_out": bson.M{"$gt": dr.CheckIn.String()},
	}
	return r.many(ctx, filter, options.Find().SetSort(bson.D{{Key: "check_in", Value: 1}}))
}

func (r bookingRepo) ListByGuest(ctx context.Context, guestID user.ID) ([]*domainbooking.Booking, error) {
	return r.many(ctx, bson.M{"guest_id": string(guestID)}, newestFirst())
}

func (r bookingRepo) ListByTenant(ctx context.Context, tenantID property.TenantID, statuses []domainbooking.Status) ([]*domainbooking.Booking, error) {
	filter := bson.M{"tenant_id": string(tenantID)}
	if len(statuses) > 0 {
		filter["status"] = bson.M{"$in": statusStrings(statuses)}
	}
	return r.many(ctx, filter, newestFirst())
}

func (r bookingRepo) ListExpired(ctx context.Context, now time.Time, limit int) ([]*domainbooking.Booking, error) {
	filter := bson.M{
		"status":     string(domainbooking.StatusWaitingPayment),
		"expires_at": bson.M{"$ne": nil, "$lte": now.UTC()},
	}
	opts := options.Find().SetSort(bson.D{{Key: "expires_at", Value: 1}})
	if limit > 0 {
		opts.SetLimit(int64(limit))
	}
	return r.many(ctx, filter, opts)
}

func (r bookingRepo) ListCompletable(ctx context.Context, today civil.Date, limit int) ([]*domainbooking.Booking, error) {
	filter := bson.M{
		"status":    string(domainbooking.StatusProcessing),
		"check_out": bson.M{"$lte": today.String()},
	}
	opts := options.Find().SetSort(bson.D{{Key: "check_out", Value: 1}})
	if limit > 0 {
		opts.SetLimit(int64(limit))
	}
	return r.many(ctx, filter, opts)
}

func (r bookingRepo) one(ctx context.Context, filter bson.M) (*domainbooking.Booking, error) {
	var doc bookingDocument
	if err := r.u.col(colBookings).FindOne(ctx, filter).Decode(&doc); err != nil {
		if errors.Is(err, mongo.ErrNoDocuments) {
			return nil, domainbooking.ErrBookingNotFound
		}
		return nil, fmt.Errorf("get booking: %w", err)
	}
	return doc.toAggregate()
}

func (r bookingRepo) many(ctx context.Context, filter bson.M, opts *options.FindOptions) ([]*domainbooking.Booking, error) {
	cur, err := r.u.col(colBookings).Find(ctx, filter, opts)
	if err != nil {
		return nil, fmt.Errorf("list bookings: %w", err)
	}
	var docs []bookingDocument
	if err := cur.All(ctx, &docs); err != nil {
		return nil, fmt.Errorf("decode bookings: %w", err)
	}
	out := make([]*domainbooking.Booking, 0, len(docs))
	for _, doc := range docs {
		b, err := doc.toAggregate()
		if err != nil {
			return nil, err
		}
		out = append(out, b)
	}
	return out, nil
}

func newestFirst() *options.FindOptions {
	return options.Find().SetSort(bson.D{{Key: "created_at", Value: -1}, {Key: "_id", Value: 1}})
}

func statusStrings(statuses []domainbooking.Status) []string {
	out := make([]string, 0, len(statuses))
	for _, s := range statuses {
		out = append(out, string(s))
	}
	return out
}

type bookingDocument struct {
	ID            string          `bson:"_id"`
	OrderCode     string          `bson:"order_code"`
	GuestID       string          `bson:"guest_id"`
	TenantID      string          `bson:"tenant_id"`
	PropertyID    string          `bson:"property_id"`
	RoomID        string          `bson:"room_id"`
	CheckIn       string          `bson:"check_in"`
	CheckOut      string          `bson:"check_out"`
	Guests        int             `bson:"guests"`
	Quantity      int             `bson:"quantity"`
	Nightly       []nightDocument `bson:"nightly"`
	PricePerNight int64           `bson:"price_per_night"`
	Total         int64           `bson:"total"`
	Currency      string          `bson:"currency"`
	Payment       paymentDocument `bson:"payment"`
	Status        string          `bson:"status"`
	ExpiresAt     *time.Time      `bson:"expires_at"`
	CancelReason  string          `bson:"cancel_reason,omitempty"`
	CreatedAt     time.Time       `bson:"created_at"`
	UpdatedAt     time.Time       `bson:"updated_at"`
	Version       int64           `bson:"version"`
}

type nightDocument struct {
	Date         string `bson:"date"`
	Price        int64  `bson:"price"`
	AdjustmentID string `bson:"adjustment_id,omitempty"`
}

type paymentDocument struct {
	Method         string     `bson:"method"`
	ProofURL       string     `bson:"proof_url,omitempty"`
	ProofUploaded  *time.Time `bson:"proof_uploaded_at,omitempty"`
	RejectedReason string     `bson:"rejected_reason,omitempty"`
	OrderRef       string     `bson:"order_ref,omitempty"`
	Token          string     `bson:"token,omitempty"`
	RedirectURL    string     `bson:"redirect_url,omitempty"`
	TransactionID  string     `bson:"transaction_id,omitempty"`
	PaidAt         *time.Time `bson:"paid_at,omitempty"`
}

func newBookingDocument(b *domainbooking.Booking) bookingDocument {
	p := domainbooking.RecordOf(b.Payment)
	nights := make([]nightDocument, 0, len(b.Nightly))
	for _, n := range b.Nightly {
		nights = append(nights, nightDocument{Date: n.Date.String(), Price: n.Price.Amount, AdjustmentID: string(n.AdjustmentID)})
	}
	return bookingDocument{
		ID:            string(b.ID),
		OrderCode:     b.OrderCode,
		GuestID:       string(b.GuestID),
		TenantID:      string(b.TenantID),
		PropertyID:    string(b.PropertyID),
		RoomID:        string(b.RoomID),
		CheckIn:       b.Range.CheckIn.String(),
		CheckOut:      b.Range.CheckOut.String(),
		Guests:        b.Guests,
		Quantity:      b.Quantity,
		Nightly:       nights,
		PricePerNight: b.PricePerNight.Amount,
		Total:         b.Total.Amount,
		Currency:      b.Total.Currency,
		Payment: paymentDocument{
			Method:         string(p.Method),
			ProofURL:       p.ProofURL,
			ProofUploaded:  optionalTime(p.ProofUploaded),
			RejectedReason: p.RejectedReason,
			OrderRef:       p.OrderRef,
			Token:          p.Token,
			RedirectURL:    p.RedirectURL,
			TransactionID:  p.TransactionID,
			PaidAt:         optionalTime(p.PaidAt),
		},
		Status:       string(b.Status),
		ExpiresAt:    optionalTime(b.ExpiresAt),
		CancelReason: b.CancelReason,
		CreatedAt:    b.CreatedAt.UTC(),
		UpdatedAt:    b.UpdatedAt.UTC(),
		Version:      b.Version,
	}
}

func (d bookingDocument) toAggregate() (*domainbooking.Booking, error) {
	checkIn, err := civil.ParseDate(d.CheckIn)
	if err != nil {
		return nil, fmt.Errorf("booking %s check-in: %w", d.ID, err)
	}
	checkOut, err := civil.ParseDate(d.CheckOut)
	if err != nil {
		return nil, fmt.Errorf("booking %s check-out: %w", d.ID, err)
	}
	nights := make([]domainpricing.Night, 0, len(d.Nightly))
	for _, n := range d.Nightly {
		day, err := civil.ParseDate(n.Date)
		if err != nil {
			return nil, fmt.Errorf("booking %s night: %w", d.ID, err)
		}
		nights = append(nights, domainpricing.Night{
			Date:         day,
			Price:        money.Money{Amount: n.Price, Currency: d.Currency},
			AdjustmentID: domainpricing.AdjustmentID(n.AdjustmentID),
		})
	}
	payment := domainbooking.PaymentRecord{
		Method:         domainbooking.PaymentMethod(d.Payment.Method),
		ProofURL:       d.Payment.ProofURL,
		ProofUploaded:  fromOptionalTime(d.Payment.ProofUploaded),
		RejectedReason: d.Payment.RejectedReason,
		OrderRef:       d.Payment.OrderRef,
		Token:          d.Payment.Token,
		RedirectURL:    d.Payment.RedirectURL,
		TransactionID:  d.Payment.TransactionID,
		PaidAt:         fromOptionalTime(d.Payment.PaidAt),
	}
	return &domainbooking.Booking{
		ID:            domainbooking.BookingID(d.ID),
		OrderCode:     d.OrderCode,
		GuestID:       user.ID(d.GuestID),
		TenantID:      property.TenantID(d.TenantID),
		PropertyID:    property.ID(d.PropertyID),
		RoomID:        property.RoomID(d.RoomID),
		Range:         daterange.DateRange{CheckIn: checkIn, CheckOut: checkOut},
		Guests:        d.Guests,
		Quantity:      d.Quantity,
		Nightly:       nights,
		PricePerNight: money.Money{Amount: d.PricePerNight, Currency: d.Currency},
		Total:         money.Money{Amount: d.Total, Currency: d.Currency},
		Payment:       payment.Payment(),
		Status:        domainbooking.Status(d.Status),
		ExpiresAt:     fromOptionalTime(d.ExpiresAt),
		CancelReason:  d.CancelReason,
		CreatedAt:     d.CreatedAt.UTC(),
		UpdatedAt:     d.UpdatedAt.UTC(),
		Version:       d.Version,
	}, nil
}

func optionalTime(t time.Time) *time.Time {
	if t.IsZero() {
		return nil
	}
	utc := t.UTC()
	return &utc
}

func fromOptionalTime(t *time.Time) time.Time {
	if t == nil {
		return time.Time{}
	}
	return t.UTC()
}
