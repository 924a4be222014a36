package postgres

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"cloud.google.com/go/civil"
	"github.com/jackc/pgx/v5"

	domainbooking "staysane/internal/domain/booking"
	domainpricing "staysane/internal/domain/pricing"
	"staysane/internal/domain/property"
	"staysane/internal/domain/shared/daterange"
	"staysane/internal/domain/shared/money"
	"staysane/internal/domain/user"
)

const bookingColumns = `
	id, order_code, guest_id, tenant_id, property_id, room_id, check_in, check_out, guests, quantity,
	nightly, price_per_night, total, currency, payment_method, proof_url, proof_uploaded_at, rejected_reason,
	gateway_order_ref, gateway_token, gateway_redirect_url, gateway_transaction_id, paid_at,
	status, expires_at, cancel_reason, created_at, updated_at, version`

type bookingRepo struct{ u *unit }

func (r bookingRepo) ByID(ctx context.Context, id domainbooking.BookingID) (*domainbooking.Booking, error) {
	return r.one(ctx, `SELECT `+bookingColumns+` FROM bookings WHERE id = $1`, id)
}

func (r bookingRepo) ByOrderCode(ctx context.Context, code string) (*domainbooking.Booking, error) {
	return r.one(ctx, `SELECT `+bookingColumns+` FROM bookings WHERE order_code = $1`, code)
}

// Insert relies on bookings_no_overlap for the final say on overlaps.
func (r bookingRepo) Insert(ctx context.Context, b *domainbooking.Booking) error {
	if err := r.u.writable(); err != nil {
		return err
	}
	args, err := bookingArgs(b, 1)
	if err != nil {
		return err
	}
	const stmt = `
INSERT INTO bookings (` + bookingColumns + `)
VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10, $11, $12, $13, $14, $15, $16, $17, $18, $19, $20, $21, $22, $23, $24, $25, $26, $27, $28, $29)`
	if _, err := r.u.tx.Exec(ctx, stmt, args...); err != nil {
		return mapError(fmt.Errorf("insert booking: %w", err), domainbooking.ErrBookingConflict)
	}
	b.Version = 1
	return nil
}

func (r bookingRepo) Save(ctx context.Context, b *domainbooking.Booking) error {
	if err := r.u.writable(); err != nil {
		return err
	}
	args, err := bookingArgs(b, b.Version+1)
	if err != nil {
		return err
	}
	args = append(args, b.Version)
	const stmt = `
UPDATE bookings SET
	order_code = $2, guest_id = $3, tenant_id = $4, property_id = $5, room_id = $6, check_in = $7, check_out = $8,
	guests = $9, quantity = $10, nightly = $11, price_per_night = $12, total = $13, currency = $14,
	payment_method = $15, proof_url = $16, proof_uploaded_at = $17, rejected_reason = $18,
	gateway_order_ref = $19, gateway_token = $20, gateway_redirect_url = $21, gateway_transaction_id = $22, paid_at = $23,
	status = $24, expires_at = $25, cancel_reason = $26, created_at = $27, updated_at = $28, version = $29
WHERE id = $1 AND version = $30`
	tag, err := r.u.tx.Exec(ctx, stmt, args...)
	if err != nil {
		return mapError(fmt.Errorf("save booking: %w", err), domainbooking.ErrBookingConflict)
	}
	if tag.RowsAffected() == 0 {
		if _, err := r.ByID(ctx, b.ID); err != nil {
			return err
		}
		return domainbooking.ErrBookingConflict
	}
	b.Version++
	return nil
}

func (r bookingRepo) ActiveOverlapping(ctx context.Context, roomID property.RoomID, dr daterange.DateRange) ([]*domainbooking.Booking, error) {
	const query = `SELECT ` + bookingColumns + ` FROM bookings
WHERE room_id = $1 AND status = ANY($2) AND check_in < $4 AND check_out > $3
ORDER BY check_in`
	return r.many(ctx, query, roomID, activeStatuses(), dateValue(dr.CheckIn), dateValue(dr.CheckOut))
}

func (r bookingRepo) ListByGuest(ctx context.Context, guestID user.ID) ([]*domainbooking.Booking, error) {
	const query = `SELECT ` + bookingColumns + ` FROM bookings WHERE guest_id = $1 ORDER BY created_at DESC, id`
	return r.many(ctx, query, guestID)
}

func (r bookingRepo) ListByTenant(ctx context.Context, tenantID property.TenantID, statuses []domainbooking.Status) ([]*domainbooking.Booking, error) {
	filter := make([]string, 0, len(statuses))
	for _, s := range statuses {
		filter = append(filter, string(s))
	}
	const query = `SELECT ` + bookingColumns + ` FROM bookings
WHERE tenant_id = $1 AND (cardinality($2::text[]) = 0 OR status = ANY($2))
ORDER BY created_at DESC, id`
	return r.many(ctx, query, tenantID, filter)
}

func (r bookingRepo) ListExpired(ctx context.Context, now time.Time, limit int) ([]*domainbooking.Booking, error) {
	const query = `SELECT ` + bookingColumns + ` FROM bookings
WHERE status = $1 AND expires_at IS NOT NULL AND expires_at <= $2
ORDER BY expires_at
LIMIT NULLIF($3::int, 0)`
	return r.many(ctx, query, domainbooking.StatusWaitingPayment, now.UTC(), max(limit, 0))
}

func (r bookingRepo) ListCompletable(ctx context.Context, today civil.Date, limit int) ([]*domainbooking.Booking, error) {
	const query = `SELECT ` + bookingColumns + ` FROM bookings
WHERE status = $1 AND check_out <= $2
ORDER BY check_out
LIMIT NULLIF($3::int, 0)`
	return r.many(ctx, query, domainbooking.StatusProcessing, dateValue(today), max(limit, 0))
}

func (r bookingRepo) one(ctx context.Context, query string, args ...any) (*domainbooking.Booking, error) {
	b, err := scanBooking(r.u.tx.QueryRow(ctx, query, args...))
	if errors.Is(err, pgx.ErrNoRows) {
		return nil, domainbooking.ErrBookingNotFound
	}
	return b, err
}

func (r bookingRepo) many(ctx context.Context, query string, args ...any) ([]*domainbooking.Booking, error) {
	rows, err := r.u.tx.Query(ctx, query, args...)
	if err != nil {
		return nil, fmt.Errorf("list bookings: %w", err)
	}
	defer rows.Close()
	var out []*domainbooking.Booking
	for rows.Next() {
		b, err := scanBooking(rows)
		if err != nil {
			return nil, err
		}
		out = append(out, b)
	}
	return out, rows.Err()
}

func activeStatuses() []string {
	statuses := domainbooking.ActiveStatuses()
	out := make([]string, 0, len(statuses))
	for _, s := range statuses {
		out = append(out, string(s))
	}
	return out
}

// bookingArgs lists b in bookingColumns order, with version as given.
func bookingArgs(b *domainbooking.Booking, version int64) ([]any, error) {
	nightly, err := json.Marshal(b.Nightly)
	if err != nil {
		return nil, fmt.Errorf("encode nightly prices: %w", err)
	}
	p := domainbooking.RecordOf(b.Payment)
	return []any{
		b.ID, b.OrderCode, b.GuestID, b.TenantID, b.PropertyID, b.RoomID,
		dateValue(b.Range.CheckIn), dateValue(b.Range.CheckOut), b.Guests, b.Quantity,
		nightly, b.PricePerNight.Amount, b.Total.Amount, b.Total.Currency,
		p.Method, p.ProofURL, nullTime(p.ProofUploaded), p.RejectedReason,
		p.OrderRef, p.Token, p.RedirectURL, p.TransactionID, nullTime(p.PaidAt),
		b.Status, nullTime(b.ExpiresAt), b.CancelReason, b.CreatedAt.UTC(), b.UpdatedAt.UTC(), version,
	}, nil
}

func scanBooking(row pgx.Row) (*domainbooking.Booking, error) {
	var (
		b                           domainbooking.Booking
		checkIn, checkOut           time.Time
		nightly                     []byte
		perNight, total             int64
		currency                    string
		p                           domainbooking.PaymentRecord
		proofUploaded, paid, expire *time.Time
	)
	err := row.Scan(
		&b.ID, &b.OrderCode, &b.GuestID, &b.TenantID, &b.PropertyID, &b.RoomID, &checkIn, &checkOut, &b.Guests, &b.Quantity,
		&nightly, &perNight, &total, &currency, &p.Method, &p.ProofURL, &proofUploaded, &p.RejectedReason,
		&p.OrderRef, &p.Token, &p.RedirectURL, &p.TransactionID, &paid,
		&b.Status, &expire, &b.CancelReason, &b.CreatedAt, &b.UpdatedAt, &b.Version,
	)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, err
		}
		return nil, fmt.Errorf("scan booking: %w", err)
	}
	var nights []domainpricing.Night
	if len(nightly) > 0 {
		if err := json.Unmarshal(nightly, &nights); err != nil {
			return nil, fmt.Errorf("decode nightly prices of %s: %w", b.ID, err)
		}
	}
	p.ProofUploaded = fromNullTime(proofUploaded)
	p.PaidAt = fromNullTime(paid)
	b.Range = daterange.DateRange{CheckIn: civil.DateOf(checkIn), CheckOut: civil.DateOf(checkOut)}
	b.Nightly = nights
	b.PricePerNight = money.Money{Amount: perNight, Currency: currency}
	b.Total = money.Money{Amount: total, Currency: currency}
	b.Payment = p.Payment()
	b.ExpiresAt = fromNullTime(expire)
	b.CreatedAt = b.CreatedAt.UTC()
	b.UpdatedAt = b.UpdatedAt.UTC()
	return &b, nil
}
