package postgres

import (
	"context"
	"errors"
	"fmt"
	"time"

	"cloud.google.com/go/civil"
	"github.com/jackc/pgx/v5"
	"github.com/shopspring/decimal"

	domainavailability "staysane/internal/domain/availability"
	domainpricing "staysane/internal/domain/pricing"
	"staysane/internal/domain/property"
	"staysane/internal/domain/shared/daterange"
	"staysane/internal/domain/shared/money"
	"staysane/internal/domain/user"
)

type userRepo struct{ u *unit }

func (r userRepo) ByID(ctx context.Context, id user.ID) (*user.User, error) {
	const query = `SELECT id, name, email, role, created_at FROM users WHERE id = $1`
	var out user.User
	err := r.u.tx.QueryRow(ctx, query, id).Scan(&out.ID, &out.Name, &out.Email, &out.Role, &out.CreatedAt)
	if errors.Is(err, pgx.ErrNoRows) {
		return nil, user.ErrNotFound
	}
	if err != nil {
		return nil, fmt.Errorf("get user: %w", err)
	}
	return &out, nil
}

func (r userRepo) Save(ctx context.Context, item *user.User) error {
	if err := r.u.writable(); err != nil {
		return err
	}
	const stmt = `
INSERT INTO users (id, name, email, role, created_at)
VALUES ($1, $2, $3, $4, $5)
ON CONFLICT (id) DO UPDATE SET name = EXCLUDED.name, email = EXCLUDED.email, role = EXCLUDED.role`
	if _, err := r.u.tx.Exec(ctx, stmt, item.ID, item.Name, item.Email, item.Role, item.CreatedAt.UTC()); err != nil {
		return mapError(fmt.Errorf("save user: %w", err), nil)
	}
	return nil
}

type propertyRepo struct{ u *unit }

func (r propertyRepo) ByID(ctx context.Context, id property.ID) (*property.Property, error) {
	const query = `SELECT id, tenant_id, name, city, max_guests, created_at, updated_at FROM properties WHERE id = $1`
	var p property.Property
	err := r.u.tx.QueryRow(ctx, query, id).Scan(&p.ID, &p.TenantID, &p.Name, &p.City, &p.MaxGuests, &p.CreatedAt, &p.UpdatedAt)
	if errors.Is(err, pgx.ErrNoRows) {
		return nil, property.ErrPropertyNotFound
	}
	if err != nil {
		return nil, fmt.Errorf("get property: %w", err)
	}
	return &p, nil
}

func (r propertyRepo) Save(ctx context.Context, p *property.Property) error {
	if err := r.u.writable(); err != nil {
		return err
	}
	const stmt = `
INSERT INTO properties (id, tenant_id, name, city, max_guests, created_at, updated_at)
VALUES ($1, $2, $3, $4, $5, $6, $7)
ON CONFLICT (id) DO UPDATE SET
	tenant_id = EXCLUDED.tenant_id, name = EXCLUDED.name, city = EXCLUDED.city,
	max_guests = EXCLUDED.max_guests, updated_at = EXCLUDED.updated_at`
	_, err := r.u.tx.Exec(ctx, stmt, p.ID, p.TenantID, p.Name, p.City, p.MaxGuests, p.CreatedAt.UTC(), p.UpdatedAt.UTC())
	if err != nil {
		return mapError(fmt.Errorf("save property: %w", err), nil)
	}
	return nil
}

type roomRepo struct{ u *unit }

const roomColumns = `id, property_id, name, base_price, currency, capacity, created_at, updated_at`

func (r roomRepo) ByID(ctx context.Context, id property.RoomID) (*property.Room, error) {
	return r.get(ctx, `SELECT `+roomColumns+` FROM rooms WHERE id = $1`, id)
}

// ByIDForUpdate holds the room row lock until the unit ends.
func (r roomRepo) ByIDForUpdate(ctx context.Context, id property.RoomID) (*property.Room, error) {
	if err := r.u.writable(); err != nil {
		return nil, err
	}
	return r.get(ctx, `SELECT `+roomColumns+` FROM rooms WHERE id = $1 FOR UPDATE`, id)
}

func (r roomRepo) get(ctx context.Context, query string, id property.RoomID) (*property.Room, error) {
	var room property.Room
	var price int64
	var currency string
	err := r.u.tx.QueryRow(ctx, query, id).Scan(
		&room.ID, &room.PropertyID, &room.Name, &price, &currency, &room.Capacity, &room.CreatedAt, &room.UpdatedAt,
	)
	if errors.Is(err, pgx.ErrNoRows) {
		return nil, property.ErrRoomNotFound
	}
	if err != nil {
		return nil, mapError(fmt.Errorf("get room: %w", err), nil)
	}
	room.BasePrice = money.Money{Amount: price, Currency: currency}
	return &room, nil
}

func (r roomRepo) Save(ctx context.Context, room *property.Room) error {
	if err := r.u.writable(); err != nil {
		return err
	}
	const stmt = `
INSERT INTO rooms (id, property_id, name, base_price, currency, capacity, created_at, updated_at)
VALUES ($1, $2, $3, $4, $5, $6, $7, $8)
ON CONFLICT (id) DO UPDATE SET
	property_id = EXCLUDED.property_id, name = EXCLUDED.name, base_price = EXCLUDED.base_price,
	currency = EXCLUDED.currency, capacity = EXCLUDED.capacity, updated_at = EXCLUDED.updated_at`
	_, err := r.u.tx.Exec(ctx, stmt, room.ID, room.PropertyID, room.Name, room.BasePrice.Amount, room.BasePrice.Currency,
		room.Capacity, room.CreatedAt.UTC(), room.UpdatedAt.UTC())
	if err != nil {
		return mapError(fmt.Errorf("save room: %w", err), nil)
	}
	return nil
}

type blackoutRepo struct{ u *unit }

func (r blackoutRepo) InRange(ctx context.Context, roomID property.RoomID, dr daterange.DateRange) ([]domainavailability.UnavailableDate, error) {
	const query = `
SELECT room_id, date, is_available, updated_at
FROM room_unavailable_dates
WHERE room_id = $1 AND date >= $2 AND date < $3
ORDER BY date`
	rows, err := r.u.tx.Query(ctx, query, roomID, dateValue(dr.CheckIn), dateValue(dr.CheckOut))
	if err != nil {
		return nil, fmt.Errorf("list blackouts: %w", err)
	}
	defer rows.Close()
	var out []domainavailability.UnavailableDate
	for rows.Next() {
		var row domainavailability.UnavailableDate
		var day time.Time
		if err := rows.Scan(&row.RoomID, &day, &row.IsAvailable, &row.UpdatedAt); err != nil {
			return nil, fmt.Errorf("scan blackout: %w", err)
		}
		row.Date = civil.DateOf(day)
		out = append(out, row)
	}
	return out, rows.Err()
}

func (r blackoutRepo) Upsert(ctx context.Context, rows []domainavailability.UnavailableDate) error {
	if err := r.u.writable(); err != nil {
		return err
	}
	const stmt = `
INSERT INTO room_unavailable_dates (room_id, date, is_available, updated_at)
VALUES ($1, $2, $3, $4)
ON CONFLICT (room_id, date) DO UPDATE SET is_available = EXCLUDED.is_available, updated_at = EXCLUDED.updated_at`
	batch := &pgx.Batch{}
	for _, row := range rows {
		batch.Queue(stmt, row.RoomID, dateValue(row.Date), row.IsAvailable, row.UpdatedAt.UTC())
	}
	if err := r.u.tx.SendBatch(ctx, batch).Close(); err != nil {
		return mapError(fmt.Errorf("upsert blackouts: %w", err), nil)
	}
	return nil
}

func (r blackoutRepo) Delete(ctx context.Context, roomID property.RoomID, dates []civil.Date) error {
	if err := r.u.writable(); err != nil {
		return err
	}
	if len(dates) == 0 {
		return nil
	}
	const stmt = `DELETE FROM room_unavailable_dates WHERE room_id = $1 AND date = ANY($2)`
	if _, err := r.u.tx.Exec(ctx, stmt, roomID, dateValues(dates)); err != nil {
		return mapError(fmt.Errorf("delete blackouts: %w", err), nil)
	}
	return nil
}

type adjustmentRepo struct{ u *unit }

const adjustmentColumns = `id, room_id, title, start_date, end_date, kind, value::text, apply_all_dates, dates, priority, created_at, updated_at`

func (r adjustmentRepo) ByID(ctx context.Context, id domainpricing.AdjustmentID) (*domainpricing.Adjustment, error) {
	row := r.u.tx.QueryRow(ctx, `SELECT `+adjustmentColumns+` FROM price_adjustments WHERE id = $1`, id)
	a, err := scanAdjustment(row)
	if errors.Is(err, pgx.ErrNoRows) {
		return nil, domainpricing.ErrAdjustmentNotFound
	}
	return a, err
}

func (r adjustmentRepo) ListByRoom(ctx context.Context, roomID property.RoomID) ([]*domainpricing.Adjustment, error) {
	rows, err := r.u.tx.Query(ctx, `SELECT `+adjustmentColumns+` FROM price_adjustments WHERE room_id = $1`, roomID)
	if err != nil {
		return nil, fmt.Errorf("list adjustments: %w", err)
	}
	defer rows.Close()
	var out []*domainpricing.Adjustment
	for rows.Next() {
		a, err := scanAdjustment(rows)
		if err != nil {
			return nil, err
		}
		out = append(out, a)
	}
	if err := rows.Err(); err != nil {
		return nil, err
	}
	domainpricing.SortByPrecedence(out)
	return out, nil
}

func (r adjustmentRepo) Save(ctx context.Context, a *domainpricing.Adjustment) error {
	if err := r.u.writable(); err != nil {
		return err
	}
	const stmt = `
INSERT INTO price_adjustments (id, room_id, title, start_date, end_date, kind, value, apply_all_dates, dates, priority, created_at, updated_at)
VALUES ($1, $2, $3, $4, $5, $6, $7::text::numeric, $8, $9, $10, $11, $12)
ON CONFLICT (id) DO UPDATE SET
	title = EXCLUDED.title, start_date = EXCLUDED.start_date, end_date = EXCLUDED.end_date,
	kind = EXCLUDED.kind, value = EXCLUDED.value, apply_all_dates = EXCLUDED.apply_all_dates,
	dates = EXCLUDED.dates, priority = EXCLUDED.priority, updated_at = EXCLUDED.updated_at`
	_, err := r.u.tx.Exec(ctx, stmt,
		a.ID, a.RoomID, a.Title, dateValue(a.Start), dateValue(a.End), a.Kind, a.Value.String(),
		a.ApplyAllDates, dateValues(a.Dates), a.Priority, a.CreatedAt.UTC(), a.UpdatedAt.UTC(),
	)
	if err != nil {
		return mapError(fmt.Errorf("save adjustment: %w", err), nil)
	}
	return nil
}

func (r adjustmentRepo) Delete(ctx context.Context, id domainpricing.AdjustmentID) error {
	if err := r.u.writable(); err != nil {
		return err
	}
	tag, err := r.u.tx.Exec(ctx, `DELETE FROM price_adjustments WHERE id = $1`, id)
	if err != nil {
		return mapError(fmt.Errorf("delete adjustment: %w", err), nil)
	}
	if tag.RowsAffected() == 0 {
		return domainpricing.ErrAdjustmentNotFound
	}
	return nil
}

func scanAdjustment(row pgx.Row) (*domainpricing.Adjustment, error) {
	var a domainpricing.Adjustment
	var start, end time.Time
	var value string
	var dates []time.Time
	err := row.Scan(&a.ID, &a.RoomID, &a.Title, &start, &end, &a.Kind, &value, &a.ApplyAllDates, &dates,
		&a.Priority, &a.CreatedAt, &a.UpdatedAt)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, err
		}
		return nil, fmt.Errorf("scan adjustment: %w", err)
	}
	if a.Value, err = decimal.NewFromString(value); err != nil {
		return nil, fmt.Errorf("adjustment %s value %q: %w", a.ID, value, err)
	}
	a.Start = civil.DateOf(start)
	a.End = civil.DateOf(end)
	for _, d := range dates {
		a.Dates = append(a.Dates, civil.DateOf(d))
	}
	return &a, nil
}

func dateValue(d civil.Date) time.Time {
	return d.In(time.UTC)
}

func dateValues(dates []civil.Date) []time.Time {
	out := make([]time.Time, 0, len(dates))
	for _, d := range dates {
		out = append(out, dateValue(d))
	}
	return out
}
