package postgres_test

import (
	"context"
	"errors"
	"os"
	"testing"
	"time"

	"cloud.google.com/go/civil"
	"github.com/jackc/pgx/v5/pgconn"
	"github.com/jackc/pgx/v5/pgxpool"
	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"staysane/internal/app/middleware"
	appoutbox "staysane/internal/app/outbox"
	"staysane/internal/app/uow"
	"staysane/internal/domain/availability"
	domainbooking "staysane/internal/domain/booking"
	"staysane/internal/domain/pricing"
	"staysane/internal/domain/shared/daterange"
	"staysane/internal/domain/shared/errs"
	"staysane/internal/domain/shared/money"
	"staysane/internal/infra/db/postgres"
	"staysane/internal/infra/db/postgres/migrations"
	"staysane/internal/infra/storage/memory"
)

func TestMigrationsAreOrdered(t *testing.T) {
	names, err := migrations.Names()
	require.NoError(t, err)
	assert.Equal(t, []string{"0001_init.sql", "0002_outbox.sql"}, names)
}

func newTestStore(t *testing.T) (*postgres.Store, *pgxpool.Pool) {
	t.Helper()
	dsn := os.Getenv("TEST_DATABASE_URL")
	if dsn == "" {
		t.Skip("TEST_DATABASE_URL not set")
	}
	ctx, cancel := context.WithTimeout(context.Background(), 30*time.Second)
	defer cancel()
	pool, err := postgres.NewPool(ctx, dsn, 4)
	if err != nil {
		t.Skipf("skipping Postgres integration tests: %v", err)
	}
	t.Cleanup(pool.Close)
	_, err = pool.Exec(ctx, `TRUNCATE outbox_events, idempotency_keys, inbox_events, bookings, price_adjustments,
		room_unavailable_dates, rooms, properties, users`)
	require.NoError(t, err)

	store := postgres.NewStore(pool)
	require.NoError(t, memory.Seed(ctx, store, "IDR", time.Date(2025, 5, 1, 8, 0, 0, 0, time.UTC)))
	return store, pool
}

func day(m, d int) civil.Date {
	return civil.Date{Year: 2025, Month: time.Month(m), Day: d}
}

func newBooking(t *testing.T, id string, in, out civil.Date, method domainbooking.PaymentMethod) *domainbooking.Booking {
	t.Helper()
	stay := daterange.DateRange{CheckIn: in, CheckOut: out}
	quote, err := pricing.ComputeTotal(money.Must(memory.DemoNightlyRate, "IDR"), stay, nil, 1)
	require.NoError(t, err)
	now := time.Date(2025, 5, 1, 8, 0, 0, 0, time.UTC)
	b, err := domainbooking.NewBooking(domainbooking.CreateParams{
		ID:         domainbooking.BookingID(id),
		OrderCode:  "INV-" + id,
		GuestID:    memory.DemoGuestID,
		TenantID:   memory.DemoTenantID,
		PropertyID: memory.DemoPropertyID,
		RoomID:     memory.DemoRoomID,
		Range:      stay,
		Guests:     2,
		Quote:      quote,
		Method:     method,
		ExpiresAt:  now.Add(time.Hour),
		CreatedAt:  now,
	})
	require.NoError(t, err)
	return b
}

func insert(ctx context.Context, store *postgres.Store, b *domainbooking.Booking) error {
	unit, execCtx, err := uow.Begin(ctx, store, uow.TxOptions{})
	if err != nil {
		return err
	}
	defer func() { _ = unit.Rollback(ctx) }()
	if err := unit.Bookings().Insert(execCtx, b); err != nil {
		return err
	}
	if err := appoutbox.RecordDomainEvents(execCtx, store, appoutbox.JSONEventEncoder{}, b.DrainEvents()); err != nil {
		return err
	}
	return unit.Commit(execCtx)
}

func TestExclusionConstraintRefusesOverlap(t *testing.T) {
	store, _ := newTestStore(t)
	ctx := context.Background()

	first := newBooking(t, "bk-1", day(6, 1), day(6, 5), domainbooking.MethodManualTransfer)
	require.NoError(t, insert(ctx, store, first))

	err := insert(ctx, store, newBooking(t, "bk-2", day(6, 4), day(6, 7), domainbooking.MethodManualTransfer))
	assert.ErrorIs(t, err, domainbooking.ErrBookingConflict)
	assert.ErrorIs(t, err, errs.ErrConcurrentConflict)

	// Check-out day is free for the next guest.
	require.NoError(t, insert(ctx, store, newBooking(t, "bk-3", day(6, 5), day(6, 7), domainbooking.MethodPaymentGateway)))

	unit, execCtx, err := uow.Begin(ctx, store, uow.TxOptions{ReadOnly: true})
	require.NoError(t, err)
	defer func() { _ = unit.Rollback(ctx) }()
	found, err := unit.Bookings().ActiveOverlapping(execCtx, memory.DemoRoomID, daterange.DateRange{CheckIn: day(6, 1), CheckOut: day(6, 30)})
	require.NoError(t, err)
	require.Len(t, found, 2)
	assert.Equal(t, domainbooking.BookingID("bk-1"), found[0].ID)
	assert.Equal(t, domainbooking.MethodPaymentGateway, found[1].Method())
	assert.Len(t, found[0].Nightly, 4)
}

func TestSaveDetectsStaleVersion(t *testing.T) {
	store, _ := newTestStore(t)
	ctx := context.Background()
	b := newBooking(t, "bk-1", day(6, 1), day(6, 3), domainbooking.MethodManualTransfer)
	require.NoError(t, insert(ctx, store, b))

	load := func() *domainbooking.Booking {
		unit, execCtx, err := uow.Begin(ctx, store, uow.TxOptions{ReadOnly: true})
		require.NoError(t, err)
		defer func() { _ = unit.Rollback(ctx) }()
		got, err := unit.Bookings().ByID(execCtx, b.ID)
		require.NoError(t, err)
		return got
	}
	save := func(target *domainbooking.Booking) error {
		unit, execCtx, err := uow.Begin(ctx, store, uow.TxOptions{})
		require.NoError(t, err)
		defer func() { _ = unit.Rollback(ctx) }()
		if err := unit.Bookings().Save(execCtx, target); err != nil {
			return err
		}
		return unit.Commit(execCtx)
	}

	a, c := load(), load()
	now := time.Date(2025, 5, 1, 8, 30, 0, 0, time.UTC)
	require.NoError(t, a.SubmitPaymentProof("https://proofs.example/a.png", now))
	require.NoError(t, save(a))
	_, err := c.Cancel("changed my mind", now)
	require.NoError(t, err)
	assert.ErrorIs(t, save(c), domainbooking.ErrBookingConflict)

	stored := load()
	assert.Equal(t, domainbooking.StatusWaitingConfirmation, stored.Status)
	assert.Equal(t, int64(2), stored.Version)
}

func TestBlackoutsAndAdjustmentsRoundTrip(t *testing.T) {
	store, _ := newTestStore(t)
	ctx := context.Background()
	now := time.Date(2025, 5, 1, 8, 0, 0, 0, time.UTC)

	unit, execCtx, err := uow.Begin(ctx, store, uow.TxOptions{})
	require.NoError(t, err)
	require.NoError(t, unit.Blackouts().Upsert(execCtx, []availability.UnavailableDate{
		{RoomID: memory.DemoRoomID, Date: day(7, 10), UpdatedAt: now},
		{RoomID: memory.DemoRoomID, Date: day(7, 11), UpdatedAt: now},
	}))
	require.NoError(t, unit.Blackouts().Delete(execCtx, memory.DemoRoomID, []civil.Date{day(7, 11)}))
	require.NoError(t, unit.Adjustments().Save(execCtx, &pricing.Adjustment{
		ID: "adj-1", RoomID: memory.DemoRoomID, Title: "high season",
		Start: day(7, 1), End: day(7, 31), Kind: pricing.KindPercentage, Value: decimal.RequireFromString("12.5"),
		Dates: []civil.Date{day(7, 4)}, Priority: 1, CreatedAt: now, UpdatedAt: now,
	}))
	require.NoError(t, unit.Commit(execCtx))

	unit, execCtx, err = uow.Begin(ctx, store, uow.TxOptions{ReadOnly: true})
	require.NoError(t, err)
	defer func() { _ = unit.Rollback(ctx) }()
	rows, err := unit.Blackouts().InRange(execCtx, memory.DemoRoomID, daterange.DateRange{CheckIn: day(7, 1), CheckOut: day(8, 1)})
	require.NoError(t, err)
	require.Len(t, rows, 1)
	assert.Equal(t, day(7, 10), rows[0].Date)

	adjustments, err := unit.Adjustments().ListByRoom(execCtx, memory.DemoRoomID)
	require.NoError(t, err)
	require.Len(t, adjustments, 1)
	assert.True(t, adjustments[0].Value.Equal(decimal.RequireFromString("12.5")))
	assert.Equal(t, []civil.Date{day(7, 4)}, adjustments[0].Dates)

	_, err = unit.Rooms().ByIDForUpdate(execCtx, memory.DemoRoomID)
	assert.ErrorIs(t, err, postgres.ErrReadOnly)
}

func TestOutboxClaimAndAcknowledge(t *testing.T) {
	store, _ := newTestStore(t)
	ctx := context.Background()
	require.NoError(t, insert(ctx, store, newBooking(t, "bk-1", day(6, 1), day(6, 3), domainbooking.MethodManualTransfer)))

	rec, err := store.Claim(ctx, "worker-a")
	require.NoError(t, err)
	require.NotNil(t, rec)
	assert.Equal(t, "booking.created", rec.Name)
	assert.Equal(t, "bk-1", rec.Aggregate)

	next, err := store.Claim(ctx, "worker-b")
	require.NoError(t, err)
	assert.Nil(t, next)

	require.NoError(t, store.MarkFailed(ctx, rec.ID, time.Now().Add(-time.Second), "broker down"))
	retry, err := store.Claim(ctx, "worker-b")
	require.NoError(t, err)
	require.NotNil(t, retry)
	assert.Equal(t, 1, retry.Attempts)

	require.NoError(t, store.MarkSent(ctx, retry.ID))
	pending, err := store.PendingCount(ctx)
	require.NoError(t, err)
	assert.Zero(t, pending)
}

func TestIdempotencyAndInbox(t *testing.T) {
	_, pool := newTestStore(t)
	ctx := context.Background()

	keys := postgres.NewIdempotencyStore(pool)
	first := middleware.IdempotencyRecord{Key: "guest-1:abc", Payload: []byte(`{"id":"bk-1"}`), OccurredAt: time.Now()}
	require.NoError(t, keys.Save(ctx, first))
	require.NoError(t, keys.Save(ctx, middleware.IdempotencyRecord{Key: "guest-1:abc", Payload: []byte(`{"id":"bk-2"}`), OccurredAt: time.Now()}))
	got, ok, err := keys.Get(ctx, "guest-1:abc")
	require.NoError(t, err)
	require.True(t, ok)
	assert.JSONEq(t, `{"id":"bk-1"}`, string(got.Payload))

	box := postgres.NewInboxStore(pool, "payments")
	seen, err := box.Seen(ctx, "gateway:tx-1:settlement")
	require.NoError(t, err)
	assert.False(t, seen)
	seen, err = box.Seen(ctx, "gateway:tx-1:settlement")
	require.NoError(t, err)
	assert.True(t, seen)
	require.NoError(t, box.Forget(ctx, "gateway:tx-1:settlement"))
	seen, err = box.Seen(ctx, "gateway:tx-1:settlement")
	require.NoError(t, err)
	assert.False(t, seen)
}

func TestSerializationFailureIsConflict(t *testing.T) {
	err := postgres.MapError(&pgconn.PgError{Code: "40001", Message: "could not serialize access"})
	assert.ErrorIs(t, err, errs.ErrConcurrentConflict)

	err = postgres.MapError(&pgconn.PgError{Code: "23P01", Message: "conflicting key value violates exclusion constraint"})
	assert.ErrorIs(t, err, errs.ErrConcurrentConflict)

	plain := errors.New("connection reset")
	assert.Equal(t, plain, postgres.MapError(plain))
}
