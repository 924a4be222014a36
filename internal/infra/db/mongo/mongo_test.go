package mongo

import (
	"context"
	"errors"
	"os"
	"testing"
	"time"

	"cloud.google.com/go/civil"
	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.mongodb.org/mongo-driver/mongo"

	"staysane/internal/app/middleware"
	"staysane/internal/app/uow"
	domainbooking "staysane/internal/domain/booking"
	domainpricing "staysane/internal/domain/pricing"
	"staysane/internal/domain/shared/daterange"
	"staysane/internal/domain/shared/errs"
	"staysane/internal/domain/shared/money"
)

func day(m, d int) civil.Date {
	return civil.Date{Year: 2025, Month: time.Month(m), Day: d}
}

func gatewayBooking(t *testing.T) *domainbooking.Booking {
	t.Helper()
	stay := daterange.DateRange{CheckIn: day(6, 1), CheckOut: day(6, 3)}
	quote, err := domainpricing.ComputeTotal(money.Must(1_000_000, "IDR"), stay, nil, 1)
	require.NoError(t, err)
	now := time.Date(2025, 5, 1, 8, 0, 0, 0, time.UTC)
	b, err := domainbooking.NewBooking(domainbooking.CreateParams{
		ID: "bk-1", OrderCode: "INV-1", GuestID: "guest-1", TenantID: "tenant-1", PropertyID: "prop-1", RoomID: "room-1",
		Range: stay, Guests: 2, Quote: quote, Method: domainbooking.MethodPaymentGateway,
		ExpiresAt: now.Add(time.Hour), CreatedAt: now,
	})
	require.NoError(t, err)
	require.NoError(t, b.AttachGatewayToken("tok-1", "https://pay.example/tok-1", now))
	b.ClearEvents()
	return b
}

func TestBookingDocumentKeepsGatewayState(t *testing.T) {
	b := gatewayBooking(t)
	b.Version = 3

	got, err := newBookingDocument(b).toAggregate()
	require.NoError(t, err)
	assert.Equal(t, "2025-06-01", newBookingDocument(b).CheckIn)
	assert.Equal(t, b.Range, got.Range)
	assert.Equal(t, b.Total, got.Total)
	assert.Equal(t, int64(3), got.Version)
	payment, ok := got.Payment.(domainbooking.GatewayPayment)
	require.True(t, ok)
	assert.Equal(t, "tok-1", payment.Token)
	assert.Equal(t, "INV-1", payment.OrderRef)
	require.Len(t, got.Nightly, 2)
	assert.Equal(t, day(6, 2), got.Nightly[1].Date)
	assert.Equal(t, b.ExpiresAt, got.ExpiresAt)
}

func TestAdjustmentDocumentKeepsDecimalValue(t *testing.T) {
	a := &domainpricing.Adjustment{
		ID: "adj-1", RoomID: "room-1", Start: day(7, 1), End: day(7, 31),
		Kind: domainpricing.KindPercentage, Value: decimal.RequireFromString("-12.5"),
		Dates: []civil.Date{day(7, 4)},
	}
	doc, err := newAdjustmentDocument(a)
	require.NoError(t, err)
	got, err := doc.toAdjustment()
	require.NoError(t, err)
	assert.True(t, got.Value.Equal(a.Value))
	assert.Equal(t, a.Dates, got.Dates)
}

func TestMapErrorReportsWriteConflicts(t *testing.T) {
	conflict := mongo.CommandError{Code: codeWriteConflict, Message: "WriteConflict"}
	assert.ErrorIs(t, mapError(conflict, nil), errs.ErrConcurrentConflict)

	transient := mongo.CommandError{Code: 251, Labels: []string{"TransientTransactionError"}}
	assert.ErrorIs(t, mapError(transient, domainbooking.ErrBookingConflict), domainbooking.ErrBookingConflict)

	plain := errors.New("network down")
	assert.Equal(t, plain, mapError(plain, nil))
	assert.NoError(t, mapError(nil, nil))
}

func newTestClient(t *testing.T) *Client {
	t.Helper()
	uri := os.Getenv("TEST_MONGO_URI")
	if uri == "" {
		t.Skip("TEST_MONGO_URI not set")
	}
	ctx, cancel := context.WithTimeout(context.Background(), 20*time.Second)
	defer cancel()
	client, err := New(ctx, uri, "staysane_test_"+time.Now().UTC().Format("150405"))
	require.NoError(t, err)
	t.Cleanup(func() {
		_ = client.DB.Drop(context.Background())
		_ = client.Close(context.Background())
	})
	return client
}

func TestBookingInsertAndStaleSave(t *testing.T) {
	client := newTestClient(t)
	ctx := context.Background()
	factory := NewFactory(client.DB)

	b := gatewayBooking(t)
	unit, execCtx, err := uow.Begin(ctx, factory, uow.TxOptions{})
	require.NoError(t, err)
	require.NoError(t, unit.Bookings().Insert(execCtx, b))
	require.NoError(t, unit.Commit(execCtx))

	overlapping := gatewayBooking(t)
	overlapping.ID, overlapping.OrderCode = "bk-2", "INV-2"
	unit, execCtx, err = uow.Begin(ctx, factory, uow.TxOptions{})
	require.NoError(t, err)
	assert.ErrorIs(t, unit.Bookings().Insert(execCtx, overlapping), domainbooking.ErrBookingConflict)
	require.NoError(t, unit.Rollback(execCtx))

	stale := *b
	stale.Version = 0
	unit, execCtx, err = uow.Begin(ctx, factory, uow.TxOptions{})
	require.NoError(t, err)
	assert.ErrorIs(t, unit.Bookings().Save(execCtx, &stale), domainbooking.ErrBookingConflict)
	require.NoError(t, unit.Rollback(execCtx))

	unit, execCtx, err = uow.Begin(ctx, factory, uow.TxOptions{ReadOnly: true})
	require.NoError(t, err)
	defer func() { _ = unit.Rollback(execCtx) }()
	got, err := unit.Bookings().ByOrderCode(execCtx, "INV-1")
	require.NoError(t, err)
	assert.Equal(t, b.ID, got.ID)
	assert.Equal(t, int64(1), got.Version)
}

func TestIdempotencyStoreKeepsFirstResult(t *testing.T) {
	client := newTestClient(t)
	ctx := context.Background()
	store, err := NewIdempotencyStore(ctx, client.DB)
	require.NoError(t, err)

	require.NoError(t, store.Save(ctx, middleware.IdempotencyRecord{Key: "k", Payload: []byte(`1`), OccurredAt: time.Now()}))
	require.NoError(t, store.Save(ctx, middleware.IdempotencyRecord{Key: "k", Payload: []byte(`2`), OccurredAt: time.Now()}))
	rec, ok, err := store.Get(ctx, "k")
	require.NoError(t, err)
	require.True(t, ok)
	assert.Equal(t, []byte(`1`), rec.Payload)
}
