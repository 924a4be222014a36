package booking_test

import (
	"bytes"
	"context"
	"io"
	"log/slog"
	"sync"
	"testing"
	"time"

	"cloud.google.com/go/civil"
	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/mock"
	"github.com/stretchr/testify/require"

	"staysane/internal/app/authz"
	"staysane/internal/app/clock"
	"staysane/internal/app/commands"
	"staysane/internal/app/dto"
	"staysane/internal/app/handlers/booking"
	"staysane/internal/app/middleware"
	"staysane/internal/app/policies"
	"staysane/internal/app/uow"
	"staysane/internal/domain/pricing"
	"staysane/internal/domain/property"
	"staysane/internal/domain/shared/money"
	"staysane/internal/domain/user"
	"staysane/internal/infra/storage/memory"
)

var startOfTest = time.Date(2025, 5, 1, 8, 0, 0, 0, time.UTC)

func day(m time.Month, d int) civil.Date {
	return civil.Date{Year: 2025, Month: m, Day: d}
}

type initiatorMock struct {
	mock.Mock
}

func (m *initiatorMock) Initiate(ctx context.Context, req policies.PaymentRequest) (policies.PaymentToken, error) {
	args := m.Called(ctx, req)
	return args.Get(0).(policies.PaymentToken), args.Error(1)
}

type proofBucket struct {
	mu      sync.Mutex
	objects map[string][]byte
}

func (b *proofBucket) Upload(_ context.Context, key, _ string, body io.Reader, _ int64) (string, error) {
	data, err := io.ReadAll(body)
	if err != nil {
		return "", err
	}
	b.mu.Lock()
	defer b.mu.Unlock()
	if b.objects == nil {
		b.objects = map[string][]byte{}
	}
	b.objects[key] = data
	return "https://proofs.test/" + key, nil
}

type fixture struct {
	t        *testing.T
	store    *memory.Store
	clock    *clock.Fixed
	payments *initiatorMock
	proofs   *proofBucket
	create   *booking.CreateBookingHandler
	bus      commands.Bus
}

func newFixture(t *testing.T) *fixture {
	t.Helper()
	store := memory.NewStore()
	clk := clock.NewFixed(startOfTest)
	logger := slog.New(slog.NewTextHandler(io.Discard, nil))
	payments := &initiatorMock{}
	proofs := &proofBucket{}

	f := &fixture{t: t, store: store, clock: clk, payments: payments, proofs: proofs}
	f.seed()

	f.create = &booking.CreateBookingHandler{
		UoWFactory: store,
		Payments:   payments,
		Outbox:     store,
		Clock:      clk,
		Logger:     logger,
	}
	sweeps := &booking.SweepHandler{UoWFactory: store, Outbox: store, Clock: clk, Logger: logger}

	router := commands.NewRouter()
	commands.Register[booking.CreateBookingCommand, *dto.Booking](router, f.create)
	commands.Register[booking.CancelBookingCommand, dto.StatusChange](router, &booking.CancelBookingHandler{UoWFactory: store, Outbox: store, Clock: clk})
	commands.Register[booking.UploadPaymentProofCommand, dto.StatusChange](router, &booking.UploadPaymentProofHandler{UoWFactory: store, Storage: proofs, Outbox: store, Clock: clk})
	commands.Register[booking.ReviewPaymentProofCommand, dto.StatusChange](router, &booking.ReviewPaymentProofHandler{UoWFactory: store, Outbox: store, Clock: clk})
	commands.Register[booking.GatewayPaymentCommand, *dto.StatusChange](router, &booking.GatewayPaymentHandler{Outbox: store, Clock: clk})
	commands.Register[booking.TransitionStatusCommand, dto.StatusChange](router, &booking.TransitionStatusHandler{UoWFactory: store, Outbox: store, Clock: clk})
	commands.Register[booking.ExpireBookingsCommand, dto.SweepResult](router, sweeps.ExpireHandler())
	commands.Register[booking.CompleteBookingsCommand, dto.SweepResult](router, sweeps.CompleteHandler())

	f.bus = middleware.ChainCommands(router,
		middleware.Idempotency(memory.NewIdempotencyStore(), nil),
		middleware.Validation(middleware.NewStructValidator()),
		middleware.Authorization(authz.RoleAuthorizer{}),
		middleware.Transaction(store, nil),
	)
	return f
}

func (f *fixture) seed() {
	f.t.Helper()
	ctx := context.Background()
	unit, err := f.store.Begin(ctx, uow.TxOptions{})
	require.NoError(f.t, err)

	for _, u := range []struct {
		id   user.ID
		role user.Role
	}{{"guest-1", user.RoleGuest}, {"guest-2", user.RoleGuest}, {"tenant-1", user.RoleTenant}} {
		account, err := user.NewUser(u.id, string(u.id), string(u.id)+"@example.test", u.role, startOfTest)
		require.NoError(f.t, err)
		require.NoError(f.t, unit.Users().Save(ctx, account))
	}
	prop, err := property.NewProperty(property.CreatePropertyParams{
		ID: "prop-1", TenantID: "tenant-1", Name: "Villa Kemang", City: "Jakarta", MaxGuests: 4, Now: startOfTest,
	})
	require.NoError(f.t, err)
	require.NoError(f.t, unit.Properties().Save(ctx, prop))
	for _, id := range []property.RoomID{"room-1", "room-2"} {
		room, err := property.NewRoom(property.CreateRoomParams{
			ID: id, PropertyID: "prop-1", Name: string(id), BasePrice: money.Must(1_000_000, "IDR"), Capacity: 2, Now: startOfTest,
		})
		require.NoError(f.t, err)
		require.NoError(f.t, unit.Rooms().Save(ctx, room))
	}
	require.NoError(f.t, unit.Commit(ctx))
}

func (f *fixture) addAdjustment(params pricing.AdjustmentParams) {
	f.t.Helper()
	ctx := context.Background()
	unit, err := f.store.Begin(ctx, uow.TxOptions{})
	require.NoError(f.t, err)
	adj, err := pricing.NewAdjustment(params)
	require.NoError(f.t, err)
	require.NoError(f.t, unit.Adjustments().Save(ctx, adj))
	require.NoError(f.t, unit.Commit(ctx))
}

func asGuest(id string) context.Context {
	return authz.WithPrincipal(context.Background(), authz.Principal{UserID: user.ID(id), Role: user.RoleGuest})
}

func asTenant(id string) context.Context {
	return authz.WithPrincipal(context.Background(), authz.Principal{UserID: user.ID(id), Role: user.RoleTenant})
}

func createCmd(roomID string, in, out civil.Date, total int64) booking.CreateBookingCommand {
	return booking.CreateBookingCommand{
		GuestID:    "guest-1",
		PropertyID: "prop-1",
		RoomID:     roomID,
		CheckIn:    in,
		CheckOut:   out,
		Guests:     2,
		Total:      decimal.NewFromInt(total),
	}
}

// book creates a manual-transfer booking for guest-1 and fails the test on error.
func (f *fixture) book(in, out civil.Date) *dto.Booking {
	f.t.Helper()
	total := int64(out.DaysSince(in)) * 1_000_000
	res, err := commands.Dispatch[booking.CreateBookingCommand, *dto.Booking](asGuest("guest-1"), f.bus, createCmd("room-1", in, out, total))
	require.NoError(f.t, err)
	return res
}

func pdf() io.Reader {
	return bytes.NewReader([]byte("%PDF-1.4 transfer receipt"))
}

var anyArg = mock.Anything

func tokenFor(token string) policies.PaymentToken {
	return policies.PaymentToken{Token: token, RedirectURL: "https://pay.test/" + token}
}

func ctxNoPrincipal() context.Context {
	return context.Background()
}
