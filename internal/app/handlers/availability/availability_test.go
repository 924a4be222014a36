package availability_test

import (
	"context"
	"testing"
	"time"

	"cloud.google.com/go/civil"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"staysane/internal/app/authz"
	"staysane/internal/app/clock"
	"staysane/internal/app/commands"
	"staysane/internal/app/dto"
	"staysane/internal/app/handlers/availability"
	"staysane/internal/app/middleware"
	"staysane/internal/app/queries"
	"staysane/internal/app/uow"
	domainavailability "staysane/internal/domain/availability"
	"staysane/internal/domain/booking"
	"staysane/internal/domain/pricing"
	"staysane/internal/domain/property"
	"staysane/internal/domain/shared/daterange"
	"staysane/internal/domain/shared/money"
	"staysane/internal/domain/user"
	"staysane/internal/infra/storage/memory"
)

var now = time.Date(2025, 5, 1, 8, 0, 0, 0, time.UTC)

func day(m time.Month, d int) civil.Date {
	return civil.Date{Year: 2025, Month: m, Day: d}
}

type harness struct {
	store   *memory.Store
	queries queries.Bus
	cmds    commands.Bus
}

func newHarness(t *testing.T) *harness {
	t.Helper()
	store := memory.NewStore()
	require.NoError(t, store.SeedDemo(context.Background(), "IDR", now))
	clk := clock.NewFixed(now)

	qr := queries.NewRouter()
	queries.Register[availability.CheckAvailabilityQuery, dto.Availability](qr, &availability.CheckAvailabilityHandler{UoWFactory: store, Clock: clk})
	queries.Register[availability.GetCalendarQuery, dto.Calendar](qr, &availability.GetCalendarHandler{UoWFactory: store})

	cr := commands.NewRouter()
	commands.Register[availability.ToggleDatesCommand, dto.ToggleResult](cr, &availability.ToggleDatesHandler{Outbox: store, Clock: clk})

	return &harness{
		store:   store,
		queries: middleware.ChainQueries(qr, middleware.QueryValidation(middleware.NewStructValidator())),
		cmds: middleware.ChainCommands(cr,
			middleware.Validation(middleware.NewStructValidator()),
			middleware.Authorization(authz.RoleAuthorizer{}),
			middleware.Transaction(store, nil),
		),
	}
}

func (h *harness) reserve(t *testing.T, code string, in, out civil.Date) {
	t.Helper()
	ctx := context.Background()
	stay := daterange.DateRange{CheckIn: in, CheckOut: out}
	quote, err := pricing.ComputeTotal(money.Must(memory.DemoNightlyRate, "IDR"), stay, nil, 1)
	require.NoError(t, err)
	b, err := booking.NewBooking(booking.CreateParams{
		ID:         booking.BookingID("bk-" + code),
		OrderCode:  code,
		GuestID:    memory.DemoGuestID,
		TenantID:   memory.DemoTenantID,
		PropertyID: memory.DemoPropertyID,
		RoomID:     memory.DemoRoomID,
		Range:      stay,
		Guests:     1,
		Quote:      quote,
		Method:     booking.MethodManualTransfer,
		ExpiresAt:  now.Add(time.Hour),
		CreatedAt:  now,
	})
	require.NoError(t, err)
	unit, err := h.store.Begin(ctx, uow.TxOptions{})
	require.NoError(t, err)
	require.NoError(t, unit.Bookings().Insert(ctx, b))
	require.NoError(t, unit.Commit(ctx))
}

func (h *harness) check(t *testing.T, in, out civil.Date) dto.Availability {
	t.Helper()
	res, err := queries.Ask[availability.CheckAvailabilityQuery, dto.Availability](context.Background(), h.queries,
		availability.CheckAvailabilityQuery{RoomID: memory.DemoRoomID, CheckIn: in, CheckOut: out})
	require.NoError(t, err)
	return res
}

func (h *harness) toggle(ctx context.Context, roomID string, available bool, dates ...civil.Date) (dto.ToggleResult, error) {
	return commands.Dispatch[availability.ToggleDatesCommand, dto.ToggleResult](ctx, h.cmds,
		availability.ToggleDatesCommand{RoomID: roomID, Dates: dates, Available: available})
}

func tenant(id string) context.Context {
	return authz.WithPrincipal(context.Background(), authz.Principal{UserID: user.ID(id), Role: user.RoleTenant})
}

func TestCheckReportsOverlappingReservation(t *testing.T) {
	h := newHarness(t)
	h.reserve(t, "INV-1", day(6, 1), day(6, 5))

	res := h.check(t, day(6, 4), day(6, 7))
	assert.False(t, res.Available)
	require.Len(t, res.Conflicts, 1)
	assert.Equal(t, "INV-1", res.Conflicts[0].OrderCode)
	assert.Equal(t, dto.RangeDTO{CheckIn: day(6, 1), CheckOut: day(6, 5)}, res.Conflicts[0].Range)

	res = h.check(t, day(6, 5), day(6, 7))
	assert.True(t, res.Available, "check-out day is free")
	assert.Empty(t, res.Conflicts)
	assert.Empty(t, res.Blackouts)
}

func TestCheckRejectsBadRangesAndUnknownRooms(t *testing.T) {
	h := newHarness(t)
	ctx := context.Background()

	_, err := queries.Ask[availability.CheckAvailabilityQuery, dto.Availability](ctx, h.queries,
		availability.CheckAvailabilityQuery{RoomID: memory.DemoRoomID, CheckIn: day(6, 5), CheckOut: day(6, 5)})
	assert.ErrorIs(t, err, domainavailability.ErrInvalidDateRange)

	_, err = queries.Ask[availability.CheckAvailabilityQuery, dto.Availability](ctx, h.queries,
		availability.CheckAvailabilityQuery{RoomID: memory.DemoRoomID, CheckIn: day(4, 30), CheckOut: day(5, 2)})
	assert.ErrorIs(t, err, domainavailability.ErrInvalidDateRange)

	_, err = queries.Ask[availability.CheckAvailabilityQuery, dto.Availability](ctx, h.queries,
		availability.CheckAvailabilityQuery{RoomID: "nope", CheckIn: day(6, 1), CheckOut: day(6, 2)})
	assert.ErrorIs(t, err, property.ErrRoomNotFound)

	_, err = queries.Ask[availability.CheckAvailabilityQuery, dto.Availability](ctx, h.queries,
		availability.CheckAvailabilityQuery{CheckIn: day(6, 1), CheckOut: day(6, 2)})
	assert.ErrorIs(t, err, middleware.ErrInvalidInput)
}

func TestToggleBlocksAndReleasesDates(t *testing.T) {
	h := newHarness(t)

	res, err := h.toggle(tenant(memory.DemoTenantID), memory.DemoRoomID, false, day(7, 11), day(7, 10))
	require.NoError(t, err)
	assert.Equal(t, []dto.RangeDTO{{CheckIn: day(7, 10), CheckOut: day(7, 12)}}, res.Ranges)

	blocked := h.check(t, day(7, 9), day(7, 11))
	assert.False(t, blocked.Available)
	assert.Equal(t, []civil.Date{day(7, 10)}, blocked.Blackouts)

	_, err = h.toggle(tenant(memory.DemoTenantID), memory.DemoRoomID, true, day(7, 10), day(7, 11))
	require.NoError(t, err)
	assert.True(t, h.check(t, day(7, 9), day(7, 12)).Available)

	pending := h.store.Pending()
	require.Len(t, pending, 2)
	assert.Equal(t, "calendar.blocked", pending[0].Name)
	assert.Equal(t, "calendar.released", pending[1].Name)
}

func TestToggleRequiresOwningTenant(t *testing.T) {
	h := newHarness(t)

	_, err := h.toggle(tenant(memory.DemoOtherTenant), memory.DemoRoomID, false, day(7, 10))
	assert.ErrorIs(t, err, property.ErrPropertyNotOwned)

	guest := authz.WithPrincipal(context.Background(), authz.Principal{UserID: memory.DemoGuestID, Role: user.RoleGuest})
	_, err = h.toggle(guest, memory.DemoRoomID, false, day(7, 10))
	assert.ErrorIs(t, err, authz.ErrForbidden)

	_, err = h.toggle(tenant(memory.DemoTenantID), memory.DemoRoomID, false, day(4, 1))
	assert.ErrorIs(t, err, domainavailability.ErrDateInPast)

	assert.True(t, h.check(t, day(7, 9), day(7, 12)).Available)
	assert.Empty(t, h.store.Pending())
}

func TestBlackoutDoesNotCancelExistingReservation(t *testing.T) {
	h := newHarness(t)
	h.reserve(t, "INV-7", day(8, 1), day(8, 4))

	_, err := h.toggle(tenant(memory.DemoTenantID), memory.DemoRoomID, false, day(8, 2))
	require.NoError(t, err)

	cal, err := queries.Ask[availability.GetCalendarQuery, dto.Calendar](context.Background(), h.queries,
		availability.GetCalendarQuery{RoomID: memory.DemoRoomID, From: day(8, 1), To: day(9, 1)})
	require.NoError(t, err)
	assert.Equal(t, []dto.RangeDTO{{CheckIn: day(8, 2), CheckOut: day(8, 3)}}, cal.Blackouts)
	require.Len(t, cal.Reservations, 1)
	assert.Equal(t, "INV-7", cal.Reservations[0].OrderCode)
	assert.Equal(t, string(booking.StatusWaitingPayment), cal.Reservations[0].Status)
}
