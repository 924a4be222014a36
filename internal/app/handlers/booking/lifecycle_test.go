package booking_test

import (
	"errors"
	"strings"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"staysane/internal/app/commands"
	"staysane/internal/app/dto"
	"staysane/internal/app/handlers/booking"
	"staysane/internal/app/policies"
	domainbooking "staysane/internal/domain/booking"
)

func TestManualPaymentFlowToCompletion(t *testing.T) {
	f := newFixture(t)
	b := f.book(day(time.June, 1), day(time.June, 4))

	change, err := commands.Dispatch[booking.UploadPaymentProofCommand, dto.StatusChange](asGuest("guest-1"), f.bus,
		booking.UploadPaymentProofCommand{BookingID: b.ID, FileName: "receipt.pdf", ContentType: "application/pdf", Size: 25, Body: pdf()})
	require.NoError(t, err)
	assert.Equal(t, string(domainbooking.StatusWaitingConfirmation), change.Status)
	require.Len(t, f.proofs.objects, 1)
	stored := f.getBooking(b.ID)
	assert.True(t, strings.HasPrefix(stored.Payment.ProofURL, "https://proofs.test/proofs/"+b.ID+"/"))
	assert.True(t, strings.HasSuffix(stored.Payment.ProofURL, ".pdf"))

	change, err = commands.Dispatch[booking.ReviewPaymentProofCommand, dto.StatusChange](asTenant("tenant-1"), f.bus,
		booking.ReviewPaymentProofCommand{BookingID: b.ID, Approve: true})
	require.NoError(t, err)
	assert.Equal(t, string(domainbooking.StatusProcessing), change.Status)

	// Not due before check-out.
	sweep, err := commands.Dispatch[booking.CompleteBookingsCommand, dto.SweepResult](asTenant("tenant-1"), f.bus, booking.CompleteBookingsCommand{})
	require.NoError(t, err)
	assert.Equal(t, dto.SweepResult{}, sweep)

	f.clock.Set(time.Date(2025, 6, 4, 9, 0, 0, 0, time.UTC))
	sweep, err = commands.Dispatch[booking.CompleteBookingsCommand, dto.SweepResult](asTenant("tenant-1"), f.bus, booking.CompleteBookingsCommand{})
	require.NoError(t, err)
	assert.Equal(t, dto.SweepResult{Scanned: 1, Changed: 1}, sweep)
	assert.Equal(t, string(domainbooking.StatusCompleted), f.getBooking(b.ID).Status)

	names := make([]string, 0)
	for _, rec := range f.store.Pending() {
		names = append(names, rec.Name)
	}
	assert.Equal(t, []string{"booking.created", "booking.status_changed", "booking.status_changed", "booking.status_changed"}, names)
}

func TestRejectedProofReopensPaymentWindow(t *testing.T) {
	f := newFixture(t)
	b := f.book(day(time.June, 1), day(time.June, 4))
	_, err := commands.Dispatch[booking.UploadPaymentProofCommand, dto.StatusChange](asGuest("guest-1"), f.bus,
		booking.UploadPaymentProofCommand{BookingID: b.ID, ContentType: "application/pdf", Size: 25, Body: pdf()})
	require.NoError(t, err)

	f.clock.Advance(30 * time.Minute)
	_, err = commands.Dispatch[booking.ReviewPaymentProofCommand, dto.StatusChange](asTenant("tenant-1"), f.bus,
		booking.ReviewPaymentProofCommand{BookingID: b.ID})
	assert.Error(t, err, "a rejection needs a reason")

	change, err := commands.Dispatch[booking.ReviewPaymentProofCommand, dto.StatusChange](asTenant("tenant-1"), f.bus,
		booking.ReviewPaymentProofCommand{BookingID: b.ID, Reason: "amount does not match"})
	require.NoError(t, err)
	assert.Equal(t, string(domainbooking.StatusWaitingPayment), change.Status)

	stored := f.getBooking(b.ID)
	assert.Equal(t, "amount does not match", stored.Payment.RejectedReason)
	require.NotNil(t, stored.ExpiresAt)
	assert.Equal(t, f.clock.Now().Add(booking.DefaultPaymentWindow), *stored.ExpiresAt)
}

func TestExpireSweepIsIdempotent(t *testing.T) {
	f := newFixture(t)
	b := f.book(day(time.June, 1), day(time.June, 4))

	sweep, err := commands.Dispatch[booking.ExpireBookingsCommand, dto.SweepResult](asTenant("tenant-1"), f.bus, booking.ExpireBookingsCommand{})
	require.NoError(t, err)
	assert.Zero(t, sweep.Scanned)

	f.clock.Advance(2 * time.Hour)
	sweep, err = commands.Dispatch[booking.ExpireBookingsCommand, dto.SweepResult](asTenant("tenant-1"), f.bus, booking.ExpireBookingsCommand{})
	require.NoError(t, err)
	assert.Equal(t, dto.SweepResult{Scanned: 1, Changed: 1}, sweep)

	stored := f.getBooking(b.ID)
	assert.Equal(t, string(domainbooking.StatusCanceled), stored.Status)
	assert.Equal(t, domainbooking.ExpiredReason, stored.CancelReason)

	sweep, err = commands.Dispatch[booking.ExpireBookingsCommand, dto.SweepResult](asTenant("tenant-1"), f.bus, booking.ExpireBookingsCommand{})
	require.NoError(t, err)
	assert.Equal(t, dto.SweepResult{}, sweep)
	assert.Equal(t, string(domainbooking.StatusCanceled), f.getBooking(b.ID).Status)

	// The nights are free again.
	f.book(day(time.June, 1), day(time.June, 4))
}

func TestLateProofIsRejected(t *testing.T) {
	f := newFixture(t)
	b := f.book(day(time.June, 1), day(time.June, 4))
	f.clock.Advance(61 * time.Minute)

	_, err := commands.Dispatch[booking.UploadPaymentProofCommand, dto.StatusChange](asGuest("guest-1"), f.bus,
		booking.UploadPaymentProofCommand{BookingID: b.ID, ContentType: "application/pdf", Size: 25, Body: pdf()})
	require.ErrorIs(t, err, domainbooking.ErrPaymentWindowClosed)
	assert.Empty(t, f.proofs.objects, "nothing is uploaded for a closed window")
}

func TestProofUploadChecksFile(t *testing.T) {
	f := newFixture(t)
	b := f.book(day(time.June, 1), day(time.June, 4))

	_, err := commands.Dispatch[booking.UploadPaymentProofCommand, dto.StatusChange](asGuest("guest-1"), f.bus,
		booking.UploadPaymentProofCommand{BookingID: b.ID, ContentType: "text/html", Size: 25, Body: pdf()})
	assert.ErrorIs(t, err, booking.ErrProofType)

	_, err = commands.Dispatch[booking.UploadPaymentProofCommand, dto.StatusChange](asGuest("guest-1"), f.bus,
		booking.UploadPaymentProofCommand{BookingID: b.ID, ContentType: "image/png", Size: booking.MaxProofSize + 1, Body: pdf()})
	assert.ErrorIs(t, err, booking.ErrProofTooLarge)

	_, err = commands.Dispatch[booking.UploadPaymentProofCommand, dto.StatusChange](asGuest("guest-2"), f.bus,
		booking.UploadPaymentProofCommand{BookingID: b.ID, ContentType: "image/png", Size: 25, Body: pdf()})
	assert.ErrorIs(t, err, booking.ErrNotParticipant)
}

func TestCancelRules(t *testing.T) {
	f := newFixture(t)
	b := f.book(day(time.June, 1), day(time.June, 4))

	_, err := commands.Dispatch[booking.CancelBookingCommand, dto.StatusChange](asGuest("guest-2"), f.bus,
		booking.CancelBookingCommand{BookingID: b.ID})
	require.ErrorIs(t, err, booking.ErrNotParticipant)

	_, err = commands.Dispatch[booking.TransitionStatusCommand, dto.StatusChange](asTenant("tenant-1"), f.bus,
		booking.TransitionStatusCommand{BookingID: b.ID, Target: "PROCESSING"})
	require.ErrorIs(t, err, domainbooking.ErrInvalidState, "manual bookings need a proof first")

	_, err = commands.Dispatch[booking.UploadPaymentProofCommand, dto.StatusChange](asGuest("guest-1"), f.bus,
		booking.UploadPaymentProofCommand{BookingID: b.ID, ContentType: "image/jpeg", Size: 25, Body: pdf()})
	require.NoError(t, err)
	_, err = commands.Dispatch[booking.TransitionStatusCommand, dto.StatusChange](asTenant("tenant-1"), f.bus,
		booking.TransitionStatusCommand{BookingID: b.ID, Target: "processing"})
	require.NoError(t, err)

	_, err = commands.Dispatch[booking.CancelBookingCommand, dto.StatusChange](asGuest("guest-1"), f.bus,
		booking.CancelBookingCommand{BookingID: b.ID})
	require.ErrorIs(t, err, booking.ErrGuestCancelNotAllowed)

	change, err := commands.Dispatch[booking.CancelBookingCommand, dto.StatusChange](asTenant("tenant-1"), f.bus,
		booking.CancelBookingCommand{BookingID: b.ID, Reason: "flooding"})
	require.NoError(t, err)
	assert.Equal(t, dto.StatusChange{BookingID: b.ID, Status: "CANCELED", Changed: true}, change)

	change, err = commands.Dispatch[booking.CancelBookingCommand, dto.StatusChange](asTenant("tenant-1"), f.bus,
		booking.CancelBookingCommand{BookingID: b.ID})
	require.NoError(t, err)
	assert.False(t, change.Changed)
	assert.Equal(t, "flooding", f.getBooking(b.ID).CancelReason)
}

func TestGatewayNotifications(t *testing.T) {
	f := newFixture(t)
	f.payments.On("Initiate", anyArg, anyArg).Return(tokenFor("tok-9"), nil)

	cmd := createCmd("room-1", day(time.June, 1), day(time.June, 4), 3_000_000)
	cmd.PaymentMethod = string(domainbooking.MethodPaymentGateway)
	b, err := commands.Dispatch[booking.CreateBookingCommand, *dto.Booking](asGuest("guest-1"), f.bus, cmd)
	require.NoError(t, err)

	notify := func(status, eventID string) (*dto.StatusChange, error) {
		return commands.Dispatch[booking.GatewayPaymentCommand, *dto.StatusChange](ctxNoPrincipal(), f.bus,
			booking.GatewayPaymentCommand{OrderRef: b.OrderCode, TransactionID: "trx-1", Status: status, EventID: eventID})
	}

	change, err := notify("pending", "evt-1")
	require.NoError(t, err)
	assert.False(t, change.Changed)

	change, err = notify("settlement", "evt-2")
	require.NoError(t, err)
	assert.True(t, change.Changed)
	assert.Equal(t, string(domainbooking.StatusProcessing), change.Status)

	// Redelivery under a new event id changes nothing.
	change, err = notify("capture", "evt-3")
	require.NoError(t, err)
	assert.False(t, change.Changed)

	_, err = notify("chargeback", "evt-4")
	assert.ErrorIs(t, err, booking.ErrUnknownGatewayEvent)

	stored := f.getBooking(b.ID)
	assert.Equal(t, "trx-1", stored.Payment.TransactionID)
	assert.Nil(t, stored.ExpiresAt)
}

func TestGatewayFailureCancelsUnpaidBooking(t *testing.T) {
	f := newFixture(t)
	f.payments.On("Initiate", anyArg, anyArg).Return(tokenFor("tok-2"), nil)
	cmd := createCmd("room-1", day(time.June, 1), day(time.June, 4), 3_000_000)
	cmd.PaymentMethod = string(domainbooking.MethodPaymentGateway)
	b, err := commands.Dispatch[booking.CreateBookingCommand, *dto.Booking](asGuest("guest-1"), f.bus, cmd)
	require.NoError(t, err)

	change, err := commands.Dispatch[booking.GatewayPaymentCommand, *dto.StatusChange](ctxNoPrincipal(), f.bus,
		booking.GatewayPaymentCommand{OrderRef: b.OrderCode, Status: "expire", EventID: "evt-x"})
	require.NoError(t, err)
	assert.Equal(t, string(domainbooking.StatusCanceled), change.Status)
}

func TestGatewayFailureKeepsDowngradedBooking(t *testing.T) {
	f := newFixture(t)
	f.payments.On("Initiate", anyArg, anyArg).Return(policies.PaymentToken{}, errors.New("gateway timeout")).Once()
	cmd := createCmd("room-1", day(time.June, 1), day(time.June, 4), 3_000_000)
	cmd.PaymentMethod = string(domainbooking.MethodPaymentGateway)
	b, err := commands.Dispatch[booking.CreateBookingCommand, *dto.Booking](asGuest("guest-1"), f.bus, cmd)
	require.ErrorIs(t, err, domainbooking.ErrPaymentGatewayUnavailable)
	require.NotNil(t, b)
	require.Equal(t, string(domainbooking.MethodManualTransfer), b.Payment.Method)

	change, err := commands.Dispatch[booking.GatewayPaymentCommand, *dto.StatusChange](ctxNoPrincipal(), f.bus,
		booking.GatewayPaymentCommand{OrderRef: b.OrderCode, Status: "expire", EventID: "evt-late"})
	require.NoError(t, err)
	assert.False(t, change.Changed)
	assert.Equal(t, string(domainbooking.StatusWaitingPayment), change.Status)

	stored := f.getBooking(b.ID)
	assert.Equal(t, string(domainbooking.StatusWaitingPayment), stored.Status)
	assert.Equal(t, string(domainbooking.MethodManualTransfer), stored.Payment.Method)
}

func TestGatewayOutcome(t *testing.T) {
	assert.Equal(t, booking.OutcomePaid, booking.GatewayOutcome(" Settlement "))
	assert.Equal(t, booking.OutcomePending, booking.GatewayOutcome("pending"))
	assert.Equal(t, booking.OutcomeFailed, booking.GatewayOutcome("deny"))
	assert.Equal(t, booking.OutcomeUnknown, booking.GatewayOutcome("refund"))
}

func TestGatewayEventID(t *testing.T) {
	assert.Equal(t, "gateway:tx-9:settlement", booking.GatewayEventID("INV-1", "tx-9", "Settlement"))
	assert.Equal(t, "gateway:INV-1:pending", booking.GatewayEventID("INV-1", "", "pending"))
}
