// Package bootstrap registers every command and query handler and wraps the
// routers in the middleware pipeline shared by all entry points.
package bootstrap

import (
	"log/slog"
	"time"

	"github.com/shopspring/decimal"

	"staysane/internal/app/authz"
	"staysane/internal/app/clock"
	"staysane/internal/app/commands"
	"staysane/internal/app/dto"
	availabilityapp "staysane/internal/app/handlers/availability"
	bookingapp "staysane/internal/app/handlers/booking"
	pricingapp "staysane/internal/app/handlers/pricing"
	"staysane/internal/app/middleware"
	"staysane/internal/app/outbox"
	"staysane/internal/app/policies"
	"staysane/internal/app/queries"
	"staysane/internal/app/uow"
)

// Deps are the ports the handlers run against. UoW, Outbox and Idempotency
// are required; the rest fall back to disabled implementations.
type Deps struct {
	UoW         uow.Factory
	Outbox      outbox.Outbox
	Idempotency middleware.IdempotencyStore
	Locker      policies.RoomLocker
	Payments    policies.PaymentInitiator
	Proofs      policies.ProofStorage
	History     policies.HistoryReader
	Observer    middleware.Observer

	Clock         clock.Clock
	Location      *time.Location
	PaymentWindow time.Duration
	Tolerance     decimal.Decimal
	Logger        *slog.Logger
}

type Buses struct {
	Commands commands.Bus
	Queries  queries.Bus
}

func Build(d Deps) Buses {
	logger := d.Logger
	if logger == nil {
		logger = slog.Default()
	}
	c := d.Clock
	if c == nil {
		c = clock.NewSystem()
	}
	encoder := outbox.JSONEventEncoder{}

	cmdRouter := commands.NewRouter()
	commands.Register[bookingapp.CreateBookingCommand, *dto.Booking](cmdRouter, &bookingapp.CreateBookingHandler{
		UoWFactory:    d.UoW,
		Locker:        d.Locker,
		Payments:      d.Payments,
		Outbox:        d.Outbox,
		Encoder:       encoder,
		Clock:         c,
		Location:      d.Location,
		PaymentWindow: d.PaymentWindow,
		Tolerance:     d.Tolerance,
		Logger:        logger.With("handler", "create_booking"),
	})
	commands.Register[bookingapp.CancelBookingCommand, dto.StatusChange](cmdRouter, &bookingapp.CancelBookingHandler{
		UoWFactory: d.UoW, Outbox: d.Outbox, Encoder: encoder, Clock: c, Logger: logger,
	})
	commands.Register[bookingapp.TransitionStatusCommand, dto.StatusChange](cmdRouter, &bookingapp.TransitionStatusHandler{
		UoWFactory: d.UoW, Outbox: d.Outbox, Encoder: encoder, Clock: c, Location: d.Location, RetryWindow: d.PaymentWindow, Logger: logger,
	})
	commands.Register[bookingapp.UploadPaymentProofCommand, dto.StatusChange](cmdRouter, &bookingapp.UploadPaymentProofHandler{
		UoWFactory: d.UoW, Storage: d.Proofs, Outbox: d.Outbox, Encoder: encoder, Clock: c, Logger: logger,
	})
	commands.Register[bookingapp.ReviewPaymentProofCommand, dto.StatusChange](cmdRouter, &bookingapp.ReviewPaymentProofHandler{
		UoWFactory: d.UoW, Outbox: d.Outbox, Encoder: encoder, Clock: c, RetryWindow: d.PaymentWindow, Logger: logger,
	})
	commands.Register[bookingapp.GatewayPaymentCommand, *dto.StatusChange](cmdRouter, &bookingapp.GatewayPaymentHandler{
		Outbox: d.Outbox, Encoder: encoder, Clock: c, Logger: logger,
	})

	sweeps := &bookingapp.SweepHandler{UoWFactory: d.UoW, Outbox: d.Outbox, Encoder: encoder, Clock: c, Location: d.Location, Logger: logger}
	commands.Register[bookingapp.ExpireBookingsCommand, dto.SweepResult](cmdRouter, sweeps.ExpireHandler())
	commands.Register[bookingapp.CompleteBookingsCommand, dto.SweepResult](cmdRouter, sweeps.CompleteHandler())

	commands.Register[availabilityapp.ToggleDatesCommand, dto.ToggleResult](cmdRouter, &availabilityapp.ToggleDatesHandler{
		Outbox: d.Outbox, Encoder: encoder, Clock: c, Location: d.Location, Logger: logger,
	})

	adjustments := &pricingapp.AdjustmentHandler{Clock: c, Logger: logger}
	commands.Register[pricingapp.CreateAdjustmentCommand, dto.Adjustment](cmdRouter, adjustments.CreateHandler())
	commands.Register[pricingapp.UpdateAdjustmentCommand, dto.Adjustment](cmdRouter, adjustments.UpdateHandler())
	commands.Register[pricingapp.DeleteAdjustmentCommand, dto.Adjustment](cmdRouter, adjustments.DeleteHandler())

	queryRouter := queries.NewRouter()
	queries.Register[availabilityapp.CheckAvailabilityQuery, dto.Availability](queryRouter, &availabilityapp.CheckAvailabilityHandler{
		UoWFactory: d.UoW, Clock: c, Location: d.Location,
	})
	queries.Register[availabilityapp.GetCalendarQuery, dto.Calendar](queryRouter, &availabilityapp.GetCalendarHandler{UoWFactory: d.UoW})
	queries.Register[pricingapp.QuotePriceQuery, dto.Quote](queryRouter, &pricingapp.QuotePriceHandler{
		UoWFactory: d.UoW, Clock: c, Location: d.Location,
	})
	queries.Register[pricingapp.ListAdjustmentsQuery, dto.AdjustmentCollection](queryRouter, &pricingapp.ListAdjustmentsHandler{UoWFactory: d.UoW})
	queries.Register[bookingapp.GetBookingQuery, dto.Booking](queryRouter, &bookingapp.GetBookingHandler{UoWFactory: d.UoW})
	queries.Register[bookingapp.ListGuestBookingsQuery, dto.BookingCollection](queryRouter, &bookingapp.ListGuestBookingsHandler{UoWFactory: d.UoW})
	queries.Register[bookingapp.ListTenantBookingsQuery, dto.BookingCollection](queryRouter, &bookingapp.ListTenantBookingsHandler{UoWFactory: d.UoW})
	historyHandler := &bookingapp.GetBookingHistoryHandler{UoWFactory: d.UoW}
	if d.History != nil {
		historyHandler.History = d.History
	}
	queries.Register[bookingapp.GetBookingHistoryQuery, []policies.HistoryEntry](queryRouter, historyHandler)

	validator := middleware.NewStructValidator()
	authorizer := authz.RoleAuthorizer{}
	return Buses{
		Commands: middleware.ChainCommands(cmdRouter,
			middleware.Idempotency(d.Idempotency, nil),
			middleware.Logging(logger),
			middleware.Instrument(d.Observer),
			middleware.Validation(validator),
			middleware.Authorization(authorizer),
			middleware.OutboxFlush(d.Outbox, logger),
			middleware.Transaction(d.UoW, nil),
		),
		Queries: middleware.ChainQueries(queryRouter,
			middleware.InstrumentQueries(d.Observer),
			middleware.QueryValidation(validator),
			middleware.QueryAuthorization(authorizer),
		),
	}
}
