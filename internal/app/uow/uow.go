package uow

import (
	"context"

	"staysane/internal/domain/availability"
	"staysane/internal/domain/booking"
	"staysane/internal/domain/pricing"
	"staysane/internal/domain/property"
	"staysane/internal/domain/user"
)

// UnitOfWork groups the repositories used inside one transaction.
type UnitOfWork interface {
	Users() user.Repository
	Properties() property.Repository
	Rooms() property.RoomRepository
	Blackouts() availability.Repository
	Adjustments() pricing.Repository
	Bookings() booking.Repository

	Commit(ctx context.Context) error
	Rollback(ctx context.Context) error
}

type Factory interface {
	Begin(ctx context.Context, opts TxOptions) (UnitOfWork, error)
}

type TxOptions struct {
	ReadOnly bool
}

// ContextInjector is implemented by units whose driver needs its own
// transaction handle carried in the context.
type ContextInjector interface {
	InjectContext(ctx context.Context) context.Context
}

// Begin starts a unit and returns the context repositories must be called with.
func Begin(ctx context.Context, factory Factory, opts TxOptions) (UnitOfWork, context.Context, error) {
	if factory == nil {
		return nil, ctx, ErrUnitOfWorkMissing
	}
	unit, err := factory.Begin(ctx, opts)
	if err != nil {
		return nil, ctx, err
	}
	execCtx := ctx
	if injector, ok := unit.(ContextInjector); ok {
		execCtx = injector.InjectContext(ctx)
	}
	return unit, ContextWithUnitOfWork(execCtx, unit), nil
}
