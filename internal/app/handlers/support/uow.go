package support

import (
	"context"

	"staysane/internal/app/uow"
)

// BeginReadOnlyUnit reuses the unit carried by ctx or opens a read-only one.
// cleanup is nil when the unit was reused.
func BeginReadOnlyUnit(ctx context.Context, factory uow.Factory) (uow.UnitOfWork, context.Context, func(), error) {
	if unit, ok := uow.FromContext(ctx); ok {
		return unit, ctx, nil, nil
	}
	unit, execCtx, err := uow.Begin(ctx, factory, uow.TxOptions{ReadOnly: true})
	if err != nil {
		return nil, ctx, nil, err
	}
	return unit, execCtx, func() { _ = unit.Rollback(execCtx) }, nil
}

// Scope is a unit of work that is committed only by whoever opened it.
type Scope struct {
	Unit    uow.UnitOfWork
	Ctx     context.Context
	managed bool
	done    bool
}

// Enter joins the unit carried by ctx or begins a new managed one.
func Enter(ctx context.Context, factory uow.Factory, opts uow.TxOptions) (*Scope, error) {
	if unit, ok := uow.FromContext(ctx); ok {
		return &Scope{Unit: unit, Ctx: ctx}, nil
	}
	unit, execCtx, err := uow.Begin(ctx, factory, opts)
	if err != nil {
		return nil, err
	}
	return &Scope{Unit: unit, Ctx: execCtx, managed: true}, nil
}

// Isolated always begins a new managed unit, ignoring any unit in ctx.
func Isolated(ctx context.Context, factory uow.Factory) (*Scope, error) {
	return Enter(uow.WithoutUnitOfWork(ctx), factory, uow.TxOptions{})
}

func (s *Scope) Commit() error {
	if !s.managed || s.done {
		return nil
	}
	if err := s.Unit.Commit(s.Ctx); err != nil {
		return err
	}
	s.done = true
	return nil
}

// Close rolls back a managed unit that was not committed.
func (s *Scope) Close() {
	if s.managed && !s.done {
		_ = s.Unit.Rollback(s.Ctx)
		s.done = true
	}
}
