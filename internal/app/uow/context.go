package uow

import (
	"context"
	"errors"
)

var ErrUnitOfWorkMissing = errors.New("uow: unit of work missing from context")

type ctxKey struct{}

func ContextWithUnitOfWork(ctx context.Context, unit UnitOfWork) context.Context {
	return context.WithValue(ctx, ctxKey{}, unit)
}

func FromContext(ctx context.Context) (UnitOfWork, bool) {
	unit, ok := ctx.Value(ctxKey{}).(UnitOfWork)
	return unit, ok && unit != nil
}

// WithoutUnitOfWork hides any unit carried by ctx, so that work started from
// it opens its own transaction.
func WithoutUnitOfWork(ctx context.Context) context.Context {
	return context.WithValue(ctx, ctxKey{}, nil)
}
