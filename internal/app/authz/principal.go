// Package authz carries the caller identity established by the edge and
// checks role requirements declared by commands and queries.
package authz

import (
	"context"
	"errors"

	"staysane/internal/domain/user"
)

var (
	ErrUnauthenticated = errors.New("authz: caller is not authenticated")
	ErrForbidden       = errors.New("authz: caller is not allowed to perform this action")
)

type Principal struct {
	UserID user.ID
	Role   user.Role
}

type ctxKey struct{}

func WithPrincipal(ctx context.Context, p Principal) context.Context {
	return context.WithValue(ctx, ctxKey{}, p)
}

func FromContext(ctx context.Context) (Principal, bool) {
	p, ok := ctx.Value(ctxKey{}).(Principal)
	return p, ok && p.UserID != ""
}

// RoleRequirement is implemented by messages that only one role may send.
type RoleRequirement interface {
	RequiredRole() user.Role
}

// RoleAuthorizer rejects messages whose required role differs from the
// caller's. Messages without a requirement pass, as do calls made without a
// principal by trusted internal callers such as workers.
type RoleAuthorizer struct {
	RequirePrincipal bool
}

func (a RoleAuthorizer) Authorize(ctx context.Context, message any) error {
	req, ok := message.(RoleRequirement)
	if !ok {
		return nil
	}
	p, found := FromContext(ctx)
	if !found {
		if a.RequirePrincipal {
			return ErrUnauthenticated
		}
		return nil
	}
	if p.Role != req.RequiredRole() {
		return ErrForbidden
	}
	return nil
}
