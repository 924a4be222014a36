package user

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"

	"staysane/internal/domain/shared/errs"
)

var (
	ErrIDRequired   = errors.New("user: id is required")
	ErrNameRequired = errors.New("user: name is required")
	ErrInvalidRole  = errors.New("user: invalid role")
	ErrNotFound     = errs.NotFound("user")
)

type ID string

type Role string

const (
	RoleGuest  Role = "GUEST"
	RoleTenant Role = "TENANT"
)

func (r Role) Valid() bool {
	return r == RoleGuest || r == RoleTenant
}

func ParseRole(raw string) (Role, error) {
	role := Role(strings.ToUpper(strings.TrimSpace(raw)))
	if !role.Valid() {
		return "", fmt.Errorf("%w: %q", ErrInvalidRole, raw)
	}
	return role, nil
}

// User is the minimal projection of an account this service needs: bookings
// reference guests and properties reference tenants.
type User struct {
	ID        ID
	Name      string
	Email     string
	Role      Role
	CreatedAt time.Time
}

type Repository interface {
	ByID(ctx context.Context, id ID) (*User, error)
	Save(ctx context.Context, user *User) error
}

func NewUser(id ID, name, email string, role Role, now time.Time) (*User, error) {
	if strings.TrimSpace(string(id)) == "" {
		return nil, ErrIDRequired
	}
	if strings.TrimSpace(name) == "" {
		return nil, ErrNameRequired
	}
	role = Role(strings.ToUpper(strings.TrimSpace(string(role))))
	if !role.Valid() {
		return nil, ErrInvalidRole
	}
	return &User{
		ID:        id,
		Name:      strings.TrimSpace(name),
		Email:     strings.ToLower(strings.TrimSpace(email)),
		Role:      role,
		CreatedAt: now.UTC(),
	}, nil
}
