package property

import (
	"context"
	"errors"
	"strings"
	"time"

	"staysane/internal/domain/shared/errs"
	"staysane/internal/domain/shared/money"
)

var (
	ErrNameRequired      = errors.New("property: name is required")
	ErrTenantRequired    = errors.New("property: tenant id is required")
	ErrGuestsLimit       = errors.New("property: max guests must be at least 1")
	ErrBasePrice         = errors.New("property: room base price must be positive")
	ErrRoomCapacity      = errors.New("property: room capacity must be at least 1")
	ErrPropertyNotFound  = errs.NotFound("property")
	ErrRoomNotFound      = errs.NotFound("room")
	ErrRoomNotInProperty = errs.NotFound("room: not part of property")
	ErrPropertyNotOwned  = errors.New("property: not owned by tenant")
)

type ID string
type RoomID string
type TenantID string

type Property struct {
	ID        ID
	TenantID  TenantID
	Name      string
	City      string
	MaxGuests int
	CreatedAt time.Time
	UpdatedAt time.Time
}

// Room is a bookable unit. BasePrice is the nightly price before adjustments.
type Room struct {
	ID         RoomID
	PropertyID ID
	Name       string
	BasePrice  money.Money
	Capacity   int
	CreatedAt  time.Time
	UpdatedAt  time.Time
}

type Repository interface {
	ByID(ctx context.Context, id ID) (*Property, error)
	Save(ctx context.Context, p *Property) error
}

// RoomRepository loads rooms. ByIDForUpdate additionally serialises writers on
// the room for the rest of the transaction.
type RoomRepository interface {
	ByID(ctx context.Context, id RoomID) (*Room, error)
	ByIDForUpdate(ctx context.Context, id RoomID) (*Room, error)
	Save(ctx context.Context, r *Room) error
}

type CreatePropertyParams struct {
	ID        ID
	TenantID  TenantID
	Name      string
	City      string
	MaxGuests int
	Now       time.Time
}

func NewProperty(p CreatePropertyParams) (*Property, error) {
	if strings.TrimSpace(string(p.TenantID)) == "" {
		return nil, ErrTenantRequired
	}
	if strings.TrimSpace(p.Name) == "" {
		return nil, ErrNameRequired
	}
	if p.MaxGuests < 1 {
		return nil, ErrGuestsLimit
	}
	now := p.Now.UTC()
	return &Property{
		ID:        p.ID,
		TenantID:  p.TenantID,
		Name:      strings.TrimSpace(p.Name),
		City:      strings.TrimSpace(p.City),
		MaxGuests: p.MaxGuests,
		CreatedAt: now,
		UpdatedAt: now,
	}, nil
}

type CreateRoomParams struct {
	ID         RoomID
	PropertyID ID
	Name       string
	BasePrice  money.Money
	Capacity   int
	Now        time.Time
}

func NewRoom(p CreateRoomParams) (*Room, error) {
	if !p.BasePrice.IsPositive() {
		return nil, ErrBasePrice
	}
	if p.Capacity < 1 {
		return nil, ErrRoomCapacity
	}
	now := p.Now.UTC()
	return &Room{
		ID:         p.ID,
		PropertyID: p.PropertyID,
		Name:       strings.TrimSpace(p.Name),
		BasePrice:  p.BasePrice,
		Capacity:   p.Capacity,
		CreatedAt:  now,
		UpdatedAt:  now,
	}, nil
}

// OwnedBy reports whether the tenant manages the property.
func (p *Property) OwnedBy(tenant TenantID) bool {
	return p != nil && p.TenantID == tenant
}

// BelongsTo reports whether the room is part of the property.
func (r *Room) BelongsTo(id ID) bool {
	return r != nil && r.PropertyID == id
}
