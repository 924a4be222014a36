package memory

import (
	"context"
	"fmt"
	"time"

	"staysane/internal/app/uow"
	"staysane/internal/domain/property"
	"staysane/internal/domain/shared/money"
	"staysane/internal/domain/user"
)

// Ids of the demo data written by SeedDemo.
const (
	DemoGuestID      = "guest-1"
	DemoOtherGuestID = "guest-2"
	DemoTenantID     = "tenant-1"
	DemoOtherTenant  = "tenant-2"
	DemoPropertyID   = "prop-1"
	DemoRoomID       = "room-1"
	DemoOtherRoomID  = "room-2"
	DemoNightlyRate  = 1_000_000
)

// SeedDemo writes the demo data into the store.
func (s *Store) SeedDemo(ctx context.Context, currency string, now time.Time) error {
	return Seed(ctx, s, currency, now)
}

// Seed writes two guests, two tenants and one property with two rooms priced
// at DemoNightlyRate through any unit of work factory. Rows that exist are
// overwritten.
func Seed(ctx context.Context, factory uow.Factory, currency string, now time.Time) error {
	unit, execCtx, err := uow.Begin(ctx, factory, uow.TxOptions{})
	if err != nil {
		return err
	}
	defer func() { _ = unit.Rollback(ctx) }()
	ctx = execCtx

	accounts := []struct {
		id   user.ID
		role user.Role
	}{
		{DemoGuestID, user.RoleGuest},
		{DemoOtherGuestID, user.RoleGuest},
		{DemoTenantID, user.RoleTenant},
		{DemoOtherTenant, user.RoleTenant},
	}
	for _, a := range accounts {
		u, err := user.NewUser(a.id, string(a.id), string(a.id)+"@example.test", a.role, now)
		if err != nil {
			return fmt.Errorf("seed user %s: %w", a.id, err)
		}
		if err := unit.Users().Save(ctx, u); err != nil {
			return err
		}
	}

	prop, err := property.NewProperty(property.CreatePropertyParams{
		ID:        DemoPropertyID,
		TenantID:  DemoTenantID,
		Name:      "Villa Kemang",
		City:      "Jakarta",
		MaxGuests: 4,
		Now:       now,
	})
	if err != nil {
		return fmt.Errorf("seed property: %w", err)
	}
	if err := unit.Properties().Save(ctx, prop); err != nil {
		return err
	}

	rate, err := money.New(DemoNightlyRate, currency)
	if err != nil {
		return fmt.Errorf("seed rate: %w", err)
	}
	for _, id := range []property.RoomID{DemoRoomID, DemoOtherRoomID} {
		room, err := property.NewRoom(property.CreateRoomParams{
			ID:         id,
			PropertyID: prop.ID,
			Name:       string(id),
			BasePrice:  rate,
			Capacity:   2,
			Now:        now,
		})
		if err != nil {
			return fmt.Errorf("seed room %s: %w", id, err)
		}
		if err := unit.Rooms().Save(ctx, room); err != nil {
			return err
		}
	}
	return unit.Commit(ctx)
}
