package support

import (
	"context"

	"staysane/internal/app/authz"
	"staysane/internal/app/uow"
	"staysane/internal/domain/property"
)

// OwnedRoom loads a room and its property and checks that the calling tenant
// manages it. Trusted callers without a principal skip the ownership check.
func OwnedRoom(ctx context.Context, unit uow.UnitOfWork, roomID property.RoomID) (*property.Room, *property.Property, error) {
	room, err := unit.Rooms().ByID(ctx, roomID)
	if err != nil {
		return nil, nil, err
	}
	prop, err := unit.Properties().ByID(ctx, room.PropertyID)
	if err != nil {
		return nil, nil, err
	}
	if p, ok := authz.FromContext(ctx); ok && !prop.OwnedBy(property.TenantID(p.UserID)) {
		return nil, nil, property.ErrPropertyNotOwned
	}
	return room, prop, nil
}
