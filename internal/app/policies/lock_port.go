package policies

import (
	"context"

	"staysane/internal/domain/property"
	"staysane/internal/domain/shared/errs"
)

var ErrRoomLocked = errs.Conflict("locks: room is held by another request")

// Unlock releases a lock taken by RoomLocker.
type Unlock func(ctx context.Context) error

// RoomLocker serializes booking attempts per room across processes. It sits
// in front of the store's own locking and is not relied on for correctness.
type RoomLocker interface {
	LockRoom(ctx context.Context, roomID property.RoomID) (Unlock, error)
}

type NoopLocker struct{}

func (NoopLocker) LockRoom(context.Context, property.RoomID) (Unlock, error) {
	return func(context.Context) error { return nil }, nil
}
