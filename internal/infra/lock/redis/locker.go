// Package redislock implements the advisory per-room lock on Redis.
package redislock

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/google/uuid"
	"github.com/redis/go-redis/v9"

	"staysane/internal/app/policies"
	"staysane/internal/domain/property"
)

const keyPrefix = "staysane:lock:room:"

// Deletes the key only while it still holds our token.
var releaseScript = redis.NewScript(`
if redis.call("GET", KEYS[1]) == ARGV[1] then
	return redis.call("DEL", KEYS[1])
end
return 0
`)

type Locker struct {
	client *redis.Client
	ttl    time.Duration
	wait   time.Duration
	retry  time.Duration
}

// NewClient creates a Redis client from connection settings.
func NewClient(addr, password string, db int) *redis.Client {
	return redis.NewClient(&redis.Options{
		Addr:     addr,
		Password: password,
		DB:       db,
	})
}

// NewLocker holds each lock for at most ttl and waits up to wait for a busy
// room before giving up with policies.ErrRoomLocked.
func NewLocker(client *redis.Client, ttl, wait time.Duration) *Locker {
	if ttl <= 0 {
		ttl = 10 * time.Second
	}
	if wait < 0 {
		wait = 0
	}
	return &Locker{client: client, ttl: ttl, wait: wait, retry: 25 * time.Millisecond}
}

func (l *Locker) LockRoom(ctx context.Context, roomID property.RoomID) (policies.Unlock, error) {
	if l.client == nil {
		return nil, errors.New("redislock: client is nil")
	}
	key := keyPrefix + string(roomID)
	token := uuid.NewString()
	deadline := time.Now().Add(l.wait)
	for {
		ok, err := l.client.SetNX(ctx, key, token, l.ttl).Result()
		if err != nil {
			return nil, fmt.Errorf("redislock: acquire %s: %w", roomID, err)
		}
		if ok {
			return l.unlocker(key, token), nil
		}
		if !time.Now().Before(deadline) {
			return nil, fmt.Errorf("%w: %s", policies.ErrRoomLocked, roomID)
		}
		select {
		case <-ctx.Done():
			return nil, ctx.Err()
		case <-time.After(l.retry):
		}
	}
}

func (l *Locker) unlocker(key, token string) policies.Unlock {
	return func(ctx context.Context) error {
		if err := releaseScript.Run(ctx, l.client, []string{key}, token).Err(); err != nil && !errors.Is(err, redis.Nil) {
			return fmt.Errorf("redislock: release %s: %w", key, err)
		}
		return nil
	}
}

// Ping is used by readiness checks.
func (l *Locker) Ping(ctx context.Context) error {
	return l.client.Ping(ctx).Err()
}

var _ policies.RoomLocker = (*Locker)(nil)
