package postgres

import (
	"context"
	"errors"
	"fmt"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"

	"staysane/internal/app/middleware"
	"staysane/internal/infra/inbox"
)

// IdempotencyStore keeps command results in idempotency_keys.
type IdempotencyStore struct {
	pool *pgxpool.Pool
}

func NewIdempotencyStore(pool *pgxpool.Pool) *IdempotencyStore {
	return &IdempotencyStore{pool: pool}
}

func (s *IdempotencyStore) Get(ctx context.Context, key string) (middleware.IdempotencyRecord, bool, error) {
	rec := middleware.IdempotencyRecord{Key: key}
	err := s.pool.QueryRow(ctx, `SELECT payload, occurred_at FROM idempotency_keys WHERE key = $1`, key).
		Scan(&rec.Payload, &rec.OccurredAt)
	if errors.Is(err, pgx.ErrNoRows) {
		return middleware.IdempotencyRecord{}, false, nil
	}
	if err != nil {
		return middleware.IdempotencyRecord{}, false, fmt.Errorf("get idempotency record: %w", err)
	}
	return rec, true, nil
}

// Save keeps the first record stored under a key.
func (s *IdempotencyStore) Save(ctx context.Context, rec middleware.IdempotencyRecord) error {
	const stmt = `
INSERT INTO idempotency_keys (key, payload, occurred_at)
VALUES ($1, $2, $3)
ON CONFLICT (key) DO NOTHING`
	if _, err := s.pool.Exec(ctx, stmt, rec.Key, rec.Payload, rec.OccurredAt.UTC()); err != nil {
		return fmt.Errorf("save idempotency record: %w", err)
	}
	return nil
}

// InboxStore remembers handled broker messages per consumer in inbox_events.
type InboxStore struct {
	pool     *pgxpool.Pool
	consumer string
}

func NewInboxStore(pool *pgxpool.Pool, consumer string) *InboxStore {
	return &InboxStore{pool: pool, consumer: consumer}
}

func (s *InboxStore) Seen(ctx context.Context, eventID string) (bool, error) {
	const stmt = `INSERT INTO inbox_events (consumer, event_id) VALUES ($1, $2) ON CONFLICT DO NOTHING`
	tag, err := s.pool.Exec(ctx, stmt, s.consumer, eventID)
	if err != nil {
		return false, fmt.Errorf("record inbox event: %w", err)
	}
	return tag.RowsAffected() == 0, nil
}

func (s *InboxStore) Forget(ctx context.Context, eventID string) error {
	_, err := s.pool.Exec(ctx, `DELETE FROM inbox_events WHERE consumer = $1 AND event_id = $2`, s.consumer, eventID)
	return err
}

var (
	_ middleware.IdempotencyStore = (*IdempotencyStore)(nil)
	_ inbox.Store                 = (*InboxStore)(nil)
)
