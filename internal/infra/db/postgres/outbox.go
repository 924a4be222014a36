package postgres

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"github.com/jackc/pgx/v5"

	appoutbox "staysane/internal/app/outbox"
	"staysane/internal/app/uow"
	infraoutbox "staysane/internal/infra/outbox"
)

// ClaimTimeout is how long a claimed record may stay unacknowledged before
// another worker takes it over.
const ClaimTimeout = 5 * time.Minute

// Add inserts the record inside the unit carried by ctx, or on its own when
// there is none.
func (s *Store) Add(ctx context.Context, record appoutbox.EventRecord) error {
	headers, err := json.Marshal(copyHeaders(record.Headers))
	if err != nil {
		return fmt.Errorf("encode outbox headers: %w", err)
	}
	const stmt = `
INSERT INTO outbox_events (id, name, aggregate, payload, headers, occurred_at)
VALUES ($1, $2, $3, $4, $5, $6)`
	args := []any{record.ID, record.Name, record.Aggregate, record.Payload, headers, record.OccurredAt.UTC()}
	if current, ok := uow.FromContext(ctx); ok {
		if u, ok := current.(*unit); ok && u.store == s {
			if err := u.writable(); err != nil {
				return err
			}
			_, err = u.tx.Exec(ctx, stmt, args...)
			return mapError(err, nil)
		}
	}
	_, err = s.pool.Exec(ctx, stmt, args...)
	return err
}

// Flush wakes the relay of this process without blocking.
func (s *Store) Flush(context.Context) error {
	select {
	case s.wake <- struct{}{}:
	default:
	}
	return nil
}

func (s *Store) Wake() <-chan struct{} {
	return s.wake
}

// Claim takes the oldest due record. Concurrent workers skip each other's
// rows, and a claim older than ClaimTimeout is treated as abandoned.
func (s *Store) Claim(ctx context.Context, workerID string) (*infraoutbox.Record, error) {
	const stmt = `
UPDATE outbox_events SET state = $1, claimed_by = $2, claimed_at = NOW()
WHERE id = (
	SELECT id FROM outbox_events
	WHERE (state IN ($3, $4) AND next_attempt_at <= NOW())
	   OR (state = $1 AND claimed_at < $5)
	ORDER BY seq
	LIMIT 1
	FOR UPDATE SKIP LOCKED
)
RETURNING id, name, payload, occurred_at, aggregate, headers, attempts`
	var (
		rec     infraoutbox.Record
		headers []byte
	)
	err := s.pool.QueryRow(ctx, stmt,
		infraoutbox.StateClaimed, workerID, infraoutbox.StateNew, infraoutbox.StateFailed,
		time.Now().UTC().Add(-ClaimTimeout),
	).Scan(&rec.ID, &rec.Name, &rec.Payload, &rec.OccurredAt, &rec.Aggregate, &headers, &rec.Attempts)
	if errors.Is(err, pgx.ErrNoRows) {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("claim outbox record: %w", err)
	}
	rec.Headers = map[string]string{}
	if len(headers) > 0 {
		if err := json.Unmarshal(headers, &rec.Headers); err != nil {
			return nil, fmt.Errorf("decode outbox headers of %s: %w", rec.ID, err)
		}
	}
	return &rec, nil
}

func (s *Store) MarkSent(ctx context.Context, id string) error {
	const stmt = `UPDATE outbox_events SET state = $2, sent_at = NOW(), last_error = '' WHERE id = $1`
	if _, err := s.pool.Exec(ctx, stmt, id, infraoutbox.StateSent); err != nil {
		return fmt.Errorf("mark outbox record sent: %w", err)
	}
	return nil
}

func (s *Store) MarkFailed(ctx context.Context, id string, next time.Time, errMsg string) error {
	const stmt = `
UPDATE outbox_events SET state = $2, attempts = attempts + 1, next_attempt_at = $3, last_error = $4, claimed_by = ''
WHERE id = $1`
	if _, err := s.pool.Exec(ctx, stmt, id, infraoutbox.StateFailed, next.UTC(), errMsg); err != nil {
		return fmt.Errorf("mark outbox record failed: %w", err)
	}
	return nil
}

// PendingCount reports the records not yet published.
func (s *Store) PendingCount(ctx context.Context) (int, error) {
	var n int
	err := s.pool.QueryRow(ctx, `SELECT COUNT(*) FROM outbox_events WHERE state <> $1`, infraoutbox.StateSent).Scan(&n)
	return n, err
}

func copyHeaders(in map[string]string) map[string]string {
	out := make(map[string]string, len(in))
	for k, v := range in {
		out[k] = v
	}
	return out
}

var (
	_ appoutbox.Outbox  = (*Store)(nil)
	_ infraoutbox.Store = (*Store)(nil)
)
