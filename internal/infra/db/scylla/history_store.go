package scylla

import (
	"context"
	"errors"
	"log/slog"
	"strings"

	"github.com/gocql/gocql"

	"staysane/internal/app/policies"
)

const maxHistoryRows = 500

// HistoryStore keeps the booking audit trail, one partition per booking.
// Re-inserting an event overwrites the same row.
type HistoryStore struct {
	session *gocql.Session
	logger  *slog.Logger
}

func NewHistoryStore(session *gocql.Session, logger *slog.Logger) *HistoryStore {
	return &HistoryStore{session: session, logger: logger}
}

func (s *HistoryStore) Append(ctx context.Context, e policies.HistoryEntry) error {
	if s.session == nil {
		return errors.New("scylla session not initialized")
	}
	return s.session.
		Query(`INSERT INTO booking_history (booking_id, at, event_id, event, from_status, to_status, trigger, reason) VALUES (?, ?, ?, ?, ?, ?, ?, ?)`,
			e.BookingID, e.At.UTC(), e.EventID, e.Event, e.FromStatus, e.ToStatus, e.Trigger, e.Reason).
		WithContext(ctx).
		Consistency(gocql.Quorum).
		Exec()
}

func (s *HistoryStore) History(ctx context.Context, bookingID string, limit int) ([]policies.HistoryEntry, error) {
	if s.session == nil {
		return nil, errors.New("scylla session not initialized")
	}
	if limit <= 0 || limit > maxHistoryRows {
		limit = maxHistoryRows
	}
	iter := s.session.
		Query(`SELECT booking_id, at, event_id, event, from_status, to_status, trigger, reason FROM booking_history WHERE booking_id = ? LIMIT ?`,
			strings.TrimSpace(bookingID), limit).
		WithContext(ctx).
		Consistency(gocql.One).
		Iter()

	var (
		row     policies.HistoryEntry
		entries = make([]policies.HistoryEntry, 0)
	)
	for iter.Scan(&row.BookingID, &row.At, &row.EventID, &row.Event, &row.FromStatus, &row.ToStatus, &row.Trigger, &row.Reason) {
		row.At = row.At.UTC()
		entries = append(entries, row)
	}
	if err := iter.Close(); err != nil {
		return nil, err
	}
	return entries, nil
}

// Ping runs a trivial query for readiness checks.
func (s *HistoryStore) Ping(ctx context.Context) error {
	return s.session.Query(`SELECT now() FROM system.local`).WithContext(ctx).Exec()
}
