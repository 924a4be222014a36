package memory

import (
	"context"
	"time"

	appoutbox "staysane/internal/app/outbox"
	"staysane/internal/app/uow"
	infraoutbox "staysane/internal/infra/outbox"
)

type outboxEntry struct {
	record    appoutbox.EventRecord
	state     string
	attempts  int
	next      time.Time
	claimedBy string
	lastError string
}

func newOutboxEntry(rec appoutbox.EventRecord) *outboxEntry {
	return &outboxEntry{record: rec, state: infraoutbox.StateNew, next: time.Now().UTC()}
}

// Add stages the record in the write unit carried by ctx, or stores it
// directly when there is none.
func (s *Store) Add(ctx context.Context, record appoutbox.EventRecord) error {
	if current, ok := uow.FromContext(ctx); ok {
		if u, ok := current.(*unit); ok && u.store == s {
			if err := u.writable(); err != nil {
				return err
			}
			u.events = append(u.events, record)
			return nil
		}
	}
	s.mu.Lock()
	s.events = append(s.events, newOutboxEntry(record))
	s.mu.Unlock()
	return nil
}

// Flush wakes the relay without blocking.
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

func (s *Store) Claim(_ context.Context, workerID string) (*infraoutbox.Record, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	now := time.Now().UTC()
	for _, e := range s.events {
		if (e.state != infraoutbox.StateNew && e.state != infraoutbox.StateFailed) || e.next.After(now) {
			continue
		}
		e.state = infraoutbox.StateClaimed
		e.claimedBy = workerID
		return &infraoutbox.Record{
			ID:         e.record.ID,
			Name:       e.record.Name,
			Payload:    append([]byte(nil), e.record.Payload...),
			OccurredAt: e.record.OccurredAt,
			Aggregate:  e.record.Aggregate,
			Headers:    copyHeaders(e.record.Headers),
			Attempts:   e.attempts,
		}, nil
	}
	return nil, nil
}

func (s *Store) MarkSent(_ context.Context, id string) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	kept := s.events[:0]
	for _, e := range s.events {
		if e.record.ID != id {
			kept = append(kept, e)
		}
	}
	s.events = kept
	return nil
}

func (s *Store) MarkFailed(_ context.Context, id string, next time.Time, errMsg string) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	for _, e := range s.events {
		if e.record.ID == id {
			e.state = infraoutbox.StateFailed
			e.attempts++
			e.next = next
			e.lastError = errMsg
		}
	}
	return nil
}

// Pending returns the records not yet published, oldest first.
func (s *Store) Pending() []appoutbox.EventRecord {
	s.mu.RLock()
	defer s.mu.RUnlock()
	out := make([]appoutbox.EventRecord, 0, len(s.events))
	for _, e := range s.events {
		out = append(out, e.record)
	}
	return out
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
