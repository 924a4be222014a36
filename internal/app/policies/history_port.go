package policies

import (
	"context"
	"time"
)

// HistoryEntry is one status change in a booking's audit trail.
type HistoryEntry struct {
	BookingID  string    `json:"booking_id"`
	EventID    string    `json:"event_id"`
	Event      string    `json:"event"`
	FromStatus string    `json:"from_status,omitempty"`
	ToStatus   string    `json:"to_status,omitempty"`
	Trigger    string    `json:"trigger,omitempty"`
	Reason     string    `json:"reason,omitempty"`
	At         time.Time `json:"at"`
}

type HistoryReader interface {
	History(ctx context.Context, bookingID string, limit int) ([]HistoryEntry, error)
}
