// Package history projects booking events into a per-booking audit trail.
package history

import (
	"context"
	"encoding/json"
	"fmt"
	"log/slog"
	"strings"
	"time"

	"staysane/internal/app/policies"
)

// Store keeps projected entries. Append must be idempotent per EventID.
type Store interface {
	Append(ctx context.Context, entry policies.HistoryEntry) error
	policies.HistoryReader
}

// envelope is the CloudEvents wrapper written by the outbox relay.
type envelope struct {
	ID      string          `json:"id"`
	Type    string          `json:"type"`
	Subject string          `json:"subject"`
	Time    time.Time       `json:"time"`
	Data    json.RawMessage `json:"data"`
}

type eventData struct {
	BookingID string    `json:"booking_id"`
	From      string    `json:"from"`
	To        string    `json:"to"`
	Trigger   string    `json:"trigger"`
	Reason    string    `json:"reason"`
	At        time.Time `json:"at"`
}

type Projector struct {
	Store  Store
	Logger *slog.Logger
}

// Project records one booking event. Events of other aggregates are ignored.
func (p *Projector) Project(ctx context.Context, payload []byte) error {
	entry, ok, err := Decode(payload)
	if err != nil || !ok {
		return err
	}
	if err := p.Store.Append(ctx, entry); err != nil {
		return fmt.Errorf("history: append %s: %w", entry.EventID, err)
	}
	if p.Logger != nil {
		p.Logger.Debug("history entry projected", "booking_id", entry.BookingID, "event", entry.Event)
	}
	return nil
}

// Decode turns a relayed event into a history entry. ok is false for events
// that are not about a booking.
func Decode(payload []byte) (policies.HistoryEntry, bool, error) {
	var env envelope
	if err := json.Unmarshal(payload, &env); err != nil {
		return policies.HistoryEntry{}, false, fmt.Errorf("history: decode envelope: %w", err)
	}
	name := strings.TrimSuffix(env.Type, ".v1")
	if !strings.HasPrefix(name, "booking.") {
		return policies.HistoryEntry{}, false, nil
	}
	var data eventData
	if len(env.Data) > 0 {
		if err := json.Unmarshal(env.Data, &data); err != nil {
			return policies.HistoryEntry{}, false, fmt.Errorf("history: decode %s data: %w", name, err)
		}
	}
	entry := policies.HistoryEntry{
		BookingID:  data.BookingID,
		EventID:    env.ID,
		Event:      name,
		FromStatus: data.From,
		ToStatus:   data.To,
		Trigger:    data.Trigger,
		Reason:     data.Reason,
		At:         data.At.UTC(),
	}
	if entry.BookingID == "" {
		entry.BookingID = env.Subject
	}
	if entry.At.IsZero() {
		entry.At = env.Time.UTC()
	}
	if name == "booking.created" && entry.ToStatus == "" {
		entry.ToStatus = "WAITING_PAYMENT"
	}
	if entry.BookingID == "" || entry.EventID == "" {
		return policies.HistoryEntry{}, false, fmt.Errorf("history: %s event without booking or event id", name)
	}
	return entry, true, nil
}

// LocalProducer feeds relayed events straight into a projector. It stands in
// for the broker when no Kafka brokers are configured.
type LocalProducer struct {
	Projector *Projector
}

func (l LocalProducer) Publish(ctx context.Context, _ string, _ string, payload []byte, _ map[string]string) error {
	return l.Projector.Project(ctx, payload)
}
