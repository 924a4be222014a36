package mongo

import (
	"context"
	"errors"
	"fmt"
	"time"

	"go.mongodb.org/mongo-driver/bson"
	"go.mongodb.org/mongo-driver/mongo"
	"go.mongodb.org/mongo-driver/mongo/options"

	appoutbox "staysane/internal/app/outbox"
	infraoutbox "staysane/internal/infra/outbox"
)

// ClaimTimeout is how long a claimed record may stay unacknowledged before
// another worker takes it over.
const ClaimTimeout = 5 * time.Minute

type outboxDocument struct {
	ID            string            `bson:"_id"`
	Name          string            `bson:"name"`
	Aggregate     string            `bson:"aggregate"`
	Payload       []byte            `bson:"payload"`
	Headers       map[string]string `bson:"headers"`
	OccurredAt    time.Time         `bson:"occurred_at"`
	State         string            `bson:"state"`
	Attempts      int               `bson:"attempts"`
	NextAttemptAt time.Time         `bson:"next_attempt_at"`
	ClaimedBy     string            `bson:"claimed_by,omitempty"`
	ClaimedAt     *time.Time        `bson:"claimed_at,omitempty"`
	LastError     string            `bson:"last_error,omitempty"`
}

// Add inserts the record. A ctx from a unit of work carries the session, so
// the insert commits or aborts with the unit's writes.
func (f *Factory) Add(ctx context.Context, record appoutbox.EventRecord) error {
	headers := make(map[string]string, len(record.Headers))
	for k, v := range record.Headers {
		headers[k] = v
	}
	doc := outboxDocument{
		ID:            record.ID,
		Name:          record.Name,
		Aggregate:     record.Aggregate,
		Payload:       record.Payload,
		Headers:       headers,
		OccurredAt:    record.OccurredAt.UTC(),
		State:         infraoutbox.StateNew,
		NextAttemptAt: time.Now().UTC(),
	}
	_, err := f.DB.Collection(colOutbox).InsertOne(ctx, doc)
	return mapError(err, nil)
}

func (f *Factory) Flush(context.Context) error {
	select {
	case f.wake <- struct{}{}:
	default:
	}
	return nil
}

func (f *Factory) Wake() <-chan struct{} {
	return f.wake
}

func (f *Factory) Claim(ctx context.Context, workerID string) (*infraoutbox.Record, error) {
	now := time.Now().UTC()
	filter := bson.M{"$or": bson.A{
		bson.M{"state": bson.M{"$in": bson.A{infraoutbox.StateNew, infraoutbox.StateFailed}}, "next_attempt_at": bson.M{"$lte": now}},
		bson.M{"state": infraoutbox.StateClaimed, "claimed_at": bson.M{"$lt": now.Add(-ClaimTimeout)}},
	}}
	update := bson.M{"$set": bson.M{"state": infraoutbox.StateClaimed, "claimed_by": workerID, "claimed_at": now}}
	opts := options.FindOneAndUpdate().
		SetSort(bson.D{{Key: "occurred_at", Value: 1}, {Key: "_id", Value: 1}}).
		SetReturnDocument(options.After)
	var doc outboxDocument
	err := f.DB.Collection(colOutbox).FindOneAndUpdate(ctx, filter, update, opts).Decode(&doc)
	if errors.Is(err, mongo.ErrNoDocuments) {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("claim outbox record: %w", err)
	}
	if doc.Headers == nil {
		doc.Headers = map[string]string{}
	}
	return &infraoutbox.Record{
		ID:         doc.ID,
		Name:       doc.Name,
		Payload:    doc.Payload,
		OccurredAt: doc.OccurredAt.UTC(),
		Aggregate:  doc.Aggregate,
		Headers:    doc.Headers,
		Attempts:   doc.Attempts,
	}, nil
}

func (f *Factory) MarkSent(ctx context.Context, id string) error {
	update := bson.M{
		"$set":   bson.M{"state": infraoutbox.StateSent, "sent_at": time.Now().UTC()},
		"$unset": bson.M{"last_error": ""},
	}
	_, err := f.DB.Collection(colOutbox).UpdateByID(ctx, id, update)
	return err
}

func (f *Factory) MarkFailed(ctx context.Context, id string, next time.Time, errMsg string) error {
	update := bson.M{
		"$set": bson.M{"state": infraoutbox.StateFailed, "next_attempt_at": next.UTC(), "last_error": errMsg},
		"$inc": bson.M{"attempts": 1},
	}
	_, err := f.DB.Collection(colOutbox).UpdateByID(ctx, id, update)
	return err
}

var (
	_ appoutbox.Outbox  = (*Factory)(nil)
	_ infraoutbox.Store = (*Factory)(nil)
)
