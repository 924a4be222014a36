package mongo

import (
	"context"
	"errors"
	"fmt"
	"time"

	"cloud.google.com/go/civil"
	"github.com/shopspring/decimal"
	"go.mongodb.org/mongo-driver/bson"
	"go.mongodb.org/mongo-driver/bson/primitive"
	"go.mongodb.org/mongo-driver/mongo"
	"go.mongodb.org/mongo-driver/mongo/options"

	domainavailability "staysane/internal/domain/availability"
	domainpricing "staysane/internal/domain/pricing"
	"staysane/internal/domain/property"
	"staysane/internal/domain/shared/daterange"
	"staysane/internal/domain/shared/money"
	"staysane/internal/domain/user"
)

// Calendar dates are stored as YYYY-MM-DD strings, which sort like the dates.

type userRepo struct{ u *Unit }

type userDocument struct {
	ID        string    `bson:"_id"`
	Name      string    `bson:"name"`
	Email     string    `bson:"email"`
	Role      string    `bson:"role"`
	CreatedAt time.Time `bson:"created_at"`
}

func (r userRepo) ByID(ctx context.Context, id user.ID) (*user.User, error) {
	var doc userDocument
	if err := r.u.col(colUsers).FindOne(ctx, bson.M{"_id": string(id)}).Decode(&doc); err != nil {
		if errors.Is(err, mongo.ErrNoDocuments) {
			return nil, user.ErrNotFound
		}
		return nil, fmt.Errorf("get user: %w", err)
	}
	return &user.User{ID: user.ID(doc.ID), Name: doc.Name, Email: doc.Email, Role: user.Role(doc.Role), CreatedAt: doc.CreatedAt.UTC()}, nil
}

func (r userRepo) Save(ctx context.Context, item *user.User) error {
	if err := r.u.writable(); err != nil {
		return err
	}
	doc := userDocument{ID: string(item.ID), Name: item.Name, Email: item.Email, Role: string(item.Role), CreatedAt: item.CreatedAt.UTC()}
	_, err := r.u.col(colUsers).ReplaceOne(ctx, bson.M{"_id": doc.ID}, doc, options.Replace().SetUpsert(true))
	return mapError(err, nil)
}

type propertyRepo struct{ u *Unit }

type propertyDocument struct {
	ID        string    `bson:"_id"`
	TenantID  string    `bson:"tenant_id"`
	Name      string    `bson:"name"`
	City      string    `bson:"city"`
	MaxGuests int       `bson:"max_guests"`
	CreatedAt time.Time `bson:"created_at"`
	UpdatedAt time.Time `bson:"updated_at"`
}

func (r propertyRepo) ByID(ctx context.Context, id property.ID) (*property.Property, error) {
	var doc propertyDocument
	if err := r.u.col(colProperties).FindOne(ctx, bson.M{"_id": string(id)}).Decode(&doc); err != nil {
		if errors.Is(err, mongo.ErrNoDocuments) {
			return nil, property.ErrPropertyNotFound
		}
		return nil, fmt.Errorf("get property: %w", err)
	}
	return &property.Property{
		ID:        property.ID(doc.ID),
		TenantID:  property.TenantID(doc.TenantID),
		Name:      doc.Name,
		City:      doc.City,
		MaxGuests: doc.MaxGuests,
		CreatedAt: doc.CreatedAt.UTC(),
		UpdatedAt: doc.UpdatedAt.UTC(),
	}, nil
}

func (r propertyRepo) Save(ctx context.Context, p *property.Property) error {
	if err := r.u.writable(); err != nil {
		return err
	}
	doc := propertyDocument{
		ID:        string(p.ID),
		TenantID:  string(p.TenantID),
		Name:      p.Name,
		City:      p.City,
		MaxGuests: p.MaxGuests,
		CreatedAt: p.CreatedAt.UTC(),
		UpdatedAt: p.UpdatedAt.UTC(),
	}
	_, err := r.u.col(colProperties).ReplaceOne(ctx, bson.M{"_id": doc.ID}, doc, options.Replace().SetUpsert(true))
	return mapError(err, nil)
}

type roomRepo struct{ u *Unit }

type roomDocument struct {
	ID          string    `bson:"_id"`
	PropertyID  string    `bson:"property_id"`
	Name        string    `bson:"name"`
	BasePrice   int64     `bson:"base_price"`
	Currency    string    `bson:"currency"`
	Capacity    int       `bson:"capacity"`
	LockVersion int64     `bson:"lock_version"`
	CreatedAt   time.Time `bson:"created_at"`
	UpdatedAt   time.Time `bson:"updated_at"`
}

func (r roomRepo) ByID(ctx context.Context, id property.RoomID) (*property.Room, error) {
	var doc roomDocument
	if err := r.u.col(colRooms).FindOne(ctx, bson.M{"_id": string(id)}).Decode(&doc); err != nil {
		if errors.Is(err, mongo.ErrNoDocuments) {
			return nil, property.ErrRoomNotFound
		}
		return nil, fmt.Errorf("get room: %w", err)
	}
	return doc.toRoom(), nil
}

// ByIDForUpdate bumps the room's lock_version inside the transaction, so a
// second transaction writing the same room fails with a write conflict.
func (r roomRepo) ByIDForUpdate(ctx context.Context, id property.RoomID) (*property.Room, error) {
	if err := r.u.writable(); err != nil {
		return nil, err
	}
	var doc roomDocument
	err := r.u.col(colRooms).FindOneAndUpdate(ctx,
		bson.M{"_id": string(id)},
		bson.M{"$inc": bson.M{"lock_version": 1}},
		options.FindOneAndUpdate().SetReturnDocument(options.After),
	).Decode(&doc)
	if err != nil {
		if errors.Is(err, mongo.ErrNoDocuments) {
			return nil, property.ErrRoomNotFound
		}
		return nil, mapError(fmt.Errorf("lock room: %w", err), nil)
	}
	return doc.toRoom(), nil
}

func (r roomRepo) Save(ctx context.Context, room *property.Room) error {
	if err := r.u.writable(); err != nil {
		return err
	}
	set := bson.M{
		"property_id": string(room.PropertyID),
		"name":        room.Name,
		"base_price":  room.BasePrice.Amount,
		"currency":    room.BasePrice.Currency,
		"capacity":    room.Capacity,
		"created_at":  room.CreatedAt.UTC(),
		"updated_at":  room.UpdatedAt.UTC(),
	}
	_, err := r.u.col(colRooms).UpdateByID(ctx, string(room.ID), bson.M{"$set": set}, options.Update().SetUpsert(true))
	return mapError(err, nil)
}

func (d roomDocument) toRoom() *property.Room {
	return &property.Room{
		ID:         property.RoomID(d.ID),
		PropertyID: property.ID(d.PropertyID),
		Name:       d.Name,
		BasePrice:  money.Money{Amount: d.BasePrice, Currency: d.Currency},
		Capacity:   d.Capacity,
		CreatedAt:  d.CreatedAt.UTC(),
		UpdatedAt:  d.UpdatedAt.UTC(),
	}
}

type blackoutRepo struct{ u *Unit }

type blackoutDocument struct {
	ID          string    `bson:"_id"`
	RoomID      string    `bson:"room_id"`
	Date        string    `bson:"date"`
	IsAvailable bool      `bson:"is_available"`
	UpdatedAt   time.Time `bson:"updated_at"`
}

func blackoutID(roomID property.RoomID, d civil.Date) string {
	return string(roomID) + "|" + d.String()
}

func (r blackoutRepo) InRange(ctx context.Context, roomID property.RoomID, dr daterange.DateRange) ([]domainavailability.UnavailableDate, error) {
	filter := bson.M{
		"room_id": string(roomID),
		"date":    bson.M{"$gte": dr.CheckIn.String(), "$lt": dr.CheckOut.String()},
	}
	cur, err := r.u.col(colBlackouts).Find(ctx, filter, options.Find().SetSort(bson.D{{Key: "date", Value: 1}}))
	if err != nil {
		return nil, fmt.Errorf("list blackouts: %w", err)
	}
	var docs []blackoutDocument
	if err := cur.All(ctx, &docs); err != nil {
		return nil, fmt.Errorf("decode blackouts: %w", err)
	}
	out := make([]domainavailability.UnavailableDate, 0, len(docs))
	for _, doc := range docs {
		d, err := civil.ParseDate(doc.Date)
		if err != nil {
			return nil, fmt.Errorf("blackout %s: %w", doc.ID, err)
		}
		out = append(out, domainavailability.UnavailableDate{
			RoomID:      property.RoomID(doc.RoomID),
			Date:        d,
			IsAvailable: doc.IsAvailable,
			UpdatedAt:   doc.UpdatedAt.UTC(),
		})
	}
	return out, nil
}

func (r blackoutRepo) Upsert(ctx context.Context, rows []domainavailability.UnavailableDate) error {
	if err := r.u.writable(); err != nil {
		return err
	}
	if len(rows) == 0 {
		return nil
	}
	models := make([]mongo.WriteModel, 0, len(rows))
	for _, row := range rows {
		doc := blackoutDocument{
			ID:          blackoutID(row.RoomID, row.Date),
			RoomID:      string(row.RoomID),
			Date:        row.Date.String(),
			IsAvailable: row.IsAvailable,
			UpdatedAt:   row.UpdatedAt.UTC(),
		}
		models = append(models, mongo.NewReplaceOneModel().SetFilter(bson.M{"_id": doc.ID}).SetReplacement(doc).SetUpsert(true))
	}
	_, err := r.u.col(colBlackouts).BulkWrite(ctx, models)
	return mapError(err, nil)
}

func (r blackoutRepo) Delete(ctx context.Context, roomID property.RoomID, dates []civil.Date) error {
	if err := r.u.writable(); err != nil {
		return err
	}
	if len(dates) == 0 {
		return nil
	}
	ids := make([]string, 0, len(dates))
	for _, d := range dates {
		ids = append(ids, blackoutID(roomID, d))
	}
	_, err := r.u.col(colBlackouts).DeleteMany(ctx, bson.M{"_id": bson.M{"$in": ids}})
	return mapError(err, nil)
}

type adjustmentRepo struct{ u *Unit }

type adjustmentDocument struct {
	ID            string               `bson:"_id"`
	RoomID        string               `bson:"room_id"`
	Title         string               `bson:"title"`
	Start         string               `bson:"start"`
	End           string               `bson:"end"`
	Kind          string               `bson:"kind"`
	Value         primitive.Decimal128 `bson:"value"`
	ApplyAllDates bool                 `bson:"apply_all_dates"`
	Dates         []string             `bson:"dates"`
	Priority      int                  `bson:"priority"`
	CreatedAt     time.Time            `bson:"created_at"`
	UpdatedAt     time.Time            `bson:"updated_at"`
}

func (r adjustmentRepo) ByID(ctx context.Context, id domainpricing.AdjustmentID) (*domainpricing.Adjustment, error) {
	var doc adjustmentDocument
	if err := r.u.col(colAdjustments).FindOne(ctx, bson.M{"_id": string(id)}).Decode(&doc); err != nil {
		if errors.Is(err, mongo.ErrNoDocuments) {
			return nil, domainpricing.ErrAdjustmentNotFound
		}
		return nil, fmt.Errorf("get adjustment: %w", err)
	}
	return doc.toAdjustment()
}

func (r adjustmentRepo) ListByRoom(ctx context.Context, roomID property.RoomID) ([]*domainpricing.Adjustment, error) {
	cur, err := r.u.col(colAdjustments).Find(ctx, bson.M{"room_id": string(roomID)})
	if err != nil {
		return nil, fmt.Errorf("list adjustments: %w", err)
	}
	var docs []adjustmentDocument
	if err := cur.All(ctx, &docs); err != nil {
		return nil, fmt.Errorf("decode adjustments: %w", err)
	}
	out := make([]*domainpricing.Adjustment, 0, len(docs))
	for _, doc := range docs {
		a, err := doc.toAdjustment()
		if err != nil {
			return nil, err
		}
		out = append(out, a)
	}
	domainpricing.SortByPrecedence(out)
	return out, nil
}

func (r adjustmentRepo) Save(ctx context.Context, a *domainpricing.Adjustment) error {
	if err := r.u.writable(); err != nil {
		return err
	}
	doc, err := newAdjustmentDocument(a)
	if err != nil {
		return err
	}
	_, err = r.u.col(colAdjustments).ReplaceOne(ctx, bson.M{"_id": doc.ID}, doc, options.Replace().SetUpsert(true))
	return mapError(err, nil)
}

func (r adjustmentRepo) Delete(ctx context.Context, id domainpricing.AdjustmentID) error {
	if err := r.u.writable(); err != nil {
		return err
	}
	res, err := r.u.col(colAdjustments).DeleteOne(ctx, bson.M{"_id": string(id)})
	if err != nil {
		return mapError(err, nil)
	}
	if res.DeletedCount == 0 {
		return domainpricing.ErrAdjustmentNotFound
	}
	return nil
}

func newAdjustmentDocument(a *domainpricing.Adjustment) (adjustmentDocument, error) {
	value, err := primitive.ParseDecimal128(a.Value.String())
	if err != nil {
		return adjustmentDocument{}, fmt.Errorf("adjustment %s value: %w", a.ID, err)
	}
	dates := make([]string, 0, len(a.Dates))
	for _, d := range a.Dates {
		dates = append(dates, d.String())
	}
	return adjustmentDocument{
		ID:            string(a.ID),
		RoomID:        string(a.RoomID),
		Title:         a.Title,
		Start:         a.Start.String(),
		End:           a.End.String(),
		Kind:          string(a.Kind),
		Value:         value,
		ApplyAllDates: a.ApplyAllDates,
		Dates:         dates,
		Priority:      a.Priority,
		CreatedAt:     a.CreatedAt.UTC(),
		UpdatedAt:     a.UpdatedAt.UTC(),
	}, nil
}

func (d adjustmentDocument) toAdjustment() (*domainpricing.Adjustment, error) {
	value, err := decimal.NewFromString(d.Value.String())
	if err != nil {
		return nil, fmt.Errorf("adjustment %s value: %w", d.ID, err)
	}
	start, err := civil.ParseDate(d.Start)
	if err != nil {
		return nil, fmt.Errorf("adjustment %s start: %w", d.ID, err)
	}
	end, err := civil.ParseDate(d.End)
	if err != nil {
		return nil, fmt.Errorf("adjustment %s end: %w", d.ID, err)
	}
	a := &domainpricing.Adjustment{
		ID:            domainpricing.AdjustmentID(d.ID),
		RoomID:        property.RoomID(d.RoomID),
		Title:         d.Title,
		Start:         start,
		End:           end,
		Kind:          domainpricing.Kind(d.Kind),
		Value:         value,
		ApplyAllDates: d.ApplyAllDates,
		Priority:      d.Priority,
		CreatedAt:     d.CreatedAt.UTC(),
		UpdatedAt:     d.UpdatedAt.UTC(),
	}
	for _, raw := range d.Dates {
		day, err := civil.ParseDate(raw)
		if err != nil {
			return nil, fmt.Errorf("adjustment %s date: %w", d.ID, err)
		}
		a.Dates = append(a.Dates, day)
	}
	return a, nil
}
