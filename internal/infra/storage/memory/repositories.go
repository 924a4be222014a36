package memory

import (
	"context"
	"sort"
	"time"

	"cloud.google.com/go/civil"

	domainavailability "staysane/internal/domain/availability"
	domainbooking "staysane/internal/domain/booking"
	domainpricing "staysane/internal/domain/pricing"
	"staysane/internal/domain/property"
	"staysane/internal/domain/shared/daterange"
	"staysane/internal/domain/shared/events"
	"staysane/internal/domain/user"
)

// Every repository hands out and stores copies so callers never share state
// with the store or with other units.

type userRepo struct{ u *unit }

func (r userRepo) ByID(_ context.Context, id user.ID) (*user.User, error) {
	defer r.u.rlock()()
	found, ok := lookup(r.u.store.users, r.u.users, id)
	if !ok {
		return nil, user.ErrNotFound
	}
	clone := *found
	return &clone, nil
}

func (r userRepo) Save(_ context.Context, item *user.User) error {
	if err := r.u.writable(); err != nil {
		return err
	}
	clone := *item
	r.u.users[item.ID] = change[*user.User]{value: &clone}
	return nil
}

type propertyRepo struct{ u *unit }

func (r propertyRepo) ByID(_ context.Context, id property.ID) (*property.Property, error) {
	defer r.u.rlock()()
	found, ok := lookup(r.u.store.properties, r.u.properties, id)
	if !ok {
		return nil, property.ErrPropertyNotFound
	}
	clone := *found
	return &clone, nil
}

func (r propertyRepo) Save(_ context.Context, item *property.Property) error {
	if err := r.u.writable(); err != nil {
		return err
	}
	clone := *item
	r.u.properties[item.ID] = change[*property.Property]{value: &clone}
	return nil
}

type roomRepo struct{ u *unit }

func (r roomRepo) ByID(_ context.Context, id property.RoomID) (*property.Room, error) {
	defer r.u.rlock()()
	found, ok := lookup(r.u.store.rooms, r.u.rooms, id)
	if !ok {
		return nil, property.ErrRoomNotFound
	}
	clone := *found
	return &clone, nil
}

// ByIDForUpdate needs no extra locking: write units already run one at a time.
func (r roomRepo) ByIDForUpdate(ctx context.Context, id property.RoomID) (*property.Room, error) {
	if err := r.u.writable(); err != nil {
		return nil, err
	}
	return r.ByID(ctx, id)
}

func (r roomRepo) Save(_ context.Context, item *property.Room) error {
	if err := r.u.writable(); err != nil {
		return err
	}
	clone := *item
	r.u.rooms[item.ID] = change[*property.Room]{value: &clone}
	return nil
}

type blackoutRepo struct{ u *unit }

func (r blackoutRepo) InRange(_ context.Context, roomID property.RoomID, dr daterange.DateRange) ([]domainavailability.UnavailableDate, error) {
	defer r.u.rlock()()
	var out []domainavailability.UnavailableDate
	for _, d := range dr.Dates() {
		key := blackoutKey{room: roomID, date: d}
		if c, ok := r.u.blackouts[key]; ok {
			if !c.deleted {
				out = append(out, *c.value)
			}
			continue
		}
		if row, ok := r.u.store.blackouts[key]; ok {
			out = append(out, row)
		}
	}
	return out, nil
}

func (r blackoutRepo) Upsert(_ context.Context, rows []domainavailability.UnavailableDate) error {
	if err := r.u.writable(); err != nil {
		return err
	}
	for _, row := range rows {
		row := row
		r.u.blackouts[blackoutKey{room: row.RoomID, date: row.Date}] = change[*domainavailability.UnavailableDate]{value: &row}
	}
	return nil
}

func (r blackoutRepo) Delete(_ context.Context, roomID property.RoomID, dates []civil.Date) error {
	if err := r.u.writable(); err != nil {
		return err
	}
	for _, d := range dates {
		r.u.blackouts[blackoutKey{room: roomID, date: d}] = change[*domainavailability.UnavailableDate]{deleted: true}
	}
	return nil
}

type adjustmentRepo struct{ u *unit }

func (r adjustmentRepo) ByID(_ context.Context, id domainpricing.AdjustmentID) (*domainpricing.Adjustment, error) {
	defer r.u.rlock()()
	found, ok := lookup(r.u.store.adjustments, r.u.adjustments, id)
	if !ok {
		return nil, domainpricing.ErrAdjustmentNotFound
	}
	return cloneAdjustment(found), nil
}

func (r adjustmentRepo) ListByRoom(_ context.Context, roomID property.RoomID) ([]*domainpricing.Adjustment, error) {
	defer r.u.rlock()()
	var out []*domainpricing.Adjustment
	for _, a := range merged(r.u.store.adjustments, r.u.adjustments) {
		if a.RoomID == roomID {
			out = append(out, cloneAdjustment(a))
		}
	}
	domainpricing.SortByPrecedence(out)
	return out, nil
}

func (r adjustmentRepo) Save(_ context.Context, a *domainpricing.Adjustment) error {
	if err := r.u.writable(); err != nil {
		return err
	}
	r.u.adjustments[a.ID] = change[*domainpricing.Adjustment]{value: cloneAdjustment(a)}
	return nil
}

func (r adjustmentRepo) Delete(ctx context.Context, id domainpricing.AdjustmentID) error {
	if err := r.u.writable(); err != nil {
		return err
	}
	if _, err := r.ByID(ctx, id); err != nil {
		return err
	}
	r.u.adjustments[id] = change[*domainpricing.Adjustment]{deleted: true}
	return nil
}

func cloneAdjustment(a *domainpricing.Adjustment) *domainpricing.Adjustment {
	clone := *a
	clone.Dates = append([]civil.Date(nil), a.Dates...)
	return &clone
}

type bookingRepo struct{ u *unit }

func (r bookingRepo) ByID(_ context.Context, id domainbooking.BookingID) (*domainbooking.Booking, error) {
	defer r.u.rlock()()
	found, ok := lookup(r.u.store.bookings, r.u.bookings, id)
	if !ok {
		return nil, domainbooking.ErrBookingNotFound
	}
	return cloneBooking(found), nil
}

func (r bookingRepo) ByOrderCode(_ context.Context, code string) (*domainbooking.Booking, error) {
	found := r.filter(func(b *domainbooking.Booking) bool { return b.OrderCode == code })
	if len(found) == 0 {
		return nil, domainbooking.ErrBookingNotFound
	}
	return found[0], nil
}

// Insert refuses a second active booking over the same nights of a room, the
// in-memory counterpart of the exclusion constraint.
func (r bookingRepo) Insert(ctx context.Context, b *domainbooking.Booking) error {
	if err := r.u.writable(); err != nil {
		return err
	}
	if _, err := r.ByID(ctx, b.ID); err == nil {
		return domainbooking.ErrBookingConflict
	}
	if b.HoldsDates() {
		clash, err := r.ActiveOverlapping(ctx, b.RoomID, b.Range)
		if err != nil {
			return err
		}
		if len(clash) > 0 {
			return domainbooking.ErrBookingConflict
		}
	}
	b.Version = 1
	r.u.bookings[b.ID] = change[*domainbooking.Booking]{value: cloneBooking(b)}
	return nil
}

func (r bookingRepo) Save(ctx context.Context, b *domainbooking.Booking) error {
	if err := r.u.writable(); err != nil {
		return err
	}
	current, err := r.ByID(ctx, b.ID)
	if err != nil {
		return err
	}
	if current.Version != b.Version {
		return domainbooking.ErrBookingConflict
	}
	b.Version++
	r.u.bookings[b.ID] = change[*domainbooking.Booking]{value: cloneBooking(b)}
	return nil
}

func (r bookingRepo) ActiveOverlapping(_ context.Context, roomID property.RoomID, dr daterange.DateRange) ([]*domainbooking.Booking, error) {
	return r.filter(func(b *domainbooking.Booking) bool {
		return b.RoomID == roomID && b.HoldsDates() && b.Range.Overlaps(dr)
	}), nil
}

func (r bookingRepo) ListByGuest(_ context.Context, guestID user.ID) ([]*domainbooking.Booking, error) {
	out := r.filter(func(b *domainbooking.Booking) bool { return b.GuestID == guestID })
	sortNewestFirst(out)
	return out, nil
}

func (r bookingRepo) ListByTenant(_ context.Context, tenantID property.TenantID, statuses []domainbooking.Status) ([]*domainbooking.Booking, error) {
	allowed := make(map[domainbooking.Status]bool, len(statuses))
	for _, s := range statuses {
		allowed[s] = true
	}
	out := r.filter(func(b *domainbooking.Booking) bool {
		return b.TenantID == tenantID && (len(allowed) == 0 || allowed[b.Status])
	})
	sortNewestFirst(out)
	return out, nil
}

func (r bookingRepo) ListExpired(_ context.Context, now time.Time, limit int) ([]*domainbooking.Booking, error) {
	out := r.filter(func(b *domainbooking.Booking) bool {
		return b.Status == domainbooking.StatusWaitingPayment && !b.ExpiresAt.IsZero() && !b.ExpiresAt.After(now)
	})
	sort.Slice(out, func(i, j int) bool { return out[i].ExpiresAt.Before(out[j].ExpiresAt) })
	return truncate(out, limit), nil
}

func (r bookingRepo) ListCompletable(_ context.Context, today civil.Date, limit int) ([]*domainbooking.Booking, error) {
	out := r.filter(func(b *domainbooking.Booking) bool {
		return b.Status == domainbooking.StatusProcessing && !today.Before(b.Range.CheckOut)
	})
	sort.Slice(out, func(i, j int) bool { return out[i].Range.CheckOut.Before(out[j].Range.CheckOut) })
	return truncate(out, limit), nil
}

func (r bookingRepo) filter(keep func(b *domainbooking.Booking) bool) []*domainbooking.Booking {
	defer r.u.rlock()()
	var out []*domainbooking.Booking
	for _, b := range merged(r.u.store.bookings, r.u.bookings) {
		if keep(b) {
			out = append(out, cloneBooking(b))
		}
	}
	return out
}

func cloneBooking(b *domainbooking.Booking) *domainbooking.Booking {
	clone := *b
	clone.Nightly = append([]domainpricing.Night(nil), b.Nightly...)
	clone.EventRecorder = events.EventRecorder{}
	return &clone
}

func sortNewestFirst(items []*domainbooking.Booking) {
	sort.SliceStable(items, func(i, j int) bool {
		if !items[i].CreatedAt.Equal(items[j].CreatedAt) {
			return items[i].CreatedAt.After(items[j].CreatedAt)
		}
		return items[i].ID < items[j].ID
	})
}

func truncate(items []*domainbooking.Booking, limit int) []*domainbooking.Booking {
	if limit > 0 && len(items) > limit {
		return items[:limit]
	}
	return items
}
