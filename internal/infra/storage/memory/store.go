// Package memory keeps every aggregate in process memory. Write units are
// serialised and stage their changes until commit, which gives the same
// isolation the booking flow relies on from a relational store.
package memory

import (
	"context"
	"errors"
	"sync"

	"cloud.google.com/go/civil"

	"staysane/internal/app/outbox"
	"staysane/internal/app/uow"
	domainavailability "staysane/internal/domain/availability"
	domainbooking "staysane/internal/domain/booking"
	domainpricing "staysane/internal/domain/pricing"
	"staysane/internal/domain/property"
	"staysane/internal/domain/user"
)

var (
	ErrReadOnly     = errors.New("memory: write in read-only unit of work")
	ErrUnitFinished = errors.New("memory: unit of work already finished")
)

type blackoutKey struct {
	room property.RoomID
	date civil.Date
}

// Store is the shared state behind every unit of work it hands out.
type Store struct {
	mu          sync.RWMutex
	users       map[user.ID]*user.User
	properties  map[property.ID]*property.Property
	rooms       map[property.RoomID]*property.Room
	blackouts   map[blackoutKey]domainavailability.UnavailableDate
	adjustments map[domainpricing.AdjustmentID]*domainpricing.Adjustment
	bookings    map[domainbooking.BookingID]*domainbooking.Booking
	events      []*outboxEntry

	writer chan struct{}
	wake   chan struct{}
}

func NewStore() *Store {
	return &Store{
		users:       make(map[user.ID]*user.User),
		properties:  make(map[property.ID]*property.Property),
		rooms:       make(map[property.RoomID]*property.Room),
		blackouts:   make(map[blackoutKey]domainavailability.UnavailableDate),
		adjustments: make(map[domainpricing.AdjustmentID]*domainpricing.Adjustment),
		bookings:    make(map[domainbooking.BookingID]*domainbooking.Booking),
		writer:      make(chan struct{}, 1),
		wake:        make(chan struct{}, 1),
	}
}

// Begin opens a unit. Write units wait for the previous writer to finish.
func (s *Store) Begin(ctx context.Context, opts uow.TxOptions) (uow.UnitOfWork, error) {
	if opts.ReadOnly {
		return &unit{store: s, readOnly: true}, nil
	}
	select {
	case s.writer <- struct{}{}:
	case <-ctx.Done():
		return nil, ctx.Err()
	}
	return &unit{
		store:       s,
		users:       make(map[user.ID]change[*user.User]),
		properties:  make(map[property.ID]change[*property.Property]),
		rooms:       make(map[property.RoomID]change[*property.Room]),
		blackouts:   make(map[blackoutKey]change[*domainavailability.UnavailableDate]),
		adjustments: make(map[domainpricing.AdjustmentID]change[*domainpricing.Adjustment]),
		bookings:    make(map[domainbooking.BookingID]change[*domainbooking.Booking]),
	}, nil
}

// change is a staged write; deleted marks a removal.
type change[V any] struct {
	value   V
	deleted bool
}

func lookup[K comparable, V any](committed map[K]V, staged map[K]change[V], key K) (V, bool) {
	if c, ok := staged[key]; ok {
		if c.deleted {
			var zero V
			return zero, false
		}
		return c.value, true
	}
	v, ok := committed[key]
	return v, ok
}

func merged[K comparable, V any](committed map[K]V, staged map[K]change[V]) []V {
	out := make([]V, 0, len(committed)+len(staged))
	for k, v := range committed {
		if _, ok := staged[k]; ok {
			continue
		}
		out = append(out, v)
	}
	for _, c := range staged {
		if !c.deleted {
			out = append(out, c.value)
		}
	}
	return out
}

func apply[K comparable, V any](committed map[K]V, staged map[K]change[V]) {
	for k, c := range staged {
		if c.deleted {
			delete(committed, k)
			continue
		}
		committed[k] = c.value
	}
}

type unit struct {
	store    *Store
	readOnly bool
	done     bool

	users       map[user.ID]change[*user.User]
	properties  map[property.ID]change[*property.Property]
	rooms       map[property.RoomID]change[*property.Room]
	blackouts   map[blackoutKey]change[*domainavailability.UnavailableDate]
	adjustments map[domainpricing.AdjustmentID]change[*domainpricing.Adjustment]
	bookings    map[domainbooking.BookingID]change[*domainbooking.Booking]
	events      []outbox.EventRecord
}

func (u *unit) Users() user.Repository                   { return userRepo{u} }
func (u *unit) Properties() property.Repository          { return propertyRepo{u} }
func (u *unit) Rooms() property.RoomRepository           { return roomRepo{u} }
func (u *unit) Blackouts() domainavailability.Repository { return blackoutRepo{u} }
func (u *unit) Adjustments() domainpricing.Repository    { return adjustmentRepo{u} }
func (u *unit) Bookings() domainbooking.Repository       { return bookingRepo{u} }

func (u *unit) Commit(context.Context) error {
	if u.done {
		return ErrUnitFinished
	}
	u.done = true
	if u.readOnly {
		return nil
	}
	s := u.store
	s.mu.Lock()
	apply(s.users, u.users)
	apply(s.properties, u.properties)
	apply(s.rooms, u.rooms)
	for k, c := range u.blackouts {
		if c.deleted {
			delete(s.blackouts, k)
			continue
		}
		s.blackouts[k] = *c.value
	}
	apply(s.adjustments, u.adjustments)
	apply(s.bookings, u.bookings)
	for _, rec := range u.events {
		s.events = append(s.events, newOutboxEntry(rec))
	}
	s.mu.Unlock()
	<-s.writer
	return nil
}

func (u *unit) Rollback(context.Context) error {
	if u.done {
		return nil
	}
	u.done = true
	if !u.readOnly {
		<-u.store.writer
	}
	return nil
}

func (u *unit) writable() error {
	switch {
	case u.done:
		return ErrUnitFinished
	case u.readOnly:
		return ErrReadOnly
	}
	return nil
}

func (u *unit) rlock() func() {
	u.store.mu.RLock()
	return u.store.mu.RUnlock
}

var (
	_ uow.Factory    = (*Store)(nil)
	_ uow.UnitOfWork = (*unit)(nil)
)
