// Package postgres stores the booking aggregates in PostgreSQL. Write units
// run serializable, rooms are locked with SELECT ... FOR UPDATE and an
// exclusion constraint refuses overlapping active bookings of a room.
package postgres

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgconn"
	"github.com/jackc/pgx/v5/pgxpool"

	"staysane/internal/app/uow"
	domainavailability "staysane/internal/domain/availability"
	domainbooking "staysane/internal/domain/booking"
	domainpricing "staysane/internal/domain/pricing"
	"staysane/internal/domain/property"
	"staysane/internal/domain/shared/errs"
	"staysane/internal/domain/user"
	"staysane/internal/infra/db/postgres/migrations"
)

var (
	ErrReadOnly     = errors.New("postgres: write in read-only unit of work")
	ErrUnitFinished = errors.New("postgres: unit of work already finished")
)

const (
	codeUniqueViolation      = "23505"
	codeExclusionViolation   = "23P01"
	codeSerializationFailure = "40001"
	codeDeadlockDetected     = "40P01"
)

// NewPool connects, pings and applies the embedded migrations.
func NewPool(ctx context.Context, dsn string, maxConns int32) (*pgxpool.Pool, error) {
	cfg, err := pgxpool.ParseConfig(dsn)
	if err != nil {
		return nil, fmt.Errorf("parse postgres dsn: %w", err)
	}
	if maxConns > 0 {
		cfg.MaxConns = maxConns
	}
	connectCtx, cancel := context.WithTimeout(ctx, 10*time.Second)
	defer cancel()
	pool, err := pgxpool.NewWithConfig(connectCtx, cfg)
	if err != nil {
		return nil, fmt.Errorf("connect postgres: %w", err)
	}
	if err := pool.Ping(connectCtx); err != nil {
		pool.Close()
		return nil, fmt.Errorf("ping postgres: %w", err)
	}
	if err := migrations.Apply(ctx, pool); err != nil {
		pool.Close()
		return nil, err
	}
	return pool, nil
}

// Store hands out units of work over one pool and doubles as the outbox.
type Store struct {
	pool *pgxpool.Pool
	wake chan struct{}
}

func NewStore(pool *pgxpool.Pool) *Store {
	return &Store{pool: pool, wake: make(chan struct{}, 1)}
}

func (s *Store) Ping(ctx context.Context) error {
	return s.pool.Ping(ctx)
}

func (s *Store) Begin(ctx context.Context, opts uow.TxOptions) (uow.UnitOfWork, error) {
	txOpts := pgx.TxOptions{IsoLevel: pgx.Serializable}
	if opts.ReadOnly {
		txOpts = pgx.TxOptions{IsoLevel: pgx.RepeatableRead, AccessMode: pgx.ReadOnly}
	}
	tx, err := s.pool.BeginTx(ctx, txOpts)
	if err != nil {
		return nil, fmt.Errorf("begin postgres tx: %w", err)
	}
	return &unit{store: s, tx: tx, readOnly: opts.ReadOnly}, nil
}

type unit struct {
	store    *Store
	tx       pgx.Tx
	readOnly bool
	done     bool
}

func (u *unit) Users() user.Repository                   { return userRepo{u} }
func (u *unit) Properties() property.Repository          { return propertyRepo{u} }
func (u *unit) Rooms() property.RoomRepository           { return roomRepo{u} }
func (u *unit) Blackouts() domainavailability.Repository { return blackoutRepo{u} }
func (u *unit) Adjustments() domainpricing.Repository    { return adjustmentRepo{u} }
func (u *unit) Bookings() domainbooking.Repository       { return bookingRepo{u} }

func (u *unit) Commit(ctx context.Context) error {
	if u.done {
		return ErrUnitFinished
	}
	u.done = true
	if err := u.tx.Commit(ctx); err != nil {
		return mapError(err, nil)
	}
	return nil
}

func (u *unit) Rollback(ctx context.Context) error {
	if u.done {
		return nil
	}
	u.done = true
	if err := u.tx.Rollback(ctx); err != nil && !errors.Is(err, pgx.ErrTxClosed) {
		return err
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

// mapError turns the errors a concurrent writer can cause into conflicts.
// conflict, when set, is the aggregate-specific sentinel to wrap.
func mapError(err error, conflict error) error {
	var pgErr *pgconn.PgError
	if !errors.As(err, &pgErr) {
		return err
	}
	switch pgErr.Code {
	case codeUniqueViolation, codeExclusionViolation, codeSerializationFailure, codeDeadlockDetected:
		if conflict == nil {
			conflict = errs.ErrConcurrentConflict
		}
		return fmt.Errorf("%w (%s: %s)", conflict, pgErr.Code, pgErr.Message)
	}
	return err
}

// MapError reports write conflicts raised by PostgreSQL as errs.ErrConcurrentConflict.
func MapError(err error) error {
	return mapError(err, nil)
}

func nullTime(t time.Time) *time.Time {
	if t.IsZero() {
		return nil
	}
	utc := t.UTC()
	return &utc
}

func fromNullTime(t *time.Time) time.Time {
	if t == nil {
		return time.Time{}
	}
	return t.UTC()
}

var (
	_ uow.Factory    = (*Store)(nil)
	_ uow.UnitOfWork = (*unit)(nil)
)
