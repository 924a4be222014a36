package mongo

import (
	"context"
	"errors"
	"fmt"

	"go.mongodb.org/mongo-driver/mongo"
	"go.mongodb.org/mongo-driver/mongo/options"
	"go.mongodb.org/mongo-driver/mongo/readconcern"
	"go.mongodb.org/mongo-driver/mongo/writeconcern"

	"staysane/internal/app/uow"
	domainavailability "staysane/internal/domain/availability"
	domainbooking "staysane/internal/domain/booking"
	domainpricing "staysane/internal/domain/pricing"
	"staysane/internal/domain/property"
	"staysane/internal/domain/shared/errs"
	"staysane/internal/domain/user"
)

const codeWriteConflict = 112

var (
	ErrUnitOfWorkNotConfigured = errors.New("mongo: unit of work factory missing database")
	ErrReadOnly                = errors.New("mongo: write in read-only unit of work")
	ErrUnitFinished            = errors.New("mongo: unit of work already finished")
)

// Factory wires Mongo transactions into the generic UnitOfWork interface and
// doubles as the outbox.
type Factory struct {
	DB   *mongo.Database
	wake chan struct{}
}

func NewFactory(db *mongo.Database) *Factory {
	return &Factory{DB: db, wake: make(chan struct{}, 1)}
}

// Begin starts a session with a snapshot transaction.
func (f *Factory) Begin(ctx context.Context, opts uow.TxOptions) (uow.UnitOfWork, error) {
	if f == nil || f.DB == nil {
		return nil, ErrUnitOfWorkNotConfigured
	}
	session, err := f.DB.Client().StartSession()
	if err != nil {
		return nil, err
	}
	txnOpts := options.Transaction().
		SetReadConcern(readconcern.Snapshot()).
		SetWriteConcern(writeconcern.Majority())
	if err := session.StartTransaction(txnOpts); err != nil {
		session.EndSession(ctx)
		return nil, err
	}
	return &Unit{db: f.DB, session: session, readOnly: opts.ReadOnly}, nil
}

type Unit struct {
	db       *mongo.Database
	session  mongo.Session
	readOnly bool
	done     bool
}

func (u *Unit) Users() user.Repository                   { return userRepo{u} }
func (u *Unit) Properties() property.Repository          { return propertyRepo{u} }
func (u *Unit) Rooms() property.RoomRepository           { return roomRepo{u} }
func (u *Unit) Blackouts() domainavailability.Repository { return blackoutRepo{u} }
func (u *Unit) Adjustments() domainpricing.Repository    { return adjustmentRepo{u} }
func (u *Unit) Bookings() domainbooking.Repository       { return bookingRepo{u} }

func (u *Unit) Commit(ctx context.Context) error {
	if u.done {
		return ErrUnitFinished
	}
	u.done = true
	defer u.session.EndSession(ctx)
	if err := u.session.CommitTransaction(ctx); err != nil {
		return mapError(err, nil)
	}
	return nil
}

func (u *Unit) Rollback(ctx context.Context) error {
	if u.done {
		return nil
	}
	u.done = true
	defer u.session.EndSession(ctx)
	return u.session.AbortTransaction(ctx)
}

// InjectContext ensures Mongo session is available in context for downstream repos.
func (u *Unit) InjectContext(ctx context.Context) context.Context {
	return mongo.NewSessionContext(ctx, u.session)
}

func (u *Unit) col(name string) *mongo.Collection {
	return u.db.Collection(name)
}

func (u *Unit) writable() error {
	switch {
	case u.done:
		return ErrUnitFinished
	case u.readOnly:
		return ErrReadOnly
	}
	return nil
}

// mapError reports write conflicts and aborted transactions as conflicts.
func mapError(err error, conflict error) error {
	if err == nil {
		return nil
	}
	var se mongo.ServerError
	if mongo.IsDuplicateKeyError(err) ||
		(errors.As(err, &se) && (se.HasErrorCode(codeWriteConflict) || se.HasErrorLabel("TransientTransactionError"))) {
		if conflict == nil {
			conflict = errs.ErrConcurrentConflict
		}
		return fmt.Errorf("%w: %v", conflict, err)
	}
	return err
}

var (
	_ uow.Factory         = (*Factory)(nil)
	_ uow.UnitOfWork      = (*Unit)(nil)
	_ uow.ContextInjector = (*Unit)(nil)
)
