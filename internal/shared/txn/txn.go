// Package txn carries a database transaction through context and serialises
// work per booking group.
package txn

import (
	"context"
	"errors"
	"sync"

	"kitchenhub/internal/shared/apperr"

	"github.com/google/uuid"
	"gorm.io/gorm"
	"gorm.io/gorm/clause"
)

type txKey struct{}
type heldKey struct{}

// WithTx returns a context that repositories will use to join tx
func WithTx(ctx context.Context, tx *gorm.DB) context.Context {
	return context.WithValue(ctx, txKey{}, tx)
}

// FromContext returns the transaction carried by ctx, if any
func FromContext(ctx context.Context) (*gorm.DB, bool) {
	tx, ok := ctx.Value(txKey{}).(*gorm.DB)
	return tx, ok && tx != nil
}

// Conn returns the transaction on ctx, or db bound to ctx when there is none
func Conn(ctx context.Context, db *gorm.DB) *gorm.DB {
	if tx, ok := FromContext(ctx); ok {
		return tx.WithContext(ctx)
	}
	return db.WithContext(ctx)
}

func holds(ctx context.Context, groupID uuid.UUID) bool {
	held, _ := ctx.Value(heldKey{}).(map[uuid.UUID]struct{})
	_, ok := held[groupID]
	return ok
}

func withHeld(ctx context.Context, groupID uuid.UUID) context.Context {
	prev, _ := ctx.Value(heldKey{}).(map[uuid.UUID]struct{})
	next := make(map[uuid.UUID]struct{}, len(prev)+1)
	for k := range prev {
		next[k] = struct{}{}
	}
	next[groupID] = struct{}{}
	return context.WithValue(ctx, heldKey{}, next)
}

// GroupLocker runs fn as one atomic unit keyed by a booking group id.
// Acquiring a lock already held by ctx runs fn directly.
type GroupLocker interface {
	WithGroupLock(ctx context.Context, groupID uuid.UUID, fn func(ctx context.Context) error) error
	// Atomic runs fn in a transaction without locking a group. Used when the
	// group does not exist yet.
	Atomic(ctx context.Context, fn func(ctx context.Context) error) error
}

// PostgresGroupLocker locks the booking_groups row FOR UPDATE for the
// duration of a transaction.
type PostgresGroupLocker struct {
	db *gorm.DB
}

func NewPostgresGroupLocker(db *gorm.DB) *PostgresGroupLocker {
	return &PostgresGroupLocker{db: db}
}

func (l *PostgresGroupLocker) WithGroupLock(ctx context.Context, groupID uuid.UUID, fn func(ctx context.Context) error) error {
	if holds(ctx, groupID) {
		return fn(ctx)
	}

	lock := func(ctx context.Context, tx *gorm.DB) error {
		var locked struct{ ID uuid.UUID }
		err := tx.Table("booking_groups").
			Clauses(clause.Locking{Strength: "UPDATE"}).
			Select("id").
			Where("id = ?", groupID).
			Take(&locked).Error
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return apperr.NotFound("booking_group", groupID.String())
		}
		if err != nil {
			return err
		}
		return fn(withHeld(ctx, groupID))
	}

	if tx, ok := FromContext(ctx); ok {
		return lock(ctx, tx.WithContext(ctx))
	}

	return l.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		return lock(WithTx(ctx, tx), tx)
	})
}

func (l *PostgresGroupLocker) Atomic(ctx context.Context, fn func(ctx context.Context) error) error {
	if _, ok := FromContext(ctx); ok {
		return fn(ctx)
	}
	return l.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		return fn(WithTx(ctx, tx))
	})
}

// LocalGroupLocker serialises groups with in-process mutexes. It backs the
// in-memory repositories in tests and single-node local runs.
type LocalGroupLocker struct {
	mu    sync.Mutex
	locks map[uuid.UUID]*sync.Mutex
}

func NewLocalGroupLocker() *LocalGroupLocker {
	return &LocalGroupLocker{locks: make(map[uuid.UUID]*sync.Mutex)}
}

func (l *LocalGroupLocker) WithGroupLock(ctx context.Context, groupID uuid.UUID, fn func(ctx context.Context) error) error {
	if holds(ctx, groupID) {
		return fn(ctx)
	}

	l.mu.Lock()
	m, ok := l.locks[groupID]
	if !ok {
		m = &sync.Mutex{}
		l.locks[groupID] = m
	}
	l.mu.Unlock()

	m.Lock()
	defer m.Unlock()

	if err := ctx.Err(); err != nil {
		return err
	}
	return fn(withHeld(ctx, groupID))
}

func (l *LocalGroupLocker) Atomic(ctx context.Context, fn func(ctx context.Context) error) error {
	return fn(ctx)
}
