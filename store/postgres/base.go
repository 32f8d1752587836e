// Package postgres implements store/postgres, the durable half of C2
// IdentityStore: Identity, Profile, ProtectedEntity, ReservationRequest,
// OAuthClient, Token, Session, MFAMethod, AuditEvent, and
// HandleChangeHistory. It is adapted from the teacher's
// shared/repository.BaseRepository (same NamedExecContext / GetContext /
// SelectContext / transaction shape over jmoiron/sqlx), generalized from
// one hand-written query-constant block per caller into one small helper
// plus a typed repository per entity.
package postgres

import (
	"context"
	"database/sql"
	"errors"
	"fmt"

	"github.com/jmoiron/sqlx"
	_ "github.com/lib/pq"
	"github.com/zeromicro/go-zero/core/logx"

	"github.com/entativa/id/errs"
)

// base wraps the shared sqlx.DB handle and the common CRUD helpers every
// entity repository composes, exactly as the teacher's BaseRepository did
// for the growth-server's user/profile tables.
type base struct {
	db *sqlx.DB
}

func newBase(db *sqlx.DB) base { return base{db: db} }

func (b base) exec(ctx context.Context, query string, args interface{}) error {
	if _, err := b.db.NamedExecContext(ctx, query, args); err != nil {
		logx.WithContext(ctx).Errorf("postgres: exec failed: %v", err)
		return errs.Wrap(errs.Transient, "write record", err)
	}
	return nil
}

func (b base) get(ctx context.Context, dest interface{}, query string, args ...interface{}) error {
	if err := b.db.GetContext(ctx, dest, query, args...); err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return errs.New(errs.Input, "record not found")
		}
		logx.WithContext(ctx).Errorf("postgres: get failed: %v", err)
		return errs.Wrap(errs.Transient, "read record", err)
	}
	return nil
}

func (b base) list(ctx context.Context, dest interface{}, query string, args ...interface{}) error {
	if err := b.db.SelectContext(ctx, dest, query, args...); err != nil {
		logx.WithContext(ctx).Errorf("postgres: list failed: %v", err)
		return errs.Wrap(errs.Transient, "list records", err)
	}
	return nil
}

// transaction runs fn inside a sqlx transaction, rolling back on error or
// panic and committing otherwise — the same shape as the teacher's
// BaseRepository.Transaction.
func (b base) transaction(ctx context.Context, fn func(*sqlx.Tx) error) (err error) {
	tx, txErr := b.db.BeginTxx(ctx, nil)
	if txErr != nil {
		return errs.Wrap(errs.Transient, "begin transaction", txErr)
	}
	defer func() {
		if p := recover(); p != nil {
			_ = tx.Rollback()
			panic(p)
		} else if err != nil {
			_ = tx.Rollback()
		} else {
			err = tx.Commit()
		}
	}()
	err = fn(tx)
	return err
}

// Store is the single concrete implementation of every per-entity
// repository interface the domain packages depend on. Domain packages
// accept the narrow interface, not *Store, per Go idiom.
type Store struct {
	base
}

// New opens a Postgres connection pool and returns the composed Store.
func New(dataSourceName string) (*Store, error) {
	db, err := sqlx.Connect("postgres", dataSourceName)
	if err != nil {
		return nil, fmt.Errorf("postgres: connect: %w", err)
	}
	return &Store{base: newBase(db)}, nil
}

// NewWithDB wraps an already-open sqlx.DB (used by tests against a fake
// driver, or by callers that manage their own pool lifecycle).
func NewWithDB(db *sqlx.DB) *Store {
	return &Store{base: newBase(db)}
}
