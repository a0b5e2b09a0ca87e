package repository

import (
	"context"
	"errors"
	"fmt"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgconn"
)

const (
	maxTxAttempts = 3

	sqlStateSerializationFailure = "40001"
	sqlStateDeadlockDetected     = "40P01"
)

// TxBeginner is satisfied by *pgxpool.Pool.
type TxBeginner interface {
	DBTX
	BeginTx(ctx context.Context, opts pgx.TxOptions) (pgx.Tx, error)
}

type repositories struct {
	db DBTX
}

func (r repositories) Users() Users       { return NewUserRepository(r.db) }
func (r repositories) Accounts() Accounts { return NewAccountRepository(r.db) }
func (r repositories) VerificationCodes() VerificationCodes {
	return NewVerificationCodeRepository(r.db)
}
func (r repositories) Sessions() Sessions     { return NewSessionRepository(r.db) }
func (r repositories) Workspaces() Workspaces { return NewWorkspaceRepository(r.db) }
func (r repositories) Members() Members       { return NewMemberRepository(r.db) }
func (r repositories) Roles() Roles           { return NewRoleRepository(r.db) }

type PostgresStore struct {
	repositories
	db TxBeginner
}

func NewPostgresStore(db TxBeginner) *PostgresStore {
	return &PostgresStore{
		repositories: repositories{db: db},
		db:           db,
	}
}

// WithTx runs fn in a REPEATABLE READ transaction. It commits when fn returns
// nil and rolls back otherwise; a panic rolls back and is re-raised. Commit
// and rollback ignore cancellation of ctx so a dropped request still resolves
// the transaction one way or the other.
//
// A serialization failure or deadlock reruns fn in a fresh transaction, up to
// maxTxAttempts times, so fn must only touch the repositories it is given.
func (s *PostgresStore) WithTx(ctx context.Context, fn func(ctx context.Context, repos Repositories) error) error {
	var err error
	for attempt := 1; attempt <= maxTxAttempts; attempt++ {
		err = s.runTx(ctx, fn)
		if !retryable(err) || ctx.Err() != nil {
			return err
		}
	}
	return err
}

func (s *PostgresStore) runTx(ctx context.Context, fn func(ctx context.Context, repos Repositories) error) error {
	tx, err := s.db.BeginTx(ctx, pgx.TxOptions{IsoLevel: pgx.RepeatableRead})
	if err != nil {
		return fmt.Errorf("begin tx: %w", err)
	}

	finish := context.WithoutCancel(ctx)
	defer func() {
		if p := recover(); p != nil {
			_ = tx.Rollback(finish)
			panic(p)
		}
	}()

	if err := fn(ctx, repositories{db: tx}); err != nil {
		_ = tx.Rollback(finish)
		return err
	}

	if err := tx.Commit(finish); err != nil {
		return fmt.Errorf("commit tx: %w", err)
	}
	return nil
}

func retryable(err error) bool {
	var pgErr *pgconn.PgError
	if !errors.As(err, &pgErr) {
		return false
	}
	return pgErr.Code == sqlStateSerializationFailure || pgErr.Code == sqlStateDeadlockDetected
}
