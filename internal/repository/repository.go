package repository

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgconn"

	"taskhub/internal/models"
)

var (
	ErrNotFound = errors.New("record not found")
	ErrConflict = errors.New("record already exists")
)

// DBTX is satisfied by *pgxpool.Pool and pgx.Tx.
type DBTX interface {
	Exec(ctx context.Context, sql string, args ...any) (pgconn.CommandTag, error)
	Query(ctx context.Context, sql string, args ...any) (pgx.Rows, error)
	QueryRow(ctx context.Context, sql string, args ...any) pgx.Row
}

type Users interface {
	Create(ctx context.Context, user models.User) error
	FindByEmail(ctx context.Context, email string) (models.User, error)
	GetByID(ctx context.Context, id string) (models.User, error)
	UpdatePassword(ctx context.Context, id string, passwordHash []byte) error
	MarkEmailVerified(ctx context.Context, id string) error
	UpdateMFA(ctx context.Context, id string, enabled bool, secret string) error
	SetCurrentWorkspace(ctx context.Context, id string, workspaceID string) error
	UpdateLastLogin(ctx context.Context, id string, at time.Time) error
	UpdateProfilePicture(ctx context.Context, id string, picture string) error
	// Delete removes the user together with everything that references it.
	Delete(ctx context.Context, id string) error
}

type Accounts interface {
	Create(ctx context.Context, account models.Account) error
	FindByProvider(ctx context.Context, provider models.Provider, providerID string) (models.Account, error)
}

type VerificationCodes interface {
	Create(ctx context.Context, code models.VerificationCode) error
	// FindValid returns the code only when value and purpose match exactly and
	// it has not expired at now.
	FindValid(ctx context.Context, code string, purpose models.VerificationPurpose, now time.Time) (models.VerificationCode, error)
	Delete(ctx context.Context, id string) error
	CountSince(ctx context.Context, userID string, purpose models.VerificationPurpose, since time.Time) (int, error)
	DeleteExpired(ctx context.Context, now time.Time) (int64, error)
}

type Sessions interface {
	Create(ctx context.Context, session models.Session) error
	GetByID(ctx context.Context, id string) (models.Session, error)
	UpdateExpiry(ctx context.Context, id string, expiresAt time.Time) error
	// DeleteByID succeeds when the session is already gone.
	DeleteByID(ctx context.Context, id string) error
	DeleteByUser(ctx context.Context, userID string) (int64, error)
	ListByUser(ctx context.Context, userID string) ([]models.Session, error)
	CountByUser(ctx context.Context, userID string) (int, error)
	DeleteOldest(ctx context.Context, userID string, keepLatest int) error
	DeleteExpired(ctx context.Context, now time.Time) (int64, error)
}

type Workspaces interface {
	Create(ctx context.Context, workspace models.Workspace) error
}

type Members interface {
	Create(ctx context.Context, member models.Member) error
	// RoleName resolves the role a user holds in a workspace.
	RoleName(ctx context.Context, userID string, workspaceID string) (string, error)
}

type Roles interface {
	FindByName(ctx context.Context, name string) (models.RoleRecord, error)
}

type Repositories interface {
	Users() Users
	Accounts() Accounts
	VerificationCodes() VerificationCodes
	Sessions() Sessions
	Workspaces() Workspaces
	Members() Members
	Roles() Roles
}

// Store is the unit of work boundary. Repositories handed to fn share one
// transaction; fn must not use the Store's own repositories while running.
type Store interface {
	Repositories
	WithTx(ctx context.Context, fn func(ctx context.Context, repos Repositories) error) error
}

func mapError(err error) error {
	if err == nil {
		return nil
	}
	if errors.Is(err, pgx.ErrNoRows) {
		return ErrNotFound
	}
	var pgErr *pgconn.PgError
	if errors.As(err, &pgErr) && pgErr.Code == "23505" {
		return fmt.Errorf("%w: %s", ErrConflict, pgErr.ConstraintName)
	}
	return err
}
