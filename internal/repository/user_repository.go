package repository

import (
	"context"
	"strings"
	"time"

	"github.com/jackc/pgx/v5"

	"taskhub/internal/models"
)

type UserRepository struct {
	db DBTX
}

func NewUserRepository(db DBTX) *UserRepository {
	return &UserRepository{db: db}
}

const userColumns = `
	id, email, password_hash, name, profile_picture, is_email_verified, is_active,
	last_login, current_workspace, enable_2fa, two_factor_secret, email_notifications,
	theme, locale, created_at, updated_at
`

func (r *UserRepository) Create(ctx context.Context, user models.User) error {
	const query = `
		INSERT INTO users (
			id, email, password_hash, name, profile_picture, is_email_verified, is_active,
			current_workspace, enable_2fa, two_factor_secret, email_notifications, theme, locale,
			created_at, updated_at
		) VALUES (
			$1, $2, $3, $4, $5, $6, $7, $8, $9, NULLIF($10, ''), $11, $12, $13, NOW(), NOW()
		)
	`

	_, err := r.db.Exec(ctx, query,
		user.ID,
		strings.ToLower(user.Email),
		user.PasswordHash,
		user.Name,
		user.ProfilePicture,
		user.IsEmailVerified,
		user.IsActive,
		user.CurrentWorkspace,
		user.Preferences.Enable2FA,
		user.Preferences.TwoFactorSecret,
		user.Preferences.EmailNotifications,
		user.Preferences.Theme,
		user.Preferences.Locale,
	)
	return mapError(err)
}

func (r *UserRepository) FindByEmail(ctx context.Context, email string) (models.User, error) {
	query := `SELECT ` + userColumns + ` FROM users WHERE email = $1`
	return scanUser(r.db.QueryRow(ctx, query, strings.ToLower(email)))
}

func (r *UserRepository) GetByID(ctx context.Context, id string) (models.User, error) {
	query := `SELECT ` + userColumns + ` FROM users WHERE id = $1`
	return scanUser(r.db.QueryRow(ctx, query, id))
}

func (r *UserRepository) UpdatePassword(ctx context.Context, id string, passwordHash []byte) error {
	const query = `UPDATE users SET password_hash = $2, updated_at = NOW() WHERE id = $1`
	return r.execOne(ctx, query, id, passwordHash)
}

func (r *UserRepository) MarkEmailVerified(ctx context.Context, id string) error {
	const query = `UPDATE users SET is_email_verified = TRUE, updated_at = NOW() WHERE id = $1`
	return r.execOne(ctx, query, id)
}

func (r *UserRepository) UpdateMFA(ctx context.Context, id string, enabled bool, secret string) error {
	const query = `
		UPDATE users
		SET enable_2fa = $2, two_factor_secret = NULLIF($3, ''), updated_at = NOW()
		WHERE id = $1
	`
	return r.execOne(ctx, query, id, enabled, secret)
}

func (r *UserRepository) SetCurrentWorkspace(ctx context.Context, id string, workspaceID string) error {
	const query = `UPDATE users SET current_workspace = $2, updated_at = NOW() WHERE id = $1`
	return r.execOne(ctx, query, id, workspaceID)
}

func (r *UserRepository) UpdateLastLogin(ctx context.Context, id string, at time.Time) error {
	const query = `UPDATE users SET last_login = $2 WHERE id = $1`
	return r.execOne(ctx, query, id, at)
}

func (r *UserRepository) UpdateProfilePicture(ctx context.Context, id string, picture string) error {
	const query = `UPDATE users SET profile_picture = $2, updated_at = NOW() WHERE id = $1`
	return r.execOne(ctx, query, id, picture)
}

// Delete relies on ON DELETE CASCADE for accounts, codes, sessions, owned
// workspaces and memberships.
func (r *UserRepository) Delete(ctx context.Context, id string) error {
	const query = `DELETE FROM users WHERE id = $1`
	return r.execOne(ctx, query, id)
}

func (r *UserRepository) execOne(ctx context.Context, query string, args ...any) error {
	cmd, err := r.db.Exec(ctx, query, args...)
	if err != nil {
		return mapError(err)
	}
	if cmd.RowsAffected() == 0 {
		return ErrNotFound
	}
	return nil
}

func scanUser(row pgx.Row) (models.User, error) {
	var (
		user   models.User
		secret *string
	)
	if err := row.Scan(
		&user.ID,
		&user.Email,
		&user.PasswordHash,
		&user.Name,
		&user.ProfilePicture,
		&user.IsEmailVerified,
		&user.IsActive,
		&user.LastLogin,
		&user.CurrentWorkspace,
		&user.Preferences.Enable2FA,
		&secret,
		&user.Preferences.EmailNotifications,
		&user.Preferences.Theme,
		&user.Preferences.Locale,
		&user.CreatedAt,
		&user.UpdatedAt,
	); err != nil {
		return models.User{}, mapError(err)
	}
	if secret != nil {
		user.Preferences.TwoFactorSecret = *secret
	}
	return user, nil
}
