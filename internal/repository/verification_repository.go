package repository

import (
	"context"
	"time"

	"taskhub/internal/models"
)

type VerificationCodeRepository struct {
	db DBTX
}

func NewVerificationCodeRepository(db DBTX) *VerificationCodeRepository {
	return &VerificationCodeRepository{db: db}
}

func (r *VerificationCodeRepository) Create(ctx context.Context, code models.VerificationCode) error {
	const query = `
		INSERT INTO verification_codes (id, user_id, code, purpose, expires_at, created_at)
		VALUES ($1, $2, $3, $4, $5, $6)
	`
	_, err := r.db.Exec(ctx, query,
		code.ID,
		code.UserID,
		code.Code,
		code.Purpose,
		code.ExpiresAt,
		code.CreatedAt,
	)
	return mapError(err)
}

func (r *VerificationCodeRepository) FindValid(ctx context.Context, code string, purpose models.VerificationPurpose, now time.Time) (models.VerificationCode, error) {
	const query = `
		SELECT id, user_id, code, purpose, expires_at, created_at
		FROM verification_codes
		WHERE code = $1 AND purpose = $2 AND expires_at > $3
	`

	var vc models.VerificationCode
	if err := r.db.QueryRow(ctx, query, code, purpose, now).Scan(
		&vc.ID,
		&vc.UserID,
		&vc.Code,
		&vc.Purpose,
		&vc.ExpiresAt,
		&vc.CreatedAt,
	); err != nil {
		return models.VerificationCode{}, mapError(err)
	}
	return vc, nil
}

func (r *VerificationCodeRepository) Delete(ctx context.Context, id string) error {
	const query = `DELETE FROM verification_codes WHERE id = $1`
	cmd, err := r.db.Exec(ctx, query, id)
	if err != nil {
		return mapError(err)
	}
	if cmd.RowsAffected() == 0 {
		return ErrNotFound
	}
	return nil
}

func (r *VerificationCodeRepository) CountSince(ctx context.Context, userID string, purpose models.VerificationPurpose, since time.Time) (int, error) {
	const query = `
		SELECT COUNT(*) FROM verification_codes
		WHERE user_id = $1 AND purpose = $2 AND created_at > $3
	`
	var count int
	if err := r.db.QueryRow(ctx, query, userID, purpose, since).Scan(&count); err != nil {
		return 0, mapError(err)
	}
	return count, nil
}

func (r *VerificationCodeRepository) DeleteExpired(ctx context.Context, now time.Time) (int64, error) {
	const query = `DELETE FROM verification_codes WHERE expires_at <= $1`
	cmd, err := r.db.Exec(ctx, query, now)
	if err != nil {
		return 0, mapError(err)
	}
	return cmd.RowsAffected(), nil
}
