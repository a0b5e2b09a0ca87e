package repository

import (
	"context"

	"taskhub/internal/models"
)

type AccountRepository struct {
	db DBTX
}

func NewAccountRepository(db DBTX) *AccountRepository {
	return &AccountRepository{db: db}
}

func (r *AccountRepository) Create(ctx context.Context, account models.Account) error {
	const query = `
		INSERT INTO accounts (id, user_id, provider, provider_id, created_at)
		VALUES ($1, $2, $3, $4, NOW())
	`
	_, err := r.db.Exec(ctx, query, account.ID, account.UserID, account.Provider, account.ProviderID)
	return mapError(err)
}

func (r *AccountRepository) FindByProvider(ctx context.Context, provider models.Provider, providerID string) (models.Account, error) {
	const query = `
		SELECT id, user_id, provider, provider_id, created_at
		FROM accounts
		WHERE provider = $1 AND provider_id = $2
	`

	var account models.Account
	if err := r.db.QueryRow(ctx, query, provider, providerID).Scan(
		&account.ID,
		&account.UserID,
		&account.Provider,
		&account.ProviderID,
		&account.CreatedAt,
	); err != nil {
		return models.Account{}, mapError(err)
	}
	return account, nil
}
