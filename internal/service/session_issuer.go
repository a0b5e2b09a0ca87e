package service

import (
	"context"
	"fmt"
	"time"

	"taskhub/internal/ids"
	"taskhub/internal/models"
	"taskhub/internal/repository"
	"taskhub/internal/security"
)

// sessionIssuer creates sessions and mints the token pair bound to them.
type sessionIssuer struct {
	tokens      *security.TokenCodec
	maxSessions int
	now         func() time.Time
}

func (i *sessionIssuer) start(ctx context.Context, repos repository.Repositories, user models.User, userAgent string) (*Tokens, error) {
	now := i.now()
	session := models.Session{
		ID:        ids.New(),
		UserID:    user.ID,
		UserAgent: userAgent,
		ExpiresAt: now.Add(i.tokens.RefreshTTL()),
		CreatedAt: now,
	}

	if err := repos.Sessions().Create(ctx, session); err != nil {
		return nil, fmt.Errorf("create session: %w", err)
	}
	if err := i.enforceSessionLimit(ctx, repos, user.ID); err != nil {
		return nil, err
	}
	if err := repos.Users().UpdateLastLogin(ctx, user.ID, now); err != nil {
		return nil, fmt.Errorf("update last login: %w", err)
	}

	access, accessExp, err := i.tokens.SignAccess(user.ID, session.ID)
	if err != nil {
		return nil, err
	}
	refresh, refreshExp, err := i.tokens.SignRefresh(session.ID)
	if err != nil {
		return nil, err
	}

	return &Tokens{
		AccessToken:      access,
		AccessExpiresAt:  accessExp,
		RefreshToken:     refresh,
		RefreshExpiresAt: refreshExp,
		SessionID:        session.ID,
	}, nil
}

func (i *sessionIssuer) enforceSessionLimit(ctx context.Context, repos repository.Repositories, userID string) error {
	if i.maxSessions <= 0 {
		return nil
	}
	count, err := repos.Sessions().CountByUser(ctx, userID)
	if err != nil {
		return fmt.Errorf("count sessions: %w", err)
	}
	if count <= i.maxSessions {
		return nil
	}
	if err := repos.Sessions().DeleteOldest(ctx, userID, i.maxSessions); err != nil {
		return fmt.Errorf("trim sessions: %w", err)
	}
	return nil
}
