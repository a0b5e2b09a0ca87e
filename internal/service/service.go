package service

import (
	"context"
	"errors"
	"time"

	"taskhub/internal/apperr"
	"taskhub/internal/models"
	"taskhub/internal/repository"
)

type PasswordHasher interface {
	Hash(password string) ([]byte, error)
	Compare(password string, hash []byte) (bool, error)
}

// EventRecorder counts authentication outcomes.
type EventRecorder interface {
	AuthEvent(event, outcome string)
}

type TaskEnqueuer interface {
	Enqueue(ctx context.Context, taskType string, payload any) (string, error)
}

type nopRecorder struct{}

func (nopRecorder) AuthEvent(string, string) {}

const (
	outcomeSuccess     = "success"
	outcomeFailure     = "failure"
	outcomeMFARequired = "mfa_required"
	outcomeRotated     = "rotated"
)

type Tokens struct {
	AccessToken      string
	AccessExpiresAt  time.Time
	RefreshToken     string
	RefreshExpiresAt time.Time
	SessionID        string
}

// LoginResult carries tokens only when MFARequired is false.
type LoginResult struct {
	User        models.User
	Tokens      *Tokens
	MFARequired bool
}

// RefreshResult always carries a new access token. RefreshToken is empty
// unless the session was close enough to expiry to be rotated.
type RefreshResult struct {
	AccessToken      string
	AccessExpiresAt  time.Time
	RefreshToken     string
	RefreshExpiresAt time.Time
}

func (r RefreshResult) Rotated() bool {
	return r.RefreshToken != ""
}

type ForgotPasswordResult struct {
	ResetURL string
	EmailID  string
}

type SessionView struct {
	models.Session
	Current bool
}

// Identity is what the authentication gate attaches to a request.
type Identity struct {
	User      models.User
	SessionID string
}

func notFoundAs(err error, mapped *apperr.Error) error {
	if errors.Is(err, repository.ErrNotFound) {
		return mapped
	}
	return err
}
