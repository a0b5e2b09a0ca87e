package oauth

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/google/uuid"
	"github.com/redis/go-redis/v9"

	"taskhub/internal/security"
)

var ErrInvalidState = errors.New("invalid oauth state")

const stateKeyPrefix = "oauth:state:"

// StateStore keeps outstanding OAuth state nonces in Redis. A state is the
// HMAC-signed nonce and can be consumed exactly once before it expires.
type StateStore struct {
	client redis.Cmdable
	secret string
	ttl    time.Duration
}

func NewStateStore(client redis.Cmdable, secret string, ttl time.Duration) *StateStore {
	return &StateStore{client: client, secret: secret, ttl: ttl}
}

func (s *StateStore) Issue(ctx context.Context) (string, error) {
	nonce := uuid.NewString()
	ok, err := s.client.SetNX(ctx, stateKeyPrefix+nonce, 1, s.ttl).Result()
	if err != nil {
		return "", fmt.Errorf("store oauth state: %w", err)
	}
	if !ok {
		return "", fmt.Errorf("store oauth state: nonce collision")
	}
	return security.SignValue(s.secret, nonce), nil
}

func (s *StateStore) Consume(ctx context.Context, state string) error {
	nonce, ok := security.VerifyValue(s.secret, state)
	if !ok {
		return ErrInvalidState
	}
	err := s.client.GetDel(ctx, stateKeyPrefix+nonce).Err()
	if errors.Is(err, redis.Nil) {
		return ErrInvalidState
	}
	if err != nil {
		return fmt.Errorf("consume oauth state: %w", err)
	}
	return nil
}
