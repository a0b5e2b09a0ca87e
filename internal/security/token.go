package security

import (
	"errors"
	"fmt"
	"time"

	"github.com/golang-jwt/jwt/v5"

	"taskhub/internal/apperr"
	"taskhub/internal/config"
)

const (
	audienceAccess  = "taskhub:access"
	audienceRefresh = "taskhub:refresh"
	issuer          = "taskhub"
)

type AccessClaims struct {
	UserID    string `json:"uid"`
	SessionID string `json:"sid"`
	jwt.RegisteredClaims
}

type RefreshClaims struct {
	SessionID string `json:"sid"`
	jwt.RegisteredClaims
}

// TokenCodec signs and verifies access and refresh tokens. The two kinds use
// separate secrets and audiences, so one can never be presented as the other.
type TokenCodec struct {
	accessSecret  []byte
	refreshSecret []byte
	accessTTL     time.Duration
	refreshTTL    time.Duration
	now           func() time.Time
}

func NewTokenCodec(cfg config.SecurityConfig) *TokenCodec {
	return &TokenCodec{
		accessSecret:  []byte(cfg.JWTAccessSecret),
		refreshSecret: []byte(cfg.JWTRefreshSecret),
		accessTTL:     cfg.JWTAccessTTL,
		refreshTTL:    cfg.JWTRefreshTTL,
		now:           time.Now,
	}
}

// WithClock returns a copy of the codec reading time from now.
func (c *TokenCodec) WithClock(now func() time.Time) *TokenCodec {
	clone := *c
	clone.now = now
	return &clone
}

func (c *TokenCodec) AccessTTL() time.Duration  { return c.accessTTL }
func (c *TokenCodec) RefreshTTL() time.Duration { return c.refreshTTL }

func (c *TokenCodec) SignAccess(userID, sessionID string) (string, time.Time, error) {
	now := c.now()
	expiresAt := now.Add(c.accessTTL)
	claims := AccessClaims{
		UserID:    userID,
		SessionID: sessionID,
		RegisteredClaims: jwt.RegisteredClaims{
			Issuer:    issuer,
			Subject:   userID,
			Audience:  jwt.ClaimStrings{audienceAccess},
			IssuedAt:  jwt.NewNumericDate(now),
			ExpiresAt: jwt.NewNumericDate(expiresAt),
		},
	}
	signed, err := sign(claims, c.accessSecret)
	return signed, expiresAt, err
}

func (c *TokenCodec) SignRefresh(sessionID string) (string, time.Time, error) {
	now := c.now()
	expiresAt := now.Add(c.refreshTTL)
	claims := RefreshClaims{
		SessionID: sessionID,
		RegisteredClaims: jwt.RegisteredClaims{
			Issuer:    issuer,
			Audience:  jwt.ClaimStrings{audienceRefresh},
			IssuedAt:  jwt.NewNumericDate(now),
			ExpiresAt: jwt.NewNumericDate(expiresAt),
		},
	}
	signed, err := sign(claims, c.refreshSecret)
	return signed, expiresAt, err
}

func (c *TokenCodec) ParseAccess(token string) (*AccessClaims, error) {
	claims := &AccessClaims{}
	if err := c.parse(token, claims, c.accessSecret, audienceAccess); err != nil {
		return nil, err
	}
	if claims.UserID == "" || claims.SessionID == "" {
		return nil, invalidToken(errors.New("missing identity claims"))
	}
	return claims, nil
}

func (c *TokenCodec) ParseRefresh(token string) (*RefreshClaims, error) {
	claims := &RefreshClaims{}
	if err := c.parse(token, claims, c.refreshSecret, audienceRefresh); err != nil {
		return nil, err
	}
	if claims.SessionID == "" {
		return nil, invalidToken(errors.New("missing session claim"))
	}
	return claims, nil
}

func (c *TokenCodec) parse(token string, claims jwt.Claims, secret []byte, audience string) error {
	parser := jwt.NewParser(
		jwt.WithValidMethods([]string{jwt.SigningMethodHS512.Alg()}),
		jwt.WithAudience(audience),
		jwt.WithIssuer(issuer),
		jwt.WithExpirationRequired(),
		jwt.WithTimeFunc(c.now),
	)
	parsed, err := parser.ParseWithClaims(token, claims, func(*jwt.Token) (any, error) {
		return secret, nil
	})
	if err != nil {
		return invalidToken(err)
	}
	if !parsed.Valid {
		return invalidToken(errors.New("token not valid"))
	}
	return nil
}

func sign(claims jwt.Claims, secret []byte) (string, error) {
	token := jwt.NewWithClaims(jwt.SigningMethodHS512, claims)
	signed, err := token.SignedString(secret)
	if err != nil {
		return "", fmt.Errorf("sign jwt: %w", err)
	}
	return signed, nil
}

func invalidToken(cause error) error {
	e := apperr.Unauthorized(apperr.CodeInvalidToken, "Invalid or expired token")
	e.Err = cause
	return e
}
