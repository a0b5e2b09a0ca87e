package models

import "time"

type VerificationPurpose string

const (
	PurposeEmailVerification VerificationPurpose = "EMAIL_VERIFICATION"
	PurposePasswordReset     VerificationPurpose = "PASSWORD_RESET"
)

type VerificationCode struct {
	ID        string
	UserID    string
	Code      string
	Purpose   VerificationPurpose
	ExpiresAt time.Time
	CreatedAt time.Time
}

func (c VerificationCode) Expired(now time.Time) bool {
	return !now.Before(c.ExpiresAt)
}
