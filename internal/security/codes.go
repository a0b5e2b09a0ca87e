package security

import (
	"strings"

	"github.com/google/uuid"
)

const verificationCodeLength = 25

// NewVerificationCode returns an opaque single-use code for email links.
func NewVerificationCode() string {
	raw := strings.ReplaceAll(uuid.NewString(), "-", "")
	return raw[:verificationCodeLength]
}

// NewInviteCode returns a short workspace invite code.
func NewInviteCode() string {
	return strings.ReplaceAll(uuid.NewString(), "-", "")[:8]
}
