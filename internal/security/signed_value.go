package security

import (
	"crypto/hmac"
	"crypto/sha256"
	"encoding/base64"
	"strings"
)

func valueTag(secret, value string) string {
	mac := hmac.New(sha256.New, []byte(secret))
	mac.Write([]byte(value))
	return base64.RawURLEncoding.EncodeToString(mac.Sum(nil))
}

// SignValue appends an HMAC tag to value as "<value>.<tag>".
func SignValue(secret, value string) string {
	return value + "." + valueTag(secret, value)
}

// VerifyValue checks a SignValue result and returns the original value.
func VerifyValue(secret, signed string) (string, bool) {
	idx := strings.LastIndexByte(signed, '.')
	if idx <= 0 || idx == len(signed)-1 {
		return "", false
	}
	value, tag := signed[:idx], signed[idx+1:]
	if !hmac.Equal([]byte(tag), []byte(valueTag(secret, value))) {
		return "", false
	}
	return value, true
}
