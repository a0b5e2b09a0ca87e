package security

import (
	"bytes"
	"encoding/base64"
	"fmt"
	"image/png"
	"net/url"
	"time"

	"github.com/pquerna/otp"
	"github.com/pquerna/otp/totp"
)

const (
	totpPeriod   = 30
	totpSkew     = 1
	qrCodeSize   = 256
	secretLength = 20
)

// TOTP issues and checks RFC 6238 codes: SHA1, six digits, 30 second step,
// one step of drift either way.
type TOTP struct {
	issuer string
	now    func() time.Time
}

func NewTOTP(issuer string) *TOTP {
	return &TOTP{issuer: issuer, now: time.Now}
}

func (t *TOTP) WithClock(now func() time.Time) *TOTP {
	return &TOTP{issuer: t.issuer, now: now}
}

// GenerateSecret returns a fresh base32 shared secret.
func (t *TOTP) GenerateSecret(account string) (string, error) {
	key, err := totp.Generate(totp.GenerateOpts{
		Issuer:      t.issuer,
		AccountName: account,
		Period:      totpPeriod,
		SecretSize:  secretLength,
		Digits:      otp.DigitsSix,
		Algorithm:   otp.AlgorithmSHA1,
	})
	if err != nil {
		return "", fmt.Errorf("generate totp secret: %w", err)
	}
	return key.Secret(), nil
}

// Provision builds the otpauth:// URI for secret and renders it as a PNG QR
// code data URL.
func (t *TOTP) Provision(secret, account string) (string, string, error) {
	query := url.Values{}
	query.Set("secret", secret)
	query.Set("issuer", t.issuer)
	query.Set("algorithm", "SHA1")
	query.Set("digits", "6")
	query.Set("period", fmt.Sprint(totpPeriod))

	uri := url.URL{
		Scheme:   "otpauth",
		Host:     "totp",
		Path:     "/" + t.issuer + ":" + account,
		RawQuery: query.Encode(),
	}

	key, err := otp.NewKeyFromURL(uri.String())
	if err != nil {
		return "", "", fmt.Errorf("parse otpauth uri: %w", err)
	}

	img, err := key.Image(qrCodeSize, qrCodeSize)
	if err != nil {
		return "", "", fmt.Errorf("render qr code: %w", err)
	}

	var buf bytes.Buffer
	if err := png.Encode(&buf, img); err != nil {
		return "", "", fmt.Errorf("encode qr code: %w", err)
	}

	return key.URL(), "data:image/png;base64," + base64.StdEncoding.EncodeToString(buf.Bytes()), nil
}

// Validate reports whether code is currently valid for secret.
func (t *TOTP) Validate(code, secret string) bool {
	ok, err := totp.ValidateCustom(code, secret, t.now().UTC(), totp.ValidateOpts{
		Period:    totpPeriod,
		Skew:      totpSkew,
		Digits:    otp.DigitsSix,
		Algorithm: otp.AlgorithmSHA1,
	})
	return err == nil && ok
}
