package mail

import (
	"bytes"
	"fmt"
	"html/template"
	"net/url"
	"time"
)

var (
	verifyEmailHTML = template.Must(template.New("verify").Parse(`<!doctype html>
<html><body style="font-family:sans-serif">
<h2>Confirm your email</h2>
<p>Click the link below to verify your TaskHub account. The link expires at {{.ExpiresAt}}.</p>
<p><a href="{{.URL}}">Verify email</a></p>
</body></html>`))

	resetPasswordHTML = template.Must(template.New("reset").Parse(`<!doctype html>
<html><body style="font-family:sans-serif">
<h2>Reset your password</h2>
<p>We received a request to reset your TaskHub password. The link expires at {{.ExpiresAt}}.</p>
<p><a href="{{.URL}}">Choose a new password</a></p>
<p>If you did not ask for this, you can ignore this email.</p>
</body></html>`))
)

type linkData struct {
	URL       string
	ExpiresAt string
}

// VerificationURL is the client page that confirms an account.
func VerificationURL(origin, code string) string {
	return fmt.Sprintf("%s/confirm-account?code=%s", origin, url.QueryEscape(code))
}

// ResetPasswordURL embeds the code and its expiry in milliseconds.
func ResetPasswordURL(origin, code string, expiresAt time.Time) string {
	return fmt.Sprintf("%s/reset-password?code=%s&exp=%d", origin, url.QueryEscape(code), expiresAt.UnixMilli())
}

func VerifyEmail(to, link string, expiresAt time.Time) (Message, error) {
	return render(to, "Confirm your TaskHub account", verifyEmailHTML, link, expiresAt,
		"Verify your email by visiting "+link)
}

func ResetPassword(to, link string, expiresAt time.Time) (Message, error) {
	return render(to, "Reset your TaskHub password", resetPasswordHTML, link, expiresAt,
		"Reset your password by visiting "+link)
}

func render(to, subject string, tpl *template.Template, link string, expiresAt time.Time, text string) (Message, error) {
	var buf bytes.Buffer
	data := linkData{URL: link, ExpiresAt: expiresAt.UTC().Format(time.RFC1123)}
	if err := tpl.Execute(&buf, data); err != nil {
		return Message{}, fmt.Errorf("render %s: %w", tpl.Name(), err)
	}
	return Message{
		To:      []string{to},
		Subject: subject,
		Text:    text,
		HTML:    buf.String(),
	}, nil
}
