package models

import "time"

type Preferences struct {
	Enable2FA          bool
	TwoFactorSecret    string
	EmailNotifications bool
	Theme              string
	Locale             string
}

type User struct {
	ID               string
	Email            string
	PasswordHash     []byte
	Name             string
	ProfilePicture   *string
	IsEmailVerified  bool
	IsActive         bool
	LastLogin        *time.Time
	CurrentWorkspace *string
	Preferences      Preferences
	CreatedAt        time.Time
	UpdatedAt        time.Time
}

func (u User) HasPassword() bool {
	return len(u.PasswordHash) > 0
}

// Public strips credentials and the MFA secret before the user leaves the service layer.
func (u User) Public() User {
	u.PasswordHash = nil
	u.Preferences.TwoFactorSecret = ""
	return u
}

func DefaultPreferences() Preferences {
	return Preferences{
		EmailNotifications: true,
		Theme:              "light",
		Locale:             "en",
	}
}

type Provider string

const (
	ProviderEmail  Provider = "EMAIL"
	ProviderGoogle Provider = "GOOGLE"
)

type Account struct {
	ID         string
	UserID     string
	Provider   Provider
	ProviderID string
	CreatedAt  time.Time
}

type Session struct {
	ID        string
	UserID    string
	UserAgent string
	ExpiresAt time.Time
	CreatedAt time.Time
}

func (s Session) Expired(now time.Time) bool {
	return !now.Before(s.ExpiresAt)
}
