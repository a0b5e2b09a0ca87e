package handlers

import (
	"time"

	"taskhub/internal/models"
	"taskhub/internal/service"
)

type preferencesResponse struct {
	Enable2FA          bool   `json:"enable2FA"`
	EmailNotifications bool   `json:"emailNotifications"`
	Theme              string `json:"theme"`
	Locale             string `json:"locale"`
}

type userResponse struct {
	ID               string              `json:"id"`
	Name             string              `json:"name"`
	Email            string              `json:"email"`
	ProfilePicture   *string             `json:"profilePicture"`
	IsEmailVerified  bool                `json:"isEmailVerified"`
	IsActive         bool                `json:"isActive"`
	LastLogin        *time.Time          `json:"lastLogin"`
	CurrentWorkspace *string             `json:"currentWorkspace"`
	Preferences      preferencesResponse `json:"preferences"`
	CreatedAt        time.Time           `json:"createdAt"`
	UpdatedAt        time.Time           `json:"updatedAt"`
}

func newUserResponse(user models.User) userResponse {
	return userResponse{
		ID:               user.ID,
		Name:             user.Name,
		Email:            user.Email,
		ProfilePicture:   user.ProfilePicture,
		IsEmailVerified:  user.IsEmailVerified,
		IsActive:         user.IsActive,
		LastLogin:        user.LastLogin,
		CurrentWorkspace: user.CurrentWorkspace,
		Preferences: preferencesResponse{
			Enable2FA:          user.Preferences.Enable2FA,
			EmailNotifications: user.Preferences.EmailNotifications,
			Theme:              user.Preferences.Theme,
			Locale:             user.Preferences.Locale,
		},
		CreatedAt: user.CreatedAt,
		UpdatedAt: user.UpdatedAt,
	}
}

type sessionResponse struct {
	ID        string    `json:"id"`
	UserAgent string    `json:"userAgent"`
	CreatedAt time.Time `json:"createdAt"`
	ExpiresAt time.Time `json:"expiresAt"`
	Current   bool      `json:"current"`
}

func newSessionResponse(view service.SessionView) sessionResponse {
	return sessionResponse{
		ID:        view.ID,
		UserAgent: view.UserAgent,
		CreatedAt: view.CreatedAt,
		ExpiresAt: view.ExpiresAt,
		Current:   view.Current,
	}
}
