package middleware

import (
	"context"
	"strings"

	"github.com/gin-gonic/gin"

	"taskhub/internal/apperr"
	"taskhub/internal/models"
	"taskhub/internal/service"
)

const (
	AccessTokenCookie  = "accessToken"
	RefreshTokenCookie = "refreshToken"

	currentUserKey = "current_user"
	sessionIDKey   = "session_id"
)

type Authenticator interface {
	Authenticate(ctx context.Context, accessToken string) (service.Identity, error)
}

// Auth resolves the access token from the accessToken cookie or a bearer
// header and attaches the user and session id to the request. Every
// rejection carries AUTH_TOKEN_NOT_FOUND so clients know to try a refresh.
func Auth(auth Authenticator) gin.HandlerFunc {
	return func(c *gin.Context) {
		token := accessToken(c)
		if token == "" {
			AbortWithError(c, apperr.Unauthorized(apperr.CodeAuthTokenNotFound, "Access token not found"))
			return
		}

		identity, err := auth.Authenticate(c.Request.Context(), token)
		if err != nil {
			AbortWithError(c, err)
			return
		}

		c.Set(currentUserKey, identity.User)
		c.Set(sessionIDKey, identity.SessionID)

		c.Next()
	}
}

func accessToken(c *gin.Context) string {
	if cookie, err := c.Cookie(AccessTokenCookie); err == nil && cookie != "" {
		return cookie
	}
	header := c.GetHeader("Authorization")
	if strings.HasPrefix(header, "Bearer ") {
		return strings.TrimSpace(strings.TrimPrefix(header, "Bearer "))
	}
	return ""
}

// CurrentUser returns the user attached by Auth.
func CurrentUser(c *gin.Context) (models.User, bool) {
	val, exists := c.Get(currentUserKey)
	if !exists {
		return models.User{}, false
	}
	user, ok := val.(models.User)
	return user, ok
}

func CurrentSessionID(c *gin.Context) string {
	return c.GetString(sessionIDKey)
}
