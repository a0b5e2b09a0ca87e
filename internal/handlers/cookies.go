package handlers

import (
	"net/http"
	"time"

	"github.com/gin-gonic/gin"

	"taskhub/internal/middleware"
)

const refreshCookiePath = "/api/v1/auth/refresh"

func (h HandlerSet) setCookie(c *gin.Context, name, value, path string, ttl time.Duration) {
	sameSite := http.SameSiteLaxMode
	if h.cfg.IsProduction() {
		sameSite = http.SameSiteStrictMode
	}
	c.SetSameSite(sameSite)
	c.SetCookie(name, value, int(ttl.Seconds()), path, h.cfg.Security.CookieDomain, h.cfg.IsProduction(), true)
}

func (h HandlerSet) setAccessCookie(c *gin.Context, token string) {
	h.setCookie(c, middleware.AccessTokenCookie, token, "/", h.cfg.Security.JWTAccessTTL)
}

func (h HandlerSet) setRefreshCookie(c *gin.Context, token string) {
	h.setCookie(c, middleware.RefreshTokenCookie, token, refreshCookiePath, h.cfg.Security.JWTRefreshTTL)
}

func (h HandlerSet) clearAuthCookies(c *gin.Context) {
	h.setCookie(c, middleware.AccessTokenCookie, "", "/", -time.Second)
	h.setCookie(c, middleware.RefreshTokenCookie, "", refreshCookiePath, -time.Second)
}
