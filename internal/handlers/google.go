package handlers

import (
	"net/http"
	"net/url"
	"strings"

	"github.com/gin-gonic/gin"

	"taskhub/internal/apperr"
	"taskhub/internal/middleware"
	"taskhub/internal/service"
)

func (h HandlerSet) googleEnabled() bool {
	return h.google != nil && h.google.Enabled()
}

func (h HandlerSet) GoogleLogin(c *gin.Context) {
	if !h.googleEnabled() {
		middleware.AbortWithError(c, apperr.NotFound(apperr.CodeResourceNotFound, "Google sign-in is not configured"))
		return
	}

	authURL, err := h.google.AuthURL(c.Request.Context())
	if err != nil {
		middleware.AbortWithError(c, apperr.Internal("start google sign-in", err))
		return
	}
	c.Redirect(http.StatusFound, authURL)
}

// GoogleCallback finishes the redirect flow. Failures never render an error
// body; the browser is sent to the configured failure page instead.
func (h HandlerSet) GoogleCallback(c *gin.Context) {
	if !h.googleEnabled() {
		middleware.AbortWithError(c, apperr.NotFound(apperr.CodeResourceNotFound, "Google sign-in is not configured"))
		return
	}

	if reason := c.Query("error"); reason != "" {
		h.log.Warn().Str("reason", reason).Msg("google sign-in declined")
		c.Redirect(http.StatusFound, h.cfg.App.FailureRedirectURL)
		return
	}

	ctx := c.Request.Context()
	profile, err := h.google.Exchange(ctx, c.Query("state"), c.Query("code"))
	if err != nil {
		h.log.Warn().Err(err).Msg("google exchange failed")
		c.Redirect(http.StatusFound, h.cfg.App.FailureRedirectURL)
		return
	}

	result, err := h.auth.LoginOrCreateAccount(ctx, service.SocialLoginInput{
		Provider:   profile.Provider,
		ProviderID: profile.ProviderID,
		Email:      profile.Email,
		Name:       profile.Name,
		Picture:    profile.Picture,
		UserAgent:  c.GetHeader("User-Agent"),
	})
	if err != nil {
		h.log.Warn().Err(err).Msg("google login failed")
		c.Redirect(http.StatusFound, h.cfg.App.FailureRedirectURL)
		return
	}

	origin := strings.TrimRight(h.cfg.App.ClientOrigin, "/")
	if result.MFARequired {
		c.Redirect(http.StatusFound, origin+"?mfa=required&email="+url.QueryEscape(result.User.Email))
		return
	}

	h.setAccessCookie(c, result.Tokens.AccessToken)
	h.setRefreshCookie(c, result.Tokens.RefreshToken)

	target := origin
	if ws := result.User.CurrentWorkspace; ws != nil {
		target = origin + "/workspace/" + url.PathEscape(*ws)
	}
	c.Redirect(http.StatusFound, target)
}
