package handlers

import (
	"net/http"

	"github.com/gin-gonic/gin"
	"github.com/rs/zerolog"

	"taskhub/internal/config"
	"taskhub/internal/middleware"
	"taskhub/internal/oauth"
	"taskhub/internal/permission"
	"taskhub/internal/service"
)

type Deps struct {
	Auth  *service.AuthService
	MFA   *service.MFAService
	Roles middleware.RoleResolver
	// Google is optional; the redirect routes answer 404 without it.
	Google  *oauth.Google
	Limiter *middleware.IPRateLimiter
	Metrics http.Handler
	Checks  map[string]HealthCheck
}

type HandlerSet struct {
	log     zerolog.Logger
	cfg     *config.Config
	auth    *service.AuthService
	mfa     *service.MFAService
	roles   middleware.RoleResolver
	google  *oauth.Google
	limiter *middleware.IPRateLimiter
	metrics http.Handler
	checks  map[string]HealthCheck
}

func NewHandlerSet(log zerolog.Logger, cfg *config.Config, deps Deps) HandlerSet {
	registerValidatorTagNames()

	limiter := deps.Limiter
	if limiter == nil {
		limiter = middleware.NewIPRateLimiter(cfg.RateLimit.AuthPerMinute, cfg.RateLimit.Burst, log)
	}

	return HandlerSet{
		log:     log,
		cfg:     cfg,
		auth:    deps.Auth,
		mfa:     deps.MFA,
		roles:   deps.Roles,
		google:  deps.Google,
		limiter: limiter,
		metrics: deps.Metrics,
		checks:  deps.Checks,
	}
}

func (h HandlerSet) Register(router *gin.RouterGroup) {
	router.GET("/healthz", h.Health)
	if h.metrics != nil {
		router.GET("/metrics", gin.WrapH(h.metrics))
	}

	requireAuth := middleware.Auth(h.auth)
	throttle := h.limiter.Handler()

	v1 := router.Group("/v1")
	{
		auth := v1.Group("/auth")
		auth.POST("/register", throttle, h.RegisterUser)
		auth.POST("/login", throttle, h.Login)
		auth.GET("/refresh", h.Refresh)
		auth.POST("/verify/email", throttle, h.VerifyEmail)
		auth.POST("/password/forgot", throttle, h.ForgotPassword)
		auth.POST("/password/reset", throttle, h.ResetPassword)
		auth.GET("/google", h.GoogleLogin)
		auth.GET("/google/callback", h.GoogleCallback)

		protected := v1.Group("/auth")
		protected.Use(requireAuth)
		protected.POST("/logout", h.Logout)
		protected.GET("/me", h.Me)
		protected.GET("/sessions", h.ListSessions)
		protected.DELETE("/sessions/:sessionId", h.RevokeSession)
		protected.POST("/verify/email/resend", h.ResendVerification)
	}

	mfa := v1.Group("/mfa")
	{
		mfa.POST("/verify-login", throttle, h.VerifyMFALogin)
		mfa.GET("/setup", requireAuth, h.GenerateMFASetup)
		mfa.POST("/verify", requireAuth, h.VerifyMFASetup)
		mfa.PUT("/revoke", requireAuth, h.RevokeMFA)
	}

	workspaces := v1.Group("/workspaces/:workspaceId")
	workspaces.Use(requireAuth)
	workspaces.GET("/access",
		middleware.RequirePermissions(h.roles, permission.ViewOnly),
		h.WorkspaceAccess,
	)
}
