package handlers

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"net/http/httptest"
	"strings"
	"sync"
	"testing"
	"time"

	"github.com/alicebob/miniredis/v2"
	"github.com/gin-gonic/gin"
	"github.com/pquerna/otp/totp"
	"github.com/redis/go-redis/v9"
	"github.com/rs/zerolog"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"taskhub/internal/apperr"
	"taskhub/internal/config"
	"taskhub/internal/mail"
	"taskhub/internal/middleware"
	"taskhub/internal/models"
	"taskhub/internal/oauth"
	"taskhub/internal/repository/memory"
	"taskhub/internal/security"
	"taskhub/internal/service"
)

func init() {
	gin.SetMode(gin.TestMode)
}

type recordingMailer struct {
	mu   sync.Mutex
	sent []mail.Message
}

func (m *recordingMailer) Dispatch(_ context.Context, msg mail.Message) (string, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.sent = append(m.sent, msg)
	return "1-0", nil
}

type testEnv struct {
	router *gin.Engine
	store  *memory.Store
	cfg    *config.Config
}

func testConfig() *config.Config {
	return &config.Config{
		Environment: "test",
		Security: config.SecurityConfig{
			JWTAccessSecret:  "access-secret",
			JWTRefreshSecret: "refresh-secret",
			JWTAccessTTL:     15 * time.Minute,
			JWTRefreshTTL:    30 * 24 * time.Hour,
			RefreshThreshold: 24 * time.Hour,
			MaxSessions:      10,
		},
		Verification: config.VerificationConfig{
			EmailCodeTTL:     45 * time.Minute,
			ResetCodeTTL:     time.Hour,
			ResetWindow:      3 * time.Minute,
			ResetMaxInWindow: 2,
		},
		MFA: config.MFAConfig{Issuer: "TaskHub"},
		OAuth: config.OAuthConfig{Google: config.GoogleConfig{
			ClientID:     "client-id",
			ClientSecret: "client-secret",
			RedirectURL:  "http://localhost:8000/api/v1/auth/google/callback",
			StateTTL:     10 * time.Minute,
		}},
		App: config.AppConfig{
			ClientOrigin:       "http://localhost:5173",
			FailureRedirectURL: "http://localhost:5173?status=failure",
		},
		RateLimit: config.RateLimitConfig{AuthPerMinute: 6000, Burst: 100},
	}
}

func newTestEnv(t *testing.T, checks map[string]HealthCheck) *testEnv {
	t.Helper()

	cfg := testConfig()
	store := memory.New()
	auth := service.NewAuthService(service.AuthDeps{
		Store:  store,
		Hasher: security.NewArgon2Hasher(security.Argon2Params{Time: 1, Memory: 1024, Threads: 1, KeyLen: 16, SaltLen: 8}),
		Tokens: security.NewTokenCodec(cfg.Security),
		Mailer: &recordingMailer{},
	}, cfg, zerolog.Nop())
	mfa := service.NewMFAService(store, security.NewTOTP(cfg.MFA.Issuer), auth, zerolog.Nop())

	srv := miniredis.RunT(t)
	client := redis.NewClient(&redis.Options{Addr: srv.Addr()})
	t.Cleanup(func() { _ = client.Close() })
	states := oauth.NewStateStore(client, "state-secret", cfg.OAuth.Google.StateTTL)

	handlerSet := NewHandlerSet(zerolog.Nop(), cfg, Deps{
		Auth:   auth,
		MFA:    mfa,
		Roles:  store.Members(),
		Google: oauth.NewGoogle(cfg.OAuth.Google, states),
		Checks: checks,
	})

	router := gin.New()
	handlerSet.Register(router.Group("/api"))
	return &testEnv{router: router, store: store, cfg: cfg}
}

func (e *testEnv) do(t *testing.T, method, path string, body any, cookies ...*http.Cookie) *httptest.ResponseRecorder {
	t.Helper()
	var reader *bytes.Reader
	if body != nil {
		raw, err := json.Marshal(body)
		require.NoError(t, err)
		reader = bytes.NewReader(raw)
	} else {
		reader = bytes.NewReader(nil)
	}
	req := httptest.NewRequest(method, path, reader)
	req.Header.Set("Content-Type", "application/json")
	req.Header.Set("User-Agent", "handler-test")
	for _, cookie := range cookies {
		req.AddCookie(cookie)
	}
	rr := httptest.NewRecorder()
	e.router.ServeHTTP(rr, req)
	return rr
}

func (e *testEnv) register(t *testing.T, email string) {
	t.Helper()
	rr := e.do(t, http.MethodPost, "/api/v1/auth/register", gin.H{"name": "Jane", "email": email, "password": "correct-horse"})
	require.Equal(t, http.StatusCreated, rr.Code, rr.Body.String())
}

func (e *testEnv) login(t *testing.T, email string) (access, refresh *http.Cookie) {
	t.Helper()
	rr := e.do(t, http.MethodPost, "/api/v1/auth/login", gin.H{"email": email, "password": "correct-horse"})
	require.Equal(t, http.StatusOK, rr.Code, rr.Body.String())
	access = findCookie(rr, middleware.AccessTokenCookie)
	refresh = findCookie(rr, middleware.RefreshTokenCookie)
	require.NotNil(t, access)
	require.NotNil(t, refresh)
	return access, refresh
}

func findCookie(rr *httptest.ResponseRecorder, name string) *http.Cookie {
	for _, cookie := range rr.Result().Cookies() {
		if cookie.Name == name {
			return cookie
		}
	}
	return nil
}

func decode(t *testing.T, rr *httptest.ResponseRecorder) map[string]any {
	t.Helper()
	var body map[string]any
	require.NoError(t, json.Unmarshal(rr.Body.Bytes(), &body))
	return body
}

func TestRegisterEndpoint(t *testing.T) {
	env := newTestEnv(t, nil)

	rr := env.do(t, http.MethodPost, "/api/v1/auth/register", gin.H{"name": "Jane", "email": "Jane@Example.com", "password": "correct-horse"})
	require.Equal(t, http.StatusCreated, rr.Code)
	body := decode(t, rr)
	user := body["user"].(map[string]any)
	assert.Equal(t, "jane@example.com", user["email"])
	assert.Equal(t, false, user["isEmailVerified"])
	assert.NotEmpty(t, user["currentWorkspace"])
	assert.NotContains(t, rr.Body.String(), "twoFactorSecret")

	rr = env.do(t, http.MethodPost, "/api/v1/auth/register", gin.H{"name": "Jane", "email": "jane@example.com", "password": "correct-horse"})
	require.Equal(t, http.StatusConflict, rr.Code)
	assert.Equal(t, apperr.CodeAuthEmailAlreadyExists, decode(t, rr)["error"])
	assert.Equal(t, 1, env.store.Counts().Users)
}

func TestRegisterValidation(t *testing.T) {
	env := newTestEnv(t, nil)

	rr := env.do(t, http.MethodPost, "/api/v1/auth/register", gin.H{"name": "Jane", "email": "not-an-email", "password": "short"})
	require.Equal(t, http.StatusBadRequest, rr.Code)
	body := decode(t, rr)
	assert.Equal(t, apperr.CodeValidationError, body["error"])

	var fields []string
	for _, f := range body["fields"].([]any) {
		fields = append(fields, f.(map[string]any)["field"].(string))
	}
	assert.ElementsMatch(t, []string{"email", "password"}, fields)

	req := httptest.NewRequest(http.MethodPost, "/api/v1/auth/register", strings.NewReader("{"))
	req.Header.Set("Content-Type", "application/json")
	malformed := httptest.NewRecorder()
	env.router.ServeHTTP(malformed, req)
	assert.Equal(t, http.StatusBadRequest, malformed.Code)
	assert.Equal(t, 0, env.store.Counts().Users)
}

func TestLoginEndpoint(t *testing.T) {
	env := newTestEnv(t, nil)
	env.register(t, "jane@example.com")

	rr := env.do(t, http.MethodPost, "/api/v1/auth/login", gin.H{"email": "jane@example.com", "password": "correct-horse"})
	require.Equal(t, http.StatusOK, rr.Code)
	assert.Equal(t, false, decode(t, rr)["mfaRequired"])

	access := findCookie(rr, middleware.AccessTokenCookie)
	require.NotNil(t, access)
	assert.True(t, access.HttpOnly)
	assert.Equal(t, "/", access.Path)
	assert.Equal(t, int((15 * time.Minute).Seconds()), access.MaxAge)
	assert.Equal(t, http.SameSiteLaxMode, access.SameSite)

	refresh := findCookie(rr, middleware.RefreshTokenCookie)
	require.NotNil(t, refresh)
	assert.Equal(t, refreshCookiePath, refresh.Path)

	wrong := env.do(t, http.MethodPost, "/api/v1/auth/login", gin.H{"email": "jane@example.com", "password": "wrong-password"})
	require.Equal(t, http.StatusUnauthorized, wrong.Code)
	assert.Equal(t, "Invalid password", decode(t, wrong)["message"])
	assert.Nil(t, findCookie(wrong, middleware.AccessTokenCookie))

	unknown := env.do(t, http.MethodPost, "/api/v1/auth/login", gin.H{"email": "ghost@example.com", "password": "whatever"})
	require.Equal(t, http.StatusUnauthorized, unknown.Code)
	assert.Equal(t, "Invalid email", decode(t, unknown)["message"])
}

func TestProtectedRoutes(t *testing.T) {
	env := newTestEnv(t, nil)
	env.register(t, "jane@example.com")
	access, _ := env.login(t, "jane@example.com")

	rr := env.do(t, http.MethodGet, "/api/v1/auth/me", nil)
	require.Equal(t, http.StatusUnauthorized, rr.Code)
	assert.Equal(t, apperr.CodeAuthTokenNotFound, decode(t, rr)["error"])

	rr = env.do(t, http.MethodGet, "/api/v1/auth/me", nil, access)
	require.Equal(t, http.StatusOK, rr.Code)
	assert.Equal(t, "jane@example.com", decode(t, rr)["user"].(map[string]any)["email"])

	rr = env.do(t, http.MethodGet, "/api/v1/auth/sessions", nil, access)
	require.Equal(t, http.StatusOK, rr.Code)
	sessions := decode(t, rr)["sessions"].([]any)
	require.Len(t, sessions, 1)
	current := sessions[0].(map[string]any)
	assert.Equal(t, true, current["current"])
	assert.Equal(t, "handler-test", current["userAgent"])

	rr = env.do(t, http.MethodDelete, "/api/v1/auth/sessions/"+current["id"].(string), nil, access)
	assert.Equal(t, http.StatusBadRequest, rr.Code)
}

func TestRefreshEndpoint(t *testing.T) {
	env := newTestEnv(t, nil)
	env.register(t, "jane@example.com")
	_, refresh := env.login(t, "jane@example.com")

	rr := env.do(t, http.MethodGet, "/api/v1/auth/refresh", nil)
	require.Equal(t, http.StatusUnauthorized, rr.Code)

	rr = env.do(t, http.MethodGet, "/api/v1/auth/refresh", nil, refresh)
	require.Equal(t, http.StatusOK, rr.Code)
	assert.NotNil(t, findCookie(rr, middleware.AccessTokenCookie))
	assert.Nil(t, findCookie(rr, middleware.RefreshTokenCookie), "session far from expiry keeps its refresh token")

	forged := &http.Cookie{Name: middleware.RefreshTokenCookie, Value: "forged"}
	rr = env.do(t, http.MethodGet, "/api/v1/auth/refresh", nil, forged)
	assert.Equal(t, http.StatusUnauthorized, rr.Code)
}

func TestLogoutClearsCookiesAndSession(t *testing.T) {
	env := newTestEnv(t, nil)
	env.register(t, "jane@example.com")
	access, _ := env.login(t, "jane@example.com")

	rr := env.do(t, http.MethodPost, "/api/v1/auth/logout", nil, access)
	require.Equal(t, http.StatusOK, rr.Code)
	cleared := findCookie(rr, middleware.AccessTokenCookie)
	require.NotNil(t, cleared)
	assert.Empty(t, cleared.Value)
	assert.Negative(t, cleared.MaxAge)

	rr = env.do(t, http.MethodGet, "/api/v1/auth/me", nil, access)
	assert.Equal(t, http.StatusUnauthorized, rr.Code)
}

func TestVerifyEmailAndPasswordReset(t *testing.T) {
	env := newTestEnv(t, nil)
	env.register(t, "jane@example.com")
	access, _ := env.login(t, "jane@example.com")

	user, err := env.store.Users().FindByEmail(context.Background(), "jane@example.com")
	require.NoError(t, err)
	codes := env.store.CodesFor(user.ID, models.PurposeEmailVerification)
	require.Len(t, codes, 1)

	rr := env.do(t, http.MethodPost, "/api/v1/auth/verify/email", gin.H{"code": "nope"})
	assert.Equal(t, http.StatusNotFound, rr.Code)
	rr = env.do(t, http.MethodPost, "/api/v1/auth/verify/email", gin.H{"code": codes[0].Code})
	require.Equal(t, http.StatusOK, rr.Code)

	rr = env.do(t, http.MethodPost, "/api/v1/auth/verify/email/resend", nil, access)
	assert.Equal(t, http.StatusBadRequest, rr.Code)

	for i := 0; i < 2; i++ {
		rr = env.do(t, http.MethodPost, "/api/v1/auth/password/forgot", gin.H{"email": "jane@example.com"})
		require.Equal(t, http.StatusOK, rr.Code)
	}
	rr = env.do(t, http.MethodPost, "/api/v1/auth/password/forgot", gin.H{"email": "jane@example.com"})
	require.Equal(t, http.StatusTooManyRequests, rr.Code)
	assert.Equal(t, apperr.CodeTooManyAttempts, decode(t, rr)["error"])

	resets := env.store.CodesFor(user.ID, models.PurposePasswordReset)
	require.Len(t, resets, 2)
	rr = env.do(t, http.MethodPost, "/api/v1/auth/password/reset", gin.H{"password": "brand-new-pass", "verificationCode": resets[0].Code})
	require.Equal(t, http.StatusOK, rr.Code)
	assert.NotNil(t, findCookie(rr, middleware.AccessTokenCookie))

	rr = env.do(t, http.MethodGet, "/api/v1/auth/me", nil, access)
	assert.Equal(t, http.StatusUnauthorized, rr.Code, "reset revokes every session")

	rr = env.do(t, http.MethodPost, "/api/v1/auth/login", gin.H{"email": "jane@example.com", "password": "brand-new-pass"})
	assert.Equal(t, http.StatusOK, rr.Code)
}

func TestMFAEndpoints(t *testing.T) {
	env := newTestEnv(t, nil)
	env.register(t, "jane@example.com")
	access, _ := env.login(t, "jane@example.com")

	rr := env.do(t, http.MethodGet, "/api/v1/mfa/setup", nil, access)
	require.Equal(t, http.StatusOK, rr.Code)
	setup := decode(t, rr)
	secret := setup["secret"].(string)
	require.NotEmpty(t, secret)
	assert.True(t, strings.HasPrefix(setup["qrImageUrl"].(string), "data:image/png;base64,"))

	code, err := totp.GenerateCode(secret, time.Now())
	require.NoError(t, err)
	rr = env.do(t, http.MethodPost, "/api/v1/mfa/verify", gin.H{"code": code, "secretKey": secret}, access)
	require.Equal(t, http.StatusOK, rr.Code)
	assert.Equal(t, true, decode(t, rr)["enabled"])

	rr = env.do(t, http.MethodPost, "/api/v1/auth/login", gin.H{"email": "jane@example.com", "password": "correct-horse"})
	require.Equal(t, http.StatusOK, rr.Code)
	assert.Equal(t, true, decode(t, rr)["mfaRequired"])
	assert.Nil(t, findCookie(rr, middleware.AccessTokenCookie))

	rr = env.do(t, http.MethodPost, "/api/v1/mfa/verify-login", gin.H{"code": "12ab56", "email": "jane@example.com"})
	assert.Equal(t, http.StatusBadRequest, rr.Code)

	rr = env.do(t, http.MethodPost, "/api/v1/mfa/verify-login", gin.H{"code": code, "email": "jane@example.com"})
	require.Equal(t, http.StatusOK, rr.Code, rr.Body.String())
	assert.NotNil(t, findCookie(rr, middleware.AccessTokenCookie))

	rr = env.do(t, http.MethodPut, "/api/v1/mfa/revoke", nil, access)
	require.Equal(t, http.StatusOK, rr.Code)
	assert.Equal(t, false, decode(t, rr)["enabled"])
}

func TestWorkspaceAccess(t *testing.T) {
	env := newTestEnv(t, nil)
	env.register(t, "jane@example.com")
	access, _ := env.login(t, "jane@example.com")

	user, err := env.store.Users().FindByEmail(context.Background(), "jane@example.com")
	require.NoError(t, err)
	require.NotNil(t, user.CurrentWorkspace)

	rr := env.do(t, http.MethodGet, "/api/v1/workspaces/"+*user.CurrentWorkspace+"/access", nil, access)
	require.Equal(t, http.StatusOK, rr.Code)
	body := decode(t, rr)
	assert.Equal(t, "OWNER", body["role"])
	assert.Contains(t, body["permissions"], "DELETE_WORKSPACE")

	env.store.SeedMember(user.ID, "ws-shared", "MEMBER")
	rr = env.do(t, http.MethodGet, "/api/v1/workspaces/ws-shared/access", nil, access)
	require.Equal(t, http.StatusOK, rr.Code)
	assert.Equal(t, "MEMBER", decode(t, rr)["role"])

	rr = env.do(t, http.MethodGet, "/api/v1/workspaces/ws-foreign/access", nil, access)
	require.Equal(t, http.StatusUnauthorized, rr.Code)
	assert.Equal(t, apperr.CodeRoleNotFound, decode(t, rr)["error"])
}

func TestGoogleRedirects(t *testing.T) {
	env := newTestEnv(t, nil)

	rr := env.do(t, http.MethodGet, "/api/v1/auth/google", nil)
	require.Equal(t, http.StatusFound, rr.Code)
	location := rr.Header().Get("Location")
	assert.Contains(t, location, "accounts.google.com")
	assert.Contains(t, location, "state=")

	rr = env.do(t, http.MethodGet, "/api/v1/auth/google/callback?error=access_denied", nil)
	require.Equal(t, http.StatusFound, rr.Code)
	assert.Equal(t, env.cfg.App.FailureRedirectURL, rr.Header().Get("Location"))

	rr = env.do(t, http.MethodGet, "/api/v1/auth/google/callback?state=bogus&code=abc", nil)
	require.Equal(t, http.StatusFound, rr.Code)
	assert.Equal(t, env.cfg.App.FailureRedirectURL, rr.Header().Get("Location"))
	assert.Equal(t, 0, env.store.Counts().Users)
}

func TestHealth(t *testing.T) {
	env := newTestEnv(t, map[string]HealthCheck{
		"database": func(context.Context) error { return nil },
	})
	rr := env.do(t, http.MethodGet, "/api/healthz", nil)
	require.Equal(t, http.StatusOK, rr.Code)
	assert.Equal(t, "ok", decode(t, rr)["status"])

	env = newTestEnv(t, map[string]HealthCheck{
		"database": func(context.Context) error { return nil },
		"cache":    func(context.Context) error { return errors.New("dial tcp: refused") },
	})
	rr = env.do(t, http.MethodGet, "/api/healthz", nil)
	require.Equal(t, http.StatusServiceUnavailable, rr.Code)
	body := decode(t, rr)
	assert.Equal(t, "degraded", body["status"])
	assert.Equal(t, map[string]any{"database": "ok", "cache": "error"}, body["checks"])
}
