package middleware

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"

	"github.com/gin-gonic/gin"
	"github.com/rs/zerolog"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"taskhub/internal/apperr"
	"taskhub/internal/models"
	"taskhub/internal/permission"
	"taskhub/internal/repository"
	"taskhub/internal/service"
)

func init() {
	gin.SetMode(gin.TestMode)
}

type fakeAuthenticator struct {
	calls int
}

func (f *fakeAuthenticator) Authenticate(_ context.Context, token string) (service.Identity, error) {
	f.calls++
	if token != "good-token" {
		return service.Identity{}, apperr.Unauthorized(apperr.CodeAuthTokenNotFound, "Invalid or expired token")
	}
	return service.Identity{User: models.User{ID: "user-1", Email: "jane@example.com"}, SessionID: "sess-1"}, nil
}

type fakeRoles map[string]string

func (f fakeRoles) RoleName(_ context.Context, userID, workspaceID string) (string, error) {
	if workspaceID == "broken" {
		return "", errors.New("connection reset")
	}
	role, ok := f[userID+"/"+workspaceID]
	if !ok {
		return "", repository.ErrNotFound
	}
	return role, nil
}

func decodeError(t *testing.T, rr *httptest.ResponseRecorder) map[string]string {
	t.Helper()
	var body map[string]string
	require.NoError(t, json.Unmarshal(rr.Body.Bytes(), &body))
	return body
}

func newAuthRouter(auth Authenticator) *gin.Engine {
	r := gin.New()
	r.GET("/me", Auth(auth), func(c *gin.Context) {
		user, _ := CurrentUser(c)
		c.JSON(http.StatusOK, gin.H{"id": user.ID, "session": CurrentSessionID(c)})
	})
	return r
}

func TestAuthAcceptsCookieAndBearer(t *testing.T) {
	r := newAuthRouter(&fakeAuthenticator{})

	cookieReq := httptest.NewRequest(http.MethodGet, "/me", nil)
	cookieReq.AddCookie(&http.Cookie{Name: AccessTokenCookie, Value: "good-token"})
	rr := httptest.NewRecorder()
	r.ServeHTTP(rr, cookieReq)
	require.Equal(t, http.StatusOK, rr.Code)
	assert.Equal(t, map[string]string{"id": "user-1", "session": "sess-1"}, decodeError(t, rr))

	bearerReq := httptest.NewRequest(http.MethodGet, "/me", nil)
	bearerReq.Header.Set("Authorization", "Bearer good-token")
	rr = httptest.NewRecorder()
	r.ServeHTTP(rr, bearerReq)
	assert.Equal(t, http.StatusOK, rr.Code)
}

func TestAuthRejectsMissingAndInvalidTokens(t *testing.T) {
	auth := &fakeAuthenticator{}
	r := newAuthRouter(auth)

	rr := httptest.NewRecorder()
	r.ServeHTTP(rr, httptest.NewRequest(http.MethodGet, "/me", nil))
	require.Equal(t, http.StatusUnauthorized, rr.Code)
	assert.Equal(t, apperr.CodeAuthTokenNotFound, decodeError(t, rr)["error"])
	assert.Equal(t, 0, auth.calls)

	req := httptest.NewRequest(http.MethodGet, "/me", nil)
	req.Header.Set("Authorization", "Bearer forged")
	rr = httptest.NewRecorder()
	r.ServeHTTP(rr, req)
	require.Equal(t, http.StatusUnauthorized, rr.Code)
	assert.Equal(t, apperr.CodeAuthTokenNotFound, decodeError(t, rr)["error"])
}

func newPermissionRouter(roles RoleResolver, required ...permission.Permission) *gin.Engine {
	r := gin.New()
	r.GET("/workspaces/:workspaceId",
		func(c *gin.Context) {
			c.Set(currentUserKey, models.User{ID: "user-1"})
		},
		RequirePermissions(roles, required...),
		func(c *gin.Context) {
			c.JSON(http.StatusOK, gin.H{"role": WorkspaceRole(c)})
		},
	)
	return r
}

func TestRequirePermissions(t *testing.T) {
	roles := fakeRoles{
		"user-1/ws-owner":  "OWNER",
		"user-1/ws-member": "MEMBER",
		"user-1/ws-legacy": "VIEWER",
		"user-1/ws-lower":  "owner",
	}

	cases := []struct {
		name      string
		workspace string
		required  []permission.Permission
		status    int
		code      string
	}{
		{name: "owner may delete", workspace: "ws-owner", required: []permission.Permission{permission.DeleteWorkspace}, status: http.StatusOK},
		{name: "member may not delete", workspace: "ws-member", required: []permission.Permission{permission.DeleteWorkspace}, status: http.StatusUnauthorized, code: apperr.CodeAccessUnauthorized},
		{name: "member may view", workspace: "ws-member", required: []permission.Permission{permission.ViewOnly}, status: http.StatusOK},
		{name: "unknown role with nothing required", workspace: "ws-legacy", status: http.StatusUnauthorized, code: apperr.CodeRoleNotFound},
		{name: "lowercase stored role", workspace: "ws-lower", required: []permission.Permission{permission.ViewOnly}, status: http.StatusUnauthorized, code: apperr.CodeRoleNotFound},
		{name: "no membership", workspace: "ws-other", required: []permission.Permission{permission.ViewOnly}, status: http.StatusUnauthorized, code: apperr.CodeRoleNotFound},
		{name: "resolver failure", workspace: "broken", status: http.StatusInternalServerError, code: apperr.CodeInternal},
	}

	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			rr := httptest.NewRecorder()
			newPermissionRouter(roles, tc.required...).ServeHTTP(rr, httptest.NewRequest(http.MethodGet, "/workspaces/"+tc.workspace, nil))
			require.Equal(t, tc.status, rr.Code)
			if tc.code != "" {
				assert.Equal(t, tc.code, decodeError(t, rr)["error"])
			}
		})
	}
}

func TestIPRateLimiter(t *testing.T) {
	limiter := NewIPRateLimiter(1, 2, zerolog.Nop())
	r := gin.New()
	r.POST("/login", limiter.Handler(), func(c *gin.Context) { c.Status(http.StatusNoContent) })

	send := func(ip string) int {
		req := httptest.NewRequest(http.MethodPost, "/login", nil)
		req.RemoteAddr = ip + ":4321"
		rr := httptest.NewRecorder()
		r.ServeHTTP(rr, req)
		return rr.Code
	}

	assert.Equal(t, http.StatusNoContent, send("10.0.0.1"))
	assert.Equal(t, http.StatusNoContent, send("10.0.0.1"))
	assert.Equal(t, http.StatusTooManyRequests, send("10.0.0.1"))
	assert.Equal(t, http.StatusNoContent, send("10.0.0.2"))
}

func TestRequestIDAndCORS(t *testing.T) {
	r := gin.New()
	r.Use(RequestID(zerolog.Nop()), CORS([]string{"http://localhost:5173/"}))
	r.GET("/ping", func(c *gin.Context) { c.Status(http.StatusOK) })

	req := httptest.NewRequest(http.MethodGet, "/ping", nil)
	req.Header.Set(requestIDHeader, "abc-123")
	req.Header.Set("Origin", "http://localhost:5173")
	rr := httptest.NewRecorder()
	r.ServeHTTP(rr, req)
	assert.Equal(t, "abc-123", rr.Header().Get(requestIDHeader))
	assert.Equal(t, "http://localhost:5173", rr.Header().Get("Access-Control-Allow-Origin"))
	assert.Equal(t, "true", rr.Header().Get("Access-Control-Allow-Credentials"))

	req = httptest.NewRequest(http.MethodGet, "/ping", nil)
	req.Header.Set(requestIDHeader, strings.Repeat("x", 200))
	req.Header.Set("Origin", "http://evil.test")
	rr = httptest.NewRecorder()
	r.ServeHTTP(rr, req)
	assert.Len(t, rr.Header().Get(requestIDHeader), 36)
	assert.Empty(t, rr.Header().Get("Access-Control-Allow-Origin"))

	req = httptest.NewRequest(http.MethodOptions, "/ping", nil)
	rr = httptest.NewRecorder()
	r.ServeHTTP(rr, req)
	assert.Equal(t, http.StatusNoContent, rr.Code)
}

func TestRecoveryReturnsInternalError(t *testing.T) {
	r := gin.New()
	r.Use(Recovery(zerolog.Nop()))
	r.GET("/boom", func(c *gin.Context) { panic("boom") })

	rr := httptest.NewRecorder()
	r.ServeHTTP(rr, httptest.NewRequest(http.MethodGet, "/boom", nil))
	require.Equal(t, http.StatusInternalServerError, rr.Code)
	assert.Equal(t, apperr.CodeInternal, decodeError(t, rr)["error"])
}

func TestRequestIDReplacesUnprintableIDs(t *testing.T) {
	r := gin.New()
	r.Use(RequestID(zerolog.Nop()))
	r.GET("/ping", func(c *gin.Context) { c.String(http.StatusOK, RequestIDFrom(c)) })

	for _, id := range []string{"abc def", "abc\tdef", "id\"quoted\"", "caf\u00e9"} {
		req := httptest.NewRequest(http.MethodGet, "/ping", nil)
		req.Header.Set(requestIDHeader, id)
		rr := httptest.NewRecorder()
		r.ServeHTTP(rr, req)
		assert.Len(t, rr.Header().Get(requestIDHeader), 36, id)
		assert.Equal(t, rr.Header().Get(requestIDHeader), rr.Body.String())
	}
}

func TestRequestIDScopesLogger(t *testing.T) {
	var buf bytes.Buffer
	r := gin.New()
	r.Use(RequestID(zerolog.New(&buf)))
	r.GET("/ping", func(c *gin.Context) {
		zerolog.Ctx(c.Request.Context()).Info().Msg("inside handler")
		c.Status(http.StatusOK)
	})

	req := httptest.NewRequest(http.MethodGet, "/ping", nil)
	req.Header.Set(requestIDHeader, "abc-123")
	r.ServeHTTP(httptest.NewRecorder(), req)

	assert.Contains(t, buf.String(), `"request_id":"abc-123"`)
	assert.Contains(t, buf.String(), "inside handler")
}

func TestLoggerQuietsHealthChecks(t *testing.T) {
	var buf bytes.Buffer
	r := gin.New()
	r.Use(Logger(zerolog.New(&buf).Level(zerolog.InfoLevel)))
	r.GET("/api/healthz", func(c *gin.Context) { c.Status(http.StatusOK) })
	r.GET("/api/items/:id", func(c *gin.Context) { c.String(http.StatusOK, "ok") })

	r.ServeHTTP(httptest.NewRecorder(), httptest.NewRequest(http.MethodGet, "/api/healthz", nil))
	assert.Empty(t, buf.String())

	r.ServeHTTP(httptest.NewRecorder(), httptest.NewRequest(http.MethodGet, "/api/items/42", nil))
	assert.Contains(t, buf.String(), `"route":"/api/items/:id"`)
	assert.Contains(t, buf.String(), `"path":"/api/items/42"`)
	assert.Contains(t, buf.String(), `"bytes":2`)
	buf.Reset()

	r.ServeHTTP(httptest.NewRecorder(), httptest.NewRequest(http.MethodGet, "/nowhere", nil))
	assert.Contains(t, buf.String(), `"route":"unmatched"`)
	assert.Contains(t, buf.String(), `"level":"warn"`)
}

func TestCORSPreflight(t *testing.T) {
	r := gin.New()
	r.Use(CORS([]string{"http://localhost:5173"}))
	r.POST("/ping", func(c *gin.Context) { c.Status(http.StatusOK) })

	preflight := func(origin string) *httptest.ResponseRecorder {
		req := httptest.NewRequest(http.MethodOptions, "/ping", nil)
		req.Header.Set("Origin", origin)
		req.Header.Set("Access-Control-Request-Method", http.MethodPost)
		rr := httptest.NewRecorder()
		r.ServeHTTP(rr, req)
		return rr
	}

	rr := preflight("http://LOCALHOST:5173")
	assert.Equal(t, http.StatusNoContent, rr.Code)
	assert.Equal(t, "600", rr.Header().Get("Access-Control-Max-Age"))
	assert.Contains(t, rr.Header().Get("Access-Control-Allow-Headers"), requestIDHeader)
	assert.Equal(t, requestIDHeader, rr.Header().Get("Access-Control-Expose-Headers"))
	assert.Contains(t, rr.Header().Values("Vary"), "Origin")

	rr = preflight("http://evil.test")
	assert.Equal(t, http.StatusForbidden, rr.Code)
	assert.Empty(t, rr.Header().Get("Access-Control-Allow-Methods"))
}

func TestCORSOpenPolicyWithholdsCredentials(t *testing.T) {
	r := gin.New()
	r.Use(CORS(nil))
	r.GET("/ping", func(c *gin.Context) { c.Status(http.StatusOK) })

	req := httptest.NewRequest(http.MethodGet, "/ping", nil)
	req.Header.Set("Origin", "http://anywhere.test")
	rr := httptest.NewRecorder()
	r.ServeHTTP(rr, req)

	assert.Equal(t, http.StatusOK, rr.Code)
	assert.Equal(t, "http://anywhere.test", rr.Header().Get("Access-Control-Allow-Origin"))
	assert.Empty(t, rr.Header().Get("Access-Control-Allow-Credentials"))
}

func TestRecoveryLogsStackWithRequestID(t *testing.T) {
	var buf bytes.Buffer
	r := gin.New()
	r.Use(RequestID(zerolog.New(&buf)), Recovery(zerolog.Nop()))
	r.GET("/boom", func(c *gin.Context) { panic("boom") })

	req := httptest.NewRequest(http.MethodGet, "/boom", nil)
	req.Header.Set(requestIDHeader, "abc-123")
	rr := httptest.NewRecorder()
	r.ServeHTTP(rr, req)

	require.Equal(t, http.StatusInternalServerError, rr.Code)
	assert.Equal(t, "internal server error", decodeError(t, rr)["message"])
	assert.Contains(t, buf.String(), "panic recovered: boom")
	assert.Contains(t, buf.String(), `"request_id":"abc-123"`)
	assert.Contains(t, buf.String(), `"route":"/boom"`)
	assert.Contains(t, buf.String(), `"stack"`)
}

func TestRecoveryLetsAbortHandlerThrough(t *testing.T) {
	r := gin.New()
	r.Use(Recovery(zerolog.Nop()))
	r.GET("/abort", func(c *gin.Context) { panic(http.ErrAbortHandler) })

	assert.PanicsWithValue(t, http.ErrAbortHandler, func() {
		r.ServeHTTP(httptest.NewRecorder(), httptest.NewRequest(http.MethodGet, "/abort", nil))
	})
}
