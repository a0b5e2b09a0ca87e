package middleware

import (
	"github.com/gin-gonic/gin"
	"github.com/google/uuid"
	"github.com/rs/zerolog"
)

const (
	requestIDHeader    = "X-Request-Id"
	requestIDKey       = "request_id"
	maxRequestIDLength = 128
)

// RequestID tags every request with an id and a logger carrying it. A
// caller supplied id is echoed only when it is short and printable, since
// it ends up verbatim in log lines.
func RequestID(log zerolog.Logger) gin.HandlerFunc {
	return func(c *gin.Context) {
		id := c.GetHeader(requestIDHeader)
		if !usableRequestID(id) {
			id = uuid.NewString()
		}

		c.Set(requestIDKey, id)
		c.Header(requestIDHeader, id)

		scoped := log.With().Str(requestIDKey, id).Logger()
		c.Request = c.Request.WithContext(scoped.WithContext(c.Request.Context()))

		c.Next()
	}
}

// RequestIDFrom returns the id assigned by RequestID, or "" outside it.
func RequestIDFrom(c *gin.Context) string {
	return c.GetString(requestIDKey)
}

// requestLogger prefers the request scoped logger so lines share the id.
func requestLogger(c *gin.Context, fallback zerolog.Logger) *zerolog.Logger {
	if scoped := zerolog.Ctx(c.Request.Context()); scoped.GetLevel() != zerolog.Disabled {
		return scoped
	}
	return &fallback
}

func usableRequestID(id string) bool {
	if id == "" || len(id) > maxRequestIDLength {
		return false
	}
	for i := 0; i < len(id); i++ {
		ch := id[i]
		switch {
		case ch >= 'a' && ch <= 'z', ch >= 'A' && ch <= 'Z', ch >= '0' && ch <= '9':
		case ch == '-' || ch == '_' || ch == '.' || ch == ':':
		default:
			return false
		}
	}
	return true
}
