package middleware

import (
	"strings"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/rs/zerolog"
)

// quietPaths are polled by orchestrators and scrapers; successful hits
// only show up at debug level.
var quietPaths = []string{"/healthz", "/metrics"}

func Logger(log zerolog.Logger) gin.HandlerFunc {
	return func(c *gin.Context) {
		start := time.Now()

		c.Next()

		status := c.Writer.Status()
		reqLog := requestLogger(c, log)

		var event *zerolog.Event
		switch {
		case status >= 500:
			event = reqLog.Error()
		case status >= 400:
			event = reqLog.Warn()
		case isQuietPath(c.Request.URL.Path):
			event = reqLog.Debug()
		default:
			event = reqLog.Info()
		}

		if user, ok := CurrentUser(c); ok {
			event = event.Str("user_id", user.ID)
		}
		if workspaceID := c.Param("workspaceId"); workspaceID != "" {
			event = event.Str("workspace_id", workspaceID)
		}
		if errs := c.Errors.ByType(gin.ErrorTypeAny); len(errs) > 0 {
			event = event.Err(errs.Last().Err)
		}

		route := c.FullPath()
		if route == "" {
			route = "unmatched"
		}

		event.
			Str("method", c.Request.Method).
			Str("route", route).
			Str("path", c.Request.URL.Path).
			Str("client_ip", c.ClientIP()).
			Str("user_agent", c.Request.UserAgent()).
			Int("status", status).
			Int("bytes", c.Writer.Size()).
			Dur("latency", time.Since(start)).
			Msg("http request")
	}
}

func isQuietPath(path string) bool {
	for _, quiet := range quietPaths {
		if strings.HasSuffix(path, quiet) {
			return true
		}
	}
	return false
}
