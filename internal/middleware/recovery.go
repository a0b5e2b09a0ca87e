package middleware

import (
	"errors"
	"fmt"
	"net/http"
	"runtime/debug"

	"github.com/gin-gonic/gin"
	"github.com/rs/zerolog"

	"taskhub/internal/apperr"
)

// Recovery turns a handler panic into the standard INTERNAL_ERROR body.
// http.ErrAbortHandler is re-raised so net/http can drop the connection.
func Recovery(log zerolog.Logger) gin.HandlerFunc {
	return func(c *gin.Context) {
		defer func() {
			r := recover()
			if r == nil {
				return
			}
			if err, ok := r.(error); ok && errors.Is(err, http.ErrAbortHandler) {
				panic(r)
			}

			event := requestLogger(c, log).Error().
				Str("method", c.Request.Method).
				Str("route", c.FullPath()).
				Bytes("stack", debug.Stack())
			if user, ok := CurrentUser(c); ok {
				event = event.Str("user_id", user.ID)
			}
			event.Msgf("panic recovered: %v", r)

			if c.Writer.Written() {
				c.Abort()
				return
			}
			AbortWithError(c, apperr.Internal("internal server error", fmt.Errorf("panic: %v", r)))
		}()
		c.Next()
	}
}
