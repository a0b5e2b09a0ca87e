package middleware

import (
	"net/http"
	"strconv"
	"strings"
	"time"

	"github.com/gin-gonic/gin"
)

const corsPreflightMaxAge = 10 * time.Minute

var (
	corsAllowHeaders = strings.Join([]string{"Authorization", "Content-Type", requestIDHeader}, ", ")
	corsAllowMethods = strings.Join([]string{
		http.MethodGet, http.MethodPost, http.MethodPut, http.MethodPatch, http.MethodDelete, http.MethodOptions,
	}, ", ")
)

// corsPolicy decides which browser origins may call the API. Listed
// origins get credentialed access so the auth cookies travel; with an
// empty list any origin may read responses, but never with credentials.
type corsPolicy struct {
	listed map[string]struct{}
}

func newCORSPolicy(origins []string) corsPolicy {
	p := corsPolicy{listed: make(map[string]struct{}, len(origins))}
	for _, origin := range origins {
		if origin = normalizeOrigin(origin); origin != "" {
			p.listed[origin] = struct{}{}
		}
	}
	return p
}

func (p corsPolicy) allows(origin string) (allowed, credentials bool) {
	if len(p.listed) == 0 {
		return true, false
	}
	_, ok := p.listed[normalizeOrigin(origin)]
	return ok, ok
}

func normalizeOrigin(origin string) string {
	return strings.ToLower(strings.TrimRight(strings.TrimSpace(origin), "/"))
}

func CORS(allowedOrigins []string) gin.HandlerFunc {
	policy := newCORSPolicy(allowedOrigins)

	return func(c *gin.Context) {
		origin := c.GetHeader("Origin")
		preflight := c.Request.Method == http.MethodOptions

		if origin != "" {
			h := c.Writer.Header()
			h.Add("Vary", "Origin")

			allowed, credentials := policy.allows(origin)
			if !allowed {
				if preflight {
					c.AbortWithStatus(http.StatusForbidden)
					return
				}
				c.Next()
				return
			}

			h.Set("Access-Control-Allow-Origin", origin)
			if credentials {
				h.Set("Access-Control-Allow-Credentials", "true")
			}
			h.Set("Access-Control-Expose-Headers", requestIDHeader)
		}

		if !preflight {
			c.Next()
			return
		}

		h := c.Writer.Header()
		h.Add("Vary", "Access-Control-Request-Method")
		h.Add("Vary", "Access-Control-Request-Headers")
		h.Set("Access-Control-Allow-Headers", corsAllowHeaders)
		h.Set("Access-Control-Allow-Methods", corsAllowMethods)
		h.Set("Access-Control-Max-Age", strconv.Itoa(int(corsPreflightMaxAge.Seconds())))
		c.AbortWithStatus(http.StatusNoContent)
	}
}
