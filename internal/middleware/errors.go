package middleware

import (
	"github.com/gin-gonic/gin"

	"taskhub/internal/apperr"
)

// AbortWithError writes err as {"error": code, "message": message} with the
// status its kind maps to. The wrapped cause is attached to the gin context
// for the request logger and never sent to the client.
func AbortWithError(c *gin.Context, err error) {
	e := apperr.From(err)
	_ = c.Error(err)
	c.AbortWithStatusJSON(apperr.Status(e), gin.H{
		"error":   e.Code,
		"message": e.Message,
	})
}
