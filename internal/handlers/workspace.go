package handlers

import (
	"net/http"

	"github.com/gin-gonic/gin"

	"taskhub/internal/middleware"
	"taskhub/internal/permission"
)

// WorkspaceAccess reports the caller's role in a workspace and what it grants.
func (h HandlerSet) WorkspaceAccess(c *gin.Context) {
	roleName := middleware.WorkspaceRole(c)
	role, _ := permission.ParseRole(roleName)

	c.JSON(http.StatusOK, gin.H{
		"workspaceId": c.Param("workspaceId"),
		"role":        role.String(),
		"permissions": permission.Permissions(role),
	})
}
