package middleware

import (
	"context"
	"errors"

	"github.com/gin-gonic/gin"

	"taskhub/internal/apperr"
	"taskhub/internal/permission"
	"taskhub/internal/repository"
)

const roleKey = "workspace_role"

// RoleResolver looks up the role a user holds in a workspace.
type RoleResolver interface {
	RoleName(ctx context.Context, userID string, workspaceID string) (string, error)
}

// RequirePermissions runs after Auth on routes carrying a :workspaceId param.
// A caller without a membership is treated as holding an unknown role.
func RequirePermissions(roles RoleResolver, required ...permission.Permission) gin.HandlerFunc {
	return func(c *gin.Context) {
		user, ok := CurrentUser(c)
		if !ok {
			AbortWithError(c, apperr.Unauthorized(apperr.CodeAuthTokenNotFound, "Access token not found"))
			return
		}

		roleName, err := roles.RoleName(c.Request.Context(), user.ID, c.Param("workspaceId"))
		if err != nil && !errors.Is(err, repository.ErrNotFound) {
			AbortWithError(c, apperr.Internal("resolve workspace role", err))
			return
		}

		if err := permission.Guard(roleName, required...); err != nil {
			AbortWithError(c, err)
			return
		}

		c.Set(roleKey, roleName)
		c.Next()
	}
}

// WorkspaceRole returns the role name resolved by RequirePermissions.
func WorkspaceRole(c *gin.Context) string {
	return c.GetString(roleKey)
}
