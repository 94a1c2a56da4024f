package middleware

import (
	"github.com/gin-gonic/gin"

	"github.com/noah-isme/sma-approval-api/internal/models"
	appErrors "github.com/noah-isme/sma-approval-api/pkg/errors"
	"github.com/noah-isme/sma-approval-api/pkg/response"
)

// RequireRoles allows the request through only for the listed roles.
func RequireRoles(roles ...models.UserRole) gin.HandlerFunc {
	allowed := make(map[models.UserRole]struct{}, len(roles))
	for _, role := range roles {
		allowed[role] = struct{}{}
	}
	return func(c *gin.Context) {
		claims := CurrentUser(c)
		if claims == nil {
			response.Error(c, appErrors.ErrUnauthorized)
			c.Abort()
			return
		}
		if _, ok := allowed[claims.Role]; !ok {
			response.Error(c, appErrors.Clone(appErrors.ErrForbidden, "role is not allowed to perform this action"))
			c.Abort()
			return
		}
		c.Next()
	}
}

// RequireReviewer allows admins and vice principals.
func RequireReviewer() gin.HandlerFunc {
	return RequireRoles(models.RoleAdmin, models.RoleVicePrincipal)
}
