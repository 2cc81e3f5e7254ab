package middleware

import (
	"github.com/labstack/echo/v4"
)

const RoleAdmin = "admin"

// RequireRoles ensures the requester's role is one of the allowed roles.
// Usage: route(..., RequireRoles("admin"))
func RequireRoles(roles ...string) echo.MiddlewareFunc {
	return func(next echo.HandlerFunc) echo.HandlerFunc {
		return func(c echo.Context) error {
			role, _ := c.Get(ContextRole).(string)
			if role == "" {
				return RespondError(c, Forbidden("role missing"))
			}
			for _, r := range roles {
				if role == r {
					return next(c)
				}
			}
			return RespondError(c, Forbidden("access denied"))
		}
	}
}

// AdminGuard ensures only admin users can access admin routes
func AdminGuard(next echo.HandlerFunc) echo.HandlerFunc {
	return RequireRoles(RoleAdmin)(next)
}
