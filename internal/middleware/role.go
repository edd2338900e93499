package middleware

import (
	"net/http"

	"github.com/labstack/echo/v4"
)

// Roles carried in the access token.
const (
	RoleCustomer = "CUSTOMER"
	RoleOperator = "OPERATOR"
)

// RequireRole rejects requests whose "role" context value is not one of
// roles with 403.  It must run after JWTAuth.
func RequireRole(roles ...string) echo.MiddlewareFunc {
	allowed := make(map[string]bool, len(roles))
	for _, r := range roles {
		allowed[r] = true
	}
	return func(next echo.HandlerFunc) echo.HandlerFunc {
		return func(c echo.Context) error {
			role, ok := c.Get(ContextRole).(string)
			if !ok || !allowed[role] {
				return c.JSON(http.StatusForbidden, echo.Map{"error": "FORBIDDEN", "message": "role not allowed"})
			}
			return next(c)
		}
	}
}
