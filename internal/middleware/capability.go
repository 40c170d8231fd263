package middleware

import (
	"net/http"

	"github.com/labstack/echo/v4"

	"github.com/csfest/vendor-booking/internal/model"
)

// RequireEdit enforces that the authenticated principal may modify
// spot layout (edit or admin flag). It assumes JWTAuth ran earlier in
// the chain; requests without the capability are rejected with 403.
func RequireEdit() echo.MiddlewareFunc {
	return requireCapability(func(p *model.Principal) bool { return p.CanEdit() })
}

// RequireAdmin enforces the admin flag for reservation management and
// user administration endpoints.
func RequireAdmin() echo.MiddlewareFunc {
	return requireCapability(func(p *model.Principal) bool { return p.IsAdmin() })
}

func requireCapability(allowed func(*model.Principal) bool) echo.MiddlewareFunc {
	return func(next echo.HandlerFunc) echo.HandlerFunc {
		return func(c echo.Context) error {
			p := CurrentPrincipal(c)
			if p == nil || !allowed(p) {
				return c.JSON(http.StatusForbidden, echo.Map{"error": "forbidden"})
			}
			return next(c)
		}
	}
}
