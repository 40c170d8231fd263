package middleware // reusable HTTP middleware for the API

import (
	"net/http"
	"strings"

	"github.com/golang-jwt/jwt/v5"
	"github.com/labstack/echo/v4"

	"github.com/csfest/vendor-booking/internal/model"
)

// principalKey is the echo context key the resolved principal is
// stored under.
const principalKey = "principal"

// JWTAuth returns an Echo middleware that validates a Bearer access
// token and injects the acting principal (name, email, capability
// flags) into the request context. The provided secret must match the
// one used when issuing tokens. Handlers retrieve the principal via
// CurrentPrincipal(c).
func JWTAuth(secret string) echo.MiddlewareFunc {
	return func(next echo.HandlerFunc) echo.HandlerFunc {
		return func(c echo.Context) error {
			auth := c.Request().Header.Get("Authorization")
			if !strings.HasPrefix(auth, "Bearer ") {
				return c.JSON(http.StatusUnauthorized, echo.Map{"error": "missing bearer token"})
			}
			raw := strings.TrimPrefix(auth, "Bearer ")

			tok, err := jwt.Parse(raw, func(t *jwt.Token) (interface{}, error) {
				if _, ok := t.Method.(*jwt.SigningMethodHMAC); !ok {
					return nil, echo.ErrUnauthorized
				}
				return []byte(secret), nil
			})
			if err != nil || !tok.Valid {
				return c.JSON(http.StatusUnauthorized, echo.Map{"error": "invalid token"})
			}
			claims, ok := tok.Claims.(jwt.MapClaims)
			if !ok {
				return c.JSON(http.StatusUnauthorized, echo.Map{"error": "invalid claims"})
			}

			c.Set(principalKey, principalFromClaims(claims))
			if sub, ok := claims["sub"].(float64); ok {
				c.Set("user_id", uint64(sub))
			}
			return next(c)
		}
	}
}

// CurrentPrincipal returns the principal injected by JWTAuth, or nil
// for unauthenticated requests.
func CurrentPrincipal(c echo.Context) *model.Principal {
	p, _ := c.Get(principalKey).(*model.Principal)
	return p
}

// CurrentUserID returns the numeric user id from the token subject,
// or 0 when unauthenticated.
func CurrentUserID(c echo.Context) uint64 {
	id, _ := c.Get("user_id").(uint64)
	return id
}

// principalFromClaims rebuilds the acting principal from the token's
// name, email and flags claims.
func principalFromClaims(claims jwt.MapClaims) *model.Principal {
	p := &model.Principal{}
	if v, ok := claims["name"].(string); ok {
		p.Name = v
	}
	if v, ok := claims["email"].(string); ok {
		p.Email = v
	}
	if raw, ok := claims["flags"].([]interface{}); ok {
		for _, f := range raw {
			if s, ok := f.(string); ok {
				p.Flags = append(p.Flags, s)
			}
		}
	}
	return p
}
