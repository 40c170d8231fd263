// Package router wires the HTTP surface: which handler answers each
// path and which middleware guards it.
package router

import (
	"github.com/labstack/echo/v4"

	"github.com/csfest/vendor-booking/internal/handler"
	"github.com/csfest/vendor-booking/internal/middleware"
)

// RegisterRoutes registers routes that carry no authentication at
// all. Currently that is only the health check.
func RegisterRoutes(e *echo.Echo) {
	e.GET("/healthz", handler.Health)
}

// RegisterAuth registers the account endpoints. Register, login,
// refresh and logout are open; /v1/auth/me requires a valid access
// token.
func RegisterAuth(e *echo.Echo, a *handler.AuthHandler, jwtSecret string) {
	g := e.Group("/v1/auth")
	g.POST("/register", a.Register)
	g.POST("/login", a.Login)
	g.POST("/refresh", a.Refresh)
	g.POST("/logout", a.Logout)

	// Top-level alias kept from earlier deployments.
	e.POST("/v1/logout", a.Logout)

	me := e.Group("/v1/auth")
	me.Use(middleware.JWTAuth(jwtSecret))
	me.GET("/me", a.Me)
}

// RegisterPublic registers the guest-facing map endpoints: reading
// the layout, checking availability, running a booking and watching
// for changes. No JWT is required; booking is open to everyone.
func RegisterPublic(e *echo.Echo, s *handler.SpotHandler, b *handler.BookingHandler, w *handler.WatchHandler) {
	e.GET("/v1/spots", s.List)
	e.GET("/v1/spots/:id/availability", b.Availability)
	e.POST("/v1/create-payment-intent", b.CreateIntent)
	e.POST("/v1/bookings", b.Complete)
	if w != nil {
		e.GET("/v1/watch", w.Serve)
	}
}

// RegisterEditor registers the layout mutation endpoints behind the
// edit capability. The registry re-checks the principal on every
// call, so the middleware is a fast-fail rather than the only gate.
func RegisterEditor(e *echo.Echo, s *handler.SpotHandler, jwtSecret string) {
	g := e.Group("/v1/spots")
	g.Use(middleware.JWTAuth(jwtSecret))
	g.Use(middleware.RequireEdit())
	g.POST("", s.Upsert)
	g.PUT("", s.ReplaceAll)
	g.DELETE("/:id", s.Delete)
	g.POST("/:id/rename", s.Rename)
	g.GET("/export", s.Export)
}

// RegisterAdmin registers the operator endpoints behind the admin
// capability.
func RegisterAdmin(e *echo.Echo, a *handler.AdminHandler, jwtSecret string) {
	g := e.Group("/v1/admin")
	g.Use(middleware.JWTAuth(jwtSecret))
	g.Use(middleware.RequireAdmin())
	g.GET("/reservations", a.ListReservations)
	g.POST("/reservations", a.OverrideReserve)
	g.DELETE("/reservations/:spotId", a.Release)
	g.POST("/reservations/purge", a.Purge)
	g.GET("/orphans", a.Orphans)
	g.GET("/users", a.ListUsers)
	g.PUT("/users/:id/flags", a.UpdateUserFlags)
}
