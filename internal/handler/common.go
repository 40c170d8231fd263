package handler

import (
	"context"
	"time"

	"github.com/labstack/echo/v4"

	"github.com/csfest/vendor-booking/internal/fault"
)

// reqCtx derives a bounded context from the request so a stalled
// store or database call cannot pin the connection.
func reqCtx(c echo.Context) (context.Context, context.CancelFunc) {
	return context.WithTimeout(c.Request().Context(), 5*time.Second)
}

// fail renders a domain error as a JSON error body with the status
// code mapped from its sentinel. All handlers funnel their error
// responses through here so the taxonomy stays consistent.
func fail(c echo.Context, err error) error {
	return c.JSON(fault.HTTPStatus(err), echo.Map{"error": err.Error()})
}
