package handler

import (
	"net/http"

	"github.com/labstack/echo/v4"

	"github.com/csfest/vendor-booking/internal/middleware"
	"github.com/csfest/vendor-booking/internal/model"
	"github.com/csfest/vendor-booking/internal/repository"
)

// SpotHandler serves the bookable spot layout. Reads are public so
// the map renders for everyone; every mutation goes through the
// registry, which enforces the edit capability and persists the
// whole layout as one snapshot.
type SpotHandler struct {
	Registry *repository.SpotRegistry
	Ledger   *repository.ReservationLedger
}

// NewSpotHandler constructs a SpotHandler and panics on nil deps.
func NewSpotHandler(reg *repository.SpotRegistry, led *repository.ReservationLedger) *SpotHandler {
	if reg == nil || led == nil {
		panic("nil dependency passed to NewSpotHandler")
	}
	return &SpotHandler{Registry: reg, Ledger: led}
}

// List returns the full spot layout together with the set of spot
// ids that currently carry a reservation, which is all the public
// map needs to paint availability.
func (h *SpotHandler) List(c echo.Context) error {
	ctx, cancel := reqCtx(c)
	defer cancel()

	spots, err := h.Registry.Load(ctx)
	if err != nil {
		return fail(c, err)
	}
	reservations, err := h.Ledger.All(ctx)
	if err != nil {
		return fail(c, err)
	}
	reserved := make([]string, 0, len(reservations))
	for id := range reservations {
		reserved = append(reserved, id)
	}
	return c.JSON(http.StatusOK, echo.Map{"spots": spots, "reserved": reserved})
}

// Upsert inserts or replaces a single spot.
func (h *SpotHandler) Upsert(c echo.Context) error {
	var spot model.Spot
	if err := c.Bind(&spot); err != nil {
		return c.JSON(http.StatusBadRequest, echo.Map{"error": "invalid body"})
	}
	ctx, cancel := reqCtx(c)
	defer cancel()
	if err := h.Registry.Upsert(ctx, middleware.CurrentPrincipal(c), spot); err != nil {
		return fail(c, err)
	}
	return c.JSON(http.StatusOK, spot)
}

// ReplaceAll swaps the entire layout in one write. Used by bulk
// imports from the layout editor.
func (h *SpotHandler) ReplaceAll(c echo.Context) error {
	var spots []model.Spot
	if err := c.Bind(&spots); err != nil {
		return c.JSON(http.StatusBadRequest, echo.Map{"error": "invalid body"})
	}
	ctx, cancel := reqCtx(c)
	defer cancel()
	if err := h.Registry.ReplaceAll(ctx, middleware.CurrentPrincipal(c), spots); err != nil {
		return fail(c, err)
	}
	return c.JSON(http.StatusOK, echo.Map{"count": len(spots)})
}

// Delete removes a spot. The registry refuses while a reservation
// still references the id.
func (h *SpotHandler) Delete(c echo.Context) error {
	ctx, cancel := reqCtx(c)
	defer cancel()
	if err := h.Registry.Remove(ctx, middleware.CurrentPrincipal(c), c.Param("id")); err != nil {
		return fail(c, err)
	}
	return c.NoContent(http.StatusNoContent)
}

// Rename changes a spot's id, refusing collisions with existing ids.
func (h *SpotHandler) Rename(c echo.Context) error {
	var req struct {
		NewID string `json:"newId"`
	}
	if err := c.Bind(&req); err != nil {
		return c.JSON(http.StatusBadRequest, echo.Map{"error": "invalid body"})
	}
	ctx, cancel := reqCtx(c)
	defer cancel()
	if err := h.Registry.Rename(ctx, middleware.CurrentPrincipal(c), c.Param("id"), req.NewID); err != nil {
		return fail(c, err)
	}
	return c.JSON(http.StatusOK, echo.Map{"id": req.NewID})
}

// Export downloads the layout as indented JSON, the same format the
// admin export button produced.
func (h *SpotHandler) Export(c echo.Context) error {
	ctx, cancel := reqCtx(c)
	defer cancel()
	raw, err := h.Registry.ExportJSON(ctx)
	if err != nil {
		return fail(c, err)
	}
	c.Response().Header().Set(echo.HeaderContentDisposition, `attachment; filename="spots.json"`)
	return c.Blob(http.StatusOK, echo.MIMEApplicationJSON, raw)
}
