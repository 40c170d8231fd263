package handler

import (
	"encoding/json"
	"net/http"
	"strconv"

	"github.com/labstack/echo/v4"

	"github.com/csfest/vendor-booking/internal/booking"
	"github.com/csfest/vendor-booking/internal/middleware"
	"github.com/csfest/vendor-booking/internal/model"
	"github.com/csfest/vendor-booking/internal/repository"
	"github.com/csfest/vendor-booking/internal/store"
)

// AdminHandler groups the operator endpoints: reservation overrides,
// releases and purges, the orphaned-payment reconciliation list, and
// account flag management. Routes are mounted behind the admin
// capability middleware, and the domain layer re-checks the acting
// principal on every mutation.
type AdminHandler struct {
	Ledger *repository.ReservationLedger
	Flow   *booking.Flow
	Users  *repository.UserRepo
	Tokens *repository.TokenRepo
	KV     store.Store
}

// NewAdminHandler constructs an AdminHandler.
func NewAdminHandler(led *repository.ReservationLedger, flow *booking.Flow, users *repository.UserRepo, tokens *repository.TokenRepo, kv store.Store) *AdminHandler {
	if led == nil || flow == nil {
		panic("nil dependency passed to NewAdminHandler")
	}
	return &AdminHandler{Ledger: led, Flow: flow, Users: users, Tokens: tokens, KV: kv}
}

// ListReservations returns every active reservation keyed by spot id.
func (h *AdminHandler) ListReservations(c echo.Context) error {
	ctx, cancel := reqCtx(c)
	defer cancel()
	all, err := h.Ledger.All(ctx)
	if err != nil {
		return fail(c, err)
	}
	return c.JSON(http.StatusOK, all)
}

// OverrideReserve records a reservation without a payment, the path
// used for phone and invoice bookings.
func (h *AdminHandler) OverrideReserve(c echo.Context) error {
	var req struct {
		SpotID   string                 `json:"spotId"`
		Customer booking.CustomerFields `json:"customer"`
	}
	if err := c.Bind(&req); err != nil || req.SpotID == "" {
		return c.JSON(http.StatusBadRequest, echo.Map{"error": "spotId required"})
	}
	ctx, cancel := reqCtx(c)
	defer cancel()
	if err := h.Flow.AdminOverrideReserve(ctx, middleware.CurrentPrincipal(c), req.SpotID, req.Customer); err != nil {
		return fail(c, err)
	}
	return c.JSON(http.StatusCreated, echo.Map{"spotId": req.SpotID})
}

// Release frees a reserved spot.
func (h *AdminHandler) Release(c echo.Context) error {
	ctx, cancel := reqCtx(c)
	defer cancel()
	if err := h.Flow.AdminRelease(ctx, middleware.CurrentPrincipal(c), c.Param("spotId")); err != nil {
		return fail(c, err)
	}
	return c.NoContent(http.StatusNoContent)
}

// Purge removes reservations older than the given number of days and
// reports how many were dropped.
func (h *AdminHandler) Purge(c echo.Context) error {
	var req struct {
		Days int `json:"days"`
	}
	if err := c.Bind(&req); err != nil || req.Days <= 0 {
		return c.JSON(http.StatusBadRequest, echo.Map{"error": "days must be positive"})
	}
	ctx, cancel := reqCtx(c)
	defer cancel()
	n, err := h.Ledger.PurgeOlderThan(ctx, middleware.CurrentPrincipal(c), req.Days)
	if err != nil {
		return fail(c, err)
	}
	return c.JSON(http.StatusOK, echo.Map{"purged": n})
}

// Orphans lists charges that completed against a spot lost to a
// concurrent booking. These need manual refunds or rebooking.
func (h *AdminHandler) Orphans(c echo.Context) error {
	if h.KV == nil {
		return c.JSON(http.StatusOK, []struct{}{})
	}
	ctx, cancel := reqCtx(c)
	defer cancel()
	raw, ok, err := h.KV.GetItem(ctx, store.KeyOrphanedPayments)
	if err != nil {
		return fail(c, err)
	}
	if !ok {
		return c.JSON(http.StatusOK, []struct{}{})
	}
	var out []json.RawMessage
	if err := json.Unmarshal([]byte(raw), &out); err != nil {
		return c.JSON(http.StatusInternalServerError, echo.Map{"error": "corrupt reconciliation record"})
	}
	return c.JSON(http.StatusOK, out)
}

// ListUsers returns every account with its capability flags.
func (h *AdminHandler) ListUsers(c echo.Context) error {
	ctx, cancel := reqCtx(c)
	defer cancel()
	users, err := h.Users.List(ctx)
	if err != nil {
		return c.JSON(http.StatusInternalServerError, echo.Map{"error": "could not list users"})
	}
	type row struct {
		ID        uint64   `json:"id"`
		Name      string   `json:"name"`
		Email     string   `json:"email"`
		Flags     []string `json:"flags"`
		IsActive  bool     `json:"isActive"`
		LastLogin string   `json:"lastLogin"`
	}
	out := make([]row, 0, len(users))
	for _, u := range users {
		out = append(out, row{
			ID:        u.ID,
			Name:      u.Name,
			Email:     u.Email,
			Flags:     u.Flags,
			IsActive:  u.IsActive,
			LastLogin: repository.LastLoginString(u.LastLogin),
		})
	}
	return c.JSON(http.StatusOK, out)
}

// UpdateUserFlags replaces an account's capability flags. Only flags
// from the known set are accepted.
func (h *AdminHandler) UpdateUserFlags(c echo.Context) error {
	id, err := strconv.ParseUint(c.Param("id"), 10, 64)
	if err != nil {
		return c.JSON(http.StatusBadRequest, echo.Map{"error": "invalid user id"})
	}
	var req struct {
		Flags []string `json:"flags"`
	}
	if err := c.Bind(&req); err != nil {
		return c.JSON(http.StatusBadRequest, echo.Map{"error": "invalid body"})
	}
	for _, f := range req.Flags {
		switch f {
		case model.FlagViewer, model.FlagEdit, model.FlagAdmin:
		default:
			return c.JSON(http.StatusBadRequest, echo.Map{"error": "unknown flag: " + f})
		}
	}
	ctx, cancel := reqCtx(c)
	defer cancel()
	if err := h.Users.UpdateFlags(ctx, id, req.Flags); err != nil {
		return c.JSON(http.StatusInternalServerError, echo.Map{"error": "could not update flags"})
	}
	// Access tokens carry the flags they were minted with, so force a
	// fresh login rather than letting old refresh tokens live on.
	if h.Tokens != nil {
		if err := h.Tokens.RevokeAllForUser(ctx, id); err != nil {
			c.Logger().Errorf("revoke tokens for user %d: %v", id, err)
		}
	}
	return c.JSON(http.StatusOK, echo.Map{"id": id, "flags": req.Flags})
}
