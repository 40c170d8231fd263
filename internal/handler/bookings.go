package handler

import (
	"errors"
	"net/http"
	"sync"
	"time"

	"github.com/labstack/echo/v4"

	"github.com/csfest/vendor-booking/internal/booking"
	"github.com/csfest/vendor-booking/internal/model"
	"github.com/csfest/vendor-booking/internal/repository"
	"github.com/csfest/vendor-booking/internal/store"
)

// pendingTTL bounds how long an unfinished booking flow is kept. A
// flow older than this was abandoned mid-payment and is dropped; the
// spot was never reserved so nothing is lost.
const pendingTTL = time.Hour

// BookingHandler drives the booking flow over HTTP. A booking spans
// two calls: CreateIntent opens the flow and returns the payment
// client secret, then Complete delivers the payment outcome and
// records the reservation. Between the two calls the flow is parked
// in an in-memory map keyed by the client secret.
type BookingHandler struct {
	Registry *repository.SpotRegistry
	Ledger   *repository.ReservationLedger
	Payments booking.PaymentProvider
	Events   booking.EventSink
	KV       store.Store

	mu      sync.Mutex
	pending map[string]pendingFlow
}

type pendingFlow struct {
	flow      *booking.Flow
	startedAt time.Time
}

// NewBookingHandler constructs a BookingHandler. events and kv may be
// nil; the flow degrades event publishing and orphan recording to
// logs.
func NewBookingHandler(reg *repository.SpotRegistry, led *repository.ReservationLedger, pay booking.PaymentProvider, events booking.EventSink, kv store.Store) *BookingHandler {
	if reg == nil || led == nil || pay == nil {
		panic("nil dependency passed to NewBookingHandler")
	}
	return &BookingHandler{
		Registry: reg,
		Ledger:   led,
		Payments: pay,
		Events:   events,
		KV:       kv,
		pending:  make(map[string]pendingFlow),
	}
}

// ----- DTOs -----

type intentReq struct {
	SpotID    string                 `json:"spotId"`
	Addons    []model.Addon          `json:"addons"`
	Nonprofit bool                   `json:"nonprofit"`
	Fields    booking.CustomerFields `json:"customer"`
}

type completeReq struct {
	ClientSecret  string `json:"clientSecret"`
	TransactionID string `json:"transactionId"`
	PaymentError  string `json:"paymentError"`
}

// CreateIntent opens a booking flow for a spot and requests the
// payment handshake. It returns the provider client secret and the
// computed total; the caller confirms the payment against the
// provider and then reports the outcome through Complete.
func (h *BookingHandler) CreateIntent(c echo.Context) error {
	var req intentReq
	if err := c.Bind(&req); err != nil {
		return c.JSON(http.StatusBadRequest, echo.Map{"error": "invalid body"})
	}

	ctx, cancel := reqCtx(c)
	defer cancel()

	flow := booking.NewFlow(h.Registry, h.Ledger, h.Payments, h.Events, h.KV)
	if err := flow.OpenForm(ctx, req.SpotID); err != nil {
		return fail(c, err)
	}
	for _, a := range req.Addons {
		if err := flow.ToggleAddon(a); err != nil {
			return fail(c, err)
		}
	}
	flow.SetNonprofit(req.Nonprofit)

	secret, err := flow.Submit(ctx, req.Fields)
	if err != nil {
		return fail(c, err)
	}

	h.mu.Lock()
	h.prune()
	h.pending[secret] = pendingFlow{flow: flow, startedAt: time.Now()}
	h.mu.Unlock()

	return c.JSON(http.StatusOK, echo.Map{
		"clientSecret": secret,
		"totalAmount":  flow.TotalAmount(),
	})
}

// Complete delivers the payment outcome for a pending flow. On
// success the reservation is recorded; a lost race against another
// buyer is reported as a conflict with the transaction id preserved
// for reconciliation.
func (h *BookingHandler) Complete(c echo.Context) error {
	var req completeReq
	if err := c.Bind(&req); err != nil || req.ClientSecret == "" {
		return c.JSON(http.StatusBadRequest, echo.Map{"error": "clientSecret required"})
	}

	h.mu.Lock()
	entry, ok := h.pending[req.ClientSecret]
	delete(h.pending, req.ClientSecret)
	h.mu.Unlock()
	if !ok {
		return c.JSON(http.StatusNotFound, echo.Map{"error": "no pending booking for this payment"})
	}

	var payErr error
	if req.PaymentError != "" {
		payErr = errors.New(req.PaymentError)
	}

	ctx, cancel := reqCtx(c)
	defer cancel()
	if err := entry.flow.CompletePayment(ctx, req.TransactionID, payErr); err != nil {
		return fail(c, err)
	}
	if entry.flow.State() == booking.Failed {
		return c.JSON(http.StatusOK, echo.Map{"status": "failed"})
	}
	return c.JSON(http.StatusCreated, echo.Map{
		"status":        "confirmed",
		"transactionId": req.TransactionID,
	})
}

// Availability reports whether a single spot is free to book.
func (h *BookingHandler) Availability(c echo.Context) error {
	ctx, cancel := reqCtx(c)
	defer cancel()
	spot, err := h.Registry.Get(ctx, c.Param("id"))
	if err != nil {
		return fail(c, err)
	}
	if spot == nil {
		return c.JSON(http.StatusNotFound, echo.Map{"error": "unknown spot"})
	}
	res, err := h.Ledger.Get(ctx, spot.ID)
	if err != nil {
		return fail(c, err)
	}
	return c.JSON(http.StatusOK, echo.Map{"spotId": spot.ID, "available": res == nil})
}

// prune drops abandoned flows. Caller holds h.mu.
func (h *BookingHandler) prune() {
	cutoff := time.Now().Add(-pendingTTL)
	for secret, entry := range h.pending {
		if entry.startedAt.Before(cutoff) {
			delete(h.pending, secret)
		}
	}
}
