// Package booking walks a spot from "selected" through payment to a
// confirmed reservation. One Flow instance serves one booking
// attempt: a confirmed flow is never reused, and a fresh attempt on
// the same spot is refused by OpenForm while the reservation stands.
package booking

import (
	"context"
	"encoding/json"
	"errors"
	"log"
	"math"
	"strings"
	"sync"
	"time"

	"github.com/csfest/vendor-booking/internal/auth"
	"github.com/csfest/vendor-booking/internal/fault"
	"github.com/csfest/vendor-booking/internal/model"
	"github.com/csfest/vendor-booking/internal/queue"
	"github.com/csfest/vendor-booking/internal/repository"
	"github.com/csfest/vendor-booking/internal/store"
)

// FlowState enumerates the booking flow states.
type FlowState int

const (
	// Idle is the initial state before a form is opened.
	Idle FlowState = iota
	// FormOpen collects customer fields and add-on selections.
	FormOpen
	// PaymentPending awaits the provider's terminal signal.
	PaymentPending
	// Confirmed is terminal: the reservation is recorded.
	Confirmed
	// Failed is terminal for the payment attempt but the form stays
	// editable, so Submit may be retried.
	Failed
)

// nonprofitDiscount is the multiplier applied to the base price when
// the nonprofit toggle is set, rounded to the nearest unit.
const nonprofitDiscount = 0.8

// CustomerFields are the booking form contents. Name, email and
// phone are required; the rest is optional vendor detail.
type CustomerFields struct {
	Name                string `json:"name"`
	Email               string `json:"email"`
	Phone               string `json:"phone"`
	Website             string `json:"website,omitempty"`
	CompanyName         string `json:"companyName,omitempty"`
	BusinessDescription string `json:"businessDescription,omitempty"`
}

// EventSink receives domain events emitted by the flow. Publishing is
// best effort: failures are logged and never interrupt the booking.
type EventSink interface {
	BookingConfirmed(ctx context.Context, ev queue.BookingConfirmedEvent) error
	PaymentOrphaned(ctx context.Context, ev queue.PaymentOrphanedEvent) error
}

// Flow is the booking state machine for a single spot claim.
type Flow struct {
	registry *repository.SpotRegistry
	ledger   *repository.ReservationLedger
	payments PaymentProvider
	events   EventSink
	kv       store.Store

	mu        sync.Mutex
	state     FlowState
	spotID    string
	basePrice float64
	nonprofit bool
	addons    []model.Addon
	fields    CustomerFields
	secret    string
}

// NewFlow builds a flow over the given collaborators. events and kv
// may be nil; orphan recording and event publishing degrade to logs.
func NewFlow(registry *repository.SpotRegistry, ledger *repository.ReservationLedger, payments PaymentProvider, events EventSink, kv store.Store) *Flow {
	return &Flow{
		registry: registry,
		ledger:   ledger,
		payments: payments,
		events:   events,
		kv:       kv,
	}
}

// State returns the current flow state.
func (f *Flow) State() FlowState {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.state
}

// TotalAmount returns the current total: the (possibly discounted)
// base price plus the selected add-on prices.
func (f *Flow) TotalAmount() float64 {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.totalLocked()
}

func (f *Flow) totalLocked() float64 {
	base := f.basePrice
	if f.nonprofit {
		base = math.Round(base * nonprofitDiscount)
	}
	total := base
	for _, a := range f.addons {
		total += a.Price
	}
	return total
}

// OpenForm starts a booking for the given spot. It refuses spots that
// already carry a reservation and initializes the total to the spot's
// base price.
func (f *Flow) OpenForm(ctx context.Context, spotID string) error {
	f.mu.Lock()
	if f.state != Idle {
		f.mu.Unlock()
		return fault.Wrap(fault.ErrValidation, "booking flow already started")
	}
	f.mu.Unlock()

	res, err := f.ledger.Get(ctx, spotID)
	if err != nil {
		return err
	}
	if res != nil {
		return fault.Wrap(fault.ErrUnavailable, "spot %q is already reserved", spotID)
	}
	spot, err := f.registry.Get(ctx, spotID)
	if err != nil {
		return err
	}
	if spot == nil {
		return fault.Wrap(fault.ErrNotFound, "spot %q", spotID)
	}

	f.mu.Lock()
	f.state = FormOpen
	f.spotID = spotID
	f.basePrice = spot.Price
	f.addons = nil
	f.nonprofit = false
	f.mu.Unlock()
	return nil
}

// ToggleAddon adds the add-on to the selection, or removes it when an
// add-on of the same name is already selected. Allowed while the form
// is open (including after a failed payment attempt).
func (f *Flow) ToggleAddon(addon model.Addon) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	if f.state != FormOpen && f.state != Failed {
		return fault.Wrap(fault.ErrValidation, "no booking form open")
	}
	for i, a := range f.addons {
		if a.Name == addon.Name {
			f.addons = append(f.addons[:i], f.addons[i+1:]...)
			return nil
		}
	}
	f.addons = append(f.addons, addon)
	return nil
}

// SetNonprofit applies or clears the nonprofit discount on the base
// price.
func (f *Flow) SetNonprofit(on bool) {
	f.mu.Lock()
	f.nonprofit = on
	f.mu.Unlock()
}

// Submit validates the customer fields and requests the payment
// handshake for the current total (converted to minor units). On
// success the flow moves to PaymentPending and the returned client
// secret binds the payment surface; the terminal signal is delivered
// through CompletePayment. On a provider failure the flow moves to
// Failed and the form remains editable for retry.
func (f *Flow) Submit(ctx context.Context, fields CustomerFields) (string, error) {
	f.mu.Lock()
	if f.state != FormOpen && f.state != Failed {
		f.mu.Unlock()
		return "", fault.Wrap(fault.ErrValidation, "no booking form open")
	}
	if strings.TrimSpace(fields.Name) == "" ||
		strings.TrimSpace(fields.Email) == "" ||
		strings.TrimSpace(fields.Phone) == "" {
		f.mu.Unlock()
		return "", fault.Wrap(fault.ErrValidation, "name, email and phone are required")
	}
	f.fields = fields
	total := f.totalLocked()
	f.mu.Unlock()

	amountMinor := int64(math.Round(total * 100))
	secret, err := f.payments.CreateIntent(ctx, amountMinor, fields.Name, fields.Email)
	if err != nil {
		f.setState(Failed)
		return "", err
	}

	f.mu.Lock()
	f.secret = secret
	f.state = PaymentPending
	f.mu.Unlock()
	return secret, nil
}

// CompletePayment delivers the provider's terminal signal. A payment
// error moves the flow to Failed with no ledger mutation. On success
// the reservation is recorded as paid with the transaction id; if the
// spot was booked concurrently in the meantime, the flow reports the
// conflict without losing the already-completed charge — the
// transaction id is persisted for manual reconciliation and a
// payment.orphaned event is published.
func (f *Flow) CompletePayment(ctx context.Context, transactionID string, payErr error) error {
	f.mu.Lock()
	if f.state != PaymentPending {
		f.mu.Unlock()
		return fault.Wrap(fault.ErrValidation, "no payment pending")
	}
	spotID := f.spotID
	fields := f.fields
	addons := append([]model.Addon(nil), f.addons...)
	total := f.totalLocked()
	f.mu.Unlock()

	if payErr != nil {
		f.setState(Failed)
		return nil
	}

	res := model.Reservation{
		SpotID:              spotID,
		CustomerName:        fields.Name,
		Email:               fields.Email,
		Phone:               fields.Phone,
		Website:             fields.Website,
		CompanyName:         fields.CompanyName,
		BusinessDescription: fields.BusinessDescription,
		Addons:              addons,
		TotalAmount:         total,
		Paid:                true,
		TransactionID:       transactionID,
		CreatedAt:           time.Now().UTC(),
	}
	if err := f.ledger.Reserve(ctx, res); err != nil {
		if errors.Is(err, fault.ErrConflict) {
			f.recordOrphan(ctx, res)
			f.setState(Failed)
			return fault.Wrap(fault.ErrConflict,
				"spot %q was booked concurrently; charge %s needs manual reconciliation", spotID, transactionID)
		}
		return err
	}

	f.setState(Confirmed)
	f.publishConfirmed(ctx, res)
	return nil
}

// AdminOverrideReserve records a reservation directly, bypassing the
// payment provider entirely. Admin capability only.
func (f *Flow) AdminOverrideReserve(ctx context.Context, p *model.Principal, spotID string, fields CustomerFields) error {
	if err := auth.RequireAdmin(p); err != nil {
		return err
	}
	spot, err := f.registry.Get(ctx, spotID)
	if err != nil {
		return err
	}
	if spot == nil {
		return fault.Wrap(fault.ErrNotFound, "spot %q", spotID)
	}
	res := model.Reservation{
		SpotID:              spotID,
		CustomerName:        fields.Name,
		Email:               fields.Email,
		Phone:               fields.Phone,
		Website:             fields.Website,
		CompanyName:         fields.CompanyName,
		BusinessDescription: fields.BusinessDescription,
		TotalAmount:         spot.Price,
		Paid:                true,
		TransactionID:       NewTransactionID("admin"),
		CreatedAt:           time.Now().UTC(),
	}
	return f.ledger.Reserve(ctx, res)
}

// AdminRelease removes a reservation. Admin capability only (enforced
// by the ledger).
func (f *Flow) AdminRelease(ctx context.Context, p *model.Principal, spotID string) error {
	return f.ledger.Release(ctx, p, spotID)
}

func (f *Flow) setState(s FlowState) {
	f.mu.Lock()
	f.state = s
	f.mu.Unlock()
}

// recordOrphan appends the lost charge to the reconciliation key. The
// record is defensive bookkeeping; failures only log.
func (f *Flow) recordOrphan(ctx context.Context, res model.Reservation) {
	if f.kv != nil {
		type orphan struct {
			SpotID        string    `json:"spotId"`
			Email         string    `json:"email"`
			TotalAmount   float64   `json:"totalAmount"`
			TransactionID string    `json:"transactionId"`
			At            time.Time `json:"at"`
		}
		var orphans []orphan
		if raw, ok, err := f.kv.GetItem(ctx, store.KeyOrphanedPayments); err == nil && ok {
			_ = json.Unmarshal([]byte(raw), &orphans)
		}
		orphans = append(orphans, orphan{
			SpotID:        res.SpotID,
			Email:         res.Email,
			TotalAmount:   res.TotalAmount,
			TransactionID: res.TransactionID,
			At:            time.Now().UTC(),
		})
		if raw, err := json.Marshal(orphans); err == nil {
			if err := f.kv.SetItem(ctx, store.KeyOrphanedPayments, string(raw)); err != nil {
				log.Printf("booking: record orphaned payment failed: %v", err)
			}
		}
	}
	if f.events != nil {
		ev := queue.PaymentOrphanedEvent{
			SpotID:        res.SpotID,
			Email:         res.Email,
			TotalAmount:   res.TotalAmount,
			TransactionID: res.TransactionID,
			OccurredAt:    time.Now().UTC().Format(time.RFC3339),
		}
		if err := f.events.PaymentOrphaned(ctx, ev); err != nil {
			log.Printf("booking: publish payment.orphaned failed: %v", err)
		}
	}
}

func (f *Flow) publishConfirmed(ctx context.Context, res model.Reservation) {
	if f.events == nil {
		return
	}
	names := make([]string, 0, len(res.Addons))
	for _, a := range res.Addons {
		names = append(names, a.Name)
	}
	ev := queue.BookingConfirmedEvent{
		SpotID:        res.SpotID,
		CustomerName:  res.CustomerName,
		Email:         res.Email,
		CompanyName:   res.CompanyName,
		Addons:        names,
		TotalAmount:   res.TotalAmount,
		TransactionID: res.TransactionID,
		ConfirmedAt:   res.CreatedAt.Format(time.RFC3339),
	}
	if err := f.events.BookingConfirmed(ctx, ev); err != nil {
		log.Printf("booking: publish booking.confirmed failed: %v", err)
	}
}
