package repository

import (
	"context"
	"encoding/json"
	"time"

	"github.com/csfest/vendor-booking/internal/auth"
	"github.com/csfest/vendor-booking/internal/fault"
	"github.com/csfest/vendor-booking/internal/model"
	"github.com/csfest/vendor-booking/internal/store"
)

// ReservationLedger is the single source of truth for "is this spot
// taken". It persists a JSON object keyed by spot id under one store
// key; keying by spot id makes at-most-one-active-reservation a
// structural property. Every mutation rewrites the full snapshot
// (same rationale as the spot registry).
type ReservationLedger struct {
	store store.Store
}

// NewReservationLedger builds a ledger over the given store.
func NewReservationLedger(s store.Store) *ReservationLedger {
	return &ReservationLedger{store: s}
}

// Get returns the active reservation for a spot, or nil when free.
func (l *ReservationLedger) Get(ctx context.Context, spotID string) (*model.Reservation, error) {
	all, err := l.load(ctx)
	if err != nil {
		return nil, err
	}
	if res, ok := all[spotID]; ok {
		return &res, nil
	}
	return nil, nil
}

// All returns the full ledger keyed by spot id.
func (l *ReservationLedger) All(ctx context.Context) (map[string]model.Reservation, error) {
	return l.load(ctx)
}

// Reserve records a claim on a spot. It refuses with a conflict when
// a reservation already exists. The check and the write are not
// atomic at the storage layer; this is a best-effort guard that
// relies on the low-concurrency single-writer assumption, and the
// window is accepted rather than simulated away with locks the store
// cannot provide.
func (l *ReservationLedger) Reserve(ctx context.Context, res model.Reservation) error {
	if res.SpotID == "" {
		return fault.Wrap(fault.ErrValidation, "reservation missing spot id")
	}
	all, err := l.load(ctx)
	if err != nil {
		return err
	}
	if _, taken := all[res.SpotID]; taken {
		return fault.Wrap(fault.ErrConflict, "spot %q already reserved", res.SpotID)
	}
	if res.CreatedAt.IsZero() {
		res.CreatedAt = time.Now().UTC()
	}
	all[res.SpotID] = res
	return l.persist(ctx, all)
}

// Release removes the reservation for a spot. Admin only.
func (l *ReservationLedger) Release(ctx context.Context, p *model.Principal, spotID string) error {
	if err := auth.RequireAdmin(p); err != nil {
		return err
	}
	all, err := l.load(ctx)
	if err != nil {
		return err
	}
	if _, ok := all[spotID]; !ok {
		return fault.Wrap(fault.ErrNotFound, "no reservation for spot %q", spotID)
	}
	delete(all, spotID)
	return l.persist(ctx, all)
}

// PurgeOlderThan removes reservations created more than the given
// number of days ago and returns how many were removed. Admin only.
func (l *ReservationLedger) PurgeOlderThan(ctx context.Context, p *model.Principal, days int) (int, error) {
	if err := auth.RequireAdmin(p); err != nil {
		return 0, err
	}
	if days < 0 {
		return 0, fault.Wrap(fault.ErrValidation, "negative purge age")
	}
	all, err := l.load(ctx)
	if err != nil {
		return 0, err
	}
	cutoff := time.Now().UTC().AddDate(0, 0, -days)
	removed := 0
	for id, res := range all {
		if res.CreatedAt.Before(cutoff) {
			delete(all, id)
			removed++
		}
	}
	if removed == 0 {
		return 0, nil
	}
	return removed, l.persist(ctx, all)
}

func (l *ReservationLedger) load(ctx context.Context) (map[string]model.Reservation, error) {
	raw, ok, err := l.store.GetItem(ctx, store.KeyReservations)
	if err != nil {
		return nil, err
	}
	if !ok {
		return map[string]model.Reservation{}, nil
	}
	var all map[string]model.Reservation
	if jsonErr := json.Unmarshal([]byte(raw), &all); jsonErr != nil {
		return nil, fault.Wrap(fault.ErrValidation, "corrupt reservation snapshot")
	}
	if all == nil {
		all = map[string]model.Reservation{}
	}
	return all, nil
}

func (l *ReservationLedger) persist(ctx context.Context, all map[string]model.Reservation) error {
	raw, err := json.Marshal(all)
	if err != nil {
		return err
	}
	return l.store.SetItem(ctx, store.KeyReservations, string(raw))
}
