// Package repository owns the durable collections of the booking
// system: the spot registry and reservation ledger living in the
// key-value store as whole-snapshot JSON values, and the user and
// refresh-token tables living in MySQL.
package repository

import (
	"context"
	"encoding/json"
	"log"
	"sync"

	"github.com/csfest/vendor-booking/internal/auth"
	"github.com/csfest/vendor-booking/internal/fault"
	"github.com/csfest/vendor-booking/internal/model"
	"github.com/csfest/vendor-booking/internal/store"
)

// SpotFetcher loads the authoritative spot list from a remote source.
// It is only consulted when the local snapshot is empty.
type SpotFetcher interface {
	Fetch(ctx context.Context) ([]model.Spot, error)
}

// SpotRegistry is the durable collection of bookable spots. The whole
// collection is persisted as one JSON array under a single key, so a
// mutation is always an atomic snapshot replace — the store has no
// transactional guarantees across keys, and partial-record updates
// could interleave with concurrent writers.
//
// The registry keeps the last successfully loaded collection in
// memory so reads degrade soft when both the store and the remote
// source are unreachable.
type SpotRegistry struct {
	store  store.Store
	source SpotFetcher
	ledger *ReservationLedger

	mu     sync.Mutex
	cached []model.Spot
}

// NewSpotRegistry builds a registry over the given store. source may
// be nil when no remote fallback is configured. ledger guards spot
// deletion against active reservations.
func NewSpotRegistry(s store.Store, source SpotFetcher, ledger *ReservationLedger) *SpotRegistry {
	return &SpotRegistry{store: s, source: source, ledger: ledger}
}

// Load returns the ordered spot collection. The local snapshot wins;
// when it is absent the remote source is fetched and, on success, the
// snapshot is seeded with the result. Load fails soft: a transport
// failure falls back to the last collection seen in this session
// rather than propagating.
func (r *SpotRegistry) Load(ctx context.Context) ([]model.Spot, error) {
	raw, ok, err := r.store.GetItem(ctx, store.KeySpots)
	if err != nil {
		return nil, err
	}
	if ok {
		var spots []model.Spot
		if jsonErr := json.Unmarshal([]byte(raw), &spots); jsonErr != nil {
			return nil, fault.Wrap(fault.ErrValidation, "corrupt spot snapshot")
		}
		r.remember(spots)
		return spots, nil
	}
	if r.source == nil {
		return r.lastSeen(), nil
	}
	spots, err := r.source.Fetch(ctx)
	if err != nil {
		// Degraded mode: render whatever this session already had.
		log.Printf("registry: remote spot fetch failed: %v", err)
		return r.lastSeen(), nil
	}
	if err := r.persist(ctx, spots); err != nil {
		return nil, err
	}
	r.remember(spots)
	return spots, nil
}

// Upsert inserts or replaces one spot by id and persists the full
// snapshot. Requires the edit capability.
func (r *SpotRegistry) Upsert(ctx context.Context, p *model.Principal, spot model.Spot) error {
	if err := auth.RequireEdit(p); err != nil {
		return err
	}
	if !spot.Validate() {
		return fault.Wrap(fault.ErrValidation, "invalid spot %q", spot.ID)
	}
	spots, err := r.Load(ctx)
	if err != nil {
		return err
	}
	replaced := false
	for i := range spots {
		if spots[i].ID == spot.ID {
			spots[i] = spot
			replaced = true
			break
		}
	}
	if !replaced {
		spots = append(spots, spot)
	}
	if err := r.persist(ctx, spots); err != nil {
		return err
	}
	r.remember(spots)
	return nil
}

// ReplaceAll swaps the whole collection in one snapshot write, the
// path used by bulk layout imports. Every spot must validate and ids
// must be unique. Requires the edit capability.
func (r *SpotRegistry) ReplaceAll(ctx context.Context, p *model.Principal, spots []model.Spot) error {
	if err := auth.RequireEdit(p); err != nil {
		return err
	}
	seen := make(map[string]struct{}, len(spots))
	for _, s := range spots {
		if !s.Validate() {
			return fault.Wrap(fault.ErrValidation, "invalid spot %q", s.ID)
		}
		if _, dup := seen[s.ID]; dup {
			return fault.Wrap(fault.ErrValidation, "duplicate spot id %q", s.ID)
		}
		seen[s.ID] = struct{}{}
	}
	if err := r.persist(ctx, spots); err != nil {
		return err
	}
	r.remember(spots)
	return nil
}

// Remove deletes a spot by id. It refuses with a conflict while an
// active reservation references the id. Requires the edit capability.
func (r *SpotRegistry) Remove(ctx context.Context, p *model.Principal, id string) error {
	if err := auth.RequireEdit(p); err != nil {
		return err
	}
	if r.ledger != nil {
		res, err := r.ledger.Get(ctx, id)
		if err != nil {
			return err
		}
		if res != nil {
			return fault.Wrap(fault.ErrConflict, "spot %q has an active reservation", id)
		}
	}
	spots, err := r.Load(ctx)
	if err != nil {
		return err
	}
	kept := spots[:0]
	found := false
	for _, s := range spots {
		if s.ID == id {
			found = true
			continue
		}
		kept = append(kept, s)
	}
	if !found {
		return fault.Wrap(fault.ErrNotFound, "spot %q", id)
	}
	if err := r.persist(ctx, kept); err != nil {
		return err
	}
	r.remember(kept)
	return nil
}

// Rename changes a spot's id. It refuses with a conflict when the new
// id already belongs to another spot. Requires the edit capability.
func (r *SpotRegistry) Rename(ctx context.Context, p *model.Principal, oldID, newID string) error {
	if err := auth.RequireEdit(p); err != nil {
		return err
	}
	if newID == "" {
		return fault.Wrap(fault.ErrValidation, "new id must not be empty")
	}
	spots, err := r.Load(ctx)
	if err != nil {
		return err
	}
	target := -1
	for i, s := range spots {
		if s.ID == newID && s.ID != oldID {
			return fault.Wrap(fault.ErrConflict, "spot id %q already in use", newID)
		}
		if s.ID == oldID {
			target = i
		}
	}
	if target < 0 {
		return fault.Wrap(fault.ErrNotFound, "spot %q", oldID)
	}
	spots[target].ID = newID
	if err := r.persist(ctx, spots); err != nil {
		return err
	}
	r.remember(spots)
	return nil
}

// Get returns a single spot by id.
func (r *SpotRegistry) Get(ctx context.Context, id string) (*model.Spot, error) {
	spots, err := r.Load(ctx)
	if err != nil {
		return nil, err
	}
	for i := range spots {
		if spots[i].ID == id {
			s := spots[i]
			return &s, nil
		}
	}
	return nil, nil
}

// Contains reports whether a spot id exists in the registry.
func (r *SpotRegistry) Contains(ctx context.Context, id string) (bool, error) {
	s, err := r.Get(ctx, id)
	return s != nil, err
}

// ExportJSON renders the current snapshot as indented JSON, the same
// format the admin export button produced.
func (r *SpotRegistry) ExportJSON(ctx context.Context) ([]byte, error) {
	spots, err := r.Load(ctx)
	if err != nil {
		return nil, err
	}
	return json.MarshalIndent(spots, "", "  ")
}

// persist writes the entire collection as one snapshot.
func (r *SpotRegistry) persist(ctx context.Context, spots []model.Spot) error {
	raw, err := json.Marshal(spots)
	if err != nil {
		return err
	}
	return r.store.SetItem(ctx, store.KeySpots, string(raw))
}

func (r *SpotRegistry) remember(spots []model.Spot) {
	r.mu.Lock()
	r.cached = append([]model.Spot(nil), spots...)
	r.mu.Unlock()
}

func (r *SpotRegistry) lastSeen() []model.Spot {
	r.mu.Lock()
	defer r.mu.Unlock()
	return append([]model.Spot(nil), r.cached...)
}
