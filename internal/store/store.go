// Package store provides the durable key-value store the map data
// lives in. Values are opaque strings (JSON snapshots); every writer
// replaces a whole value, never a part of one. The store also emits
// change notifications carrying the mutated key so other sessions can
// reconcile, which is how the browser tabs of the original site kept
// each other in sync.
package store

import "context"

// Well-known keys. The names are kept from the deployed site so
// snapshots written by either generation of the app stay readable.
const (
	// KeySpots holds the spot registry snapshot (JSON array of spots).
	KeySpots = "vendor_spots_v1"
	// KeyReservations holds the reservation ledger snapshot
	// (JSON object keyed by spot id).
	KeyReservations = "vendor_map_reservations_v1"
	// KeySession holds the current-session identity (JSON principal).
	KeySession = "csf_current_user"
	// KeyAdminFlag is the legacy admin marker; any non-empty value
	// grants the admin capability to the session.
	KeyAdminFlag = "admin_auth"
	// KeyOrphanedPayments collects transaction ids of charges that
	// completed after losing the reserve race, for manual
	// reconciliation.
	KeyOrphanedPayments = "orphaned_payments_v1"
)

// Change describes a single mutation observed on the store.
type Change struct {
	Key string // the key that was set or removed
}

// Store is the narrow contract the core consumes. Implementations
// must deliver a Change for every SetItem/RemoveItem, including the
// subscriber's own writes; consumers dedupe via fingerprints.
type Store interface {
	// GetItem returns the value for key. The boolean is false when
	// the key is absent.
	GetItem(ctx context.Context, key string) (string, bool, error)
	// SetItem stores value under key, replacing any previous value.
	SetItem(ctx context.Context, key, value string) error
	// RemoveItem deletes key. Removing an absent key is not an error.
	RemoveItem(ctx context.Context, key string) error
	// Subscribe returns a channel of change notifications and a
	// cancel function that releases the subscription. The channel is
	// closed after cancellation.
	Subscribe(ctx context.Context) (<-chan Change, func(), error)
}
