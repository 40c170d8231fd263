// Package sync detects externally-made changes to the spot registry
// and reservation ledger — another session, another admin — and
// reconciles the local view. Two channels feed it: the store's change
// notifications (push) and a periodic poll comparing a snapshot
// fingerprint, which catches writes whose notification was lost.
package sync

import (
	"context"
	"crypto/sha256"
	"encoding/hex"
	"log"
	"time"

	"github.com/csfest/vendor-booking/internal/store"
)

// DefaultInterval is the poll period. The original page polled its
// storage once a second; there is no reason to be faster.
const DefaultInterval = time.Second

// Watcher reconciles local state with the durable store. Register
// listeners before calling Run; registration is not safe concurrently
// with a running watcher.
type Watcher struct {
	store    store.Store
	interval time.Duration

	dataListeners []func(ctx context.Context)
	authListeners []func(ctx context.Context)

	lastData string
	lastAuth string
}

// NewWatcher builds a watcher over the given store. A non-positive
// interval falls back to DefaultInterval.
func NewWatcher(s store.Store, interval time.Duration) *Watcher {
	if interval <= 0 {
		interval = DefaultInterval
	}
	return &Watcher{store: s, interval: interval}
}

// OnDataChange registers a callback invoked when the spot or
// reservation snapshot changed: reload, re-render, re-apply the
// selection if still valid.
func (w *Watcher) OnDataChange(fn func(ctx context.Context)) {
	w.dataListeners = append(w.dataListeners, fn)
}

// OnAuthChange registers a callback invoked when the session identity
// or the legacy admin flag changed: re-render and force-exit edit
// mode if the capability was revoked.
func (w *Watcher) OnAuthChange(fn func(ctx context.Context)) {
	w.authListeners = append(w.authListeners, fn)
}

// Run blocks until ctx is cancelled, reacting to push notifications
// and the periodic fingerprint poll. Both paths funnel through the
// same fingerprint comparison, so a session's own writes and
// duplicate notifications collapse into a single reconcile.
func (w *Watcher) Run(ctx context.Context) error {
	// Seed the fingerprints so startup state does not fire listeners.
	w.lastData = w.fingerprint(ctx, store.KeySpots, store.KeyReservations)
	w.lastAuth = w.fingerprint(ctx, store.KeySession, store.KeyAdminFlag)

	changes, cancel, err := w.store.Subscribe(ctx)
	if err != nil {
		// Degrade to poll-only; the interval still catches everything.
		log.Printf("watcher: subscribe failed, falling back to polling: %v", err)
		changes = nil
		cancel = func() {}
	}
	defer cancel()

	ticker := time.NewTicker(w.interval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			return ctx.Err()
		case _, ok := <-changes:
			if !ok {
				changes = nil
				continue
			}
			w.reconcile(ctx)
		case <-ticker.C:
			w.reconcile(ctx)
		}
	}
}

// Poll runs one reconcile pass. Exposed for callers that want an
// immediate check outside the Run loop.
func (w *Watcher) Poll(ctx context.Context) { w.reconcile(ctx) }

func (w *Watcher) reconcile(ctx context.Context) {
	if fp := w.fingerprint(ctx, store.KeySpots, store.KeyReservations); fp != w.lastData {
		w.lastData = fp
		for _, fn := range w.dataListeners {
			fn(ctx)
		}
	}
	if fp := w.fingerprint(ctx, store.KeySession, store.KeyAdminFlag); fp != w.lastAuth {
		w.lastAuth = fp
		for _, fn := range w.authListeners {
			fn(ctx)
		}
	}
}

// fingerprint hashes the raw snapshot values under the given keys.
// Absent keys hash distinctly from empty values.
func (w *Watcher) fingerprint(ctx context.Context, keys ...string) string {
	h := sha256.New()
	for _, key := range keys {
		val, ok, err := w.store.GetItem(ctx, key)
		if err != nil {
			log.Printf("watcher: read %q failed: %v", key, err)
			continue
		}
		h.Write([]byte(key))
		if ok {
			h.Write([]byte{1})
			h.Write([]byte(val))
		} else {
			h.Write([]byte{0})
		}
	}
	return hex.EncodeToString(h.Sum(nil))
}
