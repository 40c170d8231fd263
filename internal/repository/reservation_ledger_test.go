package repository

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/csfest/vendor-booking/internal/fault"
	"github.com/csfest/vendor-booking/internal/model"
	"github.com/csfest/vendor-booking/internal/store"
)

func TestReservationLedgerReserve(t *testing.T) {
	ctx := context.Background()
	led := NewReservationLedger(store.NewMemoryStore())

	res := model.Reservation{
		SpotID:       "S100",
		CustomerName: "Dana",
		Email:        "dana@test",
		Phone:        "555-0100",
		TotalAmount:  60,
		Paid:         true,
	}

	t.Run("reserve then get", func(t *testing.T) {
		if err := led.Reserve(ctx, res); err != nil {
			t.Fatalf("reserve: %v", err)
		}
		got, err := led.Get(ctx, "S100")
		if err != nil || got == nil {
			t.Fatalf("get: res=%v err=%v", got, err)
		}
		if got.CustomerName != "Dana" || !got.Paid || got.TotalAmount != 60 {
			t.Errorf("stored reservation mangled: %+v", got)
		}
		if got.CreatedAt.IsZero() {
			t.Error("CreatedAt not stamped")
		}
	})

	t.Run("free spot reads nil", func(t *testing.T) {
		got, err := led.Get(ctx, "S999")
		if err != nil {
			t.Fatalf("get: %v", err)
		}
		if got != nil {
			t.Errorf("expected nil for free spot, got %+v", got)
		}
	})

	t.Run("second reservation conflicts", func(t *testing.T) {
		err := led.Reserve(ctx, model.Reservation{SpotID: "S100", CustomerName: "Eve", Email: "eve@test"})
		if !errors.Is(err, fault.ErrConflict) {
			t.Errorf("want ErrConflict, got %v", err)
		}
		got, _ := led.Get(ctx, "S100")
		if got == nil || got.CustomerName != "Dana" {
			t.Error("losing reservation overwrote the winner")
		}
	})

	t.Run("missing spot id refused", func(t *testing.T) {
		if err := led.Reserve(ctx, model.Reservation{}); !errors.Is(err, fault.ErrValidation) {
			t.Errorf("want ErrValidation, got %v", err)
		}
	})
}

func TestReservationLedgerRelease(t *testing.T) {
	ctx := context.Background()
	led := NewReservationLedger(store.NewMemoryStore())
	if err := led.Reserve(ctx, model.Reservation{SpotID: "S100", CustomerName: "Dana", Email: "dana@test"}); err != nil {
		t.Fatalf("seed: %v", err)
	}

	t.Run("editor refused", func(t *testing.T) {
		if err := led.Release(ctx, editor, "S100"); !errors.Is(err, fault.ErrUnauthorized) {
			t.Errorf("want ErrUnauthorized, got %v", err)
		}
	})

	t.Run("admin releases", func(t *testing.T) {
		if err := led.Release(ctx, admin, "S100"); err != nil {
			t.Fatalf("release: %v", err)
		}
		got, _ := led.Get(ctx, "S100")
		if got != nil {
			t.Error("reservation survived release")
		}
	})

	t.Run("releasing a free spot", func(t *testing.T) {
		if err := led.Release(ctx, admin, "S100"); !errors.Is(err, fault.ErrNotFound) {
			t.Errorf("want ErrNotFound, got %v", err)
		}
	})
}

func TestReservationLedgerPurge(t *testing.T) {
	ctx := context.Background()
	led := NewReservationLedger(store.NewMemoryStore())

	old := model.Reservation{SpotID: "S1", CustomerName: "a", Email: "a@test",
		CreatedAt: time.Now().UTC().AddDate(0, 0, -400)}
	fresh := model.Reservation{SpotID: "S2", CustomerName: "b", Email: "b@test"}
	if err := led.Reserve(ctx, old); err != nil {
		t.Fatalf("seed old: %v", err)
	}
	if err := led.Reserve(ctx, fresh); err != nil {
		t.Fatalf("seed fresh: %v", err)
	}

	t.Run("admin gate", func(t *testing.T) {
		if _, err := led.PurgeOlderThan(ctx, viewer, 365); !errors.Is(err, fault.ErrUnauthorized) {
			t.Errorf("want ErrUnauthorized, got %v", err)
		}
	})

	t.Run("drops only stale entries", func(t *testing.T) {
		n, err := led.PurgeOlderThan(ctx, admin, 365)
		if err != nil {
			t.Fatalf("purge: %v", err)
		}
		if n != 1 {
			t.Errorf("purged %d, want 1", n)
		}
		if got, _ := led.Get(ctx, "S1"); got != nil {
			t.Error("stale reservation survived")
		}
		if got, _ := led.Get(ctx, "S2"); got == nil {
			t.Error("fresh reservation was purged")
		}
	})
}
