package auth

import (
	"context"
	"errors"
	"testing"

	"github.com/csfest/vendor-booking/internal/fault"
	"github.com/csfest/vendor-booking/internal/model"
	"github.com/csfest/vendor-booking/internal/store"
)

func TestSessionProvider(t *testing.T) {
	ctx := context.Background()

	t.Run("no session resolves guest", func(t *testing.T) {
		p := NewSessionProvider(store.NewMemoryStore())
		got, err := p.CurrentPrincipal(ctx)
		if err != nil {
			t.Fatalf("resolve: %v", err)
		}
		if got != nil {
			t.Errorf("expected guest, got %+v", got)
		}
	})

	t.Run("sign-in round trip", func(t *testing.T) {
		p := NewSessionProvider(store.NewMemoryStore())
		in := &model.Principal{Name: "ed", Email: "ed@test", Flags: []string{model.FlagEdit}}
		if err := p.SignIn(ctx, in); err != nil {
			t.Fatalf("sign in: %v", err)
		}
		got, err := p.CurrentPrincipal(ctx)
		if err != nil || got == nil {
			t.Fatalf("resolve: got=%v err=%v", got, err)
		}
		if got.Email != "ed@test" || !got.CanEdit() {
			t.Errorf("principal mangled: %+v", got)
		}
	})

	t.Run("sign-out clears the session", func(t *testing.T) {
		p := NewSessionProvider(store.NewMemoryStore())
		admin := &model.Principal{Name: "op", Email: "op@test", Flags: []string{model.FlagAdmin}}
		if err := p.SignIn(ctx, admin); err != nil {
			t.Fatalf("sign in: %v", err)
		}
		if err := p.SignOut(ctx); err != nil {
			t.Fatalf("sign out: %v", err)
		}
		got, _ := p.CurrentPrincipal(ctx)
		if got != nil {
			t.Errorf("session survived sign-out: %+v", got)
		}
	})

	t.Run("legacy admin flag resolves anonymous admin", func(t *testing.T) {
		kv := store.NewMemoryStore()
		if err := kv.SetItem(ctx, store.KeyAdminFlag, "true"); err != nil {
			t.Fatalf("set flag: %v", err)
		}
		p := NewSessionProvider(kv)
		got, err := p.CurrentPrincipal(ctx)
		if err != nil || got == nil {
			t.Fatalf("resolve: got=%v err=%v", got, err)
		}
		if !got.IsAdmin() || !got.CanEdit() {
			t.Errorf("legacy admin lacks capabilities: %+v", got)
		}
	})

	t.Run("corrupt session treated as logged out", func(t *testing.T) {
		kv := store.NewMemoryStore()
		if err := kv.SetItem(ctx, store.KeySession, "{not json"); err != nil {
			t.Fatalf("set: %v", err)
		}
		p := NewSessionProvider(kv)
		got, err := p.CurrentPrincipal(ctx)
		if err != nil {
			t.Fatalf("corrupt session should not error: %v", err)
		}
		if got != nil {
			t.Errorf("corrupt session resolved a principal: %+v", got)
		}
	})
}

func TestCapabilityGates(t *testing.T) {
	editor := &model.Principal{Name: "ed", Email: "ed@test", Flags: []string{model.FlagEdit}}
	admin := &model.Principal{Name: "op", Email: "op@test", Flags: []string{model.FlagAdmin}}
	viewer := &model.Principal{Name: "vi", Email: "vi@test", Flags: []string{model.FlagViewer}}

	t.Run("RequireEdit", func(t *testing.T) {
		if err := RequireEdit(editor); err != nil {
			t.Errorf("editor refused: %v", err)
		}
		if err := RequireEdit(admin); err != nil {
			t.Errorf("admin should imply edit: %v", err)
		}
		if err := RequireEdit(viewer); !errors.Is(err, fault.ErrUnauthorized) {
			t.Errorf("viewer allowed: %v", err)
		}
		if err := RequireEdit(nil); !errors.Is(err, fault.ErrUnauthorized) {
			t.Errorf("guest allowed: %v", err)
		}
	})

	t.Run("RequireAdmin", func(t *testing.T) {
		if err := RequireAdmin(admin); err != nil {
			t.Errorf("admin refused: %v", err)
		}
		if err := RequireAdmin(editor); !errors.Is(err, fault.ErrUnauthorized) {
			t.Errorf("editor allowed: %v", err)
		}
		if err := RequireAdmin(nil); !errors.Is(err, fault.ErrUnauthorized) {
			t.Errorf("guest allowed: %v", err)
		}
	})
}
