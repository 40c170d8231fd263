package editor

import (
	"context"
	"errors"
	"strings"
	"testing"

	"github.com/csfest/vendor-booking/internal/fault"
	"github.com/csfest/vendor-booking/internal/model"
	"github.com/csfest/vendor-booking/internal/repository"
	"github.com/csfest/vendor-booking/internal/store"
)

// principalSwitch lets a test flip the acting identity mid-session,
// the same thing a logout in another tab does.
type principalSwitch struct {
	p *model.Principal
}

func (ps *principalSwitch) CurrentPrincipal(context.Context) (*model.Principal, error) {
	return ps.p, nil
}

func editorPrincipal() *model.Principal {
	return &model.Principal{Name: "ed", Email: "ed@test", Flags: []string{model.FlagEdit}}
}

func newTestSession(t *testing.T, spots ...model.Spot) (*Session, *repository.SpotRegistry, *principalSwitch) {
	t.Helper()
	kv := store.NewMemoryStore()
	reg := repository.NewSpotRegistry(kv, nil, repository.NewReservationLedger(kv))
	ps := &principalSwitch{p: editorPrincipal()}
	for _, s := range spots {
		if err := reg.Upsert(context.Background(), ps.p, s); err != nil {
			t.Fatalf("seed spot %s: %v", s.ID, err)
		}
	}
	return NewSession(reg, ps), reg, ps
}

func testRect(id string) model.Spot {
	return model.Spot{ID: id, Type: model.GeometryRect, X: 100, Y: 100, W: 120, H: 120, Price: 100}
}

func TestSessionEditMode(t *testing.T) {
	ctx := context.Background()

	t.Run("capability required", func(t *testing.T) {
		sess, _, ps := newTestSession(t)
		ps.p = &model.Principal{Name: "vi", Email: "vi@test", Flags: []string{model.FlagViewer}}
		if err := sess.EnableEditMode(ctx); !errors.Is(err, fault.ErrUnauthorized) {
			t.Errorf("want ErrUnauthorized, got %v", err)
		}
		if sess.EditMode() {
			t.Error("edit mode must stay off after refusal")
		}
	})

	t.Run("guest refused", func(t *testing.T) {
		sess, _, ps := newTestSession(t)
		ps.p = nil
		if err := sess.EnableEditMode(ctx); !errors.Is(err, fault.ErrUnauthorized) {
			t.Errorf("want ErrUnauthorized, got %v", err)
		}
	})

	t.Run("editor enables", func(t *testing.T) {
		sess, _, _ := newTestSession(t)
		if err := sess.EnableEditMode(ctx); err != nil {
			t.Fatalf("enable: %v", err)
		}
		if !sess.EditMode() {
			t.Error("edit mode should be on")
		}
	})
}

func TestSessionDrag(t *testing.T) {
	ctx := context.Background()

	t.Run("drag commits rounded geometry", func(t *testing.T) {
		sess, reg, _ := newTestSession(t, testRect("S101"))
		if err := sess.EnableEditMode(ctx); err != nil {
			t.Fatalf("enable: %v", err)
		}
		if err := sess.SelectSpot(ctx, "S101"); err != nil {
			t.Fatalf("select: %v", err)
		}
		// Grab the spot 10,10 inside its corner and move the pointer.
		if err := sess.BeginDrag(ctx, Point{X: 110, Y: 110}); err != nil {
			t.Fatalf("begin drag: %v", err)
		}
		sess.UpdatePointer(Point{X: 210.4, Y: 160.6})
		if err := sess.EndDrag(ctx); err != nil {
			t.Fatalf("end drag: %v", err)
		}

		spot, _ := reg.Get(ctx, "S101")
		if spot.X != 200 || spot.Y != 151 {
			t.Errorf("got position (%v,%v), want (200,151)", spot.X, spot.Y)
		}
		if sess.State() != Selected {
			t.Errorf("state %v after commit, want Selected", sess.State())
		}
	})

	t.Run("drag requires edit mode", func(t *testing.T) {
		sess, _, _ := newTestSession(t, testRect("S101"))
		if err := sess.SelectSpot(ctx, "S101"); err != nil {
			t.Fatalf("select: %v", err)
		}
		if err := sess.BeginDrag(ctx, Point{}); !errors.Is(err, fault.ErrValidation) {
			t.Errorf("want ErrValidation, got %v", err)
		}
	})

	t.Run("second begin is ignored", func(t *testing.T) {
		sess, _, _ := newTestSession(t, testRect("S101"))
		_ = sess.EnableEditMode(ctx)
		_ = sess.SelectSpot(ctx, "S101")
		if err := sess.BeginDrag(ctx, Point{X: 100, Y: 100}); err != nil {
			t.Fatalf("begin drag: %v", err)
		}
		if err := sess.BeginDrag(ctx, Point{X: 500, Y: 500}); err != nil {
			t.Fatalf("repeat begin drag: %v", err)
		}
		// Offset must still be the one captured first.
		sess.UpdatePointer(Point{X: 101, Y: 101})
		w := sess.WorkingGeometry()
		if w == nil || w.X != 101 || w.Y != 101 {
			t.Errorf("second BeginDrag re-captured the offset: %+v", w)
		}
	})

	t.Run("exit edit mode drops uncommitted geometry", func(t *testing.T) {
		sess, reg, _ := newTestSession(t, testRect("S101"))
		_ = sess.EnableEditMode(ctx)
		_ = sess.SelectSpot(ctx, "S101")
		_ = sess.BeginDrag(ctx, Point{X: 100, Y: 100})
		sess.UpdatePointer(Point{X: 900, Y: 900})
		sess.ExitEditMode()

		spot, _ := reg.Get(ctx, "S101")
		if spot.X != 100 || spot.Y != 100 {
			t.Errorf("uncommitted drag leaked to the registry: %+v", spot)
		}
		if sess.State() != Viewing || sess.SelectedSpot() != "" {
			t.Error("exit should reset to Viewing with no selection")
		}
	})
}

func TestSessionResize(t *testing.T) {
	ctx := context.Background()

	t.Run("resize tracks pointer with floor", func(t *testing.T) {
		sess, reg, _ := newTestSession(t, testRect("S101"))
		_ = sess.EnableEditMode(ctx)
		_ = sess.SelectSpot(ctx, "S101")
		if err := sess.BeginResize(ctx, Point{X: 220, Y: 220}); err != nil {
			t.Fatalf("begin resize: %v", err)
		}

		// Shrink far past the floor: dimensions clamp at MinSpotSize.
		sess.UpdatePointer(Point{X: 0, Y: 0})
		w := sess.WorkingGeometry()
		if w.W != MinSpotSize || w.H != MinSpotSize {
			t.Errorf("floor not applied: W=%v H=%v", w.W, w.H)
		}

		// Grow again relative to the geometry captured at entry.
		sess.UpdatePointer(Point{X: 260, Y: 230})
		if err := sess.EndResize(ctx); err != nil {
			t.Fatalf("end resize: %v", err)
		}
		spot, _ := reg.Get(ctx, "S101")
		if spot.W != 160 || spot.H != 130 {
			t.Errorf("got size %vx%v, want 160x130", spot.W, spot.H)
		}
	})

	t.Run("circles have no resize handle", func(t *testing.T) {
		circle := model.Spot{ID: "C1", Type: model.GeometryCircle, CX: 300, CY: 300, R: 50, Price: 80}
		sess, _, _ := newTestSession(t, circle)
		_ = sess.EnableEditMode(ctx)
		_ = sess.SelectSpot(ctx, "C1")
		if err := sess.BeginResize(ctx, Point{}); !errors.Is(err, fault.ErrValidation) {
			t.Errorf("want ErrValidation, got %v", err)
		}
	})
}

func TestSessionAddDelete(t *testing.T) {
	ctx := context.Background()

	t.Run("add creates centered default rect", func(t *testing.T) {
		sess, reg, _ := newTestSession(t)
		_ = sess.EnableEditMode(ctx)
		id, err := sess.AddSpot(ctx, Point{X: 400, Y: 300})
		if err != nil {
			t.Fatalf("add: %v", err)
		}
		if !strings.HasPrefix(id, "S") {
			t.Errorf("unexpected id %q", id)
		}
		spot, _ := reg.Get(ctx, id)
		if spot == nil {
			t.Fatal("added spot not in registry")
		}
		if spot.X != 340 || spot.Y != 240 || spot.W != 120 || spot.H != 120 || spot.Price != 100 {
			t.Errorf("unexpected defaults: %+v", spot)
		}
		if sess.SelectedSpot() != id || sess.State() != Selected {
			t.Error("new spot should be selected")
		}
	})

	t.Run("add outside edit mode refused", func(t *testing.T) {
		sess, _, _ := newTestSession(t)
		if _, err := sess.AddSpot(ctx, Point{}); !errors.Is(err, fault.ErrValidation) {
			t.Errorf("want ErrValidation, got %v", err)
		}
	})

	t.Run("fresh ids avoid collisions", func(t *testing.T) {
		sess, _, _ := newTestSession(t)
		_ = sess.EnableEditMode(ctx)
		seen := map[string]bool{}
		for i := 0; i < 20; i++ {
			id, err := sess.AddSpot(ctx, Point{X: 100, Y: 100})
			if err != nil {
				t.Fatalf("add %d: %v", i, err)
			}
			if seen[id] {
				t.Fatalf("duplicate id %q", id)
			}
			seen[id] = true
		}
	})

	t.Run("delete returns to viewing", func(t *testing.T) {
		sess, reg, _ := newTestSession(t, testRect("S101"))
		_ = sess.EnableEditMode(ctx)
		_ = sess.SelectSpot(ctx, "S101")
		if err := sess.DeleteSpot(ctx, "S101"); err != nil {
			t.Fatalf("delete: %v", err)
		}
		if ok, _ := reg.Contains(ctx, "S101"); ok {
			t.Error("spot still present")
		}
		if sess.State() != Viewing {
			t.Errorf("state %v, want Viewing", sess.State())
		}
	})
}

func TestSessionRevalidate(t *testing.T) {
	ctx := context.Background()

	t.Run("remote delete clears the selection", func(t *testing.T) {
		sess, reg, ps := newTestSession(t, testRect("S101"))
		_ = sess.SelectSpot(ctx, "S101")
		// Another session deletes the spot out from under us.
		if err := reg.Remove(ctx, ps.p, "S101"); err != nil {
			t.Fatalf("remote delete: %v", err)
		}
		if err := sess.Revalidate(ctx); err != nil {
			t.Fatalf("revalidate: %v", err)
		}
		if sess.State() != Viewing || sess.SelectedSpot() != "" {
			t.Error("stale selection survived revalidate")
		}
	})

	t.Run("capability revocation exits edit mode", func(t *testing.T) {
		sess, _, ps := newTestSession(t, testRect("S101"))
		_ = sess.EnableEditMode(ctx)
		ps.p = &model.Principal{Name: "ed", Email: "ed@test", Flags: []string{model.FlagViewer}}
		if err := sess.Revalidate(ctx); err != nil {
			t.Fatalf("revalidate: %v", err)
		}
		if sess.EditMode() {
			t.Error("edit mode survived capability revocation")
		}
	})
}
