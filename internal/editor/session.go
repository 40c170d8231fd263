// Package editor implements the interactive map editing session: an
// ephemeral, single-user state machine over the spot registry's
// geometry. It is created per session, never persisted and never
// shared across tabs; every committed change goes through the
// registry as a snapshot write.
package editor

import (
	"context"
	"fmt"
	"math"
	"math/rand"
	"sync"

	"github.com/csfest/vendor-booking/internal/auth"
	"github.com/csfest/vendor-booking/internal/fault"
	"github.com/csfest/vendor-booking/internal/model"
	"github.com/csfest/vendor-booking/internal/repository"
)

// State enumerates the session states. Dragging and Resizing are only
// reachable from Selected while edit mode is on.
type State int

const (
	// Viewing is the initial state: nothing selected.
	Viewing State = iota
	// Selected holds a spot id; booking and editing start here.
	Selected
	// Dragging tracks an in-progress translation of the selection.
	Dragging
	// Resizing tracks an in-progress resize of the selection.
	Resizing
)

// MinSpotSize is the floor for rectangle width and height during a
// resize; smaller values would produce degenerate, unclickable spots.
const MinSpotSize = 20

// Defaults for spots created through AddSpot, matching what the map
// page drew for a freshly added spot.
const (
	defaultSpotSize  = 120
	defaultSpotPrice = 100
)

// Point is a position in the map's fixed 2D coordinate space.
type Point struct {
	X float64
	Y float64
}

// Session is the editing state machine. All methods are safe for use
// from the request goroutine and the sync watcher; operations are
// strictly sequential under the internal lock, and a second BeginDrag
// while already dragging is ignored.
type Session struct {
	registry *repository.SpotRegistry
	provider auth.Provider

	mu       sync.Mutex
	state    State
	editing  bool
	selected string

	// In-progress geometry. working is a copy of the selected spot;
	// nothing touches the registry until EndDrag/EndResize commits.
	working *model.Spot
	offset  Point      // pointer-to-anchor offset captured at BeginDrag
	start   Point      // pointer position captured at BeginResize
	base    model.Spot // geometry at BeginResize time
}

// NewSession creates a session in the Viewing state with edit mode
// off.
func NewSession(registry *repository.SpotRegistry, provider auth.Provider) *Session {
	return &Session{registry: registry, provider: provider}
}

// State returns the current machine state.
func (s *Session) State() State {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.state
}

// SelectedSpot returns the currently selected spot id, or "".
func (s *Session) SelectedSpot() string {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.selected
}

// EditMode reports whether edit mode is on.
func (s *Session) EditMode() bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.editing
}

// EnableEditMode turns edit mode on. It is refused unless the acting
// principal holds the edit capability.
func (s *Session) EnableEditMode(ctx context.Context) error {
	p, err := s.provider.CurrentPrincipal(ctx)
	if err != nil {
		return err
	}
	if err := auth.RequireEdit(p); err != nil {
		return err
	}
	s.mu.Lock()
	s.editing = true
	s.mu.Unlock()
	return nil
}

// ExitEditMode cancels any in-flight drag or resize without
// committing and returns the session to Viewing.
func (s *Session) ExitEditMode() {
	s.mu.Lock()
	s.editing = false
	s.working = nil
	s.selected = ""
	s.state = Viewing
	s.mu.Unlock()
}

// SelectSpot moves the session to Selected for the given id. The
// selection itself is read-only and always allowed, even without the
// edit capability and even for reserved spots — reservation-flow
// callers check the ledger before opening the booking path. Any
// in-flight drag or resize is dropped uncommitted.
func (s *Session) SelectSpot(ctx context.Context, id string) error {
	ok, err := s.registry.Contains(ctx, id)
	if err != nil {
		return err
	}
	if !ok {
		return fault.Wrap(fault.ErrNotFound, "spot %q", id)
	}
	s.mu.Lock()
	s.selected = id
	s.working = nil
	s.state = Selected
	s.mu.Unlock()
	return nil
}

// BeginDrag starts translating the selected spot. Only reachable from
// Selected with edit mode on; while already Dragging it is ignored.
// The pointer-to-anchor offset is captured at entry so the spot does
// not jump to the cursor.
func (s *Session) BeginDrag(ctx context.Context, pointer Point) error {
	s.mu.Lock()
	if s.state == Dragging {
		s.mu.Unlock()
		return nil
	}
	if s.state != Selected || !s.editing {
		s.mu.Unlock()
		return fault.Wrap(fault.ErrValidation, "drag requires a selection in edit mode")
	}
	id := s.selected
	s.mu.Unlock()

	spot, err := s.registry.Get(ctx, id)
	if err != nil {
		return err
	}
	if spot == nil {
		return fault.Wrap(fault.ErrNotFound, "spot %q", id)
	}
	ax, ay := spot.Anchor()
	s.mu.Lock()
	s.working = spot
	s.offset = Point{X: pointer.X - ax, Y: pointer.Y - ay}
	s.state = Dragging
	s.mu.Unlock()
	return nil
}

// BeginResize starts resizing the selected spot from its bottom-right
// handle. Only rectangles carry a resize handle.
func (s *Session) BeginResize(ctx context.Context, pointer Point) error {
	s.mu.Lock()
	if s.state == Resizing {
		s.mu.Unlock()
		return nil
	}
	if s.state != Selected || !s.editing {
		s.mu.Unlock()
		return fault.Wrap(fault.ErrValidation, "resize requires a selection in edit mode")
	}
	id := s.selected
	s.mu.Unlock()

	spot, err := s.registry.Get(ctx, id)
	if err != nil {
		return err
	}
	if spot == nil {
		return fault.Wrap(fault.ErrNotFound, "spot %q", id)
	}
	if spot.Type != model.GeometryRect {
		return fault.Wrap(fault.ErrValidation, "only rect spots can be resized")
	}
	s.mu.Lock()
	s.working = spot
	s.base = *spot
	s.start = pointer
	s.state = Resizing
	s.mu.Unlock()
	return nil
}

// UpdatePointer applies pointer movement to the in-progress geometry.
// While Dragging the spot translates freely (overlap and leaving the
// nominal canvas are allowed); while Resizing the width and height
// track the pointer with a floor of MinSpotSize. Outside those states
// the call is a no-op.
func (s *Session) UpdatePointer(pointer Point) {
	s.mu.Lock()
	defer s.mu.Unlock()
	switch s.state {
	case Dragging:
		if s.working != nil {
			s.working.MoveTo(math.Round(pointer.X-s.offset.X), math.Round(pointer.Y-s.offset.Y))
		}
	case Resizing:
		if s.working != nil {
			s.working.W = math.Max(MinSpotSize, math.Round(s.base.W+(pointer.X-s.start.X)))
			s.working.H = math.Max(MinSpotSize, math.Round(s.base.H+(pointer.Y-s.start.Y)))
		}
	}
}

// EndDrag commits the dragged geometry to the registry and returns to
// Selected. Outside Dragging it is a no-op.
func (s *Session) EndDrag(ctx context.Context) error { return s.commit(ctx, Dragging) }

// EndResize commits the resized geometry to the registry and returns
// to Selected. Outside Resizing it is a no-op.
func (s *Session) EndResize(ctx context.Context) error { return s.commit(ctx, Resizing) }

func (s *Session) commit(ctx context.Context, from State) error {
	s.mu.Lock()
	if s.state != from || s.working == nil {
		s.mu.Unlock()
		return nil
	}
	spot := *s.working
	s.working = nil
	s.state = Selected
	s.mu.Unlock()

	p, err := s.provider.CurrentPrincipal(ctx)
	if err != nil {
		return err
	}
	return s.registry.Upsert(ctx, p, spot)
}

// AddSpot creates a default-sized rectangle centered at the given
// position with a fresh, collision-checked id, commits it to the
// registry and selects it. Requires edit mode.
func (s *Session) AddSpot(ctx context.Context, position Point) (string, error) {
	s.mu.Lock()
	editing := s.editing
	s.mu.Unlock()
	if !editing {
		return "", fault.Wrap(fault.ErrValidation, "add spot requires edit mode")
	}
	p, err := s.provider.CurrentPrincipal(ctx)
	if err != nil {
		return "", err
	}
	if err := auth.RequireEdit(p); err != nil {
		return "", err
	}
	id, err := s.freshID(ctx)
	if err != nil {
		return "", err
	}
	spot := model.Spot{
		ID:    id,
		Type:  model.GeometryRect,
		X:     math.Round(position.X - defaultSpotSize/2),
		Y:     math.Round(position.Y - defaultSpotSize/2),
		W:     defaultSpotSize,
		H:     defaultSpotSize,
		Price: defaultSpotPrice,
	}
	if err := s.registry.Upsert(ctx, p, spot); err != nil {
		return "", err
	}
	s.mu.Lock()
	s.selected = id
	s.state = Selected
	s.mu.Unlock()
	return id, nil
}

// DeleteSpot removes a spot through the registry (its reserved guard
// propagates) and returns the session to Viewing. Requires edit mode.
func (s *Session) DeleteSpot(ctx context.Context, id string) error {
	s.mu.Lock()
	editing := s.editing
	s.mu.Unlock()
	if !editing {
		return fault.Wrap(fault.ErrValidation, "delete requires edit mode")
	}
	p, err := s.provider.CurrentPrincipal(ctx)
	if err != nil {
		return err
	}
	if err := s.registry.Remove(ctx, p, id); err != nil {
		return err
	}
	s.mu.Lock()
	s.selected = ""
	s.working = nil
	s.state = Viewing
	s.mu.Unlock()
	return nil
}

// WorkingGeometry exposes the uncommitted in-progress geometry, or
// nil outside Dragging/Resizing. Used by rendering.
func (s *Session) WorkingGeometry() *model.Spot {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.working == nil {
		return nil
	}
	w := *s.working
	return &w
}

// Revalidate reconciles the session after an external change: a
// selection pointing at a spot deleted remotely falls back to
// Viewing, and edit mode is force-exited when the capability was
// revoked. The watcher calls this on every detected change.
func (s *Session) Revalidate(ctx context.Context) error {
	s.mu.Lock()
	selected := s.selected
	editing := s.editing
	s.mu.Unlock()

	if selected != "" {
		ok, err := s.registry.Contains(ctx, selected)
		if err != nil {
			return err
		}
		if !ok {
			s.mu.Lock()
			s.selected = ""
			s.working = nil
			s.state = Viewing
			s.mu.Unlock()
		}
	}
	if editing {
		p, err := s.provider.CurrentPrincipal(ctx)
		if err != nil {
			return err
		}
		if !p.CanEdit() {
			s.ExitEditMode()
		}
	}
	return nil
}

// freshID draws random ids in the map page's S100–S999 space until
// one is free in the registry; after too many collisions it widens
// the space rather than spinning.
func (s *Session) freshID(ctx context.Context) (string, error) {
	for attempt := 0; attempt < 100; attempt++ {
		id := fmt.Sprintf("S%d", rand.Intn(900)+100)
		exists, err := s.registry.Contains(ctx, id)
		if err != nil {
			return "", err
		}
		if !exists {
			return id, nil
		}
	}
	for {
		id := fmt.Sprintf("S%d", rand.Intn(900000)+100000)
		exists, err := s.registry.Contains(ctx, id)
		if err != nil {
			return "", err
		}
		if !exists {
			return id, nil
		}
	}
}
