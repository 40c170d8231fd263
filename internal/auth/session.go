// Package auth resolves the acting principal and gates capabilities.
// The live session identity is kept in the durable key-value store,
// where the map pages read it; account credentials themselves live in
// MySQL and are only touched at login time.
package auth

import (
	"context"
	"encoding/json"

	"github.com/csfest/vendor-booking/internal/fault"
	"github.com/csfest/vendor-booking/internal/model"
	"github.com/csfest/vendor-booking/internal/store"
)

// Provider resolves the acting principal for gated operations. A nil
// principal with a nil error means "guest".
type Provider interface {
	CurrentPrincipal(ctx context.Context) (*model.Principal, error)
}

// ProviderFunc adapts a function to the Provider interface.
type ProviderFunc func(ctx context.Context) (*model.Principal, error)

// CurrentPrincipal calls f.
func (f ProviderFunc) CurrentPrincipal(ctx context.Context) (*model.Principal, error) {
	return f(ctx)
}

// SessionProvider reads and writes the current-session identity in
// the key-value store. It also honors the legacy admin flag written
// by earlier versions of the site: when the flag is set and no
// session principal exists, an anonymous admin principal is resolved.
type SessionProvider struct {
	store store.Store
}

// NewSessionProvider returns a provider over the given store.
func NewSessionProvider(s store.Store) *SessionProvider {
	return &SessionProvider{store: s}
}

// CurrentPrincipal resolves the session identity. A corrupt session
// value is treated as logged out rather than surfaced as an error.
func (p *SessionProvider) CurrentPrincipal(ctx context.Context) (*model.Principal, error) {
	raw, ok, err := p.store.GetItem(ctx, store.KeySession)
	if err != nil {
		return nil, err
	}
	if ok {
		var principal model.Principal
		if jsonErr := json.Unmarshal([]byte(raw), &principal); jsonErr == nil && principal.Email != "" {
			return &principal, nil
		}
	}
	// Legacy path: the old admin login only set a marker flag.
	flag, ok, err := p.store.GetItem(ctx, store.KeyAdminFlag)
	if err != nil {
		return nil, err
	}
	if ok && flag != "" {
		return &model.Principal{Name: "admin", Flags: []string{model.FlagAdmin, model.FlagEdit}}, nil
	}
	return nil, nil
}

// SignIn records the principal as the current session. Admins also
// get the legacy flag so older pages keep recognizing them.
func (p *SessionProvider) SignIn(ctx context.Context, principal *model.Principal) error {
	raw, err := json.Marshal(principal)
	if err != nil {
		return err
	}
	if err := p.store.SetItem(ctx, store.KeySession, string(raw)); err != nil {
		return err
	}
	if principal.IsAdmin() {
		return p.store.SetItem(ctx, store.KeyAdminFlag, "true")
	}
	return nil
}

// SignOut clears the session identity and the legacy admin flag.
func (p *SessionProvider) SignOut(ctx context.Context) error {
	if err := p.store.RemoveItem(ctx, store.KeySession); err != nil {
		return err
	}
	return p.store.RemoveItem(ctx, store.KeyAdminFlag)
}

// RequireEdit is the capability gate for layout mutations. It is
// called at the top of every mutating registry and editor operation.
func RequireEdit(p *model.Principal) error {
	if !p.CanEdit() {
		return fault.Wrap(fault.ErrUnauthorized, "edit capability required")
	}
	return nil
}

// RequireAdmin is the capability gate for reservation management and
// user administration.
func RequireAdmin(p *model.Principal) error {
	if !p.IsAdmin() {
		return fault.Wrap(fault.ErrUnauthorized, "admin capability required")
	}
	return nil
}
