package model

import "time"

// Capability flags understood by the authorization gate. FlagAdmin
// implies FlagEdit; FlagViewer is the default for new accounts.
const (
	FlagViewer = "viewer"
	FlagEdit   = "edit"
	FlagAdmin  = "admin"
)

// Principal is the resolved acting identity supplied by the session
// provider or the JWT middleware. A nil *Principal means "guest".
//
// Fields:
//
//	Name  – display name.
//	Email – unique email address.
//	Flags – capability flags from {viewer, edit, admin}.
type Principal struct {
	Name  string   `json:"name"`
	Email string   `json:"email"`
	Flags []string `json:"flags"`
}

// HasFlag reports whether the principal carries the given flag.
func (p *Principal) HasFlag(flag string) bool {
	if p == nil {
		return false
	}
	for _, f := range p.Flags {
		if f == flag {
			return true
		}
	}
	return false
}

// IsAdmin reports whether the principal holds the admin flag.
func (p *Principal) IsAdmin() bool { return p.HasFlag(FlagAdmin) }

// CanEdit reports whether the principal may modify spot layout.
// Admin implies edit.
func (p *Principal) CanEdit() bool { return p.HasFlag(FlagEdit) || p.HasFlag(FlagAdmin) }

// User represents an account record as stored in the `users` table.
// Credentials live in MySQL while the live session identity is kept
// in the key-value store, mirroring how the map pages consume it.
//
// Fields:
//
//	ID           – primary key identifier of the user.
//	Name         – display name.
//	Email        – unique email address.
//	PasswordHash – bcrypt hashed password.
//	Flags        – capability flags, stored comma-separated.
//	IsActive     – whether the account is active.
//	CreatedAt    – timestamp of creation.
//	LastLogin    – timestamp of the last successful login (nullable).
type User struct {
	ID           uint64
	Name         string
	Email        string
	PasswordHash string
	Flags        []string
	IsActive     bool
	CreatedAt    time.Time
	LastLogin    *time.Time
}

// Principal converts a stored user into the acting identity handed
// to the capability gate.
func (u User) Principal() *Principal {
	return &Principal{Name: u.Name, Email: u.Email, Flags: u.Flags}
}

// RefreshToken models an entry in the `refresh_tokens` table. The
// plain token is not stored; only its SHA-256 hash.
//
// Fields:
//
//	ID        – primary key identifier.
//	UserID    – owner of the token.
//	TokenHash – SHA-256 hex digest of the token value.
//	ExpiresAt – expiration timestamp of the token.
//	RevokedAt – when the token was revoked (null if still active).
//	CreatedAt – timestamp of creation.
type RefreshToken struct {
	ID        uint64
	UserID    uint64
	TokenHash string
	ExpiresAt time.Time
	RevokedAt *time.Time
	CreatedAt time.Time
}
