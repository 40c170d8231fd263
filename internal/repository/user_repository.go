package repository

import (
	"context"
	"database/sql"
	"strings"
	"time"

	"github.com/csfest/vendor-booking/internal/fault"
	"github.com/csfest/vendor-booking/internal/model"
	"github.com/csfest/vendor-booking/internal/utils"
)

// UserRepo persists user accounts in the `users` table. Capability
// flags are stored comma-separated; passwords are stored as bcrypt
// hashes only.
type UserRepo struct{ DB *sql.DB }

// NewUserRepo returns a UserRepo bound to the given database.
func NewUserRepo(db *sql.DB) *UserRepo { return &UserRepo{DB: db} }

// Create inserts a user and returns its ID. The email is normalized
// to lower case; a duplicate email yields a conflict fault.
func (r *UserRepo) Create(ctx context.Context, name, email, password string, flags []string, cost int) (uint64, error) {
	email = strings.ToLower(strings.TrimSpace(email))
	if name == "" || email == "" || password == "" {
		return 0, fault.Wrap(fault.ErrValidation, "name, email and password are required")
	}
	if len(flags) == 0 {
		flags = []string{model.FlagViewer}
	}
	hash, err := utils.HashPassword(password, cost)
	if err != nil {
		return 0, err
	}
	res, err := r.DB.ExecContext(ctx,
		"INSERT INTO users (name, email, password_hash, flags) VALUES (?,?,?,?)",
		name, email, hash, joinFlags(flags))
	if err != nil {
		// MySQL duplicate-key error code.
		if strings.Contains(strings.ToLower(err.Error()), "1062") {
			return 0, fault.Wrap(fault.ErrConflict, "account with email %q already exists", email)
		}
		return 0, err
	}
	id, err := res.LastInsertId()
	if err != nil {
		return 0, err
	}
	return uint64(id), nil
}

// GetByEmail fetches a user by normalized email.
func (r *UserRepo) GetByEmail(ctx context.Context, email string) (model.User, error) {
	email = strings.ToLower(strings.TrimSpace(email))
	return r.scanOne(r.DB.QueryRowContext(ctx,
		"SELECT id,name,email,password_hash,flags,is_active,created_at,last_login FROM users WHERE email=? LIMIT 1",
		email))
}

// GetByID fetches a user by id.
func (r *UserRepo) GetByID(ctx context.Context, id uint64) (model.User, error) {
	return r.scanOne(r.DB.QueryRowContext(ctx,
		"SELECT id,name,email,password_hash,flags,is_active,created_at,last_login FROM users WHERE id=? LIMIT 1",
		id))
}

// List returns all users for the admin panel, newest first.
func (r *UserRepo) List(ctx context.Context) ([]model.User, error) {
	rows, err := r.DB.QueryContext(ctx,
		"SELECT id,name,email,password_hash,flags,is_active,created_at,last_login FROM users ORDER BY created_at DESC")
	if err != nil {
		return nil, err
	}
	defer rows.Close()
	var users []model.User
	for rows.Next() {
		u, err := scanUser(rows.Scan)
		if err != nil {
			return nil, err
		}
		users = append(users, u)
	}
	return users, rows.Err()
}

// Count returns the number of accounts. Used at startup to decide
// whether the bootstrap admin must be seeded.
func (r *UserRepo) Count(ctx context.Context) (int, error) {
	var n int
	err := r.DB.QueryRowContext(ctx, "SELECT COUNT(*) FROM users").Scan(&n)
	return n, err
}

// UpdateFlags replaces a user's capability flags.
func (r *UserRepo) UpdateFlags(ctx context.Context, id uint64, flags []string) error {
	res, err := r.DB.ExecContext(ctx, "UPDATE users SET flags=? WHERE id=?", joinFlags(flags), id)
	if err != nil {
		return err
	}
	if n, _ := res.RowsAffected(); n == 0 {
		return fault.Wrap(fault.ErrNotFound, "user %d", id)
	}
	return nil
}

// TouchLogin records a successful login time.
func (r *UserRepo) TouchLogin(ctx context.Context, id uint64) error {
	_, err := r.DB.ExecContext(ctx, "UPDATE users SET last_login=NOW() WHERE id=?", id)
	return err
}

func (r *UserRepo) scanOne(row *sql.Row) (model.User, error) {
	return scanUser(row.Scan)
}

func scanUser(scan func(...interface{}) error) (model.User, error) {
	var (
		u         model.User
		flags     string
		lastLogin sql.NullTime
	)
	err := scan(&u.ID, &u.Name, &u.Email, &u.PasswordHash, &flags, &u.IsActive, &u.CreatedAt, &lastLogin)
	if err != nil {
		return model.User{}, err
	}
	u.Flags = splitFlags(flags)
	if lastLogin.Valid {
		t := lastLogin.Time
		u.LastLogin = &t
	}
	return u, nil
}

func joinFlags(flags []string) string { return strings.Join(flags, ",") }

func splitFlags(s string) []string {
	var flags []string
	for _, f := range strings.Split(s, ",") {
		if f = strings.TrimSpace(f); f != "" {
			flags = append(flags, f)
		}
	}
	return flags
}

// LastLoginString formats a nullable login time for display, used by
// the admin user list.
func LastLoginString(t *time.Time) string {
	if t == nil {
		return ""
	}
	return t.UTC().Format(time.RFC3339)
}
