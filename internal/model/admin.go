package model

import "time"

// Admin is a back-office account. Passwords are stored as bcrypt hashes.
// IDs are opaque UUID strings generated by the store.
type Admin struct {
	ID           string     `json:"id" db:"id"`
	Email        string     `json:"email" db:"email"`
	PasswordHash string     `json:"-" db:"password_hash"` // bcrypt hash, never expose
	Name         string     `json:"name" db:"name"`
	Role         Role       `json:"role" db:"role"`
	IsActive     bool       `json:"is_active" db:"is_active"`
	LastLoginAt  *time.Time `json:"last_login_at,omitempty" db:"last_login_at"`
	CreatedAt    time.Time  `json:"created_at" db:"created_at"`
	UpdatedAt    time.Time  `json:"updated_at" db:"updated_at"`
}

// IsActiveSuperAdmin reports whether the account counts toward the
// active-superadmin invariant.
func (a *Admin) IsActiveSuperAdmin() bool {
	return a.Role == RoleSuperAdmin && a.IsActive
}
