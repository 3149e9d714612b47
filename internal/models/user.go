package models

import "time"

// User roles, most privileged last
const (
	RoleUser  = "user"
	RoleAdmin = "admin"
	RoleRoot  = "root"
)

// User is a dashboard account
type User struct {
	ID           uint64    `db:"id" json:"id"`
	Username     string    `db:"username" json:"username"`
	PasswordHash string    `db:"password_hash" json:"-"`
	Role         string    `db:"role" json:"role"`
	Timezone     string    `db:"timezone" json:"timezone"`
	CreatedAt    time.Time `db:"created_at" json:"created_at"`
}

// CanManage reports whether the role grants admin-level access.
func (u *User) CanManage() bool {
	return u.Role == RoleAdmin || u.Role == RoleRoot
}

// Session is one opaque-token login. Only the SHA-256 of the token is stored.
type Session struct {
	ID        uint64    `db:"id"`
	TokenHash string    `db:"token_hash"`
	Username  string    `db:"username"`
	ExpiresAt time.Time `db:"expires_at"`
	CreatedAt time.Time `db:"created_at"`
}

// Expired reports whether the session is past its expiry at the given instant.
func (s *Session) Expired(now time.Time) bool {
	return !s.ExpiresAt.After(now)
}
