package models

import (
	"time"
	"unicode/utf8"
)

// Roles a user can hold.
const (
	RoleAdmin = "admin"
	RoleUser  = "user"
)

// MaxUsernameLen is the width of the users.username column, in characters.
const MaxUsernameLen = 50

// UsernameFits reports whether name fits the username column.
func UsernameFits(name string) bool {
	return utf8.RuneCountInString(name) <= MaxUsernameLen
}

// ValidRole reports whether role is one of the known roles.
func ValidRole(role string) bool {
	return role == RoleAdmin || role == RoleUser
}

// User represents a row in the PostgreSQL users table.
type User struct {
	ID        string    `json:"id"`
	Username  string    `json:"username"`
	Password  string    `json:"-"` // bcrypt hash, never serialize
	Role      string    `json:"role"`
	CreatedAt time.Time `json:"created_at"`
}

// UserUpdate is a partial update applied by an admin. Nil fields are left unchanged.
type UserUpdate struct {
	Username *string `json:"username,omitempty"`
	Role     *string `json:"role,omitempty"`
}

// Empty reports whether the update changes nothing.
func (u UserUpdate) Empty() bool {
	return u.Username == nil && u.Role == nil
}

// Credentials is the body for POST /register and POST /login.
type Credentials struct {
	Username string `json:"username"`
	Password string `json:"password"`
}
