// Package model defines the data structures used throughout the application.
// In Go, we use structs to represent our data, similar to classes in other languages,
// but without inheritance. Go favours composition over inheritance.
package model

import "time"

// Roles a user can hold. Admins may mutate any book or review.
const (
	RoleUser  = "user"
	RoleAdmin = "admin"
)

// User represents a registered account.
//
// WHY `json:"-"` ON PasswordHash?
// The hash must never leave the server. Tagging it "-" makes encoding/json skip
// it entirely, so even a handler that accidentally writes a *User can't leak it.
// Handlers still prefer writing Public() to make the exposed shape explicit.
type User struct {
	ID           string    `json:"id"        db:"id"`
	Email        string    `json:"email"     db:"email"`
	PasswordHash string    `json:"-"         db:"password_hash"`
	Name         string    `json:"name"      db:"name"`
	Role         string    `json:"role"      db:"role"`
	CreatedAt    time.Time `json:"createdAt" db:"created_at"`
	UpdatedAt    time.Time `json:"updatedAt" db:"updated_at"`
}

// Public returns the fields a user may see about themselves.
func (u *User) Public() PublicUser {
	return PublicUser{
		ID:    u.ID,
		Email: u.Email,
		Name:  u.Name,
		Role:  u.Role,
	}
}

// PublicUser is the self view returned by register, login and /auth/me.
type PublicUser struct {
	ID    string `json:"id"`
	Email string `json:"email"`
	Name  string `json:"name"`
	Role  string `json:"role"`
}

// UserRef identifies the author of a book or review to other users.
// Email is intentionally absent.
type UserRef struct {
	ID   string `json:"id"   db:"id"`
	Name string `json:"name" db:"name"`
}
