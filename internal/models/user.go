package models

import "time"

// User is a user directory record.
type User struct {
	// ID is the unique identifier for the user (UUID format).
	ID string

	// Name is the display name of the user.
	Name string

	// Email is the user's email address (unique). Used for login.
	Email string

	// Bio is free text shown on the user's profile.
	Bio string

	// Rating is the user's aggregated rating, maintained elsewhere.
	Rating float64

	// PasswordHash is the bcrypt hash of the user's password.
	PasswordHash string

	// GroupName mirrors the name of the user's current group.
	// Empty when the user is not in a group.
	GroupName string

	// CreatedAt is the Unix timestamp when the account was created.
	CreatedAt int64
}

// NewUser builds a user record with a fresh creation timestamp.
// The ID is assigned by the store.
func NewUser(email, name, passwordHash string) *User {
	return &User{
		Email:        email,
		Name:         name,
		PasswordHash: passwordHash,
		CreatedAt:    time.Now().Unix(),
	}
}
