// Package user implements the User entity from spec.md §3 (component A,
// "Store"): stable-id users identified solely by an opaque user_code.
package user

import (
	"context"
	"errors"
	"strings"
	"time"
)

// Sentinel errors for the user package.
var (
	ErrNotFound      = errors.New("user not found")
	ErrEmptyUsername = errors.New("username must not be empty")
)

// MaxUsernameLength bounds the username accepted at creation.
const MaxUsernameLength = 64

// User holds the fields read from the database.
type User struct {
	ID        int64
	Username  string
	UserCode  string
	CreatedAt time.Time
}

// ValidateUsername trims and validates a requested username.
func ValidateUsername(username string) (string, error) {
	trimmed := strings.TrimSpace(username)
	if trimmed == "" {
		return "", ErrEmptyUsername
	}
	if len(trimmed) > MaxUsernameLength {
		trimmed = trimmed[:MaxUsernameLength]
	}
	return trimmed, nil
}

// Repository defines the data-access contract for user operations (spec.md §4.A).
type Repository interface {
	// CreateUser inserts a new user with a freshly generated opaque user_code.
	CreateUser(ctx context.Context, username string) (*User, error)

	// GetByCode returns the user bearing the given opaque code, or ErrNotFound.
	GetByCode(ctx context.Context, code string) (*User, error)

	// GetByID returns the user with the given id, or ErrNotFound.
	GetByID(ctx context.Context, id int64) (*User, error)
}
