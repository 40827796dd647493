// Package group implements the Group and Participant entities from
// spec.md §3 (component A, "Store").
package group

import (
	"context"
	"errors"
	"strings"
	"time"
)

// Sentinel errors for the group package.
var (
	ErrNotFound        = errors.New("group not found")
	ErrEmptyName       = errors.New("group name must not be empty")
	ErrInvalidDuration = errors.New("group duration must be positive")
	ErrAlreadyJoined   = errors.New("user is already a participant of this group")
	ErrExpired         = errors.New("group has expired")
	ErrWrongPassphrase = errors.New("incorrect group passphrase")
	ErrMaxMembers      = errors.New("group has reached its maximum number of members")
)

// MaxNameLength bounds the group name accepted at creation.
const MaxNameLength = 100

// Group holds the fields read from the database.
type Group struct {
	ID                int64
	Name              string
	GroupCode         string
	OwnerID           int64
	ApprovalRequired  bool
	MaximumMembers    *int
	PassphraseHash    *string
	CreatedAt         time.Time
	ExpiredAt         time.Time
}

// IsExpired reports whether the group is past its expiry as of now.
func (g *Group) IsExpired(now time.Time) bool {
	return now.After(g.ExpiredAt)
}

// CreateParams groups the inputs for creating a new group.
type CreateParams struct {
	OwnerID          int64
	Name             string
	ApprovalRequired bool
	MaximumMembers   *int
	Duration         time.Duration
	PassphraseHash   *string
}

// ValidateName trims and validates a requested group name.
func ValidateName(name string) (string, error) {
	trimmed := strings.TrimSpace(name)
	if trimmed == "" {
		return "", ErrEmptyName
	}
	if len(trimmed) > MaxNameLength {
		trimmed = trimmed[:MaxNameLength]
	}
	return trimmed, nil
}

// ValidateDuration checks that a requested group lifetime is positive.
func ValidateDuration(d time.Duration) error {
	if d <= 0 {
		return ErrInvalidDuration
	}
	return nil
}

// Repository defines the data-access contract for group and participant
// operations (spec.md §4.A).
type Repository interface {
	// CreateGroup inserts a new group and, in the same transaction, adds the
	// owner as a Participant.
	CreateGroup(ctx context.Context, params CreateParams) (*Group, error)

	// GetByID returns the group with the given id, or ErrNotFound.
	GetByID(ctx context.Context, id int64) (*Group, error)

	// FindByCode returns the group bearing the given opaque code, or ErrNotFound.
	FindByCode(ctx context.Context, code string) (*Group, error)

	// IsParticipant reports whether u is a participant of g.
	IsParticipant(ctx context.Context, userID, groupID int64) (bool, error)

	// IsOwner reports whether u owns g.
	IsOwner(ctx context.Context, userID, groupID int64) (bool, error)

	// AddParticipant adds u as a participant of g. Returns ErrAlreadyJoined on
	// a uniqueness violation.
	AddParticipant(ctx context.Context, userID, groupID int64) error

	// RemoveParticipant removes u from g's participant list (owner kick, or
	// voluntary leave).
	RemoveParticipant(ctx context.Context, userID, groupID int64) error

	// ParticipantsOf returns the user ids of every current participant of g.
	ParticipantsOf(ctx context.Context, groupID int64) ([]int64, error)

	// ParticipantCount returns the number of current participants of g.
	ParticipantCount(ctx context.Context, groupID int64) (int, error)

	// Delete cascades a group deletion: attachments, then messages, then
	// participants, then waiting list entries, then the group itself
	// (spec.md §3 invariant 1).
	Delete(ctx context.Context, groupID int64) error

	// ListForUser returns the groups a user currently participates in,
	// newest first.
	ListForUser(ctx context.Context, userID int64) ([]Group, error)

	// DeleteExpired cascades-deletes every group whose expired_at is before
	// cutoff, returning the number of groups removed.
	DeleteExpired(ctx context.Context, cutoff time.Time) (int64, error)
}
