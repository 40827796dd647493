// Package waitinglist implements the WaitingListEntry entity from spec.md §3
// (component A, "Store"): a join request pending owner approval for groups
// that require it.
package waitinglist

import (
	"context"
	"errors"
	"time"
)

// Sentinel errors for the waitinglist package.
var (
	ErrNotFound        = errors.New("waiting list entry not found")
	ErrAlreadyWaiting  = errors.New("user already has a pending join request for this group")
	ErrMessageTooLong  = errors.New("waiting list message exceeds the maximum length")
)

// MaxMessageLength bounds the optional message attached to a join request.
const MaxMessageLength = 500

// Entry holds the fields read from the database.
type Entry struct {
	ID        int64
	UserID    int64
	GroupID   int64
	Message   *string
	CreatedAt time.Time
}

// Decision is the owner's verdict on a pending join request.
type Decision string

const (
	DecisionAccept Decision = "Accept"
	DecisionReject Decision = "Reject"
)

// ValidateMessage rejects a join-request message longer than MaxMessageLength
// bytes with ErrMessageTooLong.
func ValidateMessage(message string) (string, error) {
	if len(message) > MaxMessageLength {
		return "", ErrMessageTooLong
	}
	return message, nil
}

// Repository defines the data-access contract for waiting-list operations
// (spec.md §4.A).
type Repository interface {
	// Add inserts a new waiting list entry. Returns ErrAlreadyWaiting on a
	// uniqueness violation.
	Add(ctx context.Context, userID, groupID int64, message *string) (*Entry, error)

	// GetByID returns the waiting list entry with the given id, or ErrNotFound.
	GetByID(ctx context.Context, id int64) (*Entry, error)

	// ListForGroup returns every pending entry for a group, oldest first.
	ListForGroup(ctx context.Context, groupID int64) ([]Entry, error)

	// Decide atomically removes the waiting list entry and, if accepted, adds
	// the user as a participant of the group.
	Decide(ctx context.Context, entryID int64, decision Decision) error
}
