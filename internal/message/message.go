// Package message implements the Message and Attachment entities from
// spec.md §3 (component A, "Store").
package message

import (
	"context"
	"errors"
	"strings"
	"time"
	"unicode/utf8"

	"github.com/google/uuid"
)

// Sentinel errors for the message package.
var (
	ErrNotFound       = errors.New("message not found")
	ErrContentTooLong = errors.New("message content exceeds the maximum length")
	ErrNotAuthor      = errors.New("you can only modify your own messages")
	ErrMixedGroups    = errors.New("all messages in a seen/delete batch must belong to the same group")
)

// Type is the discriminator for Message.MessageType.
type Type string

const (
	TypeText       Type = "TEXT"
	TypeAttachment Type = "ATTACHMENT"
)

// Status is the discriminator for Message.Status.
type Status string

const (
	StatusNotSent Status = "NotSent"
	StatusSent    Status = "Sent"
	StatusSeen    Status = "Seen"
)

// AttachmentType is the discriminator for Attachment.AttachmentType.
type AttachmentType string

const (
	AttachmentText        AttachmentType = "TEXT"
	AttachmentImage       AttachmentType = "IMAGE"
	AttachmentVideo       AttachmentType = "VIDEO"
	AttachmentAudio       AttachmentType = "AUDIO"
	AttachmentBinary      AttachmentType = "BINARY"
	AttachmentCompression AttachmentType = "COMPRESSION"
)

// Pagination defaults (spec.md §4.A list_messages).
const (
	DefaultLimit = 50
	MaxLimit     = 100
)

// Attachment holds the fields read from the database. Each attachment
// belongs to exactly one message.
type Attachment struct {
	ID             int64
	MessageID      int64
	URL            string
	AttachmentType AttachmentType
}

// Message holds the fields read from the database, including joined author
// information and folded attachments.
type Message struct {
	ID          int64
	MessageUUID uuid.UUID
	GroupID     int64
	UserID      int64
	Content     *string
	MessageType Type
	Status      Status
	CreatedAt   time.Time
	UpdatedAt   *time.Time

	// AuthorUsername is joined from the users table.
	AuthorUsername string

	Attachments []Attachment
}

// NewAttachment groups the inputs for an attachment to be inserted alongside a new message.
type NewAttachment struct {
	URL            string
	AttachmentType AttachmentType
}

// CreateParams groups the inputs for creating a new message.
type CreateParams struct {
	MessageUUID uuid.UUID
	GroupID     int64
	UserID      int64
	Content     *string
	MessageType Type
	Attachments []NewAttachment
}

// UpdateParams groups the optional fields of an update_message call. A nil
// field leaves the corresponding column unchanged.
type UpdateParams struct {
	Content     *string
	MessageType *Type
}

// Filter narrows a list_messages / count_messages call.
type Filter struct {
	MessageType     *Type
	ContentContains *string
	Status          *Status
	FromDate        *time.Time
	ToDate          *time.Time
}

// Sort is the ordering applied to list_messages (default descending).
type Sort string

const (
	SortAsc  Sort = "ASC"
	SortDesc Sort = "DESC"
)

// Page bounds a list_messages call.
type Page struct {
	Page  int
	Limit int
}

// Normalize clamps the page to sane bounds, defaulting Page to 1 and Limit to
// DefaultLimit when out of range.
func (p Page) Normalize() Page {
	if p.Page < 1 {
		p.Page = 1
	}
	if p.Limit <= 0 {
		p.Limit = DefaultLimit
	}
	if p.Limit > MaxLimit {
		p.Limit = MaxLimit
	}
	return p
}

// Offset returns the zero-based row offset for this page.
func (p Page) Offset() int {
	return (p.Page - 1) * p.Limit
}

// ValidateContent checks that content does not exceed the given maximum rune
// count. Unlike a chat message body in most systems, empty content is
// permitted here: an ATTACHMENT message may carry no text at all.
func ValidateContent(content string, maxLength int) (string, error) {
	trimmed := strings.TrimSpace(content)
	if utf8.RuneCountInString(trimmed) > maxLength {
		return "", ErrContentTooLong
	}
	return trimmed, nil
}

// Repository defines the data-access contract for message operations
// (spec.md §4.A).
type Repository interface {
	// InsertMessage assigns an id and writes all attachments with the
	// returned message_id, in a single transaction.
	InsertMessage(ctx context.Context, params CreateParams) (*Message, error)

	// GetByID returns the message with the given id, folded with its
	// attachments, or ErrNotFound.
	GetByID(ctx context.Context, id int64) (*Message, error)

	// ListMessages returns messages for a group matching filter, ordered by
	// sort, paginated by page. Rows are folded into one record per message
	// with an attachment list and joined author username.
	ListMessages(ctx context.Context, groupID int64, filter Filter, sort Sort, page Page) ([]Message, error)

	// CountMessages returns the count of messages for a group matching filter.
	CountMessages(ctx context.Context, groupID int64, filter Filter) (int64, error)

	// DeleteMessage removes a single message (and, via FK cascade at the
	// schema level, its attachments). Returns false if no row matched.
	DeleteMessage(ctx context.Context, id int64) (bool, error)

	// DeleteMessages removes a batch of messages. Returns false if no row matched.
	DeleteMessages(ctx context.Context, ids []int64) (bool, error)

	// UpdateMessage sets the given fields, setting updated_at to now iff at
	// least one field changed.
	UpdateMessage(ctx context.Context, id int64, params UpdateParams) (*Message, error)

	// NotAuthoredBy returns the subset of ids whose author is not userID,
	// used for bulk ownership checks.
	NotAuthoredBy(ctx context.Context, userID int64, ids []int64) ([]int64, error)

	// SetStatus updates the status of every message in ids.
	SetStatus(ctx context.Context, ids []int64, status Status) error
}
