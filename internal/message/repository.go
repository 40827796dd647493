package message

import (
	"context"
	"errors"
	"fmt"
	"strings"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"
	"github.com/rs/zerolog"

	"github.com/tienphuckx/anony-box-backbone/internal/postgres"
)

const selectColumns = `m.id, m.message_uuid, m.group_id, m.user_id, m.content, m.message_type,
m.status, m.created_at, m.updated_at, u.username`

const baseJoin = "FROM messages m JOIN users u ON u.id = m.user_id"

// PGRepository implements Repository using PostgreSQL.
type PGRepository struct {
	db  *pgxpool.Pool
	log zerolog.Logger
}

// NewPGRepository creates a new PostgreSQL-backed message repository.
func NewPGRepository(db *pgxpool.Pool, logger zerolog.Logger) *PGRepository {
	return &PGRepository{db: db, log: logger}
}

// InsertMessage assigns an id and writes all attachments with the returned
// message_id, in a single transaction.
func (r *PGRepository) InsertMessage(ctx context.Context, params CreateParams) (*Message, error) {
	var msg Message
	err := postgres.WithTx(ctx, r.db, func(tx pgx.Tx) error {
		msg.MessageUUID = params.MessageUUID
		msg.GroupID = params.GroupID
		msg.UserID = params.UserID
		msg.Content = params.Content
		msg.MessageType = params.MessageType
		msg.Status = StatusSent

		row := tx.QueryRow(ctx,
			`INSERT INTO messages (message_uuid, group_id, user_id, content, message_type, status)
			 VALUES ($1, $2, $3, $4, $5, $6)
			 RETURNING id, created_at`,
			params.MessageUUID, params.GroupID, params.UserID, params.Content, params.MessageType, StatusSent,
		)
		if err := row.Scan(&msg.ID, &msg.CreatedAt); err != nil {
			return fmt.Errorf("insert message: %w", err)
		}

		for _, a := range params.Attachments {
			var attachment Attachment
			attachment.MessageID = msg.ID
			attachment.URL = a.URL
			attachment.AttachmentType = a.AttachmentType
			err := tx.QueryRow(ctx,
				`INSERT INTO attachments (message_id, url, attachment_type) VALUES ($1, $2, $3) RETURNING id`,
				msg.ID, a.URL, a.AttachmentType,
			).Scan(&attachment.ID)
			if err != nil {
				return fmt.Errorf("insert attachment: %w", err)
			}
			msg.Attachments = append(msg.Attachments, attachment)
		}

		return tx.QueryRow(ctx, `SELECT username FROM users WHERE id = $1`, params.UserID).Scan(&msg.AuthorUsername)
	})
	if err != nil {
		return nil, err
	}
	return &msg, nil
}

// GetByID returns the message with the given id, folded with its attachments.
func (r *PGRepository) GetByID(ctx context.Context, id int64) (*Message, error) {
	row := r.db.QueryRow(ctx, fmt.Sprintf("SELECT %s %s WHERE m.id = $1", selectColumns, baseJoin), id)
	msg, err := scanMessage(row)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, ErrNotFound
		}
		return nil, fmt.Errorf("query message by id: %w", err)
	}
	if err := r.loadAttachments(ctx, msg); err != nil {
		return nil, err
	}
	return msg, nil
}

// ListMessages returns messages for a group matching filter, ordered by
// sort, paginated by page.
func (r *PGRepository) ListMessages(ctx context.Context, groupID int64, filter Filter, sort Sort, page Page) ([]Message, error) {
	page = page.Normalize()
	where, args := buildFilter(groupID, filter)

	order := "DESC"
	if sort == SortAsc {
		order = "ASC"
	}

	args = append(args, page.Limit, page.Offset())
	query := fmt.Sprintf(
		`SELECT %s %s WHERE %s ORDER BY m.created_at %s, m.id %s LIMIT $%d OFFSET $%d`,
		selectColumns, baseJoin, where, order, order, len(args)-1, len(args),
	)

	rows, err := r.db.Query(ctx, query, args...)
	if err != nil {
		return nil, fmt.Errorf("query messages: %w", err)
	}
	defer rows.Close()

	var messages []Message
	for rows.Next() {
		msg, err := scanMessage(rows)
		if err != nil {
			return nil, fmt.Errorf("scan message: %w", err)
		}
		messages = append(messages, *msg)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("iterate messages: %w", err)
	}

	for i := range messages {
		if err := r.loadAttachments(ctx, &messages[i]); err != nil {
			return nil, err
		}
	}
	return messages, nil
}

// CountMessages returns the count of messages for a group matching filter.
func (r *PGRepository) CountMessages(ctx context.Context, groupID int64, filter Filter) (int64, error) {
	where, args := buildFilter(groupID, filter)
	var count int64
	err := r.db.QueryRow(ctx,
		fmt.Sprintf(`SELECT COUNT(*) FROM messages m WHERE %s`, where), args...,
	).Scan(&count)
	if err != nil {
		return 0, fmt.Errorf("count messages: %w", err)
	}
	return count, nil
}

// DeleteMessage removes a single message.
func (r *PGRepository) DeleteMessage(ctx context.Context, id int64) (bool, error) {
	tag, err := r.db.Exec(ctx, `DELETE FROM messages WHERE id = $1`, id)
	if err != nil {
		return false, fmt.Errorf("delete message: %w", err)
	}
	return tag.RowsAffected() > 0, nil
}

// DeleteMessages removes a batch of messages.
func (r *PGRepository) DeleteMessages(ctx context.Context, ids []int64) (bool, error) {
	tag, err := r.db.Exec(ctx, `DELETE FROM messages WHERE id = ANY($1)`, ids)
	if err != nil {
		return false, fmt.Errorf("delete messages: %w", err)
	}
	return tag.RowsAffected() > 0, nil
}

// UpdateMessage sets the given fields, setting updated_at to now iff at
// least one field changed.
func (r *PGRepository) UpdateMessage(ctx context.Context, id int64, params UpdateParams) (*Message, error) {
	if params.Content == nil && params.MessageType == nil {
		return r.GetByID(ctx, id)
	}

	sets := []string{"updated_at = now()"}
	args := []any{}
	n := 1
	if params.Content != nil {
		sets = append(sets, fmt.Sprintf("content = $%d", n))
		args = append(args, *params.Content)
		n++
	}
	if params.MessageType != nil {
		sets = append(sets, fmt.Sprintf("message_type = $%d", n))
		args = append(args, *params.MessageType)
		n++
	}
	args = append(args, id)

	tag, err := r.db.Exec(ctx,
		fmt.Sprintf(`UPDATE messages SET %s WHERE id = $%d`, strings.Join(sets, ", "), n), args...,
	)
	if err != nil {
		return nil, fmt.Errorf("update message: %w", err)
	}
	if tag.RowsAffected() == 0 {
		return nil, ErrNotFound
	}
	return r.GetByID(ctx, id)
}

// NotAuthoredBy returns the subset of ids whose author is not userID.
func (r *PGRepository) NotAuthoredBy(ctx context.Context, userID int64, ids []int64) ([]int64, error) {
	rows, err := r.db.Query(ctx,
		`SELECT id FROM messages WHERE id = ANY($1) AND user_id != $2`, ids, userID,
	)
	if err != nil {
		return nil, fmt.Errorf("query non-authored messages: %w", err)
	}
	defer rows.Close()

	var out []int64
	for rows.Next() {
		var id int64
		if err := rows.Scan(&id); err != nil {
			return nil, fmt.Errorf("scan message id: %w", err)
		}
		out = append(out, id)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("iterate non-authored messages: %w", err)
	}
	return out, nil
}

// SetStatus updates the status of every message in ids.
func (r *PGRepository) SetStatus(ctx context.Context, ids []int64, status Status) error {
	_, err := r.db.Exec(ctx, `UPDATE messages SET status = $1 WHERE id = ANY($2)`, status, ids)
	if err != nil {
		return fmt.Errorf("set message status: %w", err)
	}
	return nil
}

// loadAttachments populates msg.Attachments from the attachments table.
func (r *PGRepository) loadAttachments(ctx context.Context, msg *Message) error {
	rows, err := r.db.Query(ctx,
		`SELECT id, message_id, url, attachment_type FROM attachments WHERE message_id = $1 ORDER BY id ASC`,
		msg.ID,
	)
	if err != nil {
		return fmt.Errorf("query attachments: %w", err)
	}
	defer rows.Close()

	for rows.Next() {
		var a Attachment
		if err := rows.Scan(&a.ID, &a.MessageID, &a.URL, &a.AttachmentType); err != nil {
			return fmt.Errorf("scan attachment: %w", err)
		}
		msg.Attachments = append(msg.Attachments, a)
	}
	return rows.Err()
}

// buildFilter constructs a WHERE clause (without the WHERE keyword) and its
// positional arguments for a group-scoped message filter.
func buildFilter(groupID int64, filter Filter) (string, []any) {
	clauses := []string{"m.group_id = $1"}
	args := []any{groupID}
	n := 2

	if filter.MessageType != nil {
		clauses = append(clauses, fmt.Sprintf("m.message_type = $%d", n))
		args = append(args, *filter.MessageType)
		n++
	}
	if filter.ContentContains != nil {
		clauses = append(clauses, fmt.Sprintf("m.content ILIKE $%d", n))
		args = append(args, "%"+*filter.ContentContains+"%")
		n++
	}
	if filter.Status != nil {
		clauses = append(clauses, fmt.Sprintf("m.status = $%d", n))
		args = append(args, *filter.Status)
		n++
	}
	if filter.FromDate != nil {
		clauses = append(clauses, fmt.Sprintf("m.created_at >= $%d", n))
		args = append(args, *filter.FromDate)
		n++
	}
	if filter.ToDate != nil {
		clauses = append(clauses, fmt.Sprintf("m.created_at <= $%d", n))
		args = append(args, *filter.ToDate)
		n++
	}
	return strings.Join(clauses, " AND "), args
}

// scanMessage scans a single joined row into a Message struct (without attachments).
func scanMessage(row pgx.Row) (*Message, error) {
	var msg Message
	err := row.Scan(
		&msg.ID, &msg.MessageUUID, &msg.GroupID, &msg.UserID, &msg.Content, &msg.MessageType,
		&msg.Status, &msg.CreatedAt, &msg.UpdatedAt, &msg.AuthorUsername,
	)
	if err != nil {
		return nil, err
	}
	return &msg, nil
}
