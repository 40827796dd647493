package group

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"
	"github.com/rs/zerolog"

	"github.com/tienphuckx/anony-box-backbone/internal/codegen"
	"github.com/tienphuckx/anony-box-backbone/internal/postgres"
)

const selectColumns = `id, name, group_code, owner_id, approval_required, maximum_members,
passphrase_hash, created_at, expired_at`

// PGRepository implements Repository using PostgreSQL.
type PGRepository struct {
	db  *pgxpool.Pool
	log zerolog.Logger
}

// NewPGRepository creates a new PostgreSQL-backed group repository.
func NewPGRepository(db *pgxpool.Pool, logger zerolog.Logger) *PGRepository {
	return &PGRepository{db: db, log: logger}
}

// CreateGroup inserts a new group and, in the same transaction, adds the owner as a Participant.
func (r *PGRepository) CreateGroup(ctx context.Context, params CreateParams) (*Group, error) {
	code, err := codegen.Code(params.Name, time.Now().UnixMilli())
	if err != nil {
		return nil, fmt.Errorf("generate group code: %w", err)
	}

	var g Group
	err = postgres.WithTx(ctx, r.db, func(tx pgx.Tx) error {
		now := time.Now().UTC()
		expiredAt := now.Add(params.Duration)

		row := tx.QueryRow(ctx,
			`INSERT INTO groups (name, group_code, owner_id, approval_required, maximum_members, passphrase_hash, expired_at)
			 VALUES ($1, $2, $3, $4, $5, $6, $7)
			 RETURNING id, created_at`,
			params.Name, code, params.OwnerID, params.ApprovalRequired, params.MaximumMembers,
			params.PassphraseHash, expiredAt,
		)
		g.Name = params.Name
		g.GroupCode = code
		g.OwnerID = params.OwnerID
		g.ApprovalRequired = params.ApprovalRequired
		g.MaximumMembers = params.MaximumMembers
		g.PassphraseHash = params.PassphraseHash
		g.ExpiredAt = expiredAt
		if err := row.Scan(&g.ID, &g.CreatedAt); err != nil {
			return fmt.Errorf("insert group: %w", err)
		}

		if _, err := tx.Exec(ctx,
			`INSERT INTO participants (user_id, group_id) VALUES ($1, $2)`, params.OwnerID, g.ID,
		); err != nil {
			return fmt.Errorf("insert owner participant: %w", err)
		}
		return nil
	})
	if err != nil {
		return nil, err
	}
	return &g, nil
}

// GetByID returns the group with the given id.
func (r *PGRepository) GetByID(ctx context.Context, id int64) (*Group, error) {
	row := r.db.QueryRow(ctx, fmt.Sprintf(`SELECT %s FROM groups WHERE id = $1`, selectColumns), id)
	return scanGroup(row)
}

// FindByCode returns the group bearing the given opaque code.
func (r *PGRepository) FindByCode(ctx context.Context, code string) (*Group, error) {
	row := r.db.QueryRow(ctx, fmt.Sprintf(`SELECT %s FROM groups WHERE group_code = $1`, selectColumns), code)
	return scanGroup(row)
}

// IsParticipant reports whether u is a participant of g.
func (r *PGRepository) IsParticipant(ctx context.Context, userID, groupID int64) (bool, error) {
	var exists bool
	err := r.db.QueryRow(ctx,
		`SELECT EXISTS(SELECT 1 FROM participants WHERE user_id = $1 AND group_id = $2)`,
		userID, groupID,
	).Scan(&exists)
	if err != nil {
		return false, fmt.Errorf("check participant: %w", err)
	}
	return exists, nil
}

// IsOwner reports whether u owns g.
func (r *PGRepository) IsOwner(ctx context.Context, userID, groupID int64) (bool, error) {
	var exists bool
	err := r.db.QueryRow(ctx,
		`SELECT EXISTS(SELECT 1 FROM groups WHERE id = $1 AND owner_id = $2)`,
		groupID, userID,
	).Scan(&exists)
	if err != nil {
		return false, fmt.Errorf("check owner: %w", err)
	}
	return exists, nil
}

// AddParticipant adds u as a participant of g.
func (r *PGRepository) AddParticipant(ctx context.Context, userID, groupID int64) error {
	_, err := r.db.Exec(ctx,
		`INSERT INTO participants (user_id, group_id) VALUES ($1, $2)`, userID, groupID,
	)
	if err != nil {
		if postgres.IsUniqueViolation(err) {
			return ErrAlreadyJoined
		}
		return fmt.Errorf("insert participant: %w", err)
	}
	return nil
}

// RemoveParticipant removes u from g's participant list.
func (r *PGRepository) RemoveParticipant(ctx context.Context, userID, groupID int64) error {
	_, err := r.db.Exec(ctx,
		`DELETE FROM participants WHERE user_id = $1 AND group_id = $2`, userID, groupID,
	)
	if err != nil {
		return fmt.Errorf("delete participant: %w", err)
	}
	return nil
}

// ParticipantsOf returns the user ids of every current participant of g.
func (r *PGRepository) ParticipantsOf(ctx context.Context, groupID int64) ([]int64, error) {
	rows, err := r.db.Query(ctx, `SELECT user_id FROM participants WHERE group_id = $1`, groupID)
	if err != nil {
		return nil, fmt.Errorf("query participants: %w", err)
	}
	defer rows.Close()

	var ids []int64
	for rows.Next() {
		var id int64
		if err := rows.Scan(&id); err != nil {
			return nil, fmt.Errorf("scan participant id: %w", err)
		}
		ids = append(ids, id)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("iterate participants: %w", err)
	}
	return ids, nil
}

// ParticipantCount returns the number of current participants of g.
func (r *PGRepository) ParticipantCount(ctx context.Context, groupID int64) (int, error) {
	var count int
	err := r.db.QueryRow(ctx,
		`SELECT COUNT(*) FROM participants WHERE group_id = $1`, groupID,
	).Scan(&count)
	if err != nil {
		return 0, fmt.Errorf("count participants: %w", err)
	}
	return count, nil
}

// Delete cascades a group deletion: attachments, then messages, then
// participants, then waiting list entries, then the group itself.
func (r *PGRepository) Delete(ctx context.Context, groupID int64) error {
	return postgres.WithTx(ctx, r.db, func(tx pgx.Tx) error {
		if _, err := tx.Exec(ctx,
			`DELETE FROM attachments WHERE message_id IN (SELECT id FROM messages WHERE group_id = $1)`, groupID,
		); err != nil {
			return fmt.Errorf("delete attachments: %w", err)
		}
		if _, err := tx.Exec(ctx, `DELETE FROM messages WHERE group_id = $1`, groupID); err != nil {
			return fmt.Errorf("delete messages: %w", err)
		}
		if _, err := tx.Exec(ctx, `DELETE FROM participants WHERE group_id = $1`, groupID); err != nil {
			return fmt.Errorf("delete participants: %w", err)
		}
		if _, err := tx.Exec(ctx, `DELETE FROM waiting_list_entries WHERE group_id = $1`, groupID); err != nil {
			return fmt.Errorf("delete waiting list entries: %w", err)
		}
		tag, err := tx.Exec(ctx, `DELETE FROM groups WHERE id = $1`, groupID)
		if err != nil {
			return fmt.Errorf("delete group: %w", err)
		}
		if tag.RowsAffected() == 0 {
			return ErrNotFound
		}
		return nil
	})
}

// ListForUser returns the groups a user currently participates in, newest first.
func (r *PGRepository) ListForUser(ctx context.Context, userID int64) ([]Group, error) {
	rows, err := r.db.Query(ctx, fmt.Sprintf(
		`SELECT %s FROM groups g
		 JOIN participants p ON p.group_id = g.id
		 WHERE p.user_id = $1
		 ORDER BY g.created_at DESC`, prefixed(selectColumns, "g")), userID,
	)
	if err != nil {
		return nil, fmt.Errorf("query groups for user: %w", err)
	}
	defer rows.Close()

	var groups []Group
	for rows.Next() {
		g, err := scanGroup(rows)
		if err != nil {
			return nil, fmt.Errorf("scan group: %w", err)
		}
		groups = append(groups, *g)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("iterate groups: %w", err)
	}
	return groups, nil
}

// DeleteExpired cascades-deletes every group whose expired_at is before cutoff.
func (r *PGRepository) DeleteExpired(ctx context.Context, cutoff time.Time) (int64, error) {
	rows, err := r.db.Query(ctx, `SELECT id FROM groups WHERE expired_at < $1`, cutoff)
	if err != nil {
		return 0, fmt.Errorf("query expired groups: %w", err)
	}
	var ids []int64
	for rows.Next() {
		var id int64
		if err := rows.Scan(&id); err != nil {
			rows.Close()
			return 0, fmt.Errorf("scan expired group id: %w", err)
		}
		ids = append(ids, id)
	}
	rows.Close()
	if err := rows.Err(); err != nil {
		return 0, fmt.Errorf("iterate expired groups: %w", err)
	}

	var deleted int64
	for _, id := range ids {
		if err := r.Delete(ctx, id); err != nil {
			if errors.Is(err, ErrNotFound) {
				continue
			}
			return deleted, fmt.Errorf("delete expired group %d: %w", id, err)
		}
		deleted++
	}
	return deleted, nil
}

// scanGroup scans a single row into a Group struct.
func scanGroup(row pgx.Row) (*Group, error) {
	var g Group
	err := row.Scan(
		&g.ID, &g.Name, &g.GroupCode, &g.OwnerID, &g.ApprovalRequired, &g.MaximumMembers,
		&g.PassphraseHash, &g.CreatedAt, &g.ExpiredAt,
	)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, ErrNotFound
		}
		return nil, fmt.Errorf("scan group: %w", err)
	}
	return &g, nil
}

// prefixed rewrites a comma-separated column list with a table alias prefix.
func prefixed(columns, alias string) string {
	out := alias + "."
	for _, c := range []byte(columns) {
		if c == ',' {
			out += ", " + alias + "."
			continue
		}
		if c == ' ' {
			continue
		}
		out += string(c)
	}
	return out
}
