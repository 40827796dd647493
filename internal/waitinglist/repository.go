package waitinglist

import (
	"context"
	"errors"
	"fmt"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"
	"github.com/rs/zerolog"

	"github.com/tienphuckx/anony-box-backbone/internal/postgres"
)

// PGRepository implements Repository using PostgreSQL.
type PGRepository struct {
	db  *pgxpool.Pool
	log zerolog.Logger
}

// NewPGRepository creates a new PostgreSQL-backed waiting-list repository.
func NewPGRepository(db *pgxpool.Pool, logger zerolog.Logger) *PGRepository {
	return &PGRepository{db: db, log: logger}
}

// Add inserts a new waiting list entry.
func (r *PGRepository) Add(ctx context.Context, userID, groupID int64, message *string) (*Entry, error) {
	var e Entry
	e.UserID = userID
	e.GroupID = groupID
	e.Message = message

	err := r.db.QueryRow(ctx,
		`INSERT INTO waiting_list_entries (user_id, group_id, message) VALUES ($1, $2, $3)
		 RETURNING id, created_at`,
		userID, groupID, message,
	).Scan(&e.ID, &e.CreatedAt)
	if err != nil {
		if postgres.IsUniqueViolation(err) {
			return nil, ErrAlreadyWaiting
		}
		return nil, fmt.Errorf("insert waiting list entry: %w", err)
	}
	return &e, nil
}

// GetByID returns the waiting list entry with the given id.
func (r *PGRepository) GetByID(ctx context.Context, id int64) (*Entry, error) {
	var e Entry
	err := r.db.QueryRow(ctx,
		`SELECT id, user_id, group_id, message, created_at FROM waiting_list_entries WHERE id = $1`, id,
	).Scan(&e.ID, &e.UserID, &e.GroupID, &e.Message, &e.CreatedAt)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, ErrNotFound
		}
		return nil, fmt.Errorf("query waiting list entry: %w", err)
	}
	return &e, nil
}

// ListForGroup returns every pending entry for a group, oldest first.
func (r *PGRepository) ListForGroup(ctx context.Context, groupID int64) ([]Entry, error) {
	rows, err := r.db.Query(ctx,
		`SELECT id, user_id, group_id, message, created_at FROM waiting_list_entries
		 WHERE group_id = $1 ORDER BY created_at ASC`, groupID,
	)
	if err != nil {
		return nil, fmt.Errorf("query waiting list entries: %w", err)
	}
	defer rows.Close()

	var entries []Entry
	for rows.Next() {
		var e Entry
		if err := rows.Scan(&e.ID, &e.UserID, &e.GroupID, &e.Message, &e.CreatedAt); err != nil {
			return nil, fmt.Errorf("scan waiting list entry: %w", err)
		}
		entries = append(entries, e)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("iterate waiting list entries: %w", err)
	}
	return entries, nil
}

// Decide atomically removes the waiting list entry and, if accepted, adds
// the user as a participant of the group.
func (r *PGRepository) Decide(ctx context.Context, entryID int64, decision Decision) error {
	return postgres.WithTx(ctx, r.db, func(tx pgx.Tx) error {
		var userID, groupID int64
		err := tx.QueryRow(ctx,
			`DELETE FROM waiting_list_entries WHERE id = $1 RETURNING user_id, group_id`, entryID,
		).Scan(&userID, &groupID)
		if err != nil {
			if errors.Is(err, pgx.ErrNoRows) {
				return ErrNotFound
			}
			return fmt.Errorf("delete waiting list entry: %w", err)
		}

		if decision != DecisionAccept {
			return nil
		}

		if _, err := tx.Exec(ctx,
			`INSERT INTO participants (user_id, group_id) VALUES ($1, $2)
			 ON CONFLICT DO NOTHING`, userID, groupID,
		); err != nil {
			return fmt.Errorf("insert participant: %w", err)
		}
		return nil
	})
}
