package user

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"
	"github.com/rs/zerolog"

	"github.com/tienphuckx/anony-box-backbone/internal/codegen"
)

// PGRepository implements Repository using PostgreSQL.
type PGRepository struct {
	db  *pgxpool.Pool
	log zerolog.Logger
}

// NewPGRepository creates a new PostgreSQL-backed user repository.
func NewPGRepository(db *pgxpool.Pool, logger zerolog.Logger) *PGRepository {
	return &PGRepository{db: db, log: logger}
}

// CreateUser inserts a new user and assigns it a freshly generated opaque user_code.
func (r *PGRepository) CreateUser(ctx context.Context, username string) (*User, error) {
	code, err := codegen.Code(username, time.Now().UnixMilli())
	if err != nil {
		return nil, fmt.Errorf("generate user code: %w", err)
	}

	var u User
	u.Username = username
	u.UserCode = code

	err = r.db.QueryRow(ctx,
		`INSERT INTO users (username, user_code) VALUES ($1, $2) RETURNING id, created_at`,
		username, code,
	).Scan(&u.ID, &u.CreatedAt)
	if err != nil {
		return nil, fmt.Errorf("insert user: %w", err)
	}
	return &u, nil
}

// GetByCode returns the user bearing the given opaque code.
func (r *PGRepository) GetByCode(ctx context.Context, code string) (*User, error) {
	var u User
	err := r.db.QueryRow(ctx,
		`SELECT id, username, user_code, created_at FROM users WHERE user_code = $1`, code,
	).Scan(&u.ID, &u.Username, &u.UserCode, &u.CreatedAt)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, ErrNotFound
		}
		return nil, fmt.Errorf("query user by code: %w", err)
	}
	return &u, nil
}

// GetByID returns the user with the given id.
func (r *PGRepository) GetByID(ctx context.Context, id int64) (*User, error) {
	var u User
	err := r.db.QueryRow(ctx,
		`SELECT id, username, user_code, created_at FROM users WHERE id = $1`, id,
	).Scan(&u.ID, &u.Username, &u.UserCode, &u.CreatedAt)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, ErrNotFound
		}
		return nil, fmt.Errorf("query user by id: %w", err)
	}
	return &u, nil
}
