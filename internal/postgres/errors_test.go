package postgres

import (
	"errors"
	"testing"

	"github.com/jackc/pgx/v5/pgconn"
)

func TestIsUniqueViolation(t *testing.T) {
	t.Parallel()

	tests := []struct {
		name string
		err  error
		want bool
	}{
		{"unique violation", &pgconn.PgError{Code: "23505"}, true},
		{"foreign key violation", &pgconn.PgError{Code: "23503"}, false},
		{"non-pg error", errors.New("generic error"), false},
		{"nil error", nil, false},
		{"wrapped unique violation", errors.Join(errors.New("context"), &pgconn.PgError{Code: "23505"}), true},
		{"wrapped other pg error", errors.Join(errors.New("context"), &pgconn.PgError{Code: "42601"}), false},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			t.Parallel()
			if got := IsUniqueViolation(tt.err); got != tt.want {
				t.Errorf("IsUniqueViolation() = %v, want %v", got, tt.want)
			}
		})
	}
}

func TestIsForeignKeyViolation(t *testing.T) {
	t.Parallel()

	tests := []struct {
		name string
		err  error
		want bool
	}{
		{"foreign key violation", &pgconn.PgError{Code: "23503"}, true},
		{"unique violation", &pgconn.PgError{Code: "23505"}, false},
		{"non-pg error", errors.New("generic error"), false},
		{"nil error", nil, false},
		{"wrapped foreign key violation", errors.Join(errors.New("context"), &pgconn.PgError{Code: "23503"}), true},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			t.Parallel()
			if got := IsForeignKeyViolation(tt.err); got != tt.want {
				t.Errorf("IsForeignKeyViolation() = %v, want %v", got, tt.want)
			}
		})
	}
}
