package postgres

import (
	"errors"
	"fmt"
	"io/fs"
	"strings"
	"testing"
	"time"

	"github.com/jackc/pgx/v5/pgconn"

	"github.com/hcserver/accounts/internal/core/domain"
)

func TestIsUniqueViolation(t *testing.T) {
	dup := &pgconn.PgError{Code: "23505"}
	other := &pgconn.PgError{Code: "23502"}

	tests := []struct {
		name string
		err  error
		want bool
	}{
		{"unique violation", dup, true},
		{"wrapped unique violation", fmt.Errorf("exec: %w", dup), true},
		{"not null violation", other, false},
		{"plain error", errors.New("boom"), false},
		{"nil", nil, false},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if got := isUniqueViolation(tt.err); got != tt.want {
				t.Fatalf("expected %v, got %v", tt.want, got)
			}
		})
	}
}

func TestPgUserMapping(t *testing.T) {
	loc := time.FixedZone("UTC+2", 2*60*60)
	created := time.Date(2024, 3, 1, 14, 0, 0, 0, loc)
	u := &domain.User{
		Username:     "alice",
		PasswordHash: "hash",
		Email:        "alice@example.com",
		DisplayName:  "Alice",
		CreatedAt:    created,
		UpdatedAt:    created,
	}

	got := toPgUser(u).toDomain()
	if got.Username != u.Username || got.PasswordHash != u.PasswordHash ||
		got.Email != u.Email || got.DisplayName != u.DisplayName {
		t.Fatalf("fields lost in mapping: %+v", got)
	}
	if !got.CreatedAt.Equal(created) || got.CreatedAt.Location() != time.UTC {
		t.Fatalf("expected UTC time equal to input, got %v", got.CreatedAt)
	}
}

func TestMigrationsEmbedded(t *testing.T) {
	files, err := fs.Glob(migrations, "migrations/*.sql")
	if err != nil || len(files) == 0 {
		t.Fatalf("no migrations embedded: %v", err)
	}
	body, err := fs.ReadFile(migrations, files[0])
	if err != nil {
		t.Fatalf("read migration: %v", err)
	}
	for _, want := range []string{"-- +goose Up", "-- +goose Down", "CREATE TABLE IF NOT EXISTS users", "session_events"} {
		if !strings.Contains(string(body), want) {
			t.Fatalf("migration missing %q", want)
		}
	}
}
