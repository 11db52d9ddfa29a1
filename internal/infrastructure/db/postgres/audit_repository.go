package postgres

import (
	"context"
	"fmt"

	"github.com/jmoiron/sqlx"

	"github.com/hcserver/accounts/internal/core/domain"
)

// AuditRepository implements ports.AuditRepository on PostgreSQL.
type AuditRepository struct {
	db *sqlx.DB
}

func NewAuditRepository(db *sqlx.DB) *AuditRepository {
	return &AuditRepository{db: db}
}

// InsertEvent appends a session event to the session_events table.
func (r *AuditRepository) InsertEvent(ctx context.Context, event *domain.AuditEvent) error {
	ctx, cancel := context.WithTimeout(ctx, defaultTimeout)
	defer cancel()

	_, err := r.db.ExecContext(ctx, `
		INSERT INTO session_events (kind, username, token_prefix, count, at)
		VALUES ($1, $2, $3, $4, $5)`,
		string(event.Kind), event.Username, event.TokenPrefix, event.Count, event.At.UTC())
	if err != nil {
		return fmt.Errorf("insert session event: %w", err)
	}
	return nil
}
