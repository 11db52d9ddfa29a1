package ports

import (
	"context"

	"github.com/hcserver/accounts/internal/core/domain"
)

// AuditRepository persists session audit events.
type AuditRepository interface {
	InsertEvent(ctx context.Context, event *domain.AuditEvent) error
}

// AuditPublisher accepts audit events for asynchronous persistence.
type AuditPublisher interface {
	Publish(event domain.AuditEvent)
}
