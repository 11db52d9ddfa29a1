package mongo

import (
	"context"
	"time"

	"go.mongodb.org/mongo-driver/bson"
	"go.mongodb.org/mongo-driver/mongo"

	"github.com/hcserver/accounts/internal/core/domain"
)

const collectionSessionEvents = "session_events"

// AuditRepository implements ports.AuditRepository using MongoDB.
type AuditRepository struct {
	col *mongo.Collection
}

// NewAuditRepository creates a new AuditRepository.
func NewAuditRepository(db *mongo.Database) *AuditRepository {
	return &AuditRepository{col: db.Collection(collectionSessionEvents)}
}

// InsertEvent appends a session event to the audit collection.
func (r *AuditRepository) InsertEvent(ctx context.Context, event *domain.AuditEvent) error {
	ctx, cancel := context.WithTimeout(ctx, defaultTimeout)
	defer cancel()

	doc := bson.M{
		"kind":        string(event.Kind),
		"username":    event.Username,
		"at":          event.At.UTC(),
		"recorded_at": time.Now().UTC(),
	}
	if event.TokenPrefix != "" {
		doc["token_prefix"] = event.TokenPrefix
	}
	if event.Count > 0 {
		doc["count"] = event.Count
	}

	_, err := r.col.InsertOne(ctx, doc)
	return err
}

// EnsureIndexes indexes events by user and time for per-account lookups.
func (r *AuditRepository) EnsureIndexes(ctx context.Context) error {
	ctx, cancel := context.WithTimeout(ctx, 30*time.Second)
	defer cancel()

	_, err := r.col.Indexes().CreateOne(ctx, mongo.IndexModel{
		Keys: bson.D{{Key: "username", Value: 1}, {Key: "at", Value: -1}},
	})
	return err
}
