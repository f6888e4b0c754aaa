// Package inbox records consumed event ids so redelivered Kafka messages are
// processed once per consumer.
package inbox

import (
	"context"

	"github.com/barberflow/barberflow/libs/db"
)

type Repository struct {
	pool     *db.Pool
	consumer string
}

// NewRepository scopes dedupe to one consumer name, so two services may
// each process the same event.
func NewRepository(pool *db.Pool, consumer string) *Repository {
	return &Repository{pool: pool, consumer: consumer}
}

func (r *Repository) Record(ctx context.Context, eventID string, eventType string) (bool, error) {
	_, err := r.pool.Exec(ctx, `
		INSERT INTO inbox_events (consumer, event_id, event_type)
		VALUES ($1, $2, $3)
	`, r.consumer, eventID, eventType)
	if err == nil {
		return true, nil
	}
	if db.IsUniqueViolation(err) {
		return false, nil
	}
	return false, err
}
