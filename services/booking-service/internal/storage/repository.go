package storage

import (
	"github.com/barberflow/barberflow/libs/db"
	"github.com/barberflow/barberflow/libs/outbox"
)

// Repository is booking-service's view of the shared database.
type Repository struct {
	pool   *db.Pool
	outbox *outbox.Repository
}

func NewRepository(pool *db.Pool, outboxRepo *outbox.Repository) *Repository {
	return &Repository{pool: pool, outbox: outboxRepo}
}
