// Package audit persists security and billing relevant actions.
package audit

import (
	"context"
	"encoding/json"
	"net/http"
	"strings"
	"time"

	"github.com/barberflow/barberflow/libs/db"
	"github.com/jackc/pgx/v5"
)

type Event struct {
	EventType string
	ActorType string
	ActorID   string
	TenantID  string
	Metadata  map[string]any
}

// FromRequest fills actor fields from the gateway identity headers.
func FromRequest(r *http.Request, eventType, tenantID string, metadata map[string]any) Event {
	if metadata == nil {
		metadata = map[string]any{}
	}
	if reqID := strings.TrimSpace(r.Header.Get("X-Request-Id")); reqID != "" {
		metadata["request_id"] = reqID
	}
	actorType := strings.TrimSpace(r.Header.Get("X-Role"))
	if actorType == "" {
		actorType = "system"
	}
	return Event{
		EventType: eventType,
		ActorType: actorType,
		ActorID:   strings.TrimSpace(r.Header.Get("X-User-Id")),
		TenantID:  tenantID,
		Metadata:  metadata,
	}
}

type Repository struct {
	pool *db.Pool
}

func NewRepository(pool *db.Pool) *Repository {
	return &Repository{pool: pool}
}

func (r *Repository) Insert(ctx context.Context, tx pgx.Tx, evt Event) error {
	if evt.Metadata == nil {
		evt.Metadata = map[string]any{}
	}
	raw, err := json.Marshal(evt.Metadata)
	if err != nil {
		return err
	}
	if evt.ActorType == "" {
		evt.ActorType = "system"
	}
	_, err = tx.Exec(ctx, `
		INSERT INTO audit_events (event_type, actor_type, actor_id, tenant_id, metadata)
		VALUES ($1, $2, $3, NULLIF($4, '')::uuid, $5)
	`, evt.EventType, evt.ActorType, evt.ActorID, evt.TenantID, raw)
	return err
}

type Record struct {
	ID        int64           `json:"id"`
	EventType string          `json:"event_type"`
	ActorType string          `json:"actor_type"`
	ActorID   string          `json:"actor_id,omitempty"`
	TenantID  string          `json:"tenant_id,omitempty"`
	Metadata  json.RawMessage `json:"metadata"`
	CreatedAt string          `json:"created_at"`
}

// ListRecent returns newest first. An empty tenantID lists every tenant.
func (r *Repository) ListRecent(ctx context.Context, tenantID string, limit int) ([]Record, error) {
	if limit <= 0 || limit > 200 {
		limit = 50
	}
	rows, err := r.pool.Query(ctx, `
		SELECT id, event_type, actor_type, actor_id, COALESCE(tenant_id::text, ''), metadata, created_at
		FROM audit_events
		WHERE ($1 = '' OR tenant_id = NULLIF($1, '')::uuid)
		ORDER BY id DESC
		LIMIT $2
	`, tenantID, limit)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var events []Record
	for rows.Next() {
		var e Record
		var createdAt time.Time
		if err := rows.Scan(&e.ID, &e.EventType, &e.ActorType, &e.ActorID, &e.TenantID, &e.Metadata, &createdAt); err != nil {
			return nil, err
		}
		e.CreatedAt = createdAt.UTC().Format(time.RFC3339)
		events = append(events, e)
	}
	return events, rows.Err()
}
