package storage

import (
	"context"
	"errors"

	"github.com/jackc/pgx/v5"
)

type IdempotencyRecord struct {
	TenantID       string
	IdempotencyKey string
	RequestHash    string
	AppointmentID  string
	StatusCode     int
	Response       []byte
}

// lockIdempotencyKey claims the key for this transaction. exists is true when
// an earlier request already stored the key.
func lockIdempotencyKey(ctx context.Context, tx pgx.Tx, tenantID, key, requestHash string) (IdempotencyRecord, bool, error) {
	rec, err := selectIdempotencyForUpdate(ctx, tx, tenantID, key)
	if err == nil {
		return rec, true, nil
	}
	if !errors.Is(err, pgx.ErrNoRows) {
		return IdempotencyRecord{}, false, err
	}

	_, err = tx.Exec(ctx, `
		INSERT INTO booking_idempotency_keys (tenant_id, idempotency_key, request_hash)
		VALUES ($1, $2, $3)
		ON CONFLICT (tenant_id, idempotency_key) DO NOTHING
	`, tenantID, key, requestHash)
	if err != nil {
		return IdempotencyRecord{}, false, err
	}

	rec, err = selectIdempotencyForUpdate(ctx, tx, tenantID, key)
	if err != nil {
		return IdempotencyRecord{}, false, err
	}
	// A concurrent request may have won the insert and committed first.
	return rec, rec.StatusCode > 0, nil
}

func finalizeIdempotency(ctx context.Context, tx pgx.Tx, tenantID, key, appointmentID string, statusCode int, response []byte) error {
	_, err := tx.Exec(ctx, `
		UPDATE booking_idempotency_keys
		SET appointment_id = $3,
			status_code = $4,
			response = $5,
			updated_at = now()
		WHERE tenant_id = $1 AND idempotency_key = $2
	`, tenantID, key, appointmentID, statusCode, string(response))
	return err
}

func selectIdempotencyForUpdate(ctx context.Context, tx pgx.Tx, tenantID, key string) (IdempotencyRecord, error) {
	var rec IdempotencyRecord
	var responseText string
	err := tx.QueryRow(ctx, `
		SELECT tenant_id::text,
			idempotency_key,
			request_hash,
			COALESCE(appointment_id::text, ''),
			status_code,
			COALESCE(response::text, '')
		FROM booking_idempotency_keys
		WHERE tenant_id = $1 AND idempotency_key = $2
		FOR UPDATE
	`, tenantID, key).Scan(
		&rec.TenantID,
		&rec.IdempotencyKey,
		&rec.RequestHash,
		&rec.AppointmentID,
		&rec.StatusCode,
		&responseText,
	)
	if err != nil {
		return IdempotencyRecord{}, err
	}
	if responseText != "" {
		rec.Response = []byte(responseText)
	}
	return rec, nil
}

// Replay returns the stored response of a finished request with the same
// key. Keys still in flight report false and are settled by Create.
func (r *Repository) Replay(ctx context.Context, tenantID, key, requestHash string) (CreateResult, bool, error) {
	var (
		hash, responseText string
		statusCode         int
	)
	err := r.pool.QueryRow(ctx, `
		SELECT request_hash, status_code, COALESCE(response::text, '')
		FROM booking_idempotency_keys
		WHERE tenant_id = $1 AND idempotency_key = $2
	`, tenantID, key).Scan(&hash, &statusCode, &responseText)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return CreateResult{}, false, nil
		}
		return CreateResult{}, false, err
	}
	if hash != requestHash {
		return CreateResult{}, false, ErrIdempotencyMismatch
	}
	if statusCode <= 0 {
		return CreateResult{}, false, nil
	}
	return CreateResult{StatusCode: statusCode, Body: []byte(responseText), Replayed: true}, true, nil
}
