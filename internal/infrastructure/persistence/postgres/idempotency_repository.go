package postgres

import (
	"context"
	"errors"
	"fmt"

	"github.com/jackc/pgx/v5"

	"github.com/psteixeira23/global-ledger-consistency-lab/internal/domain"
)

type IdempotencyRepository struct{}

func NewIdempotencyRepository() *IdempotencyRepository {
	return &IdempotencyRepository{}
}

// Find returns the stored record for key, or (nil, nil) when absent.
func (r *IdempotencyRepository) Find(ctx context.Context, q Executor, key string) (*domain.IdempotencyRecord, error) {
	query := `
		SELECT key, request_hash, response_payload_json, created_at
		FROM idempotency_keys
		WHERE key = $1
	`

	var rec domain.IdempotencyRecord
	err := q.QueryRow(ctx, query, key).Scan(&rec.Key, &rec.RequestHash, &rec.ResponseJSON, &rec.CreatedAt)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, nil
		}
		return nil, fmt.Errorf("find idempotency key: %w", err)
	}

	return &rec, nil
}

// Save inserts the key with its cached response. The unique constraint on
// key is what turns a concurrent duplicate into a detectable conflict at
// commit time.
func (r *IdempotencyRepository) Save(ctx context.Context, tx pgx.Tx, key, requestHash, responseJSON string) error {
	query := `
		INSERT INTO idempotency_keys (key, request_hash, response_payload_json)
		VALUES ($1, $2, $3)
	`

	if _, err := tx.Exec(ctx, query, key, requestHash, responseJSON); err != nil {
		return fmt.Errorf("save idempotency key: %w", err)
	}

	return nil
}
