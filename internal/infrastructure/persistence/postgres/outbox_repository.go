package postgres

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/jackc/pgx/v5"

	"github.com/psteixeira23/global-ledger-consistency-lab/internal/domain"
)

const maxOutboxAttempts = 7

type OutboxRepository struct{}

func NewOutboxRepository() *OutboxRepository {
	return &OutboxRepository{}
}

const outboxColumns = `id, aggregate_type, aggregate_id, event_type, payload_json,
	status, attempts, next_retry_at, created_at`

func (r *OutboxRepository) Create(ctx context.Context, tx pgx.Tx, event *domain.OutboxEvent) error {
	query := `
		INSERT INTO outbox_events (
			id, aggregate_type, aggregate_id, event_type,
			payload_json, status, attempts, next_retry_at
		) VALUES ($1, $2, $3, $4, $5, $6, $7, $8)
	`

	_, err := tx.Exec(ctx, query,
		event.ID,
		event.AggregateType,
		event.AggregateID,
		string(event.EventType),
		event.PayloadJSON,
		string(event.Status),
		event.Attempts,
		event.NextRetryAt,
	)
	if err != nil {
		return fmt.Errorf("create outbox event: %w", err)
	}

	return nil
}

// ClaimBatch atomically selects up to batchSize due events and stamps them
// processing with a lease of leaseTTL. FOR UPDATE SKIP LOCKED keeps
// concurrent workers off each other's rows, and a processing row whose
// lease expired is claimable again, which recovers events orphaned by a
// crashed worker.
func (r *OutboxRepository) ClaimBatch(ctx context.Context, tx pgx.Tx, batchSize int, leaseTTL time.Duration) ([]string, error) {
	query := `
		WITH claimable AS (
			SELECT id FROM outbox_events
			WHERE status IN ('pending', 'processing')
			  AND (next_retry_at IS NULL OR next_retry_at <= now())
			ORDER BY created_at ASC, id ASC
			LIMIT $1
			FOR UPDATE SKIP LOCKED
		)
		UPDATE outbox_events o
		SET status = 'processing',
		    next_retry_at = now() + make_interval(secs => $2)
		FROM claimable
		WHERE o.id = claimable.id
		RETURNING o.id
	`

	rows, err := tx.Query(ctx, query, batchSize, leaseTTL.Seconds())
	if err != nil {
		return nil, fmt.Errorf("claim outbox batch: %w", err)
	}

	ids, err := pgx.CollectRows(rows, func(row pgx.CollectableRow) (string, error) {
		var id string
		err := row.Scan(&id)
		return id, err
	})
	if err != nil {
		return nil, fmt.Errorf("scan claimed event ids: %w", err)
	}

	return ids, nil
}

func (r *OutboxRepository) FindByIDForUpdate(ctx context.Context, tx pgx.Tx, id string) (*domain.OutboxEvent, error) {
	query := `SELECT ` + outboxColumns + ` FROM outbox_events WHERE id = $1 FOR UPDATE`
	return scanOutboxEvent(tx.QueryRow(ctx, query, id))
}

func (r *OutboxRepository) FindByID(ctx context.Context, q Executor, id string) (*domain.OutboxEvent, error) {
	query := `SELECT ` + outboxColumns + ` FROM outbox_events WHERE id = $1`
	return scanOutboxEvent(q.QueryRow(ctx, query, id))
}

func (r *OutboxRepository) MarkProcessed(ctx context.Context, tx pgx.Tx, id string) error {
	query := `UPDATE outbox_events SET status = 'processed', next_retry_at = NULL WHERE id = $1`

	tag, err := tx.Exec(ctx, query, id)
	if err != nil {
		return fmt.Errorf("mark event processed: %w", err)
	}
	if tag.RowsAffected() == 0 {
		return ErrEventNotFound
	}
	return nil
}

// MarkRetry increments attempts and either reschedules the event or, at
// the attempt cap, dead-letters it. Returns the resulting status.
func (r *OutboxRepository) MarkRetry(ctx context.Context, tx pgx.Tx, id string, nextRetryAt time.Time) (domain.OutboxStatus, error) {
	query := `
		UPDATE outbox_events
		SET attempts = attempts + 1,
		    status = CASE WHEN attempts + 1 >= $2 THEN 'dead' ELSE 'pending' END,
		    next_retry_at = CASE WHEN attempts + 1 >= $2 THEN NULL ELSE $3 END
		WHERE id = $1
		RETURNING status
	`

	var status domain.OutboxStatus
	err := tx.QueryRow(ctx, query, id, maxOutboxAttempts, nextRetryAt).Scan(&status)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return "", ErrEventNotFound
		}
		return "", fmt.Errorf("mark event retry: %w", err)
	}

	return status, nil
}

// MarkDead transitions the event to dead immediately, bypassing retries.
// Used for permanent invariant violations.
func (r *OutboxRepository) MarkDead(ctx context.Context, tx pgx.Tx, id string) error {
	query := `UPDATE outbox_events SET status = 'dead', next_retry_at = NULL WHERE id = $1`

	tag, err := tx.Exec(ctx, query, id)
	if err != nil {
		return fmt.Errorf("mark event dead: %w", err)
	}
	if tag.RowsAffected() == 0 {
		return ErrEventNotFound
	}
	return nil
}

func (r *OutboxRepository) CountByStatus(ctx context.Context, q Executor, status domain.OutboxStatus) (int64, error) {
	var count int64
	err := q.QueryRow(ctx, `SELECT COUNT(*) FROM outbox_events WHERE status = $1`, string(status)).Scan(&count)
	if err != nil {
		return 0, fmt.Errorf("count outbox events by status: %w", err)
	}
	return count, nil
}

func scanOutboxEvent(row pgx.Row) (*domain.OutboxEvent, error) {
	var e domain.OutboxEvent
	err := row.Scan(
		&e.ID,
		&e.AggregateType,
		&e.AggregateID,
		&e.EventType,
		&e.PayloadJSON,
		&e.Status,
		&e.Attempts,
		&e.NextRetryAt,
		&e.CreatedAt,
	)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, ErrEventNotFound
		}
		return nil, fmt.Errorf("scan outbox event: %w", err)
	}
	return &e, nil
}
