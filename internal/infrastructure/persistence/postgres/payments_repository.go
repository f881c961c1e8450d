package postgres

import (
	"context"
	"errors"
	"fmt"

	"github.com/jackc/pgx/v5"

	"github.com/psteixeira23/global-ledger-consistency-lab/internal/domain"
)

type PaymentsRepository struct{}

func NewPaymentsRepository() *PaymentsRepository {
	return &PaymentsRepository{}
}

const paymentColumns = `id, idempotency_key, request_hash, source_account_id,
	destination_account_id, amount_cents, method, status, created_at`

func (r *PaymentsRepository) Create(ctx context.Context, tx pgx.Tx, payment *domain.Payment) error {
	query := `
		INSERT INTO payments (
			id, idempotency_key, request_hash, source_account_id,
			destination_account_id, amount_cents, method, status
		) VALUES ($1, $2, $3, $4, $5, $6, $7, $8)
	`

	_, err := tx.Exec(ctx, query,
		payment.ID,
		payment.IdempotencyKey,
		payment.RequestHash,
		payment.SourceAccountID,
		payment.DestinationAccountID,
		payment.AmountCents,
		string(payment.Method),
		string(payment.Status),
	)
	if err != nil {
		return fmt.Errorf("create payment: %w", err)
	}

	return nil
}

func (r *PaymentsRepository) FindByID(ctx context.Context, q Executor, id string) (*domain.Payment, error) {
	query := `SELECT ` + paymentColumns + ` FROM payments WHERE id = $1`
	return scanPayment(q.QueryRow(ctx, query, id))
}

// FindByIDForUpdate takes the payment row lock. The worker locks the
// payment before any account, which serializes concurrent processors of
// the same payment.
func (r *PaymentsRepository) FindByIDForUpdate(ctx context.Context, tx pgx.Tx, id string) (*domain.Payment, error) {
	query := `SELECT ` + paymentColumns + ` FROM payments WHERE id = $1 FOR UPDATE`
	return scanPayment(tx.QueryRow(ctx, query, id))
}

func (r *PaymentsRepository) UpdateStatus(ctx context.Context, tx pgx.Tx, id string, status domain.PaymentStatus) error {
	query := `UPDATE payments SET status = $1 WHERE id = $2`

	tag, err := tx.Exec(ctx, query, string(status), id)
	if err != nil {
		return fmt.Errorf("update payment status: %w", err)
	}
	if tag.RowsAffected() == 0 {
		return ErrPaymentNotFound
	}

	return nil
}

func (r *PaymentsRepository) CountByStatus(ctx context.Context, q Executor, status domain.PaymentStatus) (int64, error) {
	var count int64
	err := q.QueryRow(ctx, `SELECT COUNT(*) FROM payments WHERE status = $1`, string(status)).Scan(&count)
	if err != nil {
		return 0, fmt.Errorf("count payments by status: %w", err)
	}
	return count, nil
}

func scanPayment(row pgx.Row) (*domain.Payment, error) {
	var p domain.Payment
	err := row.Scan(
		&p.ID,
		&p.IdempotencyKey,
		&p.RequestHash,
		&p.SourceAccountID,
		&p.DestinationAccountID,
		&p.AmountCents,
		&p.Method,
		&p.Status,
		&p.CreatedAt,
	)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, ErrPaymentNotFound
		}
		return nil, fmt.Errorf("scan payment: %w", err)
	}
	return &p, nil
}
