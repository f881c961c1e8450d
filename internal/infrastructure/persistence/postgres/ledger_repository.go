package postgres

import (
	"context"
	"fmt"

	"github.com/jackc/pgx/v5"

	"github.com/psteixeira23/global-ledger-consistency-lab/internal/domain"
)

type LedgerRepository struct{}

func NewLedgerRepository() *LedgerRepository {
	return &LedgerRepository{}
}

// Append writes one ledger entry. Entries are append-only; a payment's
// DEBIT and CREDIT always land in the same transaction.
func (r *LedgerRepository) Append(ctx context.Context, tx pgx.Tx, entry *domain.LedgerEntry) error {
	query := `
		INSERT INTO ledger_entries (id, payment_id, account_id, direction, amount_cents)
		VALUES ($1, $2, $3, $4, $5)
	`

	_, err := tx.Exec(ctx, query,
		entry.ID,
		entry.PaymentID,
		entry.AccountID,
		string(entry.Direction),
		entry.AmountCents,
	)
	if err != nil {
		return fmt.Errorf("append ledger entry: %w", err)
	}

	return nil
}

// ImbalanceSum returns sum(DEBIT) - sum(CREDIT) over all entries. A
// balanced ledger sums to zero at any quiescent point.
func (r *LedgerRepository) ImbalanceSum(ctx context.Context, q Executor) (int64, error) {
	query := `
		SELECT COALESCE(SUM(
			CASE direction WHEN 'DEBIT' THEN amount_cents ELSE -amount_cents END
		), 0)
		FROM ledger_entries
	`

	var imbalance int64
	if err := q.QueryRow(ctx, query).Scan(&imbalance); err != nil {
		return 0, fmt.Errorf("sum ledger imbalance: %w", err)
	}
	return imbalance, nil
}

func (r *LedgerRepository) CountByPayment(ctx context.Context, q Executor, paymentID string) (int64, error) {
	var count int64
	err := q.QueryRow(ctx, `SELECT COUNT(*) FROM ledger_entries WHERE payment_id = $1`, paymentID).Scan(&count)
	if err != nil {
		return 0, fmt.Errorf("count ledger entries: %w", err)
	}
	return count, nil
}

func (r *LedgerRepository) FindByPayment(ctx context.Context, q Executor, paymentID string) ([]*domain.LedgerEntry, error) {
	query := `
		SELECT id, payment_id, account_id, direction, amount_cents, created_at
		FROM ledger_entries
		WHERE payment_id = $1
		ORDER BY created_at ASC, id ASC
	`

	rows, err := q.Query(ctx, query, paymentID)
	if err != nil {
		return nil, fmt.Errorf("query ledger entries: %w", err)
	}

	entries, err := pgx.CollectRows(rows, func(row pgx.CollectableRow) (*domain.LedgerEntry, error) {
		var e domain.LedgerEntry
		err := row.Scan(&e.ID, &e.PaymentID, &e.AccountID, &e.Direction, &e.AmountCents, &e.CreatedAt)
		return &e, err
	})
	if err != nil {
		return nil, fmt.Errorf("scan ledger entries: %w", err)
	}

	return entries, nil
}
