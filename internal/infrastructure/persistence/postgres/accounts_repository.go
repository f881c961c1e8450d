package postgres

import (
	"context"
	"errors"
	"fmt"

	"github.com/jackc/pgx/v5"

	"github.com/psteixeira23/global-ledger-consistency-lab/internal/domain"
)

type AccountsRepository struct{}

func NewAccountsRepository() *AccountsRepository {
	return &AccountsRepository{}
}

const accountColumns = `id, available_balance_cents, reserved_balance_cents, version, created_at`

func (r *AccountsRepository) FindByID(ctx context.Context, q Executor, id string) (*domain.Account, error) {
	query := `SELECT ` + accountColumns + ` FROM accounts WHERE id = $1`
	return scanAccount(q.QueryRow(ctx, query, id))
}

// FindByIDForUpdate locks the account row for the duration of the
// transaction. Callers must respect the sorted-id lock ordering; see
// services.LockAccountPair.
func (r *AccountsRepository) FindByIDForUpdate(ctx context.Context, tx pgx.Tx, id string) (*domain.Account, error) {
	query := `SELECT ` + accountColumns + ` FROM accounts WHERE id = $1 FOR UPDATE`
	return scanAccount(tx.QueryRow(ctx, query, id))
}

// UpdateBalances writes both balances and bumps the version column.
func (r *AccountsRepository) UpdateBalances(ctx context.Context, tx pgx.Tx, account *domain.Account) error {
	query := `
		UPDATE accounts
		SET available_balance_cents = $1,
		    reserved_balance_cents = $2,
		    version = $3
		WHERE id = $4
	`

	tag, err := tx.Exec(ctx, query,
		account.AvailableCents,
		account.ReservedCents,
		account.Version,
		account.ID,
	)
	if err != nil {
		return fmt.Errorf("update account %s: %w", account.ID, err)
	}
	if tag.RowsAffected() == 0 {
		return ErrAccountNotFound
	}

	return nil
}

// NegativeBalanceCount counts accounts whose available or reserved
// balance dropped below zero; non-zero means a broken invariant.
func (r *AccountsRepository) NegativeBalanceCount(ctx context.Context, q Executor) (int64, error) {
	query := `
		SELECT COUNT(*) FROM accounts
		WHERE available_balance_cents < 0 OR reserved_balance_cents < 0
	`

	var count int64
	if err := q.QueryRow(ctx, query).Scan(&count); err != nil {
		return 0, fmt.Errorf("count negative balances: %w", err)
	}
	return count, nil
}

func scanAccount(row pgx.Row) (*domain.Account, error) {
	var a domain.Account
	err := row.Scan(&a.ID, &a.AvailableCents, &a.ReservedCents, &a.Version, &a.CreatedAt)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, ErrAccountNotFound
		}
		return nil, fmt.Errorf("scan account: %w", err)
	}
	return &a, nil
}
