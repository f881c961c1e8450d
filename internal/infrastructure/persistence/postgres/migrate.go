package postgres

import (
	"context"
	"fmt"
	"log/slog"
)

var schemaStatements = []string{
	`CREATE TABLE IF NOT EXISTS accounts (
		id VARCHAR(64) PRIMARY KEY,
		available_balance_cents BIGINT NOT NULL DEFAULT 0,
		reserved_balance_cents BIGINT NOT NULL DEFAULT 0,
		version INTEGER NOT NULL DEFAULT 0,
		created_at TIMESTAMPTZ NOT NULL DEFAULT now()
	)`,
	`CREATE TABLE IF NOT EXISTS payments (
		id VARCHAR(64) PRIMARY KEY,
		idempotency_key VARCHAR(128) NOT NULL UNIQUE,
		request_hash VARCHAR(64) NOT NULL,
		source_account_id VARCHAR(64) NOT NULL,
		destination_account_id VARCHAR(64) NOT NULL,
		amount_cents BIGINT NOT NULL,
		method VARCHAR(32) NOT NULL,
		status VARCHAR(32) NOT NULL,
		created_at TIMESTAMPTZ NOT NULL DEFAULT now()
	)`,
	`CREATE INDEX IF NOT EXISTS idx_payments_status ON payments (status)`,
	`CREATE INDEX IF NOT EXISTS idx_payments_source ON payments (source_account_id)`,
	`CREATE INDEX IF NOT EXISTS idx_payments_destination ON payments (destination_account_id)`,
	`CREATE TABLE IF NOT EXISTS idempotency_keys (
		key VARCHAR(128) PRIMARY KEY,
		request_hash VARCHAR(64) NOT NULL,
		response_payload_json TEXT NOT NULL,
		created_at TIMESTAMPTZ NOT NULL DEFAULT now()
	)`,
	`CREATE TABLE IF NOT EXISTS outbox_events (
		id VARCHAR(64) PRIMARY KEY,
		aggregate_type VARCHAR(64) NOT NULL,
		aggregate_id VARCHAR(64) NOT NULL,
		event_type VARCHAR(64) NOT NULL,
		payload_json TEXT NOT NULL,
		status VARCHAR(32) NOT NULL,
		attempts INTEGER NOT NULL DEFAULT 0,
		next_retry_at TIMESTAMPTZ,
		created_at TIMESTAMPTZ NOT NULL DEFAULT now()
	)`,
	`CREATE INDEX IF NOT EXISTS idx_outbox_status_retry ON outbox_events (status, next_retry_at)`,
	`CREATE INDEX IF NOT EXISTS idx_outbox_created_at ON outbox_events (created_at)`,
	`CREATE INDEX IF NOT EXISTS idx_outbox_aggregate ON outbox_events (aggregate_id)`,
	`CREATE TABLE IF NOT EXISTS ledger_entries (
		id VARCHAR(64) PRIMARY KEY,
		payment_id VARCHAR(64) NOT NULL,
		account_id VARCHAR(64) NOT NULL,
		direction VARCHAR(16) NOT NULL,
		amount_cents BIGINT NOT NULL,
		created_at TIMESTAMPTZ NOT NULL DEFAULT now()
	)`,
	`CREATE INDEX IF NOT EXISTS idx_ledger_payment ON ledger_entries (payment_id)`,
	`CREATE INDEX IF NOT EXISTS idx_ledger_account ON ledger_entries (account_id)`,
}

var dropStatements = []string{
	`DROP TABLE IF EXISTS ledger_entries`,
	`DROP TABLE IF EXISTS outbox_events`,
	`DROP TABLE IF EXISTS idempotency_keys`,
	`DROP TABLE IF EXISTS payments`,
	`DROP TABLE IF EXISTS accounts`,
}

// SeedAccounts are reset to these balances on every migration run so
// experiments start from a known state.
var SeedAccounts = []struct {
	ID           string
	BalanceCents int64
}{
	{"acc-001", 1_000_000},
	{"acc-002", 1_000_000},
	{"acc-003", 1_000_000},
	{"acc-004", 1_000_000},
}

// Migrate prepares the schema. With recreate, everything is dropped and
// rebuilt; otherwise the schema is kept but transactional state is
// cleared. Seed accounts are upserted to their initial balances either way.
func Migrate(ctx context.Context, db *DB, recreate bool, logger *slog.Logger) error {
	if recreate {
		for _, stmt := range dropStatements {
			if _, err := db.Pool.Exec(ctx, stmt); err != nil {
				return fmt.Errorf("drop schema: %w", err)
			}
		}
	}

	for _, stmt := range schemaStatements {
		if _, err := db.Pool.Exec(ctx, stmt); err != nil {
			return fmt.Errorf("create schema: %w", err)
		}
	}

	if !recreate {
		if err := resetTransactionalState(ctx, db); err != nil {
			return err
		}
	}

	if err := seedAccounts(ctx, db); err != nil {
		return err
	}

	logger.Info("schema migrated", "recreate", recreate, "seed_accounts", len(SeedAccounts))
	return nil
}

func resetTransactionalState(ctx context.Context, db *DB) error {
	for _, table := range []string{"idempotency_keys", "outbox_events", "ledger_entries", "payments"} {
		if _, err := db.Pool.Exec(ctx, "DELETE FROM "+table); err != nil {
			return fmt.Errorf("reset %s: %w", table, err)
		}
	}
	return nil
}

func seedAccounts(ctx context.Context, db *DB) error {
	query := `
		INSERT INTO accounts (id, available_balance_cents, reserved_balance_cents, version)
		VALUES ($1, $2, 0, 0)
		ON CONFLICT (id) DO UPDATE
		SET available_balance_cents = EXCLUDED.available_balance_cents,
		    reserved_balance_cents = 0,
		    version = 0
	`

	for _, account := range SeedAccounts {
		if _, err := db.Pool.Exec(ctx, query, account.ID, account.BalanceCents); err != nil {
			return fmt.Errorf("seed account %s: %w", account.ID, err)
		}
	}
	return nil
}
