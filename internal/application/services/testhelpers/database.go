package testhelpers

import (
	"context"
	"fmt"
	"log/slog"
	"os"
	"testing"
	"time"

	"github.com/stretchr/testify/require"
	"github.com/testcontainers/testcontainers-go"
	"github.com/testcontainers/testcontainers-go/wait"

	"github.com/psteixeira23/global-ledger-consistency-lab/internal/config"
	"github.com/psteixeira23/global-ledger-consistency-lab/internal/infrastructure/persistence/postgres"
)

type TestDatabase struct {
	Container testcontainers.Container
	DB        *postgres.DB
	Config    *config.Config
}

// SetupTestDatabase starts a throwaway Postgres container, connects, and
// runs the full migration with seed accounts.
func SetupTestDatabase(t *testing.T) *TestDatabase {
	ctx := context.Background()

	req := testcontainers.ContainerRequest{
		Image:        "postgres:16-alpine",
		ExposedPorts: []string{"5432/tcp"},
		Env: map[string]string{
			"POSTGRES_USER":     "testuser",
			"POSTGRES_PASSWORD": "testpass",
			"POSTGRES_DB":       "testdb",
		},
		WaitingFor: wait.ForLog("database system is ready to accept connections").
			WithOccurrence(2).
			WithStartupTimeout(60 * time.Second),
	}

	container, err := testcontainers.GenericContainer(ctx, testcontainers.GenericContainerRequest{
		ContainerRequest: req,
		Started:          true,
	})
	require.NoError(t, err)

	host, err := container.Host(ctx)
	require.NoError(t, err)

	port, err := container.MappedPort(ctx, "5432")
	require.NoError(t, err)

	cfg := &config.Config{
		DatabaseURL: fmt.Sprintf(
			"postgres://testuser:testpass@%s:%d/testdb?sslmode=disable",
			host, port.Int(),
		),
	}

	logger := slog.New(slog.NewTextHandler(os.Stdout, &slog.HandlerOptions{
		Level: slog.LevelError,
	}))

	db, err := postgres.Connect(ctx, cfg, logger)
	require.NoError(t, err)

	err = postgres.Migrate(ctx, db, true, logger)
	require.NoError(t, err)

	return &TestDatabase{
		Container: container,
		DB:        db,
		Config:    cfg,
	}
}

func (td *TestDatabase) Cleanup(t *testing.T) {
	ctx := context.Background()
	td.DB.Close()
	require.NoError(t, td.Container.Terminate(ctx))
}

// ResetState clears transactional tables and restores the seed accounts
// to their initial balances.
func (td *TestDatabase) ResetState(t *testing.T) {
	ctx := context.Background()

	_, err := td.DB.Pool.Exec(ctx,
		"TRUNCATE TABLE idempotency_keys, outbox_events, ledger_entries, payments;")
	require.NoError(t, err)

	_, err = td.DB.Pool.Exec(ctx, `
		UPDATE accounts
		SET available_balance_cents = 1000000,
		    reserved_balance_cents = 0,
		    version = 0
	`)
	require.NoError(t, err)
}

// SetAccountBalance overrides one account's balances for a scenario.
func (td *TestDatabase) SetAccountBalance(t *testing.T, accountID string, available, reserved int64) {
	ctx := context.Background()

	tag, err := td.DB.Pool.Exec(ctx, `
		UPDATE accounts
		SET available_balance_cents = $1, reserved_balance_cents = $2
		WHERE id = $3
	`, available, reserved, accountID)
	require.NoError(t, err)
	require.EqualValues(t, 1, tag.RowsAffected())
}
