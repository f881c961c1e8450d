package worker

import (
	"context"
	"errors"
	"log/slog"
	"os"
	"testing"
	"time"

	"github.com/prometheus/client_golang/prometheus/testutil"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/psteixeira23/global-ledger-consistency-lab/internal/application/services/testhelpers"
	"github.com/psteixeira23/global-ledger-consistency-lab/internal/chaos"
	"github.com/psteixeira23/global-ledger-consistency-lab/internal/domain"
	"github.com/psteixeira23/global-ledger-consistency-lab/internal/infrastructure/persistence/postgres"
	"github.com/psteixeira23/global-ledger-consistency-lab/internal/telemetry"
)

// A transient failure for an event that no longer exists must be a pure
// no-op: no retry scheduled, no retry counted.
func TestHandleTransientFailureVanishedEvent(t *testing.T) {
	if testing.Short() {
		t.Skip("skipping integration test in short mode")
	}

	td := testhelpers.SetupTestDatabase(t)
	defer td.Cleanup(t)

	injector, err := chaos.NewInjector("none", 42)
	require.NoError(t, err)

	logger := slog.New(slog.NewTextHandler(os.Stdout, &slog.HandlerOptions{Level: slog.LevelError}))
	p := NewProcessor(
		td.DB,
		postgres.NewAccountsRepository(),
		postgres.NewPaymentsRepository(),
		postgres.NewOutboxRepository(),
		postgres.NewLedgerRepository(),
		domain.ModeHybrid,
		injector,
		telemetry.ConfigureTracing("worker-test"),
		10,
		30*time.Second,
		200*time.Millisecond,
		logger,
	)

	retriesBefore := testutil.ToFloat64(telemetry.OutboxRetry)

	p.handleTransientFailure(context.Background(), "evt-vanished", errors.New("connection reset"))

	assert.Equal(t, retriesBefore, testutil.ToFloat64(telemetry.OutboxRetry))
}
