package config

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/psteixeira23/global-ledger-consistency-lab/internal/domain"
)

func TestLoadConfig_Defaults(t *testing.T) {
	cfg, err := LoadConfig()
	require.NoError(t, err)

	assert.Equal(t, domain.ModeHybrid, cfg.Mode())
	assert.Equal(t, "none", cfg.FailProfile)
	assert.EqualValues(t, 42, cfg.ExperimentSeed)
	assert.Equal(t, 200*time.Millisecond, cfg.PollInterval())
	assert.Equal(t, 5*time.Second, cfg.ReconciliationInterval())
	assert.Equal(t, 30*time.Second, cfg.ProcessingTimeout())
	assert.Equal(t, 20, cfg.OutboxBatchSize)
	assert.Equal(t, 8001, cfg.LedgerWorkerMetricsPort)
	assert.Equal(t, 8000, cfg.APIPort)
	assert.True(t, cfg.RecreateSchema())
}

func TestLoadConfig_EnvOverrides(t *testing.T) {
	t.Setenv("CONSISTENCY_MODE", "eventual")
	t.Setenv("FAIL_PROFILE", "harsh")
	t.Setenv("EXPERIMENT_SEED", "7")
	t.Setenv("OUTBOX_POLL_INTERVAL_SECONDS", "1.5")
	t.Setenv("MIGRATE_RECREATE_SCHEMA", "0")

	cfg, err := LoadConfig()
	require.NoError(t, err)

	assert.Equal(t, domain.ModeEventual, cfg.Mode())
	assert.Equal(t, "harsh", cfg.FailProfile)
	assert.EqualValues(t, 7, cfg.ExperimentSeed)
	assert.Equal(t, 1500*time.Millisecond, cfg.PollInterval())
	assert.False(t, cfg.RecreateSchema())
}

func TestLoadConfig_RejectsInvalidMode(t *testing.T) {
	t.Setenv("CONSISTENCY_MODE", "serializable")

	_, err := LoadConfig()
	require.Error(t, err)
}

func TestLoadConfig_RejectsInvalidProfile(t *testing.T) {
	t.Setenv("FAIL_PROFILE", "catastrophic")

	_, err := LoadConfig()
	require.Error(t, err)
}
