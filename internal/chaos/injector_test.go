package chaos

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestNewInjector_InvalidProfile(t *testing.T) {
	_, err := NewInjector("chaos-monkey", 42)
	require.Error(t, err)
	assert.Contains(t, err.Error(), "invalid failure profile")
}

func TestInjector_NoneProfileNeverFires(t *testing.T) {
	injector, err := NewInjector("none", 42)
	require.NoError(t, err)

	for attempt := int32(1); attempt <= 20; attempt++ {
		assert.False(t, injector.ShouldRaiseWorkerException("evt-1", attempt))
		assert.False(t, injector.ShouldFailRedisSimulation("evt-1", attempt))
	}
}

func TestInjector_ScoreIsDeterministic(t *testing.T) {
	first, err := NewInjector("harsh", 42)
	require.NoError(t, err)
	second, err := NewInjector("harsh", 42)
	require.NoError(t, err)

	for attempt := int32(1); attempt <= 10; attempt++ {
		assert.Equal(t,
			first.Score("worker_exception", "evt-abc", attempt),
			second.Score("worker_exception", "evt-abc", attempt),
		)
	}
}

func TestInjector_ScoreVariesBySeedAndAttempt(t *testing.T) {
	seeded42, err := NewInjector("harsh", 42)
	require.NoError(t, err)
	seeded43, err := NewInjector("harsh", 43)
	require.NoError(t, err)

	assert.NotEqual(t,
		seeded42.Score("worker_exception", "evt-abc", 1),
		seeded43.Score("worker_exception", "evt-abc", 1),
	)
	assert.NotEqual(t,
		seeded42.Score("worker_exception", "evt-abc", 1),
		seeded42.Score("worker_exception", "evt-abc", 2),
	)
	assert.NotEqual(t,
		seeded42.Score("worker_exception", "evt-abc", 1),
		seeded42.Score("redis_failure", "evt-abc", 1),
	)
}

func TestInjector_ScoreWithinUnitInterval(t *testing.T) {
	injector, err := NewInjector("mild", 7)
	require.NoError(t, err)

	for attempt := int32(1); attempt <= 100; attempt++ {
		score := injector.Score("db_delay", "evt-xyz", attempt)
		assert.GreaterOrEqual(t, score, 0.0)
		assert.Less(t, score, 1.0)
	}
}

func TestInjector_HarshProfileFiresSometimes(t *testing.T) {
	injector, err := NewInjector("harsh", 42)
	require.NoError(t, err)

	fired := 0
	for attempt := int32(1); attempt <= 1000; attempt++ {
		if injector.ShouldRaiseWorkerException("evt-sample", attempt) {
			fired++
		}
	}

	// p = 0.05 over 1000 attempts; wide bounds keep this deterministic
	// for the fixed seed while still checking the rate is sane.
	assert.Greater(t, fired, 10)
	assert.Less(t, fired, 150)
}
