// Package chaos provides deterministic fault injection for the settlement
// worker. Decisions are pure functions of (seed, profile, namespace,
// event id, attempt), so a run with the same seed reproduces the same
// failures regardless of scheduling.
package chaos

import (
	"crypto/sha256"
	"encoding/binary"
	"fmt"
	"time"
)

type Profile struct {
	DBDelayProbability         float64
	WorkerExceptionProbability float64
	RedisFailureProbability    float64
}

var profiles = map[string]Profile{
	"none":  {0.0, 0.0, 0.0},
	"mild":  {0.02, 0.01, 0.0},
	"harsh": {0.10, 0.05, 0.05},
}

type Injector struct {
	profile string
	seed    uint64
	preset  Profile
	sleep   func(time.Duration)
}

func NewInjector(profile string, seed uint64) (*Injector, error) {
	preset, ok := profiles[profile]
	if !ok {
		return nil, fmt.Errorf("invalid failure profile: %q", profile)
	}
	return &Injector{
		profile: profile,
		seed:    seed,
		preset:  preset,
		sleep:   time.Sleep,
	}, nil
}

// MaybeApplyDBDelay sleeps ~20ms when the db_delay namespace fires.
func (i *Injector) MaybeApplyDBDelay(eventID string, attempt int32) {
	if i.Score("db_delay", eventID, attempt) < i.preset.DBDelayProbability {
		i.sleep(20 * time.Millisecond)
	}
}

func (i *Injector) ShouldRaiseWorkerException(eventID string, attempt int32) bool {
	return i.Score("worker_exception", eventID, attempt) < i.preset.WorkerExceptionProbability
}

func (i *Injector) ShouldFailRedisSimulation(eventID string, attempt int32) bool {
	return i.Score("redis_failure", eventID, attempt) < i.preset.RedisFailureProbability
}

// Score hashes the decision triple into [0,1). Each attempt of the same
// event gets a fresh value, so a failing event can still make progress.
func (i *Injector) Score(namespace, eventID string, attempt int32) float64 {
	payload := fmt.Sprintf("%d:%s:%s:%s:%d", i.seed, i.profile, namespace, eventID, attempt)
	digest := sha256.Sum256([]byte(payload))
	value := binary.BigEndian.Uint64(digest[:8])
	return float64(value) / float64(1<<64)
}
