package telemetry

import (
	"fmt"
	"log/slog"
	"net/http"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

// Counter and histogram names are part of the experiment contract; the
// report tooling scrapes them by exact name.
var (
	PaymentsReceived = promauto.NewCounter(prometheus.CounterOpts{
		Name: "payments_received_total",
		Help: "Payments received by the intake API",
	})
	PaymentsProcessed = promauto.NewCounter(prometheus.CounterOpts{
		Name: "payments_processed_total",
		Help: "Payments processed to a terminal or reserved state",
	})
	IdempotencyReplay = promauto.NewCounter(prometheus.CounterOpts{
		Name: "idempotency_replay_total",
		Help: "Requests answered from a stored idempotency response",
	})
	OptimisticLockConflict = promauto.NewCounter(prometheus.CounterOpts{
		Name: "optimistic_lock_conflict_total",
		Help: "Concurrent writers lost the idempotency insert race",
	})
	OutboxRetry = promauto.NewCounter(prometheus.CounterOpts{
		Name: "outbox_retry_total",
		Help: "Outbox events rescheduled after a transient failure",
	})
	LedgerImbalance = promauto.NewCounter(prometheus.CounterOpts{
		Name: "ledger_imbalance_total",
		Help: "Reconciliation passes that found a debit/credit imbalance",
	})
	NegativeBalanceDetected = promauto.NewCounter(prometheus.CounterOpts{
		Name: "negative_balance_detected_total",
		Help: "Reconciliation passes that found a negative balance",
	})
	InvariantViolation = promauto.NewCounter(prometheus.CounterOpts{
		Name: "invariant_violation_total",
		Help: "Outbox events dead-lettered for a permanent invariant violation",
	})
	RequestLatencyMS = promauto.NewHistogram(prometheus.HistogramOpts{
		Name:    "payments_request_latency_ms",
		Help:    "Latency of the payment endpoint in milliseconds",
		Buckets: []float64{5, 10, 25, 50, 100, 250, 500, 1000, 2000},
	})
)

// MetricsHandler serves the default registry in Prometheus text format.
func MetricsHandler() http.Handler {
	return promhttp.Handler()
}

// StartMetricsServer runs a standalone /metrics listener for the worker,
// which has no API surface of its own.
func StartMetricsServer(port int, logger *slog.Logger) *http.Server {
	mux := http.NewServeMux()
	mux.Handle("/metrics", promhttp.Handler())

	server := &http.Server{
		Addr:         fmt.Sprintf("0.0.0.0:%d", port),
		Handler:      mux,
		ReadTimeout:  5 * time.Second,
		WriteTimeout: 10 * time.Second,
	}

	go func() {
		logger.Info("metrics server starting", "addr", server.Addr)
		if err := server.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			logger.Error("metrics server error", "error", err)
		}
	}()

	return server
}
