package main

import (
	"context"
	"log/slog"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/psteixeira23/global-ledger-consistency-lab/internal/chaos"
	"github.com/psteixeira23/global-ledger-consistency-lab/internal/config"
	"github.com/psteixeira23/global-ledger-consistency-lab/internal/infrastructure/persistence/postgres"
	"github.com/psteixeira23/global-ledger-consistency-lab/internal/telemetry"
	"github.com/psteixeira23/global-ledger-consistency-lab/internal/worker"
)

func main() {
	cfg, err := config.LoadConfig()
	if err != nil {
		slog.Error("failed to load configuration", "error", err)
		os.Exit(1)
	}

	logger := cfg.NewLogger()
	slog.SetDefault(logger)

	logger.Info("starting ledger worker",
		"mode", cfg.ConsistencyMode,
		"fail_profile", cfg.FailProfile,
		"seed", cfg.ExperimentSeed,
	)

	tracer := telemetry.ConfigureTracing("ledger-worker")

	ctx := context.Background()
	db, err := postgres.Connect(ctx, cfg, logger)
	if err != nil {
		logger.Error("failed to connect to database", "error", err)
		os.Exit(1)
	}
	defer db.Close()

	injector, err := chaos.NewInjector(cfg.FailProfile, cfg.ExperimentSeed)
	if err != nil {
		logger.Error("failed to build failure injector", "error", err)
		os.Exit(1)
	}

	accountsRepo := postgres.NewAccountsRepository()
	paymentsRepo := postgres.NewPaymentsRepository()
	outboxRepo := postgres.NewOutboxRepository()
	ledgerRepo := postgres.NewLedgerRepository()

	processor := worker.NewProcessor(
		db,
		accountsRepo,
		paymentsRepo,
		outboxRepo,
		ledgerRepo,
		cfg.Mode(),
		injector,
		tracer,
		cfg.OutboxBatchSize,
		cfg.ProcessingTimeout(),
		cfg.PollInterval(),
		logger,
	)

	reconciler := worker.NewReconciler(
		db,
		ledgerRepo,
		accountsRepo,
		cfg.ReconciliationInterval(),
		logger,
	)

	metricsServer := telemetry.StartMetricsServer(cfg.LedgerWorkerMetricsPort, logger)

	workerCtx, cancelWorkers := context.WithCancel(context.Background())
	defer cancelWorkers()

	go processor.Start(workerCtx)
	go reconciler.Start(workerCtx)

	quit := make(chan os.Signal, 1)
	signal.Notify(quit, syscall.SIGINT, syscall.SIGTERM)
	<-quit

	logger.Info("shutting down worker...")
	cancelWorkers()

	shutdownCtx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()

	if err := metricsServer.Shutdown(shutdownCtx); err != nil {
		logger.Error("metrics server forced to shutdown", "error", err)
	}

	logger.Info("worker exited")
}
