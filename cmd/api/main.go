package main

import (
	"context"
	"fmt"
	"log/slog"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/psteixeira23/global-ledger-consistency-lab/internal/application/services"
	"github.com/psteixeira23/global-ledger-consistency-lab/internal/config"
	"github.com/psteixeira23/global-ledger-consistency-lab/internal/infrastructure/persistence/postgres"
	"github.com/psteixeira23/global-ledger-consistency-lab/internal/interfaces/rest/handlers"
	"github.com/psteixeira23/global-ledger-consistency-lab/internal/interfaces/rest/middleware"
	"github.com/psteixeira23/global-ledger-consistency-lab/internal/telemetry"
)

func main() {
	cfg, err := config.LoadConfig()
	if err != nil {
		slog.Error("failed to load configuration", "error", err)
		os.Exit(1)
	}

	logger := cfg.NewLogger()
	slog.SetDefault(logger)

	logger.Info("starting payments api",
		"port", cfg.APIPort,
		"mode", cfg.ConsistencyMode,
		"log_level", cfg.LogLevel,
	)

	telemetry.ConfigureTracing("payments-api")

	ctx := context.Background()
	db, err := postgres.Connect(ctx, cfg, logger)
	if err != nil {
		logger.Error("failed to connect to database", "error", err)
		os.Exit(1)
	}
	defer db.Close()

	if err := postgres.Migrate(ctx, db, cfg.RecreateSchema(), logger); err != nil {
		logger.Error("failed to migrate schema", "error", err)
		os.Exit(1)
	}

	accountsRepo := postgres.NewAccountsRepository()
	paymentsRepo := postgres.NewPaymentsRepository()
	idempotencyRepo := postgres.NewIdempotencyRepository()
	outboxRepo := postgres.NewOutboxRepository()
	ledgerRepo := postgres.NewLedgerRepository()

	paymentService := services.NewCreatePaymentService(
		db,
		accountsRepo,
		paymentsRepo,
		idempotencyRepo,
		outboxRepo,
		ledgerRepo,
		cfg.Mode(),
		logger,
	)
	statsService := services.NewStatsService(db, paymentsRepo, outboxRepo, ledgerRepo, accountsRepo)

	h := handlers.NewHandlers(paymentService, statsService, logger)

	mux := http.NewServeMux()
	h.Register(mux)

	handler := middleware.Recovery(logger)(mux)
	handler = middleware.Logging(logger)(handler)
	handler = middleware.Timeout(30 * time.Second)(handler)

	server := &http.Server{
		Addr:         fmt.Sprintf("0.0.0.0:%d", cfg.APIPort),
		Handler:      handler,
		ReadTimeout:  30 * time.Second,
		WriteTimeout: 35 * time.Second,
		IdleTimeout:  60 * time.Second,
	}

	go func() {
		logger.Info("server starting", "addr", server.Addr)
		if err := server.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			logger.Error("server error", "error", err)
			os.Exit(1)
		}
	}()

	quit := make(chan os.Signal, 1)
	signal.Notify(quit, syscall.SIGINT, syscall.SIGTERM)
	<-quit

	logger.Info("shutting down server...")

	shutdownCtx, cancel := context.WithTimeout(context.Background(), 30*time.Second)
	defer cancel()

	if err := server.Shutdown(shutdownCtx); err != nil {
		logger.Error("server forced to shutdown", "error", err)
	}

	logger.Info("server exited")
}
