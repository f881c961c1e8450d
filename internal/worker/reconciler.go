package worker

import (
	"context"
	"log/slog"
	"time"

	"github.com/psteixeira23/global-ledger-consistency-lab/internal/infrastructure/persistence/postgres"
	"github.com/psteixeira23/global-ledger-consistency-lab/internal/telemetry"
)

// Reconciler periodically checks the global ledger invariants with
// read-only, non-locking queries. In a correct system both values stay
// zero; a non-zero reading bumps the corresponding counter.
type Reconciler struct {
	db       *postgres.DB
	ledger   *postgres.LedgerRepository
	accounts *postgres.AccountsRepository
	interval time.Duration
	logger   *slog.Logger
}

func NewReconciler(
	db *postgres.DB,
	ledger *postgres.LedgerRepository,
	accounts *postgres.AccountsRepository,
	interval time.Duration,
	logger *slog.Logger,
) *Reconciler {
	return &Reconciler{
		db:       db,
		ledger:   ledger,
		accounts: accounts,
		interval: interval,
		logger:   logger,
	}
}

func (r *Reconciler) Start(ctx context.Context) {
	r.logger.Info("reconciler started", "interval", r.interval)
	ticker := time.NewTicker(r.interval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			r.logger.Info("reconciler stopping")
			return
		case <-ticker.C:
			if _, _, err := r.RunOnce(ctx); err != nil {
				r.logger.Error("reconciliation failed", "error", err)
			}
		}
	}
}

// RunOnce performs a single reconciliation pass and returns
// (imbalance, negativeCount).
func (r *Reconciler) RunOnce(ctx context.Context) (int64, int64, error) {
	imbalance, err := r.ledger.ImbalanceSum(ctx, r.db.Pool)
	if err != nil {
		return 0, 0, err
	}

	negativeCount, err := r.accounts.NegativeBalanceCount(ctx, r.db.Pool)
	if err != nil {
		return 0, 0, err
	}

	if imbalance != 0 {
		telemetry.LedgerImbalance.Inc()
		r.logger.Error("ledger imbalance detected", "imbalance_cents", imbalance)
	}
	if negativeCount > 0 {
		telemetry.NegativeBalanceDetected.Inc()
		r.logger.Error("negative balance detected", "accounts", negativeCount)
	}

	return imbalance, negativeCount, nil
}
