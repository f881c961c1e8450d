package services

import (
	"context"

	"github.com/psteixeira23/global-ledger-consistency-lab/internal/domain"
	"github.com/psteixeira23/global-ledger-consistency-lab/internal/infrastructure/persistence/postgres"
)

// Stats is the snapshot served by GET /internal/stats. Field names are
// part of the experiment tooling contract.
type Stats struct {
	Completed               int64 `json:"completed"`
	Rejected                int64 `json:"rejected"`
	OutboxPending           int64 `json:"outbox_pending"`
	OutboxDead              int64 `json:"outbox_dead"`
	LedgerImbalance         int64 `json:"ledger_imbalance"`
	NegativeBalanceDetected int64 `json:"negative_balance_detected"`
}

type StatsService struct {
	db       *postgres.DB
	payments *postgres.PaymentsRepository
	outbox   *postgres.OutboxRepository
	ledger   *postgres.LedgerRepository
	accounts *postgres.AccountsRepository
}

func NewStatsService(
	db *postgres.DB,
	payments *postgres.PaymentsRepository,
	outbox *postgres.OutboxRepository,
	ledger *postgres.LedgerRepository,
	accounts *postgres.AccountsRepository,
) *StatsService {
	return &StatsService{
		db:       db,
		payments: payments,
		outbox:   outbox,
		ledger:   ledger,
		accounts: accounts,
	}
}

func (s *StatsService) Snapshot(ctx context.Context) (*Stats, error) {
	pool := s.db.Pool

	completed, err := s.payments.CountByStatus(ctx, pool, domain.StatusCompleted)
	if err != nil {
		return nil, err
	}
	rejected, err := s.payments.CountByStatus(ctx, pool, domain.StatusRejected)
	if err != nil {
		return nil, err
	}
	pending, err := s.outbox.CountByStatus(ctx, pool, domain.OutboxPending)
	if err != nil {
		return nil, err
	}
	dead, err := s.outbox.CountByStatus(ctx, pool, domain.OutboxDead)
	if err != nil {
		return nil, err
	}
	imbalance, err := s.ledger.ImbalanceSum(ctx, pool)
	if err != nil {
		return nil, err
	}
	negative, err := s.accounts.NegativeBalanceCount(ctx, pool)
	if err != nil {
		return nil, err
	}

	detected := int64(0)
	if negative > 0 {
		detected = 1
	}

	return &Stats{
		Completed:               completed,
		Rejected:                rejected,
		OutboxPending:           pending,
		OutboxDead:              dead,
		LedgerImbalance:         imbalance,
		NegativeBalanceDetected: detected,
	}, nil
}
