package worker_test

import (
	"context"
	"time"

	"github.com/psteixeira23/global-ledger-consistency-lab/internal/application/services"
	"github.com/psteixeira23/global-ledger-consistency-lab/internal/domain"
	"github.com/psteixeira23/global-ledger-consistency-lab/internal/worker"
)

func (s *WorkerSuite) reconciler() *worker.Reconciler {
	return worker.NewReconciler(s.td.DB, s.ledger, s.accounts, 5*time.Second, s.logger)
}

func (s *WorkerSuite) TestReconcilerCleanState() {
	imbalance, negative, err := s.reconciler().RunOnce(context.Background())
	s.Require().NoError(err)
	s.EqualValues(0, imbalance)
	s.EqualValues(0, negative)
}

func (s *WorkerSuite) TestReconcilerAfterSettlement() {
	ctx := context.Background()
	s.intake(domain.ModeHybrid, 250, "idem-reconcile-settled")

	processed, err := s.processor(domain.ModeHybrid).ProcessAvailableEvents(ctx)
	s.Require().NoError(err)
	s.Equal(1, processed)

	imbalance, negative, err := s.reconciler().RunOnce(ctx)
	s.Require().NoError(err)
	s.EqualValues(0, imbalance)
	s.EqualValues(0, negative)
}

func (s *WorkerSuite) TestReconcilerDetectsImbalance() {
	ctx := context.Background()

	// An unpaired debit means some credit was lost.
	_, err := s.td.DB.Pool.Exec(ctx, `
		INSERT INTO ledger_entries (id, payment_id, account_id, direction, amount_cents)
		VALUES ($1, $2, 'acc-001', 'DEBIT', 300)
	`, services.NewID("led"), services.NewID("pay"))
	s.Require().NoError(err)

	imbalance, negative, err := s.reconciler().RunOnce(ctx)
	s.Require().NoError(err)
	s.EqualValues(300, imbalance)
	s.EqualValues(0, negative)
}

func (s *WorkerSuite) TestReconcilerDetectsNegativeBalance() {
	ctx := context.Background()
	s.td.SetAccountBalance(s.T(), "acc-003", -50, 0)

	imbalance, negative, err := s.reconciler().RunOnce(ctx)
	s.Require().NoError(err)
	s.EqualValues(0, imbalance)
	s.EqualValues(1, negative)
}
