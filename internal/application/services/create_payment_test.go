package services_test

import (
	"context"
	"encoding/json"
	"log/slog"
	"os"
	"testing"

	"github.com/stretchr/testify/suite"

	"github.com/psteixeira23/global-ledger-consistency-lab/internal/application/services"
	"github.com/psteixeira23/global-ledger-consistency-lab/internal/application/services/testhelpers"
	"github.com/psteixeira23/global-ledger-consistency-lab/internal/domain"
	"github.com/psteixeira23/global-ledger-consistency-lab/internal/infrastructure/persistence/postgres"
)

type CreatePaymentSuite struct {
	suite.Suite
	td *testhelpers.TestDatabase

	accounts    *postgres.AccountsRepository
	payments    *postgres.PaymentsRepository
	idempotency *postgres.IdempotencyRepository
	outbox      *postgres.OutboxRepository
	ledger      *postgres.LedgerRepository
	logger      *slog.Logger
}

func TestCreatePaymentSuite(t *testing.T) {
	if testing.Short() {
		t.Skip("skipping integration test in short mode")
	}
	suite.Run(t, new(CreatePaymentSuite))
}

func (s *CreatePaymentSuite) SetupSuite() {
	s.td = testhelpers.SetupTestDatabase(s.T())
	s.accounts = postgres.NewAccountsRepository()
	s.payments = postgres.NewPaymentsRepository()
	s.idempotency = postgres.NewIdempotencyRepository()
	s.outbox = postgres.NewOutboxRepository()
	s.ledger = postgres.NewLedgerRepository()
	s.logger = slog.New(slog.NewTextHandler(os.Stdout, &slog.HandlerOptions{Level: slog.LevelError}))
}

func (s *CreatePaymentSuite) TearDownSuite() {
	s.td.Cleanup(s.T())
}

func (s *CreatePaymentSuite) SetupTest() {
	s.td.ResetState(s.T())
}

func (s *CreatePaymentSuite) service(mode domain.ConsistencyMode) *services.CreatePaymentService {
	return services.NewCreatePaymentService(
		s.td.DB,
		s.accounts,
		s.payments,
		s.idempotency,
		s.outbox,
		s.ledger,
		mode,
		s.logger,
	)
}

func (s *CreatePaymentSuite) request(amount int64, key string) *domain.CreatePaymentRequest {
	return &domain.CreatePaymentRequest{
		AmountCents:          amount,
		DestinationAccountID: "acc-002",
		IdempotencyKey:       key,
		Method:               domain.MethodPix,
		SourceAccountID:      "acc-001",
	}
}

func (s *CreatePaymentSuite) account(id string) *domain.Account {
	account, err := s.accounts.FindByID(context.Background(), s.td.DB.Pool, id)
	s.Require().NoError(err)
	return account
}

func (s *CreatePaymentSuite) paymentCount() int64 {
	var count int64
	err := s.td.DB.Pool.QueryRow(context.Background(), `SELECT COUNT(*) FROM payments`).Scan(&count)
	s.Require().NoError(err)
	return count
}

func (s *CreatePaymentSuite) outboxEvents() []*domain.OutboxEvent {
	rows, err := s.td.DB.Pool.Query(context.Background(), `
		SELECT id, aggregate_type, aggregate_id, event_type, payload_json,
		       status, attempts, next_retry_at, created_at
		FROM outbox_events ORDER BY created_at ASC, id ASC
	`)
	s.Require().NoError(err)
	defer rows.Close()

	var events []*domain.OutboxEvent
	for rows.Next() {
		var e domain.OutboxEvent
		err := rows.Scan(&e.ID, &e.AggregateType, &e.AggregateID, &e.EventType,
			&e.PayloadJSON, &e.Status, &e.Attempts, &e.NextRetryAt, &e.CreatedAt)
		s.Require().NoError(err)
		events = append(events, &e)
	}
	s.Require().NoError(rows.Err())
	return events
}

func (s *CreatePaymentSuite) TestStrongModeCompletesSynchronously() {
	ctx := context.Background()
	svc := s.service(domain.ModeStrong)

	response, err := svc.CreatePayment(ctx, s.request(300, "idem-strong-01"), "")
	s.Require().NoError(err)
	s.Equal(domain.StatusCompleted, response.Status)
	s.NotEmpty(response.PaymentID)

	s.EqualValues(999_700, s.account("acc-001").AvailableCents)
	s.EqualValues(1_000_300, s.account("acc-002").AvailableCents)

	s.Empty(s.outboxEvents())

	entries, err := s.ledger.FindByPayment(ctx, s.td.DB.Pool, response.PaymentID)
	s.Require().NoError(err)
	s.Require().Len(entries, 2)

	imbalance, err := s.ledger.ImbalanceSum(ctx, s.td.DB.Pool)
	s.Require().NoError(err)
	s.EqualValues(0, imbalance)

	payment, err := s.payments.FindByID(ctx, s.td.DB.Pool, response.PaymentID)
	s.Require().NoError(err)
	s.Equal(domain.StatusCompleted, payment.Status)
}

func (s *CreatePaymentSuite) TestHybridModeReservesFunds() {
	ctx := context.Background()
	svc := s.service(domain.ModeHybrid)

	response, err := svc.CreatePayment(ctx, s.request(250, "idem-hybrid-01"), "")
	s.Require().NoError(err)
	s.Equal(domain.StatusReserved, response.Status)

	source := s.account("acc-001")
	s.EqualValues(999_750, source.AvailableCents)
	s.EqualValues(250, source.ReservedCents)

	destination := s.account("acc-002")
	s.EqualValues(1_000_000, destination.AvailableCents)
	s.EqualValues(0, destination.ReservedCents)

	events := s.outboxEvents()
	s.Require().Len(events, 1)
	s.Equal(domain.EventPaymentReserved, events[0].EventType)
	s.Equal(domain.OutboxPending, events[0].Status)
	s.Equal("payment", events[0].AggregateType)
	s.Equal(response.PaymentID, events[0].AggregateID)
	s.EqualValues(0, events[0].Attempts)

	var payload services.OutboxPayload
	s.Require().NoError(json.Unmarshal([]byte(events[0].PayloadJSON), &payload))
	s.Equal(response.PaymentID, payload.PaymentID)
	s.Equal("acc-001", payload.SourceAccountID)
	s.Equal("acc-002", payload.DestinationAccountID)
	s.EqualValues(250, payload.AmountCents)
	s.Nil(payload.Traceparent)

	count, err := s.ledger.CountByPayment(ctx, s.td.DB.Pool, response.PaymentID)
	s.Require().NoError(err)
	s.EqualValues(0, count)
}

func (s *CreatePaymentSuite) TestEventualModeAcceptsWithoutTouchingAccounts() {
	ctx := context.Background()
	svc := s.service(domain.ModeEventual)

	response, err := svc.CreatePayment(ctx, s.request(500, "idem-eventual-01"), "")
	s.Require().NoError(err)
	s.Equal(domain.StatusReceived, response.Status)

	s.EqualValues(1_000_000, s.account("acc-001").AvailableCents)
	s.EqualValues(1_000_000, s.account("acc-002").AvailableCents)

	events := s.outboxEvents()
	s.Require().Len(events, 1)
	s.Equal(domain.EventPaymentRequested, events[0].EventType)
	s.Equal(domain.OutboxPending, events[0].Status)

	payment, err := s.payments.FindByID(ctx, s.td.DB.Pool, response.PaymentID)
	s.Require().NoError(err)
	s.Equal(domain.StatusReceived, payment.Status)
}

func (s *CreatePaymentSuite) TestInsufficientFundsRejected() {
	ctx := context.Background()
	s.td.SetAccountBalance(s.T(), "acc-001", 100, 0)

	for _, mode := range []domain.ConsistencyMode{domain.ModeStrong, domain.ModeHybrid} {
		svc := s.service(mode)

		_, err := svc.CreatePayment(ctx, s.request(300, "idem-poor-"+string(mode)), "")
		s.Require().Error(err)

		domainErr, ok := domain.IsDomainError(err)
		s.Require().True(ok)
		s.Equal(domain.ErrCodeInsufficientFunds, domainErr.Code)
		s.Equal(422, domainErr.HTTPStatus)
	}

	s.EqualValues(0, s.paymentCount())
	s.EqualValues(100, s.account("acc-001").AvailableCents)
	s.EqualValues(1_000_000, s.account("acc-002").AvailableCents)
}

func (s *CreatePaymentSuite) TestUnknownAccountRejected() {
	ctx := context.Background()
	svc := s.service(domain.ModeStrong)

	req := s.request(300, "idem-ghost-01")
	req.DestinationAccountID = "acc-999"

	_, err := svc.CreatePayment(ctx, req, "")
	s.Require().Error(err)

	domainErr, ok := domain.IsDomainError(err)
	s.Require().True(ok)
	s.Equal(domain.ErrCodeInvalidPayment, domainErr.Code)
	s.EqualValues(0, s.paymentCount())
}

func (s *CreatePaymentSuite) TestIdempotentReplayReturnsStoredResponse() {
	ctx := context.Background()
	svc := s.service(domain.ModeHybrid)

	first, err := svc.CreatePayment(ctx, s.request(300, "idem-replay-01"), "")
	s.Require().NoError(err)

	second, err := svc.CreatePayment(ctx, s.request(300, "idem-replay-01"), "")
	s.Require().NoError(err)

	s.Equal(first.PaymentID, second.PaymentID)
	s.Equal(first.Status, second.Status)

	s.EqualValues(1, s.paymentCount())
	s.Len(s.outboxEvents(), 1)

	// Funds moved exactly once.
	source := s.account("acc-001")
	s.EqualValues(999_700, source.AvailableCents)
	s.EqualValues(300, source.ReservedCents)
}

func (s *CreatePaymentSuite) TestIdempotencyKeyConflict() {
	ctx := context.Background()
	svc := s.service(domain.ModeStrong)

	_, err := svc.CreatePayment(ctx, s.request(300, "idem-conflict-01"), "")
	s.Require().NoError(err)

	_, err = svc.CreatePayment(ctx, s.request(301, "idem-conflict-01"), "")
	s.Require().Error(err)

	domainErr, ok := domain.IsDomainError(err)
	s.Require().True(ok)
	s.Equal(domain.ErrCodeIdempotencyConflict, domainErr.Code)
	s.Equal(409, domainErr.HTTPStatus)

	s.EqualValues(1, s.paymentCount())
}

func (s *CreatePaymentSuite) TestTraceparentForwardedIntoPayload() {
	ctx := context.Background()
	svc := s.service(domain.ModeEventual)

	traceparent := "00-4bf92f3577b34da6a3ce929d0e0e4736-00f067aa0ba902b7-01"
	_, err := svc.CreatePayment(ctx, s.request(300, "idem-trace-01"), traceparent)
	s.Require().NoError(err)

	events := s.outboxEvents()
	s.Require().Len(events, 1)

	var payload services.OutboxPayload
	s.Require().NoError(json.Unmarshal([]byte(events[0].PayloadJSON), &payload))
	s.Require().NotNil(payload.Traceparent)
	s.Equal(traceparent, *payload.Traceparent)
}
