package services

import (
	"context"
	"errors"

	"github.com/jackc/pgx/v5"

	"github.com/psteixeira23/global-ledger-consistency-lab/internal/domain"
	"github.com/psteixeira23/global-ledger-consistency-lab/internal/infrastructure/persistence/postgres"
)

// intakeStrategy executes the mode-specific half of payment intake inside
// the caller's transaction. The shared helpers arrive as an explicit
// dependency instead of a back-reference to the use case.
type intakeStrategy interface {
	Execute(ctx context.Context, tx pgx.Tx, req *domain.CreatePaymentRequest, requestHash, traceparent string) (*domain.PaymentResponse, error)
}

// intakeHelpers bundles the repositories every strategy needs.
type intakeHelpers struct {
	accounts *postgres.AccountsRepository
	payments *postgres.PaymentsRepository
	outbox   *postgres.OutboxRepository
	ledger   *postgres.LedgerRepository
}

func (h *intakeHelpers) lockAccounts(ctx context.Context, tx pgx.Tx, sourceID, destinationID string) (*domain.Account, *domain.Account, error) {
	source, destination, err := LockAccountPair(ctx, tx, h.accounts, sourceID, destinationID)
	if err != nil {
		if errors.Is(err, postgres.ErrAccountNotFound) {
			return nil, nil, domain.NewInvalidPaymentError("account not found")
		}
		return nil, nil, err
	}
	return source, destination, nil
}

func (h *intakeHelpers) createPayment(ctx context.Context, tx pgx.Tx, req *domain.CreatePaymentRequest, requestHash string, status domain.PaymentStatus) (*domain.Payment, error) {
	payment := &domain.Payment{
		ID:                   NewID("pay"),
		IdempotencyKey:       req.IdempotencyKey,
		RequestHash:          requestHash,
		SourceAccountID:      req.SourceAccountID,
		DestinationAccountID: req.DestinationAccountID,
		AmountCents:          req.AmountCents,
		Method:               req.Method,
		Status:               status,
	}
	if err := h.payments.Create(ctx, tx, payment); err != nil {
		return nil, err
	}
	return payment, nil
}

func (h *intakeHelpers) emitOutbox(ctx context.Context, tx pgx.Tx, paymentID string, eventType domain.OutboxEventType, req *domain.CreatePaymentRequest, traceparent string) error {
	payload := &OutboxPayload{
		AmountCents:          req.AmountCents,
		DestinationAccountID: req.DestinationAccountID,
		PaymentID:            paymentID,
		SourceAccountID:      req.SourceAccountID,
	}
	if traceparent != "" {
		payload.Traceparent = &traceparent
	}

	payloadJSON, err := payload.MarshalCanonical()
	if err != nil {
		return err
	}

	event := &domain.OutboxEvent{
		ID:            NewID("evt"),
		AggregateType: "payment",
		AggregateID:   paymentID,
		EventType:     eventType,
		PayloadJSON:   payloadJSON,
		Status:        domain.OutboxPending,
		Attempts:      0,
	}
	return h.outbox.Create(ctx, tx, event)
}

// strongStrategy settles the payment entirely inside the intake
// transaction: debit, credit, ledger pair, no outbox event.
type strongStrategy struct {
	helpers *intakeHelpers
}

func (s *strongStrategy) Execute(ctx context.Context, tx pgx.Tx, req *domain.CreatePaymentRequest, requestHash, traceparent string) (*domain.PaymentResponse, error) {
	source, destination, err := s.helpers.lockAccounts(ctx, tx, req.SourceAccountID, req.DestinationAccountID)
	if err != nil {
		return nil, err
	}

	if source.AvailableCents < req.AmountCents {
		return nil, domain.NewInsufficientFundsError()
	}

	source.AvailableCents -= req.AmountCents
	source.Version++
	destination.AvailableCents += req.AmountCents
	destination.Version++

	if err := s.helpers.accounts.UpdateBalances(ctx, tx, source); err != nil {
		return nil, err
	}
	if err := s.helpers.accounts.UpdateBalances(ctx, tx, destination); err != nil {
		return nil, err
	}

	payment, err := s.helpers.createPayment(ctx, tx, req, requestHash, domain.StatusCompleted)
	if err != nil {
		return nil, err
	}

	if err := AppendLedgerPair(ctx, tx, s.helpers.ledger, payment.ID, req.SourceAccountID, req.DestinationAccountID, req.AmountCents); err != nil {
		return nil, err
	}

	return &domain.PaymentResponse{PaymentID: payment.ID, Status: domain.StatusCompleted}, nil
}

// hybridStrategy reserves funds synchronously and defers the credit to
// the worker via a PAYMENT_RESERVED event. The destination is locked only
// to keep the ordering discipline uniform.
type hybridStrategy struct {
	helpers *intakeHelpers
}

func (s *hybridStrategy) Execute(ctx context.Context, tx pgx.Tx, req *domain.CreatePaymentRequest, requestHash, traceparent string) (*domain.PaymentResponse, error) {
	source, _, err := s.helpers.lockAccounts(ctx, tx, req.SourceAccountID, req.DestinationAccountID)
	if err != nil {
		return nil, err
	}

	if source.AvailableCents < req.AmountCents {
		return nil, domain.NewInsufficientFundsError()
	}

	source.AvailableCents -= req.AmountCents
	source.ReservedCents += req.AmountCents
	source.Version++

	if err := s.helpers.accounts.UpdateBalances(ctx, tx, source); err != nil {
		return nil, err
	}

	payment, err := s.helpers.createPayment(ctx, tx, req, requestHash, domain.StatusReserved)
	if err != nil {
		return nil, err
	}

	if err := s.helpers.emitOutbox(ctx, tx, payment.ID, domain.EventPaymentReserved, req, traceparent); err != nil {
		return nil, err
	}

	return &domain.PaymentResponse{PaymentID: payment.ID, Status: domain.StatusReserved}, nil
}

// eventualStrategy accepts the request without touching accounts; the
// worker performs the funds check when it drains the outbox.
type eventualStrategy struct {
	helpers *intakeHelpers
}

func (s *eventualStrategy) Execute(ctx context.Context, tx pgx.Tx, req *domain.CreatePaymentRequest, requestHash, traceparent string) (*domain.PaymentResponse, error) {
	payment, err := s.helpers.createPayment(ctx, tx, req, requestHash, domain.StatusReceived)
	if err != nil {
		return nil, err
	}

	if err := s.helpers.emitOutbox(ctx, tx, payment.ID, domain.EventPaymentRequested, req, traceparent); err != nil {
		return nil, err
	}

	return &domain.PaymentResponse{PaymentID: payment.ID, Status: domain.StatusReceived}, nil
}
