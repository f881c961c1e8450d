package worker

import (
	"context"
	"errors"
	"fmt"

	"github.com/jackc/pgx/v5"

	"github.com/psteixeira23/global-ledger-consistency-lab/internal/application/services"
	"github.com/psteixeira23/global-ledger-consistency-lab/internal/domain"
	"github.com/psteixeira23/global-ledger-consistency-lab/internal/infrastructure/persistence/postgres"
	"github.com/psteixeira23/global-ledger-consistency-lab/internal/telemetry"
)

// settlementStrategy applies one claimed event inside the worker's
// per-event transaction. Strategies match event types strictly; a
// mismatch is a permanent failure.
type settlementStrategy interface {
	Process(ctx context.Context, tx pgx.Tx, event *domain.OutboxEvent, payload *services.OutboxPayload) error
}

type settlementHelpers struct {
	accounts *postgres.AccountsRepository
	payments *postgres.PaymentsRepository
	outbox   *postgres.OutboxRepository
	ledger   *postgres.LedgerRepository
}

// lockPayment takes the payment row lock before any account lock, which
// serializes concurrent workers for the same payment.
func (h *settlementHelpers) lockPayment(ctx context.Context, tx pgx.Tx, paymentID string) (*domain.Payment, error) {
	payment, err := h.payments.FindByIDForUpdate(ctx, tx, paymentID)
	if err != nil {
		if errors.Is(err, postgres.ErrPaymentNotFound) {
			return nil, newInvariantViolation("payment not found: " + paymentID)
		}
		return nil, err
	}
	return payment, nil
}

func (h *settlementHelpers) lockAccounts(ctx context.Context, tx pgx.Tx, sourceID, destinationID string) (*domain.Account, *domain.Account, error) {
	source, destination, err := services.LockAccountPair(ctx, tx, h.accounts, sourceID, destinationID)
	if err != nil {
		if errors.Is(err, postgres.ErrAccountNotFound) {
			return nil, nil, newInvariantViolation("account not found")
		}
		return nil, nil, err
	}
	return source, destination, nil
}

// complete applies the balance mutations, advances the payment, appends
// the ledger pair, and marks the event processed, all in the caller's
// transaction.
func (h *settlementHelpers) complete(
	ctx context.Context,
	tx pgx.Tx,
	event *domain.OutboxEvent,
	payload *services.OutboxPayload,
	source, destination *domain.Account,
) error {
	if err := h.accounts.UpdateBalances(ctx, tx, source); err != nil {
		return err
	}
	if err := h.accounts.UpdateBalances(ctx, tx, destination); err != nil {
		return err
	}
	if err := h.payments.UpdateStatus(ctx, tx, payload.PaymentID, domain.StatusCompleted); err != nil {
		return err
	}
	if err := services.AppendLedgerPair(ctx, tx, h.ledger, payload.PaymentID, payload.SourceAccountID, payload.DestinationAccountID, payload.AmountCents); err != nil {
		return err
	}
	if err := h.outbox.MarkProcessed(ctx, tx, event.ID); err != nil {
		return err
	}

	telemetry.PaymentsProcessed.Inc()
	return nil
}

// strongSettlement is a safety sink: strong mode emits no events, so
// anything seen here is legacy and is simply marked processed.
type strongSettlement struct {
	helpers *settlementHelpers
}

func (s *strongSettlement) Process(ctx context.Context, tx pgx.Tx, event *domain.OutboxEvent, payload *services.OutboxPayload) error {
	return s.helpers.outbox.MarkProcessed(ctx, tx, event.ID)
}

// hybridSettlement releases the reservation made at intake: reserved
// funds move to the destination's available balance.
type hybridSettlement struct {
	helpers *settlementHelpers
}

func (s *hybridSettlement) Process(ctx context.Context, tx pgx.Tx, event *domain.OutboxEvent, payload *services.OutboxPayload) error {
	if event.EventType != domain.EventPaymentReserved {
		return newInvariantViolation(fmt.Sprintf("unexpected event type %s for hybrid mode", event.EventType))
	}

	payment, err := s.helpers.lockPayment(ctx, tx, payload.PaymentID)
	if err != nil {
		return err
	}
	if payment.Status.Terminal() {
		return s.helpers.outbox.MarkProcessed(ctx, tx, event.ID)
	}

	source, destination, err := s.helpers.lockAccounts(ctx, tx, payload.SourceAccountID, payload.DestinationAccountID)
	if err != nil {
		return err
	}

	if source.ReservedCents < payload.AmountCents {
		return newInvariantViolation("reserved funds below payment amount")
	}

	source.ReservedCents -= payload.AmountCents
	source.Version++
	destination.AvailableCents += payload.AmountCents
	destination.Version++

	return s.helpers.complete(ctx, tx, event, payload, source, destination)
}

// eventualSettlement performs the full funds check that intake skipped.
// Insufficient funds here is a business rejection, not a failure: the
// payment is rejected and the event still counts as processed.
type eventualSettlement struct {
	helpers *settlementHelpers
}

func (s *eventualSettlement) Process(ctx context.Context, tx pgx.Tx, event *domain.OutboxEvent, payload *services.OutboxPayload) error {
	if event.EventType != domain.EventPaymentRequested {
		return newInvariantViolation(fmt.Sprintf("unexpected event type %s for eventual mode", event.EventType))
	}

	payment, err := s.helpers.lockPayment(ctx, tx, payload.PaymentID)
	if err != nil {
		return err
	}
	if payment.Status.Terminal() {
		return s.helpers.outbox.MarkProcessed(ctx, tx, event.ID)
	}

	source, destination, err := s.helpers.lockAccounts(ctx, tx, payload.SourceAccountID, payload.DestinationAccountID)
	if err != nil {
		return err
	}

	if source.AvailableCents < payload.AmountCents {
		if err := s.helpers.payments.UpdateStatus(ctx, tx, payload.PaymentID, domain.StatusRejected); err != nil {
			return err
		}
		if err := s.helpers.outbox.MarkProcessed(ctx, tx, event.ID); err != nil {
			return err
		}
		telemetry.PaymentsProcessed.Inc()
		return nil
	}

	source.AvailableCents -= payload.AmountCents
	source.Version++
	destination.AvailableCents += payload.AmountCents
	destination.Version++

	return s.helpers.complete(ctx, tx, event, payload, source, destination)
}
