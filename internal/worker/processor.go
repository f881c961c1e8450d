package worker

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"time"

	"github.com/jackc/pgx/v5"
	"go.opentelemetry.io/otel/trace"

	"github.com/psteixeira23/global-ledger-consistency-lab/internal/application/services"
	"github.com/psteixeira23/global-ledger-consistency-lab/internal/domain"
	"github.com/psteixeira23/global-ledger-consistency-lab/internal/infrastructure/persistence/postgres"
	"github.com/psteixeira23/global-ledger-consistency-lab/internal/telemetry"
)

// WorkerError marks a permanent failure: the event is dead-lettered
// immediately instead of retried. Everything else is treated as transient.
type WorkerError struct {
	Code    domain.ErrorCode
	Message string
}

func (e *WorkerError) Error() string {
	return fmt.Sprintf("%s: %s", e.Code, e.Message)
}

func newInvariantViolation(message string) *WorkerError {
	return &WorkerError{Code: domain.ErrCodeInvariantViolation, Message: message}
}

// FaultInjector is the fault-injection surface the processor consumes;
// *chaos.Injector is the production implementation.
type FaultInjector interface {
	MaybeApplyDBDelay(eventID string, attempt int32)
	ShouldRaiseWorkerException(eventID string, attempt int32) bool
	ShouldFailRedisSimulation(eventID string, attempt int32) bool
}

// Processor drains the outbox. Batches are claimed under a lease in one
// transaction; each claimed event is then processed in its own
// transaction so one poisoned event cannot roll back its neighbors.
type Processor struct {
	db        *postgres.DB
	outbox    *postgres.OutboxRepository
	strategy  settlementStrategy
	injector  FaultInjector
	tracer    trace.Tracer
	mode      domain.ConsistencyMode
	batchSize int
	leaseTTL  time.Duration
	interval  time.Duration
	logger    *slog.Logger
}

func NewProcessor(
	db *postgres.DB,
	accounts *postgres.AccountsRepository,
	payments *postgres.PaymentsRepository,
	outbox *postgres.OutboxRepository,
	ledger *postgres.LedgerRepository,
	mode domain.ConsistencyMode,
	injector FaultInjector,
	tracer trace.Tracer,
	batchSize int,
	leaseTTL time.Duration,
	interval time.Duration,
	logger *slog.Logger,
) *Processor {
	helpers := &settlementHelpers{
		accounts: accounts,
		payments: payments,
		outbox:   outbox,
		ledger:   ledger,
	}

	var strategy settlementStrategy
	switch mode {
	case domain.ModeStrong:
		strategy = &strongSettlement{helpers: helpers}
	case domain.ModeEventual:
		strategy = &eventualSettlement{helpers: helpers}
	default:
		strategy = &hybridSettlement{helpers: helpers}
	}

	return &Processor{
		db:        db,
		outbox:    outbox,
		strategy:  strategy,
		injector:  injector,
		tracer:    tracer,
		mode:      mode,
		batchSize: batchSize,
		leaseTTL:  leaseTTL,
		interval:  interval,
		logger:    logger,
	}
}

// Start runs the polling loop until ctx is cancelled. Shutdown is
// cooperative: the in-flight event's transaction finishes first.
func (p *Processor) Start(ctx context.Context) {
	p.logger.Info("outbox processor started",
		"mode", string(p.mode),
		"poll_interval", p.interval,
		"batch_size", p.batchSize,
		"lease_ttl", p.leaseTTL,
	)
	ticker := time.NewTicker(p.interval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			p.logger.Info("outbox processor stopping")
			return
		case <-ticker.C:
			if _, err := p.ProcessAvailableEvents(ctx); err != nil {
				p.logger.Error("outbox batch failed", "error", err)
			}
		}
	}
}

// ProcessAvailableEvents claims one batch and processes every claimed
// event. Returns the number of events claimed.
func (p *Processor) ProcessAvailableEvents(ctx context.Context) (int, error) {
	ids, err := p.claimBatch(ctx)
	if err != nil {
		return 0, err
	}

	for _, id := range ids {
		p.processEventByID(ctx, id)
	}

	return len(ids), nil
}

func (p *Processor) claimBatch(ctx context.Context) ([]string, error) {
	var ids []string
	err := p.db.WithTransaction(ctx, func(ctx context.Context, tx pgx.Tx) error {
		claimed, err := p.outbox.ClaimBatch(ctx, tx, p.batchSize, p.leaseTTL)
		if err != nil {
			return err
		}
		ids = claimed
		return nil
	})
	if err != nil {
		return nil, fmt.Errorf("claim outbox batch: %w", err)
	}
	return ids, nil
}

func (p *Processor) processEventByID(ctx context.Context, eventID string) {
	err := p.db.WithTransaction(ctx, func(ctx context.Context, tx pgx.Tx) error {
		event, err := p.outbox.FindByIDForUpdate(ctx, tx, eventID)
		if err != nil {
			if errors.Is(err, postgres.ErrEventNotFound) {
				return nil
			}
			return err
		}
		return p.processEvent(ctx, tx, event)
	})
	if err == nil {
		return
	}

	var workerErr *WorkerError
	if errors.As(err, &workerErr) {
		p.handlePermanentFailure(ctx, eventID, workerErr)
		return
	}
	p.handleTransientFailure(ctx, eventID, err)
}

func (p *Processor) processEvent(ctx context.Context, tx pgx.Tx, event *domain.OutboxEvent) error {
	payload, err := parsePayload(event.PayloadJSON)
	if err != nil {
		return err
	}

	attempt := event.Attempts + 1

	spanCtx := ctx
	if payload.Traceparent != nil {
		spanCtx = telemetry.ExtractTraceparent(ctx, *payload.Traceparent)
	}
	spanCtx, span := p.tracer.Start(spanCtx, "worker.process_event")
	defer span.End()

	p.injector.MaybeApplyDBDelay(event.ID, attempt)
	if p.injector.ShouldRaiseWorkerException(event.ID, attempt) {
		return fmt.Errorf("injected worker failure for event %s attempt %d", event.ID, attempt)
	}
	if p.injector.ShouldFailRedisSimulation(event.ID, attempt) {
		return fmt.Errorf("injected cache failure for event %s attempt %d", event.ID, attempt)
	}

	return p.strategy.Process(spanCtx, tx, event, payload)
}

// handlePermanentFailure dead-letters the event in its own transaction.
func (p *Processor) handlePermanentFailure(ctx context.Context, eventID string, workerErr *WorkerError) {
	err := p.db.WithTransaction(ctx, func(ctx context.Context, tx pgx.Tx) error {
		if _, err := p.outbox.FindByIDForUpdate(ctx, tx, eventID); err != nil {
			if errors.Is(err, postgres.ErrEventNotFound) {
				return nil
			}
			return err
		}
		return p.outbox.MarkDead(ctx, tx, eventID)
	})
	if err != nil {
		p.logger.Error("failed to dead-letter event", "event_id", eventID, "error", err)
		return
	}

	telemetry.InvariantViolation.Inc()
	p.logger.Error("event dead-lettered",
		"event_id", eventID,
		"code", string(workerErr.Code),
		"reason", workerErr.Message,
	)
}

// handleTransientFailure schedules a retry with bounded exponential
// backoff, or dead-letters once the attempt cap is reached.
func (p *Processor) handleTransientFailure(ctx context.Context, eventID string, cause error) {
	var status domain.OutboxStatus
	found := false
	err := p.db.WithTransaction(ctx, func(ctx context.Context, tx pgx.Tx) error {
		event, err := p.outbox.FindByIDForUpdate(ctx, tx, eventID)
		if err != nil {
			if errors.Is(err, postgres.ErrEventNotFound) {
				return nil
			}
			return err
		}
		found = true

		nextRetryAt := time.Now().UTC().Add(RetryBackoff(event.Attempts))
		status, err = p.outbox.MarkRetry(ctx, tx, eventID, nextRetryAt)
		return err
	})
	if err != nil {
		p.logger.Error("failed to schedule retry", "event_id", eventID, "error", err)
		return
	}
	if !found {
		return
	}

	if status == domain.OutboxDead {
		p.logger.Error("event exhausted retries", "event_id", eventID, "error", cause)
		return
	}

	telemetry.OutboxRetry.Inc()
	p.logger.Warn("event scheduled for retry", "event_id", eventID, "error", cause)
}

// RetryBackoff returns the delay before the next attempt:
// 2^min(attempts+1, 6) seconds, capped at 64s.
func RetryBackoff(attempts int32) time.Duration {
	exponent := attempts + 1
	if exponent > 6 {
		exponent = 6
	}
	return time.Duration(int64(1)<<exponent) * time.Second
}

func parsePayload(payloadJSON string) (*services.OutboxPayload, error) {
	var payload services.OutboxPayload
	if err := json.Unmarshal([]byte(payloadJSON), &payload); err != nil {
		return nil, newInvariantViolation("malformed event payload")
	}

	if payload.PaymentID == "" {
		return nil, newInvariantViolation("missing payload field: payment_id")
	}
	if payload.SourceAccountID == "" {
		return nil, newInvariantViolation("missing payload field: source_account_id")
	}
	if payload.DestinationAccountID == "" {
		return nil, newInvariantViolation("missing payload field: destination_account_id")
	}
	if payload.AmountCents <= 0 {
		return nil, newInvariantViolation("missing payload field: amount_cents")
	}

	return &payload, nil
}
