package services

import (
	"context"
	"encoding/json"
	"log/slog"

	"github.com/jackc/pgx/v5"

	"github.com/psteixeira23/global-ledger-consistency-lab/internal/domain"
	"github.com/psteixeira23/global-ledger-consistency-lab/internal/infrastructure/persistence/postgres"
	"github.com/psteixeira23/global-ledger-consistency-lab/internal/telemetry"
)

// CreatePaymentService is the intake use case: validate, resolve
// idempotency, and run the mode strategy, all inside one transaction that
// also writes the idempotency row and (for non-strong modes) the outbox
// event.
type CreatePaymentService struct {
	db          *postgres.DB
	idempotency *postgres.IdempotencyRepository
	strategy    intakeStrategy
	mode        domain.ConsistencyMode
	logger      *slog.Logger
}

func NewCreatePaymentService(
	db *postgres.DB,
	accounts *postgres.AccountsRepository,
	payments *postgres.PaymentsRepository,
	idempotency *postgres.IdempotencyRepository,
	outbox *postgres.OutboxRepository,
	ledger *postgres.LedgerRepository,
	mode domain.ConsistencyMode,
	logger *slog.Logger,
) *CreatePaymentService {
	helpers := &intakeHelpers{
		accounts: accounts,
		payments: payments,
		outbox:   outbox,
		ledger:   ledger,
	}

	var strategy intakeStrategy
	switch mode {
	case domain.ModeStrong:
		strategy = &strongStrategy{helpers: helpers}
	case domain.ModeEventual:
		strategy = &eventualStrategy{helpers: helpers}
	default:
		strategy = &hybridStrategy{helpers: helpers}
	}

	return &CreatePaymentService{
		db:          db,
		idempotency: idempotency,
		strategy:    strategy,
		mode:        mode,
		logger:      logger,
	}
}

// CreatePayment handles one intake request. Traceparent is the caller's
// trace context, forwarded verbatim into the outbox payload.
func (s *CreatePaymentService) CreatePayment(ctx context.Context, req *domain.CreatePaymentRequest, traceparent string) (*domain.PaymentResponse, error) {
	if err := req.Validate(); err != nil {
		return nil, err
	}
	requestHash := req.RequestHash()

	response, created, err := s.runTransaction(ctx, req, requestHash, traceparent)
	if err != nil {
		return nil, err
	}

	if created {
		telemetry.PaymentsProcessed.Inc()
		s.logger.Info("payment created",
			"payment_id", response.PaymentID,
			"status", string(response.Status),
			"mode", string(s.mode),
		)
	}

	return response, nil
}

func (s *CreatePaymentService) runTransaction(ctx context.Context, req *domain.CreatePaymentRequest, requestHash, traceparent string) (*domain.PaymentResponse, bool, error) {
	var response *domain.PaymentResponse
	created := false

	err := s.db.WithTransaction(ctx, func(ctx context.Context, tx pgx.Tx) error {
		replay, err := s.resolveIdempotency(ctx, tx, req.IdempotencyKey, requestHash)
		if err != nil {
			return err
		}
		if replay != nil {
			response = replay
			return nil
		}

		result, err := s.strategy.Execute(ctx, tx, req, requestHash, traceparent)
		if err != nil {
			return err
		}

		responseJSON, err := json.Marshal(result)
		if err != nil {
			return err
		}
		if err := s.idempotency.Save(ctx, tx, req.IdempotencyKey, requestHash, string(responseJSON)); err != nil {
			return err
		}

		response = result
		created = true
		return nil
	})

	if err != nil {
		if domainErr, ok := domain.IsDomainError(err); ok {
			return nil, false, domainErr
		}
		if postgres.IsUniqueViolation(err) {
			// A concurrent writer committed the same key first. Re-read
			// and replay its response if it is already visible.
			telemetry.OptimisticLockConflict.Inc()
			replay, replayErr := s.resolveIdempotency(ctx, s.db.Pool, req.IdempotencyKey, requestHash)
			if replayErr != nil {
				return nil, false, replayErr
			}
			if replay != nil {
				return replay, false, nil
			}
			return nil, false, domain.NewIdempotencyUnavailableError("idempotency key is being processed concurrently")
		}
		s.logger.Error("payment transaction failed", "error", err)
		return nil, false, domain.NewDependencyUnavailableError(err)
	}

	return response, created, nil
}

// resolveIdempotency returns the stored response for key when the request
// is a faithful replay, nil when the key is new, and a domain error on
// hash mismatch or a not-yet-visible response.
func (s *CreatePaymentService) resolveIdempotency(ctx context.Context, q postgres.Executor, key, requestHash string) (*domain.PaymentResponse, error) {
	existing, err := s.idempotency.Find(ctx, q, key)
	if err != nil {
		return nil, err
	}
	if existing == nil {
		return nil, nil
	}

	if existing.RequestHash != requestHash {
		return nil, domain.NewIdempotencyConflictError()
	}
	if existing.ResponseJSON == "" {
		return nil, domain.NewIdempotencyUnavailableError("original request still in progress")
	}

	var response domain.PaymentResponse
	if err := json.Unmarshal([]byte(existing.ResponseJSON), &response); err != nil {
		return nil, domain.NewIdempotencyUnavailableError("stored response is unreadable")
	}

	telemetry.IdempotencyReplay.Inc()
	return &response, nil
}
