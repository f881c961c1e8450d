package services

import (
	"context"
	"encoding/json"
	"fmt"
	"strings"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"

	"github.com/psteixeira23/global-ledger-consistency-lab/internal/domain"
	"github.com/psteixeira23/global-ledger-consistency-lab/internal/infrastructure/persistence/postgres"
)

// NewID returns an entity id with the given prefix, e.g. "pay-6f0c...".
func NewID(prefix string) string {
	return prefix + "-" + strings.ReplaceAll(uuid.New().String(), "-", "")
}

// OutboxPayload is the canonical event body shared by intake (emit) and
// worker (consume). Field order matches the sorted-key JSON form.
type OutboxPayload struct {
	AmountCents          int64   `json:"amount_cents"`
	DestinationAccountID string  `json:"destination_account_id"`
	PaymentID            string  `json:"payment_id"`
	SourceAccountID      string  `json:"source_account_id"`
	Traceparent          *string `json:"traceparent"`
}

func (p *OutboxPayload) MarshalCanonical() (string, error) {
	encoded, err := json.Marshal(p)
	if err != nil {
		return "", fmt.Errorf("marshal outbox payload: %w", err)
	}
	return string(encoded), nil
}

// LockAccountPair locks both accounts in ascending id order and returns
// them as (source, destination). This is the only place account row locks
// are taken; the fixed ordering is what makes symmetric transfers
// deadlock-free. Missing accounts surface as postgres.ErrAccountNotFound
// for the caller to label.
func LockAccountPair(
	ctx context.Context,
	tx pgx.Tx,
	accounts *postgres.AccountsRepository,
	sourceID, destinationID string,
) (*domain.Account, *domain.Account, error) {
	firstID, secondID := sourceID, destinationID
	if firstID > secondID {
		firstID, secondID = secondID, firstID
	}

	first, err := accounts.FindByIDForUpdate(ctx, tx, firstID)
	if err != nil {
		return nil, nil, err
	}
	second, err := accounts.FindByIDForUpdate(ctx, tx, secondID)
	if err != nil {
		return nil, nil, err
	}

	if first.ID == sourceID {
		return first, second, nil
	}
	return second, first, nil
}

// AppendLedgerPair writes the DEBIT/CREDIT pair for a movement of
// amountCents from source to destination. Both rows commit together with
// the balance mutations of the enclosing transaction.
func AppendLedgerPair(
	ctx context.Context,
	tx pgx.Tx,
	ledger *postgres.LedgerRepository,
	paymentID, sourceID, destinationID string,
	amountCents int64,
) error {
	debit := &domain.LedgerEntry{
		ID:          NewID("led"),
		PaymentID:   paymentID,
		AccountID:   sourceID,
		Direction:   domain.DirectionDebit,
		AmountCents: amountCents,
	}
	if err := ledger.Append(ctx, tx, debit); err != nil {
		return err
	}

	credit := &domain.LedgerEntry{
		ID:          NewID("led"),
		PaymentID:   paymentID,
		AccountID:   destinationID,
		Direction:   domain.DirectionCredit,
		AmountCents: amountCents,
	}
	return ledger.Append(ctx, tx, credit)
}
