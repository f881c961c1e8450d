package domain

import "time"

// ConsistencyMode selects how a payment moves funds: fully inside the
// intake transaction, via a synchronous reservation finalized by the
// worker, or entirely through the outbox.
type ConsistencyMode string

const (
	ModeStrong   ConsistencyMode = "strong"
	ModeHybrid   ConsistencyMode = "hybrid"
	ModeEventual ConsistencyMode = "eventual"
)

func (m ConsistencyMode) Valid() bool {
	switch m {
	case ModeStrong, ModeHybrid, ModeEventual:
		return true
	}
	return false
}

type PaymentStatus string

const (
	StatusReceived  PaymentStatus = "received"
	StatusReserved  PaymentStatus = "reserved"
	StatusCompleted PaymentStatus = "completed"
	StatusRejected  PaymentStatus = "rejected"
)

// Terminal reports whether the status is final. Terminal payments are
// never transitioned again; workers replay events against them as no-ops.
func (s PaymentStatus) Terminal() bool {
	return s == StatusCompleted || s == StatusRejected
}

type PaymentMethod string

const (
	MethodPix PaymentMethod = "pix"
	MethodTed PaymentMethod = "ted"
)

type LedgerDirection string

const (
	DirectionDebit  LedgerDirection = "DEBIT"
	DirectionCredit LedgerDirection = "CREDIT"
)

type OutboxStatus string

const (
	OutboxPending    OutboxStatus = "pending"
	OutboxProcessing OutboxStatus = "processing"
	OutboxProcessed  OutboxStatus = "processed"
	OutboxDead       OutboxStatus = "dead"
)

type OutboxEventType string

const (
	EventPaymentReserved  OutboxEventType = "PAYMENT_RESERVED"
	EventPaymentRequested OutboxEventType = "PAYMENT_REQUESTED"
)

type Account struct {
	ID             string
	AvailableCents int64
	ReservedCents  int64
	Version        int32
	CreatedAt      time.Time
}

type Payment struct {
	ID                   string
	IdempotencyKey       string
	RequestHash          string
	SourceAccountID      string
	DestinationAccountID string
	AmountCents          int64
	Method               PaymentMethod
	Status               PaymentStatus
	CreatedAt            time.Time
}

type IdempotencyRecord struct {
	Key          string
	RequestHash  string
	ResponseJSON string
	CreatedAt    time.Time
}

type OutboxEvent struct {
	ID            string
	AggregateType string
	AggregateID   string
	EventType     OutboxEventType
	PayloadJSON   string
	Status        OutboxStatus
	Attempts      int32
	NextRetryAt   *time.Time
	CreatedAt     time.Time
}

type LedgerEntry struct {
	ID          string
	PaymentID   string
	AccountID   string
	Direction   LedgerDirection
	AmountCents int64
	CreatedAt   time.Time
}

// PaymentResponse is the body returned by POST /v1/payments and the JSON
// cached in the idempotency row for replays.
type PaymentResponse struct {
	PaymentID string        `json:"payment_id"`
	Status    PaymentStatus `json:"status"`
}
