package domain

import (
	"crypto/sha256"
	"encoding/hex"
	"encoding/json"

	"github.com/go-playground/validator"
)

var validate = validator.New()

// CreatePaymentRequest is the body of POST /v1/payments. Field ranges are
// enforced by the validator tags; the JSON field order is the canonical
// (sorted-key) serialization used for the request hash.
type CreatePaymentRequest struct {
	AmountCents          int64         `json:"amount_cents" validate:"gt=0,lte=50000000"`
	DestinationAccountID string        `json:"destination_account_id" validate:"min=3,max=64"`
	IdempotencyKey       string        `json:"idempotency_key" validate:"min=8,max=128"`
	Method               PaymentMethod `json:"method" validate:"oneof=pix ted"`
	SourceAccountID      string        `json:"source_account_id" validate:"min=3,max=64"`
}

// Validate checks field ranges and rejects self-transfers.
func (r *CreatePaymentRequest) Validate() error {
	if err := validate.Struct(r); err != nil {
		return NewInvalidPaymentError("invalid payment request: " + err.Error())
	}
	if r.SourceAccountID == r.DestinationAccountID {
		return NewInvalidPaymentError("source and destination accounts must differ")
	}
	return nil
}

// RequestHash returns the SHA-256 of the canonical JSON serialization of
// the request: keys sorted, no whitespace. Two submissions hash equal iff
// they are the same logical request.
func (r *CreatePaymentRequest) RequestHash() string {
	encoded, _ := json.Marshal(r)
	sum := sha256.Sum256(encoded)
	return hex.EncodeToString(sum[:])
}
