package domain

import (
	"errors"
	"fmt"
	"net/http"
)

type ErrorCode string

const (
	ErrCodeInsufficientFunds      ErrorCode = "INSUFFICIENT_FUNDS"
	ErrCodeInvalidPayment         ErrorCode = "INVALID_PAYMENT"
	ErrCodeIdempotencyConflict    ErrorCode = "IDEMPOTENCY_CONFLICT"
	ErrCodeIdempotencyUnavailable ErrorCode = "IDEMPOTENCY_UNAVAILABLE"
	ErrCodeDependencyUnavailable  ErrorCode = "DEPENDENCY_UNAVAILABLE"
	ErrCodeInvariantViolation     ErrorCode = "INVARIANT_VIOLATION"
)

// Error is a domain-level failure that maps directly to an HTTP response.
// Storage faults are re-labeled into one of these at the transaction
// boundary; they never leak driver errors to the client.
type Error struct {
	Code       ErrorCode
	Message    string
	HTTPStatus int
	Err        error
}

func (e *Error) Error() string {
	if e.Err != nil {
		return fmt.Sprintf("%s: %v", e.Message, e.Err)
	}
	return e.Message
}

func (e *Error) Unwrap() error {
	return e.Err
}

func NewInvalidPaymentError(message string) *Error {
	return &Error{
		Code:       ErrCodeInvalidPayment,
		Message:    message,
		HTTPStatus: http.StatusUnprocessableEntity,
	}
}

func NewInsufficientFundsError() *Error {
	return &Error{
		Code:       ErrCodeInsufficientFunds,
		Message:    "source account has insufficient available funds",
		HTTPStatus: http.StatusUnprocessableEntity,
	}
}

func NewIdempotencyConflictError() *Error {
	return &Error{
		Code:       ErrCodeIdempotencyConflict,
		Message:    "idempotency key reused with a different request body",
		HTTPStatus: http.StatusConflict,
	}
}

func NewIdempotencyUnavailableError(message string) *Error {
	return &Error{
		Code:       ErrCodeIdempotencyUnavailable,
		Message:    message,
		HTTPStatus: http.StatusServiceUnavailable,
	}
}

func NewDependencyUnavailableError(err error) *Error {
	return &Error{
		Code:       ErrCodeDependencyUnavailable,
		Message:    "database unavailable",
		HTTPStatus: http.StatusServiceUnavailable,
		Err:        err,
	}
}

// IsDomainError unwraps err into a *Error when one is present in the chain.
func IsDomainError(err error) (*Error, bool) {
	var domainErr *Error
	ok := errors.As(err, &domainErr)
	return domainErr, ok
}
