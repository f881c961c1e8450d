package rest

import (
	"encoding/json"
	"errors"
	"io"
	"log/slog"
	"net/http/httptest"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/psteixeira23/global-ledger-consistency-lab/internal/domain"
)

func testLogger() *slog.Logger {
	return slog.New(slog.NewTextHandler(io.Discard, nil))
}

func TestWriteError_DomainErrors(t *testing.T) {
	tests := []struct {
		name       string
		err        error
		wantStatus int
		wantCode   string
	}{
		{"invalid payment", domain.NewInvalidPaymentError("bad amount"), 422, "INVALID_PAYMENT"},
		{"insufficient funds", domain.NewInsufficientFundsError(), 422, "INSUFFICIENT_FUNDS"},
		{"idempotency conflict", domain.NewIdempotencyConflictError(), 409, "IDEMPOTENCY_CONFLICT"},
		{"idempotency unavailable", domain.NewIdempotencyUnavailableError("in progress"), 503, "IDEMPOTENCY_UNAVAILABLE"},
		{"dependency unavailable", domain.NewDependencyUnavailableError(errors.New("conn refused")), 503, "DEPENDENCY_UNAVAILABLE"},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			recorder := httptest.NewRecorder()
			WriteError(recorder, tt.err, testLogger())

			assert.Equal(t, tt.wantStatus, recorder.Code)
			assert.Equal(t, "application/json", recorder.Header().Get("Content-Type"))

			var body ErrorResponse
			require.NoError(t, json.Unmarshal(recorder.Body.Bytes(), &body))
			assert.Equal(t, tt.wantCode, body.ErrorCode)
			assert.NotEmpty(t, body.Message)
		})
	}
}

func TestWriteError_UnclassifiedErrorNeverLeaks(t *testing.T) {
	recorder := httptest.NewRecorder()
	WriteError(recorder, errors.New("pq: connection reset by peer"), testLogger())

	assert.Equal(t, 503, recorder.Code)

	var body ErrorResponse
	require.NoError(t, json.Unmarshal(recorder.Body.Bytes(), &body))
	assert.Equal(t, "DEPENDENCY_UNAVAILABLE", body.ErrorCode)
	assert.NotContains(t, body.Message, "pq:")
}
