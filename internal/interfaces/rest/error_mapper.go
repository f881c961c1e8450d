package rest

import (
	"encoding/json"
	"log/slog"
	"net/http"

	"github.com/psteixeira23/global-ledger-consistency-lab/internal/domain"
)

// ErrorResponse is the error body contract: {error_code, message}.
type ErrorResponse struct {
	ErrorCode string `json:"error_code"`
	Message   string `json:"message"`
}

// WriteError maps domain errors to HTTP responses; anything else is
// labeled DEPENDENCY_UNAVAILABLE so driver errors never reach the client.
func WriteError(w http.ResponseWriter, err error, logger *slog.Logger) {
	statusCode := http.StatusServiceUnavailable
	response := ErrorResponse{
		ErrorCode: string(domain.ErrCodeDependencyUnavailable),
		Message:   "dependency unavailable",
	}

	if domainErr, ok := domain.IsDomainError(err); ok {
		statusCode = domainErr.HTTPStatus
		response.ErrorCode = string(domainErr.Code)
		response.Message = domainErr.Message
	} else {
		logger.Error("unclassified handler error", "error", err)
	}

	WriteJSON(w, statusCode, response)
}

func WriteJSON(w http.ResponseWriter, statusCode int, body any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(statusCode)
	json.NewEncoder(w).Encode(body) //nolint:errcheck // headers already sent
}
