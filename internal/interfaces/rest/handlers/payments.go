package handlers

import (
	"encoding/json"
	"net/http"
	"time"

	"github.com/psteixeira23/global-ledger-consistency-lab/internal/domain"
	"github.com/psteixeira23/global-ledger-consistency-lab/internal/interfaces/rest"
	"github.com/psteixeira23/global-ledger-consistency-lab/internal/telemetry"
)

// CreatePayment handles POST /v1/payments. The traceparent header, when
// present, travels verbatim into the outbox payload so worker spans can
// parent on the caller's trace.
func (h *Handlers) CreatePayment(w http.ResponseWriter, r *http.Request) {
	telemetry.PaymentsReceived.Inc()
	started := time.Now()
	defer func() {
		telemetry.RequestLatencyMS.Observe(float64(time.Since(started)) / float64(time.Millisecond))
	}()

	var req domain.CreatePaymentRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		rest.WriteError(w, domain.NewInvalidPaymentError("malformed request body"), h.logger)
		return
	}

	traceparent := r.Header.Get("traceparent")

	response, err := h.paymentService.CreatePayment(r.Context(), &req, traceparent)
	if err != nil {
		rest.WriteError(w, err, h.logger)
		return
	}

	rest.WriteJSON(w, http.StatusOK, response)
}
