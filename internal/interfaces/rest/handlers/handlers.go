package handlers

import (
	"log/slog"
	"net/http"

	"github.com/psteixeira23/global-ledger-consistency-lab/internal/application/services"
	"github.com/psteixeira23/global-ledger-consistency-lab/internal/telemetry"
)

type Handlers struct {
	paymentService *services.CreatePaymentService
	statsService   *services.StatsService
	logger         *slog.Logger
}

func NewHandlers(
	paymentService *services.CreatePaymentService,
	statsService *services.StatsService,
	logger *slog.Logger,
) *Handlers {
	return &Handlers{
		paymentService: paymentService,
		statsService:   statsService,
		logger:         logger,
	}
}

// Register wires all routes onto the mux.
func (h *Handlers) Register(mux *http.ServeMux) {
	mux.HandleFunc("POST /v1/payments", h.CreatePayment)
	mux.HandleFunc("GET /health", h.Health)
	mux.HandleFunc("GET /internal/stats", h.Stats)
	mux.Handle("GET /metrics", telemetry.MetricsHandler())
}
