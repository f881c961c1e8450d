package handlers

import (
	"net/http"

	"github.com/psteixeira23/global-ledger-consistency-lab/internal/interfaces/rest"
)

func (h *Handlers) Health(w http.ResponseWriter, r *http.Request) {
	rest.WriteJSON(w, http.StatusOK, map[string]string{"status": "ok"})
}

// Stats serves GET /internal/stats for experiment tooling.
func (h *Handlers) Stats(w http.ResponseWriter, r *http.Request) {
	stats, err := h.statsService.Snapshot(r.Context())
	if err != nil {
		rest.WriteError(w, err, h.logger)
		return
	}

	rest.WriteJSON(w, http.StatusOK, stats)
}
