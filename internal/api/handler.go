package api

import (
	"context"
	"encoding/json"
	"net/http"
	"strings"

	"github.com/go-chi/chi/v5"
	"github.com/rs/zerolog/log"

	"campaign-optimizer/internal/engine"
	"campaign-optimizer/internal/observability"
)

// Optimizer is what the HTTP surface needs from the engine.
type Optimizer interface {
	Sweep(ctx context.Context) engine.Summary
	LastSweep() (engine.Summary, bool)
	SavingsReport(ctx context.Context, userID string) (engine.SavingsReport, error)
}

type OptimizerHandler struct {
	Eng Optimizer
}

func NewOptimizerHandler(eng Optimizer) *OptimizerHandler {
	return &OptimizerHandler{Eng: eng}
}

type errorBody struct {
	Error string `json:"error"`
}

func writeJSON(w http.ResponseWriter, status int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(v)
}

// Sweep runs one sweep synchronously. The sweep is detached from the request
// context so a caller hanging up cannot abort it halfway.
func (h *OptimizerHandler) Sweep(w http.ResponseWriter, r *http.Request) {
	observability.SweepTriggers.WithLabelValues("http").Inc()
	sum := h.Eng.Sweep(context.WithoutCancel(r.Context()))
	if !sum.Success {
		writeJSON(w, http.StatusInternalServerError, sum)
		return
	}
	writeJSON(w, http.StatusOK, sum)
}

func (h *OptimizerHandler) LastSweep(w http.ResponseWriter, _ *http.Request) {
	sum, ok := h.Eng.LastSweep()
	if !ok {
		w.WriteHeader(http.StatusNoContent)
		return
	}
	writeJSON(w, http.StatusOK, sum)
}

func (h *OptimizerHandler) Savings(w http.ResponseWriter, r *http.Request) {
	userID := strings.TrimSpace(chi.URLParam(r, "userID"))
	if userID == "" {
		writeJSON(w, http.StatusBadRequest, errorBody{Error: "userID is required"})
		return
	}

	report, err := h.Eng.SavingsReport(r.Context(), userID)
	if err != nil {
		log.Error().Err(err).Str("user_id", userID).Msg("savings report failed")
		writeJSON(w, http.StatusInternalServerError, errorBody{Error: "savings report unavailable"})
		return
	}
	writeJSON(w, http.StatusOK, report)
}
