package handlers

import (
	"errors"
	"net/http"

	"github.com/go-chi/chi/v5"

	"github.com/badbeats/pickgen/internal/logic"
	"github.com/badbeats/pickgen/internal/models"
	"github.com/badbeats/pickgen/internal/store"
)

// TriggerIngestion runs one ingestion pass synchronously.
func (h *Handler) TriggerIngestion(w http.ResponseWriter, r *http.Request) {
	var req models.IngestionTriggerRequest
	if err := h.decodeBody(r, &req); err != nil {
		h.errorResponse(w, http.StatusBadRequest, "Invalid request: "+err.Error())
		return
	}
	days := req.HorizonDays
	if days == 0 {
		days = h.horizonDays
	}

	summary := h.ingestion.RunIngestion(r.Context(), days)
	status := http.StatusOK
	if summary.Status == logic.IngestionFailed {
		status = http.StatusBadGateway
	}
	h.jsonResponse(w, status, summary)
}

// TriggerGeneration runs one scheduled generation tick. Due games are
// dispatched to the worker pool; the response does not wait for them.
func (h *Handler) TriggerGeneration(w http.ResponseWriter, r *http.Request) {
	summary, err := h.generation.RunScheduledGeneration(r.Context())
	if err != nil {
		h.logger.Errorw("Triggered generation failed", "error", err)
		h.errorResponse(w, http.StatusInternalServerError, "Generation tick failed")
		return
	}
	h.jsonResponse(w, http.StatusAccepted, summary)
}

// TriggerEmergency runs one emergency sweep.
func (h *Handler) TriggerEmergency(w http.ResponseWriter, r *http.Request) {
	summary, err := h.generation.RunEmergencySweep(r.Context())
	if err != nil {
		h.logger.Errorw("Triggered emergency sweep failed", "error", err)
		h.errorResponse(w, http.StatusInternalServerError, "Emergency sweep failed")
		return
	}
	h.jsonResponse(w, http.StatusAccepted, summary)
}

// GenerateGame runs one claim-guarded generation for a game and returns
// the stored prediction.
func (h *Handler) GenerateGame(w http.ResponseWriter, r *http.Request) {
	gameID := chi.URLParam(r, "gameID")
	var req models.GenerateRequest
	if err := h.decodeBody(r, &req); err != nil {
		h.errorResponse(w, http.StatusBadRequest, "Invalid request: "+err.Error())
		return
	}

	pred, err := h.generation.GenerateNow(r.Context(), gameID, req.AgentID)
	if err != nil {
		var (
			ee *logic.EngineError
			ae *logic.AggregationError
		)
		switch {
		case errors.Is(err, store.ErrNotFound):
			h.errorResponse(w, http.StatusNotFound, "Game not found")
		case errors.Is(err, logic.ErrGenerationInProgress):
			h.errorResponse(w, http.StatusConflict, err.Error())
		case errors.As(err, &ee), errors.As(err, &ae):
			h.errorResponse(w, http.StatusBadGateway, err.Error())
		default:
			h.logger.Errorw("Manual generation failed", "game_id", gameID, "error", err)
			h.errorResponse(w, http.StatusInternalServerError, "Generation failed")
		}
		return
	}
	h.jsonResponse(w, http.StatusOK, pred)
}

// GetGameState returns the generation state of a game. Absent states are
// reported as pending.
func (h *Handler) GetGameState(w http.ResponseWriter, r *http.Request) {
	gameID := chi.URLParam(r, "gameID")
	agentID := r.URL.Query().Get("agent_id")
	if agentID == "" {
		agentID = h.generation.AgentID()
	}

	st, err := h.states.Get(r.Context(), agentID, gameID)
	if err != nil {
		h.logger.Errorw("Failed to read generation state", "game_id", gameID, "error", err)
		h.errorResponse(w, http.StatusInternalServerError, "Failed to read state")
		return
	}
	if st.Status == "" {
		st.Status = models.StatusPending
	}
	st.AgentID, st.GameID = agentID, gameID
	h.jsonResponse(w, http.StatusOK, st)
}

// ListFailures returns every game left FAILED for the agent.
func (h *Handler) ListFailures(w http.ResponseWriter, r *http.Request) {
	agentID := r.URL.Query().Get("agent_id")
	if agentID == "" {
		agentID = h.generation.AgentID()
	}

	failed, err := h.states.ListFailed(r.Context(), agentID)
	if err != nil {
		h.logger.Errorw("Failed to list failures", "error", err)
		h.errorResponse(w, http.StatusInternalServerError, "Failed to list failures")
		return
	}
	if failed == nil {
		failed = []models.GenerationState{}
	}
	h.jsonResponse(w, http.StatusOK, map[string]interface{}{
		"agent_id": agentID,
		"failures": failed,
	})
}
