// Package handlers exposes the engine over HTTP: one turn per request,
// plus undo, reset, and health.
package handlers

import (
	"context"
	"encoding/json"
	"log/slog"
	"net/http"
	"time"

	"fableturn/internal/engine"
	"fableturn/pkg/outcome"
)

// turnTimeout bounds one full turn including all oracle calls.
const turnTimeout = 5 * time.Minute

// TurnRequest is the body of POST /v1/turn.
type TurnRequest struct {
	Input   string `json:"input"`
	Genesis bool   `json:"genesis,omitempty"`
}

// TurnResponse wraps the turn result with an optional error message.
type TurnResponse struct {
	*outcome.TurnResult
	Turn  int    `json:"turn,omitempty"`
	Error string `json:"error,omitempty"`
}

// TurnHandler handles turn requests.
type TurnHandler struct {
	engine *engine.Engine
	logger *slog.Logger
}

func NewTurnHandler(e *engine.Engine, logger *slog.Logger) *TurnHandler {
	return &TurnHandler{engine: e, logger: logger}
}

func (h *TurnHandler) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	w.Header().Set("Content-Type", "application/json")

	if r.Method != http.MethodPost {
		h.logger.Warn("Method not allowed for turn endpoint",
			"method", r.Method,
			"path", r.URL.Path,
			"remote_addr", r.RemoteAddr)
		writeJSON(w, h.logger, http.StatusMethodNotAllowed, TurnResponse{
			Error: "Method not allowed. Only POST is supported.",
		})
		return
	}

	var req TurnRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		h.logger.Warn("Invalid turn request body", "error", err)
		writeJSON(w, h.logger, http.StatusBadRequest, TurnResponse{
			Error: "Invalid request body. Expected JSON with 'input' field.",
		})
		return
	}
	if req.Input == "" {
		writeJSON(w, h.logger, http.StatusBadRequest, TurnResponse{
			Error: "Input cannot be empty.",
		})
		return
	}

	h.logger.Info("Turn requested", "remote_addr", r.RemoteAddr)

	ctx, cancel := context.WithTimeout(r.Context(), turnTimeout)
	defer cancel()

	result, err := h.engine.ProcessInput(ctx, req.Input, req.Genesis)
	if err != nil {
		h.logger.Error("Turn processing failed", "error", err)
		writeJSON(w, h.logger, http.StatusInternalServerError, TurnResponse{
			Error: "Failed to process turn. Please try again.",
		})
		return
	}

	writeJSON(w, h.logger, http.StatusOK, TurnResponse{
		TurnResult: result,
		Turn:       h.engine.Session().Turn,
	})
}

func writeJSON(w http.ResponseWriter, logger *slog.Logger, status int, v any) {
	w.WriteHeader(status)
	if err := json.NewEncoder(w).Encode(v); err != nil {
		logger.Error("Error encoding response", "error", err)
	}
}
