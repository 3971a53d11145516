package handlers

import (
	"context"
	"log/slog"
	"net/http"
	"time"

	"fableturn/internal/engine"
)

// GameResponse is the body returned by the undo and reset endpoints.
type GameResponse struct {
	Restored bool   `json:"restored,omitempty"`
	Turn     int    `json:"turn"`
	Message  string `json:"message,omitempty"`
	Error    string `json:"error,omitempty"`
}

// UndoHandler handles POST /v1/undo: restore the previous turn's snapshot.
type UndoHandler struct {
	engine *engine.Engine
	logger *slog.Logger
}

func NewUndoHandler(e *engine.Engine, logger *slog.Logger) *UndoHandler {
	return &UndoHandler{engine: e, logger: logger}
}

func (h *UndoHandler) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	w.Header().Set("Content-Type", "application/json")

	if r.Method != http.MethodPost {
		writeJSON(w, h.logger, http.StatusMethodNotAllowed, GameResponse{
			Error: "Method not allowed. Only POST is supported.",
		})
		return
	}

	ctx, cancel := context.WithTimeout(r.Context(), 30*time.Second)
	defer cancel()

	restored, err := h.engine.Undo(ctx)
	if err != nil {
		h.logger.Error("Undo failed", "error", err)
		writeJSON(w, h.logger, http.StatusInternalServerError, GameResponse{
			Error: "Undo failed.",
		})
		return
	}

	resp := GameResponse{Restored: restored, Turn: h.engine.Session().Turn}
	if !restored {
		resp.Message = "No snapshot to restore."
	}
	writeJSON(w, h.logger, http.StatusOK, resp)
}

// ResetHandler handles POST /v1/reset: clear the world entirely.
type ResetHandler struct {
	engine *engine.Engine
	logger *slog.Logger
}

func NewResetHandler(e *engine.Engine, logger *slog.Logger) *ResetHandler {
	return &ResetHandler{engine: e, logger: logger}
}

func (h *ResetHandler) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	w.Header().Set("Content-Type", "application/json")

	if r.Method != http.MethodPost {
		writeJSON(w, h.logger, http.StatusMethodNotAllowed, GameResponse{
			Error: "Method not allowed. Only POST is supported.",
		})
		return
	}

	ctx, cancel := context.WithTimeout(r.Context(), 30*time.Second)
	defer cancel()

	if err := h.engine.ResetWorld(ctx); err != nil {
		h.logger.Error("World reset failed", "error", err)
		writeJSON(w, h.logger, http.StatusInternalServerError, GameResponse{
			Error: "Reset failed.",
		})
		return
	}

	h.logger.Info("World reset")
	writeJSON(w, h.logger, http.StatusOK, GameResponse{
		Turn:    0,
		Message: "World reset.",
	})
}
