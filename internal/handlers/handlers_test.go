package handlers

import (
	"context"
	"log/slog"
	"net/http"
	"net/http/httptest"
	"path/filepath"
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"fableturn/internal/engine"
	"fableturn/internal/oracle"
	"fableturn/internal/store"
	"fableturn/pkg/entity"
)

func newTestEngine(t *testing.T) (*engine.Engine, store.Store) {
	t.Helper()
	dir := t.TempDir()
	dbPath := filepath.Join(dir, "world.db")
	savesDir := filepath.Join(dir, "saves")
	s, err := store.NewSQLiteStore(context.Background(), dbPath, savesDir, slog.Default())
	require.NoError(t, err)
	t.Cleanup(func() { s.Close() })

	mock := oracle.NewMockOracle()
	mock.GenerateFunc = func(ctx context.Context, prompt string, role oracle.Role, opts oracle.Options) (*oracle.Response, error) {
		if strings.Contains(prompt, "interpret player commands") {
			return &oracle.Response{Text: `{"understanding": "CLEAR", "normalized_input": "go to B", "complexity": "TRIVIAL"}`}, nil
		}
		return &oracle.Response{Text: "{}"}, nil
	}

	eng, err := engine.New(context.Background(), engine.Config{
		Store:    s,
		Oracle:   mock,
		GameID:   "game1",
		DBPath:   dbPath,
		SavesDir: savesDir,
		Logger:   slog.Default(),
	})
	require.NoError(t, err)

	ctx := context.Background()
	for _, e := range []*entity.Entity{
		{ID: "loc_a", Type: entity.TypeLocation, Name: entity.Name{Display: "A"}, ConnectedLocationIDs: []string{"loc_b"}},
		{ID: "loc_b", Type: entity.TypeLocation, Name: entity.Name{Display: "B"}, ConnectedLocationIDs: []string{"loc_a"}},
		{ID: "player", Type: entity.TypePlayer, Name: entity.Name{Display: "You"}, State: entity.State{CurrentLocationID: "loc_a"}},
	} {
		require.NoError(t, s.CreateEntity(ctx, e))
	}
	return eng, s
}

func TestTurnHandler(t *testing.T) {
	eng, _ := newTestEngine(t)
	handler := NewTurnHandler(eng, slog.Default())

	req := httptest.NewRequest(http.MethodPost, "/v1/turn", strings.NewReader(`{"input": "go to B"}`))
	w := httptest.NewRecorder()
	handler.ServeHTTP(w, req)

	assert.Equal(t, http.StatusOK, w.Code)
	assert.Contains(t, w.Body.String(), "narrative")
	assert.Contains(t, w.Body.String(), `"turn":1`)
}

func TestTurnHandlerRejectsGet(t *testing.T) {
	eng, _ := newTestEngine(t)
	handler := NewTurnHandler(eng, slog.Default())

	req := httptest.NewRequest(http.MethodGet, "/v1/turn", nil)
	w := httptest.NewRecorder()
	handler.ServeHTTP(w, req)

	assert.Equal(t, http.StatusMethodNotAllowed, w.Code)
}

func TestTurnHandlerRejectsEmptyInput(t *testing.T) {
	eng, _ := newTestEngine(t)
	handler := NewTurnHandler(eng, slog.Default())

	req := httptest.NewRequest(http.MethodPost, "/v1/turn", strings.NewReader(`{"input": ""}`))
	w := httptest.NewRecorder()
	handler.ServeHTTP(w, req)

	assert.Equal(t, http.StatusBadRequest, w.Code)
}

func TestUndoHandlerWithoutSnapshot(t *testing.T) {
	eng, _ := newTestEngine(t)
	handler := NewUndoHandler(eng, slog.Default())

	req := httptest.NewRequest(http.MethodPost, "/v1/undo", nil)
	w := httptest.NewRecorder()
	handler.ServeHTTP(w, req)

	assert.Equal(t, http.StatusOK, w.Code)
	assert.Contains(t, w.Body.String(), "No snapshot to restore.")
}

func TestUndoHandlerRestoresTurn(t *testing.T) {
	eng, _ := newTestEngine(t)

	turn := NewTurnHandler(eng, slog.Default())
	req := httptest.NewRequest(http.MethodPost, "/v1/turn", strings.NewReader(`{"input": "go to B"}`))
	w := httptest.NewRecorder()
	turn.ServeHTTP(w, req)
	require.Equal(t, http.StatusOK, w.Code)

	undo := NewUndoHandler(eng, slog.Default())
	req = httptest.NewRequest(http.MethodPost, "/v1/undo", nil)
	w = httptest.NewRecorder()
	undo.ServeHTTP(w, req)

	assert.Equal(t, http.StatusOK, w.Code)
	assert.Contains(t, w.Body.String(), `"restored":true`)
	assert.Equal(t, 0, eng.Session().Turn)
}

func TestResetHandler(t *testing.T) {
	eng, s := newTestEngine(t)
	handler := NewResetHandler(eng, slog.Default())

	req := httptest.NewRequest(http.MethodPost, "/v1/reset", nil)
	w := httptest.NewRecorder()
	handler.ServeHTTP(w, req)

	assert.Equal(t, http.StatusOK, w.Code)
	players, err := s.EntitiesByType(context.Background(), entity.TypePlayer)
	require.NoError(t, err)
	assert.Empty(t, players)
}

func TestHealthHandler(t *testing.T) {
	_, s := newTestEngine(t)
	handler := NewHealthHandler(s, slog.Default())

	req := httptest.NewRequest(http.MethodGet, "/health", nil)
	w := httptest.NewRecorder()
	handler.ServeHTTP(w, req)

	assert.Equal(t, http.StatusOK, w.Code)
	assert.Contains(t, w.Body.String(), `"status":"healthy"`)
}
