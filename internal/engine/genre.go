package engine

import (
	"context"
	"encoding/json"
	"fmt"

	"fableturn/internal/store"
)

// GenreRules shape the narrator's voice and the plausibility gate. They are
// persisted through a store global so snapshots and restores carry them.
type GenreRules struct {
	ID      string `json:"id"`
	Tone    string `json:"tone"`
	Premise string `json:"premise"`
}

// mundaneGenre is the fallback when no genre has been set.
var mundaneGenre = GenreRules{
	ID:      "mundane",
	Tone:    "grounded, understated realism",
	Premise: "an ordinary world where events unfold plausibly",
}

func loadGenre(ctx context.Context, s store.Store) (GenreRules, error) {
	raw, err := s.GetGlobal(ctx, globalGenre)
	if err != nil {
		return mundaneGenre, fmt.Errorf("loading genre rules: %w", err)
	}
	if raw == "" {
		return mundaneGenre, nil
	}
	var g GenreRules
	if err := json.Unmarshal([]byte(raw), &g); err != nil {
		return mundaneGenre, nil
	}
	if g.ID == "" {
		return mundaneGenre, nil
	}
	return g, nil
}

// SetGenre installs genre rules for the session and persists them. Empty
// tone or premise fall back to the current values.
func (e *Engine) SetGenre(ctx context.Context, id, tone, premise string) error {
	e.mu.Lock()
	defer e.mu.Unlock()

	g := GenreRules{ID: id, Tone: tone, Premise: premise}
	if g.Tone == "" {
		g.Tone = e.session.Genre.Tone
	}
	if g.Premise == "" {
		g.Premise = e.session.Genre.Premise
	}
	data, err := json.Marshal(g)
	if err != nil {
		return fmt.Errorf("marshaling genre rules: %w", err)
	}
	if err := e.store.SetGlobal(ctx, globalGenre, string(data)); err != nil {
		return fmt.Errorf("persisting genre rules: %w", err)
	}
	e.session.Genre = g
	e.logger.Info("Genre set", "genre", id)
	return nil
}
