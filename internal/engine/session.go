package engine

import (
	"context"
	"fmt"
	"strconv"

	"fableturn/internal/store"
)

// SessionState is the engine-owned mutable session context: turn counter,
// world clock, and active genre rules. It is persisted through store
// globals so a snapshot restore brings it back along with the entities.
type SessionState struct {
	GameID string

	// Turn is the number of the turn currently being processed (the first
	// real turn after genesis is 1).
	Turn int

	// Clock is minutes since session start. Only AdvanceTime moves it
	// forward; only a snapshot restore moves it back.
	Clock int

	Genre GenreRules
}

// Global keys under which session state is persisted.
const (
	globalTurn  = "session_turn"
	globalClock = "session_clock"
	globalGenre = "genre_rules"
)

// saveSession writes the session counters to store globals.
func saveSession(ctx context.Context, s store.Store, state *SessionState) error {
	if err := s.SetGlobal(ctx, globalTurn, strconv.Itoa(state.Turn)); err != nil {
		return fmt.Errorf("saving turn counter: %w", err)
	}
	if err := s.SetGlobal(ctx, globalClock, strconv.Itoa(state.Clock)); err != nil {
		return fmt.Errorf("saving world clock: %w", err)
	}
	return nil
}

// loadSession restores session counters and genre rules from store globals.
// Missing values mean a fresh world and leave zero values in place.
func loadSession(ctx context.Context, s store.Store, state *SessionState) error {
	if v, err := s.GetGlobal(ctx, globalTurn); err != nil {
		return fmt.Errorf("loading turn counter: %w", err)
	} else if v != "" {
		if n, err := strconv.Atoi(v); err == nil {
			state.Turn = n
		}
	}
	if v, err := s.GetGlobal(ctx, globalClock); err != nil {
		return fmt.Errorf("loading world clock: %w", err)
	} else if v != "" {
		if n, err := strconv.Atoi(v); err == nil {
			state.Clock = n
		}
	}
	genre, err := loadGenre(ctx, s)
	if err != nil {
		return err
	}
	state.Genre = genre
	return nil
}
