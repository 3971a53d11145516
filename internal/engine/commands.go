package engine

import (
	"context"
	"fmt"
	"strings"

	"fableturn/internal/store"
	"fableturn/pkg/outcome"
)

// handleInstantCommand processes the REMEMBER:/RECALL: prefixed commands.
// They cost no time, touch no world state, and skip interpretation. The
// second return reports whether the input was such a command.
func (e *Engine) handleInstantCommand(ctx context.Context, tc *turnContext, input string, turn int) (*outcome.TurnResult, bool, error) {
	trimmed := strings.TrimSpace(input)
	upper := strings.ToUpper(trimmed)

	switch {
	case strings.HasPrefix(upper, "REMEMBER:"):
		note := strings.TrimSpace(trimmed[len("REMEMBER:"):])
		if note == "" {
			result := &outcome.TurnResult{Narrative: "Remember what?", WorldStateDelta: map[string]any{}}
			return result, true, saveSession(ctx, e.store, &e.session)
		}
		if err := e.store.AppendEvent(ctx, &store.EventLogEntry{
			TurnNumber: turn,
			LocationID: tc.player.State.CurrentLocationID,
			ObserverID: tc.player.ID,
			ActionType: "note",
			EventData:  map[string]any{"note": note, "importance": 8},
		}); err != nil {
			return nil, true, fmt.Errorf("logging note: %w", err)
		}
		if err := e.recall.Record(ctx, e.gameID, tc.player.ID, fmt.Sprintf("[Turn %d] noted: %s", turn, note)); err != nil {
			e.logger.Warn("Note recall write failed", "error", err)
		}
		result := &outcome.TurnResult{
			Narrative:       fmt.Sprintf("You commit it to memory: %s", note),
			WorldStateDelta: map[string]any{},
		}
		return result, true, saveSession(ctx, e.store, &e.session)

	case strings.HasPrefix(upper, "RECALL:"):
		query := strings.TrimSpace(trimmed[len("RECALL:"):])
		hits, err := e.recall.Search(ctx, e.gameID, tc.player.ID, query)
		if err != nil {
			e.logger.Warn("Recall search failed", "error", err)
		}
		narrative := "Nothing comes to mind."
		if len(hits) > 0 {
			if len(hits) > 5 {
				hits = hits[:5]
			}
			narrative = "You recall:\n- " + strings.Join(hits, "\n- ")
		}
		result := &outcome.TurnResult{Narrative: narrative, WorldStateDelta: map[string]any{}}
		return result, true, saveSession(ctx, e.store, &e.session)
	}

	return nil, false, nil
}
