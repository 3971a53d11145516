package engine

import (
	"context"
	"fmt"
	"strings"

	"fableturn/pkg/entity"
	"fableturn/pkg/outcome"
)

// moveFastPath handles trivial movement to a directly connected location
// without an outcome oracle call. Returns handled=false when the named
// destination is not adjacent, letting the caller fall through to dynamic
// travel.
func (e *Engine) moveFastPath(ctx context.Context, tc *turnContext, destName string, turn int) (*outcome.TurnResult, bool) {
	if tc.location == nil {
		return nil, false
	}
	destName = strings.TrimRight(strings.TrimSpace(destName), ".!?")

	var dest *entity.Entity
	for _, id := range tc.location.ConnectedLocationIDs {
		loc, err := e.store.GetEntity(ctx, id)
		if err != nil || loc == nil {
			e.logger.Warn("Connected location unloadable", "location_id", id, "error", err)
			continue
		}
		if loc.MatchesName(destName) {
			dest = loc
			break
		}
	}
	if dest == nil {
		return nil, false
	}

	result, err := e.enterLocation(ctx, tc, dest, turn)
	if err != nil {
		e.logger.Error("Fast-path movement failed", "error", err)
		return nil, false
	}
	return result, true
}

// travel handles movement toward somewhere not directly adjacent: an
// existing location elsewhere on the map, or a brand-new one generated on
// demand.
func (e *Engine) travel(ctx context.Context, tc *turnContext, targetName string, turn int) (*outcome.TurnResult, error) {
	var dest *entity.Entity
	found, err := e.store.FindByName(ctx, targetName)
	if err != nil {
		e.logger.Warn("Travel destination lookup failed", "name", targetName, "error", err)
	}
	for _, f := range found {
		if f.Type == entity.TypeLocation {
			dest = f
			break
		}
	}
	if dest == nil {
		dest, err = e.instantiator.GenerateLocation(ctx, targetName, tc.location, e.session.Genre)
		if err != nil {
			result := &outcome.TurnResult{
				Narrative:       fmt.Sprintf("You set out for %s but can't find the way.", targetName),
				WorldStateDelta: map[string]any{},
			}
			return result, e.finishTurn(ctx, tc, result, "move", 0)
		}
	} else if tc.location != nil {
		// Traveling establishes the connection both ways.
		tc.location.ConnectedLocationIDs = appendUnique(tc.location.ConnectedLocationIDs, dest.ID)
		dest.ConnectedLocationIDs = appendUnique(dest.ConnectedLocationIDs, tc.location.ID)
		if err := e.store.UpdateEntity(ctx, tc.location.ID, tc.location); err != nil {
			e.logger.Warn("Connection persist failed", "error", err)
		}
		if err := e.store.UpdateEntity(ctx, dest.ID, dest); err != nil {
			e.logger.Warn("Connection persist failed", "error", err)
		}
	}

	return e.enterLocation(ctx, tc, dest, turn)
}

// enterLocation performs the shared mechanics of arriving somewhere:
// lazy population, the player move, travel time, event fan-out.
func (e *Engine) enterLocation(ctx context.Context, tc *turnContext, dest *entity.Entity, turn int) (*outcome.TurnResult, error) {
	e.instantiator.PopulateLocation(ctx, dest, e.session.Genre)

	tc.player.State.CurrentLocationID = dest.ID
	if err := e.store.UpdateEntity(ctx, tc.player.ID, tc.player); err != nil {
		return nil, fmt.Errorf("moving player: %w", err)
	}

	narrative := fmt.Sprintf("You make your way to %s.", dest.DisplayName())
	if dest.Description != "" {
		narrative = fmt.Sprintf("%s %s", narrative, dest.Description)
	}
	occupants, err := e.store.EntitiesInLocation(ctx, dest.ID)
	if err == nil {
		var names []string
		for _, o := range occupants {
			if o.ID != tc.player.ID && o.IsSentient() {
				names = append(names, o.DisplayName())
			}
		}
		if len(names) > 0 {
			narrative = fmt.Sprintf("%s You see %s here.", narrative, strings.Join(names, ", "))
		}
	}

	advance, err := e.simulator.AdvanceTime(ctx, travelDuration, e.session.Clock)
	if err != nil {
		return nil, fmt.Errorf("advancing time: %w", err)
	}
	if advance.Interrupt != nil && advance.Actual < advance.Requested {
		narrative = fmt.Sprintf("%s\n\nAs you arrive, %s", narrative, advance.Interrupt.Reason())
	}
	e.session.Clock += advance.Actual

	result := &outcome.TurnResult{
		Narrative: narrative,
		WorldStateDelta: map[string]any{
			"player": map[string]any{
				"state": map[string]any{"current_location_id": dest.ID},
			},
		},
	}
	if err := e.finishTurn(ctx, tc, result, "move", advance.Actual); err != nil {
		return nil, err
	}

	line := fmt.Sprintf("[Turn %d] traveled to %s", turn, dest.DisplayName())
	if err := e.recall.Record(ctx, e.gameID, tc.player.ID, line); err != nil {
		e.logger.Warn("Move recall write failed", "error", err)
	}
	return result, nil
}
