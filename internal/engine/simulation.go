package engine

import (
	"context"
	"fmt"
	"log/slog"

	"fableturn/internal/store"
	"fableturn/pkg/entity"
)

// defaultGoalDuration is the assumed duration in minutes for goals that do
// not carry an estimate.
const defaultGoalDuration = 10

// CompletedGoal records a goal finished during a time advance.
type CompletedGoal struct {
	NPCID   string
	NPCName string
	Goal    entity.Goal
}

// Interrupt is the earliest goal completion inside the advance window. It
// truncates the turn's elapsed time.
type Interrupt struct {
	NPCID   string
	NPCName string
	Goal    entity.Goal
	// At is minutes from the start of the window to the completion.
	At int
}

// Reason renders the interrupt for appending to narration.
func (i *Interrupt) Reason() string {
	desc := i.Goal.Description
	if desc == "" {
		desc = i.Goal.Type
	}
	return fmt.Sprintf("%s finishes: %s", i.NPCName, desc)
}

// TimeAdvance is the result of one simulator call.
type TimeAdvance struct {
	Requested int
	Actual    int
	Completed []CompletedGoal
	Interrupt *Interrupt
}

// Simulator advances the world clock and completes NPC goals scheduled
// against it.
type Simulator struct {
	store  store.Store
	logger *slog.Logger
}

func NewSimulator(s store.Store, logger *slog.Logger) *Simulator {
	return &Simulator{store: s, logger: logger}
}

// AdvanceTime scans sentient non-player entities with active goals and
// completes every goal whose finish time falls inside [clock,
// clock+minutes). All completions in the window apply their state changes;
// only the earliest surfaces as an interrupt and truncates the elapsed
// time to its finish.
func (sim *Simulator) AdvanceTime(ctx context.Context, minutes, clock int) (*TimeAdvance, error) {
	result := &TimeAdvance{Requested: minutes, Actual: minutes}
	if minutes <= 0 {
		result.Actual = 0
		return result, nil
	}

	var actors []*entity.Entity
	for _, t := range []entity.Type{entity.TypeNPC, entity.TypeCreature} {
		batch, err := sim.store.EntitiesByType(ctx, t)
		if err != nil {
			return nil, fmt.Errorf("listing %s entities: %w", t, err)
		}
		actors = append(actors, batch...)
	}

	for _, npc := range actors {
		if len(npc.ActiveGoals()) == 0 {
			continue
		}

		changed := false
		for i := range npc.Goals {
			g := &npc.Goals[i]
			if g.Status != entity.GoalActive {
				continue
			}

			start := g.StartedAt
			if start == 0 {
				start = clock
			}
			duration := g.DurationEst
			if duration <= 0 {
				duration = defaultGoalDuration
			}
			finish := start + duration
			if finish < clock || finish >= clock+minutes {
				continue
			}

			g.Status = entity.GoalCompleted
			g.CompletedAt = finish
			changed = true
			result.Completed = append(result.Completed, CompletedGoal{
				NPCID:   npc.ID,
				NPCName: npc.DisplayName(),
				Goal:    *g,
			})

			at := finish - clock
			if result.Interrupt == nil || at < result.Interrupt.At {
				result.Interrupt = &Interrupt{
					NPCID:   npc.ID,
					NPCName: npc.DisplayName(),
					Goal:    *g,
					At:      at,
				}
			}
		}

		if changed {
			if err := sim.store.UpdateEntity(ctx, npc.ID, npc); err != nil {
				sim.logger.Warn("Goal completion persist failed", "npc_id", npc.ID, "error", err)
			}
		}
	}

	if result.Interrupt != nil {
		result.Actual = result.Interrupt.At
	}
	return result, nil
}
