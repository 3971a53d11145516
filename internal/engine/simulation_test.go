package engine

import (
	"context"
	"log/slog"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"fableturn/pkg/entity"
)

func npcWithGoals(id, name string, goals ...entity.Goal) *entity.Entity {
	return &entity.Entity{
		ID:    id,
		Type:  entity.TypeNPC,
		Name:  entity.Name{Display: name},
		Goals: goals,
	}
}

func TestAdvanceTimeInterruptTruncation(t *testing.T) {
	s := newEngineTestStore(t)
	ctx := context.Background()

	seedEntity(t, s, npcWithGoals("npc_greta", "Greta", entity.Goal{
		ID:          "g1",
		Description: "finish sweeping the floor",
		Status:      entity.GoalActive,
		StartedAt:   0,
		DurationEst: 5,
	}))

	sim := NewSimulator(s, slog.Default())
	adv, err := sim.AdvanceTime(ctx, 20, 0)
	require.NoError(t, err)

	assert.Equal(t, 20, adv.Requested)
	assert.Equal(t, 5, adv.Actual)
	require.NotNil(t, adv.Interrupt)
	assert.Equal(t, "npc_greta", adv.Interrupt.NPCID)
	assert.Contains(t, adv.Interrupt.Reason(), "sweeping")

	greta, err := s.GetEntity(ctx, "npc_greta")
	require.NoError(t, err)
	require.Len(t, greta.Goals, 1)
	assert.Equal(t, entity.GoalCompleted, greta.Goals[0].Status)
	assert.Equal(t, 5, greta.Goals[0].CompletedAt)
}

func TestAdvanceTimeOnlyEarliestInterrupts(t *testing.T) {
	s := newEngineTestStore(t)
	ctx := context.Background()

	seedEntity(t, s, npcWithGoals("npc_greta", "Greta",
		entity.Goal{ID: "g1", Description: "later goal", Status: entity.GoalActive, StartedAt: 10, DurationEst: 5},
	))
	seedEntity(t, s, npcWithGoals("npc_bram", "Bram",
		entity.Goal{ID: "g2", Description: "earlier goal", Status: entity.GoalActive, StartedAt: 10, DurationEst: 2},
	))

	sim := NewSimulator(s, slog.Default())
	adv, err := sim.AdvanceTime(ctx, 30, 10)
	require.NoError(t, err)

	// Both goals complete inside the window; only the earliest interrupts.
	assert.Len(t, adv.Completed, 2)
	require.NotNil(t, adv.Interrupt)
	assert.Equal(t, "npc_bram", adv.Interrupt.NPCID)
	assert.Equal(t, 2, adv.Actual)

	greta, err := s.GetEntity(ctx, "npc_greta")
	require.NoError(t, err)
	assert.Equal(t, entity.GoalCompleted, greta.Goals[0].Status)
}

func TestAdvanceTimeGoalOutsideWindow(t *testing.T) {
	s := newEngineTestStore(t)
	ctx := context.Background()

	seedEntity(t, s, npcWithGoals("npc_greta", "Greta",
		entity.Goal{ID: "g1", Status: entity.GoalActive, StartedAt: 100, DurationEst: 60},
	))

	sim := NewSimulator(s, slog.Default())
	adv, err := sim.AdvanceTime(ctx, 10, 100)
	require.NoError(t, err)

	assert.Equal(t, 10, adv.Actual)
	assert.Empty(t, adv.Completed)
	assert.Nil(t, adv.Interrupt)
}

func TestAdvanceTimeDefaultDuration(t *testing.T) {
	s := newEngineTestStore(t)
	ctx := context.Background()

	// No duration estimate: assume the default, finishing at clock+10.
	seedEntity(t, s, npcWithGoals("npc_greta", "Greta",
		entity.Goal{ID: "g1", Description: "idle chore", Status: entity.GoalActive},
	))

	sim := NewSimulator(s, slog.Default())
	adv, err := sim.AdvanceTime(ctx, 30, 50)
	require.NoError(t, err)

	require.NotNil(t, adv.Interrupt)
	assert.Equal(t, defaultGoalDuration, adv.Actual)
}

func TestAdvanceTimeZeroMinutes(t *testing.T) {
	s := newEngineTestStore(t)

	sim := NewSimulator(s, slog.Default())
	adv, err := sim.AdvanceTime(context.Background(), 0, 5)
	require.NoError(t, err)
	assert.Equal(t, 0, adv.Actual)
	assert.Nil(t, adv.Interrupt)
}

func TestAdvanceTimeIgnoresInactiveGoals(t *testing.T) {
	s := newEngineTestStore(t)
	ctx := context.Background()

	seedEntity(t, s, npcWithGoals("npc_greta", "Greta",
		entity.Goal{ID: "g1", Status: entity.GoalCompleted, StartedAt: 0, DurationEst: 5},
		entity.Goal{ID: "g2", Status: entity.GoalAbandoned, StartedAt: 0, DurationEst: 5},
	))

	sim := NewSimulator(s, slog.Default())
	adv, err := sim.AdvanceTime(ctx, 20, 0)
	require.NoError(t, err)
	assert.Empty(t, adv.Completed)
	assert.Nil(t, adv.Interrupt)
}
