package engine

import (
	"context"
	"log/slog"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"fableturn/pkg/entity"
	"fableturn/pkg/outcome"
)

func violenceOutcome(summary string) outcome.Outcome {
	return outcome.Outcome{
		OutcomeType:      outcome.TypeSuccess,
		NarrativeSummary: summary,
		Tags:             []string{outcome.TagViolence},
	}
}

func TestViolenceRippleMutatesVictimEdge(t *testing.T) {
	s := newEngineTestStore(t)
	ctx := context.Background()
	seedEntity(t, s, &entity.Entity{ID: "npc_greta", Type: entity.TypeNPC, Name: entity.Name{Display: "Greta"}})

	r := NewRipple(s, slog.Default())
	r.Apply(ctx, violenceOutcome("a sudden blow"), "player", "npc_greta", nil, 4)

	edge, err := s.Relationship(ctx, "player", "npc_greta")
	require.NoError(t, err)
	require.NotNil(t, edge)
	assert.Equal(t, "broken", edge.TrustLevel)
	assert.Equal(t, "fearful", edge.Status)
	assert.ElementsMatch(t, []string{"witnessed_violence", "victim_of_violence"}, edge.Tags)
	require.Len(t, edge.History, 1)
	assert.Contains(t, edge.History[0], "[Turn 4]")
}

func TestViolenceRippleAttachesRevengeGoalOnce(t *testing.T) {
	s := newEngineTestStore(t)
	ctx := context.Background()
	seedEntity(t, s, &entity.Entity{ID: "npc_greta", Type: entity.TypeNPC, Name: entity.Name{Display: "Greta"}})

	r := NewRipple(s, slog.Default())
	r.Apply(ctx, violenceOutcome("first blow"), "player", "npc_greta", nil, 4)
	r.Apply(ctx, violenceOutcome("second blow"), "player", "npc_greta", nil, 5)

	greta, err := s.GetEntity(ctx, "npc_greta")
	require.NoError(t, err)

	revenge := 0
	for _, g := range greta.Goals {
		if g.Type == entity.GoalRevenge && g.Target == "player" && g.Status == entity.GoalActive {
			revenge++
		}
	}
	assert.Equal(t, 1, revenge)

	// History keeps accumulating even when the goal is suppressed.
	edge, err := s.Relationship(ctx, "player", "npc_greta")
	require.NoError(t, err)
	assert.Len(t, edge.History, 2)
	assert.Len(t, edge.Tags, 2)
}

func TestViolenceRippleMarksWitnesses(t *testing.T) {
	s := newEngineTestStore(t)
	ctx := context.Background()
	seedEntity(t, s, &entity.Entity{ID: "npc_greta", Type: entity.TypeNPC, Name: entity.Name{Display: "Greta"}})
	seedEntity(t, s, &entity.Entity{ID: "npc_bram", Type: entity.TypeNPC, Name: entity.Name{Display: "Bram"}})

	r := NewRipple(s, slog.Default())
	r.Apply(ctx, violenceOutcome("a brawl"), "player", "npc_greta", []string{"npc_bram", "npc_greta", "player"}, 2)

	edge, err := s.Relationship(ctx, "player", "npc_bram")
	require.NoError(t, err)
	require.NotNil(t, edge)
	assert.Equal(t, "distrustful", edge.TrustLevel)
	assert.Equal(t, []string{"witnessed_violence"}, edge.Tags)

	// The target and the actor never double as witnesses.
	victim, err := s.Relationship(ctx, "player", "npc_greta")
	require.NoError(t, err)
	assert.Equal(t, "broken", victim.TrustLevel)

	bram, err := s.GetEntity(ctx, "npc_bram")
	require.NoError(t, err)
	assert.Empty(t, bram.Goals)
}

func TestViolenceRippleIgnoresNonSentientTarget(t *testing.T) {
	s := newEngineTestStore(t)
	ctx := context.Background()
	seedEntity(t, s, &entity.Entity{ID: "obj_door", Type: entity.TypeObject, Name: entity.Name{Display: "door"}})

	r := NewRipple(s, slog.Default())
	r.Apply(ctx, violenceOutcome("kicked the door"), "player", "obj_door", nil, 1)

	edge, err := s.Relationship(ctx, "player", "obj_door")
	require.NoError(t, err)
	assert.Nil(t, edge)
}

func TestTheftRipple(t *testing.T) {
	s := newEngineTestStore(t)
	ctx := context.Background()
	seedEntity(t, s, &entity.Entity{ID: "npc_greta", Type: entity.TypeNPC, Name: entity.Name{Display: "Greta"}})

	r := NewRipple(s, slog.Default())
	r.Apply(ctx, outcome.Outcome{
		OutcomeType: outcome.TypeSuccess,
		Tags:        []string{outcome.TagTheft},
	}, "player", "npc_greta", nil, 3)

	edge, err := s.Relationship(ctx, "player", "npc_greta")
	require.NoError(t, err)
	require.NotNil(t, edge)
	assert.Equal(t, "suspicious", edge.TrustLevel)
	assert.Equal(t, []string{"victim_of_theft"}, edge.Tags)
}

func TestUnknownTagsIgnored(t *testing.T) {
	s := newEngineTestStore(t)
	ctx := context.Background()
	seedEntity(t, s, &entity.Entity{ID: "npc_greta", Type: entity.TypeNPC, Name: entity.Name{Display: "Greta"}})

	r := NewRipple(s, slog.Default())
	r.Apply(ctx, outcome.Outcome{
		OutcomeType: outcome.TypeSuccess,
		Tags:        []string{"KINDNESS", "SARCASM"},
	}, "player", "npc_greta", nil, 1)

	edge, err := s.Relationship(ctx, "player", "npc_greta")
	require.NoError(t, err)
	assert.Nil(t, edge)
}
