package engine

import (
	"context"
	"log/slog"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"fableturn/internal/oracle"
	"fableturn/internal/store"
	"fableturn/pkg/entity"
)

func newEngineTestStore(t *testing.T) *store.SQLiteStore {
	t.Helper()
	dir := t.TempDir()
	s, err := store.NewSQLiteStore(context.Background(),
		filepath.Join(dir, "world.db"), filepath.Join(dir, "saves"), slog.Default())
	require.NoError(t, err)
	t.Cleanup(func() { s.Close() })
	return s
}

func seedEntity(t *testing.T, s store.Store, e *entity.Entity) {
	t.Helper()
	require.NoError(t, s.CreateEntity(context.Background(), e))
}

func TestSanitizeValidDeltaIsNoop(t *testing.T) {
	s := newEngineTestStore(t)
	ctx := context.Background()
	seedEntity(t, s, &entity.Entity{ID: "npc_greta", Type: entity.TypeNPC, Name: entity.Name{Display: "Greta"}})

	sz := NewSanitizer(s, oracle.NewMockOracle(), slog.Default())
	delta := map[string]any{
		"npc_greta": map[string]any{"emotional_state": "wary"},
		"time":      map[string]any{"advance_minutes": float64(10)},
	}

	cleaned := sz.Sanitize(ctx, delta, nil)
	assert.Equal(t, delta, cleaned)
}

func TestSanitizeRewritesHallucinatedID(t *testing.T) {
	s := newEngineTestStore(t)
	ctx := context.Background()
	greta := &entity.Entity{ID: "npc_greta", Type: entity.TypeNPC, Name: entity.Name{Display: "Greta Hollis", First: "Greta"}}
	seedEntity(t, s, greta)

	sz := NewSanitizer(s, oracle.NewMockOracle(), slog.Default())

	tests := []struct {
		name string
		key  string
	}{
		{"id substring of real id", "greta"},
		{"real id substring of key", "npc_greta_the_barkeep"},
		{"display name inside key", "the_greta hollis_entity"},
		{"first name inside key", "angry_greta_1"},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			delta := map[string]any{tt.key: map[string]any{"emotional_state": "furious"}}
			cleaned := sz.Sanitize(ctx, delta, []*entity.Entity{greta})
			assert.Contains(t, cleaned, "npc_greta")
			assert.NotContains(t, cleaned, tt.key)
		})
	}
}

func TestSanitizeRewritesIDsInsideCategories(t *testing.T) {
	s := newEngineTestStore(t)
	ctx := context.Background()
	greta := &entity.Entity{ID: "npc_greta_123", Type: entity.TypeNPC, Name: entity.Name{Display: "Greta", First: "Greta"}}
	seedEntity(t, s, greta)

	sz := NewSanitizer(s, oracle.NewMockOracle(), slog.Default())
	delta := map[string]any{
		"npc": map[string]any{
			"npc_greta": map[string]any{"emotional_state": "furious"},
			"ambience":  "tense",
		},
	}

	cleaned := sz.Sanitize(ctx, delta, []*entity.Entity{greta})
	nested, ok := cleaned["npc"].(map[string]any)
	require.True(t, ok)
	assert.Contains(t, nested, "npc_greta_123")
	assert.NotContains(t, nested, "npc_greta")
	assert.Equal(t, "tense", nested["ambience"])

	valid, reason := sz.ValidateStructure(ctx, cleaned)
	assert.True(t, valid, reason)
}

func TestSanitizeLeavesUnresolvableKeys(t *testing.T) {
	s := newEngineTestStore(t)
	ctx := context.Background()

	sz := NewSanitizer(s, oracle.NewMockOracle(), slog.Default())
	delta := map[string]any{"npc_phantom": map[string]any{"emotional_state": "smug"}}

	cleaned := sz.Sanitize(ctx, delta, nil)
	assert.Contains(t, cleaned, "npc_phantom")
}

func TestValidateStructure(t *testing.T) {
	s := newEngineTestStore(t)
	ctx := context.Background()
	seedEntity(t, s, &entity.Entity{ID: "npc_greta", Type: entity.TypeNPC, Name: entity.Name{Display: "Greta"}})

	sz := NewSanitizer(s, oracle.NewMockOracle(), slog.Default())

	tests := []struct {
		name   string
		delta  map[string]any
		valid  bool
		reason string
	}{
		{
			name:  "entity id key",
			delta: map[string]any{"npc_greta": map[string]any{"emotional_state": "calm"}},
			valid: true,
		},
		{
			name:  "category keys",
			delta: map[string]any{"time": map[string]any{"advance_minutes": float64(5)}, "opportunities": []any{}},
			valid: true,
		},
		{
			name:   "unknown top-level key",
			delta:  map[string]any{"npc_phantom": map[string]any{}},
			valid:  false,
			reason: "npc_phantom",
		},
		{
			name:  "category with known underscore key",
			delta: map[string]any{"npc": map[string]any{"npc_greta": map[string]any{"mood": "tense"}}},
			valid: true,
		},
		{
			name:   "category with unknown underscore key",
			delta:  map[string]any{"npc": map[string]any{"npc_ghost": map[string]any{}}},
			valid:  false,
			reason: "npc_ghost",
		},
		{
			name:  "category with plain keys",
			delta: map[string]any{"location": map[string]any{"ambience": "dim"}},
			valid: true,
		},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			valid, reason := sz.ValidateStructure(ctx, tt.delta)
			assert.Equal(t, tt.valid, valid)
			if !tt.valid {
				assert.Contains(t, reason, tt.reason)
			}
		})
	}
}

func TestValidateNarrativeAppliesCorrection(t *testing.T) {
	s := newEngineTestStore(t)
	mock := oracle.NewMockOracle()
	mock.QueueResponse(`{"valid": false, "severity": "MAJOR", "issue": "hallucinated sword", "corrected_narration": "You stand empty-handed."}`)

	sz := NewSanitizer(s, mock, slog.Default())
	got := sz.ValidateNarrative(context.Background(), "You raise the sword.", nil, nil)
	assert.Equal(t, "You stand empty-handed.", got)
}

func TestValidateNarrativeIgnoresMinorIssues(t *testing.T) {
	s := newEngineTestStore(t)
	mock := oracle.NewMockOracle()
	mock.QueueResponse(`{"valid": false, "severity": "MINOR", "issue": "extra gesture", "corrected_narration": "Something else."}`)

	sz := NewSanitizer(s, mock, slog.Default())
	got := sz.ValidateNarrative(context.Background(), "original", nil, nil)
	assert.Equal(t, "original", got)
}

func TestValidateNarrativeFailsOpen(t *testing.T) {
	s := newEngineTestStore(t)

	t.Run("oracle error", func(t *testing.T) {
		mock := oracle.NewMockOracle()
		mock.QueueError(assert.AnError)
		sz := NewSanitizer(s, mock, slog.Default())
		assert.Equal(t, "original", sz.ValidateNarrative(context.Background(), "original", nil, nil))
	})

	t.Run("unparseable verdict", func(t *testing.T) {
		mock := oracle.NewMockOracle()
		mock.QueueResponse("not json at all")
		sz := NewSanitizer(s, mock, slog.Default())
		assert.Equal(t, "original", sz.ValidateNarrative(context.Background(), "original", nil, nil))
	})

	t.Run("major issue without correction", func(t *testing.T) {
		mock := oracle.NewMockOracle()
		mock.QueueResponse(`{"valid": false, "severity": "CRITICAL", "issue": "bad"}`)
		sz := NewSanitizer(s, mock, slog.Default())
		assert.Equal(t, "original", sz.ValidateNarrative(context.Background(), "original", nil, nil))
	})
}

func TestRetroactiveCausalityAlwaysPasses(t *testing.T) {
	s := newEngineTestStore(t)
	ctx := context.Background()

	require.NoError(t, s.AppendEvent(ctx, &store.EventLogEntry{
		TurnNumber: 1, LocationID: "loc_tavern", ObserverID: "player",
		ActionType: "look", EventData: map[string]any{"summary": "empty room"},
	}))

	sz := NewSanitizer(s, oracle.NewMockOracle(), slog.Default())
	assert.True(t, sz.CheckRetroactiveCausality(ctx, "A stranger was here all along."))
}
