package store

import (
	"context"
	"log/slog"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"fableturn/pkg/entity"
)

func newTestStore(t *testing.T) (*SQLiteStore, string, string) {
	t.Helper()
	dir := t.TempDir()
	dbPath := filepath.Join(dir, "world.db")
	savesDir := filepath.Join(dir, "saves")
	s, err := NewSQLiteStore(context.Background(), dbPath, savesDir, slog.Default())
	require.NoError(t, err)
	t.Cleanup(func() { s.Close() })
	return s, dbPath, savesDir
}

func TestEntityCRUD(t *testing.T) {
	s, _, _ := newTestStore(t)
	ctx := context.Background()

	e := &entity.Entity{
		ID:   "npc_greta",
		Type: entity.TypeNPC,
		Name: entity.Name{Display: "Greta", First: "Greta", KnownToPlayer: true},
		State: entity.State{
			CurrentLocationID: "loc_tavern",
			HealthStatus:      "healthy",
			EmotionalState:    "wary",
		},
	}
	require.NoError(t, s.CreateEntity(ctx, e))

	got, err := s.GetEntity(ctx, "npc_greta")
	require.NoError(t, err)
	require.NotNil(t, got)
	assert.Equal(t, "Greta", got.Name.Display)
	assert.Equal(t, "loc_tavern", got.State.CurrentLocationID)

	exists, err := s.Exists(ctx, "npc_greta")
	require.NoError(t, err)
	assert.True(t, exists)

	exists, err = s.Exists(ctx, "npc_nobody")
	require.NoError(t, err)
	assert.False(t, exists)

	got.State.EmotionalState = "furious"
	require.NoError(t, s.UpdateEntity(ctx, got.ID, got))

	got, err = s.GetEntity(ctx, "npc_greta")
	require.NoError(t, err)
	assert.Equal(t, "furious", got.State.EmotionalState)

	missing, err := s.GetEntity(ctx, "npc_nobody")
	require.NoError(t, err)
	assert.Nil(t, missing)

	err = s.UpdateEntity(ctx, "npc_nobody", e)
	assert.ErrorIs(t, err, ErrNotFound)
}

func TestEntitiesInLocation(t *testing.T) {
	s, _, _ := newTestStore(t)
	ctx := context.Background()

	for _, e := range []*entity.Entity{
		{ID: "player", Type: entity.TypePlayer, Name: entity.Name{Display: "You"}, State: entity.State{CurrentLocationID: "loc_tavern"}},
		{ID: "npc_greta", Type: entity.TypeNPC, Name: entity.Name{Display: "Greta"}, State: entity.State{CurrentLocationID: "loc_tavern"}},
		{ID: "npc_bram", Type: entity.TypeNPC, Name: entity.Name{Display: "Bram"}, State: entity.State{CurrentLocationID: "loc_docks"}},
	} {
		require.NoError(t, s.CreateEntity(ctx, e))
	}

	tavern, err := s.EntitiesInLocation(ctx, "loc_tavern")
	require.NoError(t, err)
	assert.Len(t, tavern, 2)

	npcs, err := s.EntitiesByType(ctx, entity.TypeNPC)
	require.NoError(t, err)
	assert.Len(t, npcs, 2)
}

func TestFindByName(t *testing.T) {
	s, _, _ := newTestStore(t)
	ctx := context.Background()

	require.NoError(t, s.CreateEntity(ctx, &entity.Entity{
		ID:   "npc_greta",
		Type: entity.TypeNPC,
		Name: entity.Name{Display: "Greta Hollis", First: "Greta", KnownToPlayer: true},
	}))
	require.NoError(t, s.CreateEntity(ctx, &entity.Entity{
		ID:   "obj_lantern",
		Type: entity.TypeObject,
		Name: entity.Name{Display: "rusty lantern"},
	}))

	// Object names marshal as plain strings; both shapes must be findable.
	found, err := s.FindByName(ctx, "Rusty Lantern")
	require.NoError(t, err)
	require.Len(t, found, 1)
	assert.Equal(t, "obj_lantern", found[0].ID)

	found, err = s.FindByName(ctx, "greta")
	require.NoError(t, err)
	require.Len(t, found, 1)
	assert.Equal(t, "npc_greta", found[0].ID)
}

func TestGlobals(t *testing.T) {
	s, _, _ := newTestStore(t)
	ctx := context.Background()

	v, err := s.GetGlobal(ctx, "genre")
	require.NoError(t, err)
	assert.Empty(t, v)

	require.NoError(t, s.SetGlobal(ctx, "genre", "noir"))
	require.NoError(t, s.SetGlobal(ctx, "genre", "mundane"))

	v, err = s.GetGlobal(ctx, "genre")
	require.NoError(t, err)
	assert.Equal(t, "mundane", v)
}

func TestEventLogQueries(t *testing.T) {
	s, _, _ := newTestStore(t)
	ctx := context.Background()

	events := []*EventLogEntry{
		{TurnNumber: 1, LocationID: "loc_tavern", ObserverID: "player", ActionType: "look", EventData: map[string]any{"summary": "looked around"}},
		{TurnNumber: 1, LocationID: "loc_tavern", ObserverID: "player", ActionType: "NARRATION", EventData: map[string]any{"narrative": "The tavern is quiet."}},
		{TurnNumber: 2, LocationID: "loc_docks", ObserverID: "player", ActionType: "move", EventData: map[string]any{"summary": "walked to the docks"}},
		{TurnNumber: 2, LocationID: "loc_docks", ObserverID: "player", ActionType: "NARRATION", EventData: map[string]any{"narrative": "Fog rolls off the water."}},
		{TurnNumber: 3, LocationID: "loc_docks", ObserverID: "npc_bram", ActionType: "witness", EventData: map[string]any{"summary": "saw the player arrive"}},
	}
	for _, e := range events {
		require.NoError(t, s.AppendEvent(ctx, e))
	}

	narratives, err := s.RecentNarratives(ctx, 10)
	require.NoError(t, err)
	require.Len(t, narratives, 2)
	assert.Equal(t, "The tavern is quiet.", narratives[0])
	assert.Equal(t, "Fog rolls off the water.", narratives[1])

	obs, err := s.RecentObservations(ctx, 5)
	require.NoError(t, err)
	require.Len(t, obs, 2)
	assert.Equal(t, "move", obs[0].ActionType)
	assert.Equal(t, "look", obs[1].ActionType)

	byObserver, err := s.EventsByObserver(ctx, "player", 1)
	require.NoError(t, err)
	assert.Len(t, byObserver, 2)

	byLocation, err := s.EventsByLocation(ctx, "loc_docks")
	require.NoError(t, err)
	assert.Len(t, byLocation, 3)
}

func TestRelationshipLedger(t *testing.T) {
	s, _, _ := newTestStore(t)
	ctx := context.Background()

	edge, err := s.Relationship(ctx, "player", "npc_greta")
	require.NoError(t, err)
	assert.Nil(t, edge)

	require.NoError(t, s.UpsertRelationship(ctx, &RelationshipEdge{
		FromEntityID: "player",
		ToEntityID:   "npc_greta",
		TrustLevel:   "broken",
		Status:       "fearful",
		Tags:         []string{"victim_of_violence"},
		History:      []string{"[Turn 4] attacked without warning"},
	}))

	edge, err = s.Relationship(ctx, "player", "npc_greta")
	require.NoError(t, err)
	require.NotNil(t, edge)
	assert.Equal(t, "broken", edge.TrustLevel)
	assert.Contains(t, edge.Tags, "victim_of_violence")

	edge.Tags = append(edge.Tags, "witnessed_violence")
	require.NoError(t, s.UpsertRelationship(ctx, edge))

	edge, err = s.Relationship(ctx, "player", "npc_greta")
	require.NoError(t, err)
	assert.Len(t, edge.Tags, 2)
}

func TestSnapshotRestoreRoundTrip(t *testing.T) {
	s, dbPath, savesDir := newTestStore(t)
	ctx := context.Background()

	e := &entity.Entity{
		ID:   "npc_greta",
		Type: entity.TypeNPC,
		Name: entity.Name{Display: "Greta"},
		State: entity.State{
			CurrentLocationID: "loc_tavern",
			EmotionalState:    "calm",
		},
	}
	require.NoError(t, s.CreateEntity(ctx, e))

	path, err := s.Snapshot("game1", 3)
	require.NoError(t, err)
	assert.FileExists(t, path)

	// Mutate after the snapshot.
	e.State.EmotionalState = "furious"
	require.NoError(t, s.UpdateEntity(ctx, e.ID, e))

	// Undo: close, copy the snapshot back, reopen.
	require.NoError(t, s.Close())
	require.NoError(t, Restore(savesDir, "game1", 3, dbPath))

	reopened, err := NewSQLiteStore(ctx, dbPath, savesDir, slog.Default())
	require.NoError(t, err)
	defer reopened.Close()

	got, err := reopened.GetEntity(ctx, "npc_greta")
	require.NoError(t, err)
	require.NotNil(t, got)
	assert.Equal(t, "calm", got.State.EmotionalState)

	turns, err := ListSnapshots(savesDir, "game1")
	require.NoError(t, err)
	assert.Equal(t, []int{3}, turns)
}

func TestSnapshotOverwritesSameTurn(t *testing.T) {
	s, _, _ := newTestStore(t)
	ctx := context.Background()

	require.NoError(t, s.CreateEntity(ctx, &entity.Entity{
		ID: "player", Type: entity.TypePlayer, Name: entity.Name{Display: "You"},
	}))

	first, err := s.Snapshot("game1", 1)
	require.NoError(t, err)
	second, err := s.Snapshot("game1", 1)
	require.NoError(t, err)
	assert.Equal(t, first, second)
}

func TestClearWorld(t *testing.T) {
	s, _, _ := newTestStore(t)
	ctx := context.Background()

	require.NoError(t, s.CreateEntity(ctx, &entity.Entity{
		ID: "player", Type: entity.TypePlayer, Name: entity.Name{Display: "You"},
	}))
	require.NoError(t, s.AppendEvent(ctx, &EventLogEntry{
		TurnNumber: 1, ActionType: "look", EventData: map[string]any{},
	}))

	require.NoError(t, s.ClearWorld(ctx))

	exists, err := s.Exists(ctx, "player")
	require.NoError(t, err)
	assert.False(t, exists)

	obs, err := s.RecentObservations(ctx, 10)
	require.NoError(t, err)
	assert.Empty(t, obs)
}
