package memory

import (
	"context"
	"fmt"
	"log/slog"
	"testing"

	"github.com/alicebob/miniredis/v2"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func newTestRecall(t *testing.T) *RedisRecall {
	t.Helper()
	mr := miniredis.RunT(t)
	r, err := NewRedisRecall(context.Background(), "redis://"+mr.Addr(), slog.Default())
	require.NoError(t, err)
	t.Cleanup(func() { r.Close() })
	return r
}

func TestRecordAndRecent(t *testing.T) {
	r := newTestRecall(t)
	ctx := context.Background()

	require.NoError(t, r.Record(ctx, "game1", "player", "[Turn 1] look -> The tavern is quiet."))
	require.NoError(t, r.Record(ctx, "game1", "player", "[Turn 2] go to the docks -> Fog rolls in."))

	entries, err := r.Recent(ctx, "game1", "player", 10)
	require.NoError(t, err)
	require.Len(t, entries, 2)
	// Newest first.
	assert.Contains(t, entries[0], "Turn 2")
	assert.Contains(t, entries[1], "Turn 1")
}

func TestSearchMatchesCaseInsensitive(t *testing.T) {
	r := newTestRecall(t)
	ctx := context.Background()

	require.NoError(t, r.Record(ctx, "game1", "player", "[Turn 1] talk to Greta -> She mentions the lighthouse."))
	require.NoError(t, r.Record(ctx, "game1", "player", "[Turn 2] look -> Nothing of note."))

	matched, err := r.Search(ctx, "game1", "player", "LIGHTHOUSE")
	require.NoError(t, err)
	require.Len(t, matched, 1)
	assert.Contains(t, matched[0], "Greta")

	matched, err = r.Search(ctx, "game1", "player", "dragon")
	require.NoError(t, err)
	assert.Empty(t, matched)
}

func TestRecallIsolatedPerObserver(t *testing.T) {
	r := newTestRecall(t)
	ctx := context.Background()

	require.NoError(t, r.Record(ctx, "game1", "player", "player memory"))
	require.NoError(t, r.Record(ctx, "game1", "npc_greta", "greta memory"))

	entries, err := r.Recent(ctx, "game1", "npc_greta", 10)
	require.NoError(t, err)
	require.Len(t, entries, 1)
	assert.Equal(t, "greta memory", entries[0])
}

func TestTrimKeepsBound(t *testing.T) {
	r := newTestRecall(t)
	ctx := context.Background()

	for i := 0; i < maxEntriesPerObserver+25; i++ {
		require.NoError(t, r.Record(ctx, "game1", "player", fmt.Sprintf("entry %d", i)))
	}

	entries, err := r.Recent(ctx, "game1", "player", maxEntriesPerObserver+25)
	require.NoError(t, err)
	assert.Len(t, entries, maxEntriesPerObserver)
}

func TestReset(t *testing.T) {
	r := newTestRecall(t)
	ctx := context.Background()

	require.NoError(t, r.Record(ctx, "game1", "player", "memory one"))
	require.NoError(t, r.Record(ctx, "game2", "player", "other game"))

	require.NoError(t, r.Reset(ctx, "game1"))

	entries, err := r.Recent(ctx, "game1", "player", 10)
	require.NoError(t, err)
	assert.Empty(t, entries)

	entries, err = r.Recent(ctx, "game2", "player", 10)
	require.NoError(t, err)
	assert.Len(t, entries, 1)
}
