package retention

import (
	"context"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"pebble-sync/internal/localstore"
	"pebble-sync/internal/logging"
	"pebble-sync/internal/models"
	"pebble-sync/internal/state"
)

var now = time.Date(2025, 3, 31, 9, 0, 0, 0, time.UTC)

// countingStore records how often the evictor rewrites the store.
type countingStore struct {
	*localstore.Ephemeral
	replaces int
}

func (s *countingStore) ReplaceAll(ctx context.Context, recs []models.Record) error {
	s.replaces++
	return s.Ephemeral.ReplaceAll(ctx, recs)
}

func rec(id string, ageDays int, synced bool) models.Record {
	return models.Record{ID: id, Kind: models.TypeNote, Content: id, Timestamp: now.AddDate(0, 0, -ageDays), Synced: synced}
}

func seed(t *testing.T, recs ...models.Record) *countingStore {
	t.Helper()
	s := &countingStore{Ephemeral: localstore.NewEphemeral()}
	for _, r := range recs {
		require.NoError(t, s.Put(context.Background(), r))
	}
	return s
}

func days(n int) *int { return &n }

func TestPurgeRemovesOldSyncedOnly(t *testing.T) {
	store := seed(t, rec("old-synced", 10, true), rec("new-synced", 3, true), rec("old-unsynced", 400, false))
	var published []models.Record
	ev := NewEvictor(store, logging.Discard(), func(r []models.Record) { published = r }).WithClock(func() time.Time { return now })

	kept, err := ev.Purge(context.Background(), days(7))
	require.NoError(t, err)
	assert.Equal(t, []string{"new-synced", "old-unsynced"}, ids(kept))
	assert.Equal(t, kept, published)
	assert.Equal(t, 1, store.replaces)

	all, err := store.All(context.Background())
	require.NoError(t, err)
	assert.Len(t, all, 2)
}

func TestPurgeNeverEvictsUnsynced(t *testing.T) {
	store := seed(t, rec("a", 1, false), rec("b", 90, false), rec("c", 3650, false))
	ev := NewEvictor(store, logging.Discard(), nil).WithClock(func() time.Time { return now })

	for _, d := range []int{1, 7, 30} {
		kept, err := ev.Purge(context.Background(), days(d))
		require.NoError(t, err)
		assert.Len(t, kept, 3)
	}
	assert.Zero(t, store.replaces)
}

func TestPurgeInfiniteRetentionKeepsAllAndSorts(t *testing.T) {
	store := seed(t, rec("mid", 5, true), rec("oldest", 500, true), rec("newest", 0, true))
	var published []models.Record
	ev := NewEvictor(store, logging.Discard(), func(r []models.Record) { published = r }).WithClock(func() time.Time { return now })

	_, err := ev.Purge(context.Background(), nil)
	require.NoError(t, err)
	assert.Equal(t, []string{"newest", "mid", "oldest"}, ids(published))
	assert.Zero(t, store.replaces)
}

func TestPurgeUsesCalendarDays(t *testing.T) {
	// Exactly seven calendar days old is still inside the horizon.
	store := seed(t, rec("edge", 7, true), models.Record{ID: "past", Timestamp: now.AddDate(0, 0, -7).Add(-time.Minute), Synced: true})
	ev := NewEvictor(store, logging.Discard(), nil).WithClock(func() time.Time { return now })

	kept, err := ev.Purge(context.Background(), days(7))
	require.NoError(t, err)
	assert.Equal(t, []string{"edge"}, ids(kept))
}

func TestWatchPurgesOnRetentionChange(t *testing.T) {
	ctx := context.Background()
	store := seed(t, rec("old", 20, true), rec("new", 1, true))
	st := state.Load(ctx, store, logging.Discard())

	calls := 0
	ev := NewEvictor(store, logging.Discard(), func([]models.Record) { calls++ }).WithClock(func() time.Time { return now })
	stop := ev.Watch(ctx, st)
	defer stop()

	_, err := st.UpdateSettings(ctx, func(s *models.Settings) { s.SyncEnabled = true })
	require.NoError(t, err)
	assert.Zero(t, calls)

	_, err = st.UpdateSettings(ctx, func(s *models.Settings) { s.RetentionDays = days(7) })
	require.NoError(t, err)
	assert.Equal(t, 1, calls)

	all, err := store.All(ctx)
	require.NoError(t, err)
	assert.Equal(t, []string{"new"}, ids(all))
}

func ids(recs []models.Record) []string {
	out := make([]string, 0, len(recs))
	for _, r := range recs {
		out = append(out, r.ID)
	}
	return out
}
