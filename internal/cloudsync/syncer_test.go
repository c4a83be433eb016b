package cloudsync

import (
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"path/filepath"
	"sync"
	"sync/atomic"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"pebble-sync/internal/common"
	"pebble-sync/internal/localstore"
	"pebble-sync/internal/logging"
	"pebble-sync/internal/models"
	"pebble-sync/internal/notes"
	"pebble-sync/internal/state"
)

var t0 = time.Date(2025, 2, 1, 8, 0, 0, 0, time.UTC)

type pushServer struct {
	*httptest.Server
	calls atomic.Int32

	mu     sync.Mutex
	pushed []models.PushRequest
	auth   []string
	fail   map[string]int // id -> remaining failures
}

func newPushServer(t *testing.T) *pushServer {
	t.Helper()
	ps := &pushServer{fail: map[string]int{}}
	ps.Server = httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if r.Method != http.MethodPost || r.URL.Path != "/sync/push" {
			t.Errorf("unexpected request: %s %s", r.Method, r.URL.String())
			w.WriteHeader(http.StatusNotFound)
			return
		}
		ps.calls.Add(1)
		var req models.PushRequest
		_ = json.NewDecoder(r.Body).Decode(&req)

		ps.mu.Lock()
		ps.auth = append(ps.auth, r.Header.Get("Authorization"))
		if ps.fail[req.ID] > 0 {
			ps.fail[req.ID]--
			ps.mu.Unlock()
			w.WriteHeader(http.StatusInternalServerError)
			_ = json.NewEncoder(w).Encode(map[string]any{"message": "boom"})
			return
		}
		ps.pushed = append(ps.pushed, req)
		ps.mu.Unlock()

		w.Header().Set("Content-Type", "application/json")
		_ = json.NewEncoder(w).Encode(models.PushResult{Success: true, SyncID: "s-" + req.ID})
	}))
	t.Cleanup(ps.Close)
	return ps
}

func (ps *pushServer) pushedIDs() []string {
	ps.mu.Lock()
	defer ps.mu.Unlock()
	out := make([]string, 0, len(ps.pushed))
	for _, p := range ps.pushed {
		out = append(out, p.ID)
	}
	return out
}

type fixture struct {
	store  *localstore.Ephemeral
	st     *state.AppState
	syncer *Syncer
}

func setup(t *testing.T, baseURL string, enabled bool, recs ...models.Record) *fixture {
	t.Helper()
	ctx := context.Background()
	store := localstore.NewEphemeral()
	for _, r := range recs {
		require.NoError(t, store.Put(ctx, r))
	}
	st := state.Load(ctx, store, logging.Discard())
	_, err := st.UpdateSettings(ctx, func(s *models.Settings) { s.SyncEnabled = enabled })
	require.NoError(t, err)

	client := NewClient(NewHTTPClient(5*time.Second), baseURL)
	return &fixture{store: store, st: st, syncer: NewSyncer(store, st, client, logging.Discard())}
}

func note(id string, offset time.Duration) models.Record {
	return models.Record{ID: id, Kind: models.TypeNote, Content: "note " + id, Timestamp: t0.Add(offset)}
}

func TestSyncUnsyncedIsIdempotent(t *testing.T) {
	ps := newPushServer(t)
	f := setup(t, ps.URL, true, note("a", 0), note("b", time.Minute))
	ctx := context.Background()

	res, err := f.syncer.SyncUnsynced(ctx)
	require.NoError(t, err)
	assert.Equal(t, Result{Attempted: 2, Pushed: 2}, res)

	res, err = f.syncer.SyncUnsynced(ctx)
	require.NoError(t, err)
	assert.Zero(t, res.Attempted)
	assert.EqualValues(t, 2, ps.calls.Load())

	unsynced, err := f.store.Unsynced(ctx)
	require.NoError(t, err)
	assert.Empty(t, unsynced)
}

func TestSyncUnsyncedPartialBatch(t *testing.T) {
	ps := newPushServer(t)
	ps.fail["b"] = 1
	f := setup(t, ps.URL, true, note("a", 0), note("b", time.Minute), note("c", 2*time.Minute))
	ctx := context.Background()

	res, err := f.syncer.SyncUnsynced(ctx)
	require.NoError(t, err)
	assert.Equal(t, Result{Attempted: 3, Pushed: 2, Failed: 1}, res)
	assert.Equal(t, []string{"a", "c"}, ps.pushedIDs())

	status := f.st.SyncStatusSnapshot()
	assert.False(t, status.Syncing)
	assert.NotEmpty(t, status.LastError)

	res, err = f.syncer.SyncUnsynced(ctx)
	require.NoError(t, err)
	assert.Equal(t, Result{Attempted: 1, Pushed: 1}, res)
	assert.Equal(t, []string{"a", "c", "b"}, ps.pushedIDs())
	assert.Empty(t, f.st.SyncStatusSnapshot().LastError)
}

func TestSyncUnsyncedDisabledIsNoop(t *testing.T) {
	ps := newPushServer(t)
	f := setup(t, ps.URL, false, note("a", 0))

	res, err := f.syncer.SyncUnsynced(context.Background())
	require.NoError(t, err)
	assert.Zero(t, res.Attempted)
	assert.Zero(t, ps.calls.Load())
	assert.Nil(t, f.st.SyncStatusSnapshot().LastSyncAt)
}

func TestSyncUnsyncedEmptyBatchRecordsStatus(t *testing.T) {
	ps := newPushServer(t)
	f := setup(t, ps.URL, true)

	_, err := f.syncer.SyncUnsynced(context.Background())
	require.NoError(t, err)
	status := f.st.SyncStatusSnapshot()
	assert.False(t, status.Syncing)
	assert.NotNil(t, status.LastSyncAt)
}

func TestSyncSendsTokenAndTTL(t *testing.T) {
	ps := newPushServer(t)
	f := setup(t, ps.URL, true, note("a", 0))
	ctx := context.Background()
	token := "desk.s3cret"
	_, err := f.st.UpdateSettings(ctx, func(s *models.Settings) {
		s.SyncToken = &token
		s.SyncRetentionDays = 30
	})
	require.NoError(t, err)

	_, err = f.syncer.SyncUnsynced(ctx)
	require.NoError(t, err)

	ps.mu.Lock()
	defer ps.mu.Unlock()
	require.Len(t, ps.pushed, 1)
	assert.Equal(t, "Bearer desk.s3cret", ps.auth[0])
	assert.Equal(t, 30, ps.pushed[0].TTLDays)
	assert.Equal(t, "note a", ps.pushed[0].Markdown)
	require.NotNil(t, ps.pushed[0].CreatedAt)
	assert.True(t, ps.pushed[0].CreatedAt.Equal(t0))
	assert.NotNil(t, ps.pushed[0].Tags)
}

func TestSyncNetworkFailureKeepsRecords(t *testing.T) {
	ps := newPushServer(t)
	url := ps.URL
	ps.Close()
	f := setup(t, url, true, note("a", 0), note("b", time.Second))
	ctx := context.Background()

	res, err := f.syncer.SyncUnsynced(ctx)
	require.NoError(t, err)
	assert.Equal(t, 2, res.Failed)

	unsynced, err := f.store.Unsynced(ctx)
	require.NoError(t, err)
	assert.Len(t, unsynced, 2)
	assert.False(t, f.st.SyncStatusSnapshot().Syncing)
}

func TestWorkerCoalescesAndFlushes(t *testing.T) {
	ps := newPushServer(t)
	f := setup(t, ps.URL, true, note("a", 0))
	w := NewWorker(f.syncer, logging.Discard())

	w.Enqueue()
	w.Enqueue()
	w.Enqueue()
	res, err := w.Flush(context.Background())
	require.NoError(t, err)
	assert.Equal(t, 1, res.Pushed)

	res, err = w.Flush(context.Background())
	require.NoError(t, err)
	assert.Zero(t, res.Attempted)
	assert.EqualValues(t, 1, ps.calls.Load())
}

func TestWorkerRunDrainsQueue(t *testing.T) {
	ps := newPushServer(t)
	f := setup(t, ps.URL, true, note("a", 0))
	w := NewWorker(f.syncer, logging.Discard())

	ctx, cancel := context.WithCancel(context.Background())
	done := make(chan struct{})
	go func() {
		w.Run(ctx, 0)
		close(done)
	}()
	w.Enqueue()

	require.Eventually(t, func() bool { return ps.calls.Load() == 1 }, 2*time.Second, 10*time.Millisecond)
	cancel()
	<-done
}

func TestTaskMarkdown(t *testing.T) {
	r := models.Record{
		ID:   "t1",
		Kind: models.TypeTask,
		Task: &models.TaskFields{
			Title:         "Water plants",
			Description:   "balcony too",
			Date:          "2025-02-03",
			TimeSlot:      models.SlotEvening,
			ScheduledTime: "18:30",
		},
	}
	assert.Equal(t, "- [Water plants](⏳ Pending) - 2025-02-03 evening at 18:30\n  balcony too\n", RecordMarkdown(r))

	r.Task.Completed = true
	r.Task.Description = ""
	r.Task.ScheduledTime = ""
	assert.Equal(t, "- [Water plants](✅ Completed) - 2025-02-03 evening\n", RecordMarkdown(r))
}

func TestClientErrorMapping(t *testing.T) {
	ts := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		switch r.URL.Path {
		case "/sync/history":
			if r.URL.Query().Get("limit") != "5" || r.URL.Query().Get("cursor") != "sync:x" {
				t.Errorf("unexpected query %s", r.URL.RawQuery)
			}
			w.WriteHeader(http.StatusUnauthorized)
			_ = json.NewEncoder(w).Encode(map[string]any{"message": "missing bearer token"})
		case "/keys/revoke":
			w.WriteHeader(http.StatusNotFound)
		default:
			w.WriteHeader(http.StatusBadGateway)
		}
	}))
	defer ts.Close()
	c := NewClient(ts.Client(), ts.URL+"/")
	ctx := context.Background()

	_, err := c.History(ctx, "", 5, "sync:x")
	assert.ErrorIs(t, err, common.ErrUnauthorized)

	assert.ErrorIs(t, c.RevokeKey(ctx, "admin", "k"), common.ErrNotFound)

	_, err = c.Fetch(ctx, "")
	var se *StatusError
	require.ErrorAs(t, err, &se)
	assert.Equal(t, http.StatusBadGateway, se.Code)
}

type nopQueue struct{}

func (nopQueue) Enqueue() {}

// editingPusher edits the record through a second handle while the first
// push is on the wire.
type editingPusher struct {
	edit   func()
	pushed []string
}

func (p *editingPusher) Push(_ context.Context, _ string, req models.PushRequest) (*models.PushResult, error) {
	p.pushed = append(p.pushed, req.Markdown)
	if p.edit != nil {
		edit := p.edit
		p.edit = nil
		edit()
	}
	return &models.PushResult{Success: true, SyncID: "s-" + req.ID}, nil
}

func TestEditDuringPushIsPushedAgain(t *testing.T) {
	openPair := map[string]func(t *testing.T) (localstore.Store, localstore.Store){
		"durable": func(t *testing.T) (localstore.Store, localstore.Store) {
			path := filepath.Join(t.TempDir(), "pebble.db")
			syncSide, err := localstore.OpenDurable(context.Background(), path)
			require.NoError(t, err)
			t.Cleanup(func() { _ = syncSide.Close() })
			editSide, err := localstore.OpenDurable(context.Background(), path)
			require.NoError(t, err)
			t.Cleanup(func() { _ = editSide.Close() })
			return syncSide, editSide
		},
		"ephemeral": func(t *testing.T) (localstore.Store, localstore.Store) {
			s := localstore.NewEphemeral()
			return s, s
		},
	}
	for name, open := range openPair {
		t.Run(name, func(t *testing.T) {
			ctx := context.Background()
			syncSide, editSide := open(t)
			require.NoError(t, syncSide.Put(ctx, note("r1", 0)))

			st := state.Load(ctx, syncSide, logging.Discard())
			_, err := st.UpdateSettings(ctx, func(s *models.Settings) { s.SyncEnabled = true })
			require.NoError(t, err)

			editor := notes.NewService(editSide, nopQueue{})
			pusher := &editingPusher{edit: func() {
				_, err := editor.EditNote(ctx, "r1", "edited content", nil)
				require.NoError(t, err)
			}}
			syncer := NewSyncer(syncSide, st, pusher, logging.Discard())

			_, err = syncer.SyncUnsynced(ctx)
			require.NoError(t, err)
			got, err := syncSide.Get(ctx, "r1")
			require.NoError(t, err)
			assert.Equal(t, "edited content", got.Content)
			assert.False(t, got.Synced)

			res, err := syncer.SyncUnsynced(ctx)
			require.NoError(t, err)
			assert.Equal(t, Result{Attempted: 1, Pushed: 1}, res)
			assert.Equal(t, []string{"note r1", "edited content"}, pusher.pushed)

			got, err = syncSide.Get(ctx, "r1")
			require.NoError(t, err)
			assert.True(t, got.Synced)
		})
	}
}
