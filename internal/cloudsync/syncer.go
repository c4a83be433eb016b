package cloudsync

import (
	"context"
	"fmt"

	"pebble-sync/internal/localstore"
	"pebble-sync/internal/logging"
	"pebble-sync/internal/models"
	"pebble-sync/internal/state"
)

// Pusher is the part of Client the syncer needs.
type Pusher interface {
	Push(ctx context.Context, token string, req models.PushRequest) (*models.PushResult, error)
}

// Result summarizes one batch.
type Result struct {
	Attempted int
	Pushed    int
	Failed    int
}

type Syncer struct {
	store  localstore.Store
	st     *state.AppState
	client Pusher
	log    *logging.Logger
}

func NewSyncer(store localstore.Store, st *state.AppState, client Pusher, logger *logging.Logger) *Syncer {
	return &Syncer{store: store, st: st, client: client, log: logger}
}

// SyncUnsynced pushes every unsynced record once, in selection order, and
// marks each one synced after a 2xx unless it was changed during the push. A failed record is logged and left for
// the next call. It is a no-op while sync is disabled.
func (s *Syncer) SyncUnsynced(ctx context.Context) (res Result, err error) {
	settings := s.st.Settings()
	if !settings.SyncEnabled {
		return res, nil
	}

	s.st.BeginSync()
	defer func() { s.st.EndSync(batchError(res, err)) }()

	recs, err := s.store.Unsynced(ctx)
	if err != nil {
		s.log.Warnf("select unsynced records: %v", err)
		return res, err
	}

	token := settings.Token()
	for _, r := range recs {
		if ctx.Err() != nil {
			return res, ctx.Err()
		}
		res.Attempted++
		if _, err := s.client.Push(ctx, token, envelopeFor(r, settings.SyncRetentionDays)); err != nil {
			res.Failed++
			s.log.Warnf("push %s %s failed: %v", r.Kind, r.ID, err)
			continue
		}
		if err := s.store.MarkSynced(ctx, r.ID, r.Revision); err != nil {
			res.Failed++
			s.log.Warnf("mark %s synced: %v", r.ID, err)
			continue
		}
		res.Pushed++
	}
	if res.Attempted > 0 {
		s.log.Infof("sync pushed %d of %d records", res.Pushed, res.Attempted)
	}
	return res, nil
}

func batchError(res Result, err error) error {
	if err != nil {
		return err
	}
	if res.Failed > 0 {
		return fmt.Errorf("%d of %d records failed to sync", res.Failed, res.Attempted)
	}
	return nil
}
