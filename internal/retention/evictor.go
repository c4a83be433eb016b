// Package retention removes synced records that are older than the
// configured horizon from the local store.
package retention

import (
	"context"
	"sort"
	"time"

	"pebble-sync/internal/localstore"
	"pebble-sync/internal/logging"
	"pebble-sync/internal/models"
	"pebble-sync/internal/state"
)

type SettingsSource interface {
	Subscribe(fn state.SettingsObserver) func()
}

// Publisher receives the kept records, newest first, after every purge.
type Publisher func([]models.Record)

type Evictor struct {
	store   localstore.Store
	log     *logging.Logger
	now     func() time.Time
	publish Publisher
}

func NewEvictor(store localstore.Store, logger *logging.Logger, publish Publisher) *Evictor {
	if publish == nil {
		publish = func([]models.Record) {}
	}
	return &Evictor{store: store, log: logger, now: time.Now, publish: publish}
}

func (e *Evictor) WithClock(now func() time.Time) *Evictor {
	e.now = now
	return e
}

// Purge drops records older than retentionDays calendar days. A nil
// retentionDays keeps everything. Unsynced records are always kept.
func (e *Evictor) Purge(ctx context.Context, retentionDays *int) ([]models.Record, error) {
	all, err := e.store.All(ctx)
	if err != nil {
		return nil, err
	}

	kept := all
	if retentionDays != nil {
		cutoff := e.now().AddDate(0, 0, -*retentionDays)
		kept = make([]models.Record, 0, len(all))
		for _, r := range all {
			if !r.Synced || !r.Timestamp.Before(cutoff) {
				kept = append(kept, r)
			}
		}
	}

	if len(kept) != len(all) {
		if err := e.store.ReplaceAll(ctx, kept); err != nil {
			return nil, err
		}
		e.log.Infof("retention removed %d of %d records", len(all)-len(kept), len(all))
	}

	sort.SliceStable(kept, func(i, j int) bool { return kept[i].Timestamp.After(kept[j].Timestamp) })
	e.publish(kept)
	return kept, nil
}

// Watch re-runs Purge whenever retentionDays changes. It returns the
// unsubscribe function.
func (e *Evictor) Watch(ctx context.Context, src SettingsSource) func() {
	return src.Subscribe(func(prev, next models.Settings) {
		if sameDays(prev.RetentionDays, next.RetentionDays) {
			return
		}
		if _, err := e.Purge(ctx, next.RetentionDays); err != nil {
			e.log.Warnf("retention purge failed: %v", err)
		}
	})
}

func sameDays(a, b *int) bool {
	if a == nil || b == nil {
		return a == nil && b == nil
	}
	return *a == *b
}
