package cloudsync

import (
	"context"
	"time"

	"pebble-sync/internal/logging"
)

// Worker drains sync requests. Enqueue never blocks: requests arriving
// while one is pending collapse into it, since a single batch covers every
// unsynced record.
type Worker struct {
	syncer  *Syncer
	log     *logging.Logger
	pending chan struct{}
}

func NewWorker(syncer *Syncer, logger *logging.Logger) *Worker {
	return &Worker{syncer: syncer, log: logger, pending: make(chan struct{}, 1)}
}

func (w *Worker) Enqueue() {
	select {
	case w.pending <- struct{}{}:
	default:
	}
}

// Run processes queued requests, and also syncs every interval when
// interval is positive, until ctx is cancelled.
func (w *Worker) Run(ctx context.Context, interval time.Duration) {
	var tick <-chan time.Time
	if interval > 0 {
		ticker := time.NewTicker(interval)
		defer ticker.Stop()
		tick = ticker.C
	}
	for {
		select {
		case <-ctx.Done():
			return
		case <-w.pending:
			w.once(ctx)
		case <-tick:
			w.once(ctx)
		}
	}
}

// Flush runs a pending request synchronously, if there is one.
func (w *Worker) Flush(ctx context.Context) (Result, error) {
	select {
	case <-w.pending:
		return w.syncer.SyncUnsynced(ctx)
	default:
		return Result{}, nil
	}
}

func (w *Worker) once(ctx context.Context) {
	if _, err := w.syncer.SyncUnsynced(ctx); err != nil && ctx.Err() == nil {
		w.log.Warnf("sync failed: %v", err)
	}
}
