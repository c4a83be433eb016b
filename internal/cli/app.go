package cli

import (
	"context"

	"pebble-sync/internal/cloudsync"
	"pebble-sync/internal/config"
	"pebble-sync/internal/localstore"
	"pebble-sync/internal/logging"
	"pebble-sync/internal/notes"
	"pebble-sync/internal/retention"
	"pebble-sync/internal/state"
)

// app wires the device components for one command invocation.
type app struct {
	cfg     config.ClientConfig
	log     *logging.Logger
	store   localstore.Store
	state   *state.AppState
	client  *cloudsync.Client
	syncer  *cloudsync.Syncer
	worker  *cloudsync.Worker
	notes   *notes.Service
	evictor *retention.Evictor

	stopWatch func()
}

func openApp(ctx context.Context, opts *RootOptions) (*app, error) {
	cfg, err := config.LoadClient(opts.ConfigPath)
	if err != nil {
		return nil, err
	}
	if opts.DataPath != "" {
		cfg.DataPath = opts.DataPath
	}
	if opts.BaseURL != "" {
		cfg.BaseURL = opts.BaseURL
	}
	if opts.LogLevel != "" {
		cfg.LogLevel = opts.LogLevel
	}

	logger := logging.New(cfg.LogLevel)
	store := localstore.Open(ctx, cfg.DataPath, logger)
	st := state.Load(ctx, store, logger)

	client := cloudsync.NewClient(cloudsync.NewHTTPClient(cfg.RequestTimeout()), cfg.BaseURL)
	syncer := cloudsync.NewSyncer(store, st, client, logger.With("component", "sync"))
	worker := cloudsync.NewWorker(syncer, logger)

	a := &app{
		cfg:     cfg,
		log:     logger,
		store:   store,
		state:   st,
		client:  client,
		syncer:  syncer,
		worker:  worker,
		notes:   notes.NewService(store, worker),
		evictor: retention.NewEvictor(store, logger.With("component", "retention"), nil),
	}

	if _, err := a.evictor.Purge(ctx, st.Settings().RetentionDays); err != nil {
		logger.Warnf("startup retention purge failed: %v", err)
	}
	a.stopWatch = a.evictor.Watch(ctx, st)
	if st.Settings().AutoSyncOnStart {
		worker.Enqueue()
	}
	return a, nil
}

// settle pushes whatever the command queued. Failures stay unsynced for
// the next run.
func (a *app) settle(ctx context.Context) {
	if !a.state.Settings().SyncEnabled {
		return
	}
	if _, err := a.worker.Flush(ctx); err != nil {
		a.log.Warnf("sync failed: %v", err)
	}
}

func (a *app) token() string {
	return a.state.Settings().Token()
}

func (a *app) Close() error {
	if a.stopWatch != nil {
		a.stopWatch()
	}
	return a.store.Close()
}

// withApp opens the app, runs fn and closes the app.
func withApp(ctx context.Context, opts *RootOptions, fn func(a *app) error) error {
	a, err := openApp(ctx, opts)
	if err != nil {
		return err
	}
	defer a.Close()
	return fn(a)
}
