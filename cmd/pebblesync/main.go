package main

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"golang.org/x/sync/errgroup"

	"pebble-sync/internal/config"
	httpapi "pebble-sync/internal/http"
	"pebble-sync/internal/logging"
	"pebble-sync/internal/repos"
	"pebble-sync/internal/services"
)

func main() {
	cfg := config.Load()
	logger := logging.New(cfg.LogLevel)
	if err := run(cfg, logger); err != nil {
		logger.Errorf("pebblesync: %v", err)
		os.Exit(1)
	}
}

func run(cfg config.Config, logger *logging.Logger) error {
	if cfg.MasterSecret == "" {
		return errors.New("PEBBLE_MASTER_SECRET is required")
	}

	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	kv, err := openKV(ctx, cfg)
	if err != nil {
		return err
	}
	defer kv.Close()

	history := services.NewHistoryService(kv, logger.With("component", "history"))
	keys := services.NewKeyService(kv, cfg.MasterSecret, logger.With("component", "keys"))
	router := httpapi.NewRouter(cfg, logger, history, keys)
	srv := &http.Server{Addr: ":" + cfg.Port, Handler: router, ReadHeaderTimeout: 10 * time.Second}

	g, gctx := errgroup.WithContext(ctx)
	g.Go(func() error {
		logger.Infof("pebblesync listening on :%s (store=%s)", cfg.Port, cfg.Store)
		if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			return err
		}
		return nil
	})
	g.Go(func() error {
		sweep(gctx, kv, cfg.SweepInterval, logger)
		return nil
	})
	g.Go(func() error {
		<-gctx.Done()
		shutdownCtx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
		defer cancel()
		return srv.Shutdown(shutdownCtx)
	})
	return g.Wait()
}

func openKV(ctx context.Context, cfg config.Config) (repos.KV, error) {
	switch cfg.Store {
	case config.StoreSQLite:
		return repos.OpenSQLiteKV(ctx, cfg.DatabaseURL)
	case config.StoreS3:
		if cfg.S3.Bucket == "" {
			return nil, errors.New("PEBBLE_S3_BUCKET is required for the s3 store")
		}
		client, err := repos.NewS3Client(ctx, repos.S3Options{
			Bucket:    cfg.S3.Bucket,
			Region:    cfg.S3.Region,
			Endpoint:  cfg.S3.Endpoint,
			AccessKey: cfg.S3.AccessKey,
			SecretKey: cfg.S3.SecretKey,
			Prefix:    cfg.S3.Prefix,
		})
		if err != nil {
			return nil, err
		}
		return repos.NewS3KV(client, cfg.S3.Bucket, cfg.S3.Prefix), nil
	default:
		return nil, fmt.Errorf("unknown store %q", cfg.Store)
	}
}

// sweep removes expired entries until ctx is cancelled. Reads already hide
// them; this only reclaims space.
func sweep(ctx context.Context, kv repos.KV, interval time.Duration, logger *logging.Logger) {
	ticker := time.NewTicker(interval)
	defer ticker.Stop()
	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			n, err := kv.PurgeExpired(ctx)
			if err != nil {
				logger.Warnf("expiry sweep failed: %v", err)
				continue
			}
			if n > 0 {
				logger.Infof("expiry sweep removed %d entries", n)
			}
		}
	}
}
