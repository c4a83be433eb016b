// Package localstore holds the device's records, settings and display
// preference. Two backings share one interface: a durable SQLite file and an
// in-memory map used when the file cannot be opened.
package localstore

import (
	"context"

	"pebble-sync/internal/common"
	"pebble-sync/internal/logging"
	"pebble-sync/internal/models"
)

var ErrNotFound = common.ErrNotFound

type Backing string

const (
	BackingDurable   Backing = "durable"
	BackingEphemeral Backing = "ephemeral"
)

// Store is the local record store. Every mutation is durable before it
// returns when the backing is durable.
type Store interface {
	Put(ctx context.Context, rec models.Record) error
	Get(ctx context.Context, id string) (models.Record, error)
	All(ctx context.Context) ([]models.Record, error)
	Remove(ctx context.Context, id string) error
	Clear(ctx context.Context) error

	// MarkSynced flips one record to synced if it is still at revision.
	// A missing id or a newer revision is not an error: the record was
	// deleted or edited while its push was in flight and stays as it is.
	MarkSynced(ctx context.Context, id string, revision int64) error
	// Unsynced returns records whose synced flag is false or unset.
	Unsynced(ctx context.Context) ([]models.Record, error)
	// ReplaceAll atomically swaps the whole record set.
	ReplaceAll(ctx context.Context, recs []models.Record) error

	// LoadSettings returns ErrNotFound before the first save.
	LoadSettings(ctx context.Context) (models.Settings, error)
	SaveSettings(ctx context.Context, s models.Settings) error
	LoadPreference(ctx context.Context, id string) (string, error)
	SavePreference(ctx context.Context, id, value string) error

	Backing() Backing
	Close() error
}

// Open probes the durable backing at path and falls back to an ephemeral
// store when it is unavailable. An empty path selects the ephemeral store.
func Open(ctx context.Context, path string, logger *logging.Logger) Store {
	if path == "" {
		logger.Warnf("no data path configured; records will not survive restart")
		return NewEphemeral()
	}
	s, err := OpenDurable(ctx, path)
	if err != nil {
		logger.Warnf("durable store unavailable at %s, falling back to memory: %v", path, err)
		return NewEphemeral()
	}
	return s
}

func cloneRecord(r models.Record) models.Record {
	out := r
	if r.Tags != nil {
		out.Tags = append([]string(nil), r.Tags...)
	}
	if r.Task != nil {
		t := *r.Task
		out.Task = &t
	}
	return out
}
