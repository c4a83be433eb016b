package repos

import (
	"context"
	"time"

	"pebble-sync/internal/common"
)

var (
	ErrNotFound = common.ErrNotFound
	ErrConflict = common.ErrConflict
)

// Entry is a live key-value pair returned by a scan.
type Entry struct {
	Key   string
	Value []byte
}

type ListOptions struct {
	Prefix string
	// After excludes every key up to and including it.
	After string
	// Limit <= 0 means no limit.
	Limit int
}

type ListResult struct {
	Entries []Entry
	HasMore bool
}

// KV is a durable key-value space with per-entry expiration. Expired entries
// are invisible to reads; PurgeExpired reclaims them.
type KV interface {
	// Put stores value under key. A zero ttl never expires.
	Put(ctx context.Context, key string, value []byte, ttl time.Duration) error
	// PutIfAbsent is Put that fails with ErrConflict when a live entry exists.
	PutIfAbsent(ctx context.Context, key string, value []byte, ttl time.Duration) error
	Get(ctx context.Context, key string) ([]byte, error)
	// List scans live entries in ascending key order.
	List(ctx context.Context, opts ListOptions) (*ListResult, error)
	Delete(ctx context.Context, key string) error
	PurgeExpired(ctx context.Context) (int64, error)
	Close() error
}

func expiresAt(now time.Time, ttl time.Duration) *int64 {
	if ttl <= 0 {
		return nil
	}
	v := now.Add(ttl).UnixMilli()
	return &v
}
