package repos

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"time"

	"pebble-sync/internal/dbx"
	"pebble-sync/internal/migrations"
)

type SQLiteKV struct {
	db  *sql.DB
	now func() time.Time
}

// OpenSQLiteKV opens the database at dsn and applies the server schema.
func OpenSQLiteKV(ctx context.Context, dsn string) (*SQLiteKV, error) {
	db, err := dbx.OpenSQLite(ctx, dsn)
	if err != nil {
		return nil, err
	}
	if err := migrations.UpServer(ctx, db); err != nil {
		_ = db.Close()
		return nil, err
	}
	return NewSQLiteKV(db), nil
}

func NewSQLiteKV(db *sql.DB) *SQLiteKV {
	return &SQLiteKV{db: db, now: time.Now}
}

// WithClock replaces the time source used for expiration checks.
func (r *SQLiteKV) WithClock(now func() time.Time) *SQLiteKV {
	r.now = now
	return r
}

func (r *SQLiteKV) DB() *sql.DB {
	return r.db
}

func (r *SQLiteKV) Close() error {
	return r.db.Close()
}

func (r *SQLiteKV) Put(ctx context.Context, key string, value []byte, ttl time.Duration) error {
	_, err := r.db.ExecContext(ctx, `
		INSERT INTO kv_entries (key, value, expires_at)
		VALUES (?, ?, ?)
		ON CONFLICT(key) DO UPDATE SET
			value = excluded.value,
			expires_at = excluded.expires_at
	`, key, string(value), expiresAt(r.now(), ttl))
	if err != nil {
		return fmt.Errorf("put %s: %w", key, err)
	}
	return nil
}

func (r *SQLiteKV) PutIfAbsent(ctx context.Context, key string, value []byte, ttl time.Duration) error {
	now := r.now()
	res, err := r.db.ExecContext(ctx, `
		INSERT INTO kv_entries (key, value, expires_at)
		VALUES (?, ?, ?)
		ON CONFLICT(key) DO UPDATE SET
			value = excluded.value,
			expires_at = excluded.expires_at
		WHERE kv_entries.expires_at IS NOT NULL AND kv_entries.expires_at <= ?
	`, key, string(value), expiresAt(now, ttl), now.UnixMilli())
	if err != nil {
		return fmt.Errorf("put %s: %w", key, err)
	}
	n, err := res.RowsAffected()
	if err != nil {
		return err
	}
	if n == 0 {
		return ErrConflict
	}
	return nil
}

func (r *SQLiteKV) Get(ctx context.Context, key string) ([]byte, error) {
	var v string
	err := r.db.QueryRowContext(ctx, `
		SELECT value FROM kv_entries
		WHERE key = ? AND (expires_at IS NULL OR expires_at > ?)
	`, key, r.now().UnixMilli()).Scan(&v)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, ErrNotFound
		}
		return nil, fmt.Errorf("get %s: %w", key, err)
	}
	return []byte(v), nil
}

func (r *SQLiteKV) List(ctx context.Context, opts ListOptions) (*ListResult, error) {
	limit := -1
	if opts.Limit > 0 {
		limit = opts.Limit + 1
	}
	rows, err := r.db.QueryContext(ctx, `
		SELECT key, value FROM kv_entries
		WHERE substr(key, 1, length(?)) = ?
			AND key > ?
			AND (expires_at IS NULL OR expires_at > ?)
		ORDER BY key ASC
		LIMIT ?
	`, opts.Prefix, opts.Prefix, opts.After, r.now().UnixMilli(), limit)
	if err != nil {
		return nil, fmt.Errorf("list %s: %w", opts.Prefix, err)
	}
	defer rows.Close()

	out := &ListResult{}
	for rows.Next() {
		var (
			k string
			v string
		)
		if err := rows.Scan(&k, &v); err != nil {
			return nil, err
		}
		out.Entries = append(out.Entries, Entry{Key: k, Value: []byte(v)})
	}
	if err := rows.Err(); err != nil {
		return nil, err
	}
	if opts.Limit > 0 && len(out.Entries) > opts.Limit {
		out.Entries = out.Entries[:opts.Limit]
		out.HasMore = true
	}
	return out, nil
}

func (r *SQLiteKV) Delete(ctx context.Context, key string) error {
	if _, err := r.db.ExecContext(ctx, `DELETE FROM kv_entries WHERE key = ?`, key); err != nil {
		return fmt.Errorf("delete %s: %w", key, err)
	}
	return nil
}

func (r *SQLiteKV) PurgeExpired(ctx context.Context) (int64, error) {
	res, err := r.db.ExecContext(ctx, `
		DELETE FROM kv_entries WHERE expires_at IS NOT NULL AND expires_at <= ?
	`, r.now().UnixMilli())
	if err != nil {
		return 0, fmt.Errorf("purge expired: %w", err)
	}
	return res.RowsAffected()
}
