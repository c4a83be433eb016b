package localstore

import (
	"context"
	"database/sql"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"pebble-sync/internal/dbx"
	"pebble-sync/internal/migrations"
	"pebble-sync/internal/models"
)

const settingsID = "settings"

// Durable keeps records in a SQLite file. Each statement runs in
// autocommit mode or inside dbx.WithTx, so a returned call is on disk.
type Durable struct {
	db *sql.DB
}

// OpenDurable opens (creating if needed) the database at path and migrates
// it to the current schema.
func OpenDurable(ctx context.Context, path string) (*Durable, error) {
	db, err := dbx.OpenSQLite(ctx, path)
	if err != nil {
		return nil, err
	}
	if err := migrations.UpDevice(ctx, db); err != nil {
		_ = db.Close()
		return nil, err
	}
	return &Durable{db: db}, nil
}

func (s *Durable) Put(ctx context.Context, rec models.Record) error {
	return putRecord(ctx, s.db, rec)
}

func putRecord(ctx context.Context, q dbx.DBTX, rec models.Record) error {
	tags := rec.Tags
	if tags == nil {
		tags = []string{}
	}
	tagsJSON, err := json.Marshal(tags)
	if err != nil {
		return err
	}
	var task sql.NullString
	if rec.Task != nil {
		b, err := json.Marshal(rec.Task)
		if err != nil {
			return err
		}
		task = sql.NullString{String: string(b), Valid: true}
	}
	kind := rec.Kind
	if kind == "" {
		kind = models.TypeNote
	}
	_, err = q.ExecContext(ctx, `
		INSERT INTO records (id, kind, content, tags, created_at, synced, task, revision)
		VALUES (?, ?, ?, ?, ?, ?, ?, ?)
		ON CONFLICT(id) DO UPDATE SET
			kind = excluded.kind,
			content = excluded.content,
			tags = excluded.tags,
			created_at = excluded.created_at,
			synced = excluded.synced,
			task = excluded.task,
			revision = records.revision + 1
	`, rec.ID, kind, rec.Content, string(tagsJSON), rec.Timestamp.UnixMilli(), boolToInt(rec.Synced), task, rec.Revision)
	if err != nil {
		return fmt.Errorf("put record %s: %w", rec.ID, err)
	}
	return nil
}

const selectRecords = `SELECT id, kind, content, tags, created_at, synced, task, revision FROM records`

func (s *Durable) Get(ctx context.Context, id string) (models.Record, error) {
	recs, err := s.query(ctx, selectRecords+` WHERE id = ?`, id)
	if err != nil {
		return models.Record{}, err
	}
	if len(recs) == 0 {
		return models.Record{}, ErrNotFound
	}
	return recs[0], nil
}

func (s *Durable) All(ctx context.Context) ([]models.Record, error) {
	return s.query(ctx, selectRecords+` ORDER BY created_at ASC`)
}

func (s *Durable) Unsynced(ctx context.Context) ([]models.Record, error) {
	return s.query(ctx, selectRecords+` WHERE synced IS NULL OR synced = 0 ORDER BY created_at ASC`)
}

func (s *Durable) query(ctx context.Context, q string, args ...any) ([]models.Record, error) {
	rows, err := s.db.QueryContext(ctx, q, args...)
	if err != nil {
		return nil, fmt.Errorf("query records: %w", err)
	}
	defer rows.Close()

	var out []models.Record
	for rows.Next() {
		var (
			rec       models.Record
			tagsJSON  string
			createdAt int64
			synced    sql.NullInt64
			task      sql.NullString
		)
		if err := rows.Scan(&rec.ID, &rec.Kind, &rec.Content, &tagsJSON, &createdAt, &synced, &task, &rec.Revision); err != nil {
			return nil, err
		}
		rec.Timestamp = time.UnixMilli(createdAt).UTC()
		rec.Synced = synced.Valid && synced.Int64 != 0
		if err := json.Unmarshal([]byte(tagsJSON), &rec.Tags); err != nil || rec.Tags == nil {
			rec.Tags = []string{}
		}
		if task.Valid && task.String != "" {
			var tf models.TaskFields
			if err := json.Unmarshal([]byte(task.String), &tf); err == nil {
				rec.Task = &tf
			}
		}
		out = append(out, rec)
	}
	return out, rows.Err()
}

func (s *Durable) Remove(ctx context.Context, id string) error {
	if _, err := s.db.ExecContext(ctx, `DELETE FROM records WHERE id = ?`, id); err != nil {
		return fmt.Errorf("remove record %s: %w", id, err)
	}
	return nil
}

func (s *Durable) Clear(ctx context.Context) error {
	if _, err := s.db.ExecContext(ctx, `DELETE FROM records`); err != nil {
		return fmt.Errorf("clear records: %w", err)
	}
	return nil
}

func (s *Durable) MarkSynced(ctx context.Context, id string, revision int64) error {
	if _, err := s.db.ExecContext(ctx, `UPDATE records SET synced = 1 WHERE id = ? AND revision = ?`, id, revision); err != nil {
		return fmt.Errorf("mark %s synced: %w", id, err)
	}
	return nil
}

func (s *Durable) ReplaceAll(ctx context.Context, recs []models.Record) error {
	return dbx.WithTx(ctx, s.db, func(ctx context.Context, tx dbx.DBTX) error {
		if _, err := tx.ExecContext(ctx, `DELETE FROM records`); err != nil {
			return err
		}
		for _, r := range recs {
			if err := putRecord(ctx, tx, r); err != nil {
				return err
			}
		}
		return nil
	})
}

func (s *Durable) LoadSettings(ctx context.Context) (models.Settings, error) {
	var st models.Settings
	raw, err := s.loadValue(ctx, "settings", settingsID)
	if err != nil {
		return st, err
	}
	if err := json.Unmarshal([]byte(raw), &st); err != nil {
		return st, fmt.Errorf("decode settings: %w", err)
	}
	return st, nil
}

func (s *Durable) SaveSettings(ctx context.Context, st models.Settings) error {
	b, err := json.Marshal(st)
	if err != nil {
		return err
	}
	return s.saveValue(ctx, "settings", settingsID, string(b))
}

func (s *Durable) LoadPreference(ctx context.Context, id string) (string, error) {
	return s.loadValue(ctx, "preferences", id)
}

func (s *Durable) SavePreference(ctx context.Context, id, value string) error {
	return s.saveValue(ctx, "preferences", id, value)
}

// table is one of two fixed names, never user input.
func (s *Durable) loadValue(ctx context.Context, table, id string) (string, error) {
	var v string
	err := s.db.QueryRowContext(ctx, `SELECT value FROM `+table+` WHERE id = ?`, id).Scan(&v)
	if errors.Is(err, sql.ErrNoRows) {
		return "", ErrNotFound
	}
	if err != nil {
		return "", fmt.Errorf("load %s %s: %w", table, id, err)
	}
	return v, nil
}

func (s *Durable) saveValue(ctx context.Context, table, id, value string) error {
	_, err := s.db.ExecContext(ctx, `
		INSERT INTO `+table+` (id, value) VALUES (?, ?)
		ON CONFLICT(id) DO UPDATE SET value = excluded.value
	`, id, value)
	if err != nil {
		return fmt.Errorf("save %s %s: %w", table, id, err)
	}
	return nil
}

func (s *Durable) Backing() Backing { return BackingDurable }

func (s *Durable) Close() error { return s.db.Close() }

func boolToInt(b bool) int {
	if b {
		return 1
	}
	return 0
}
