package localstore

import (
	"context"
	"sort"
	"sync"

	"pebble-sync/internal/models"
)

type Ephemeral struct {
	mu       sync.RWMutex
	records  map[string]models.Record
	settings *models.Settings
	prefs    map[string]string
}

func NewEphemeral() *Ephemeral {
	return &Ephemeral{records: map[string]models.Record{}, prefs: map[string]string{}}
}

func (s *Ephemeral) Put(_ context.Context, rec models.Record) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	rec = cloneRecord(rec)
	if prev, ok := s.records[rec.ID]; ok {
		rec.Revision = prev.Revision + 1
	}
	s.records[rec.ID] = rec
	return nil
}

func (s *Ephemeral) Get(_ context.Context, id string) (models.Record, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	r, ok := s.records[id]
	if !ok {
		return models.Record{}, ErrNotFound
	}
	return cloneRecord(r), nil
}

func (s *Ephemeral) All(_ context.Context) ([]models.Record, error) {
	return s.filter(func(models.Record) bool { return true }), nil
}

func (s *Ephemeral) Unsynced(_ context.Context) ([]models.Record, error) {
	return s.filter(func(r models.Record) bool { return !r.Synced }), nil
}

func (s *Ephemeral) filter(keep func(models.Record) bool) []models.Record {
	s.mu.RLock()
	defer s.mu.RUnlock()
	out := make([]models.Record, 0, len(s.records))
	for _, r := range s.records {
		if keep(r) {
			out = append(out, cloneRecord(r))
		}
	}
	sort.Slice(out, func(i, j int) bool { return out[i].Timestamp.Before(out[j].Timestamp) })
	return out
}

func (s *Ephemeral) Remove(_ context.Context, id string) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	delete(s.records, id)
	return nil
}

func (s *Ephemeral) Clear(_ context.Context) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.records = map[string]models.Record{}
	return nil
}

func (s *Ephemeral) MarkSynced(_ context.Context, id string, revision int64) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if r, ok := s.records[id]; ok && r.Revision == revision {
		r.Synced = true
		s.records[id] = r
	}
	return nil
}

func (s *Ephemeral) ReplaceAll(_ context.Context, recs []models.Record) error {
	next := make(map[string]models.Record, len(recs))
	for _, r := range recs {
		next[r.ID] = cloneRecord(r)
	}
	s.mu.Lock()
	defer s.mu.Unlock()
	s.records = next
	return nil
}

func (s *Ephemeral) LoadSettings(_ context.Context) (models.Settings, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	if s.settings == nil {
		return models.Settings{}, ErrNotFound
	}
	return *s.settings, nil
}

func (s *Ephemeral) SaveSettings(_ context.Context, st models.Settings) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.settings = &st
	return nil
}

func (s *Ephemeral) LoadPreference(_ context.Context, id string) (string, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	v, ok := s.prefs[id]
	if !ok {
		return "", ErrNotFound
	}
	return v, nil
}

func (s *Ephemeral) SavePreference(_ context.Context, id, value string) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.prefs[id] = value
	return nil
}

func (s *Ephemeral) Backing() Backing { return BackingEphemeral }

func (s *Ephemeral) Close() error { return nil }
