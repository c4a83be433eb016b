package state

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"time"

	"pebble-sync/internal/common"
	"pebble-sync/internal/localstore"
	"pebble-sync/internal/logging"
	"pebble-sync/internal/models"
)

type SyncStatus struct {
	Syncing    bool       `json:"syncing"`
	LastSyncAt *time.Time `json:"lastSyncAt"`
	LastError  string     `json:"lastError,omitempty"`
}

// SettingsObserver is called after a settings change has been persisted.
type SettingsObserver func(prev, next models.Settings)

// AppState is the device's settings and sync status. It is passed
// explicitly to the syncer and evictor instead of living in globals.
type AppState struct {
	mu sync.RWMutex

	store localstore.Store
	log   *logging.Logger
	now   func() time.Time

	settings   models.Settings
	syncStatus SyncStatus
	inflight   int

	nextSub   int
	observers map[int]SettingsObserver
}

// Load reads persisted settings, creating the defaults on first run. A
// store that cannot be read yields defaults and a warning.
func Load(ctx context.Context, store localstore.Store, logger *logging.Logger) *AppState {
	s := &AppState{
		store:     store,
		log:       logger,
		now:       time.Now,
		observers: map[int]SettingsObserver{},
	}
	st, err := store.LoadSettings(ctx)
	switch {
	case errors.Is(err, common.ErrNotFound):
		st = models.DefaultSettings()
		if err := store.SaveSettings(ctx, st); err != nil {
			logger.Warnf("persist default settings: %v", err)
		}
	case err != nil:
		logger.Warnf("load settings, using defaults: %v", err)
		st = models.DefaultSettings()
	default:
		st = fillDefaults(st)
	}
	s.settings = st
	return s
}

func (s *AppState) WithClock(now func() time.Time) *AppState {
	s.now = now
	return s
}

func (s *AppState) Settings() models.Settings {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return copySettings(s.settings)
}

// UpdateSettings applies fn to a copy of the current settings, validates,
// persists and then publishes the result. Nothing changes on error.
func (s *AppState) UpdateSettings(ctx context.Context, fn func(*models.Settings)) (models.Settings, error) {
	s.mu.Lock()
	prev := copySettings(s.settings)
	next := copySettings(s.settings)
	fn(&next)
	if err := next.Validate(); err != nil {
		s.mu.Unlock()
		return prev, err
	}
	if err := s.store.SaveSettings(ctx, next); err != nil {
		s.mu.Unlock()
		return prev, fmt.Errorf("save settings: %w", err)
	}
	s.settings = next
	observers := s.observerList()
	s.mu.Unlock()

	for _, fn := range observers {
		fn(copySettings(prev), copySettings(next))
	}
	return copySettings(next), nil
}

// ResetSettings restores and publishes the defaults.
func (s *AppState) ResetSettings(ctx context.Context) (models.Settings, error) {
	return s.UpdateSettings(ctx, func(st *models.Settings) { *st = models.DefaultSettings() })
}

// Subscribe registers fn for settings changes and returns a function that
// removes it.
func (s *AppState) Subscribe(fn SettingsObserver) func() {
	s.mu.Lock()
	defer s.mu.Unlock()
	id := s.nextSub
	s.nextSub++
	s.observers[id] = fn
	return func() {
		s.mu.Lock()
		defer s.mu.Unlock()
		delete(s.observers, id)
	}
}

func (s *AppState) observerList() []SettingsObserver {
	out := make([]SettingsObserver, 0, len(s.observers))
	for i := 0; i < s.nextSub; i++ {
		if fn, ok := s.observers[i]; ok {
			out = append(out, fn)
		}
	}
	return out
}

// BeginSync marks a sync batch as running. Overlapping batches keep the
// flag set until the last one ends.
func (s *AppState) BeginSync() {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.inflight++
	s.syncStatus.Syncing = true
}

// EndSync records the end of a batch. err is the batch-level failure, if
// any; per-record push failures are not reported here.
func (s *AppState) EndSync(err error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.inflight > 0 {
		s.inflight--
	}
	s.syncStatus.Syncing = s.inflight > 0
	now := s.now().UTC()
	s.syncStatus.LastSyncAt = &now
	if err != nil {
		s.syncStatus.LastError = err.Error()
	} else {
		s.syncStatus.LastError = ""
	}
}

func (s *AppState) SyncStatusSnapshot() SyncStatus {
	s.mu.RLock()
	defer s.mu.RUnlock()
	st := s.syncStatus
	if st.LastSyncAt != nil {
		t := *st.LastSyncAt
		st.LastSyncAt = &t
	}
	return st
}

// Theme returns the stored display preference, "device" when unset.
func (s *AppState) Theme(ctx context.Context) string {
	v, err := s.store.LoadPreference(ctx, models.PreferenceTheme)
	if err != nil {
		if !errors.Is(err, common.ErrNotFound) {
			s.log.Warnf("load theme: %v", err)
		}
		return models.ThemeDevice
	}
	return v
}

func (s *AppState) SetTheme(ctx context.Context, theme string) error {
	switch theme {
	case models.ThemeLight, models.ThemeDark, models.ThemeDevice:
	default:
		return fmt.Errorf("%w: theme must be light, dark or device", common.ErrValidation)
	}
	return s.store.SavePreference(ctx, models.PreferenceTheme, theme)
}

func fillDefaults(st models.Settings) models.Settings {
	def := models.DefaultSettings()
	if st.SyncRetentionDays == 0 {
		st.SyncRetentionDays = def.SyncRetentionDays
	}
	if st.NotificationMethod == "" {
		st.NotificationMethod = def.NotificationMethod
	}
	return st
}

func copySettings(st models.Settings) models.Settings {
	out := st
	if st.SyncToken != nil {
		v := *st.SyncToken
		out.SyncToken = &v
	}
	if st.RetentionDays != nil {
		v := *st.RetentionDays
		out.RetentionDays = &v
	}
	return out
}
