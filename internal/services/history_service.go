package services

import (
	"context"
	"encoding/json"
	"fmt"
	"sort"
	"strings"
	"time"

	"github.com/google/uuid"

	"pebble-sync/internal/common"
	"pebble-sync/internal/logging"
	"pebble-sync/internal/models"
	"pebble-sync/internal/repos"
)

const (
	syncPrefix = "sync:"

	// Fixed width so keys sort in write order.
	keyTimeLayout = "2006-01-02T15:04:05.000000000Z"

	DefaultTTLDays = 7

	defaultHistoryLimit = 10
	maxHistoryLimit     = 100
)

var allowedTTLDays = map[int]bool{7: true, 15: true, 30: true}

// ClampTTLDays maps any requested retention onto the allowed set,
// falling back to DefaultTTLDays.
func ClampTTLDays(days int) int {
	if allowedTTLDays[days] {
		return days
	}
	return DefaultTTLDays
}

type HistoryService struct {
	kv  repos.KV
	log *logging.Logger
	now func() time.Time
}

func NewHistoryService(kv repos.KV, logger *logging.Logger) *HistoryService {
	return &HistoryService{kv: kv, log: logger, now: time.Now}
}

func (s *HistoryService) WithClock(now func() time.Time) *HistoryService {
	s.now = now
	return s
}

// Push appends one envelope to the history. Every call creates a new entry,
// even for a record id that was pushed before.
func (s *HistoryService) Push(ctx context.Context, in models.PushRequest) (*models.PushResult, error) {
	if in.Type != models.TypeNote && in.Type != models.TypeTask {
		return nil, fmt.Errorf("%w: type must be note or task", common.ErrValidation)
	}
	if in.Markdown == "" {
		return nil, fmt.Errorf("%w: markdown is required", common.ErrValidation)
	}

	syncID := uuid.NewString()
	syncedAt := s.now().UTC()
	ttlDays := ClampTTLDays(in.TTLDays)

	env := models.Envelope{
		Type:      in.Type,
		Markdown:  in.Markdown,
		ID:        in.ID,
		CreatedAt: syncedAt,
		SyncedAt:  syncedAt,
		Tags:      in.Tags,
		TTLDays:   ttlDays,
	}
	if in.CreatedAt != nil && !in.CreatedAt.IsZero() {
		env.CreatedAt = in.CreatedAt.UTC()
	}
	if env.Tags == nil {
		env.Tags = []string{}
	}

	b, err := json.Marshal(env)
	if err != nil {
		return nil, err
	}
	key := syncKey(in.Type, syncedAt, syncID)
	if err := s.kv.Put(ctx, key, b, time.Duration(ttlDays)*24*time.Hour); err != nil {
		return nil, fmt.Errorf("%w: %v", common.ErrUnavailable, err)
	}
	return &models.PushResult{Success: true, SyncID: syncID}, nil
}

// Fetch returns every live envelope, newest first. Entries that fail to
// parse are skipped.
func (s *HistoryService) Fetch(ctx context.Context) ([]models.Envelope, error) {
	res, err := s.kv.List(ctx, repos.ListOptions{Prefix: syncPrefix})
	if err != nil {
		return nil, fmt.Errorf("%w: %v", common.ErrUnavailable, err)
	}
	items := s.decode(res.Entries)
	sort.SliceStable(items, func(i, j int) bool {
		return items[i].SyncedAt.After(items[j].SyncedAt)
	})
	return items, nil
}

// History pages through envelopes in key order (by type, then sync time).
// The cursor is the last key of the previous page.
func (s *HistoryService) History(ctx context.Context, limit int, cursor string) (*models.HistoryPage, error) {
	if limit <= 0 {
		limit = defaultHistoryLimit
	}
	if limit > maxHistoryLimit {
		limit = maxHistoryLimit
	}
	if cursor != "" && !strings.HasPrefix(cursor, syncPrefix) {
		return nil, fmt.Errorf("%w: invalid cursor", common.ErrValidation)
	}
	res, err := s.kv.List(ctx, repos.ListOptions{Prefix: syncPrefix, After: cursor, Limit: limit})
	if err != nil {
		return nil, fmt.Errorf("%w: %v", common.ErrUnavailable, err)
	}
	page := &models.HistoryPage{History: s.decode(res.Entries), HasMore: res.HasMore}
	if res.HasMore && len(res.Entries) > 0 {
		next := res.Entries[len(res.Entries)-1].Key
		page.Cursor = &next
	}
	return page, nil
}

func (s *HistoryService) decode(entries []repos.Entry) []models.Envelope {
	items := make([]models.Envelope, 0, len(entries))
	for _, e := range entries {
		var env models.Envelope
		if err := json.Unmarshal(e.Value, &env); err != nil {
			s.log.Warnf("skipping corrupted entry %s: %v", e.Key, err)
			continue
		}
		if env.Tags == nil {
			env.Tags = []string{}
		}
		items = append(items, env)
	}
	return items
}

func syncKey(typ string, syncedAt time.Time, syncID string) string {
	return syncPrefix + typ + ":" + syncedAt.UTC().Format(keyTimeLayout) + ":" + syncID
}
