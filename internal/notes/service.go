// Package notes is the device write path: it validates user input, writes
// the local store and asks the sync worker to run.
package notes

import (
	"context"
	"fmt"
	"regexp"
	"sort"
	"strings"
	"time"
	"unicode/utf8"

	"github.com/google/uuid"

	"pebble-sync/internal/common"
	"pebble-sync/internal/localstore"
	"pebble-sync/internal/models"
)

var datePattern = regexp.MustCompile(`^\d{4}-\d{2}-\d{2}$`)

// Enqueuer schedules a sync pass.
type Enqueuer interface {
	Enqueue()
}

type Service struct {
	store localstore.Store
	queue Enqueuer
	now   func() time.Time
}

func NewService(store localstore.Store, queue Enqueuer) *Service {
	return &Service{store: store, queue: queue, now: time.Now}
}

func (s *Service) WithClock(now func() time.Time) *Service {
	s.now = now
	return s
}

func (s *Service) AddNote(ctx context.Context, content string, tags []string) (models.Record, error) {
	content, err := validateContent(content)
	if err != nil {
		return models.Record{}, err
	}
	rec := models.Record{
		ID:        uuid.NewString(),
		Kind:      models.TypeNote,
		Content:   content,
		Tags:      normalizeTags(tags),
		Timestamp: s.now().UTC(),
	}
	return rec, s.write(ctx, rec)
}

// EditNote replaces content, and tags when tags is non-nil. The record is
// pushed again on the next sync.
func (s *Service) EditNote(ctx context.Context, id, content string, tags []string) (models.Record, error) {
	rec, err := s.store.Get(ctx, id)
	if err != nil {
		return rec, err
	}
	if rec.Kind == models.TypeTask {
		return rec, fmt.Errorf("%w: %s is a task", common.ErrValidation, id)
	}
	if rec.Content, err = validateContent(content); err != nil {
		return rec, err
	}
	if tags != nil {
		rec.Tags = normalizeTags(tags)
	}
	rec.Synced = false
	return rec, s.write(ctx, rec)
}

type TaskInput struct {
	Title         string
	Description   string
	Date          string
	TimeSlot      string
	ScheduledTime string
	Tags          []string
}

func (s *Service) AddTask(ctx context.Context, in TaskInput) (models.Record, error) {
	title := strings.TrimSpace(in.Title)
	if title == "" {
		return models.Record{}, fmt.Errorf("%w: title is required", common.ErrValidation)
	}
	date := strings.TrimSpace(in.Date)
	if date == "" {
		date = s.now().Format("2006-01-02")
	}
	if !datePattern.MatchString(date) {
		return models.Record{}, fmt.Errorf("%w: date must be YYYY-MM-DD", common.ErrValidation)
	}
	slot := strings.ToLower(strings.TrimSpace(in.TimeSlot))
	switch slot {
	case "":
		slot = models.SlotMorning
	case models.SlotMorning, models.SlotAfternoon, models.SlotEvening:
	default:
		return models.Record{}, fmt.Errorf("%w: timeSlot must be morning, afternoon or evening", common.ErrValidation)
	}
	rec := models.Record{
		ID:        uuid.NewString(),
		Kind:      models.TypeTask,
		Content:   title,
		Tags:      normalizeTags(in.Tags),
		Timestamp: s.now().UTC(),
		Task: &models.TaskFields{
			Title:         title,
			Description:   strings.TrimSpace(in.Description),
			Date:          date,
			TimeSlot:      slot,
			ScheduledTime: strings.TrimSpace(in.ScheduledTime),
		},
	}
	return rec, s.write(ctx, rec)
}

// SetTaskCompleted flips completion and re-arms the task for sync.
func (s *Service) SetTaskCompleted(ctx context.Context, id string, completed bool) (models.Record, error) {
	rec, err := s.store.Get(ctx, id)
	if err != nil {
		return rec, err
	}
	if rec.Task == nil {
		return rec, fmt.Errorf("%w: %s is not a task", common.ErrValidation, id)
	}
	rec.Task.Completed = completed
	rec.Synced = false
	return rec, s.write(ctx, rec)
}

func (s *Service) Delete(ctx context.Context, id string) error {
	if _, err := s.store.Get(ctx, id); err != nil {
		return err
	}
	return s.store.Remove(ctx, id)
}

// List returns records of kind (all kinds when empty), newest first.
func (s *Service) List(ctx context.Context, kind string) ([]models.Record, error) {
	all, err := s.store.All(ctx)
	if err != nil {
		return nil, err
	}
	out := all[:0]
	for _, r := range all {
		if kind == "" || r.Kind == kind {
			out = append(out, r)
		}
	}
	sort.SliceStable(out, func(i, j int) bool { return out[i].Timestamp.After(out[j].Timestamp) })
	return out, nil
}

func (s *Service) write(ctx context.Context, rec models.Record) error {
	if err := s.store.Put(ctx, rec); err != nil {
		return err
	}
	s.queue.Enqueue()
	return nil
}

func validateContent(content string) (string, error) {
	content = strings.TrimSpace(content)
	if content == "" {
		return "", fmt.Errorf("%w: content is required", common.ErrValidation)
	}
	if utf8.RuneCountInString(content) > models.MaxNoteLength {
		return "", fmt.Errorf("%w: content exceeds %d characters", common.ErrValidation, models.MaxNoteLength)
	}
	return content, nil
}

func normalizeTags(tags []string) []string {
	seen := map[string]bool{}
	out := []string{}
	for _, t := range tags {
		t = strings.ToLower(strings.TrimPrefix(strings.TrimSpace(t), "#"))
		if t == "" || seen[t] {
			continue
		}
		seen[t] = true
		out = append(out, t)
	}
	return out
}
