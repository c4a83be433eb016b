package cloudsync

import (
	"strings"

	"pebble-sync/internal/models"
)

// RecordMarkdown renders a record as the markdown pushed to the history.
// Notes push their content verbatim; tasks become one checklist line plus
// an optional indented description.
func RecordMarkdown(r models.Record) string {
	if r.Kind != models.TypeTask || r.Task == nil {
		return r.Content
	}
	t := r.Task
	status := "⏳ Pending"
	if t.Completed {
		status = "✅ Completed"
	}
	var b strings.Builder
	b.WriteString("- [" + t.Title + "](" + status + ") - " + t.Date + " " + t.TimeSlot)
	if t.ScheduledTime != "" {
		b.WriteString(" at " + t.ScheduledTime)
	}
	b.WriteString("\n")
	if t.Description != "" {
		b.WriteString("  " + t.Description + "\n")
	}
	return b.String()
}

func envelopeFor(r models.Record, ttlDays int) models.PushRequest {
	kind := r.Kind
	if kind == "" {
		kind = models.TypeNote
	}
	created := r.Timestamp.UTC()
	tags := r.Tags
	if tags == nil {
		tags = []string{}
	}
	return models.PushRequest{
		Type:      kind,
		Markdown:  RecordMarkdown(r),
		ID:        r.ID,
		CreatedAt: &created,
		Tags:      tags,
		TTLDays:   ttlDays,
	}
}
