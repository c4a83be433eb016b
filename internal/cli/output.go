package cli

import (
	"encoding/json"
	"fmt"
	"io"
	"strings"
	"time"

	"pebble-sync/internal/models"
)

type printer struct {
	format string
	w      io.Writer
}

func newPrinter(opts *RootOptions, w io.Writer) *printer {
	return &printer{format: opts.Format, w: w}
}

// emit writes v as JSON, or calls text for the text format.
func (p *printer) emit(v any, text func(w io.Writer)) error {
	if p.format == "json" {
		enc := json.NewEncoder(p.w)
		enc.SetIndent("", "  ")
		return enc.Encode(v)
	}
	text(p.w)
	return nil
}

func printRecord(w io.Writer, r models.Record) {
	mark := "*"
	if r.Synced {
		mark = " "
	}
	line := r.Content
	if r.Task != nil {
		done := "[ ]"
		if r.Task.Completed {
			done = "[x]"
		}
		line = fmt.Sprintf("%s %s (%s %s)", done, r.Task.Title, r.Task.Date, r.Task.TimeSlot)
	}
	tags := ""
	if len(r.Tags) > 0 {
		tags = " #" + strings.Join(r.Tags, " #")
	}
	fmt.Fprintf(w, "%s %s  %s  %s%s\n", mark, r.ID[:min(8, len(r.ID))], r.Timestamp.Local().Format(time.DateTime), line, tags)
}

func printEnvelope(w io.Writer, e models.Envelope) {
	fmt.Fprintf(w, "%s  %-4s  %s  ttl=%dd\n", e.SyncedAt.Local().Format(time.DateTime), e.Type, strings.TrimRight(e.Markdown, "\n"), e.TTLDays)
}
