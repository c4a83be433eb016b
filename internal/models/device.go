package models

import (
	"fmt"
	"time"

	"pebble-sync/internal/common"
)

const MaxNoteLength = 500

const (
	SlotMorning   = "morning"
	SlotAfternoon = "afternoon"
	SlotEvening   = "evening"
)

// Record is a locally held note or task. Synced flips to true once per
// successful push and back to false on edit. Revision is bumped by the store
// on every overwrite of an existing record.
type Record struct {
	ID        string      `json:"id"`
	Kind      string      `json:"kind"`
	Content   string      `json:"content"`
	Tags      []string    `json:"tags"`
	Timestamp time.Time   `json:"timestamp"`
	Synced    bool        `json:"synced"`
	Revision  int64       `json:"revision"`
	Task      *TaskFields `json:"task,omitempty"`
}

type TaskFields struct {
	Title         string `json:"title"`
	Description   string `json:"description,omitempty"`
	Date          string `json:"date"`
	TimeSlot      string `json:"timeSlot"`
	ScheduledTime string `json:"scheduledTime,omitempty"`
	Completed     bool   `json:"completed"`
}

const (
	NotifyBrowser = "browser"
	NotifyNtfy    = "ntfy"
)

type Settings struct {
	SyncEnabled        bool    `json:"syncEnabled"`
	SyncToken          *string `json:"syncToken,omitempty"`
	RetentionDays      *int    `json:"retentionDays"`
	SyncRetentionDays  int     `json:"syncRetentionDays"`
	AutoSyncOnStart    bool    `json:"autoSyncOnStart"`
	NotificationMethod string  `json:"notificationMethod"`
}

func DefaultSettings() Settings {
	return Settings{
		SyncRetentionDays:  7,
		NotificationMethod: NotifyBrowser,
	}
}

func (s Settings) Validate() error {
	switch s.SyncRetentionDays {
	case 7, 15, 30:
	default:
		return fmt.Errorf("%w: syncRetentionDays must be 7, 15 or 30", common.ErrValidation)
	}
	if s.RetentionDays != nil && *s.RetentionDays <= 0 {
		return fmt.Errorf("%w: retentionDays must be positive", common.ErrValidation)
	}
	switch s.NotificationMethod {
	case NotifyBrowser, NotifyNtfy:
	default:
		return fmt.Errorf("%w: notificationMethod must be browser or ntfy", common.ErrValidation)
	}
	return nil
}

// Token returns the configured bearer token or "".
func (s Settings) Token() string {
	if s.SyncToken == nil {
		return ""
	}
	return *s.SyncToken
}

const (
	PreferenceTheme = "theme"

	ThemeLight  = "light"
	ThemeDark   = "dark"
	ThemeDevice = "device"
)
