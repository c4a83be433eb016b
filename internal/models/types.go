package models

import "time"

const (
	TypeNote = "note"
	TypeTask = "task"
)

// Envelope is the wire and storage shape of a pushed record.
type Envelope struct {
	Type      string    `json:"type"`
	Markdown  string    `json:"markdown"`
	ID        string    `json:"id"`
	CreatedAt time.Time `json:"createdAt"`
	SyncedAt  time.Time `json:"syncedAt"`
	Tags      []string  `json:"tags"`
	TTLDays   int       `json:"ttlDays"`
}

type PushRequest struct {
	Type      string     `json:"type"`
	Markdown  string     `json:"markdown"`
	ID        string     `json:"id"`
	CreatedAt *time.Time `json:"createdAt,omitempty"`
	Tags      []string   `json:"tags"`
	TTLDays   int        `json:"ttlDays"`
}

type PushResult struct {
	Success bool   `json:"success"`
	SyncID  string `json:"syncId"`
}

type HistoryPage struct {
	History []Envelope `json:"history"`
	Cursor  *string    `json:"cursor"`
	HasMore bool       `json:"hasMore"`
}

// APIKeyRecord is what the key store persists under api_key:<keyId>.
// The raw secret is never stored.
type APIKeyRecord struct {
	KeyHash    string     `json:"keyHash"`
	CreatedAt  time.Time  `json:"createdAt"`
	LastUsedAt *time.Time `json:"lastUsedAt"`
	Revoked    bool       `json:"revoked"`
	Name       string     `json:"name"`
}

// APIKeyInfo is the listing view of a key, without hash or secret.
type APIKeyInfo struct {
	KeyID      string     `json:"keyId"`
	Name       string     `json:"name"`
	CreatedAt  time.Time  `json:"createdAt"`
	LastUsedAt *time.Time `json:"lastUsedAt"`
	Revoked    bool       `json:"revoked"`
}

type CreatedKey struct {
	Token string `json:"token"`
	KeyID string `json:"keyId"`
	Name  string `json:"name"`
}
