package domain

import (
	"strings"
	"time"
)

// AuditAction is the kind of ledger mutation an entry records
type AuditAction string

const (
	AuditSubmitted       AuditAction = "SUBMITTED"
	AuditStatusUpdate    AuditAction = "STATUS_UPDATE"
	AuditCapacityReset   AuditAction = "CAPACITY_RESET"
	AuditVenueCreated    AuditAction = "VENUE_CREATED"
	AuditResourceCreated AuditAction = "RESOURCE_CREATED"
)

// AuditEntry is an immutable record of one transition or ledger mutation.
// EventID is nil for system-level entries. Seq is assigned by the store at
// commit and orders entries strictly.
type AuditEntry struct {
	ID         string      `json:"id"`
	EventID    *string     `json:"event_id"`
	ActorID    string      `json:"actor_id"`
	Action     AuditAction `json:"action"`
	FromStatus Status      `json:"from_status,omitempty"`
	ToStatus   Status      `json:"to_status,omitempty"`
	Note       string      `json:"note"`
	Reason     string      `json:"reason,omitempty"`
	Timestamp  time.Time   `json:"timestamp"`
	Seq        int64       `json:"seq"`
}

// Clone returns a copy that shares nothing with e
func (e *AuditEntry) Clone() *AuditEntry {
	c := *e
	if e.EventID != nil {
		id := *e.EventID
		c.EventID = &id
	}
	return &c
}

// AuditFilter narrows an audit query. Zero fields match everything.
type AuditFilter struct {
	ActorID string
	EventID string
	// Action is matched as a case-insensitive substring
	Action string
	Limit  int
}

// Matches reports whether e passes the filter, ignoring Limit
func (f *AuditFilter) Matches(e *AuditEntry) bool {
	if f == nil {
		return true
	}
	if f.ActorID != "" && e.ActorID != f.ActorID {
		return false
	}
	if f.EventID != "" && (e.EventID == nil || *e.EventID != f.EventID) {
		return false
	}
	if f.Action != "" && !strings.Contains(strings.ToLower(string(e.Action)), strings.ToLower(f.Action)) {
		return false
	}
	return true
}
