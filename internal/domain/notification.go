package domain

import (
	"strings"
	"time"
)

// Notification types published after a ledger mutation commits
const (
	NotificationEventSubmitted  = "event.submitted"
	NotificationCapacityReset   = "resource.capacity_reset"
	NotificationVenueCreated    = "venue.created"
	NotificationResourceCreated = "resource.created"
)

// StatusNotificationType returns the type published when an event enters s,
// e.g. "event.pending_dean" or "event.rejected".
func StatusNotificationType(s Status) string {
	return "event." + strings.ToLower(string(s))
}

// Notification is the "something happened" signal for external notifiers.
// It carries the audit entry that recorded the mutation.
type Notification struct {
	ID            string      `json:"id"`
	Type          string      `json:"type"`
	EventID       string      `json:"event_id,omitempty"`
	Title         string      `json:"title,omitempty"`
	Status        Status      `json:"status,omitempty"`
	Department    string      `json:"department,omitempty"`
	CoordinatorID string      `json:"coordinator_id,omitempty"`
	ResourceID    string      `json:"resource_id,omitempty"`
	VenueID       string      `json:"venue_id,omitempty"`
	Audit         *AuditEntry `json:"audit,omitempty"`
	OccurredAt    time.Time   `json:"occurred_at"`
}

// Key partitions notifications so one event's signals stay ordered
func (n *Notification) Key() string {
	switch {
	case n.EventID != "":
		return n.EventID
	case n.ResourceID != "":
		return n.ResourceID
	default:
		return n.VenueID
	}
}

// NewEventNotification builds the notification for a committed event mutation
func NewEventNotification(id, typ string, ev *Event, entry *AuditEntry) *Notification {
	return &Notification{
		ID:            id,
		Type:          typ,
		EventID:       ev.ID,
		Title:         ev.Title,
		Status:        ev.Status,
		Department:    ev.Department,
		CoordinatorID: ev.CoordinatorID,
		VenueID:       ev.VenueID,
		Audit:         entry,
		OccurredAt:    entry.Timestamp,
	}
}
