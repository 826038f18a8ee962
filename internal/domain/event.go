package domain

import (
	"strings"
	"time"
)

// DateLayout is the wire format of event dates
const DateLayout = "2006-01-02"

// DefaultDepartment owns events submitted by coordinators without a department
const DefaultDepartment = "GENERAL"

// ParseDate parses a calendar date into UTC midnight
func ParseDate(s string) (time.Time, error) {
	t, err := time.Parse(DateLayout, strings.TrimSpace(s))
	if err != nil {
		return time.Time{}, ErrInvalidDate
	}
	return t.UTC(), nil
}

// FormatDate formats a calendar date
func FormatDate(t time.Time) string {
	return t.UTC().Format(DateLayout)
}

// Event is one request for a venue and resources on a date
type Event struct {
	ID              string       `json:"id"`
	Title           string       `json:"title"`
	Description     string       `json:"description"`
	Date            time.Time    `json:"date"`
	Duration        int          `json:"duration"` // minutes, advisory
	Participants    int          `json:"participants"`
	VenueID         string       `json:"venue_id"`
	VenueName       string       `json:"venue_name"`
	Department      string       `json:"department"`
	CoordinatorID   string       `json:"coordinator_id"`
	Status          Status       `json:"status"`
	RejectionReason string       `json:"rejection_reason,omitempty"`
	Claims          []Allocation `json:"claims"`
	Timeline        []AuditEntry `json:"timeline,omitempty"`
	CreatedAt       time.Time    `json:"created_at"`
	UpdatedAt       time.Time    `json:"updated_at"`
}

// IsTerminal reports whether the event can no longer change
func (e *Event) IsTerminal() bool {
	return e.Status.IsTerminal()
}

// HoldsVenue reports whether the event blocks its (venue, date) pair
func (e *Event) HoldsVenue() bool {
	return !e.Status.IsTerminal()
}

// VisibleTo reports whether a may read the event
func (e *Event) VisibleTo(a Actor) bool {
	switch {
	case a.IsPrivileged():
		return true
	case a.Role == RoleHOD:
		return a.Department != "" && e.Department == a.Department
	case a.Role == RoleCoordinator:
		return e.CoordinatorID == a.ID
	default:
		return false
	}
}

// Clone returns a deep copy
func (e *Event) Clone() *Event {
	if e == nil {
		return nil
	}
	c := *e
	c.Claims = append([]Allocation(nil), e.Claims...)
	if e.Timeline != nil {
		c.Timeline = make([]AuditEntry, len(e.Timeline))
		for i := range e.Timeline {
			c.Timeline[i] = *e.Timeline[i].Clone()
		}
	}
	return &c
}

// Allocation binds a quantity of one resource to one event
type Allocation struct {
	EventID    string `json:"event_id"`
	ResourceID string `json:"resource_id"`
	Quantity   int    `json:"quantity"`
	Released   bool   `json:"released"`
}

// Claim is a requested quantity of a resource
type Claim struct {
	ResourceID string `json:"resource_id"`
	Quantity   int    `json:"quantity"`
}

// EventDraft is a coordinator's request before it enters the ledger
type EventDraft struct {
	Title        string
	Description  string
	Date         string
	Duration     int
	Participants int
	VenueID      string
	Claims       []Claim
}

// Validate checks the draft and returns its parsed date
func (d *EventDraft) Validate() (time.Time, error) {
	if strings.TrimSpace(d.Title) == "" {
		return time.Time{}, ErrInvalidTitle
	}
	date, err := ParseDate(d.Date)
	if err != nil {
		return time.Time{}, err
	}
	if d.Duration < 0 {
		return time.Time{}, ErrInvalidDuration
	}
	if d.Participants < 0 {
		return time.Time{}, ErrInvalidParticipants
	}
	if strings.TrimSpace(d.VenueID) == "" {
		return time.Time{}, ErrInvalidVenueID
	}

	seen := make(map[string]struct{}, len(d.Claims))
	for _, c := range d.Claims {
		if strings.TrimSpace(c.ResourceID) == "" {
			return time.Time{}, ErrInvalidResourceID
		}
		if c.Quantity <= 0 {
			return time.Time{}, ErrInvalidQuantity
		}
		if _, dup := seen[c.ResourceID]; dup {
			return time.Time{}, ErrDuplicateClaim
		}
		seen[c.ResourceID] = struct{}{}
	}
	return date, nil
}

// EventFilter narrows an event listing
type EventFilter struct {
	CoordinatorID string
	Department    string
	Status        Status
	VenueID       string
	Date          *time.Time
	// NonTerminal keeps only events that hold their venue
	NonTerminal bool
}

// Matches reports whether e passes the filter
func (f *EventFilter) Matches(e *Event) bool {
	if f == nil {
		return true
	}
	if f.CoordinatorID != "" && e.CoordinatorID != f.CoordinatorID {
		return false
	}
	if f.Department != "" && e.Department != f.Department {
		return false
	}
	if f.Status != "" && e.Status != f.Status {
		return false
	}
	if f.VenueID != "" && e.VenueID != f.VenueID {
		return false
	}
	if f.Date != nil && !e.Date.Equal(*f.Date) {
		return false
	}
	if f.NonTerminal && e.IsTerminal() {
		return false
	}
	return true
}
