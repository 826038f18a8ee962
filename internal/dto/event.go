package dto

import (
	"time"

	"github.com/prohmpiriya/venue-approval/internal/domain"
	"github.com/prohmpiriya/venue-approval/pkg/response"
)

// ErrorResponse is the body of every error response
type ErrorResponse = response.ErrorBody

// ClaimRequest asks for a quantity of one resource. ID is accepted as an
// alias of ResourceID.
type ClaimRequest struct {
	ResourceID string `json:"resource_id"`
	ID         string `json:"id,omitempty"`
	Quantity   int    `json:"quantity"`
}

// SubmitEventRequest represents a coordinator's event request
type SubmitEventRequest struct {
	Title        string         `json:"title"`
	Description  string         `json:"description"`
	Date         string         `json:"date"`
	Duration     int            `json:"duration"`
	Participants int            `json:"participants"`
	VenueID      string         `json:"venue_id"`
	Resources    []ClaimRequest `json:"resources"`
}

// ToDraft converts the request to a domain draft
func (r *SubmitEventRequest) ToDraft() *domain.EventDraft {
	claims := make([]domain.Claim, len(r.Resources))
	for i, c := range r.Resources {
		id := c.ResourceID
		if id == "" {
			id = c.ID
		}
		claims[i] = domain.Claim{ResourceID: id, Quantity: c.Quantity}
	}
	return &domain.EventDraft{
		Title:        r.Title,
		Description:  r.Description,
		Date:         r.Date,
		Duration:     r.Duration,
		Participants: r.Participants,
		VenueID:      r.VenueID,
		Claims:       claims,
	}
}

// TransitionRequest applies an action to an event
type TransitionRequest struct {
	Action string `json:"action" binding:"required"`
	Note   string `json:"note"`
	Reason string `json:"reason"`
}

// StatusUpdateRequest moves an event to a target status
type StatusUpdateRequest struct {
	Status string `json:"status" binding:"required"`
	Note   string `json:"note"`
	Reason string `json:"reason"`
}

// AllocationResponse is one claim of an event
type AllocationResponse struct {
	ResourceID string `json:"resource_id"`
	Quantity   int    `json:"quantity"`
	Released   bool   `json:"released"`
}

// AuditEntryResponse is one audit trail entry
type AuditEntryResponse struct {
	ID         string    `json:"id"`
	EventID    *string   `json:"event_id"`
	ActorID    string    `json:"actor_id"`
	Action     string    `json:"action"`
	FromStatus string    `json:"from_status,omitempty"`
	ToStatus   string    `json:"to_status,omitempty"`
	Note       string    `json:"note"`
	Reason     string    `json:"reason,omitempty"`
	Timestamp  time.Time `json:"timestamp"`
	Seq        int64     `json:"seq"`
}

// EventResponse is the projection of one event
type EventResponse struct {
	ID              string               `json:"id"`
	Title           string               `json:"title"`
	Description     string               `json:"description"`
	Date            string               `json:"date"`
	Duration        int                  `json:"duration"`
	Participants    int                  `json:"participants"`
	VenueID         string               `json:"venue_id"`
	VenueName       string               `json:"venue_name"`
	Department      string               `json:"department"`
	CoordinatorID   string               `json:"coordinator_id"`
	Status          string               `json:"status"`
	RejectionReason string               `json:"rejection_reason,omitempty"`
	Resources       []AllocationResponse `json:"resources"`
	Timeline        []AuditEntryResponse `json:"timeline,omitempty"`
	CreatedAt       time.Time            `json:"created_at"`
	UpdatedAt       time.Time            `json:"updated_at"`
}

// FromAuditEntry converts a domain audit entry
func FromAuditEntry(e *domain.AuditEntry) AuditEntryResponse {
	return AuditEntryResponse{
		ID:         e.ID,
		EventID:    e.EventID,
		ActorID:    e.ActorID,
		Action:     string(e.Action),
		FromStatus: string(e.FromStatus),
		ToStatus:   string(e.ToStatus),
		Note:       e.Note,
		Reason:     e.Reason,
		Timestamp:  e.Timestamp,
		Seq:        e.Seq,
	}
}

// FromAuditEntries converts a list of audit entries
func FromAuditEntries(entries []*domain.AuditEntry) []AuditEntryResponse {
	out := make([]AuditEntryResponse, len(entries))
	for i, e := range entries {
		out[i] = FromAuditEntry(e)
	}
	return out
}

// FromEvent converts a domain event
func FromEvent(ev *domain.Event) *EventResponse {
	resp := &EventResponse{
		ID:              ev.ID,
		Title:           ev.Title,
		Description:     ev.Description,
		Date:            domain.FormatDate(ev.Date),
		Duration:        ev.Duration,
		Participants:    ev.Participants,
		VenueID:         ev.VenueID,
		VenueName:       ev.VenueName,
		Department:      ev.Department,
		CoordinatorID:   ev.CoordinatorID,
		Status:          string(ev.Status),
		RejectionReason: ev.RejectionReason,
		Resources:       make([]AllocationResponse, len(ev.Claims)),
		CreatedAt:       ev.CreatedAt,
		UpdatedAt:       ev.UpdatedAt,
	}
	for i, c := range ev.Claims {
		resp.Resources[i] = AllocationResponse{ResourceID: c.ResourceID, Quantity: c.Quantity, Released: c.Released}
	}
	if len(ev.Timeline) > 0 {
		resp.Timeline = make([]AuditEntryResponse, len(ev.Timeline))
		for i := range ev.Timeline {
			resp.Timeline[i] = FromAuditEntry(&ev.Timeline[i])
		}
	}
	return resp
}

// FromEvents converts a list of events
func FromEvents(events []*domain.Event) []*EventResponse {
	out := make([]*EventResponse, len(events))
	for i, ev := range events {
		out[i] = FromEvent(ev)
	}
	return out
}
