package repository

import (
	"context"
	"time"

	"github.com/prohmpiriya/venue-approval/internal/domain"
)

// LedgerRepository is the authoritative store of venues, resources, events
// and the audit trail. Every mutation runs inside WithTx.
type LedgerRepository interface {
	// WithTx runs fn as one atomic unit. A non-nil error from fn discards
	// every write fn made.
	WithTx(ctx context.Context, fn func(ctx context.Context, tx LedgerTx) error) error

	GetVenue(ctx context.Context, id string) (*domain.Venue, error)
	ListVenues(ctx context.Context) ([]*domain.Venue, error)
	GetResource(ctx context.Context, id string) (*domain.Resource, error)
	ListResources(ctx context.Context) ([]*domain.Resource, error)

	// GetEvent returns the event with its claims and timeline
	GetEvent(ctx context.Context, id string) (*domain.Event, error)
	// ListEvents returns matching events with claims, newest first
	ListEvents(ctx context.Context, filter *domain.EventFilter) ([]*domain.Event, error)
	// QueryAudit returns matching entries, most recent first
	QueryAudit(ctx context.Context, filter *domain.AuditFilter) ([]*domain.AuditEntry, error)
}

// LedgerTx is the view of the store inside one atomic unit
type LedgerTx interface {
	// LockVenueDate serializes every unit touching the (venue, date) key
	LockVenueDate(ctx context.Context, venueID string, date time.Time) error
	// FindActiveEvent returns the non-terminal event holding (venue, date), or nil
	FindActiveEvent(ctx context.Context, venueID string, date time.Time) (*domain.Event, error)

	// LockResources locks the resources in ascending id order. A missing id
	// is domain.ErrResourceNotFound.
	LockResources(ctx context.Context, ids []string) (map[string]*domain.Resource, error)
	SaveResource(ctx context.Context, r *domain.Resource) error
	InsertResource(ctx context.Context, r *domain.Resource) error

	InsertVenue(ctx context.Context, v *domain.Venue) error

	// InsertEvent stores the event and its claims
	InsertEvent(ctx context.Context, ev *domain.Event) error
	// LockEvent loads the event with its claims and holds it until the unit ends
	LockEvent(ctx context.Context, id string) (*domain.Event, error)
	// UpdateEvent persists status, rejection reason and updated_at
	UpdateEvent(ctx context.Context, ev *domain.Event) error

	// MarkReleased flags one claim released. It reports false when the claim
	// was already released, e.g. written off by a capacity reset.
	MarkReleased(ctx context.Context, eventID, resourceID string) (bool, error)
	// WriteOffAllocations flags every outstanding claim on a resource released
	// and returns the quantity written off
	WriteOffAllocations(ctx context.Context, resourceID string) (int, error)

	// AppendAudit appends entry and assigns its Seq
	AppendAudit(ctx context.Context, entry *domain.AuditEntry) error
}
