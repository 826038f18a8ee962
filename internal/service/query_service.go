package service

import (
	"context"
	"time"

	"github.com/prohmpiriya/venue-approval/internal/domain"
	"github.com/prohmpiriya/venue-approval/internal/repository"
	"github.com/prohmpiriya/venue-approval/pkg/telemetry"
	"go.opentelemetry.io/otel/attribute"
)

// EventQuery holds the optional list filters
type EventQuery struct {
	Status  domain.Status
	VenueID string
	Date    *time.Time
}

// QueryService serves role-scoped read projections of the ledger
type QueryService interface {
	// ListEvents returns the events the actor may see, newest first
	ListEvents(ctx context.Context, actor domain.Actor, q *EventQuery) ([]*domain.Event, error)

	// GetEvent returns one event with claims and timeline. An event the
	// actor may not see is reported as not found.
	GetEvent(ctx context.Context, actor domain.Actor, id string) (*domain.Event, error)

	// ListVenues returns the venues the actor may see
	ListVenues(ctx context.Context, actor domain.Actor) ([]*domain.Venue, error)

	// VenueOccupancy returns the derived state of every visible venue
	VenueOccupancy(ctx context.Context, actor domain.Actor, date *time.Time) ([]domain.VenueOccupancy, error)

	// ListResources returns every resource
	ListResources(ctx context.Context) ([]*domain.Resource, error)
}

type queryService struct {
	ledger repository.LedgerRepository
}

// NewQueryService creates a new query service
func NewQueryService(ledger repository.LedgerRepository) QueryService {
	return &queryService{ledger: ledger}
}

// scopeFilter restricts a listing to what actor may see
func scopeFilter(actor domain.Actor) (*domain.EventFilter, error) {
	switch {
	case actor.IsPrivileged():
		return &domain.EventFilter{}, nil
	case actor.Role == domain.RoleHOD:
		if actor.Department == "" {
			return nil, nil
		}
		return &domain.EventFilter{Department: actor.Department}, nil
	case actor.Role == domain.RoleCoordinator:
		return &domain.EventFilter{CoordinatorID: actor.ID}, nil
	default:
		return nil, domain.ErrUnknownRole
	}
}

func (s *queryService) ListEvents(ctx context.Context, actor domain.Actor, q *EventQuery) ([]*domain.Event, error) {
	ctx, span := telemetry.StartSpan(ctx, "service.query.list_events")
	defer span.End()
	span.SetAttributes(attribute.String("role", string(actor.Role)))

	filter, err := scopeFilter(actor)
	if err != nil {
		telemetry.RecordResult(span, err, "unknown role")
		return nil, err
	}
	if filter == nil {
		// HOD without a department sees nothing
		return []*domain.Event{}, nil
	}
	if q != nil {
		filter.Status = q.Status
		filter.VenueID = q.VenueID
		filter.Date = q.Date
	}

	events, err := s.ledger.ListEvents(ctx, filter)
	if err != nil {
		telemetry.RecordResult(span, err, "list events failed")
		return nil, err
	}
	span.SetAttributes(attribute.Int("count", len(events)))
	telemetry.RecordResult(span, nil, "")
	return events, nil
}

func (s *queryService) GetEvent(ctx context.Context, actor domain.Actor, id string) (*domain.Event, error) {
	ctx, span := telemetry.StartSpan(ctx, "service.query.get_event")
	defer span.End()
	span.SetAttributes(attribute.String("event_id", id))

	ev, err := s.ledger.GetEvent(ctx, id)
	if err != nil {
		telemetry.RecordResult(span, err, "get event failed")
		return nil, err
	}
	if !ev.VisibleTo(actor) {
		telemetry.RecordResult(span, domain.ErrEventNotFound, "not visible")
		return nil, domain.ErrEventNotFound
	}
	telemetry.RecordResult(span, nil, "")
	return ev, nil
}

func (s *queryService) ListVenues(ctx context.Context, actor domain.Actor) ([]*domain.Venue, error) {
	ctx, span := telemetry.StartSpan(ctx, "service.query.list_venues")
	defer span.End()

	venues, err := s.ledger.ListVenues(ctx)
	if err != nil {
		telemetry.RecordResult(span, err, "list venues failed")
		return nil, err
	}
	visible := make([]*domain.Venue, 0, len(venues))
	for _, v := range venues {
		if v.VisibleTo(actor) {
			visible = append(visible, v)
		}
	}
	telemetry.RecordResult(span, nil, "")
	return visible, nil
}

func (s *queryService) VenueOccupancy(ctx context.Context, actor domain.Actor, date *time.Time) ([]domain.VenueOccupancy, error) {
	ctx, span := telemetry.StartSpan(ctx, "service.query.venue_occupancy")
	defer span.End()

	venues, err := s.ListVenues(ctx, actor)
	if err != nil {
		telemetry.RecordResult(span, err, "list venues failed")
		return nil, err
	}
	active, err := s.ledger.ListEvents(ctx, &domain.EventFilter{NonTerminal: true, Date: date})
	if err != nil {
		telemetry.RecordResult(span, err, "list events failed")
		return nil, err
	}

	byVenue := make(map[string][]*domain.Event, len(venues))
	for _, ev := range active {
		byVenue[ev.VenueID] = append(byVenue[ev.VenueID], ev)
	}

	out := make([]domain.VenueOccupancy, 0, len(venues))
	for _, v := range venues {
		out = append(out, domain.NewVenueOccupancy(*v, byVenue[v.ID]))
	}
	telemetry.RecordResult(span, nil, "")
	return out, nil
}

func (s *queryService) ListResources(ctx context.Context) ([]*domain.Resource, error) {
	ctx, span := telemetry.StartSpan(ctx, "service.query.list_resources")
	defer span.End()

	resources, err := s.ledger.ListResources(ctx)
	telemetry.RecordResult(span, err, "list resources failed")
	return resources, err
}
