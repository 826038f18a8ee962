package service

import (
	"context"
	"fmt"
	"strings"
	"time"

	"github.com/google/uuid"
	"github.com/prohmpiriya/venue-approval/internal/domain"
	"github.com/prohmpiriya/venue-approval/internal/metrics"
	"github.com/prohmpiriya/venue-approval/internal/repository"
	"github.com/prohmpiriya/venue-approval/pkg/logger"
	"github.com/prohmpiriya/venue-approval/pkg/telemetry"
	"go.opentelemetry.io/otel/attribute"
	"go.uber.org/zap"
)

const submittedNote = "Initial request submitted"

// ApprovalService drives events through the approval state machine
type ApprovalService interface {
	// Submit records a coordinator's request and reserves its venue and resources
	Submit(ctx context.Context, actor domain.Actor, draft *domain.EventDraft) (*domain.Event, error)

	// Transition applies action to the event. Terminal targets release every claim.
	Transition(ctx context.Context, actor domain.Actor, eventID string, action domain.Action, note, reason string) (*domain.Event, error)

	// TransitionToStatus resolves the single action reaching to from the
	// event's current status and applies it
	TransitionToStatus(ctx context.Context, actor domain.Actor, eventID string, to domain.Status, note, reason string) (*domain.Event, error)
}

// ApprovalServiceConfig contains configuration for the approval service
type ApprovalServiceConfig struct {
	Now   func() time.Time
	NewID func() string
}

type approvalService struct {
	ledger    repository.LedgerRepository
	allocator *Allocator
	publisher EventPublisher
	now       func() time.Time
	newID     func() string
}

// NewApprovalService creates a new approval service
func NewApprovalService(
	ledger repository.LedgerRepository,
	allocator *Allocator,
	publisher EventPublisher,
	cfg *ApprovalServiceConfig,
) ApprovalService {
	s := &approvalService{
		ledger:    ledger,
		allocator: allocator,
		publisher: publisher,
		now:       func() time.Time { return time.Now().UTC() },
		newID:     uuid.NewString,
	}
	if cfg != nil {
		if cfg.Now != nil {
			s.now = cfg.Now
		}
		if cfg.NewID != nil {
			s.newID = cfg.NewID
		}
	}
	if s.allocator == nil {
		s.allocator = NewAllocator()
	}
	s.allocator.now = s.now
	if s.publisher == nil {
		s.publisher = NewNoOpEventPublisher()
	}
	return s
}

// Submit records a coordinator's request and reserves its venue and resources
func (s *approvalService) Submit(ctx context.Context, actor domain.Actor, draft *domain.EventDraft) (*domain.Event, error) {
	ctx, span := telemetry.StartSpan(ctx, "service.approval.submit")
	defer span.End()
	start := time.Now()
	span.SetAttributes(attribute.String("actor_id", actor.ID))

	ev, entry, err := s.submit(ctx, actor, draft)
	metrics.ObserveOperation(ctx, "submit", start, err)
	if err != nil {
		switch {
		case domain.IsConflictError(err):
			metrics.ConflictRejections.Inc(ctx)
		case domain.IsCapacityError(err):
			metrics.CapacityRejections.Inc(ctx)
		}
		telemetry.RecordResult(span, err, "submit failed")
		return nil, err
	}

	metrics.EventsSubmitted.Inc(ctx, attribute.String("department", ev.Department))
	metrics.ActiveEvents.Add(ctx, 1)
	var units int64
	for _, c := range ev.Claims {
		units += int64(c.Quantity)
	}
	metrics.UnitsReserved.Add(ctx, units)

	s.publish(ctx, domain.NewEventNotification(s.newID(), domain.NotificationEventSubmitted, ev, entry))

	span.SetAttributes(attribute.String("event_id", ev.ID))
	telemetry.RecordResult(span, nil, "")
	return ev, nil
}

func (s *approvalService) submit(ctx context.Context, actor domain.Actor, draft *domain.EventDraft) (*domain.Event, *domain.AuditEntry, error) {
	if actor.Role != domain.RoleCoordinator {
		return nil, nil, domain.ErrNotCoordinator
	}
	if draft == nil {
		return nil, nil, domain.ErrInvalidTitle
	}
	date, err := draft.Validate()
	if err != nil {
		return nil, nil, err
	}

	venue, err := s.ledger.GetVenue(ctx, draft.VenueID)
	if err != nil {
		return nil, nil, err
	}
	if !venue.BookableBy(actor.Department) {
		return nil, nil, domain.ErrDepartmentMismatch
	}
	if draft.Participants > venue.Capacity {
		return nil, nil, fmt.Errorf("%w: %d exceeds %s capacity %d",
			domain.ErrTooManyParticipants, draft.Participants, venue.Name, venue.Capacity)
	}

	department := actor.Department
	if department == "" {
		department = domain.DefaultDepartment
	}

	now := s.now()
	ev := &domain.Event{
		ID:            s.newID(),
		Title:         strings.TrimSpace(draft.Title),
		Description:   draft.Description,
		Date:          date,
		Duration:      draft.Duration,
		Participants:  draft.Participants,
		VenueID:       venue.ID,
		VenueName:     venue.Name,
		Department:    department,
		CoordinatorID: actor.ID,
		Status:        domain.StatusPendingHOD,
		CreatedAt:     now,
		UpdatedAt:     now,
	}
	eventID := ev.ID
	entry := &domain.AuditEntry{
		ID:        s.newID(),
		EventID:   &eventID,
		ActorID:   actor.ID,
		Action:    domain.AuditSubmitted,
		ToStatus:  domain.StatusPendingHOD,
		Note:      submittedNote,
		Timestamp: now,
	}

	err = s.ledger.WithTx(ctx, func(ctx context.Context, tx repository.LedgerTx) error {
		claims, err := s.allocator.Reserve(ctx, tx, ev.ID, ev.VenueID, ev.Date, draft.Claims)
		if err != nil {
			return err
		}
		ev.Claims = claims
		if err := tx.InsertEvent(ctx, ev); err != nil {
			return err
		}
		return tx.AppendAudit(ctx, entry)
	})
	if err != nil {
		return nil, nil, err
	}

	ev.Timeline = []domain.AuditEntry{*entry.Clone()}
	return ev, entry, nil
}

// Transition applies action to the event. Terminal targets release every claim.
func (s *approvalService) Transition(ctx context.Context, actor domain.Actor, eventID string, action domain.Action, note, reason string) (*domain.Event, error) {
	ctx, span := telemetry.StartSpan(ctx, "service.approval.transition")
	defer span.End()
	start := time.Now()
	span.SetAttributes(
		attribute.String("event_id", eventID),
		attribute.String("action", string(action)),
		attribute.String("actor_id", actor.ID),
	)

	ev, entry, returned, err := s.transition(ctx, actor, eventID, func(*domain.Event) (domain.Action, error) {
		return action, nil
	}, note, reason)
	metrics.ObserveOperation(ctx, "transition", start, err)
	if err != nil {
		telemetry.RecordResult(span, err, "transition failed")
		return nil, err
	}

	s.afterTransition(ctx, ev, entry, returned)
	span.SetAttributes(attribute.String("status", string(ev.Status)))
	telemetry.RecordResult(span, nil, "")
	return s.reload(ctx, ev), nil
}

// TransitionToStatus resolves the action reaching to and applies it
func (s *approvalService) TransitionToStatus(ctx context.Context, actor domain.Actor, eventID string, to domain.Status, note, reason string) (*domain.Event, error) {
	ctx, span := telemetry.StartSpan(ctx, "service.approval.transition_to_status")
	defer span.End()
	start := time.Now()
	span.SetAttributes(
		attribute.String("event_id", eventID),
		attribute.String("target_status", string(to)),
		attribute.String("actor_id", actor.ID),
	)

	ev, entry, returned, err := s.transition(ctx, actor, eventID, func(locked *domain.Event) (domain.Action, error) {
		return domain.ActionTo(locked.Status, to)
	}, note, reason)
	metrics.ObserveOperation(ctx, "transition", start, err)
	if err != nil {
		telemetry.RecordResult(span, err, "transition failed")
		return nil, err
	}

	s.afterTransition(ctx, ev, entry, returned)
	telemetry.RecordResult(span, nil, "")
	return s.reload(ctx, ev), nil
}

// transition runs one status change in a ledger unit. resolve picks the
// action once the event is locked.
func (s *approvalService) transition(
	ctx context.Context,
	actor domain.Actor,
	eventID string,
	resolve func(*domain.Event) (domain.Action, error),
	note, reason string,
) (*domain.Event, *domain.AuditEntry, int, error) {
	var (
		ev       *domain.Event
		entry    *domain.AuditEntry
		returned int
	)
	err := s.ledger.WithTx(ctx, func(ctx context.Context, tx repository.LedgerTx) error {
		locked, err := tx.LockEvent(ctx, eventID)
		if err != nil {
			return err
		}
		action, err := resolve(locked)
		if err != nil {
			return err
		}
		rule, err := domain.LookupTransition(locked.Status, action)
		if err != nil {
			return err
		}
		if err := rule.Check(actor, locked, reason); err != nil {
			return err
		}

		from := locked.Status
		now := s.now()
		rule.Apply(locked, reason)
		locked.UpdatedAt = now
		if err := tx.UpdateEvent(ctx, locked); err != nil {
			return err
		}

		if locked.IsTerminal() {
			if returned, err = s.allocator.Release(ctx, tx, locked); err != nil {
				return err
			}
		}

		id := locked.ID
		entry = &domain.AuditEntry{
			ID:         s.newID(),
			EventID:    &id,
			ActorID:    actor.ID,
			Action:     domain.AuditStatusUpdate,
			FromStatus: from,
			ToStatus:   locked.Status,
			Note:       strings.TrimSpace(note),
			Reason:     strings.TrimSpace(reason),
			Timestamp:  now,
		}
		if err := tx.AppendAudit(ctx, entry); err != nil {
			return err
		}
		ev = locked
		return nil
	})
	if err != nil {
		return nil, nil, 0, err
	}
	return ev, entry, returned, nil
}

func (s *approvalService) afterTransition(ctx context.Context, ev *domain.Event, entry *domain.AuditEntry, returned int) {
	metrics.RecordTransition(ctx, string(ev.Status), ev.IsTerminal())
	if returned > 0 {
		metrics.UnitsReleased.Add(ctx, int64(returned))
	}
	s.publish(ctx, domain.NewEventNotification(s.newID(), domain.StatusNotificationType(ev.Status), ev, entry))
}

// reload returns the committed projection with its full timeline, falling
// back to the in-memory result if the read fails
func (s *approvalService) reload(ctx context.Context, ev *domain.Event) *domain.Event {
	fresh, err := s.ledger.GetEvent(ctx, ev.ID)
	if err != nil {
		logger.Get().WithContext(ctx).Warn("failed to reload event after transition",
			zap.String("event_id", ev.ID), zap.Error(err))
		return ev
	}
	return fresh
}

// publish is fire-and-forget; the ledger has already committed
func (s *approvalService) publish(ctx context.Context, n *domain.Notification) {
	if err := s.publisher.Publish(ctx, n); err != nil {
		logger.Get().WithContext(ctx).Warn("failed to publish notification",
			zap.String("type", n.Type),
			zap.String("event_id", n.EventID),
			zap.Error(err),
		)
	}
}
