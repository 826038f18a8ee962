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

// VenueInput describes a venue to create
type VenueInput struct {
	Name       string
	Type       string
	Capacity   int
	Department *string
}

// ResourceInput describes a resource to create
type ResourceInput struct {
	Name  string
	Type  string
	Total int
}

// AdminService holds the administrative ledger operations
type AdminService interface {
	// ResetResource restores available to total and writes off every
	// outstanding allocation on the resource
	ResetResource(ctx context.Context, actor domain.Actor, resourceID string) (*domain.Resource, error)

	// CreateVenue adds a venue to the catalog
	CreateVenue(ctx context.Context, actor domain.Actor, in *VenueInput) (*domain.Venue, error)

	// CreateResource adds a resource with available equal to total
	CreateResource(ctx context.Context, actor domain.Actor, in *ResourceInput) (*domain.Resource, error)
}

// AdminServiceConfig contains configuration for the admin service
type AdminServiceConfig struct {
	Now   func() time.Time
	NewID func() string
}

type adminService struct {
	ledger    repository.LedgerRepository
	publisher EventPublisher
	now       func() time.Time
	newID     func() string
}

// NewAdminService creates a new admin service
func NewAdminService(ledger repository.LedgerRepository, publisher EventPublisher, cfg *AdminServiceConfig) AdminService {
	s := &adminService{
		ledger:    ledger,
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
	if s.publisher == nil {
		s.publisher = NewNoOpEventPublisher()
	}
	return s
}

func (s *adminService) ResetResource(ctx context.Context, actor domain.Actor, resourceID string) (*domain.Resource, error) {
	ctx, span := telemetry.StartSpan(ctx, "service.admin.reset_resource")
	defer span.End()
	start := time.Now()
	span.SetAttributes(attribute.String("resource_id", resourceID), attribute.String("actor_id", actor.ID))

	if actor.Role != domain.RoleAdmin {
		telemetry.RecordResult(span, domain.ErrAdminOnly, "admin only")
		return nil, domain.ErrAdminOnly
	}

	var (
		res   *domain.Resource
		entry *domain.AuditEntry
	)
	err := s.ledger.WithTx(ctx, func(ctx context.Context, tx repository.LedgerTx) error {
		locked, err := tx.LockResources(ctx, []string{resourceID})
		if err != nil {
			return err
		}
		res = locked[resourceID]

		writtenOff, err := tx.WriteOffAllocations(ctx, resourceID)
		if err != nil {
			return err
		}
		outstanding := res.Reset()
		if writtenOff != outstanding {
			logger.Get().WithContext(ctx).Warn("capacity reset found counter drift",
				zap.String("resource_id", resourceID),
				zap.Int("outstanding", outstanding),
				zap.Int("allocated", writtenOff),
			)
		}

		now := s.now()
		res.UpdatedAt = now
		if err := tx.SaveResource(ctx, res); err != nil {
			return err
		}

		entry = &domain.AuditEntry{
			ID:        s.newID(),
			ActorID:   actor.ID,
			Action:    domain.AuditCapacityReset,
			Note:      fmt.Sprintf("Reset %s to %d available, %d units written off", res.Name, res.Total, writtenOff),
			Timestamp: now,
		}
		return tx.AppendAudit(ctx, entry)
	})
	metrics.ObserveOperation(ctx, "reset_resource", start, err)
	if err != nil {
		telemetry.RecordResult(span, err, "reset failed")
		return nil, err
	}

	metrics.CapacityResets.Inc(ctx, attribute.String("resource_id", res.ID))
	s.publish(ctx, &domain.Notification{
		ID:         s.newID(),
		Type:       domain.NotificationCapacityReset,
		ResourceID: res.ID,
		Audit:      entry,
		OccurredAt: entry.Timestamp,
	})
	telemetry.RecordResult(span, nil, "")
	return res, nil
}

func (s *adminService) CreateVenue(ctx context.Context, actor domain.Actor, in *VenueInput) (*domain.Venue, error) {
	ctx, span := telemetry.StartSpan(ctx, "service.admin.create_venue")
	defer span.End()

	if actor.Role != domain.RoleAdmin {
		telemetry.RecordResult(span, domain.ErrAdminOnly, "admin only")
		return nil, domain.ErrAdminOnly
	}
	if in == nil {
		return nil, domain.ErrInvalidName
	}

	now := s.now()
	venue := &domain.Venue{
		ID:        s.newID(),
		Name:      strings.TrimSpace(in.Name),
		Type:      strings.TrimSpace(in.Type),
		Capacity:  in.Capacity,
		CreatedAt: now,
	}
	if in.Department != nil && strings.TrimSpace(*in.Department) != "" {
		dept := strings.TrimSpace(*in.Department)
		venue.Department = &dept
	}
	if err := venue.Validate(); err != nil {
		telemetry.RecordResult(span, err, "invalid venue")
		return nil, err
	}

	entry := &domain.AuditEntry{
		ID:        s.newID(),
		ActorID:   actor.ID,
		Action:    domain.AuditVenueCreated,
		Note:      fmt.Sprintf("Created venue %s (capacity %d)", venue.Name, venue.Capacity),
		Timestamp: now,
	}
	err := s.ledger.WithTx(ctx, func(ctx context.Context, tx repository.LedgerTx) error {
		if err := tx.InsertVenue(ctx, venue); err != nil {
			return err
		}
		return tx.AppendAudit(ctx, entry)
	})
	if err != nil {
		telemetry.RecordResult(span, err, "create venue failed")
		return nil, err
	}

	s.publish(ctx, &domain.Notification{
		ID:         s.newID(),
		Type:       domain.NotificationVenueCreated,
		VenueID:    venue.ID,
		Audit:      entry,
		OccurredAt: now,
	})
	span.SetAttributes(attribute.String("venue_id", venue.ID))
	telemetry.RecordResult(span, nil, "")
	return venue, nil
}

func (s *adminService) CreateResource(ctx context.Context, actor domain.Actor, in *ResourceInput) (*domain.Resource, error) {
	ctx, span := telemetry.StartSpan(ctx, "service.admin.create_resource")
	defer span.End()

	if actor.Role != domain.RoleAdmin {
		telemetry.RecordResult(span, domain.ErrAdminOnly, "admin only")
		return nil, domain.ErrAdminOnly
	}
	if in == nil {
		return nil, domain.ErrInvalidName
	}
	if in.Total <= 0 {
		return nil, domain.ErrInvalidTotal
	}

	now := s.now()
	res := &domain.Resource{
		ID:        s.newID(),
		Name:      strings.TrimSpace(in.Name),
		Type:      strings.TrimSpace(in.Type),
		Total:     in.Total,
		Available: in.Total,
		UpdatedAt: now,
	}
	if err := res.Validate(); err != nil {
		telemetry.RecordResult(span, err, "invalid resource")
		return nil, err
	}

	entry := &domain.AuditEntry{
		ID:        s.newID(),
		ActorID:   actor.ID,
		Action:    domain.AuditResourceCreated,
		Note:      fmt.Sprintf("Created resource %s (total %d)", res.Name, res.Total),
		Timestamp: now,
	}
	err := s.ledger.WithTx(ctx, func(ctx context.Context, tx repository.LedgerTx) error {
		if err := tx.InsertResource(ctx, res); err != nil {
			return err
		}
		return tx.AppendAudit(ctx, entry)
	})
	if err != nil {
		telemetry.RecordResult(span, err, "create resource failed")
		return nil, err
	}

	s.publish(ctx, &domain.Notification{
		ID:         s.newID(),
		Type:       domain.NotificationResourceCreated,
		ResourceID: res.ID,
		Audit:      entry,
		OccurredAt: now,
	})
	span.SetAttributes(attribute.String("resource_id", res.ID))
	telemetry.RecordResult(span, nil, "")
	return res, nil
}

func (s *adminService) publish(ctx context.Context, n *domain.Notification) {
	if err := s.publisher.Publish(ctx, n); err != nil {
		logger.Get().WithContext(ctx).Warn("failed to publish notification",
			zap.String("type", n.Type), zap.Error(err))
	}
}
