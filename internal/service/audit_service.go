package service

import (
	"context"

	"github.com/prohmpiriya/venue-approval/internal/domain"
	"github.com/prohmpiriya/venue-approval/internal/repository"
	"github.com/prohmpiriya/venue-approval/pkg/telemetry"
	"go.opentelemetry.io/otel/attribute"
)

// MaxAuditLimit caps one audit query
const MaxAuditLimit = 500

// AuditService reads the append-only audit trail
type AuditService interface {
	// Query returns matching entries, most recent first
	Query(ctx context.Context, actor domain.Actor, filter *domain.AuditFilter) ([]*domain.AuditEntry, error)
}

type auditService struct {
	ledger repository.LedgerRepository
}

// NewAuditService creates a new audit service
func NewAuditService(ledger repository.LedgerRepository) AuditService {
	return &auditService{ledger: ledger}
}

func (s *auditService) Query(ctx context.Context, actor domain.Actor, filter *domain.AuditFilter) ([]*domain.AuditEntry, error) {
	ctx, span := telemetry.StartSpan(ctx, "service.audit.query")
	defer span.End()

	if !actor.CanReadAudit() {
		telemetry.RecordResult(span, domain.ErrAuditAccessDenied, "access denied")
		return nil, domain.ErrAuditAccessDenied
	}

	f := domain.AuditFilter{}
	if filter != nil {
		f = *filter
	}
	if f.Limit < 0 || f.Limit > MaxAuditLimit {
		telemetry.RecordResult(span, domain.ErrInvalidAuditLimit, "invalid limit")
		return nil, domain.ErrInvalidAuditLimit
	}
	if f.Limit == 0 {
		f.Limit = MaxAuditLimit
	}
	span.SetAttributes(
		attribute.String("actor_filter", f.ActorID),
		attribute.String("event_filter", f.EventID),
		attribute.Int("limit", f.Limit),
	)

	entries, err := s.ledger.QueryAudit(ctx, &f)
	if err != nil {
		telemetry.RecordResult(span, err, "query audit failed")
		return nil, err
	}
	span.SetAttributes(attribute.Int("count", len(entries)))
	telemetry.RecordResult(span, nil, "")
	return entries, nil
}
