package handler

import (
	"fmt"
	"strconv"

	"github.com/gin-gonic/gin"
	"github.com/prohmpiriya/venue-approval/internal/domain"
	"github.com/prohmpiriya/venue-approval/internal/dto"
	"github.com/prohmpiriya/venue-approval/internal/service"
	"github.com/prohmpiriya/venue-approval/pkg/response"
	"github.com/prohmpiriya/venue-approval/pkg/telemetry"
	"go.opentelemetry.io/otel/attribute"
)

// AuditHandler serves the audit trail
type AuditHandler struct {
	audit service.AuditService
}

// NewAuditHandler creates a new audit handler
func NewAuditHandler(audit service.AuditService) *AuditHandler {
	return &AuditHandler{audit: audit}
}

// Query handles GET /audit?actor_id=&event_id=&action=&limit=
func (h *AuditHandler) Query(c *gin.Context) {
	ctx, span := telemetry.StartSpan(c.Request.Context(), "handler.audit.query")
	defer span.End()
	c.Request = c.Request.WithContext(ctx)

	actor, ok := actorFrom(c)
	if !ok {
		return
	}

	filter := &domain.AuditFilter{
		ActorID: c.Query("actor_id"),
		EventID: c.Query("event_id"),
		Action:  c.Query("action"),
	}
	if l := c.Query("limit"); l != "" {
		limit, err := strconv.Atoi(l)
		if err != nil {
			handleError(c, fmt.Errorf("%w: %q", domain.ErrInvalidAuditLimit, l))
			return
		}
		filter.Limit = limit
	}

	span.SetAttributes(
		attribute.String("actor_id", actor.ID),
		attribute.Int("limit", filter.Limit),
	)

	entries, err := h.audit.Query(ctx, actor, filter)
	telemetry.RecordResult(span, err, "audit query failed")
	if err != nil {
		handleError(c, err)
		return
	}

	response.Items(c, dto.FromAuditEntries(entries), len(entries))
}
