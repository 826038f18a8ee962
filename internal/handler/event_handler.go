package handler

import (
	"github.com/gin-gonic/gin"
	"github.com/prohmpiriya/venue-approval/internal/domain"
	"github.com/prohmpiriya/venue-approval/internal/dto"
	"github.com/prohmpiriya/venue-approval/internal/service"
	"github.com/prohmpiriya/venue-approval/pkg/response"
	"github.com/prohmpiriya/venue-approval/pkg/telemetry"
	"go.opentelemetry.io/otel/attribute"
)

// EventHandler handles event request HTTP requests
type EventHandler struct {
	approval service.ApprovalService
	query    service.QueryService
}

// NewEventHandler creates a new event handler
func NewEventHandler(approval service.ApprovalService, query service.QueryService) *EventHandler {
	return &EventHandler{
		approval: approval,
		query:    query,
	}
}

// Submit handles POST /events
func (h *EventHandler) Submit(c *gin.Context) {
	ctx, span := telemetry.StartSpan(c.Request.Context(), "handler.event.submit")
	defer span.End()
	c.Request = c.Request.WithContext(ctx)

	actor, ok := actorFrom(c)
	if !ok {
		return
	}

	var req dto.SubmitEventRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		telemetry.RecordResult(span, err, "invalid request")
		badRequest(c, err)
		return
	}

	span.SetAttributes(
		attribute.String("actor_id", actor.ID),
		attribute.String("venue_id", req.VenueID),
		attribute.String("date", req.Date),
		attribute.Int("claims", len(req.Resources)),
	)

	ev, err := h.approval.Submit(ctx, actor, req.ToDraft())
	telemetry.RecordResult(span, err, "submit failed")
	if err != nil {
		handleError(c, err)
		return
	}

	span.SetAttributes(attribute.String("event_id", ev.ID))
	response.Created(c, dto.FromEvent(ev))
}

// List handles GET /events
func (h *EventHandler) List(c *gin.Context) {
	ctx, span := telemetry.StartSpan(c.Request.Context(), "handler.event.list")
	defer span.End()
	c.Request = c.Request.WithContext(ctx)

	actor, ok := actorFrom(c)
	if !ok {
		return
	}

	q := &service.EventQuery{VenueID: c.Query("venue_id")}
	if s := c.Query("status"); s != "" {
		status, err := domain.ParseStatus(s)
		if err != nil {
			handleError(c, err)
			return
		}
		q.Status = status
	}
	if d := c.Query("date"); d != "" {
		date, err := domain.ParseDate(d)
		if err != nil {
			handleError(c, err)
			return
		}
		q.Date = &date
	}

	events, err := h.query.ListEvents(ctx, actor, q)
	telemetry.RecordResult(span, err, "list failed")
	if err != nil {
		handleError(c, err)
		return
	}

	span.SetAttributes(attribute.Int("count", len(events)))
	response.Items(c, dto.FromEvents(events), len(events))
}

// Get handles GET /events/:id
func (h *EventHandler) Get(c *gin.Context) {
	ctx, span := telemetry.StartSpan(c.Request.Context(), "handler.event.get")
	defer span.End()
	c.Request = c.Request.WithContext(ctx)

	actor, ok := actorFrom(c)
	if !ok {
		return
	}

	eventID := c.Param("id")
	span.SetAttributes(attribute.String("event_id", eventID))

	ev, err := h.query.GetEvent(ctx, actor, eventID)
	telemetry.RecordResult(span, err, "get failed")
	if err != nil {
		handleError(c, err)
		return
	}

	response.OK(c, dto.FromEvent(ev))
}

// Transition handles POST /events/:id/transitions
func (h *EventHandler) Transition(c *gin.Context) {
	ctx, span := telemetry.StartSpan(c.Request.Context(), "handler.event.transition")
	defer span.End()
	c.Request = c.Request.WithContext(ctx)

	actor, ok := actorFrom(c)
	if !ok {
		return
	}

	var req dto.TransitionRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		telemetry.RecordResult(span, err, "invalid request")
		badRequest(c, err)
		return
	}

	action, err := domain.ParseAction(req.Action)
	if err != nil {
		telemetry.RecordResult(span, err, "unknown action")
		handleError(c, err)
		return
	}

	eventID := c.Param("id")
	span.SetAttributes(
		attribute.String("event_id", eventID),
		attribute.String("action", string(action)),
		attribute.String("actor_role", string(actor.Role)),
	)

	ev, err := h.approval.Transition(ctx, actor, eventID, action, req.Note, req.Reason)
	telemetry.RecordResult(span, err, "transition failed")
	if err != nil {
		handleError(c, err)
		return
	}

	response.OK(c, dto.FromEvent(ev))
}

// UpdateStatus handles PATCH /events/:id/status
func (h *EventHandler) UpdateStatus(c *gin.Context) {
	ctx, span := telemetry.StartSpan(c.Request.Context(), "handler.event.update_status")
	defer span.End()
	c.Request = c.Request.WithContext(ctx)

	actor, ok := actorFrom(c)
	if !ok {
		return
	}

	var req dto.StatusUpdateRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		telemetry.RecordResult(span, err, "invalid request")
		badRequest(c, err)
		return
	}

	status, err := domain.ParseStatus(req.Status)
	if err != nil {
		telemetry.RecordResult(span, err, "unknown status")
		handleError(c, err)
		return
	}

	eventID := c.Param("id")
	span.SetAttributes(
		attribute.String("event_id", eventID),
		attribute.String("to_status", string(status)),
	)

	ev, err := h.approval.TransitionToStatus(ctx, actor, eventID, status, req.Note, req.Reason)
	telemetry.RecordResult(span, err, "status update failed")
	if err != nil {
		handleError(c, err)
		return
	}

	response.OK(c, dto.FromEvent(ev))
}
