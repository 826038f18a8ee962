package handler

import (
	"time"

	"github.com/gin-gonic/gin"
	"github.com/prohmpiriya/venue-approval/internal/domain"
	"github.com/prohmpiriya/venue-approval/internal/dto"
	"github.com/prohmpiriya/venue-approval/internal/service"
	"github.com/prohmpiriya/venue-approval/pkg/response"
	"github.com/prohmpiriya/venue-approval/pkg/telemetry"
	"go.opentelemetry.io/otel/attribute"
)

// CatalogHandler serves venues and resources, and the admin operations on them
type CatalogHandler struct {
	query service.QueryService
	admin service.AdminService
}

// NewCatalogHandler creates a new catalog handler
func NewCatalogHandler(query service.QueryService, admin service.AdminService) *CatalogHandler {
	return &CatalogHandler{
		query: query,
		admin: admin,
	}
}

// ListVenues handles GET /venues
func (h *CatalogHandler) ListVenues(c *gin.Context) {
	ctx, span := telemetry.StartSpan(c.Request.Context(), "handler.catalog.list_venues")
	defer span.End()
	c.Request = c.Request.WithContext(ctx)

	actor, ok := actorFrom(c)
	if !ok {
		return
	}

	venues, err := h.query.ListVenues(ctx, actor)
	telemetry.RecordResult(span, err, "list venues failed")
	if err != nil {
		handleError(c, err)
		return
	}

	response.Items(c, dto.FromVenues(venues), len(venues))
}

// Occupancy handles GET /venues/occupancy. An optional date narrows the
// bookings considered to that day.
func (h *CatalogHandler) Occupancy(c *gin.Context) {
	ctx, span := telemetry.StartSpan(c.Request.Context(), "handler.catalog.occupancy")
	defer span.End()
	c.Request = c.Request.WithContext(ctx)

	actor, ok := actorFrom(c)
	if !ok {
		return
	}

	var date *time.Time
	if d := c.Query("date"); d != "" {
		parsed, err := domain.ParseDate(d)
		if err != nil {
			handleError(c, err)
			return
		}
		date = &parsed
		span.SetAttributes(attribute.String("date", d))
	}

	occ, err := h.query.VenueOccupancy(ctx, actor, date)
	telemetry.RecordResult(span, err, "occupancy failed")
	if err != nil {
		handleError(c, err)
		return
	}

	response.Items(c, dto.FromOccupancy(occ), len(occ))
}

// CreateVenue handles POST /venues
func (h *CatalogHandler) CreateVenue(c *gin.Context) {
	ctx, span := telemetry.StartSpan(c.Request.Context(), "handler.catalog.create_venue")
	defer span.End()
	c.Request = c.Request.WithContext(ctx)

	actor, ok := actorFrom(c)
	if !ok {
		return
	}

	var req dto.CreateVenueRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		telemetry.RecordResult(span, err, "invalid request")
		badRequest(c, err)
		return
	}

	venue, err := h.admin.CreateVenue(ctx, actor, &service.VenueInput{
		Name:       req.Name,
		Type:       req.Type,
		Capacity:   req.Capacity,
		Department: req.Department,
	})
	telemetry.RecordResult(span, err, "create venue failed")
	if err != nil {
		handleError(c, err)
		return
	}

	span.SetAttributes(attribute.String("venue_id", venue.ID))
	response.Created(c, dto.FromVenue(venue))
}

// ListResources handles GET /resources
func (h *CatalogHandler) ListResources(c *gin.Context) {
	ctx, span := telemetry.StartSpan(c.Request.Context(), "handler.catalog.list_resources")
	defer span.End()
	c.Request = c.Request.WithContext(ctx)

	if _, ok := actorFrom(c); !ok {
		return
	}

	resources, err := h.query.ListResources(ctx)
	telemetry.RecordResult(span, err, "list resources failed")
	if err != nil {
		handleError(c, err)
		return
	}

	response.Items(c, dto.FromResources(resources), len(resources))
}

// CreateResource handles POST /resources
func (h *CatalogHandler) CreateResource(c *gin.Context) {
	ctx, span := telemetry.StartSpan(c.Request.Context(), "handler.catalog.create_resource")
	defer span.End()
	c.Request = c.Request.WithContext(ctx)

	actor, ok := actorFrom(c)
	if !ok {
		return
	}

	var req dto.CreateResourceRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		telemetry.RecordResult(span, err, "invalid request")
		badRequest(c, err)
		return
	}

	res, err := h.admin.CreateResource(ctx, actor, &service.ResourceInput{
		Name:  req.Name,
		Type:  req.Type,
		Total: req.Total,
	})
	telemetry.RecordResult(span, err, "create resource failed")
	if err != nil {
		handleError(c, err)
		return
	}

	span.SetAttributes(attribute.String("resource_id", res.ID))
	response.Created(c, dto.FromResource(res))
}

// ResetResource handles PATCH /resources/:id/reset
func (h *CatalogHandler) ResetResource(c *gin.Context) {
	ctx, span := telemetry.StartSpan(c.Request.Context(), "handler.catalog.reset_resource")
	defer span.End()
	c.Request = c.Request.WithContext(ctx)

	actor, ok := actorFrom(c)
	if !ok {
		return
	}

	resourceID := c.Param("id")
	span.SetAttributes(attribute.String("resource_id", resourceID))

	res, err := h.admin.ResetResource(ctx, actor, resourceID)
	telemetry.RecordResult(span, err, "reset failed")
	if err != nil {
		handleError(c, err)
		return
	}

	response.OK(c, dto.FromResource(res))
}
