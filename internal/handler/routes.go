package handler

import "github.com/gin-gonic/gin"

// Handlers groups the handlers mounted under /api/v1
type Handlers struct {
	Event        *EventHandler
	Catalog      *CatalogHandler
	Audit        *AuditHandler
	Notification *NotificationHandler
}

// RegisterRoutes mounts the API on r. The write middleware chain runs only on
// mutating routes.
func RegisterRoutes(r gin.IRouter, h *Handlers, write ...gin.HandlerFunc) {
	with := func(fn gin.HandlerFunc) []gin.HandlerFunc {
		chain := make([]gin.HandlerFunc, 0, len(write)+1)
		chain = append(chain, write...)
		return append(chain, fn)
	}

	events := r.Group("/events")
	{
		events.POST("", with(h.Event.Submit)...)
		events.GET("", h.Event.List)
		events.GET("/:id", h.Event.Get)
		events.POST("/:id/transitions", with(h.Event.Transition)...)
		events.PATCH("/:id/status", with(h.Event.UpdateStatus)...)
	}

	venues := r.Group("/venues")
	{
		venues.GET("", h.Catalog.ListVenues)
		venues.GET("/occupancy", h.Catalog.Occupancy)
		venues.POST("", with(h.Catalog.CreateVenue)...)
	}

	resources := r.Group("/resources")
	{
		resources.GET("", h.Catalog.ListResources)
		resources.POST("", with(h.Catalog.CreateResource)...)
		resources.PATCH("/:id/reset", with(h.Catalog.ResetResource)...)
	}

	r.GET("/audit", h.Audit.Query)

	if h.Notification != nil {
		r.GET("/notifications/stream", h.Notification.Stream)
	}
}
