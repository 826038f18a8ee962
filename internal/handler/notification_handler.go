package handler

import (
	"net/http"
	"time"

	"github.com/gin-contrib/sse"
	"github.com/gin-gonic/gin"
	"github.com/prohmpiriya/venue-approval/internal/domain"
	"github.com/prohmpiriya/venue-approval/internal/metrics"
	"github.com/prohmpiriya/venue-approval/internal/service"
	"github.com/prohmpiriya/venue-approval/pkg/logger"
	"go.uber.org/zap"
)

// DefaultHeartbeat is how often an idle stream sends a keep-alive event
const DefaultHeartbeat = 25 * time.Second

// NotificationSource hands out subscriptions to committed-mutation notifications
type NotificationSource interface {
	Subscribe(buffer int) *service.Subscription
	Unsubscribe(sub *service.Subscription)
}

// NotificationHandler streams notifications to clients as server-sent events
type NotificationHandler struct {
	source    NotificationSource
	buffer    int
	heartbeat time.Duration
}

// NotificationHandlerConfig contains configuration for the notification stream
type NotificationHandlerConfig struct {
	Buffer    int
	Heartbeat time.Duration
}

// NewNotificationHandler creates a new notification handler
func NewNotificationHandler(source NotificationSource, cfg *NotificationHandlerConfig) *NotificationHandler {
	h := &NotificationHandler{
		source:    source,
		buffer:    service.DefaultSubscriberBuffer,
		heartbeat: DefaultHeartbeat,
	}
	if cfg != nil {
		if cfg.Buffer > 0 {
			h.buffer = cfg.Buffer
		}
		if cfg.Heartbeat > 0 {
			h.heartbeat = cfg.Heartbeat
		}
	}
	return h
}

// Stream handles GET /notifications/stream. Each client only receives
// notifications about events it could read through GET /events.
func (h *NotificationHandler) Stream(c *gin.Context) {
	actor, ok := actorFrom(c)
	if !ok {
		return
	}

	ctx := c.Request.Context()
	sub := h.source.Subscribe(h.buffer)
	defer h.source.Unsubscribe(sub)

	metrics.StreamListeners.Add(ctx, 1)
	defer metrics.StreamListeners.Add(ctx, -1)

	c.Header("Content-Type", "text/event-stream")
	c.Header("Cache-Control", "no-cache")
	c.Header("Connection", "keep-alive")
	c.Header("X-Accel-Buffering", "no")
	c.Status(http.StatusOK)
	c.Writer.Flush()

	logger.Get().WithContext(ctx).Debug("notification stream opened",
		zap.String("actor_id", actor.ID),
		zap.String("role", string(actor.Role)),
	)

	ticker := time.NewTicker(h.heartbeat)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			c.SSEvent("heartbeat", time.Now().UTC().Format(time.RFC3339))
			c.Writer.Flush()
		case n, open := <-sub.C():
			if !open {
				return
			}
			if !notificationVisibleTo(actor, n) {
				continue
			}
			c.Render(-1, sse.Event{Id: n.ID, Event: n.Type, Data: n})
			c.Writer.Flush()
		}
	}
}

// notificationVisibleTo applies the event read scope to a notification.
// Catalog notifications carry no event and reach everyone.
func notificationVisibleTo(actor domain.Actor, n *domain.Notification) bool {
	if n.EventID == "" || actor.IsPrivileged() {
		return true
	}
	switch actor.Role {
	case domain.RoleHOD:
		return actor.Department != "" && n.Department == actor.Department
	case domain.RoleCoordinator:
		return n.CoordinatorID == actor.ID
	default:
		return false
	}
}
