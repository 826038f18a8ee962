package worker

import (
	"context"
	"encoding/json"
	"fmt"
	"time"

	"github.com/prohmpiriya/venue-approval/internal/domain"
	"github.com/prohmpiriya/venue-approval/internal/metrics"
	"github.com/prohmpiriya/venue-approval/internal/service"
	"github.com/prohmpiriya/venue-approval/pkg/logger"
	"github.com/prohmpiriya/venue-approval/pkg/retry"
	"go.opentelemetry.io/otel/attribute"
	"go.uber.org/zap"
)

// NotificationSource hands out subscriptions to committed-mutation notifications
type NotificationSource interface {
	Subscribe(buffer int) *service.Subscription
	Unsubscribe(sub *service.Subscription)
}

// Sink is one external destination for notifications
type Sink struct {
	Name      string
	Publisher service.EventPublisher
}

// NotificationRelayConfig holds configuration for the notification relay
type NotificationRelayConfig struct {
	// Buffer is the relay's subscription buffer
	Buffer int
	// Topic labels dead letters with the stream they came from
	Topic string
	// Retry controls delivery attempts per sink
	Retry *retry.Config
}

// NotificationRelay forwards broker notifications to the external sinks.
// Each sink gets its own retries; a sink that stays down dead-letters the
// notification without holding back the others.
type NotificationRelay struct {
	config *NotificationRelayConfig
	source NotificationSource
	sinks  []Sink
	dlq    *retry.DLQHandler
	log    *logger.Logger
}

// NewNotificationRelay creates a new notification relay. dlq may be nil.
func NewNotificationRelay(
	cfg *NotificationRelayConfig,
	source NotificationSource,
	sinks []Sink,
	dlq retry.DLQPublisher,
	log *logger.Logger,
) *NotificationRelay {
	if cfg == nil {
		cfg = &NotificationRelayConfig{}
	}
	if cfg.Buffer <= 0 {
		cfg.Buffer = 256
	}
	if cfg.Topic == "" {
		cfg.Topic = "venue-notifications"
	}
	if cfg.Retry == nil {
		cfg.Retry = retry.DefaultConfig()
	}
	if log == nil {
		log = logger.Get()
	}

	r := &NotificationRelay{
		config: cfg,
		source: source,
		sinks:  sinks,
		log:    log,
	}
	r.dlq = retry.NewDLQHandler(dlq, cfg.Retry, "notification-relay", func(msg *retry.DLQMessage) {
		r.log.Warn("notification moved to dead letter queue",
			zap.String("notification_id", msg.ID),
			zap.String("topic", msg.OriginalTopic),
			zap.Int("attempts", msg.Attempts),
			zap.String("error", msg.Error),
		)
	})
	return r
}

// Start relays notifications until ctx is cancelled or the source closes
func (r *NotificationRelay) Start(ctx context.Context) {
	if len(r.sinks) == 0 {
		r.log.Info("Notification relay has no sinks, not starting")
		return
	}

	sub := r.source.Subscribe(r.config.Buffer)
	defer r.source.Unsubscribe(sub)

	names := make([]string, len(r.sinks))
	for i, s := range r.sinks {
		names[i] = s.Name
	}
	r.log.Info("Notification relay started", zap.Strings("sinks", names))

	for {
		select {
		case <-ctx.Done():
			r.log.Info("Notification relay context cancelled, stopping...")
			return
		case n, open := <-sub.C():
			if !open {
				r.log.Info("Notification source closed, relay stopping")
				return
			}
			r.deliver(ctx, n)
		}
	}
}

// deliver sends n to every sink. It returns the number of sinks that failed.
func (r *NotificationRelay) deliver(ctx context.Context, n *domain.Notification) int {
	payload, err := json.Marshal(n)
	if err != nil {
		r.log.Error(fmt.Sprintf("Failed to marshal notification %s: %v", n.ID, err))
		return len(r.sinks)
	}

	failed := 0
	for _, sink := range r.sinks {
		start := time.Now()
		env := &retry.Envelope{
			ID:      n.ID,
			Topic:   r.config.Topic,
			Key:     n.Key(),
			Payload: payload,
			Headers: map[string]string{
				"notification_type": n.Type,
				"sink":              sink.Name,
			},
		}

		publisher := sink.Publisher
		err := r.dlq.Process(ctx, env, func(ctx context.Context) error {
			return publisher.Publish(ctx, n)
		})

		attrs := []attribute.KeyValue{
			attribute.String("sink", sink.Name),
			attribute.String("type", n.Type),
		}
		metrics.ObserveOperation(ctx, "relay."+sink.Name, start, err)
		if err != nil {
			failed++
			metrics.NotificationsFailed.Inc(ctx, attrs...)
			r.log.WithContext(ctx).Error("failed to relay notification",
				zap.String("sink", sink.Name),
				zap.String("notification_id", n.ID),
				zap.Error(err),
			)
			continue
		}
		metrics.NotificationsPublished.Inc(ctx, attrs...)
	}
	return failed
}
