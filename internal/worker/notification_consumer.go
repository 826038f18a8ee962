package worker

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"github.com/prohmpiriya/venue-approval/internal/domain"
	"github.com/prohmpiriya/venue-approval/pkg/kafka"
	"github.com/prohmpiriya/venue-approval/pkg/logger"
	"go.uber.org/zap"
)

// RecordConsumer is the part of kafka.Consumer the notification consumer needs
type RecordConsumer interface {
	Poll(ctx context.Context) ([]*kafka.Record, error)
	CommitRecords(ctx context.Context, records []*kafka.Record) error
}

// Notifier delivers one notification to people (email, push, chat)
type Notifier interface {
	Notify(ctx context.Context, n *domain.Notification) error
}

// LogNotifier writes each notification to the log
type LogNotifier struct {
	log *logger.Logger
}

// NewLogNotifier creates a notifier that only logs
func NewLogNotifier(log *logger.Logger) *LogNotifier {
	if log == nil {
		log = logger.Get()
	}
	return &LogNotifier{log: log}
}

// Notify logs n
func (l *LogNotifier) Notify(ctx context.Context, n *domain.Notification) error {
	l.log.WithContext(ctx).Info("notification",
		zap.String("id", n.ID),
		zap.String("type", n.Type),
		zap.String("event_id", n.EventID),
		zap.String("status", string(n.Status)),
		zap.String("department", n.Department),
		zap.String("coordinator_id", n.CoordinatorID),
		zap.Time("occurred_at", n.OccurredAt),
	)
	return nil
}

// NotificationConsumerConfig holds configuration for the notification consumer
type NotificationConsumerConfig struct {
	// PollBackoff is the pause after a failed poll
	PollBackoff time.Duration
}

// NotificationConsumer reads relayed notifications from Kafka and hands
// them to a Notifier. Offsets are committed after each batch.
type NotificationConsumer struct {
	config   *NotificationConsumerConfig
	consumer RecordConsumer
	notifier Notifier
	log      *logger.Logger
}

// NewNotificationConsumer creates a new notification consumer
func NewNotificationConsumer(
	cfg *NotificationConsumerConfig,
	consumer RecordConsumer,
	notifier Notifier,
	log *logger.Logger,
) *NotificationConsumer {
	if cfg == nil {
		cfg = &NotificationConsumerConfig{}
	}
	if cfg.PollBackoff <= 0 {
		cfg.PollBackoff = time.Second
	}
	if log == nil {
		log = logger.Get()
	}
	return &NotificationConsumer{config: cfg, consumer: consumer, notifier: notifier, log: log}
}

// Start polls until ctx is cancelled or the consumer is closed
func (w *NotificationConsumer) Start(ctx context.Context) {
	for {
		records, err := w.consumer.Poll(ctx)
		if err != nil {
			if ctx.Err() != nil || errors.Is(err, kafka.ErrClientClosed) {
				w.log.Info("Notification consumer stopping")
				return
			}
			w.log.Error(fmt.Sprintf("Failed to poll Kafka: %v", err))
			select {
			case <-ctx.Done():
				return
			case <-time.After(w.config.PollBackoff):
			}
			continue
		}

		if len(records) == 0 {
			continue
		}

		w.processRecords(ctx, records)

		if err := w.consumer.CommitRecords(ctx, records); err != nil {
			w.log.Error(fmt.Sprintf("Failed to commit offsets: %v", err))
		}
	}
}

// processRecords decodes and delivers a batch. It returns the number of
// records that could not be delivered.
func (w *NotificationConsumer) processRecords(ctx context.Context, records []*kafka.Record) int {
	failed := 0
	for _, record := range records {
		if err := w.processRecord(ctx, record); err != nil {
			failed++
			w.log.Error(fmt.Sprintf("Failed to process record: %v", err),
				zap.String("notification_type", kafka.HeaderValue(record, "notification_type")),
				zap.Int64("offset", record.Offset),
			)
		}
	}
	return failed
}

func (w *NotificationConsumer) processRecord(ctx context.Context, record *kafka.Record) error {
	var n domain.Notification
	if err := json.Unmarshal(record.Value, &n); err != nil {
		return fmt.Errorf("failed to unmarshal notification: %w", err)
	}
	if n.ID == "" || n.Type == "" {
		return fmt.Errorf("notification is missing id or type")
	}
	if err := w.notifier.Notify(ctx, &n); err != nil {
		return fmt.Errorf("failed to deliver %s notification %s: %w", n.Type, n.ID, err)
	}
	return nil
}
