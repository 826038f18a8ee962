package service

import (
	"context"
	"encoding/json"
	"fmt"
	"sync"
	"time"

	"github.com/prohmpiriya/venue-approval/internal/domain"
	"github.com/prohmpiriya/venue-approval/internal/metrics"
	"github.com/prohmpiriya/venue-approval/pkg/kafka"
	"github.com/prohmpiriya/venue-approval/pkg/redis"
	goredis "github.com/redis/go-redis/v9"
	"go.opentelemetry.io/otel/attribute"
)

// EventPublisher delivers notifications about committed ledger mutations
type EventPublisher interface {
	// Publish delivers one notification
	Publish(ctx context.Context, n *domain.Notification) error

	// Close releases the publisher's resources
	Close() error
}

// DefaultSubscriberBuffer is the channel size of a Broker subscription
const DefaultSubscriberBuffer = 64

// Subscription receives notifications from a Broker until unsubscribed
type Subscription struct {
	id uint64
	ch chan *domain.Notification
}

// C returns the delivery channel. It is closed on Unsubscribe or broker Close.
func (s *Subscription) C() <-chan *domain.Notification {
	return s.ch
}

// Broker is the in-process notification sink. Publish never blocks: a
// subscriber whose buffer is full misses the notification.
type Broker struct {
	mu     sync.RWMutex
	subs   map[uint64]*Subscription
	nextID uint64
	closed bool
}

// NewBroker creates a new in-process broker
func NewBroker() *Broker {
	return &Broker{subs: make(map[uint64]*Subscription)}
}

// Subscribe registers a new subscriber with the given buffer size
func (b *Broker) Subscribe(buffer int) *Subscription {
	if buffer <= 0 {
		buffer = DefaultSubscriberBuffer
	}

	b.mu.Lock()
	defer b.mu.Unlock()

	b.nextID++
	sub := &Subscription{id: b.nextID, ch: make(chan *domain.Notification, buffer)}
	if b.closed {
		close(sub.ch)
		return sub
	}
	b.subs[sub.id] = sub
	return sub
}

// Unsubscribe removes sub and closes its channel
func (b *Broker) Unsubscribe(sub *Subscription) {
	b.mu.Lock()
	defer b.mu.Unlock()

	if _, ok := b.subs[sub.id]; !ok {
		return
	}
	delete(b.subs, sub.id)
	close(sub.ch)
}

// Subscribers returns the number of active subscribers
func (b *Broker) Subscribers() int {
	b.mu.RLock()
	defer b.mu.RUnlock()
	return len(b.subs)
}

// Publish fans n out to every subscriber without blocking
func (b *Broker) Publish(ctx context.Context, n *domain.Notification) error {
	b.mu.RLock()
	defer b.mu.RUnlock()

	if b.closed {
		return nil
	}
	for _, sub := range b.subs {
		select {
		case sub.ch <- n:
		default:
			metrics.NotificationsDropped.Inc(ctx, attribute.String("type", n.Type))
		}
	}
	return nil
}

// Close closes every subscription. Later publishes are dropped.
func (b *Broker) Close() error {
	b.mu.Lock()
	defer b.mu.Unlock()

	if b.closed {
		return nil
	}
	b.closed = true
	for id, sub := range b.subs {
		close(sub.ch)
		delete(b.subs, id)
	}
	return nil
}

// MessageProducer is the part of kafka.Producer the publisher needs
type MessageProducer interface {
	Produce(ctx context.Context, msg *kafka.Message) error
	Close()
}

// KafkaEventPublisher implements EventPublisher using Kafka
type KafkaEventPublisher struct {
	producer    MessageProducer
	topic       string
	serviceName string
}

// EventPublisherConfig contains configuration for the Kafka publisher
type EventPublisherConfig struct {
	Brokers     []string
	Topic       string
	ServiceName string
	ClientID    string
}

// NewKafkaEventPublisher connects a producer and creates a Kafka publisher
func NewKafkaEventPublisher(ctx context.Context, cfg *EventPublisherConfig) (*KafkaEventPublisher, error) {
	if cfg == nil {
		return nil, fmt.Errorf("event publisher config is required")
	}
	if len(cfg.Brokers) == 0 {
		return nil, fmt.Errorf("kafka brokers are required")
	}

	clientID := cfg.ClientID
	if clientID == "" {
		clientID = "venue-approval-producer"
	}

	producer, err := kafka.NewProducer(ctx, &kafka.ProducerConfig{
		Brokers:       cfg.Brokers,
		ClientID:      clientID,
		MaxRetries:    3,
		RetryInterval: 2 * time.Second,
		LingerMs:      10,
	})
	if err != nil {
		return nil, fmt.Errorf("failed to create kafka producer: %w", err)
	}
	return NewKafkaEventPublisherWithProducer(producer, cfg.Topic, cfg.ServiceName), nil
}

// NewKafkaEventPublisherWithProducer wraps an existing producer
func NewKafkaEventPublisherWithProducer(producer MessageProducer, topic, serviceName string) *KafkaEventPublisher {
	if topic == "" {
		topic = "venue-notifications"
	}
	if serviceName == "" {
		serviceName = "venue-approval"
	}
	return &KafkaEventPublisher{producer: producer, topic: topic, serviceName: serviceName}
}

// Publish produces n keyed by its event, resource or venue id
func (p *KafkaEventPublisher) Publish(ctx context.Context, n *domain.Notification) error {
	value, err := json.Marshal(n)
	if err != nil {
		return fmt.Errorf("failed to marshal notification: %w", err)
	}

	msg := &kafka.Message{
		Topic: p.topic,
		Key:   n.Key(),
		Value: value,
		Headers: map[string]string{
			"notification_type": n.Type,
			"notification_id":   n.ID,
			"source":            p.serviceName,
			"content_type":      "application/json",
		},
		Timestamp: n.OccurredAt,
	}
	if err := p.producer.Produce(ctx, msg); err != nil {
		return fmt.Errorf("failed to publish %s notification: %w", n.Type, err)
	}
	return nil
}

// Close closes the producer
func (p *KafkaEventPublisher) Close() error {
	if p.producer != nil {
		p.producer.Close()
	}
	return nil
}

// ScriptRunner runs a Lua script by digest
type ScriptRunner interface {
	Run(ctx context.Context, s *redis.Script, keys []string, args ...interface{}) *goredis.Cmd
}

// publishNotificationScript appends to a capped stream and announces on a channel.
// KEYS[1] stream, ARGV[1] channel, ARGV[2] max length, ARGV[3] type, ARGV[4] payload.
var publishNotificationScript = redis.NewScript("publish_notification", `
local id = redis.call('XADD', KEYS[1], 'MAXLEN', '~', ARGV[2], '*', 'type', ARGV[3], 'payload', ARGV[4])
redis.call('PUBLISH', ARGV[1], ARGV[4])
return id
`)

// RedisPublisherConfig configures the Redis publisher
type RedisPublisherConfig struct {
	Stream  string
	Channel string
	MaxLen  int64
}

// RedisEventPublisher implements EventPublisher with a Redis stream and pub/sub channel
type RedisEventPublisher struct {
	runner  ScriptRunner
	stream  string
	channel string
	maxLen  int64
}

// NewRedisEventPublisher creates a Redis publisher
func NewRedisEventPublisher(runner ScriptRunner, cfg *RedisPublisherConfig) *RedisEventPublisher {
	p := &RedisEventPublisher{
		runner:  runner,
		stream:  "venue:notifications",
		channel: "venue:notifications",
		maxLen:  10000,
	}
	if cfg != nil {
		if cfg.Stream != "" {
			p.stream = cfg.Stream
		}
		if cfg.Channel != "" {
			p.channel = cfg.Channel
		}
		if cfg.MaxLen > 0 {
			p.maxLen = cfg.MaxLen
		}
	}
	return p
}

// Publish appends n to the stream and publishes it on the channel
func (p *RedisEventPublisher) Publish(ctx context.Context, n *domain.Notification) error {
	value, err := json.Marshal(n)
	if err != nil {
		return fmt.Errorf("failed to marshal notification: %w", err)
	}
	err = p.runner.Run(ctx, publishNotificationScript, []string{p.stream},
		p.channel, p.maxLen, n.Type, string(value)).Err()
	if err != nil {
		return fmt.Errorf("failed to publish %s notification to redis: %w", n.Type, err)
	}
	return nil
}

// Close is a no-op; the Redis client is owned by the caller
func (p *RedisEventPublisher) Close() error {
	return nil
}

// NoOpEventPublisher is a no-op implementation of EventPublisher for testing
type NoOpEventPublisher struct{}

// NewNoOpEventPublisher creates a new no-op event publisher
func NewNoOpEventPublisher() *NoOpEventPublisher {
	return &NoOpEventPublisher{}
}

// Publish is a no-op
func (p *NoOpEventPublisher) Publish(ctx context.Context, n *domain.Notification) error {
	return nil
}

// Close is a no-op
func (p *NoOpEventPublisher) Close() error {
	return nil
}
