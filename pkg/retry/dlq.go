package retry

import (
	"context"
	"encoding/json"
	"errors"
	"strconv"
	"time"
)

// DLQMessage is a message that exhausted its delivery attempts
type DLQMessage struct {
	ID             string            `json:"id"`
	OriginalTopic  string            `json:"original_topic"`
	OriginalKey    string            `json:"original_key"`
	Payload        json.RawMessage   `json:"payload"`
	Headers        map[string]string `json:"headers,omitempty"`
	Error          string            `json:"error"`
	Attempts       int               `json:"attempts"`
	FirstAttemptAt time.Time         `json:"first_attempt_at"`
	MovedToDLQAt   time.Time         `json:"moved_to_dlq_at"`
	Source         string            `json:"source"`
}

// DLQPublisher publishes failed messages to a dead letter queue
type DLQPublisher interface {
	PublishToDLQ(ctx context.Context, msg *DLQMessage) error
}

// JSONProducer is the subset of a Kafka producer used for dead letters
type JSONProducer interface {
	ProduceJSON(ctx context.Context, topic, key string, value interface{}, headers map[string]string) error
}

// KafkaDLQPublisher writes dead letters to "<topic>.dlq"
type KafkaDLQPublisher struct {
	producer JSONProducer
	source   string
	suffix   string
}

// NewKafkaDLQPublisher creates a Kafka backed DLQ publisher
func NewKafkaDLQPublisher(producer JSONProducer, source string) *KafkaDLQPublisher {
	return &KafkaDLQPublisher{
		producer: producer,
		source:   source,
		suffix:   ".dlq",
	}
}

// Topic returns the dead letter topic for originalTopic
func (p *KafkaDLQPublisher) Topic(originalTopic string) string {
	return originalTopic + p.suffix
}

// PublishToDLQ publishes msg to the dead letter topic
func (p *KafkaDLQPublisher) PublishToDLQ(ctx context.Context, msg *DLQMessage) error {
	if msg == nil {
		return errors.New("DLQ message cannot be nil")
	}

	msg.MovedToDLQAt = time.Now()
	msg.Source = p.source

	headers := map[string]string{
		"content_type":   "application/json",
		"original_topic": msg.OriginalTopic,
		"attempts":       strconv.Itoa(msg.Attempts),
		"source":         msg.Source,
	}
	for k, v := range msg.Headers {
		if _, exists := headers[k]; !exists {
			headers["original_"+k] = v
		}
	}

	return p.producer.ProduceJSON(ctx, p.Topic(msg.OriginalTopic), msg.OriginalKey, msg, headers)
}

// NoOpDLQPublisher drops dead letters
type NoOpDLQPublisher struct{}

// PublishToDLQ does nothing
func (NoOpDLQPublisher) PublishToDLQ(ctx context.Context, msg *DLQMessage) error { return nil }

// DLQHandler retries an operation and dead-letters it on exhaustion
type DLQHandler struct {
	retrier   *Retrier
	publisher DLQPublisher
	source    string
	onDLQ     func(msg *DLQMessage)
}

// NewDLQHandler creates a DLQ handler. onDLQ may be nil.
func NewDLQHandler(publisher DLQPublisher, cfg *Config, source string, onDLQ func(msg *DLQMessage)) *DLQHandler {
	if publisher == nil {
		publisher = NoOpDLQPublisher{}
	}
	return &DLQHandler{
		retrier:   New(cfg),
		publisher: publisher,
		source:    source,
		onDLQ:     onDLQ,
	}
}

// Envelope identifies the message an operation delivers
type Envelope struct {
	ID      string
	Topic   string
	Key     string
	Payload json.RawMessage
	Headers map[string]string
}

// Process runs op with retries. On failure the envelope goes to the DLQ and
// the delivery error is returned.
func (h *DLQHandler) Process(ctx context.Context, env *Envelope, op Operation) error {
	started := time.Now()
	result := h.retrier.Do(ctx, op)
	if result.Err == nil {
		return nil
	}

	cause := result.Err
	if result.LastError != nil {
		cause = result.LastError
	}

	msg := &DLQMessage{
		ID:             env.ID,
		OriginalTopic:  env.Topic,
		OriginalKey:    env.Key,
		Payload:        env.Payload,
		Headers:        env.Headers,
		Error:          cause.Error(),
		Attempts:       result.Attempts,
		FirstAttemptAt: started,
		Source:         h.source,
	}
	if h.onDLQ != nil {
		h.onDLQ(msg)
	}

	if err := h.publisher.PublishToDLQ(ctx, msg); err != nil {
		return errors.Join(cause, err)
	}
	return cause
}
