package retry

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"strconv"
	"time"
)

// DLQMessage is a unit of work that exhausted its retries
type DLQMessage struct {
	ID string `json:"id"`
	// Kind identifies the work type (job kind or original topic)
	Kind string `json:"kind"`
	// Key is the entity the work was addressed to
	Key            string            `json:"key"`
	Payload        json.RawMessage   `json:"payload"`
	Error          string            `json:"error"`
	Attempts       int               `json:"attempts"`
	FirstAttemptAt time.Time         `json:"first_attempt_at"`
	LastAttemptAt  time.Time         `json:"last_attempt_at"`
	MovedToDLQAt   time.Time         `json:"moved_to_dlq_at"`
	Source         string            `json:"source"`
	Metadata       map[string]string `json:"metadata,omitempty"`
}

// DLQPublisher publishes failed work to a dead letter queue
type DLQPublisher interface {
	PublishToDLQ(ctx context.Context, msg *DLQMessage) error
}

// JSONProducer is the subset of the Kafka producer the DLQ needs
type JSONProducer interface {
	ProduceJSON(ctx context.Context, topic, key string, data any, headers map[string]string) error
}

// KafkaDLQPublisher publishes dead letters to a Kafka topic
type KafkaDLQPublisher struct {
	producer JSONProducer
	topic    string
}

// NewKafkaDLQPublisher creates a Kafka DLQ publisher writing to topic
func NewKafkaDLQPublisher(producer JSONProducer, topic string) *KafkaDLQPublisher {
	return &KafkaDLQPublisher{producer: producer, topic: topic}
}

// PublishToDLQ publishes the message keyed by its entity key
func (p *KafkaDLQPublisher) PublishToDLQ(ctx context.Context, msg *DLQMessage) error {
	if msg == nil {
		return fmt.Errorf("DLQ message cannot be nil")
	}
	stamp(msg)

	headers := map[string]string{
		"content_type":    "application/json",
		"kind":            msg.Kind,
		"error":           msg.Error,
		"attempts":        strconv.Itoa(msg.Attempts),
		"moved_to_dlq_at": msg.MovedToDLQAt.Format(time.RFC3339),
		"source":          msg.Source,
	}
	return p.producer.ProduceJSON(ctx, p.topic, msg.Key, msg, headers)
}

// MultiDLQPublisher fans a dead letter out to every publisher, joining errors
type MultiDLQPublisher []DLQPublisher

func (m MultiDLQPublisher) PublishToDLQ(ctx context.Context, msg *DLQMessage) error {
	var errs []error
	for _, p := range m {
		if err := p.PublishToDLQ(ctx, msg); err != nil {
			errs = append(errs, err)
		}
	}
	return errors.Join(errs...)
}

// NoOpDLQPublisher drops dead letters
type NoOpDLQPublisher struct{}

func (NoOpDLQPublisher) PublishToDLQ(ctx context.Context, msg *DLQMessage) error { return nil }

// DLQHandlerConfig configures a DLQHandler
type DLQHandlerConfig struct {
	RetryConfig *Config
	Source      string
	// OnDLQ is called when a message is moved to the DLQ
	OnDLQ func(msg *DLQMessage)
}

// DLQHandler runs work with retry and dead-letters it on exhaustion
type DLQHandler struct {
	retrier   *Retrier
	publisher DLQPublisher
	config    *DLQHandlerConfig
}

// NewDLQHandler creates a new DLQ handler
func NewDLQHandler(publisher DLQPublisher, config *DLQHandlerConfig) *DLQHandler {
	if config == nil {
		config = &DLQHandlerConfig{RetryConfig: DefaultConfig(), Source: "unknown"}
	}
	if publisher == nil {
		publisher = NoOpDLQPublisher{}
	}
	return &DLQHandler{
		retrier:   New(config.RetryConfig),
		publisher: publisher,
		config:    config,
	}
}

// MessageContext describes the work being processed
type MessageContext struct {
	ID             string
	Kind           string
	Key            string
	Payload        json.RawMessage
	FirstAttemptAt time.Time
	Metadata       map[string]string
}

// ProcessWithDLQ runs op with retries. On exhaustion the work is published to
// the DLQ and the final error is returned. Permanent errors are dead-lettered
// without further attempts.
func (h *DLQHandler) ProcessWithDLQ(ctx context.Context, msgCtx *MessageContext, op Operation) error {
	if msgCtx.FirstAttemptAt.IsZero() {
		msgCtx.FirstAttemptAt = time.Now()
	}

	result := h.retrier.Do(ctx, op)
	if result.Err == nil {
		return nil
	}
	if errors.Is(result.Err, ErrContextCanceled) {
		return result.Err
	}

	errMsg := result.Err.Error()
	if result.LastError != nil {
		errMsg = result.LastError.Error()
	}

	msg := &DLQMessage{
		ID:             msgCtx.ID,
		Kind:           msgCtx.Kind,
		Key:            msgCtx.Key,
		Payload:        msgCtx.Payload,
		Error:          errMsg,
		Attempts:       result.Attempts,
		FirstAttemptAt: msgCtx.FirstAttemptAt,
		LastAttemptAt:  time.Now(),
		Source:         h.config.Source,
		Metadata:       msgCtx.Metadata,
	}

	if err := h.publisher.PublishToDLQ(ctx, msg); err != nil {
		return fmt.Errorf("failed to publish to DLQ: %w (original error: %s)", err, errMsg)
	}

	// only messages that actually reached the DLQ are reported
	if h.config.OnDLQ != nil {
		h.config.OnDLQ(msg)
	}
	return result.Err
}

func stamp(msg *DLQMessage) {
	if msg.MovedToDLQAt.IsZero() {
		msg.MovedToDLQAt = time.Now().UTC()
	}
}
