package queue

import (
	"encoding/json"
	"errors"
	"fmt"
	"reflect"

	"github.com/rs/zerolog"
)

// SyncPublisher captures the subset of producer behaviour the status
// publisher needs.
type SyncPublisher interface {
	Publish(topic string, key []byte, headers map[string][]byte, payload []byte) error
}

// StatusPublisher emits one terminal delivery event per consumed request.
type StatusPublisher struct {
	producer SyncPublisher
	topic    string
	logger   zerolog.Logger
}

// NewStatusPublisher constructs a publisher for the given status topic.
func NewStatusPublisher(prod SyncPublisher, topic string, logger zerolog.Logger) (*StatusPublisher, error) {
	if prod == nil {
		return nil, errors.New("queue: producer is required")
	}
	if topic == "" {
		return nil, errors.New("queue: status topic is required")
	}
	if reflect.ValueOf(logger).IsZero() {
		logger = zerolog.Nop()
	}

	return &StatusPublisher{producer: prod, topic: topic, logger: logger}, nil
}

// Publish writes the event keyed by message id, keeping per-message ordering
// within a partition.
func (p *StatusPublisher) Publish(event StatusEvent) error {
	payload, err := json.Marshal(event)
	if err != nil {
		return fmt.Errorf("queue: marshal status event: %w", err)
	}

	headers := map[string][]byte{
		"content-type": []byte("application/json"),
	}
	if err := p.producer.Publish(p.topic, []byte(event.MessageID), headers, payload); err != nil {
		return fmt.Errorf("queue: publish status event: %w", err)
	}

	p.logger.Debug().
		Str("message_id", event.MessageID).
		Str("event", event.Event).
		Msg("status event published")
	return nil
}
