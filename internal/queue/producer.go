package queue

import (
	"errors"
	"fmt"
	"reflect"
	"time"

	"github.com/IBM/sarama"
	"github.com/rs/zerolog"
)

// ProducerOption customises the producer during construction.
type ProducerOption func(*producerOptions)

type producerOptions struct {
	config *sarama.Config
}

// WithProducerConfig supplies a prebuilt Sarama config. It is cloned
// internally so the caller retains ownership.
func WithProducerConfig(cfg *sarama.Config) ProducerOption {
	return func(o *producerOptions) {
		if cfg != nil {
			o.config = cfg
		}
	}
}

// Producer wraps a Sarama sync producer. Publishes wait for broker
// acknowledgement so a status event is durable before the request offset that
// produced it is committed.
type Producer struct {
	logger zerolog.Logger
	sync   sarama.SyncProducer
}

// NewProducer connects a synchronous producer to the supplied brokers.
func NewProducer(brokers []string, logger zerolog.Logger, opts ...ProducerOption) (*Producer, error) {
	if len(brokers) == 0 {
		return nil, errors.New("queue: at least one broker is required")
	}
	if reflect.ValueOf(logger).IsZero() {
		logger = zerolog.Nop()
	}

	settings := &producerOptions{config: defaultProducerConfig()}
	for _, opt := range opts {
		if opt != nil {
			opt(settings)
		}
	}

	sp, err := sarama.NewSyncProducer(brokers, cloneConfig(settings.config, defaultProducerConfig))
	if err != nil {
		return nil, fmt.Errorf("queue: create sync producer: %w", err)
	}

	return &Producer{logger: logger, sync: sp}, nil
}

// Publish sends one message and waits for the broker to acknowledge it.
func (p *Producer) Publish(topic string, key []byte, headers map[string][]byte, payload []byte) error {
	if topic == "" {
		return errors.New("queue: topic is required")
	}

	msg := &sarama.ProducerMessage{
		Topic:   topic,
		Value:   sarama.ByteEncoder(payload),
		Headers: toRecordHeaders(headers),
	}
	if len(key) > 0 {
		msg.Key = sarama.ByteEncoder(key)
	}

	if _, _, err := p.sync.SendMessage(msg); err != nil {
		return fmt.Errorf("queue: publish: %w", err)
	}
	return nil
}

// Close releases the underlying producer.
func (p *Producer) Close() error {
	return p.sync.Close()
}

func defaultProducerConfig() *sarama.Config {
	cfg := sarama.NewConfig()
	cfg.Version = sarama.V2_5_0_0
	cfg.ClientID = "fmailer-worker"
	cfg.Producer.RequiredAcks = sarama.WaitForAll
	cfg.Producer.Retry.Max = 6
	cfg.Producer.Retry.Backoff = 250 * time.Millisecond
	cfg.Producer.Return.Errors = true
	cfg.Producer.Return.Successes = true
	cfg.Producer.Idempotent = true
	cfg.Net.MaxOpenRequests = 1
	return cfg
}

func cloneConfig(cfg *sarama.Config, fallback func() *sarama.Config) *sarama.Config {
	if cfg == nil {
		return fallback()
	}
	cloned := *cfg
	return &cloned
}

func cloneBytes(src []byte) []byte {
	if len(src) == 0 {
		return nil
	}
	dst := make([]byte, len(src))
	copy(dst, src)
	return dst
}

func toRecordHeaders(headers map[string][]byte) []sarama.RecordHeader {
	if len(headers) == 0 {
		return nil
	}
	out := make([]sarama.RecordHeader, 0, len(headers))
	for k, v := range headers {
		out = append(out, sarama.RecordHeader{
			Key:   []byte(k),
			Value: cloneBytes(v),
		})
	}
	return out
}
