package queue_test

import (
	"encoding/json"
	"errors"
	"testing"
	"time"

	"github.com/rs/zerolog"

	"github.com/fmailer/fmailer-go/internal/queue"
)

type fakeSyncPublisher struct {
	err     error
	topic   string
	key     []byte
	headers map[string][]byte
	payload []byte
}

func (f *fakeSyncPublisher) Publish(topic string, key []byte, headers map[string][]byte, payload []byte) error {
	f.topic = topic
	f.key = append([]byte(nil), key...)
	f.headers = headers
	f.payload = append([]byte(nil), payload...)
	return f.err
}

func TestStatusPublisherPublishesEvent(t *testing.T) {
	prod := &fakeSyncPublisher{}
	pub, err := queue.NewStatusPublisher(prod, "email.send.status", zerolog.Nop())
	if err != nil {
		t.Fatalf("unexpected constructor error: %v", err)
	}

	event := queue.StatusEvent{
		MessageID: "message-1",
		Kind:      queue.KindSimple,
		Recipient: "user@example.com",
		Event:     queue.EventSent,
		ElapsedMS: 42,
		Timestamp: time.Unix(123, 0).UTC(),
	}

	if err := pub.Publish(event); err != nil {
		t.Fatalf("unexpected publish error: %v", err)
	}

	if prod.topic != "email.send.status" {
		t.Fatalf("expected status topic, got %s", prod.topic)
	}
	if string(prod.key) != "message-1" {
		t.Fatalf("expected key message-1, got %s", string(prod.key))
	}
	if ct := prod.headers["content-type"]; string(ct) != "application/json" {
		t.Fatalf("expected content-type header, got %s", string(ct))
	}

	var decoded queue.StatusEvent
	if err := json.Unmarshal(prod.payload, &decoded); err != nil {
		t.Fatalf("failed to unmarshal payload: %v", err)
	}
	if decoded.Event != queue.EventSent || decoded.Recipient != "user@example.com" {
		t.Fatalf("unexpected payload %+v", decoded)
	}
	if decoded.ElapsedMS != 42 {
		t.Fatalf("expected elapsed 42, got %d", decoded.ElapsedMS)
	}
}

func TestStatusPublisherOmitsEmptyError(t *testing.T) {
	prod := &fakeSyncPublisher{}
	pub, err := queue.NewStatusPublisher(prod, "email.send.status", zerolog.Nop())
	if err != nil {
		t.Fatalf("unexpected constructor error: %v", err)
	}

	if err := pub.Publish(queue.StatusEvent{MessageID: "m", Event: queue.EventSent}); err != nil {
		t.Fatalf("unexpected publish error: %v", err)
	}

	var generic map[string]any
	if err := json.Unmarshal(prod.payload, &generic); err != nil {
		t.Fatalf("failed to unmarshal payload: %v", err)
	}
	if _, ok := generic["error"]; ok {
		t.Fatalf("expected error field to be omitted, got %v", generic["error"])
	}
}

func TestStatusPublisherPropagatesProducerError(t *testing.T) {
	expectedErr := errors.New("broker down")
	prod := &fakeSyncPublisher{err: expectedErr}

	pub, err := queue.NewStatusPublisher(prod, "email.send.status", zerolog.Nop())
	if err != nil {
		t.Fatalf("unexpected constructor error: %v", err)
	}

	if err := pub.Publish(queue.StatusEvent{MessageID: "id"}); !errors.Is(err, expectedErr) {
		t.Fatalf("expected producer error, got %v", err)
	}
}

func TestNewStatusPublisherValidates(t *testing.T) {
	if _, err := queue.NewStatusPublisher(nil, "topic", zerolog.Nop()); err == nil {
		t.Fatal("expected error for nil producer")
	}
	if _, err := queue.NewStatusPublisher(&fakeSyncPublisher{}, "", zerolog.Nop()); err == nil {
		t.Fatal("expected error for empty topic")
	}
}
