package queue

import (
	"context"
	"errors"
	"fmt"
	"reflect"
	"time"

	"github.com/google/uuid"
	"github.com/rs/zerolog"
	"golang.org/x/sync/semaphore"

	fmailer "github.com/fmailer/fmailer-go"
)

// DefaultMaxInflight bounds concurrently processed records when no limit is
// configured.
const DefaultMaxInflight = 32

// Sender is the slice of the fmailer client the bridge drives.
type Sender interface {
	SendSimpleAsync(msg fmailer.SimpleEmail, cb fmailer.Callback) (*fmailer.Delivery, error)
	SendTemplateAsync(msg fmailer.TemplateEmail, cb fmailer.Callback) (*fmailer.Delivery, error)
}

// StatusSink consumes terminal status events.
type StatusSink interface {
	Publish(event StatusEvent) error
}

// Committer marks consumed records as processed.
type Committer interface {
	Commit(ctx context.Context, record *Record) error
}

// BridgeDeps wires the bridge's collaborators.
type BridgeDeps struct {
	Sender    Sender
	Status    StatusSink
	Committer Committer
	Logger    zerolog.Logger
	Now       func() time.Time
}

// Bridge turns consumed request records into asynchronous sends and publishes
// exactly one status event per record. A weighted semaphore caps how many
// records are in flight; Handle blocks at the cap, which pauses the claim
// loop and pushes backpressure onto the topic.
type Bridge struct {
	sender Sender
	status StatusSink
	commit Committer
	logger zerolog.Logger
	now    func() time.Time
	slots  *semaphore.Weighted
}

// NewBridge validates the dependencies and constructs a Bridge. A
// non-positive maxInflight falls back to DefaultMaxInflight.
func NewBridge(maxInflight int, deps BridgeDeps) (*Bridge, error) {
	if deps.Sender == nil {
		return nil, errors.New("queue: sender is required")
	}
	if deps.Status == nil {
		return nil, errors.New("queue: status sink is required")
	}
	if deps.Committer == nil {
		return nil, errors.New("queue: committer is required")
	}

	logger := deps.Logger
	if reflect.ValueOf(logger).IsZero() {
		logger = zerolog.Nop()
	}
	now := deps.Now
	if now == nil {
		now = time.Now
	}
	if maxInflight <= 0 {
		maxInflight = DefaultMaxInflight
	}

	return &Bridge{
		sender: deps.Sender,
		status: deps.Status,
		commit: deps.Committer,
		logger: logger.With().Str("component", "queue_bridge").Logger(),
		now:    now,
		slots:  semaphore.NewWeighted(int64(maxInflight)),
	}, nil
}

// Handle processes one consumed record end to end: parse, dispatch through
// the client, then publish the terminal status and commit the offset from the
// send callback. Malformed records are reported as invalid and committed so
// they are not redelivered. A record whose submission fails stays uncommitted
// and is redelivered later.
func (b *Bridge) Handle(ctx context.Context, record *Record) error {
	if record == nil {
		return nil
	}

	req, err := ParseSendRequest(record.Value)
	if err != nil {
		b.publishInvalid(req, err)
		if cerr := b.commit.Commit(ctx, record); cerr != nil {
			b.logger.Error().Err(cerr).Msg("commit invalid record")
		}
		return nil
	}
	if req.MessageID == "" {
		req.MessageID = uuid.NewString()
	}

	if err := b.slots.Acquire(ctx, 1); err != nil {
		return fmt.Errorf("queue: acquire inflight slot: %w", err)
	}

	start := b.now()
	cb := func(ok bool, sendErr error) {
		defer b.slots.Release(1)
		b.publishOutcome(req, ok, sendErr, b.now().Sub(start))
		// The claim context may already be gone during a drain.
		if cerr := b.commit.Commit(context.Background(), record); cerr != nil {
			b.logger.Error().
				Err(cerr).
				Str("message_id", req.MessageID).
				Msg("commit processed record")
		}
	}

	var submitErr error
	switch req.Kind {
	case KindSimple:
		_, submitErr = b.sender.SendSimpleAsync(fmailer.SimpleEmail{
			Recipient:      req.Recipient,
			Sender:         req.Sender,
			Subject:        req.Subject,
			Body:           req.Body,
			IdempotencyKey: req.IdempotencyKey,
		}, cb)
	case KindTemplate:
		_, submitErr = b.sender.SendTemplateAsync(fmailer.TemplateEmail{
			Template:       req.Template,
			Recipient:      req.Recipient,
			Sender:         req.Sender,
			Lang:           req.Lang,
			Params:         req.Params,
			IdempotencyKey: req.IdempotencyKey,
		}, cb)
	}
	if submitErr != nil {
		b.slots.Release(1)
		return fmt.Errorf("queue: submit send: %w", submitErr)
	}
	return nil
}

func (b *Bridge) publishOutcome(req *SendRequest, ok bool, sendErr error, elapsed time.Duration) {
	event := StatusEvent{
		MessageID: req.MessageID,
		Kind:      req.Kind,
		Recipient: req.Recipient,
		Event:     EventSent,
		ElapsedMS: elapsed.Milliseconds(),
		Timestamp: b.now().UTC(),
	}
	if !ok {
		event.Event = EventFailed
		if sendErr != nil {
			event.Error = sendErr.Error()
		}
	}

	if err := b.status.Publish(event); err != nil {
		b.logger.Error().
			Err(err).
			Str("message_id", req.MessageID).
			Str("event", event.Event).
			Msg("publish status event")
	}
}

func (b *Bridge) publishInvalid(req *SendRequest, cause error) {
	event := StatusEvent{
		Event:     EventInvalid,
		Error:     cause.Error(),
		Timestamp: b.now().UTC(),
	}
	if req != nil {
		event.MessageID = req.MessageID
		event.Kind = req.Kind
		event.Recipient = req.Recipient
	}
	if event.MessageID == "" {
		event.MessageID = uuid.NewString()
	}

	if err := b.status.Publish(event); err != nil {
		b.logger.Error().Err(err).Msg("publish invalid event")
	}
}
