// Package queue feeds the fmailer client from a Kafka request topic and
// reports terminal delivery statuses on a second topic.
package queue

import (
	"encoding/json"
	"fmt"
	"strings"
	"time"
)

// Send request kinds accepted on the request topic.
const (
	KindSimple   = "simple"
	KindTemplate = "template"
)

// Status events emitted on the status topic.
const (
	EventSent    = "sent"
	EventFailed  = "failed"
	EventInvalid = "invalid"
)

// SendRequest is the wire form of one email send consumed from the request
// topic. Kind selects between a simple and a templated send; the remaining
// fields mirror the client's request types.
type SendRequest struct {
	MessageID      string         `json:"message_id,omitempty"`
	Kind           string         `json:"kind"`
	Recipient      string         `json:"recipient"`
	Sender         string         `json:"sender"`
	Subject        string         `json:"subject,omitempty"`
	Body           string         `json:"body,omitempty"`
	Template       string         `json:"tpl,omitempty"`
	Lang           string         `json:"lang,omitempty"`
	Params         map[string]any `json:"params,omitempty"`
	IdempotencyKey string         `json:"idempotency_key,omitempty"`
}

// ParseSendRequest decodes a request topic record and normalises its kind.
// Field completeness stays with the client's own validation; this guards only
// what the bridge needs to route the record. On an unknown kind the partially
// decoded request is returned alongside the error so status events can still
// identify the message.
func ParseSendRequest(raw []byte) (*SendRequest, error) {
	var req SendRequest
	if err := json.Unmarshal(raw, &req); err != nil {
		return nil, fmt.Errorf("queue: decode send request: %w", err)
	}

	switch strings.ToLower(strings.TrimSpace(req.Kind)) {
	case KindSimple:
		req.Kind = KindSimple
	case KindTemplate:
		req.Kind = KindTemplate
	default:
		return &req, fmt.Errorf("queue: unknown send request kind %q", req.Kind)
	}
	return &req, nil
}

// StatusEvent is the terminal delivery record published once per consumed
// request.
type StatusEvent struct {
	MessageID string    `json:"message_id"`
	Kind      string    `json:"kind,omitempty"`
	Recipient string    `json:"recipient,omitempty"`
	Event     string    `json:"event"`
	Error     string    `json:"error,omitempty"`
	ElapsedMS int64     `json:"elapsed_ms"`
	Timestamp time.Time `json:"timestamp"`
}
