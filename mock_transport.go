package fmailer

import (
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"strings"
	"sync"
	"time"
)

// MockCall records one request observed by the mock transport.
type MockCall struct {
	URL     string
	Payload map[string]any
}

// MockOption customizes the behaviour of the mock transport at construction
// time.
type MockOption func(*MockTransport)

// WithMockStatus sets the HTTP status the mock answers with.
func WithMockStatus(status int) MockOption {
	return func(t *MockTransport) {
		if status > 0 {
			t.status = status
		}
	}
}

// WithMockBody sets the response body the mock answers with.
func WithMockBody(body string) MockOption {
	return func(t *MockTransport) { t.body = body }
}

// WithMockError makes every round trip fail with err instead of answering,
// simulating the service being unreachable.
func WithMockError(err error) MockOption {
	return func(t *MockTransport) { t.err = err }
}

// WithMockLatency delays every answer by d, simulating a slow service.
// Negative values are clamped to zero.
func WithMockLatency(d time.Duration) MockOption {
	return func(t *MockTransport) {
		if d < 0 {
			d = 0
		}
		t.latency = d
	}
}

// MockTransport is a deterministic HTTPClient for tests and local
// development. It answers every request from configuration without touching
// the network and journals what it was asked to send.
type MockTransport struct {
	mu      sync.Mutex
	status  int
	body    string
	err     error
	latency time.Duration
	calls   []MockCall
}

// NewMockTransport constructs a mock transport that accepts every request
// with a 200 status unless configured otherwise.
func NewMockTransport(opts ...MockOption) *MockTransport {
	t := &MockTransport{
		status: http.StatusOK,
		body:   `{"success":true}`,
	}
	for _, opt := range opts {
		if opt != nil {
			opt(t)
		}
	}
	return t
}

// Do implements HTTPClient. The request body is consumed and journaled before
// the configured outcome is applied.
func (t *MockTransport) Do(req *http.Request) (*http.Response, error) {
	var payload map[string]any
	if req.Body != nil {
		raw, err := io.ReadAll(req.Body)
		req.Body.Close()
		if err == nil && len(raw) > 0 {
			_ = json.Unmarshal(raw, &payload)
		}
	}

	t.mu.Lock()
	t.calls = append(t.calls, MockCall{URL: req.URL.String(), Payload: payload})
	status, body, outcome, latency := t.status, t.body, t.err, t.latency
	t.mu.Unlock()

	if latency > 0 {
		timer := time.NewTimer(latency)
		defer timer.Stop()
		select {
		case <-req.Context().Done():
			return nil, req.Context().Err()
		case <-timer.C:
		}
	}

	if outcome != nil {
		return nil, outcome
	}

	return &http.Response{
		Status:     fmt.Sprintf("%d %s", status, http.StatusText(status)),
		StatusCode: status,
		Header:     make(http.Header),
		Body:       io.NopCloser(strings.NewReader(body)),
		Request:    req,
	}, nil
}

// SetResponse swaps the answered status and body, so one mock can serve
// multi-phase tests.
func (t *MockTransport) SetResponse(status int, body string) {
	t.mu.Lock()
	defer t.mu.Unlock()
	if status > 0 {
		t.status = status
	}
	t.body = body
}

// Calls returns a copy of the journal of observed requests.
func (t *MockTransport) Calls() []MockCall {
	t.mu.Lock()
	defer t.mu.Unlock()
	return append([]MockCall(nil), t.calls...)
}

// CallCount reports how many requests the mock has observed.
func (t *MockTransport) CallCount() int {
	t.mu.Lock()
	defer t.mu.Unlock()
	return len(t.calls)
}
