package fmailer

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"unicode/utf8"
)

// HTTPClient executes HTTP requests. The standard *http.Client satisfies it;
// tests and callers with custom transport needs can substitute their own.
type HTTPClient interface {
	Do(req *http.Request) (*http.Response, error)
}

const (
	// rawBodyLimit caps how many characters of a service response are kept
	// on a SendError and in logs.
	rawBodyLimit = 1024

	// maxResponseBytes bounds how much of a response body is read at all.
	maxResponseBytes = 1 << 20
)

// post delivers one request to the service and interprets the result. Any
// status in the 2xx range is success; everything else, including transport
// failures, comes back as a *SendError.
func (c *Client) post(ctx context.Context, req *apiRequest) error {
	encoded, err := json.Marshal(req.payload)
	if err != nil {
		return &SendError{Err: fmt.Errorf("encode payload: %w", err)}
	}

	httpReq, err := http.NewRequestWithContext(ctx, http.MethodPost, c.baseURL+req.path, bytes.NewReader(encoded))
	if err != nil {
		return &SendError{Err: fmt.Errorf("build request: %w", err)}
	}
	httpReq.Header.Set("Content-Type", "application/json")
	httpReq.Header.Set("Accept", "application/json")
	httpReq.Header.Set("User-Agent", userAgent)

	if e := c.logger.Debug(); e.Enabled() {
		e.Str("kind", req.kind).
			Str("path", req.path).
			Str("recipient", req.recipient).
			RawJSON("payload", redactAuth(encoded)).
			Msg("sending email request")
	}

	resp, err := c.http.Do(httpReq)
	if err != nil {
		c.logger.Info().
			Str("kind", req.kind).
			Str("recipient", req.recipient).
			Err(err).
			Msg("email request failed")
		return &SendError{Err: err}
	}
	defer resp.Body.Close()

	raw, _ := io.ReadAll(io.LimitReader(resp.Body, maxResponseBytes))
	body := truncateBody(string(raw), rawBodyLimit)

	if resp.StatusCode < 200 || resp.StatusCode > 299 {
		c.logger.Info().
			Str("kind", req.kind).
			Str("recipient", req.recipient).
			Int("status_code", resp.StatusCode).
			Str("response", body).
			Msg("email request rejected")
		return &SendError{StatusCode: resp.StatusCode, Body: body}
	}

	c.logger.Debug().
		Str("kind", req.kind).
		Str("recipient", req.recipient).
		Int("status_code", resp.StatusCode).
		Msg("email request accepted")
	return nil
}

// redactAuth rewrites an encoded payload with the auth object masked so debug
// logs never carry credentials.
func redactAuth(encoded []byte) []byte {
	var payload map[string]any
	if err := json.Unmarshal(encoded, &payload); err != nil {
		return []byte("{}")
	}
	if _, ok := payload["auth"]; ok {
		payload["auth"] = "***"
	}
	redacted, err := json.Marshal(payload)
	if err != nil {
		return []byte("{}")
	}
	return redacted
}

// truncateBody trims a response body to the given rune limit. A limit of zero
// or less keeps nothing.
func truncateBody(raw string, limit int) string {
	if limit <= 0 {
		return ""
	}
	if utf8.RuneCountInString(raw) <= limit {
		return raw
	}
	return string([]rune(raw)[:limit])
}
