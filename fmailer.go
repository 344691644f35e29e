package fmailer

import (
	"context"
	"net/http"
	"reflect"
	"runtime"
	"strings"

	"github.com/rs/zerolog"
)

// Version is the SDK release. It is also reported in the User-Agent header of
// every request.
const Version = "1.0.0"

const (
	// DefaultBaseURL targets the production delivery service.
	DefaultBaseURL = "https://api.fmailer.ru"

	// DefaultMaxWorkers sizes the asynchronous worker pool when
	// WithMaxWorkers is not used.
	DefaultMaxWorkers = 5
)

const userAgent = "fmailer-go/" + Version

// FailureMode selects what the send methods do when the service rejects a
// request or the transport fails. The mode is fixed at construction so a
// client's error contract cannot drift between call sites.
type FailureMode int

const (
	// FailureModeError surfaces send failures as a *SendError. The default.
	FailureModeError FailureMode = iota

	// FailureModeSilent swallows send failures and reports them as a false
	// result with a nil error. Validation failures are still surfaced.
	FailureModeSilent
)

// Option customises a Client at construction time.
type Option func(*Client)

// WithFailureMode selects how send failures are reported.
func WithFailureMode(mode FailureMode) Option {
	return func(c *Client) { c.failureMode = mode }
}

// WithMaxWorkers bounds the asynchronous worker pool. Values below one are
// ignored.
func WithMaxWorkers(n int) Option {
	return func(c *Client) {
		if n > 0 {
			c.maxWorkers = n
		}
	}
}

// WithLogger attaches a zerolog logger. Without one the client stays silent.
func WithLogger(logger zerolog.Logger) Option {
	return func(c *Client) { c.logger = logger }
}

// WithLogLevel caps the attached logger at the given level. Apply it after
// WithLogger.
func WithLogLevel(level zerolog.Level) Option {
	return func(c *Client) { c.logger = c.logger.Level(level) }
}

// WithHTTPClient substitutes the HTTP transport, for tests or for callers
// that need their own timeouts, proxies or TLS settings.
func WithHTTPClient(hc HTTPClient) Option {
	return func(c *Client) {
		if hc != nil {
			c.http = hc
		}
	}
}

// WithBaseURL points the client at a different service deployment, such as a
// staging stack. A trailing slash is stripped.
func WithBaseURL(base string) Option {
	return func(c *Client) {
		if trimmed := strings.TrimRight(strings.TrimSpace(base), "/"); trimmed != "" {
			c.baseURL = trimmed
		}
	}
}

// Client sends email requests to the Fmailer delivery service. A Client is
// safe for concurrent use; construct one per credential pair and share it.
type Client struct {
	auth        wireAuth
	baseURL     string
	http        HTTPClient
	logger      zerolog.Logger
	failureMode FailureMode
	maxWorkers  int
	pool        *dispatcher
}

// New builds a Client for the given service credentials.
func New(username, password string, opts ...Option) (*Client, error) {
	if strings.TrimSpace(username) == "" {
		return nil, &ValidationError{Field: "username"}
	}
	if strings.TrimSpace(password) == "" {
		return nil, &ValidationError{Field: "password"}
	}

	c := &Client{
		auth:       wireAuth{Username: username, Password: password},
		baseURL:    DefaultBaseURL,
		http:       &http.Client{},
		logger:     zerolog.Nop(),
		maxWorkers: DefaultMaxWorkers,
	}
	for _, opt := range opts {
		if opt != nil {
			opt(c)
		}
	}
	if reflect.ValueOf(c.logger).IsZero() {
		c.logger = zerolog.Nop()
	}
	c.logger = c.logger.With().Str("component", "fmailer_client").Logger()
	c.pool = newDispatcher(c.maxWorkers, c.logger)

	// A collected client releases its pool without waiting.
	runtime.SetFinalizer(c, (*Client).finalize)

	return c, nil
}

func (c *Client) finalize() {
	c.pool.shutdown(false)
}

// SendSimple delivers a raw email and blocks until the service answers. The
// boolean reports acceptance; under FailureModeSilent it is the only signal
// that a send failed.
func (c *Client) SendSimple(ctx context.Context, msg SimpleEmail) (bool, error) {
	req, err := newSimpleRequest(c.auth, msg)
	if err != nil {
		return false, err
	}
	return c.send(ctx, req)
}

// SendTemplate asks the service to render a stored template for the recipient
// and blocks until it answers.
func (c *Client) SendTemplate(ctx context.Context, msg TemplateEmail) (bool, error) {
	req, err := newTemplateRequest(c.auth, msg)
	if err != nil {
		return false, err
	}
	return c.send(ctx, req)
}

func (c *Client) send(ctx context.Context, req *apiRequest) (bool, error) {
	if err := c.post(ctx, req); err != nil {
		if c.failureMode == FailureModeSilent {
			return false, nil
		}
		return false, err
	}
	return true, nil
}

// SendSimpleAsync queues a raw email for delivery on the worker pool. The
// returned handle settles with the same pair SendSimple would have returned;
// cb, when not nil, runs exactly once on the worker goroutine, never on the
// calling one. The only submission-time error is ErrShutdown: validation
// failures are delivered through the handle and callback.
func (c *Client) SendSimpleAsync(msg SimpleEmail, cb Callback) (*Delivery, error) {
	return c.pool.submit(func() (bool, error) {
		return c.SendSimple(context.Background(), msg)
	}, cb)
}

// SendTemplateAsync queues a templated email for delivery on the worker pool.
// It behaves like SendSimpleAsync in every other respect.
func (c *Client) SendTemplateAsync(msg TemplateEmail, cb Callback) (*Delivery, error) {
	return c.pool.submit(func() (bool, error) {
		return c.SendTemplate(context.Background(), msg)
	}, cb)
}

// Shutdown closes the asynchronous path. With wait it blocks until every
// accepted send has settled; without it, sends still queued for a worker slot
// settle with ErrShutdown while running ones finish in the background. Later
// asynchronous submissions fail with ErrShutdown; the blocking methods keep
// working. Shutdown may be called any number of times.
func (c *Client) Shutdown(wait bool) {
	c.pool.shutdown(wait)
}
