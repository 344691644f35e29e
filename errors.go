package fmailer

import (
	"errors"
	"fmt"
)

// Sentinel errors reported by the asynchronous send path.
var (
	// ErrShutdown is returned when a send is submitted after Shutdown, and is
	// the outcome of tasks dropped by a non-waiting shutdown before they
	// reached a worker slot.
	ErrShutdown = errors.New("fmailer: client is shut down")

	// ErrWaitTimeout is returned by Delivery waits that run out of time. The
	// underlying send is not cancelled and may still settle later.
	ErrWaitTimeout = errors.New("fmailer: wait timed out")
)

// ValidationError reports a required request field that was left empty. It is
// produced during request construction, before any network activity, and is
// never suppressed by FailureModeSilent.
type ValidationError struct {
	Field string
}

func (e *ValidationError) Error() string {
	return fmt.Sprintf("fmailer: required field %q is empty", e.Field)
}

// SendError reports a send that failed once it reached the wire: either the
// service answered outside the 2xx range, or the HTTP round trip itself did
// not complete.
type SendError struct {
	// StatusCode holds the HTTP status answered by the service, or 0 when
	// the failure happened below HTTP (connection refused, DNS, ...).
	StatusCode int
	// Body carries the service response text, truncated to a fixed limit.
	Body string
	// Err is the underlying transport error, when one exists.
	Err error
}

func (e *SendError) Error() string {
	switch {
	case e.StatusCode != 0 && e.Body != "":
		return fmt.Sprintf("fmailer: send rejected with status %d: %s", e.StatusCode, e.Body)
	case e.StatusCode != 0:
		return fmt.Sprintf("fmailer: send rejected with status %d", e.StatusCode)
	case e.Err != nil:
		return fmt.Sprintf("fmailer: send failed: %v", e.Err)
	default:
		return "fmailer: send failed"
	}
}

// Unwrap exposes the transport cause so errors.Is and errors.As can reach
// through to net-level failures.
func (e *SendError) Unwrap() error { return e.Err }
