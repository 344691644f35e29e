package fmailer

import (
	"context"
	"errors"
	"fmt"
	"time"
)

// Callback observes the outcome of an asynchronous send. It is invoked
// exactly once, on the worker goroutine that performed the send, with the
// same pair the blocking call would have returned.
type Callback func(ok bool, err error)

// Delivery is the handle returned by the asynchronous send methods. It
// settles exactly once with the outcome of the send and can be waited on by
// any number of goroutines.
type Delivery struct {
	done chan struct{}
	ok   bool
	err  error
}

func newDelivery() *Delivery {
	return &Delivery{done: make(chan struct{})}
}

// settle records the outcome. Called exactly once; the field writes happen
// before the close, so any reader gated on done observes them.
func (d *Delivery) settle(ok bool, err error) {
	d.ok = ok
	d.err = err
	close(d.done)
}

// Done returns a channel that is closed once the send has settled.
func (d *Delivery) Done() <-chan struct{} { return d.done }

// Settled reports whether the outcome is already available, without blocking.
func (d *Delivery) Settled() bool {
	select {
	case <-d.done:
		return true
	default:
		return false
	}
}

// Wait blocks until the send settles or ctx ends. A deadline expiry surfaces
// as ErrWaitTimeout; a plain cancellation surfaces as ctx.Err(). Either way
// the send itself keeps running and a later wait can still collect it.
func (d *Delivery) Wait(ctx context.Context) (bool, error) {
	select {
	case <-d.done:
		return d.ok, d.err
	case <-ctx.Done():
		if errors.Is(ctx.Err(), context.DeadlineExceeded) {
			return false, fmt.Errorf("%w: %v", ErrWaitTimeout, ctx.Err())
		}
		return false, ctx.Err()
	}
}

// WaitTimeout blocks up to max for the send to settle. A max of zero or less
// waits without bound.
func (d *Delivery) WaitTimeout(max time.Duration) (bool, error) {
	if max <= 0 {
		<-d.done
		return d.ok, d.err
	}
	timer := time.NewTimer(max)
	defer timer.Stop()
	select {
	case <-d.done:
		return d.ok, d.err
	case <-timer.C:
		return false, ErrWaitTimeout
	}
}
