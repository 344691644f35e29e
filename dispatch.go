package fmailer

import (
	"context"
	"sync"

	"github.com/rs/zerolog"
	"golang.org/x/sync/semaphore"
)

// job performs one blocking send and reports its outcome.
type job func() (bool, error)

// dispatcher owns the worker pool behind the asynchronous send methods. The
// pool starts lazily on the first submission; a weighted semaphore bounds how
// many sends run at once. Every accepted submission gets its own goroutine
// that first claims a slot, so submitters never block behind a full pool.
type dispatcher struct {
	size   int64
	logger zerolog.Logger

	mu      sync.Mutex
	started bool
	closed  bool
	starts  int // pool starts observed; never exceeds 1

	slots    *semaphore.Weighted
	slotCtx  context.Context // cancelled to drop tasks still queued for a slot
	drop     context.CancelFunc
	inflight sync.WaitGroup
}

func newDispatcher(size int, logger zerolog.Logger) *dispatcher {
	return &dispatcher{size: int64(size), logger: logger}
}

// start brings the pool up. Callers must hold d.mu; repeated calls are
// no-ops, so concurrent first submissions still produce exactly one pool.
func (d *dispatcher) start() {
	if d.started {
		return
	}
	d.slots = semaphore.NewWeighted(d.size)
	d.slotCtx, d.drop = context.WithCancel(context.Background())
	d.started = true
	d.starts++
	d.logger.Info().Int64("max_workers", d.size).Msg("worker pool started")
}

// submit accepts a send for asynchronous execution. The only submission-time
// failure is ErrShutdown; every other outcome, validation failures included,
// is delivered through the returned handle and the optional callback.
func (d *dispatcher) submit(run job, cb Callback) (*Delivery, error) {
	d.mu.Lock()
	if d.closed {
		d.mu.Unlock()
		return nil, ErrShutdown
	}
	d.start()
	d.inflight.Add(1)
	d.mu.Unlock()

	del := newDelivery()
	go d.perform(del, run, cb)
	return del, nil
}

func (d *dispatcher) perform(del *Delivery, run job, cb Callback) {
	defer d.inflight.Done()

	if err := d.slots.Acquire(d.slotCtx, 1); err != nil {
		// A non-waiting shutdown dropped this task before it reached a slot.
		d.finish(del, cb, false, ErrShutdown)
		return
	}
	defer d.slots.Release(1)

	ok, err := run()
	d.finish(del, cb, ok, err)
}

// finish settles the handle first, so waiters are released even if the
// callback misbehaves, then runs the callback with a panic guard.
func (d *dispatcher) finish(del *Delivery, cb Callback, ok bool, err error) {
	del.settle(ok, err)
	if cb == nil {
		return
	}
	defer func() {
		if r := recover(); r != nil {
			d.logger.Error().Interface("panic", r).Msg("send callback panicked")
		}
	}()
	cb(ok, err)
}

// shutdown closes the dispatcher for further submissions. With wait it blocks
// until every accepted send has settled, running ones and queued ones alike.
// Without wait it returns at once: tasks still queued for a slot settle with
// ErrShutdown and running sends finish in the background. Safe to call any
// number of times, with either flag.
func (d *dispatcher) shutdown(wait bool) {
	d.mu.Lock()
	d.closed = true
	started := d.started
	d.mu.Unlock()

	if !started {
		return
	}
	if wait {
		d.inflight.Wait()
	}
	d.drop()
}
