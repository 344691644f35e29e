package fmailer_test

import (
	"context"
	"errors"
	"io"
	"net/http"
	"strings"
	"sync"
	"sync/atomic"
	"testing"
	"time"

	fmailer "github.com/fmailer/fmailer-go"
)

type asyncOutcome struct {
	ok  bool
	err error
}

// gatedTransport blocks every round trip until release is closed, and signals
// each call start on started.
type gatedTransport struct {
	started chan struct{}
	release chan struct{}

	mu    sync.Mutex
	calls int
}

func (g *gatedTransport) Do(req *http.Request) (*http.Response, error) {
	g.mu.Lock()
	g.calls++
	g.mu.Unlock()

	if g.started != nil {
		g.started <- struct{}{}
	}
	<-g.release

	return &http.Response{
		StatusCode: http.StatusOK,
		Header:     make(http.Header),
		Body:       io.NopCloser(strings.NewReader(`{"success":true}`)),
		Request:    req,
	}, nil
}

func TestSendSimpleAsyncSuccess(t *testing.T) {
	mock := fmailer.NewMockTransport()
	client := newTestClient(t, mock)
	defer client.Shutdown(true)

	got := make(chan asyncOutcome, 1)
	del, err := client.SendSimpleAsync(validSimple(), func(ok bool, err error) {
		got <- asyncOutcome{ok, err}
	})
	if err != nil {
		t.Fatalf("submit: %v", err)
	}

	if ok, err := del.Wait(context.Background()); !ok || err != nil {
		t.Fatalf("expected success through handle, got ok=%v err=%v", ok, err)
	}

	select {
	case res := <-got:
		if !res.ok || res.err != nil {
			t.Fatalf("unexpected callback outcome: ok=%v err=%v", res.ok, res.err)
		}
	case <-time.After(time.Second):
		t.Fatal("callback was not invoked")
	}

	if mock.CallCount() != 1 {
		t.Fatalf("expected 1 request, got %d", mock.CallCount())
	}
}

func TestSendTemplateAsyncFailureReachesHandleAndCallback(t *testing.T) {
	mock := fmailer.NewMockTransport(
		fmailer.WithMockStatus(500),
		fmailer.WithMockBody("boom"),
	)
	client := newTestClient(t, mock)
	defer client.Shutdown(true)

	got := make(chan asyncOutcome, 1)
	del, err := client.SendTemplateAsync(validTemplate(), func(ok bool, err error) {
		got <- asyncOutcome{ok, err}
	})
	if err != nil {
		t.Fatalf("submit: %v", err)
	}

	ok, err := del.WaitTimeout(time.Second)
	var serr *fmailer.SendError
	if ok || !errors.As(err, &serr) || serr.StatusCode != 500 {
		t.Fatalf("expected SendError with status 500, got ok=%v err=%v", ok, err)
	}

	select {
	case res := <-got:
		if res.ok || !errors.As(res.err, &serr) {
			t.Fatalf("unexpected callback outcome: ok=%v err=%v", res.ok, res.err)
		}
	case <-time.After(time.Second):
		t.Fatal("callback was not invoked")
	}
}

func TestAsyncCallbackNeverRunsOnSubmitter(t *testing.T) {
	gate := &gatedTransport{release: make(chan struct{})}
	client := newTestClient(t, gate)

	var ran atomic.Bool
	del, err := client.SendSimpleAsync(validSimple(), func(bool, error) { ran.Store(true) })
	if err != nil {
		t.Fatalf("submit: %v", err)
	}
	if ran.Load() {
		t.Fatal("callback ran synchronously during submission")
	}

	close(gate.release)
	if ok, err := del.WaitTimeout(time.Second); !ok || err != nil {
		t.Fatalf("expected success, got ok=%v err=%v", ok, err)
	}

	// A draining shutdown returns only after callbacks have finished.
	client.Shutdown(true)
	if !ran.Load() {
		t.Fatal("callback never ran")
	}
}

func TestAsyncValidationSettlesHandle(t *testing.T) {
	mock := fmailer.NewMockTransport()
	client := newTestClient(t, mock)
	defer client.Shutdown(true)

	got := make(chan asyncOutcome, 1)
	del, err := client.SendSimpleAsync(fmailer.SimpleEmail{Recipient: "user@example.com"}, func(ok bool, err error) {
		got <- asyncOutcome{ok, err}
	})
	if err != nil {
		t.Fatalf("expected submission to be accepted, got %v", err)
	}

	ok, err := del.WaitTimeout(time.Second)
	var verr *fmailer.ValidationError
	if ok || !errors.As(err, &verr) {
		t.Fatalf("expected validation failure through handle, got ok=%v err=%v", ok, err)
	}

	select {
	case res := <-got:
		if res.ok || !errors.As(res.err, &verr) {
			t.Fatalf("unexpected callback outcome: ok=%v err=%v", res.ok, res.err)
		}
	case <-time.After(time.Second):
		t.Fatal("callback was not invoked")
	}

	if mock.CallCount() != 0 {
		t.Fatalf("expected no network activity, got %d requests", mock.CallCount())
	}
}

func TestClientShutdownWaitDrains(t *testing.T) {
	mock := fmailer.NewMockTransport(fmailer.WithMockLatency(20 * time.Millisecond))
	client := newTestClient(t, mock, fmailer.WithMaxWorkers(2))

	var deliveries []*fmailer.Delivery
	for i := 0; i < 6; i++ {
		del, err := client.SendSimpleAsync(validSimple(), nil)
		if err != nil {
			t.Fatalf("submit %d: %v", i, err)
		}
		deliveries = append(deliveries, del)
	}

	client.Shutdown(true)

	for i, del := range deliveries {
		if !del.Settled() {
			t.Fatalf("delivery %d not settled after draining shutdown", i)
		}
		if ok, err := del.WaitTimeout(time.Second); !ok || err != nil {
			t.Fatalf("delivery %d: ok=%v err=%v", i, ok, err)
		}
	}
	if mock.CallCount() != 6 {
		t.Fatalf("expected 6 requests, got %d", mock.CallCount())
	}

	del, err := client.SendSimpleAsync(validSimple(), nil)
	if del != nil || !errors.Is(err, fmailer.ErrShutdown) {
		t.Fatalf("expected ErrShutdown with no handle, got del=%v err=%v", del, err)
	}

	// The blocking path survives shutdown.
	if ok, err := client.SendSimple(context.Background(), validSimple()); !ok || err != nil {
		t.Fatalf("expected blocking send to keep working, got ok=%v err=%v", ok, err)
	}
}

func TestClientShutdownNoWaitDropsQueued(t *testing.T) {
	gate := &gatedTransport{
		started: make(chan struct{}, 4),
		release: make(chan struct{}),
	}
	client := newTestClient(t, gate, fmailer.WithMaxWorkers(1))

	first, err := client.SendSimpleAsync(validSimple(), nil)
	if err != nil {
		t.Fatalf("submit first: %v", err)
	}
	<-gate.started

	second, err := client.SendSimpleAsync(validSimple(), nil)
	if err != nil {
		t.Fatalf("submit second: %v", err)
	}

	client.Shutdown(false)

	if ok, err := second.WaitTimeout(time.Second); ok || !errors.Is(err, fmailer.ErrShutdown) {
		t.Fatalf("expected queued send dropped with ErrShutdown, got ok=%v err=%v", ok, err)
	}
	if first.Settled() {
		t.Fatal("running send settled before the transport released it")
	}

	close(gate.release)
	if ok, err := first.WaitTimeout(time.Second); !ok || err != nil {
		t.Fatalf("expected running send to finish, got ok=%v err=%v", ok, err)
	}
}

func TestConcurrentAsyncSubmissions(t *testing.T) {
	mock := fmailer.NewMockTransport()
	client := newTestClient(t, mock, fmailer.WithMaxWorkers(4))
	defer client.Shutdown(true)

	const submitters = 20
	gate := make(chan struct{})
	deliveries := make([]*fmailer.Delivery, submitters)
	errs := make([]error, submitters)

	var wg sync.WaitGroup
	for i := 0; i < submitters; i++ {
		wg.Add(1)
		go func(i int) {
			defer wg.Done()
			<-gate
			deliveries[i], errs[i] = client.SendSimpleAsync(validSimple(), nil)
		}(i)
	}
	close(gate)
	wg.Wait()

	for i := 0; i < submitters; i++ {
		if errs[i] != nil {
			t.Fatalf("submit %d: %v", i, errs[i])
		}
		if ok, err := deliveries[i].WaitTimeout(2 * time.Second); !ok || err != nil {
			t.Fatalf("delivery %d: ok=%v err=%v", i, ok, err)
		}
	}
	if mock.CallCount() != submitters {
		t.Fatalf("expected %d requests, got %d", submitters, mock.CallCount())
	}
}
