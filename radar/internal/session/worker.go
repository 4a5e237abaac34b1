package session

import (
	"context"
	"errors"
	"sync"

	"github.com/solweave/degenradar/radar/internal/store"
)

// ErrWorkerClosed is returned by Collect after Close.
var ErrWorkerClosed = errors.New("session: worker closed")

type request struct {
	ctx     context.Context
	queries []string
	reply   chan result
}

type result struct {
	items []store.RawItem
	err   error
}

// Worker serializes session access: one goroutine owns the Manager
// and serves requests in arrival order, so concurrent callers queue
// instead of racing to launch a second browser.
type Worker struct {
	mgr      *Manager
	run      func(ctx context.Context, queries []string) ([]store.RawItem, error)
	requests chan request
	done     chan struct{}
	once     sync.Once
}

// NewWorker starts the owning goroutine for mgr.
func NewWorker(mgr *Manager) *Worker {
	w := newWorker(mgr.Run)
	w.mgr = mgr
	return w
}

func newWorker(run func(ctx context.Context, queries []string) ([]store.RawItem, error)) *Worker {
	w := &Worker{
		run:      run,
		requests: make(chan request),
		done:     make(chan struct{}),
	}
	go w.loop()
	return w
}

func (w *Worker) loop() {
	for {
		select {
		case <-w.done:
			return
		case req := <-w.requests:
			items, err := w.run(req.ctx, req.queries)
			req.reply <- result{items: items, err: err}
		}
	}
}

// Collect runs one full session for queries, queueing behind any
// session already in flight.
func (w *Worker) Collect(ctx context.Context, queries []string) ([]store.RawItem, error) {
	reply := make(chan result, 1)
	select {
	case w.requests <- request{ctx: ctx, queries: queries, reply: reply}:
	case <-w.done:
		return nil, ErrWorkerClosed
	case <-ctx.Done():
		return nil, ctx.Err()
	}

	// The loop always answers an accepted request, even when Close
	// lands mid-run, so wait on the reply alone: racing it against
	// done could discard a finished session's items.
	res := <-reply
	return res.items, res.err
}

// ConsecutiveAuthFailures reports the manager's auth failure streak.
func (w *Worker) ConsecutiveAuthFailures() int {
	return w.mgr.ConsecutiveAuthFailures()
}

// Close stops the worker goroutine. A session in flight finishes its
// current run; its caller still receives the result.
func (w *Worker) Close() {
	w.once.Do(func() { close(w.done) })
}
