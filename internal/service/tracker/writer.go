package tracker

import (
	"context"
	"sync"
	"time"

	"github.com/oshokin/bus-tracker/internal/logger"
)

// writeOp is one queued store call.
type writeOp struct {
	name string
	fn   func(context.Context) error
}

// writer applies a session's store writes in order on its own goroutine.
// A full queue drops the write with a warning so fix processing never blocks.
type writer struct {
	queue    chan writeOp
	attempts int
	backoff  time.Duration
	timeout  time.Duration

	// ctx is cancelled when a drain gives up, aborting the write in flight.
	ctx    context.Context //nolint:containedctx // Owned by the writer goroutine.
	cancel context.CancelFunc
	done   chan struct{}

	closed bool
	mu     sync.Mutex
}

func newWriter(ctx context.Context, opts Options) *writer {
	ctx, cancel := context.WithCancel(context.WithoutCancel(ctx))

	w := &writer{
		queue:    make(chan writeOp, opts.WriteQueueSize),
		attempts: opts.StoreAttempts,
		backoff:  opts.StoreBackoff,
		timeout:  opts.StoreTimeout,
		ctx:      ctx,
		cancel:   cancel,
		done:     make(chan struct{}),
	}

	go w.run()

	return w
}

// enqueue schedules op and reports whether it was accepted.
func (w *writer) enqueue(name string, fn func(context.Context) error) bool {
	w.mu.Lock()
	defer w.mu.Unlock()

	if w.closed {
		return false
	}

	select {
	case w.queue <- writeOp{name: name, fn: fn}:
		return true
	default:
		logger.WarnKV(w.ctx, "Store write queue is full, dropping write", "op", name)

		return false
	}
}

func (w *writer) run() {
	defer close(w.done)

	for op := range w.queue {
		if w.ctx.Err() != nil {
			logger.WarnKV(w.ctx, "Store write abandoned", "op", op.name)

			continue
		}

		err := retry(w.ctx, w.attempts, w.backoff, withTimeout(w.timeout, op.fn))
		if err != nil {
			logger.WarnKV(w.ctx, "Store write failed", "op", op.name, "error", err)
		}
	}
}

// drain stops accepting writes and waits up to wait for the queue to empty.
// On timeout the remaining writes are abandoned and drain returns false.
func (w *writer) drain(wait time.Duration) bool {
	w.mu.Lock()
	if !w.closed {
		w.closed = true
		close(w.queue)
	}
	w.mu.Unlock()

	timer := time.NewTimer(wait)
	defer timer.Stop()

	select {
	case <-w.done:
		w.cancel()

		return true
	case <-timer.C:
		w.cancel()

		return false
	}
}
