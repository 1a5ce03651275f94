package event

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"sync"

	"github.com/rickgao/realtime-sync/internal/buffer"
)

// ErrLoopClosed is returned when work is posted to a closed loop.
var ErrLoopClosed = errors.New("event loop closed")

// Loop runs posted callbacks one at a time, in FIFO order, on a single
// goroutine. Post never blocks.
type Loop struct {
	logger *slog.Logger
	queue  *buffer.Growable[func()]

	startOnce sync.Once
	done      chan struct{}
}

// NewLoop creates a loop. Call Start before posting work that must run.
func NewLoop(logger *slog.Logger) *Loop {
	if logger == nil {
		logger = slog.Default()
	}
	return &Loop{
		logger: logger,
		queue:  buffer.New[func()](64),
		done:   make(chan struct{}),
	}
}

// Start launches the loop goroutine. Calling Start twice is a no-op.
func (l *Loop) Start() {
	l.startOnce.Do(func() {
		go l.run()
	})
}

// Post queues fn. Returns false if the loop is closed.
func (l *Loop) Post(fn func()) bool {
	return l.queue.Push(fn)
}

// Sync waits until every callback posted before the call has run.
func (l *Loop) Sync(ctx context.Context) error {
	reached := make(chan struct{})
	if !l.Post(func() { close(reached) }) {
		return ErrLoopClosed
	}
	select {
	case <-reached:
		return nil
	case <-ctx.Done():
		return ctx.Err()
	}
}

// Close stops accepting work. Already queued callbacks still run.
func (l *Loop) Close() {
	l.queue.Close()
}

// Done is closed once the loop has drained after Close.
func (l *Loop) Done() <-chan struct{} {
	return l.done
}

// Pending returns the number of queued callbacks.
func (l *Loop) Pending() int {
	return l.queue.Len()
}

func (l *Loop) run() {
	defer close(l.done)

	for {
		fn, ok := l.queue.Receive()
		if !ok {
			return
		}
		l.exec(fn)
	}
}

func (l *Loop) exec(fn func()) {
	defer func() {
		if r := recover(); r != nil {
			l.logger.Error("event loop callback panicked", "error", fmt.Sprint(r))
		}
	}()
	fn()
}
