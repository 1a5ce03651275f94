package event

import (
	"fmt"
	"log/slog"
	"sync"
)

// Feed is a typed publish/subscribe point for one kind of event.
// Handlers run in registration order; a panicking handler is logged and
// does not prevent the remaining handlers from running.
type Feed[T any] struct {
	name   string
	logger *slog.Logger

	mu     sync.RWMutex
	nextID uint64
	subs   []subscription[T]
}

type subscription[T any] struct {
	id uint64
	fn func(T)
}

// NewFeed creates an empty feed. The name is only used for logging.
func NewFeed[T any](name string, logger *slog.Logger) *Feed[T] {
	if logger == nil {
		logger = slog.Default()
	}
	return &Feed[T]{name: name, logger: logger}
}

// Subscribe registers fn and returns a function that removes it.
// The returned function is safe to call more than once.
func (f *Feed[T]) Subscribe(fn func(T)) (unsubscribe func()) {
	f.mu.Lock()
	f.nextID++
	id := f.nextID
	f.subs = append(f.subs, subscription[T]{id: id, fn: fn})
	f.mu.Unlock()

	var once sync.Once
	return func() {
		once.Do(func() { f.remove(id) })
	}
}

// Emit invokes every handler with v and returns how many handlers ran.
func (f *Feed[T]) Emit(v T) int {
	f.mu.RLock()
	subs := make([]subscription[T], len(f.subs))
	copy(subs, f.subs)
	f.mu.RUnlock()

	for _, s := range subs {
		f.call(s.fn, v)
	}
	return len(subs)
}

// Len returns the number of registered handlers.
func (f *Feed[T]) Len() int {
	f.mu.RLock()
	defer f.mu.RUnlock()
	return len(f.subs)
}

// Reset removes every handler.
func (f *Feed[T]) Reset() {
	f.mu.Lock()
	f.subs = nil
	f.mu.Unlock()
}

func (f *Feed[T]) remove(id uint64) {
	f.mu.Lock()
	defer f.mu.Unlock()

	for i, s := range f.subs {
		if s.id == id {
			f.subs = append(f.subs[:i:i], f.subs[i+1:]...)
			return
		}
	}
}

func (f *Feed[T]) call(fn func(T), v T) {
	defer func() {
		if r := recover(); r != nil {
			f.logger.Error("event handler panicked",
				"feed", f.name,
				"error", fmt.Sprint(r),
			)
		}
	}()
	fn(v)
}
