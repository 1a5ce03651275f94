package mutation

import (
	"context"
	"fmt"
	"sync"
)

// Writer applies one operation to the remote system.
type Writer interface {
	Write(ctx context.Context, op Operation) error
}

// WriterFunc is a function adapter for Writer.
type WriterFunc func(ctx context.Context, op Operation) error

func (f WriterFunc) Write(ctx context.Context, op Operation) error {
	return f(ctx, op)
}

// Writers dispatches an operation to the writer registered for its entity
// type and kind, then to the entity-wide writer, then to the fallback.
type Writers struct {
	mu       sync.RWMutex
	routes   map[string]Writer
	fallback Writer
}

// NewWriters creates a dispatcher. fallback may be nil.
func NewWriters(fallback Writer) *Writers {
	return &Writers{
		routes:   make(map[string]Writer),
		fallback: fallback,
	}
}

// Handle registers w for entityType and kind. An empty kind matches every
// kind of that entity type.
func (ws *Writers) Handle(entityType string, kind Kind, w Writer) {
	ws.mu.Lock()
	ws.routes[routeKey(entityType, kind)] = w
	ws.mu.Unlock()
}

// HandleFunc registers a function for entityType and kind.
func (ws *Writers) HandleFunc(entityType string, kind Kind, fn func(ctx context.Context, op Operation) error) {
	ws.Handle(entityType, kind, WriterFunc(fn))
}

func (ws *Writers) Write(ctx context.Context, op Operation) error {
	w := ws.lookup(op)
	if w == nil {
		return fmt.Errorf("%w: %s %s", ErrNoWriter, op.Kind, op.EntityType)
	}
	return w.Write(ctx, op)
}

func (ws *Writers) lookup(op Operation) Writer {
	ws.mu.RLock()
	defer ws.mu.RUnlock()

	if w, ok := ws.routes[routeKey(op.EntityType, op.Kind)]; ok {
		return w
	}
	if w, ok := ws.routes[routeKey(op.EntityType, "")]; ok {
		return w
	}
	return ws.fallback
}

func routeKey(entityType string, kind Kind) string {
	return entityType + "/" + string(kind)
}
