package buffer

import (
	"sync"
)

// Growable is a thread-safe FIFO ring buffer that doubles its capacity
// when it reaches 70% full. It never drops items.
type Growable[T any] struct {
	mu       sync.Mutex
	cond     *sync.Cond
	buf      []T
	head     int // read position
	tail     int // write position
	count    int
	capacity int
	closed   bool

	// Stats
	totalReceived int64
	totalSent     int64
	resizeCount   int
}

// Stats contains buffer statistics.
type Stats struct {
	Count         int
	Capacity      int
	TotalReceived int64
	TotalSent     int64
	ResizeCount   int
}

// New creates a new buffer with the given initial capacity.
func New[T any](initialCapacity int) *Growable[T] {
	if initialCapacity < 1 {
		initialCapacity = 1
	}
	b := &Growable[T]{
		buf:      make([]T, initialCapacity),
		capacity: initialCapacity,
	}
	b.cond = sync.NewCond(&b.mu)
	return b
}

// Push appends an item to the tail. Returns false if the buffer is closed.
func (b *Growable[T]) Push(item T) bool {
	b.mu.Lock()
	defer b.mu.Unlock()

	if b.closed {
		return false
	}

	b.growIfNeeded()

	b.buf[b.tail] = item
	b.tail = (b.tail + 1) % b.capacity
	b.count++
	b.totalReceived++

	b.cond.Signal()
	return true
}

// PushFront puts items back at the head, preserving their relative order,
// so that a partially failed drain can be retried without reordering.
func (b *Growable[T]) PushFront(items ...T) bool {
	b.mu.Lock()
	defer b.mu.Unlock()

	if b.closed {
		return false
	}

	for i := len(items) - 1; i >= 0; i-- {
		b.growIfNeeded()
		b.head = (b.head - 1 + b.capacity) % b.capacity
		b.buf[b.head] = items[i]
		b.count++
	}

	if len(items) > 0 {
		b.cond.Signal()
	}
	return true
}

// Receive removes and returns the head item.
// Blocks until an item is available or the buffer is closed.
// Returns the zero value and false once the buffer is closed and empty.
func (b *Growable[T]) Receive() (T, bool) {
	b.mu.Lock()
	defer b.mu.Unlock()

	for b.count == 0 && !b.closed {
		b.cond.Wait()
	}

	if b.count == 0 {
		var zero T
		return zero, false
	}

	return b.pop(), true
}

// TryReceive removes the head item without blocking.
func (b *Growable[T]) TryReceive() (T, bool) {
	b.mu.Lock()
	defer b.mu.Unlock()

	if b.count == 0 {
		var zero T
		return zero, false
	}

	return b.pop(), true
}

// DrainTo removes up to max items (all items if max <= 0) in FIFO order.
func (b *Growable[T]) DrainTo(max int) []T {
	b.mu.Lock()
	defer b.mu.Unlock()

	if b.count == 0 {
		return nil
	}

	n := b.count
	if max > 0 && max < n {
		n = max
	}

	result := make([]T, n)
	for i := 0; i < n; i++ {
		result[i] = b.pop()
	}

	return result
}

// Snapshot returns a copy of the buffered items in FIFO order without removing them.
func (b *Growable[T]) Snapshot() []T {
	b.mu.Lock()
	defer b.mu.Unlock()

	result := make([]T, b.count)
	for i := 0; i < b.count; i++ {
		result[i] = b.buf[(b.head+i)%b.capacity]
	}
	return result
}

// Clear discards all buffered items and returns how many were dropped.
func (b *Growable[T]) Clear() int {
	b.mu.Lock()
	defer b.mu.Unlock()

	n := b.count
	var zero T
	for i := range b.buf {
		b.buf[i] = zero
	}
	b.head, b.tail, b.count = 0, 0, 0
	return n
}

// Close closes the buffer. After closing, Push returns false.
// Receivers get the remaining items and then the closed signal.
func (b *Growable[T]) Close() {
	b.mu.Lock()
	defer b.mu.Unlock()

	b.closed = true
	b.cond.Broadcast()
}

// Len returns the current number of items in the buffer.
func (b *Growable[T]) Len() int {
	b.mu.Lock()
	defer b.mu.Unlock()
	return b.count
}

// Cap returns the current capacity of the buffer.
func (b *Growable[T]) Cap() int {
	b.mu.Lock()
	defer b.mu.Unlock()
	return b.capacity
}

// Stats returns buffer statistics.
func (b *Growable[T]) Stats() Stats {
	b.mu.Lock()
	defer b.mu.Unlock()
	return Stats{
		Count:         b.count,
		Capacity:      b.capacity,
		TotalReceived: b.totalReceived,
		TotalSent:     b.totalSent,
		ResizeCount:   b.resizeCount,
	}
}

// pop removes the head item. Must be called with lock held and count > 0.
func (b *Growable[T]) pop() T {
	item := b.buf[b.head]
	var zero T
	b.buf[b.head] = zero // Clear reference for GC
	b.head = (b.head + 1) % b.capacity
	b.count--
	b.totalSent++
	return item
}

// growIfNeeded grows when one more item would reach 70% capacity.
// Must be called with lock held.
func (b *Growable[T]) growIfNeeded() {
	threshold := (b.capacity * 70) / 100
	if threshold < 1 {
		threshold = 1
	}
	if b.count+1 >= threshold {
		b.grow()
	}
}

// grow doubles the buffer capacity. Must be called with lock held.
func (b *Growable[T]) grow() {
	newCapacity := b.capacity * 2
	newBuf := make([]T, newCapacity)

	if b.count > 0 {
		if b.head < b.tail {
			// Contiguous: [head...tail)
			copy(newBuf, b.buf[b.head:b.tail])
		} else {
			// Wrapped: [head...end) + [0...tail)
			n := copy(newBuf, b.buf[b.head:])
			copy(newBuf[n:], b.buf[:b.tail])
		}
	}

	b.buf = newBuf
	b.head = 0
	b.tail = b.count
	b.capacity = newCapacity
	b.resizeCount++
}
