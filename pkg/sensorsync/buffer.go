package sensorsync

import "sync"

// Timed is a sample with its capture time.
type Timed[T any] struct {
	TimestampMs int64
	Value       T
}

// Buffer is a bounded ring of timestamped samples. Once full, the oldest
// sample is overwritten.
type Buffer[T any] struct {
	mu    sync.RWMutex
	items []Timed[T]
	next  int
	count int
}

// NewBuffer creates a buffer holding at most capacity samples.
func NewBuffer[T any](capacity int) *Buffer[T] {
	if capacity < 1 {
		capacity = 1
	}
	return &Buffer[T]{items: make([]Timed[T], capacity)}
}

// Push adds a sample.
func (b *Buffer[T]) Push(timestampMs int64, value T) {
	b.mu.Lock()
	defer b.mu.Unlock()

	b.items[b.next] = Timed[T]{TimestampMs: timestampMs, Value: value}
	b.next = (b.next + 1) % len(b.items)
	if b.count < len(b.items) {
		b.count++
	}
}

// NearestAtOrBefore returns the newest sample whose timestamp is <= target.
// It never returns a sample from the future of target.
func (b *Buffer[T]) NearestAtOrBefore(targetMs int64) (Timed[T], bool) {
	b.mu.RLock()
	defer b.mu.RUnlock()

	var best Timed[T]
	found := false
	for i := 0; i < b.count; i++ {
		item := b.items[i]
		if item.TimestampMs > targetMs {
			continue
		}
		if !found || item.TimestampMs >= best.TimestampMs {
			best = item
			found = true
		}
	}
	return best, found
}

// Latest returns the most recently pushed sample.
func (b *Buffer[T]) Latest() (Timed[T], bool) {
	b.mu.RLock()
	defer b.mu.RUnlock()

	if b.count == 0 {
		return Timed[T]{}, false
	}
	idx := (b.next - 1 + len(b.items)) % len(b.items)
	return b.items[idx], true
}

// Len returns the number of buffered samples.
func (b *Buffer[T]) Len() int {
	b.mu.RLock()
	defer b.mu.RUnlock()
	return b.count
}

// Clear drops every sample.
func (b *Buffer[T]) Clear() {
	b.mu.Lock()
	defer b.mu.Unlock()
	for i := range b.items {
		b.items[i] = Timed[T]{}
	}
	b.next = 0
	b.count = 0
}
