package util

import (
	"sync"
)

// Latest holds a single, latest value handed over from one goroutine to
// another. Only the most recent value is retained; older ones that have
// not been taken yet are overwritten.
type Latest[T any] struct {
	mu      sync.Mutex
	value   T
	pending bool
}

func NewLatest[T any]() *Latest[T] {
	return &Latest[T]{}
}

// Offer replaces the held value. It never blocks.
func (l *Latest[T]) Offer(value T) {
	l.mu.Lock()
	defer l.mu.Unlock()

	l.value = value
	l.pending = true
}

// Take returns the held value if one has been offered since the last
// Take. It never blocks, so it can be called from a polling loop.
func (l *Latest[T]) Take() (T, bool) {
	l.mu.Lock()
	defer l.mu.Unlock()

	if !l.pending {
		var zero T
		return zero, false
	}
	l.pending = false
	return l.value, true
}
