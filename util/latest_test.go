package util

import (
	"sync"
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestLatest_TakeEmpty(t *testing.T) {
	l := NewLatest[int]()
	v, ok := l.Take()
	assert.False(t, ok, "nothing offered yet")
	assert.Equal(t, 0, v)
}

func TestLatest_OfferTake(t *testing.T) {
	l := NewLatest[string]()
	l.Offer("first")
	l.Offer("second")

	v, ok := l.Take()
	assert.True(t, ok)
	assert.Equal(t, "second", v, "only the newest value is kept")

	_, ok = l.Take()
	assert.False(t, ok, "value must be consumed by Take")

	l.Offer("third")
	v, ok = l.Take()
	assert.True(t, ok)
	assert.Equal(t, "third", v)
}

func TestLatest_Concurrency(t *testing.T) {
	l := NewLatest[int]()
	var wg sync.WaitGroup
	wg.Add(1)
	go func() {
		defer wg.Done()
		for i := 0; i < 1000; i++ {
			l.Offer(i)
		}
	}()

	last := -1
	for {
		if v, ok := l.Take(); ok {
			if v < last {
				t.Fatalf("read a stale value: got %d, last was %d", v, last)
			}
			last = v
		}
		if last == 999 {
			break
		}
	}
	wg.Wait()
}
