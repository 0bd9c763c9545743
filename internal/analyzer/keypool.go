package analyzer

import (
	"context"
	"sync"
	"time"

	"github.com/rotisserie/eris"
)

const acquireTimeout = 30 * time.Second

// KeyPool is a bounded, FIFO-fair semaphore over a fixed set of API keys.
// Concurrency across the pool equals len(keys): at most one caller holds
// each key at a time, and callers that arrive while every key is busy
// queue in order and are served in the order they arrived.
type KeyPool struct {
	mu      sync.Mutex
	keys    []string
	free    []bool
	cursor  int
	waiters []chan string
}

// NewKeyPool creates a KeyPool over keys, all initially free.
func NewKeyPool(keys []string) *KeyPool {
	free := make([]bool, len(keys))
	for i := range free {
		free[i] = true
	}
	return &KeyPool{keys: keys, free: free}
}

// Len reports how many keys the pool holds.
func (p *KeyPool) Len() int {
	return len(p.keys)
}

// Acquire blocks until a key is available, ctx is canceled, or an internal
// 30s acquisition timeout elapses, whichever comes first. The returned
// release func must be called exactly once.
func (p *KeyPool) Acquire(ctx context.Context) (string, func(), error) {
	ctx, cancel := context.WithTimeout(ctx, acquireTimeout)
	defer cancel()

	p.mu.Lock()
	if len(p.keys) == 0 {
		p.mu.Unlock()
		return "", nil, eris.New("analyzer: key pool is empty")
	}

	for i := 0; i < len(p.keys); i++ {
		idx := (p.cursor + i) % len(p.keys)
		if p.free[idx] {
			p.free[idx] = false
			p.cursor = (idx + 1) % len(p.keys)
			key := p.keys[idx]
			p.mu.Unlock()
			return key, p.release(idx), nil
		}
	}

	waiter := make(chan string, 1)
	p.waiters = append(p.waiters, waiter)
	p.mu.Unlock()

	select {
	case key := <-waiter:
		return key, p.release(p.indexOf(key)), nil
	case <-ctx.Done():
		p.mu.Lock()
		queued := false
		for i, w := range p.waiters {
			if w == waiter {
				p.waiters = append(p.waiters[:i], p.waiters[i+1:]...)
				queued = true
				break
			}
		}
		p.mu.Unlock()
		if !queued {
			// A release already handed this waiter a key; pass it on.
			p.release(p.indexOf(<-waiter))()
		}
		return "", nil, eris.Wrap(ctx.Err(), "analyzer: acquire key timed out")
	}
}

func (p *KeyPool) indexOf(key string) int {
	for i, k := range p.keys {
		if k == key {
			return i
		}
	}
	return -1
}

// release returns a closure that frees the key at idx, handing it directly
// to the oldest queued waiter if one exists instead of marking it free.
func (p *KeyPool) release(idx int) func() {
	var released bool
	return func() {
		p.mu.Lock()
		defer p.mu.Unlock()
		if released {
			return
		}
		released = true

		if len(p.waiters) > 0 {
			next := p.waiters[0]
			p.waiters = p.waiters[1:]
			next <- p.keys[idx]
			close(next)
			return
		}
		p.free[idx] = true
	}
}
