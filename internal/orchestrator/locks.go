package orchestrator

import (
	"sync"

	"github.com/google/uuid"
)

// convLocks serializes turns per conversation id. Clients submit turns
// serially, but nothing upstream enforces it; a per-id mutex closes the
// race of two turns persisting against each other.
type convLocks struct {
	mu    sync.Mutex
	locks map[uuid.UUID]*convLock
}

type convLock struct {
	sync.Mutex
	refs int
}

func newConvLocks() *convLocks {
	return &convLocks{locks: make(map[uuid.UUID]*convLock)}
}

// acquire blocks until the conversation's lock is held and returns the
// release function.
func (c *convLocks) acquire(id uuid.UUID) func() {
	c.mu.Lock()
	l, ok := c.locks[id]
	if !ok {
		l = &convLock{}
		c.locks[id] = l
	}
	l.refs++
	c.mu.Unlock()

	l.Lock()
	return func() {
		l.Unlock()
		c.mu.Lock()
		l.refs--
		if l.refs == 0 {
			delete(c.locks, id)
		}
		c.mu.Unlock()
	}
}
