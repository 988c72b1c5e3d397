package player

import (
	"errors"
	"sync"
)

// contextHandle is the opaque reference the event loop holds to its
// session context block.
type contextHandle uint64

// sessionContext is the per-instance block the event loop resolves on
// every event.
type sessionContext struct {
	session string
	channel string
	handler EventHandler
}

var errContextReleased = errors.New("session context already released")

// contextTable owns every live session context block. A block is put once
// at creation and deleted exactly once, on the creation failure path or at
// teardown; a second delete is reported instead of silently ignored.
type contextTable struct {
	mu     sync.Mutex
	next   contextHandle
	blocks map[contextHandle]*sessionContext
}

func newContextTable() *contextTable {
	return &contextTable{blocks: make(map[contextHandle]*sessionContext)}
}

func (t *contextTable) put(c *sessionContext) contextHandle {
	t.mu.Lock()
	defer t.mu.Unlock()
	t.next++
	t.blocks[t.next] = c
	return t.next
}

func (t *contextTable) resolve(h contextHandle) (*sessionContext, bool) {
	t.mu.Lock()
	defer t.mu.Unlock()
	c, ok := t.blocks[h]
	return c, ok
}

func (t *contextTable) delete(h contextHandle) error {
	t.mu.Lock()
	defer t.mu.Unlock()
	if _, ok := t.blocks[h]; !ok {
		return errContextReleased
	}
	delete(t.blocks, h)
	return nil
}

func (t *contextTable) len() int {
	t.mu.Lock()
	defer t.mu.Unlock()
	return len(t.blocks)
}
