// Package blocking implements the blocking-client coordinator: a generic
// waiter registry keyed by watched key, with one active registration per
// connection. The command layer supplies an operation-specific
// TryConsume/Resolve/Timeout context, and the Coordinator only knows how
// to register, wake in FIFO order, and sweep deadlines; it has no
// per-data-type knowledge.
package blocking

import "time"

// Waiter is a connection suspended on data availability for one or more
// keys.
type Waiter struct {
	ConnID      uint64
	Keys        []string
	HasDeadline bool
	Deadline    time.Time

	// TryConsume is invoked with the key that just received data. It
	// should attempt to consume whatever this waiter is blocked on and
	// report whether it succeeded — first-come-first-served: if it
	// returns false (e.g., a sibling waiter's wake already drained the
	// data), the coordinator moves on to the next waiter in the queue.
	TryConsume func(key string) (result any, ok bool)

	// Resolve delivers a successful consumption's result to the
	// connection.
	Resolve func(result any)

	// Timeout delivers the timeout/null reply to the connection.
	Timeout func()
}

// Coordinator is the waiter registry. It is not internally synchronized:
// like the keyspace, all access happens from the single engine goroutine.
type Coordinator struct {
	waiters map[string][]*Waiter
	byConn  map[uint64]*Waiter

	// dirty queues keys whose waiters should be walked at the next
	// Drain. Wake-ups are deferred rather than run inside the mutating
	// command's observer callback so that the write which produced the
	// data is fully dispatched (including its replication fan-out)
	// before any waiter consumes it.
	dirty    []string
	dirtySet map[string]bool
}

func New() *Coordinator {
	return &Coordinator{
		waiters:  make(map[string][]*Waiter),
		byConn:   make(map[uint64]*Waiter),
		dirtySet: make(map[string]bool),
	}
}

// Register adds w to the waiter index of every key it watches and to the
// per-connection index. A connection may have at most one active
// registration; registering a second one for the same
// connection without removing the first would leave the first
// unreachable via RemoveConnection, so callers must remove before
// re-registering.
func (c *Coordinator) Register(w *Waiter) {
	for _, key := range w.Keys {
		c.waiters[key] = append(c.waiters[key], w)
	}
	c.byConn[w.ConnID] = w
}

// Active reports whether connID currently has a registered waiter.
func (c *Coordinator) Active(connID uint64) bool {
	_, ok := c.byConn[connID]
	return ok
}

func (c *Coordinator) unregister(w *Waiter) {
	for _, key := range w.Keys {
		q := c.waiters[key]
		for i, x := range q {
			if x == w {
				q = append(q[:i], q[i+1:]...)
				break
			}
		}
		if len(q) == 0 {
			delete(c.waiters, key)
		} else {
			c.waiters[key] = q
		}
	}
	delete(c.byConn, w.ConnID)
}

// Notify walks the FIFO queue for key, in arrival order, giving each
// waiter a chance to consume the newly available data. A waiter that
// consumes successfully is resolved and removed from every index it
// belongs to; one that fails to consume is left waiting and the walk
// continues to the next waiter. First come, first served.
func (c *Coordinator) Notify(key string) {
	queue := append([]*Waiter(nil), c.waiters[key]...)
	for _, w := range queue {
		if c.byConn[w.ConnID] != w {
			continue // already resolved/removed earlier in this same walk
		}
		result, ok := w.TryConsume(key)
		if !ok {
			continue
		}
		c.unregister(w)
		w.Resolve(result)
	}
}

// SweepExpired removes and times out every waiter whose deadline is at or
// before now.
func (c *Coordinator) SweepExpired(now time.Time) {
	var timedOut []*Waiter
	for _, w := range c.byConn {
		if w.HasDeadline && !now.Before(w.Deadline) {
			timedOut = append(timedOut, w)
		}
	}
	for _, w := range timedOut {
		c.unregister(w)
		w.Timeout()
	}
}

// Count reports how many connections currently have an active blocking
// registration, for INFO's clients section.
func (c *Coordinator) Count() int { return len(c.byConn) }

// RemoveConnection drops connID's registration, if any, without invoking
// Resolve or Timeout (used on connection loss, where the reply has
// nowhere to go).
func (c *Coordinator) RemoveConnection(connID uint64) {
	if w, ok := c.byConn[connID]; ok {
		c.unregister(w)
	}
}

// markDirty queues key for the next Drain, skipping keys nobody waits on.
func (c *Coordinator) markDirty(key string) {
	if len(c.waiters[key]) == 0 || c.dirtySet[key] {
		return
	}
	c.dirtySet[key] = true
	c.dirty = append(c.dirty, key)
}

// Drain runs the wake-up walk for every key marked since the last Drain.
// The dispatcher calls it once per dispatched command, after the
// command's own replication fan-out, so a waiter's follow-up write (the
// rewritten pop) always reaches followers after the write that woke it.
// Consumption during the walk may mark further keys; the loop runs until
// the queue is empty.
func (c *Coordinator) Drain() {
	for len(c.dirty) > 0 {
		key := c.dirty[0]
		c.dirty = c.dirty[1:]
		delete(c.dirtySet, key)
		c.Notify(key)
	}
}

// The following methods satisfy store.Observer, so a Coordinator can be
// registered directly as a keyspace observer: any key gaining data or
// being overwritten is worth a wake-up attempt for its waiters.
func (c *Coordinator) DataAdded(key string)   { c.markDirty(key) }
func (c *Coordinator) KeyModified(key string) { c.markDirty(key) }
func (c *Coordinator) DataRemoved(string)     {}
func (c *Coordinator) StoreCleared()          {}
func (c *Coordinator) ExpiredKeysRemoved([]string) {}
