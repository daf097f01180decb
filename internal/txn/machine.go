// Package txn implements the optimistic transaction machine:
// per-connection MULTI/EXEC/DISCARD state plus WATCH/UNWATCH invalidation
// via a reverse key→connections index, giving O(1) invalidation on write.
package txn

import "github.com/nishisan-dev/redlet/internal/resperr"

type State int

const (
	Normal State = iota
	InTransaction
)

// QueuedCommand is a (name, args) pair queued during a transaction; the
// command catalog looks the handler up by name at EXEC time rather than
// closing over transient handler state.
type QueuedCommand struct {
	Name string
	Args [][]byte
}

// ConnState is one connection's transaction bookkeeping.
type ConnState struct {
	state       State
	queue       []QueuedCommand
	watched     map[string]bool
	invalidated bool
	queueErr    error // set when an unqueueable command is attempted mid-MULTI
}

func (s *ConnState) InTransaction() bool { return s.state == InTransaction }

// Machine owns every connection's transaction state plus the reverse
// watched-key index.
type Machine struct {
	conns      map[uint64]*ConnState
	watchIndex map[string]map[uint64]bool
}

func New() *Machine {
	return &Machine{
		conns:      make(map[uint64]*ConnState),
		watchIndex: make(map[string]map[uint64]bool),
	}
}

func (m *Machine) get(connID uint64) *ConnState {
	s, ok := m.conns[connID]
	if !ok {
		s = &ConnState{watched: make(map[string]bool)}
		m.conns[connID] = s
	}
	return s
}

// State exposes a connection's current state for the dispatcher's
// restricted-mode gating.
func (m *Machine) State(connID uint64) State {
	return m.get(connID).state
}

// Multi begins a transaction. Nested MULTI is an error.
func (m *Machine) Multi(connID uint64) error {
	s := m.get(connID)
	if s.state == InTransaction {
		return resperr.New(resperr.Syntax, "MULTI calls can not be nested")
	}
	s.state = InTransaction
	s.queue = nil
	s.invalidated = false
	s.queueErr = nil
	return nil
}

// Watch registers keys for optimistic concurrency control. Only valid
// outside a transaction.
func (m *Machine) Watch(connID uint64, keys ...string) error {
	s := m.get(connID)
	if s.state == InTransaction {
		return resperr.New(resperr.Syntax, "WATCH inside MULTI is not allowed")
	}
	for _, key := range keys {
		if s.watched[key] {
			continue
		}
		s.watched[key] = true
		if m.watchIndex[key] == nil {
			m.watchIndex[key] = make(map[uint64]bool)
		}
		m.watchIndex[key][connID] = true
	}
	return nil
}

// Unwatch clears connID's watched-key set.
func (m *Machine) Unwatch(connID uint64) {
	s := m.get(connID)
	m.clearWatches(connID, s)
}

func (m *Machine) clearWatches(connID uint64, s *ConnState) {
	for key := range s.watched {
		if idx := m.watchIndex[key]; idx != nil {
			delete(idx, connID)
			if len(idx) == 0 {
				delete(m.watchIndex, key)
			}
		}
	}
	s.watched = make(map[string]bool)
	s.invalidated = false
}

// Queue appends a command to connID's pending queue. name/args are taken
// verbatim; argument validation happens when the handler finally runs at
// EXEC time, matching real deferred-validation semantics, except that an
// unknown command name queued mid-MULTI marks the transaction for abort
// (errors accumulated during queueing short-circuit EXEC with EXECABORT).
func (m *Machine) Queue(connID uint64, name string, args [][]byte) {
	s := m.get(connID)
	s.queue = append(s.queue, QueuedCommand{Name: name, Args: args})
}

// MarkQueueError records a queue-time error (e.g. unknown command) that
// will abort EXEC.
func (m *Machine) MarkQueueError(connID uint64, err error) {
	s := m.get(connID)
	if s.queueErr == nil {
		s.queueErr = err
	}
}

// Discard abandons a transaction's queue without executing it.
func (m *Machine) Discard(connID uint64) error {
	s := m.get(connID)
	if s.state != InTransaction {
		return resperr.New(resperr.Syntax, "DISCARD without MULTI")
	}
	s.state = Normal
	s.queue = nil
	s.queueErr = nil
	m.clearWatches(connID, s)
	return nil
}

// ExecResult is what EXEC needs from the machine before running the queue.
type ExecResult struct {
	Invalidated bool
	Aborted     bool
	AbortErr    error
	Queue       []QueuedCommand
}

// Exec ends the transaction and reports whether it was invalidated or
// aborted, and if neither, the queue to run in insertion order. Watches
// are cleared either way (matching EXEC's real semantics).
func (m *Machine) Exec(connID uint64) (ExecResult, error) {
	s := m.get(connID)
	if s.state != InTransaction {
		return ExecResult{}, resperr.New(resperr.Syntax, "EXEC without MULTI")
	}
	s.state = Normal
	res := ExecResult{Invalidated: s.invalidated, Queue: s.queue}
	if s.queueErr != nil {
		res.Aborted = true
		res.AbortErr = s.queueErr
	}
	s.queue = nil
	s.queueErr = nil
	m.clearWatches(connID, s)
	return res, nil
}

// KeyModified flips invalidated=true on every connection currently
// watching key. Called for every write, including propagated writes, so
// a replicated mutation aborts a watching EXEC exactly like a local one.
func (m *Machine) KeyModified(key string) {
	for connID := range m.watchIndex[key] {
		m.conns[connID].invalidated = true
	}
}

// StoreCleared invalidates every watching connection (FLUSHALL).
func (m *Machine) StoreCleared() {
	for _, s := range m.conns {
		if len(s.watched) > 0 {
			s.invalidated = true
		}
	}
}

// RemoveConnection drops connID's state and watch-index entries entirely,
// on connection close.
func (m *Machine) RemoveConnection(connID uint64) {
	s, ok := m.conns[connID]
	if !ok {
		return
	}
	m.clearWatches(connID, s)
	delete(m.conns, connID)
}

// The remaining methods satisfy store.Observer so a Machine can be
// registered directly as a keyspace observer; only writes matter to the
// transaction machine.
func (m *Machine) DataAdded(string)            {}
func (m *Machine) DataRemoved(string)          {}
func (m *Machine) ExpiredKeysRemoved([]string) {}
