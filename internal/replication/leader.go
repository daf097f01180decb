// Package replication implements the leader and follower halves of
// leader→follower replication: the leader's follower registry, offset
// tracking and WAIT primitive, and the follower's outbound PSYNC
// handshake state machine.
package replication

import (
	"strconv"
	"strings"
	"time"

	"github.com/nishisan-dev/redlet/internal/protocol"
	"github.com/nishisan-dev/redlet/internal/resperr"
)

// follower is one connected replica as seen from the leader side.
type follower struct {
	connID    uint64
	write     func([]byte) error
	ackOffset int64
}

// pendingWait is one client suspended on WAIT: it resolves when
// requiredAcks followers have acknowledged targetOffset, or when the
// deadline sweep fires, whichever comes first.
type pendingWait struct {
	connID       uint64
	requiredAcks int
	targetOffset int64
	hasDeadline  bool
	deadline     time.Time
	resolve      func(acked int)
}

// Leader tracks connected followers, the monotonic replication offset, and
// in-flight WAIT requests. Not internally synchronized: like the keyspace
// and the other C-series components, all access happens from the single
// engine goroutine.
type Leader struct {
	replID    string
	offset    int64
	followers map[uint64]*follower
	waits     map[uint64]*pendingWait
	snapshot  func() ([]byte, error)
}

// NewLeader creates a leader-side replication coordinator. snapshot
// produces the bulk payload served on FULLRESYNC — wired to
// internal/snapshotstore's keyspace codec by the server.
func NewLeader(replID string, snapshot func() ([]byte, error)) *Leader {
	return &Leader{
		replID:    replID,
		followers: make(map[uint64]*follower),
		waits:     make(map[uint64]*pendingWait),
		snapshot:  snapshot,
	}
}

// Offset returns the current replication offset.
func (l *Leader) Offset() int64 { return l.offset }

// RegisterFollower records how to write raw bytes to connID's connection.
// Called by the server when a connection issues PSYNC, before HandlePsync
// runs, since only the server layer holds the net.Conn.
func (l *Leader) RegisterFollower(connID uint64, write func([]byte) error) {
	l.followers[connID] = &follower{connID: connID, write: write}
}

// RemoveFollower drops connID from the registry, on connection close.
func (l *Leader) RemoveFollower(connID uint64) {
	delete(l.followers, connID)
}

// HandleReplconf answers the follower-initiated REPLCONF handshake steps
// (listening-port, capa) with a plain OK, and records ACK offsets sent by
// an already-syncing follower. REPLCONF ACK is fire-and-forget in the real
// protocol — callers get back a zero-length Frame, which the connection
// writer must treat as "write nothing".
func (l *Leader) HandleReplconf(connID uint64, args [][]byte) (protocol.Frame, error) {
	if len(args) == 0 {
		return protocol.Frame{}, resperr.ErrSyntax
	}
	switch strings.ToUpper(string(args[0])) {
	case "ACK":
		if len(args) < 2 {
			return protocol.Frame{}, resperr.ErrSyntax
		}
		offset, err := strconv.ParseInt(string(args[1]), 10, 64)
		if err != nil {
			return protocol.Frame{}, resperr.ErrNotInteger
		}
		if f, ok := l.followers[connID]; ok {
			f.ackOffset = offset
			l.checkWaits()
		}
		return protocol.Raw(nil), nil
	default:
		return protocol.OK(), nil
	}
}

// HandlePsync builds the FULLRESYNC header and snapshot payload for
// connID, which must already be registered via RegisterFollower.
func (l *Leader) HandlePsync(connID uint64) (protocol.Frame, []byte, error) {
	payload, err := l.snapshot()
	if err != nil {
		return protocol.Frame{}, nil, resperr.Wrap(resperr.ReplicationProtocol, "snapshot failed", err)
	}
	header := protocol.FullResyncHeader(l.replID, l.offset)
	return header, payload, nil
}

// Propagate encodes cmd as a RESP array and forwards it to every
// registered follower, advancing the replication offset by the encoded
// frame's length (matching the real protocol's "offset counts
// propagated bytes" semantics). Followers whose write fails are dropped;
// the caller's connection-close path will also call RemoveFollower, so a
// double-remove here is harmless.
func (l *Leader) Propagate(name string, args [][]byte) {
	items := make([][]byte, 0, len(args)+1)
	items = append(items, []byte(name))
	items = append(items, args...)
	frame := protocol.BulkStringArray(items)
	l.offset += int64(len(frame.Bytes()))

	var dead []uint64
	for connID, f := range l.followers {
		if err := f.write(frame.Bytes()); err != nil {
			dead = append(dead, connID)
		}
	}
	for _, connID := range dead {
		delete(l.followers, connID)
	}
}

// RequestAcks broadcasts REPLCONF GETACK * to every follower, prompting
// each to reply with REPLCONF ACK <offset>. The scheduler calls this on
// its sweep cadence so Wait's ack counts converge without the engine ever
// blocking on a round trip. Like any propagated frame, the GETACK itself
// counts toward the replication offset — the follower counts it on
// receipt, so both sides stay byte-for-byte aligned.
func (l *Leader) RequestAcks() {
	if len(l.followers) == 0 {
		return
	}
	frame := protocol.BulkStringArray([][]byte{[]byte("REPLCONF"), []byte("GETACK"), []byte("*")})
	l.offset += int64(len(frame.Bytes()))

	var dead []uint64
	for connID, f := range l.followers {
		if err := f.write(frame.Bytes()); err != nil {
			dead = append(dead, connID)
		}
	}
	for _, connID := range dead {
		delete(l.followers, connID)
	}
}

// SyncCount reports how many followers have acknowledged at least target.
func (l *Leader) SyncCount(target int64) int {
	acked := 0
	for _, f := range l.followers {
		if f.ackOffset >= target {
			acked++
		}
	}
	return acked
}

// Wait implements WAIT numReplicas timeout against the offset current at
// call time. It answers immediately (done=true) when numReplicas <= 0
// (connected-follower count) or enough followers have already acked.
// Otherwise it broadcasts REPLCONF GETACK *, registers a pending wait,
// and returns done=false: resolve fires exactly once, with the sync
// count, either when an ACK satisfies the target or when the deadline
// sweep gives up. A connection suspends on WAIT the same way it does on
// BLPOP, so at most one pending wait exists per connection.
func (l *Leader) Wait(connID uint64, numReplicas int, timeout time.Duration, now time.Time, resolve func(acked int)) (acked int, done bool) {
	if numReplicas <= 0 {
		return len(l.followers), true
	}
	target := l.offset
	if n := l.SyncCount(target); n >= numReplicas {
		return n, true
	}

	l.RequestAcks()
	w := &pendingWait{
		connID:       connID,
		requiredAcks: numReplicas,
		targetOffset: target,
		resolve:      resolve,
	}
	if timeout > 0 {
		w.hasDeadline = true
		w.deadline = now.Add(timeout)
	}
	l.waits[connID] = w
	return 0, false
}

// checkWaits resolves every pending wait whose target is now covered by
// enough follower acks. Called after each REPLCONF ACK lands.
func (l *Leader) checkWaits() {
	for connID, w := range l.waits {
		n := l.SyncCount(w.targetOffset)
		if n < w.requiredAcks {
			continue
		}
		delete(l.waits, connID)
		w.resolve(n)
	}
}

// SweepExpiredWaits resolves every pending wait whose deadline has
// passed, with whatever the sync count is at that moment.
func (l *Leader) SweepExpiredWaits(now time.Time) {
	for connID, w := range l.waits {
		if !w.hasDeadline || now.Before(w.deadline) {
			continue
		}
		delete(l.waits, connID)
		w.resolve(l.SyncCount(w.targetOffset))
	}
}

// RemoveWait drops connID's pending wait without resolving it, on
// connection loss.
func (l *Leader) RemoveWait(connID uint64) {
	delete(l.waits, connID)
}

// FollowerCount reports the number of currently registered followers,
// used by INFO's replication section.
func (l *Leader) FollowerCount() int { return len(l.followers) }
