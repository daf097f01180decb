// Package command implements the command catalog: the table of named
// handlers with arity and mode classification, wired against the typed
// keyspace, the blocking coordinator, the transaction machine, and the
// pub/sub bus.
package command

import (
	"time"

	"github.com/nishisan-dev/redlet/internal/auth"
	"github.com/nishisan-dev/redlet/internal/blocking"
	"github.com/nishisan-dev/redlet/internal/protocol"
	"github.com/nishisan-dev/redlet/internal/pubsub"
	"github.com/nishisan-dev/redlet/internal/store"
	"github.com/nishisan-dev/redlet/internal/txn"
)

// Replication is the subset of the leader/follower package the command
// catalog needs for REPLCONF/PSYNC/WAIT. Defined here, at the consumer,
// and satisfied by internal/replication, so command has no import-time
// dependency on the replication package's internals.
type Replication interface {
	HandleReplconf(connID uint64, args [][]byte) (protocol.Frame, error)
	// HandlePsync returns the FULLRESYNC header frame plus the raw
	// snapshot payload bytes to write immediately after it. The payload
	// carries no length prefix; handlePsync adds the
	// protocol.BulkPayloadHeader.
	HandlePsync(connID uint64) (header protocol.Frame, payload []byte, err error)
	// Wait answers WAIT immediately (done=true) when numReplicas <= 0 or
	// enough followers have already acked the current offset. Otherwise
	// it registers a pending wait and returns done=false; resolve fires
	// exactly once with the final count, on a satisfying ACK or on the
	// deadline sweep.
	Wait(connID uint64, numReplicas int, timeout time.Duration, now time.Time, resolve func(acked int)) (acked int, done bool)
}

// ExecContext is the per-call environment a handler runs in. It carries no
// per-connection mutable command state of its own — that lives in Txn and
// PubSub, keyed by ConnID — so a single ExecContext can be reused (or
// rebuilt cheaply) per dispatch.
type ExecContext struct {
	ConnID uint64

	Catalog  *Catalog
	Store    *store.Keyspace
	Blocking *blocking.Coordinator
	Txn      *txn.Machine
	PubSub   *pubsub.Bus
	Config   *Config
	Repl     Replication

	// Verifier and Auth are nil when no shared secret is configured, in
	// which case every connection is already authenticated.
	Verifier *auth.Verifier
	Auth     *auth.Sessions

	// NowMs returns the current wall clock in milliseconds, used for
	// stream ID allocation and PX/EX expiry computation. Injectable for
	// deterministic tests.
	NowMs func() int64

	// Propagate forwards a write command to the replication leader's
	// follower stream. Nil-safe: handlers must check before calling.
	Propagate func(name string, args [][]byte)

	// ReplyAsync delivers a reply that was produced after the original
	// dispatch returned, i.e. when a blocking wait is satisfied or times
	// out. Handlers that return Suspend() must arrange for this to be
	// called exactly once via the blocking.Waiter they register.
	ReplyAsync func(protocol.Frame)

	// Stats feeds INFO's server/memory/replication/clients sections.
	// Nil-safe: a zero Stats yields the zero value for every field INFO
	// reports.
	Stats *Stats
}

// Stats is the read-only snapshot of process and replication state INFO
// renders. The server package fills it in per dispatch from gopsutil,
// the replication leader/follower, and its connection registry.
type Stats struct {
	Role              string // "master" or "slave"
	ConnectedClients  int
	BlockedClients    int
	UsedMemoryBytes   uint64
	ProcessID         int
	UptimeSeconds     int64
	ConnectedSlaves   int
	MasterReplOffset  int64
	MasterHost        string
	SlaveReplOffset   int64
}
