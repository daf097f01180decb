package server

import (
	"context"
	"errors"
	"os"
	"strings"
	"time"

	"github.com/nishisan-dev/redlet/internal/command"
	"github.com/nishisan-dev/redlet/internal/protocol"
	"github.com/nishisan-dev/redlet/internal/resperr"
)

// runEngine is the single-mutator loop: every keyspace mutation, waiter
// wake, transaction transition, and reply runs here, in the order tasks
// were queued. This is the channel-actor rendering of the "one I/O thread
// owns the data" discipline.
func (s *Server) runEngine(ctx context.Context, done chan<- struct{}) {
	defer close(done)
	for {
		select {
		case <-ctx.Done():
			return
		case fn := <-s.tasks:
			fn()
		}
	}
}

// runScheduler posts the fixed-cadence sweep onto the engine queue:
// expired keys, blocking deadlines, pending-WAIT deadlines, and the
// REPLCONF GETACK broadcast that keeps WAIT's ack counts fresh.
func (s *Server) runScheduler(ctx context.Context) {
	ticker := time.NewTicker(s.cfg.Scheduler.SweepInterval)
	defer ticker.Stop()
	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			s.post(ctx, func() {
				s.keyspace.SweepExpired(expirySweepBatch)
				now := time.Now()
				s.coord.SweepExpired(now)
				s.coord.Drain()
				s.leader.SweepExpiredWaits(now)
				s.leader.RequestAcks()
			})
		}
	}
}

// execContext builds the per-dispatch environment for c. ReplyAsync
// frames produced while the handler is still running (SUBSCRIBE's extra
// confirmations) are buffered so they land after the direct reply;
// frames produced later (a blocking wake or timeout) write through
// immediately and hand the reader its resume permit.
func (s *Server) execContext(c *conn) *command.ExecContext {
	return &command.ExecContext{
		ConnID:   c.id,
		Catalog:  s.catalog,
		Store:    s.keyspace,
		Blocking: s.coord,
		Txn:      s.txn,
		PubSub:   s.bus,
		Config:   s.cmdCfg,
		Repl:     s.leader,
		Verifier: s.verifier,
		Auth:     s.sessions,
		NowMs:    func() int64 { return time.Now().UnixMilli() },
		Propagate: func(name string, args [][]byte) {
			s.leader.Propagate(name, args)
		},
		ReplyAsync: func(f protocol.Frame) {
			if c.inDispatch {
				c.pendingAsync = append(c.pendingAsync, f)
				return
			}
			c.writeFrame(f)
			if c.awaitingAsync {
				c.awaitingAsync = false
				c.signalResume()
			}
		},
		Stats: s.stats(),
	}
}

// execute dispatches one parsed command frame for c and writes the reply.
// Runs on the engine goroutine.
func (s *Server) execute(c *conn, args [][]byte) {
	name := string(args[0])

	// PSYNC promotes the connection to a follower; the registry needs
	// the write hook before the handler builds the FULLRESYNC payload.
	if strings.EqualFold(name, "PSYNC") {
		c.isReplica = true
		s.leader.RegisterFollower(c.id, c.writeRaw)
	}

	ec := s.execContext(c)
	c.inDispatch = true
	c.pendingAsync = nil
	res := command.Dispatch(ec, s.catalog, name, args[1:])
	c.inDispatch = false

	switch {
	case res.Err != nil:
		c.writeFrame(protocol.Err(errorReply(res.Err)))
		var re *resperr.Error
		if errors.As(res.Err, &re) && re.IsFatal() {
			c.close()
		}
		c.signalResume()
	case res.Suspended:
		// The waiter's Resolve or Timeout will reply via ReplyAsync and
		// release the reader then.
		c.awaitingAsync = true
	default:
		c.writeFrame(res.Frame)
		c.signalResume()
	}

	for _, f := range c.pendingAsync {
		c.writeFrame(f)
	}
	c.pendingAsync = nil
}

// executePropagated applies a command received from the leader: no reply,
// no queueing, no subscriber gating, just the handler, plus fan-out to
// this node's own followers so chained replication keeps working.
func (s *Server) executePropagated(args [][]byte) {
	if len(args) == 0 {
		return
	}
	name := strings.ToUpper(string(args[0]))
	spec, ok := s.catalog.Lookup(name)
	if !ok {
		s.logger.Warn("propagated unknown command", "command", name)
		return
	}

	ec := s.execContext(&conn{id: 0, resume: make(chan struct{}, 1)})
	ec.ReplyAsync = func(protocol.Frame) {}

	res := spec.Handler(ec, args[1:])
	if res.Err != nil {
		s.logger.Warn("propagated command failed", "command", name, "error", res.Err)
		return
	}
	if res.Suspended {
		// A replayed blocking command that found nothing to consume has
		// no client to wake; drop the registration instead of leaking it.
		s.coord.RemoveConnection(0)
		return
	}
	if spec.Flags&command.FlagWrite != 0 {
		if res.Rewrite != nil {
			s.leader.Propagate(strings.ToUpper(string(res.Rewrite[0])), res.Rewrite[1:])
		} else {
			s.leader.Propagate(name, args[1:])
		}
	}
	// Applied writes can make local waiters eligible too.
	s.coord.Drain()
}

// stats snapshots the INFO inputs. Runs on the engine goroutine.
func (s *Server) stats() *command.Stats {
	st := &command.Stats{
		Role:             s.role(),
		ConnectedClients: len(s.conns),
		BlockedClients:   s.coord.Count(),
		UsedMemoryBytes:  s.monitor.RSSBytes(),
		ProcessID:        os.Getpid(),
		UptimeSeconds:    int64(time.Since(s.startedAt).Seconds()),
		ConnectedSlaves:  s.leader.FollowerCount(),
		MasterReplOffset: s.leader.Offset(),
	}
	if s.follower != nil {
		st.MasterHost = s.cfg.Replication.ReplicaOf
		st.SlaveReplOffset = s.follower.Offset()
	}
	return st
}

func errorReply(err error) string {
	if re, ok := err.(interface{ Reply() string }); ok {
		return re.Reply()
	}
	return "ERR " + err.Error()
}
