package server

import (
	"context"
	"errors"
	"io"
	"net"
	"sync/atomic"

	"github.com/nishisan-dev/redlet/internal/protocol"
)

// conn is one accepted client connection. The reader goroutine owns nc's
// read side; all writes happen on the engine goroutine, so no write lock
// is needed. The fields below the netConn are engine-owned state.
type conn struct {
	id       uint64
	nc       net.Conn
	throttle *commandThrottle

	// resume carries one permit per fully-replied command: the reader
	// blocks on it after posting a command, which keeps a blocked
	// connection (BLPOP, XREAD BLOCK) from reading ahead: read interest
	// is effectively off while blocked.
	resume chan struct{}

	closed atomic.Bool

	// Engine-owned state (never touched by the reader goroutine).
	isReplica     bool
	inDispatch    bool
	awaitingAsync bool
	pendingAsync  []protocol.Frame
}

func (c *conn) signalResume() {
	select {
	case c.resume <- struct{}{}:
	default:
	}
}

// writeFrame writes f to the peer; zero-length frames (REPLCONF ACK's
// deliberate non-reply) are skipped. A write failure closes the
// connection, and the reader goroutine's next read runs the cleanup path.
func (c *conn) writeFrame(f protocol.Frame) {
	b := f.Bytes()
	if len(b) == 0 {
		return
	}
	if _, err := c.nc.Write(b); err != nil {
		c.close()
	}
}

// writeRaw is the follower-registry write hook: raw propagated frames,
// reporting the error so the leader can drop a dead follower.
func (c *conn) writeRaw(b []byte) error {
	if c.closed.Load() {
		return net.ErrClosed
	}
	_, err := c.nc.Write(b)
	if err != nil {
		c.close()
	}
	return err
}

func (c *conn) close() {
	if c.closed.CompareAndSwap(false, true) {
		c.nc.Close()
	}
}

// handleConnection runs the reader loop for one accepted connection:
// parse a frame, hand it to the engine, wait for the reply permit,
// repeat. Frame errors and EOF both land in the cleanup path, which
// cascades into every engine-side index holding this connection.
func (s *Server) handleConnection(ctx context.Context, nc net.Conn) {
	s.connMu.Lock()
	s.nextConnID++
	id := s.nextConnID
	s.connMu.Unlock()

	c := &conn{
		id:       id,
		nc:       nc,
		resume:   make(chan struct{}, 1),
		throttle: newCommandThrottle(s.cfg.RateLimit),
	}

	if !s.post(ctx, func() { s.conns[id] = c }) {
		nc.Close()
		return
	}

	logger := s.logger.With("conn_id", id, "remote", nc.RemoteAddr().String())
	logger.Debug("connection accepted")

	defer func() {
		c.close()
		// On shutdown the engine is gone too, so a dropped cleanup task
		// is harmless.
		s.post(ctx, func() { s.cleanupConnection(c) })
	}()

	fr := protocol.NewFrameReader(nc)
	for {
		if err := c.throttle.Wait(ctx); err != nil {
			return
		}

		args, err := fr.ReadCommand()
		if err != nil {
			if !errors.Is(err, io.EOF) && !c.closed.Load() {
				logger.Debug("closing connection", "error", err)
			}
			return
		}
		if len(args) == 0 {
			continue
		}

		if !s.post(ctx, func() { s.execute(c, args) }) {
			return
		}
		select {
		case <-c.resume:
		case <-ctx.Done():
			return
		}
	}
}

// cleanupConnection runs on the engine goroutine and removes every trace
// of c: blocking registration, watched transaction, subscriptions, auth
// session, and (for a replica) the follower registry entry.
func (s *Server) cleanupConnection(c *conn) {
	delete(s.conns, c.id)
	s.coord.RemoveConnection(c.id)
	s.txn.RemoveConnection(c.id)
	s.bus.RemoveConnection(c.id)
	s.sessions.Remove(c.id)
	s.leader.RemoveWait(c.id)
	if c.isReplica {
		s.leader.RemoveFollower(c.id)
	}
}
