package replication

import (
	"fmt"
	"net"
	"strconv"
	"strings"
	"sync"
	"sync/atomic"
	"time"

	"github.com/nishisan-dev/redlet/internal/protocol"
	"github.com/nishisan-dev/redlet/internal/resperr"
)

// Follower connection states, one per step of the PSYNC handshake. The
// current state is an atomic string so INFO can report it without
// touching the sync goroutine.
const (
	StateDisconnected = "disconnected"
	StateConnecting   = "connecting"
	StatePingSent     = "ping_sent"
	StateReplconfSent = "replconf_sent"
	StatePsyncSent    = "psync_sent"
	StateActive       = "active"
)

const (
	initialReconnectDelay = 500 * time.Millisecond
	maxReconnectDelay     = 30 * time.Second
)

// Follower is the outbound replica side: it dials a leader, performs the
// PING→REPLCONF→PSYNC→FULLRESYNC handshake, applies the bootstrap
// snapshot, and then streams propagated commands to OnCommand until the
// connection drops, at which point it reconnects with backoff.
type Follower struct {
	leaderAddr   string
	listenPort   int
	dial         func(addr string) (net.Conn, error)
	onFullResync func(replID string, offset int64, payload []byte) error
	onCommand    func(args [][]byte)

	offset atomic.Int64

	state atomic.Value // string

	connMu sync.Mutex
	conn   net.Conn

	stopCh chan struct{}
	stopMu sync.Once
	wg     sync.WaitGroup
}

// NewFollower creates a replica client targeting leaderAddr. It dials with
// net.Dial("tcp", addr); SetDialer replaces that dialer (TLS, tests).
func NewFollower(leaderAddr string, listenPort int, onFullResync func(string, int64, []byte) error, onCommand func([][]byte)) *Follower {
	f := &Follower{
		leaderAddr:   leaderAddr,
		listenPort:   listenPort,
		dial:         func(addr string) (net.Conn, error) { return net.Dial("tcp", addr) },
		onFullResync: onFullResync,
		onCommand:    onCommand,
		stopCh:       make(chan struct{}),
	}
	f.state.Store(StateDisconnected)
	return f
}

// SetDialer overrides how the follower opens its connection to the
// leader, for tests that substitute net.Pipe.
func (f *Follower) SetDialer(dial func(addr string) (net.Conn, error)) {
	f.dial = dial
}

func (f *Follower) State() string { return f.state.Load().(string) }

// Offset returns the follower's locally tracked replication offset, which
// advances by the encoded byte length of every frame received in the
// ACTIVE state — the same accounting the leader uses in Propagate, so an
// ACK sent back carries a directly comparable value.
func (f *Follower) Offset() int64 { return f.offset.Load() }

// Start launches the reconnect-and-sync goroutine.
func (f *Follower) Start() {
	f.wg.Add(1)
	go f.run()
}

// Stop closes the connection and waits for the goroutine to exit.
func (f *Follower) Stop() {
	f.stopMu.Do(func() { close(f.stopCh) })
	f.connMu.Lock()
	if f.conn != nil {
		f.conn.Close()
	}
	f.connMu.Unlock()
	f.wg.Wait()
	f.state.Store(StateDisconnected)
}

func (f *Follower) run() {
	defer f.wg.Done()
	delay := initialReconnectDelay

	for {
		select {
		case <-f.stopCh:
			return
		default:
		}

		if err := f.syncOnce(); err != nil {
			f.state.Store(StateDisconnected)
			select {
			case <-f.stopCh:
				return
			case <-time.After(delay):
			}
			delay *= 2
			if delay > maxReconnectDelay {
				delay = maxReconnectDelay
			}
			continue
		}
		delay = initialReconnectDelay
	}
}

// syncOnce performs one full handshake-then-stream cycle; it returns when
// the connection drops or a protocol error occurs, causing run to
// reconnect.
func (f *Follower) syncOnce() error {
	f.state.Store(StateConnecting)
	conn, err := f.dial(f.leaderAddr)
	if err != nil {
		return err
	}
	f.connMu.Lock()
	f.conn = conn
	f.connMu.Unlock()
	defer func() {
		conn.Close()
		f.connMu.Lock()
		f.conn = nil
		f.connMu.Unlock()
	}()

	fr := protocol.NewFrameReader(conn)

	f.state.Store(StatePingSent)
	if err := writeCommand(conn, "PING"); err != nil {
		return err
	}
	if _, _, err := fr.ReadReplicationFrame(); err != nil {
		return err
	}

	f.state.Store(StateReplconfSent)
	if err := writeCommand(conn, "REPLCONF", "listening-port", fmt.Sprintf("%d", f.listenPort)); err != nil {
		return err
	}
	if _, _, err := fr.ReadReplicationFrame(); err != nil {
		return err
	}
	if err := writeCommand(conn, "REPLCONF", "capa", "eof"); err != nil {
		return err
	}
	if _, _, err := fr.ReadReplicationFrame(); err != nil {
		return err
	}

	f.state.Store(StatePsyncSent)
	if err := writeCommand(conn, "PSYNC", "?", "-1"); err != nil {
		return err
	}
	kind, payload, err := fr.ReadReplicationFrame()
	if err != nil {
		return err
	}
	replID, offset, err := parseFullResync(kind, payload)
	if err != nil {
		return err
	}

	bulkLen, err := fr.ReadBulkHeader()
	if err != nil {
		return err
	}
	snapshot, err := fr.ReadBulkPayload(bulkLen)
	if err != nil {
		return err
	}
	if f.onFullResync != nil {
		if err := f.onFullResync(replID, offset, snapshot); err != nil {
			return err
		}
	}

	f.offset.Store(offset)
	f.state.Store(StateActive)
	for {
		select {
		case <-f.stopCh:
			return nil
		default:
		}
		args, err := fr.ReadCommand()
		if err != nil {
			return err
		}
		f.offset.Add(int64(len(protocol.BulkStringArray(args).Bytes())))

		if len(args) >= 2 && strings.EqualFold(string(args[0]), "REPLCONF") && strings.EqualFold(string(args[1]), "GETACK") {
			if err := writeCommand(conn, "REPLCONF", "ACK", strconv.FormatInt(f.offset.Load(), 10)); err != nil {
				return err
			}
			continue
		}

		if f.onCommand != nil {
			f.onCommand(args)
		}
	}
}

// parseFullResync parses a "+FULLRESYNC <replid> <offset>" reply frame
// (kind already stripped by ReadReplicationFrame).
func parseFullResync(kind byte, payload []byte) (string, int64, error) {
	if kind != '+' {
		return "", 0, resperr.New(resperr.ReplicationProtocol, "expected +FULLRESYNC reply")
	}
	fields := strings.Fields(string(payload))
	if len(fields) != 3 || fields[0] != "FULLRESYNC" {
		return "", 0, resperr.New(resperr.ReplicationProtocol, "malformed FULLRESYNC reply")
	}
	offset, err := strconv.ParseInt(fields[2], 10, 64)
	if err != nil {
		return "", 0, resperr.New(resperr.ReplicationProtocol, "malformed FULLRESYNC offset")
	}
	return fields[1], offset, nil
}

func writeCommand(conn net.Conn, parts ...string) error {
	items := make([][]byte, len(parts))
	for i, p := range parts {
		items[i] = []byte(p)
	}
	_, err := conn.Write(protocol.BulkStringArray(items).Bytes())
	return err
}
