// Package server glues the engine together: the TCP accept loop, the
// per-connection reader goroutines, and the single engine goroutine that
// owns every mutable structure (keyspace, blocking coordinator,
// transaction machine, pub/sub bus, replication leader registry).
package server

import (
	"context"
	"crypto/tls"
	"fmt"
	"log/slog"
	"net"
	"os"
	"sync"
	"time"

	"github.com/robfig/cron/v3"

	"github.com/nishisan-dev/redlet/internal/auth"
	"github.com/nishisan-dev/redlet/internal/blocking"
	"github.com/nishisan-dev/redlet/internal/command"
	"github.com/nishisan-dev/redlet/internal/config"
	"github.com/nishisan-dev/redlet/internal/metrics"
	"github.com/nishisan-dev/redlet/internal/pki"
	"github.com/nishisan-dev/redlet/internal/protocol"
	"github.com/nishisan-dev/redlet/internal/pubsub"
	"github.com/nishisan-dev/redlet/internal/replication"
	"github.com/nishisan-dev/redlet/internal/snapshotstore"
	"github.com/nishisan-dev/redlet/internal/store"
	"github.com/nishisan-dev/redlet/internal/txn"
)

// taskQueueDepth bounds the engine's MPSC task queue. Reader goroutines
// block on a full queue, which is the engine's natural backpressure.
const taskQueueDepth = 1024

// expirySweepBatch caps how many expired keys one scheduler tick removes.
const expirySweepBatch = 20

// SnapshotStore is the pluggable write-intent/bootstrap-load hook pair.
// Satisfied by snapshotstore.BBoltStore and snapshotstore.S3Store.
type SnapshotStore interface {
	Save([]store.Snapshot) error
	Load() ([]store.Snapshot, bool, error)
	Close() error
}

// Server is one redlet instance, leader or follower.
type Server struct {
	cfg    *config.ServerConfig
	logger *slog.Logger

	keyspace *store.Keyspace
	coord    *blocking.Coordinator
	txn      *txn.Machine
	bus      *pubsub.Bus
	catalog  *command.Catalog
	cmdCfg   *command.Config
	leader   *replication.Leader
	follower *replication.Follower
	verifier *auth.Verifier
	sessions *auth.Sessions
	metrics  *metrics.Collector
	monitor  *processMonitor

	snapshots SnapshotStore

	tasks      chan func()
	conns      map[uint64]*conn
	nextConnID uint64
	connMu     sync.Mutex // guards nextConnID only; conns is engine-owned

	startedAt time.Time
}

// New wires a Server from its validated configuration. No goroutines are
// started and no sockets are opened until Run/RunWithListener.
func New(cfg *config.ServerConfig, logger *slog.Logger) (*Server, error) {
	s := &Server{
		cfg:      cfg,
		logger:   logger,
		keyspace: store.New(),
		coord:    blocking.New(),
		txn:      txn.New(),
		catalog:  command.NewCatalog(),
		cmdCfg:   command.NewConfig(),
		sessions: auth.NewSessions(),
		metrics:  metrics.New(),
		monitor:  newProcessMonitor(logger),
		tasks:    make(chan func(), taskQueueDepth),
		conns:    make(map[uint64]*conn),
	}

	s.bus = pubsub.New(s.deliverPubSub)
	s.cmdCfg.Set("port", fmt.Sprintf("%d", cfg.Replication.ListenPort))

	if cfg.Auth.SecretHash != "" {
		s.verifier = auth.NewVerifier(cfg.Auth.SecretHash)
		// CONFIG GET reports presence only; the hash never leaves the
		// config layer.
		s.cmdCfg.Set("requirepass", "***")
	}

	s.leader = replication.NewLeader(newReplicationID(), func() ([]byte, error) {
		return snapshotstore.Encode(snapshotstore.CompressionGzip, s.keyspace.Dump())
	})

	// Mutation observers, in order: waiters wake before watched
	// transactions invalidate, and metrics observe last.
	s.keyspace.AddObserver(s.coord)
	s.keyspace.AddObserver(s.txn)
	s.keyspace.AddObserver(s.metrics)

	st, err := openSnapshotStore(cfg)
	if err != nil {
		return nil, err
	}
	s.snapshots = st

	return s, nil
}

// Metrics exposes the Prometheus collector for an embedder to serve; the
// core itself never starts an HTTP listener.
func (s *Server) Metrics() *metrics.Collector { return s.metrics }

// Run opens the configured listener (TLS when configured) and serves
// until ctx is cancelled.
func (s *Server) Run(ctx context.Context) error {
	var ln net.Listener
	var err error
	if s.cfg.TLS.CACert != "" {
		tlsCfg, terr := pki.NewServerTLSConfig(s.cfg.TLS.CACert, s.cfg.TLS.ServerCert, s.cfg.TLS.ServerKey)
		if terr != nil {
			return fmt.Errorf("configuring TLS: %w", terr)
		}
		ln, err = tls.Listen("tcp", s.cfg.Server.Listen, tlsCfg)
	} else {
		ln, err = net.Listen("tcp", s.cfg.Server.Listen)
	}
	if err != nil {
		return fmt.Errorf("listening on %s: %w", s.cfg.Server.Listen, err)
	}
	defer ln.Close()
	return s.RunWithListener(ctx, ln)
}

// RunWithListener serves on an already-open listener (used by tests with
// a loopback listener on port 0) and blocks until ctx is cancelled.
func (s *Server) RunWithListener(ctx context.Context, ln net.Listener) error {
	s.startedAt = time.Now()
	s.logger.Info("server listening", "address", ln.Addr().String(), "role", s.role())

	engineDone := make(chan struct{})
	go s.runEngine(ctx, engineDone)
	go s.runScheduler(ctx)
	s.monitor.Start()
	defer s.monitor.Stop()

	if s.snapshots != nil {
		s.bootstrapFromSnapshot()
		cronStop := s.startSnapshotCron(ctx)
		defer cronStop()
	}
	defer func() {
		if s.snapshots != nil {
			s.snapshots.Close()
		}
	}()

	if s.cfg.Replication.ReplicaOf != "" {
		s.startFollower()
		defer s.follower.Stop()
	}

	go func() {
		<-ctx.Done()
		s.logger.Info("shutting down server")
		ln.Close()
	}()
	defer func() { <-engineDone }()

	// Accept loop with backoff to prevent a hot loop on consecutive
	// errors.
	consecutiveErrors := 0
	for {
		nc, err := ln.Accept()
		if err != nil {
			select {
			case <-ctx.Done():
				s.logger.Info("server shutdown complete")
				return nil
			default:
				consecutiveErrors++
				s.logger.Error("accepting connection", "error", err, "consecutive_errors", consecutiveErrors)
				if consecutiveErrors > 5 {
					delay := time.Duration(consecutiveErrors) * 100 * time.Millisecond
					if delay > 5*time.Second {
						delay = 5 * time.Second
					}
					time.Sleep(delay)
				}
				continue
			}
		}

		consecutiveErrors = 0
		go s.handleConnection(ctx, nc)
	}
}

func (s *Server) role() string {
	if s.cfg.Replication.ReplicaOf != "" {
		return "slave"
	}
	return "master"
}

// post enqueues fn onto the engine's task queue, giving up when ctx is
// already cancelled.
func (s *Server) post(ctx context.Context, fn func()) bool {
	select {
	case s.tasks <- fn:
		return true
	case <-ctx.Done():
		return false
	}
}

// deliverPubSub is the bus's delivery callback; it runs on the engine
// goroutine, so writing to the target connection directly is safe.
func (s *Server) deliverPubSub(connID uint64, kind, pattern, channel string, payload []byte) {
	c, ok := s.conns[connID]
	if !ok {
		return
	}
	var frame protocol.Frame
	if kind == "pmessage" {
		frame = protocol.Array(
			protocol.BulkString([]byte(kind)),
			protocol.BulkString([]byte(pattern)),
			protocol.BulkString([]byte(channel)),
			protocol.BulkString(payload),
		)
	} else {
		frame = protocol.Array(
			protocol.BulkString([]byte(kind)),
			protocol.BulkString([]byte(channel)),
			protocol.BulkString(payload),
		)
	}
	c.writeFrame(frame)
}

// bootstrapFromSnapshot loads the most recent snapshot blob into the
// keyspace before the listener starts serving. Runs before the engine
// has any connections, so touching the keyspace directly is safe.
func (s *Server) bootstrapFromSnapshot() {
	snaps, ok, err := s.snapshots.Load()
	if err != nil {
		s.logger.Error("loading snapshot", "error", err)
		return
	}
	if !ok {
		s.logger.Info("no snapshot to bootstrap from")
		return
	}
	s.keyspace.Load(snaps)
	s.logger.Info("bootstrapped keyspace from snapshot", "keys", len(snaps))
}

// startSnapshotCron schedules the periodic write-intent hook: the dump
// happens on the engine goroutine, the Save on the cron goroutine so a
// slow backend never stalls command dispatch.
func (s *Server) startSnapshotCron(ctx context.Context) func() {
	c := cron.New()
	_, err := c.AddFunc(s.cfg.Snapshot.Schedule, func() {
		snapCh := make(chan []store.Snapshot, 1)
		if !s.post(ctx, func() { snapCh <- s.keyspace.Dump() }) {
			return
		}
		select {
		case snaps := <-snapCh:
			if err := s.snapshots.Save(snaps); err != nil {
				s.logger.Error("saving snapshot", "error", err)
			} else {
				s.logger.Info("snapshot saved", "keys", len(snaps))
			}
		case <-ctx.Done():
		}
	})
	if err != nil {
		s.logger.Error("scheduling snapshot", "error", err, "schedule", s.cfg.Snapshot.Schedule)
		return func() {}
	}
	c.Start()
	return func() { c.Stop() }
}

// startFollower boots the outbound replication client: FULLRESYNC
// payloads and propagated commands are posted onto the engine queue so
// the keyspace is still only ever touched by the engine goroutine.
func (s *Server) startFollower() {
	s.follower = replication.NewFollower(
		s.cfg.Replication.ReplicaOf,
		s.cfg.Replication.ListenPort,
		func(replID string, offset int64, payload []byte) error {
			snaps, err := snapshotstore.Decode(payload)
			if err != nil {
				return fmt.Errorf("decoding FULLRESYNC snapshot: %w", err)
			}
			s.tasks <- func() {
				s.keyspace.Load(snaps)
				s.logger.Info("applied FULLRESYNC snapshot", "leader_repl_id", replID, "offset", offset, "keys", len(snaps))
			}
			return nil
		},
		func(args [][]byte) {
			s.tasks <- func() { s.executePropagated(args) }
		},
	)
	if s.cfg.TLS.CACert != "" {
		// A TLS-enabled deployment runs its replication links over the
		// same mTLS material: the follower presents this instance's
		// certificate as its client certificate.
		tlsCfg, err := pki.NewClientTLSConfig(s.cfg.TLS.CACert, s.cfg.TLS.ServerCert, s.cfg.TLS.ServerKey)
		if err != nil {
			s.logger.Error("configuring replication TLS", "error", err)
		} else {
			s.follower.SetDialer(func(addr string) (net.Conn, error) {
				return tls.Dial("tcp", addr, tlsCfg)
			})
		}
	}
	s.follower.Start()
}

func openSnapshotStore(cfg *config.ServerConfig) (SnapshotStore, error) {
	switch cfg.Snapshot.Backend {
	case "bbolt":
		st, err := snapshotstore.OpenBBoltStore(cfg.Snapshot.BBolt.Path)
		if err != nil {
			return nil, err
		}
		return st, nil
	case "s3":
		st, err := snapshotstore.OpenS3Store(
			context.Background(),
			cfg.Snapshot.S3.Bucket,
			cfg.Snapshot.S3.Region,
			cfg.Snapshot.S3.Prefix,
			cfg.Snapshot.S3.AccessKey,
			cfg.Snapshot.S3.SecretKey,
		)
		if err != nil {
			return nil, err
		}
		return st, nil
	default:
		return nil, nil
	}
}

// newReplicationID builds the 40-hex-char replication id announced in
// FULLRESYNC headers.
func newReplicationID() string {
	return fmt.Sprintf("%016x%016x%08x", time.Now().UnixNano(), os.Getpid(), uint32(time.Now().Unix()))
}
