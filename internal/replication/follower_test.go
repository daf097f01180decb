package replication

import (
	"net"
	"testing"
	"time"

	"github.com/nishisan-dev/redlet/internal/protocol"
)

// fakeLeader drives the server half of the handshake over a net.Pipe
// connection: reads each expected command and writes back the canned
// reply, then streams the snapshot and one propagated command.
func fakeLeader(t *testing.T, conn net.Conn) {
	t.Helper()
	fr := protocol.NewFrameReader(conn)

	mustRead := func(want string) {
		args, err := fr.ReadCommand()
		if err != nil {
			t.Errorf("fakeLeader: read command: %v", err)
			return
		}
		if len(args) == 0 || string(args[0]) != want {
			t.Errorf("fakeLeader: expected %s, got %v", want, args)
		}
	}

	mustRead("PING")
	conn.Write(protocol.Pong().Bytes())

	mustRead("REPLCONF")
	conn.Write(protocol.OK().Bytes())
	mustRead("REPLCONF")
	conn.Write(protocol.OK().Bytes())

	mustRead("PSYNC")
	conn.Write(protocol.FullResyncHeader("replid123", 0).Bytes())
	conn.Write(protocol.BulkPayloadHeader(len("snap")).Bytes())
	conn.Write([]byte("snap"))

	conn.Write(protocol.BulkStringArray([][]byte{[]byte("SET"), []byte("k"), []byte("v")}).Bytes())
}

func TestFollowerHandshakeAndStream(t *testing.T) {
	clientSide, serverSide := net.Pipe()
	defer clientSide.Close()
	defer serverSide.Close()

	resyncCh := make(chan struct {
		replID string
		offset int64
		snap   []byte
	}, 1)
	commandCh := make(chan [][]byte, 1)

	f := NewFollower("fake-addr", 7000,
		func(replID string, offset int64, snap []byte) error {
			resyncCh <- struct {
				replID string
				offset int64
				snap   []byte
			}{replID, offset, snap}
			return nil
		},
		func(args [][]byte) { commandCh <- args },
	)
	f.SetDialer(func(string) (net.Conn, error) { return clientSide, nil })

	go fakeLeader(t, serverSide)

	f.Start()
	defer f.Stop()

	select {
	case r := <-resyncCh:
		if r.replID != "replid123" || string(r.snap) != "snap" {
			t.Fatalf("unexpected resync data: %+v", r)
		}
	case <-time.After(2 * time.Second):
		t.Fatal("timed out waiting for FULLRESYNC")
	}

	select {
	case args := <-commandCh:
		if len(args) != 3 || string(args[0]) != "SET" {
			t.Fatalf("unexpected propagated command: %v", args)
		}
	case <-time.After(2 * time.Second):
		t.Fatal("timed out waiting for propagated command")
	}

	if f.State() != StateActive {
		t.Fatalf("expected StateActive, got %s", f.State())
	}
}
