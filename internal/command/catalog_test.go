package command

import (
	"testing"

	"github.com/nishisan-dev/redlet/internal/blocking"
	"github.com/nishisan-dev/redlet/internal/protocol"
	"github.com/nishisan-dev/redlet/internal/pubsub"
	"github.com/nishisan-dev/redlet/internal/store"
	"github.com/nishisan-dev/redlet/internal/txn"
)

// newTestContext wires a fresh keyspace/coordinator/machine/bus together
// the way the server's engine does, with a fixed clock for deterministic
// expiry/stream-id assertions.
func newTestContext(connID uint64, nowMs int64) (*ExecContext, *Catalog, *[]protocol.Frame) {
	ks := store.New()
	coord := blocking.New()
	ks.AddObserver(coord)
	machine := txn.New()
	ks.AddObserver(machine)
	var delivered []protocol.Frame
	var async []protocol.Frame
	bus := pubsub.New(func(connID uint64, kind, pattern, channel string, payload []byte) {
		delivered = append(delivered, protocol.BulkString(payload))
	})
	catalog := NewCatalog()
	ctx := &ExecContext{
		ConnID:   connID,
		Catalog:  catalog,
		Store:    ks,
		Blocking: coord,
		Txn:      machine,
		PubSub:   bus,
		Config:   NewConfig(),
		NowMs:    func() int64 { return nowMs },
		ReplyAsync: func(f protocol.Frame) {
			async = append(async, f)
		},
	}
	return ctx, catalog, &async
}

func mustDispatch(t *testing.T, ctx *ExecContext, catalog *Catalog, name string, args ...string) Result {
	t.Helper()
	bargs := make([][]byte, len(args))
	for i, a := range args {
		bargs[i] = []byte(a)
	}
	return Dispatch(ctx, catalog, name, bargs)
}

func TestSetGetRoundTrip(t *testing.T) {
	ctx, catalog, _ := newTestContext(1, 1000)
	res := mustDispatch(t, ctx, catalog, "SET", "k", "v")
	if res.Err != nil {
		t.Fatalf("unexpected error: %v", res.Err)
	}
	res = mustDispatch(t, ctx, catalog, "GET", "k")
	if res.Err != nil || string(res.Frame.Bytes()) != "$1\r\nv\r\n" {
		t.Fatalf("unexpected GET result: %+v", res)
	}
}

func TestUnknownCommandErrors(t *testing.T) {
	ctx, catalog, _ := newTestContext(1, 0)
	res := mustDispatch(t, ctx, catalog, "BOGUS")
	if res.Err == nil {
		t.Fatalf("expected error for unknown command")
	}
}

func TestWrongArityErrors(t *testing.T) {
	ctx, catalog, _ := newTestContext(1, 0)
	res := mustDispatch(t, ctx, catalog, "GET")
	if res.Err == nil {
		t.Fatalf("expected arity error")
	}
}

func TestBLPopImmediateData(t *testing.T) {
	ctx, catalog, _ := newTestContext(1, 0)
	mustDispatch(t, ctx, catalog, "RPUSH", "q", "a")
	res := mustDispatch(t, ctx, catalog, "BLPOP", "q", "0")
	if res.Err != nil || res.Suspended {
		t.Fatalf("expected immediate reply, got %+v", res)
	}
}

func TestBLPopSuspendsThenWakesOnPush(t *testing.T) {
	ctx1, catalog, async1 := newTestContext(1, 0)
	res := mustDispatch(t, ctx1, catalog, "BLPOP", "q", "0")
	if !res.Suspended {
		t.Fatalf("expected suspension with no data present")
	}
	if !ctx1.Blocking.Active(1) {
		t.Fatalf("expected connection 1 registered as waiter")
	}

	// A push through the same context lands in the shared keyspace and
	// wakes the registered waiter.
	mustDispatch(t, ctx1, catalog, "RPUSH", "q", "a")

	if len(*async1) != 1 {
		t.Fatalf("expected exactly one async reply, got %d", len(*async1))
	}
	if ctx1.Blocking.Active(1) {
		t.Fatalf("expected waiter removed after wake")
	}
}

func TestMultiExecQueuesAndRuns(t *testing.T) {
	ctx, catalog, _ := newTestContext(1, 0)
	mustDispatch(t, ctx, catalog, "MULTI")
	res := mustDispatch(t, ctx, catalog, "SET", "k", "1")
	if string(res.Frame.Bytes()) != "+QUEUED\r\n" {
		t.Fatalf("expected QUEUED reply inside MULTI, got %q", res.Frame.Bytes())
	}
	mustDispatch(t, ctx, catalog, "INCR", "k")
	res = mustDispatch(t, ctx, catalog, "EXEC")
	if res.Err != nil {
		t.Fatalf("unexpected EXEC error: %v", res.Err)
	}
}

func TestWatchInvalidatesExec(t *testing.T) {
	ctx, catalog, _ := newTestContext(1, 0)
	mustDispatch(t, ctx, catalog, "SET", "k", "1")
	mustDispatch(t, ctx, catalog, "WATCH", "k")
	mustDispatch(t, ctx, catalog, "MULTI")
	mustDispatch(t, ctx, catalog, "GET", "k")

	// A second "connection" sharing the same keyspace writes the watched
	// key before EXEC.
	ctx2, _, _ := newTestContext(2, 0)
	ctx2.Store = ctx.Store
	ctx2.Txn = ctx.Txn
	mustDispatch(t, ctx2, catalog, "SET", "k", "2")

	res := mustDispatch(t, ctx, catalog, "EXEC")
	if res.Err != nil {
		t.Fatalf("unexpected error: %v", res.Err)
	}
	if string(res.Frame.Bytes()) != "*-1\r\n" {
		t.Fatalf("expected nil array on invalidated EXEC, got %q", res.Frame.Bytes())
	}
}

func TestPublishDeliversToSubscriber(t *testing.T) {
	ctx, catalog, _ := newTestContext(1, 0)
	mustDispatch(t, ctx, catalog, "SUBSCRIBE", "news")
	res := mustDispatch(t, ctx, catalog, "PUBLISH", "news", "hello")
	if res.Err != nil {
		t.Fatalf("unexpected error: %v", res.Err)
	}
	if string(res.Frame.Bytes()) != ":1\r\n" {
		t.Fatalf("expected 1 subscriber delivered, got %q", res.Frame.Bytes())
	}
}

func TestSubscriberModeRestrictsCommands(t *testing.T) {
	ctx, catalog, _ := newTestContext(1, 0)
	mustDispatch(t, ctx, catalog, "SUBSCRIBE", "news")
	res := mustDispatch(t, ctx, catalog, "GET", "k")
	if res.Err == nil {
		t.Fatalf("expected GET to be rejected in subscriber mode")
	}
}

func TestXAddXRangeRoundTrip(t *testing.T) {
	ctx, catalog, _ := newTestContext(1, 5000)
	res := mustDispatch(t, ctx, catalog, "XADD", "s", "*", "field", "value")
	if res.Err != nil {
		t.Fatalf("unexpected error: %v", res.Err)
	}
	res = mustDispatch(t, ctx, catalog, "XRANGE", "s", "-", "+")
	if res.Err != nil {
		t.Fatalf("unexpected error: %v", res.Err)
	}
}
