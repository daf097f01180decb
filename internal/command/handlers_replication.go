package command

import (
	"strconv"
	"time"

	"github.com/nishisan-dev/redlet/internal/protocol"
	"github.com/nishisan-dev/redlet/internal/resperr"
)

func (c *Catalog) registerReplication() {
	c.register(&Spec{Name: "REPLCONF", Arity: -1, Flags: FlagReplication | FlagAdmin, Handler: handleReplconf})
	c.register(&Spec{Name: "PSYNC", Arity: 3, Flags: FlagReplication | FlagAdmin, Handler: handlePsync})
	c.register(&Spec{Name: "WAIT", Arity: 3, Flags: FlagAdmin, Handler: handleWait})
}

func handleReplconf(ctx *ExecContext, args [][]byte) Result {
	if ctx.Repl == nil {
		return Reply(protocol.OK())
	}
	frame, err := ctx.Repl.HandleReplconf(ctx.ConnID, args)
	if err != nil {
		return Fail(err)
	}
	return Reply(frame)
}

// handlePsync replies with one Raw frame holding the FULLRESYNC header,
// the bulk-payload length header and the raw snapshot payload (no trailing
// CRLF): since Result only carries a Frame, combining them here makes the
// connection writer send all three back to back with nothing in between.
func handlePsync(ctx *ExecContext, args [][]byte) Result {
	if ctx.Repl == nil {
		return Fail(resperr.New(resperr.ReplicationProtocol, "replication is not enabled"))
	}
	header, payload, err := ctx.Repl.HandlePsync(ctx.ConnID)
	if err != nil {
		return Fail(err)
	}
	combined := append(append([]byte(nil), header.Bytes()...), protocol.BulkPayloadHeader(len(payload)).Bytes()...)
	combined = append(combined, payload...)
	return Reply(protocol.Raw(combined))
}

// handleWait suspends the connection the same way a blocking pop does:
// when the target ack count is not already met, the pending wait's
// resolve callback replies via ReplyAsync once enough REPLCONF ACKs land
// or the deadline sweep fires. A timeout of 0 waits indefinitely.
func handleWait(ctx *ExecContext, args [][]byte) Result {
	numReplicas, err := strconv.Atoi(string(args[0]))
	if err != nil {
		return Fail(resperr.ErrNotInteger)
	}
	timeoutMs, err := strconv.ParseInt(string(args[1]), 10, 64)
	if err != nil || timeoutMs < 0 {
		return Fail(resperr.ErrNotInteger)
	}
	if ctx.Repl == nil {
		return Reply(protocol.IntegerFrame(0))
	}
	now := time.UnixMilli(ctx.NowMs())
	acked, done := ctx.Repl.Wait(ctx.ConnID, numReplicas, time.Duration(timeoutMs)*time.Millisecond, now,
		func(n int) { ctx.ReplyAsync(protocol.IntegerFrame(int64(n))) })
	if done {
		return Reply(protocol.IntegerFrame(int64(acked)))
	}
	return Suspend()
}
