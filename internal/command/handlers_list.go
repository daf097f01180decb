package command

import (
	"strconv"
	"time"

	"github.com/nishisan-dev/redlet/internal/blocking"
	"github.com/nishisan-dev/redlet/internal/protocol"
	"github.com/nishisan-dev/redlet/internal/resperr"
)

func (c *Catalog) registerList() {
	c.register(&Spec{Name: "LPUSH", Arity: -3, Flags: FlagWrite, Handler: handleLPush})
	c.register(&Spec{Name: "RPUSH", Arity: -3, Flags: FlagWrite, Handler: handleRPush})
	c.register(&Spec{Name: "LPOP", Arity: 2, Flags: FlagWrite, Handler: handleLPop})
	c.register(&Spec{Name: "RPOP", Arity: 2, Flags: FlagWrite, Handler: handleRPop})
	c.register(&Spec{Name: "LLEN", Arity: 2, Flags: FlagReadonly, Handler: handleLLen})
	c.register(&Spec{Name: "LRANGE", Arity: 4, Flags: FlagReadonly, Handler: handleLRange})
	c.register(&Spec{Name: "BLPOP", Arity: -3, Flags: FlagWrite | FlagBlocking, Handler: handleBLPop})
	c.register(&Spec{Name: "BRPOP", Arity: -3, Flags: FlagWrite | FlagBlocking, Handler: handleBRPop})
}

// maxBlockSeconds caps a blocking command's timeout at one year.
const maxBlockSeconds = 365 * 24 * 60 * 60

// LPUSH/RPUSH's wake-up of any blocked BLPOP/BRPOP waiter happens via the
// blocking.Coordinator's registration as a store.Observer (DataAdded /
// KeyModified), not inline here.

func handleLPush(ctx *ExecContext, args [][]byte) Result {
	n, err := ctx.Store.LPush(string(args[0]), args[1:]...)
	if err != nil {
		return Fail(err)
	}
	return Reply(protocol.IntegerFrame(int64(n)))
}

func handleRPush(ctx *ExecContext, args [][]byte) Result {
	n, err := ctx.Store.RPush(string(args[0]), args[1:]...)
	if err != nil {
		return Fail(err)
	}
	return Reply(protocol.IntegerFrame(int64(n)))
}

func handleLPop(ctx *ExecContext, args [][]byte) Result {
	v, err := ctx.Store.LPop(string(args[0]))
	if err != nil {
		return Fail(err)
	}
	if v == nil {
		return Reply(protocol.CachedNilBulk())
	}
	return Reply(protocol.BulkString(v))
}

func handleRPop(ctx *ExecContext, args [][]byte) Result {
	v, err := ctx.Store.RPop(string(args[0]))
	if err != nil {
		return Fail(err)
	}
	if v == nil {
		return Reply(protocol.CachedNilBulk())
	}
	return Reply(protocol.BulkString(v))
}

func handleLLen(ctx *ExecContext, args [][]byte) Result {
	n, err := ctx.Store.LLen(string(args[0]))
	if err != nil {
		return Fail(err)
	}
	return Reply(protocol.IntegerFrame(int64(n)))
}

func handleLRange(ctx *ExecContext, args [][]byte) Result {
	start, err := strconv.Atoi(string(args[1]))
	if err != nil {
		return Fail(resperr.ErrNotInteger)
	}
	end, err := strconv.Atoi(string(args[2]))
	if err != nil {
		return Fail(resperr.ErrNotInteger)
	}
	items, err := ctx.Store.LRange(string(args[0]), start, end)
	if err != nil {
		return Fail(err)
	}
	return Reply(protocol.BulkStringArray(items))
}

func handleBLPop(ctx *ExecContext, args [][]byte) Result { return blockingPop(ctx, args, true) }
func handleBRPop(ctx *ExecContext, args [][]byte) Result { return blockingPop(ctx, args, false) }

// blockingPop implements BLPOP/BRPOP key [key ...] timeout: try every key
// immediately in order, and if none has data, register a waiter across all
// of them.
func blockingPop(ctx *ExecContext, args [][]byte, left bool) Result {
	keys := make([]string, len(args)-1)
	for i, k := range args[:len(args)-1] {
		keys[i] = string(k)
	}
	timeoutSecs, err := strconv.ParseFloat(string(args[len(args)-1]), 64)
	if err != nil || timeoutSecs < 0 || timeoutSecs > maxBlockSeconds {
		return Fail(resperr.ErrNotInteger)
	}

	popName := "RPOP"
	if left {
		popName = "LPOP"
	}
	pop := func(key string) ([]byte, error) {
		if left {
			return ctx.Store.LPop(key)
		}
		return ctx.Store.RPop(key)
	}

	for _, key := range keys {
		v, err := pop(key)
		if err != nil {
			return Fail(err)
		}
		if v != nil {
			// The consume replicates as its concrete single-key effect,
			// never as the blocking form.
			return ReplyRewrite(
				protocol.Array(protocol.BulkString([]byte(key)), protocol.BulkString(v)),
				[]byte(popName), []byte(key),
			)
		}
	}

	connID := ctx.ConnID
	w := &blocking.Waiter{
		ConnID: connID,
		Keys:   keys,
	}
	if timeoutSecs > 0 {
		w.HasDeadline = true
		w.Deadline = time.UnixMilli(ctx.NowMs()).Add(time.Duration(timeoutSecs * float64(time.Second)))
	}
	w.TryConsume = func(key string) (any, bool) {
		v, err := pop(key)
		if err != nil || v == nil {
			return nil, false
		}
		// A wake-time consume bypasses Dispatch, so it propagates its
		// effect here; the coordinator's deferred drain guarantees this
		// lands after the write that woke the waiter.
		if ctx.Propagate != nil {
			ctx.Propagate(popName, [][]byte{[]byte(key)})
		}
		return [2][]byte{[]byte(key), v}, true
	}
	w.Resolve = func(result any) {
		pair := result.([2][]byte)
		ctx.ReplyAsync(protocol.Array(protocol.BulkString(pair[0]), protocol.BulkString(pair[1])))
	}
	w.Timeout = func() {
		ctx.ReplyAsync(protocol.CachedNilArray())
	}
	ctx.Blocking.Register(w)
	return Suspend()
}
