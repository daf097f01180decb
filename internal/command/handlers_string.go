package command

import (
	"strconv"
	"strings"
	"time"

	"github.com/nishisan-dev/redlet/internal/protocol"
	"github.com/nishisan-dev/redlet/internal/resperr"
)

func (c *Catalog) registerString() {
	c.register(&Spec{Name: "GET", Arity: 2, Flags: FlagReadonly, Handler: handleGet})
	c.register(&Spec{Name: "SET", Arity: -3, Flags: FlagWrite, Handler: handleSet})
	c.register(&Spec{Name: "INCR", Arity: 2, Flags: FlagWrite, Handler: handleIncr})
	c.register(&Spec{Name: "DECR", Arity: 2, Flags: FlagWrite, Handler: handleDecr})
	c.register(&Spec{Name: "INCRBY", Arity: 3, Flags: FlagWrite, Handler: handleIncrBy})
	c.register(&Spec{Name: "DECRBY", Arity: 3, Flags: FlagWrite, Handler: handleDecrBy})
}

func handleGet(ctx *ExecContext, args [][]byte) Result {
	v, err := ctx.Store.Get(string(args[0]))
	if err != nil {
		return Fail(err)
	}
	if v == nil {
		return Reply(protocol.CachedNilBulk())
	}
	return Reply(protocol.BulkString(v))
}

// handleSet implements SET key value [EX secs | PX ms | EXAT secs | PXAT ms].
// The absolute forms exist primarily as the propagation target: a SET with
// a relative expiry is rewritten to PXAT before fan-out so followers do
// not recompute the deadline against their own clocks.
func handleSet(ctx *ExecContext, args [][]byte) Result {
	key, value := string(args[0]), args[1]
	var expireAt time.Time
	rest := args[2:]
	for len(rest) > 0 {
		opt := strings.ToUpper(string(rest[0]))
		if len(rest) < 2 {
			return Fail(resperr.ErrSyntax)
		}
		n, err := strconv.ParseInt(string(rest[1]), 10, 64)
		if err != nil {
			return Fail(resperr.ErrNotInteger)
		}
		switch opt {
		case "PX":
			expireAt = time.UnixMilli(ctx.NowMs() + n)
		case "EX":
			expireAt = time.UnixMilli(ctx.NowMs() + n*1000)
		case "PXAT":
			expireAt = time.UnixMilli(n)
		case "EXAT":
			expireAt = time.UnixMilli(n * 1000)
		default:
			return Fail(resperr.ErrSyntax)
		}
		rest = rest[2:]
	}
	ctx.Store.Set(key, value, expireAt)
	if expireAt.IsZero() {
		return Reply(protocol.OK())
	}
	return ReplyRewrite(
		protocol.OK(),
		[]byte("SET"), args[0], args[1],
		[]byte("PXAT"), []byte(strconv.FormatInt(expireAt.UnixMilli(), 10)),
	)
}

func handleIncr(ctx *ExecContext, args [][]byte) Result {
	return incrByResult(ctx, string(args[0]), 1)
}

func handleDecr(ctx *ExecContext, args [][]byte) Result {
	return incrByResult(ctx, string(args[0]), -1)
}

func handleIncrBy(ctx *ExecContext, args [][]byte) Result {
	delta, err := strconv.ParseInt(string(args[1]), 10, 64)
	if err != nil {
		return Fail(resperr.ErrNotInteger)
	}
	return incrByResult(ctx, string(args[0]), delta)
}

func handleDecrBy(ctx *ExecContext, args [][]byte) Result {
	delta, err := strconv.ParseInt(string(args[1]), 10, 64)
	if err != nil {
		return Fail(resperr.ErrNotInteger)
	}
	return incrByResult(ctx, string(args[0]), -delta)
}

func incrByResult(ctx *ExecContext, key string, delta int64) Result {
	next, err := ctx.Store.IncrBy(key, delta)
	if err != nil {
		return Fail(err)
	}
	return Reply(protocol.IntegerFrame(next))
}
