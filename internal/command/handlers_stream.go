package command

import (
	"strconv"
	"strings"
	"time"

	"github.com/nishisan-dev/redlet/internal/blocking"
	"github.com/nishisan-dev/redlet/internal/protocol"
	"github.com/nishisan-dev/redlet/internal/resperr"
	"github.com/nishisan-dev/redlet/internal/store"
)

func (c *Catalog) registerStream() {
	c.register(&Spec{Name: "XADD", Arity: -5, Flags: FlagWrite, Handler: handleXAdd})
	c.register(&Spec{Name: "XRANGE", Arity: -4, Flags: FlagReadonly, Handler: handleXRange})
	c.register(&Spec{Name: "XREAD", Arity: -4, Flags: FlagReadonly | FlagBlocking, Handler: handleXRead})
}

func handleXAdd(ctx *ExecContext, args [][]byte) Result {
	key, idReq := string(args[0]), string(args[1])
	rest := args[2:]
	if len(rest) == 0 || len(rest)%2 != 0 {
		return Fail(resperr.ErrSyntax)
	}
	fields := make([]store.StreamField, 0, len(rest)/2)
	for i := 0; i < len(rest); i += 2 {
		fields = append(fields, store.StreamField{Field: rest[i], Value: rest[i+1]})
	}
	id, err := ctx.Store.XAdd(key, idReq, fields, ctx.NowMs())
	if err != nil {
		return Fail(err)
	}
	// Propagate with the allocated id, never the "*" / "<ms>-*" request
	// form: a follower re-running the allocator against its own clock
	// would pick a different id.
	idText := []byte(id.String())
	rewrite := make([][]byte, 0, len(args)+1)
	rewrite = append(rewrite, []byte("XADD"), args[0], idText)
	rewrite = append(rewrite, rest...)
	return ReplyRewrite(protocol.BulkString(idText), rewrite...)
}

func parseRangeBound(s string, def store.StreamID) (store.StreamID, error) {
	switch s {
	case "-":
		return store.MinStreamID, nil
	case "+":
		return store.MaxStreamID, nil
	case "":
		return def, nil
	default:
		return store.ParseStreamID(s)
	}
}

func handleXRange(ctx *ExecContext, args [][]byte) Result {
	key := string(args[0])
	start, err := parseRangeBound(string(args[1]), store.MinStreamID)
	if err != nil {
		return Fail(err)
	}
	end, err := parseRangeBound(string(args[2]), store.MaxStreamID)
	if err != nil {
		return Fail(err)
	}
	count := -1
	if len(args) >= 5 && strings.EqualFold(string(args[3]), "COUNT") {
		n, err := strconv.Atoi(string(args[4]))
		if err != nil {
			return Fail(resperr.ErrNotInteger)
		}
		count = n
	}
	entries, err := ctx.Store.XRange(key, start, end, count)
	if err != nil {
		return Fail(err)
	}
	return Reply(streamEntriesFrame(entries))
}

func streamEntriesFrame(entries []store.StreamEntry) protocol.Frame {
	elems := make([]protocol.Frame, len(entries))
	for i, e := range entries {
		fieldElems := make([]protocol.Frame, 0, len(e.Fields)*2)
		for _, f := range e.Fields {
			fieldElems = append(fieldElems, protocol.BulkString(f.Field), protocol.BulkString(f.Value))
		}
		elems[i] = protocol.Array(
			protocol.BulkString([]byte(e.ID.String())),
			protocol.Array(fieldElems...),
		)
	}
	return protocol.Array(elems...)
}

// handleXRead implements
// XREAD [COUNT n] [BLOCK ms] STREAMS key [key ...] id [id ...].
func handleXRead(ctx *ExecContext, args [][]byte) Result {
	rest := args
	blockMs := int64(-1)
	count := -1
opts:
	for len(rest) >= 2 {
		switch {
		case strings.EqualFold(string(rest[0]), "COUNT"):
			n, err := strconv.Atoi(string(rest[1]))
			if err != nil {
				return Fail(resperr.ErrNotInteger)
			}
			count = n
			rest = rest[2:]
		case strings.EqualFold(string(rest[0]), "BLOCK"):
			ms, err := strconv.ParseInt(string(rest[1]), 10, 64)
			if err != nil || ms < 0 || ms > maxBlockSeconds*1000 {
				return Fail(resperr.ErrNotInteger)
			}
			blockMs = ms
			rest = rest[2:]
		default:
			break opts
		}
	}
	if len(rest) < 3 || !strings.EqualFold(string(rest[0]), "STREAMS") {
		return Fail(resperr.ErrSyntax)
	}
	rest = rest[1:]
	if len(rest)%2 != 0 {
		return Fail(resperr.ErrSyntax)
	}
	n := len(rest) / 2
	keys := make([]string, n)
	ids := make([]store.StreamID, n)
	for i := 0; i < n; i++ {
		keys[i] = string(rest[i])
		idArg := string(rest[n+i])
		if idArg == "$" {
			ids[i] = ctx.Store.XLastID(keys[i])
			continue
		}
		id, err := store.ParseStreamID(idArg)
		if err != nil {
			return Fail(err)
		}
		ids[i] = id
	}

	readOnce := func() (protocol.Frame, bool, error) {
		var perStream []protocol.Frame
		for i, key := range keys {
			entries, err := ctx.Store.XGetAfter(key, ids[i], count)
			if err != nil {
				return protocol.Frame{}, false, err
			}
			if len(entries) == 0 {
				continue
			}
			perStream = append(perStream, protocol.Array(
				protocol.BulkString([]byte(key)),
				streamEntriesFrame(entries),
			))
		}
		if len(perStream) == 0 {
			return protocol.Frame{}, false, nil
		}
		return protocol.Array(perStream...), true, nil
	}

	frame, ok, err := readOnce()
	if err != nil {
		return Fail(err)
	}
	if ok {
		return Reply(frame)
	}
	if blockMs < 0 {
		return Reply(protocol.CachedNilArray())
	}

	w := &blocking.Waiter{ConnID: ctx.ConnID, Keys: keys}
	if blockMs > 0 {
		w.HasDeadline = true
		w.Deadline = time.UnixMilli(ctx.NowMs()).Add(time.Duration(blockMs) * time.Millisecond)
	}
	w.TryConsume = func(string) (any, bool) {
		f, ok, err := readOnce()
		if err != nil || !ok {
			return nil, false
		}
		return f, true
	}
	w.Resolve = func(result any) { ctx.ReplyAsync(result.(protocol.Frame)) }
	w.Timeout = func() { ctx.ReplyAsync(protocol.CachedNilArray()) }
	ctx.Blocking.Register(w)
	return Suspend()
}
