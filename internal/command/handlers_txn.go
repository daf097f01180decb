package command

import (
	"github.com/nishisan-dev/redlet/internal/protocol"
	"github.com/nishisan-dev/redlet/internal/resperr"
)

func (c *Catalog) registerTxn() {
	c.register(&Spec{Name: "MULTI", Arity: 1, Flags: FlagNoQueue, Handler: handleMulti})
	c.register(&Spec{Name: "EXEC", Arity: 1, Flags: FlagNoQueue, Handler: handleExec})
	c.register(&Spec{Name: "DISCARD", Arity: 1, Flags: FlagNoQueue, Handler: handleDiscard})
	c.register(&Spec{Name: "WATCH", Arity: -2, Flags: FlagNoQueue, Handler: handleWatch})
	c.register(&Spec{Name: "UNWATCH", Arity: 1, Flags: FlagNoQueue, Handler: handleUnwatch})
}

func handleMulti(ctx *ExecContext, args [][]byte) Result {
	if err := ctx.Txn.Multi(ctx.ConnID); err != nil {
		return Fail(err)
	}
	return Reply(protocol.OK())
}

func handleWatch(ctx *ExecContext, args [][]byte) Result {
	keys := make([]string, len(args))
	for i, k := range args {
		keys[i] = string(k)
	}
	if err := ctx.Txn.Watch(ctx.ConnID, keys...); err != nil {
		return Fail(err)
	}
	return Reply(protocol.OK())
}

func handleUnwatch(ctx *ExecContext, args [][]byte) Result {
	ctx.Txn.Unwatch(ctx.ConnID)
	return Reply(protocol.OK())
}

func handleDiscard(ctx *ExecContext, args [][]byte) Result {
	if err := ctx.Txn.Discard(ctx.ConnID); err != nil {
		return Fail(err)
	}
	return Reply(protocol.OK())
}

// handleExec runs the queued commands through execQueuedCommand (not
// Dispatch), one by one, and
// assembles their replies into a single RESP array — except when
// WATCHed keys were invalidated (a nil array) or the
// transaction was aborted at queue time (EXECABORT).
func handleExec(ctx *ExecContext, args [][]byte) Result {
	res, err := ctx.Txn.Exec(ctx.ConnID)
	if err != nil {
		return Fail(err)
	}
	if res.Aborted {
		return Fail(resperr.ErrTransactionAbort)
	}
	if res.Invalidated {
		return Reply(protocol.CachedNilArray())
	}
	elems := make([]protocol.Frame, len(res.Queue))
	for i, qc := range res.Queue {
		r := execQueuedCommand(ctx, qc.Name, qc.Args)
		if r.Err != nil {
			elems[i] = protocol.Err(errReply(r.Err))
			continue
		}
		if r.Suspended {
			// A blocking command inside a transaction never blocks: it
			// behaves like its non-blocking probe and replies nil.
			ctx.Blocking.RemoveConnection(ctx.ConnID)
			elems[i] = protocol.CachedNilArray()
			continue
		}
		elems[i] = r.Frame
	}
	return Reply(protocol.Array(elems...))
}

// execQueuedCommand looks the handler up directly rather than going back
// through Dispatch: the command was already validated for arity and
// queue-eligibility when it was queued, and running it through Dispatch
// again would just re-queue it since the machine is still mid-EXEC when
// this runs.
func execQueuedCommand(ctx *ExecContext, name string, args [][]byte) Result {
	spec, ok := ctx.Catalog.Lookup(name)
	if !ok {
		return Fail(resperr.UnknownCommandErr(name))
	}
	res := spec.Handler(ctx, args)
	propagateResult(ctx, spec, name, args, res)
	return res
}

func errReply(err error) string {
	if re, ok := err.(interface{ Reply() string }); ok {
		return re.Reply()
	}
	return err.Error()
}
