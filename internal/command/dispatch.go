package command

import (
	"strings"

	"github.com/nishisan-dev/redlet/internal/protocol"
	"github.com/nishisan-dev/redlet/internal/resperr"
	"github.com/nishisan-dev/redlet/internal/txn"
)

// Dispatch is the single entry point the server's engine goroutine calls
// for every parsed command frame. It performs lookup, restricted-mode
// gating (subscriber mode, pending AUTH), transaction queuing, and arity
// validation before handing off to the command's Handler, so no handler
// needs to repeat that bookkeeping.
func Dispatch(ctx *ExecContext, catalog *Catalog, name string, args [][]byte) Result {
	upper := strings.ToUpper(name)
	spec, ok := catalog.Lookup(upper)
	inTxn := ctx.Txn != nil && ctx.Txn.State(ctx.ConnID) == txn.InTransaction

	if !ok {
		err := resperr.UnknownCommandErr(name)
		if inTxn {
			ctx.Txn.MarkQueueError(ctx.ConnID, err)
		}
		return Fail(err)
	}

	if ctx.Verifier != nil && ctx.Verifier.Required() && !spec.Flags.has(FlagAllowNoAuth) {
		authed := ctx.Auth != nil && ctx.Auth.IsAuthenticated(ctx.ConnID)
		if !authed {
			return Fail(resperr.New(resperr.NotAllowedInMode, "NOAUTH Authentication required."))
		}
	}

	if ctx.PubSub != nil && ctx.PubSub.IsSubscribed(ctx.ConnID) && !spec.Flags.has(FlagAllowSubscriber) {
		err := resperr.NotAllowedErr("subscriber context", upper)
		return Fail(err)
	}

	if !spec.checkArity(len(args) + 1) {
		err := resperr.WrongArityErr(upper)
		if inTxn {
			ctx.Txn.MarkQueueError(ctx.ConnID, err)
		}
		return Fail(err)
	}

	if inTxn && upper == "WAIT" {
		err := resperr.NotAllowedErr("MULTI", "WAIT")
		ctx.Txn.MarkQueueError(ctx.ConnID, err)
		return Fail(err)
	}

	if inTxn && !spec.Flags.has(FlagNoQueue) {
		ctx.Txn.Queue(ctx.ConnID, upper, args)
		return Reply(protocol.Queued())
	}

	res := spec.Handler(ctx, args)

	propagateResult(ctx, spec, upper, args, res)

	// Wake any waiters the command's writes made eligible, only now that
	// the triggering write has been propagated: a woken waiter's own
	// rewritten pop must follow it on the replication stream.
	if ctx.Blocking != nil {
		ctx.Blocking.Drain()
	}
	return res
}

// propagateResult forwards a successful write to the follower stream,
// preferring the handler's rewritten form over the verbatim input.
func propagateResult(ctx *ExecContext, spec *Spec, name string, args [][]byte, res Result) {
	if res.Err != nil || res.Suspended || !spec.Flags.has(FlagWrite) || ctx.Propagate == nil {
		return
	}
	if res.Rewrite != nil {
		ctx.Propagate(strings.ToUpper(string(res.Rewrite[0])), res.Rewrite[1:])
		return
	}
	ctx.Propagate(name, args)
}
