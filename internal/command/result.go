package command

import "github.com/nishisan-dev/redlet/internal/protocol"

// Result is what a handler hands back to the dispatcher. Exactly one of
// three things happens to a command: it replies immediately (Frame), it
// fails with a classified error (Err), or it suspends the connection on
// the blocking coordinator and will reply later via ExecContext.ReplyAsync
// (Suspended).
type Result struct {
	Frame     protocol.Frame
	Err       error
	Suspended bool

	// Rewrite, when set, replaces the verbatim command (name first, then
	// args) for replication fan-out. Handlers whose input is
	// non-deterministic across nodes (XADD with an auto id, EXPIRE with
	// a relative duration, a blocking pop's immediate consume) rewrite
	// it to the concrete effect so followers converge to identical
	// state.
	Rewrite [][]byte
}

func Reply(f protocol.Frame) Result { return Result{Frame: f} }

// ReplyRewrite replies with f and propagates rewrite (name first)
// instead of the command as received.
func ReplyRewrite(f protocol.Frame, rewrite ...[]byte) Result {
	return Result{Frame: f, Rewrite: rewrite}
}

func Fail(err error) Result { return Result{Err: err} }

func Suspend() Result { return Result{Suspended: true} }
