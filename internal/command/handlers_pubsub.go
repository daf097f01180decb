package command

import (
	"github.com/nishisan-dev/redlet/internal/protocol"
)

func (c *Catalog) registerPubSub() {
	c.register(&Spec{Name: "SUBSCRIBE", Arity: -2, Flags: FlagPubSub | FlagAllowSubscriber | FlagNoQueue, Handler: handleSubscribe})
	c.register(&Spec{Name: "UNSUBSCRIBE", Arity: -1, Flags: FlagPubSub | FlagAllowSubscriber | FlagNoQueue, Handler: handleUnsubscribe})
	c.register(&Spec{Name: "PSUBSCRIBE", Arity: -2, Flags: FlagPubSub | FlagAllowSubscriber | FlagNoQueue, Handler: handlePSubscribe})
	c.register(&Spec{Name: "PUNSUBSCRIBE", Arity: -1, Flags: FlagPubSub | FlagAllowSubscriber | FlagNoQueue, Handler: handlePUnsubscribe})
	c.register(&Spec{Name: "PUBLISH", Arity: 3, Flags: FlagPubSub | FlagAllowSubscriber | FlagWrite, Handler: handlePublish})
}

func subscribeConfirmation(kind string, name string, count int) protocol.Frame {
	return protocol.Array(
		protocol.BulkString([]byte(kind)),
		protocol.BulkString([]byte(name)),
		protocol.IntegerFrame(int64(count)),
	)
}

// handleSubscribe is a thin wrapper: real RESP SUBSCRIBE pushes one
// confirmation frame per channel rather than a single reply, but since the
// catalog's Handler signature returns one Result, a multi-channel
// SUBSCRIBE returns the first confirmation as the direct reply and pushes
// the rest via ReplyAsync, matching how out-of-band pub/sub pushes are
// already delivered.
func handleSubscribe(ctx *ExecContext, args [][]byte) Result {
	var first protocol.Frame
	for i, ch := range args {
		ctx.PubSub.Subscribe(ctx.ConnID, string(ch))
		count := ctx.PubSub.SubscriptionCount(ctx.ConnID)
		frame := subscribeConfirmation("subscribe", string(ch), count)
		if i == 0 {
			first = frame
		} else {
			ctx.ReplyAsync(frame)
		}
	}
	return Reply(first)
}

func handleUnsubscribe(ctx *ExecContext, args [][]byte) Result {
	channels := args
	if len(channels) == 0 {
		channels = byteChannels(ctx.PubSub.Channels(ctx.ConnID))
	}
	var first protocol.Frame
	for i, ch := range channels {
		ctx.PubSub.Unsubscribe(ctx.ConnID, string(ch))
		count := ctx.PubSub.SubscriptionCount(ctx.ConnID)
		frame := subscribeConfirmation("unsubscribe", string(ch), count)
		if i == 0 {
			first = frame
		} else {
			ctx.ReplyAsync(frame)
		}
	}
	if len(channels) == 0 {
		return Reply(subscribeConfirmation("unsubscribe", "", ctx.PubSub.SubscriptionCount(ctx.ConnID)))
	}
	return Reply(first)
}

func handlePSubscribe(ctx *ExecContext, args [][]byte) Result {
	var first protocol.Frame
	for i, p := range args {
		ctx.PubSub.PSubscribe(ctx.ConnID, string(p))
		count := ctx.PubSub.SubscriptionCount(ctx.ConnID)
		frame := subscribeConfirmation("psubscribe", string(p), count)
		if i == 0 {
			first = frame
		} else {
			ctx.ReplyAsync(frame)
		}
	}
	return Reply(first)
}

func handlePUnsubscribe(ctx *ExecContext, args [][]byte) Result {
	patterns := args
	if len(patterns) == 0 {
		patterns = byteChannels(ctx.PubSub.Patterns(ctx.ConnID))
	}
	var first protocol.Frame
	for i, p := range patterns {
		ctx.PubSub.PUnsubscribe(ctx.ConnID, string(p))
		count := ctx.PubSub.SubscriptionCount(ctx.ConnID)
		frame := subscribeConfirmation("punsubscribe", string(p), count)
		if i == 0 {
			first = frame
		} else {
			ctx.ReplyAsync(frame)
		}
	}
	if len(patterns) == 0 {
		return Reply(subscribeConfirmation("punsubscribe", "", ctx.PubSub.SubscriptionCount(ctx.ConnID)))
	}
	return Reply(first)
}

func handlePublish(ctx *ExecContext, args [][]byte) Result {
	n := ctx.PubSub.Publish(string(args[0]), args[1])
	return Reply(protocol.IntegerFrame(int64(n)))
}

func byteChannels(names []string) [][]byte {
	out := make([][]byte, len(names))
	for i, n := range names {
		out[i] = []byte(n)
	}
	return out
}
