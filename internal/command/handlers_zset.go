package command

import (
	"strconv"
	"strings"

	"github.com/nishisan-dev/redlet/internal/protocol"
	"github.com/nishisan-dev/redlet/internal/resperr"
	"github.com/nishisan-dev/redlet/internal/store"
)

func (c *Catalog) registerZSet() {
	c.register(&Spec{Name: "ZADD", Arity: -4, Flags: FlagWrite, Handler: handleZAdd})
	c.register(&Spec{Name: "ZREM", Arity: -3, Flags: FlagWrite, Handler: handleZRem})
	c.register(&Spec{Name: "ZSCORE", Arity: 3, Flags: FlagReadonly, Handler: handleZScore})
	c.register(&Spec{Name: "ZRANK", Arity: 3, Flags: FlagReadonly, Handler: handleZRank})
	c.register(&Spec{Name: "ZCARD", Arity: 2, Flags: FlagReadonly, Handler: handleZCard})
	c.register(&Spec{Name: "ZRANGE", Arity: -4, Flags: FlagReadonly, Handler: handleZRange})
}

func handleZAdd(ctx *ExecContext, args [][]byte) Result {
	rest := args[1:]
	if len(rest)%2 != 0 {
		return Fail(resperr.ErrSyntax)
	}
	members := make([]store.ZMember, 0, len(rest)/2)
	for i := 0; i < len(rest); i += 2 {
		score, err := strconv.ParseFloat(string(rest[i]), 64)
		if err != nil {
			return Fail(resperr.ErrNotInteger)
		}
		members = append(members, store.ZMember{Member: string(rest[i+1]), Score: score})
	}
	added, err := ctx.Store.ZAdd(string(args[0]), members)
	if err != nil {
		return Fail(err)
	}
	return Reply(protocol.IntegerFrame(int64(added)))
}

func handleZRem(ctx *ExecContext, args [][]byte) Result {
	members := make([]string, len(args)-1)
	for i, m := range args[1:] {
		members[i] = string(m)
	}
	removed, err := ctx.Store.ZRem(string(args[0]), members)
	if err != nil {
		return Fail(err)
	}
	return Reply(protocol.IntegerFrame(int64(removed)))
}

func handleZScore(ctx *ExecContext, args [][]byte) Result {
	score, ok, err := ctx.Store.ZScore(string(args[0]), string(args[1]))
	if err != nil {
		return Fail(err)
	}
	if !ok {
		return Reply(protocol.CachedNilBulk())
	}
	return Reply(protocol.BulkString([]byte(formatScore(score))))
}

func handleZRank(ctx *ExecContext, args [][]byte) Result {
	rank, ok, err := ctx.Store.ZRank(string(args[0]), string(args[1]))
	if err != nil {
		return Fail(err)
	}
	if !ok {
		return Reply(protocol.CachedNilBulk())
	}
	return Reply(protocol.IntegerFrame(int64(rank)))
}

func handleZCard(ctx *ExecContext, args [][]byte) Result {
	n, err := ctx.Store.ZCard(string(args[0]))
	if err != nil {
		return Fail(err)
	}
	return Reply(protocol.IntegerFrame(int64(n)))
}

func handleZRange(ctx *ExecContext, args [][]byte) Result {
	start, err := strconv.Atoi(string(args[1]))
	if err != nil {
		return Fail(resperr.ErrNotInteger)
	}
	end, err := strconv.Atoi(string(args[2]))
	if err != nil {
		return Fail(resperr.ErrNotInteger)
	}
	withScores := false
	if len(args) == 4 {
		if !strings.EqualFold(string(args[3]), "WITHSCORES") {
			return Fail(resperr.ErrSyntax)
		}
		withScores = true
	} else if len(args) > 4 {
		return Fail(resperr.ErrSyntax)
	}
	members, err := ctx.Store.ZRange(string(args[0]), start, end)
	if err != nil {
		return Fail(err)
	}
	elems := make([]protocol.Frame, 0, len(members)*2)
	for _, m := range members {
		elems = append(elems, protocol.BulkString([]byte(m.Member)))
		if withScores {
			elems = append(elems, protocol.BulkString([]byte(formatScore(m.Score))))
		}
	}
	return Reply(protocol.Array(elems...))
}

func formatScore(score float64) string {
	return strconv.FormatFloat(score, 'g', -1, 64)
}
