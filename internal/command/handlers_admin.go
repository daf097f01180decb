package command

import (
	"strconv"
	"strings"
	"time"

	"github.com/nishisan-dev/redlet/internal/protocol"
	"github.com/nishisan-dev/redlet/internal/pubsub"
	"github.com/nishisan-dev/redlet/internal/resperr"
)

func (c *Catalog) registerAdmin() {
	c.register(&Spec{Name: "PING", Arity: -1, Flags: FlagReadonly | FlagAllowSubscriber | FlagAllowNoAuth, Handler: handlePing})
	c.register(&Spec{Name: "ECHO", Arity: 2, Flags: FlagReadonly, Handler: handleEcho})
	c.register(&Spec{Name: "TYPE", Arity: 2, Flags: FlagReadonly, Handler: handleType})
	c.register(&Spec{Name: "KEYS", Arity: 2, Flags: FlagReadonly, Handler: handleKeys})
	c.register(&Spec{Name: "DBSIZE", Arity: 1, Flags: FlagReadonly, Handler: handleDBSize})
	c.register(&Spec{Name: "EXISTS", Arity: -2, Flags: FlagReadonly, Handler: handleExists})
	c.register(&Spec{Name: "DEL", Arity: -2, Flags: FlagWrite, Handler: handleDel})
	c.register(&Spec{Name: "EXPIRE", Arity: 3, Flags: FlagWrite, Handler: handleExpire})
	c.register(&Spec{Name: "PEXPIREAT", Arity: 3, Flags: FlagWrite, Handler: handlePExpireAt})
	c.register(&Spec{Name: "TTL", Arity: 2, Flags: FlagReadonly, Handler: handleTTL})
	c.register(&Spec{Name: "PERSIST", Arity: 2, Flags: FlagWrite, Handler: handlePersist})
	c.register(&Spec{Name: "FLUSHALL", Arity: -1, Flags: FlagWrite | FlagAdmin, Handler: handleFlushAll})
	c.register(&Spec{Name: "INFO", Arity: -1, Flags: FlagReadonly | FlagAdmin | FlagAllowSubscriber, Handler: handleInfo})
	c.register(&Spec{Name: "CONFIG", Arity: -2, Flags: FlagAdmin, Handler: handleConfig})
}

func handlePing(ctx *ExecContext, args [][]byte) Result {
	if len(args) == 1 {
		return Reply(protocol.BulkString(args[0]))
	}
	return Reply(protocol.Pong())
}

func handleEcho(ctx *ExecContext, args [][]byte) Result {
	return Reply(protocol.BulkString(args[0]))
}

func handleType(ctx *ExecContext, args [][]byte) Result {
	return Reply(protocol.SimpleString(ctx.Store.Type(string(args[0])).String()))
}

func handleKeys(ctx *ExecContext, args [][]byte) Result {
	pattern := string(args[0])
	var matched [][]byte
	for _, k := range ctx.Store.Keys() {
		if patternMatch(pattern, k) {
			matched = append(matched, []byte(k))
		}
	}
	return Reply(protocol.BulkStringArray(matched))
}

func handleDBSize(ctx *ExecContext, args [][]byte) Result {
	return Reply(protocol.IntegerFrame(int64(ctx.Store.DBSize())))
}

func handleExists(ctx *ExecContext, args [][]byte) Result {
	count := 0
	for _, k := range args {
		if ctx.Store.Exists(string(k)) {
			count++
		}
	}
	return Reply(protocol.IntegerFrame(int64(count)))
}

func handleDel(ctx *ExecContext, args [][]byte) Result {
	count := 0
	for _, k := range args {
		if ctx.Store.Delete(string(k)) {
			count++
		}
	}
	return Reply(protocol.IntegerFrame(int64(count)))
}

func handleExpire(ctx *ExecContext, args [][]byte) Result {
	secs, err := strconv.ParseInt(string(args[1]), 10, 64)
	if err != nil {
		return Fail(resperr.ErrNotInteger)
	}
	// The relative duration resolves against this node's clock, so the
	// propagated form is the absolute PEXPIREAT equivalent.
	atMs := ctx.NowMs() + secs*1000
	ok := ctx.Store.Expire(string(args[0]), time.UnixMilli(atMs))
	return ReplyRewrite(
		protocol.IntegerFrame(boolToInt(ok)),
		[]byte("PEXPIREAT"), args[0], []byte(strconv.FormatInt(atMs, 10)),
	)
}

func handlePExpireAt(ctx *ExecContext, args [][]byte) Result {
	ms, err := strconv.ParseInt(string(args[1]), 10, 64)
	if err != nil {
		return Fail(resperr.ErrNotInteger)
	}
	ok := ctx.Store.Expire(string(args[0]), time.UnixMilli(ms))
	return Reply(protocol.IntegerFrame(boolToInt(ok)))
}

func handleTTL(ctx *ExecContext, args [][]byte) Result {
	d, ok := ctx.Store.TTL(string(args[0]))
	if !ok {
		if ctx.Store.Exists(string(args[0])) {
			return Reply(protocol.IntegerFrame(-1))
		}
		return Reply(protocol.IntegerFrame(-2))
	}
	return Reply(protocol.IntegerFrame(int64(d.Seconds())))
}

func handlePersist(ctx *ExecContext, args [][]byte) Result {
	ok := ctx.Store.Persist(string(args[0]))
	return Reply(protocol.IntegerFrame(boolToInt(ok)))
}

func handleFlushAll(ctx *ExecContext, args [][]byte) Result {
	ctx.Store.FlushAll()
	return Reply(protocol.OK())
}

// sectionSelected reports whether section name was requested, or no
// specific section was requested (meaning "all").
func sectionSelected(args [][]byte, name string) bool {
	if len(args) == 0 {
		return true
	}
	for _, a := range args {
		if strings.EqualFold(string(a), name) || strings.EqualFold(string(a), "all") || strings.EqualFold(string(a), "default") {
			return true
		}
	}
	return false
}

func handleInfo(ctx *ExecContext, args [][]byte) Result {
	st := ctx.Stats
	if st == nil {
		st = &Stats{Role: "master"}
	}
	var b strings.Builder

	if sectionSelected(args, "server") {
		b.WriteString("# Server\r\n")
		b.WriteString("redis_version:7.0.0-redlet\r\n")
		b.WriteString("process_id:" + strconv.Itoa(st.ProcessID) + "\r\n")
		b.WriteString("uptime_in_seconds:" + strconv.FormatInt(st.UptimeSeconds, 10) + "\r\n")
	}
	if sectionSelected(args, "clients") {
		b.WriteString("# Clients\r\n")
		b.WriteString("connected_clients:" + strconv.Itoa(st.ConnectedClients) + "\r\n")
		b.WriteString("blocked_clients:" + strconv.Itoa(st.BlockedClients) + "\r\n")
	}
	if sectionSelected(args, "memory") {
		b.WriteString("# Memory\r\n")
		b.WriteString("used_memory:" + strconv.FormatUint(st.UsedMemoryBytes, 10) + "\r\n")
	}
	if sectionSelected(args, "replication") {
		b.WriteString("# Replication\r\n")
		role := st.Role
		if role == "" {
			role = "master"
		}
		b.WriteString("role:" + role + "\r\n")
		if role == "slave" {
			b.WriteString("master_host:" + st.MasterHost + "\r\n")
			b.WriteString("slave_repl_offset:" + strconv.FormatInt(st.SlaveReplOffset, 10) + "\r\n")
		} else {
			b.WriteString("connected_slaves:" + strconv.Itoa(st.ConnectedSlaves) + "\r\n")
		}
		b.WriteString("master_repl_offset:" + strconv.FormatInt(st.MasterReplOffset, 10) + "\r\n")
	}
	if sectionSelected(args, "keyspace") {
		b.WriteString("# Keyspace\r\n")
		if n := ctx.Store.DBSize(); n > 0 {
			b.WriteString("db0:keys=" + strconv.Itoa(n) + "\r\n")
		}
	}
	return Reply(protocol.BulkString([]byte(b.String())))
}

func handleConfig(ctx *ExecContext, args [][]byte) Result {
	sub := strings.ToUpper(string(args[0]))
	switch sub {
	case "GET":
		if len(args) != 2 {
			return Fail(resperr.ErrSyntax)
		}
		pairs := ctx.Config.Get(string(args[1]))
		elems := make([]protocol.Frame, 0, len(pairs)*2)
		for _, p := range pairs {
			elems = append(elems, protocol.BulkString([]byte(p[0])), protocol.BulkString([]byte(p[1])))
		}
		return Reply(protocol.Array(elems...))
	case "SET":
		if len(args) != 3 {
			return Fail(resperr.ErrSyntax)
		}
		ctx.Config.Set(string(args[1]), string(args[2]))
		return Reply(protocol.OK())
	default:
		return Fail(resperr.ErrSyntax)
	}
}

func boolToInt(b bool) int64 {
	if b {
		return 1
	}
	return 0
}

// patternMatch delegates to the pub/sub bus's glob matcher: KEYS uses the
// same grammar as CONFIG GET and PSUBSCRIBE.
func patternMatch(pattern, name string) bool {
	return pubsub.Match(pattern, name)
}
