package command

import (
	"github.com/nishisan-dev/redlet/internal/protocol"
	"github.com/nishisan-dev/redlet/internal/resperr"
)

func (c *Catalog) registerAuth() {
	c.register(&Spec{Name: "AUTH", Arity: 2, Flags: FlagAdmin | FlagAllowNoAuth | FlagAllowSubscriber, Handler: handleAuth})
}

func handleAuth(ctx *ExecContext, args [][]byte) Result {
	if ctx.Verifier == nil || !ctx.Verifier.Required() {
		return Fail(resperr.New(resperr.NotAllowedInMode, "Client sent AUTH, but no password is set"))
	}
	if !ctx.Verifier.Check(string(args[0])) {
		return Fail(resperr.New(resperr.NotAllowedInMode, "WRONGPASS invalid password"))
	}
	if ctx.Auth != nil {
		ctx.Auth.Authenticate(ctx.ConnID)
	}
	return Reply(protocol.OK())
}
