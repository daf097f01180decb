package server

import (
	"context"

	"golang.org/x/time/rate"

	"github.com/nishisan-dev/redlet/internal/config"
)

// maxCommandBurst caps the token-bucket burst so a long-idle connection
// cannot dump an arbitrarily large backlog in one go.
const maxCommandBurst = 128

// commandThrottle is a token-bucket limiter over commands/second, applied
// per connection before each frame is read. A nil throttle is a bypass.
type commandThrottle struct {
	limiter *rate.Limiter
}

func newCommandThrottle(cfg config.RateLimitConfig) *commandThrottle {
	if !cfg.Enabled || cfg.CommandsPerSec <= 0 {
		return nil
	}
	burst := cfg.CommandsPerSec
	if burst > maxCommandBurst {
		burst = maxCommandBurst
	}
	return &commandThrottle{limiter: rate.NewLimiter(rate.Limit(cfg.CommandsPerSec), burst)}
}

// Wait blocks until one command token is available, respecting ctx.
func (t *commandThrottle) Wait(ctx context.Context) error {
	if t == nil {
		return nil
	}
	return t.limiter.Wait(ctx)
}
