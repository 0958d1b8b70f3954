package crawler

import (
	"context"
	"fmt"
	"strings"
	"sync"
	"time"

	"golang.org/x/time/rate"
)

// Pacer enforces a minimum interval between requests to the same host.
// Each host gets its own token bucket with a burst of one, so the first
// request to a host never waits.
type Pacer struct {
	delay time.Duration

	mu       sync.Mutex
	limiters map[string]*rate.Limiter
}

// NewPacer returns a Pacer for the given per-host delay.
// A delay of zero or less disables pacing.
func NewPacer(delay time.Duration) *Pacer {
	return &Pacer{
		delay:    delay,
		limiters: make(map[string]*rate.Limiter),
	}
}

// Wait blocks until a request to host may be sent or ctx is done.
func (p *Pacer) Wait(ctx context.Context, host string) error {
	if p == nil || p.delay <= 0 {
		return ctx.Err()
	}
	if err := p.limiter(host).Wait(ctx); err != nil {
		if ctx.Err() != nil {
			return ctx.Err()
		}
		// The limiter refuses waits that would outlast the deadline.
		return fmt.Errorf("%w: %v", context.DeadlineExceeded, err) //nolint:errorlint // limiter error is informational only
	}
	return nil
}

func (p *Pacer) limiter(host string) *rate.Limiter {
	host = strings.ToLower(host)

	p.mu.Lock()
	defer p.mu.Unlock()
	lim, ok := p.limiters[host]
	if !ok {
		lim = rate.NewLimiter(rate.Every(p.delay), 1)
		p.limiters[host] = lim
	}
	return lim
}
