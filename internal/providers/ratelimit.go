package providers

import (
	"context"
	"sync"

	"golang.org/x/time/rate"

	"github.com/cjangrist/mcp-omnisearch/internal/types"
)

// Limiters holds one token bucket per provider plus a shared global
// bucket. The per-provider buckets keep each vendor inside its quota;
// the global bucket caps total outbound pressure when many providers
// are enabled at once.
type Limiters struct {
	mu        sync.Mutex
	m         map[string]*rate.Limiter
	rates     map[string]rate.Limit
	perMinute rate.Limit
	burst     int
	global    *rate.Limiter
}

// NewLimiters creates the limiter set. The global bucket gets five
// times one provider's budget.
func NewLimiters(perMinute, burst int) *Limiters {
	if perMinute <= 0 {
		perMinute = 60
	}
	if burst <= 0 {
		burst = 10
	}
	return &Limiters{
		m:         make(map[string]*rate.Limiter),
		rates:     make(map[string]rate.Limit),
		perMinute: rate.Limit(float64(perMinute) / 60.0),
		burst:     burst,
		global:    rate.NewLimiter(rate.Limit(float64(perMinute*5)/60.0), burst*5),
	}
}

// SetProviderRate overrides one provider's per-minute budget. Must be
// called before the first Wait for that provider.
func (l *Limiters) SetProviderRate(name string, perMinute int) {
	if perMinute <= 0 {
		return
	}
	l.mu.Lock()
	defer l.mu.Unlock()
	l.rates[name] = rate.Limit(float64(perMinute) / 60.0)
}

func (l *Limiters) limiterFor(name string) *rate.Limiter {
	l.mu.Lock()
	defer l.mu.Unlock()
	lim, ok := l.m[name]
	if !ok {
		r := l.perMinute
		if override, set := l.rates[name]; set {
			r = override
		}
		lim = rate.NewLimiter(r, l.burst)
		l.m[name] = lim
	}
	return lim
}

// Wait blocks until both the global bucket and the named provider's
// bucket release a token, or the context ends.
func (l *Limiters) Wait(ctx context.Context, name string) error {
	if err := l.global.Wait(ctx); err != nil {
		return err
	}
	return l.limiterFor(name).Wait(ctx)
}

type rateLimitedProvider struct {
	Provider
	limiters *Limiters
}

// withRateLimit wraps p so every call first clears the limiter set.
func withRateLimit(p Provider, limiters *Limiters) Provider {
	if limiters == nil {
		return p
	}
	return &rateLimitedProvider{Provider: p, limiters: limiters}
}

func (p *rateLimitedProvider) Search(ctx context.Context, query string, params types.QueryParams) ([]types.SearchResult, error) {
	if err := p.limiters.Wait(ctx, p.Name()); err != nil {
		return nil, err
	}
	return p.Provider.Search(ctx, query, params)
}
