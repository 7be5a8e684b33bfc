package httpmw

import (
	"net"
	"net/http"
	"sync"
	"time"

	"golang.org/x/time/rate"

	"socialstore/pkg/utils"
)

// limiterPool hands out one token bucket per client address and evicts
// buckets idle longer than ttl.
type limiterPool struct {
	mu       sync.Mutex
	limiters map[string]*pooledLimiter
	rps      rate.Limit
	burst    int
	ttl      time.Duration
}

type pooledLimiter struct {
	lim  *rate.Limiter
	seen time.Time
}

func newLimiterPool(rps float64, burst int) *limiterPool {
	return &limiterPool{
		limiters: map[string]*pooledLimiter{},
		rps:      rate.Limit(rps),
		burst:    burst,
		ttl:      10 * time.Minute,
	}
}

func (p *limiterPool) get(key string) *rate.Limiter {
	p.mu.Lock()
	defer p.mu.Unlock()
	now := time.Now()
	if pl, ok := p.limiters[key]; ok {
		pl.seen = now
		return pl.lim
	}
	// opportunistic sweep on insert
	for k, pl := range p.limiters {
		if now.Sub(pl.seen) > p.ttl {
			delete(p.limiters, k)
		}
	}
	pl := &pooledLimiter{lim: rate.NewLimiter(p.rps, p.burst), seen: now}
	p.limiters[key] = pl
	return pl.lim
}

// RateLimit returns per-client rate limiting middleware keyed by remote
// IP. rps <= 0 disables limiting.
func RateLimit(rps float64, burst int) func(http.Handler) http.Handler {
	if rps <= 0 {
		return func(next http.Handler) http.Handler { return next }
	}
	if burst <= 0 {
		burst = 1
	}
	pool := newLimiterPool(rps, burst)
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			host, _, err := net.SplitHostPort(r.RemoteAddr)
			if err != nil {
				host = r.RemoteAddr
			}
			if !pool.get(host).Allow() {
				utils.JSONError(w, http.StatusTooManyRequests, "rate limit exceeded")
				return
			}
			next.ServeHTTP(w, r)
		})
	}
}
