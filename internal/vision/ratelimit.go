package vision

import (
	"context"
	"net/http"
	"sync"
	"time"

	"github.com/rotisserie/eris"
	"go.uber.org/zap"
	"golang.org/x/time/rate"

	"github.com/sells-group/masterfile-cli/internal/resilience"
)

// RateLimited paces calls to the next client. The pace backs off to half
// on a 429 answer (down to a quarter of the configured rate) and recovers
// by 20% per success (up to twice the configured rate).
type RateLimited struct {
	next Client

	mu      sync.Mutex
	limiter *rate.Limiter
	initial rate.Limit
	current rate.Limit
}

// NewRateLimited wraps next with a limiter of perMinute requests. A
// non-positive perMinute returns next unchanged.
func NewRateLimited(next Client, perMinute int) Client {
	if perMinute <= 0 {
		return next
	}
	limit := rate.Every(time.Minute / time.Duration(perMinute))
	return &RateLimited{
		next:    next,
		limiter: rate.NewLimiter(limit, 1),
		initial: limit,
		current: limit,
	}
}

// Generate waits for a slot, then calls the wrapped client.
func (r *RateLimited) Generate(ctx context.Context, req Request) (string, error) {
	if err := r.limiter.Wait(ctx); err != nil {
		return "", eris.Wrap(err, "vision: rate limit wait")
	}
	text, err := r.next.Generate(ctx, req)
	switch {
	case err == nil:
		r.adjust(1.2)
	case resilience.StatusOf(err) == http.StatusTooManyRequests:
		r.adjust(0.5)
	}
	return text, err
}

// Limit returns the current pace.
func (r *RateLimited) Limit() rate.Limit {
	r.mu.Lock()
	defer r.mu.Unlock()
	return r.current
}

func (r *RateLimited) adjust(factor float64) {
	r.mu.Lock()
	defer r.mu.Unlock()
	next := r.current * rate.Limit(factor)
	if hi := r.initial * 2; next > hi {
		next = hi
	}
	if lo := r.initial / 4; next < lo {
		next = lo
	}
	if next == r.current {
		return
	}
	if factor < 1 {
		zap.L().Warn("vision: rate limited, slowing down", zap.Float64("per_second", float64(next)))
	}
	r.current = next
	r.limiter.SetLimit(next)
}
