package vision

import (
	"context"

	"github.com/rotisserie/eris"

	"github.com/sells-group/masterfile-cli/internal/resilience"
)

// Breaker stops calling a provider that keeps failing with transient errors.
// While open, calls fail fast with resilience.ErrCircuitOpen, which is not
// transient and so is not retried.
type Breaker struct {
	next Client
	cb   *resilience.CircuitBreaker
}

// NewBreaker wraps next with cb. Only transient errors count toward opening.
func NewBreaker(next Client, cb *resilience.CircuitBreaker) *Breaker {
	return &Breaker{next: next, cb: cb}
}

// Generate calls the wrapped client unless the circuit is open.
func (b *Breaker) Generate(ctx context.Context, req Request) (string, error) {
	text, err := resilience.ExecuteVal(ctx, b.cb, func(ctx context.Context) (string, error) {
		return b.next.Generate(ctx, req)
	})
	if eris.Is(err, resilience.ErrCircuitOpen) {
		return "", eris.Wrap(err, "vision: provider unavailable")
	}
	return text, err
}

// State reports the breaker state.
func (b *Breaker) State() resilience.CircuitState { return b.cb.State() }
