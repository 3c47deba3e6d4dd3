// Package vision sends one drawing image and prompt to a vision-capable
// model and returns its raw text answer.
package vision

import (
	"context"
	"sync"

	"github.com/anthropics/anthropic-sdk-go/option"
	"github.com/rotisserie/eris"

	"github.com/sells-group/masterfile-cli/internal/config"
	"github.com/sells-group/masterfile-cli/internal/cost"
	"github.com/sells-group/masterfile-cli/internal/resilience"
	"github.com/sells-group/masterfile-cli/pkg/anthropic"
)

// systemPrompt frames every call; the task itself lives in Request.Prompt.
const systemPrompt = "You read scanned engineering drawings of pressure vessels and heat exchangers. " +
	"Report only what is printed on the drawing, in the exact format requested."

// Request is one image plus the prompt built for its equipment.
type Request struct {
	Equipment string
	Image     []byte
	MediaType string
	Prompt    string
}

// Client generates a text answer for an image and prompt.
type Client interface {
	Generate(ctx context.Context, req Request) (string, error)
}

// Meter accumulates token usage and cost across calls.
type Meter struct {
	mu           sync.Mutex
	calls        int
	inputTokens  int64
	outputTokens int64
	costUSD      float64
}

// Record adds one call's usage.
func (m *Meter) Record(input, output int64, usd float64) {
	if m == nil {
		return
	}
	m.mu.Lock()
	defer m.mu.Unlock()
	m.calls++
	m.inputTokens += input
	m.outputTokens += output
	m.costUSD += usd
}

// Snapshot returns the totals recorded so far.
func (m *Meter) Snapshot() (calls int, input, output int64, usd float64) {
	if m == nil {
		return 0, 0, 0, 0
	}
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.calls, m.inputTokens, m.outputTokens, m.costUSD
}

// New builds the configured provider wrapped in a circuit breaker and an
// adaptive rate limiter.
func New(ctx context.Context, cfg config.VisionConfig, calc *cost.Calculator, meter *Meter) (Client, error) {
	var provider Client
	switch cfg.Provider {
	case "anthropic", "":
		if cfg.Anthropic.Key == "" {
			return nil, eris.New("vision: anthropic provider requires vision.anthropic.key")
		}
		var opts []option.RequestOption
		if cfg.Anthropic.BaseURL != "" {
			opts = append(opts, option.WithBaseURL(cfg.Anthropic.BaseURL))
		}
		provider = NewAnthropic(anthropic.NewClient(cfg.Anthropic.Key, opts...), cfg.Anthropic.Model, cfg.MaxTokens, calc, meter)
	case "gemini":
		if cfg.Gemini.Key == "" {
			return nil, eris.New("vision: gemini provider requires vision.gemini.key")
		}
		g, err := NewGemini(ctx, cfg.Gemini.Key, cfg.Gemini.Model, cfg.MaxTokens, calc, meter)
		if err != nil {
			return nil, err
		}
		provider = g
	default:
		return nil, eris.Errorf("vision: unknown provider %q", cfg.Provider)
	}

	cbCfg := resilience.FromCircuitConfig(cfg.Circuit.FailureThreshold, cfg.Circuit.ResetTimeoutSecs)
	cbCfg.ShouldTrip = resilience.IsTransient
	breaker := resilience.NewCircuitBreaker(cbCfg)
	return NewRateLimited(NewBreaker(provider, breaker), cfg.RequestsPerMinute), nil
}
