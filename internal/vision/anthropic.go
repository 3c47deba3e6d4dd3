package vision

import (
	"context"

	"go.uber.org/zap"

	"github.com/sells-group/masterfile-cli/internal/cost"
	"github.com/sells-group/masterfile-cli/pkg/anthropic"
)

// AnthropicProvider reads drawings with a Claude model.
type AnthropicProvider struct {
	client    anthropic.Client
	model     string
	maxTokens int64
	calc      *cost.Calculator
	meter     *Meter
}

// NewAnthropic returns a provider over an Anthropic client.
func NewAnthropic(client anthropic.Client, model string, maxTokens int64, calc *cost.Calculator, meter *Meter) *AnthropicProvider {
	if calc == nil {
		calc = cost.NewCalculator(cost.Rates{})
	}
	return &AnthropicProvider{client: client, model: model, maxTokens: maxTokens, calc: calc, meter: meter}
}

// Generate sends the image ahead of the prompt in a single user turn.
func (p *AnthropicProvider) Generate(ctx context.Context, req Request) (string, error) {
	temp := 0.0
	resp, err := p.client.CreateMessage(ctx, anthropic.MessageRequest{
		Model:       p.model,
		MaxTokens:   p.maxTokens,
		System:      systemPrompt,
		Temperature: &temp,
		Messages: []anthropic.Message{{
			Role:    "user",
			Content: req.Prompt,
			Images:  []anthropic.Image{{MediaType: req.MediaType, Data: req.Image}},
		}},
	})
	if err != nil {
		return "", classify(err, anthropic.StatusCode(err), "vision: anthropic generate")
	}

	usd := p.calc.Claude(p.model, resp.Usage.InputTokens, resp.Usage.OutputTokens)
	p.meter.Record(resp.Usage.InputTokens, resp.Usage.OutputTokens, usd)
	resp.Usage.LogUsage(p.model, req.Equipment, usd)

	text := resp.Text()
	if text == "" {
		zap.L().Warn("vision: anthropic returned no text",
			zap.String("equipment", req.Equipment),
			zap.String("stop_reason", resp.StopReason),
		)
	}
	return text, nil
}
