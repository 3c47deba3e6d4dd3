package vision

import (
	"context"
	"errors"

	"github.com/rotisserie/eris"
	"go.uber.org/zap"
	"google.golang.org/genai"

	"github.com/sells-group/masterfile-cli/internal/cost"
)

// contentGenerator is the part of genai.Models the provider calls.
type contentGenerator interface {
	GenerateContent(ctx context.Context, model string, contents []*genai.Content, config *genai.GenerateContentConfig) (*genai.GenerateContentResponse, error)
}

// GeminiProvider reads drawings with a Gemini model.
type GeminiProvider struct {
	models    contentGenerator
	model     string
	maxTokens int64
	calc      *cost.Calculator
	meter     *Meter
}

// NewGemini creates a Gemini API client for the given key.
func NewGemini(ctx context.Context, apiKey, model string, maxTokens int64, calc *cost.Calculator, meter *Meter) (*GeminiProvider, error) {
	client, err := genai.NewClient(ctx, &genai.ClientConfig{
		APIKey:  apiKey,
		Backend: genai.BackendGeminiAPI,
	})
	if err != nil {
		return nil, eris.Wrap(err, "vision: create gemini client")
	}
	return newGemini(client.Models, model, maxTokens, calc, meter), nil
}

func newGemini(models contentGenerator, model string, maxTokens int64, calc *cost.Calculator, meter *Meter) *GeminiProvider {
	if model == "" {
		model = "gemini-2.5-flash"
	}
	if calc == nil {
		calc = cost.NewCalculator(cost.Rates{})
	}
	return &GeminiProvider{models: models, model: model, maxTokens: maxTokens, calc: calc, meter: meter}
}

// Generate sends the image bytes and prompt as one user content.
func (p *GeminiProvider) Generate(ctx context.Context, req Request) (string, error) {
	contents := []*genai.Content{
		genai.NewContentFromParts([]*genai.Part{
			genai.NewPartFromBytes(req.Image, req.MediaType),
			genai.NewPartFromText(req.Prompt),
		}, genai.RoleUser),
	}
	cfg := &genai.GenerateContentConfig{
		SystemInstruction: genai.NewContentFromText(systemPrompt, genai.RoleUser),
		Temperature:       genai.Ptr[float32](0),
		MaxOutputTokens:   int32(p.maxTokens),
	}

	resp, err := p.models.GenerateContent(ctx, p.model, contents, cfg)
	if err != nil {
		return "", classify(err, geminiStatus(err), "vision: gemini generate")
	}

	var in, out int64
	if resp.UsageMetadata != nil {
		in = int64(resp.UsageMetadata.PromptTokenCount)
		out = int64(resp.UsageMetadata.CandidatesTokenCount)
	}
	usd := p.calc.Gemini(p.model, in, out)
	p.meter.Record(in, out, usd)
	zap.L().Info("gemini: token usage",
		zap.String("model", p.model),
		zap.String("equipment", req.Equipment),
		zap.Int64("input_tokens", in),
		zap.Int64("output_tokens", out),
		zap.Float64("estimated_cost_usd", usd),
	)

	text := resp.Text()
	if text == "" {
		zap.L().Warn("vision: gemini returned no text", zap.String("equipment", req.Equipment))
	}
	return text, nil
}

// geminiStatus returns the HTTP status of a Gemini API error, or 0.
func geminiStatus(err error) int {
	var apiErr genai.APIError
	if errors.As(err, &apiErr) {
		return apiErr.Code
	}
	var apiErrPtr *genai.APIError
	if errors.As(err, &apiErrPtr) && apiErrPtr != nil {
		return apiErrPtr.Code
	}
	return 0
}
