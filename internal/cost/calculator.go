// Package cost prices vision-model calls from token usage.
package cost

// Rates holds per-provider pricing configuration, keyed by model ID.
type Rates struct {
	Anthropic map[string]ModelRate `yaml:"anthropic" mapstructure:"anthropic"`
	Gemini    map[string]ModelRate `yaml:"gemini" mapstructure:"gemini"`
}

// ModelRate holds per-model token pricing (USD per million tokens).
type ModelRate struct {
	Input  float64 `yaml:"input" mapstructure:"input"`
	Output float64 `yaml:"output" mapstructure:"output"`
}

// Calculator computes costs for API usage.
type Calculator struct {
	rates Rates
}

// NewCalculator creates a Calculator with the given rates. Providers left
// empty fall back to DefaultRates.
func NewCalculator(rates Rates) *Calculator {
	def := DefaultRates()
	if len(rates.Anthropic) == 0 {
		rates.Anthropic = def.Anthropic
	}
	if len(rates.Gemini) == 0 {
		rates.Gemini = def.Gemini
	}
	return &Calculator{rates: rates}
}

// Claude computes the cost of one Claude call. Unknown models cost 0.
func (c *Calculator) Claude(model string, input, output int64) float64 {
	return price(c.rates.Anthropic, model, input, output)
}

// Gemini computes the cost of one Gemini call. Unknown models cost 0.
func (c *Calculator) Gemini(model string, input, output int64) float64 {
	return price(c.rates.Gemini, model, input, output)
}

func price(table map[string]ModelRate, model string, input, output int64) float64 {
	rate, ok := table[model]
	if !ok {
		return 0
	}
	return (float64(input)/1e6)*rate.Input + (float64(output)/1e6)*rate.Output
}

// DefaultRates returns the default pricing rates.
func DefaultRates() Rates {
	return Rates{
		Anthropic: map[string]ModelRate{
			"claude-haiku-4-5-20251001":  {Input: 0.80, Output: 4.00},
			"claude-sonnet-4-5-20250929": {Input: 3.00, Output: 15.00},
			"claude-opus-4-6":            {Input: 15.00, Output: 75.00},
		},
		Gemini: map[string]ModelRate{
			"gemini-2.5-flash": {Input: 0.30, Output: 2.50},
			"gemini-2.5-pro":   {Input: 1.25, Output: 10.00},
		},
	}
}
