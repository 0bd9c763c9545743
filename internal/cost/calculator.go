// Package cost estimates USD spend for LLM fit-analysis calls.
package cost

// ModelRate holds per-model token pricing (per million tokens).
type ModelRate struct {
	Input  float64 `yaml:"input" mapstructure:"input"`
	Output float64 `yaml:"output" mapstructure:"output"`
}

// Rates holds per-model pricing for the fit analyzer's LLM provider.
type Rates struct {
	Models map[string]ModelRate `yaml:"models" mapstructure:"models"`
}

// Calculator computes costs for LLM usage.
type Calculator struct {
	rates Rates
}

// NewCalculator creates a Calculator with the given rates.
func NewCalculator(rates Rates) *Calculator {
	return &Calculator{rates: rates}
}

// Estimate returns the USD cost of a completion given prompt/completion token counts.
func (c *Calculator) Estimate(model string, promptTokens, completionTokens int64) float64 {
	rate, ok := c.rates.Models[model]
	if !ok {
		return 0
	}
	inCost := (float64(promptTokens) / 1e6) * rate.Input
	outCost := (float64(completionTokens) / 1e6) * rate.Output
	return inCost + outCost
}

// DefaultRates returns the default pricing rates for commonly used models.
func DefaultRates() Rates {
	return Rates{
		Models: map[string]ModelRate{
			"gpt-4o-mini":        {Input: 0.15, Output: 0.60},
			"gpt-4o":             {Input: 2.50, Output: 10.00},
			"claude-haiku-4-5":   {Input: 0.80, Output: 4.00},
			"claude-sonnet-4-5":  {Input: 3.00, Output: 15.00},
		},
	}
}
