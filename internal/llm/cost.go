package llm

// modelRate holds USD cost per million tokens.
type modelRate struct {
	Input  float64
	Output float64
}

// modelRates is the static pricing table. Values are per 1M tokens.
var modelRates = map[string]modelRate{
	"llama-3.1-8b-instant":          {Input: 0.05, Output: 0.08},
	"llama-3.3-70b-versatile":       {Input: 0.59, Output: 0.79},
	"deepseek-r1-distill-llama-70b": {Input: 0.75, Output: 0.99},
	"gpt-4o-mini":                   {Input: 0.15, Output: 0.60},
	"gpt-4o":                        {Input: 2.50, Output: 10.00},
	"o3-mini":                       {Input: 1.10, Output: 4.40},
}

// cheapestRate is used for models missing from the table so cost reporting
// never returns zero for real usage.
func cheapestRate() modelRate {
	var best modelRate
	first := true
	for _, r := range modelRates {
		if first || r.Input+r.Output < best.Input+best.Output {
			best = r
			first = false
		}
	}
	return best
}

// EstimateCost returns the estimated USD cost for a completion.
func EstimateCost(model string, usage Usage) float64 {
	rate, ok := modelRates[model]
	if !ok {
		rate = cheapestRate()
	}
	return float64(usage.PromptTokens)/1e6*rate.Input +
		float64(usage.CompletionTokens)/1e6*rate.Output
}
