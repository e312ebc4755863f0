package ai

import "strings"

// price is USD per million tokens.
type price struct {
	input  float64
	output float64
}

var (
	haikuPrice  = price{input: 1, output: 5}
	sonnetPrice = price{input: 3, output: 15}
	opusPrice   = price{input: 15, output: 75}
)

// priceFor picks the price list by model family. Unknown models are
// charged at sonnet rates.
func priceFor(model string) price {
	m := strings.ToLower(model)
	switch {
	case strings.Contains(m, "haiku"):
		return haikuPrice
	case strings.Contains(m, "opus"):
		return opusPrice
	default:
		return sonnetPrice
	}
}

// usageCost converts a response's token usage to USD. Cache writes are
// billed at 1.25x input and cache reads at 0.1x input.
func usageCost(model string, u apiUsage) float64 {
	p := priceFor(model)
	input := float64(u.InputTokens) +
		1.25*float64(u.CacheCreationInputTokens) +
		0.1*float64(u.CacheReadInputTokens)
	return (input*p.input + float64(u.OutputTokens)*p.output) / 1_000_000
}
