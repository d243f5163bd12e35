package timeutil

import (
	"fmt"
	"math"
	"strconv"
)

// Pricing converts video length into provider tokens and cost.
// The defaults mirror the provider's published video rate.
type Pricing struct {
	TokensPerSecond float64
	CostPerMillion  float64
}

// DefaultPricing returns 258 tokens per second at $0.075 per million tokens.
func DefaultPricing() Pricing {
	return Pricing{TokensPerSecond: 258, CostPerMillion: 0.075}
}

// Tokens estimates the token count for a clip of the given length.
func (p Pricing) Tokens(seconds float64) int64 {
	return int64(math.Ceil(seconds * p.TokensPerSecond))
}

// Cost returns the USD cost of tokens.
func (p Pricing) Cost(tokens int64) float64 {
	return float64(tokens) / 1_000_000 * p.CostPerMillion
}

// Estimate is a display-ready token and cost estimate.
type Estimate struct {
	Tokens      int64   `json:"tokens"`
	CostUSD     float64 `json:"costUsd"`
	TokensLabel string  `json:"tokensLabel"`
	CostLabel   string  `json:"costLabel"`
	Duration    string  `json:"duration"`
	Summary     string  `json:"summary"`
}

// Estimate builds the display values for a clip of the given length.
func (p Pricing) Estimate(seconds float64) Estimate {
	tokens := p.Tokens(seconds)
	cost := p.Cost(tokens)

	costLabel := fmt.Sprintf("$%.2f", cost)
	if cost < 0.01 {
		costLabel = fmt.Sprintf("$%.4f", cost)
	}
	tokensLabel := groupThousands(tokens)

	return Estimate{
		Tokens:      tokens,
		CostUSD:     cost,
		TokensLabel: tokensLabel,
		CostLabel:   costLabel,
		Duration:    FormatSeconds(seconds),
		Summary:     fmt.Sprintf("~%s tokens ≈ %s", tokensLabel, costLabel),
	}
}

func groupThousands(n int64) string {
	s := strconv.FormatInt(n, 10)
	neg := false
	if n < 0 {
		neg = true
		s = s[1:]
	}

	var out []byte
	for i := range s {
		if i > 0 && (len(s)-i)%3 == 0 {
			out = append(out, ',')
		}
		out = append(out, s[i])
	}

	if neg {
		return "-" + string(out)
	}
	return string(out)
}
