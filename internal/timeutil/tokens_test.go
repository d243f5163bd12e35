package timeutil

import (
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestPricing(t *testing.T) {
	p := DefaultPricing()

	assert.Equal(t, int64(15480), p.Tokens(60))
	assert.Equal(t, int64(1), p.Tokens(0.001))
	assert.InDelta(t, 0.0011615625, p.Cost(15480), 1e-12)
}

func TestEstimate(t *testing.T) {
	p := DefaultPricing()

	short := p.Estimate(60)
	assert.Equal(t, "15,480", short.TokensLabel)
	assert.Equal(t, "$0.0012", short.CostLabel)
	assert.Equal(t, "1:00", short.Duration)
	assert.Equal(t, "~15,480 tokens ≈ $0.0012", short.Summary)

	long := p.Estimate(3600)
	assert.Equal(t, int64(928800), long.Tokens)
	assert.Equal(t, "928,800", long.TokensLabel)
	assert.Equal(t, "$0.07", long.CostLabel)
	assert.Equal(t, "1:00:00", long.Duration)
}

func TestGroupThousands(t *testing.T) {
	assert.Equal(t, "0", groupThousands(0))
	assert.Equal(t, "999", groupThousands(999))
	assert.Equal(t, "1,000", groupThousands(1000))
	assert.Equal(t, "1,234,567", groupThousands(1234567))
	assert.Equal(t, "-12,345", groupThousands(-12345))
}
