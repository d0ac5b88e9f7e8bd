package auction

import (
	"testing"

	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/assert"

	"ticket-exchange/config"
)

func testPolicy() *IncrementPolicy {
	return NewIncrementPolicy(&config.Config{
		TierLowCeiling: decimal.RequireFromString("0.5"),
		TierMidCeiling: decimal.RequireFromString("5"),
		TierLowStep:    decimal.RequireFromString("0.01"),
		TierMidPercent: decimal.RequireFromString("5"),
		TierHighStep:   decimal.RequireFromString("0.5"),
	})
}

func TestIncrementPolicy_MinimumNextBid(t *testing.T) {
	policy := testPolicy()

	tests := []struct {
		current string
		want    string
	}{
		// flat step below the low ceiling
		{"0.05", "0.06"},
		{"0.49", "0.5"},
		// percentage through the mid range
		{"0.5", "0.525"},
		{"1", "1.05"},
		{"4", "4.2"},
		// large flat step at the top
		{"5", "5.5"},
		{"10", "10.5"},
	}

	for _, tt := range tests {
		got := policy.MinimumNextBid(decimal.RequireFromString(tt.current))
		assert.True(t, got.Equal(decimal.RequireFromString(tt.want)),
			"current %s: want %s, got %s", tt.current, tt.want, got)
	}
}

func TestIncrementPolicy_Validate(t *testing.T) {
	policy := testPolicy()
	current := decimal.RequireFromString("0.06")

	// current highest 0.06 means the next bid needs at least 0.07
	assert.False(t, policy.Validate(decimal.RequireFromString("0.06"), current))
	assert.False(t, policy.Validate(decimal.RequireFromString("0.065"), current))
	assert.True(t, policy.Validate(decimal.RequireFromString("0.07"), current))
	assert.True(t, policy.Validate(decimal.RequireFromString("0.10"), current))
}

func TestIncrementPolicy_MinimumIsMonotonic(t *testing.T) {
	policy := testPolicy()

	grid := []string{
		"0.01", "0.10", "0.25", "0.49", "0.499",
		"0.5", "0.51", "1", "2.5", "4.99",
		"5", "5.01", "7", "20", "100",
	}

	prev := decimal.Zero
	for _, raw := range grid {
		current := decimal.RequireFromString(raw)
		minimum := policy.MinimumNextBid(current)

		assert.True(t, minimum.Cmp(current) > 0,
			"minimum for %s must exceed it, got %s", raw, minimum)
		assert.True(t, minimum.Cmp(prev) >= 0,
			"minimum must not decrease across the schedule at %s", raw)

		prev = minimum
	}
}
