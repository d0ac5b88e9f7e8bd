package auction

import (
	"github.com/shopspring/decimal"

	"ticket-exchange/config"
)

var oneHundred = decimal.NewFromInt(100)

// IncrementPolicy is the tiered schedule for the minimum amount a new bid
// must exceed the current highest by. Below the low ceiling the step is a
// flat amount, through the mid range it is a percentage of the current
// highest, and above that a larger flat step dampens sniping granularity.
// The breakpoints are configuration, not constants.
type IncrementPolicy struct {
	lowCeiling decimal.Decimal
	midCeiling decimal.Decimal
	lowStep    decimal.Decimal
	midPercent decimal.Decimal
	highStep   decimal.Decimal
}

func NewIncrementPolicy(cfg *config.Config) *IncrementPolicy {
	return &IncrementPolicy{
		lowCeiling: cfg.TierLowCeiling,
		midCeiling: cfg.TierMidCeiling,
		lowStep:    cfg.TierLowStep,
		midPercent: cfg.TierMidPercent,
		highStep:   cfg.TierHighStep,
	}
}

// step returns the increment for a given current highest. Monotonic in
// currentHighest as long as lowStep <= lowCeiling*midPercent and
// highStep >= midCeiling*midPercent, which the defaults satisfy.
func (p *IncrementPolicy) step(currentHighest decimal.Decimal) decimal.Decimal {
	switch {
	case currentHighest.Cmp(p.lowCeiling) < 0:
		return p.lowStep
	case currentHighest.Cmp(p.midCeiling) < 0:
		return currentHighest.Mul(p.midPercent).Div(oneHundred)
	default:
		return p.highStep
	}
}

// MinimumNextBid returns the lowest acceptable next bid over the given
// current highest. The step is always positive, so a bid exactly equal to
// the current highest can never validate.
func (p *IncrementPolicy) MinimumNextBid(currentHighest decimal.Decimal) decimal.Decimal {
	return currentHighest.Add(p.step(currentHighest))
}

// Validate reports whether the proposed amount satisfies the schedule.
func (p *IncrementPolicy) Validate(proposed, currentHighest decimal.Decimal) bool {
	return proposed.Cmp(p.MinimumNextBid(currentHighest)) >= 0
}
