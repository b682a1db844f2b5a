package perpmath

import (
	"time"

	"github.com/shopspring/decimal"
)

var secondsPerDay = decimal.NewFromInt(86400)

// FundingVelocity returns the rate of change of the funding rate, per day,
// implied by the current skew. The skew fraction skew/skewScale is clamped
// to [-1, 1] before scaling by maxVelocity, so a market can never accelerate
// funding faster than its configured ceiling.
func FundingVelocity(skew, skewScale, maxVelocity decimal.Decimal) decimal.Decimal {
	if skewScale.IsZero() {
		return decimal.Zero
	}
	one := decimal.NewFromInt(1)
	fraction := skew.Div(skewScale)
	if fraction.GreaterThan(one) {
		fraction = one
	} else if fraction.LessThan(one.Neg()) {
		fraction = one.Neg()
	}
	return fraction.Mul(maxVelocity)
}

// ProjectFundingRate advances a funding rate forward by elapsed wall time at
// the given velocity. Velocity is expressed per day; the projection is
// linear in elapsed seconds.
//
// With zero velocity (a perfectly balanced book) the rate is frozen: an
// instantaneous funding flow can persist indefinitely until a trade moves
// the skew again.
func ProjectFundingRate(rate, velocity decimal.Decimal, elapsed time.Duration) decimal.Decimal {
	if elapsed <= 0 || velocity.IsZero() {
		return rate
	}
	elapsedSec := decimal.NewFromFloat(elapsed.Seconds())
	return rate.Add(velocity.Mul(elapsedSec).Div(secondsPerDay))
}
