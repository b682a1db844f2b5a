// Package perpmath holds the pure pricing, fee, funding and keeper-fee
// arithmetic for the perp market. Every function in this package is a pure
// function of its inputs: no clocks, no state, no I/O. The core engine is the
// only caller and owns all rounding decisions at the settlement boundary.
package perpmath

import (
	"github.com/shopspring/decimal"
)

// PriceDivergence returns skew / skewScale, the premium (or discount) the
// current skew imposes on the oracle price. A zero skewScale disables the
// skew-pricing mechanism entirely.
func PriceDivergence(skew, skewScale decimal.Decimal) decimal.Decimal {
	if skewScale.IsZero() {
		return decimal.Zero
	}
	return skew.Div(skewScale)
}

// FillPrice computes the size-weighted execution price for a trade of
// sizeDelta against the current skew. It is the arithmetic mean of the
// skew-adjusted price immediately before and immediately after the trade, so
// a trade that crosses the skew through zero pays the average premium along
// the way.
func FillPrice(skew, skewScale, oraclePrice, sizeDelta decimal.Decimal) decimal.Decimal {
	if skewScale.IsZero() {
		return oraclePrice
	}
	one := decimal.NewFromInt(1)
	pdBefore := PriceDivergence(skew, skewScale)
	pdAfter := PriceDivergence(skew.Add(sizeDelta), skewScale)
	priceBefore := oraclePrice.Mul(one.Add(pdBefore))
	priceAfter := oraclePrice.Mul(one.Add(pdAfter))
	return priceBefore.Add(priceAfter).Div(decimal.NewFromInt(2))
}

// SameSide reports whether a and b do not oppose each other. Zero is
// considered on both sides.
func SameSide(a, b decimal.Decimal) bool {
	if a.IsZero() || b.IsZero() {
		return true
	}
	return a.Sign() == b.Sign()
}

// FeeRatios splits a trade into its maker and taker proportions based on how
// it moves the market skew.
//
// A trade that leaves the skew on the same side it started on is either pure
// taker (it expands the skew) or pure maker (it reduces it). A trade that
// flips the skew through zero is charged proportionally: the part of the
// trade that reduced the old skew is maker flow, the part that built the new
// skew is taker flow.
func FeeRatios(skew, sizeDelta decimal.Decimal) (maker, taker decimal.Decimal) {
	one := decimal.NewFromInt(1)
	newSkew := skew.Add(sizeDelta)

	if SameSide(newSkew, skew) {
		if SameSide(sizeDelta, skew) {
			return decimal.Zero, one
		}
		return one, decimal.Zero
	}

	taker = newSkew.Div(sizeDelta)
	maker = one.Sub(taker)
	return maker, taker
}

// OrderFee returns the total fee, in USD, for a trade of sizeDelta executed
// at fillPrice, given the pre-trade skew and the market's maker/taker rates.
func OrderFee(fillPrice, sizeDelta, skew, makerFeeRate, takerFeeRate decimal.Decimal) decimal.Decimal {
	notional := sizeDelta.Abs().Mul(fillPrice)
	maker, taker := FeeRatios(skew, sizeDelta)
	return notional.Mul(maker).Mul(makerFeeRate).Add(notional.Mul(taker).Mul(takerFeeRate))
}
