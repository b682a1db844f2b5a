package perpmath

import (
	"github.com/shopspring/decimal"
)

// KeeperFeeParams are the inputs shared by every keeper fee calculation.
// BaseFeePerGas is denominated in ETH per gas unit so that
// BaseFeePerGas * gasUnits * EthPrice yields USD directly.
type KeeperFeeParams struct {
	BaseFeePerGas       decimal.Decimal
	EthPrice            decimal.Decimal
	GasUnits            decimal.Decimal
	ProfitMarginPercent decimal.Decimal
	ProfitMarginUsd     decimal.Decimal
	MaxKeeperFeeUsd     decimal.Decimal
}

// ExecutionCostUsd is the raw on-chain execution cost the keeper incurs.
func ExecutionCostUsd(p KeeperFeeParams) decimal.Decimal {
	return p.BaseFeePerGas.Mul(p.GasUnits).Mul(p.EthPrice)
}

// feeWithProfit grosses up the execution cost by the keeper's profit margin.
// The margin is the better of a percentage markup and a flat USD amount, so
// keepers stay profitable at both high and low gas regimes.
func feeWithProfit(p KeeperFeeParams) decimal.Decimal {
	cost := ExecutionCostUsd(p)
	one := decimal.NewFromInt(1)
	pct := cost.Mul(one.Add(p.ProfitMarginPercent))
	flat := cost.Add(p.ProfitMarginUsd)
	if pct.GreaterThan(flat) {
		return pct
	}
	return flat
}

// SettlementKeeperFee is the fee paid to the keeper that settles an order.
// The trader-supplied buffer rides on top of the capped fee.
func SettlementKeeperFee(p KeeperFeeParams, bufferUsd decimal.Decimal) decimal.Decimal {
	fee := feeWithProfit(p)
	if fee.GreaterThan(p.MaxKeeperFeeUsd) {
		fee = p.MaxKeeperFeeUsd
	}
	return fee.Add(bufferUsd)
}

// FlagKeeperFee is the fee paid to the keeper that flags a position for
// liquidation. The position-size reward is inside the cap: flagging a whale
// never pays more than maxKeeperFeeUsd.
func FlagKeeperFee(p KeeperFeeParams, size, price, liquidationRewardPercent decimal.Decimal) decimal.Decimal {
	fee := feeWithProfit(p).Add(size.Abs().Mul(price).Mul(liquidationRewardPercent))
	if fee.GreaterThan(p.MaxKeeperFeeUsd) {
		return p.MaxKeeperFeeUsd
	}
	return fee
}

// LiquidationKeeperFee is the fee for executing a liquidation. Positions
// larger than the per-call liquidation capacity take multiple calls, and the
// keeper is paid the capped fee once per call.
func LiquidationKeeperFee(p KeeperFeeParams, size, maxLiquidatableCapacity decimal.Decimal) decimal.Decimal {
	fee := feeWithProfit(p)
	if fee.GreaterThan(p.MaxKeeperFeeUsd) {
		fee = p.MaxKeeperFeeUsd
	}
	if maxLiquidatableCapacity.IsZero() {
		return fee
	}
	calls := size.Abs().Div(maxLiquidatableCapacity).Ceil()
	if calls.LessThan(decimal.NewFromInt(1)) {
		calls = decimal.NewFromInt(1)
	}
	return fee.Mul(calls)
}
