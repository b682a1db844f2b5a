package core

import (
	"time"

	"github.com/shopspring/decimal"

	"perpmarket/internal/perpmath"
)

// SettlementConfig is the system-wide settlement and keeper-fee
// configuration, replaceable at runtime by the owner.
type SettlementConfig struct {
	// Settlement window. An order settles only once it is at least
	// MinOrderAge old and at most MaxOrderAge old.
	MinOrderAge time.Duration
	MaxOrderAge time.Duration

	// Publish-time window for off-chain price attestations, measured
	// around commitmentTime + MinOrderAge.
	PythPublishTimeMin time.Duration
	PythPublishTimeMax time.Duration

	// Keeper fee inputs. BaseFeePerGas is ETH per gas unit.
	BaseFeePerGas             decimal.Decimal
	KeeperSettlementGasUnits  decimal.Decimal
	KeeperFlagGasUnits        decimal.Decimal
	KeeperLiquidationGasUnits decimal.Decimal
	KeeperProfitMarginPercent decimal.Decimal
	KeeperProfitMarginUsd     decimal.Decimal
	MaxKeeperFeeUsd           decimal.Decimal
	LiquidationRewardPercent  decimal.Decimal

	// Oracle node publishing the ETH price used to convert gas to USD.
	EthOracleNodeID string
}

func (c SettlementConfig) keeperParams(gasUnits, ethPrice decimal.Decimal) perpmath.KeeperFeeParams {
	return perpmath.KeeperFeeParams{
		BaseFeePerGas:       c.BaseFeePerGas,
		EthPrice:            ethPrice,
		GasUnits:            gasUnits,
		ProfitMarginPercent: c.KeeperProfitMarginPercent,
		ProfitMarginUsd:     c.KeeperProfitMarginUsd,
		MaxKeeperFeeUsd:     c.MaxKeeperFeeUsd,
	}
}

// PublishWindow returns the inclusive bounds a price publish time must fall
// in to settle an order committed at commitmentTime.
func (c SettlementConfig) PublishWindow(commitmentTime time.Time) (earliest, latest time.Time) {
	base := commitmentTime.Add(c.MinOrderAge)
	earliest = base.Add(-c.PythPublishTimeMin)
	latest = base.Add(c.PythPublishTimeMax - c.PythPublishTimeMin)
	return earliest, latest
}
