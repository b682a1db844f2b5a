package core

import (
	"time"

	"github.com/shopspring/decimal"
)

// MarketDigest is a read-only snapshot of one market, valued at the current
// oracle price and the lazily projected funding rate.
type MarketDigest struct {
	MarketID                string
	OraclePrice             decimal.Decimal
	Skew                    decimal.Decimal
	Size                    decimal.Decimal
	FundingRate             decimal.Decimal
	FundingVelocity         decimal.Decimal
	LastFundingTime         time.Time
	DebtCorrection          decimal.Decimal
	TotalCollateralValueUsd decimal.Decimal
	CumulativeFeesUsd       decimal.Decimal
}

// PositionDigest is a read-only snapshot of one account's position on a
// market.
type PositionDigest struct {
	AccountID           string
	MarketID            string
	Size                decimal.Decimal
	EntryPrice          decimal.Decimal
	EntryFundingAccrued decimal.Decimal
	NotionalValueUsd    decimal.Decimal
	UnrealizedPnlUsd    decimal.Decimal
	RemainingMarginUsd  decimal.Decimal
	InitialMarginUsd    decimal.Decimal
	MaintenanceMargin   decimal.Decimal
	AccruedFeesUsd      decimal.Decimal
}
