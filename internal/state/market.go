package state

import (
	"time"

	"github.com/shopspring/decimal"

	"perpmarket/internal/perpmath"
)

// MarketConfig holds the per-market risk and pricing parameters set by the
// market owner.
type MarketConfig struct {
	SkewScale               decimal.Decimal
	MakerFee                decimal.Decimal
	TakerFee                decimal.Decimal
	MaxFundingVelocity      decimal.Decimal
	MaxMarketSize           decimal.Decimal
	MaxLiquidatableCapacity decimal.Decimal
	InitialMarginRatio      decimal.Decimal
	MaintenanceMarginRatio  decimal.Decimal
	OracleNodeID            string
}

// Market is the mutable per-market book state. All mutation happens on the
// engine's writer goroutine; Market itself carries no locks.
//
// FundingRate and FundingVelocity are the values as of LastFundingTime.
// The instantaneous rate at any later moment is a linear projection, done
// lazily so funding needs no timer of its own.
type Market struct {
	ID     string
	Config MarketConfig

	// Skew is the signed sum of all position sizes; Size is the unsigned
	// sum (total open interest).
	Skew decimal.Decimal
	Size decimal.Decimal

	FundingRate     decimal.Decimal
	FundingVelocity decimal.Decimal
	LastFundingTime time.Time

	// DebtCorrection tracks sum(size_i * (entryPrice_i + entryFunding_i))
	// over all open positions, maintained incrementally at each fill. It
	// converts the mark-to-market skew term into the market's reported debt.
	DebtCorrection decimal.Decimal

	// CumulativeFeesUsd is total order fees collected over the market's life.
	CumulativeFeesUsd decimal.Decimal
}

func NewMarket(id string, cfg MarketConfig, now time.Time) *Market {
	return &Market{
		ID:              id,
		Config:          cfg,
		LastFundingTime: now,
	}
}

// ProjectedFundingRate returns the instantaneous funding rate at the given
// time without mutating the market.
func (m *Market) ProjectedFundingRate(now time.Time) decimal.Decimal {
	return perpmath.ProjectFundingRate(m.FundingRate, m.FundingVelocity, now.Sub(m.LastFundingTime))
}

// AdvanceFunding folds the projection into the stored rate and moves the
// funding clock to now. Callers recompute velocity afterwards if the skew
// changed.
func (m *Market) AdvanceFunding(now time.Time) {
	m.FundingRate = m.ProjectedFundingRate(now)
	m.LastFundingTime = now
}

// RecomputeFundingVelocity derives the velocity from the current skew.
// Must be called after every skew change, never before AdvanceFunding, so
// the rate accrued under the old velocity is not rewritten.
func (m *Market) RecomputeFundingVelocity() {
	m.FundingVelocity = perpmath.FundingVelocity(m.Skew, m.Config.SkewScale, m.Config.MaxFundingVelocity)
}

// MarketManager owns every market in the system, keyed by market ID.
type MarketManager struct {
	markets map[string]*Market
}

func NewMarketManager() *MarketManager {
	return &MarketManager{markets: make(map[string]*Market)}
}

func (mm *MarketManager) Create(id string, cfg MarketConfig, now time.Time) (*Market, error) {
	if _, ok := mm.markets[id]; ok {
		return nil, &MarketExistsError{MarketID: id}
	}
	m := NewMarket(id, cfg, now)
	mm.markets[id] = m
	return m, nil
}

func (mm *MarketManager) Get(id string) (*Market, error) {
	m, ok := mm.markets[id]
	if !ok {
		return nil, &MarketNotFoundError{MarketID: id}
	}
	return m, nil
}

// All returns every market in unspecified order.
func (mm *MarketManager) All() []*Market {
	out := make([]*Market, 0, len(mm.markets))
	for _, m := range mm.markets {
		out = append(out, m)
	}
	return out
}
