package state

import (
	"github.com/google/uuid"
	"github.com/shopspring/decimal"
)

// Position is an account's open exposure on a single market.
//
// EntryPrice and EntryFundingAccrued are reset to the fill price and the
// market's funding rate at every settlement, after realizing the profit and
// funding accrued on the pre-existing size. A position therefore never
// carries unrealized funding across a fill.
type Position struct {
	AccountID uuid.UUID
	MarketID  string

	Size                decimal.Decimal
	EntryPrice          decimal.Decimal
	EntryFundingAccrued decimal.Decimal

	// AccruedFeesUsd is the lifetime order fees this position has paid.
	AccruedFeesUsd decimal.Decimal
}

func (p *Position) IsOpen() bool {
	return p != nil && !p.Size.IsZero()
}

// UnrealizedPnl values the position at the given price and funding rate:
// price movement since entry plus funding accrued per unit of size since
// entry. Funding carries the same sign convention as price movement, which
// keeps sum-of-position-PnL equal to the market's debt-correction view.
func (p *Position) UnrealizedPnl(price, fundingRate decimal.Decimal) decimal.Decimal {
	if !p.IsOpen() {
		return decimal.Zero
	}
	pricePnl := p.Size.Mul(price.Sub(p.EntryPrice))
	fundingPnl := p.Size.Mul(fundingRate.Sub(p.EntryFundingAccrued))
	return pricePnl.Add(fundingPnl)
}

// EntryDebtContribution is this position's term in the market's debt
// correction: size * (entryPrice + entryFundingAccrued).
func (p *Position) EntryDebtContribution() decimal.Decimal {
	if !p.IsOpen() {
		return decimal.Zero
	}
	return p.Size.Mul(p.EntryPrice.Add(p.EntryFundingAccrued))
}

type positionKey struct {
	accountID uuid.UUID
	marketID  string
}

// PositionManager owns all open positions, keyed by (account, market).
type PositionManager struct {
	positions map[positionKey]*Position
}

func NewPositionManager() *PositionManager {
	return &PositionManager{positions: make(map[positionKey]*Position)}
}

// Get returns the position for (account, market), or nil if the account has
// no exposure there. A nil Position behaves as a flat position.
func (pm *PositionManager) Get(accountID uuid.UUID, marketID string) *Position {
	return pm.positions[positionKey{accountID: accountID, marketID: marketID}]
}

// ApplyFill replaces the position after a settled trade. Flat results are
// removed from the book. Returns the updated position, nil when flat.
func (pm *PositionManager) ApplyFill(accountID uuid.UUID, marketID string, newSize, fillPrice, fundingRate, feePaid decimal.Decimal) *Position {
	key := positionKey{accountID: accountID, marketID: marketID}
	prev := pm.positions[key]

	fees := feePaid
	if prev != nil {
		fees = prev.AccruedFeesUsd.Add(feePaid)
	}

	if newSize.IsZero() {
		delete(pm.positions, key)
		return nil
	}

	p := &Position{
		AccountID:           accountID,
		MarketID:            marketID,
		Size:                newSize,
		EntryPrice:          fillPrice,
		EntryFundingAccrued: fundingRate,
		AccruedFeesUsd:      fees,
	}
	pm.positions[key] = p
	return p
}

// ForMarket returns every open position on the given market.
func (pm *PositionManager) ForMarket(marketID string) []*Position {
	var out []*Position
	for k, p := range pm.positions {
		if k.marketID == marketID {
			out = append(out, p)
		}
	}
	return out
}

func (pm *PositionManager) Count() int {
	return len(pm.positions)
}
