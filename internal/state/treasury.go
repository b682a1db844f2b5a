package state

import (
	"github.com/shopspring/decimal"
)

// Treasury tracks each market's net issuance of synthetic USD against the
// outside world. Deposited sUSD is burned (issuance falls), withdrawn sUSD
// and keeper payouts are minted (issuance rises). Net issuance is the bridge
// between a market's reported debt and its total debt.
type Treasury struct {
	netIssuance map[string]decimal.Decimal
}

func NewTreasury() *Treasury {
	return &Treasury{netIssuance: make(map[string]decimal.Decimal)}
}

func (t *Treasury) NetIssuance(marketID string) decimal.Decimal {
	return t.netIssuance[marketID]
}

// OnUsdDeposit records a burn of deposited synthetic USD.
func (t *Treasury) OnUsdDeposit(marketID string, amount decimal.Decimal) {
	t.netIssuance[marketID] = t.netIssuance[marketID].Sub(amount)
}

// OnUsdWithdraw records a mint of withdrawn synthetic USD.
func (t *Treasury) OnUsdWithdraw(marketID string, amount decimal.Decimal) {
	t.netIssuance[marketID] = t.netIssuance[marketID].Add(amount)
}

// OnKeeperPaid records synthetic USD minted to pay a keeper.
func (t *Treasury) OnKeeperPaid(marketID string, fee decimal.Decimal) {
	t.netIssuance[marketID] = t.netIssuance[marketID].Add(fee)
}
