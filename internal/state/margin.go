package state

import (
	"github.com/google/uuid"
	"github.com/shopspring/decimal"
)

// CollateralUsd is the synthetic USD collateral type. It is priced at 1 and
// is the only collateral realized profit and loss settles into, so it is the
// only balance allowed to go negative.
const CollateralUsd = "sUSD"

// CollateralZero is the null collateral marker.
const CollateralZero = ""

// CollateralConfig is one entry of the system-wide collateral configuration.
type CollateralConfig struct {
	Collateral   string
	OracleNodeID string
	MaxAllowable decimal.Decimal
}

type balanceKey struct {
	accountID  uuid.UUID
	marketID   string
	collateral string
}

// MarginLedger tracks per-account, per-market collateral balances and the
// system-wide totals per collateral type. The configuration is an atomic
// snapshot: SetConfiguration replaces the entire supported set, and an empty
// configuration revokes every collateral type at once.
//
// Revoking a collateral type does not touch existing balances; it only stops
// new deposits.
type MarginLedger struct {
	configs  []CollateralConfig
	bySymbol map[string]CollateralConfig
	// lastNodes remembers the oracle node of every collateral ever
	// configured, so balances held in a revoked type can still be valued.
	lastNodes map[string]string
	balances  map[balanceKey]decimal.Decimal
	totals    map[string]decimal.Decimal
}

func NewMarginLedger() *MarginLedger {
	return &MarginLedger{
		bySymbol:  make(map[string]CollateralConfig),
		lastNodes: make(map[string]string),
		balances:  make(map[balanceKey]decimal.Decimal),
		totals:    make(map[string]decimal.Decimal),
	}
}

// SetConfiguration atomically replaces the supported collateral set.
func (ml *MarginLedger) SetConfiguration(configs []CollateralConfig) {
	ml.configs = make([]CollateralConfig, len(configs))
	copy(ml.configs, configs)
	ml.bySymbol = make(map[string]CollateralConfig, len(configs))
	for _, c := range configs {
		ml.bySymbol[c.Collateral] = c
		ml.lastNodes[c.Collateral] = c.OracleNodeID
	}
}

// Configuration returns the current collateral configuration in the order it
// was set.
func (ml *MarginLedger) Configuration() []CollateralConfig {
	out := make([]CollateralConfig, len(ml.configs))
	copy(out, ml.configs)
	return out
}

func (ml *MarginLedger) Config(collateral string) (CollateralConfig, bool) {
	c, ok := ml.bySymbol[collateral]
	return c, ok
}

// OracleNode returns the oracle node for a collateral type, falling back to
// the last node it was ever configured with. Revoking a type must not strand
// the balances still holding it.
func (ml *MarginLedger) OracleNode(collateral string) (string, bool) {
	if c, ok := ml.bySymbol[collateral]; ok {
		return c.OracleNodeID, true
	}
	node, ok := ml.lastNodes[collateral]
	return node, ok
}

// Balance returns the account's balance in a single collateral type on a
// market. Missing entries are zero.
func (ml *MarginLedger) Balance(accountID uuid.UUID, marketID, collateral string) decimal.Decimal {
	return ml.balances[balanceKey{accountID: accountID, marketID: marketID, collateral: collateral}]
}

// SystemTotal returns the system-wide deposited amount of a collateral type.
func (ml *MarginLedger) SystemTotal(collateral string) decimal.Decimal {
	return ml.totals[collateral]
}

// Deposit credits the account and the system total. The caller has already
// validated the collateral against the configuration and the cap.
func (ml *MarginLedger) Deposit(accountID uuid.UUID, marketID, collateral string, amount decimal.Decimal) {
	ml.add(accountID, marketID, collateral, amount)
	ml.totals[collateral] = ml.totals[collateral].Add(amount)
}

// Withdraw debits the account and the system total.
func (ml *MarginLedger) Withdraw(accountID uuid.UUID, marketID, collateral string, amount decimal.Decimal) {
	ml.add(accountID, marketID, collateral, amount.Neg())
	ml.totals[collateral] = ml.totals[collateral].Sub(amount)
}

// RealizeUsd applies a realized profit or loss to the account's synthetic
// USD balance. Losses can push the balance negative; the margin check at
// settlement time is what keeps accounts solvent, not this ledger.
// Realized flows are not deposits, so the system total is untouched.
func (ml *MarginLedger) RealizeUsd(accountID uuid.UUID, marketID string, delta decimal.Decimal) {
	ml.add(accountID, marketID, CollateralUsd, delta)
}

func (ml *MarginLedger) add(accountID uuid.UUID, marketID, collateral string, delta decimal.Decimal) {
	key := balanceKey{accountID: accountID, marketID: marketID, collateral: collateral}
	next := ml.balances[key].Add(delta)
	if next.IsZero() {
		delete(ml.balances, key)
		return
	}
	ml.balances[key] = next
}

// AccountBalance is one collateral balance of an account on a market.
type AccountBalance struct {
	Collateral string
	Amount     decimal.Decimal
}

// AccountBalances returns every nonzero balance the account holds on the
// market.
func (ml *MarginLedger) AccountBalances(accountID uuid.UUID, marketID string) []AccountBalance {
	var out []AccountBalance
	for k, v := range ml.balances {
		if k.accountID == accountID && k.marketID == marketID {
			out = append(out, AccountBalance{Collateral: k.collateral, Amount: v})
		}
	}
	return out
}

// CollateralValueUsd values all of the account's collateral on a market,
// including the synthetic USD balance, using the given price function.
func (ml *MarginLedger) CollateralValueUsd(accountID uuid.UUID, marketID string, priceOf func(collateral string) (decimal.Decimal, error)) (decimal.Decimal, error) {
	total := decimal.Zero
	for k, v := range ml.balances {
		if k.accountID != accountID || k.marketID != marketID {
			continue
		}
		price, err := priceOf(k.collateral)
		if err != nil {
			return decimal.Zero, err
		}
		total = total.Add(v.Mul(price))
	}
	return total, nil
}

// MarketCollateralValueUsd values all collateral held against a market
// across every account, including synthetic USD balances.
func (ml *MarginLedger) MarketCollateralValueUsd(marketID string, priceOf func(collateral string) (decimal.Decimal, error)) (decimal.Decimal, error) {
	total := decimal.Zero
	for k, v := range ml.balances {
		if k.marketID != marketID {
			continue
		}
		price, err := priceOf(k.collateral)
		if err != nil {
			return decimal.Zero, err
		}
		total = total.Add(v.Mul(price))
	}
	return total, nil
}

// MarketDepositedValueUsd values the non-USD collateral deposited against a
// market. Synthetic USD balances are bookkeeping entries, not deposited
// assets, so they are excluded here.
func (ml *MarginLedger) MarketDepositedValueUsd(marketID string, priceOf func(collateral string) (decimal.Decimal, error)) (decimal.Decimal, error) {
	total := decimal.Zero
	for k, v := range ml.balances {
		if k.marketID != marketID || k.collateral == CollateralUsd {
			continue
		}
		price, err := priceOf(k.collateral)
		if err != nil {
			return decimal.Zero, err
		}
		total = total.Add(v.Mul(price))
	}
	return total, nil
}
