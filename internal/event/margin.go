package event

import (
	"github.com/google/uuid"
	"github.com/shopspring/decimal"
)

// MarginDeposit is emitted when collateral moves into a market account.
type MarginDeposit struct {
	From       uuid.UUID       `json:"from"`
	Market     string          `json:"market"`
	Amount     decimal.Decimal `json:"amount"`
	Collateral string          `json:"collateral"`
}

func (*MarginDeposit) Type() EventType { return EventTypeMarginDeposit }

// MarginWithdraw is emitted when collateral moves out of a market account.
type MarginWithdraw struct {
	Market     string          `json:"market"`
	To         uuid.UUID       `json:"to"`
	Amount     decimal.Decimal `json:"amount"`
	Collateral string          `json:"collateral"`
}

func (*MarginWithdraw) Type() EventType { return EventTypeMarginWithdraw }

// CollateralConfigured is emitted when the global collateral set is replaced.
type CollateralConfigured struct {
	By    uuid.UUID `json:"by"`
	Count int       `json:"count"`
}

func (*CollateralConfigured) Type() EventType { return EventTypeCollateralConfigured }
