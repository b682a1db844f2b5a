package event

import (
	"github.com/google/uuid"
)

// AccountCreated is emitted when a trading account is registered.
type AccountCreated struct {
	AccountID uuid.UUID `json:"account_id"`
}

func (*AccountCreated) Type() EventType { return EventTypeAccountCreated }

// MarketCreated is emitted when a new market is registered.
type MarketCreated struct {
	MarketID string    `json:"market_id"`
	By       uuid.UUID `json:"by"`
}

func (*MarketCreated) Type() EventType { return EventTypeMarketCreated }

// MarketConfigured is emitted when a market's parameters are replaced.
type MarketConfigured struct {
	MarketID string    `json:"market_id"`
	By       uuid.UUID `json:"by"`
}

func (*MarketConfigured) Type() EventType { return EventTypeMarketConfigured }
