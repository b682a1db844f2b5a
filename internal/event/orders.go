package event

import (
	"time"

	"github.com/google/uuid"
	"github.com/shopspring/decimal"
)

// OrderCommitted is emitted when an order enters the pending state.
type OrderCommitted struct {
	AccountID          uuid.UUID       `json:"account_id"`
	MarketID           string          `json:"market_id"`
	SizeDelta          decimal.Decimal `json:"size_delta"`
	LimitPrice         decimal.Decimal `json:"limit_price"`
	KeeperFeeBufferUsd decimal.Decimal `json:"keeper_fee_buffer_usd"`
	CommitmentTime     time.Time       `json:"commitment_time"`
}

func (*OrderCommitted) Type() EventType { return EventTypeOrderCommitted }

// OrderSettled is emitted when a pending order fills.
type OrderSettled struct {
	AccountID uuid.UUID       `json:"account_id"`
	MarketID  string          `json:"market_id"`
	FillPrice decimal.Decimal `json:"fill_price"`
	SizeDelta decimal.Decimal `json:"size_delta"`
	Fee       decimal.Decimal `json:"fee"`
	KeeperFee decimal.Decimal `json:"keeper_fee"`
}

func (*OrderSettled) Type() EventType { return EventTypeOrderSettled }

// OrderCanceled is emitted when a stale order is removed.
type OrderCanceled struct {
	AccountID uuid.UUID       `json:"account_id"`
	MarketID  string          `json:"market_id"`
	SizeDelta decimal.Decimal `json:"size_delta"`
}

func (*OrderCanceled) Type() EventType { return EventTypeOrderCanceled }
