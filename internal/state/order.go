package state

import (
	"time"

	"github.com/google/uuid"
	"github.com/shopspring/decimal"
)

// PendingOrder is a committed-but-unsettled order. At most one pending order
// exists per (account, market); committing over a stale one replaces it.
type PendingOrder struct {
	AccountID          uuid.UUID
	MarketID           string
	SizeDelta          decimal.Decimal
	LimitPrice         decimal.Decimal
	KeeperFeeBufferUsd decimal.Decimal
	CommitmentTime     time.Time
}

// OrderManager owns all pending orders, keyed by (account, market).
type OrderManager struct {
	orders map[positionKey]*PendingOrder
}

func NewOrderManager() *OrderManager {
	return &OrderManager{orders: make(map[positionKey]*PendingOrder)}
}

func (om *OrderManager) Get(accountID uuid.UUID, marketID string) *PendingOrder {
	return om.orders[positionKey{accountID: accountID, marketID: marketID}]
}

func (om *OrderManager) Put(o *PendingOrder) {
	om.orders[positionKey{accountID: o.AccountID, marketID: o.MarketID}] = o
}

func (om *OrderManager) Remove(accountID uuid.UUID, marketID string) {
	delete(om.orders, positionKey{accountID: accountID, marketID: marketID})
}

func (om *OrderManager) Count() int {
	return len(om.orders)
}
