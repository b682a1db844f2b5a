// Package oracle supplies prices to the engine. The engine never fetches a
// price on its own: markets read through a PriceOracle, and settlements carry
// an explicit PriceUpdate so the publish-time window can be enforced.
package oracle

import (
	"fmt"
	"sync"
	"time"

	"github.com/shopspring/decimal"
)

// PriceOracle resolves current prices for markets and for collateral oracle
// nodes.
type PriceOracle interface {
	// CurrentPrice returns the latest oracle price for a market.
	CurrentPrice(marketID string) (decimal.Decimal, error)

	// NodePrice returns the latest price published by an oracle node,
	// used for collateral valuation and the ETH gas price feed.
	NodePrice(nodeID string) (decimal.Decimal, error)
}

// PriceUpdate is a signed off-chain price attestation presented at
// settlement time.
type PriceUpdate struct {
	MarketID    string
	Price       decimal.Decimal
	PublishTime time.Time
}

// PriceUnavailableError reports a missing price for a market or node.
type PriceUnavailableError struct {
	Key string
}

func (e *PriceUnavailableError) Error() string {
	return fmt.Sprintf("no price available for %s", e.Key)
}

// StaticOracle is an in-memory PriceOracle fed by SetPrice/SetNodePrice.
// The NATS price feed writes into it; tests set prices directly.
type StaticOracle struct {
	mu     sync.RWMutex
	prices map[string]decimal.Decimal
	nodes  map[string]decimal.Decimal
}

func NewStaticOracle() *StaticOracle {
	return &StaticOracle{
		prices: make(map[string]decimal.Decimal),
		nodes:  make(map[string]decimal.Decimal),
	}
}

func (o *StaticOracle) SetPrice(marketID string, price decimal.Decimal) {
	o.mu.Lock()
	defer o.mu.Unlock()
	o.prices[marketID] = price
}

func (o *StaticOracle) SetNodePrice(nodeID string, price decimal.Decimal) {
	o.mu.Lock()
	defer o.mu.Unlock()
	o.nodes[nodeID] = price
}

func (o *StaticOracle) CurrentPrice(marketID string) (decimal.Decimal, error) {
	o.mu.RLock()
	defer o.mu.RUnlock()
	p, ok := o.prices[marketID]
	if !ok {
		return decimal.Zero, &PriceUnavailableError{Key: marketID}
	}
	return p, nil
}

func (o *StaticOracle) NodePrice(nodeID string) (decimal.Decimal, error) {
	o.mu.RLock()
	defer o.mu.RUnlock()
	p, ok := o.nodes[nodeID]
	if !ok {
		return decimal.Zero, &PriceUnavailableError{Key: nodeID}
	}
	return p, nil
}
