package oracle

import (
	"encoding/json"
	"fmt"
	"time"

	"github.com/nats-io/nats.go"
	"github.com/rs/zerolog"
	"github.com/shopspring/decimal"
)

// Subjects for the price plane. Market prices arrive on
// perps.prices.market.{market_id}, node prices on perps.prices.node.{node_id}.
const (
	MarketPriceSubject = "perps.prices.market.>"
	NodePriceSubject   = "perps.prices.node.>"
)

type priceJSON struct {
	Price         string `json:"price"`
	PublishTimeMs int64  `json:"publish_time_ms"`
}

// NATSFeed subscribes to the price subjects on core NATS and keeps a
// StaticOracle current. Prices are fire-and-forget: a missed update is
// superseded by the next one, so the feed uses plain subscriptions rather
// than JetStream.
type NATSFeed struct {
	nc     *nats.Conn
	target *StaticOracle
	subs   []*nats.Subscription
	log    zerolog.Logger
}

func NewNATSFeed(nc *nats.Conn, target *StaticOracle, log zerolog.Logger) *NATSFeed {
	return &NATSFeed{nc: nc, target: target, log: log}
}

// Subscribe attaches the feed to both price subjects.
func (f *NATSFeed) Subscribe() error {
	marketSub, err := f.nc.Subscribe(MarketPriceSubject, func(msg *nats.Msg) {
		f.handle(msg, f.target.SetPrice)
	})
	if err != nil {
		return fmt.Errorf("subscribe market prices: %w", err)
	}
	f.subs = append(f.subs, marketSub)

	nodeSub, err := f.nc.Subscribe(NodePriceSubject, func(msg *nats.Msg) {
		f.handle(msg, f.target.SetNodePrice)
	})
	if err != nil {
		return fmt.Errorf("subscribe node prices: %w", err)
	}
	f.subs = append(f.subs, nodeSub)

	f.log.Info().Msg("price feed subscribed")
	return nil
}

func (f *NATSFeed) handle(msg *nats.Msg, set func(key string, price decimal.Decimal)) {
	key := subjectTail(msg.Subject)
	if key == "" {
		f.log.Warn().Str("subject", msg.Subject).Msg("price update with empty key")
		return
	}

	var j priceJSON
	if err := json.Unmarshal(msg.Data, &j); err != nil {
		f.log.Warn().Err(err).Str("subject", msg.Subject).Msg("malformed price update")
		return
	}

	price, err := decimal.NewFromString(j.Price)
	if err != nil || price.Sign() <= 0 {
		f.log.Warn().Str("subject", msg.Subject).Str("price", j.Price).Msg("unusable price, dropped")
		return
	}

	set(key, price)
	f.log.Debug().
		Str("key", key).
		Str("price", price.String()).
		Time("published", time.UnixMilli(j.PublishTimeMs)).
		Msg("price updated")
}

// subjectTail returns everything after the third dot of a price subject.
func subjectTail(subject string) string {
	dots := 0
	for i := 0; i < len(subject); i++ {
		if subject[i] == '.' {
			dots++
			if dots == 3 {
				return subject[i+1:]
			}
		}
	}
	return ""
}

func (f *NATSFeed) Stop() {
	for _, s := range f.subs {
		s.Unsubscribe()
	}
	f.log.Info().Msg("price feed stopped")
}
