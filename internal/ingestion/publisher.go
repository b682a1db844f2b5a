package ingestion

import (
	"context"
	"encoding/json"
	"fmt"
	"time"

	"github.com/nats-io/nats.go/jetstream"
	"github.com/rs/zerolog"

	"perpmarket/internal/core"
	"perpmarket/internal/event"
	"perpmarket/internal/observability"
)

// OutboundPublisher republishes engine events to NATS for downstream
// consumers. Subjects follow perps.market.events.{event_type}.{market_id}.
// Publishing is best-effort: the event log in Postgres is the source of
// truth, so a failed publish is logged and skipped.
type OutboundPublisher struct {
	js        jetstream.JetStream
	inputChan <-chan core.Output
	logger    zerolog.Logger
}

type outboundJSON struct {
	Sequence  int64         `json:"sequence"`
	EventType string        `json:"event_type"`
	MarketID  string        `json:"market_id,omitempty"`
	Timestamp time.Time     `json:"timestamp"`
	Payload   event.Payload `json:"payload"`
}

func NewOutboundPublisher(js jetstream.JetStream, inputChan <-chan core.Output) *OutboundPublisher {
	return &OutboundPublisher{
		js:        js,
		inputChan: inputChan,
		logger:    observability.NewLogger("publisher"),
	}
}

// Run starts the outbound publisher loop.
func (op *OutboundPublisher) Run(ctx context.Context) error {
	for {
		select {
		case <-ctx.Done():
			return ctx.Err()

		case out, ok := <-op.inputChan:
			if !ok {
				return nil
			}
			if err := op.publish(ctx, out.Envelope); err != nil {
				op.logger.Warn().
					Int64("sequence", out.Envelope.Sequence).
					Err(err).
					Msg("outbound publish failed")
			}
		}
	}
}

func (op *OutboundPublisher) publish(ctx context.Context, env event.Envelope) error {
	data, err := json.Marshal(outboundJSON{
		Sequence:  env.Sequence,
		EventType: env.EventType.String(),
		MarketID:  env.MarketID,
		Timestamp: env.Timestamp,
		Payload:   env.Payload,
	})
	if err != nil {
		return fmt.Errorf("marshal event: %w", err)
	}

	subject := fmt.Sprintf("perps.market.events.%s", env.EventType)
	if env.MarketID != "" {
		subject = fmt.Sprintf("%s.%s", subject, env.MarketID)
	}

	_, err = op.js.Publish(ctx, subject, data)
	return err
}

// EnsureOutboundStream creates the outbound events stream.
func EnsureOutboundStream(ctx context.Context, js jetstream.JetStream) error {
	_, err := js.CreateOrUpdateStream(ctx, jetstream.StreamConfig{
		Name:      "PERPS_MARKET_EVENTS",
		Subjects:  []string{"perps.market.events.>"},
		Storage:   jetstream.FileStorage,
		Retention: jetstream.LimitsPolicy,
		MaxAge:    72 * time.Hour,
		Replicas:  1,
	})
	if err != nil {
		return fmt.Errorf("create outbound stream: %w", err)
	}
	logger := observability.NewLogger("publisher")
	logger.Info().Msg("ensured outbound stream PERPS_MARKET_EVENTS")
	return nil
}
