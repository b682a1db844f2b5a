package ingestion

import (
	"context"
	"fmt"
	"time"

	"github.com/nats-io/nats.go"
	"github.com/nats-io/nats.go/jetstream"
	"github.com/rs/zerolog"

	"perpmarket/internal/observability"
)

// NATSSubscriber subscribes to NATS JetStream command subjects and feeds
// commands into the single-writer engine loop via the commandChan.
type NATSSubscriber struct {
	js          jetstream.JetStream
	commandChan chan<- RawCommand
	consumers   []jetstream.ConsumeContext
	logger      zerolog.Logger
}

// SubjectConfig maps NATS subjects to command types. Each command family has
// its own subject so producers can scale independently.
type SubjectConfig struct {
	Subject      string
	CommandType  string
	ConsumerName string
	StreamName   string
}

// DefaultSubjects returns the standard command subject configuration.
func DefaultSubjects() []SubjectConfig {
	return []SubjectConfig{
		{Subject: "perps.accounts.create.>", CommandType: "CreateAccount", ConsumerName: "perps-account-create", StreamName: "PERPS_ACCOUNTS"},
		{Subject: "perps.admin.market.create.>", CommandType: "CreateMarket", ConsumerName: "perps-market-create", StreamName: "PERPS_ADMIN"},
		{Subject: "perps.admin.market.configure.>", CommandType: "ConfigureMarket", ConsumerName: "perps-market-configure", StreamName: "PERPS_ADMIN"},
		{Subject: "perps.admin.collateral.>", CommandType: "ConfigureCollateral", ConsumerName: "perps-collateral", StreamName: "PERPS_ADMIN"},
		{Subject: "perps.admin.settlement.>", CommandType: "ConfigureSettlement", ConsumerName: "perps-settlement", StreamName: "PERPS_ADMIN"},
		{Subject: "perps.margin.transfer.>", CommandType: "Transfer", ConsumerName: "perps-margin-transfer", StreamName: "PERPS_MARGIN"},
		{Subject: "perps.margin.withdraw_all.>", CommandType: "WithdrawAll", ConsumerName: "perps-margin-withdraw-all", StreamName: "PERPS_MARGIN"},
		{Subject: "perps.orders.commit.>", CommandType: "CommitOrder", ConsumerName: "perps-order-commit", StreamName: "PERPS_ORDERS"},
		{Subject: "perps.orders.settle.>", CommandType: "SettleOrder", ConsumerName: "perps-order-settle", StreamName: "PERPS_ORDERS"},
		{Subject: "perps.orders.cancel.>", CommandType: "CancelOrder", ConsumerName: "perps-order-cancel", StreamName: "PERPS_ORDERS"},
	}
}

func NewNATSSubscriber(js jetstream.JetStream, commandChan chan<- RawCommand) *NATSSubscriber {
	return &NATSSubscriber{
		js:          js,
		commandChan: commandChan,
		logger:      observability.NewLogger("nats_subscriber"),
	}
}

// Subscribe creates JetStream consumers for all configured subjects.
// Consumers use explicit ACK, max_deliver=5, ack_wait=30s.
func (ns *NATSSubscriber) Subscribe(ctx context.Context, subjects []SubjectConfig) error {
	for _, cfg := range subjects {
		consumer, err := ns.js.CreateOrUpdateConsumer(ctx, cfg.StreamName, jetstream.ConsumerConfig{
			Durable:       cfg.ConsumerName,
			FilterSubject: cfg.Subject,
			AckPolicy:     jetstream.AckExplicitPolicy,
			AckWait:       30 * time.Second,
			MaxDeliver:    5,
			DeliverPolicy: jetstream.DeliverAllPolicy,
		})
		if err != nil {
			return fmt.Errorf("create consumer %s: %w", cfg.ConsumerName, err)
		}

		consumerContext, err := consumer.Consume(func(msg jetstream.Msg) {
			raw := RawCommand{
				Subject:   msg.Subject(),
				Data:      msg.Data(),
				Timestamp: time.Now(),
				AckFunc:   func() { msg.Ack() },
				NakFunc:   func() { msg.Nak() },
			}

			select {
			case ns.commandChan <- raw:
			case <-ctx.Done():
				msg.Nak()
			}
		})
		if err != nil {
			return fmt.Errorf("consume %s: %w", cfg.ConsumerName, err)
		}

		ns.consumers = append(ns.consumers, consumerContext)
		ns.logger.Info().Str("subject", cfg.Subject).Str("consumer", cfg.ConsumerName).Msg("subscribed")
	}

	return nil
}

// EnsureStreams creates the required JetStream command streams if they don't
// exist. Streams use FileStorage, retention=Limits, max_age=72h.
func EnsureStreams(ctx context.Context, js jetstream.JetStream) error {
	logger := observability.NewLogger("nats_streams")
	streams := []jetstream.StreamConfig{
		{
			Name:      "PERPS_ACCOUNTS",
			Subjects:  []string{"perps.accounts.>"},
			Storage:   jetstream.FileStorage,
			Retention: jetstream.LimitsPolicy,
			MaxAge:    72 * time.Hour,
			Replicas:  1,
		},
		{
			Name:      "PERPS_ADMIN",
			Subjects:  []string{"perps.admin.>"},
			Storage:   jetstream.FileStorage,
			Retention: jetstream.LimitsPolicy,
			MaxAge:    72 * time.Hour,
			Replicas:  1,
		},
		{
			Name:      "PERPS_MARGIN",
			Subjects:  []string{"perps.margin.>"},
			Storage:   jetstream.FileStorage,
			Retention: jetstream.LimitsPolicy,
			MaxAge:    72 * time.Hour,
			Replicas:  1,
		},
		{
			Name:      "PERPS_ORDERS",
			Subjects:  []string{"perps.orders.>"},
			Storage:   jetstream.FileStorage,
			Retention: jetstream.LimitsPolicy,
			MaxAge:    72 * time.Hour,
			Replicas:  1,
		},
	}

	for _, cfg := range streams {
		if _, err := js.CreateOrUpdateStream(ctx, cfg); err != nil {
			return fmt.Errorf("create stream %s: %w", cfg.Name, err)
		}
		logger.Info().Str("stream", cfg.Name).Msg("ensured stream")
	}

	return nil
}

// Stop gracefully stops all consumers.
func (ns *NATSSubscriber) Stop() {
	for _, cc := range ns.consumers {
		cc.Stop()
	}
	ns.logger.Info().Msg("NATS subscribers stopped")
}

// ConnectNATS establishes a NATS connection and returns a JetStream context.
func ConnectNATS(url string) (*nats.Conn, jetstream.JetStream, error) {
	logger := observability.NewLogger("nats")
	nc, err := nats.Connect(url,
		nats.MaxReconnects(-1),
		nats.ReconnectWait(2*time.Second),
		nats.DisconnectErrHandler(func(_ *nats.Conn, err error) {
			logger.Warn().Err(err).Msg("NATS disconnected")
		}),
		nats.ReconnectHandler(func(_ *nats.Conn) {
			logger.Info().Msg("NATS reconnected")
		}),
	)
	if err != nil {
		return nil, nil, fmt.Errorf("nats connect: %w", err)
	}

	js, err := jetstream.New(nc)
	if err != nil {
		nc.Close()
		return nil, nil, fmt.Errorf("jetstream: %w", err)
	}

	return nc, js, nil
}
