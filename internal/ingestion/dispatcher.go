package ingestion

import (
	"context"
	"fmt"
	"strings"

	"github.com/rs/zerolog"

	"perpmarket/internal/core"
	"perpmarket/internal/observability"
)

// Dispatcher drains the raw command channel, parses each command and applies
// it to the engine. It is the single writer: all engine mutations flow
// through this loop.
type Dispatcher struct {
	engine      *core.Engine
	commandChan <-chan RawCommand
	routes      []route
	logger      zerolog.Logger
}

type route struct {
	prefix      string
	commandType string
}

func NewDispatcher(engine *core.Engine, commandChan <-chan RawCommand, subjects []SubjectConfig) *Dispatcher {
	routes := make([]route, 0, len(subjects))
	for _, cfg := range subjects {
		routes = append(routes, route{
			prefix:      strings.TrimSuffix(cfg.Subject, ">"),
			commandType: cfg.CommandType,
		})
	}
	return &Dispatcher{
		engine:      engine,
		commandChan: commandChan,
		routes:      routes,
		logger:      observability.NewLogger("dispatcher"),
	}
}

// Run processes commands until the context is canceled or the channel
// closes. Both malformed commands and engine rejections are ACKed: neither
// gets better on redelivery, and the rejection is already logged.
func (d *Dispatcher) Run(ctx context.Context) error {
	for {
		select {
		case <-ctx.Done():
			return ctx.Err()

		case raw, ok := <-d.commandChan:
			if !ok {
				return nil
			}
			d.handle(raw)
		}
	}
}

func (d *Dispatcher) handle(raw RawCommand) {
	commandType, err := d.commandTypeFor(raw.Subject)
	if err != nil {
		d.logger.Warn().Str("subject", raw.Subject).Err(err).Msg("unroutable command")
		raw.AckFunc()
		return
	}

	cmd, err := ParseRawCommand(raw, commandType)
	if err != nil {
		d.logger.Warn().Str("subject", raw.Subject).Err(err).Msg("malformed command")
		raw.AckFunc()
		return
	}

	if err := d.apply(cmd); err != nil {
		d.logger.Warn().
			Str("command", cmd.CommandType()).
			Err(err).
			Msg("command rejected")
	}
	raw.AckFunc()
}

func (d *Dispatcher) commandTypeFor(subject string) (string, error) {
	for _, r := range d.routes {
		if strings.HasPrefix(subject, r.prefix) {
			return r.commandType, nil
		}
	}
	return "", fmt.Errorf("no route for subject %s", subject)
}

func (d *Dispatcher) apply(cmd Command) error {
	switch c := cmd.(type) {
	case *CreateAccount:
		return d.engine.CreateAccount(c.AccountID)
	case *CreateMarket:
		return d.engine.CreateMarket(c.CallerID, c.MarketID, c.Config)
	case *ConfigureMarket:
		return d.engine.SetMarketConfig(c.CallerID, c.MarketID, c.Config)
	case *ConfigureCollateral:
		return d.engine.SetCollateralConfiguration(c.CallerID, c.Configs)
	case *ConfigureSettlement:
		return d.engine.SetSettlementConfig(c.CallerID, c.Config)
	case *Transfer:
		return d.engine.TransferTo(c.AccountID, c.MarketID, c.Collateral, c.AmountDelta)
	case *WithdrawAll:
		return d.engine.WithdrawAllCollateral(c.AccountID, c.MarketID)
	case *CommitOrder:
		return d.engine.CommitOrder(c.AccountID, c.MarketID, c.SizeDelta, c.LimitPrice, c.KeeperFeeBufferUsd)
	case *SettleOrder:
		return d.engine.SettleOrder(c.AccountID, c.MarketID, c.Update)
	case *CancelOrder:
		return d.engine.CancelStaleOrder(c.AccountID, c.MarketID)
	default:
		return fmt.Errorf("unhandled command type %T", cmd)
	}
}
