package ingestion

import (
	"encoding/json"
	"fmt"
	"time"

	"github.com/google/uuid"
	"github.com/shopspring/decimal"

	"perpmarket/internal/core"
	"perpmarket/internal/oracle"
	"perpmarket/internal/state"
)

// RawCommand is a parsed-but-untyped command from NATS, ready for the shell
// to validate and convert into a typed Command before applying to the engine.
type RawCommand struct {
	Subject   string
	Data      []byte
	Timestamp time.Time
	AckFunc   func() // Call to ACK the NATS message after processing
	NakFunc   func() // Call to NAK on failure (will be redelivered)
}

// Command is implemented by every typed command the engine accepts.
type Command interface {
	CommandType() string
}

type CreateAccount struct {
	AccountID uuid.UUID
}

func (*CreateAccount) CommandType() string { return "CreateAccount" }

type CreateMarket struct {
	CallerID uuid.UUID
	MarketID string
	Config   state.MarketConfig
}

func (*CreateMarket) CommandType() string { return "CreateMarket" }

type ConfigureMarket struct {
	CallerID uuid.UUID
	MarketID string
	Config   state.MarketConfig
}

func (*ConfigureMarket) CommandType() string { return "ConfigureMarket" }

type ConfigureCollateral struct {
	CallerID uuid.UUID
	Configs  []state.CollateralConfig
}

func (*ConfigureCollateral) CommandType() string { return "ConfigureCollateral" }

type ConfigureSettlement struct {
	CallerID uuid.UUID
	Config   core.SettlementConfig
}

func (*ConfigureSettlement) CommandType() string { return "ConfigureSettlement" }

type Transfer struct {
	AccountID   uuid.UUID
	MarketID    string
	Collateral  string
	AmountDelta decimal.Decimal
}

func (*Transfer) CommandType() string { return "Transfer" }

type WithdrawAll struct {
	AccountID uuid.UUID
	MarketID  string
}

func (*WithdrawAll) CommandType() string { return "WithdrawAll" }

type CommitOrder struct {
	AccountID          uuid.UUID
	MarketID           string
	SizeDelta          decimal.Decimal
	LimitPrice         decimal.Decimal
	KeeperFeeBufferUsd decimal.Decimal
}

func (*CommitOrder) CommandType() string { return "CommitOrder" }

type SettleOrder struct {
	AccountID uuid.UUID
	MarketID  string
	Update    oracle.PriceUpdate
}

func (*SettleOrder) CommandType() string { return "SettleOrder" }

type CancelOrder struct {
	AccountID uuid.UUID
	MarketID  string
}

func (*CancelOrder) CommandType() string { return "CancelOrder" }

// ParseRawCommand converts a RawCommand (JSON bytes + command type string)
// into a typed Command.
func ParseRawCommand(raw RawCommand, commandType string) (Command, error) {
	switch commandType {
	case "CreateAccount":
		return parseCreateAccount(raw.Data)
	case "CreateMarket":
		return parseCreateMarket(raw.Data)
	case "ConfigureMarket":
		return parseConfigureMarket(raw.Data)
	case "ConfigureCollateral":
		return parseConfigureCollateral(raw.Data)
	case "ConfigureSettlement":
		return parseConfigureSettlement(raw.Data)
	case "Transfer":
		return parseTransfer(raw.Data)
	case "WithdrawAll":
		return parseWithdrawAll(raw.Data)
	case "CommitOrder":
		return parseCommitOrder(raw.Data)
	case "SettleOrder":
		return parseSettleOrder(raw.Data)
	case "CancelOrder":
		return parseCancelOrder(raw.Data)
	default:
		return nil, fmt.Errorf("unknown command type: %s", commandType)
	}
}

// --- JSON wire formats ---
// These structs represent the JSON payloads received from NATS.
// Field names use snake_case to match upstream producers. Decimal fields
// accept both JSON numbers and quoted strings.

type createAccountJSON struct {
	AccountID string `json:"account_id"`
}

func parseCreateAccount(data []byte) (*CreateAccount, error) {
	var j createAccountJSON
	if err := json.Unmarshal(data, &j); err != nil {
		return nil, fmt.Errorf("parse CreateAccount: %w", err)
	}
	accountID, err := uuid.Parse(j.AccountID)
	if err != nil {
		return nil, fmt.Errorf("parse account_id: %w", err)
	}
	return &CreateAccount{AccountID: accountID}, nil
}

type marketConfigJSON struct {
	SkewScale               decimal.Decimal `json:"skew_scale"`
	MakerFee                decimal.Decimal `json:"maker_fee"`
	TakerFee                decimal.Decimal `json:"taker_fee"`
	MaxFundingVelocity      decimal.Decimal `json:"max_funding_velocity"`
	MaxMarketSize           decimal.Decimal `json:"max_market_size"`
	MaxLiquidatableCapacity decimal.Decimal `json:"max_liquidatable_capacity"`
	InitialMarginRatio      decimal.Decimal `json:"initial_margin_ratio"`
	MaintenanceMarginRatio  decimal.Decimal `json:"maintenance_margin_ratio"`
	OracleNodeID            string          `json:"oracle_node_id"`
}

func (j marketConfigJSON) toConfig() state.MarketConfig {
	return state.MarketConfig{
		SkewScale:               j.SkewScale,
		MakerFee:                j.MakerFee,
		TakerFee:                j.TakerFee,
		MaxFundingVelocity:      j.MaxFundingVelocity,
		MaxMarketSize:           j.MaxMarketSize,
		MaxLiquidatableCapacity: j.MaxLiquidatableCapacity,
		InitialMarginRatio:      j.InitialMarginRatio,
		MaintenanceMarginRatio:  j.MaintenanceMarginRatio,
		OracleNodeID:            j.OracleNodeID,
	}
}

type marketCommandJSON struct {
	CallerID string           `json:"caller_id"`
	MarketID string           `json:"market_id"`
	Config   marketConfigJSON `json:"config"`
}

func parseCreateMarket(data []byte) (*CreateMarket, error) {
	var j marketCommandJSON
	if err := json.Unmarshal(data, &j); err != nil {
		return nil, fmt.Errorf("parse CreateMarket: %w", err)
	}
	callerID, err := uuid.Parse(j.CallerID)
	if err != nil {
		return nil, fmt.Errorf("parse caller_id: %w", err)
	}
	return &CreateMarket{
		CallerID: callerID,
		MarketID: j.MarketID,
		Config:   j.Config.toConfig(),
	}, nil
}

func parseConfigureMarket(data []byte) (*ConfigureMarket, error) {
	var j marketCommandJSON
	if err := json.Unmarshal(data, &j); err != nil {
		return nil, fmt.Errorf("parse ConfigureMarket: %w", err)
	}
	callerID, err := uuid.Parse(j.CallerID)
	if err != nil {
		return nil, fmt.Errorf("parse caller_id: %w", err)
	}
	return &ConfigureMarket{
		CallerID: callerID,
		MarketID: j.MarketID,
		Config:   j.Config.toConfig(),
	}, nil
}

type collateralEntryJSON struct {
	Collateral   string          `json:"collateral"`
	OracleNodeID string          `json:"oracle_node_id"`
	MaxAllowable decimal.Decimal `json:"max_allowable"`
}

type configureCollateralJSON struct {
	CallerID string                `json:"caller_id"`
	Configs  []collateralEntryJSON `json:"configs"`
}

func parseConfigureCollateral(data []byte) (*ConfigureCollateral, error) {
	var j configureCollateralJSON
	if err := json.Unmarshal(data, &j); err != nil {
		return nil, fmt.Errorf("parse ConfigureCollateral: %w", err)
	}
	callerID, err := uuid.Parse(j.CallerID)
	if err != nil {
		return nil, fmt.Errorf("parse caller_id: %w", err)
	}
	configs := make([]state.CollateralConfig, 0, len(j.Configs))
	for _, entry := range j.Configs {
		configs = append(configs, state.CollateralConfig{
			Collateral:   entry.Collateral,
			OracleNodeID: entry.OracleNodeID,
			MaxAllowable: entry.MaxAllowable,
		})
	}
	return &ConfigureCollateral{CallerID: callerID, Configs: configs}, nil
}

type configureSettlementJSON struct {
	CallerID                  string          `json:"caller_id"`
	MinOrderAgeSec            int64           `json:"min_order_age_sec"`
	MaxOrderAgeSec            int64           `json:"max_order_age_sec"`
	PythPublishTimeMinSec     int64           `json:"pyth_publish_time_min_sec"`
	PythPublishTimeMaxSec     int64           `json:"pyth_publish_time_max_sec"`
	BaseFeePerGas             decimal.Decimal `json:"base_fee_per_gas"`
	KeeperSettlementGasUnits  decimal.Decimal `json:"keeper_settlement_gas_units"`
	KeeperFlagGasUnits        decimal.Decimal `json:"keeper_flag_gas_units"`
	KeeperLiquidationGasUnits decimal.Decimal `json:"keeper_liquidation_gas_units"`
	KeeperProfitMarginPercent decimal.Decimal `json:"keeper_profit_margin_percent"`
	KeeperProfitMarginUsd     decimal.Decimal `json:"keeper_profit_margin_usd"`
	MaxKeeperFeeUsd           decimal.Decimal `json:"max_keeper_fee_usd"`
	LiquidationRewardPercent  decimal.Decimal `json:"liquidation_reward_percent"`
	EthOracleNodeID           string          `json:"eth_oracle_node_id"`
}

func parseConfigureSettlement(data []byte) (*ConfigureSettlement, error) {
	var j configureSettlementJSON
	if err := json.Unmarshal(data, &j); err != nil {
		return nil, fmt.Errorf("parse ConfigureSettlement: %w", err)
	}
	callerID, err := uuid.Parse(j.CallerID)
	if err != nil {
		return nil, fmt.Errorf("parse caller_id: %w", err)
	}
	return &ConfigureSettlement{
		CallerID: callerID,
		Config: core.SettlementConfig{
			MinOrderAge:               time.Duration(j.MinOrderAgeSec) * time.Second,
			MaxOrderAge:               time.Duration(j.MaxOrderAgeSec) * time.Second,
			PythPublishTimeMin:        time.Duration(j.PythPublishTimeMinSec) * time.Second,
			PythPublishTimeMax:        time.Duration(j.PythPublishTimeMaxSec) * time.Second,
			BaseFeePerGas:             j.BaseFeePerGas,
			KeeperSettlementGasUnits:  j.KeeperSettlementGasUnits,
			KeeperFlagGasUnits:        j.KeeperFlagGasUnits,
			KeeperLiquidationGasUnits: j.KeeperLiquidationGasUnits,
			KeeperProfitMarginPercent: j.KeeperProfitMarginPercent,
			KeeperProfitMarginUsd:     j.KeeperProfitMarginUsd,
			MaxKeeperFeeUsd:           j.MaxKeeperFeeUsd,
			LiquidationRewardPercent:  j.LiquidationRewardPercent,
			EthOracleNodeID:           j.EthOracleNodeID,
		},
	}, nil
}

type transferJSON struct {
	AccountID   string          `json:"account_id"`
	MarketID    string          `json:"market_id"`
	Collateral  string          `json:"collateral"`
	AmountDelta decimal.Decimal `json:"amount_delta"`
}

func parseTransfer(data []byte) (*Transfer, error) {
	var j transferJSON
	if err := json.Unmarshal(data, &j); err != nil {
		return nil, fmt.Errorf("parse Transfer: %w", err)
	}
	accountID, err := uuid.Parse(j.AccountID)
	if err != nil {
		return nil, fmt.Errorf("parse account_id: %w", err)
	}
	return &Transfer{
		AccountID:   accountID,
		MarketID:    j.MarketID,
		Collateral:  j.Collateral,
		AmountDelta: j.AmountDelta,
	}, nil
}

type accountMarketJSON struct {
	AccountID string `json:"account_id"`
	MarketID  string `json:"market_id"`
}

func parseWithdrawAll(data []byte) (*WithdrawAll, error) {
	var j accountMarketJSON
	if err := json.Unmarshal(data, &j); err != nil {
		return nil, fmt.Errorf("parse WithdrawAll: %w", err)
	}
	accountID, err := uuid.Parse(j.AccountID)
	if err != nil {
		return nil, fmt.Errorf("parse account_id: %w", err)
	}
	return &WithdrawAll{AccountID: accountID, MarketID: j.MarketID}, nil
}

type commitOrderJSON struct {
	AccountID          string          `json:"account_id"`
	MarketID           string          `json:"market_id"`
	SizeDelta          decimal.Decimal `json:"size_delta"`
	LimitPrice         decimal.Decimal `json:"limit_price"`
	KeeperFeeBufferUsd decimal.Decimal `json:"keeper_fee_buffer_usd"`
}

func parseCommitOrder(data []byte) (*CommitOrder, error) {
	var j commitOrderJSON
	if err := json.Unmarshal(data, &j); err != nil {
		return nil, fmt.Errorf("parse CommitOrder: %w", err)
	}
	accountID, err := uuid.Parse(j.AccountID)
	if err != nil {
		return nil, fmt.Errorf("parse account_id: %w", err)
	}
	return &CommitOrder{
		AccountID:          accountID,
		MarketID:           j.MarketID,
		SizeDelta:          j.SizeDelta,
		LimitPrice:         j.LimitPrice,
		KeeperFeeBufferUsd: j.KeeperFeeBufferUsd,
	}, nil
}

type settleOrderJSON struct {
	AccountID     string          `json:"account_id"`
	MarketID      string          `json:"market_id"`
	Price         decimal.Decimal `json:"price"`
	PublishTimeUs int64           `json:"publish_time_us"`
}

func parseSettleOrder(data []byte) (*SettleOrder, error) {
	var j settleOrderJSON
	if err := json.Unmarshal(data, &j); err != nil {
		return nil, fmt.Errorf("parse SettleOrder: %w", err)
	}
	accountID, err := uuid.Parse(j.AccountID)
	if err != nil {
		return nil, fmt.Errorf("parse account_id: %w", err)
	}
	return &SettleOrder{
		AccountID: accountID,
		MarketID:  j.MarketID,
		Update: oracle.PriceUpdate{
			MarketID:    j.MarketID,
			Price:       j.Price,
			PublishTime: time.UnixMicro(j.PublishTimeUs),
		},
	}, nil
}

func parseCancelOrder(data []byte) (*CancelOrder, error) {
	var j accountMarketJSON
	if err := json.Unmarshal(data, &j); err != nil {
		return nil, fmt.Errorf("parse CancelOrder: %w", err)
	}
	accountID, err := uuid.Parse(j.AccountID)
	if err != nil {
		return nil, fmt.Errorf("parse account_id: %w", err)
	}
	return &CancelOrder{AccountID: accountID, MarketID: j.MarketID}, nil
}
