package ingestion_test

import (
	"encoding/json"
	"testing"
	"time"

	"github.com/shopspring/decimal"

	"perpmarket/internal/ingestion"
)

func mustDec(s string) decimal.Decimal {
	d, err := decimal.NewFromString(s)
	if err != nil {
		panic(err)
	}
	return d
}

func rawFromJSON(t *testing.T, v interface{}) ingestion.RawCommand {
	t.Helper()
	data, err := json.Marshal(v)
	if err != nil {
		t.Fatalf("marshal: %v", err)
	}
	return ingestion.RawCommand{
		Subject:   "test",
		Data:      data,
		Timestamp: time.Now(),
		AckFunc:   func() {},
		NakFunc:   func() {},
	}
}

func TestParseCommitOrder(t *testing.T) {
	payload := map[string]interface{}{
		"account_id":            "550e8400-e29b-41d4-a716-446655440000",
		"market_id":             "ETHPERP",
		"size_delta":            "1.5",
		"limit_price":           "2100",
		"keeper_fee_buffer_usd": "0.5",
	}

	raw := rawFromJSON(t, payload)
	cmd, err := ingestion.ParseRawCommand(raw, "CommitOrder")
	if err != nil {
		t.Fatalf("parse failed: %v", err)
	}

	co, ok := cmd.(*ingestion.CommitOrder)
	if !ok {
		t.Fatalf("expected *ingestion.CommitOrder, got %T", cmd)
	}

	if co.MarketID != "ETHPERP" {
		t.Errorf("market: got %s, want ETHPERP", co.MarketID)
	}
	if !co.SizeDelta.Equal(mustDec("1.5")) {
		t.Errorf("size_delta: got %s, want 1.5", co.SizeDelta)
	}
	if !co.LimitPrice.Equal(mustDec("2100")) {
		t.Errorf("limit_price: got %s, want 2100", co.LimitPrice)
	}
	if !co.KeeperFeeBufferUsd.Equal(mustDec("0.5")) {
		t.Errorf("keeper_fee_buffer_usd: got %s, want 0.5", co.KeeperFeeBufferUsd)
	}
}

func TestParseCommitOrderNumericFields(t *testing.T) {
	// Bare JSON numbers are accepted alongside quoted decimals.
	payload := map[string]interface{}{
		"account_id":  "550e8400-e29b-41d4-a716-446655440000",
		"market_id":   "ETHPERP",
		"size_delta":  -3.25,
		"limit_price": 1950,
	}

	raw := rawFromJSON(t, payload)
	cmd, err := ingestion.ParseRawCommand(raw, "CommitOrder")
	if err != nil {
		t.Fatalf("parse failed: %v", err)
	}

	co := cmd.(*ingestion.CommitOrder)
	if !co.SizeDelta.Equal(mustDec("-3.25")) {
		t.Errorf("size_delta: got %s, want -3.25", co.SizeDelta)
	}
	if !co.KeeperFeeBufferUsd.IsZero() {
		t.Errorf("keeper_fee_buffer_usd: got %s, want 0", co.KeeperFeeBufferUsd)
	}
}

func TestParseSettleOrder(t *testing.T) {
	payload := map[string]interface{}{
		"account_id":      "550e8400-e29b-41d4-a716-446655440000",
		"market_id":       "ETHPERP",
		"price":           "2001.25",
		"publish_time_us": int64(1700000000000000),
	}

	raw := rawFromJSON(t, payload)
	cmd, err := ingestion.ParseRawCommand(raw, "SettleOrder")
	if err != nil {
		t.Fatalf("parse failed: %v", err)
	}

	so, ok := cmd.(*ingestion.SettleOrder)
	if !ok {
		t.Fatalf("expected *ingestion.SettleOrder, got %T", cmd)
	}

	if so.Update.MarketID != "ETHPERP" {
		t.Errorf("market: got %s, want ETHPERP", so.Update.MarketID)
	}
	if !so.Update.Price.Equal(mustDec("2001.25")) {
		t.Errorf("price: got %s, want 2001.25", so.Update.Price)
	}
	if got := so.Update.PublishTime; !got.Equal(time.UnixMicro(1700000000000000)) {
		t.Errorf("publish time: got %v", got)
	}
}

func TestParseTransfer(t *testing.T) {
	payload := map[string]interface{}{
		"account_id":   "550e8400-e29b-41d4-a716-446655440000",
		"market_id":    "ETHPERP",
		"collateral":   "sUSD",
		"amount_delta": "-250.75",
	}

	raw := rawFromJSON(t, payload)
	cmd, err := ingestion.ParseRawCommand(raw, "Transfer")
	if err != nil {
		t.Fatalf("parse failed: %v", err)
	}

	tr, ok := cmd.(*ingestion.Transfer)
	if !ok {
		t.Fatalf("expected *ingestion.Transfer, got %T", cmd)
	}

	if tr.Collateral != "sUSD" {
		t.Errorf("collateral: got %s, want sUSD", tr.Collateral)
	}
	if !tr.AmountDelta.Equal(mustDec("-250.75")) {
		t.Errorf("amount_delta: got %s, want -250.75", tr.AmountDelta)
	}
}

func TestParseCreateMarket(t *testing.T) {
	payload := map[string]interface{}{
		"caller_id": "660e8400-e29b-41d4-a716-446655440001",
		"market_id": "BTCPERP",
		"config": map[string]interface{}{
			"skew_scale":                "100000",
			"maker_fee":                 "0.0002",
			"taker_fee":                 "0.0006",
			"max_funding_velocity":      "0.25",
			"max_market_size":           "5000",
			"max_liquidatable_capacity": "100",
			"initial_margin_ratio":      "0.05",
			"maintenance_margin_ratio":  "0.03",
			"oracle_node_id":            "node-btc-usd",
		},
	}

	raw := rawFromJSON(t, payload)
	cmd, err := ingestion.ParseRawCommand(raw, "CreateMarket")
	if err != nil {
		t.Fatalf("parse failed: %v", err)
	}

	cm, ok := cmd.(*ingestion.CreateMarket)
	if !ok {
		t.Fatalf("expected *ingestion.CreateMarket, got %T", cmd)
	}

	if cm.MarketID != "BTCPERP" {
		t.Errorf("market: got %s, want BTCPERP", cm.MarketID)
	}
	if !cm.Config.SkewScale.Equal(mustDec("100000")) {
		t.Errorf("skew_scale: got %s, want 100000", cm.Config.SkewScale)
	}
	if cm.Config.OracleNodeID != "node-btc-usd" {
		t.Errorf("oracle_node_id: got %s, want node-btc-usd", cm.Config.OracleNodeID)
	}
}

func TestParseConfigureCollateral(t *testing.T) {
	payload := map[string]interface{}{
		"caller_id": "660e8400-e29b-41d4-a716-446655440001",
		"configs": []map[string]interface{}{
			{"collateral": "sUSD", "oracle_node_id": "", "max_allowable": "1000000"},
			{"collateral": "swETH", "oracle_node_id": "node-eth-usd", "max_allowable": "5000"},
		},
	}

	raw := rawFromJSON(t, payload)
	cmd, err := ingestion.ParseRawCommand(raw, "ConfigureCollateral")
	if err != nil {
		t.Fatalf("parse failed: %v", err)
	}

	cc, ok := cmd.(*ingestion.ConfigureCollateral)
	if !ok {
		t.Fatalf("expected *ingestion.ConfigureCollateral, got %T", cmd)
	}

	if len(cc.Configs) != 2 {
		t.Fatalf("configs: got %d entries, want 2", len(cc.Configs))
	}
	if cc.Configs[1].Collateral != "swETH" {
		t.Errorf("collateral: got %s, want swETH", cc.Configs[1].Collateral)
	}
	if !cc.Configs[1].MaxAllowable.Equal(mustDec("5000")) {
		t.Errorf("max_allowable: got %s, want 5000", cc.Configs[1].MaxAllowable)
	}
}

func TestParseConfigureSettlement(t *testing.T) {
	payload := map[string]interface{}{
		"caller_id":                    "660e8400-e29b-41d4-a716-446655440001",
		"min_order_age_sec":            int64(10),
		"max_order_age_sec":            int64(60),
		"pyth_publish_time_min_sec":    int64(4),
		"pyth_publish_time_max_sec":    int64(12),
		"base_fee_per_gas":             "0.000000002",
		"keeper_settlement_gas_units":  "1000000",
		"keeper_flag_gas_units":        "1000000",
		"keeper_liquidation_gas_units": "1000000",
		"keeper_profit_margin_percent": "0.3",
		"keeper_profit_margin_usd":     "2",
		"max_keeper_fee_usd":           "50",
		"liquidation_reward_percent":   "0.001",
		"eth_oracle_node_id":           "node-eth-usd",
	}

	raw := rawFromJSON(t, payload)
	cmd, err := ingestion.ParseRawCommand(raw, "ConfigureSettlement")
	if err != nil {
		t.Fatalf("parse failed: %v", err)
	}

	cs, ok := cmd.(*ingestion.ConfigureSettlement)
	if !ok {
		t.Fatalf("expected *ingestion.ConfigureSettlement, got %T", cmd)
	}

	if cs.Config.MinOrderAge != 10*time.Second {
		t.Errorf("min_order_age: got %v, want 10s", cs.Config.MinOrderAge)
	}
	if cs.Config.PythPublishTimeMax != 12*time.Second {
		t.Errorf("pyth_publish_time_max: got %v, want 12s", cs.Config.PythPublishTimeMax)
	}
	if !cs.Config.MaxKeeperFeeUsd.Equal(mustDec("50")) {
		t.Errorf("max_keeper_fee_usd: got %s, want 50", cs.Config.MaxKeeperFeeUsd)
	}
}

func TestParseUnknownCommandType_Fails(t *testing.T) {
	raw := ingestion.RawCommand{Data: []byte(`{}`)}
	_, err := ingestion.ParseRawCommand(raw, "NonExistentType")
	if err == nil {
		t.Fatal("expected error for unknown command type")
	}
}

func TestParseInvalidJSON_Fails(t *testing.T) {
	raw := ingestion.RawCommand{Data: []byte(`{invalid json`)}
	_, err := ingestion.ParseRawCommand(raw, "CommitOrder")
	if err == nil {
		t.Fatal("expected error for invalid JSON")
	}
}

func TestParseInvalidUUID_Fails(t *testing.T) {
	payload := map[string]interface{}{
		"account_id": "not-a-uuid",
		"market_id":  "ETHPERP",
		"size_delta": "1",
	}

	raw := rawFromJSON(t, payload)
	_, err := ingestion.ParseRawCommand(raw, "CommitOrder")
	if err == nil {
		t.Fatal("expected error for invalid UUID")
	}
}
