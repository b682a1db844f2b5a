package perpmath

import (
	"testing"
)

// Baseline params: 2 gwei base fee, ETH at $2500, 1M gas units.
// Execution cost = 2e-9 * 1000000 * 2500 = $5.
func baselineKeeperParams() KeeperFeeParams {
	return KeeperFeeParams{
		BaseFeePerGas:       dec("0.000000002"),
		EthPrice:            dec("2500"),
		GasUnits:            dec("1000000"),
		ProfitMarginPercent: dec("0.3"),
		ProfitMarginUsd:     dec("2"),
		MaxKeeperFeeUsd:     dec("50"),
	}
}

func TestExecutionCostUsd(t *testing.T) {
	got := ExecutionCostUsd(baselineKeeperParams())
	if !got.Equal(dec("5")) {
		t.Errorf("ExecutionCostUsd() = %s, want 5", got)
	}
}

func TestSettlementKeeperFee(t *testing.T) {
	p := baselineKeeperParams()

	// Flat margin wins at low cost: max(5*1.3, 5+2) = 7, plus 1 buffer.
	got := SettlementKeeperFee(p, dec("1"))
	if !got.Equal(dec("8")) {
		t.Errorf("SettlementKeeperFee() = %s, want 8", got)
	}

	// Percentage margin wins at high cost: cost $100, max(130, 102) = 130,
	// capped at 50. Buffer rides above the cap.
	p.BaseFeePerGas = dec("0.00000004")
	got = SettlementKeeperFee(p, dec("1"))
	if !got.Equal(dec("51")) {
		t.Errorf("SettlementKeeperFee() capped = %s, want 51", got)
	}
}

func TestFlagKeeperFee(t *testing.T) {
	p := baselineKeeperParams()

	// 7 + |2| * 2000 * 0.001 = 11.
	got := FlagKeeperFee(p, dec("-2"), dec("2000"), dec("0.001"))
	if !got.Equal(dec("11")) {
		t.Errorf("FlagKeeperFee() = %s, want 11", got)
	}

	// The size reward is inside the cap.
	got = FlagKeeperFee(p, dec("-100"), dec("2000"), dec("0.001"))
	if !got.Equal(dec("50")) {
		t.Errorf("FlagKeeperFee() capped = %s, want 50", got)
	}
}

func TestLiquidationKeeperFee(t *testing.T) {
	p := baselineKeeperParams()

	tests := []struct {
		name     string
		size     string
		capacity string
		want     string
	}{
		{name: "single call", size: "50", capacity: "100", want: "7"},
		{name: "exact capacity", size: "100", capacity: "100", want: "7"},
		{name: "partial extra call", size: "150", capacity: "100", want: "14"},
		{name: "many calls", size: "1000", capacity: "100", want: "70"},
		{name: "short position", size: "-150", capacity: "100", want: "14"},
		{name: "zero capacity", size: "150", capacity: "0", want: "7"},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got := LiquidationKeeperFee(p, dec(tt.size), dec(tt.capacity))
			if !got.Equal(dec(tt.want)) {
				t.Errorf("LiquidationKeeperFee() = %s, want %s", got, tt.want)
			}
		})
	}
}
