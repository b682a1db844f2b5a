package perpmath

import (
	"testing"

	"github.com/shopspring/decimal"
)

func dec(s string) decimal.Decimal {
	d, err := decimal.NewFromString(s)
	if err != nil {
		panic(err)
	}
	return d
}

func approxEqual(a, b decimal.Decimal, tolerance string) bool {
	return a.Sub(b).Abs().LessThanOrEqual(dec(tolerance))
}

func TestFillPrice(t *testing.T) {
	tests := []struct {
		name      string
		skew      string
		skewScale string
		price     string
		sizeDelta string
		want      string
	}{
		{
			// No skew sensitivity at all: fill is the oracle price.
			name: "zero skew scale", skew: "500", skewScale: "0",
			price: "1000", sizeDelta: "10", want: "1000",
		},
		{
			// Flat book: half the impact of the trade's own skew.
			// pd after = 10/1000 = 0.01 -> fill = 1000 * (1 + 0.005)
			name: "long into flat book", skew: "0", skewScale: "1000",
			price: "1000", sizeDelta: "10", want: "1005",
		},
		{
			name: "short into flat book", skew: "0", skewScale: "1000",
			price: "1000", sizeDelta: "-10", want: "995",
		},
		{
			// Existing long skew makes further longs pay a premium:
			// pd 100/1000=0.1 before, 110/1000=0.11 after -> mean 0.105.
			name: "long into long skew", skew: "100", skewScale: "1000",
			price: "1000", sizeDelta: "10", want: "1105",
		},
		{
			// Reducing the skew earns back part of the premium.
			name: "short against long skew", skew: "100", skewScale: "1000",
			price: "1000", sizeDelta: "-10", want: "1095",
		},
		{
			name: "zero size delta", skew: "100", skewScale: "1000",
			price: "1000", sizeDelta: "0", want: "1100",
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got := FillPrice(dec(tt.skew), dec(tt.skewScale), dec(tt.price), dec(tt.sizeDelta))
			if !approxEqual(got, dec(tt.want), "0.000000000001") {
				t.Errorf("FillPrice() = %s, want %s", got, tt.want)
			}
		})
	}
}

func TestFeeRatios(t *testing.T) {
	tests := []struct {
		name      string
		skew      string
		sizeDelta string
		wantMaker string
		wantTaker string
	}{
		{name: "expand long skew", skew: "100", sizeDelta: "50", wantMaker: "0", wantTaker: "1"},
		{name: "expand short skew", skew: "-100", sizeDelta: "-50", wantMaker: "0", wantTaker: "1"},
		{name: "reduce long skew", skew: "100", sizeDelta: "-50", wantMaker: "1", wantTaker: "0"},
		{name: "reduce to zero", skew: "100", sizeDelta: "-100", wantMaker: "1", wantTaker: "0"},
		{name: "first trade is taker", skew: "0", sizeDelta: "50", wantMaker: "0", wantTaker: "1"},
		// Flip through zero: -150 against +100 skew is 100 maker flow and
		// 50 taker flow.
		{name: "flip long to short", skew: "100", sizeDelta: "-150",
			wantMaker: "0.6666666666666667", wantTaker: "0.3333333333333333"},
		{name: "flip short to long", skew: "-100", sizeDelta: "150",
			wantMaker: "0.6666666666666667", wantTaker: "0.3333333333333333"},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			maker, taker := FeeRatios(dec(tt.skew), dec(tt.sizeDelta))
			if !approxEqual(maker, dec(tt.wantMaker), "0.000000000001") {
				t.Errorf("maker ratio = %s, want %s", maker, tt.wantMaker)
			}
			if !approxEqual(taker, dec(tt.wantTaker), "0.000000000001") {
				t.Errorf("taker ratio = %s, want %s", taker, tt.wantTaker)
			}
			if !approxEqual(maker.Add(taker), dec("1"), "0.000000000001") {
				t.Errorf("maker+taker = %s, want 1", maker.Add(taker))
			}
		})
	}
}

func TestOrderFee(t *testing.T) {
	makerRate := dec("0.0002")
	takerRate := dec("0.0006")

	// Pure taker: 50 * 1000 notional at 6 bps.
	got := OrderFee(dec("1000"), dec("50"), dec("100"), makerRate, takerRate)
	if !approxEqual(got, dec("30"), "0.000000000001") {
		t.Errorf("taker fee = %s, want 30", got)
	}

	// Pure maker: 50 * 1000 notional at 2 bps.
	got = OrderFee(dec("1000"), dec("-50"), dec("100"), makerRate, takerRate)
	if !approxEqual(got, dec("10"), "0.000000000001") {
		t.Errorf("maker fee = %s, want 10", got)
	}

	// Flip: 150 * 1000 notional, 2/3 maker + 1/3 taker.
	// 150000 * (2/3 * 0.0002 + 1/3 * 0.0006) = 20 + 30 = 50.
	got = OrderFee(dec("1000"), dec("-150"), dec("100"), makerRate, takerRate)
	if !approxEqual(got, dec("50"), "0.00000001") {
		t.Errorf("flip fee = %s, want 50", got)
	}
}
