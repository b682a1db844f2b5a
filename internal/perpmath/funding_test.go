package perpmath

import (
	"testing"
	"time"
)

func TestFundingVelocity(t *testing.T) {
	tests := []struct {
		name        string
		skew        string
		skewScale   string
		maxVelocity string
		want        string
	}{
		{name: "balanced book", skew: "0", skewScale: "100000", maxVelocity: "0.25", want: "0"},
		{name: "small long skew", skew: "1000", skewScale: "100000", maxVelocity: "0.25", want: "0.0025"},
		{name: "small short skew", skew: "-1000", skewScale: "100000", maxVelocity: "0.25", want: "-0.0025"},
		{name: "clamped long", skew: "200000", skewScale: "100000", maxVelocity: "0.25", want: "0.25"},
		{name: "clamped short", skew: "-200000", skewScale: "100000", maxVelocity: "0.25", want: "-0.25"},
		{name: "zero skew scale", skew: "1000", skewScale: "0", maxVelocity: "0.25", want: "0"},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got := FundingVelocity(dec(tt.skew), dec(tt.skewScale), dec(tt.maxVelocity))
			if !got.Equal(dec(tt.want)) {
				t.Errorf("FundingVelocity() = %s, want %s", got, tt.want)
			}
		})
	}
}

// TestFundingRateAccrual walks a market through the reference scenario:
// skewScale=100000, maxFundingVelocity=0.25, trades landing at known
// offsets. The rate at each step is the linear projection of the previous
// rate at the previous velocity, and the velocity is always recomputed from
// the post-trade skew.
func TestFundingRateAccrual(t *testing.T) {
	skewScale := dec("100000")
	maxVelocity := dec("0.25")

	// t=0: +1000 trade. Rate starts at zero.
	rate := dec("0")
	velocity := FundingVelocity(dec("1000"), skewScale, maxVelocity)
	if !velocity.Equal(dec("0.0025")) {
		t.Fatalf("velocity after first trade = %s, want 0.0025", velocity)
	}

	// t=29000s: +2000 trade, skew now 3000.
	rate = ProjectFundingRate(rate, velocity, 29000*time.Second)
	if !approxEqual(rate, dec("0.000839120370"), "0.000001") {
		t.Fatalf("rate at t=29000s = %s, want ~0.00083912", rate)
	}
	velocity = FundingVelocity(dec("3000"), skewScale, maxVelocity)
	if !velocity.Equal(dec("0.0075")) {
		t.Fatalf("velocity after second trade = %s, want 0.0075", velocity)
	}

	// t=49000s: -3000 trade brings the skew back to zero.
	rate = ProjectFundingRate(rate, velocity, 20000*time.Second)
	if !approxEqual(rate, dec("0.002575231481"), "0.000001") {
		t.Fatalf("rate at t=49000s = %s, want ~0.00257523", rate)
	}
	velocity = FundingVelocity(dec("0"), skewScale, maxVelocity)
	if !velocity.IsZero() {
		t.Fatalf("velocity after flattening trade = %s, want 0", velocity)
	}

	// With zero velocity the rate is frozen no matter how much time passes.
	frozen := ProjectFundingRate(rate, velocity, 30*24*time.Hour)
	if !frozen.Equal(rate) {
		t.Errorf("rate drifted with zero velocity: %s != %s", frozen, rate)
	}
}

func TestProjectFundingRateNoElapsed(t *testing.T) {
	rate := dec("0.01")
	got := ProjectFundingRate(rate, dec("0.25"), 0)
	if !got.Equal(rate) {
		t.Errorf("rate changed with zero elapsed time: %s", got)
	}
}
