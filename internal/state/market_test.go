package state

import (
	"errors"
	"testing"
	"time"

	"github.com/google/uuid"
)

func testMarketConfig() MarketConfig {
	return MarketConfig{
		SkewScale:              dec("100000"),
		MakerFee:               dec("0.0002"),
		TakerFee:               dec("0.0006"),
		MaxFundingVelocity:     dec("0.25"),
		MaxMarketSize:          dec("10000"),
		InitialMarginRatio:     dec("0.05"),
		MaintenanceMarginRatio: dec("0.03"),
		OracleNodeID:           "node-eth",
	}
}

func TestMarketFundingProjection(t *testing.T) {
	t0 := time.Date(2026, 1, 1, 0, 0, 0, 0, time.UTC)
	m := NewMarket("ETHPERP", testMarketConfig(), t0)

	m.Skew = dec("1000")
	m.RecomputeFundingVelocity()
	if !m.FundingVelocity.Equal(dec("0.0025")) {
		t.Fatalf("velocity = %s, want 0.0025", m.FundingVelocity)
	}

	later := t0.Add(29000 * time.Second)
	projected := m.ProjectedFundingRate(later)
	if projected.Sub(dec("0.000839120370")).Abs().GreaterThan(dec("0.000001")) {
		t.Errorf("projected rate = %s, want ~0.00083912", projected)
	}

	// Projection does not mutate.
	if !m.FundingRate.IsZero() {
		t.Errorf("stored rate mutated by projection: %s", m.FundingRate)
	}

	// AdvanceFunding folds it in and moves the clock.
	m.AdvanceFunding(later)
	if !m.FundingRate.Equal(projected) {
		t.Errorf("advanced rate = %s, want %s", m.FundingRate, projected)
	}
	if !m.LastFundingTime.Equal(later) {
		t.Errorf("funding clock = %s, want %s", m.LastFundingTime, later)
	}
}

func TestMarketManager(t *testing.T) {
	mm := NewMarketManager()
	now := time.Now()

	if _, err := mm.Create("ETHPERP", testMarketConfig(), now); err != nil {
		t.Fatalf("Create: %v", err)
	}

	var existsErr *MarketExistsError
	if _, err := mm.Create("ETHPERP", testMarketConfig(), now); !errors.As(err, &existsErr) {
		t.Errorf("duplicate create error = %v, want MarketExistsError", err)
	}

	var notFoundErr *MarketNotFoundError
	if _, err := mm.Get("BTCPERP"); !errors.As(err, &notFoundErr) {
		t.Errorf("missing market error = %v, want MarketNotFoundError", err)
	}
}

func TestPositionLifecycle(t *testing.T) {
	pm := NewPositionManager()
	acct := uuid.New()
	market := "ETHPERP"

	if pm.Get(acct, market).IsOpen() {
		t.Fatal("missing position reported open")
	}

	p := pm.ApplyFill(acct, market, dec("2"), dec("2000"), dec("0.001"), dec("3"))
	if !p.Size.Equal(dec("2")) || !p.EntryPrice.Equal(dec("2000")) {
		t.Fatalf("position after open = %+v", p)
	}

	// Price up 100, funding up 0.0005: pnl = 2*100 + 2*0.0005.
	pnl := p.UnrealizedPnl(dec("2100"), dec("0.0015"))
	if !pnl.Equal(dec("200.001")) {
		t.Errorf("unrealized pnl = %s, want 200.001", pnl)
	}

	// Fees accumulate across fills; closing removes the position.
	p = pm.ApplyFill(acct, market, dec("3"), dec("2100"), dec("0.0015"), dec("2"))
	if !p.AccruedFeesUsd.Equal(dec("5")) {
		t.Errorf("accrued fees = %s, want 5", p.AccruedFeesUsd)
	}
	if got := pm.ApplyFill(acct, market, dec("0"), dec("2100"), dec("0.0015"), dec("1")); got != nil {
		t.Errorf("closed position = %+v, want nil", got)
	}
	if pm.Count() != 0 {
		t.Errorf("position count = %d, want 0", pm.Count())
	}
}
