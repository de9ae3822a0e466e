package sim

import (
	"testing"

	"ubacktest/internal/domain"
)

func runFor(t *testing.T, closes, signal []float64, costPct float64) (*Curves, domain.BarSeries) {
	t.Helper()
	s := series(closes)
	c, err := Run(s, domain.PriceClose, signal, costPct)
	if err != nil {
		t.Fatalf("Run() error: %v", err)
	}
	return c, s
}

func TestStatsFlatZeroSignal(t *testing.T) {
	closes := []float64{100, 100, 100, 100, 100, 100}
	signal := []float64{0, 0, 0, 0, 0, 0}
	c, s := runFor(t, closes, signal, 0)

	st := ComputeStats(c, signal, s.Timestamp)
	if st.PL != 0 {
		t.Errorf("PL = %v, want 0", st.PL)
	}
	if st.NumTrades != 0 {
		t.Errorf("NumTrades = %d, want 0 for an all-zero signal", st.NumTrades)
	}
	if st.SharpeRatio != nil {
		t.Errorf("SharpeRatio = %v, want nil without trades", *st.SharpeRatio)
	}
	if st.SortinoRatio != nil {
		t.Errorf("SortinoRatio = %v, want nil without trades", *st.SortinoRatio)
	}
	if st.PercTradesProfitable != nil {
		t.Errorf("PercTradesProfitable = %v, want nil without trades", *st.PercTradesProfitable)
	}
}

func TestStatsHoldFromBarZeroCountsOneTrade(t *testing.T) {
	closes := []float64{100, 101, 102, 103, 104, 105}
	signal := []float64{1, 1, 1, 1, 1, 1}
	c, s := runFor(t, closes, signal, 0)

	st := ComputeStats(c, signal, s.Timestamp)
	if st.NumTrades != 1 {
		t.Errorf("NumTrades = %d, want 1 for buy-and-hold", st.NumTrades)
	}
	if st.NumProfitableTrades != 1 {
		t.Errorf("NumProfitableTrades = %d, want 1 on a rising series", st.NumProfitableTrades)
	}
	if st.PL <= 0 {
		t.Errorf("PL = %v, want positive", st.PL)
	}
	if st.CAGR == nil {
		t.Fatal("CAGR = nil, want a value for a multi-day series")
	}
	if *st.CAGR <= 0 {
		t.Errorf("CAGR = %v, want positive", *st.CAGR)
	}
	if st.SharpeRatio == nil {
		t.Error("SharpeRatio = nil, want a value when trades exist and returns vary")
	}
}

func TestStatsCountsFlips(t *testing.T) {
	closes := []float64{100, 101, 102, 103, 104, 105}
	signal := []float64{0, 1, 1, 0, -1, -1}
	c, s := runFor(t, closes, signal, 0)

	st := ComputeStats(c, signal, s.Timestamp)
	// Flips at bars 1, 3, and 4.
	if st.NumTrades != 3 {
		t.Errorf("NumTrades = %d, want 3", st.NumTrades)
	}
}

func TestStatsPLWithCostsUsesNoCostBase(t *testing.T) {
	closes := []float64{100, 102, 104, 103, 105, 106}
	signal := []float64{1, -1, 1, -1, 1, -1}
	c, s := runFor(t, closes, signal, 2)

	st := ComputeStats(c, signal, s.Timestamp)
	n := len(closes)
	want := round4(100 * (c.PortfolioWithCosts[n-1] - c.Portfolio[0]) / c.Portfolio[0])
	if st.PLWithCosts != want {
		t.Errorf("PLWithCosts = %v, want %v", st.PLWithCosts, want)
	}
	if st.PLWithCosts >= st.PL {
		t.Errorf("PLWithCosts = %v, want below PL = %v with heavy trading", st.PLWithCosts, st.PL)
	}
}

func TestStatsMaxDrawdown(t *testing.T) {
	closes := []float64{100, 120, 60, 80, 90, 100}
	signal := []float64{1, 1, 1, 1, 1, 1}
	c, s := runFor(t, closes, signal, 0)

	st := ComputeStats(c, signal, s.Timestamp)
	// Peak 1.2, trough 0.6: drawdown 50%.
	if st.MaxDrawdown != 0.5 {
		t.Errorf("MaxDrawdown = %v, want 0.5", st.MaxDrawdown)
	}
	// Peak 1.2 against a start of 1: max gain 20%.
	if st.MaxGain != 0.2 {
		t.Errorf("MaxGain = %v, want 0.2", st.MaxGain)
	}
}

func TestStatsSortinoWithoutLosses(t *testing.T) {
	closes := []float64{100, 101, 102, 103, 104, 105}
	signal := []float64{1, 1, 1, 1, 1, 1}
	c, s := runFor(t, closes, signal, 0)

	st := ComputeStats(c, signal, s.Timestamp)
	if st.SortinoRatio == nil {
		t.Fatal("SortinoRatio = nil, want a value")
	}
	// With no negative returns the denominator falls back to 1, so the
	// ratio equals the mean return.
	if *st.SortinoRatio != st.MeanReturn {
		t.Errorf("SortinoRatio = %v, want mean return %v", *st.SortinoRatio, st.MeanReturn)
	}
}

func TestStatsLength(t *testing.T) {
	closes := []float64{100, 101, 102, 103, 104, 105}
	signal := []float64{1, 1, 1, 1, 1, 1}
	c, s := runFor(t, closes, signal, 0)

	st := ComputeStats(c, signal, s.Timestamp)
	if st.Length != 6 {
		t.Errorf("Length = %d, want 6", st.Length)
	}
}
