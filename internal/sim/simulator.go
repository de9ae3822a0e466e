// Package sim turns a scored bar series and a signal into portfolio curves,
// summary statistics, and a validated strategy result.
package sim

import (
	"fmt"
	"math"

	"gonum.org/v1/gonum/floats/scalar"

	"ubacktest/internal/domain"
)

// Curves holds every derived array of one simulation, unrounded until the
// final pass.
type Curves struct {
	Returns            []float64
	Portfolio          []float64
	PortfolioWithCosts []float64
	Cash               []float64
	Equity             []float64
	CashWithCosts      []float64
	EquityWithCosts    []float64
}

// Run simulates the signal against the scored series. The recurrence
// applies the previous bar's signal to the current bar's price move, a
// one-bar execution lag that must not be collapsed to same-bar application.
// Costs are charged on signal changes as a percentage of the cost-adjusted
// portfolio. Both curves floor at zero.
func Run(series domain.BarSeries, field domain.PriceField, signal []float64, costPct float64) (*Curves, error) {
	n := series.Len()
	if len(signal) != n {
		return nil, &domain.SandboxError{
			Kind: domain.NoEnginePayload,
			Msg:  fmt.Sprintf("the engine returned %d signal values for %d scored bars", len(signal), n),
		}
	}
	if n == 0 {
		return nil, &domain.UpstreamDataError{
			Kind: domain.DataTooSparse,
			Msg:  "cannot simulate an empty series",
		}
	}

	price, err := series.Price(field)
	if err != nil {
		return nil, err
	}

	c := &Curves{
		Returns:            make([]float64, n),
		Portfolio:          make([]float64, n),
		PortfolioWithCosts: make([]float64, n),
		Cash:               make([]float64, n),
		Equity:             make([]float64, n),
		CashWithCosts:      make([]float64, n),
		EquityWithCosts:    make([]float64, n),
	}
	c.Portfolio[0] = 1
	c.PortfolioWithCosts[0] = 1

	costRate := costPct / 100

	for i := 1; i < n; i++ {
		var ret float64
		if price[i-1] != 0 {
			ret = (price[i] - price[i-1]) / price[i-1]
		}

		// Realized return: yesterday's signal rides today's move.
		curved := ret * signal[i-1]
		c.Returns[i] = curved

		c.Portfolio[i] = math.Max(0, c.Portfolio[i-1]*(1+curved))

		// The signal held before bar 0 is zero, so entering the initial
		// position is itself a charged trade.
		prev2 := 0.0
		if i >= 2 {
			prev2 = signal[i-2]
		}
		tradeCost := math.Abs(signal[i-1]-prev2) * c.PortfolioWithCosts[i-1] * costRate
		c.PortfolioWithCosts[i] = math.Max(0, c.PortfolioWithCosts[i-1]*(1+curved)-tradeCost)
	}

	for i := 0; i < n; i++ {
		c.Equity[i] = c.Portfolio[i] * signal[i]
		c.Cash[i] = math.Max(0, c.Portfolio[i]-math.Abs(c.Equity[i]))
		c.EquityWithCosts[i] = c.PortfolioWithCosts[i] * signal[i]
		c.CashWithCosts[i] = math.Max(0, c.PortfolioWithCosts[i]-math.Abs(c.EquityWithCosts[i]))
	}

	return c, nil
}

// Round rounds every curve to four decimals. Called once after the
// recurrence; rounding mid-recurrence would compound error.
func (c *Curves) Round() {
	for _, col := range [][]float64{
		c.Returns, c.Portfolio, c.PortfolioWithCosts,
		c.Cash, c.Equity, c.CashWithCosts, c.EquityWithCosts,
	} {
		for i, v := range col {
			col[i] = scalar.Round(v, 4)
		}
	}
}
