package sim

import (
	"math"

	"gonum.org/v1/gonum/floats/scalar"
	"gonum.org/v1/gonum/stat"

	"ubacktest/internal/domain"
)

// ComputeStats derives the summary statistics from unrounded curves.
// Percentages come back rounded to four decimals; risk ratios are nil for
// strategies that never traded.
func ComputeStats(c *Curves, signal []float64, timestamps []int64) *domain.Stats {
	n := len(c.Portfolio)
	s := &domain.Stats{Length: n}
	if n == 0 {
		return s
	}

	first, last := c.Portfolio[0], c.Portfolio[n-1]
	s.PL = round4(100 * (last - first) / first)
	// Normalized by the no-cost initial value so the two figures compare
	// directly.
	s.PLWithCosts = round4(100 * (c.PortfolioWithCosts[n-1] - first) / first)

	elapsedDays := float64(timestamps[n-1]-timestamps[0]) / 86400
	if elapsedDays > 0 {
		cagr := round4(100 * (math.Pow(last/first, 365/elapsedDays) - 1))
		s.CAGR = &cagr
	}

	s.NumTrades, s.NumProfitableTrades = countTrades(c.Portfolio, signal)
	if s.NumTrades > 0 {
		perc := round4(100 * float64(s.NumProfitableTrades) / float64(s.NumTrades))
		s.PercTradesProfitable = &perc
	}

	peak := c.Portfolio[0]
	var maxDD, maxGain float64
	for _, v := range c.Portfolio {
		if v > peak {
			peak = v
		}
		if peak > 0 {
			if dd := (peak - v) / peak; dd > maxDD {
				maxDD = dd
			}
		}
		if gain := v - 1; gain > maxGain {
			maxGain = gain
		}
	}
	s.MaxDrawdown = round4(maxDD)
	s.MaxGain = round4(maxGain)

	// Bar 0 carries a synthetic zero return; the moments skip it.
	if n > 1 {
		rets := c.Returns[1:]
		s.MeanReturn = round4(stat.Mean(rets, nil))
		s.StddevReturn = round4(stat.StdDev(rets, nil))
		s.MaxReturn = round4(maxOf(rets))
		s.MinReturn = round4(minOf(rets))

		if s.NumTrades > 0 {
			mean := stat.Mean(rets, nil)
			if sd := stat.StdDev(rets, nil); sd > 0 && !math.IsNaN(sd) {
				sharpe := round4(mean / sd)
				s.SharpeRatio = &sharpe
			}
			sortino := round4(mean / downsideDeviation(rets))
			s.SortinoRatio = &sortino
		}
	}
	return s
}

// countTrades counts signal changes and how many of them closed at a higher
// portfolio value than the previous trade boundary. A strategy that holds a
// nonzero position from bar 0 without ever changing still counts one trade.
func countTrades(portfolio, signal []float64) (trades, profitable int) {
	boundary := portfolio[0]
	for i := 1; i < len(signal); i++ {
		if signal[i] == signal[i-1] {
			continue
		}
		trades++
		if portfolio[i] > boundary {
			profitable++
		}
		boundary = portfolio[i]
	}
	if trades == 0 && signal[0] != 0 {
		trades = 1
		if portfolio[len(portfolio)-1] > portfolio[0] {
			profitable = 1
		}
	}
	return trades, profitable
}

// downsideDeviation is the root mean square of the negative returns, or 1
// when none exist so the ratio stays defined.
func downsideDeviation(rets []float64) float64 {
	var sum float64
	var count int
	for _, r := range rets {
		if r < 0 {
			sum += r * r
			count++
		}
	}
	if count == 0 {
		return 1
	}
	return math.Sqrt(sum / float64(count))
}

func maxOf(v []float64) float64 {
	m := v[0]
	for _, x := range v[1:] {
		if x > m {
			m = x
		}
	}
	return m
}

func minOf(v []float64) float64 {
	m := v[0]
	for _, x := range v[1:] {
		if x < m {
			m = x
		}
	}
	return m
}

func round4(v float64) float64 { return scalar.Round(v, 4) }
