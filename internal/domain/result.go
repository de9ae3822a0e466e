package domain

import "fmt"

// BarSeries is a column-oriented OHLCV series. All slices have the same
// length and timestamps are unix seconds in strictly increasing order.
type BarSeries struct {
	Timestamp []int64   `json:"timestamp"`
	Open      []float64 `json:"open"`
	High      []float64 `json:"high"`
	Low       []float64 `json:"low"`
	Close     []float64 `json:"close"`
	Volume    []float64 `json:"volume"`
}

// Len returns the number of bars in the series.
func (s BarSeries) Len() int { return len(s.Timestamp) }

// Price returns the column selected by the given price field.
func (s BarSeries) Price(f PriceField) ([]float64, error) {
	switch f {
	case PriceOpen:
		return s.Open, nil
	case PriceClose:
		return s.Close, nil
	case PriceHigh:
		return s.High, nil
	case PriceLow:
		return s.Low, nil
	}
	return nil, fmt.Errorf("unknown price field %q", f)
}

// UserDefinedData holds the named numeric series emitted by the user's
// strategy alongside the signal. Every series has exactly the signal's
// length; anything else is dropped during parsing.
type UserDefinedData map[string][]float64

// StrategyResult is the aggregate output of one pipeline run: the scored
// bar series plus every derived array. It is immutable once validated.
type StrategyResult struct {
	BarSeries

	Signal  []float64 `json:"signal"`
	Returns []float64 `json:"returns"`

	// SP is the benchmark close series, present only when the benchmark
	// fetch succeeded and lined up with the scored timestamps.
	SP []float64 `json:"sp"`

	Portfolio          []float64 `json:"portfolio"`
	PortfolioWithCosts []float64 `json:"portfolioWithCosts"`

	Cash            []float64 `json:"cash"`
	Equity          []float64 `json:"equity"`
	CashWithCosts   []float64 `json:"cashWithCosts"`
	EquityWithCosts []float64 `json:"equityWithCosts"`

	UserDefinedData UserDefinedData `json:"userDefinedData"`
}

// Stats is the read-only performance summary derived from a StrategyResult.
// PL, PLWithCosts, CAGR, and PercTradesProfitable are percentages;
// MaxDrawdown and MaxGain are fractions of the portfolio value; the return
// moments are raw per-bar figures. SharpeRatio and SortinoRatio are nil for
// strategies that never traded.
type Stats struct {
	Length               int      `json:"length"`
	PL                   float64  `json:"pl"`
	PLWithCosts          float64  `json:"plWCosts"`
	CAGR                 *float64 `json:"cagr"`
	NumTrades            int      `json:"numTrades"`
	NumProfitableTrades  int      `json:"numProfTrades"`
	PercTradesProfitable *float64 `json:"percTradesProf"`
	SharpeRatio          *float64 `json:"sharpeRatio"`
	SortinoRatio         *float64 `json:"sortinoRatio"`
	MaxDrawdown          float64  `json:"maxDrawdown"`
	MaxGain              float64  `json:"maxGain"`
	MeanReturn           float64  `json:"meanReturn"`
	StddevReturn         float64  `json:"stddevReturn"`
	MaxReturn            float64  `json:"maxReturn"`
	MinReturn            float64  `json:"minReturn"`
}

// BacktestResult is the envelope returned to the calling layer. Stderr
// carries user-code failures; Warnings are deduplicated, non-fatal notices
// accumulated along the pipeline.
type BacktestResult struct {
	StrategyResult *StrategyResult `json:"strategyResult"`
	Statistics     *Stats          `json:"statistics"`
	DebugOutput    string          `json:"debugOutput"`
	Stderr         string          `json:"stderr"`
	Warnings       []string        `json:"warnings"`
}
