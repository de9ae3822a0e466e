// Package marketdata fetches OHLCV bar series from quote providers and
// prepares them for strategy execution: shape validation, adjusted-column
// selection, warm-up slicing, and price normalization.
package marketdata

import (
	"context"
	"fmt"
	"math"
	"time"

	"gonum.org/v1/gonum/floats/scalar"

	"ubacktest/internal/domain"
)

// Quote is the prepared output of a provider fetch. Full spans the warm-up
// window when one is configured; Scored starts at the requested start date.
// Both series are normalized by the first close of their own slice.
type Quote struct {
	Full     domain.BarSeries
	Scored   domain.BarSeries
	Warnings []string
}

// Provider fetches raw bar columns for one symbol and date range.
type Provider interface {
	// Name identifies the provider in logs and cache keys.
	Name() string

	// Fetch retrieves, validates, and normalizes a quote. Failures are
	// reported as *domain.UpstreamDataError (or *domain.UserInputError when
	// the provider cannot serve the requested interval).
	Fetch(ctx context.Context, in domain.FormInputs) (*Quote, error)
}

// rawColumns is the provider-neutral column form every client produces.
// Timestamps are unix seconds in ascending order. The adjusted columns and
// SplitFactor are nil for providers or intervals that do not carry them.
type rawColumns struct {
	Timestamp []int64
	Open      []float64
	High      []float64
	Low       []float64
	Close     []float64
	Volume    []float64

	AdjOpen     []float64
	AdjHigh     []float64
	AdjLow      []float64
	AdjClose    []float64
	SplitFactor []float64
}

// MinBars is the sparsity floor: a series with fewer bars cannot produce a
// meaningful backtest.
const MinBars = 5

// driftThreshold flags a series whose edges sit further than this from the
// requested range. Weekly and monthly bars legitimately snap to period
// boundaries, so the check is skipped for them.
const driftThreshold = 5 * 24 * time.Hour

// lowVolumeFloor marks bars too thinly traded for realistic fills.
const lowVolumeFloor = 1000

// buildQuote turns raw provider columns into a validated, normalized Quote.
// All providers funnel through here so the checks and warnings are uniform.
func buildQuote(in domain.FormInputs, raw *rawColumns) (*Quote, error) {
	n := len(raw.Timestamp)
	if n == 0 {
		return nil, &domain.UpstreamDataError{
			Kind: domain.DataUnavailable,
			Msg:  fmt.Sprintf("no data returned for %s over the requested range", in.Symbol),
		}
	}
	if len(raw.Open) != n || len(raw.High) != n || len(raw.Low) != n ||
		len(raw.Close) != n || len(raw.Volume) != n {
		return nil, &domain.UpstreamDataError{
			Kind: domain.DataShapeMismatch,
			Msg:  fmt.Sprintf("quote columns for %s have mismatched lengths", in.Symbol),
		}
	}

	var warnings []string

	open, high, low, close_ := raw.Open, raw.High, raw.Low, raw.Close
	if in.UseAdjClose {
		if len(raw.AdjClose) == n {
			close_ = raw.AdjClose
			if len(raw.AdjOpen) == n {
				open = raw.AdjOpen
			}
			if len(raw.AdjHigh) == n {
				high = raw.AdjHigh
			}
			if len(raw.AdjLow) == n {
				low = raw.AdjLow
			}
		} else {
			warnings = append(warnings, "adjusted prices are not available for this interval; using unadjusted prices")
		}
	} else if len(raw.SplitFactor) == n {
		for _, f := range raw.SplitFactor {
			if f != 0 && f != 1 {
				warnings = append(warnings, "the series contains stock splits; consider enabling adjusted prices")
				break
			}
		}
	}

	if n < MinBars {
		return nil, sparseErr(in.Symbol, n)
	}

	full := domain.BarSeries{
		Timestamp: raw.Timestamp,
		Open:      open,
		High:      high,
		Low:       low,
		Close:     close_,
		Volume:    raw.Volume,
	}

	// Locate the first scored bar. Everything before it is warm-up.
	cutoff := in.StartDate.Unix()
	si := 0
	for si < n && full.Timestamp[si] < cutoff {
		si++
	}
	scored := domain.BarSeries{
		Timestamp: full.Timestamp[si:],
		Open:      full.Open[si:],
		High:      full.High[si:],
		Low:       full.Low[si:],
		Close:     full.Close[si:],
		Volume:    full.Volume[si:],
	}
	if scored.Len() < MinBars {
		return nil, sparseErr(in.Symbol, scored.Len())
	}

	warnings = append(warnings, driftWarnings(in, full)...)

	for _, v := range full.Volume {
		if v < lowVolumeFloor {
			warnings = append(warnings, "the series contains bars with volume under 1000 units; fills at these prices may be unrealistic")
			break
		}
	}

	return &Quote{
		Full:     normalize(full),
		Scored:   normalize(scored),
		Warnings: warnings,
	}, nil
}

func sparseErr(symbol string, n int) error {
	return &domain.UpstreamDataError{
		Kind: domain.DataTooSparse,
		Msg:  fmt.Sprintf("only %d bars available for %s; at least %d are required", n, symbol, MinBars),
	}
}

// driftWarnings reports when the returned series starts or ends far from the
// requested range, which usually means the symbol was not listed for part of
// it.
func driftWarnings(in domain.FormInputs, s domain.BarSeries) []string {
	switch in.Interval {
	case domain.IntervalWeekly, domain.IntervalMonth:
		return nil
	}

	var w []string
	first := time.Unix(s.Timestamp[0], 0)
	last := time.Unix(s.Timestamp[s.Len()-1], 0)
	if first.Sub(in.EffectiveStart()) > driftThreshold {
		w = append(w, fmt.Sprintf("data for %s starts on %s, later than the requested start", in.Symbol, first.Format("2006-01-02")))
	}
	if in.EndDate.Sub(last) > driftThreshold {
		w = append(w, fmt.Sprintf("data for %s ends on %s, earlier than the requested end", in.Symbol, last.Format("2006-01-02")))
	}
	return w
}

// normalize divides every OHLC column by the first close of the series and
// rounds to four decimals, so curves start at 1 regardless of price level.
// Volume is left untouched.
func normalize(s domain.BarSeries) domain.BarSeries {
	base := s.Close[0]
	if base == 0 || math.IsNaN(base) {
		base = 1
	}
	out := domain.BarSeries{
		Timestamp: s.Timestamp,
		Open:      normalizeCol(s.Open, base),
		High:      normalizeCol(s.High, base),
		Low:       normalizeCol(s.Low, base),
		Close:     normalizeCol(s.Close, base),
		Volume:    s.Volume,
	}
	return out
}

func normalizeCol(col []float64, base float64) []float64 {
	out := make([]float64, len(col))
	for i, v := range col {
		out[i] = scalar.Round(v/base, 4)
	}
	return out
}
