package sim

import (
	"fmt"
	"math"

	"ubacktest/internal/domain"
)

// Validate checks the structural and numeric invariants of a finished
// result before it leaves the pipeline. A violation means a defect in this
// process, never in the user's strategy, and is fatal.
func Validate(r *domain.StrategyResult) error {
	n := len(r.Portfolio)
	if n == 0 {
		return &domain.ResultIntegrityError{Msg: "the result is empty"}
	}

	cols := map[string][]float64{
		"portfolio":          r.Portfolio,
		"portfolioWithCosts": r.PortfolioWithCosts,
		"signal":             r.Signal,
		"returns":            r.Returns,
	}
	for name, col := range cols {
		if len(col) != n {
			return &domain.ResultIntegrityError{
				Msg: fmt.Sprintf("%s has %d entries, portfolio has %d", name, len(col), n),
			}
		}
		for i, v := range col {
			if math.IsNaN(v) || math.IsInf(v, 0) {
				return &domain.ResultIntegrityError{
					Msg: fmt.Sprintf("%s[%d] is not a finite number", name, i),
				}
			}
		}
	}

	for i := 0; i < n; i++ {
		if r.Portfolio[i] < 0 || r.PortfolioWithCosts[i] < 0 {
			return &domain.ResultIntegrityError{
				Msg: fmt.Sprintf("portfolio value at bar %d is negative", i),
			}
		}
		if r.Returns[i] < -1 || r.Returns[i] > 1 {
			return &domain.ResultIntegrityError{
				Msg: fmt.Sprintf("returns[%d] = %v is outside [-1, 1]", i, r.Returns[i]),
			}
		}
	}

	if len(r.Timestamp) != n {
		return &domain.ResultIntegrityError{
			Msg: fmt.Sprintf("timestamp has %d entries, portfolio has %d", len(r.Timestamp), n),
		}
	}
	for i := 1; i < n; i++ {
		if r.Timestamp[i] <= r.Timestamp[i-1] {
			return &domain.ResultIntegrityError{
				Msg: fmt.Sprintf("timestamps are not strictly increasing at bar %d", i),
			}
		}
	}
	return nil
}
