// Package httpapi exposes the backtest pipeline over HTTP, mapping the
// pipeline's error taxonomy onto status codes.
package httpapi

import (
	"time"

	"ubacktest/internal/domain"
)

// BacktestRequest is the JSON body of POST /api/backtest. Dates are
// "2006-01-02" strings.
type BacktestRequest struct {
	Code          string  `json:"code"`
	Symbol        string  `json:"symbol"`
	StartDate     string  `json:"startDate"`
	EndDate       string  `json:"endDate"`
	Interval      string  `json:"intval"`
	TimeOfDay     string  `json:"timeOfDay"`
	CostPerTrade  float64 `json:"costPerTrade"`
	UseWarmupDate bool    `json:"useWarmupDate"`
	WarmupDate    string  `json:"warmupDate"`
	UseAdjClose   bool    `json:"useAdjClose"`
	Timeout       int     `json:"timeout"`
}

// ToInputs converts the wire request into form inputs. Date parse failures
// leave the corresponding field zero for Validate to reject.
func (r BacktestRequest) ToInputs() domain.FormInputs {
	in := domain.FormInputs{
		Symbol:       r.Symbol,
		Interval:     domain.Interval(r.Interval),
		TimeOfDay:    domain.PriceField(r.TimeOfDay),
		CostPerTrade: r.CostPerTrade,
		UseWarmup:    r.UseWarmupDate,
		UseAdjClose:  r.UseAdjClose,
		Timeout:      r.Timeout,
	}
	if t, err := time.Parse("2006-01-02", r.StartDate); err == nil {
		in.StartDate = t
	}
	if t, err := time.Parse("2006-01-02", r.EndDate); err == nil {
		in.EndDate = t
	}
	if t, err := time.Parse("2006-01-02", r.WarmupDate); err == nil {
		in.WarmupDate = t
	}
	return in
}

// HealthResponse is the body of GET /api/health.
type HealthResponse struct {
	Status string `json:"status"`
}
