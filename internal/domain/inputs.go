// Package domain defines the core data types of the backtest pipeline:
// form inputs, bar series, strategy results, summary statistics, and the
// error taxonomy shared by all pipeline stages.
package domain

import (
	"fmt"
	"regexp"
	"time"
)

// Interval is a bar frequency supported by the quote providers.
type Interval string

const (
	Interval1Min   Interval = "1min"
	Interval5Min   Interval = "5min"
	Interval15Min  Interval = "15min"
	Interval30Min  Interval = "30min"
	Interval1Hour  Interval = "1hour"
	Interval90Min  Interval = "90min"
	Interval3Hour  Interval = "3hour"
	IntervalDaily  Interval = "daily"
	IntervalWeekly Interval = "weekly"
	IntervalMonth  Interval = "monthly"
)

// MinutesPerBar maps each interval to its approximate bar duration in
// minutes, used to project the bar count of a date range before any
// network call is made.
var MinutesPerBar = map[Interval]int{
	Interval1Min:   1,
	Interval5Min:   5,
	Interval15Min:  15,
	Interval30Min:  30,
	Interval1Hour:  60,
	Interval90Min:  90,
	Interval3Hour:  180,
	IntervalDaily:  60 * 24,
	IntervalWeekly: 60 * 24 * 7,
	IntervalMonth:  60 * 24 * 30, // rough approximation
}

// IsEOD reports whether the interval is an end-of-day frequency, for which
// adjusted-close columns and split factors are available.
func (iv Interval) IsEOD() bool {
	switch iv {
	case IntervalDaily, IntervalWeekly, IntervalMonth:
		return true
	}
	return false
}

// Valid reports whether the interval is one of the supported frequencies.
func (iv Interval) Valid() bool {
	_, ok := MinutesPerBar[iv]
	return ok
}

// PriceField selects which OHLC column drives position valuation.
type PriceField string

const (
	PriceOpen  PriceField = "open"
	PriceClose PriceField = "close"
	PriceHigh  PriceField = "high"
	PriceLow   PriceField = "low"
)

// Valid reports whether the price field is one of open/close/high/low.
func (f PriceField) Valid() bool {
	switch f {
	case PriceOpen, PriceClose, PriceHigh, PriceLow:
		return true
	}
	return false
}

// FormInputs holds the request parameters of a single backtest run.
type FormInputs struct {
	Symbol       string     `json:"symbol"`
	StartDate    time.Time  `json:"startDate"`
	EndDate      time.Time  `json:"endDate"`
	Interval     Interval   `json:"intval"`
	TimeOfDay    PriceField `json:"timeOfDay"`
	CostPerTrade float64    `json:"costPerTrade"` // percent per unit of position change, 0-10
	UseWarmup    bool       `json:"useWarmupDate"`
	WarmupDate   time.Time  `json:"warmupDate"`
	UseAdjClose  bool       `json:"useAdjClose"`
	Timeout      int        `json:"timeout"` // sandbox wall/cpu limit, seconds
}

// Symbols are 1-6 alphanumeric characters, optionally prefixed with ^ for
// indices.
var symbolRe = regexp.MustCompile(`^\^?[A-Za-z0-9]{1,6}$`)

const (
	DefaultTimeoutSec = 10
	MaxTimeoutSec     = 60

	minDate = "1970-01-02"
)

// EffectiveStart returns the warm-up start when enabled, otherwise the
// scored start date.
func (in FormInputs) EffectiveStart() time.Time {
	if in.UseWarmup {
		return in.WarmupDate
	}
	return in.StartDate
}

// Validate checks the form inputs against the request contract. It is the
// first step of the pipeline and runs before any network call. All
// violations are reported as UserInputError.
func (in *FormInputs) Validate(now time.Time) error {
	if in.Symbol == "" || in.StartDate.IsZero() || in.EndDate.IsZero() || in.Interval == "" {
		return &UserInputError{Msg: "missing input entries: symbol, start date, end date, and trading frequency are required"}
	}
	if !symbolRe.MatchString(in.Symbol) {
		return &UserInputError{Msg: "symbol must be 1 to 6 alphanumeric characters (a leading ^ is allowed for indices)"}
	}
	if !in.Interval.Valid() {
		return &UserInputError{Msg: fmt.Sprintf("unsupported interval %q", in.Interval)}
	}
	if !in.TimeOfDay.Valid() {
		return &UserInputError{Msg: fmt.Sprintf("invalid execution price field %q: must be open, close, high, or low", in.TimeOfDay)}
	}
	if in.StartDate.After(in.EndDate) {
		return &UserInputError{Msg: "start date cannot be later than the end date"}
	}
	epoch, _ := time.Parse("2006-01-02", minDate)
	if in.StartDate.Before(epoch.AddDate(0, 0, -1)) {
		return &UserInputError{Msg: "dates before 1970-01-01 are not supported"}
	}
	if in.StartDate.After(now) || in.EndDate.After(now) {
		return &UserInputError{Msg: "dates cannot be in the future"}
	}
	if in.CostPerTrade < 0 || in.CostPerTrade > 10 {
		return &UserInputError{Msg: "cost per trade must be between 0 and 10 percent"}
	}
	if in.UseWarmup {
		if in.WarmupDate.IsZero() {
			return &UserInputError{Msg: "a warm-up start date is required when the warm-up period is enabled"}
		}
		if in.WarmupDate.After(in.StartDate) {
			return &UserInputError{Msg: "warm-up date cannot come after the start date"}
		}
		if in.WarmupDate.After(now) {
			return &UserInputError{Msg: "warm-up dates cannot be in the future"}
		}
	}
	if in.Timeout == 0 {
		in.Timeout = DefaultTimeoutSec
	}
	if in.Timeout < 1 || in.Timeout > MaxTimeoutSec {
		return &UserInputError{Msg: fmt.Sprintf("timeout must be between 1 and %d seconds", MaxTimeoutSec)}
	}
	return nil
}
