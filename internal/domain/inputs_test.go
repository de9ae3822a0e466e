package domain

import (
	"testing"
	"time"
)

func date(s string) time.Time {
	t, err := time.Parse("2006-01-02", s)
	if err != nil {
		panic(err)
	}
	return t
}

func validInputs() FormInputs {
	return FormInputs{
		Symbol:       "AAPL",
		StartDate:    date("2022-01-03"),
		EndDate:      date("2022-06-30"),
		Interval:     IntervalDaily,
		TimeOfDay:    PriceClose,
		CostPerTrade: 0.1,
	}
}

var testNow = date("2024-01-01")

func TestValidateAccepts(t *testing.T) {
	in := validInputs()
	if err := in.Validate(testNow); err != nil {
		t.Fatalf("Validate() = %v, want nil", err)
	}
	if in.Timeout != DefaultTimeoutSec {
		t.Errorf("Timeout defaulted to %d, want %d", in.Timeout, DefaultTimeoutSec)
	}

	// Index symbols carry a leading caret.
	in = validInputs()
	in.Symbol = "^GSPC"
	if err := in.Validate(testNow); err != nil {
		t.Errorf("Validate(^GSPC) = %v, want nil", err)
	}
}

func TestValidateRejects(t *testing.T) {
	cases := []struct {
		name   string
		mutate func(*FormInputs)
	}{
		{"missing symbol", func(in *FormInputs) { in.Symbol = "" }},
		{"symbol too long", func(in *FormInputs) { in.Symbol = "TOOLONG7" }},
		{"symbol with punctuation", func(in *FormInputs) { in.Symbol = "AA.PL" }},
		{"caret in the middle", func(in *FormInputs) { in.Symbol = "GS^PC" }},
		{"start after end", func(in *FormInputs) {
			in.StartDate = date("2022-07-01")
		}},
		{"end in the future", func(in *FormInputs) {
			in.EndDate = testNow.AddDate(0, 1, 0)
			in.StartDate = testNow.AddDate(0, 0, 1)
		}},
		{"before epoch", func(in *FormInputs) { in.StartDate = date("1969-06-30") }},
		{"bad interval", func(in *FormInputs) { in.Interval = "2min" }},
		{"bad price field", func(in *FormInputs) { in.TimeOfDay = "midday" }},
		{"negative cost", func(in *FormInputs) { in.CostPerTrade = -0.5 }},
		{"cost above ceiling", func(in *FormInputs) { in.CostPerTrade = 11 }},
		{"warm-up enabled without date", func(in *FormInputs) { in.UseWarmup = true }},
		{"warm-up after start", func(in *FormInputs) {
			in.UseWarmup = true
			in.WarmupDate = date("2022-02-01")
		}},
		{"timeout above ceiling", func(in *FormInputs) { in.Timeout = 120 }},
	}

	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			in := validInputs()
			tc.mutate(&in)
			err := in.Validate(testNow)
			if err == nil {
				t.Fatal("Validate() = nil, want error")
			}
			if _, ok := err.(*UserInputError); !ok {
				t.Errorf("Validate() error type = %T, want *UserInputError", err)
			}
		})
	}
}

func TestEffectiveStart(t *testing.T) {
	in := validInputs()
	if got := in.EffectiveStart(); !got.Equal(in.StartDate) {
		t.Errorf("EffectiveStart() = %v, want %v", got, in.StartDate)
	}

	in.UseWarmup = true
	in.WarmupDate = date("2021-10-01")
	if got := in.EffectiveStart(); !got.Equal(in.WarmupDate) {
		t.Errorf("EffectiveStart() = %v, want warm-up date %v", got, in.WarmupDate)
	}
}

func TestIntervalTables(t *testing.T) {
	if MinutesPerBar[Interval1Min] != 1 {
		t.Errorf("MinutesPerBar[1min] = %d, want 1", MinutesPerBar[Interval1Min])
	}
	if MinutesPerBar[IntervalDaily] != 1440 {
		t.Errorf("MinutesPerBar[daily] = %d, want 1440", MinutesPerBar[IntervalDaily])
	}

	for _, iv := range []Interval{IntervalDaily, IntervalWeekly, IntervalMonth} {
		if !iv.IsEOD() {
			t.Errorf("%s.IsEOD() = false, want true", iv)
		}
	}
	for _, iv := range []Interval{Interval1Min, Interval1Hour, Interval3Hour} {
		if iv.IsEOD() {
			t.Errorf("%s.IsEOD() = true, want false", iv)
		}
	}
}

func TestPriceFieldSelection(t *testing.T) {
	s := BarSeries{
		Timestamp: []int64{1, 2},
		Open:      []float64{1.0, 1.1},
		High:      []float64{1.2, 1.3},
		Low:       []float64{0.9, 1.0},
		Close:     []float64{1.05, 1.15},
		Volume:    []float64{100, 200},
	}

	col, err := s.Price(PriceHigh)
	if err != nil {
		t.Fatalf("Price(high) error: %v", err)
	}
	if col[1] != 1.3 {
		t.Errorf("Price(high)[1] = %v, want 1.3", col[1])
	}

	if _, err := s.Price("vwap"); err == nil {
		t.Error("Price(vwap) = nil error, want error")
	}
}
