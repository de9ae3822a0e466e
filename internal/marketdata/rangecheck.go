package marketdata

import (
	"fmt"
	"time"

	"ubacktest/internal/domain"
)

// MaxProjectedBars caps how many bars a run may request. Larger ranges are
// rejected before any network call.
const MaxProjectedBars = 1000

// ProjectedBars estimates the bar count of a date range at the given
// interval. The estimate assumes every weekday trades a full 1440 minutes,
// which deliberately overshoots for intraday frequencies.
func ProjectedBars(start, end time.Time, iv domain.Interval) int {
	weekdays := 0
	for d := start; !d.After(end); d = d.AddDate(0, 0, 1) {
		switch d.Weekday() {
		case time.Saturday, time.Sunday:
		default:
			weekdays++
		}
	}
	minutes := domain.MinutesPerBar[iv]
	if minutes == 0 {
		return 0
	}
	return weekdays * 1440 / minutes
}

// CheckRange rejects requests whose projected bar count exceeds the cap.
// The warm-up start counts toward the projection when enabled.
func CheckRange(in domain.FormInputs) error {
	bars := ProjectedBars(in.EffectiveStart(), in.EndDate, in.Interval)
	if bars > MaxProjectedBars {
		return &domain.UpstreamDataError{
			Kind: domain.RangeTooLarge,
			Msg: fmt.Sprintf("the requested range projects to roughly %d bars at %s frequency; the maximum is %d",
				bars, in.Interval, MaxProjectedBars),
		}
	}
	return nil
}
