package marketdata

import (
	"context"
	"fmt"

	"github.com/alpacahq/alpaca-trade-api-go/v3/marketdata"

	"ubacktest/internal/domain"
)

// alpacaTimeFrame maps supported frequencies onto the Alpaca bar timeframes.
var alpacaTimeFrame = map[domain.Interval]marketdata.TimeFrame{
	domain.Interval1Min:   marketdata.NewTimeFrame(1, marketdata.Min),
	domain.Interval5Min:   marketdata.NewTimeFrame(5, marketdata.Min),
	domain.Interval15Min:  marketdata.NewTimeFrame(15, marketdata.Min),
	domain.Interval30Min:  marketdata.NewTimeFrame(30, marketdata.Min),
	domain.Interval1Hour:  marketdata.NewTimeFrame(1, marketdata.Hour),
	domain.Interval90Min:  marketdata.NewTimeFrame(90, marketdata.Min),
	domain.Interval3Hour:  marketdata.NewTimeFrame(3, marketdata.Hour),
	domain.IntervalDaily:  marketdata.OneDay,
	domain.IntervalWeekly: marketdata.NewTimeFrame(1, marketdata.Week),
	domain.IntervalMonth:  marketdata.NewTimeFrame(1, marketdata.Month),
}

// AlpacaClient fetches bars through the Alpaca market-data SDK. It requires
// API credentials and covers US equities only (no index symbols).
type AlpacaClient struct {
	client *marketdata.Client
}

var _ Provider = (*AlpacaClient)(nil)

// NewAlpacaClient creates an Alpaca provider with the given credentials. An
// empty dataURL uses the SDK default endpoint.
func NewAlpacaClient(apiKey, apiSecret, dataURL string) *AlpacaClient {
	opts := marketdata.ClientOpts{
		APIKey:    apiKey,
		APISecret: apiSecret,
	}
	if dataURL != "" {
		opts.BaseURL = dataURL
	}
	return &AlpacaClient{client: marketdata.NewClient(opts)}
}

func (c *AlpacaClient) Name() string { return "alpaca" }

// Fetch retrieves, validates, and normalizes an Alpaca quote. Adjusted
// prices are requested via the SDK's adjustment parameter rather than
// separate columns, so no split-factor warning can be raised here.
func (c *AlpacaClient) Fetch(ctx context.Context, in domain.FormInputs) (*Quote, error) {
	if ctx.Err() != nil {
		return nil, ctx.Err()
	}
	if in.Symbol[0] == '^' {
		return nil, &domain.UserInputError{
			Msg: "index symbols are not supported by the alpaca provider",
		}
	}
	tf, ok := alpacaTimeFrame[in.Interval]
	if !ok {
		return nil, &domain.UserInputError{
			Msg: fmt.Sprintf("the %s interval is not supported by the alpaca provider", in.Interval),
		}
	}

	adjustment := marketdata.Raw
	if in.UseAdjClose {
		adjustment = marketdata.All
	}

	bars, err := c.client.GetBars(in.Symbol, marketdata.GetBarsRequest{
		TimeFrame:  tf,
		Start:      in.EffectiveStart(),
		End:        in.EndDate.AddDate(0, 0, 1),
		Adjustment: adjustment,
		Feed:       "iex",
	})
	if err != nil {
		return nil, &domain.UpstreamDataError{
			Kind: domain.DataUnavailable,
			Msg:  fmt.Sprintf("quote request for %s failed: %v", in.Symbol, err),
		}
	}

	raw := &rawColumns{}
	for _, b := range bars {
		raw.Timestamp = append(raw.Timestamp, b.Timestamp.Unix())
		raw.Open = append(raw.Open, b.Open)
		raw.High = append(raw.High, b.High)
		raw.Low = append(raw.Low, b.Low)
		raw.Close = append(raw.Close, b.Close)
		raw.Volume = append(raw.Volume, float64(b.Volume))
	}

	// The adjustment already happened server-side; flag the request so
	// buildQuote does not look for adjusted columns.
	adjusted := in
	adjusted.UseAdjClose = false
	return buildQuote(adjusted, raw)
}
