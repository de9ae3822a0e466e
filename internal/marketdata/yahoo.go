package marketdata

import (
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"time"

	"ubacktest/internal/domain"
	"ubacktest/internal/util"
)

const defaultYahooBaseURL = "https://query1.finance.yahoo.com/v8/finance/chart"

// yahooIntervals maps supported frequencies onto the chart API's interval
// codes. Three-hour bars have no Yahoo equivalent.
var yahooIntervals = map[domain.Interval]string{
	domain.Interval1Min:   "1m",
	domain.Interval5Min:   "5m",
	domain.Interval15Min:  "15m",
	domain.Interval30Min:  "30m",
	domain.Interval1Hour:  "60m",
	domain.Interval90Min:  "90m",
	domain.IntervalDaily:  "1d",
	domain.IntervalWeekly: "1wk",
	domain.IntervalMonth:  "1mo",
}

// YahooClient fetches bars from the Yahoo Finance chart API. It needs no
// credentials, which makes it the default for local development.
type YahooClient struct {
	baseURL    string
	httpClient *http.Client
	limiter    *util.RateLimiter
}

var _ Provider = (*YahooClient)(nil)

// NewYahooClient creates a Yahoo provider. An empty baseURL falls back to
// the public chart endpoint.
func NewYahooClient(baseURL string, limiter *util.RateLimiter) *YahooClient {
	if baseURL == "" {
		baseURL = defaultYahooBaseURL
	}
	return &YahooClient{
		baseURL:    baseURL,
		httpClient: &http.Client{Timeout: 30 * time.Second},
		limiter:    limiter,
	}
}

func (c *YahooClient) Name() string { return "yahoo" }

// yahooChart mirrors the chart API envelope, keeping only the fields the
// pipeline consumes. Individual bar values may be null.
type yahooChart struct {
	Chart struct {
		Result []struct {
			Timestamp  []int64 `json:"timestamp"`
			Indicators struct {
				Quote []struct {
					Open   []*float64 `json:"open"`
					High   []*float64 `json:"high"`
					Low    []*float64 `json:"low"`
					Close  []*float64 `json:"close"`
					Volume []*float64 `json:"volume"`
				} `json:"quote"`
				AdjClose []struct {
					AdjClose []*float64 `json:"adjclose"`
				} `json:"adjclose"`
			} `json:"indicators"`
		} `json:"result"`
		Error *struct {
			Code        string `json:"code"`
			Description string `json:"description"`
		} `json:"error"`
	} `json:"chart"`
}

// Fetch retrieves, validates, and normalizes a Yahoo quote.
func (c *YahooClient) Fetch(ctx context.Context, in domain.FormInputs) (*Quote, error) {
	code, ok := yahooIntervals[in.Interval]
	if !ok {
		return nil, &domain.UserInputError{
			Msg: fmt.Sprintf("the %s interval is not supported by the yahoo provider", in.Interval),
		}
	}

	if c.limiter != nil {
		if err := c.limiter.Wait(ctx); err != nil {
			return nil, err
		}
	}

	q := url.Values{}
	q.Set("period1", fmt.Sprintf("%d", in.EffectiveStart().Unix()))
	q.Set("period2", fmt.Sprintf("%d", in.EndDate.AddDate(0, 0, 1).Unix()))
	q.Set("interval", code)
	q.Set("events", "history")
	reqURL := fmt.Sprintf("%s/%s?%s", c.baseURL, url.PathEscape(in.Symbol), q.Encode())

	req, err := http.NewRequestWithContext(ctx, http.MethodGet, reqURL, nil)
	if err != nil {
		return nil, fmt.Errorf("building yahoo request: %w", err)
	}
	req.Header.Set("User-Agent", "Mozilla/5.0")

	resp, err := c.httpClient.Do(req)
	if err != nil {
		return nil, &domain.UpstreamDataError{
			Kind: domain.DataUnavailable,
			Msg:  fmt.Sprintf("quote request for %s failed: %v", in.Symbol, err),
		}
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		body, _ := io.ReadAll(io.LimitReader(resp.Body, 512))
		return nil, &domain.UpstreamDataError{
			Kind: domain.DataUnavailable,
			Msg:  fmt.Sprintf("quote API returned status %d for %s: %s", resp.StatusCode, in.Symbol, body),
		}
	}

	var chart yahooChart
	if err := json.NewDecoder(resp.Body).Decode(&chart); err != nil {
		return nil, &domain.UpstreamDataError{
			Kind: domain.DataUnavailable,
			Msg:  fmt.Sprintf("decoding quote response for %s: %v", in.Symbol, err),
		}
	}
	if chart.Chart.Error != nil {
		return nil, &domain.UpstreamDataError{
			Kind: domain.DataUnavailable,
			Msg:  fmt.Sprintf("quote API error for %s: %s", in.Symbol, chart.Chart.Error.Description),
		}
	}
	if len(chart.Chart.Result) == 0 || len(chart.Chart.Result[0].Indicators.Quote) == 0 {
		return nil, &domain.UpstreamDataError{
			Kind: domain.DataUnavailable,
			Msg:  fmt.Sprintf("no data returned for %s over the requested range", in.Symbol),
		}
	}

	result := chart.Chart.Result[0]
	qd := result.Indicators.Quote[0]

	var adj []*float64
	if len(result.Indicators.AdjClose) > 0 {
		adj = result.Indicators.AdjClose[0].AdjClose
	}

	raw := &rawColumns{}
	for i, ts := range result.Timestamp {
		if i >= len(qd.Open) || i >= len(qd.High) || i >= len(qd.Low) ||
			i >= len(qd.Close) || i >= len(qd.Volume) {
			break
		}
		// The chart API pads holidays and halts with nulls; skip them.
		if qd.Open[i] == nil || qd.High[i] == nil || qd.Low[i] == nil || qd.Close[i] == nil {
			continue
		}
		raw.Timestamp = append(raw.Timestamp, ts)
		raw.Open = append(raw.Open, *qd.Open[i])
		raw.High = append(raw.High, *qd.High[i])
		raw.Low = append(raw.Low, *qd.Low[i])
		raw.Close = append(raw.Close, *qd.Close[i])
		if qd.Volume[i] != nil {
			raw.Volume = append(raw.Volume, *qd.Volume[i])
		} else {
			raw.Volume = append(raw.Volume, 0)
		}
		if adj != nil && i < len(adj) && adj[i] != nil {
			raw.AdjClose = append(raw.AdjClose, *adj[i])
		}
	}

	return buildQuote(in, raw)
}
