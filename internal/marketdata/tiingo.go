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

const (
	defaultTiingoEODURL      = "https://api.tiingo.com/tiingo/daily"
	defaultTiingoIntradayURL = "https://api.tiingo.com/iex"
)

// TiingoClient fetches bars from the Tiingo REST API: the daily endpoint for
// end-of-day frequencies and the IEX endpoint for intraday ones.
type TiingoClient struct {
	token       string
	eodURL      string
	intradayURL string
	httpClient  *http.Client
	limiter     *util.RateLimiter
}

var _ Provider = (*TiingoClient)(nil)

// NewTiingoClient creates a Tiingo provider. Empty URLs fall back to the
// public endpoints. The limiter is optional; when set it paces outbound
// requests.
func NewTiingoClient(token, eodURL, intradayURL string, limiter *util.RateLimiter) *TiingoClient {
	if eodURL == "" {
		eodURL = defaultTiingoEODURL
	}
	if intradayURL == "" {
		intradayURL = defaultTiingoIntradayURL
	}
	return &TiingoClient{
		token:       token,
		eodURL:      eodURL,
		intradayURL: intradayURL,
		httpClient:  &http.Client{Timeout: 30 * time.Second},
		limiter:     limiter,
	}
}

func (c *TiingoClient) Name() string { return "tiingo" }

// tiingoBar covers both the daily and IEX payload shapes; the adjusted
// columns and split factor are only present on daily responses.
type tiingoBar struct {
	Date        string   `json:"date"`
	Open        *float64 `json:"open"`
	High        *float64 `json:"high"`
	Low         *float64 `json:"low"`
	Close       *float64 `json:"close"`
	Volume      *float64 `json:"volume"`
	AdjOpen     *float64 `json:"adjOpen"`
	AdjHigh     *float64 `json:"adjHigh"`
	AdjLow      *float64 `json:"adjLow"`
	AdjClose    *float64 `json:"adjClose"`
	SplitFactor *float64 `json:"splitFactor"`
}

// Fetch retrieves, validates, and normalizes a Tiingo quote.
func (c *TiingoClient) Fetch(ctx context.Context, in domain.FormInputs) (*Quote, error) {
	if c.limiter != nil {
		if err := c.limiter.Wait(ctx); err != nil {
			return nil, err
		}
	}

	reqURL := c.requestURL(in)
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, reqURL, nil)
	if err != nil {
		return nil, fmt.Errorf("building tiingo request: %w", err)
	}
	req.Header.Set("Content-Type", "application/json")

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

	var bars []tiingoBar
	if err := json.NewDecoder(resp.Body).Decode(&bars); err != nil {
		return nil, &domain.UpstreamDataError{
			Kind: domain.DataUnavailable,
			Msg:  fmt.Sprintf("decoding quote response for %s: %v", in.Symbol, err),
		}
	}

	raw, err := tiingoColumns(in, bars)
	if err != nil {
		return nil, err
	}
	return buildQuote(in, raw)
}

func (c *TiingoClient) requestURL(in domain.FormInputs) string {
	start := in.EffectiveStart().Format("2006-01-02")
	end := in.EndDate.Format("2006-01-02")

	q := url.Values{}
	q.Set("startDate", start)
	q.Set("endDate", end)
	q.Set("resampleFreq", string(in.Interval))
	q.Set("token", c.token)

	base := c.intradayURL
	if in.Interval.IsEOD() {
		base = c.eodURL
	}
	return fmt.Sprintf("%s/%s/prices?%s", base, url.PathEscape(in.Symbol), q.Encode())
}

// tiingoColumns flattens the bar list into column form, dropping bars with
// any missing OHLC value.
func tiingoColumns(in domain.FormInputs, bars []tiingoBar) (*rawColumns, error) {
	eod := in.Interval.IsEOD()
	raw := &rawColumns{}
	for _, b := range bars {
		if b.Open == nil || b.High == nil || b.Low == nil || b.Close == nil {
			continue
		}
		ts, err := parseTiingoDate(b.Date)
		if err != nil {
			return nil, &domain.UpstreamDataError{
				Kind: domain.DataShapeMismatch,
				Msg:  fmt.Sprintf("unparseable bar date %q for %s", b.Date, in.Symbol),
			}
		}
		raw.Timestamp = append(raw.Timestamp, ts)
		raw.Open = append(raw.Open, *b.Open)
		raw.High = append(raw.High, *b.High)
		raw.Low = append(raw.Low, *b.Low)
		raw.Close = append(raw.Close, *b.Close)
		if b.Volume != nil {
			raw.Volume = append(raw.Volume, *b.Volume)
		} else {
			raw.Volume = append(raw.Volume, 0)
		}

		if eod && b.AdjClose != nil {
			raw.AdjClose = append(raw.AdjClose, *b.AdjClose)
			raw.AdjOpen = append(raw.AdjOpen, deref(b.AdjOpen, *b.Open))
			raw.AdjHigh = append(raw.AdjHigh, deref(b.AdjHigh, *b.High))
			raw.AdjLow = append(raw.AdjLow, deref(b.AdjLow, *b.Low))
			raw.SplitFactor = append(raw.SplitFactor, deref(b.SplitFactor, 1))
		}
	}
	return raw, nil
}

func deref(p *float64, fallback float64) float64 {
	if p != nil {
		return *p
	}
	return fallback
}

func parseTiingoDate(s string) (int64, error) {
	for _, layout := range []string{time.RFC3339, "2006-01-02T15:04:05.000Z", "2006-01-02"} {
		if t, err := time.Parse(layout, s); err == nil {
			return t.Unix(), nil
		}
	}
	return 0, fmt.Errorf("unrecognised date format %q", s)
}
