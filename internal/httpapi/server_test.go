package httpapi

import (
	"context"
	"encoding/json"
	"log/slog"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"

	"ubacktest/internal/domain"
	"ubacktest/internal/pipeline"
)

type fakeRunner struct {
	result *domain.BacktestResult
	err    error
	got    pipeline.Request
}

func (f *fakeRunner) Run(_ context.Context, req pipeline.Request) (*domain.BacktestResult, error) {
	f.got = req
	return f.result, f.err
}

func newTestServer(r Runner) *httptest.Server {
	s := NewServer(r, slog.Default())
	return httptest.NewServer(s.Handler())
}

func postBacktest(t *testing.T, url, body string) *http.Response {
	t.Helper()
	resp, err := http.Post(url+"/api/backtest", "application/json", strings.NewReader(body))
	if err != nil {
		t.Fatalf("POST /api/backtest: %v", err)
	}
	return resp
}

const validBody = `{
	"code": "def strategy(df):\n    df['signal'] = 1\n    return df",
	"symbol": "AAPL",
	"startDate": "2022-01-03",
	"endDate": "2022-06-30",
	"intval": "daily",
	"timeOfDay": "close",
	"costPerTrade": 0.1
}`

func TestBacktestSuccess(t *testing.T) {
	runner := &fakeRunner{result: &domain.BacktestResult{
		Statistics:  &domain.Stats{Length: 5, PL: 12.5},
		DebugOutput: "hello",
	}}
	srv := newTestServer(runner)
	defer srv.Close()

	resp := postBacktest(t, srv.URL, validBody)
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		t.Fatalf("status = %d, want 200", resp.StatusCode)
	}
	var body domain.BacktestResult
	if err := json.NewDecoder(resp.Body).Decode(&body); err != nil {
		t.Fatalf("decoding response: %v", err)
	}
	if body.Statistics == nil || body.Statistics.PL != 12.5 {
		t.Errorf("response statistics = %+v, want PL 12.5", body.Statistics)
	}

	if runner.got.Inputs.Symbol != "AAPL" {
		t.Errorf("runner saw symbol %q, want AAPL", runner.got.Inputs.Symbol)
	}
	if runner.got.Inputs.StartDate.Format("2006-01-02") != "2022-01-03" {
		t.Errorf("runner saw start date %v, want 2022-01-03", runner.got.Inputs.StartDate)
	}
	if runner.got.Inputs.Interval != domain.IntervalDaily {
		t.Errorf("runner saw interval %q, want daily", runner.got.Inputs.Interval)
	}
	if !strings.Contains(runner.got.Code, "def strategy") {
		t.Errorf("runner saw code %q, want the strategy source", runner.got.Code)
	}
}

func TestBacktestStatusMapping(t *testing.T) {
	cases := []struct {
		name string
		err  error
		want int
	}{
		{"user input", &domain.UserInputError{Msg: "bad symbol"}, http.StatusBadRequest},
		{"upstream data", &domain.UpstreamDataError{Kind: domain.RangeTooLarge, Msg: "too big"}, http.StatusBadRequest},
		{"rate limited", &domain.RateLimitedError{}, http.StatusTooManyRequests},
		{"sandbox", &domain.SandboxError{Kind: domain.PollExhausted, Msg: "timeout"}, http.StatusServiceUnavailable},
		{"integrity", &domain.ResultIntegrityError{Msg: "NaN"}, http.StatusInternalServerError},
	}

	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			srv := newTestServer(&fakeRunner{err: tc.err})
			defer srv.Close()

			resp := postBacktest(t, srv.URL, validBody)
			defer resp.Body.Close()
			if resp.StatusCode != tc.want {
				t.Errorf("status = %d, want %d", resp.StatusCode, tc.want)
			}

			var body map[string]string
			if err := json.NewDecoder(resp.Body).Decode(&body); err != nil {
				t.Fatalf("decoding error body: %v", err)
			}
			if body["error"] == "" {
				t.Error("error body is missing the message")
			}
		})
	}
}

func TestBacktestMalformedBody(t *testing.T) {
	srv := newTestServer(&fakeRunner{})
	defer srv.Close()

	resp := postBacktest(t, srv.URL, "{not json")
	defer resp.Body.Close()
	if resp.StatusCode != http.StatusBadRequest {
		t.Errorf("status = %d, want 400", resp.StatusCode)
	}
}

func TestHealth(t *testing.T) {
	srv := newTestServer(&fakeRunner{})
	defer srv.Close()

	resp, err := http.Get(srv.URL + "/api/health")
	if err != nil {
		t.Fatalf("GET /api/health: %v", err)
	}
	defer resp.Body.Close()
	if resp.StatusCode != http.StatusOK {
		t.Errorf("status = %d, want 200", resp.StatusCode)
	}
}

func TestCORSPreflight(t *testing.T) {
	srv := newTestServer(&fakeRunner{})
	defer srv.Close()

	req, _ := http.NewRequest(http.MethodOptions, srv.URL+"/api/backtest", nil)
	resp, err := http.DefaultClient.Do(req)
	if err != nil {
		t.Fatalf("OPTIONS: %v", err)
	}
	defer resp.Body.Close()
	if resp.StatusCode != http.StatusNoContent {
		t.Errorf("status = %d, want 204", resp.StatusCode)
	}
	if resp.Header.Get("Access-Control-Allow-Origin") != "*" {
		t.Error("missing CORS header")
	}
}
