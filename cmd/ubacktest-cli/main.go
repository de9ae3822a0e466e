// One-shot tool: run a single backtest from the command line without the
// HTTP server and print the result envelope as JSON.
//
// Usage:
//
//	go run cmd/ubacktest-cli/main.go -symbol AAPL -start 2022-01-03 -end 2022-06-30 -code strategy.py
package main

import (
	"context"
	"encoding/json"
	"flag"
	"fmt"
	"log"
	"os"
	"time"

	"ubacktest/internal/config"
	"ubacktest/internal/domain"
	"ubacktest/internal/marketdata"
	"ubacktest/internal/pipeline"
	"ubacktest/internal/sandbox"
	"ubacktest/internal/store"
	"ubacktest/internal/util"
)

func main() {
	var (
		symbol   = flag.String("symbol", "", "ticker symbol, e.g. AAPL or ^GSPC")
		start    = flag.String("start", "", "scored start date, YYYY-MM-DD")
		end      = flag.String("end", "", "end date, YYYY-MM-DD")
		interval = flag.String("interval", "daily", "bar interval: 1min, 5min, 15min, 30min, 1hour, 90min, 3hour, daily, weekly, monthly")
		field    = flag.String("field", "close", "price field: open, close, high, low")
		codePath = flag.String("code", "", "path to the strategy source file")
		cost     = flag.Float64("cost", 0, "cost per trade, percent of position change")
		timeout  = flag.Int("timeout", 0, "sandbox execution timeout, seconds")
		warmup   = flag.String("warmup", "", "warm-up start date, YYYY-MM-DD (optional)")
		adjClose = flag.Bool("adjclose", false, "use split/dividend adjusted prices")
		export   = flag.Bool("export", false, "export the result to parquet under the configured data dir")
	)
	flag.Parse()

	if *symbol == "" || *start == "" || *end == "" || *codePath == "" {
		fmt.Fprintln(os.Stderr, "usage: ubacktest-cli -symbol SYM -start DATE -end DATE -code FILE [flags]")
		flag.PrintDefaults()
		os.Exit(1)
	}

	cfgPath := "config/ubacktest.yaml"
	if p := os.Getenv("UBACKTEST_CONFIG"); p != "" {
		cfgPath = p
	}
	cfg, err := config.Load(cfgPath)
	if err != nil {
		log.Fatalf("failed to load config: %v", err)
	}
	util.SetDefault(util.NewLogger(cfg.Logging.Level, cfg.Logging.Format))

	code, err := os.ReadFile(*codePath)
	if err != nil {
		log.Fatalf("failed to read strategy source: %v", err)
	}

	inputs := domain.FormInputs{
		Symbol:       *symbol,
		Interval:     domain.Interval(*interval),
		TimeOfDay:    domain.PriceField(*field),
		CostPerTrade: *cost,
		UseAdjClose:  *adjClose,
		Timeout:      *timeout,
	}
	inputs.StartDate = parseDate(*start)
	inputs.EndDate = parseDate(*end)
	if *warmup != "" {
		inputs.UseWarmup = true
		inputs.WarmupDate = parseDate(*warmup)
	}

	pipe, cleanup, err := buildPipeline(cfg)
	if err != nil {
		log.Fatalf("failed to build pipeline: %v", err)
	}
	defer cleanup()

	result, err := pipe.Run(context.Background(), pipeline.Request{
		Inputs: inputs,
		Code:   string(code),
	})
	if err != nil {
		log.Fatalf("backtest failed: %v", err)
	}

	enc := json.NewEncoder(os.Stdout)
	enc.SetIndent("", "  ")
	if err := enc.Encode(result); err != nil {
		log.Fatalf("failed to encode result: %v", err)
	}

	if *export && result.StrategyResult != nil {
		exporter := store.NewResultExporter(cfg.Storage.DataDir)
		path, err := exporter.Export(*symbol, result.StrategyResult)
		if err != nil {
			log.Fatalf("failed to export result: %v", err)
		}
		fmt.Fprintf(os.Stderr, "exported to %s\n", path)
	}
}

func parseDate(s string) time.Time {
	t, err := time.Parse("2006-01-02", s)
	if err != nil {
		log.Fatalf("invalid date %q: %v", s, err)
	}
	return t
}

func buildPipeline(cfg *config.Config) (*pipeline.Pipeline, func(), error) {
	limiter := util.NewRateLimiter(cfg.MarketData.RateLimitPerMin)

	var provider marketdata.Provider
	switch cfg.MarketData.Provider {
	case "tiingo":
		provider = marketdata.NewTiingoClient(
			cfg.MarketData.TiingoToken,
			cfg.MarketData.TiingoEODURL,
			cfg.MarketData.TiingoIntradayURL,
			limiter,
		)
	case "yahoo":
		provider = marketdata.NewYahooClient(cfg.MarketData.YahooBaseURL, limiter)
	case "alpaca":
		provider = marketdata.NewAlpacaClient(cfg.Alpaca.APIKey, cfg.Alpaca.APISecret, cfg.Alpaca.DataURL)
	default:
		return nil, nil, fmt.Errorf("unknown market data provider %q", cfg.MarketData.Provider)
	}

	cleanup := func() {}
	if cfg.Storage.CachePath != "" {
		cache, err := store.NewQuoteCache(
			cfg.Storage.CachePath,
			time.Duration(cfg.Storage.CacheTTLHours)*time.Hour,
		)
		if err != nil {
			return nil, nil, fmt.Errorf("opening quote cache: %w", err)
		}
		provider = marketdata.NewCachedProvider(provider, cache)
		cleanup = func() { cache.Close() }
	}

	executor := sandbox.NewClient(
		cfg.Sandbox.BaseURL,
		cfg.Sandbox.APIKey,
		sandbox.Mode(cfg.Sandbox.Mode),
		cfg.Sandbox.PollMaxAttempts,
		time.Duration(cfg.Sandbox.PollBaseDelayMS)*time.Millisecond,
	)
	gate := pipeline.NewGate(time.Duration(cfg.Pipeline.GateReleaseDelaySec) * time.Second)
	pipe := pipeline.New(provider, executor, gate, cfg.MarketData.BenchmarkSymbol,
		cfg.Sandbox.DefaultTimeoutSec, cfg.Sandbox.MaxTimeoutSec)
	return pipe, cleanup, nil
}
