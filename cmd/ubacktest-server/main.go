package main

import (
	"context"
	"fmt"
	"log"
	"log/slog"
	"net/http"
	"os"
	"time"

	"ubacktest/internal/config"
	"ubacktest/internal/httpapi"
	"ubacktest/internal/marketdata"
	"ubacktest/internal/pipeline"
	"ubacktest/internal/sandbox"
	"ubacktest/internal/store"
	"ubacktest/internal/util"
)

func main() {
	cfgPath := "config/ubacktest.yaml"
	if p := os.Getenv("UBACKTEST_CONFIG"); p != "" {
		cfgPath = p
	}

	cfg, err := config.Load(cfgPath)
	if err != nil {
		log.Fatalf("failed to load config: %v", err)
	}

	logger := util.NewLogger(cfg.Logging.Level, cfg.Logging.Format)
	util.SetDefault(logger)

	provider, cache, err := buildProvider(cfg)
	if err != nil {
		log.Fatalf("failed to build market data provider: %v", err)
	}
	if cache != nil {
		defer cache.Close()
		go cache.PurgeLoop(context.Background(), time.Hour)
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
	srv := httpapi.NewServer(pipe, logger)

	addr := fmt.Sprintf("%s:%d", cfg.Server.Host, cfg.Server.Port)
	slog.Info("ubacktest-server listening",
		"addr", addr,
		"provider", provider.Name(),
		"sandboxMode", cfg.Sandbox.Mode,
	)
	if err := http.ListenAndServe(addr, srv.Handler()); err != nil {
		log.Fatalf("server error: %v", err)
	}
}

// buildProvider constructs the configured quote provider, wrapped in the
// SQLite cache when a cache path is set. The returned cache is nil when
// caching is disabled.
func buildProvider(cfg *config.Config) (marketdata.Provider, *store.QuoteCache, error) {
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

	if cfg.Storage.CachePath == "" {
		return provider, nil, nil
	}
	cache, err := store.NewQuoteCache(
		cfg.Storage.CachePath,
		time.Duration(cfg.Storage.CacheTTLHours)*time.Hour,
	)
	if err != nil {
		return nil, nil, fmt.Errorf("opening quote cache: %w", err)
	}
	return marketdata.NewCachedProvider(provider, cache), cache, nil
}
