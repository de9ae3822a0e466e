package config

import (
	"os"

	"gopkg.in/yaml.v3"
)

// ---------------------------------------------------------------------------
// Configuration structs
// ---------------------------------------------------------------------------

// Config is the top-level configuration for the ubacktest service.
type Config struct {
	Server     Server     `yaml:"server"`
	Logging    Logging    `yaml:"logging"`
	MarketData MarketData `yaml:"market_data"`
	Alpaca     Alpaca     `yaml:"alpaca"`
	Sandbox    Sandbox    `yaml:"sandbox"`
	Pipeline   Pipeline   `yaml:"pipeline"`
	Storage    Storage    `yaml:"storage"`
}

// Server holds network listener configuration.
type Server struct {
	Host string `yaml:"host"`
	Port int    `yaml:"port"`
}

// Logging configures the application logger.
type Logging struct {
	Level  string `yaml:"level"`
	Format string `yaml:"format"`
}

// MarketData selects and parameterizes the quote provider.
type MarketData struct {
	// Provider is "tiingo", "yahoo", or "alpaca".
	Provider          string `yaml:"provider"`
	YahooBaseURL      string `yaml:"yahoo_base_url"`
	TiingoToken       string `yaml:"tiingo_token"`
	TiingoEODURL      string `yaml:"tiingo_eod_url"`
	TiingoIntradayURL string `yaml:"tiingo_intraday_url"`
	BenchmarkSymbol   string `yaml:"benchmark_symbol"`
	RateLimitPerMin   int    `yaml:"rate_limit_per_min"`
}

// Alpaca holds credentials and endpoints for the Alpaca market data API.
type Alpaca struct {
	APIKey    string `yaml:"api_key"`
	APISecret string `yaml:"api_secret"`
	DataURL   string `yaml:"data_url"`
}

// Sandbox configures the remote code execution engine.
type Sandbox struct {
	BaseURL string `yaml:"base_url"`
	APIKey  string `yaml:"api_key"`
	// Mode is "sync" (single blocking submission) or "async" (submit then
	// poll by token).
	Mode              string `yaml:"mode"`
	PollMaxAttempts   int    `yaml:"poll_max_attempts"`
	PollBaseDelayMS   int    `yaml:"poll_base_delay_ms"`
	DefaultTimeoutSec int    `yaml:"default_timeout_sec"`
	MaxTimeoutSec     int    `yaml:"max_timeout_sec"`
}

// Pipeline controls run admission.
type Pipeline struct {
	GateReleaseDelaySec int `yaml:"gate_release_delay_sec"`
}

// Storage holds paths for the bar cache and result exports.
type Storage struct {
	CachePath     string `yaml:"cache_path"`
	CacheTTLHours int    `yaml:"cache_ttl_hours"`
	DataDir       string `yaml:"data_dir"`
}

// ---------------------------------------------------------------------------
// Loading
// ---------------------------------------------------------------------------

// Load reads the YAML configuration file at the given path, parses it into a
// Config struct, applies environment variable overrides, and fills defaults.
func Load(path string) (*Config, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, err
	}

	cfg := &Config{}
	if err := yaml.Unmarshal(data, cfg); err != nil {
		return nil, err
	}

	applyEnvOverrides(cfg)
	applyDefaults(cfg)

	return cfg, nil
}

// applyEnvOverrides checks well-known environment variables and overrides the
// corresponding configuration fields when they are set.
func applyEnvOverrides(cfg *Config) {
	if v := os.Getenv("TIINGO_API_KEY"); v != "" {
		cfg.MarketData.TiingoToken = v
	}
	if v := os.Getenv("JUDGE_API_KEY"); v != "" {
		cfg.Sandbox.APIKey = v
	}
	if v := os.Getenv("LOG_LEVEL"); v != "" {
		cfg.Logging.Level = v
	}
	if v := os.Getenv("CACHE_PATH"); v != "" {
		cfg.Storage.CachePath = v
	}
	if v := os.Getenv("DATA_DIR"); v != "" {
		cfg.Storage.DataDir = v
	}

	// Canonical Alpaca env vars used by the SDK.
	if v := os.Getenv("APCA_API_KEY_ID"); v != "" {
		cfg.Alpaca.APIKey = v
	}
	if v := os.Getenv("APCA_API_SECRET_KEY"); v != "" {
		cfg.Alpaca.APISecret = v
	}
}

// applyDefaults fills fields that must never be zero.
func applyDefaults(cfg *Config) {
	if cfg.Server.Port == 0 {
		cfg.Server.Port = 8080
	}
	if cfg.Logging.Level == "" {
		cfg.Logging.Level = "info"
	}
	if cfg.MarketData.Provider == "" {
		cfg.MarketData.Provider = "tiingo"
	}
	if cfg.MarketData.BenchmarkSymbol == "" {
		cfg.MarketData.BenchmarkSymbol = "SPY"
	}
	if cfg.MarketData.RateLimitPerMin == 0 {
		cfg.MarketData.RateLimitPerMin = 60
	}
	if cfg.Sandbox.Mode == "" {
		cfg.Sandbox.Mode = "sync"
	}
	if cfg.Sandbox.PollMaxAttempts == 0 {
		cfg.Sandbox.PollMaxAttempts = 20
	}
	if cfg.Sandbox.PollBaseDelayMS == 0 {
		cfg.Sandbox.PollBaseDelayMS = 500
	}
	if cfg.Sandbox.DefaultTimeoutSec == 0 {
		cfg.Sandbox.DefaultTimeoutSec = 10
	}
	if cfg.Sandbox.MaxTimeoutSec == 0 {
		cfg.Sandbox.MaxTimeoutSec = 60
	}
	if cfg.Pipeline.GateReleaseDelaySec == 0 {
		cfg.Pipeline.GateReleaseDelaySec = 3
	}
	if cfg.Storage.CacheTTLHours == 0 {
		cfg.Storage.CacheTTLHours = 24
	}
}
