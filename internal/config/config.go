// Package config defines the top-level configuration for the hedge engine
// and provides validation helpers.
package config

import (
	"fmt"
	"strings"
	"time"
)

// Config is the root configuration structure. Fields are populated from a TOML
// file and then optionally overridden by HEDGE_* environment variables.
type Config struct {
	Binance  BinanceConfig  `toml:"binance"`
	Bybit    BybitConfig    `toml:"bybit"`
	Hedge    HedgeConfig    `toml:"hedge"`
	Postgres PostgresConfig `toml:"postgres"`
	Redis    RedisConfig    `toml:"redis"`
	S3       S3Config       `toml:"s3"`
	Notify   NotifyConfig   `toml:"notify"`
	Metrics  MetricsConfig  `toml:"metrics"`
	LogLevel string         `toml:"log_level"`
}

// BinanceConfig holds Binance API credentials and endpoints. Binance serves
// the spot leg and the earn reservoir.
type BinanceConfig struct {
	ApiKey    string `toml:"api_key"`
	ApiSecret string `toml:"api_secret"`
	BaseURL   string `toml:"base_url"`
	WsURL     string `toml:"ws_url"`
	Testnet   bool   `toml:"testnet"`
}

// BybitConfig holds Bybit API credentials and endpoints. Bybit serves the
// USDT perpetual leg.
type BybitConfig struct {
	ApiKey    string `toml:"api_key"`
	ApiSecret string `toml:"api_secret"`
	BaseURL   string `toml:"base_url"`
	WsURL     string `toml:"ws_url"`
}

// HedgeConfig holds the paired-trade strategy parameters.
type HedgeConfig struct {
	// Instrument is the shared symbol, e.g. "SOLUSDT".
	Instrument string `toml:"instrument"`
	// BaseAsset and QuoteAsset split the instrument for balance checks.
	BaseAsset  string `toml:"base_asset"`
	QuoteAsset string `toml:"quote_asset"`
	// Direction is "open" (buy spot, sell perp) or "close" (the reverse).
	Direction string `toml:"direction"`
	// TradeSize is the base-asset quantity per paired trade.
	TradeSize float64 `toml:"trade_size"`
	// TradeCount is how many paired trades the session executes.
	TradeCount int `toml:"trade_count"`
	// MinSpread is the minimum favorable relative spread, e.g. 0.001.
	MinSpread float64 `toml:"min_spread"`
	// MaxSpread rejects anomalous readings that usually mean a bad feed.
	MaxSpread float64 `toml:"max_spread"`
	// DepthMultiplier requires top-of-book size >= multiplier * trade_size
	// on both legs before a trade fires.
	DepthMultiplier float64 `toml:"depth_multiplier"`
	// MaxQuoteAge is how old a book snapshot may be and still gate a trade.
	MaxQuoteAge duration `toml:"max_quote_age"`
	// FillGapTolerance is the relative leg-fill divergence accepted per trade.
	FillGapTolerance float64 `toml:"fill_gap_tolerance"`
	// RebalanceThreshold is the quote-value of accumulated imbalance that
	// triggers a corrective order.
	RebalanceThreshold float64 `toml:"rebalance_threshold"`
	// Leverage applied to the contract leg before trading starts.
	Leverage int `toml:"leverage"`
	// FeeCompensation pads spot buy quantity to offset base-asset fees.
	FeeCompensation float64 `toml:"fee_compensation"`
	// PollInterval and MaxFillWait bound the order verification loop.
	PollInterval duration `toml:"poll_interval"`
	MaxFillWait  duration `toml:"max_fill_wait"`
	// TradePause is the idle time between consecutive paired trades.
	TradePause duration `toml:"trade_pause"`
	// MaxConsecutiveFailures aborts the session when reached.
	MaxConsecutiveFailures int `toml:"max_consecutive_failures"`
	// UseEarnReservoir enables redeeming flexible earn balances when the
	// spot wallet cannot cover a pre-trade requirement.
	UseEarnReservoir bool `toml:"use_earn_reservoir"`
}

// PostgresConfig holds PostgreSQL connection parameters for trade history.
type PostgresConfig struct {
	DSN           string `toml:"dsn"`
	Host          string `toml:"host"`
	Port          int    `toml:"port"`
	Database      string `toml:"database"`
	User          string `toml:"user"`
	Password      string `toml:"password"`
	SSLMode       string `toml:"ssl_mode"`
	PoolMaxConns  int    `toml:"pool_max_conns"`
	PoolMinConns  int    `toml:"pool_min_conns"`
	RunMigrations bool   `toml:"run_migrations"`
	Enabled       bool   `toml:"enabled"`
}

// RedisConfig holds Redis connection parameters for the session lock and
// event bus.
type RedisConfig struct {
	Enabled    bool   `toml:"enabled"`
	Addr       string `toml:"addr"`
	Password   string `toml:"password"`
	DB         int    `toml:"db"`
	PoolSize   int    `toml:"pool_size"`
	MaxRetries int    `toml:"max_retries"`
	TLSEnabled bool   `toml:"tls_enabled"`
}

// S3Config holds S3-compatible object storage parameters for run reports.
type S3Config struct {
	Enabled        bool   `toml:"enabled"`
	Endpoint       string `toml:"endpoint"`
	Region         string `toml:"region"`
	Bucket         string `toml:"bucket"`
	AccessKey      string `toml:"access_key"`
	SecretKey      string `toml:"secret_key"`
	UseSSL         bool   `toml:"use_ssl"`
	ForcePathStyle bool   `toml:"force_path_style"`
}

// NotifyConfig holds notification channel credentials.
type NotifyConfig struct {
	TelegramToken     string   `toml:"telegram_token"`
	TelegramChatID    string   `toml:"telegram_chat_id"`
	DiscordWebhookURL string   `toml:"discord_webhook_url"`
	Events            []string `toml:"events"`
}

// MetricsConfig holds the Prometheus exposition endpoint parameters.
type MetricsConfig struct {
	Enabled bool   `toml:"enabled"`
	Addr    string `toml:"addr"`
}

// duration is a wrapper around time.Duration that supports TOML string
// decoding (e.g. "5m", "30s").
type duration struct {
	time.Duration
}

// UnmarshalText implements encoding.TextUnmarshaler so the TOML decoder can
// parse duration strings like "500ms" or "30s".
func (d *duration) UnmarshalText(text []byte) error {
	var err error
	d.Duration, err = time.ParseDuration(string(text))
	return err
}

// MarshalText implements encoding.TextMarshaler for round-trip encoding.
func (d duration) MarshalText() ([]byte, error) {
	return []byte(d.Duration.String()), nil
}

// Defaults returns a Config populated with reasonable default values.
// These match the values in config.example.toml.
func Defaults() Config {
	return Config{
		Binance: BinanceConfig{
			BaseURL: "https://api.binance.com",
			WsURL:   "wss://stream.binance.com:9443/ws",
		},
		Bybit: BybitConfig{
			BaseURL: "https://api.bybit.com",
			WsURL:   "wss://stream.bybit.com/v5/public/linear",
		},
		Hedge: HedgeConfig{
			Instrument:             "SOLUSDT",
			BaseAsset:              "SOL",
			QuoteAsset:             "USDT",
			Direction:              "open",
			TradeSize:              1.0,
			TradeCount:             1,
			MinSpread:              0.001,
			MaxSpread:              0.10,
			DepthMultiplier:        2.0,
			MaxQuoteAge:            duration{3 * time.Second},
			FillGapTolerance:       0.01,
			RebalanceThreshold:     6.0,
			Leverage:               10,
			FeeCompensation:        0.001,
			PollInterval:           duration{500 * time.Millisecond},
			MaxFillWait:            duration{30 * time.Second},
			TradePause:             duration{3 * time.Second},
			MaxConsecutiveFailures: 3,
			UseEarnReservoir:       true,
		},
		Postgres: PostgresConfig{
			Enabled:       false,
			Host:          "localhost",
			Port:          5432,
			Database:      "hedge",
			User:          "postgres",
			SSLMode:       "disable",
			PoolMaxConns:  10,
			PoolMinConns:  2,
			RunMigrations: true,
		},
		Redis: RedisConfig{
			Enabled:    false,
			Addr:       "localhost:6379",
			DB:         0,
			PoolSize:   20,
			MaxRetries: 3,
			TLSEnabled: false,
		},
		S3: S3Config{
			Enabled:        false,
			Endpoint:       "http://localhost:9000",
			Region:         "us-east-1",
			Bucket:         "hedge-reports",
			UseSSL:         false,
			ForcePathStyle: true,
		},
		Notify: NotifyConfig{
			Events: []string{"trade_completed", "rebalance", "session_done", "error"},
		},
		Metrics: MetricsConfig{
			Enabled: true,
			Addr:    ":9120",
		},
		LogLevel: "info",
	}
}

// validLogLevels enumerates the accepted values for Config.LogLevel.
var validLogLevels = map[string]bool{
	"debug": true,
	"info":  true,
	"warn":  true,
	"error": true,
}

// validDirections enumerates the accepted values for HedgeConfig.Direction.
var validDirections = map[string]bool{
	"open":  true,
	"close": true,
}

// Validate checks Config for obviously invalid or missing values and returns
// a combined error describing every problem found.
func (c *Config) Validate() error {
	var errs []string

	if !validLogLevels[strings.ToLower(c.LogLevel)] {
		errs = append(errs, fmt.Sprintf("unknown log_level %q (valid: debug, info, warn, error)", c.LogLevel))
	}

	// Venue credentials
	if c.Binance.ApiKey == "" || c.Binance.ApiSecret == "" {
		errs = append(errs, "binance: api_key and api_secret must be set")
	}
	if c.Bybit.ApiKey == "" || c.Bybit.ApiSecret == "" {
		errs = append(errs, "bybit: api_key and api_secret must be set")
	}

	// Hedge parameters
	h := &c.Hedge
	if h.Instrument == "" {
		errs = append(errs, "hedge: instrument must not be empty")
	}
	if h.BaseAsset == "" || h.QuoteAsset == "" {
		errs = append(errs, "hedge: base_asset and quote_asset must not be empty")
	}
	if !validDirections[strings.ToLower(h.Direction)] {
		errs = append(errs, fmt.Sprintf("hedge: unknown direction %q (valid: open, close)", h.Direction))
	}
	if h.TradeSize <= 0 {
		errs = append(errs, "hedge: trade_size must be > 0")
	}
	if h.TradeCount < 1 {
		errs = append(errs, "hedge: trade_count must be >= 1")
	}
	if h.MinSpread < 0 {
		errs = append(errs, "hedge: min_spread must be >= 0")
	}
	if h.MaxSpread <= h.MinSpread {
		errs = append(errs, "hedge: max_spread must exceed min_spread")
	}
	if h.DepthMultiplier < 1 {
		errs = append(errs, "hedge: depth_multiplier must be >= 1")
	}
	if h.MaxQuoteAge.Duration <= 0 {
		errs = append(errs, "hedge: max_quote_age must be positive")
	}
	if h.FillGapTolerance < 0 || h.FillGapTolerance > 1 {
		errs = append(errs, "hedge: fill_gap_tolerance must be in [0, 1]")
	}
	if h.RebalanceThreshold <= 0 {
		errs = append(errs, "hedge: rebalance_threshold must be > 0")
	}
	if h.Leverage < 1 || h.Leverage > 100 {
		errs = append(errs, fmt.Sprintf("hedge: leverage must be 1-100, got %d", h.Leverage))
	}
	if h.FeeCompensation < 0 || h.FeeCompensation > 0.01 {
		errs = append(errs, "hedge: fee_compensation must be in [0, 0.01]")
	}
	if h.PollInterval.Duration <= 0 {
		errs = append(errs, "hedge: poll_interval must be positive")
	}
	if h.MaxFillWait.Duration < h.PollInterval.Duration {
		errs = append(errs, "hedge: max_fill_wait must be >= poll_interval")
	}
	if h.MaxConsecutiveFailures < 1 {
		errs = append(errs, "hedge: max_consecutive_failures must be >= 1")
	}

	// Postgres
	if c.Postgres.Enabled {
		if strings.TrimSpace(c.Postgres.DSN) == "" {
			if c.Postgres.Host == "" {
				errs = append(errs, "postgres: host must not be empty (or set postgres.dsn)")
			}
			if c.Postgres.Port <= 0 || c.Postgres.Port > 65535 {
				errs = append(errs, fmt.Sprintf("postgres: port must be 1-65535, got %d", c.Postgres.Port))
			}
			if c.Postgres.Database == "" {
				errs = append(errs, "postgres: database must not be empty")
			}
		}
		if c.Postgres.PoolMaxConns < 1 {
			errs = append(errs, "postgres: pool_max_conns must be >= 1")
		}
		if c.Postgres.PoolMinConns < 0 {
			errs = append(errs, "postgres: pool_min_conns must be >= 0")
		}
		if c.Postgres.PoolMinConns > c.Postgres.PoolMaxConns {
			errs = append(errs, "postgres: pool_min_conns must not exceed pool_max_conns")
		}
	}

	// Redis
	if c.Redis.Enabled {
		if c.Redis.Addr == "" {
			errs = append(errs, "redis: addr must not be empty")
		}
		if c.Redis.PoolSize < 1 {
			errs = append(errs, "redis: pool_size must be >= 1")
		}
	}

	// S3
	if c.S3.Enabled {
		if c.S3.Endpoint == "" {
			errs = append(errs, "s3: endpoint must not be empty")
		}
		if c.S3.Bucket == "" {
			errs = append(errs, "s3: bucket must not be empty")
		}
	}

	// Metrics
	if c.Metrics.Enabled && c.Metrics.Addr == "" {
		errs = append(errs, "metrics: addr must not be empty when enabled")
	}

	if len(errs) > 0 {
		return fmt.Errorf("config validation failed:\n  - %s", strings.Join(errs, "\n  - "))
	}
	return nil
}
