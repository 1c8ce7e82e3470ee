package config

import (
	"os"
	"strconv"
	"strings"
	"time"

	"github.com/BurntSushi/toml"
	"github.com/joho/godotenv"
)

// Load reads a TOML configuration file at path, merges it on top of the
// built-in defaults, applies HEDGE_* environment variable overrides, and
// returns the final Config. The returned Config has NOT been validated; the
// caller should invoke Config.Validate() after Load.
func Load(path string) (*Config, error) {
	cfg := Defaults()

	if _, err := toml.DecodeFile(path, &cfg); err != nil {
		return nil, err
	}

	// Load .env file if present (silently ignore if missing).
	_ = godotenv.Load()

	applyEnvOverrides(&cfg)

	return &cfg, nil
}

// applyEnvOverrides reads well-known HEDGE_* environment variables and
// overwrites the corresponding Config fields when a variable is set (i.e. not
// empty). This lets operators inject secrets at deploy time without touching
// the TOML file.
func applyEnvOverrides(cfg *Config) {
	// ── Binance ──
	setStr(&cfg.Binance.ApiKey, "HEDGE_BINANCE_API_KEY")
	setStr(&cfg.Binance.ApiSecret, "HEDGE_BINANCE_API_SECRET")
	setStr(&cfg.Binance.BaseURL, "HEDGE_BINANCE_BASE_URL")
	setStr(&cfg.Binance.WsURL, "HEDGE_BINANCE_WS_URL")
	setBool(&cfg.Binance.Testnet, "HEDGE_BINANCE_TESTNET")

	// ── Bybit ──
	setStr(&cfg.Bybit.ApiKey, "HEDGE_BYBIT_API_KEY")
	setStr(&cfg.Bybit.ApiSecret, "HEDGE_BYBIT_API_SECRET")
	setStr(&cfg.Bybit.BaseURL, "HEDGE_BYBIT_BASE_URL")
	setStr(&cfg.Bybit.WsURL, "HEDGE_BYBIT_WS_URL")

	// ── Hedge ──
	setStr(&cfg.Hedge.Instrument, "HEDGE_INSTRUMENT")
	setStr(&cfg.Hedge.BaseAsset, "HEDGE_BASE_ASSET")
	setStr(&cfg.Hedge.QuoteAsset, "HEDGE_QUOTE_ASSET")
	setStr(&cfg.Hedge.Direction, "HEDGE_DIRECTION")
	setFloat64(&cfg.Hedge.TradeSize, "HEDGE_TRADE_SIZE")
	setInt(&cfg.Hedge.TradeCount, "HEDGE_TRADE_COUNT")
	setFloat64(&cfg.Hedge.MinSpread, "HEDGE_MIN_SPREAD")
	setFloat64(&cfg.Hedge.MaxSpread, "HEDGE_MAX_SPREAD")
	setFloat64(&cfg.Hedge.DepthMultiplier, "HEDGE_DEPTH_MULTIPLIER")
	setDuration(&cfg.Hedge.MaxQuoteAge, "HEDGE_MAX_QUOTE_AGE")
	setFloat64(&cfg.Hedge.FillGapTolerance, "HEDGE_FILL_GAP_TOLERANCE")
	setFloat64(&cfg.Hedge.RebalanceThreshold, "HEDGE_REBALANCE_THRESHOLD")
	setInt(&cfg.Hedge.Leverage, "HEDGE_LEVERAGE")
	setFloat64(&cfg.Hedge.FeeCompensation, "HEDGE_FEE_COMPENSATION")
	setDuration(&cfg.Hedge.PollInterval, "HEDGE_POLL_INTERVAL")
	setDuration(&cfg.Hedge.MaxFillWait, "HEDGE_MAX_FILL_WAIT")
	setDuration(&cfg.Hedge.TradePause, "HEDGE_TRADE_PAUSE")
	setInt(&cfg.Hedge.MaxConsecutiveFailures, "HEDGE_MAX_CONSECUTIVE_FAILURES")
	setBool(&cfg.Hedge.UseEarnReservoir, "HEDGE_USE_EARN_RESERVOIR")

	// ── Postgres ──
	setBool(&cfg.Postgres.Enabled, "HEDGE_POSTGRES_ENABLED")
	setStr(&cfg.Postgres.DSN, "HEDGE_POSTGRES_DSN")
	setStr(&cfg.Postgres.Host, "HEDGE_POSTGRES_HOST")
	setInt(&cfg.Postgres.Port, "HEDGE_POSTGRES_PORT")
	setStr(&cfg.Postgres.Database, "HEDGE_POSTGRES_DATABASE")
	setStr(&cfg.Postgres.User, "HEDGE_POSTGRES_USER")
	setStr(&cfg.Postgres.Password, "HEDGE_POSTGRES_PASSWORD")
	setStr(&cfg.Postgres.SSLMode, "HEDGE_POSTGRES_SSL_MODE")
	setInt(&cfg.Postgres.PoolMaxConns, "HEDGE_POSTGRES_POOL_MAX_CONNS")
	setInt(&cfg.Postgres.PoolMinConns, "HEDGE_POSTGRES_POOL_MIN_CONNS")
	setBool(&cfg.Postgres.RunMigrations, "HEDGE_POSTGRES_RUN_MIGRATIONS")

	// ── Redis ──
	setBool(&cfg.Redis.Enabled, "HEDGE_REDIS_ENABLED")
	setStr(&cfg.Redis.Addr, "HEDGE_REDIS_ADDR")
	setStr(&cfg.Redis.Password, "HEDGE_REDIS_PASSWORD")
	setInt(&cfg.Redis.DB, "HEDGE_REDIS_DB")
	setInt(&cfg.Redis.PoolSize, "HEDGE_REDIS_POOL_SIZE")
	setInt(&cfg.Redis.MaxRetries, "HEDGE_REDIS_MAX_RETRIES")
	setBool(&cfg.Redis.TLSEnabled, "HEDGE_REDIS_TLS_ENABLED")

	// ── S3 ──
	setBool(&cfg.S3.Enabled, "HEDGE_S3_ENABLED")
	setStr(&cfg.S3.Endpoint, "HEDGE_S3_ENDPOINT")
	setStr(&cfg.S3.Region, "HEDGE_S3_REGION")
	setStr(&cfg.S3.Bucket, "HEDGE_S3_BUCKET")
	setStr(&cfg.S3.AccessKey, "HEDGE_S3_ACCESS_KEY")
	setStr(&cfg.S3.SecretKey, "HEDGE_S3_SECRET_KEY")
	setBool(&cfg.S3.UseSSL, "HEDGE_S3_USE_SSL")
	setBool(&cfg.S3.ForcePathStyle, "HEDGE_S3_FORCE_PATH_STYLE")

	// ── Notify ──
	setStr(&cfg.Notify.TelegramToken, "HEDGE_NOTIFY_TELEGRAM_TOKEN")
	setStr(&cfg.Notify.TelegramChatID, "HEDGE_NOTIFY_TELEGRAM_CHAT_ID")
	setStr(&cfg.Notify.DiscordWebhookURL, "HEDGE_NOTIFY_DISCORD_WEBHOOK_URL")
	setStringSlice(&cfg.Notify.Events, "HEDGE_NOTIFY_EVENTS")

	// ── Metrics ──
	setBool(&cfg.Metrics.Enabled, "HEDGE_METRICS_ENABLED")
	setStr(&cfg.Metrics.Addr, "HEDGE_METRICS_ADDR")

	// ── Top-level ──
	setStr(&cfg.LogLevel, "HEDGE_LOG_LEVEL")
}

// ---------------------------------------------------------------------------
// Typed env-var helpers. Each only mutates the target when the environment
// variable is present and non-empty.
// ---------------------------------------------------------------------------

func setStr(dst *string, key string) {
	if v := os.Getenv(key); v != "" {
		*dst = v
	}
}

func setInt(dst *int, key string) {
	if v := os.Getenv(key); v != "" {
		if n, err := strconv.Atoi(v); err == nil {
			*dst = n
		}
	}
}

func setFloat64(dst *float64, key string) {
	if v := os.Getenv(key); v != "" {
		if f, err := strconv.ParseFloat(v, 64); err == nil {
			*dst = f
		}
	}
}

func setBool(dst *bool, key string) {
	if v := os.Getenv(key); v != "" {
		if b, err := strconv.ParseBool(v); err == nil {
			*dst = b
		}
	}
}

func setDuration(dst *duration, key string) {
	if v := os.Getenv(key); v != "" {
		if d, err := time.ParseDuration(v); err == nil {
			dst.Duration = d
		}
	}
}

func setStringSlice(dst *[]string, key string) {
	if v := os.Getenv(key); v != "" {
		parts := strings.Split(v, ",")
		cleaned := make([]string, 0, len(parts))
		for _, p := range parts {
			p = strings.TrimSpace(p)
			if p != "" {
				cleaned = append(cleaned, p)
			}
		}
		if len(cleaned) > 0 {
			*dst = cleaned
		}
	}
}
