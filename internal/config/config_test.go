package config

import (
	"os"
	"path/filepath"
	"strings"
	"testing"
	"time"
)

func validConfig() Config {
	cfg := Defaults()
	cfg.Binance.ApiKey = "k"
	cfg.Binance.ApiSecret = "s"
	cfg.Bybit.ApiKey = "k"
	cfg.Bybit.ApiSecret = "s"
	return cfg
}

func TestDefaultsValidateWithCredentials(t *testing.T) {
	cfg := validConfig()
	if err := cfg.Validate(); err != nil {
		t.Fatalf("Validate() = %v, want nil", err)
	}
}

func TestValidateCatchesBadValues(t *testing.T) {
	tests := []struct {
		name   string
		mutate func(*Config)
		want   string
	}{
		{"missing binance creds", func(c *Config) { c.Binance.ApiKey = "" }, "binance"},
		{"zero trade size", func(c *Config) { c.Hedge.TradeSize = 0 }, "trade_size"},
		{"bad direction", func(c *Config) { c.Hedge.Direction = "sideways" }, "direction"},
		{"max below min spread", func(c *Config) { c.Hedge.MaxSpread = 0.0001 }, "max_spread"},
		{"depth multiplier below one", func(c *Config) { c.Hedge.DepthMultiplier = 0.5 }, "depth_multiplier"},
		{"excessive leverage", func(c *Config) { c.Hedge.Leverage = 500 }, "leverage"},
		{"bad log level", func(c *Config) { c.LogLevel = "verbose" }, "log_level"},
		{"fill wait below poll", func(c *Config) {
			c.Hedge.MaxFillWait = duration{100 * time.Millisecond}
			c.Hedge.PollInterval = duration{time.Second}
		}, "max_fill_wait"},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			cfg := validConfig()
			tt.mutate(&cfg)
			err := cfg.Validate()
			if err == nil {
				t.Fatal("Validate() = nil, want error")
			}
			if !strings.Contains(err.Error(), tt.want) {
				t.Fatalf("Validate() = %v, want mention of %q", err, tt.want)
			}
		})
	}
}

func TestLoadMergesFileOverDefaults(t *testing.T) {
	dir := t.TempDir()
	path := filepath.Join(dir, "config.toml")
	body := `
log_level = "debug"

[hedge]
instrument = "ETHUSDT"
base_asset = "ETH"
trade_size = 0.5
min_spread = 0.002
max_quote_age = "5s"
`
	if err := os.WriteFile(path, []byte(body), 0o600); err != nil {
		t.Fatal(err)
	}

	cfg, err := Load(path)
	if err != nil {
		t.Fatalf("Load() error = %v", err)
	}
	if cfg.Hedge.Instrument != "ETHUSDT" {
		t.Errorf("Instrument = %q, want ETHUSDT", cfg.Hedge.Instrument)
	}
	if cfg.Hedge.MinSpread != 0.002 {
		t.Errorf("MinSpread = %v, want 0.002", cfg.Hedge.MinSpread)
	}
	if cfg.Hedge.MaxQuoteAge.Duration != 5*time.Second {
		t.Errorf("MaxQuoteAge = %v, want 5s", cfg.Hedge.MaxQuoteAge.Duration)
	}
	// untouched keys keep defaults
	if cfg.Hedge.DepthMultiplier != 2.0 {
		t.Errorf("DepthMultiplier = %v, want default 2.0", cfg.Hedge.DepthMultiplier)
	}
	if cfg.LogLevel != "debug" {
		t.Errorf("LogLevel = %q, want debug", cfg.LogLevel)
	}
}

func TestEnvOverridesWinOverFile(t *testing.T) {
	dir := t.TempDir()
	path := filepath.Join(dir, "config.toml")
	if err := os.WriteFile(path, []byte("[hedge]\ntrade_size = 1.0\n"), 0o600); err != nil {
		t.Fatal(err)
	}

	t.Setenv("HEDGE_TRADE_SIZE", "2.5")
	t.Setenv("HEDGE_BYBIT_API_KEY", "env-key")
	t.Setenv("HEDGE_LEVERAGE", "20")

	cfg, err := Load(path)
	if err != nil {
		t.Fatalf("Load() error = %v", err)
	}
	if cfg.Hedge.TradeSize != 2.5 {
		t.Errorf("TradeSize = %v, want 2.5", cfg.Hedge.TradeSize)
	}
	if cfg.Bybit.ApiKey != "env-key" {
		t.Errorf("Bybit.ApiKey = %q, want env-key", cfg.Bybit.ApiKey)
	}
	if cfg.Hedge.Leverage != 20 {
		t.Errorf("Leverage = %d, want 20", cfg.Hedge.Leverage)
	}
}

func TestRedactedConfigHidesSecrets(t *testing.T) {
	cfg := validConfig()
	cfg.Redis.Password = "hunter2"
	cfg.Notify.TelegramToken = "123:abc"

	red := RedactedConfig(&cfg)
	if red.Binance.ApiSecret != "***" || red.Redis.Password != "***" || red.Notify.TelegramToken != "***" {
		t.Error("secrets not redacted")
	}
	if cfg.Binance.ApiSecret != "s" {
		t.Error("original config mutated")
	}
}
