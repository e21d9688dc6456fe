package config

import (
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/shopspring/decimal"
)

const sampleYAML = `
dry_run: true
master:
  info_url: "https://api.example.org/info"
  ws_url: "wss://api.example.org/ws"
  followed_users:
    - "0x1df62f291b2e969fb0849d99d9ce41e2f137006e"
trading:
  mode: "fixed"
  fixed_ratio: 0.1
redis:
  addr: "localhost:6379"
risk:
  supported_coins: ["BTC", "ETH"]
instruments:
  BTC:
    symbol: "BTCUSDT"
    size_decimals: 3
    price_tick: 0.1
    min_size: 0.002
    max_position: 1.0
    reduction_threshold: 0.5
  ETH:
    symbol: "ETHUSDT"
    size_decimals: 3
    price_tick: 0.01
    min_open_size: 0.02
    min_close_size: 0.01
`

func writeConfig(t *testing.T, body string) string {
	t.Helper()
	path := filepath.Join(t.TempDir(), "config.yaml")
	if err := os.WriteFile(path, []byte(body), 0o644); err != nil {
		t.Fatalf("write config: %v", err)
	}
	return path
}

func TestLoadAndValidate(t *testing.T) {
	cfg, err := Load(writeConfig(t, sampleYAML))
	if err != nil {
		t.Fatalf("Load() error: %v", err)
	}
	if err := cfg.Validate(); err != nil {
		t.Fatalf("Validate() error: %v", err)
	}

	if cfg.Master.InfoURL != "https://api.example.org/info" {
		t.Errorf("InfoURL = %q", cfg.Master.InfoURL)
	}
	// Address normalized to checksum form.
	if got := cfg.Master.FollowedUsers[0]; got != "0x1dF62f291b2E969fB0849d99D9Ce41e2F137006e" {
		t.Errorf("followed user not checksummed: %q", got)
	}
	if cfg.Trading.AccountCacheTTL != 60*time.Second {
		t.Errorf("AccountCacheTTL default = %v, want 60s", cfg.Trading.AccountCacheTTL)
	}
	if cfg.Validator.Interval != 60*time.Second || cfg.Validator.MaxAge != 24*time.Hour {
		t.Errorf("validator defaults = %v / %v", cfg.Validator.Interval, cfg.Validator.MaxAge)
	}
}

func TestLoadNormalizesMinSizes(t *testing.T) {
	cfg, err := Load(writeConfig(t, sampleYAML))
	if err != nil {
		t.Fatalf("Load() error: %v", err)
	}

	// BTC sets the scalar min_size only: both directions inherit it.
	btc := cfg.Instruments["BTC"]
	if btc.MinOpenSize != 0.002 || btc.MinCloseSize != 0.002 {
		t.Errorf("BTC min sizes = %v / %v, want 0.002 / 0.002", btc.MinOpenSize, btc.MinCloseSize)
	}

	// ETH sets the split pair explicitly: the scalar fallback must not apply.
	eth := cfg.Instruments["ETH"]
	if eth.MinOpenSize != 0.02 || eth.MinCloseSize != 0.01 {
		t.Errorf("ETH min sizes = %v / %v, want 0.02 / 0.01", eth.MinOpenSize, eth.MinCloseSize)
	}
}

func TestSecretOverridesFromEnv(t *testing.T) {
	t.Setenv("MIRROR_BINANCE_API_KEY", "env-key")
	t.Setenv("MIRROR_BINANCE_API_SECRET", "env-secret")
	t.Setenv("MIRROR_REDIS_ADDR", "redis.internal:6380")

	cfg, err := Load(writeConfig(t, sampleYAML))
	if err != nil {
		t.Fatalf("Load() error: %v", err)
	}

	if cfg.Follower.APIKey != "env-key" || cfg.Follower.APISecret != "env-secret" {
		t.Errorf("follower credentials not taken from env: %q / %q", cfg.Follower.APIKey, cfg.Follower.APISecret)
	}
	if cfg.Redis.Addr != "redis.internal:6380" {
		t.Errorf("redis addr not taken from env: %q", cfg.Redis.Addr)
	}
}

func TestValidateRejections(t *testing.T) {
	tests := []struct {
		name   string
		mutate func(*Config)
	}{
		{"missing info url", func(c *Config) { c.Master.InfoURL = "" }},
		{"no followed users", func(c *Config) { c.Master.FollowedUsers = nil }},
		{"bad address", func(c *Config) { c.Master.FollowedUsers = []string{"not-an-address"} }},
		{"missing redis", func(c *Config) { c.Redis.Addr = "" }},
		{"bad mode", func(c *Config) { c.Trading.Mode = "martingale" }},
		{"zero fixed ratio", func(c *Config) { c.Trading.FixedRatio = 0 }},
		{"no supported coins", func(c *Config) { c.Risk.SupportedCoins = nil }},
		{"coin without instrument", func(c *Config) { c.Risk.SupportedCoins = append(c.Risk.SupportedCoins, "SOL") }},
		{"zero price tick", func(c *Config) {
			inst := c.Instruments["BTC"]
			inst.PriceTick = 0
			c.Instruments["BTC"] = inst
		}},
		{"zero min size", func(c *Config) {
			inst := c.Instruments["BTC"]
			inst.MinOpenSize, inst.MinCloseSize = 0, 0
			c.Instruments["BTC"] = inst
		}},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			cfg, err := Load(writeConfig(t, sampleYAML))
			if err != nil {
				t.Fatalf("Load() error: %v", err)
			}
			tt.mutate(cfg)
			if err := cfg.Validate(); err == nil {
				t.Error("Validate() accepted an invalid config")
			}
		})
	}
}

func TestInstrumentSet(t *testing.T) {
	cfg, err := Load(writeConfig(t, sampleYAML))
	if err != nil {
		t.Fatalf("Load() error: %v", err)
	}

	set := cfg.InstrumentSet()
	if len(set) != 2 {
		t.Fatalf("InstrumentSet() has %d entries, want 2", len(set))
	}

	btc := set["BTC"]
	if btc.Symbol != "BTCUSDT" || btc.SizeDecimals != 3 {
		t.Errorf("BTC instrument = %+v", btc)
	}
	if !btc.PriceTick.Equal(decimal.NewFromFloat(0.1)) {
		t.Errorf("BTC tick = %s, want 0.1", btc.PriceTick)
	}
	if !btc.MinOpenSize.Equal(decimal.NewFromFloat(0.002)) {
		t.Errorf("BTC min open = %s, want 0.002", btc.MinOpenSize)
	}
	if !btc.MaxPosition.Equal(decimal.NewFromFloat(1.0)) {
		t.Errorf("BTC max position = %s, want 1.0", btc.MaxPosition)
	}
}
