// Package config defines all configuration for the mirror engine.
// Config is loaded from a YAML file (default: configs/config.yaml) with
// sensitive fields overridable via MIRROR_* environment variables.
package config

import (
	"fmt"
	"os"
	"strings"
	"time"

	"github.com/ethereum/go-ethereum/common"
	"github.com/joho/godotenv"
	"github.com/shopspring/decimal"
	"github.com/spf13/viper"

	"perp-mirror/pkg/types"
)

// Config is the top-level configuration. Maps directly to the YAML file structure.
type Config struct {
	DryRun      bool                        `mapstructure:"dry_run"`
	Master      MasterConfig                `mapstructure:"master"`
	Follower    FollowerConfig              `mapstructure:"follower"`
	Redis       RedisConfig                 `mapstructure:"redis"`
	Trading     TradingConfig               `mapstructure:"trading"`
	Risk        RiskConfig                  `mapstructure:"risk"`
	Instruments map[string]InstrumentConfig `mapstructure:"instruments"`
	Rebalance   RebalanceConfig             `mapstructure:"rebalance"`
	Validator   ValidatorConfig             `mapstructure:"validator"`
	Logging     LoggingConfig               `mapstructure:"logging"`
	API         APIConfig                   `mapstructure:"api"`
}

// MasterConfig points at the Master venue (the exchange whose trader is
// being followed). FollowedUsers are the Master account addresses to mirror;
// they are EVM addresses and are normalized to checksum form during Validate.
type MasterConfig struct {
	InfoURL       string   `mapstructure:"info_url"`
	WSURL         string   `mapstructure:"ws_url"`
	FollowedUsers []string `mapstructure:"followed_users"`
}

// FollowerConfig holds the Follower venue credentials. The key needs futures
// trading permission; read-only keys fail the startup probe.
type FollowerConfig struct {
	APIKey    string `mapstructure:"api_key"`
	APISecret string `mapstructure:"api_secret"`
	Testnet   bool   `mapstructure:"testnet"`
}

// RedisConfig sets where mappings, the delta ledger, and the processed-order
// journal are persisted.
type RedisConfig struct {
	Addr     string `mapstructure:"addr"`
	Password string `mapstructure:"password"`
	DB       int    `mapstructure:"db"`
}

// TradingConfig selects the sizing mode.
//
//   - Mode "fixed": follower size = master size × FixedRatio.
//   - Mode "equal": follower size = master size × (followerEquity/masterEquity) × EqualRatio.
//   - AccountCacheTTL: how long equity snapshots stay fresh in equal mode.
type TradingConfig struct {
	Mode            string        `mapstructure:"mode"`
	FixedRatio      float64       `mapstructure:"fixed_ratio"`
	EqualRatio      float64       `mapstructure:"equal_ratio"`
	AccountCacheTTL time.Duration `mapstructure:"account_cache_ttl"`
}

// RiskConfig holds the synchronous risk-gate inputs. Per-instrument position
// caps live on the instrument entries.
type RiskConfig struct {
	EmergencyStop  bool     `mapstructure:"emergency_stop"`
	SupportedCoins []string `mapstructure:"supported_coins"`
}

// InstrumentConfig is the venue metadata for one coin. MinSize is the scalar
// fallback: when MinOpenSize/MinCloseSize are unset they inherit it, so a
// single value covers venues that do not split the minimum by action.
type InstrumentConfig struct {
	Symbol             string  `mapstructure:"symbol"`
	SizeDecimals       int32   `mapstructure:"size_decimals"`
	PriceTick          float64 `mapstructure:"price_tick"`
	MinSize            float64 `mapstructure:"min_size"`
	MinOpenSize        float64 `mapstructure:"min_open_size"`
	MinCloseSize       float64 `mapstructure:"min_close_size"`
	MaxPosition        float64 `mapstructure:"max_position"`
	ReductionThreshold float64 `mapstructure:"reduction_threshold"`
}

// RebalanceConfig tunes the exposure rebalancer.
//
//   - ProfitRatio: offset from entry for reduce-only take-profits (0.0001 = 0.01%).
//   - Epsilon: exposure differences below this are treated as zero.
type RebalanceConfig struct {
	ProfitRatio float64 `mapstructure:"profit_ratio"`
	Epsilon     float64 `mapstructure:"epsilon"`
}

// ValidatorConfig tunes the periodic mapping validator.
type ValidatorConfig struct {
	Interval time.Duration `mapstructure:"interval"`
	MaxAge   time.Duration `mapstructure:"max_age"`
}

type LoggingConfig struct {
	Level  string `mapstructure:"level"`
	Format string `mapstructure:"format"`
}

// APIConfig controls the operational status API. AllowedOrigins is the
// browser-origin allowlist for the dashboard WebSocket; when empty, only
// same-host and localhost origins may connect.
type APIConfig struct {
	Enabled        bool     `mapstructure:"enabled"`
	Port           int      `mapstructure:"port"`
	AllowedOrigins []string `mapstructure:"allowed_origins"`
}

// Load reads config from a YAML file with env var overrides. A .env file in
// the working directory is loaded first if present. Sensitive fields use env
// vars: MIRROR_BINANCE_API_KEY, MIRROR_BINANCE_API_SECRET, MIRROR_REDIS_ADDR,
// MIRROR_REDIS_PASSWORD.
func Load(path string) (*Config, error) {
	_ = godotenv.Load()

	v := viper.New()
	v.SetConfigFile(path)
	v.SetEnvPrefix("MIRROR")
	v.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))
	v.AutomaticEnv()

	if err := v.ReadInConfig(); err != nil {
		return nil, fmt.Errorf("read config: %w", err)
	}

	var cfg Config
	if err := v.Unmarshal(&cfg); err != nil {
		return nil, fmt.Errorf("unmarshal config: %w", err)
	}

	// Override sensitive fields from env
	if key := os.Getenv("MIRROR_BINANCE_API_KEY"); key != "" {
		cfg.Follower.APIKey = key
	}
	if secret := os.Getenv("MIRROR_BINANCE_API_SECRET"); secret != "" {
		cfg.Follower.APISecret = secret
	}
	if addr := os.Getenv("MIRROR_REDIS_ADDR"); addr != "" {
		cfg.Redis.Addr = addr
	}
	if pass := os.Getenv("MIRROR_REDIS_PASSWORD"); pass != "" {
		cfg.Redis.Password = pass
	}
	if os.Getenv("MIRROR_DRY_RUN") == "true" || os.Getenv("MIRROR_DRY_RUN") == "1" {
		cfg.DryRun = true
	}
	if os.Getenv("MIRROR_EMERGENCY_STOP") == "true" || os.Getenv("MIRROR_EMERGENCY_STOP") == "1" {
		cfg.Risk.EmergencyStop = true
	}

	cfg.applyDefaults()

	return &cfg, nil
}

// applyDefaults fills unset tunables and normalizes the scalar min-size
// fallback onto the open/close pair.
func (c *Config) applyDefaults() {
	if c.Trading.AccountCacheTTL <= 0 {
		c.Trading.AccountCacheTTL = 60 * time.Second
	}
	if c.Rebalance.ProfitRatio <= 0 {
		c.Rebalance.ProfitRatio = 0.0001
	}
	if c.Rebalance.Epsilon <= 0 {
		c.Rebalance.Epsilon = 1e-6
	}
	if c.Validator.Interval <= 0 {
		c.Validator.Interval = 60 * time.Second
	}
	if c.Validator.MaxAge <= 0 {
		c.Validator.MaxAge = 24 * time.Hour
	}
	for coin, inst := range c.Instruments {
		if inst.MinOpenSize == 0 {
			inst.MinOpenSize = inst.MinSize
		}
		if inst.MinCloseSize == 0 {
			inst.MinCloseSize = inst.MinSize
		}
		c.Instruments[coin] = inst
	}
}

// Validate checks all required fields and value ranges, and normalizes the
// followed-user addresses to checksum form.
func (c *Config) Validate() error {
	if c.Master.InfoURL == "" {
		return fmt.Errorf("master.info_url is required")
	}
	if c.Master.WSURL == "" {
		return fmt.Errorf("master.ws_url is required")
	}
	if len(c.Master.FollowedUsers) == 0 {
		return fmt.Errorf("master.followed_users must list at least one account")
	}
	for i, user := range c.Master.FollowedUsers {
		if !common.IsHexAddress(user) {
			return fmt.Errorf("master.followed_users[%d] = %q is not a valid address", i, user)
		}
		c.Master.FollowedUsers[i] = common.HexToAddress(user).Hex()
	}
	if !c.DryRun {
		if c.Follower.APIKey == "" {
			return fmt.Errorf("follower.api_key is required (set MIRROR_BINANCE_API_KEY)")
		}
		if c.Follower.APISecret == "" {
			return fmt.Errorf("follower.api_secret is required (set MIRROR_BINANCE_API_SECRET)")
		}
	}
	if c.Redis.Addr == "" {
		return fmt.Errorf("redis.addr is required (set MIRROR_REDIS_ADDR)")
	}
	switch types.TradingMode(c.Trading.Mode) {
	case types.ModeFixed:
		if c.Trading.FixedRatio <= 0 {
			return fmt.Errorf("trading.fixed_ratio must be > 0 in fixed mode")
		}
	case types.ModeEqual:
		if c.Trading.EqualRatio <= 0 {
			return fmt.Errorf("trading.equal_ratio must be > 0 in equal mode")
		}
	default:
		return fmt.Errorf("trading.mode must be %q or %q", types.ModeFixed, types.ModeEqual)
	}
	if len(c.Risk.SupportedCoins) == 0 {
		return fmt.Errorf("risk.supported_coins must list at least one coin")
	}
	for _, coin := range c.Risk.SupportedCoins {
		inst, ok := c.Instruments[coin]
		if !ok {
			return fmt.Errorf("instruments.%s is required (coin is in risk.supported_coins)", coin)
		}
		if inst.Symbol == "" {
			return fmt.Errorf("instruments.%s.symbol is required", coin)
		}
		if inst.SizeDecimals < 0 {
			return fmt.Errorf("instruments.%s.size_decimals must be >= 0", coin)
		}
		if inst.PriceTick <= 0 {
			return fmt.Errorf("instruments.%s.price_tick must be > 0", coin)
		}
		if inst.MinOpenSize <= 0 || inst.MinCloseSize <= 0 {
			return fmt.Errorf("instruments.%s needs min_size or min_open_size/min_close_size > 0", coin)
		}
	}
	return nil
}

// InstrumentSet converts the configured instruments into the shared domain
// representation, keyed by coin. Only supported coins are included.
func (c *Config) InstrumentSet() map[string]types.Instrument {
	set := make(map[string]types.Instrument, len(c.Risk.SupportedCoins))
	for _, coin := range c.Risk.SupportedCoins {
		ic, ok := c.Instruments[coin]
		if !ok {
			continue
		}
		set[coin] = types.Instrument{
			Coin:               coin,
			Symbol:             ic.Symbol,
			SizeDecimals:       ic.SizeDecimals,
			PriceTick:          decimal.NewFromFloat(ic.PriceTick),
			MinOpenSize:        decimal.NewFromFloat(ic.MinOpenSize),
			MinCloseSize:       decimal.NewFromFloat(ic.MinCloseSize),
			MaxPosition:        decimal.NewFromFloat(ic.MaxPosition),
			ReductionThreshold: decimal.NewFromFloat(ic.ReductionThreshold),
		}
	}
	return set
}
