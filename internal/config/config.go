// Package config defines all configuration for the market-making agent.
// Config is loaded from a YAML file (default: configs/config.yaml) with
// sensitive fields overridable via AGENT_* environment variables.
package config

import (
	"fmt"
	"os"
	"strings"
	"time"

	"github.com/spf13/viper"
)

// Config is the top-level configuration. Maps directly to the YAML file structure.
type Config struct {
	DryRun    bool            `mapstructure:"dry_run"`
	Wallet    WalletConfig    `mapstructure:"wallet"`
	Venue     VenueConfig     `mapstructure:"venue"`
	Wire      WireConfig      `mapstructure:"wire"`
	Timing    TimingConfig    `mapstructure:"timing"`
	RateLimit RateLimitConfig `mapstructure:"rate_limit"`
	Logging   LoggingConfig   `mapstructure:"logging"`
	Operator  OperatorConfig  `mapstructure:"operator"`
}

// WalletConfig holds the signing identity used to authorize orders.
// PrivateKey signs the EIP-712-style order payload the reference venue
// adapter expects.
type WalletConfig struct {
	PrivateKey string `mapstructure:"private_key"`
	ChainID    int64  `mapstructure:"chain_id"`
	MakerID    string `mapstructure:"maker_id"`
}

// VenueConfig holds the venue's REST/WebSocket endpoints and reference-data
// discovery endpoint.
type VenueConfig struct {
	BaseURL    string `mapstructure:"base_url"`
	WSURL      string `mapstructure:"ws_url"`
	RefdataURL string `mapstructure:"refdata_url"`
}

// WireConfig carries the venue constants that define wire-format odds and
// stake arithmetic: ODDS_UNIT, LADDER_STEP, STAKE_UNIT.
type WireConfig struct {
	OddsUnit   int64 `mapstructure:"odds_unit"`
	LadderStep int64 `mapstructure:"ladder_step"`
	StakeUnit  int64 `mapstructure:"stake_unit"`
}

// TimingConfig carries the tunables governing reconciliation cadence and
// position-lifecycle thresholds.
type TimingConfig struct {
	CompleteFraction       float64       `mapstructure:"complete_fraction"`         // default 0.99
	RecentCancelTTL        time.Duration `mapstructure:"recent_cancel_ttl"`         // default 60s
	MinOrderUpdateInterval time.Duration `mapstructure:"min_order_update_interval"` // default 2500ms
	PollFallbackInterval   time.Duration `mapstructure:"poll_fallback_interval"`    // default 10s
	PushConnectTimeout     time.Duration `mapstructure:"push_connect_timeout"`      // default 5s
	MaxReconnectWait       time.Duration `mapstructure:"max_reconnect_wait"`        // default 30s
}

// RateLimitConfig carries the retry/backoff and token-bucket tunables for
// the Order Gateway and venue adapter.
type RateLimitConfig struct {
	MaxRetries        int           `mapstructure:"max_retries"`      // default 3
	RetryBaseDelay    time.Duration `mapstructure:"retry_base_delay"` // default 1s
	RetryBackoff      float64       `mapstructure:"retry_backoff"`    // default 2.0
	PostPerSecond     float64       `mapstructure:"post_per_second"`
	PostBurst         int           `mapstructure:"post_burst"`
	CancelPerSecond   float64       `mapstructure:"cancel_per_second"`
	CancelBurst       int           `mapstructure:"cancel_burst"`
	SnapshotPerSecond float64       `mapstructure:"snapshot_per_second"`
	SnapshotBurst     int           `mapstructure:"snapshot_burst"`
}

type LoggingConfig struct {
	Level  string `mapstructure:"level"`
	Format string `mapstructure:"format"`
}

// OperatorConfig controls the HTTP/WS operator surface.
type OperatorConfig struct {
	Enabled        bool     `mapstructure:"enabled"`
	Port           int      `mapstructure:"port"`
	AllowedOrigins []string `mapstructure:"allowed_origins"`
}

// Load reads config from a YAML file with env var overrides.
// Sensitive fields use env vars: AGENT_PRIVATE_KEY, AGENT_DRY_RUN.
func Load(path string) (*Config, error) {
	v := viper.New()
	v.SetConfigFile(path)
	v.SetEnvPrefix("AGENT")
	v.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))
	v.AutomaticEnv()

	v.SetDefault("timing.complete_fraction", 0.99)
	v.SetDefault("timing.recent_cancel_ttl", 60*time.Second)
	v.SetDefault("timing.min_order_update_interval", 2500*time.Millisecond)
	v.SetDefault("timing.poll_fallback_interval", 10*time.Second)
	v.SetDefault("timing.push_connect_timeout", 5*time.Second)
	v.SetDefault("timing.max_reconnect_wait", 30*time.Second)
	v.SetDefault("rate_limit.max_retries", 3)
	v.SetDefault("rate_limit.retry_base_delay", time.Second)
	v.SetDefault("rate_limit.retry_backoff", 2.0)

	if err := v.ReadInConfig(); err != nil {
		return nil, fmt.Errorf("read config: %w", err)
	}

	var cfg Config
	if err := v.Unmarshal(&cfg); err != nil {
		return nil, fmt.Errorf("unmarshal config: %w", err)
	}

	if key := os.Getenv("AGENT_PRIVATE_KEY"); key != "" {
		cfg.Wallet.PrivateKey = key
	}
	if os.Getenv("AGENT_DRY_RUN") == "true" || os.Getenv("AGENT_DRY_RUN") == "1" {
		cfg.DryRun = true
	}

	return &cfg, nil
}

// Validate checks all required fields and value ranges before the agent
// starts. A config missing required venue constants or credentials fails
// here rather than surfacing as a runtime panic later.
func (c *Config) Validate() error {
	if c.Wallet.PrivateKey == "" {
		return fmt.Errorf("wallet.private_key is required (set AGENT_PRIVATE_KEY)")
	}
	if c.Wallet.ChainID == 0 {
		return fmt.Errorf("wallet.chain_id is required")
	}
	if c.Wallet.MakerID == "" {
		return fmt.Errorf("wallet.maker_id is required")
	}
	if c.Venue.BaseURL == "" {
		return fmt.Errorf("venue.base_url is required")
	}
	if c.Venue.WSURL == "" {
		return fmt.Errorf("venue.ws_url is required")
	}
	if c.Wire.OddsUnit <= 0 {
		return fmt.Errorf("wire.odds_unit must be > 0")
	}
	if c.Wire.LadderStep <= 0 {
		return fmt.Errorf("wire.ladder_step must be > 0")
	}
	if c.Wire.StakeUnit <= 0 {
		return fmt.Errorf("wire.stake_unit must be > 0")
	}
	if c.Timing.CompleteFraction <= 0 || c.Timing.CompleteFraction > 1 {
		return fmt.Errorf("timing.complete_fraction must be in (0, 1]")
	}
	if c.RateLimit.MaxRetries < 0 {
		return fmt.Errorf("rate_limit.max_retries must be >= 0")
	}
	return nil
}
