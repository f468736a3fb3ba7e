// Package settings defines the top-level runtime configuration for the
// keeper process (exchange credentials, infrastructure connections,
// lifecycle knobs) and provides validation helpers. It is distinct from the
// hot-reloadable bands document described in package config, which holds
// the trading parameters an operator adjusts without restarting the
// process.
package settings

import (
	"fmt"
	"strings"
	"time"
)

// Config is the root configuration structure. Fields are populated from a
// TOML file and then optionally overridden by KEEPER_* environment
// variables.
type Config struct {
	Pair      string          `toml:"pair"`
	BandsFile string          `toml:"bands_file"`
	PriceFeed string          `toml:"price_feed"`
	Wallet    WalletConfig    `toml:"wallet"`
	Exchange  ExchangeConfig  `toml:"exchange"`
	Chain     ChainConfig     `toml:"chain"`
	Redis     RedisConfig     `toml:"redis"`
	S3        S3Config        `toml:"s3"`
	Postgres  PostgresConfig  `toml:"postgres"`
	Control   ControlConfig   `toml:"control"`
	Server    ServerConfig    `toml:"server"`
	Notify    NotifyConfig    `toml:"notify"`
	Reporting ReportingConfig `toml:"reporting"`
	Mode      string          `toml:"mode"`
	LogLevel  string          `toml:"log_level"`
}

// ReportingConfig holds the optional HTTP cycle-report push endpoint.
// Leaving URL empty disables it.
type ReportingConfig struct {
	URL string `toml:"url"`
}

// WalletConfig holds Ethereum wallet credentials used to sign on-chain
// transactions or off-chain order payloads.
type WalletConfig struct {
	PrivateKey       string `toml:"private_key"`
	EncryptedKeyPath string `toml:"encrypted_key_path"`
	KeyPassword      string `toml:"key_password"`
}

// ExchangeConfig selects and configures the exchange adapter this keeper
// instance trades against.
type ExchangeConfig struct {
	// Kind selects the adapter: "onchain" for an on-chain order book
	// contract, "mock" for local testing.
	Kind          string  `toml:"kind"`
	MarketAddress string  `toml:"market_address"`
	BaseToken     string  `toml:"base_token"`
	QuoteToken    string  `toml:"quote_token"`
	BaseBalance   float64 `toml:"mock_base_balance"`
	QuoteBalance  float64 `toml:"mock_quote_balance"`
}

// ChainConfig holds parameters needed to talk to an Ethereum RPC endpoint.
type ChainConfig struct {
	RPCURL        string  `toml:"rpc_url"`
	ChainID       int     `toml:"chain_id"`
	OracleAddress string  `toml:"oracle_address"`
	GasStrategy   string  `toml:"gas_strategy"` // "fixed", "node", "etherscan"
	FixedGasGwei  float64 `toml:"fixed_gas_gwei"`
}

// RedisConfig holds Redis connection parameters, used for the single-
// instance startup lock and an optional shared price cache.
type RedisConfig struct {
	Addr       string `toml:"addr"`
	Password   string `toml:"password"`
	DB         int    `toml:"db"`
	PoolSize   int    `toml:"pool_size"`
	MaxRetries int    `toml:"max_retries"`
	TLSEnabled bool   `toml:"tls_enabled"`
}

// S3Config holds S3-compatible object storage parameters used for cycle
// report archival. Nothing in the keeper runs the archiver's stale
// order-event archival, and ArchiveRetention is not read.
type S3Config struct {
	Endpoint       string `toml:"endpoint"`
	Region         string `toml:"region"`
	Bucket         string `toml:"bucket"`
	AccessKey      string `toml:"access_key"`
	SecretKey      string `toml:"secret_key"`
	UseSSL         bool   `toml:"use_ssl"`
	ForcePathStyle bool   `toml:"force_path_style"`
}

// PostgresConfig holds the order-event audit store connection parameters.
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
}

// ControlConfig holds the control loop's timing and concurrency knobs.
type ControlConfig struct {
	CycleInterval    duration `toml:"cycle_interval"`
	MaxConcurrent    int      `toml:"max_concurrent"`
	LockTTL          duration `toml:"lock_ttl"`
	OrderAgeMaxCycle int      `toml:"order_age_max_cycle"`
	ArchiveRetention duration `toml:"archive_retention"`

	// ConfigPollInterval is the cadence of the background task that polls
	// the hot-reloadable bands document. Zero falls back to CycleInterval.
	ConfigPollInterval duration `toml:"config_poll_interval"`

	// MinBaseBalance and MinQuoteBalance are the safety floors the control
	// loop enforces: a pre-start balance below either aborts startup with
	// an "unsafe to start" error, and a balance that drops below either
	// mid-run drains the book and stops the loop. Zero disables the check
	// for that side.
	MinBaseBalance  float64 `toml:"min_base_balance"`
	MinQuoteBalance float64 `toml:"min_quote_balance"`
}

// duration is a wrapper around time.Duration that supports TOML string
// decoding (e.g. "5m", "30s").
type duration struct {
	time.Duration
}

// UnmarshalText implements encoding.TextUnmarshaler so the TOML decoder can
// parse duration strings like "5m" or "30s".
func (d *duration) UnmarshalText(text []byte) error {
	var err error
	d.Duration, err = time.ParseDuration(string(text))
	return err
}

// MarshalText implements encoding.TextMarshaler for round-trip encoding.
func (d duration) MarshalText() ([]byte, error) {
	return []byte(d.Duration.String()), nil
}

// ServerConfig holds HTTP server parameters for the health/status endpoint.
type ServerConfig struct {
	Enabled     bool     `toml:"enabled"`
	Port        int      `toml:"port"`
	CORSOrigins []string `toml:"cors_origins"`
}

// NotifyConfig holds notification channel credentials.
type NotifyConfig struct {
	TelegramToken     string   `toml:"telegram_token"`
	TelegramChatID    string   `toml:"telegram_chat_id"`
	DiscordWebhookURL string   `toml:"discord_webhook_url"`
	Events            []string `toml:"events"`
}

// Defaults returns a Config populated with reasonable default values.
func Defaults() Config {
	return Config{
		BandsFile: "bands.json",
		PriceFeed: "fixed://1.0",
		Exchange: ExchangeConfig{
			Kind: "mock",
		},
		Chain: ChainConfig{
			ChainID:      1,
			GasStrategy:  "fixed",
			FixedGasGwei: 20,
		},
		Redis: RedisConfig{
			Addr:       "localhost:6379",
			DB:         0,
			PoolSize:   10,
			MaxRetries: 3,
		},
		S3: S3Config{
			Endpoint:       "http://localhost:9000",
			Region:         "us-east-1",
			Bucket:         "keeper-archive",
			UseSSL:         false,
			ForcePathStyle: true,
		},
		Postgres: PostgresConfig{
			Host:          "localhost",
			Port:          5432,
			Database:      "keeper",
			User:          "keeper",
			SSLMode:       "disable",
			PoolMaxConns:  10,
			PoolMinConns:  2,
			RunMigrations: true,
		},
		Control: ControlConfig{
			CycleInterval:    duration{10 * time.Second},
			MaxConcurrent:    4,
			LockTTL:          duration{30 * time.Second},
			OrderAgeMaxCycle: 10,
			ArchiveRetention: duration{90 * 24 * time.Hour},
		},
		Server: ServerConfig{
			Enabled: true,
			Port:    8000,
		},
		Notify: NotifyConfig{
			Events: []string{"keeper_running", "keeper_draining", "keeper_stopped", "cycle_error", "safety_floor_breached"},
		},
		Mode:     "keep",
		LogLevel: "info",
	}
}

var validModes = map[string]bool{
	"keep":    true, // run the control loop
	"once":    true, // run a single cycle and exit, for dry-run testing
	"drain":   true, // cancel all resting orders and exit
	"server":  true, // serve /healthz and /status only
}

var validLogLevels = map[string]bool{
	"debug": true,
	"info":  true,
	"warn":  true,
	"error": true,
}

var validExchangeKinds = map[string]bool{
	"onchain": true,
	"mock":    true,
}

var validGasStrategies = map[string]bool{
	"fixed":     true,
	"node":      true,
	"etherscan": true,
}

// Validate checks Config for obviously invalid or missing values and
// returns a combined error describing every problem found.
func (c *Config) Validate() error {
	var errs []string

	if !validModes[strings.ToLower(c.Mode)] {
		errs = append(errs, fmt.Sprintf("unknown mode %q (valid: keep, once, drain, server)", c.Mode))
	}
	if !validLogLevels[strings.ToLower(c.LogLevel)] {
		errs = append(errs, fmt.Sprintf("unknown log_level %q (valid: debug, info, warn, error)", c.LogLevel))
	}
	if c.Pair == "" {
		errs = append(errs, "pair must not be empty")
	}
	if c.BandsFile == "" {
		errs = append(errs, "bands_file must not be empty")
	}
	if c.PriceFeed == "" {
		errs = append(errs, "price_feed must not be empty")
	}

	needsWallet := c.Mode == "keep" || c.Mode == "once" || c.Mode == "drain"
	if needsWallet && c.Exchange.Kind != "mock" {
		if c.Wallet.PrivateKey == "" && c.Wallet.EncryptedKeyPath == "" {
			errs = append(errs, "wallet: either private_key or encrypted_key_path must be set for mode "+c.Mode)
		}
		if c.Wallet.EncryptedKeyPath != "" && c.Wallet.KeyPassword == "" {
			errs = append(errs, "wallet: key_password is required when encrypted_key_path is set")
		}
	}

	if !validExchangeKinds[strings.ToLower(c.Exchange.Kind)] {
		errs = append(errs, fmt.Sprintf("exchange: unknown kind %q (valid: onchain, mock)", c.Exchange.Kind))
	}
	if c.Exchange.Kind == "onchain" {
		if c.Chain.RPCURL == "" {
			errs = append(errs, "chain: rpc_url must be set for an onchain exchange")
		}
		if c.Exchange.MarketAddress == "" {
			errs = append(errs, "exchange: market_address must be set for an onchain exchange")
		}
		if c.Exchange.BaseToken == "" || c.Exchange.QuoteToken == "" {
			errs = append(errs, "exchange: base_token and quote_token must be set for an onchain exchange")
		}
		if !validGasStrategies[strings.ToLower(c.Chain.GasStrategy)] {
			errs = append(errs, fmt.Sprintf("chain: unknown gas_strategy %q (valid: fixed, node, etherscan)", c.Chain.GasStrategy))
		}
	}

	if c.Redis.Addr == "" {
		errs = append(errs, "redis: addr must not be empty")
	}
	if c.Redis.PoolSize < 1 {
		errs = append(errs, "redis: pool_size must be >= 1")
	}

	if c.S3.Endpoint == "" {
		errs = append(errs, "s3: endpoint must not be empty")
	}
	if c.S3.Bucket == "" {
		errs = append(errs, "s3: bucket must not be empty")
	}

	if strings.TrimSpace(c.Postgres.DSN) == "" {
		if c.Postgres.Host == "" {
			errs = append(errs, "postgres: host must not be empty (or set postgres.dsn)")
		}
		if c.Postgres.Port <= 0 || c.Postgres.Port > 65535 {
			errs = append(errs, fmt.Sprintf("postgres: port must be 1-65535, got %d", c.Postgres.Port))
		}
	}
	if c.Postgres.PoolMaxConns < 1 {
		errs = append(errs, "postgres: pool_max_conns must be >= 1")
	}
	if c.Postgres.PoolMinConns > c.Postgres.PoolMaxConns {
		errs = append(errs, "postgres: pool_min_conns must not exceed pool_max_conns")
	}

	if c.Control.MaxConcurrent < 1 {
		errs = append(errs, "control: max_concurrent must be >= 1")
	}
	if c.Control.CycleInterval.Duration <= 0 {
		errs = append(errs, "control: cycle_interval must be > 0")
	}
	if c.Control.MinBaseBalance < 0 {
		errs = append(errs, "control: min_base_balance must be >= 0")
	}
	if c.Control.MinQuoteBalance < 0 {
		errs = append(errs, "control: min_quote_balance must be >= 0")
	}

	if c.Server.Enabled {
		if c.Server.Port <= 0 || c.Server.Port > 65535 {
			errs = append(errs, fmt.Sprintf("server: port must be 1-65535, got %d", c.Server.Port))
		}
	}

	if len(errs) > 0 {
		return fmt.Errorf("config validation failed:\n  - %s", strings.Join(errs, "\n  - "))
	}
	return nil
}
