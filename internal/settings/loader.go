package settings

import (
	"os"
	"strconv"
	"strings"
	"time"

	"github.com/BurntSushi/toml"
	"github.com/joho/godotenv"
)

// Load reads a TOML configuration file at path, merges it on top of the
// built-in defaults, applies KEEPER_* environment variable overrides, and
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

// applyEnvOverrides reads well-known KEEPER_* environment variables and
// overwrites the corresponding Config fields when a variable is set (i.e.
// not empty). This lets operators inject secrets at deploy time without
// touching the TOML file.
func applyEnvOverrides(cfg *Config) {
	setStr(&cfg.Pair, "KEEPER_PAIR")
	setStr(&cfg.BandsFile, "KEEPER_BANDS_FILE")
	setStr(&cfg.PriceFeed, "KEEPER_PRICE_FEED")

	// ── Wallet ──
	setStr(&cfg.Wallet.PrivateKey, "KEEPER_WALLET_PRIVATE_KEY")
	setStr(&cfg.Wallet.EncryptedKeyPath, "KEEPER_WALLET_ENCRYPTED_KEY_PATH")
	setStr(&cfg.Wallet.KeyPassword, "KEEPER_WALLET_KEY_PASSWORD")

	// ── Exchange ──
	setStr(&cfg.Exchange.Kind, "KEEPER_EXCHANGE_KIND")
	setStr(&cfg.Exchange.MarketAddress, "KEEPER_EXCHANGE_MARKET_ADDRESS")
	setStr(&cfg.Exchange.BaseToken, "KEEPER_EXCHANGE_BASE_TOKEN")
	setStr(&cfg.Exchange.QuoteToken, "KEEPER_EXCHANGE_QUOTE_TOKEN")
	setFloat64(&cfg.Exchange.BaseBalance, "KEEPER_EXCHANGE_MOCK_BASE_BALANCE")
	setFloat64(&cfg.Exchange.QuoteBalance, "KEEPER_EXCHANGE_MOCK_QUOTE_BALANCE")

	// ── Chain ──
	setStr(&cfg.Chain.RPCURL, "KEEPER_CHAIN_RPC_URL")
	setInt(&cfg.Chain.ChainID, "KEEPER_CHAIN_ID")
	setStr(&cfg.Chain.OracleAddress, "KEEPER_CHAIN_ORACLE_ADDRESS")
	setStr(&cfg.Chain.GasStrategy, "KEEPER_CHAIN_GAS_STRATEGY")
	setFloat64(&cfg.Chain.FixedGasGwei, "KEEPER_CHAIN_FIXED_GAS_GWEI")

	// ── Redis ──
	setStr(&cfg.Redis.Addr, "KEEPER_REDIS_ADDR")
	setStr(&cfg.Redis.Password, "KEEPER_REDIS_PASSWORD")
	setInt(&cfg.Redis.DB, "KEEPER_REDIS_DB")
	setInt(&cfg.Redis.PoolSize, "KEEPER_REDIS_POOL_SIZE")
	setInt(&cfg.Redis.MaxRetries, "KEEPER_REDIS_MAX_RETRIES")
	setBool(&cfg.Redis.TLSEnabled, "KEEPER_REDIS_TLS_ENABLED")

	// ── S3 ──
	setStr(&cfg.S3.Endpoint, "KEEPER_S3_ENDPOINT")
	setStr(&cfg.S3.Region, "KEEPER_S3_REGION")
	setStr(&cfg.S3.Bucket, "KEEPER_S3_BUCKET")
	setStr(&cfg.S3.AccessKey, "KEEPER_S3_ACCESS_KEY")
	setStr(&cfg.S3.SecretKey, "KEEPER_S3_SECRET_KEY")
	setBool(&cfg.S3.UseSSL, "KEEPER_S3_USE_SSL")
	setBool(&cfg.S3.ForcePathStyle, "KEEPER_S3_FORCE_PATH_STYLE")

	// ── Postgres ──
	setStr(&cfg.Postgres.DSN, "KEEPER_POSTGRES_DSN")
	setStr(&cfg.Postgres.Host, "KEEPER_POSTGRES_HOST")
	setInt(&cfg.Postgres.Port, "KEEPER_POSTGRES_PORT")
	setStr(&cfg.Postgres.Database, "KEEPER_POSTGRES_DATABASE")
	setStr(&cfg.Postgres.User, "KEEPER_POSTGRES_USER")
	setStr(&cfg.Postgres.Password, "KEEPER_POSTGRES_PASSWORD")
	setStr(&cfg.Postgres.SSLMode, "KEEPER_POSTGRES_SSLMODE")
	setInt(&cfg.Postgres.PoolMaxConns, "KEEPER_POSTGRES_POOL_MAX_CONNS")
	setInt(&cfg.Postgres.PoolMinConns, "KEEPER_POSTGRES_POOL_MIN_CONNS")
	setBool(&cfg.Postgres.RunMigrations, "KEEPER_POSTGRES_RUN_MIGRATIONS")

	// ── Control ──
	setDuration(&cfg.Control.CycleInterval, "KEEPER_CONTROL_CYCLE_INTERVAL")
	setInt(&cfg.Control.MaxConcurrent, "KEEPER_CONTROL_MAX_CONCURRENT")
	setDuration(&cfg.Control.LockTTL, "KEEPER_CONTROL_LOCK_TTL")
	setInt(&cfg.Control.OrderAgeMaxCycle, "KEEPER_CONTROL_ORDER_AGE_MAX_CYCLE")
	setDuration(&cfg.Control.ArchiveRetention, "KEEPER_CONTROL_ARCHIVE_RETENTION")
	setDuration(&cfg.Control.ConfigPollInterval, "KEEPER_CONTROL_CONFIG_POLL_INTERVAL")
	setFloat64(&cfg.Control.MinBaseBalance, "KEEPER_CONTROL_MIN_BASE_BALANCE")
	setFloat64(&cfg.Control.MinQuoteBalance, "KEEPER_CONTROL_MIN_QUOTE_BALANCE")

	// ── Server ──
	setBool(&cfg.Server.Enabled, "KEEPER_SERVER_ENABLED")
	setInt(&cfg.Server.Port, "KEEPER_SERVER_PORT")
	setStringSlice(&cfg.Server.CORSOrigins, "KEEPER_SERVER_CORS_ORIGINS")

	// ── Notify ──
	setStr(&cfg.Notify.TelegramToken, "KEEPER_NOTIFY_TELEGRAM_TOKEN")
	setStr(&cfg.Notify.TelegramChatID, "KEEPER_NOTIFY_TELEGRAM_CHAT_ID")
	setStr(&cfg.Notify.DiscordWebhookURL, "KEEPER_NOTIFY_DISCORD_WEBHOOK_URL")
	setStringSlice(&cfg.Notify.Events, "KEEPER_NOTIFY_EVENTS")

	// ── Reporting ──
	setStr(&cfg.Reporting.URL, "KEEPER_REPORTING_URL")

	// ── Top-level ──
	setStr(&cfg.Mode, "KEEPER_MODE")
	setStr(&cfg.LogLevel, "KEEPER_LOG_LEVEL")
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
