// Package app is the composition root: it wires the keeper's concrete
// infrastructure (exchange adapter, price feed, bands document, stores,
// caches, blob archival, notifications, HTTP surface) from validated
// settings and dispatches into one of the CLI's operating modes.
package app

import (
	"context"
	"fmt"
	"log/slog"
	"math/big"
	"time"

	ethereum "github.com/ethereum/go-ethereum"
	"github.com/ethereum/go-ethereum/common"
	"github.com/ethereum/go-ethereum/ethclient"
	"github.com/yanun0323/decimal"

	s3blob "github.com/makerdao/market-maker-keeper/internal/blob/s3"
	"github.com/makerdao/market-maker-keeper/internal/cache/redis"
	"github.com/makerdao/market-maker-keeper/internal/clock"
	"github.com/makerdao/market-maker-keeper/internal/config"
	"github.com/makerdao/market-maker-keeper/internal/control"
	"github.com/makerdao/market-maker-keeper/internal/domain"
	"github.com/makerdao/market-maker-keeper/internal/exchange/mock"
	"github.com/makerdao/market-maker-keeper/internal/exchange/onchain"
	"github.com/makerdao/market-maker-keeper/internal/notify"
	"github.com/makerdao/market-maker-keeper/internal/pricefeed"
	"github.com/makerdao/market-maker-keeper/internal/reporting"
	"github.com/makerdao/market-maker-keeper/internal/settings"
	"github.com/makerdao/market-maker-keeper/internal/store/postgres"
	"github.com/makerdao/market-maker-keeper/internal/walletkey"
)

// Dependencies bundles every concrete implementation the control loop and
// HTTP server need. It is constructed by Wire and torn down by the returned
// cleanup function.
type Dependencies struct {
	Exchange   domain.Exchange
	Feed       pricefeed.Feed
	Bands      *config.Reloadable
	LockMgr    domain.LockManager
	PriceCache domain.PriceCache
	EventStore domain.OrderEventStore
	Archiver   domain.Archiver
	Reporter   control.CycleReporter
	Notifier   *notify.Notifier
}

// ethChainClient adapts an *ethclient.Client to the narrower ChainReader/
// ChainClient/GasPriceReader interfaces that internal/pricefeed and
// internal/exchange/onchain depend on, so neither package needs to import
// ethclient directly.
type ethChainClient struct {
	client *ethclient.Client
}

func (e *ethChainClient) CallContract(ctx context.Context, call ethereum.CallMsg, blockNumber *big.Int) ([]byte, error) {
	return e.client.CallContract(ctx, call, blockNumber)
}

// SendTransaction is unused by the current onchain.Adapter (order
// submission is a signed-payload stub pending a deployment-specific order
// book ABI, see internal/exchange/onchain/adapter.go), but is part of the
// ChainClient contract so a real submission path can be added later without
// changing the interface.
func (e *ethChainClient) SendTransaction(ctx context.Context, tx []byte) (common.Hash, error) {
	return common.Hash{}, fmt.Errorf("onchain: raw transaction submission not implemented")
}

func (e *ethChainClient) SuggestGasPriceWei(ctx context.Context) (decimal.Decimal, error) {
	price, err := e.client.SuggestGasPrice(ctx)
	if err != nil {
		return decimal.Zero, err
	}
	return decimal.NewFromString(price.String())
}

// Wire constructs all concrete dependencies from cfg and returns them
// together with a cleanup function that releases every acquired resource in
// reverse order.
func Wire(ctx context.Context, cfg *settings.Config, logger *slog.Logger) (*Dependencies, func(), error) {
	var closers []func()
	cleanup := func() {
		for i := len(closers) - 1; i >= 0; i-- {
			closers[i]()
		}
	}

	deps := &Dependencies{}
	realClock := clock.Real{}

	// --- Redis: startup lock + shared reference-price cache ---
	redisClient, err := redis.New(ctx, redis.ClientConfig{
		Addr:       cfg.Redis.Addr,
		Password:   cfg.Redis.Password,
		DB:         cfg.Redis.DB,
		PoolSize:   cfg.Redis.PoolSize,
		MaxRetries: cfg.Redis.MaxRetries,
		TLSEnabled: cfg.Redis.TLSEnabled,
	})
	if err != nil {
		cleanup()
		return nil, nil, fmt.Errorf("wire: redis: %w", err)
	}
	closers = append(closers, func() { _ = redisClient.Close() })
	deps.LockMgr = redis.NewLockManager(redisClient)
	deps.PriceCache = redis.NewPriceCache(redisClient)

	// --- Postgres: order-event audit log ---
	pgClient, err := postgres.New(ctx, postgres.ClientConfig{
		DSN:      cfg.Postgres.DSN,
		Host:     cfg.Postgres.Host,
		Port:     cfg.Postgres.Port,
		Database: cfg.Postgres.Database,
		User:     cfg.Postgres.User,
		Password: cfg.Postgres.Password,
		SSLMode:  cfg.Postgres.SSLMode,
		MaxConns: cfg.Postgres.PoolMaxConns,
		MinConns: cfg.Postgres.PoolMinConns,
	})
	if err != nil {
		cleanup()
		return nil, nil, fmt.Errorf("wire: postgres: %w", err)
	}
	closers = append(closers, pgClient.Close)
	if cfg.Postgres.RunMigrations {
		if err := pgClient.RunMigrations(ctx); err != nil {
			cleanup()
			return nil, nil, fmt.Errorf("wire: postgres migrations: %w", err)
		}
	}
	eventStore := postgres.NewOrderEventStore(pgClient.Pool())
	deps.EventStore = eventStore

	// --- S3: order-event archival + per-cycle report snapshots ---
	s3Client, err := s3blob.New(ctx, s3blob.ClientConfig{
		Endpoint:       cfg.S3.Endpoint,
		Region:         cfg.S3.Region,
		Bucket:         cfg.S3.Bucket,
		AccessKey:      cfg.S3.AccessKey,
		SecretKey:      cfg.S3.SecretKey,
		UseSSL:         cfg.S3.UseSSL,
		ForcePathStyle: cfg.S3.ForcePathStyle,
	})
	if err != nil {
		cleanup()
		return nil, nil, fmt.Errorf("wire: s3: %w", err)
	}
	closers = append(closers, func() { _ = s3Client.Close() })
	deps.Archiver = s3blob.NewArchiver(s3blob.NewWriter(s3Client), eventStore)

	// --- Optional HTTP cycle reporting ---
	if cfg.Reporting.URL != "" {
		deps.Reporter = reporting.NewHTTPReporter(cfg.Reporting.URL)
	}

	// --- Notifications ---
	var senders []notify.Sender
	if cfg.Notify.TelegramToken != "" && cfg.Notify.TelegramChatID != "" {
		senders = append(senders, notify.NewTelegramSender(cfg.Notify.TelegramToken, cfg.Notify.TelegramChatID))
	}
	if cfg.Notify.DiscordWebhookURL != "" {
		senders = append(senders, notify.NewDiscordSender(cfg.Notify.DiscordWebhookURL))
	}
	deps.Notifier = notify.NewNotifier(senders, cfg.Notify.Events, logger)

	// --- Chain client (onchain exchange and/or an oracle price feed leaf) ---
	var chain pricefeed.ChainReader
	if cfg.Exchange.Kind == "onchain" || usesOracleFeed(cfg.PriceFeed) {
		ethc, err := ethclient.DialContext(ctx, cfg.Chain.RPCURL)
		if err != nil {
			cleanup()
			return nil, nil, fmt.Errorf("wire: dial chain rpc: %w", err)
		}
		closers = append(closers, ethc.Close)
		chain = &ethChainClient{client: ethc}
	}

	// --- Price feed ---
	feed, err := pricefeed.NewFromSpec(cfg.PriceFeed, chain, realClock, logger)
	if err != nil {
		cleanup()
		return nil, nil, fmt.Errorf("wire: price feed: %w", err)
	}
	deps.Feed = feed

	// --- Exchange adapter ---
	switch cfg.Exchange.Kind {
	case "mock":
		deps.Exchange = mock.New(mock.Config{
			Pair:         cfg.Pair,
			BaseBalance:  decimal.NewFromFloat(cfg.Exchange.BaseBalance),
			QuoteBalance: decimal.NewFromFloat(cfg.Exchange.QuoteBalance),
			Latency:      50 * time.Millisecond,
			FailureRate:  0,
			Clock:        realClock,
		})
	case "onchain":
		keyHex, err := walletkey.LoadKey(walletkey.KeyConfig{
			RawPrivateKey:    cfg.Wallet.PrivateKey,
			EncryptedKeyPath: cfg.Wallet.EncryptedKeyPath,
			KeyPassword:      cfg.Wallet.KeyPassword,
		})
		if err != nil {
			cleanup()
			return nil, nil, fmt.Errorf("wire: load wallet key: %w", err)
		}
		signer, err := onchain.NewSigner(keyHex, cfg.Chain.ChainID)
		if err != nil {
			cleanup()
			return nil, nil, fmt.Errorf("wire: onchain signer: %w", err)
		}
		gas, err := buildGasStrategy(cfg, chain)
		if err != nil {
			cleanup()
			return nil, nil, fmt.Errorf("wire: gas strategy: %w", err)
		}
		ethc, err := ethclient.DialContext(ctx, cfg.Chain.RPCURL)
		if err != nil {
			cleanup()
			return nil, nil, fmt.Errorf("wire: dial chain rpc for exchange: %w", err)
		}
		closers = append(closers, ethc.Close)
		deps.Exchange = onchain.New(onchain.Config{
			Pair:          cfg.Pair,
			Client:        &ethChainClient{client: ethc},
			Signer:        signer,
			Gas:           gas,
			MarketAddress: common.HexToAddress(cfg.Exchange.MarketAddress),
			BaseToken:     common.HexToAddress(cfg.Exchange.BaseToken),
			QuoteToken:    common.HexToAddress(cfg.Exchange.QuoteToken),
			Clock:         realClock,
		})
	default:
		cleanup()
		return nil, nil, fmt.Errorf("wire: unknown exchange kind %q", cfg.Exchange.Kind)
	}

	// --- Bands document (hot-reloadable) ---
	deps.Bands = config.NewReloadable(cfg.BandsFile, nil, logger)
	if err := deps.Bands.Poll(); err != nil {
		cleanup()
		return nil, nil, fmt.Errorf("wire: load bands file: %w", err)
	}

	return deps, cleanup, nil
}

// usesOracleFeed reports whether spec references an oracle:// leaf, which
// needs a live chain client even when the exchange adapter itself doesn't.
func usesOracleFeed(spec string) bool {
	return containsSubstr(spec, "oracle://")
}

func containsSubstr(s, sub string) bool {
	for i := 0; i+len(sub) <= len(s); i++ {
		if s[i:i+len(sub)] == sub {
			return true
		}
	}
	return false
}

// buildGasStrategy selects a domain.GasStrategy from cfg.Chain.GasStrategy.
// "node" reads the suggested gas price from the connected chain client;
// "etherscan" has no wired API key anywhere in this keeper's settings, so it
// falls back to the increasing-by-step strategy rather than silently
// behaving like "fixed".
func buildGasStrategy(cfg *settings.Config, chain pricefeed.ChainReader) (domain.GasStrategy, error) {
	switch cfg.Chain.GasStrategy {
	case "fixed":
		return onchain.NewFixedGasStrategy(cfg.Chain.FixedGasGwei), nil
	case "node":
		reader, ok := chain.(onchain.GasPriceReader)
		if !ok {
			return nil, fmt.Errorf("gas strategy %q requires a chain client that supports gas price suggestions", cfg.Chain.GasStrategy)
		}
		return onchain.NewNodeGasStrategy(reader, 1.125, cfg.Chain.FixedGasGwei*4), nil
	case "etherscan":
		return onchain.NewIncreasingGasStrategy(cfg.Chain.FixedGasGwei, 5, cfg.Chain.FixedGasGwei*4), nil
	default:
		return nil, fmt.Errorf("unknown gas strategy %q", cfg.Chain.GasStrategy)
	}
}
