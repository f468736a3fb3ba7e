package control

import (
	"context"
	"io"
	"log/slog"
	"os"
	"path/filepath"
	"sync/atomic"
	"testing"
	"time"

	"github.com/yanun0323/decimal"

	"github.com/makerdao/market-maker-keeper/internal/bandengine"
	"github.com/makerdao/market-maker-keeper/internal/bands"
	"github.com/makerdao/market-maker-keeper/internal/clock"
	"github.com/makerdao/market-maker-keeper/internal/config"
	"github.com/makerdao/market-maker-keeper/internal/domain"
	"github.com/makerdao/market-maker-keeper/internal/exchange/mock"
	"github.com/makerdao/market-maker-keeper/internal/orderbook"
	"github.com/makerdao/market-maker-keeper/internal/pricefeed"
)

func discardLogger() *slog.Logger {
	return slog.New(slog.NewTextHandler(io.Discard, nil))
}

func testBandSet() bands.BandSet {
	return bands.BandSet{
		Buy: []bands.BuyBand{
			{bands.Band{
				MinMargin: decimal.NewFromFloat(0.01), AvgMargin: decimal.NewFromFloat(0.02), MaxMargin: decimal.NewFromFloat(0.03),
				MinAmount: decimal.NewFromInt(1), AvgAmount: decimal.NewFromInt(5), MaxAmount: decimal.NewFromInt(10),
			}},
		},
		Sell: []bands.SellBand{
			{bands.Band{
				MinMargin: decimal.NewFromFloat(0.01), AvgMargin: decimal.NewFromFloat(0.02), MaxMargin: decimal.NewFromFloat(0.03),
				MinAmount: decimal.NewFromInt(1), AvgAmount: decimal.NewFromInt(5), MaxAmount: decimal.NewFromInt(10),
			}},
		},
	}
}

func newTestLoop(t *testing.T, exchange domain.Exchange, fakeClock clock.Clock) *Loop {
	t.Helper()
	feed := pricefeed.NewFixedFeed(pricefeed.Price{
		Buy: decimal.NewFromInt(100), Sell: decimal.NewFromInt(100), At: fakeClock.Now(),
	}, fakeClock)

	return New(Config{
		Pair:          "WETH-USDC",
		Exchange:      exchange,
		Feed:          feed,
		Engine:        bandengine.New(testBandSet(), discardLogger()),
		View:          orderbook.NewView(10),
		CycleInterval: time.Hour,
		MaxConcurrent: 2,
		Clock:         fakeClock,
		Logger:        discardLogger(),
	})
}

func TestRunOnceTransitionsToStopped(t *testing.T) {
	fakeClock := clock.NewFake(time.Unix(1_700_000_000, 0))
	exchange := mock.New(mock.Config{
		Pair: "WETH-USDC", BaseBalance: decimal.NewFromInt(100), QuoteBalance: decimal.NewFromInt(10000), Clock: fakeClock,
	})
	loop := newTestLoop(t, exchange, fakeClock)

	if loop.State() != StateStarting {
		t.Fatalf("initial state = %s, want starting", loop.State())
	}

	loop.RunOnce(context.Background())

	if loop.State() != StateStopped {
		t.Fatalf("state after RunOnce = %s, want stopped", loop.State())
	}

	snap, err := exchange.GetOrders(context.Background())
	if err != nil {
		t.Fatalf("GetOrders: %v", err)
	}
	if len(snap.Orders) == 0 {
		t.Fatalf("expected RunOnce to have placed at least one order, got none")
	}
}

func TestDrainNowCancelsRestingOrders(t *testing.T) {
	fakeClock := clock.NewFake(time.Unix(1_700_000_000, 0))
	exchange := mock.New(mock.Config{
		Pair: "WETH-USDC", BaseBalance: decimal.NewFromInt(100), QuoteBalance: decimal.NewFromInt(10000), Clock: fakeClock,
	})
	loop := newTestLoop(t, exchange, fakeClock)

	// Seed one resting order directly through the exchange adapter, as if a
	// prior cycle had placed it.
	_, err := exchange.PlaceOrder(context.Background(), domain.NewOrderIntent{
		Pair: "WETH-USDC", Side: domain.OrderSideBuy, Price: decimal.NewFromInt(99), Amount: decimal.NewFromInt(1),
	})
	if err != nil {
		t.Fatalf("seed PlaceOrder: %v", err)
	}

	if err := loop.DrainNow(context.Background()); err != nil {
		t.Fatalf("DrainNow: %v", err)
	}

	if loop.State() != StateStopped {
		t.Fatalf("state after DrainNow = %s, want stopped", loop.State())
	}

	snap, err := exchange.GetOrders(context.Background())
	if err != nil {
		t.Fatalf("GetOrders: %v", err)
	}
	if len(snap.Orders) != 0 {
		t.Fatalf("GetOrders() after drain = %v, want none resting", snap.Orders)
	}
}

func TestRunOnceSkipsCycleWhenPriceFeedFails(t *testing.T) {
	fakeClock := clock.NewFake(time.Unix(1_700_000_000, 0))
	exchange := mock.New(mock.Config{
		Pair: "WETH-USDC", BaseBalance: decimal.NewFromInt(100), QuoteBalance: decimal.NewFromInt(10000), Clock: fakeClock,
	})

	loop := New(Config{
		Pair:          "WETH-USDC",
		Exchange:      exchange,
		Feed:          failingFeed{},
		Engine:        bandengine.New(testBandSet(), discardLogger()),
		View:          orderbook.NewView(10),
		CycleInterval: time.Hour,
		Clock:         fakeClock,
		Logger:        discardLogger(),
	})

	loop.RunOnce(context.Background())

	snap, err := exchange.GetOrders(context.Background())
	if err != nil {
		t.Fatalf("GetOrders: %v", err)
	}
	if len(snap.Orders) != 0 {
		t.Fatalf("GetOrders() = %v, want no orders placed when the price feed fails", snap.Orders)
	}
}

type failingFeed struct{}

func (failingFeed) Price(ctx context.Context) (pricefeed.Price, error) {
	return pricefeed.Price{}, domain.NewError(domain.ErrKindFeed, "test", errUnavailable)
}

var errUnavailable = &testErr{"price feed unavailable"}

type testErr struct{ msg string }

func (e *testErr) Error() string { return e.msg }

func TestRunAbortsWhenStartupBalanceBelowFloor(t *testing.T) {
	fakeClock := clock.NewFake(time.Unix(1_700_000_000, 0))
	exchange := mock.New(mock.Config{
		Pair: "WETH-USDC", BaseBalance: decimal.NewFromInt(1), QuoteBalance: decimal.NewFromInt(10), Clock: fakeClock,
	})
	feed := pricefeed.NewFixedFeed(pricefeed.Price{
		Buy: decimal.NewFromInt(100), Sell: decimal.NewFromInt(100), At: fakeClock.Now(),
	}, fakeClock)

	loop := New(Config{
		Pair:            "WETH-USDC",
		Exchange:        exchange,
		Feed:            feed,
		Engine:          bandengine.New(testBandSet(), discardLogger()),
		View:            orderbook.NewView(10),
		CycleInterval:   time.Hour,
		MinQuoteBalance: decimal.NewFromInt(10000),
		Clock:           fakeClock,
		Logger:          discardLogger(),
	})

	err := loop.Run(context.Background())
	if err == nil {
		t.Fatalf("Run() = nil, want an error for a startup balance below the configured floor")
	}
	if loop.State() != StateStarting {
		t.Fatalf("State() = %s, want starting since the loop never transitioned to running", loop.State())
	}
}

// balanceDroppingExchange wraps an exchange and, starting from the given
// call number, reports a quote balance of zero instead of the wrapped
// exchange's real balance. This simulates a balance floor breach appearing
// partway through a run without needing a live order fill to deplete funds.
type balanceDroppingExchange struct {
	domain.Exchange
	callsBeforeDrop int32
	calls           atomic.Int32
}

func (b *balanceDroppingExchange) GetBalances(ctx context.Context) (base, quote decimal.Decimal, err error) {
	n := b.calls.Add(1)
	base, quote, err = b.Exchange.GetBalances(ctx)
	if err != nil {
		return base, quote, err
	}
	if n > b.callsBeforeDrop {
		return base, decimal.Zero, nil
	}
	return base, quote, nil
}

func TestRunDrainsAndStopsWhenBalanceFloorBreachedMidRun(t *testing.T) {
	fakeClock := clock.NewFake(time.Unix(1_700_000_000, 0))
	underlying := mock.New(mock.Config{
		Pair: "WETH-USDC", BaseBalance: decimal.NewFromInt(100), QuoteBalance: decimal.NewFromInt(10000), Clock: fakeClock,
	})
	exchange := &balanceDroppingExchange{Exchange: underlying, callsBeforeDrop: 1}
	feed := pricefeed.NewFixedFeed(pricefeed.Price{
		Buy: decimal.NewFromInt(100), Sell: decimal.NewFromInt(100), At: fakeClock.Now(),
	}, fakeClock)

	loop := New(Config{
		Pair:            "WETH-USDC",
		Exchange:        exchange,
		Feed:            feed,
		Engine:          bandengine.New(testBandSet(), discardLogger()),
		View:            orderbook.NewView(10),
		CycleInterval:   time.Hour,
		MinQuoteBalance: decimal.NewFromInt(1),
		Clock:           fakeClock,
		Logger:          discardLogger(),
	})

	// The startup safety check is the exchange's first GetBalances call
	// (callsBeforeDrop=1, so it still sees the real balance); the first
	// cycle's call is the second and sees the dropped balance, breaching
	// the floor and draining the loop without Run blocking on ctx.Done.
	err := loop.Run(context.Background())
	if err == nil {
		t.Fatalf("Run() = nil, want a safety-floor error once the mid-run balance breaches the floor")
	}
	if loop.State() != StateStopped {
		t.Fatalf("State() = %s, want stopped after draining for a safety-floor breach", loop.State())
	}
}

func TestRunPicksUpLiveBandsReload(t *testing.T) {
	dir := t.TempDir()
	path := filepath.Join(dir, "bands.json")
	initial := `{
		"pair": "WETH-USDC",
		"buyBands": [{"minMargin": 0.01, "avgMargin": 0.02, "maxMargin": 0.03, "minAmount": 1, "avgAmount": 5, "maxAmount": 10}],
		"sellBands": [],
		"buyLimits": [],
		"sellLimits": []
	}`
	if err := os.WriteFile(path, []byte(initial), 0o644); err != nil {
		t.Fatalf("WriteFile: %v", err)
	}

	reloadable := config.NewReloadable(path, nil, discardLogger())
	if err := reloadable.Poll(); err != nil {
		t.Fatalf("initial Poll: %v", err)
	}

	fakeClock := clock.NewFake(time.Unix(1_700_000_000, 0))
	exchange := mock.New(mock.Config{
		Pair: "WETH-USDC", BaseBalance: decimal.NewFromInt(100), QuoteBalance: decimal.NewFromInt(10000), Clock: fakeClock,
	})
	feed := pricefeed.NewFixedFeed(pricefeed.Price{
		Buy: decimal.NewFromInt(100), Sell: decimal.NewFromInt(100), At: fakeClock.Now(),
	}, fakeClock)

	loop := New(Config{
		Pair:               "WETH-USDC",
		Exchange:           exchange,
		Feed:               feed,
		Engine:             bandengine.New(reloadable.BandSet(), discardLogger()),
		View:               orderbook.NewView(10),
		Bands:              reloadable,
		ConfigPollInterval: 10 * time.Millisecond,
		CycleInterval:      time.Hour,
		Clock:              fakeClock,
		Logger:             discardLogger(),
	})

	loop.RunOnce(context.Background())
	if n := len(loop.engine.Bands.Buy); n != 1 {
		t.Fatalf("buy bands before edit = %d, want 1", n)
	}

	updated := `{
		"pair": "WETH-USDC",
		"buyBands": [],
		"sellBands": [],
		"buyLimits": [],
		"sellLimits": []
	}`
	future := time.Now().Add(time.Minute)
	if err := os.WriteFile(path, []byte(updated), 0o644); err != nil {
		t.Fatalf("WriteFile: %v", err)
	}
	if err := os.Chtimes(path, future, future); err != nil {
		t.Fatalf("Chtimes: %v", err)
	}
	if err := reloadable.Poll(); err != nil {
		t.Fatalf("Poll after edit: %v", err)
	}

	loop.RunOnce(context.Background())
	if n := len(loop.engine.Bands.Buy); n != 0 {
		t.Fatalf("buy bands after edit = %d, want 0 (edit not picked up by runCycle)", n)
	}
}
