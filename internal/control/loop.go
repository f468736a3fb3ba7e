// Package control runs the keeper's main cycle loop: starting, running,
// draining, and stopped, fetching the reference price and order book each
// cycle, asking bandengine for a decision, and dispatching cancels (always
// before places) through the exchange adapter.
package control

import (
	"context"
	"fmt"
	"log/slog"
	"strconv"
	"sync/atomic"
	"time"

	"github.com/yanun0323/decimal"
	"golang.org/x/sync/errgroup"

	"github.com/makerdao/market-maker-keeper/internal/bandengine"
	"github.com/makerdao/market-maker-keeper/internal/clock"
	"github.com/makerdao/market-maker-keeper/internal/config"
	"github.com/makerdao/market-maker-keeper/internal/domain"
	"github.com/makerdao/market-maker-keeper/internal/limits"
	"github.com/makerdao/market-maker-keeper/internal/notify"
	"github.com/makerdao/market-maker-keeper/internal/orderbook"
	"github.com/makerdao/market-maker-keeper/internal/pricefeed"
)

// Loop owns one pair's lifecycle: it polls the price feed and the exchange's
// order book once per cycle, asks an Engine what to do, and dispatches the
// resulting cancels and places.
type Loop struct {
	pair     string
	exchange domain.Exchange
	feed     pricefeed.Feed
	engine   *bandengine.Engine
	view     *orderbook.View

	buyLimits  *limits.Limits
	sellLimits *limits.Limits

	// bandsCfg, when set, is the hot-reloadable bands document backing
	// engine/buyLimits/sellLimits. A background task polls it on its own
	// cadence; refreshBands, called from runCycle's own goroutine, observes
	// its latest snapshot and swaps it into the engine and limiters.
	bandsCfg           *config.Reloadable
	configPollInterval time.Duration

	minBaseBalance  decimal.Decimal
	minQuoteBalance decimal.Decimal

	cycleInterval time.Duration
	maxConcurrent int

	lockMgr    domain.LockManager
	lockTTL    time.Duration
	priceCache domain.PriceCache

	eventStore domain.OrderEventStore
	archiver   domain.Archiver
	reporter   CycleReporter
	notifier   *notify.Notifier

	clock  clock.Clock
	logger *slog.Logger

	state atomic.Value // State
}

// CycleReporter posts a completed cycle's report somewhere outside the
// core, e.g. an operator-configured HTTP endpoint. It is deliberately
// separate from domain.Archiver: archival is cold storage, reporting is a
// live push, and a keeper may want either, both, or neither.
type CycleReporter interface {
	ReportCycle(ctx context.Context, report domain.CycleReport) error
}

// Config bundles the dependencies needed to build a Loop.
type Config struct {
	Pair          string
	Exchange      domain.Exchange
	Feed          pricefeed.Feed
	Engine        *bandengine.Engine
	View          *orderbook.View
	BuyLimits     *limits.Limits
	SellLimits    *limits.Limits
	CycleInterval time.Duration
	MaxConcurrent int
	LockManager   domain.LockManager
	LockTTL       time.Duration
	PriceCache    domain.PriceCache
	EventStore    domain.OrderEventStore
	Archiver      domain.Archiver
	Reporter      CycleReporter
	Notifier      *notify.Notifier
	Clock         clock.Clock
	Logger        *slog.Logger

	// Bands, when set, makes the loop track live edits to the bands
	// document: a background task polls it every ConfigPollInterval and
	// runCycle swaps in whatever snapshot it last produced. Engine,
	// BuyLimits and SellLimits above seed the loop's initial state and are
	// superseded by Bands's snapshots once the watcher starts.
	Bands              *config.Reloadable
	ConfigPollInterval time.Duration

	// MinBaseBalance and MinQuoteBalance are safety floors: Run aborts
	// before transitioning to running if either is breached at startup,
	// and runCycle drains and stops the loop if either is breached mid-run.
	// A zero value disables the check for that side.
	MinBaseBalance  decimal.Decimal
	MinQuoteBalance decimal.Decimal
}

// New builds a Loop from cfg, filling in reasonable defaults for anything
// left zero.
func New(cfg Config) *Loop {
	if cfg.CycleInterval == 0 {
		cfg.CycleInterval = 10 * time.Second
	}
	if cfg.MaxConcurrent == 0 {
		cfg.MaxConcurrent = 4
	}
	if cfg.LockTTL == 0 {
		cfg.LockTTL = 30 * time.Second
	}
	if cfg.Clock == nil {
		cfg.Clock = clock.Real{}
	}
	if cfg.ConfigPollInterval == 0 {
		cfg.ConfigPollInterval = cfg.CycleInterval
	}

	l := &Loop{
		pair:               cfg.Pair,
		exchange:           cfg.Exchange,
		feed:               cfg.Feed,
		engine:             cfg.Engine,
		view:               cfg.View,
		buyLimits:          cfg.BuyLimits,
		sellLimits:         cfg.SellLimits,
		bandsCfg:           cfg.Bands,
		configPollInterval: cfg.ConfigPollInterval,
		minBaseBalance:     cfg.MinBaseBalance,
		minQuoteBalance:    cfg.MinQuoteBalance,
		cycleInterval:      cfg.CycleInterval,
		maxConcurrent:      cfg.MaxConcurrent,
		lockMgr:            cfg.LockManager,
		lockTTL:            cfg.LockTTL,
		priceCache:         cfg.PriceCache,
		eventStore:         cfg.EventStore,
		archiver:           cfg.Archiver,
		reporter:           cfg.Reporter,
		notifier:           cfg.Notifier,
		clock:              cfg.Clock,
		logger:             cfg.Logger.With(slog.String("component", "control"), slog.String("pair", cfg.Pair)),
	}
	l.setState(StateStarting)
	return l
}

func (l *Loop) setState(s State) { l.state.Store(s) }

// State returns the loop's current lifecycle state.
func (l *Loop) State() State {
	s, _ := l.state.Load().(State)
	if s == "" {
		return StateStarting
	}
	return s
}

// Pair returns the trading pair this loop is quoting.
func (l *Loop) Pair() string { return l.pair }

// Run blocks running cycles until ctx is cancelled, then drains by
// cancelling every resting order before returning. It refuses to start if
// the pre-start balance breaches a configured safety floor, and it drains
// and stops on its own, mid-run, if a cycle's fetched balance breaches one.
func (l *Loop) Run(ctx context.Context) error {
	if l.lockMgr != nil {
		unlock, err := l.lockMgr.Acquire(ctx, "keeper:"+l.pair, l.lockTTL)
		if err != nil {
			return fmt.Errorf("control: acquire lock for %s: %w", l.pair, err)
		}
		defer unlock()
	}

	if err := l.checkStartupSafety(ctx); err != nil {
		l.logger.Error("unsafe to start", slog.String("error", err.Error()))
		return err
	}

	l.setState(StateRunning)
	l.logger.Info("keeper running")
	l.notify(ctx, "keeper_running", "keeper started", fmt.Sprintf("pair=%s", l.pair))

	if l.bandsCfg != nil {
		go l.watchConfig(ctx)
	}

	ticker := time.NewTicker(l.cycleInterval)
	defer ticker.Stop()

	if l.runCycle(ctx) {
		l.drainForSafety(ctx)
		return domain.NewError(domain.ErrKindSafety, l.pair, domain.ErrUnsafeBalance)
	}

	for {
		select {
		case <-ctx.Done():
			l.drain()
			return ctx.Err()
		case <-ticker.C:
			if l.runCycle(ctx) {
				l.drainForSafety(ctx)
				return domain.NewError(domain.ErrKindSafety, l.pair, domain.ErrUnsafeBalance)
			}
		}
	}
}

// checkStartupSafety aborts startup with an "unsafe to start" error if
// either configured balance floor is already breached. It is a no-op when
// neither floor is configured.
func (l *Loop) checkStartupSafety(ctx context.Context) error {
	if !l.minBaseBalance.IsPositive() && !l.minQuoteBalance.IsPositive() {
		return nil
	}
	base, quote, err := l.exchange.GetBalances(ctx)
	if err != nil {
		return domain.NewError(domain.ErrKindExchange, l.pair, fmt.Errorf("fetch balances for startup safety check: %w", err))
	}
	if l.balanceUnsafe(base, quote) {
		return domain.NewError(domain.ErrKindSafety, l.pair, fmt.Errorf("%w: base=%s quote=%s (floors base=%s quote=%s)",
			domain.ErrUnsafeBalance, base, quote, l.minBaseBalance, l.minQuoteBalance))
	}
	return nil
}

// balanceUnsafe reports whether base or quote falls below its configured
// floor. A zero floor disables the check for that side.
func (l *Loop) balanceUnsafe(base, quote decimal.Decimal) bool {
	if l.minBaseBalance.IsPositive() && base.LessThan(l.minBaseBalance) {
		return true
	}
	if l.minQuoteBalance.IsPositive() && quote.LessThan(l.minQuoteBalance) {
		return true
	}
	return false
}

// watchConfig polls bandsCfg on its own cadence, independent of the cycle
// loop, until ctx is cancelled. runCycle observes whatever snapshot it last
// produced via refreshBands; the two never block on each other.
func (l *Loop) watchConfig(ctx context.Context) {
	ticker := time.NewTicker(l.configPollInterval)
	defer ticker.Stop()
	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			if err := l.bandsCfg.Poll(); err != nil {
				l.logger.Warn("bands document poll failed, keeping previous configuration", slog.String("error", err.Error()))
			}
		}
	}
}

// refreshBands swaps the engine's band configuration and the loop's rate
// limiters for bandsCfg's latest snapshot. It is only ever called from
// runCycle's goroutine, so no locking is needed on the engine/limiter
// fields themselves.
func (l *Loop) refreshBands() {
	l.engine.SetBands(l.bandsCfg.BandSet())
	l.buyLimits, l.sellLimits = l.bandsCfg.Limits()
}

// RunOnce executes exactly one cycle and returns, without acquiring the
// startup lock or looping. It is used by the CLI's "once" mode for dry-run
// testing against a live exchange adapter.
func (l *Loop) RunOnce(ctx context.Context) {
	l.setState(StateRunning)
	l.runCycle(ctx)
	l.setState(StateStopped)
}

// DrainNow cancels every order currently resting on the exchange and
// returns, without running any cycles first. It is used by the CLI's
// "drain" mode to empty a pair's book independently of whether a control
// loop is actually running.
func (l *Loop) DrainNow(ctx context.Context) error {
	l.setState(StateDraining)
	l.logger.Info("draining: cancelling all orders")
	l.notify(ctx, "keeper_draining", "keeper draining", fmt.Sprintf("pair=%s", l.pair))

	snap, err := l.exchange.GetOrders(ctx)
	if err != nil {
		return fmt.Errorf("control: drain %s: fetch orders: %w", l.pair, err)
	}

	l.dispatchCancels(ctx, snap.Orders)

	l.setState(StateStopped)
	l.notify(ctx, "keeper_stopped", "keeper stopped", fmt.Sprintf("pair=%s", l.pair))
	return nil
}

// runCycle executes one full fetch/decide/dispatch pass, logging on
// failure rather than propagating the error, since a single
// bad cycle should not bring the keeper down. It returns true if this
// cycle's balances breached a configured safety floor, in which case the
// caller must drain and stop the loop.
func (l *Loop) runCycle(ctx context.Context) (safetyBreached bool) {
	started := l.clock.Now()

	if l.bandsCfg != nil {
		l.refreshBands()
	}

	price, err := l.feed.Price(ctx)
	if err != nil {
		l.logger.Warn("price feed unavailable, skipping cycle", slog.String("error", err.Error()))
		return false
	}

	snap, err := l.exchange.GetOrders(ctx)
	if err != nil {
		l.logger.Error("failed to fetch order book, skipping cycle", slog.String("error", err.Error()))
		return false
	}
	l.view.UpdateSnapshot(snap)

	baseBalance, quoteBalance, err := l.exchange.GetBalances(ctx)
	if err != nil {
		l.logger.Error("failed to fetch balances, skipping cycle", slog.String("error", err.Error()))
		return false
	}

	if l.balanceUnsafe(baseBalance, quoteBalance) {
		l.logger.Warn("safety floor breached",
			slog.String("base", baseBalance.String()), slog.String("quote", quoteBalance.String()))
		return true
	}

	referencePrice := price.Mid()
	if l.priceCache != nil {
		if priceFloat, convErr := strconv.ParseFloat(referencePrice.String(), 64); convErr == nil {
			if err := l.priceCache.SetPrice(ctx, l.pair, priceFloat, started); err != nil {
				l.logger.Debug("failed to publish reference price to cache", slog.String("error", err.Error()))
			}
		}
	}

	decision := l.engine.Synthesize(bandengine.Inputs{
		Book:           l.view.EffectiveBook(),
		ReferencePrice: referencePrice,
		BaseBalance:    baseBalance,
		QuoteBalance:   quoteBalance,
		BuyLimits:      l.buyLimits,
		SellLimits:     l.sellLimits,
		Now:            l.clock.Now(),
	})

	report := domain.CycleReport{
		Pair:           l.pair,
		StartedAt:      started,
		ReferencePrice: referencePrice.String(),
	}

	// Cancellation always runs to completion before any placement, so a
	// band is never briefly over its cap while its replacement order is
	// already resting.
	report.CancelCount, report.FailureCount = l.dispatchCancels(ctx, decision.Cancel)
	placed, failed := l.dispatchPlaces(ctx, decision.Place)
	report.PlaceCount = placed
	report.FailureCount += failed

	report.FinishedAt = l.clock.Now()
	if l.archiver != nil {
		if err := l.archiver.ArchiveCycleReport(ctx, report); err != nil {
			l.logger.Warn("failed to archive cycle report", slog.String("error", err.Error()))
		}
	}
	if l.reporter != nil {
		if err := l.reporter.ReportCycle(ctx, report); err != nil {
			l.logger.Warn("failed to post cycle report", slog.String("error", err.Error()))
		}
	}
	return false
}

func (l *Loop) dispatchCancels(ctx context.Context, orders []domain.Order) (succeeded, failed int) {
	if len(orders) == 0 {
		return 0, 0
	}
	g, gctx := errgroup.WithContext(ctx)
	g.SetLimit(l.maxConcurrent)

	var ok, bad atomic.Int64
	for _, o := range orders {
		o := o
		g.Go(func() error {
			if err := l.exchange.CancelOrder(gctx, o.ID); err != nil {
				l.logger.Warn("cancel order failed",
					slog.String("order_id", o.ID), slog.String("error", err.Error()))
				l.logEvent(ctx, o.Pair, o.ID, "cancel_failed", o.Side, o.Price, o.Amount, err.Error())
				bad.Add(1)
				return nil
			}
			l.view.RecordCancelled(o.ID)
			l.logEvent(ctx, o.Pair, o.ID, "cancelled", o.Side, o.Price, o.Amount, "")
			ok.Add(1)
			return nil
		})
	}
	_ = g.Wait()
	return int(ok.Load()), int(bad.Load())
}

func (l *Loop) dispatchPlaces(ctx context.Context, intents []domain.NewOrderIntent) (succeeded, failed int) {
	if len(intents) == 0 {
		return 0, 0
	}
	g, gctx := errgroup.WithContext(ctx)
	g.SetLimit(l.maxConcurrent)

	var ok, bad atomic.Int64
	for _, intent := range intents {
		intent := intent
		g.Go(func() error {
			intent.Pair = l.pair
			res, err := l.exchange.PlaceOrder(gctx, intent)
			if err != nil || !res.Success {
				msg := ""
				if err != nil {
					msg = err.Error()
				} else {
					msg = res.Message
				}
				l.logger.Warn("place order failed",
					slog.String("side", string(intent.Side)), slog.String("error", msg))
				l.logEvent(ctx, l.pair, res.OrderID, "place_failed", intent.Side, intent.Price, intent.Amount, msg)
				bad.Add(1)
				return nil
			}

			order := domain.Order{
				ID:        res.OrderID,
				Pair:      l.pair,
				Side:      intent.Side,
				Price:     intent.Price,
				Amount:    intent.Amount,
				Remaining: intent.Amount,
				Status:    domain.OrderStatusOpen,
				CreatedAt: l.clock.Now(),
			}
			l.view.RecordPlaced(order)

			if l.buyLimits != nil && intent.Side == domain.OrderSideBuy {
				l.buyLimits.UseLimit(intent.Money(), l.clock.Now())
			}
			if l.sellLimits != nil && intent.Side == domain.OrderSideSell {
				l.sellLimits.UseLimit(intent.Amount, l.clock.Now())
			}

			l.logEvent(ctx, l.pair, res.OrderID, "placed", intent.Side, intent.Price, intent.Amount, "")
			ok.Add(1)
			return nil
		})
	}
	_ = g.Wait()
	return int(ok.Load()), int(bad.Load())
}

func (l *Loop) logEvent(ctx context.Context, pair, orderID, kind string, side domain.OrderSide, price, amount decimal.Decimal, detail string) {
	if l.eventStore == nil {
		return
	}
	ev := domain.OrderEvent{
		Pair:      pair,
		OrderID:   orderID,
		Kind:      kind,
		Side:      side,
		Price:     price.String(),
		Amount:    amount.String(),
		Detail:    detail,
		CreatedAt: l.clock.Now(),
	}
	if err := l.eventStore.Log(ctx, ev); err != nil {
		l.logger.Debug("failed to log order event", slog.String("error", err.Error()))
	}
}

// drain cancels every order currently resting, used on shutdown so the
// keeper never leaves quotes live after the process exits.
func (l *Loop) drain() {
	l.drainWithReason(context.Background(), "keeper_draining", "keeper draining")
}

// drainForSafety is drain's counterpart for a safety-floor breach: same
// cancel-all, distinct notify event so operators can tell the two apart.
func (l *Loop) drainForSafety(ctx context.Context) {
	l.drainWithReason(ctx, "safety_floor_breached", "keeper draining: safety floor breached")
}

func (l *Loop) drainWithReason(ctx context.Context, event, title string) {
	l.setState(StateDraining)
	l.logger.Info(title)
	l.notify(ctx, event, title, fmt.Sprintf("pair=%s", l.pair))

	drainCtx, cancel := context.WithTimeout(context.Background(), 30*time.Second)
	defer cancel()

	book := l.view.EffectiveBook()
	l.dispatchCancels(drainCtx, book.Orders)

	l.setState(StateStopped)
	l.notify(drainCtx, "keeper_stopped", "keeper stopped", fmt.Sprintf("pair=%s", l.pair))
}

func (l *Loop) notify(ctx context.Context, event, title, message string) {
	if l.notifier == nil {
		return
	}
	if err := l.notifier.Notify(ctx, event, title, message); err != nil {
		l.logger.Debug("notify failed", slog.String("error", err.Error()))
	}
}
