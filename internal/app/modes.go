package app

import (
	"context"
	"log/slog"
	"time"

	"github.com/yanun0323/decimal"
	"golang.org/x/sync/errgroup"

	"github.com/makerdao/market-maker-keeper/internal/bandengine"
	"github.com/makerdao/market-maker-keeper/internal/clock"
	"github.com/makerdao/market-maker-keeper/internal/control"
	"github.com/makerdao/market-maker-keeper/internal/orderbook"
	"github.com/makerdao/market-maker-keeper/internal/server"
	"github.com/makerdao/market-maker-keeper/internal/server/handler"
)

// newLoop builds a control.Loop from the wired Dependencies and the
// current bands document, shared by every mode that actually trades.
func (a *App) newLoop(deps *Dependencies) *control.Loop {
	bandSet := deps.Bands.BandSet()
	buyLimits, sellLimits := deps.Bands.Limits()

	return control.New(control.Config{
		Pair:               a.cfg.Pair,
		Exchange:           deps.Exchange,
		Feed:               deps.Feed,
		Engine:             bandengine.New(bandSet, a.logger),
		View:               orderbook.NewView(a.cfg.Control.OrderAgeMaxCycle),
		BuyLimits:          buyLimits,
		SellLimits:         sellLimits,
		Bands:              deps.Bands,
		ConfigPollInterval: a.cfg.Control.ConfigPollInterval.Duration,
		MinBaseBalance:     decimal.NewFromFloat(a.cfg.Control.MinBaseBalance),
		MinQuoteBalance:    decimal.NewFromFloat(a.cfg.Control.MinQuoteBalance),
		CycleInterval:      a.cfg.Control.CycleInterval.Duration,
		MaxConcurrent:      a.cfg.Control.MaxConcurrent,
		LockManager:        deps.LockMgr,
		LockTTL:            a.cfg.Control.LockTTL.Duration,
		PriceCache:         deps.PriceCache,
		EventStore:         deps.EventStore,
		Archiver:           deps.Archiver,
		Reporter:           deps.Reporter,
		Notifier:           deps.Notifier,
		Clock:              clock.Real{},
		Logger:             a.logger,
	})
}

// KeepMode runs the control loop forever, quoting the configured pair
// according to the bands document until the context is cancelled. It also
// starts the read-only HTTP operator surface when enabled.
func (a *App) KeepMode(ctx context.Context, deps *Dependencies) error {
	a.logger.InfoContext(ctx, "starting keep mode", slog.String("pair", a.cfg.Pair))

	loop := a.newLoop(deps)

	g, ctx := errgroup.WithContext(ctx)
	g.Go(func() error {
		return loop.Run(ctx)
	})

	if a.cfg.Server.Enabled {
		a.startHTTPServer(ctx, g, deps, loop)
	}

	if err := g.Wait(); err != nil && err != context.Canceled {
		return err
	}
	return nil
}

// OnceMode runs exactly one cycle against the live exchange adapter and
// returns, for dry-run testing of a bands document without leaving a
// process running.
func (a *App) OnceMode(ctx context.Context, deps *Dependencies) error {
	a.logger.InfoContext(ctx, "starting once mode", slog.String("pair", a.cfg.Pair))
	loop := a.newLoop(deps)
	loop.RunOnce(ctx)
	return nil
}

// DrainMode cancels every order resting on the exchange for the configured
// pair and returns, independent of whether a control loop is running
// elsewhere.
func (a *App) DrainMode(ctx context.Context, deps *Dependencies) error {
	a.logger.InfoContext(ctx, "starting drain mode", slog.String("pair", a.cfg.Pair))
	loop := a.newLoop(deps)
	return loop.DrainNow(ctx)
}

// ServerMode starts only the HTTP operator surface (health, status,
// events), without running a control loop. It is used to run the audit
// API alongside a keep-mode keeper process running elsewhere against the
// same stores.
func (a *App) ServerMode(ctx context.Context, deps *Dependencies) error {
	a.logger.InfoContext(ctx, "starting server mode")

	g, ctx := errgroup.WithContext(ctx)
	a.startHTTPServer(ctx, g, deps, nil)
	return g.Wait()
}

// startHTTPServer adds the read-only operator HTTP server to the given
// errgroup. loop may be nil (server mode runs without a control loop), in
// which case /status reports mode only.
func (a *App) startHTTPServer(ctx context.Context, g *errgroup.Group, deps *Dependencies, loop *control.Loop) {
	health := handler.NewHealthHandler(a.logger)
	status := handler.NewStatusHandler(a.cfg.Mode, loop)
	var events *handler.EventsHandler
	if deps.EventStore != nil {
		events = handler.NewEventsHandler(deps.EventStore, a.logger)
	}

	srv := server.NewServer(server.Config{
		Port:        a.cfg.Server.Port,
		CORSOrigins: a.cfg.Server.CORSOrigins,
	}, server.Handlers{
		Health: health,
		Status: status,
		Events: events,
	}, a.logger)

	g.Go(func() error {
		return srv.Start()
	})

	g.Go(func() error {
		<-ctx.Done()
		shutCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
		defer cancel()
		return srv.Shutdown(shutCtx)
	})
}
