package pricefeed

import (
	"context"
	"fmt"
	"log/slog"
	"sync"
	"time"

	"github.com/makerdao/market-maker-keeper/internal/clock"
)

// ExpiringFeed wraps another feed and rejects readings older than maxAge.
// It edge-triggers a log line on the transition into and out of the expired
// state, rather than logging on every cycle.
type ExpiringFeed struct {
	inner  Feed
	maxAge time.Duration
	clock  clock.Clock
	logger *slog.Logger

	mu      sync.Mutex
	expired bool
}

// NewExpiringFeed wraps inner so readings older than maxAge are rejected.
func NewExpiringFeed(inner Feed, maxAge time.Duration, clk clock.Clock, logger *slog.Logger) *ExpiringFeed {
	return &ExpiringFeed{inner: inner, maxAge: maxAge, clock: clk, logger: logger.With(slog.String("component", "pricefeed.expiring"))}
}

func (f *ExpiringFeed) Name() string {
	if n, ok := f.inner.(Name); ok {
		return "expiring(" + n.Name() + ")"
	}
	return "expiring"
}

func (f *ExpiringFeed) Price(ctx context.Context) (Price, error) {
	p, err := f.inner.Price(ctx)
	if err != nil {
		f.markExpired()
		return Price{}, err
	}

	age := f.clock.Now().Sub(p.At)
	if age > f.maxAge {
		f.markExpired()
		return Price{}, fmt.Errorf("pricefeed: reading is %s old, exceeds max age %s", age, f.maxAge)
	}

	f.mu.Lock()
	wasExpired := f.expired
	f.expired = false
	f.mu.Unlock()
	if wasExpired {
		f.logger.Info("price feed reading is fresh again")
	}
	return p, nil
}

func (f *ExpiringFeed) markExpired() {
	f.mu.Lock()
	wasExpired := f.expired
	f.expired = true
	f.mu.Unlock()
	if !wasExpired {
		f.logger.Warn("price feed expired")
	}
}
