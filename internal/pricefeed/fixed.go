package pricefeed

import (
	"context"

	"github.com/makerdao/market-maker-keeper/internal/clock"
)

// FixedFeed always returns the same price, typically used in tests or for
// pairs against a currency pegged 1:1.
type FixedFeed struct {
	price Price
	clock clock.Clock
}

// NewFixedFeed builds a FixedFeed returning price on every call.
func NewFixedFeed(price Price, clk clock.Clock) *FixedFeed {
	return &FixedFeed{price: price, clock: clk}
}

func (f *FixedFeed) Name() string { return "fixed" }

func (f *FixedFeed) Price(ctx context.Context) (Price, error) {
	p := f.price
	p.At = f.clock.Now()
	return p, nil
}
