// Package pricefeed implements the reference-price tree: leaf feeds that
// read a price from one source (a fixed value, a file, a websocket stream,
// a shell command, or an on-chain oracle) and combinators that compose
// several feeds into one (expiring, failover, inverse, average).
package pricefeed

import (
	"context"
	"time"

	"github.com/yanun0323/decimal"
)

// Price is a single reference-price reading. Feeds that only know a single
// midpoint set both fields equal.
type Price struct {
	Buy  decimal.Decimal
	Sell decimal.Decimal
	At   time.Time
}

// Mid returns the average of Buy and Sell.
func (p Price) Mid() decimal.Decimal {
	return p.Buy.Add(p.Sell).Div(decimal.NewFromInt(2))
}

// IsZero reports whether p is the zero value, used to signal "no reading
// available" without an error (matching the original feed tree, where a
// feed returning None is not itself an error condition until every feed in
// a failover chain has been exhausted).
func (p Price) IsZero() bool {
	return p.At.IsZero()
}

// Feed reads the current reference price. Implementations must be safe for
// concurrent use; the control loop polls the feed tree once per cycle.
type Feed interface {
	Price(ctx context.Context) (Price, error)
}

// Name is implemented by feeds that can identify themselves in logs; not
// required, checked with a type assertion.
type Name interface {
	Name() string
}
