package pricefeed

import (
	"context"
	"fmt"

	"github.com/yanun0323/decimal"
)

// InverseFeed reports 1/price of the wrapped feed, used to derive e.g. a
// DAI/ETH feed from an ETH/DAI feed without configuring a second source.
type InverseFeed struct {
	inner Feed
}

// NewInverseFeed builds an InverseFeed over inner.
func NewInverseFeed(inner Feed) *InverseFeed {
	return &InverseFeed{inner: inner}
}

func (f *InverseFeed) Name() string {
	if n, ok := f.inner.(Name); ok {
		return "inverse(" + n.Name() + ")"
	}
	return "inverse"
}

func (f *InverseFeed) Price(ctx context.Context) (Price, error) {
	p, err := f.inner.Price(ctx)
	if err != nil {
		return Price{}, err
	}
	if p.Buy.IsZero() || p.Sell.IsZero() {
		return Price{}, fmt.Errorf("pricefeed: cannot invert a zero price")
	}
	one := decimal.NewFromInt(1)
	// Buy/sell swap under inversion: a higher underlying ask becomes a lower
	// inverted bid.
	return Price{Buy: one.Div(p.Sell), Sell: one.Div(p.Buy), At: p.At}, nil
}
