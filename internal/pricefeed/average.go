package pricefeed

import (
	"context"
	"fmt"

	"github.com/yanun0323/decimal"
)

// AverageFeed returns the arithmetic mean of every underlying feed's
// reading. Unlike FailoverFeed, a single failing member fails the whole
// average: averaging a partial set would silently change the feed's
// intended weighting.
type AverageFeed struct {
	feeds []Feed
}

// NewAverageFeed builds an AverageFeed over feeds.
func NewAverageFeed(feeds ...Feed) *AverageFeed {
	return &AverageFeed{feeds: feeds}
}

func (f *AverageFeed) Name() string { return "average" }

func (f *AverageFeed) Price(ctx context.Context) (Price, error) {
	if len(f.feeds) == 0 {
		return Price{}, fmt.Errorf("pricefeed: average feed has no members")
	}

	sumBuy := decimal.Zero
	sumSell := decimal.Zero
	var latest Price
	for _, feed := range f.feeds {
		p, err := feed.Price(ctx)
		if err != nil {
			return Price{}, fmt.Errorf("pricefeed: average feed member failed: %w", err)
		}
		sumBuy = sumBuy.Add(p.Buy)
		sumSell = sumSell.Add(p.Sell)
		if p.At.After(latest.At) {
			latest = p
		}
	}

	n := decimal.NewFromInt(int64(len(f.feeds)))
	return Price{Buy: sumBuy.Div(n), Sell: sumSell.Div(n), At: latest.At}, nil
}
