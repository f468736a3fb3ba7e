package pricefeed

import (
	"context"
	"errors"
	"log/slog"
)

// FailoverFeed tries each underlying feed in order and returns the first
// successful reading, matching the original backup-feed behaviour where a
// primary feed's outage falls through to a secondary without the keeper
// ever seeing an error as long as any feed in the chain is healthy.
type FailoverFeed struct {
	feeds  []Feed
	logger *slog.Logger
}

// NewFailoverFeed builds a FailoverFeed trying feeds in order.
func NewFailoverFeed(logger *slog.Logger, feeds ...Feed) *FailoverFeed {
	return &FailoverFeed{feeds: feeds, logger: logger.With(slog.String("component", "pricefeed.failover"))}
}

func (f *FailoverFeed) Name() string { return "failover" }

func (f *FailoverFeed) Price(ctx context.Context) (Price, error) {
	var lastErr error
	for i, feed := range f.feeds {
		p, err := feed.Price(ctx)
		if err == nil {
			return p, nil
		}
		lastErr = err
		name := "feed"
		if n, ok := feed.(Name); ok {
			name = n.Name()
		}
		f.logger.Debug("failover feed member unavailable, trying next",
			"index", i, "name", name, "error", err)
	}
	if lastErr == nil {
		lastErr = errors.New("no feeds configured")
	}
	return Price{}, lastErr
}
