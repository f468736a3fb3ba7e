package pricefeed

import (
	"context"
	"encoding/json"
	"fmt"
	"os"
	"sync"
	"time"

	"github.com/yanun0323/decimal"

	"github.com/makerdao/market-maker-keeper/internal/clock"
)

// filePayload is the on-disk JSON format a FileFeed expects: either a single
// "price" field, or separate "buyPrice"/"sellPrice" fields.
type filePayload struct {
	Price     *string `json:"price"`
	BuyPrice  *string `json:"buyPrice"`
	SellPrice *string `json:"sellPrice"`
}

// FileFeed reads a price from a JSON file on disk, re-reading only when the
// file's modification time changes so a fast control-loop cycle doesn't
// stat-and-parse on every tick needlessly.
type FileFeed struct {
	path  string
	clock clock.Clock

	mu       sync.Mutex
	lastMod  time.Time
	lastRead Price
}

// NewFileFeed builds a FileFeed reading from path.
func NewFileFeed(path string, clk clock.Clock) *FileFeed {
	return &FileFeed{path: path, clock: clk}
}

func (f *FileFeed) Name() string { return "file:" + f.path }

func (f *FileFeed) Price(ctx context.Context) (Price, error) {
	f.mu.Lock()
	defer f.mu.Unlock()

	info, err := os.Stat(f.path)
	if err != nil {
		return Price{}, fmt.Errorf("pricefeed: stat %s: %w", f.path, err)
	}

	if !info.ModTime().After(f.lastMod) && !f.lastRead.IsZero() {
		p := f.lastRead
		p.At = f.clock.Now()
		return p, nil
	}

	data, err := os.ReadFile(f.path)
	if err != nil {
		return Price{}, fmt.Errorf("pricefeed: read %s: %w", f.path, err)
	}

	var payload filePayload
	if err := json.Unmarshal(data, &payload); err != nil {
		return Price{}, fmt.Errorf("pricefeed: parse %s: %w", f.path, err)
	}

	var price Price
	switch {
	case payload.Price != nil:
		d, err := decimal.NewFromString(*payload.Price)
		if err != nil {
			return Price{}, fmt.Errorf("pricefeed: %s: invalid price %q: %w", f.path, *payload.Price, err)
		}
		price.Buy, price.Sell = d, d
	case payload.BuyPrice != nil && payload.SellPrice != nil:
		buy, err := decimal.NewFromString(*payload.BuyPrice)
		if err != nil {
			return Price{}, fmt.Errorf("pricefeed: %s: invalid buyPrice %q: %w", f.path, *payload.BuyPrice, err)
		}
		sell, err := decimal.NewFromString(*payload.SellPrice)
		if err != nil {
			return Price{}, fmt.Errorf("pricefeed: %s: invalid sellPrice %q: %w", f.path, *payload.SellPrice, err)
		}
		price.Buy, price.Sell = buy, sell
	default:
		return Price{}, fmt.Errorf("pricefeed: %s: missing price/buyPrice+sellPrice", f.path)
	}

	price.At = f.clock.Now()
	f.lastMod = info.ModTime()
	f.lastRead = price
	return price, nil
}
