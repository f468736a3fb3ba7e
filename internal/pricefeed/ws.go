package pricefeed

import (
	"context"
	"encoding/json"
	"fmt"
	"log/slog"
	"sync"
	"time"

	"github.com/gorilla/websocket"
	"github.com/yanun0323/decimal"

	"github.com/makerdao/market-maker-keeper/internal/clock"
)

// WSMessageParser extracts a Price from one raw websocket text frame. It
// returns ok=false for frames that don't carry a price update (heartbeats,
// subscription acks).
type WSMessageParser func(raw []byte) (price Price, ok bool)

// wsTickerFrame is the default parser's expected shape: {"price": "1234.5"}
// or {"buyPrice": "...", "sellPrice": "..."}.
type wsTickerFrame struct {
	Price     *string `json:"price"`
	BuyPrice  *string `json:"buyPrice"`
	SellPrice *string `json:"sellPrice"`
}

// DefaultWSParser parses the generic {"price": ...} / {"buyPrice","sellPrice"}
// shape, the same shape FileFeed reads from disk.
func DefaultWSParser(raw []byte) (Price, bool) {
	var frame wsTickerFrame
	if err := json.Unmarshal(raw, &frame); err != nil {
		return Price{}, false
	}
	switch {
	case frame.Price != nil:
		d, err := decimal.NewFromString(*frame.Price)
		if err != nil {
			return Price{}, false
		}
		return Price{Buy: d, Sell: d}, true
	case frame.BuyPrice != nil && frame.SellPrice != nil:
		buy, err := decimal.NewFromString(*frame.BuyPrice)
		if err != nil {
			return Price{}, false
		}
		sell, err := decimal.NewFromString(*frame.SellPrice)
		if err != nil {
			return Price{}, false
		}
		return Price{Buy: buy, Sell: sell}, true
	default:
		return Price{}, false
	}
}

// WSFeed streams a reference price over a websocket connection, reconnecting
// with a fixed backoff on disconnect.
type WSFeed struct {
	url    string
	parser WSMessageParser
	clock  clock.Clock
	logger *slog.Logger

	mu        sync.Mutex
	last      Price
	closeOnce sync.Once
	done      chan struct{}
}

// NewWSFeed builds a WSFeed connecting to url, parsing frames with parser
// (DefaultWSParser if nil).
func NewWSFeed(url string, parser WSMessageParser, clk clock.Clock, logger *slog.Logger) *WSFeed {
	if parser == nil {
		parser = DefaultWSParser
	}
	return &WSFeed{
		url:    url,
		parser: parser,
		clock:  clk,
		logger: logger.With(slog.String("component", "pricefeed.ws"), slog.String("url", url)),
		done:   make(chan struct{}),
	}
}

func (f *WSFeed) Name() string { return "ws:" + f.url }

// Run connects and streams until ctx is cancelled or Close is called,
// reconnecting with backoff on disconnect.
func (f *WSFeed) Run(ctx context.Context) error {
	for {
		select {
		case <-ctx.Done():
			return ctx.Err()
		case <-f.done:
			return nil
		default:
		}

		err := f.runConnection(ctx)
		if ctx.Err() != nil {
			return ctx.Err()
		}
		select {
		case <-f.done:
			return nil
		default:
		}
		f.logger.Warn("price feed websocket disconnected, reconnecting", slog.Any("error", err))

		select {
		case <-ctx.Done():
			return ctx.Err()
		case <-time.After(2 * time.Second):
		}
	}
}

func (f *WSFeed) runConnection(ctx context.Context) error {
	conn, _, err := websocket.DefaultDialer.DialContext(ctx, f.url, nil)
	if err != nil {
		return fmt.Errorf("pricefeed: dial %s: %w", f.url, err)
	}
	defer conn.Close()

	go func() {
		<-ctx.Done()
		conn.Close()
	}()

	for {
		_, raw, err := conn.ReadMessage()
		if err != nil {
			return err
		}
		price, ok := f.parser(raw)
		if !ok {
			continue
		}
		price.At = f.clock.Now()
		f.mu.Lock()
		f.last = price
		f.mu.Unlock()
	}
}

func (f *WSFeed) Price(ctx context.Context) (Price, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	if f.last.IsZero() {
		return Price{}, fmt.Errorf("pricefeed: no reading yet from %s", f.url)
	}
	return f.last, nil
}

// Close stops the feed's reconnect loop.
func (f *WSFeed) Close() {
	f.closeOnce.Do(func() { close(f.done) })
}
