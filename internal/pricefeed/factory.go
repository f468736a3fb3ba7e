package pricefeed

import (
	"fmt"
	"log/slog"
	"net/url"
	"strconv"
	"strings"
	"time"

	"github.com/ethereum/go-ethereum/common"
	"github.com/yanun0323/decimal"

	"github.com/makerdao/market-maker-keeper/internal/clock"
)

// DefaultMaxAge is applied to every leaf feed parsed from a URI unless the
// URI specifies its own via a "maxAge" query parameter.
const DefaultMaxAge = 2 * time.Minute

// NewFromSpec parses a comma-separated list of feed URIs into a single Feed:
// each comma-separated entry becomes one leaf feed wrapped in an
// ExpiringFeed, and the whole list is combined into a FailoverFeed trying
// entries left-to-right. A leading '~' on an entry wraps it in InverseFeed.
//
// Supported schemes: fixed://<price>, file://<path>, ws://, wss://,
// shell://<command>, oracle://<0x-address>.
func NewFromSpec(spec string, chain ChainReader, clk clock.Clock, logger *slog.Logger) (Feed, error) {
	entries := strings.Split(spec, ",")
	feeds := make([]Feed, 0, len(entries))

	for _, raw := range entries {
		entry := strings.TrimSpace(raw)
		if entry == "" {
			continue
		}

		invert := false
		if strings.HasPrefix(entry, "~") {
			invert = true
			entry = entry[1:]
		}

		leaf, maxAge, err := parseLeaf(entry, chain, clk, logger)
		if err != nil {
			return nil, fmt.Errorf("pricefeed: %s: %w", entry, err)
		}

		wrapped := Feed(NewExpiringFeed(leaf, maxAge, clk, logger))
		if invert {
			wrapped = NewInverseFeed(wrapped)
		}
		feeds = append(feeds, wrapped)
	}

	if len(feeds) == 0 {
		return nil, fmt.Errorf("pricefeed: empty feed spec")
	}
	if len(feeds) == 1 {
		return feeds[0], nil
	}
	return NewFailoverFeed(logger, feeds...), nil
}

func parseLeaf(entry string, chain ChainReader, clk clock.Clock, logger *slog.Logger) (Feed, time.Duration, error) {
	u, err := url.Parse(entry)
	if err != nil {
		return nil, 0, fmt.Errorf("invalid URI: %w", err)
	}

	maxAge := DefaultMaxAge
	if q := u.Query().Get("maxAge"); q != "" {
		secs, err := strconv.Atoi(q)
		if err != nil {
			return nil, 0, fmt.Errorf("invalid maxAge: %w", err)
		}
		maxAge = time.Duration(secs) * time.Second
	}

	switch u.Scheme {
	case "fixed":
		price, err := decimal.NewFromString(u.Opaque)
		if err != nil {
			return nil, 0, fmt.Errorf("invalid fixed price %q: %w", u.Opaque, err)
		}
		return NewFixedFeed(Price{Buy: price, Sell: price}, clk), maxAge, nil

	case "file":
		path := u.Opaque
		if path == "" {
			path = u.Path
		}
		return NewFileFeed(path, clk), maxAge, nil

	case "ws", "wss":
		return NewWSFeed(entry, DefaultWSParser, clk, logger), maxAge, nil

	case "shell":
		interval := 60 * time.Second
		if q := u.Query().Get("interval"); q != "" {
			secs, err := strconv.Atoi(q)
			if err == nil {
				interval = time.Duration(secs) * time.Second
			}
		}
		return NewShellFeed(u.Opaque, interval, clk, logger), maxAge, nil

	case "oracle":
		if chain == nil {
			return nil, 0, fmt.Errorf("oracle feed requires a chain client")
		}
		addr := u.Opaque
		if addr == "" {
			addr = u.Host
		}
		if !common.IsHexAddress(addr) {
			return nil, 0, fmt.Errorf("invalid oracle address %q", addr)
		}
		return NewOracleFeed(chain, common.HexToAddress(addr), clk), maxAge, nil

	default:
		return nil, 0, fmt.Errorf("unsupported feed scheme %q", u.Scheme)
	}
}
