package pricefeed

import (
	"context"
	"errors"
	"io"
	"log/slog"
	"testing"
	"time"

	"github.com/yanun0323/decimal"

	"github.com/makerdao/market-maker-keeper/internal/clock"
)

func discardLogger() *slog.Logger {
	return slog.New(slog.NewTextHandler(io.Discard, nil))
}

type stubFeed struct {
	price Price
	err   error
}

func (s stubFeed) Price(ctx context.Context) (Price, error) { return s.price, s.err }

func TestAverageFeedAveragesMembers(t *testing.T) {
	now := time.Now()
	f := NewAverageFeed(
		stubFeed{price: Price{Buy: decimal.NewFromInt(100), Sell: decimal.NewFromInt(102), At: now}},
		stubFeed{price: Price{Buy: decimal.NewFromInt(200), Sell: decimal.NewFromInt(202), At: now}},
	)

	p, err := f.Price(context.Background())
	if err != nil {
		t.Fatalf("Price: %v", err)
	}
	if !p.Buy.Sub(decimal.NewFromInt(150)).IsZero() {
		t.Fatalf("Buy = %s, want 150", p.Buy)
	}
	if !p.Sell.Sub(decimal.NewFromInt(152)).IsZero() {
		t.Fatalf("Sell = %s, want 152", p.Sell)
	}
}

func TestAverageFeedFailsWholeOnOneMemberError(t *testing.T) {
	f := NewAverageFeed(
		stubFeed{price: Price{Buy: decimal.NewFromInt(100), Sell: decimal.NewFromInt(100)}},
		stubFeed{err: errors.New("boom")},
	)
	if _, err := f.Price(context.Background()); err == nil {
		t.Fatalf("expected an error when one member fails")
	}
}

func TestAverageFeedWithNoMembers(t *testing.T) {
	f := NewAverageFeed()
	if _, err := f.Price(context.Background()); err == nil {
		t.Fatalf("expected an error for an average feed with no members")
	}
}

func TestFailoverFeedUsesFirstHealthyMember(t *testing.T) {
	want := Price{Buy: decimal.NewFromInt(50), Sell: decimal.NewFromInt(51)}
	f := NewFailoverFeed(discardLogger(),
		stubFeed{err: errors.New("primary down")},
		stubFeed{price: want},
	)

	p, err := f.Price(context.Background())
	if err != nil {
		t.Fatalf("Price: %v", err)
	}
	if !p.Buy.Sub(want.Buy).IsZero() {
		t.Fatalf("Buy = %s, want %s from the fallback member", p.Buy, want.Buy)
	}
}

func TestFailoverFeedFailsWhenEveryMemberFails(t *testing.T) {
	f := NewFailoverFeed(discardLogger(),
		stubFeed{err: errors.New("down 1")},
		stubFeed{err: errors.New("down 2")},
	)
	if _, err := f.Price(context.Background()); err == nil {
		t.Fatalf("expected an error when every member fails")
	}
}

func TestFailoverFeedWithNoMembers(t *testing.T) {
	f := NewFailoverFeed(discardLogger())
	if _, err := f.Price(context.Background()); err == nil {
		t.Fatalf("expected an error for a failover feed with no members")
	}
}

func TestInverseFeedSwapsAndInverts(t *testing.T) {
	inner := stubFeed{price: Price{Buy: decimal.NewFromInt(2), Sell: decimal.NewFromInt(4)}}
	f := NewInverseFeed(inner)

	p, err := f.Price(context.Background())
	if err != nil {
		t.Fatalf("Price: %v", err)
	}
	// Buy = 1/inner.Sell, Sell = 1/inner.Buy
	if !p.Buy.Sub(decimal.NewFromFloat(0.25)).IsZero() {
		t.Fatalf("Buy = %s, want 0.25 (1/4)", p.Buy)
	}
	if !p.Sell.Sub(decimal.NewFromFloat(0.5)).IsZero() {
		t.Fatalf("Sell = %s, want 0.5 (1/2)", p.Sell)
	}
}

func TestInverseFeedRejectsZeroPrice(t *testing.T) {
	f := NewInverseFeed(stubFeed{price: Price{Buy: decimal.Zero, Sell: decimal.Zero}})
	if _, err := f.Price(context.Background()); err == nil {
		t.Fatalf("expected an error when inverting a zero price")
	}
}

func TestExpiringFeedRejectsStaleReading(t *testing.T) {
	fakeClock := clock.NewFake(time.Unix(1_700_000_000, 0))
	stale := Price{Buy: decimal.NewFromInt(1), Sell: decimal.NewFromInt(1), At: fakeClock.Now().Add(-time.Hour)}
	f := NewExpiringFeed(stubFeed{price: stale}, time.Minute, fakeClock, discardLogger())

	if _, err := f.Price(context.Background()); err == nil {
		t.Fatalf("expected an error for a reading older than maxAge")
	}
}

func TestExpiringFeedAcceptsFreshReading(t *testing.T) {
	fakeClock := clock.NewFake(time.Unix(1_700_000_000, 0))
	fresh := Price{Buy: decimal.NewFromInt(1), Sell: decimal.NewFromInt(1), At: fakeClock.Now()}
	f := NewExpiringFeed(stubFeed{price: fresh}, time.Minute, fakeClock, discardLogger())

	p, err := f.Price(context.Background())
	if err != nil {
		t.Fatalf("Price: %v", err)
	}
	if !p.Buy.Sub(decimal.NewFromInt(1)).IsZero() {
		t.Fatalf("Buy = %s, want 1", p.Buy)
	}
}

func TestExpiringFeedPropagatesInnerError(t *testing.T) {
	fakeClock := clock.NewFake(time.Unix(1_700_000_000, 0))
	f := NewExpiringFeed(stubFeed{err: errors.New("inner down")}, time.Minute, fakeClock, discardLogger())

	if _, err := f.Price(context.Background()); err == nil {
		t.Fatalf("expected the inner feed's error to propagate")
	}
}
