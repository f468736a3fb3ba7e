package mock

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/yanun0323/decimal"

	"github.com/makerdao/market-maker-keeper/internal/clock"
	"github.com/makerdao/market-maker-keeper/internal/domain"
)

func newAdapter(cfg Config) *Adapter {
	if cfg.Clock == nil {
		cfg.Clock = clock.NewFake(time.Unix(1_700_000_000, 0))
	}
	if cfg.Pair == "" {
		cfg.Pair = "WETH-USDC"
	}
	return New(cfg)
}

func TestPlaceOrderDeductsBalance(t *testing.T) {
	a := newAdapter(Config{BaseBalance: decimal.NewFromInt(10), QuoteBalance: decimal.NewFromInt(1000)})

	res, err := a.PlaceOrder(context.Background(), domain.NewOrderIntent{
		Pair: "WETH-USDC", Side: domain.OrderSideBuy, Price: decimal.NewFromInt(100), Amount: decimal.NewFromInt(2),
	})
	if err != nil {
		t.Fatalf("PlaceOrder: %v", err)
	}
	if !res.Success || res.OrderID == "" {
		t.Fatalf("PlaceOrder() = %+v, want a successful result with an order ID", res)
	}

	_, quote, err := a.GetBalances(context.Background())
	if err != nil {
		t.Fatalf("GetBalances: %v", err)
	}
	if !quote.Sub(decimal.NewFromInt(800)).IsZero() {
		t.Fatalf("quote balance = %s, want 800 after spending 200 on the buy", quote)
	}
}

func TestPlaceOrderRejectsInsufficientBalance(t *testing.T) {
	a := newAdapter(Config{BaseBalance: decimal.Zero, QuoteBalance: decimal.NewFromInt(10)})

	_, err := a.PlaceOrder(context.Background(), domain.NewOrderIntent{
		Pair: "WETH-USDC", Side: domain.OrderSideBuy, Price: decimal.NewFromInt(100), Amount: decimal.NewFromInt(1),
	})
	if !errors.Is(err, domain.ErrInvalidOrder) {
		t.Fatalf("PlaceOrder() err = %v, want domain.ErrInvalidOrder", err)
	}
}

func TestCancelOrderRefundsBalance(t *testing.T) {
	a := newAdapter(Config{BaseBalance: decimal.NewFromInt(10), QuoteBalance: decimal.NewFromInt(1000)})

	res, err := a.PlaceOrder(context.Background(), domain.NewOrderIntent{
		Pair: "WETH-USDC", Side: domain.OrderSideSell, Price: decimal.NewFromInt(100), Amount: decimal.NewFromInt(3),
	})
	if err != nil {
		t.Fatalf("PlaceOrder: %v", err)
	}

	if err := a.CancelOrder(context.Background(), res.OrderID); err != nil {
		t.Fatalf("CancelOrder: %v", err)
	}

	base, _, err := a.GetBalances(context.Background())
	if err != nil {
		t.Fatalf("GetBalances: %v", err)
	}
	if !base.Sub(decimal.NewFromInt(10)).IsZero() {
		t.Fatalf("base balance = %s, want refunded back to 10", base)
	}

	snap, err := a.GetOrders(context.Background())
	if err != nil {
		t.Fatalf("GetOrders: %v", err)
	}
	if len(snap.Orders) != 0 {
		t.Fatalf("GetOrders() = %v, want the cancelled order gone", snap.Orders)
	}
}

func TestCancelOrderUnknownIDIsNotAnError(t *testing.T) {
	a := newAdapter(Config{})
	if err := a.CancelOrder(context.Background(), "does-not-exist"); err != nil {
		t.Fatalf("CancelOrder() for an unknown ID = %v, want nil", err)
	}
}

func TestGetOrdersReflectsPlacedOrders(t *testing.T) {
	a := newAdapter(Config{BaseBalance: decimal.NewFromInt(10), QuoteBalance: decimal.NewFromInt(1000)})

	if _, err := a.PlaceOrder(context.Background(), domain.NewOrderIntent{
		Pair: "WETH-USDC", Side: domain.OrderSideBuy, Price: decimal.NewFromInt(90), Amount: decimal.NewFromInt(1),
	}); err != nil {
		t.Fatalf("PlaceOrder: %v", err)
	}

	snap, err := a.GetOrders(context.Background())
	if err != nil {
		t.Fatalf("GetOrders: %v", err)
	}
	if len(snap.Orders) != 1 || snap.Pair != "WETH-USDC" {
		t.Fatalf("GetOrders() = %+v, want one order for WETH-USDC", snap)
	}
}

func TestFailureRateForcesSimulatedErrors(t *testing.T) {
	a := newAdapter(Config{BaseBalance: decimal.NewFromInt(10), QuoteBalance: decimal.NewFromInt(1000), FailureRate: 1})

	_, err := a.PlaceOrder(context.Background(), domain.NewOrderIntent{
		Pair: "WETH-USDC", Side: domain.OrderSideBuy, Price: decimal.NewFromInt(90), Amount: decimal.NewFromInt(1),
	})
	if err == nil {
		t.Fatalf("expected PlaceOrder to fail with FailureRate=1")
	}
}
