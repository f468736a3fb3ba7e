package bandengine

import (
	"io"
	"log/slog"
	"testing"
	"time"

	"github.com/yanun0323/decimal"

	"github.com/makerdao/market-maker-keeper/internal/bands"
	"github.com/makerdao/market-maker-keeper/internal/domain"
	"github.com/makerdao/market-maker-keeper/internal/limits"
)

func discardLogger() *slog.Logger {
	return slog.New(slog.NewTextHandler(io.Discard, nil))
}

func simpleBandSet() bands.BandSet {
	return bands.BandSet{
		Buy: []bands.BuyBand{
			{bands.Band{
				MinMargin: decimal.NewFromFloat(0.01), AvgMargin: decimal.NewFromFloat(0.02), MaxMargin: decimal.NewFromFloat(0.03),
				MinAmount: decimal.NewFromInt(1), AvgAmount: decimal.NewFromInt(10), MaxAmount: decimal.NewFromInt(20),
			}},
		},
		Sell: []bands.SellBand{
			{bands.Band{
				MinMargin: decimal.NewFromFloat(0.01), AvgMargin: decimal.NewFromFloat(0.02), MaxMargin: decimal.NewFromFloat(0.03),
				MinAmount: decimal.NewFromInt(1), AvgAmount: decimal.NewFromInt(10), MaxAmount: decimal.NewFromInt(20),
			}},
		},
	}
}

func TestSynthesizePlacesTopUpOrderWhenBandUnderfilled(t *testing.T) {
	engine := New(simpleBandSet(), discardLogger())

	dec := engine.Synthesize(Inputs{
		Book:           domain.OrderBookSnapshot{},
		ReferencePrice: decimal.NewFromInt(100),
		BaseBalance:    decimal.NewFromInt(1000),
		QuoteBalance:   decimal.NewFromInt(1000),
		Now:            time.Now(),
	})

	if len(dec.Cancel) != 0 {
		t.Fatalf("Cancel = %v, want none with an empty book", dec.Cancel)
	}
	if len(dec.Place) != 2 {
		t.Fatalf("Place = %v, want one buy and one sell order", dec.Place)
	}

	var gotBuy, gotSell bool
	for _, intent := range dec.Place {
		switch intent.Side {
		case domain.OrderSideBuy:
			gotBuy = true
			if !intent.Money().Sub(decimal.NewFromInt(10)).IsZero() {
				t.Fatalf("buy intent money = %s, want 10 (avgAmount, quote-denominated)", intent.Money())
			}
		case domain.OrderSideSell:
			gotSell = true
		}
	}
	if !gotBuy || !gotSell {
		t.Fatalf("Place = %v, want both a buy and a sell intent", dec.Place)
	}
}

func TestSynthesizeCancelsOutOfBandOrder(t *testing.T) {
	engine := New(simpleBandSet(), discardLogger())

	outOfBand := domain.Order{
		ID: "stale", Side: domain.OrderSideBuy,
		Price: decimal.NewFromInt(50), Amount: decimal.NewFromInt(5),
	}

	dec := engine.Synthesize(Inputs{
		Book:           domain.OrderBookSnapshot{Orders: []domain.Order{outOfBand}},
		ReferencePrice: decimal.NewFromInt(100),
		BaseBalance:    decimal.NewFromInt(1000),
		QuoteBalance:   decimal.NewFromInt(1000),
		Now:            time.Now(),
	})

	found := false
	for _, c := range dec.Cancel {
		if c.ID == "stale" {
			found = true
		}
	}
	if !found {
		t.Fatalf("Cancel = %v, want the out-of-band order cancelled", dec.Cancel)
	}
}

func TestSynthesizeRespectsRateLimit(t *testing.T) {
	engine := New(simpleBandSet(), discardLogger())
	now := time.Now()

	buyLimit, err := limits.NewLimit(decimal.NewFromInt(500), "1h")
	if err != nil {
		t.Fatalf("NewLimit: %v", err)
	}
	buyLimits := limits.NewLimits(buyLimit)

	dec := engine.Synthesize(Inputs{
		Book:           domain.OrderBookSnapshot{},
		ReferencePrice: decimal.NewFromInt(100),
		BaseBalance:    decimal.NewFromInt(1000),
		QuoteBalance:   decimal.NewFromInt(1000),
		BuyLimits:      buyLimits,
		Now:            now,
	})

	var buyIntent *domain.NewOrderIntent
	for i := range dec.Place {
		if dec.Place[i].Side == domain.OrderSideBuy {
			buyIntent = &dec.Place[i]
		}
	}
	if buyIntent == nil {
		t.Fatalf("Place = %v, want a buy intent constrained by the rate limit", dec.Place)
	}
	if buyIntent.Money().GreaterThan(decimal.NewFromInt(500)) {
		t.Fatalf("buy intent money = %s, want at most the limit's 500", buyIntent.Money())
	}
}

func TestSynthesizeNoPlaceWithoutBalance(t *testing.T) {
	engine := New(simpleBandSet(), discardLogger())

	dec := engine.Synthesize(Inputs{
		Book:           domain.OrderBookSnapshot{},
		ReferencePrice: decimal.NewFromInt(100),
		BaseBalance:    decimal.Zero,
		QuoteBalance:   decimal.Zero,
		Now:            time.Now(),
	})

	if len(dec.Place) != 0 {
		t.Fatalf("Place = %v, want none with zero balances", dec.Place)
	}
}
