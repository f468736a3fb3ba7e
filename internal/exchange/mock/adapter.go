// Package mock implements domain.Exchange as an in-memory order book, used
// by tests, demos, and as the CLI default so the keeper can be exercised
// without any real exchange credentials.
package mock

import (
	"context"
	"fmt"
	"math/rand"
	"sync"
	"time"

	"github.com/google/uuid"
	"github.com/yanun0323/decimal"

	"github.com/makerdao/market-maker-keeper/internal/clock"
	"github.com/makerdao/market-maker-keeper/internal/domain"
)

// Config controls the adapter's simulated behaviour.
type Config struct {
	Pair string

	// BaseBalance/QuoteBalance seed the simulated wallet.
	BaseBalance  decimal.Decimal
	QuoteBalance decimal.Decimal

	// Latency is added to every call to mimic real network round trips.
	Latency time.Duration

	// FailureRate is the probability (0..1) that PlaceOrder/CancelOrder
	// fails with a transient error, to exercise the control loop's retry
	// and logging paths.
	FailureRate float64

	Clock clock.Clock
}

// Adapter is an in-memory domain.Exchange backed by a map of resting
// orders, grounded on the teacher's pattern of putting a fake backing store
// behind a store interface, generalized here to the exchange contract.
type Adapter struct {
	cfg Config

	mu      sync.Mutex
	orders  map[string]domain.Order
	base    decimal.Decimal
	quote   decimal.Decimal
	rand    *rand.Rand
}

// New builds an Adapter seeded with cfg's starting balances.
func New(cfg Config) *Adapter {
	return &Adapter{
		cfg:    cfg,
		orders: make(map[string]domain.Order),
		base:   cfg.BaseBalance,
		quote:  cfg.QuoteBalance,
		rand:   rand.New(rand.NewSource(1)),
	}
}

func (a *Adapter) Pair() string { return a.cfg.Pair }

func (a *Adapter) sleep(ctx context.Context) error {
	if a.cfg.Latency <= 0 {
		return nil
	}
	select {
	case <-time.After(a.cfg.Latency):
		return nil
	case <-ctx.Done():
		return ctx.Err()
	}
}

func (a *Adapter) maybeFail(op string) error {
	if a.cfg.FailureRate <= 0 {
		return nil
	}
	a.mu.Lock()
	roll := a.rand.Float64()
	a.mu.Unlock()
	if roll < a.cfg.FailureRate {
		return domain.NewError(domain.ErrKindExchange, "mock", fmt.Errorf("%s: simulated transient failure", op))
	}
	return nil
}

func (a *Adapter) GetOrders(ctx context.Context) (domain.OrderBookSnapshot, error) {
	if err := a.sleep(ctx); err != nil {
		return domain.OrderBookSnapshot{}, err
	}

	a.mu.Lock()
	defer a.mu.Unlock()

	snapshot := domain.OrderBookSnapshot{Pair: a.cfg.Pair, Timestamp: a.cfg.Clock.Now()}
	for _, o := range a.orders {
		snapshot.Orders = append(snapshot.Orders, o)
	}
	return snapshot, nil
}

func (a *Adapter) GetBalances(ctx context.Context) (base, quote decimal.Decimal, err error) {
	if err := a.sleep(ctx); err != nil {
		return decimal.Zero, decimal.Zero, err
	}

	a.mu.Lock()
	defer a.mu.Unlock()
	return a.base, a.quote, nil
}

func (a *Adapter) PlaceOrder(ctx context.Context, intent domain.NewOrderIntent) (domain.OrderResult, error) {
	if err := a.sleep(ctx); err != nil {
		return domain.OrderResult{}, err
	}
	if err := a.maybeFail("place_order"); err != nil {
		return domain.OrderResult{Success: false, ShouldRetry: true, Message: err.Error()}, err
	}

	a.mu.Lock()
	defer a.mu.Unlock()

	money := intent.Money()
	if intent.Side == domain.OrderSideBuy && money.GreaterThan(a.quote) {
		return domain.OrderResult{Success: false, Message: "insufficient quote balance"}, domain.ErrInvalidOrder
	}
	if intent.Side == domain.OrderSideSell && intent.Amount.GreaterThan(a.base) {
		return domain.OrderResult{Success: false, Message: "insufficient base balance"}, domain.ErrInvalidOrder
	}

	id := uuid.New().String()
	now := a.cfg.Clock.Now()
	a.orders[id] = domain.Order{
		ID:        id,
		Pair:      a.cfg.Pair,
		Side:      intent.Side,
		Price:     intent.Price,
		Amount:    intent.Amount,
		Remaining: intent.Amount,
		Money:     money,
		Status:    domain.OrderStatusOpen,
		CreatedAt: now,
		Timestamp: now.Unix(),
	}

	if intent.Side == domain.OrderSideBuy {
		a.quote = a.quote.Sub(money)
	} else {
		a.base = a.base.Sub(intent.Amount)
	}

	return domain.OrderResult{Success: true, OrderID: id, Status: domain.OrderStatusOpen}, nil
}

func (a *Adapter) CancelOrder(ctx context.Context, orderID string) error {
	if err := a.sleep(ctx); err != nil {
		return err
	}
	if err := a.maybeFail("cancel_order"); err != nil {
		return err
	}

	a.mu.Lock()
	defer a.mu.Unlock()

	o, ok := a.orders[orderID]
	if !ok {
		return nil
	}
	delete(a.orders, orderID)

	if o.Side == domain.OrderSideBuy {
		a.quote = a.quote.Add(o.Money)
	} else {
		a.base = a.base.Add(o.Amount)
	}
	return nil
}

var _ domain.Exchange = (*Adapter)(nil)
