package domain

import (
	"time"

	"github.com/yanun0323/decimal"
)

// OrderSide indicates whether an order buys or sells the base asset.
type OrderSide string

const (
	OrderSideBuy  OrderSide = "buy"
	OrderSideSell OrderSide = "sell"
)

// OrderStatus tracks an order's lifecycle on the exchange.
type OrderStatus string

const (
	OrderStatusOpen      OrderStatus = "open"
	OrderStatusMatched   OrderStatus = "matched"
	OrderStatusCancelled OrderStatus = "cancelled"
	OrderStatusFailed    OrderStatus = "failed"
)

// Order is a resting order on an exchange, expressed in the decimal units of
// the traded pair rather than fixed-point ticks.
type Order struct {
	ID          string
	Pair        string
	Side        OrderSide
	Price       decimal.Decimal
	Amount      decimal.Decimal
	Remaining   decimal.Decimal
	Money       decimal.Decimal // amount * price, cached for sorting/selection
	Status      OrderStatus
	CreatedAt   time.Time
	Timestamp   int64 // unix seconds, mirrors on-chain order timestamp when present
}

// PayAmount returns the amount of the currency the order pays to execute:
// the base amount for a sell order, or amount*price for a buy order.
func (o Order) PayAmount() decimal.Decimal {
	if o.Side == OrderSideSell {
		return o.Amount
	}
	return o.Amount.Mul(o.Price)
}

// NewOrderIntent describes an order a BandEngine wants placed. It carries no
// exchange-assigned ID yet.
type NewOrderIntent struct {
	BandIndex int // index into the originating BandSet, for logging
	Pair      string
	Side      OrderSide
	Price     decimal.Decimal
	Amount    decimal.Decimal
}

// Money returns amount*price, the notional value of the intended order.
func (n NewOrderIntent) Money() decimal.Decimal {
	return n.Amount.Mul(n.Price)
}

// OrderResult is the outcome of submitting an order to an Exchange.
type OrderResult struct {
	Success     bool
	OrderID     string
	Status      OrderStatus
	Message     string
	ShouldRetry bool
}
