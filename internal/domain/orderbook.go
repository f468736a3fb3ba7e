package domain

import "time"

// OrderBookSnapshot is the exchange's view of our own resting orders for a
// pair, as returned by Exchange.GetOrders. It does not include other market
// participants' orders; this keeper only ever needs to reconcile its own.
type OrderBookSnapshot struct {
	Pair      string
	Orders    []Order
	Timestamp time.Time
}

// BuySell splits the snapshot's orders by side for convenience.
func (s OrderBookSnapshot) BuySell() (buys, sells []Order) {
	for _, o := range s.Orders {
		switch o.Side {
		case OrderSideBuy:
			buys = append(buys, o)
		case OrderSideSell:
			sells = append(sells, o)
		}
	}
	return buys, sells
}
