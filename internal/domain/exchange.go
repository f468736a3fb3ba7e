package domain

import (
	"context"

	"github.com/yanun0323/decimal"
)

// Exchange is the adapter contract every keeper backend implements, whether
// it settles on-chain (a DEX contract call) or off-chain (a signed order
// posted to a CLOB). A single keeper process talks to exactly one Exchange.
type Exchange interface {
	// Pair returns the traded pair identifier this exchange instance serves,
	// e.g. "WETH/DAI".
	Pair() string

	// GetOrders returns our own currently-resting orders for the pair. It
	// does not need to be real-time consistent; the control loop accounts
	// for orders placed or cancelled since the snapshot was taken.
	GetOrders(ctx context.Context) (OrderBookSnapshot, error)

	// GetBalances returns the available balance of the base and quote
	// tokens, in that order.
	GetBalances(ctx context.Context) (base, quote decimal.Decimal, err error)

	// PlaceOrder submits a new order and returns the exchange-assigned
	// order ID on success.
	PlaceOrder(ctx context.Context, intent NewOrderIntent) (OrderResult, error)

	// CancelOrder cancels a resting order by ID. Cancelling an order that
	// no longer exists (already filled or already cancelled) is not an
	// error.
	CancelOrder(ctx context.Context, orderID string) error
}

// GasStrategy supplies a gas price (in wei) for on-chain Exchange
// implementations. Strategies may escalate the price across repeated calls
// for the same pending transaction.
type GasStrategy interface {
	// GasPriceWei returns the gas price to use. attempt is 0 on the first
	// submission and increments on each resubmission of the same logical
	// transaction, allowing escalating strategies to bump the price.
	GasPriceWei(ctx context.Context, attempt int) (decimal.Decimal, error)
}
