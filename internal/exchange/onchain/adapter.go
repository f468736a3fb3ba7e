package onchain

import (
	"context"
	"encoding/binary"
	"fmt"
	"math/big"
	"sync"
	"sync/atomic"

	ethereum "github.com/ethereum/go-ethereum"
	"github.com/ethereum/go-ethereum/common"
	ethcrypto "github.com/ethereum/go-ethereum/crypto"
	"github.com/yanun0323/decimal"

	"github.com/makerdao/market-maker-keeper/internal/clock"
	"github.com/makerdao/market-maker-keeper/internal/domain"
)

// balanceOfSelector is the 4-byte selector of ERC20's balanceOf(address).
var balanceOfSelector = ethcrypto.Keccak256([]byte("balanceOf(address)"))[:4]

// ChainClient is the subset of an ethclient.Client this adapter depends on:
// contract reads for balances, and transaction submission. The adapter
// itself only calls CallContract; placement and cancellation send no
// transaction.
type ChainClient interface {
	CallContract(ctx context.Context, call ethereum.CallMsg, blockNumber *big.Int) ([]byte, error)
	SendTransaction(ctx context.Context, tx []byte) (common.Hash, error)
}

// Config bundles the dependencies needed to build an Adapter.
type Config struct {
	Pair          string
	Client        ChainClient
	Signer        *Signer
	Gas           domain.GasStrategy
	MarketAddress common.Address
	BaseToken     common.Address
	QuoteToken    common.Address
	Clock         clock.Clock
}

// Adapter implements domain.Exchange against an on-chain order book
// contract. Orders are tracked locally between placement and the next
// GetOrders call since this stub does not yet index the contract's own
// order log.
type Adapter struct {
	cfg Config

	mu     sync.Mutex
	orders map[string]domain.Order
}

// New builds an Adapter from cfg.
func New(cfg Config) *Adapter {
	return &Adapter{cfg: cfg, orders: make(map[string]domain.Order)}
}

func (a *Adapter) Pair() string { return a.cfg.Pair }

// GetOrders returns the keeper's own resting orders as tracked locally
// since the last successful placement or cancellation.
func (a *Adapter) GetOrders(ctx context.Context) (domain.OrderBookSnapshot, error) {
	a.mu.Lock()
	defer a.mu.Unlock()

	snapshot := domain.OrderBookSnapshot{Pair: a.cfg.Pair, Timestamp: a.cfg.Clock.Now()}
	for _, o := range a.orders {
		snapshot.Orders = append(snapshot.Orders, o)
	}
	return snapshot, nil
}

// GetBalances reads the keeper's base and quote token balances via
// ERC20.balanceOf.
func (a *Adapter) GetBalances(ctx context.Context) (base, quote decimal.Decimal, err error) {
	owner := a.cfg.Signer.Address()

	baseWei, err := a.balanceOf(ctx, a.cfg.BaseToken, owner)
	if err != nil {
		return decimal.Zero, decimal.Zero, fmt.Errorf("onchain: base balance: %w", err)
	}
	quoteWei, err := a.balanceOf(ctx, a.cfg.QuoteToken, owner)
	if err != nil {
		return decimal.Zero, decimal.Zero, fmt.Errorf("onchain: quote balance: %w", err)
	}

	return decimal.NewFromBigInt(baseWei, -18), decimal.NewFromBigInt(quoteWei, -18), nil
}

func (a *Adapter) balanceOf(ctx context.Context, token, owner common.Address) (*big.Int, error) {
	data := append(append([]byte{}, balanceOfSelector...), common.LeftPadBytes(owner.Bytes(), 32)...)
	out, err := a.cfg.Client.CallContract(ctx, ethereum.CallMsg{To: &token, Data: data}, nil)
	if err != nil {
		return nil, err
	}
	if len(out) < 32 {
		return nil, fmt.Errorf("onchain: short balanceOf response for %s", token.Hex())
	}
	return new(big.Int).SetBytes(out[:32]), nil
}

// PlaceOrder signs a new limit order, checks that a gas price is available,
// and records the order in the adapter's local book. It does not submit the
// order to the on-chain order book.
func (a *Adapter) PlaceOrder(ctx context.Context, intent domain.NewOrderIntent) (domain.OrderResult, error) {
	side := 0
	if intent.Side == domain.OrderSideSell {
		side = 1
	}

	baseAmountWei := shiftToWei(intent.Amount)
	quoteAmountWei := shiftToWei(intent.Money())

	nonce := nextNonce()
	payload := LimitOrderPayload{
		Salt:        nonce.String(),
		Maker:       a.cfg.Signer.Address().Hex(),
		Base:        a.cfg.BaseToken.Hex(),
		Quote:       a.cfg.QuoteToken.Hex(),
		BaseAmount:  baseAmountWei.String(),
		QuoteAmount: quoteAmountWei.String(),
		Expiration:  "0",
		Nonce:       nonce.String(),
		Side:        side,
	}

	signature, err := a.cfg.Signer.SignOrder(payload)
	if err != nil {
		return domain.OrderResult{}, domain.NewError(domain.ErrKindSigning, "onchain", err)
	}

	if _, err := a.cfg.Gas.GasPriceWei(ctx, 0); err != nil {
		return domain.OrderResult{}, domain.NewError(domain.ErrKindGas, "onchain", err)
	}

	// Submitting the signed order as a transaction to the order book
	// contract is intentionally a stub: the contract ABI for the order
	// book this adapter targets is deployment-specific and is supplied by
	// the operator, not hard-coded here.
	orderID := fmt.Sprintf("%s:%s", payload.Nonce, signature[2:10])

	now := a.cfg.Clock.Now()
	order := domain.Order{
		ID:        orderID,
		Pair:      a.cfg.Pair,
		Side:      intent.Side,
		Price:     intent.Price,
		Amount:    intent.Amount,
		Remaining: intent.Amount,
		Money:     intent.Money(),
		Status:    domain.OrderStatusOpen,
		CreatedAt: now,
		Timestamp: now.Unix(),
	}

	a.mu.Lock()
	a.orders[orderID] = order
	a.mu.Unlock()

	return domain.OrderResult{Success: true, OrderID: orderID, Status: domain.OrderStatusOpen}, nil
}

// CancelOrder checks that a gas price is available and removes the order
// from the adapter's local book; it sends no cancellation to the chain.
// Cancelling an order that no longer exists is not an error.
func (a *Adapter) CancelOrder(ctx context.Context, orderID string) error {
	if _, err := a.cfg.Gas.GasPriceWei(ctx, 0); err != nil {
		return domain.NewError(domain.ErrKindGas, "onchain", err)
	}

	a.mu.Lock()
	delete(a.orders, orderID)
	a.mu.Unlock()
	return nil
}

func shiftToWei(d decimal.Decimal) *big.Int {
	wei := d.Shift(18)
	i, _ := new(big.Int).SetString(wei.String(), 10)
	if i == nil {
		return big.NewInt(0)
	}
	return i
}

var nonceCounter atomic.Uint64

// nextNonce returns a monotonically increasing salt for order payloads,
// safe for concurrent dispatch from the control loop's bounded fan-out.
func nextNonce() *big.Int {
	n := nonceCounter.Add(1)
	buf := make([]byte, 8)
	binary.BigEndian.PutUint64(buf, n)
	return new(big.Int).SetBytes(buf)
}

var _ domain.Exchange = (*Adapter)(nil)
