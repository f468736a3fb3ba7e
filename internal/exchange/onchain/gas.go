// Package onchain implements domain.Exchange against an on-chain limit
// order book, signing orders as EIP-712 payloads; it sends no Ethereum
// transactions.
package onchain

import (
	"context"
	"fmt"

	"github.com/yanun0323/decimal"

	"github.com/makerdao/market-maker-keeper/internal/domain"
)

var gwei = decimal.NewFromInt(1).Shift(9)

// FixedGasStrategy always returns the same gas price, ignoring attempt.
// Grounded on pymaker's FixedGasPrice.
type FixedGasStrategy struct {
	priceWei decimal.Decimal
}

// NewFixedGasStrategy builds a FixedGasStrategy from a gwei price.
func NewFixedGasStrategy(gweiPrice float64) *FixedGasStrategy {
	return &FixedGasStrategy{priceWei: decimal.NewFromFloat(gweiPrice).Mul(gwei)}
}

func (f *FixedGasStrategy) GasPriceWei(ctx context.Context, attempt int) (decimal.Decimal, error) {
	return f.priceWei, nil
}

// NodeGasStrategy asks the connected node for its current suggested gas
// price and escalates geometrically on resubmission, grounded on pymaker's
// GeometricGasPrice composed with DefaultGasPrice/NodeAwareGasPrice.
type NodeGasStrategy struct {
	reader     GasPriceReader
	coefficient decimal.Decimal
	maxPriceWei decimal.Decimal
}

// GasPriceReader abstracts the chain client's eth_gasPrice call so this
// package does not need to import a specific RPC client type.
type GasPriceReader interface {
	SuggestGasPriceWei(ctx context.Context) (decimal.Decimal, error)
}

// NewNodeGasStrategy builds a NodeGasStrategy. coefficient is the
// per-attempt geometric multiplier (e.g. 1.125 for a 12.5% bump per retry);
// maxGwei bounds the final price regardless of how many attempts occur.
func NewNodeGasStrategy(reader GasPriceReader, coefficient, maxGwei float64) *NodeGasStrategy {
	return &NodeGasStrategy{
		reader:      reader,
		coefficient: decimal.NewFromFloat(coefficient),
		maxPriceWei: decimal.NewFromFloat(maxGwei).Mul(gwei),
	}
}

func (n *NodeGasStrategy) GasPriceWei(ctx context.Context, attempt int) (decimal.Decimal, error) {
	base, err := n.reader.SuggestGasPriceWei(ctx)
	if err != nil {
		return decimal.Zero, fmt.Errorf("onchain: suggest gas price: %w", err)
	}

	price := base
	for i := 0; i < attempt; i++ {
		price = price.Mul(n.coefficient)
	}
	if price.GreaterThan(n.maxPriceWei) {
		price = n.maxPriceWei
	}
	return price, nil
}

// IncreasingGasStrategy escalates from a fixed initial price by a fixed wei
// step per attempt, capped at maxPriceWei. Grounded on pymaker's
// IncreasingGasPrice, used for stuck on-chain cancels where no external gas
// oracle is configured.
type IncreasingGasStrategy struct {
	initialWei decimal.Decimal
	stepWei    decimal.Decimal
	maxWei     decimal.Decimal
}

// NewIncreasingGasStrategy builds an IncreasingGasStrategy from gwei inputs.
func NewIncreasingGasStrategy(initialGwei, stepGwei, maxGwei float64) *IncreasingGasStrategy {
	return &IncreasingGasStrategy{
		initialWei: decimal.NewFromFloat(initialGwei).Mul(gwei),
		stepWei:    decimal.NewFromFloat(stepGwei).Mul(gwei),
		maxWei:     decimal.NewFromFloat(maxGwei).Mul(gwei),
	}
}

func (g *IncreasingGasStrategy) GasPriceWei(ctx context.Context, attempt int) (decimal.Decimal, error) {
	price := g.initialWei.Add(g.stepWei.Mul(decimal.NewFromInt(int64(attempt))))
	if price.GreaterThan(g.maxWei) {
		price = g.maxWei
	}
	return price, nil
}

var (
	_ domain.GasStrategy = (*FixedGasStrategy)(nil)
	_ domain.GasStrategy = (*NodeGasStrategy)(nil)
	_ domain.GasStrategy = (*IncreasingGasStrategy)(nil)
)
