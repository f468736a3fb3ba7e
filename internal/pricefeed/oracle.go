package pricefeed

import (
	"context"
	"fmt"
	"math/big"

	"github.com/ethereum/go-ethereum"
	"github.com/ethereum/go-ethereum/common"
	"github.com/yanun0323/decimal"

	"github.com/makerdao/market-maker-keeper/internal/clock"
)

// ChainReader is the subset of an ethclient.Client this feed depends on.
type ChainReader interface {
	CallContract(ctx context.Context, call ethereum.CallMsg, blockNumber *big.Int) ([]byte, error)
}

// peekSelector is the 4-byte selector of the DSValue `peek() returns (bytes32, bool)`
// function used by MakerDAO-style on-chain price oracles.
var peekSelector = []byte{0x59, 0xe0, 0x2d, 0xd7}

// OracleFeed reads the reference price from an on-chain price oracle
// contract that implements DSValue's `peek()` call, returning a
// 18-decimal fixed-point word.
type OracleFeed struct {
	client  ChainReader
	address common.Address
	clock   clock.Clock
}

// NewOracleFeed builds an OracleFeed reading from the contract at address.
func NewOracleFeed(client ChainReader, address common.Address, clk clock.Clock) *OracleFeed {
	return &OracleFeed{client: client, address: address, clock: clk}
}

func (f *OracleFeed) Name() string { return "oracle:" + f.address.Hex() }

func (f *OracleFeed) Price(ctx context.Context) (Price, error) {
	out, err := f.client.CallContract(ctx, ethereum.CallMsg{
		To:   &f.address,
		Data: peekSelector,
	}, nil)
	if err != nil {
		return Price{}, fmt.Errorf("pricefeed: oracle peek %s: %w", f.address.Hex(), err)
	}
	if len(out) < 64 {
		return Price{}, fmt.Errorf("pricefeed: oracle %s: short response", f.address.Hex())
	}

	valid := new(big.Int).SetBytes(out[32:64]).Sign() != 0
	if !valid {
		return Price{}, fmt.Errorf("pricefeed: oracle %s: value marked invalid", f.address.Hex())
	}

	word := new(big.Int).SetBytes(out[0:32])
	price := decimal.NewFromBigInt(word, -18)

	return Price{Buy: price, Sell: price, At: f.clock.Now()}, nil
}
