package onchain

import (
	"crypto/ecdsa"
	"encoding/hex"
	"fmt"
	"math/big"
	"strings"

	"github.com/ethereum/go-ethereum/common"
	ethcrypto "github.com/ethereum/go-ethereum/crypto"
)

// EIP-712 type hashes (pre-computed keccak256 of the canonical type
// strings) for the on-chain order book contract's Order struct.
var (
	eip712DomainTypeHash = ethcrypto.Keccak256(
		[]byte("EIP712Domain(string name,string version,uint256 chainId)"),
	)

	// Order(uint256 salt,address maker,address base,address quote,uint256 baseAmount,uint256 quoteAmount,uint256 expiration,uint256 nonce,uint8 side)
	orderTypeHash = ethcrypto.Keccak256(
		[]byte("Order(uint256 salt,address maker,address base,address quote,uint256 baseAmount,uint256 quoteAmount,uint256 expiration,uint256 nonce,uint8 side)"),
	)
)

// LimitOrderPayload is the EIP-712 struct signed before a limit order is
// submitted to the on-chain order book. Amounts are base-unit integers
// (wei-equivalent) encoded as decimal strings to preserve precision across
// JSON boundaries.
type LimitOrderPayload struct {
	Salt        string `json:"salt"`
	Maker       string `json:"maker"`
	Base        string `json:"base"`  // base token contract address
	Quote       string `json:"quote"` // quote token contract address
	BaseAmount  string `json:"baseAmount"`
	QuoteAmount string `json:"quoteAmount"`
	Expiration  string `json:"expiration"`
	Nonce       string `json:"nonce"`
	Side        int    `json:"side"` // 0 = buy base with quote, 1 = sell base for quote
}

// Signer provides EIP-712 signing of LimitOrderPayload structs for the
// on-chain order book contract at a given chain ID.
type Signer struct {
	privateKey *ecdsa.PrivateKey
	address    common.Address
	chainID    int
	domainSep  []byte
}

// NewSigner creates a Signer from a hex-encoded secp256k1 private key and
// the target chain ID.
func NewSigner(privateKeyHex string, chainID int) (*Signer, error) {
	keyHex := strings.TrimPrefix(privateKeyHex, "0x")
	pk, err := ethcrypto.HexToECDSA(keyHex)
	if err != nil {
		return nil, fmt.Errorf("onchain/signer: invalid private key: %w", err)
	}

	s := &Signer{
		privateKey: pk,
		address:    ethcrypto.PubkeyToAddress(pk.PublicKey),
		chainID:    chainID,
	}
	s.domainSep = s.buildDomainSeparator("KeeperOrderBook", "1", chainID)
	return s, nil
}

// Address returns the Ethereum address derived from the signer's private
// key — the keeper's on-chain identity as an order maker.
func (s *Signer) Address() common.Address {
	return s.address
}

// SignOrder signs a LimitOrderPayload and returns a hex-encoded 65-byte
// signature (r || s || v).
func (s *Signer) SignOrder(order LimitOrderPayload) (string, error) {
	structHash, err := orderStructHash(order)
	if err != nil {
		return "", err
	}
	digest := eip712Hash(s.domainSep, structHash)
	return s.signDigest(digest)
}

func (s *Signer) buildDomainSeparator(name, version string, chainID int) []byte {
	return ethcrypto.Keccak256(
		concatBytes(
			eip712DomainTypeHash,
			ethcrypto.Keccak256([]byte(name)),
			ethcrypto.Keccak256([]byte(version)),
			bigIntTo32Bytes(big.NewInt(int64(chainID))),
		),
	)
}

// eip712Hash computes keccak256("\x19\x01" || domainSeparator || structHash).
func eip712Hash(domainSep, structHash []byte) []byte {
	return ethcrypto.Keccak256(concatBytes([]byte{0x19, 0x01}, domainSep, structHash))
}

func (s *Signer) signDigest(digest []byte) (string, error) {
	sig, err := ethcrypto.Sign(digest, s.privateKey)
	if err != nil {
		return "", fmt.Errorf("onchain/signer: signing: %w", err)
	}
	if sig[64] < 27 {
		sig[64] += 27
	}
	return "0x" + hex.EncodeToString(sig), nil
}

func orderStructHash(o LimitOrderPayload) ([]byte, error) {
	salt, ok := new(big.Int).SetString(o.Salt, 10)
	if !ok {
		return nil, fmt.Errorf("onchain/signer: invalid salt %q", o.Salt)
	}
	baseAmt, ok := new(big.Int).SetString(o.BaseAmount, 10)
	if !ok {
		return nil, fmt.Errorf("onchain/signer: invalid baseAmount %q", o.BaseAmount)
	}
	quoteAmt, ok := new(big.Int).SetString(o.QuoteAmount, 10)
	if !ok {
		return nil, fmt.Errorf("onchain/signer: invalid quoteAmount %q", o.QuoteAmount)
	}
	expiration, ok := new(big.Int).SetString(o.Expiration, 10)
	if !ok {
		return nil, fmt.Errorf("onchain/signer: invalid expiration %q", o.Expiration)
	}
	nonce, ok := new(big.Int).SetString(o.Nonce, 10)
	if !ok {
		return nil, fmt.Errorf("onchain/signer: invalid nonce %q", o.Nonce)
	}

	maker := common.HexToAddress(o.Maker)
	base := common.HexToAddress(o.Base)
	quote := common.HexToAddress(o.Quote)

	return ethcrypto.Keccak256(
		concatBytes(
			orderTypeHash,
			bigIntTo32Bytes(salt),
			common.LeftPadBytes(maker.Bytes(), 32),
			common.LeftPadBytes(base.Bytes(), 32),
			common.LeftPadBytes(quote.Bytes(), 32),
			bigIntTo32Bytes(baseAmt),
			bigIntTo32Bytes(quoteAmt),
			bigIntTo32Bytes(expiration),
			bigIntTo32Bytes(nonce),
			bigIntTo32Bytes(big.NewInt(int64(o.Side))),
		),
	), nil
}

func bigIntTo32Bytes(n *big.Int) []byte {
	b := n.Bytes()
	if len(b) >= 32 {
		return b[:32]
	}
	padded := make([]byte, 32)
	copy(padded[32-len(b):], b)
	return padded
}

func concatBytes(slices ...[]byte) []byte {
	total := 0
	for _, s := range slices {
		total += len(s)
	}
	buf := make([]byte, 0, total)
	for _, s := range slices {
		buf = append(buf, s...)
	}
	return buf
}
