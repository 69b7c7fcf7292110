// signer.go isolates the venue's order-signing scheme behind a small
// interface. Credential loading and signing-scheme selection are explicitly
// out of scope for the core agent; the core only ever calls Signer.Sign.
//
// EIP712Signer is one concrete example, grounded on an EIP-712 "attest
// ownership of this order" pattern common to on-chain CLOB venues. A venue
// that signs differently (a plain API key, a different typed-data schema)
// implements the same interface without touching any other package.
package venue

import (
	"context"
	"crypto/ecdsa"
	"fmt"
	"math/big"

	"github.com/ethereum/go-ethereum/common"
	ethmath "github.com/ethereum/go-ethereum/common/math"
	"github.com/ethereum/go-ethereum/crypto"
	"github.com/ethereum/go-ethereum/signer/core/apitypes"
)

// OrderPayload is the venue-agnostic content a Signer must attest to.
type OrderPayload struct {
	MarketID   string
	MakerID    string
	SideIsA    bool
	StakeWire  *big.Int
	OddsWire   *big.Int
	Nonce      int64
	Expiration int64
}

// SignedOrder is an OrderPayload plus whatever authentication material the
// venue's REST API expects alongside it.
type SignedOrder struct {
	Payload   OrderPayload
	Signature string
}

// Signer attests to an order on behalf of the agent's trading identity. The
// concrete scheme (EIP-712, HMAC API key, bearer token) is never visible
// outside this package.
type Signer interface {
	Sign(ctx context.Context, payload OrderPayload) (SignedOrder, error)
}

// EIP712Signer signs orders as EIP-712 typed data with an EOA private key,
// the scheme used by on-chain CLOB venues where the signature itself is the
// authorization (no separate API key exchange).
type EIP712Signer struct {
	privateKey *ecdsa.PrivateKey
	address    common.Address
	chainID    *big.Int
}

// NewEIP712Signer builds a signer from a hex-encoded private key (with or
// without 0x prefix) and the venue's chain ID.
func NewEIP712Signer(privateKeyHex string, chainID int64) (*EIP712Signer, error) {
	keyHex := privateKeyHex
	if len(keyHex) >= 2 && keyHex[:2] == "0x" {
		keyHex = keyHex[2:]
	}

	key, err := crypto.HexToECDSA(keyHex)
	if err != nil {
		return nil, fmt.Errorf("parse private key: %w", err)
	}

	return &EIP712Signer{
		privateKey: key,
		address:    crypto.PubkeyToAddress(key.PublicKey),
		chainID:    big.NewInt(chainID),
	}, nil
}

// Address returns the signer's Ethereum address.
func (s *EIP712Signer) Address() common.Address {
	return s.address
}

// Sign produces an EIP-712 signature over the order payload.
func (s *EIP712Signer) Sign(ctx context.Context, payload OrderPayload) (SignedOrder, error) {
	sideStr := "B"
	if payload.SideIsA {
		sideStr = "A"
	}

	typedData := apitypes.TypedData{
		Types: apitypes.Types{
			"EIP712Domain": {
				{Name: "name", Type: "string"},
				{Name: "version", Type: "string"},
				{Name: "chainId", Type: "uint256"},
			},
			"MakerOrder": {
				{Name: "maker", Type: "address"},
				{Name: "marketId", Type: "string"},
				{Name: "side", Type: "string"},
				{Name: "stake", Type: "uint256"},
				{Name: "odds", Type: "uint256"},
				{Name: "nonce", Type: "uint256"},
				{Name: "expiration", Type: "uint256"},
			},
		},
		PrimaryType: "MakerOrder",
		Domain: apitypes.TypedDataDomain{
			Name:    "OddsMaximizerOrders",
			Version: "1",
			ChainId: (*ethmath.HexOrDecimal256)(new(big.Int).Set(s.chainID)),
		},
		Message: apitypes.TypedDataMessage{
			"maker":      s.address.Hex(),
			"marketId":   payload.MarketID,
			"side":       sideStr,
			"stake":      payload.StakeWire.String(),
			"odds":       payload.OddsWire.String(),
			"nonce":      fmt.Sprintf("%d", payload.Nonce),
			"expiration": fmt.Sprintf("%d", payload.Expiration),
		},
	}

	hash, _, err := apitypes.TypedDataAndHash(typedData)
	if err != nil {
		return SignedOrder{}, fmt.Errorf("typed data hash: %w", err)
	}

	sig, err := crypto.Sign(hash, s.privateKey)
	if err != nil {
		return SignedOrder{}, fmt.Errorf("sign typed data: %w", err)
	}
	if sig[64] < 27 {
		sig[64] += 27
	}

	return SignedOrder{
		Payload:   payload,
		Signature: "0x" + common.Bytes2Hex(sig),
	}, nil
}
