package wallet

import (
	"crypto/ecdsa"
	"fmt"
	"math/big"
	"strings"

	"github.com/ethereum/go-ethereum/common"
	"github.com/ethereum/go-ethereum/core/types"
	"github.com/ethereum/go-ethereum/crypto"
)

// SigningIdentity is the single backend key that signs every ledger write.
// All on-chain ownership and purchase records are attributed to this
// identity, not to the authenticated end user; end-user wallets only prove
// identity at login. The identity is injected into the orchestrator, which
// owns its nonce sequence.
type SigningIdentity struct {
	key     *ecdsa.PrivateKey
	address common.Address
}

// NewSigningIdentity parses a hex-encoded secp256k1 private key.
func NewSigningIdentity(hexKey string) (*SigningIdentity, error) {
	key, err := crypto.HexToECDSA(strings.TrimPrefix(hexKey, "0x"))
	if err != nil {
		return nil, fmt.Errorf("parse signing key: %w", err)
	}
	return &SigningIdentity{
		key:     key,
		address: crypto.PubkeyToAddress(key.PublicKey),
	}, nil
}

// Address returns the identity's wallet address.
func (s *SigningIdentity) Address() common.Address {
	return s.address
}

// SignTx signs a transaction for the given chain.
func (s *SigningIdentity) SignTx(tx *types.Transaction, chainID *big.Int) (*types.Transaction, error) {
	signed, err := types.SignTx(tx, types.LatestSignerForChainID(chainID), s.key)
	if err != nil {
		return nil, fmt.Errorf("sign transaction: %w", err)
	}
	return signed, nil
}

// SignMessage signs message with the EIP-191 personal prefix, returning a
// 65-byte signature with V in 27/28 form. Used by tests and tooling to
// produce wallet-compatible login signatures.
func (s *SigningIdentity) SignMessage(message string) (string, error) {
	sig, err := crypto.Sign(personalHash(message), s.key)
	if err != nil {
		return "", fmt.Errorf("sign message: %w", err)
	}
	sig[64] += 27
	return "0x" + common.Bytes2Hex(sig), nil
}
