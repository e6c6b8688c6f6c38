// Package wallet implements wallet-signature identity verification and the
// backend signing identity used for all ledger writes.
package wallet

import (
	"encoding/hex"
	"fmt"
	"strings"

	"github.com/ethereum/go-ethereum/common"
	"github.com/ethereum/go-ethereum/crypto"

	"github.com/learnledger/backend/internal/errors"
)

// Verify checks that signature was produced over message by the private key
// behind claimedAddress. The message is hashed with the EIP-191
// personal-message prefix, matching what browser wallets sign. Pure: no
// ledger access, no side effects.
func Verify(claimedAddress, message, signature string) error {
	if !common.IsHexAddress(claimedAddress) {
		return errors.AuthenticationFailed("invalid wallet address")
	}

	sig, err := decodeSignature(signature)
	if err != nil {
		return errors.AuthenticationFailed(err.Error())
	}

	pubKey, err := crypto.SigToPub(personalHash(message), sig)
	if err != nil {
		return errors.AuthenticationFailed("signature recovery failed")
	}

	recovered := crypto.PubkeyToAddress(*pubKey)
	if !strings.EqualFold(recovered.Hex(), common.HexToAddress(claimedAddress).Hex()) {
		return errors.AuthenticationFailed("")
	}
	return nil
}

// personalHash returns keccak256 of the EIP-191 prefixed message.
func personalHash(message string) []byte {
	prefixed := fmt.Sprintf("\x19Ethereum Signed Message:\n%d%s", len(message), message)
	return crypto.Keccak256([]byte(prefixed))
}

// decodeSignature parses a 65-byte hex signature and normalizes the
// recovery id: wallets emit V as 27/28, recovery wants 0/1.
func decodeSignature(signature string) ([]byte, error) {
	raw, err := hex.DecodeString(strings.TrimPrefix(signature, "0x"))
	if err != nil {
		return nil, fmt.Errorf("signature is not valid hex")
	}
	if len(raw) != crypto.SignatureLength {
		return nil, fmt.Errorf("signature must be %d bytes", crypto.SignatureLength)
	}

	sig := make([]byte, crypto.SignatureLength)
	copy(sig, raw)
	if sig[64] >= 27 {
		sig[64] -= 27
	}
	if sig[64] > 1 {
		return nil, fmt.Errorf("invalid recovery id")
	}
	return sig, nil
}
