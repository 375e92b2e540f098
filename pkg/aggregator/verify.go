package aggregator

import (
	"bytes"
	"fmt"

	"github.com/ethereum/go-ethereum/crypto"
)

// verifySignature checks that signature is a valid secp256k1 signature
// over keccak256(messageBytes) by the holder of pubKey. Authorities sign
// independently (no BLS aggregation, no consensus round among them) per
// this system's scope, so each signature is checked individually.
func verifySignature(pubKey, messageBytes, signature []byte) error {
	if len(signature) != 65 {
		return fmt.Errorf("expected a 65-byte recoverable signature, got %d bytes", len(signature))
	}

	digest := crypto.Keccak256(messageBytes)
	recovered, err := crypto.SigToPub(digest, signature)
	if err != nil {
		return fmt.Errorf("recover public key from signature: %w", err)
	}

	expected, err := crypto.DecompressPubkey(pubKey)
	if err != nil {
		expected, err = crypto.UnmarshalPubkey(pubKey)
		if err != nil {
			return fmt.Errorf("decode authority public key: %w", err)
		}
	}

	if !bytes.Equal(crypto.FromECDSAPub(recovered), crypto.FromECDSAPub(expected)) {
		return fmt.Errorf("signature does not recover to the claimed authority key")
	}
	return nil
}
