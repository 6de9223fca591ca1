package keychain

import (
	"crypto/ed25519"
	"fmt"

	"github.com/btcsuite/btcd/btcec/v2"
)

// PublicKey returns the serialized public key of a raw private key: the
// 33-byte compressed point for secp256k1 and the 32-byte point for ed25519.
func PublicKey(curve Curve, priv []byte) ([]byte, error) {
	if len(priv) != KeyLen {
		return nil, fmt.Errorf("%w: got %d bytes, want %d",
			ErrInvalidKeyLength, len(priv), KeyLen)
	}

	switch curve {
	case CurveSecp256k1:
		privKey, pubKey := btcec.PrivKeyFromBytes(priv)
		defer privKey.Zero()

		return pubKey.SerializeCompressed(), nil

	case CurveEd25519:
		full := ed25519.NewKeyFromSeed(priv)
		defer zero(full)

		pub := make([]byte, ed25519.PublicKeySize)
		copy(pub, full[ed25519.SeedSize:])

		return pub, nil

	default:
		return nil, fmt.Errorf("%w: %v", ErrUnknownCurve, curve)
	}
}
