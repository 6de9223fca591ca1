package keychain

import "fmt"

// Curve identifies the signature family of a key.
type Curve uint8

const (
	// CurveSecp256k1 keys are derived with BIP0032 and used by ECDSA and
	// Schnorr chains, including every UTXO chain.
	CurveSecp256k1 Curve = iota

	// CurveEd25519 keys are derived with SLIP-0010 and used by EdDSA
	// chains.
	CurveEd25519
)

// String returns the configuration name of the curve.
func (c Curve) String() string {
	switch c {
	case CurveSecp256k1:
		return "secp256k1"
	case CurveEd25519:
		return "ed25519"
	default:
		return fmt.Sprintf("curve(%d)", uint8(c))
	}
}

// Validate returns ErrUnknownCurve for unsupported curves.
func (c Curve) Validate() error {
	switch c {
	case CurveSecp256k1, CurveEd25519:
		return nil
	default:
		return fmt.Errorf("%w: %v", ErrUnknownCurve, c)
	}
}

// ParseCurve maps a configuration name to a Curve.
func ParseCurve(name string) (Curve, error) {
	switch name {
	case "secp256k1", "ecdsa", "":
		return CurveSecp256k1, nil
	case "ed25519", "eddsa":
		return CurveEd25519, nil
	default:
		return 0, fmt.Errorf("%w: %q", ErrUnknownCurve, name)
	}
}
