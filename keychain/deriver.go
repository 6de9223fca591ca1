package keychain

import (
	"encoding/binary"
	"fmt"

	"github.com/btcsuite/btcd/btcutil/hdkeychain"
)

// Deriver derives the raw private key found at path below a master key.
type Deriver interface {
	// DeriveKey returns the 32-byte private key at path. If the master is
	// not a root key, path must pass through it and only the part below
	// the master is derived.
	DeriveKey(master *MasterKeyMaterial, path DerivationPath) ([]byte, error)
}

// DefaultDeriver derives secp256k1 keys with BIP0032 and ed25519 keys with
// SLIP-0010.
type DefaultDeriver struct{}

// A compile-time check to ensure DefaultDeriver implements the Deriver
// interface.
var _ Deriver = (*DefaultDeriver)(nil)

// DeriveKey returns the private key at path.
//
// NOTE: This is part of the Deriver interface.
func (d *DefaultDeriver) DeriveKey(master *MasterKeyMaterial,
	path DerivationPath) ([]byte, error) {

	rel, err := relativePath(master, path)
	if err != nil {
		return nil, err
	}

	var key []byte
	err = master.withKey(func(masterKey, chainCode []byte) error {
		var err error
		switch master.curve {
		case CurveSecp256k1:
			key, err = deriveSecp256k1(master, masterKey, chainCode, rel)

		case CurveEd25519:
			key, err = deriveEd25519(masterKey, chainCode, rel)

		default:
			err = fmt.Errorf("%w: %v", ErrUnknownCurve, master.curve)
		}

		return err
	})
	if err != nil {
		return nil, err
	}

	log.Tracef("Derived %v key at %v", master.curve, path)

	return key, nil
}

// relativePath strips the levels above master from path. A root master takes
// the whole path.
func relativePath(master *MasterKeyMaterial, path DerivationPath) (
	DerivationPath, error) {

	depth := int(master.depth)
	switch {
	case depth == 0:
		return path, nil

	case depth > len(path):
		return nil, fmt.Errorf("%w: %v is above master at depth %d",
			ErrInvalidPath, path, depth)

	case path[depth-1] != master.childIndex:
		return nil, fmt.Errorf("%w: %v does not pass through master "+
			"at depth %d", ErrInvalidPath, path, depth)
	}

	return path[depth:], nil
}

// deriveSecp256k1 runs BIP0032 private derivation along path.
func deriveSecp256k1(master *MasterKeyMaterial, key, chainCode []byte,
	path DerivationPath) ([]byte, error) {

	var parentFP [4]byte
	binary.BigEndian.PutUint32(parentFP[:], master.parentFP)

	version := master.net.HDPrivateKeyID
	ext := hdkeychain.NewExtendedKey(
		version[:], key, chainCode, parentFP[:], master.depth,
		master.childIndex, true,
	)

	// The first extended key shares its buffers with the master, so it is
	// only zeroed once it is no longer the master itself.
	cur := ext
	for _, i := range path {
		child, err := cur.Derive(i)
		if cur != ext {
			cur.Zero()
		}
		if err != nil {
			return nil, fmt.Errorf("unable to derive child %d: %w",
				i, err)
		}

		cur = child
	}

	priv, err := cur.ECPrivKey()
	if cur != ext {
		cur.Zero()
	}
	if err != nil {
		return nil, err
	}

	out := priv.Serialize()
	priv.Zero()

	return out, nil
}

// DeriveAssetKey validates spec against master and derives the asset's key
// with d under the given path style.
func DeriveAssetKey(d Deriver, master *MasterKeyMaterial,
	spec AssetDerivationSpec, style PathStyle) ([]byte, error) {

	if err := spec.Validate(); err != nil {
		return nil, err
	}
	if spec.Curve != master.Curve() {
		return nil, fmt.Errorf("%w: asset %q is %v, master is %v",
			ErrCurveMismatch, spec.Name, spec.Curve, master.Curve())
	}

	return d.DeriveKey(master, spec.Path(style))
}
