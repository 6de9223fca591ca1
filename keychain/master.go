package keychain

import (
	"encoding/binary"
	"encoding/hex"
	"fmt"
	"sync"

	"github.com/btcsuite/btcd/btcutil/hdkeychain"
	"github.com/btcsuite/btcd/chaincfg"
)

// KeyLen is the length of every private key and chain code handled here.
const KeyLen = 32

// knownNets are the networks an extended key string is matched against.
var knownNets = []*chaincfg.Params{
	&chaincfg.MainNetParams,
	&chaincfg.TestNet3Params,
	&chaincfg.RegressionNetParams,
	&chaincfg.SimNetParams,
	&chaincfg.SigNetParams,
}

// MasterKeyMaterial is an extended private key handed in by the wallet for
// the duration of one export. It may sit at the root of a hierarchy (depth 0)
// or deeper, for example at an account node. Callers own it and should call
// Zero once the export is done.
type MasterKeyMaterial struct {
	mu sync.RWMutex

	curve      Curve
	key        [KeyLen]byte
	chainCode  [KeyLen]byte
	depth      uint8
	childIndex uint32
	parentFP   uint32
	net        *chaincfg.Params
	zeroed     bool
}

// NewMasterKeyMaterial wraps raw key material, for example as returned by an
// MPC wallet, positioned at depth with the given child index.
func NewMasterKeyMaterial(curve Curve, key, chainCode []byte, depth uint8,
	childIndex uint32, net *chaincfg.Params) (*MasterKeyMaterial, error) {

	if err := curve.Validate(); err != nil {
		return nil, err
	}
	if len(key) != KeyLen || len(chainCode) != KeyLen {
		return nil, fmt.Errorf("%w: key %d bytes, chain code %d bytes",
			ErrInvalidKeyLength, len(key), len(chainCode))
	}
	if net == nil {
		net = &chaincfg.MainNetParams
	}

	m := &MasterKeyMaterial{
		curve:      curve,
		depth:      depth,
		childIndex: childIndex,
		net:        net,
	}
	copy(m.key[:], key)
	copy(m.chainCode[:], chainCode)

	return m, nil
}

// MasterFromSeed derives the root key of a hierarchy from a seed: BIP0032 for
// secp256k1, SLIP-0010 for ed25519.
func MasterFromSeed(curve Curve, seed []byte,
	net *chaincfg.Params) (*MasterKeyMaterial, error) {

	if net == nil {
		net = &chaincfg.MainNetParams
	}

	switch curve {
	case CurveSecp256k1:
		root, err := hdkeychain.NewMaster(seed, net)
		if err != nil {
			return nil, err
		}
		defer root.Zero()

		return fromExtendedKey(root, net)

	case CurveEd25519:
		if len(seed) < hdkeychain.MinSeedBytes ||
			len(seed) > hdkeychain.MaxSeedBytes {

			return nil, hdkeychain.ErrInvalidSeedLen
		}

		key, chainCode := slip10Master(seed)
		defer zero(key)
		defer zero(chainCode)

		return NewMasterKeyMaterial(curve, key, chainCode, 0, 0, net)

	default:
		return nil, fmt.Errorf("%w: %v", ErrUnknownCurve, curve)
	}
}

// MasterFromExtended parses a serialized extended private key such as an
// xprv or tprv.
func MasterFromExtended(xprv string) (*MasterKeyMaterial, error) {
	ext, err := hdkeychain.NewKeyFromString(xprv)
	if err != nil {
		return nil, err
	}
	defer ext.Zero()

	if !ext.IsPrivate() {
		return nil, fmt.Errorf("extended key is public, a private " +
			"key is required")
	}

	for _, net := range knownNets {
		if ext.IsForNet(net) {
			return fromExtendedKey(ext, net)
		}
	}

	return nil, fmt.Errorf("extended key is for an unknown network")
}

// fromExtendedKey copies the private material of ext.
func fromExtendedKey(ext *hdkeychain.ExtendedKey,
	net *chaincfg.Params) (*MasterKeyMaterial, error) {

	priv, err := ext.ECPrivKey()
	if err != nil {
		return nil, err
	}
	keyBytes := priv.Serialize()
	defer zero(keyBytes)
	priv.Zero()

	m, err := NewMasterKeyMaterial(
		CurveSecp256k1, keyBytes, ext.ChainCode(), ext.Depth(),
		ext.ChildIndex(), net,
	)
	if err != nil {
		return nil, err
	}
	m.parentFP = ext.ParentFingerprint()

	return m, nil
}

// Curve returns the curve of the master key.
func (m *MasterKeyMaterial) Curve() Curve {
	return m.curve
}

// Depth returns how many levels below the root of its hierarchy the key is.
func (m *MasterKeyMaterial) Depth() uint8 {
	return m.depth
}

// ChildIndex returns the index the key was derived at from its parent.
func (m *MasterKeyMaterial) ChildIndex() uint32 {
	return m.childIndex
}

// Account returns the BIP0044 account of an account level key and zero for
// any other key.
func (m *MasterKeyMaterial) Account() uint32 {
	if m.depth != 3 || m.childIndex < HardenedKeyStart {
		return 0
	}

	return m.childIndex - HardenedKeyStart
}

// Net returns the network the key was issued for.
func (m *MasterKeyMaterial) Net() *chaincfg.Params {
	return m.net
}

// withKey runs f with the private key and chain code while holding the read
// lock. The slices must not escape f.
func (m *MasterKeyMaterial) withKey(f func(key, chainCode []byte) error) error {
	m.mu.RLock()
	defer m.mu.RUnlock()

	if m.zeroed {
		return ErrMasterZeroed
	}

	return f(m.key[:], m.chainCode[:])
}

// Extended returns the whole-account export string of the key: an
// xprv/tprv for secp256k1 and, since ed25519 has no registered serialization,
// the hex of key || chain code prefixed with "fprv" for ed25519.
func (m *MasterKeyMaterial) Extended() (string, error) {
	var out string
	err := m.withKey(func(key, chainCode []byte) error {
		switch m.curve {
		case CurveSecp256k1:
			var parentFP [4]byte
			binary.BigEndian.PutUint32(parentFP[:], m.parentFP)

			// Zero wipes the buffers it was built from, so the
			// extended key gets its own copies.
			version := m.net.HDPrivateKeyID
			ext := hdkeychain.NewExtendedKey(
				version[:], append([]byte(nil), key...),
				append([]byte(nil), chainCode...),
				parentFP[:], m.depth, m.childIndex, true,
			)
			out = ext.String()
			ext.Zero()

		case CurveEd25519:
			out = "fprv" + hex.EncodeToString(key) +
				hex.EncodeToString(chainCode)

		default:
			return fmt.Errorf("%w: %v", ErrUnknownCurve, m.curve)
		}

		return nil
	})

	return out, err
}

// Zero overwrites the key material. Any later use fails with
// ErrMasterZeroed. Calling Zero more than once is harmless.
func (m *MasterKeyMaterial) Zero() {
	if m == nil {
		return
	}

	m.mu.Lock()
	defer m.mu.Unlock()

	zero(m.key[:])
	zero(m.chainCode[:])
	m.zeroed = true
}

// zero overwrites b with zeroes.
func zero(b []byte) {
	for i := range b {
		b[i] = 0
	}
}
