package keychain

import (
	"errors"
	"fmt"
	"strconv"
	"strings"

	"github.com/btcsuite/btcd/btcutil/hdkeychain"
)

const (
	// BIP0044Purpose is the "purpose" value of the BIP0044 hierarchy every
	// asset key is derived under:
	//
	//   - m/44'/coinType'/account'/change/index
	BIP0044Purpose = 44

	// HardenedKeyStart is the index at which hardened children begin.
	HardenedKeyStart = hdkeychain.HardenedKeyStart

	// MaxPathDepth is the largest number of levels a path may have.
	MaxPathDepth = 255
)

var (
	// ErrInvalidKeyLength is returned when key bytes of an unexpected size
	// are handed to derivation or encoding.
	ErrInvalidKeyLength = errors.New("invalid key length")

	// ErrCurveMismatch is returned when an asset is derived from a master
	// key of another curve.
	ErrCurveMismatch = errors.New("asset curve does not match master key")

	// ErrInvalidPath is returned for malformed paths or out of range path
	// elements.
	ErrInvalidPath = errors.New("invalid derivation path")

	// ErrUnknownCurve is returned for an unsupported curve.
	ErrUnknownCurve = errors.New("unknown curve")

	// ErrMasterZeroed is returned when a master key is used after Zero.
	ErrMasterZeroed = errors.New("master key material was zeroed")
)

// CoinType is a registered SLIP-0044 coin type.
type CoinType uint32

const (
	// CoinTypeBitcoin specifies the BIP44 coin type for Bitcoin key
	// derivation.
	CoinTypeBitcoin CoinType = 0

	// CoinTypeTestnet specifies the BIP44 coin type for all testnet key
	// derivation.
	CoinTypeTestnet CoinType = 1

	// CoinTypeLitecoin specifies the BIP44 coin type for Litecoin key
	// derivation.
	CoinTypeLitecoin CoinType = 2

	// CoinTypeDogecoin specifies the BIP44 coin type for Dogecoin.
	CoinTypeDogecoin CoinType = 3

	// CoinTypeDash specifies the BIP44 coin type for Dash.
	CoinTypeDash CoinType = 5

	// CoinTypeEthereum specifies the BIP44 coin type for Ethereum and
	// other EVM chains.
	CoinTypeEthereum CoinType = 60

	// CoinTypeBitcoinCash specifies the BIP44 coin type for Bitcoin Cash.
	CoinTypeBitcoinCash CoinType = 145

	// CoinTypeStellar specifies the BIP44 coin type for Stellar.
	CoinTypeStellar CoinType = 148

	// CoinTypeTron specifies the BIP44 coin type for Tron.
	CoinTypeTron CoinType = 195

	// CoinTypeAlgorand specifies the BIP44 coin type for Algorand.
	CoinTypeAlgorand CoinType = 283

	// CoinTypePolkadot specifies the BIP44 coin type for Polkadot.
	CoinTypePolkadot CoinType = 354

	// CoinTypeSolana specifies the BIP44 coin type for Solana.
	CoinTypeSolana CoinType = 501

	// CoinTypeTon specifies the BIP44 coin type for TON.
	CoinTypeTon CoinType = 607

	// CoinTypeCardano specifies the BIP44 coin type for Cardano.
	CoinTypeCardano CoinType = 1815
)

var coinTypeNames = map[CoinType]string{
	CoinTypeBitcoin:     "bitcoin",
	CoinTypeTestnet:     "testnet",
	CoinTypeLitecoin:    "litecoin",
	CoinTypeDogecoin:    "dogecoin",
	CoinTypeDash:        "dash",
	CoinTypeEthereum:    "ethereum",
	CoinTypeBitcoinCash: "bitcoincash",
	CoinTypeStellar:     "stellar",
	CoinTypeTron:        "tron",
	CoinTypeAlgorand:    "algorand",
	CoinTypePolkadot:    "polkadot",
	CoinTypeSolana:      "solana",
	CoinTypeTon:         "ton",
	CoinTypeCardano:     "cardano",
}

// String returns the registered name of the coin type, or its number.
func (c CoinType) String() string {
	if name, ok := coinTypeNames[c]; ok {
		return name
	}

	return fmt.Sprintf("coin(%d)", uint32(c))
}

// PathStyle selects which levels of the BIP0044 hierarchy are hardened.
type PathStyle uint8

const (
	// PathStyleBIP44 hardens purpose, coin type and account, as BIP0044
	// prescribes.
	PathStyleBIP44 PathStyle = iota

	// PathStyleUnhardened derives every level non-hardened. MPC wallets
	// that can only run public derivation on their shared key use it.
	PathStyleUnhardened
)

// String returns the configuration name of the style.
func (p PathStyle) String() string {
	switch p {
	case PathStyleBIP44:
		return "bip44"
	case PathStyleUnhardened:
		return "unhardened"
	default:
		return fmt.Sprintf("pathstyle(%d)", uint8(p))
	}
}

// ParsePathStyle maps a configuration name to a PathStyle.
func ParsePathStyle(name string) (PathStyle, error) {
	switch name {
	case "bip44", "":
		return PathStyleBIP44, nil
	case "unhardened":
		return PathStyleUnhardened, nil
	default:
		return 0, fmt.Errorf("%w: unknown path style %q",
			ErrInvalidPath, name)
	}
}

// DerivationPath is a list of child indexes from a master key. Hardened
// elements carry the HardenedKeyStart offset.
type DerivationPath []uint32

// Harden returns the hardened form of index i.
func Harden(i uint32) uint32 {
	return i + HardenedKeyStart
}

// String renders the path in the usual m/44'/0'/0'/0/0 notation.
func (p DerivationPath) String() string {
	var b strings.Builder
	b.WriteString("m")

	for _, i := range p {
		b.WriteByte('/')
		if i >= HardenedKeyStart {
			b.WriteString(strconv.FormatUint(
				uint64(i-HardenedKeyStart), 10,
			))
			b.WriteByte('\'')

			continue
		}

		b.WriteString(strconv.FormatUint(uint64(i), 10))
	}

	return b.String()
}

// IsHardened returns true if every element of the path is hardened.
func (p DerivationPath) IsHardened() bool {
	for _, i := range p {
		if i < HardenedKeyStart {
			return false
		}
	}

	return true
}

// ParseDerivationPath parses a path such as m/44'/0'/0'/0/0. Both ' and h
// mark hardened elements.
func ParseDerivationPath(s string) (DerivationPath, error) {
	parts := strings.Split(strings.TrimSpace(s), "/")
	if len(parts) == 0 || parts[0] != "m" {
		return nil, fmt.Errorf("%w: %q must start with m", ErrInvalidPath,
			s)
	}
	if len(parts)-1 > MaxPathDepth {
		return nil, fmt.Errorf("%w: too deep", ErrInvalidPath)
	}

	path := make(DerivationPath, 0, len(parts)-1)
	for _, part := range parts[1:] {
		hardened := strings.HasSuffix(part, "'") ||
			strings.HasSuffix(part, "h") ||
			strings.HasSuffix(part, "H")
		if hardened {
			part = part[:len(part)-1]
		}

		i, err := strconv.ParseUint(part, 10, 32)
		if err != nil || i >= HardenedKeyStart {
			return nil, fmt.Errorf("%w: bad element %q in %q",
				ErrInvalidPath, part, s)
		}

		index := uint32(i)
		if hardened {
			index = Harden(index)
		}
		path = append(path, index)
	}

	return path, nil
}
