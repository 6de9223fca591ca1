package keychain

import (
	"encoding/json"
	"fmt"
)

// Protocol is the transaction model of an asset's chain. It decides which
// textual encodings apply to the asset's key.
type Protocol uint8

const (
	// ProtocolUTXO chains (Bitcoin and its forks) use WIF for private
	// keys.
	ProtocolUTXO Protocol = iota

	// ProtocolAccount chains (EVM, Solana, ...) use the raw key.
	ProtocolAccount
)

// String returns the configuration name of the protocol.
func (p Protocol) String() string {
	switch p {
	case ProtocolUTXO:
		return "utxo"
	case ProtocolAccount:
		return "account"
	default:
		return fmt.Sprintf("protocol(%d)", uint8(p))
	}
}

// ParseProtocol maps a configuration name to a Protocol.
func ParseProtocol(name string) (Protocol, error) {
	switch name {
	case "utxo":
		return ProtocolUTXO, nil
	case "account", "":
		return ProtocolAccount, nil
	default:
		return 0, fmt.Errorf("unknown protocol %q", name)
	}
}

// AssetDerivationSpec holds everything needed to derive one asset's key from
// a master key. For a given master, the tuple (CoinType, Account, Change,
// Index) names exactly one key.
type AssetDerivationSpec struct {
	// Name is the display name of the asset.
	Name string

	// CoinType is the SLIP-0044 coin type of the asset.
	CoinType CoinType

	// Account is the BIP0044 account.
	Account uint32

	// Change selects the external (0) or internal (1) chain.
	Change uint32

	// Index is the address index within the chain.
	Index uint32

	// Curve is the curve of the asset's keys.
	Curve Curve

	// Protocol decides whether the key gets a WIF encoding.
	Protocol Protocol

	// Mainnet selects the mainnet WIF version byte.
	Mainnet bool
}

// Validate checks that the spec names a derivable key.
func (a AssetDerivationSpec) Validate() error {
	if err := a.Curve.Validate(); err != nil {
		return err
	}

	switch {
	case uint32(a.CoinType) >= HardenedKeyStart:
		return fmt.Errorf("%w: coin type %d out of range",
			ErrInvalidPath, a.CoinType)

	case a.Account >= HardenedKeyStart:
		return fmt.Errorf("%w: account %d out of range",
			ErrInvalidPath, a.Account)

	case a.Change > 1:
		return fmt.Errorf("%w: change must be 0 or 1, got %d",
			ErrInvalidPath, a.Change)

	case a.Index >= HardenedKeyStart:
		return fmt.Errorf("%w: index %d out of range", ErrInvalidPath,
			a.Index)
	}

	return nil
}

// Path returns the derivation path of the spec under the given style.
// Ed25519 keys are derived with SLIP-0010, which only defines hardened
// children, so every level is hardened for them regardless of style.
func (a AssetDerivationSpec) Path(style PathStyle) DerivationPath {
	path := DerivationPath{
		BIP0044Purpose, uint32(a.CoinType), a.Account, a.Change, a.Index,
	}

	switch {
	case a.Curve == CurveEd25519:
		for i := range path {
			path[i] = Harden(path[i])
		}

	case style == PathStyleBIP44:
		for i := 0; i < 3; i++ {
			path[i] = Harden(path[i])
		}
	}

	return path
}

// assetJSON is the catalog representation of an AssetDerivationSpec.
type assetJSON struct {
	Name     string `json:"name"`
	CoinType uint32 `json:"coin_type"`
	Account  uint32 `json:"account"`
	Change   uint32 `json:"change"`
	Index    uint32 `json:"index"`
	Curve    string `json:"curve"`
	Protocol string `json:"protocol"`
	Mainnet  bool   `json:"mainnet"`
}

// MarshalJSON encodes the spec with human readable enum names.
func (a AssetDerivationSpec) MarshalJSON() ([]byte, error) {
	return json.Marshal(assetJSON{
		Name:     a.Name,
		CoinType: uint32(a.CoinType),
		Account:  a.Account,
		Change:   a.Change,
		Index:    a.Index,
		Curve:    a.Curve.String(),
		Protocol: a.Protocol.String(),
		Mainnet:  a.Mainnet,
	})
}

// UnmarshalJSON decodes a catalog entry. Missing fields default to change 0,
// secp256k1 and the account protocol.
func (a *AssetDerivationSpec) UnmarshalJSON(b []byte) error {
	var raw assetJSON
	if err := json.Unmarshal(b, &raw); err != nil {
		return err
	}

	curve, err := ParseCurve(raw.Curve)
	if err != nil {
		return err
	}
	protocol, err := ParseProtocol(raw.Protocol)
	if err != nil {
		return err
	}

	*a = AssetDerivationSpec{
		Name:     raw.Name,
		CoinType: CoinType(raw.CoinType),
		Account:  raw.Account,
		Change:   raw.Change,
		Index:    raw.Index,
		Curve:    curve,
		Protocol: protocol,
		Mainnet:  raw.Mainnet,
	}

	return nil
}
