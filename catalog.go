package lnkeys

import (
	"encoding/json"
	"fmt"
	"os"

	"github.com/lightningnetwork/lnkeys/keychain"
)

// DefaultAssets returns the assets exported when no catalog is given. Every
// entry uses account 0, the external chain and index 0.
func DefaultAssets(mainnet bool) []keychain.AssetDerivationSpec {
	asset := func(name string, coin keychain.CoinType,
		curve keychain.Curve,
		protocol keychain.Protocol) keychain.AssetDerivationSpec {

		return keychain.AssetDerivationSpec{
			Name:     name,
			CoinType: coin,
			Curve:    curve,
			Protocol: protocol,
			Mainnet:  mainnet,
		}
	}

	bitcoinCoin := keychain.CoinTypeBitcoin
	if !mainnet {
		bitcoinCoin = keychain.CoinTypeTestnet
	}

	return []keychain.AssetDerivationSpec{
		asset("Bitcoin", bitcoinCoin, keychain.CurveSecp256k1,
			keychain.ProtocolUTXO),
		asset("Litecoin", keychain.CoinTypeLitecoin,
			keychain.CurveSecp256k1, keychain.ProtocolUTXO),
		asset("Dogecoin", keychain.CoinTypeDogecoin,
			keychain.CurveSecp256k1, keychain.ProtocolUTXO),
		asset("Ethereum", keychain.CoinTypeEthereum,
			keychain.CurveSecp256k1, keychain.ProtocolAccount),
		asset("Tron", keychain.CoinTypeTron, keychain.CurveSecp256k1,
			keychain.ProtocolAccount),
		asset("Solana", keychain.CoinTypeSolana, keychain.CurveEd25519,
			keychain.ProtocolAccount),
	}
}

// LoadAssets reads an asset catalog, a JSON array of derivation specs, from
// path. Every entry is validated.
func LoadAssets(path string) ([]keychain.AssetDerivationSpec, error) {
	b, err := os.ReadFile(path)
	if err != nil {
		return nil, err
	}

	var specs []keychain.AssetDerivationSpec
	if err := json.Unmarshal(b, &specs); err != nil {
		return nil, fmt.Errorf("unable to parse asset catalog %v: %w",
			path, err)
	}

	for i, spec := range specs {
		if err := spec.Validate(); err != nil {
			return nil, fmt.Errorf("asset %d (%s): %w", i,
				spec.Name, err)
		}
	}

	return specs, nil
}
