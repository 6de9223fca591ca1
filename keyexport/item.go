package keyexport

import (
	"encoding/json"
	"strings"

	masker "github.com/goliatone/go-masker"
	"github.com/lightningnetwork/lnd/fn/v2"
	"github.com/lightningnetwork/lnkeys/keychain"
)

// WholeAccountName is the display name of the item carrying the serialized
// master key.
const WholeAccountName = "Whole account key"

// maskRule keeps two characters on each end of a masked value.
const maskRule = "preserveEnds(2,2)"

// ExportedKeyItem is one row of an export. Items are created per request and
// never persisted.
type ExportedKeyItem struct {
	// Name is the display name of the asset.
	Name string

	// Key is the private key: hex for derived keys, the extended key
	// serialization for the whole-account item. Empty if Err is set.
	Key string

	// WIF is the Wallet Import Format encoding, present only for UTXO
	// assets.
	WIF fn.Option[string]

	// Index is the display position of the item.
	Index int

	// Path is the derivation path of the key.
	Path string

	// PubKey is the hex public key, empty for the whole-account item.
	PubKey string

	// Curve is the curve of the key.
	Curve keychain.Curve

	// Err records why the item is incomplete, if it is.
	Err error
}

// OK returns true if the item was fully exported.
func (i ExportedKeyItem) OK() bool {
	return i.Err == nil
}

// maskValue masks all but the ends of value.
func maskValue(value string) string {
	if value == "" {
		return ""
	}

	masked, err := masker.Default.String(maskRule, value)
	if err == nil && masked != value {
		return masked
	}

	// Fall back to a local mask if the rule is unavailable.
	runes := []rune(value)
	if len(runes) <= 4 {
		return strings.Repeat("*", len(runes))
	}

	return string(runes[:2]) + strings.Repeat("*", len(runes)-4) +
		string(runes[len(runes)-2:])
}

// Masked returns a copy safe to show on screen before the user asked to
// reveal it.
func (i ExportedKeyItem) Masked() ExportedKeyItem {
	masked := i
	masked.Key = maskValue(i.Key)
	i.WIF.WhenSome(func(wif string) {
		masked.WIF = fn.Some(maskValue(wif))
	})

	return masked
}

// exportRecord is the JSON form of an item.
type exportRecord struct {
	Index  int    `json:"index"`
	Name   string `json:"name"`
	Key    string `json:"key,omitempty"`
	WIF    string `json:"wif,omitempty"`
	Path   string `json:"path,omitempty"`
	PubKey string `json:"pubkey,omitempty"`
	Curve  string `json:"curve"`
	Error  string `json:"error,omitempty"`
}

// MarshalJSON encodes the item as an export record.
func (i ExportedKeyItem) MarshalJSON() ([]byte, error) {
	rec := exportRecord{
		Index:  i.Index,
		Name:   i.Name,
		Key:    i.Key,
		WIF:    i.WIF.UnwrapOr(""),
		Path:   i.Path,
		PubKey: i.PubKey,
		Curve:  i.Curve.String(),
	}
	if i.Err != nil {
		rec.Error = i.Err.Error()
	}

	return json.Marshal(rec)
}
