package keyexport

import (
	"encoding/hex"
	"fmt"

	"github.com/lightningnetwork/lnd/fn/v2"
	"github.com/lightningnetwork/lnkeys/keychain"
)

// Engine derives and encodes per-asset private keys from master key
// material. It holds no key material of its own and is safe for concurrent
// use.
type Engine struct {
	deriver    keychain.Deriver
	style      keychain.PathStyle
	compressed bool
}

// Option configures an Engine.
type Option func(*Engine)

// WithDeriver replaces the derivation implementation.
func WithDeriver(d keychain.Deriver) Option {
	return func(e *Engine) {
		e.deriver = d
	}
}

// WithPathStyle selects which BIP0044 levels are hardened.
func WithPathStyle(style keychain.PathStyle) Option {
	return func(e *Engine) {
		e.style = style
	}
}

// WithUncompressedWIF makes WIF strings refer to the uncompressed public
// key.
func WithUncompressedWIF() Option {
	return func(e *Engine) {
		e.compressed = false
	}
}

// New returns an Engine. By default it derives BIP0044 paths with the
// keychain's DefaultDeriver and emits compressed WIF strings.
func New(opts ...Option) *Engine {
	e := &Engine{
		deriver:    &keychain.DefaultDeriver{},
		style:      keychain.PathStyleBIP44,
		compressed: true,
	}
	for _, opt := range opts {
		opt(e)
	}

	return e
}

// PathStyle returns the path style of the engine.
func (e *Engine) PathStyle() keychain.PathStyle {
	return e.style
}

// DeriveAssetKey derives the raw private key of spec. The result is the same
// for the same master and spec on every call.
func (e *Engine) DeriveAssetKey(master *keychain.MasterKeyMaterial,
	spec keychain.AssetDerivationSpec) ([]byte, error) {

	if master == nil {
		return nil, ErrNilMaster
	}

	key, err := keychain.DeriveAssetKey(e.deriver, master, spec, e.style)
	if err != nil {
		return nil, err
	}

	if len(key) != keychain.KeyLen {
		zeroBytes(key)
		return nil, fmt.Errorf("%w: derived %d bytes for %q",
			keychain.ErrInvalidKeyLength, len(key), spec.Name)
	}

	return key, nil
}

// EncodeWIF encodes raw as a WIF string.
func (e *Engine) EncodeWIF(raw []byte, mainnet, compressed bool) (string,
	error) {

	return EncodeWIF(raw, mainnet, compressed)
}

// wholeAccountItem exports the master itself.
func (e *Engine) wholeAccountItem(
	master *keychain.MasterKeyMaterial) ExportedKeyItem {

	item := ExportedKeyItem{
		Name:  WholeAccountName,
		Path:  "m",
		Curve: master.Curve(),
	}
	if master.Depth() > 0 {
		item.Path = fmt.Sprintf("depth %d, child %d", master.Depth(),
			master.ChildIndex())
	}

	extended, err := master.Extended()
	if err != nil {
		item.Err = err
		return item
	}
	item.Key = extended

	return item
}

// assetItem derives and encodes the key of one asset. Failures are recorded
// on the item.
func (e *Engine) assetItem(master *keychain.MasterKeyMaterial,
	spec keychain.AssetDerivationSpec) ExportedKeyItem {

	item := ExportedKeyItem{
		Name:  spec.Name,
		Path:  spec.Path(e.style).String(),
		Curve: spec.Curve,
	}

	key, err := e.DeriveAssetKey(master, spec)
	if err != nil {
		item.Err = err
		return item
	}
	defer zeroBytes(key)

	if err := e.encodeKey(&item, spec, key); err != nil {
		item.Err = err
	}

	return item
}

// encodeKey fills in the key, public key and, for UTXO assets, the WIF of
// item. Nothing is set unless every encoding succeeds, so a failed item never
// shows a key.
func (e *Engine) encodeKey(item *ExportedKeyItem,
	spec keychain.AssetDerivationSpec, key []byte) error {

	wif := fn.None[string]()
	if spec.Protocol == keychain.ProtocolUTXO &&
		spec.Curve == keychain.CurveSecp256k1 {

		encoded, err := e.EncodeWIF(key, spec.Mainnet, e.compressed)
		if err != nil {
			return err
		}
		wif = fn.Some(encoded)
	}

	pub, err := keychain.PublicKey(spec.Curve, key)
	if err != nil {
		return err
	}

	item.Key = hex.EncodeToString(key)
	item.PubKey = hex.EncodeToString(pub)
	item.WIF = wif

	return nil
}

// collect numbers items by position and gathers their failures.
func collect(items []ExportedKeyItem) ([]ExportedKeyItem, error) {
	var failures []*ItemFailure
	for i := range items {
		items[i].Index = i

		if items[i].Err == nil {
			continue
		}

		log.Warnf("Export of %q at %v failed: %v", items[i].Name,
			items[i].Path, items[i].Err)

		failures = append(failures, &ItemFailure{
			Index: i,
			Name:  items[i].Name,
			Err:   items[i].Err,
		})
	}

	if len(failures) == 0 {
		return items, nil
	}

	return items, &PartialFailure{
		Items:    items,
		Failures: failures,
	}
}

// ExportAll exports the whole-account key followed by one item per spec, in
// the order given. An asset that fails to derive or encode does not stop the
// batch: its item carries the error and a *PartialFailure listing every
// failed item is returned alongside the full slice.
func (e *Engine) ExportAll(master *keychain.MasterKeyMaterial,
	specs []keychain.AssetDerivationSpec) ([]ExportedKeyItem, error) {

	if master == nil {
		return nil, ErrNilMaster
	}

	items := make([]ExportedKeyItem, 0, len(specs)+1)
	items = append(items, e.wholeAccountItem(master))
	for _, spec := range specs {
		items = append(items, e.assetItem(master, spec))
	}

	log.Debugf("Exported %d assets from %v master", len(specs),
		master.Curve())

	return collect(items)
}
