package keyexport

import (
	"context"
	"fmt"
	"sync"

	"github.com/btcsuite/btcd/chaincfg"
	"github.com/lightningnetwork/lnkeys/keychain"
)

// MasterKeySource is the wallet boundary master keys are pulled from. Every
// call returns a fresh MasterKeyMaterial that the caller owns and zeroes.
type MasterKeySource interface {
	MasterKey(ctx context.Context,
		curve keychain.Curve) (*keychain.MasterKeyMaterial, error)
}

// SeedSource derives master keys of every curve from one seed.
type SeedSource struct {
	mu   sync.Mutex
	seed []byte
	net  *chaincfg.Params
}

// A compile-time check to ensure SeedSource implements MasterKeySource.
var _ MasterKeySource = (*SeedSource)(nil)

// NewSeedSource copies seed into a new source.
func NewSeedSource(seed []byte, net *chaincfg.Params) *SeedSource {
	return &SeedSource{
		seed: append([]byte(nil), seed...),
		net:  net,
	}
}

// MasterKey derives the root key of curve from the seed.
func (s *SeedSource) MasterKey(ctx context.Context,
	curve keychain.Curve) (*keychain.MasterKeyMaterial, error) {

	if err := ctx.Err(); err != nil {
		return nil, err
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	if s.seed == nil {
		return nil, keychain.ErrMasterZeroed
	}

	return keychain.MasterFromSeed(curve, s.seed, s.net)
}

// Zero wipes the seed.
func (s *SeedSource) Zero() {
	s.mu.Lock()
	defer s.mu.Unlock()

	zeroBytes(s.seed)
	s.seed = nil
}

// ExtendedKeySource serves a single serialized secp256k1 extended private
// key.
type ExtendedKeySource string

// A compile-time check to ensure ExtendedKeySource implements
// MasterKeySource.
var _ MasterKeySource = ExtendedKeySource("")

// MasterKey parses the extended key. Only secp256k1 is available.
func (x ExtendedKeySource) MasterKey(ctx context.Context,
	curve keychain.Curve) (*keychain.MasterKeyMaterial, error) {

	if err := ctx.Err(); err != nil {
		return nil, err
	}
	if curve != keychain.CurveSecp256k1 {
		return nil, fmt.Errorf("%w: %v", ErrNoMasterForCurve, curve)
	}

	return keychain.MasterFromExtended(string(x))
}

// ExportFromSource pulls one master per curve used by specs, exports every
// asset and zeroes the masters before returning. The whole-account items of
// all curves come first, followed by the assets in their original order.
// Assets whose master cannot be obtained are reported like any other item
// failure.
func (e *Engine) ExportFromSource(ctx context.Context, src MasterKeySource,
	specs []keychain.AssetDerivationSpec) ([]ExportedKeyItem, error) {

	// Collect the curves in order of first use.
	var curves []keychain.Curve
	seen := make(map[keychain.Curve]bool)
	for _, spec := range specs {
		if !seen[spec.Curve] {
			seen[spec.Curve] = true
			curves = append(curves, spec.Curve)
		}
	}

	masters := make(map[keychain.Curve]*keychain.MasterKeyMaterial)
	masterErrs := make(map[keychain.Curve]error)
	defer func() {
		for _, master := range masters {
			master.Zero()
		}
	}()

	var items []ExportedKeyItem
	for _, curve := range curves {
		master, err := src.MasterKey(ctx, curve)
		if err != nil {
			// A cancelled request aborts the whole export.
			if ctxErr := ctx.Err(); ctxErr != nil {
				return nil, ctxErr
			}

			masterErrs[curve] = fmt.Errorf("unable to obtain %v "+
				"master key: %w", curve, err)

			continue
		}
		if master == nil {
			masterErrs[curve] = fmt.Errorf("%w: source returned "+
				"no %v master key", ErrNilMaster, curve)

			continue
		}

		masters[curve] = master
		items = append(items, e.wholeAccountItem(master))
	}

	for _, spec := range specs {
		master, ok := masters[spec.Curve]
		if !ok {
			items = append(items, ExportedKeyItem{
				Name:  spec.Name,
				Path:  spec.Path(e.style).String(),
				Curve: spec.Curve,
				Err:   masterErrs[spec.Curve],
			})

			continue
		}

		items = append(items, e.assetItem(master, spec))
	}

	return collect(items)
}
