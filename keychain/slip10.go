package keychain

import (
	"crypto/hmac"
	"crypto/sha512"
	"encoding/binary"
	"fmt"
)

// slip10Ed25519Key is the HMAC key SLIP-0010 uses to derive an ed25519 root.
var slip10Ed25519Key = []byte("ed25519 seed")

// slip10Master computes the ed25519 root key and chain code of seed.
func slip10Master(seed []byte) ([]byte, []byte) {
	mac := hmac.New(sha512.New, slip10Ed25519Key)
	mac.Write(seed)
	sum := mac.Sum(nil)

	return sum[:KeyLen], sum[KeyLen:]
}

// slip10Child derives the hardened child i of (key, chainCode). Ed25519 has
// no public parent to child derivation, so only hardened indexes exist.
func slip10Child(key, chainCode []byte, i uint32) ([]byte, []byte, error) {
	if i < HardenedKeyStart {
		return nil, nil, fmt.Errorf("%w: ed25519 child %d must be "+
			"hardened", ErrInvalidPath, i)
	}

	var data [1 + KeyLen + 4]byte
	copy(data[1:], key)
	binary.BigEndian.PutUint32(data[1+KeyLen:], i)

	mac := hmac.New(sha512.New, chainCode)
	mac.Write(data[:])
	sum := mac.Sum(nil)
	zero(data[:])

	return sum[:KeyLen], sum[KeyLen:], nil
}

// deriveEd25519 walks path from (key, chainCode) and returns the final key.
func deriveEd25519(key, chainCode []byte, path DerivationPath) ([]byte,
	error) {

	curKey := append([]byte(nil), key...)
	curChain := append([]byte(nil), chainCode...)
	for _, i := range path {
		nextKey, nextChain, err := slip10Child(curKey, curChain, i)
		zero(curKey)
		zero(curChain)
		if err != nil {
			return nil, err
		}

		curKey, curChain = nextKey, nextChain
	}
	zero(curChain)

	return curKey, nil
}
