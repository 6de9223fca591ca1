package keyexport

import (
	"bytes"
	"errors"
	"fmt"

	"github.com/btcsuite/btcd/btcutil/base58"
	"github.com/btcsuite/btcd/chaincfg"
	"github.com/btcsuite/btcd/chaincfg/chainhash"
	"github.com/lightningnetwork/lnkeys/keychain"
)

const (
	// compressMagic is appended to the key of a WIF whose public key is
	// serialized compressed.
	compressMagic byte = 0x01

	// checksumLen is the number of double SHA-256 bytes appended as the
	// checksum.
	checksumLen = 4

	// uncompressedWIFLen is the decoded length of an uncompressed WIF:
	// version, key and checksum.
	uncompressedWIFLen = 1 + keychain.KeyLen + checksumLen

	// compressedWIFLen is the decoded length of a compressed WIF.
	compressedWIFLen = uncompressedWIFLen + 1
)

var (
	// ErrChecksumMismatch is returned when a WIF string's checksum does not
	// match its payload.
	ErrChecksumMismatch = errors.New("wif checksum mismatch")

	// ErrMalformedWIF is returned for strings that are not Base58 or do
	// not have the layout of a WIF.
	ErrMalformedWIF = errors.New("malformed wif")
)

// WIFPayload is the decoded content of a WIF string.
type WIFPayload struct {
	// Key is the raw 32-byte private key.
	Key []byte

	// Mainnet is true for the mainnet version byte.
	Mainnet bool

	// Compressed is true if the compression marker is present.
	Compressed bool
}

// netVersion returns the WIF version byte of the network.
func netVersion(mainnet bool) byte {
	if mainnet {
		return chaincfg.MainNetParams.PrivateKeyID
	}

	return chaincfg.TestNet3Params.PrivateKeyID
}

// EncodeWIF serializes a raw private key in Wallet Import Format:
//
//	base58(version || key || [0x01] || checksum)
//
// where the checksum is the first four bytes of the double SHA-256 of
// everything before it.
func EncodeWIF(raw []byte, mainnet, compressed bool) (string, error) {
	if len(raw) != keychain.KeyLen {
		return "", fmt.Errorf("%w: got %d bytes, want %d",
			keychain.ErrInvalidKeyLength, len(raw), keychain.KeyLen)
	}

	encodeLen := uncompressedWIFLen
	if compressed {
		encodeLen = compressedWIFLen
	}

	a := make([]byte, 0, encodeLen)
	a = append(a, netVersion(mainnet))
	a = append(a, raw...)
	if compressed {
		a = append(a, compressMagic)
	}

	cksum := chainhash.DoubleHashB(a)[:checksumLen]
	a = append(a, cksum...)

	wif := base58.Encode(a)
	zeroBytes(a)

	return wif, nil
}

// DecodeWIF reverses EncodeWIF, verifying the checksum and the version byte.
func DecodeWIF(wif string) (*WIFPayload, error) {
	decoded := base58.Decode(wif)
	defer zeroBytes(decoded)

	var compressed bool
	switch len(decoded) {
	case compressedWIFLen:
		if decoded[1+keychain.KeyLen] != compressMagic {
			return nil, fmt.Errorf("%w: bad compression marker",
				ErrMalformedWIF)
		}
		compressed = true

	case uncompressedWIFLen:

	default:
		return nil, fmt.Errorf("%w: decoded length %d", ErrMalformedWIF,
			len(decoded))
	}

	payload := decoded[:len(decoded)-checksumLen]
	cksum := chainhash.DoubleHashB(payload)[:checksumLen]
	if !bytes.Equal(cksum, decoded[len(decoded)-checksumLen:]) {
		return nil, ErrChecksumMismatch
	}

	var mainnet bool
	switch decoded[0] {
	case chaincfg.MainNetParams.PrivateKeyID:
		mainnet = true

	case chaincfg.TestNet3Params.PrivateKeyID:

	default:
		return nil, fmt.Errorf("%w: unknown version 0x%02x",
			ErrMalformedWIF, decoded[0])
	}

	key := make([]byte, keychain.KeyLen)
	copy(key, decoded[1:1+keychain.KeyLen])

	return &WIFPayload{
		Key:        key,
		Mainnet:    mainnet,
		Compressed: compressed,
	}, nil
}

// zeroBytes overwrites b with zeroes.
func zeroBytes(b []byte) {
	for i := range b {
		b[i] = 0
	}
}
