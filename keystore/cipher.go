package keystore

import (
	"crypto/aes"
	"crypto/cipher"
	"fmt"

	"golang.org/x/crypto/chacha20poly1305"
)

// CipherSuite identifies the AEAD used to seal a record.
type CipherSuite uint8

const (
	// CipherAES256GCM is AES-256 in GCM mode with a 12-byte nonce.
	CipherAES256GCM CipherSuite = 1

	// CipherXChaCha20Poly1305 is XChaCha20-Poly1305 with a 24-byte nonce.
	CipherXChaCha20Poly1305 CipherSuite = 2
)

// String returns the configuration name of the suite.
func (c CipherSuite) String() string {
	switch c {
	case CipherAES256GCM:
		return "aes-256-gcm"
	case CipherXChaCha20Poly1305:
		return "xchacha20-poly1305"
	default:
		return fmt.Sprintf("cipher(%d)", uint8(c))
	}
}

// ParseCipherSuite maps a configuration name to a CipherSuite.
func ParseCipherSuite(name string) (CipherSuite, error) {
	switch name {
	case "aes-256-gcm", "aesgcm":
		return CipherAES256GCM, nil
	case "xchacha20-poly1305", "xchacha":
		return CipherXChaCha20Poly1305, nil
	default:
		return 0, fmt.Errorf("%w: %q", ErrUnknownCipher, name)
	}
}

// NonceSize returns the nonce length the suite expects.
func (c CipherSuite) NonceSize() int {
	switch c {
	case CipherAES256GCM:
		return 12
	case CipherXChaCha20Poly1305:
		return chacha20poly1305.NonceSizeX
	default:
		return 0
	}
}

// newAEAD returns the AEAD of the suite keyed with key.
func newAEAD(suite CipherSuite, key []byte) (cipher.AEAD, error) {
	switch suite {
	case CipherAES256GCM:
		block, err := aes.NewCipher(key)
		if err != nil {
			return nil, err
		}

		return cipher.NewGCM(block)

	case CipherXChaCha20Poly1305:
		// Note that we use NewX, not New, as the latter version
		// requires a 12-byte nonce, not a 24-byte nonce.
		return chacha20poly1305.NewX(key)

	default:
		return nil, fmt.Errorf("%w: %v", ErrUnknownCipher, suite)
	}
}
