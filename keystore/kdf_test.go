package keystore

import (
	"encoding/hex"
	"testing"

	"github.com/stretchr/testify/require"
)

// legacyPasswordKey is the key older clients derived from "password".
const legacyPasswordKey = "727f38dc36b85a68d6bcdd7a7168e0ea3dda10c921117c" +
	"8b796d7dec9dd1078c"

// TestLegacyStretchGolden pins the iterated SHA-256 stretch so stores written
// by older clients stay readable.
func TestLegacyStretchGolden(t *testing.T) {
	t.Parallel()

	key, err := deriveKey(
		LegacyParams(DefaultLegacyIterations), []byte("password"),
		[]byte("ignored-salt"),
	)
	require.NoError(t, err)
	require.Equal(t, legacyPasswordKey, hex.EncodeToString(key))
}

// TestDeriveKeySaltBinding asserts the memory hard KDFs mix in the store salt
// while the legacy stretch does not.
func TestDeriveKeySaltBinding(t *testing.T) {
	t.Parallel()

	pw := []byte("correct horse")

	for _, params := range []KDFParams{testScrypt, testArgon2} {
		k1, err := deriveKey(params, pw, []byte("device-a"))
		require.NoError(t, err)
		k2, err := deriveKey(params, pw, []byte("device-b"))
		require.NoError(t, err)
		k3, err := deriveKey(params, pw, []byte("device-a"))
		require.NoError(t, err)

		require.Len(t, k1, KeyLen)
		require.NotEqual(t, k1, k2, params.String())
		require.Equal(t, k1, k3, params.String())
	}

	k1, err := deriveKey(testLegacy, pw, []byte("device-a"))
	require.NoError(t, err)
	k2, err := deriveKey(testLegacy, pw, []byte("device-b"))
	require.NoError(t, err)
	require.Equal(t, k1, k2)
}

// TestKDFParamsValidate covers the accepted parameter ranges.
func TestKDFParamsValidate(t *testing.T) {
	t.Parallel()

	testCases := []struct {
		name   string
		params KDFParams
		valid  bool
	}{
		{"legacy", LegacyParams(1000), true},
		{"legacy zero", LegacyParams(0), false},
		{"legacy extra", KDFParams{Type: KDFLegacySHA256, A: 1, B: 1},
			false},
		{"scrypt", ScryptParams(1<<15, 8, 1), true},
		{"scrypt not pow2", ScryptParams(1000, 8, 1), false},
		{"scrypt huge", ScryptParams(1<<30, 8, 1), false},
		{"scrypt zero r", ScryptParams(1<<10, 0, 1), false},
		{"scrypt at memory cap", ScryptParams(1<<18, 8, 1), true},
		{"scrypt over memory cap", ScryptParams(1<<18, 8, 2), false},
		{"scrypt huge r", ScryptParams(1<<22, 1<<16, 1), false},
		{"scrypt overflow", ScryptParams(1<<31, 1<<31, 1<<31), false},
		{"argon2", DefaultKDFParams(), true},
		{"argon2 low memory", Argon2idParams(1, 7, 1), false},
		{"argon2 zero threads", Argon2idParams(1, 64, 0), false},
		{"argon2 zero time", Argon2idParams(0, 64, 1), false},
		{"argon2 at cap", Argon2idParams(8, 256*1024, 4), true},
		{"argon2 many passes", Argon2idParams(64, 64*1024, 1), false},
		{"argon2 huge memory", Argon2idParams(1, 4*1024*1024, 1),
			false},
		{"unknown", KDFParams{Type: 9, A: 1}, false},
		{"zero", KDFParams{}, false},
	}

	for _, tc := range testCases {
		err := tc.params.Validate()
		if tc.valid {
			require.NoError(t, err, tc.name)
		} else {
			require.Error(t, err, tc.name)
		}
	}

	require.ErrorIs(t, KDFParams{Type: 9}.Validate(), ErrUnknownKDF)
}

// TestParseNames checks the configuration names of KDFs and ciphers.
func TestParseNames(t *testing.T) {
	t.Parallel()

	for _, kdf := range []KDFType{
		KDFLegacySHA256, KDFScrypt, KDFArgon2id,
	} {
		parsed, err := ParseKDFType(kdf.String())
		require.NoError(t, err)
		require.Equal(t, kdf, parsed)
	}
	_, err := ParseKDFType("pbkdf1")
	require.ErrorIs(t, err, ErrUnknownKDF)

	for _, suite := range []CipherSuite{
		CipherAES256GCM, CipherXChaCha20Poly1305,
	} {
		parsed, err := ParseCipherSuite(suite.String())
		require.NoError(t, err)
		require.Equal(t, suite, parsed)
	}
	_, err = ParseCipherSuite("rot13")
	require.ErrorIs(t, err, ErrUnknownCipher)
}
