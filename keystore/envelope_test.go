package keystore

import (
	"bytes"
	"encoding/base64"
	"testing"

	"github.com/lightningnetwork/lnd/tlv"
	"github.com/stretchr/testify/require"
)

func testEnvelope() *envelope {
	return &envelope{
		version:    envelopeVersion,
		kdf:        testScrypt,
		cipher:     CipherAES256GCM,
		nonce:      bytes.Repeat([]byte{0x11}, 12),
		ciphertext: []byte("opaque ciphertext and tag"),
	}
}

// TestEnvelopeEncoding round trips an envelope and checks the associated data
// layout.
func TestEnvelopeEncoding(t *testing.T) {
	t.Parallel()

	env := testEnvelope()

	encoded, err := env.encode()
	require.NoError(t, err)

	decoded, err := decodeEnvelope(encoded)
	require.NoError(t, err)
	require.Equal(t, env, decoded)

	header, err := env.header()
	require.NoError(t, err)

	ad, err := env.associatedData([]byte("salt"), "name")
	require.NoError(t, err)

	want := append([]byte("lnkeys/v1"), header...)
	want = append(want, 0, 0, 0, 4)
	want = append(want, []byte("salt")...)
	want = append(want, []byte("name")...)
	require.Equal(t, want, ad)
}

// TestEnvelopeRejectsUnknownRecords makes sure an extra record that would
// escape authentication is refused.
func TestEnvelopeRejectsUnknownRecords(t *testing.T) {
	t.Parallel()

	env := testEnvelope()
	raw, err := env.encodeRecords(true)
	require.NoError(t, err)

	extra := []byte("smuggled")
	stream, err := tlv.NewStream(tlv.MakePrimitiveRecord(9, &extra))
	require.NoError(t, err)

	var b bytes.Buffer
	require.NoError(t, stream.Encode(&b))

	tampered := base64.RawStdEncoding.EncodeToString(
		append(raw, b.Bytes()...),
	)
	_, err = decodeEnvelope(tampered)
	require.ErrorIs(t, err, errMalformedEnvelope)
}

// TestEnvelopeRejectsBadHeaders covers header values that must never reach
// the KDF or the cipher.
func TestEnvelopeRejectsBadHeaders(t *testing.T) {
	t.Parallel()

	testCases := []struct {
		name   string
		mutate func(*envelope)
	}{{
		name:   "version",
		mutate: func(e *envelope) { e.version = 2 },
	}, {
		name:   "kdf",
		mutate: func(e *envelope) { e.kdf.Type = 77 },
	}, {
		name:   "kdf cost",
		mutate: func(e *envelope) { e.kdf.A = 1 << 30 },
	}, {
		name:   "cipher",
		mutate: func(e *envelope) { e.cipher = 9 },
	}, {
		name:   "nonce length",
		mutate: func(e *envelope) { e.nonce = e.nonce[:8] },
	}}

	for _, tc := range testCases {
		env := testEnvelope()
		tc.mutate(env)

		encoded, err := env.encode()
		require.NoError(t, err, tc.name)

		_, err = decodeEnvelope(encoded)
		require.ErrorIs(t, err, errMalformedEnvelope, tc.name)
	}
}
