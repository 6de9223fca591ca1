package keystore

import (
	"bytes"
	"encoding/base64"
	"encoding/binary"
	"errors"
	"fmt"

	"github.com/lightningnetwork/lnd/tlv"
)

// envelopeVersion is the only envelope version written and understood.
const envelopeVersion uint8 = 1

// adPrefix starts the associated data of every sealed record.
var adPrefix = []byte("lnkeys/v1")

const (
	typeVersion    tlv.Type = 0
	typeKDF        tlv.Type = 1
	typeKDFParamA  tlv.Type = 2
	typeKDFParamB  tlv.Type = 3
	typeKDFParamC  tlv.Type = 4
	typeCipher     tlv.Type = 5
	typeNonce      tlv.Type = 6
	typeCiphertext tlv.Type = 7
)

// errMalformedEnvelope is wrapped by every envelope decoding failure.
var errMalformedEnvelope = errors.New("malformed envelope")

// envelope is the persisted form of one sealed value. Everything but the
// ciphertext is the header, which is authenticated as associated data.
type envelope struct {
	version    uint8
	kdf        KDFParams
	cipher     CipherSuite
	nonce      []byte
	ciphertext []byte
}

// headerRecords returns the TLV records of the header, in type order.
func (e *envelope) headerRecords(kdfType, cipherSuite *uint8) []tlv.Record {
	return []tlv.Record{
		tlv.MakePrimitiveRecord(typeVersion, &e.version),
		tlv.MakePrimitiveRecord(typeKDF, kdfType),
		tlv.MakePrimitiveRecord(typeKDFParamA, &e.kdf.A),
		tlv.MakePrimitiveRecord(typeKDFParamB, &e.kdf.B),
		tlv.MakePrimitiveRecord(typeKDFParamC, &e.kdf.C),
		tlv.MakePrimitiveRecord(typeCipher, cipherSuite),
		tlv.MakePrimitiveRecord(typeNonce, &e.nonce),
	}
}

// encodeRecords serialises the header and, if withBody is set, the
// ciphertext.
func (e *envelope) encodeRecords(withBody bool) ([]byte, error) {
	kdfType := uint8(e.kdf.Type)
	cipherSuite := uint8(e.cipher)

	records := e.headerRecords(&kdfType, &cipherSuite)
	if withBody {
		records = append(records, tlv.MakePrimitiveRecord(
			typeCiphertext, &e.ciphertext,
		))
	}

	stream, err := tlv.NewStream(records...)
	if err != nil {
		return nil, err
	}

	var b bytes.Buffer
	if err := stream.Encode(&b); err != nil {
		return nil, err
	}

	return b.Bytes(), nil
}

// header returns the canonical serialisation of the header fields.
func (e *envelope) header() ([]byte, error) {
	return e.encodeRecords(false)
}

// associatedData binds the header, the store salt and the key name to the
// ciphertext, so a record moved under another key or into another store
// fails to open.
func (e *envelope) associatedData(salt []byte, key string) ([]byte, error) {
	header, err := e.header()
	if err != nil {
		return nil, err
	}

	var saltLen [4]byte
	binary.BigEndian.PutUint32(saltLen[:], uint32(len(salt)))

	ad := make([]byte, 0, len(adPrefix)+len(header)+4+len(salt)+len(key))
	ad = append(ad, adPrefix...)
	ad = append(ad, header...)
	ad = append(ad, saltLen[:]...)
	ad = append(ad, salt...)
	ad = append(ad, key...)

	return ad, nil
}

// encode returns the opaque string written to the backend.
func (e *envelope) encode() (string, error) {
	raw, err := e.encodeRecords(true)
	if err != nil {
		return "", err
	}

	return base64.RawStdEncoding.EncodeToString(raw), nil
}

// decodeEnvelope parses a stored string. Every field is mandatory and the
// KDF parameters must be acceptable before any key is derived from them.
func decodeEnvelope(s string) (*envelope, error) {
	raw, err := base64.RawStdEncoding.DecodeString(s)
	if err != nil {
		return nil, fmt.Errorf("%w: %v", errMalformedEnvelope, err)
	}

	var (
		e           envelope
		kdfType     uint8
		cipherSuite uint8
	)
	records := append(
		e.headerRecords(&kdfType, &cipherSuite),
		tlv.MakePrimitiveRecord(typeCiphertext, &e.ciphertext),
	)

	stream, err := tlv.NewStream(records...)
	if err != nil {
		return nil, err
	}

	// The p2p variant caps every record at tlv.MaxRecordSize, so a forged
	// length prefix cannot force a huge allocation.
	parsed, err := stream.DecodeWithParsedTypesP2P(bytes.NewReader(raw))
	if err != nil {
		return nil, fmt.Errorf("%w: %v", errMalformedEnvelope, err)
	}

	for typ := typeVersion; typ <= typeCiphertext; typ++ {
		if _, ok := parsed[typ]; !ok {
			return nil, fmt.Errorf("%w: missing type %d",
				errMalformedEnvelope, typ)
		}
	}

	// Unknown record types would not be covered by the re-encoded header
	// used as associated data, so they are refused outright.
	if len(parsed) != int(typeCiphertext)+1 {
		return nil, fmt.Errorf("%w: unexpected records",
			errMalformedEnvelope)
	}

	if e.version != envelopeVersion {
		return nil, fmt.Errorf("%w: unknown version %d",
			errMalformedEnvelope, e.version)
	}

	e.kdf.Type = KDFType(kdfType)
	if err := e.kdf.Validate(); err != nil {
		return nil, fmt.Errorf("%w: %v", errMalformedEnvelope, err)
	}

	e.cipher = CipherSuite(cipherSuite)
	nonceSize := e.cipher.NonceSize()
	if nonceSize == 0 {
		return nil, fmt.Errorf("%w: %v", errMalformedEnvelope,
			ErrUnknownCipher)
	}
	if len(e.nonce) != nonceSize {
		return nil, fmt.Errorf("%w: nonce length %d",
			errMalformedEnvelope, len(e.nonce))
	}

	return &e, nil
}
