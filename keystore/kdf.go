package keystore

import (
	"crypto/sha256"
	"encoding/hex"
	"fmt"

	"golang.org/x/crypto/argon2"
	"golang.org/x/crypto/scrypt"
)

// KeyLen is the length of every symmetric key handed to the cipher suites.
const KeyLen = 32

// KDFType identifies the function used to stretch a password into a key.
type KDFType uint8

const (
	// KDFLegacySHA256 repeatedly replaces the password by the lowercase
	// hex encoding of its own SHA-256 digest. The final hex string decodes
	// to the key. It has no memory hardness and exists only to read
	// stores written by older clients.
	KDFLegacySHA256 KDFType = 1

	// KDFScrypt is scrypt with the cost parameters N, r and p.
	KDFScrypt KDFType = 2

	// KDFArgon2id is Argon2id with the time, memory (KiB) and thread
	// parameters. It is the default for new records.
	KDFArgon2id KDFType = 3
)

// String returns the human readable name of the KDF.
func (k KDFType) String() string {
	switch k {
	case KDFLegacySHA256:
		return "legacy-sha256"
	case KDFScrypt:
		return "scrypt"
	case KDFArgon2id:
		return "argon2id"
	default:
		return fmt.Sprintf("kdf(%d)", uint8(k))
	}
}

// ParseKDFType maps a configuration name to a KDFType.
func ParseKDFType(name string) (KDFType, error) {
	switch name {
	case "legacy-sha256", "legacy":
		return KDFLegacySHA256, nil
	case "scrypt":
		return KDFScrypt, nil
	case "argon2id", "argon2":
		return KDFArgon2id, nil
	default:
		return 0, fmt.Errorf("%w: %q", ErrUnknownKDF, name)
	}
}

const (
	// DefaultLegacyIterations is the iteration count older clients used.
	DefaultLegacyIterations = 1000

	// DefaultScryptN is the default scrypt CPU/memory cost.
	DefaultScryptN = 1 << 15

	// DefaultScryptR is the default scrypt block size.
	DefaultScryptR = 8

	// DefaultScryptP is the default scrypt parallelism.
	DefaultScryptP = 1

	// DefaultArgon2Time is the default number of Argon2id passes.
	DefaultArgon2Time = 1

	// DefaultArgon2Memory is the default Argon2id memory in KiB.
	DefaultArgon2Memory = 64 * 1024

	// DefaultArgon2Threads is the default Argon2id parallelism.
	DefaultArgon2Threads = 4
)

// Upper bounds on the parameters accepted from a stored record. The header
// is only authenticated after a key was derived from it, so these bound the
// total memory and work a single read can cost.
const (
	maxLegacyIterations = 1 << 20

	// maxScryptMemory bounds 128 * N * r * p, in bytes.
	maxScryptMemory = 256 << 20

	maxArgon2Time    = 8
	maxArgon2Threads = 255

	// maxArgon2Memory is in KiB.
	maxArgon2Memory = 256 * 1024
)

// kdfSaltDomain separates the KDF salt from any other use of the store salt.
var kdfSaltDomain = []byte("lnkeys-kdf")

// KDFParams fully describes how a key was stretched. The three cost fields
// are interpreted according to Type:
//
//	legacy-sha256: A = iterations
//	scrypt:        A = N, B = r, C = p
//	argon2id:      A = time, B = memory (KiB), C = threads
//
// KDFParams is comparable so it can key a cache of derived keys.
type KDFParams struct {
	Type KDFType
	A    uint32
	B    uint32
	C    uint32
}

// DefaultKDFParams returns the parameters used for new records when nothing
// else is configured.
func DefaultKDFParams() KDFParams {
	return Argon2idParams(
		DefaultArgon2Time, DefaultArgon2Memory, DefaultArgon2Threads,
	)
}

// LegacyParams returns parameters for the iterated SHA-256 stretch.
func LegacyParams(iterations uint32) KDFParams {
	return KDFParams{Type: KDFLegacySHA256, A: iterations}
}

// ScryptParams returns scrypt parameters.
func ScryptParams(n, r, p uint32) KDFParams {
	return KDFParams{Type: KDFScrypt, A: n, B: r, C: p}
}

// Argon2idParams returns Argon2id parameters.
func Argon2idParams(time, memoryKiB, threads uint32) KDFParams {
	return KDFParams{Type: KDFArgon2id, A: time, B: memoryKiB, C: threads}
}

// String describes the parameters without any secret material.
func (p KDFParams) String() string {
	switch p.Type {
	case KDFLegacySHA256:
		return fmt.Sprintf("%v(iterations=%d)", p.Type, p.A)
	case KDFScrypt:
		return fmt.Sprintf("%v(N=%d, r=%d, p=%d)", p.Type, p.A, p.B,
			p.C)
	case KDFArgon2id:
		return fmt.Sprintf("%v(t=%d, m=%dKiB, threads=%d)", p.Type,
			p.A, p.B, p.C)
	default:
		return p.Type.String()
	}
}

// Validate checks that the parameters name a known KDF and lie within the
// accepted cost bounds.
func (p KDFParams) Validate() error {
	switch p.Type {
	case KDFLegacySHA256:
		if p.A == 0 || p.A > maxLegacyIterations {
			return fmt.Errorf("legacy iterations %d out of range",
				p.A)
		}
		if p.B != 0 || p.C != 0 {
			return fmt.Errorf("unexpected legacy parameters")
		}

	case KDFScrypt:
		if p.A < 2 || p.A&(p.A-1) != 0 {
			return fmt.Errorf("scrypt N=%d must be a power of two "+
				"of at least 2", p.A)
		}
		if p.B == 0 || p.C == 0 {
			return fmt.Errorf("scrypt r=%d p=%d out of range",
				p.B, p.C)
		}

		if scryptMemory(p.A, p.B, p.C) > maxScryptMemory {
			return fmt.Errorf("scrypt N=%d r=%d p=%d exceeds %d "+
				"bytes", p.A, p.B, p.C, maxScryptMemory)
		}

	case KDFArgon2id:
		if p.A == 0 || p.A > maxArgon2Time {
			return fmt.Errorf("argon2 time %d out of range", p.A)
		}
		if p.C == 0 || p.C > maxArgon2Threads {
			return fmt.Errorf("argon2 threads %d out of range", p.C)
		}
		if p.B < 8*p.C || p.B > maxArgon2Memory {
			return fmt.Errorf("argon2 memory %dKiB out of range",
				p.B)
		}

	default:
		return fmt.Errorf("%w: %v", ErrUnknownKDF, p.Type)
	}

	return nil
}

// scryptMemory returns 128 * n * r * p, saturating at maxScryptMemory+1 so
// that forged parameters cannot overflow the product.
func scryptMemory(n, r, p uint32) uint64 {
	total := uint64(128)
	for _, f := range []uint32{n, r, p} {
		if uint64(f) > maxScryptMemory/total {
			return maxScryptMemory + 1
		}
		total *= uint64(f)
	}

	return total
}

// kdfSalt is the salt fed to the memory hard KDFs for a given store salt.
func kdfSalt(storeSalt []byte) []byte {
	h := sha256.New()
	h.Write(kdfSaltDomain)
	h.Write(storeSalt)

	return h.Sum(nil)
}

// deriveKey stretches password into a KeyLen byte key.
func deriveKey(p KDFParams, password, storeSalt []byte) ([]byte, error) {
	if err := p.Validate(); err != nil {
		return nil, err
	}

	switch p.Type {
	case KDFLegacySHA256:
		return legacyStretch(password, p.A)

	case KDFScrypt:
		return scrypt.Key(
			password, kdfSalt(storeSalt), int(p.A), int(p.B),
			int(p.C), KeyLen,
		)

	case KDFArgon2id:
		return argon2.IDKey(
			password, kdfSalt(storeSalt), p.A, p.B, uint8(p.C),
			KeyLen,
		), nil
	}

	return nil, fmt.Errorf("%w: %v", ErrUnknownKDF, p.Type)
}

// legacyStretch reproduces the iterated hash used by older clients. The salt
// is not part of this stretch; it is bound to every record as associated
// data instead.
func legacyStretch(password []byte, iterations uint32) ([]byte, error) {
	var (
		digest [sha256.Size]byte
		hexBuf = make([]byte, hex.EncodedLen(sha256.Size))
	)

	digest = sha256.Sum256(password)
	hex.Encode(hexBuf, digest[:])

	for i := uint32(1); i < iterations; i++ {
		digest = sha256.Sum256(hexBuf)
		hex.Encode(hexBuf, digest[:])
	}

	key := make([]byte, KeyLen)
	copy(key, digest[:])

	zero(hexBuf)
	zero(digest[:])

	return key, nil
}

// zero overwrites b with zeroes.
func zero(b []byte) {
	for i := range b {
		b[i] = 0
	}
}
