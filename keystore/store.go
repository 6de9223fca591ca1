package keystore

import (
	"context"
	"crypto/rand"
	"errors"
	"fmt"
	"io"

	"github.com/lightningnetwork/lnd/fn/v2"
	"github.com/lightningnetwork/lnd/tlv"
	"github.com/lightningnetwork/lnkeys/kvstore"
)

// MaxValueSize is the largest plaintext Set accepts. The sealed value must
// fit a single TLV record.
const MaxValueSize = tlv.MaxRecordSize - 16

// Config houses everything a Store needs.
type Config struct {
	// Salt is a stable identifier of this store, for example a device
	// identifier. It is mixed into key derivation and bound to every
	// record.
	Salt []byte

	// Passwords is asked for the password each time a session is
	// acquired.
	Passwords PasswordSource

	// KDF are the parameters used to seal new records. The zero value
	// selects DefaultKDFParams.
	KDF KDFParams

	// Cipher seals new records. The zero value selects CipherAES256GCM.
	Cipher CipherSuite
}

// Store is a password gated, authenticated encryption layer on top of an
// untrusted kvstore.Backend. Values can only be read or written while a
// Session obtained from Acquire is live.
type Store struct {
	backend   kvstore.Backend
	salt      []byte
	passwords PasswordSource
	kdf       KDFParams
	cipher    CipherSuite
}

// New creates a Store over backend.
func New(backend kvstore.Backend, cfg *Config) (*Store, error) {
	switch {
	case backend == nil:
		return nil, errors.New("backend required")

	case cfg == nil || len(cfg.Salt) == 0:
		return nil, ErrMissingSalt

	case cfg.Passwords == nil:
		return nil, ErrMissingPasswordSource
	}

	kdf := cfg.KDF
	if kdf == (KDFParams{}) {
		kdf = DefaultKDFParams()
	}
	if err := kdf.Validate(); err != nil {
		return nil, err
	}

	suite := cfg.Cipher
	if suite == 0 {
		suite = CipherAES256GCM
	}
	if suite.NonceSize() == 0 {
		return nil, fmt.Errorf("%w: %v", ErrUnknownCipher, suite)
	}

	salt := make([]byte, len(cfg.Salt))
	copy(salt, cfg.Salt)

	return &Store{
		backend:   backend,
		salt:      salt,
		passwords: cfg.Passwords,
		kdf:       kdf,
		cipher:    suite,
	}, nil
}

// KDF returns the parameters used for new records.
func (s *Store) KDF() KDFParams {
	return s.kdf
}

// Cipher returns the suite used for new records.
func (s *Store) Cipher() CipherSuite {
	return s.cipher
}

// passwordResult carries the answer of a password source across goroutines.
type passwordResult struct {
	password []byte
	err      error
}

// askPassword queries the password source, giving up as soon as ctx is done.
// A password that arrives after the caller gave up is zeroed.
func (s *Store) askPassword(ctx context.Context) ([]byte, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}

	// The channel is unbuffered so an answer is either received here or
	// zeroed by the prompt goroutine.
	resultChan := make(chan passwordResult)
	abandoned := make(chan struct{})
	go func() {
		pw, err := s.passwords.Password(ctx)

		select {
		case resultChan <- passwordResult{password: pw, err: err}:
		case <-abandoned:
			zero(pw)
		}
	}()

	select {
	case res := <-resultChan:
		return res.password, res.err

	case <-ctx.Done():
		close(abandoned)

		// The source may have answered at the same time.
		select {
		case res := <-resultChan:
			zero(res.password)
		default:
		}

		return nil, ctx.Err()
	}
}

// Acquire asks the password source for the password and stretches it into
// the session key. The backend is not touched.
func (s *Store) Acquire(ctx context.Context) (*Session, error) {
	password, err := s.askPassword(ctx)
	switch {
	case err != nil:
		zero(password)
		log.Debugf("Password source declined: %v", err)

		return nil, fmt.Errorf("%w: %w", ErrPasswordSourceRejected, err)

	case len(password) == 0:
		return nil, fmt.Errorf("%w: empty password",
			ErrPasswordSourceRejected)
	}

	key, err := deriveKey(s.kdf, password, s.salt)
	if err != nil {
		zero(password)
		return nil, fmt.Errorf("%w: %v", ErrKeyDerivationFailed, err)
	}

	log.Debugf("Session acquired with %v", s.kdf)

	return &Session{
		store:    s,
		password: password,
		keys: map[KDFParams][]byte{
			s.kdf: key,
		},
	}, nil
}

// Release is an alias for session.Release.
func (s *Store) Release(session *Session) {
	session.Release()
}

// WithSession acquires a session, runs f with it and releases the session on
// every exit path, panics included.
func (s *Store) WithSession(ctx context.Context, f func(*Session) error) error {
	session, err := s.Acquire(ctx)
	if err != nil {
		return err
	}
	defer session.Release()

	return f(session)
}

// lockSession takes the session's read lock if the session is live and was
// issued by this store. On success the caller must call session.mu.RUnlock.
func (s *Store) lockSession(session *Session) error {
	if session == nil {
		return ErrStorageLocked
	}

	session.mu.RLock()
	if session.released || session.store != s {
		session.mu.RUnlock()
		return ErrStorageLocked
	}

	return nil
}

// Get returns the plaintext stored under key, or None if nothing is stored
// there. A present record that cannot be authenticated is reported as
// ErrDecryptionFailed, never as absent.
func (s *Store) Get(session *Session, key string) (fn.Option[string], error) {
	none := fn.None[string]()

	if err := s.lockSession(session); err != nil {
		return none, err
	}
	defer session.mu.RUnlock()

	stored, err := s.backend.Get(key)
	if err != nil {
		return none, fmt.Errorf("unable to read %q: %w", key, err)
	}
	if stored.IsNone() {
		return none, nil
	}

	env, err := decodeEnvelope(stored.UnsafeFromSome())
	if err != nil {
		log.Debugf("Record %q is unreadable: %v", key, err)
		return none, ErrDecryptionFailed
	}

	symKey, done, err := session.keyFor(env.kdf)
	if err != nil {
		return none, fmt.Errorf("%w: %v", ErrKeyDerivationFailed, err)
	}
	defer done()

	aead, err := newAEAD(env.cipher, symKey)
	if err != nil {
		return none, ErrDecryptionFailed
	}

	ad, err := env.associatedData(s.salt, key)
	if err != nil {
		return none, ErrDecryptionFailed
	}

	plaintext, err := aead.Open(nil, env.nonce, env.ciphertext, ad)
	if err != nil {
		return none, ErrDecryptionFailed
	}

	value := string(plaintext)
	zero(plaintext)

	return fn.Some(value), nil
}

// Set seals plaintext under a fresh random nonce and replaces whatever was
// stored under key.
func (s *Store) Set(session *Session, key, plaintext string) error {
	if err := s.lockSession(session); err != nil {
		return err
	}
	defer session.mu.RUnlock()

	if len(plaintext) > MaxValueSize {
		return fmt.Errorf("%w: %d bytes", ErrValueTooLarge,
			len(plaintext))
	}

	symKey, done, err := session.keyFor(s.kdf)
	if err != nil {
		return fmt.Errorf("%w: %v", ErrKeyDerivationFailed, err)
	}
	defer done()

	aead, err := newAEAD(s.cipher, symKey)
	if err != nil {
		return err
	}

	env := &envelope{
		version: envelopeVersion,
		kdf:     s.kdf,
		cipher:  s.cipher,
		nonce:   make([]byte, aead.NonceSize()),
	}
	if _, err := io.ReadFull(rand.Reader, env.nonce); err != nil {
		return fmt.Errorf("unable to read nonce: %w", err)
	}

	ad, err := env.associatedData(s.salt, key)
	if err != nil {
		return err
	}

	pt := []byte(plaintext)
	env.ciphertext = aead.Seal(nil, env.nonce, pt, ad)
	zero(pt)

	encoded, err := env.encode()
	if err != nil {
		return err
	}

	if err := s.backend.Set(key, encoded); err != nil {
		return fmt.Errorf("unable to write %q: %w", key, err)
	}

	log.Tracef("Stored record %q (%v, %v)", key, s.kdf.Type, s.cipher)

	return nil
}

// Clear erases every record of this store. It needs no session since it
// only destroys data.
func (s *Store) Clear() error {
	if err := s.backend.RemoveAll(); err != nil {
		return err
	}

	log.Infof("Cleared secure store")

	return nil
}

// Keys lists the names of the stored records. Names are not secret, so no
// session is needed.
func (s *Store) Keys() ([]string, error) {
	return s.backend.Keys()
}
