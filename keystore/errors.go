package keystore

import "errors"

var (
	// ErrPasswordSourceRejected is returned by Acquire when the password
	// source declined to produce a password, the user cancelled the
	// prompt or the context was done before a password arrived.
	ErrPasswordSourceRejected = errors.New("password source rejected " +
		"the request")

	// ErrKeyDerivationFailed is returned when stretching a password into
	// a symmetric key failed.
	ErrKeyDerivationFailed = errors.New("key derivation failed")

	// ErrStorageLocked is returned by Get and Set when no live session is
	// presented.
	ErrStorageLocked = errors.New("storage is locked")

	// ErrDecryptionFailed is returned when a stored record could not be
	// authenticated, either because the password is wrong or because the
	// record was tampered with, truncated or garbled.
	ErrDecryptionFailed = errors.New("decryption failed: wrong " +
		"password or corrupted record")

	// ErrPasswordCancelled is what a PasswordSource returns when the user
	// dismissed the prompt.
	ErrPasswordCancelled = errors.New("password entry cancelled")

	// ErrMissingSalt is returned by New when no store salt is configured.
	ErrMissingSalt = errors.New("store salt must not be empty")

	// ErrMissingPasswordSource is returned by New when no password source
	// is configured.
	ErrMissingPasswordSource = errors.New("password source required")

	// ErrUnknownKDF is returned for an unsupported key derivation
	// function.
	ErrUnknownKDF = errors.New("unknown key derivation function")

	// ErrValueTooLarge is returned by Set for a plaintext above
	// MaxValueSize.
	ErrValueTooLarge = errors.New("value too large")

	// ErrUnknownCipher is returned for an unsupported cipher suite.
	ErrUnknownCipher = errors.New("unknown cipher suite")
)
