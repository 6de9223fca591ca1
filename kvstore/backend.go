package kvstore

import (
	"errors"

	"github.com/lightningnetwork/lnd/fn/v2"
)

var (
	// ErrEmptyKey is returned when a caller attempts to read or write an
	// entry with an empty name.
	ErrEmptyKey = errors.New("key name must not be empty")

	// ErrClosed is returned by a backend that has already been closed.
	ErrClosed = errors.New("backend is closed")

	// ErrNamespaceRequired is returned when a persistent backend is opened
	// without a namespace to scope its entries to.
	ErrNamespaceRequired = errors.New("namespace must not be empty")
)

// Backend is a plain, unencrypted string store. Whatever is written here may
// be read by anything with access to the device, so callers are expected to
// layer their own encryption on top.
type Backend interface {
	// Get returns the value stored under key, or None if nothing has been
	// written there.
	Get(key string) (fn.Option[string], error)

	// Set replaces the value stored under key.
	Set(key, value string) error

	// RemoveAll erases every entry in the backend's namespace.
	RemoveAll() error

	// Keys returns the sorted names of all entries in the namespace.
	Keys() ([]string, error)
}

// validateKey makes sure a key name can be stored by any backend.
func validateKey(key string) error {
	if key == "" {
		return ErrEmptyKey
	}

	return nil
}
