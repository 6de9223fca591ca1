package keystore

import (
	"sync"
)

// Session is the unlocked state of a Store. It holds the key derived for the
// store's active KDF parameters and, so that records written under older
// parameters stay readable, the password itself. All of it is overwritten by
// Release.
//
// A Session is safe for concurrent use. Get and Set hold the read lock for as
// long as they use key material and Release waits for them to finish.
type Session struct {
	mu sync.RWMutex

	store *Store

	// password is owned by the session and zeroed on release.
	password []byte

	// keys caches the key derived for the store's parameters and up to
	// maxCachedKeys parameter sets in total. It is guarded by keysMu so
	// readers holding mu.RLock can fill it.
	keysMu sync.Mutex
	keys   map[KDFParams][]byte

	released bool
}

// Valid reports whether the session can still be used.
func (s *Session) Valid() bool {
	if s == nil {
		return false
	}

	s.mu.RLock()
	defer s.mu.RUnlock()

	return !s.released
}

// Release overwrites all key material held by the session. Releasing an
// already released session is a no-op.
func (s *Session) Release() {
	if s == nil {
		return
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	if s.released {
		return
	}

	s.keysMu.Lock()
	for params, key := range s.keys {
		zero(key)
		delete(s.keys, params)
	}
	s.keysMu.Unlock()

	zero(s.password)
	s.password = nil
	s.released = true

	log.Debugf("Session released")
}

// maxCachedKeys bounds how many keys a session keeps. Records name their own
// KDF parameters, so past this point keys for further parameter sets are
// derived per read and dropped again.
const maxCachedKeys = 4

// keyFor returns the key for params, deriving it on first use. The returned
// done func must be called once the key is no longer needed; it zeroes keys
// that did not make it into the cache. The caller must hold s.mu.RLock.
func (s *Session) keyFor(params KDFParams) ([]byte, func(), error) {
	s.keysMu.Lock()
	defer s.keysMu.Unlock()

	if key, ok := s.keys[params]; ok {
		return key, func() {}, nil
	}

	log.Debugf("Deriving session key for %v", params)

	key, err := deriveKey(params, s.password, s.store.salt)
	if err != nil {
		return nil, nil, err
	}

	if params != s.store.kdf && len(s.keys) >= maxCachedKeys {
		log.Debugf("Key cache full, not caching key for %v", params)
		return key, func() { zero(key) }, nil
	}
	s.keys[params] = key

	return key, func() {}, nil
}
