package kvstore

import (
	"fmt"
	"os"
	"path/filepath"
	"sync"
	"time"

	"github.com/lightningnetwork/lnd/fn/v2"
	"go.etcd.io/bbolt"
)

const (
	// DefaultDBTimeout is how long OpenBolt waits for the file lock of a
	// database that is held by another process.
	DefaultDBTimeout = 5 * time.Second

	// dbFilePermission is the file mode of a freshly created database.
	dbFilePermission = 0600
)

// BoltBackend is a Backend persisted in a bbolt database file. Each namespace
// maps to its own top-level bucket so several stores can share one file.
type BoltBackend struct {
	mu sync.RWMutex

	db     *bbolt.DB
	bucket []byte
}

// A compile-time check to ensure BoltBackend implements the Backend interface.
var _ Backend = (*BoltBackend)(nil)

// OpenBolt opens (creating if needed) the database at path and makes sure the
// namespace bucket exists.
func OpenBolt(path, namespace string, timeout time.Duration) (*BoltBackend,
	error) {

	if namespace == "" {
		return nil, ErrNamespaceRequired
	}
	if timeout == 0 {
		timeout = DefaultDBTimeout
	}

	if err := os.MkdirAll(filepath.Dir(path), 0700); err != nil {
		return nil, fmt.Errorf("unable to create db dir: %w", err)
	}

	db, err := bbolt.Open(path, dbFilePermission, &bbolt.Options{
		Timeout: timeout,
	})
	if err != nil {
		return nil, fmt.Errorf("unable to open %v: %w", path, err)
	}

	bucket := []byte(namespace)

	// If the namespace bucket doesn't exist, create it.
	err = db.Update(func(tx *bbolt.Tx) error {
		_, err := tx.CreateBucketIfNotExists(bucket)
		return err
	})
	if err != nil {
		_ = db.Close()
		return nil, err
	}

	log.Debugf("Opened bolt backend %v (namespace=%v)", path, namespace)

	return &BoltBackend{
		db:     db,
		bucket: bucket,
	}, nil
}

// Get returns the value stored under key.
//
// NOTE: This is part of the Backend interface.
func (b *BoltBackend) Get(key string) (fn.Option[string], error) {
	if err := validateKey(key); err != nil {
		return fn.None[string](), err
	}

	b.mu.RLock()
	defer b.mu.RUnlock()

	if b.db == nil {
		return fn.None[string](), ErrClosed
	}

	result := fn.None[string]()
	err := b.db.View(func(tx *bbolt.Tx) error {
		ns := tx.Bucket(b.bucket)
		if ns == nil {
			return nil
		}

		// The value is only valid for the life of the transaction, so
		// the string conversion copies it out.
		value := ns.Get([]byte(key))
		if value != nil {
			result = fn.Some(string(value))
		}

		return nil
	})
	if err != nil {
		return fn.None[string](), err
	}

	return result, nil
}

// Set replaces the value stored under key.
//
// NOTE: This is part of the Backend interface.
func (b *BoltBackend) Set(key, value string) error {
	if err := validateKey(key); err != nil {
		return err
	}

	b.mu.RLock()
	defer b.mu.RUnlock()

	if b.db == nil {
		return ErrClosed
	}

	return b.db.Update(func(tx *bbolt.Tx) error {
		ns, err := tx.CreateBucketIfNotExists(b.bucket)
		if err != nil {
			return err
		}

		return ns.Put([]byte(key), []byte(value))
	})
}

// RemoveAll drops and recreates the namespace bucket. Other namespaces in the
// same file are left alone.
//
// NOTE: This is part of the Backend interface.
func (b *BoltBackend) RemoveAll() error {
	b.mu.RLock()
	defer b.mu.RUnlock()

	if b.db == nil {
		return ErrClosed
	}

	err := b.db.Update(func(tx *bbolt.Tx) error {
		err := tx.DeleteBucket(b.bucket)
		if err != nil && err != bbolt.ErrBucketNotFound {
			return err
		}

		_, err = tx.CreateBucket(b.bucket)
		return err
	})
	if err != nil {
		return err
	}

	log.Infof("Removed all entries in namespace %s", b.bucket)

	return nil
}

// Keys returns the sorted entry names. bbolt iterates in byte order, which is
// already sorted.
//
// NOTE: This is part of the Backend interface.
func (b *BoltBackend) Keys() ([]string, error) {
	b.mu.RLock()
	defer b.mu.RUnlock()

	if b.db == nil {
		return nil, ErrClosed
	}

	var keys []string
	err := b.db.View(func(tx *bbolt.Tx) error {
		ns := tx.Bucket(b.bucket)
		if ns == nil {
			return nil
		}

		return ns.ForEach(func(k, _ []byte) error {
			keys = append(keys, string(k))
			return nil
		})
	})
	if err != nil {
		return nil, err
	}

	return keys, nil
}

// Close releases the database file. Calling Close more than once is a no-op.
func (b *BoltBackend) Close() error {
	b.mu.Lock()
	defer b.mu.Unlock()

	if b.db == nil {
		return nil
	}

	err := b.db.Close()
	b.db = nil

	return err
}
