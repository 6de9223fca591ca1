package kvstore

import (
	"encoding/json"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"sort"
	"sync"

	"github.com/lightningnetwork/lnd/fn/v2"
)

// fileDocument is the on-disk layout of a FileBackend.
type fileDocument struct {
	Version int               `json:"version"`
	Entries map[string]string `json:"entries"`
}

// fileFormatVersion is the current fileDocument version.
const fileFormatVersion = 1

// FileBackend is a Backend stored as a single JSON document. Every write
// rewrites the whole document to a temporary file that is then renamed over
// the original, so a crash never leaves a half written store behind.
type FileBackend struct {
	mu   sync.Mutex
	path string
}

// A compile-time check to ensure FileBackend implements the Backend interface.
var _ Backend = (*FileBackend)(nil)

// NewFileBackend returns a backend rooted at path. The file is created on the
// first write.
func NewFileBackend(path string) (*FileBackend, error) {
	if err := os.MkdirAll(filepath.Dir(path), 0700); err != nil {
		return nil, fmt.Errorf("unable to create store dir: %w", err)
	}

	return &FileBackend{path: path}, nil
}

// load reads the current document. A missing file is an empty store.
func (f *FileBackend) load() (*fileDocument, error) {
	doc := &fileDocument{
		Version: fileFormatVersion,
		Entries: make(map[string]string),
	}

	raw, err := os.ReadFile(f.path)
	switch {
	case errors.Is(err, os.ErrNotExist):
		return doc, nil

	case err != nil:
		return nil, err
	}

	if err := json.Unmarshal(raw, doc); err != nil {
		return nil, fmt.Errorf("unable to parse %v: %w", f.path, err)
	}
	if doc.Version != fileFormatVersion {
		return nil, fmt.Errorf("unknown store file version %d",
			doc.Version)
	}
	if doc.Entries == nil {
		doc.Entries = make(map[string]string)
	}

	return doc, nil
}

// store atomically replaces the document on disk.
func (f *FileBackend) store(doc *fileDocument) error {
	raw, err := json.MarshalIndent(doc, "", "  ")
	if err != nil {
		return err
	}

	tmp, err := os.CreateTemp(filepath.Dir(f.path), ".lnkeys-*.tmp")
	if err != nil {
		return err
	}
	tmpName := tmp.Name()

	// Best effort cleanup if anything below fails.
	defer func() {
		_ = os.Remove(tmpName)
	}()

	if err := tmp.Chmod(0600); err != nil {
		_ = tmp.Close()
		return err
	}
	if _, err := tmp.Write(raw); err != nil {
		_ = tmp.Close()
		return err
	}
	if err := tmp.Sync(); err != nil {
		_ = tmp.Close()
		return err
	}
	if err := tmp.Close(); err != nil {
		return err
	}

	return os.Rename(tmpName, f.path)
}

// Get returns the value stored under key.
//
// NOTE: This is part of the Backend interface.
func (f *FileBackend) Get(key string) (fn.Option[string], error) {
	if err := validateKey(key); err != nil {
		return fn.None[string](), err
	}

	f.mu.Lock()
	defer f.mu.Unlock()

	doc, err := f.load()
	if err != nil {
		return fn.None[string](), err
	}

	value, ok := doc.Entries[key]
	if !ok {
		return fn.None[string](), nil
	}

	return fn.Some(value), nil
}

// Set replaces the value stored under key.
//
// NOTE: This is part of the Backend interface.
func (f *FileBackend) Set(key, value string) error {
	if err := validateKey(key); err != nil {
		return err
	}

	f.mu.Lock()
	defer f.mu.Unlock()

	doc, err := f.load()
	if err != nil {
		return err
	}
	doc.Entries[key] = value

	return f.store(doc)
}

// RemoveAll deletes the backing file.
//
// NOTE: This is part of the Backend interface.
func (f *FileBackend) RemoveAll() error {
	f.mu.Lock()
	defer f.mu.Unlock()

	err := os.Remove(f.path)
	if err != nil && !errors.Is(err, os.ErrNotExist) {
		return err
	}

	log.Infof("Removed store file %v", f.path)

	return nil
}

// Keys returns the sorted entry names.
//
// NOTE: This is part of the Backend interface.
func (f *FileBackend) Keys() ([]string, error) {
	f.mu.Lock()
	defer f.mu.Unlock()

	doc, err := f.load()
	if err != nil {
		return nil, err
	}

	keys := make([]string, 0, len(doc.Entries))
	for key := range doc.Entries {
		keys = append(keys, key)
	}
	sort.Strings(keys)

	return keys, nil
}
