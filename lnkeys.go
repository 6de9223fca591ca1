package lnkeys

import (
	"errors"
	"fmt"
	"io"
	"os"
	"path/filepath"
	"strings"

	"github.com/google/uuid"
	"github.com/lightningnetwork/lnkeys/keyexport"
	"github.com/lightningnetwork/lnkeys/keystore"
	"github.com/lightningnetwork/lnkeys/kvstore"
)

const (
	// DeviceIDFilename is the file inside the data directory holding the
	// identifier every record is bound to.
	DeviceIDFilename = "device.id"

	boltDBFilename = "keystore.db"
	fileDBSuffix   = ".json"
)

// ErrNotInitialized is returned when the data directory has no device
// identifier yet.
var ErrNotInitialized = errors.New("lnkeys is not initialized, run " +
	"`lnkeys init` first")

// InitDeviceID returns the device identifier stored in dataDir, creating a
// new random one if none exists. The boolean is true if it was created.
func InitDeviceID(dataDir string) (string, bool, error) {
	id, err := ReadDeviceID(dataDir)
	switch {
	case err == nil:
		return id, false, nil

	case !errors.Is(err, ErrNotInitialized):
		return "", false, err
	}

	if err := os.MkdirAll(dataDir, 0700); err != nil {
		return "", false, err
	}

	id = uuid.NewString()
	path := filepath.Join(dataDir, DeviceIDFilename)
	err = os.WriteFile(path, []byte(id+"\n"), 0600)
	if err != nil {
		return "", false, fmt.Errorf("unable to write device id: %w",
			err)
	}

	lnksLog.Infof("Created device id in %v", dataDir)

	return id, true, nil
}

// ReadDeviceID returns the device identifier stored in dataDir.
func ReadDeviceID(dataDir string) (string, error) {
	path := filepath.Join(dataDir, DeviceIDFilename)
	b, err := os.ReadFile(path)
	switch {
	case errors.Is(err, os.ErrNotExist):
		return "", ErrNotInitialized

	case err != nil:
		return "", err
	}

	id, err := uuid.Parse(strings.TrimSpace(string(b)))
	if err != nil {
		return "", fmt.Errorf("corrupt device id in %v: %w", path, err)
	}

	return id.String(), nil
}

// noopCloser is the closer of backends that hold no resources.
type noopCloser struct{}

// Close does nothing.
func (noopCloser) Close() error {
	return nil
}

// OpenBackend opens the record backend selected by cfg. The returned closer
// must be called once the backend is no longer used.
func OpenBackend(cfg *Config) (kvstore.Backend, io.Closer, error) {
	switch cfg.Backend {
	case BackendBolt:
		path := filepath.Join(cfg.DataDir, boltDBFilename)
		db, err := kvstore.OpenBolt(path, cfg.Namespace, cfg.DBTimeout)
		if err != nil {
			return nil, nil, err
		}

		return db, db, nil

	case BackendFile:
		path := filepath.Join(cfg.DataDir, cfg.Namespace+fileDBSuffix)
		db, err := kvstore.NewFileBackend(path)
		if err != nil {
			return nil, nil, err
		}

		return db, noopCloser{}, nil

	case BackendMemory:
		return kvstore.NewMemBackend(), noopCloser{}, nil

	default:
		return nil, nil, fmt.Errorf("unknown backend %q", cfg.Backend)
	}
}

// OpenStore assembles a SecureKeyStore over backend, salted with the device
// identifier in the data directory.
func OpenStore(cfg *Config, backend kvstore.Backend,
	passwords keystore.PasswordSource) (*keystore.Store, error) {

	deviceID, err := ReadDeviceID(cfg.DataDir)
	if err != nil {
		return nil, err
	}

	store, err := keystore.New(backend, &keystore.Config{
		Salt:      []byte(deviceID),
		Passwords: passwords,
		KDF:       cfg.KDFParams,
		Cipher:    cfg.CipherSuite,
	})
	if err != nil {
		return nil, err
	}

	lnksLog.Debugf("Opened %v store (kdf=%v, cipher=%v)", cfg.Backend,
		store.KDF(), store.Cipher())

	return store, nil
}

// NewEngine returns a key export engine using the configured path style.
func NewEngine(cfg *Config) *keyexport.Engine {
	return keyexport.New(keyexport.WithPathStyle(cfg.Style))
}
