package keystore

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"sync"
	"sync/atomic"
	"testing"
	"time"

	"github.com/davecgh/go-spew/spew"
	"github.com/lightningnetwork/lnd/fn/v2"
	"github.com/lightningnetwork/lnkeys/kvstore"
	"github.com/stretchr/testify/require"
	"pgregory.net/rapid"
)

var (
	// Cheap parameters so the tests stay fast.
	testLegacy = LegacyParams(DefaultLegacyIterations)
	testScrypt = ScryptParams(1<<4, 1, 1)
	testArgon2 = Argon2idParams(1, 64, 1)

	testSalt = []byte("3f0c2a1e-device")
)

// countingBackend records how often the wrapped backend is touched.
type countingBackend struct {
	kvstore.Backend

	calls atomic.Int32
}

func (c *countingBackend) Get(key string) (fn.Option[string], error) {
	c.calls.Add(1)
	return c.Backend.Get(key)
}

func (c *countingBackend) Set(key, value string) error {
	c.calls.Add(1)
	return c.Backend.Set(key, value)
}

func (c *countingBackend) RemoveAll() error {
	c.calls.Add(1)
	return c.Backend.RemoveAll()
}

func newTestStore(t *testing.T, backend kvstore.Backend, kdf KDFParams,
	suite CipherSuite, passwords ...string) *Store {

	t.Helper()

	store, err := New(backend, &Config{
		Salt:      testSalt,
		Passwords: NewScriptedPasswords(passwords...),
		KDF:       kdf,
		Cipher:    suite,
	})
	require.NoError(t, err)

	return store
}

// TestNewValidation makes sure a store cannot be created without its
// mandatory collaborators.
func TestNewValidation(t *testing.T) {
	t.Parallel()

	backend := kvstore.NewMemBackend()
	pw := StaticPassword("pw")

	_, err := New(backend, &Config{Passwords: pw})
	require.ErrorIs(t, err, ErrMissingSalt)

	_, err = New(backend, nil)
	require.ErrorIs(t, err, ErrMissingSalt)

	_, err = New(backend, &Config{Salt: testSalt})
	require.ErrorIs(t, err, ErrMissingPasswordSource)

	_, err = New(backend, &Config{
		Salt: testSalt, Passwords: pw, KDF: KDFParams{Type: 42, A: 1},
	})
	require.ErrorIs(t, err, ErrUnknownKDF)

	_, err = New(backend, &Config{
		Salt: testSalt, Passwords: pw, Cipher: 42,
	})
	require.ErrorIs(t, err, ErrUnknownCipher)

	store, err := New(backend, &Config{Salt: testSalt, Passwords: pw})
	require.NoError(t, err)
	require.Equal(t, DefaultKDFParams(), store.KDF())
	require.Equal(t, CipherAES256GCM, store.Cipher())
}

// TestRoundTrip writes under one session and reads back under a freshly
// acquired one for every KDF and cipher combination.
func TestRoundTrip(t *testing.T) {
	t.Parallel()

	kdfs := []KDFParams{testLegacy, testScrypt, testArgon2}
	suites := []CipherSuite{CipherAES256GCM, CipherXChaCha20Poly1305}

	for _, kdf := range kdfs {
		for _, suite := range suites {
			kdf, suite := kdf, suite
			name := fmt.Sprintf("%v/%v", kdf.Type, suite)

			t.Run(name, func(t *testing.T) {
				t.Parallel()

				store := newTestStore(
					t, kvstore.NewMemBackend(), kdf, suite,
					"hunter2", "hunter2",
				)
				ctx := context.Background()

				err := store.WithSession(ctx, func(s *Session) error {
					return store.Set(s, "share", "mpc-share-1")
				})
				require.NoError(t, err)

				session, err := store.Acquire(ctx)
				require.NoError(t, err)
				defer session.Release()

				value, err := store.Get(session, "share")
				require.NoError(t, err)
				require.Equal(
					t, fn.Some("mpc-share-1"), value,
				)

				missing, err := store.Get(session, "nothing")
				require.NoError(t, err)
				require.True(t, missing.IsNone())
			})
		}
	}
}

// TestWrongPasswordFailsClosed asserts that a record sealed under one
// password never opens under another.
func TestWrongPasswordFailsClosed(t *testing.T) {
	t.Parallel()

	backend := kvstore.NewMemBackend()
	store := newTestStore(
		t, backend, testArgon2, CipherAES256GCM, "right", "wrong",
	)
	ctx := context.Background()

	require.NoError(t, store.WithSession(ctx, func(s *Session) error {
		return store.Set(s, "k", "secret")
	}))

	err := store.WithSession(ctx, func(s *Session) error {
		value, err := store.Get(s, "k")
		require.True(t, value.IsNone(), spew.Sdump(value))

		return err
	})
	require.ErrorIs(t, err, ErrDecryptionFailed)
}

// TestLockedStateGuard makes sure Get and Set never reach the backend
// without a live session.
func TestLockedStateGuard(t *testing.T) {
	t.Parallel()

	backend := &countingBackend{Backend: kvstore.NewMemBackend()}
	store := newTestStore(t, backend, testArgon2, 0, "pw", "pw")
	other := newTestStore(t, backend, testArgon2, 0, "pw")

	released, err := store.Acquire(context.Background())
	require.NoError(t, err)
	released.Release()

	foreign, err := other.Acquire(context.Background())
	require.NoError(t, err)
	defer foreign.Release()

	for _, session := range []*Session{nil, released, foreign} {
		_, err := store.Get(session, "k")
		require.ErrorIs(t, err, ErrStorageLocked)

		err = store.Set(session, "k", "v")
		require.ErrorIs(t, err, ErrStorageLocked)
	}

	require.Zero(t, backend.calls.Load())

	// Acquire itself does no I/O either.
	session, err := store.Acquire(context.Background())
	require.NoError(t, err)
	defer session.Release()
	require.Zero(t, backend.calls.Load())
}

// TestTamperDetection mangles a stored record in several ways and expects
// every read to fail with ErrDecryptionFailed.
func TestTamperDetection(t *testing.T) {
	t.Parallel()

	backend := kvstore.NewMemBackend()
	store := newTestStore(
		t, backend, testArgon2, CipherXChaCha20Poly1305, "pw",
	)

	session, err := store.Acquire(context.Background())
	require.NoError(t, err)
	defer session.Release()

	require.NoError(t, store.Set(session, "orig", "the plaintext"))
	stored, err := backend.Get("orig")
	require.NoError(t, err)
	sealed := stored.UnsafeFromSome()

	flip := func(s string, i int) string {
		b := []byte(s)
		if b[i] == 'A' {
			b[i] = 'B'
		} else {
			b[i] = 'A'
		}

		return string(b)
	}

	mangled := map[string]string{
		"empty":          "",
		"not base64":     "!!not-base64!!",
		"truncated":      sealed[:len(sealed)-5],
		"header only":    sealed[:20],
		"flipped tail":   flip(sealed, len(sealed)-3),
		"flipped middle": flip(sealed, len(sealed)/2),
		"flipped header": flip(sealed, 2),
		"extended":       sealed + "AAAA",
	}

	for name, value := range mangled {
		require.NoError(t, backend.Set(name, value))

		got, err := store.Get(session, name)
		require.ErrorIs(t, err, ErrDecryptionFailed, name)
		require.True(t, got.IsNone(), name)
	}

	// Moving an intact record under another key must not open either.
	require.NoError(t, backend.Set("moved", sealed))
	_, err = store.Get(session, "moved")
	require.ErrorIs(t, err, ErrDecryptionFailed)

	// Nor does it open in a store with another salt, even with the same
	// password.
	otherSalt, err := New(backend, &Config{
		Salt:      []byte("another-device"),
		Passwords: StaticPassword("pw"),
		KDF:       testArgon2,
	})
	require.NoError(t, err)
	err = otherSalt.WithSession(context.Background(),
		func(s *Session) error {
			_, err := otherSalt.Get(s, "orig")
			return err
		},
	)
	require.ErrorIs(t, err, ErrDecryptionFailed)

	// The original is still fine.
	value, err := store.Get(session, "orig")
	require.NoError(t, err)
	require.Equal(t, "the plaintext", value.UnwrapOr(""))
}

// TestForgedKDFHeader rewrites the KDF parameters of a stored record to
// ruinously expensive ones. The read must fail closed without attempting
// the derivation.
func TestForgedKDFHeader(t *testing.T) {
	t.Parallel()

	backend := kvstore.NewMemBackend()
	store := newTestStore(t, backend, testArgon2, 0, "pw")

	session, err := store.Acquire(context.Background())
	require.NoError(t, err)
	defer session.Release()

	require.NoError(t, store.Set(session, "victim", "the plaintext"))
	stored, err := backend.Get("victim")
	require.NoError(t, err)

	forged := []KDFParams{
		ScryptParams(1<<22, 1<<16, 1),
		ScryptParams(1<<20, 8, 1),
		Argon2idParams(64, 64*1024, 1),
		Argon2idParams(1, 4*1024*1024, 1),
		LegacyParams(1 << 30),
	}

	for _, params := range forged {
		env, err := decodeEnvelope(stored.UnsafeFromSome())
		require.NoError(t, err)
		env.kdf = params

		encoded, err := env.encode()
		require.NoError(t, err)
		require.NoError(t, backend.Set("victim", encoded))

		start := time.Now()
		got, err := store.Get(session, "victim")
		require.ErrorIs(t, err, ErrDecryptionFailed, params.String())
		require.True(t, got.IsNone())
		require.Less(t, time.Since(start), time.Second,
			params.String())
	}

	session.keysMu.Lock()
	require.Len(t, session.keys, 1)
	session.keysMu.Unlock()
}

// TestSessionKeyCacheBounded reads records written under many parameter
// sets and checks the session only keeps a bounded number of keys.
func TestSessionKeyCacheBounded(t *testing.T) {
	t.Parallel()

	store := newTestStore(
		t, kvstore.NewMemBackend(), testArgon2, 0, "pw",
	)

	session, err := store.Acquire(context.Background())
	require.NoError(t, err)
	defer session.Release()

	var dropped []byte
	for i := uint32(1); i <= 2*maxCachedKeys; i++ {
		key, done, err := session.keyFor(LegacyParams(i))
		require.NoError(t, err)
		require.Len(t, key, KeyLen)
		done()

		if i == 2*maxCachedKeys {
			dropped = key
		}
	}

	require.Len(t, session.keys, maxCachedKeys)
	require.Contains(t, session.keys, testArgon2)
	require.Equal(t, make([]byte, KeyLen), dropped)

	// The store's own key is always served from the cache.
	key, done, err := session.keyFor(testArgon2)
	require.NoError(t, err)
	done()
	require.Equal(t, session.keys[testArgon2], key)
}

// TestFreshNonces asserts that sealing the same value twice gives two
// different records.
func TestFreshNonces(t *testing.T) {
	t.Parallel()

	backend := kvstore.NewMemBackend()
	store := newTestStore(t, backend, testArgon2, 0, "pw")

	require.NoError(t, store.WithSession(context.Background(),
		func(s *Session) error {
			if err := store.Set(s, "a", "same"); err != nil {
				return err
			}

			return store.Set(s, "b", "same")
		},
	))

	a, err := backend.Get("a")
	require.NoError(t, err)
	b, err := backend.Get("b")
	require.NoError(t, err)
	require.NotEqual(t, a.UnsafeFromSome(), b.UnsafeFromSome())

	envA, err := decodeEnvelope(a.UnsafeFromSome())
	require.NoError(t, err)
	envB, err := decodeEnvelope(b.UnsafeFromSome())
	require.NoError(t, err)
	require.NotEqual(t, envA.nonce, envB.nonce)
	require.Len(t, envA.nonce, CipherAES256GCM.NonceSize())
}

// TestKDFParameterBump writes records with the legacy stretch, reopens the
// store with Argon2id and checks that old records still open while new ones
// carry the new parameters.
func TestKDFParameterBump(t *testing.T) {
	t.Parallel()

	backend := kvstore.NewMemBackend()
	ctx := context.Background()

	legacy := newTestStore(t, backend, testLegacy, 0, "pw")
	require.NoError(t, legacy.WithSession(ctx, func(s *Session) error {
		return setLegacyRecord(legacy, s)
	}))

	bumped := newTestStore(
		t, backend, testArgon2, CipherXChaCha20Poly1305, "pw",
	)
	require.NoError(t, bumped.WithSession(ctx, func(s *Session) error {
		value, err := bumped.Get(s, "old")
		if err != nil {
			return err
		}
		require.Equal(t, "written-by-legacy", value.UnwrapOr(""))

		return bumped.Set(s, "new", "written-by-argon2")
	}))

	oldRaw, err := backend.Get("old")
	require.NoError(t, err)
	oldEnv, err := decodeEnvelope(oldRaw.UnsafeFromSome())
	require.NoError(t, err)
	require.Equal(t, testLegacy, oldEnv.kdf)
	require.Equal(t, CipherAES256GCM, oldEnv.cipher)

	newRaw, err := backend.Get("new")
	require.NoError(t, err)
	newEnv, err := decodeEnvelope(newRaw.UnsafeFromSome())
	require.NoError(t, err)
	require.Equal(t, testArgon2, newEnv.kdf)
	require.Equal(t, CipherXChaCha20Poly1305, newEnv.cipher)
}

func setLegacyRecord(store *Store, s *Session) error {
	return store.Set(s, "old", "written-by-legacy")
}

// TestAcquireRejected covers the ways a password source can decline.
func TestAcquireRejected(t *testing.T) {
	t.Parallel()

	backend := kvstore.NewMemBackend()

	// A dismissed prompt.
	cancelled := newTestStore(t, backend, testArgon2, 0)
	_, err := cancelled.Acquire(context.Background())
	require.ErrorIs(t, err, ErrPasswordSourceRejected)
	require.ErrorIs(t, err, ErrPasswordCancelled)

	// An empty password.
	empty := newTestStore(t, backend, testArgon2, 0, "")
	_, err = empty.Acquire(context.Background())
	require.ErrorIs(t, err, ErrPasswordSourceRejected)

	// An already cancelled context.
	ctx, cancel := context.WithCancel(context.Background())
	cancel()
	scripted := NewScriptedPasswords("pw")
	store, err := New(backend, &Config{
		Salt: testSalt, Passwords: scripted, KDF: testArgon2,
	})
	require.NoError(t, err)
	_, err = store.Acquire(ctx)
	require.ErrorIs(t, err, ErrPasswordSourceRejected)
	require.ErrorIs(t, err, context.Canceled)
	require.Zero(t, scripted.Asked())

	// A source failing for its own reasons.
	boom := errors.New("enclave unavailable")
	failing, err := New(backend, &Config{
		Salt: testSalt,
		Passwords: PasswordFunc(func(context.Context) ([]byte, error) {
			return nil, boom
		}),
	})
	require.NoError(t, err)
	_, err = failing.Acquire(context.Background())
	require.ErrorIs(t, err, ErrPasswordSourceRejected)
	require.ErrorIs(t, err, boom)
}

// TestAcquireStuckPrompt makes sure a prompt that ignores its context does
// not hold Acquire past the caller's deadline.
func TestAcquireStuckPrompt(t *testing.T) {
	t.Parallel()

	unblock := make(chan struct{})
	source := PasswordFunc(func(context.Context) ([]byte, error) {
		<-unblock
		return []byte("late-password"), nil
	})
	defer close(unblock)

	store, err := New(kvstore.NewMemBackend(), &Config{
		Salt: testSalt, Passwords: source, KDF: testArgon2,
	})
	require.NoError(t, err)

	ctx, cancel := context.WithTimeout(
		context.Background(), 50*time.Millisecond,
	)
	defer cancel()

	start := time.Now()
	_, err = store.Acquire(ctx)
	require.ErrorIs(t, err, ErrPasswordSourceRejected)
	require.ErrorIs(t, err, context.DeadlineExceeded)
	require.Less(t, time.Since(start), 5*time.Second)
}

// TestReleaseZeroesKeyMaterial checks that Release overwrites the derived
// keys and the password, and that it is idempotent.
func TestReleaseZeroesKeyMaterial(t *testing.T) {
	t.Parallel()

	store := newTestStore(
		t, kvstore.NewMemBackend(), testArgon2, 0, "pw",
	)

	session, err := store.Acquire(context.Background())
	require.NoError(t, err)
	require.True(t, session.Valid())

	// Derive a second key so more than one is cached.
	_, done, err := session.keyFor(testLegacy)
	require.NoError(t, err)
	done()

	active := session.keys[testArgon2]
	legacy := session.keys[testLegacy]
	password := session.password

	session.Release()
	require.False(t, session.Valid())
	require.Equal(t, make([]byte, KeyLen), active)
	require.Equal(t, make([]byte, KeyLen), legacy)
	require.Equal(t, make([]byte, len(password)), password)
	require.Empty(t, session.keys)

	// A second release is a no-op.
	require.NotPanics(t, session.Release)
	require.NotPanics(t, func() {
		store.Release(session)
	})

	var nilSession *Session
	require.False(t, nilSession.Valid())
	require.NotPanics(t, nilSession.Release)
}

// TestWithSessionReleasesOnPanic asserts scoped sessions are released even
// when the callback panics.
func TestWithSessionReleasesOnPanic(t *testing.T) {
	t.Parallel()

	store := newTestStore(
		t, kvstore.NewMemBackend(), testArgon2, 0, "pw", "pw",
	)

	var leaked *Session
	require.Panics(t, func() {
		_ = store.WithSession(context.Background(),
			func(s *Session) error {
				leaked = s
				panic("boom")
			},
		)
	})
	require.NotNil(t, leaked)
	require.False(t, leaked.Valid())

	// Errors are passed through and release still happens.
	errCallback := errors.New("callback failed")
	err := store.WithSession(context.Background(), func(s *Session) error {
		leaked = s
		return errCallback
	})
	require.ErrorIs(t, err, errCallback)
	require.False(t, leaked.Valid())
}

// TestClearWithoutSession wipes the store while locked.
func TestClearWithoutSession(t *testing.T) {
	t.Parallel()

	backend := kvstore.NewMemBackend()
	store := newTestStore(t, backend, testArgon2, 0, "pw")

	require.NoError(t, store.WithSession(context.Background(),
		func(s *Session) error {
			return store.Set(s, "k", "v")
		},
	))

	keys, err := store.Keys()
	require.NoError(t, err)
	require.Equal(t, []string{"k"}, keys)

	require.NoError(t, store.Clear())

	keys, err = store.Keys()
	require.NoError(t, err)
	require.Empty(t, keys)
}

// TestValueTooLarge checks the plaintext size limit.
func TestValueTooLarge(t *testing.T) {
	t.Parallel()

	store := newTestStore(
		t, kvstore.NewMemBackend(), testArgon2, 0, "pw",
	)
	err := store.WithSession(context.Background(), func(s *Session) error {
		if err := store.Set(s, "max", strings.Repeat("x",
			MaxValueSize)); err != nil {

			return err
		}

		return store.Set(s, "big", strings.Repeat("x", MaxValueSize+1))
	})
	require.ErrorIs(t, err, ErrValueTooLarge)
}

// TestConcurrentAccess hammers one session from many goroutines while it is
// released midway. Every call either succeeds or reports a locked store.
func TestConcurrentAccess(t *testing.T) {
	t.Parallel()

	store := newTestStore(
		t, kvstore.NewMemBackend(), testArgon2, 0, "pw",
	)
	session, err := store.Acquire(context.Background())
	require.NoError(t, err)

	const numWorkers = 8

	var (
		wg       sync.WaitGroup
		failures atomic.Int32
	)
	for i := 0; i < numWorkers; i++ {
		wg.Add(1)
		go func(i int) {
			defer wg.Done()

			key := fmt.Sprintf("k%d", i)
			for j := 0; j < 20; j++ {
				err := store.Set(session, key, key)
				if err != nil && !errors.Is(err, ErrStorageLocked) {
					failures.Add(1)
				}

				value, err := store.Get(session, key)
				switch {
				case errors.Is(err, ErrStorageLocked):
				case err != nil:
					failures.Add(1)
				case value.IsSome() && value.UnsafeFromSome() != key:
					failures.Add(1)
				}
			}
		}(i)
	}

	session.Release()
	wg.Wait()

	require.Zero(t, failures.Load())
}

// TestRoundTripProperty checks that any plaintext sealed under any password
// reads back unchanged under a new session with the same password, and
// never under a different one.
func TestRoundTripProperty(t *testing.T) {
	t.Parallel()

	rapid.Check(t, func(t *rapid.T) {
		password := rapid.StringMatching(`[ -~]{1,24}`).Draw(
			t, "password",
		)
		other := rapid.StringMatching(`[ -~]{1,24}`).Filter(
			func(s string) bool { return s != password },
		).Draw(t, "other")
		plaintext := rapid.String().Draw(t, "plaintext")
		key := rapid.StringMatching(`[a-z0-9_.]{1,16}`).Draw(t, "key")
		suite := rapid.SampledFrom([]CipherSuite{
			CipherAES256GCM, CipherXChaCha20Poly1305,
		}).Draw(t, "suite")

		backend := kvstore.NewMemBackend()
		store, err := New(backend, &Config{
			Salt:      testSalt,
			Passwords: NewScriptedPasswords(password, password, other),
			KDF:       testArgon2,
			Cipher:    suite,
		})
		require.NoError(t, err)

		ctx := context.Background()
		require.NoError(t, store.WithSession(ctx, func(s *Session) error {
			return store.Set(s, key, plaintext)
		}))

		require.NoError(t, store.WithSession(ctx, func(s *Session) error {
			value, err := store.Get(s, key)
			require.NoError(t, err)
			require.Equal(t, fn.Some(plaintext), value)

			return nil
		}))

		err = store.WithSession(ctx, func(s *Session) error {
			_, err := store.Get(s, key)
			return err
		})
		require.ErrorIs(t, err, ErrDecryptionFailed)
	})
}
