package kvstore

import (
	"fmt"
	"path/filepath"
	"sync"
	"testing"

	"github.com/stretchr/testify/require"
	"pgregory.net/rapid"
)

// backendConstructor is a generic constructor for the Backend
// implementations. The name of the implementation and the backend itself are
// returned.
type backendConstructor func(t *testing.T) (string, Backend)

var backendImplementations = []backendConstructor{
	func(t *testing.T) (string, Backend) {
		return "memory", NewMemBackend()
	},
	func(t *testing.T) (string, Backend) {
		path := filepath.Join(t.TempDir(), "store.db")
		b, err := OpenBolt(path, "lnkeys", 0)
		require.NoError(t, err)
		t.Cleanup(func() {
			require.NoError(t, b.Close())
		})

		return "bolt", b
	},
	func(t *testing.T) (string, Backend) {
		path := filepath.Join(t.TempDir(), "store.json")
		b, err := NewFileBackend(path)
		require.NoError(t, err)

		return "file", b
	},
}

// TestBackendContract runs every Backend implementation through the same set
// of expectations.
func TestBackendContract(t *testing.T) {
	t.Parallel()

	for _, newBackend := range backendImplementations {
		newBackend := newBackend

		t.Run("", func(t *testing.T) {
			t.Parallel()

			name, backend := newBackend(t)
			t.Logf("testing %v backend", name)

			// A fresh backend has nothing stored.
			value, err := backend.Get("missing")
			require.NoError(t, err)
			require.True(t, value.IsNone())

			keys, err := backend.Keys()
			require.NoError(t, err)
			require.Empty(t, keys)

			// Empty names are rejected on both paths.
			_, err = backend.Get("")
			require.ErrorIs(t, err, ErrEmptyKey)
			require.ErrorIs(t, backend.Set("", "x"), ErrEmptyKey)

			// Writes replace the whole value.
			require.NoError(t, backend.Set("b", "first"))
			require.NoError(t, backend.Set("b", "second"))
			require.NoError(t, backend.Set("a", ""))

			value, err = backend.Get("b")
			require.NoError(t, err)
			require.Equal(t, "second", value.UnwrapOr(""))

			// An empty value is still a present value.
			value, err = backend.Get("a")
			require.NoError(t, err)
			require.True(t, value.IsSome())

			keys, err = backend.Keys()
			require.NoError(t, err)
			require.Equal(t, []string{"a", "b"}, keys)

			// RemoveAll wipes the namespace and leaves the backend
			// usable.
			require.NoError(t, backend.RemoveAll())
			keys, err = backend.Keys()
			require.NoError(t, err)
			require.Empty(t, keys)

			require.NoError(t, backend.Set("c", "after"))
			value, err = backend.Get("c")
			require.NoError(t, err)
			require.Equal(t, "after", value.UnwrapOr(""))
		})
	}
}

// TestBackendConcurrentWrites makes sure concurrent writers to distinct keys
// all land.
func TestBackendConcurrentWrites(t *testing.T) {
	t.Parallel()

	const numWriters = 16

	for _, newBackend := range backendImplementations {
		newBackend := newBackend

		t.Run("", func(t *testing.T) {
			t.Parallel()

			_, backend := newBackend(t)

			var wg sync.WaitGroup
			for i := 0; i < numWriters; i++ {
				wg.Add(1)
				go func(i int) {
					defer wg.Done()

					key := fmt.Sprintf("key-%02d", i)
					require.NoError(t, backend.Set(key, key))
				}(i)
			}
			wg.Wait()

			keys, err := backend.Keys()
			require.NoError(t, err)
			require.Len(t, keys, numWriters)
		})
	}
}

// TestBoltNamespaces asserts that two namespaces in one file do not see or
// clear each other's entries, and that the data survives a reopen.
func TestBoltNamespaces(t *testing.T) {
	t.Parallel()

	path := filepath.Join(t.TempDir(), "shared.db")

	first, err := OpenBolt(path, "first", 0)
	require.NoError(t, err)
	require.NoError(t, first.Set("k", "one"))
	require.NoError(t, first.Close())

	second, err := OpenBolt(path, "second", 0)
	require.NoError(t, err)
	require.NoError(t, second.Set("k", "two"))
	require.NoError(t, second.RemoveAll())
	require.NoError(t, second.Close())

	// Operations on a closed backend fail.
	_, err = second.Get("k")
	require.ErrorIs(t, err, ErrClosed)
	require.ErrorIs(t, second.Set("k", "v"), ErrClosed)
	require.NoError(t, second.Close())

	first, err = OpenBolt(path, "first", 0)
	require.NoError(t, err)
	defer first.Close()

	value, err := first.Get("k")
	require.NoError(t, err)
	require.Equal(t, "one", value.UnwrapOr(""))

	_, err = OpenBolt(path, "", 0)
	require.ErrorIs(t, err, ErrNamespaceRequired)
}

// TestFileBackendPersistence checks that a second FileBackend over the same
// path sees earlier writes.
func TestFileBackendPersistence(t *testing.T) {
	t.Parallel()

	path := filepath.Join(t.TempDir(), "nested", "store.json")

	b, err := NewFileBackend(path)
	require.NoError(t, err)
	require.NoError(t, b.Set("seed", "opaque"))
	require.FileExists(t, path)

	reopened, err := NewFileBackend(path)
	require.NoError(t, err)

	value, err := reopened.Get("seed")
	require.NoError(t, err)
	require.Equal(t, "opaque", value.UnwrapOr(""))

	require.NoError(t, reopened.RemoveAll())
	require.NoFileExists(t, path)

	// Removing an already missing store is fine.
	require.NoError(t, reopened.RemoveAll())
}

// TestMemBackendProperty checks the in-memory backend against a plain map
// model under random operation sequences.
func TestMemBackendProperty(t *testing.T) {
	t.Parallel()

	rapid.Check(t, func(t *rapid.T) {
		backend := NewMemBackend()
		model := make(map[string]string)

		keyGen := rapid.StringMatching(`[a-d]{1,2}`)
		numOps := rapid.IntRange(1, 50).Draw(t, "numOps")

		for i := 0; i < numOps; i++ {
			key := keyGen.Draw(t, "key")

			switch rapid.IntRange(0, 2).Draw(t, "op") {
			case 0:
				value := rapid.String().Draw(t, "value")
				require.NoError(t, backend.Set(key, value))
				model[key] = value

			case 1:
				got, err := backend.Get(key)
				require.NoError(t, err)

				want, ok := model[key]
				require.Equal(t, ok, got.IsSome())
				require.Equal(t, want, got.UnwrapOr(""))

			case 2:
				if rapid.IntRange(0, 9).Draw(t, "wipe") == 0 {
					require.NoError(t, backend.RemoveAll())
					model = make(map[string]string)
				}
			}
		}

		keys, err := backend.Keys()
		require.NoError(t, err)
		require.Len(t, keys, len(model))
	})
}
