package build

import (
	"bytes"
	"path/filepath"
	"testing"

	"github.com/btcsuite/btclog"
	"github.com/stretchr/testify/require"
)

func newTestSubLoggers(w *bytes.Buffer) SubLoggers {
	backend := btclog.NewBackend(w)

	return SubLoggers{
		"KSTR": backend.Logger("KSTR"),
		"KEXP": backend.Logger("KEXP"),
	}
}

// TestParseAndSetDebugLevels checks the global and per-subsystem forms of the
// debug level string.
func TestParseAndSetDebugLevels(t *testing.T) {
	t.Parallel()

	testCases := []struct {
		name      string
		level     string
		expectErr bool
		kstr      btclog.Level
		kexp      btclog.Level
	}{{
		name:  "global",
		level: "debug",
		kstr:  btclog.LevelDebug,
		kexp:  btclog.LevelDebug,
	}, {
		name:  "global then subsystem",
		level: "warn,KEXP=trace",
		kstr:  btclog.LevelWarn,
		kexp:  btclog.LevelTrace,
	}, {
		name:  "subsystem only",
		level: "KSTR=error",
		kstr:  btclog.LevelError,
		kexp:  btclog.LevelInfo,
	}, {
		name:      "invalid global",
		level:     "loud",
		expectErr: true,
	}, {
		name:      "unknown subsystem",
		level:     "NOPE=debug",
		expectErr: true,
	}, {
		name:      "bad pair",
		level:     "info,KSTR",
		expectErr: true,
	}, {
		name:      "double equals",
		level:     "KSTR=debug=trace",
		expectErr: true,
	}, {
		name:      "bad level in pair",
		level:     "KSTR=shout",
		expectErr: true,
	}}

	for _, tc := range testCases {
		tc := tc
		t.Run(tc.name, func(t *testing.T) {
			t.Parallel()

			var buf bytes.Buffer
			loggers := newTestSubLoggers(&buf)

			err := ParseAndSetDebugLevels(tc.level, loggers)
			if tc.expectErr {
				require.Error(t, err)
				return
			}
			require.NoError(t, err)

			require.Equal(t, tc.kstr, loggers["KSTR"].Level())
			require.Equal(t, tc.kexp, loggers["KEXP"].Level())
		})
	}
}

// TestSupportedSubsystems asserts the subsystem list is sorted.
func TestSupportedSubsystems(t *testing.T) {
	t.Parallel()

	var buf bytes.Buffer
	loggers := newTestSubLoggers(&buf)

	require.Equal(
		t, []string{"KEXP", "KSTR"}, loggers.SupportedSubsystems(),
	)
}

// TestRotatingLogWriter makes sure lines written before and after the rotator
// is initialised are handled and the file is created on disk.
func TestRotatingLogWriter(t *testing.T) {
	t.Parallel()

	w := NewRotatingLogWriter()

	// Writes before initialisation are accepted and dropped.
	n, err := w.Write([]byte("early\n"))
	require.NoError(t, err)
	require.Equal(t, 6, n)

	logFile := filepath.Join(t.TempDir(), "logs", "lnkeys.log")
	require.NoError(t, w.InitLogRotator(DefaultFileLoggerConfig(), logFile))

	_, err = w.Write([]byte("hello\n"))
	require.NoError(t, err)
	require.NoError(t, w.Close())
	require.FileExists(t, logFile)

	// Closing twice is harmless.
	require.NoError(t, w.Close())
}

// TestVersion checks the version string carries the pre-release tag and that
// the build description includes it.
func TestVersion(t *testing.T) {
	t.Parallel()

	require.Equal(t, "0.3.0-beta", Version())
	require.Contains(t, Info(), "0.3.0-beta commit=")
	require.Contains(t, Info(), "build="+Deployment.String())
}
