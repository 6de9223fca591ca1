package build

import (
	"fmt"
	"io"
	"maps"
	"os"
	"slices"
	"strings"

	"github.com/btcsuite/btclog"
)

// LogType is the logging behaviour selected by the stdlog and nolog build
// tags.
type LogType byte

const (
	// LogTypeNone drops every log line.
	LogTypeNone LogType = iota

	// LogTypeStdOut writes every line to stdout, used by unit tests.
	LogTypeStdOut

	// LogTypeDefault writes to stderr and the log rotator.
	LogTypeDefault
)

// LogWriter is the io.Writer behind the shared log backend. Its Write method
// is provided by the file matching the active logging build tag.
//
// Console output goes to stderr so that command output written to stdout
// (exported keys, stored values) can be piped without log lines mixed in.
type LogWriter struct {
	// RotatorPipe receives a copy of every line once file logging has
	// been set up. Nil means no log file.
	RotatorPipe io.Writer

	// Quiet suppresses the console copy of every log line.
	Quiet bool
}

// writeDefault writes b to the console and, if present, the rotator.
func (w *LogWriter) writeDefault(b []byte) (int, error) {
	if !w.Quiet {
		os.Stderr.Write(b)
	}
	if w.RotatorPipe != nil {
		if _, err := w.RotatorPipe.Write(b); err != nil {
			return 0, err
		}
	}

	return len(b), nil
}

// NewSubLogger returns the logger for subsystem. Production builds and the
// default development build derive it from genSubLogger so that all
// subsystems share one backend. A stdlog development build gets a standalone
// stdout logger at LogLevel. Anything else, including a nil genSubLogger,
// yields a disabled logger.
func NewSubLogger(subsystem string,
	genSubLogger func(string) btclog.Logger) btclog.Logger {

	if Deployment == Development && LoggingType == LogTypeStdOut {
		return stdoutLogger(subsystem)
	}

	sharedBackend := Deployment == Production ||
		LoggingType == LogTypeDefault
	if !sharedBackend || genSubLogger == nil {
		return btclog.Disabled
	}

	return genSubLogger(subsystem)
}

// stdoutLogger creates a logger with its own backend writing to stdout.
func stdoutLogger(subsystem string) btclog.Logger {
	logger := btclog.NewBackend(&LogWriter{}).Logger(subsystem)

	level, _ := btclog.LevelFromString(LogLevel)
	logger.SetLevel(level)

	return logger
}

// SubLoggers is a type that holds a map of subsystem loggers keyed by their
// subsystem name.
type SubLoggers map[string]btclog.Logger

// SupportedSubsystems returns the sorted names of all registered subsystems.
func (s SubLoggers) SupportedSubsystems() []string {
	return slices.Sorted(maps.Keys(s))
}

// SetLogLevel assigns an individual subsystem logger a new log level. Unknown
// subsystems and levels are ignored.
func (s SubLoggers) SetLogLevel(subsystemID string, logLevel string) {
	logger, ok := s[subsystemID]
	if !ok {
		return
	}

	level, _ := btclog.LevelFromString(logLevel)
	logger.SetLevel(level)
}

// SetLogLevels assigns all subsystem loggers the same new log level.
func (s SubLoggers) SetLogLevels(logLevel string) {
	for subsystemID := range s {
		s.SetLogLevel(subsystemID, logLevel)
	}
}

// SubLoggers returns the map itself so SubLoggers satisfies
// LeveledSubLogger.
func (s SubLoggers) SubLoggers() SubLoggers {
	return s
}

// LeveledSubLogger provides the ability to retrieve the subsystem loggers of
// a logger and set their log levels individually or all at once.
type LeveledSubLogger interface {
	// SubLoggers returns the map of all registered subsystem loggers.
	SubLoggers() SubLoggers

	// SupportedSubsystems returns a slice of strings containing the names
	// of the supported subsystems. Should ideally correspond to the keys
	// of the subsystem logger map and be sorted.
	SupportedSubsystems() []string

	// SetLogLevel assigns an individual subsystem logger a new log level.
	SetLogLevel(subsystemID string, logLevel string)

	// SetLogLevels assigns all subsystem loggers the same new log level.
	SetLogLevels(logLevel string)
}

// ParseAndSetDebugLevels applies a debug level string to logger. The string
// is either a single level for every subsystem, a comma separated list of
// subsystem=level pairs, or a level followed by such pairs.
func ParseAndSetDebugLevels(level string, logger LeveledSubLogger) error {
	entries := strings.Split(level, ",")

	if global := entries[0]; !strings.Contains(global, "=") {
		if !validLogLevel(global) {
			return fmt.Errorf("the specified debug level [%v] is "+
				"invalid", global)
		}
		logger.SetLogLevels(global)

		entries = entries[1:]
	}

	for _, entry := range entries {
		subsysID, subsysLevel, err := parseLevelPair(entry, logger)
		if err != nil {
			return err
		}

		logger.SetLogLevel(subsysID, subsysLevel)
	}

	return nil
}

// parseLevelPair splits a subsystem=level entry and checks both halves.
func parseLevelPair(entry string,
	logger LeveledSubLogger) (string, string, error) {

	subsysID, subsysLevel, ok := strings.Cut(entry, "=")
	switch {
	case !ok:
		return "", "", fmt.Errorf("the specified debug level contains "+
			"an invalid subsystem/level pair [%v]", entry)

	case strings.Contains(subsysLevel, "="):
		return "", "", fmt.Errorf("the specified debug level has an "+
			"invalid format [%v] -- use format subsystem1=level1,"+
			"subsystem2=level2", entry)
	}

	if _, exists := logger.SubLoggers()[subsysID]; !exists {
		return "", "", fmt.Errorf("the specified subsystem [%v] is "+
			"invalid -- supported subsystems are %v", subsysID,
			logger.SupportedSubsystems())
	}

	if !validLogLevel(subsysLevel) {
		return "", "", fmt.Errorf("the specified debug level [%v] is "+
			"invalid", subsysLevel)
	}

	return subsysID, subsysLevel, nil
}

// validLogLevel reports whether logLevel names a btclog level.
func validLogLevel(logLevel string) bool {
	_, ok := btclog.LevelFromString(logLevel)
	return ok
}
