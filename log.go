package lnkeys

import (
	"io"

	"github.com/btcsuite/btclog"
	"github.com/davecgh/go-spew/spew"
	"github.com/lightningnetwork/lnkeys/build"
	"github.com/lightningnetwork/lnkeys/keychain"
	"github.com/lightningnetwork/lnkeys/keyexport"
	"github.com/lightningnetwork/lnkeys/keystore"
	"github.com/lightningnetwork/lnkeys/kvstore"
)

// Subsystem defines the logging code for the top level package.
const Subsystem = "LNKS"

// Loggers per subsystem. A single backend logger is created and all subsystem
// loggers created from it will write to the backend. When adding new
// subsystems, add the subsystem logger variable here and to the
// subsystemLoggers map.
//
// Output only reaches the log file after InitLogging has set up the rotator.
var (
	logWriter = &build.LogWriter{}

	// backendLog is the logging backend used to create all subsystem
	// loggers.
	backendLog = btclog.NewBackend(logWriter)

	// logRotator is one of the logging outputs. It should be closed on
	// application shutdown.
	logRotator = build.NewRotatingLogWriter()

	lnksLog = build.NewSubLogger(Subsystem, backendLog.Logger)
	kvstLog = build.NewSubLogger(kvstore.Subsystem, backendLog.Logger)
	kstrLog = build.NewSubLogger(keystore.Subsystem, backendLog.Logger)
	kchnLog = build.NewSubLogger(keychain.Subsystem, backendLog.Logger)
	kexpLog = build.NewSubLogger(keyexport.Subsystem, backendLog.Logger)
)

// Initialize package-global logger variables.
func init() {
	kvstore.UseLogger(kvstLog)
	keystore.UseLogger(kstrLog)
	keychain.UseLogger(kchnLog)
	keyexport.UseLogger(kexpLog)
}

// subsystemLoggers maps each subsystem identifier to its associated logger.
var subsystemLoggers = build.SubLoggers{
	Subsystem:           lnksLog,
	kvstore.Subsystem:   kvstLog,
	keystore.Subsystem:  kstrLog,
	keychain.Subsystem:  kchnLog,
	keyexport.Subsystem: kexpLog,
}

// nopLoggers returns a discarding logger for every registered subsystem so a
// debug level string can be validated without touching the live loggers.
func nopLoggers() map[string]btclog.Logger {
	backend := btclog.NewBackend(io.Discard)

	loggers := make(map[string]btclog.Logger, len(subsystemLoggers))
	for subsystem := range subsystemLoggers {
		loggers[subsystem] = backend.Logger(subsystem)
	}

	return loggers
}

// SubLoggers returns the loggers of every subsystem.
func SubLoggers() build.SubLoggers {
	return subsystemLoggers
}

// InitLogging applies the log level of cfg and, unless disabled, starts
// writing a rotated log file. Console output can be silenced with quiet so
// that command output stays clean.
func InitLogging(cfg *Config, quiet bool) error {
	logWriter.Quiet = quiet

	if !cfg.NoLogFile {
		fileCfg := &build.FileLoggerConfig{
			MaxLogFiles:    cfg.MaxLogFiles,
			MaxLogFileSize: cfg.MaxLogFileSize,
		}
		err := logRotator.InitLogRotator(fileCfg, cfg.LogFile())
		if err != nil {
			return err
		}
		logWriter.RotatorPipe = logRotator
	}

	err := build.ParseAndSetDebugLevels(cfg.DebugLevel, subsystemLoggers)
	if err != nil {
		return err
	}

	lnksLog.Debugf("Loaded configuration: %v", newLogClosure(func() string {
		return spew.Sdump(cfg)
	}))

	return nil
}

// CloseLogging flushes and closes the log file.
func CloseLogging() error {
	return logRotator.Close()
}

// logClosure is used to provide a closure over expensive logging operations so
// don't have to be performed when the logging level doesn't warrant it.
type logClosure func() string

// String invokes the underlying function and returns the result.
func (c logClosure) String() string {
	return c()
}

// newLogClosure returns a new closure over a function that returns a string
// which itself provides a Stringer interface so that it can be used with the
// logging system.
func newLogClosure(c func() string) logClosure {
	return logClosure(c)
}
