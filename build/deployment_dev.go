//go:build dev
// +build dev

package build

import "os"

// Deployment specifies a development build.
const Deployment = Development

// LogLevel is the level used by stdout loggers in development builds. It can
// be overridden through the LOGLEVEL environment variable.
var LogLevel = func() string {
	if level := os.Getenv("LOGLEVEL"); level != "" {
		return level
	}

	return "debug"
}()
