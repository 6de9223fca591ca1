//go:build !dev
// +build !dev

package build

// Deployment specifies a production build.
const Deployment = Production

// LogLevel is the level used by stdout loggers in production builds.
const LogLevel = "info"
