package build

import "fmt"

// DeploymentType selects between the development and production flavour of
// the binary at compile time.
type DeploymentType byte

const (
	// Development builds honour the stdlog and nolog build tags and pick
	// their stdout log level from LOGLEVEL.
	Development DeploymentType = iota

	// Production builds always log through the shared backend.
	Production
)

// String returns the name of the deployment.
func (b DeploymentType) String() string {
	switch b {
	case Development:
		return "development"
	case Production:
		return "production"
	default:
		return "unknown"
	}
}

// Info describes the running binary: its version, the commit it was built
// from when known, and the deployment flavour.
func Info() string {
	commit := Commit
	if commit == "" {
		commit = "unknown"
	}

	return fmt.Sprintf("%s commit=%s build=%v", Version(), commit,
		Deployment)
}
