// Package firmware defines the collaborator boundary the daemon dispatches
// to: building, deploying, and monitoring a project. The default
// implementation shells out to the configured external toolchain; tests and
// embedders supply their own Toolchain.
package firmware
