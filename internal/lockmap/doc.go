// Package lockmap provides the daemon's in-memory registry of per-resource
// try-locks keyed by project directory or serial port.
package lockmap
