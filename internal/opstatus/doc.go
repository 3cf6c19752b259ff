// Package opstatus persists per-operation status documents and enforces the
// forward-only PENDING -> RUNNING -> SUCCESS/FAILED state machine.
package opstatus
