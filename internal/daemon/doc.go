// Package daemon runs the background coordinator process. It watches the
// daemon directory for request files, hands each new request to the
// dispatcher on its own goroutine, maintains the heartbeat document, and
// arbitrates shutdown against in-flight operations.
package daemon
