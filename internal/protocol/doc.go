// Package protocol defines the file-based request/status message contract
// between short-lived fbuild clients and the long-running daemon: document
// types, request IDs, file naming, and atomic JSON serialization.
//
// The protocol is deliberately filesystem-mediated rather than socket-based
// so submitted work is observable with standard tools and survives daemon
// restarts without a broker.
package protocol
