// Package dispatch turns a submitted request into a finished operation. It
// owns the request lifecycle between discovery and the terminal status
// document: resource locking, the RUNNING transition, collaborator calls,
// checkpoint cancellation, and history recording.
package dispatch
