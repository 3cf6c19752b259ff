// Package history keeps a durable record of finished operations in a SQLite
// database so past builds, deploys, and monitor sessions survive daemon
// restarts and remain queryable from the CLI.
package history
