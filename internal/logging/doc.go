// Package logging provides slog-based structured logging with console and
// JSON handlers plus standardized attribute keys for daemon operations.
package logging
