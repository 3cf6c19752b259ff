// Package config loads, normalizes, and validates fbuild configuration.
package config
