package main

import (
	"os"

	"fbuild/internal/protocol"
)

// countPendingRequests counts request files currently sitting in the daemon
// directory, claimed or not.
func countPendingRequests(daemonDir string) int {
	entries, err := os.ReadDir(daemonDir)
	if err != nil {
		return 0
	}
	count := 0
	for _, entry := range entries {
		if _, ok := protocol.RequestIDFromFileName(entry.Name()); ok {
			count++
		}
	}
	return count
}

func formatOrDash(value string) string {
	if value == "" {
		return "-"
	}
	return value
}
