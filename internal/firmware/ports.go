package firmware

import (
	"path/filepath"
	"sort"
)

// DetectPort scans the configured glob patterns in order and returns the
// first matching device. When a pattern matches several devices the
// lexicographically first one wins; callers that need stricter behavior must
// pass an explicit port.
func DetectPort(patterns []string) (string, error) {
	for _, pattern := range patterns {
		matches, err := filepath.Glob(pattern)
		if err != nil {
			continue
		}
		if len(matches) == 0 {
			continue
		}
		sort.Strings(matches)
		return matches[0], nil
	}
	return "", ErrNoPortDetected
}
