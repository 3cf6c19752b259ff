package protocol

import (
	"fmt"
	"path/filepath"
	"strings"
	"time"

	"github.com/google/uuid"
)

// Kind identifies the operation a request asks for.
type Kind string

const (
	KindBuild   Kind = "build"
	KindDeploy  Kind = "deploy"
	KindMonitor Kind = "monitor"
)

var kindSet = map[Kind]struct{}{
	KindBuild:   {},
	KindDeploy:  {},
	KindMonitor: {},
}

// ParseKind converts a string into a known Kind.
func ParseKind(value string) (Kind, bool) {
	normalized := Kind(strings.ToLower(strings.TrimSpace(value)))
	_, ok := kindSet[normalized]
	return normalized, ok
}

// Request describes one build, deploy, or monitor operation submitted to the
// daemon. A request is immutable once written; the daemon never rewrites a
// request file.
//
// Optional fields use zero values for absence: an empty Port means
// auto-detect, a zero Baud means the configured default, and a zero
// TimeoutSeconds means no timeout.
type Request struct {
	RequestID   string    `json:"request_id"`
	Kind        Kind      `json:"kind"`
	ProjectDir  string    `json:"project_dir"`
	Environment string    `json:"environment"`
	CallerPID   int       `json:"caller_pid"`
	CallerCwd   string    `json:"caller_cwd,omitempty"`
	CreatedAt   time.Time `json:"created_at"`

	// Build and deploy options.
	CleanBuild bool `json:"clean_build,omitempty"`
	Verbose    bool `json:"verbose,omitempty"`

	// Deploy and monitor options.
	Port string `json:"port,omitempty"`

	// Monitor options, also applied to the chained monitor when a deploy
	// request sets MonitorAfter.
	Baud           int     `json:"baud,omitempty"`
	TimeoutSeconds float64 `json:"timeout_seconds,omitempty"`
	HaltOnError    string  `json:"halt_on_error,omitempty"`
	HaltOnSuccess  string  `json:"halt_on_success,omitempty"`
	MonitorAfter   bool    `json:"monitor_after,omitempty"`
}

// NewRequestID derives a collision-resistant identifier from the operation
// kind, a millisecond timestamp, and a short random suffix.
func NewRequestID(kind Kind) string {
	suffix := strings.ReplaceAll(uuid.NewString(), "-", "")[:8]
	return fmt.Sprintf("%s_%d_%s", kind, time.Now().UnixMilli(), suffix)
}

// KindFromRequestID extracts the operation kind prefix from a request ID.
func KindFromRequestID(id string) (Kind, bool) {
	prefix, _, found := strings.Cut(id, "_")
	if !found {
		return "", false
	}
	return ParseKind(prefix)
}

// Validate checks the request for structural problems before submission or
// dispatch.
func (r *Request) Validate() error {
	if strings.TrimSpace(r.RequestID) == "" {
		return fmt.Errorf("request: missing request_id")
	}
	if _, ok := kindSet[r.Kind]; !ok {
		return fmt.Errorf("request %s: unknown kind %q", r.RequestID, r.Kind)
	}
	if strings.TrimSpace(r.ProjectDir) == "" {
		return fmt.Errorf("request %s: missing project_dir", r.RequestID)
	}
	if !filepath.IsAbs(r.ProjectDir) {
		return fmt.Errorf("request %s: project_dir %q is not absolute", r.RequestID, r.ProjectDir)
	}
	if strings.TrimSpace(r.Environment) == "" {
		return fmt.Errorf("request %s: missing environment", r.RequestID)
	}
	return nil
}

// Timeout returns the monitor timeout as a duration, or zero when unset.
func (r *Request) Timeout() time.Duration {
	if r.TimeoutSeconds <= 0 {
		return 0
	}
	return time.Duration(r.TimeoutSeconds * float64(time.Second))
}
