package protocol

import (
	"strings"
	"time"
)

// Status represents the lifecycle of one operation. Transitions are strictly
// forward-only: pending -> running -> success or failed.
type Status string

const (
	StatusPending Status = "pending"
	StatusRunning Status = "running"
	StatusSuccess Status = "success"
	StatusFailed  Status = "failed"
)

// Terminal reports whether the status can no longer change.
func (s Status) Terminal() bool {
	return s == StatusSuccess || s == StatusFailed
}

// ParseStatus converts a string into a known Status.
func ParseStatus(value string) (Status, bool) {
	normalized := Status(strings.ToLower(strings.TrimSpace(value)))
	switch normalized {
	case StatusPending, StatusRunning, StatusSuccess, StatusFailed:
		return normalized, true
	}
	return "", false
}

// OperationStatus is the durable record of one operation's progress, written
// only by the dispatcher that owns the request and read by any process.
type OperationStatus struct {
	RequestID   string            `json:"request_id"`
	Status      Status            `json:"status"`
	Message     string            `json:"message"`
	Output      []string          `json:"output,omitempty"`
	StartedAt   *time.Time        `json:"started_at,omitempty"`
	CompletedAt *time.Time        `json:"completed_at,omitempty"`
	Error       string            `json:"error,omitempty"`
	ResultData  map[string]string `json:"result_data,omitempty"`
}

// DaemonStatus describes the daemon process itself. The file may outlive a
// crashed daemon, so callers must verify PID liveness independently.
type DaemonStatus struct {
	PID           int       `json:"pid"`
	StartedAt     time.Time `json:"started_at"`
	LastHeartbeat time.Time `json:"last_heartbeat"`
}

// OperationResult is the client-facing summary of a finished (or detached)
// operation.
type OperationResult struct {
	RequestID  string
	Status     Status
	Message    string
	Output     []string
	Error      string
	ResultData map[string]string
	Detached   bool
	Cancelled  bool
}

// Succeeded reports whether the operation reached a successful terminal state.
func (r OperationResult) Succeeded() bool {
	return r.Status == StatusSuccess
}

// ResultDataKeyDetectedPort is the result_data key carrying an auto-detected
// serial port.
const ResultDataKeyDetectedPort = "detected_port"

// ResultDataKeyArtifact is the result_data key carrying a build artifact path.
const ResultDataKeyArtifact = "artifact_path"
