package history

import "time"

// Entry is one completed operation as recorded in the history database.
type Entry struct {
	ID           int64
	RequestID    string
	Kind         string
	ProjectDir   string
	Environment  string
	Status       string
	Message      string
	Error        string
	DetectedPort string
	ArtifactPath string
	StartedAt    *time.Time
	CompletedAt  *time.Time
	Duration     time.Duration
	RecordedAt   time.Time
}
