package opstatus

import (
	"errors"
	"io/fs"
	"os"
	"path/filepath"
	"time"

	"fbuild/internal/protocol"
)

// Store reads and writes operation status documents in the daemon directory.
// Each status file has exactly one writer (the dispatcher owning the request)
// and any number of readers, so writes only need the atomic-rename discipline
// from the protocol package.
type Store struct {
	dir string
}

// NewStore constructs a status store rooted at the daemon directory.
func NewStore(dir string) *Store {
	return &Store{dir: dir}
}

// Dir returns the daemon directory backing the store.
func (s *Store) Dir() string {
	return s.dir
}

// Path returns the status file path for a request ID.
func (s *Store) Path(requestID string) string {
	return filepath.Join(s.dir, protocol.StatusFileName(requestID))
}

// Read returns the status document for requestID. A missing file is reported
// as fs.ErrNotExist; callers treat that as PENDING.
func (s *Store) Read(requestID string) (*protocol.OperationStatus, error) {
	return protocol.ReadOperationStatus(s.Path(requestID))
}

// ReadOrPending returns the stored status, or a synthetic PENDING status when
// no document exists yet.
func (s *Store) ReadOrPending(requestID string) (*protocol.OperationStatus, error) {
	status, err := s.Read(requestID)
	if err == nil {
		return status, nil
	}
	if errors.Is(err, fs.ErrNotExist) {
		return &protocol.OperationStatus{
			RequestID: requestID,
			Status:    protocol.StatusPending,
		}, nil
	}
	return nil, err
}

// Delete removes the status document for requestID. Missing files are ignored.
func (s *Store) Delete(requestID string) error {
	err := os.Remove(s.Path(requestID))
	if err != nil && !errors.Is(err, fs.ErrNotExist) {
		return err
	}
	return nil
}

func (s *Store) write(status *protocol.OperationStatus) error {
	return protocol.WriteJSONAtomic(s.Path(status.RequestID), status)
}

// ErrTerminal is returned when a mutation is attempted on an operation that
// already reached SUCCESS or FAILED.
var ErrTerminal = errors.New("operation status is terminal")

// Record owns the in-memory status of one in-flight operation and enforces
// the forward-only state machine. Every mutation is flushed to the store so
// polling clients observe progress incrementally.
type Record struct {
	store  *Store
	status protocol.OperationStatus
}

// NewRecord creates a PENDING record for requestID. Nothing is written until
// the first transition; a missing status file is how PENDING is represented
// on disk.
func (s *Store) NewRecord(requestID string) *Record {
	return &Record{
		store: s,
		status: protocol.OperationStatus{
			RequestID: requestID,
			Status:    protocol.StatusPending,
		},
	}
}

// Status returns a copy of the current status document.
func (r *Record) Status() protocol.OperationStatus {
	cp := r.status
	cp.Output = append([]string(nil), r.status.Output...)
	if r.status.ResultData != nil {
		cp.ResultData = make(map[string]string, len(r.status.ResultData))
		for k, v := range r.status.ResultData {
			cp.ResultData[k] = v
		}
	}
	return cp
}

// MarkRunning transitions the record to RUNNING, setting started_at exactly
// once, and writes the first status document.
func (r *Record) MarkRunning(message string) error {
	if r.status.Status.Terminal() {
		return ErrTerminal
	}
	if r.status.StartedAt == nil {
		now := time.Now().UTC()
		r.status.StartedAt = &now
	}
	r.status.Status = protocol.StatusRunning
	r.status.Message = message
	return r.store.write(&r.status)
}

// SetMessage updates the human-readable current-step text.
func (r *Record) SetMessage(message string) error {
	if r.status.Status.Terminal() {
		return ErrTerminal
	}
	r.status.Message = message
	return r.store.write(&r.status)
}

// AppendOutput appends log lines to the operation output. Output only grows.
func (r *Record) AppendOutput(lines ...string) error {
	if r.status.Status.Terminal() {
		return ErrTerminal
	}
	if len(lines) == 0 {
		return nil
	}
	r.status.Output = append(r.status.Output, lines...)
	return r.store.write(&r.status)
}

// Succeed transitions the record to SUCCESS with optional result data.
func (r *Record) Succeed(message string, resultData map[string]string) error {
	return r.complete(protocol.StatusSuccess, message, "", resultData)
}

// Fail transitions the record to FAILED. The diagnostic carries the full
// error trace; message is the short summary shown to users.
func (r *Record) Fail(message, diagnostic string) error {
	return r.complete(protocol.StatusFailed, message, diagnostic, nil)
}

func (r *Record) complete(status protocol.Status, message, diagnostic string, resultData map[string]string) error {
	if r.status.Status.Terminal() {
		return ErrTerminal
	}
	if r.status.StartedAt == nil {
		now := time.Now().UTC()
		r.status.StartedAt = &now
	}
	now := time.Now().UTC()
	r.status.CompletedAt = &now
	r.status.Status = status
	r.status.Message = message
	r.status.Error = diagnostic
	if len(resultData) > 0 {
		if r.status.ResultData == nil {
			r.status.ResultData = make(map[string]string, len(resultData))
		}
		for k, v := range resultData {
			r.status.ResultData[k] = v
		}
	}
	return r.store.write(&r.status)
}
