package protocol

import (
	"encoding/json"
	"errors"
	"fmt"
	"io/fs"
	"os"
	"path/filepath"
	"strings"
)

// Well-known file names inside the daemon directory.
const (
	PIDFileName          = "daemon.pid"
	DaemonStatusFileName = "daemon_status.json"
	DaemonLockFileName   = "daemon.lock"
	ShutdownSignalName   = "shutdown.signal"

	requestSuffix = ".request"
	statusSuffix  = ".status"
	signalSuffix  = ".signal"
	cancelPrefix  = "cancel_"
	tempSuffix    = ".tmp"
)

// RequestFileName returns the request file name for a request ID. The ID
// already carries its kind prefix, so the name matches <kind>_<id>.request.
func RequestFileName(requestID string) string {
	return requestID + requestSuffix
}

// StatusFileName returns the status file name for a request ID.
func StatusFileName(requestID string) string {
	return requestID + statusSuffix
}

// CancelSignalName returns the cancel signal file name for a request ID.
func CancelSignalName(requestID string) string {
	return cancelPrefix + requestID + signalSuffix
}

// RequestIDFromFileName extracts the request ID from a *.request file name.
func RequestIDFromFileName(name string) (string, bool) {
	base := filepath.Base(name)
	if !strings.HasSuffix(base, requestSuffix) {
		return "", false
	}
	id := strings.TrimSuffix(base, requestSuffix)
	if id == "" {
		return "", false
	}
	return id, true
}

// IsCancelSignalName reports whether name is a cancel signal file, returning
// the request ID it refers to.
func IsCancelSignalName(name string) (string, bool) {
	base := filepath.Base(name)
	if !strings.HasPrefix(base, cancelPrefix) || !strings.HasSuffix(base, signalSuffix) {
		return "", false
	}
	id := strings.TrimSuffix(strings.TrimPrefix(base, cancelPrefix), signalSuffix)
	if id == "" {
		return "", false
	}
	return id, true
}

// ErrCorrupt marks a request or status document that failed to parse.
var ErrCorrupt = errors.New("corrupt protocol document")

// WriteJSONAtomic marshals v and writes it to path with a temp-file rename so
// readers never observe a partial document.
func WriteJSONAtomic(path string, v any) error {
	data, err := json.MarshalIndent(v, "", "  ")
	if err != nil {
		return fmt.Errorf("marshal %s: %w", filepath.Base(path), err)
	}
	tmp := path + tempSuffix
	if err := os.WriteFile(tmp, append(data, '\n'), 0o644); err != nil {
		return fmt.Errorf("write %s: %w", tmp, err)
	}
	if err := os.Rename(tmp, path); err != nil {
		_ = os.Remove(tmp)
		return fmt.Errorf("rename %s: %w", filepath.Base(path), err)
	}
	return nil
}

// ReadRequest parses a request document from path.
func ReadRequest(path string) (*Request, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, err
	}
	var req Request
	if err := json.Unmarshal(data, &req); err != nil {
		return nil, fmt.Errorf("%w: %s: %v", ErrCorrupt, filepath.Base(path), err)
	}
	if err := req.Validate(); err != nil {
		return nil, fmt.Errorf("%w: %v", ErrCorrupt, err)
	}
	return &req, nil
}

// WriteRequest writes a request document atomically. The temp suffix keeps
// the daemon's *.request discovery from seeing a half-written file.
func WriteRequest(dir string, req *Request) (string, error) {
	if err := req.Validate(); err != nil {
		return "", err
	}
	path := filepath.Join(dir, RequestFileName(req.RequestID))
	if err := WriteJSONAtomic(path, req); err != nil {
		return "", err
	}
	return path, nil
}

// ReadOperationStatus parses a status document from path.
func ReadOperationStatus(path string) (*OperationStatus, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, err
	}
	var status OperationStatus
	if err := json.Unmarshal(data, &status); err != nil {
		return nil, fmt.Errorf("%w: %s: %v", ErrCorrupt, filepath.Base(path), err)
	}
	if _, ok := ParseStatus(string(status.Status)); !ok {
		return nil, fmt.Errorf("%w: %s: unknown status %q", ErrCorrupt, filepath.Base(path), status.Status)
	}
	return &status, nil
}

// ReadDaemonStatus parses the daemon status document from dir.
func ReadDaemonStatus(dir string) (*DaemonStatus, error) {
	data, err := os.ReadFile(filepath.Join(dir, DaemonStatusFileName))
	if err != nil {
		return nil, err
	}
	var status DaemonStatus
	if err := json.Unmarshal(data, &status); err != nil {
		return nil, fmt.Errorf("%w: %s: %v", ErrCorrupt, DaemonStatusFileName, err)
	}
	return &status, nil
}

// TouchSignal creates a zero-byte signal file. Creating an already existing
// signal is not an error.
func TouchSignal(path string) error {
	file, err := os.OpenFile(path, os.O_CREATE|os.O_WRONLY, 0o644)
	if err != nil {
		return fmt.Errorf("create signal %s: %w", filepath.Base(path), err)
	}
	return file.Close()
}

// ConsumeSignal removes a signal file, reporting whether it was present.
func ConsumeSignal(path string) (bool, error) {
	err := os.Remove(path)
	if err == nil {
		return true, nil
	}
	if errors.Is(err, fs.ErrNotExist) {
		return false, nil
	}
	return false, err
}

// SignalPresent reports whether a signal file exists without consuming it.
func SignalPresent(path string) bool {
	_, err := os.Stat(path)
	return err == nil
}
