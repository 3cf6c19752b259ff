package lockmap

import (
	"strings"
	"sync"
	"sync/atomic"
)

// Key identifies one lockable resource: a project directory or a serial port.
type Key string

const (
	projectPrefix = "project:"
	portPrefix    = "port:"
)

// ProjectKey returns the lock key for a project directory.
func ProjectKey(projectDir string) Key {
	return Key(projectPrefix + projectDir)
}

// PortKey returns the lock key for a serial port.
func PortKey(port string) Key {
	return Key(portPrefix + port)
}

// Resource returns a human-readable description of the locked resource, used
// in lock-conflict messages.
func (k Key) Resource() string {
	s := string(k)
	switch {
	case strings.HasPrefix(s, projectPrefix):
		return "project " + strings.TrimPrefix(s, projectPrefix)
	case strings.HasPrefix(s, portPrefix):
		return "port " + strings.TrimPrefix(s, portPrefix)
	default:
		return s
	}
}

// Registry hands out per-resource exclusive locks, created lazily on first
// reference. Acquisition is always non-blocking and non-reentrant. The
// registry also tracks how many operations are in flight, which the daemon
// loop consults for idle-timeout and shutdown arbitration.
//
// Lock entries are never removed; the key space is bounded by the distinct
// projects and ports a daemon touches in its lifetime.
type Registry struct {
	mu    sync.Mutex
	locks map[Key]*sync.Mutex

	active atomic.Int64
}

// NewRegistry constructs an empty lock registry.
func NewRegistry() *Registry {
	return &Registry{locks: make(map[Key]*sync.Mutex)}
}

func (r *Registry) lockFor(key Key) *sync.Mutex {
	r.mu.Lock()
	defer r.mu.Unlock()
	lock, ok := r.locks[key]
	if !ok {
		lock = new(sync.Mutex)
		r.locks[key] = lock
	}
	return lock
}

// TryAcquire attempts to take the lock for key without blocking.
func (r *Registry) TryAcquire(key Key) bool {
	return r.lockFor(key).TryLock()
}

// Release frees the lock for key. Releasing a lock that was never acquired
// is a programming error and panics, matching sync.Mutex semantics.
func (r *Registry) Release(key Key) {
	r.lockFor(key).Unlock()
}

// BeginOperation records an operation entering execution.
func (r *Registry) BeginOperation() {
	r.active.Add(1)
}

// EndOperation records an operation leaving execution.
func (r *Registry) EndOperation() {
	r.active.Add(-1)
}

// ActiveOperations returns the number of operations currently executing.
func (r *Registry) ActiveOperations() int {
	return int(r.active.Load())
}
