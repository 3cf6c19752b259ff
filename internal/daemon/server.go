package daemon

import (
	"context"
	"errors"
	"fmt"
	"io/fs"
	"log/slog"
	"os"
	"path/filepath"
	"strconv"
	"sync"
	"time"

	"github.com/gofrs/flock"

	"fbuild/internal/config"
	"fbuild/internal/dispatch"
	"fbuild/internal/lockmap"
	"fbuild/internal/logging"
	"fbuild/internal/opstatus"
	"fbuild/internal/protocol"
)

// ErrAlreadyRunning reports that another daemon instance holds the lock file.
var ErrAlreadyRunning = errors.New("another daemon instance is already running")

// Server owns the daemon lifecycle: single-instance enforcement, request
// discovery, dispatch fan-out, heartbeats, and shutdown arbitration. It holds
// no per-request state beyond the claimed set; everything clients observe
// lives in files under the daemon directory.
type Server struct {
	cfg        *config.Config
	logger     *slog.Logger
	statuses   *opstatus.Store
	locks      *lockmap.Registry
	dispatcher *dispatch.Dispatcher

	lock *flock.Flock

	mu           sync.Mutex
	claimed      map[string]struct{}
	lastActivity time.Time

	wg sync.WaitGroup
}

// New constructs a server over an initialized dispatcher.
func New(cfg *config.Config, dispatcher *dispatch.Dispatcher, statuses *opstatus.Store, locks *lockmap.Registry, logger *slog.Logger) (*Server, error) {
	if cfg == nil || dispatcher == nil || statuses == nil || locks == nil {
		return nil, errors.New("daemon requires config, dispatcher, status store, and lock registry")
	}
	return &Server{
		cfg:        cfg,
		logger:     logging.NewComponentLogger(logger, "daemon"),
		statuses:   statuses,
		locks:      locks,
		dispatcher: dispatcher,
		lock:       flock.New(filepath.Join(cfg.Paths.DaemonDir, protocol.DaemonLockFileName)),
		claimed:    make(map[string]struct{}),
	}, nil
}

// Run executes the daemon loop until the context is cancelled, a shutdown
// signal arrives, or the idle timeout elapses. It returns ErrAlreadyRunning
// when another instance holds the daemon lock.
func (s *Server) Run(ctx context.Context) error {
	if err := s.cfg.EnsureDirectories(); err != nil {
		return fmt.Errorf("ensure directories: %w", err)
	}

	held, err := s.lock.TryLock()
	if err != nil {
		return fmt.Errorf("acquire daemon lock: %w", err)
	}
	if !held {
		return ErrAlreadyRunning
	}
	defer func() { _ = s.lock.Unlock() }()

	pidPath := filepath.Join(s.cfg.Paths.DaemonDir, protocol.PIDFileName)
	if err := os.WriteFile(pidPath, []byte(strconv.Itoa(os.Getpid())+"\n"), 0o644); err != nil {
		return fmt.Errorf("write pid file: %w", err)
	}
	defer os.Remove(pidPath)

	// A shutdown signal left over from a previous life must not kill this
	// instance immediately.
	shutdownPath := filepath.Join(s.cfg.Paths.DaemonDir, protocol.ShutdownSignalName)
	if _, err := protocol.ConsumeSignal(shutdownPath); err != nil {
		s.logger.Warn("clear stale shutdown signal", logging.Error(err))
	}

	startedAt := time.Now().UTC()
	statusPath := filepath.Join(s.cfg.Paths.DaemonDir, protocol.DaemonStatusFileName)
	defer os.Remove(statusPath)
	s.heartbeat(statusPath, startedAt)

	s.mu.Lock()
	s.lastActivity = time.Now()
	s.mu.Unlock()

	s.logger.Info("daemon started",
		logging.Int("pid", os.Getpid()),
		logging.String("dir", s.cfg.Paths.DaemonDir),
	)

	poll := time.NewTicker(s.cfg.PollInterval())
	defer poll.Stop()
	maintenance := time.NewTicker(s.cfg.MaintenanceInterval())
	defer maintenance.Stop()

	for {
		select {
		case <-ctx.Done():
			s.logger.Info("daemon stopping on signal")
			s.wg.Wait()
			return nil
		case <-poll.C:
			// Once a shutdown has been requested, no new requests are
			// accepted; the loop keeps ticking only to drain in-flight work.
			if protocol.SignalPresent(shutdownPath) {
				if s.shouldStop(shutdownPath) {
					s.wg.Wait()
					s.logger.Info("daemon stopped")
					return nil
				}
				continue
			}
			s.discover(ctx)
		case <-maintenance.C:
			s.heartbeat(statusPath, startedAt)
			s.sweepStaleCancels()
			if s.idleExpired() {
				s.logger.Info("daemon idle timeout reached",
					logging.Duration("idle_timeout", s.cfg.IdleTimeout()))
				s.wg.Wait()
				return nil
			}
		}
	}
}

// ActiveOperations reports the number of requests currently executing.
func (s *Server) ActiveOperations() int {
	return s.locks.ActiveOperations()
}

// discover scans the daemon directory for unclaimed request files and starts
// one dispatch goroutine per new request.
func (s *Server) discover(ctx context.Context) {
	entries, err := os.ReadDir(s.cfg.Paths.DaemonDir)
	if err != nil {
		s.logger.Warn("scan daemon directory", logging.Error(err))
		return
	}

	for _, entry := range entries {
		if entry.IsDir() {
			continue
		}
		requestID, ok := protocol.RequestIDFromFileName(entry.Name())
		if !ok {
			continue
		}
		if !s.claim(requestID) {
			continue
		}
		// A status file means a previous daemon life already handled or
		// started this request; never run it twice.
		if _, err := s.statuses.Read(requestID); err == nil {
			continue
		}

		path := filepath.Join(s.cfg.Paths.DaemonDir, entry.Name())
		req, err := protocol.ReadRequest(path)
		if err != nil {
			s.rejectCorrupt(requestID, path, err)
			continue
		}

		s.logger.Info("request claimed",
			logging.String(logging.FieldRequestID, requestID),
			logging.String(logging.FieldKind, string(req.Kind)),
		)
		s.touchActivity()
		s.wg.Add(1)
		go func() {
			defer s.wg.Done()
			defer s.touchActivity()
			s.dispatcher.Execute(ctx, req)
		}()
	}
}

func (s *Server) claim(requestID string) bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	if _, ok := s.claimed[requestID]; ok {
		return false
	}
	s.claimed[requestID] = struct{}{}
	return true
}

// rejectCorrupt records a FAILED status for an unreadable request file so the
// submitting client stops polling instead of hanging on a request the daemon
// can never run.
func (s *Server) rejectCorrupt(requestID, path string, cause error) {
	s.logger.Warn("corrupt request file",
		logging.String(logging.FieldRequestID, requestID),
		logging.String("path", path),
		logging.Error(cause),
	)
	rec := s.statuses.NewRecord(requestID)
	if err := rec.Fail("Corrupt request file", cause.Error()); err != nil {
		s.logger.Error("write corrupt-request status", logging.Error(err))
	}
	if err := os.Remove(path); err != nil && !errors.Is(err, fs.ErrNotExist) {
		s.logger.Warn("remove corrupt request file", logging.Error(err))
	}
}

// shouldStop honors a shutdown signal only when no operations are in flight.
// The signal stays on disk while the daemon refuses, so the stop request is
// retried on every poll until the daemon drains.
func (s *Server) shouldStop(shutdownPath string) bool {
	if !protocol.SignalPresent(shutdownPath) {
		return false
	}
	if active := s.locks.ActiveOperations(); active > 0 {
		s.logger.Info("shutdown deferred",
			logging.Int("active_operations", active))
		return false
	}
	if _, err := protocol.ConsumeSignal(shutdownPath); err != nil {
		s.logger.Warn("consume shutdown signal", logging.Error(err))
	}
	return true
}

func (s *Server) heartbeat(statusPath string, startedAt time.Time) {
	doc := protocol.DaemonStatus{
		PID:           os.Getpid(),
		StartedAt:     startedAt,
		LastHeartbeat: time.Now().UTC(),
	}
	if err := protocol.WriteJSONAtomic(statusPath, doc); err != nil {
		s.logger.Warn("write daemon status", logging.Error(err))
	}
}

// sweepStaleCancels deletes cancel signals whose request finished long ago.
// Fresh signals are kept; their dispatcher may still reach a checkpoint.
func (s *Server) sweepStaleCancels() {
	entries, err := os.ReadDir(s.cfg.Paths.DaemonDir)
	if err != nil {
		return
	}
	cutoff := time.Now().Add(-s.cfg.CancelStaleAge())
	for _, entry := range entries {
		if _, ok := protocol.IsCancelSignalName(entry.Name()); !ok {
			continue
		}
		info, err := entry.Info()
		if err != nil {
			continue
		}
		if info.ModTime().After(cutoff) {
			continue
		}
		path := filepath.Join(s.cfg.Paths.DaemonDir, entry.Name())
		if err := os.Remove(path); err != nil && !errors.Is(err, fs.ErrNotExist) {
			s.logger.Warn("remove stale cancel signal",
				logging.String("path", path), logging.Error(err))
			continue
		}
		s.logger.Debug("stale cancel signal removed", logging.String("name", entry.Name()))
	}
}

func (s *Server) touchActivity() {
	s.mu.Lock()
	s.lastActivity = time.Now()
	s.mu.Unlock()
}

func (s *Server) idleExpired() bool {
	timeout := s.cfg.IdleTimeout()
	if timeout <= 0 {
		return false
	}
	if s.locks.ActiveOperations() > 0 {
		return false
	}
	s.mu.Lock()
	last := s.lastActivity
	s.mu.Unlock()
	return time.Since(last) > timeout
}
