package dispatch

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"path/filepath"
	"runtime/debug"
	"strings"

	"fbuild/internal/config"
	"fbuild/internal/firmware"
	"fbuild/internal/history"
	"fbuild/internal/lockmap"
	"fbuild/internal/logging"
	"fbuild/internal/opstatus"
	"fbuild/internal/protocol"
)

// Dispatcher executes one request end to end: lock acquisition, status
// transitions, collaborator invocation, and history recording. Each request
// runs on its own goroutine; the dispatcher itself holds no per-request state.
type Dispatcher struct {
	cfg       *config.Config
	statuses  *opstatus.Store
	locks     *lockmap.Registry
	toolchain firmware.Toolchain
	hist      *history.Store
	logger    *slog.Logger
}

// New constructs a dispatcher. The history store may be nil; operations then
// complete without a durable record.
func New(cfg *config.Config, statuses *opstatus.Store, locks *lockmap.Registry, toolchain firmware.Toolchain, hist *history.Store, logger *slog.Logger) *Dispatcher {
	return &Dispatcher{
		cfg:       cfg,
		statuses:  statuses,
		locks:     locks,
		toolchain: toolchain,
		hist:      hist,
		logger:    logging.NewComponentLogger(logger, "dispatch"),
	}
}

// Execute runs the request to a terminal state. It never returns before the
// status document reports SUCCESS or FAILED, and it releases every lock it
// acquired even on panic.
func (d *Dispatcher) Execute(ctx context.Context, req *protocol.Request) {
	d.locks.BeginOperation()
	defer d.locks.EndOperation()

	rec := d.statuses.NewRecord(req.RequestID)
	logger := d.logger.With(
		logging.FieldRequestID, req.RequestID,
		logging.FieldKind, string(req.Kind),
	)

	defer func() {
		if r := recover(); r != nil {
			logger.Error("request panicked",
				logging.Any("panic", r),
				logging.String("stack", string(debug.Stack())),
			)
			d.fail(ctx, req, rec, "Internal error", fmt.Sprintf("panic: %v", r))
		}
	}()

	if err := req.Validate(); err != nil {
		d.fail(ctx, req, rec, "Invalid request", err.Error())
		return
	}

	var held []lockmap.Key
	defer func() {
		for i := len(held) - 1; i >= 0; i-- {
			d.locks.Release(held[i])
		}
	}()
	acquire := func(key lockmap.Key) bool {
		if !d.locks.TryAcquire(key) {
			d.fail(ctx, req, rec,
				fmt.Sprintf("Resource %s is locked by another operation", key.Resource()), "")
			return false
		}
		held = append(held, key)
		return true
	}

	if !acquire(lockmap.ProjectKey(req.ProjectDir)) {
		return
	}

	// A port lock is only needed once the port is known. For explicit ports
	// that is now; auto-detected ports are resolved first and locked after
	// detection, so a device appearing between the two steps can race an
	// external user of the same port.
	port := req.Port
	detected := ""
	if req.Kind != protocol.KindBuild {
		if port == "" {
			resolved, err := firmware.DetectPort(d.cfg.Serial.PortPatterns)
			if err != nil {
				d.fail(ctx, req, rec, "No serial port detected", err.Error())
				return
			}
			port = resolved
			detected = resolved
		}
		if !acquire(lockmap.PortKey(port)) {
			return
		}
	}

	if d.cancelled(req.RequestID) {
		d.fail(ctx, req, rec, "Cancelled by user", "")
		return
	}

	logger.Info("request started", logging.String(logging.FieldProject, req.ProjectDir))

	var err error
	switch req.Kind {
	case protocol.KindBuild:
		err = d.runBuild(ctx, req, rec)
	case protocol.KindDeploy:
		err = d.runDeploy(ctx, req, rec, port, detected)
	case protocol.KindMonitor:
		err = d.runMonitor(ctx, req, rec, port, detected)
	}
	if err != nil {
		d.fail(ctx, req, rec, summarize(err), err.Error())
		return
	}
	logger.Info("request finished", logging.String("status", string(rec.Status().Status)))
}

func (d *Dispatcher) runBuild(ctx context.Context, req *protocol.Request, rec *opstatus.Record) error {
	if err := rec.MarkRunning("Building " + req.Environment); err != nil {
		return err
	}
	result, err := d.toolchain.Build(ctx, req.ProjectDir, req.Environment, req.CleanBuild, req.Verbose, d.sink(rec))
	if err != nil {
		return fmt.Errorf("build: %w", err)
	}
	if !result.Success {
		return errors.New("build: compile failed")
	}
	resultData := map[string]string{}
	if result.ArtifactPath != "" {
		resultData[protocol.ResultDataKeyArtifact] = result.ArtifactPath
	}
	return d.succeed(ctx, req, rec, "Build succeeded", resultData)
}

func (d *Dispatcher) runDeploy(ctx context.Context, req *protocol.Request, rec *opstatus.Record, port, detected string) error {
	if err := rec.MarkRunning("Deploying to " + port); err != nil {
		return err
	}
	if detected != "" {
		_ = rec.AppendOutput("Auto-detected serial port " + detected)
	}

	result, err := d.toolchain.Deploy(ctx, req.ProjectDir, req.Environment, port, req.CleanBuild, req.Verbose, d.sink(rec))
	if err != nil {
		return fmt.Errorf("deploy: %w", err)
	}
	if !result.Success {
		return errors.New("deploy: upload failed")
	}

	resultData := map[string]string{}
	if detected != "" {
		resultData[protocol.ResultDataKeyDetectedPort] = detected
	}

	if !req.MonitorAfter {
		return d.succeed(ctx, req, rec, "Deploy succeeded", resultData)
	}

	// The chained monitor is a separate step: a cancel arriving after the
	// upload skips it without discarding the finished deploy.
	if d.cancelled(req.RequestID) {
		_ = rec.AppendOutput("Cancellation requested; skipping monitor")
		return d.succeed(ctx, req, rec, "Deploy succeeded; monitor skipped after cancel", resultData)
	}
	if err := rec.SetMessage("Monitoring " + port); err != nil {
		return err
	}
	monitorResult, err := d.toolchain.Monitor(ctx, d.monitorOptions(req, port), d.sink(rec))
	if err != nil {
		return fmt.Errorf("monitor: %w", err)
	}
	if !monitorResult.Success {
		return errors.New("monitor: halted on error pattern")
	}
	return d.succeed(ctx, req, rec, "Deploy and monitor succeeded", resultData)
}

func (d *Dispatcher) runMonitor(ctx context.Context, req *protocol.Request, rec *opstatus.Record, port, detected string) error {
	if err := rec.MarkRunning("Monitoring " + port); err != nil {
		return err
	}
	if detected != "" {
		_ = rec.AppendOutput("Auto-detected serial port " + detected)
	}

	result, err := d.toolchain.Monitor(ctx, d.monitorOptions(req, port), d.sink(rec))
	if err != nil {
		return fmt.Errorf("monitor: %w", err)
	}
	if !result.Success {
		return errors.New("monitor: halted on error pattern")
	}
	resultData := map[string]string{}
	if detected != "" {
		resultData[protocol.ResultDataKeyDetectedPort] = detected
	}
	return d.succeed(ctx, req, rec, "Monitor session ended", resultData)
}

func (d *Dispatcher) monitorOptions(req *protocol.Request, port string) firmware.MonitorOptions {
	return firmware.MonitorOptions{
		ProjectDir:    req.ProjectDir,
		Environment:   req.Environment,
		Port:          port,
		Baud:          req.Baud,
		Timeout:       req.Timeout(),
		HaltOnError:   req.HaltOnError,
		HaltOnSuccess: req.HaltOnSuccess,
		Verbose:       req.Verbose,
	}
}

// sink adapts streamed collaborator output into status document appends.
// Append failures are not fatal to the operation itself.
func (d *Dispatcher) sink(rec *opstatus.Record) firmware.LineSink {
	return func(line string) {
		if err := rec.AppendOutput(line); err != nil && !errors.Is(err, opstatus.ErrTerminal) {
			d.logger.Warn("append output failed", logging.Error(err))
		}
	}
}

// cancelled consumes a pending cancel signal for the request, if any.
// Cancellation is checkpoint-based: it is only observed between steps, never
// by interrupting a running collaborator.
func (d *Dispatcher) cancelled(requestID string) bool {
	path := filepath.Join(d.statuses.Dir(), protocol.CancelSignalName(requestID))
	consumed, err := protocol.ConsumeSignal(path)
	if err != nil {
		d.logger.Warn("consume cancel signal failed",
			logging.String(logging.FieldRequestID, requestID), logging.Error(err))
		return false
	}
	return consumed
}

func (d *Dispatcher) succeed(ctx context.Context, req *protocol.Request, rec *opstatus.Record, message string, resultData map[string]string) error {
	if err := rec.Succeed(message, resultData); err != nil {
		return err
	}
	d.record(ctx, req, rec)
	return nil
}

func (d *Dispatcher) fail(ctx context.Context, req *protocol.Request, rec *opstatus.Record, message, diagnostic string) {
	if err := rec.Fail(message, diagnostic); err != nil {
		if errors.Is(err, opstatus.ErrTerminal) {
			return
		}
		d.logger.Error("write failed status",
			logging.String(logging.FieldRequestID, req.RequestID), logging.Error(err))
		return
	}
	d.logger.Warn("request failed",
		logging.String(logging.FieldRequestID, req.RequestID),
		logging.String("reason", message),
	)
	d.record(ctx, req, rec)
}

func (d *Dispatcher) record(ctx context.Context, req *protocol.Request, rec *opstatus.Record) {
	if d.hist == nil {
		return
	}
	status := rec.Status()
	if err := d.hist.Record(ctx, req, &status); err != nil {
		d.logger.Warn("record history failed",
			logging.String(logging.FieldRequestID, req.RequestID), logging.Error(err))
	}
}

// summarize trims a wrapped error chain down to a short user-facing message.
func summarize(err error) string {
	msg := err.Error()
	if idx := strings.Index(msg, ": "); idx > 0 && idx < 40 {
		head := msg[:idx]
		switch head {
		case "build":
			return "Build failed"
		case "deploy":
			return "Deploy failed"
		case "monitor":
			return "Monitor failed"
		}
	}
	return msg
}
