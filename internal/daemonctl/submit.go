package daemonctl

import (
	"bufio"
	"context"
	"errors"
	"fmt"
	"io"
	"os"
	"os/signal"
	"path/filepath"
	"strings"
	"time"

	"github.com/mattn/go-isatty"

	"fbuild/internal/config"
	"fbuild/internal/opstatus"
	"fbuild/internal/protocol"
)

// Submitter writes requests into the daemon directory and follows their
// status documents to completion, streaming operation output as it grows.
type Submitter struct {
	cfg      *config.Config
	statuses *opstatus.Store

	out         io.Writer
	in          io.Reader
	interactive bool
}

// NewSubmitter constructs a submitter bound to the standard streams.
func NewSubmitter(cfg *config.Config) *Submitter {
	return &Submitter{
		cfg:         cfg,
		statuses:    opstatus.NewStore(cfg.Paths.DaemonDir),
		out:         os.Stdout,
		in:          os.Stdin,
		interactive: isatty.IsTerminal(os.Stdin.Fd()) || isatty.IsCygwinTerminal(os.Stdin.Fd()),
	}
}

// SetStreams overrides the input and output streams, mainly for tests.
func (s *Submitter) SetStreams(in io.Reader, out io.Writer, interactive bool) {
	s.in = in
	s.out = out
	s.interactive = interactive
}

// Submit writes the request file and polls until the operation reaches a
// terminal state. An interrupt offers detach or cancel: detaching returns
// immediately while the daemon keeps working, cancelling asks the daemon to
// stop at its next checkpoint and keeps waiting for the outcome.
func (s *Submitter) Submit(ctx context.Context, req *protocol.Request) (*protocol.OperationResult, error) {
	if err := req.Validate(); err != nil {
		return nil, err
	}
	if _, err := protocol.WriteRequest(s.cfg.Paths.DaemonDir, req); err != nil {
		return nil, fmt.Errorf("submit request: %w", err)
	}

	interrupts := make(chan os.Signal, 1)
	signal.Notify(interrupts, os.Interrupt)
	defer signal.Stop(interrupts)

	ticker := time.NewTicker(s.cfg.PollInterval())
	defer ticker.Stop()

	printed := 0
	cancelled := false
	prompted := false

	for {
		select {
		case <-ctx.Done():
			return nil, ctx.Err()
		case <-interrupts:
			if prompted {
				continue
			}
			prompted = true
			if s.chooseDetach(req.RequestID) {
				status, err := s.statuses.ReadOrPending(req.RequestID)
				if err != nil {
					return nil, err
				}
				return resultFromStatus(status, true, cancelled), nil
			}
			if err := s.Cancel(req.RequestID); err != nil {
				return nil, err
			}
			cancelled = true
			fmt.Fprintln(s.out, "Cancellation requested, waiting for the daemon to stop the operation...")
		case <-ticker.C:
			status, err := s.statuses.ReadOrPending(req.RequestID)
			if err != nil {
				// A half-written or damaged status document reads as still
				// pending; the next poll sees the daemon's rewrite.
				if errors.Is(err, protocol.ErrCorrupt) {
					continue
				}
				return nil, fmt.Errorf("poll status: %w", err)
			}
			printed = s.printNewOutput(status, printed)
			if !status.Status.Terminal() {
				continue
			}
			s.cleanup(req.RequestID)
			return resultFromStatus(status, false, cancelled), nil
		}
	}
}

// Cancel drops a cancel signal for the request. The daemon honors it at the
// operation's next checkpoint; work already finished stands.
func (s *Submitter) Cancel(requestID string) error {
	path := filepath.Join(s.cfg.Paths.DaemonDir, protocol.CancelSignalName(requestID))
	if err := protocol.TouchSignal(path); err != nil {
		return fmt.Errorf("write cancel signal: %w", err)
	}
	return nil
}

// chooseDetach asks an interactive user what to do with the interrupted
// operation. Without a terminal the interrupt means cancel.
func (s *Submitter) chooseDetach(requestID string) bool {
	if !s.interactive {
		return false
	}
	fmt.Fprintf(s.out, "\nOperation %s is still running. Detach and leave it running, or cancel it? [d/c] ", requestID)
	reader := bufio.NewReader(s.in)
	line, err := reader.ReadString('\n')
	if err != nil {
		return false
	}
	answer := strings.ToLower(strings.TrimSpace(line))
	return answer == "d" || answer == "detach"
}

func (s *Submitter) printNewOutput(status *protocol.OperationStatus, printed int) int {
	for _, line := range status.Output[printed:] {
		fmt.Fprintln(s.out, line)
	}
	return len(status.Output)
}

// cleanup removes the request, status, and any leftover cancel signal once
// the submitting client has seen the terminal state.
func (s *Submitter) cleanup(requestID string) {
	dir := s.cfg.Paths.DaemonDir
	for _, name := range []string{
		protocol.RequestFileName(requestID),
		protocol.StatusFileName(requestID),
		protocol.CancelSignalName(requestID),
	} {
		_ = os.Remove(filepath.Join(dir, name))
	}
}

func resultFromStatus(status *protocol.OperationStatus, detached, cancelled bool) *protocol.OperationResult {
	return &protocol.OperationResult{
		RequestID:  status.RequestID,
		Status:     status.Status,
		Message:    status.Message,
		Output:     append([]string(nil), status.Output...),
		Error:      status.Error,
		ResultData: status.ResultData,
		Detached:   detached,
		Cancelled:  cancelled,
	}
}
