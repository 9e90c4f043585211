// Package shutdown tears functions host processes down.
//
// Teardown of one process walks a fixed escalation ladder:
//
//	Running → GracefulAttempt → [Terminated | ForceAttempt] → [Terminated | Unrecoverable]
//
// The graceful attempt first asks the process to close (Ctrl+C semantics),
// then sends a single-process termination request and waits out the graceful
// window. The forced attempt kills the whole process tree, retrying
// transient permission failures with linear backoff. A process observed as
// already exited at any point is success — exit races with our own checks
// are expected, never errors.
package shutdown

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"time"

	"golang.org/x/sync/errgroup"

	"github.com/corvus-dotnet/funchost/internal/model"
)

const (
	// Graceful close request gets a short head start before SIGTERM.
	interruptGrace = time.Second

	// Transient AccessDenied kill failures retry with 100ms × attempt backoff.
	killAttempts    = 3
	killBackoffUnit = 100 * time.Millisecond

	pollInterval = 100 * time.Millisecond
)

// Target is one process to tear down. Exited may be nil; liveness is then
// derived from the process table alone.
type Target struct {
	PID    int
	Name   string
	Exited <-chan struct{}
}

// Coordinator owns the teardown policy. The zero value is not usable; use New.
type Coordinator struct {
	killer   Killer
	graceful time.Duration
	forced   time.Duration
}

func New(killer Killer, timeouts model.Timeouts) *Coordinator {
	return &Coordinator{
		killer:   killer,
		graceful: timeouts.Graceful,
		forced:   timeouts.Forced,
	}
}

// Stop runs the full escalation ladder on one target. It returns nil once
// the process is gone, model.UnterminatedProcessError when it survived the
// forced attempt, or the fatal kill error when permission was denied past
// the retry budget.
func (c *Coordinator) Stop(ctx context.Context, tgt Target) error {
	if !alive(tgt.PID) {
		return nil
	}

	slog.DebugContext(ctx, "graceful termination attempt", "pid", tgt.PID, "name", tgt.Name)
	if c.stopGracefully(ctx, tgt) {
		slog.DebugContext(ctx, "process terminated gracefully", "pid", tgt.PID)
		return nil
	}

	slog.InfoContext(ctx, "graceful termination failed, forcing", "pid", tgt.PID, "name", tgt.Name)
	if err := c.killTreeWithRetry(ctx, tgt.PID); err != nil {
		return fmt.Errorf("forced termination of %d: %w", tgt.PID, err)
	}
	if c.waitExit(ctx, tgt, c.forced) {
		return nil
	}
	return &model.UnterminatedProcessError{PID: tgt.PID, Name: tgt.Name}
}

// stopGracefully reports whether the process exited within the graceful
// window after a close request and a single-process terminate.
func (c *Coordinator) stopGracefully(ctx context.Context, tgt Target) bool {
	deadline := time.Now().Add(c.graceful)

	if err := c.killer.Interrupt(tgt.PID); err != nil {
		slog.DebugContext(ctx, "close request failed", "pid", tgt.PID, "error", err)
	} else if c.waitExit(ctx, tgt, interruptGrace) {
		return true
	}

	if err := c.killer.Terminate(tgt.PID); err != nil {
		slog.DebugContext(ctx, "terminate request failed", "pid", tgt.PID, "error", err)
	}
	return c.waitExit(ctx, tgt, time.Until(deadline))
}

// killTreeWithRetry issues the tree kill, retrying transient AccessDenied up
// to killAttempts times with linearly increasing backoff. Any other failure
// is returned immediately; a process that vanished meanwhile is success.
func (c *Coordinator) killTreeWithRetry(ctx context.Context, pid int) error {
	var lastErr error
	for attempt := 1; attempt <= killAttempts; attempt++ {
		err := c.killer.KillTree(pid)
		if err == nil || alreadyGone(err) {
			return nil
		}
		if !accessDenied(err) {
			return err
		}
		lastErr = err
		slog.WarnContext(ctx, "kill denied, retrying",
			"pid", pid, "attempt", attempt, "error", err)
		if attempt == killAttempts {
			break
		}
		select {
		case <-ctx.Done():
			return ctx.Err()
		case <-time.After(killBackoffUnit * time.Duration(attempt)):
		}
	}
	return fmt.Errorf("kill denied after %d attempts: %w", killAttempts, lastErr)
}

// waitExit blocks until the target is observed gone, the window elapses, or
// ctx is cancelled. It prefers the exit channel when one exists and falls
// back to polling the process table.
func (c *Coordinator) waitExit(ctx context.Context, tgt Target, window time.Duration) bool {
	if window <= 0 {
		return !alive(tgt.PID)
	}
	deadline := time.NewTimer(window)
	defer deadline.Stop()

	if tgt.Exited != nil {
		select {
		case <-tgt.Exited:
			return true
		case <-deadline.C:
			return !alive(tgt.PID)
		case <-ctx.Done():
			return !alive(tgt.PID)
		}
	}

	ticker := time.NewTicker(pollInterval)
	defer ticker.Stop()
	for {
		if !alive(tgt.PID) {
			return true
		}
		select {
		case <-ticker.C:
		case <-deadline.C:
			return !alive(tgt.PID)
		case <-ctx.Done():
			return !alive(tgt.PID)
		}
	}
}

// StopAll tears every target down in parallel, each bounded by its own
// windows. All targets are always attempted; individual failures are
// aggregated after the last one resolves.
func (c *Coordinator) StopAll(ctx context.Context, targets []Target) error {
	errs := make([]error, len(targets))
	var g errgroup.Group
	for i, tgt := range targets {
		g.Go(func() error {
			errs[i] = c.Stop(ctx, tgt)
			return nil
		})
	}
	_ = g.Wait()
	return errors.Join(errs...)
}
