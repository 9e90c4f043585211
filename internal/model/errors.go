package model

import (
	"errors"
	"fmt"
	"time"
)

var (
	// ErrToolNotFound means no Azure Functions Core Tools binary could be
	// located. Raised before any process is spawned.
	ErrToolNotFound = errors.New("functions core tools not found")

	// ErrAlreadyTracked means a host instance is already registered for a port.
	ErrAlreadyTracked = errors.New("port already tracked by this orchestrator")
)

// ToolNotFoundError carries every path that was tried before giving up.
// It unwraps to ErrToolNotFound.
type ToolNotFoundError struct {
	Candidates []string
}

func (e *ToolNotFoundError) Error() string {
	return fmt.Sprintf("functions core tools not found, tried %v", e.Candidates)
}

func (e *ToolNotFoundError) Unwrap() error {
	return ErrToolNotFound
}

// PortInUseError means the requested port stayed occupied for the whole
// pre-launch retry budget, even after an orphan sweep.
type PortInUseError struct {
	Port uint16
}

func (e *PortInUseError) Error() string {
	return fmt.Sprintf("port %d already in use, cannot start functions host", e.Port)
}

// EarlyExitError means the host process exited before it ever became ready.
// Stdout and Stderr hold everything the process wrote up to the exit.
type EarlyExitError struct {
	Port     uint16
	ExitCode int
	Stdout   string
	Stderr   string
}

func (e *EarlyExitError) Error() string {
	return fmt.Sprintf(
		"functions host on port %d exited with code %d before becoming ready\nstdout:\n%s\nstderr:\n%s",
		e.Port, e.ExitCode, e.Stdout, e.Stderr)
}

// StartupTimeoutError means neither the ready line nor an exit was observed
// within the budget, or the ready line appeared but the port never opened.
type StartupTimeoutError struct {
	Port    uint16
	Timeout time.Duration
	// LogLineSeen distinguishes "host never said it was ready" from "host said
	// so but nothing is listening".
	LogLineSeen bool
	Stdout      string
	Stderr      string
}

func (e *StartupTimeoutError) Error() string {
	if e.LogLineSeen {
		return fmt.Sprintf("functions host on port %d logged ready but port did not open within %v", e.Port, e.Timeout)
	}
	return fmt.Sprintf("functions host on port %d not ready within %v", e.Port, e.Timeout)
}

// UnterminatedProcessError means a process survived the forced kill and its
// wait window. The PID identifies the survivor for manual cleanup.
type UnterminatedProcessError struct {
	PID  int
	Name string
}

func (e *UnterminatedProcessError) Error() string {
	return fmt.Sprintf("process %d (%s) survived forced termination", e.PID, e.Name)
}
