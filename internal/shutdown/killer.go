package shutdown

import (
	"errors"
	"os"

	"github.com/shirou/gopsutil/v4/process"
)

// Killer sends termination requests to processes. The coordinator's
// retry/escalation logic is platform-agnostic; every platform difference
// lives behind this interface.
type Killer interface {
	// Interrupt asks the process to close on its own initiative, the
	// equivalent of Ctrl+C on its interactive surface.
	Interrupt(pid int) error
	// Terminate requests termination of the single process only, not its
	// children.
	Terminate(pid int) error
	// KillTree unconditionally terminates the process and every descendant.
	KillTree(pid int) error
}

// NewKiller returns the killer for the current platform.
func NewKiller() Killer {
	return osKiller{}
}

// alreadyGone reports whether err only means the process exited before the
// request landed. Exit races with our own checks are expected and benign.
func alreadyGone(err error) bool {
	return errors.Is(err, os.ErrProcessDone) ||
		errors.Is(err, process.ErrorProcessNotRunning) ||
		errors.Is(err, process.ErrorNoChildren)
}

// accessDenied reports whether err is the transient permission failure the
// OS produces when a kill lands in the middle of process teardown.
func accessDenied(err error) bool {
	return errors.Is(err, os.ErrPermission)
}

// alive reports whether pid names a currently running process.
func alive(pid int) bool {
	p, err := process.NewProcess(int32(pid))
	if err != nil {
		return false
	}
	running, err := p.IsRunning()
	return err == nil && running
}

// descendants returns the full child tree of pid, deepest first, so a tree
// kill can take the leaves before their parents re-spawn nothing.
func descendants(pid int) []*process.Process {
	p, err := process.NewProcess(int32(pid))
	if err != nil {
		return nil
	}
	children, err := p.Children()
	if err != nil {
		return nil
	}
	var all []*process.Process
	for _, child := range children {
		all = append(all, descendants(int(child.Pid))...)
		all = append(all, child)
	}
	return all
}
