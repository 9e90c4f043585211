//go:build !windows

package shutdown

import (
	"errors"
	"fmt"
	"syscall"

	"github.com/shirou/gopsutil/v4/process"
)

type osKiller struct{}

func (osKiller) signal(pid int, sig syscall.Signal) error {
	p, err := process.NewProcess(int32(pid))
	if err != nil {
		if alreadyGone(err) {
			return nil
		}
		return fmt.Errorf("looking up process %d: %w", pid, err)
	}
	if err := p.SendSignal(sig); err != nil && !alreadyGone(err) {
		return fmt.Errorf("signalling process %d with %v: %w", pid, sig, err)
	}
	return nil
}

func (k osKiller) Interrupt(pid int) error {
	return k.signal(pid, syscall.SIGINT)
}

func (k osKiller) Terminate(pid int) error {
	return k.signal(pid, syscall.SIGTERM)
}

// KillTree kills descendants deepest-first, the root last, so no orphaned
// grandchildren are left behind when the middle of the tree dies first.
func (k osKiller) KillTree(pid int) error {
	var errs []error
	for _, child := range descendants(pid) {
		if err := k.signal(int(child.Pid), syscall.SIGKILL); err != nil {
			errs = append(errs, err)
		}
	}
	if err := k.signal(pid, syscall.SIGKILL); err != nil {
		errs = append(errs, err)
	}
	return errors.Join(errs...)
}
