//go:build windows

package shutdown

import (
	"fmt"
	"os"
	"os/exec"
	"strconv"
	"strings"
)

type osKiller struct{}

// taskkill reports "not found" with exit code 128 and a recognizable
// message; both map to the benign already-exited case.
func runTaskkill(args ...string) error {
	out, err := exec.Command("taskkill", args...).CombinedOutput()
	if err == nil {
		return nil
	}
	msg := strings.ToLower(string(out))
	if strings.Contains(msg, "not found") || strings.Contains(msg, "no running instance") {
		return nil
	}
	if strings.Contains(msg, "access is denied") {
		return fmt.Errorf("taskkill %v: %s: %w", args, strings.TrimSpace(string(out)), os.ErrPermission)
	}
	return fmt.Errorf("taskkill %v: %s: %w", args, strings.TrimSpace(string(out)), err)
}

func (osKiller) Interrupt(pid int) error {
	// No Ctrl+C delivery across consoles; a polite taskkill posts WM_CLOSE
	// to the process's windows, which is the closable-surface request.
	return runTaskkill("/pid", strconv.Itoa(pid))
}

func (osKiller) Terminate(pid int) error {
	return runTaskkill("/f", "/pid", strconv.Itoa(pid))
}

func (osKiller) KillTree(pid int) error {
	return runTaskkill("/f", "/t", "/pid", strconv.Itoa(pid))
}
