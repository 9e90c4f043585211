package shutdown

import (
	"errors"
	"fmt"
	"os"
	"os/exec"
	"sync"
	"testing"
	"time"

	"github.com/corvus-dotnet/funchost/internal/model"

	"github.com/stretchr/testify/require"
)

func testTimeouts() model.Timeouts {
	return model.Timeouts{
		Startup:  10 * time.Second,
		Graceful: 500 * time.Millisecond,
		Forced:   2 * time.Second,
		PortWait: time.Second,
	}
}

// spawn starts a real child with the given sh script and returns its target.
func spawn(t *testing.T, script string) Target {
	t.Helper()
	sh, err := exec.LookPath("sh")
	if err != nil {
		t.Skipf("skipped, binary sh not available: %v", err)
	}
	cmd := exec.Command(sh, "-c", script)
	require.NoError(t, cmd.Start())

	exited := make(chan struct{})
	go func() {
		_ = cmd.Wait()
		close(exited)
	}()
	t.Cleanup(func() {
		_ = cmd.Process.Kill()
		select {
		case <-exited:
		case <-time.After(5 * time.Second):
			t.Log("child did not exit after cleanup kill")
		}
	})
	return Target{PID: cmd.Process.Pid, Name: "sh", Exited: exited}
}

// fakeKiller wraps the real killer, overriding selected calls to exercise
// the escalation and retry paths deterministically.
type fakeKiller struct {
	mu         sync.Mutex
	real       Killer
	denyKills  int  // KillTree returns AccessDenied this many times
	noopSoft   bool // Interrupt/Terminate silently do nothing
	noopKill   bool // KillTree silently does nothing
	interrupts int
	terminates int
	killTrees  int
}

func (f *fakeKiller) Interrupt(pid int) error {
	f.mu.Lock()
	f.interrupts++
	noop := f.noopSoft
	f.mu.Unlock()
	if noop {
		return nil
	}
	return f.real.Interrupt(pid)
}

func (f *fakeKiller) Terminate(pid int) error {
	f.mu.Lock()
	f.terminates++
	noop := f.noopSoft
	f.mu.Unlock()
	if noop {
		return nil
	}
	return f.real.Terminate(pid)
}

func (f *fakeKiller) KillTree(pid int) error {
	f.mu.Lock()
	f.killTrees++
	deny := f.denyKills > 0
	if deny {
		f.denyKills--
	}
	noop := f.noopKill
	f.mu.Unlock()
	if deny {
		return fmt.Errorf("kill %d: %w", pid, os.ErrPermission)
	}
	if noop {
		return nil
	}
	return f.real.KillTree(pid)
}

func TestStopAlreadyExited(t *testing.T) {
	t.Parallel()
	tgt := spawn(t, "exit 0")
	<-tgt.Exited

	c := New(NewKiller(), testTimeouts())
	require.NoError(t, c.Stop(t.Context(), tgt))
}

func TestStopGraceful(t *testing.T) {
	t.Parallel()
	tgt := spawn(t, "sleep 60")

	c := New(NewKiller(), testTimeouts())
	require.NoError(t, c.Stop(t.Context(), tgt))

	select {
	case <-tgt.Exited:
	default:
		t.Fatal("process still running after graceful stop")
	}
}

func TestStopEscalatesToForce(t *testing.T) {
	t.Parallel()
	// the child ignores both close request and TERM
	tgt := spawn(t, `trap "" INT TERM; sleep 60`)
	// give the shell a moment to install the traps
	time.Sleep(200 * time.Millisecond)

	killer := &fakeKiller{real: NewKiller()}
	c := New(killer, testTimeouts())
	require.NoError(t, c.Stop(t.Context(), tgt))
	require.GreaterOrEqual(t, killer.killTrees, 1)

	select {
	case <-tgt.Exited:
	default:
		t.Fatal("process survived the forced attempt")
	}
}

func TestStopRetriesAccessDenied(t *testing.T) {
	t.Parallel()
	tgt := spawn(t, `trap "" INT TERM; sleep 60`)
	time.Sleep(200 * time.Millisecond)

	killer := &fakeKiller{real: NewKiller(), noopSoft: true, denyKills: 2}
	c := New(killer, testTimeouts())

	start := time.Now()
	require.NoError(t, c.Stop(t.Context(), tgt))
	// two denials mean two backoff sleeps: 100ms + 200ms
	require.GreaterOrEqual(t, time.Since(start), 300*time.Millisecond)
	require.Equal(t, 3, killer.killTrees)
}

func TestStopKillDeniedPastBudget(t *testing.T) {
	t.Parallel()
	tgt := spawn(t, "sleep 60")

	killer := &fakeKiller{real: NewKiller(), noopSoft: true, denyKills: 3}
	c := New(killer, testTimeouts())

	err := c.Stop(t.Context(), tgt)
	require.Error(t, err)
	require.ErrorIs(t, err, os.ErrPermission)
	require.Equal(t, 3, killer.killTrees)
}

func TestStopUnterminated(t *testing.T) {
	t.Parallel()
	tgt := spawn(t, "sleep 60")

	// every request silently does nothing, so the process survives the
	// forced wait window
	killer := &fakeKiller{real: NewKiller(), noopSoft: true, noopKill: true}
	c := New(killer, testTimeouts())

	err := c.Stop(t.Context(), tgt)
	var unterminated *model.UnterminatedProcessError
	require.True(t, errors.As(err, &unterminated))
	require.Equal(t, tgt.PID, unterminated.PID)
}

func TestStopAll(t *testing.T) {
	t.Parallel()

	t.Run("empty set", func(t *testing.T) {
		t.Parallel()
		c := New(NewKiller(), testTimeouts())
		require.NoError(t, c.StopAll(t.Context(), nil))
	})

	t.Run("mixed outcomes are aggregated", func(t *testing.T) {
		t.Parallel()
		good := spawn(t, "sleep 60")
		stubborn := spawn(t, "sleep 60")

		killer := &selectiveKiller{real: NewKiller(), refuse: stubborn.PID}
		c := New(killer, testTimeouts())

		err := c.StopAll(t.Context(), []Target{good, stubborn})
		require.Error(t, err)

		var unterminated *model.UnterminatedProcessError
		require.True(t, errors.As(err, &unterminated))
		require.Equal(t, stubborn.PID, unterminated.PID)

		// the cooperative one was still torn down
		select {
		case <-good.Exited:
		default:
			t.Fatal("cooperative process was not stopped")
		}
	})
}

// selectiveKiller refuses every request for one pid and behaves normally for
// all others.
type selectiveKiller struct {
	real   Killer
	refuse int
}

func (s *selectiveKiller) Interrupt(pid int) error {
	if pid == s.refuse {
		return nil
	}
	return s.real.Interrupt(pid)
}

func (s *selectiveKiller) Terminate(pid int) error {
	if pid == s.refuse {
		return nil
	}
	return s.real.Terminate(pid)
}

func (s *selectiveKiller) KillTree(pid int) error {
	if pid == s.refuse {
		return nil
	}
	return s.real.KillTree(pid)
}
