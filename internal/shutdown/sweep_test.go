package shutdown

import (
	"io"
	"os"
	"os/exec"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/require"
)

// TestSweepOrphans launches children under a unique executable name, then
// sweeps that name and verifies they are gone while an unrelated process
// survives.
func TestSweepOrphans(t *testing.T) {
	sleepBin, err := exec.LookPath("sleep")
	if err != nil {
		t.Skipf("skipped, binary sleep not available: %v", err)
	}

	// process names come from the executable, so run sleep under a name
	// nothing else on the machine uses (keep it under 15 chars for comm)
	const orphanName = "funchost-sweep"
	dir := t.TempDir()
	orphanBin := filepath.Join(dir, orphanName)
	copyFile(t, sleepBin, orphanBin)

	var orphans []*exec.Cmd
	for range 2 {
		cmd := exec.Command(orphanBin, "60")
		require.NoError(t, cmd.Start())
		orphans = append(orphans, cmd)
		go func() { _ = cmd.Wait() }()
		t.Cleanup(func() { _ = cmd.Process.Kill() })
	}

	// busybox-style sleep dispatches on argv[0] and cannot run renamed
	time.Sleep(200 * time.Millisecond)
	for _, cmd := range orphans {
		if !alive(cmd.Process.Pid) {
			t.Skip("skipped, sleep binary cannot run under another name")
		}
	}

	bystander := exec.Command(sleepBin, "60")
	require.NoError(t, bystander.Start())
	go func() { _ = bystander.Wait() }()
	t.Cleanup(func() { _ = bystander.Process.Kill() })

	c := New(NewKiller(), testTimeouts())
	swept := c.SweepOrphans(t.Context(), orphanName)
	require.Equal(t, len(orphans), swept)

	for _, cmd := range orphans {
		pid := cmd.Process.Pid
		require.Eventually(t, func() bool {
			return !alive(pid)
		}, 5*time.Second, 50*time.Millisecond, "orphan %d survived the sweep", pid)
	}
	require.True(t, alive(bystander.Process.Pid), "sweep killed an unrelated process")
}

func TestSweepOrphansNoMatches(t *testing.T) {
	t.Parallel()
	c := New(NewKiller(), testTimeouts())
	require.Zero(t, c.SweepOrphans(t.Context(), "funchost-no-such-tool"))
}

func TestMatchesTool(t *testing.T) {
	t.Parallel()
	require.True(t, matchesTool("func", "func"))
	require.True(t, matchesTool("func.exe", "func"))
	require.False(t, matchesTool("function-worker", "func"))
	require.False(t, matchesTool("fun", "func"))
}

func copyFile(t *testing.T, src, dst string) {
	t.Helper()
	in, err := os.Open(src)
	require.NoError(t, err)
	defer func() { _ = in.Close() }()

	out, err := os.OpenFile(dst, os.O_CREATE|os.O_WRONLY|os.O_TRUNC, 0o755)
	require.NoError(t, err)
	_, err = io.Copy(out, in)
	require.NoError(t, err)
	require.NoError(t, out.Close())
}
