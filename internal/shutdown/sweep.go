package shutdown

import (
	"context"
	"iter"
	"log/slog"
	"os"
	"strings"

	"github.com/shirou/gopsutil/v4/process"

	"github.com/corvus-dotnet/funchost/internal/parallel"
)

const sweepWorkers = 4

// SweepOrphans kills every process whose executable name matches toolName,
// tree included, with the usual retry logic. It catches hosts this
// orchestrator lost track of, typically left behind by a run that crashed
// before cleanup. Best effort: failures are logged, never escalated, and
// the number of successfully swept processes is returned.
func (c *Coordinator) SweepOrphans(ctx context.Context, toolName string) int {
	procs, err := process.Processes()
	if err != nil {
		slog.WarnContext(ctx, "orphan sweep cannot enumerate processes", "error", err)
		return 0
	}

	self := os.Getpid()
	candidates := func(yield func(*process.Process, error) bool) {
		for _, p := range procs {
			if int(p.Pid) == self {
				continue
			}
			name, err := p.Name()
			if err != nil || !matchesTool(name, toolName) {
				continue
			}
			if !yield(p, nil) {
				return
			}
		}
	}

	swept := 0
	for pid, err := range c.sweepIter(ctx, candidates) {
		if err != nil {
			slog.WarnContext(ctx, "orphan sweep could not kill process", "pid", pid, "error", err)
			continue
		}
		slog.InfoContext(ctx, "orphaned host process killed", "pid", pid, "name", toolName)
		swept++
	}
	return swept
}

func (c *Coordinator) sweepIter(ctx context.Context, candidates iter.Seq2[*process.Process, error]) iter.Seq2[int, error] {
	m := parallel.NewMap(ctx, sweepWorkers, func(ctx context.Context, p *process.Process) (int, error) {
		return int(p.Pid), c.killTreeWithRetry(ctx, int(p.Pid))
	})
	return m.Iter(candidates)
}

func matchesTool(name, toolName string) bool {
	return name == toolName || name == toolName+".exe" ||
		strings.TrimSuffix(name, ".exe") == toolName
}
