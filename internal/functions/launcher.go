package functions

import (
	"context"
	"fmt"
	"log/slog"
	"os"
	"os/exec"
	"strconv"
	"sync"

	"github.com/google/uuid"

	"github.com/corvus-dotnet/funchost/internal/output"
)

// Instance is one launched functions host process. It is created by a
// Launcher and owned by the orchestrator; the readiness detector and the
// shutdown coordinator only borrow it.
type Instance struct {
	ID        uuid.UUID
	Project   string
	Port      uint16
	RuntimeID string
	Provider  Provider
	Buffer    *output.Buffer
}

// Pid returns the OS process id of the host.
func (i *Instance) Pid() int {
	return i.Buffer.Pid()
}

// LaunchSpec carries everything needed to start one host.
type LaunchSpec struct {
	Project   string // working directory: the project's build output path
	Port      uint16
	RuntimeID string // recorded for diagnostics, resolution happens upstream
	Provider  Provider
	Env       []EnvVar
}

// Launcher starts functions host processes. The tool path is resolved once
// per launcher and reused for every launch.
type Launcher struct {
	resolve func() (string, error)
}

// NewLauncher builds a launcher. An empty tool path means "resolve it".
func NewLauncher(tool string) *Launcher {
	resolve := FindTool
	if tool != "" {
		resolve = func() (string, error) { return tool, nil }
	}
	return &Launcher{resolve: sync.OnceValues(resolve)}
}

// Tool returns the resolved Core Tools path, resolving on first use.
func (l *Launcher) Tool() (string, error) {
	return l.resolve()
}

// Launch resolves the tool, builds `<tool> host start --port N --<provider>`
// with the merged environment, starts it with both streams captured, and
// returns immediately. Waiting for readiness is the detector's job.
func (l *Launcher) Launch(ctx context.Context, spec LaunchSpec) (*Instance, error) {
	tool, err := l.resolve()
	if err != nil {
		return nil, err
	}

	if info, err := os.Stat(spec.Project); err != nil || !info.IsDir() {
		return nil, fmt.Errorf("project path %q is not a directory", spec.Project)
	}

	cmd := exec.Command(tool, "host", "start",
		"--port", strconv.Itoa(int(spec.Port)),
		"--"+spec.Provider.Name,
	)
	cmd.Dir = spec.Project
	cmd.Env = mergeEnv(os.Environ(), spec.Env)

	buf, err := output.New(cmd, spec.Provider.ReadyPattern)
	if err != nil {
		return nil, fmt.Errorf("attaching output buffer: %w", err)
	}
	if err := buf.Start(); err != nil {
		return nil, fmt.Errorf("starting functions host: %w", err)
	}

	inst := &Instance{
		ID:        uuid.New(),
		Project:   spec.Project,
		Port:      spec.Port,
		RuntimeID: spec.RuntimeID,
		Provider:  spec.Provider,
		Buffer:    buf,
	}
	slog.InfoContext(ctx, "functions host started",
		"instance", inst.ID,
		"pid", inst.Pid(),
		"port", inst.Port,
		"provider", inst.Provider.Name,
		"project", inst.Project,
	)
	return inst, nil
}
