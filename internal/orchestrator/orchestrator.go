// Package orchestrator owns the set of running functions host instances.
//
// Start brings one host up on one port: pre-launch port guard, launch,
// readiness wait. Teardown claims the whole tracked set atomically and
// stops every instance in parallel, finishing with an orphan sweep.
//
// Concurrency contract: multiple Start calls on distinct ports may run in
// parallel. Teardown must not run concurrently with another Teardown or a
// Start still in flight. The single mutex guards tracked-set membership
// only; process I/O and output draining never hold it.
package orchestrator

import (
	"context"
	"fmt"
	"log/slog"
	"path/filepath"
	"sync"
	"time"

	"github.com/google/uuid"

	"github.com/corvus-dotnet/funchost/internal/functions"
	"github.com/corvus-dotnet/funchost/internal/log"
	"github.com/corvus-dotnet/funchost/internal/model"
	"github.com/corvus-dotnet/funchost/internal/netprobe"
	"github.com/corvus-dotnet/funchost/internal/shutdown"
)

const portGuardInterval = 100 * time.Millisecond

// Options configure an Orchestrator. The zero value means: resolve the tool,
// default timeouts, platform killer.
type Options struct {
	Tool     string
	Timeouts model.Timeouts
	Killer   shutdown.Killer
}

type Orchestrator struct {
	launcher    *functions.Launcher
	probe       netprobe.Probe
	coordinator *shutdown.Coordinator
	timeouts    model.Timeouts

	mu        sync.Mutex
	instances map[uint16]*functions.Instance
}

func New(opts Options) *Orchestrator {
	timeouts := opts.Timeouts
	if timeouts == (model.Timeouts{}) {
		timeouts = model.DefaultTimeouts()
	}
	killer := opts.Killer
	if killer == nil {
		killer = shutdown.NewKiller()
	}
	return &Orchestrator{
		launcher:    functions.NewLauncher(opts.Tool),
		coordinator: shutdown.New(killer, timeouts),
		timeouts:    timeouts,
		instances:   make(map[uint16]*functions.Instance),
	}
}

// StartRequest carries everything Start needs for one host.
type StartRequest struct {
	Project   string
	Port      uint16
	RuntimeID string
	Provider  functions.Provider
	Env       []functions.EnvVar
}

// Start launches the functions host for req and blocks until it is
// confirmed ready. On any failure the half-started process is torn down
// before the error is returned.
func (o *Orchestrator) Start(ctx context.Context, req StartRequest) error {
	ctx = log.ContextAttrs(ctx,
		slog.Int("port", int(req.Port)),
		slog.String("provider", req.Provider.Name),
	)

	o.mu.Lock()
	_, taken := o.instances[req.Port]
	o.mu.Unlock()
	if taken {
		return fmt.Errorf("starting host on port %d: %w", req.Port, model.ErrAlreadyTracked)
	}

	if err := o.guardPort(ctx, req.Port); err != nil {
		return err
	}

	inst, err := o.launcher.Launch(ctx, functions.LaunchSpec{
		Project:   req.Project,
		Port:      req.Port,
		RuntimeID: req.RuntimeID,
		Provider:  req.Provider,
		Env:       req.Env,
	})
	if err != nil {
		return err
	}
	ctx = log.ContextAttrs(ctx, slog.String("instance", inst.ID.String()))

	if err := functions.AwaitReady(ctx, o.probe, inst, o.timeouts.Startup); err != nil {
		o.abandon(ctx, inst)
		return err
	}

	o.mu.Lock()
	if _, taken := o.instances[req.Port]; taken {
		o.mu.Unlock()
		o.abandon(ctx, inst)
		return fmt.Errorf("starting host on port %d: %w", req.Port, model.ErrAlreadyTracked)
	}
	o.instances[req.Port] = inst
	o.mu.Unlock()
	return nil
}

// guardPort refuses to launch onto an occupied port. A short occupation may
// be a host from a crashed previous run shutting down, so after half the
// budget the guard sweeps orphans and keeps polling; past the full budget
// the start fails rather than producing confusing connection errors later.
func (o *Orchestrator) guardPort(ctx context.Context, port uint16) error {
	attempts := max(int(o.timeouts.PortWait/portGuardInterval), 2)
	sweepAt := attempts / 2
	for attempt := 1; attempt <= attempts; attempt++ {
		if !o.probe.IsListening(port) {
			return nil
		}
		if attempt == sweepAt {
			slog.InfoContext(ctx, "port still occupied, sweeping orphaned hosts", "attempt", attempt)
			o.coordinator.SweepOrphans(ctx, o.toolName())
		}
		select {
		case <-ctx.Done():
			return ctx.Err()
		case <-time.After(portGuardInterval):
		}
	}
	return &model.PortInUseError{Port: port}
}

// abandon tears down an instance that never became ready. Its own failure
// does not mask the startup error, so it is only logged.
func (o *Orchestrator) abandon(ctx context.Context, inst *functions.Instance) {
	err := o.coordinator.Stop(ctx, shutdown.Target{
		PID:    inst.Pid(),
		Name:   o.toolName(),
		Exited: inst.Buffer.Exited(),
	})
	if err != nil {
		slog.WarnContext(ctx, "failed to stop host after failed start", "error", err)
	}
}

// Teardown stops every tracked instance. It atomically claims the full set
// before acting, so a Start racing in violation of the contract cannot
// share a bookkeeping slot with a dying instance. Empty set is a trivial success,
// which also makes Teardown idempotent. Every instance is attempted; the
// aggregate of all individual failures is returned after the last one
// resolves, and a final orphan sweep catches hosts nobody tracked anymore.
func (o *Orchestrator) Teardown(ctx context.Context) error {
	o.mu.Lock()
	claimed := o.instances
	o.instances = make(map[uint16]*functions.Instance)
	o.mu.Unlock()

	targets := make([]shutdown.Target, 0, len(claimed))
	for _, inst := range claimed {
		ctx := log.ContextAttrs(ctx, slog.String("instance", inst.ID.String()))
		slog.InfoContext(ctx, "tearing down functions host", "pid", inst.Pid(), "port", inst.Port)
		targets = append(targets, shutdown.Target{
			PID:    inst.Pid(),
			Name:   o.toolName(),
			Exited: inst.Buffer.Exited(),
		})
	}

	err := o.coordinator.StopAll(ctx, targets)

	o.coordinator.SweepOrphans(ctx, o.toolName())

	if err != nil {
		return fmt.Errorf("teardown: %w", err)
	}
	return nil
}

// OutputRecord is a point-in-time snapshot of one instance's captured
// streams.
type OutputRecord struct {
	Instance uuid.UUID
	Port     uint16
	Project  string
	Stdout   string
	Stderr   string
}

// Output returns snapshots for every tracked instance. Safe to call at any
// time; the snapshots may lag the live streams but are never corrupted.
func (o *Orchestrator) Output() []OutputRecord {
	o.mu.Lock()
	instances := make([]*functions.Instance, 0, len(o.instances))
	for _, inst := range o.instances {
		instances = append(instances, inst)
	}
	o.mu.Unlock()

	records := make([]OutputRecord, 0, len(instances))
	for _, inst := range instances {
		records = append(records, OutputRecord{
			Instance: inst.ID,
			Port:     inst.Port,
			Project:  inst.Project,
			Stdout:   inst.Buffer.Stdout(),
			Stderr:   inst.Buffer.Stderr(),
		})
	}
	return records
}

// toolName is the executable name the orphan sweep matches on.
func (o *Orchestrator) toolName() string {
	if tool, err := o.launcher.Tool(); err == nil {
		return filepath.Base(tool)
	}
	return functions.ToolName
}
