package main

import (
	"context"
	"fmt"
	"log/slog"
	"os"
	"os/signal"
	"path/filepath"
	"syscall"
	"time"

	"github.com/corvus-dotnet/funchost/internal/functions"
	"github.com/corvus-dotnet/funchost/internal/log"
	"github.com/corvus-dotnet/funchost/internal/model"
	"github.com/corvus-dotnet/funchost/internal/orchestrator"
	"github.com/corvus-dotnet/funchost/internal/shutdown"

	"github.com/fatih/color"
	"github.com/spf13/cobra"
	"golang.org/x/sync/errgroup"
)

// teardownBudget bounds the final teardown after the interrupt context is
// already cancelled.
const teardownBudget = 30 * time.Second

var (
	statusReady = color.New(color.FgGreen)
	statusFail  = color.New(color.FgRed)
	statusInfo  = color.New(color.FgCyan)
)

func doRun(cmd *cobra.Command, args []string) error {
	ctx := cmd.Context()
	if len(config.Hosts) == 0 {
		return fmt.Errorf("no hosts configured, see --config")
	}

	attrs := slog.Group("funchost",
		slog.String("cmd", "run"),
		slog.Int("pid", os.Getpid()),
	)
	ctx = log.ContextAttrs(ctx, attrs)

	requests, err := requestsFromConfig(config)
	if err != nil {
		return err
	}

	o := orchestrator.New(orchestrator.Options{
		Tool:     config.Tool,
		Timeouts: config.Timeouts,
	})

	ctx, stop := signal.NotifyContext(ctx, os.Interrupt, syscall.SIGTERM)
	defer stop()

	if err := startAll(ctx, o, requests); err != nil {
		teardown(o)
		return err
	}

	statusInfo.Fprintln(os.Stderr, "all hosts ready, press Ctrl+C to tear down")
	<-ctx.Done()
	stop()

	statusInfo.Fprintln(os.Stderr, "tearing down")
	if flagTee {
		tee(o, os.Stdout)
	}
	return teardown(o)
}

func startAll(ctx context.Context, o *orchestrator.Orchestrator, requests []orchestrator.StartRequest) error {
	g, ctx := errgroup.WithContext(ctx)
	for _, req := range requests {
		g.Go(func() error {
			err := o.Start(ctx, req)
			if err != nil {
				statusFail.Fprintf(os.Stderr, "✗ host on port %d failed: %v\n", req.Port, err)
				return fmt.Errorf("starting host on port %d: %w", req.Port, err)
			}
			statusReady.Fprintf(os.Stderr, "✓ host ready on port %d (%s)\n", req.Port, req.Project)
			return nil
		})
	}
	return g.Wait()
}

// teardown runs on a fresh context: the signal context is already cancelled
// by the time we get here.
func teardown(o *orchestrator.Orchestrator) error {
	ctx, cancel := context.WithTimeout(context.Background(), teardownBudget)
	defer cancel()
	return o.Teardown(ctx)
}

// tee dumps every captured stream so CI logs keep the host output even
// after the processes are gone.
func tee(o *orchestrator.Orchestrator, out *os.File) {
	for _, rec := range o.Output() {
		fmt.Fprintf(out, "==> port %d stdout (%s)\n%s\n", rec.Port, rec.Project, rec.Stdout)
		if rec.Stderr != "" {
			fmt.Fprintf(out, "==> port %d stderr (%s)\n%s\n", rec.Port, rec.Project, rec.Stderr)
		}
	}
}

func requestsFromConfig(cfg model.Config) ([]orchestrator.StartRequest, error) {
	requests := make([]orchestrator.StartRequest, 0, len(cfg.Hosts))
	for i, h := range cfg.Hosts {
		provider, err := functions.ProviderByName(h.Provider)
		if err != nil {
			return nil, fmt.Errorf("hosts[%d]: %w", i, err)
		}
		requests = append(requests, orchestrator.StartRequest{
			Project:   h.Project,
			Port:      h.Port,
			RuntimeID: h.RuntimeID,
			Provider:  provider,
			Env:       functions.EnvFromMap(h.Env),
		})
	}
	return requests, nil
}

func doSweep(cmd *cobra.Command, args []string) error {
	ctx := cmd.Context()
	attrs := slog.Group("funchost",
		slog.String("cmd", "sweep"),
		slog.Int("pid", os.Getpid()),
	)
	ctx = log.ContextAttrs(ctx, attrs)

	tool := functions.ToolName
	if config.Tool != "" {
		tool = filepath.Base(config.Tool)
	}

	coordinator := shutdown.New(shutdown.NewKiller(), config.Timeouts)
	swept := coordinator.SweepOrphans(ctx, tool)
	statusInfo.Fprintf(os.Stderr, "swept %d orphaned %s process(es)\n", swept, tool)
	return nil
}
