package functions

import (
	"context"
	"log/slog"
	"time"

	"github.com/corvus-dotnet/funchost/internal/model"
	"github.com/corvus-dotnet/funchost/internal/netprobe"
)

// The host occasionally logs its ready line before the listener is actually
// bound, so the log signal only triggers the network confirmation; the probe
// is what proves readiness.
const (
	confirmAttempts = 20
	confirmInterval = 500 * time.Millisecond
)

// AwaitReady blocks until inst is confirmed ready, races three outcomes and
// takes whichever happens first:
//
//   - the process exits → model.EarlyExitError with the exit code and both
//     output snapshots,
//   - the ready line appears → independent TCP confirmation; when the port
//     never opens within the confirmation window the result is a
//     model.StartupTimeoutError even though the log line fired,
//   - timeout elapses → model.StartupTimeoutError.
func AwaitReady(ctx context.Context, probe netprobe.Probe, inst *Instance, timeout time.Duration) error {
	buf := inst.Buffer

	select {
	case <-buf.Exited():
		return &model.EarlyExitError{
			Port:     inst.Port,
			ExitCode: buf.ExitCode(),
			Stdout:   buf.Stdout(),
			Stderr:   buf.Stderr(),
		}
	case <-buf.Ready():
	case <-time.After(timeout):
		return &model.StartupTimeoutError{
			Port:    inst.Port,
			Timeout: timeout,
			Stdout:  buf.Stdout(),
			Stderr:  buf.Stderr(),
		}
	case <-ctx.Done():
		return ctx.Err()
	}

	slog.DebugContext(ctx, "ready line observed, confirming listener",
		"instance", inst.ID, "port", inst.Port)

	if !probe.TryConnectRepeatedly(ctx, inst.Port, confirmAttempts, confirmInterval) {
		return &model.StartupTimeoutError{
			Port:        inst.Port,
			Timeout:     timeout,
			LogLineSeen: true,
			Stdout:      buf.Stdout(),
			Stderr:      buf.Stderr(),
		}
	}

	slog.InfoContext(ctx, "functions host ready",
		"instance", inst.ID, "port", inst.Port)
	return nil
}
