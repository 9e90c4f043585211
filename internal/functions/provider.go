package functions

import (
	"fmt"
	"maps"
	"slices"
)

// Provider identifies the worker runtime a functions project targets. The
// name becomes the `--<provider>` flag on the host command line, and the
// ready pattern is the log line that runtime's host emits once initialized.
// The pattern is a hint only: readiness is always confirmed by a TCP probe.
type Provider struct {
	Name         string
	ReadyPattern string
}

// The in-proc dotnet host logs "Job host started"; isolated worker runtimes
// log a worker initialization line instead.
var (
	CSharp     = Provider{Name: "csharp", ReadyPattern: "Job host started"}
	DotNetIso  = Provider{Name: "dotnet-isolated", ReadyPattern: "Worker process started and initialized"}
	Node       = Provider{Name: "node", ReadyPattern: "Worker process started and initialized"}
	Python     = Provider{Name: "python", ReadyPattern: "Worker process started and initialized"}
	PowerShell = Provider{Name: "powershell", ReadyPattern: "Worker process started and initialized"}
)

var providers = map[string]Provider{
	CSharp.Name:     CSharp,
	DotNetIso.Name:  DotNetIso,
	Node.Name:       Node,
	Python.Name:     Python,
	PowerShell.Name: PowerShell,
}

// ProviderByName returns a known provider, or an error naming the valid ones.
func ProviderByName(name string) (Provider, error) {
	p, ok := providers[name]
	if !ok {
		return Provider{}, fmt.Errorf("unknown provider %q, expected one of %v", name, slices.Sorted(maps.Keys(providers)))
	}
	return p, nil
}
