package functions

import (
	"maps"
	"slices"
	"strings"
)

// EnvVar is one caller-supplied environment override. Order matters: when
// the same name appears twice the later value wins.
type EnvVar struct {
	Name  string
	Value string
}

// The harness always forces these two, whatever the caller supplied. The
// host must not restart itself on file changes mid-test, and console logging
// must stay on or the ready line can never be observed.
var mandatoryEnv = []EnvVar{
	{Name: "AzureFunctionsJobHost__FileWatchingEnabled", Value: "false"},
	{Name: "AzureFunctionsJobHost__Logging__Console__IsEnabled", Value: "true"},
}

// EnvFromMap converts a name→value map into a deterministic overlay,
// sorted by name. Use the slice form directly when ordering matters.
func EnvFromMap(m map[string]string) []EnvVar {
	overlay := make([]EnvVar, 0, len(m))
	for _, name := range sortedKeys(m) {
		overlay = append(overlay, EnvVar{Name: name, Value: m[name]})
	}
	return overlay
}

// mergeEnv lays overlay over base (os.Environ form), last write wins, then
// forces the mandatory overrides on top.
func mergeEnv(base []string, overlay []EnvVar) []string {
	index := make(map[string]int, len(base))
	merged := make([]string, 0, len(base)+len(overlay)+len(mandatoryEnv))

	set := func(name, value string) {
		entry := name + "=" + value
		if i, ok := index[name]; ok {
			merged[i] = entry
			return
		}
		index[name] = len(merged)
		merged = append(merged, entry)
	}

	for _, kv := range base {
		name, value, ok := strings.Cut(kv, "=")
		if !ok {
			continue
		}
		set(name, value)
	}
	for _, v := range overlay {
		set(v.Name, v.Value)
	}
	for _, v := range mandatoryEnv {
		set(v.Name, v.Value)
	}
	return merged
}

func sortedKeys(m map[string]string) []string {
	return slices.Sorted(maps.Keys(m))
}
