package functions

import (
	"os"
	"os/exec"
	"path/filepath"
	"runtime"

	"github.com/corvus-dotnet/funchost/internal/model"
)

// ToolName is the Azure Functions Core Tools binary the harness drives.
const ToolName = "func"

// FindTool locates the Core Tools binary. Resolution order: the
// FUNCHOST_TOOL environment variable, PATH, then the usual npm global
// install locations. It fails with model.ToolNotFoundError before anything
// is spawned when no candidate is executable.
func FindTool() (string, error) {
	var tried []string

	if override := os.Getenv("FUNCHOST_TOOL"); override != "" {
		if isExecutable(override) {
			return override, nil
		}
		tried = append(tried, override)
	}

	if path, err := exec.LookPath(ToolName); err == nil {
		return path, nil
	}
	tried = append(tried, ToolName)

	for _, candidate := range npmCandidates() {
		if isExecutable(candidate) {
			return candidate, nil
		}
		tried = append(tried, candidate)
	}

	return "", &model.ToolNotFoundError{Candidates: tried}
}

func npmCandidates() []string {
	var candidates []string
	if runtime.GOOS == "windows" {
		if appData := os.Getenv("APPDATA"); appData != "" {
			candidates = append(candidates,
				filepath.Join(appData, "npm", "func.cmd"),
				filepath.Join(appData, "npm", "node_modules", "azure-functions-core-tools", "bin", "func.exe"),
			)
		}
		return candidates
	}
	if home, err := os.UserHomeDir(); err == nil {
		candidates = append(candidates,
			filepath.Join(home, ".npm-global", "bin", ToolName),
			filepath.Join(home, ".local", "bin", ToolName),
		)
	}
	candidates = append(candidates,
		filepath.Join("/usr/local/bin", ToolName),
		filepath.Join("/usr/lib/node_modules/azure-functions-core-tools/bin", ToolName),
	)
	return candidates
}

func isExecutable(path string) bool {
	info, err := os.Stat(path)
	if err != nil || !info.Mode().IsRegular() {
		return false
	}
	if runtime.GOOS == "windows" {
		return true
	}
	return info.Mode().Perm()&0o111 != 0
}
