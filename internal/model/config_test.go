package model_test

import (
	"strings"
	"testing"
	"time"

	"github.com/corvus-dotnet/funchost/internal/model"

	"github.com/stretchr/testify/require"
)

func TestLoadConfig(t *testing.T) {
	t.Parallel()
	yml := `
version: 0
tool: /opt/func-tools/func
verbose: true
timeouts:
  startup: 90s
  graceful: 5s
  forced: 10s
  portWait: 3s
hosts:
  - project: ./testprj/bin/output
    port: 7071
    runtimeId: net8.0
    provider: csharp
    env:
      TableStorageConnectionString: UseDevelopmentStorage=true
  - project: ./otherprj/bin/output
    port: 7072
    provider: node
`
	cfg, err := model.LoadConfig(strings.NewReader(yml))
	require.NoError(t, err)
	require.Equal(t, "/opt/func-tools/func", cfg.Tool)
	require.True(t, cfg.Verbose)
	require.Equal(t, 90*time.Second, cfg.Timeouts.Startup)
	require.Len(t, cfg.Hosts, 2)
	require.Equal(t, uint16(7071), cfg.Hosts[0].Port)
	require.Equal(t, "net8.0", cfg.Hosts[0].RuntimeID)
	require.Equal(t, "UseDevelopmentStorage=true", cfg.Hosts[0].Env["TableStorageConnectionString"])
}

func TestLoadConfigDefaults(t *testing.T) {
	t.Parallel()
	cfg, err := model.LoadConfig(strings.NewReader("version: 0\n"))
	require.NoError(t, err)
	require.Equal(t, model.DefaultTimeouts(), cfg.Timeouts)
	require.Empty(t, cfg.Hosts)
}

func TestLoadConfigErrors(t *testing.T) {
	t.Parallel()
	testCases := []struct {
		scenario string
		yml      string
		contains string
	}{
		{
			scenario: "unsupported version",
			yml:      "version: 42\n",
			contains: "version 42 is not supported",
		},
		{
			scenario: "unknown field",
			yml:      "version: 0\nhots: []\n",
			contains: "hots",
		},
		{
			scenario: "missing project",
			yml:      "version: 0\nhosts:\n  - port: 7071\n    provider: csharp\n",
			contains: "project is required",
		},
		{
			scenario: "missing port",
			yml:      "version: 0\nhosts:\n  - project: ./prj\n    provider: csharp\n",
			contains: "port is required",
		},
		{
			scenario: "duplicate port",
			yml: "version: 0\nhosts:\n" +
				"  - {project: ./a, port: 7071, provider: csharp}\n" +
				"  - {project: ./b, port: 7071, provider: node}\n",
			contains: "port 7071 configured twice",
		},
		{
			scenario: "graceful not shorter than forced",
			yml:      "version: 0\ntimeouts: {startup: 60s, graceful: 10s, forced: 10s, portWait: 3s}\n",
			contains: "must be shorter than forced",
		},
		{
			scenario: "port wait not shorter than startup",
			yml:      "version: 0\ntimeouts: {startup: 3s, graceful: 5s, forced: 10s, portWait: 3s}\n",
			contains: "must be shorter than startup",
		},
		{
			scenario: "negative timeout",
			yml:      "version: 0\ntimeouts: {startup: 60s, graceful: -5s, forced: 10s, portWait: 3s}\n",
			contains: "must be positive",
		},
	}

	for _, tc := range testCases {
		t.Run(tc.scenario, func(t *testing.T) {
			t.Parallel()
			_, err := model.LoadConfig(strings.NewReader(tc.yml))
			require.Error(t, err)
			require.Contains(t, err.Error(), tc.contains)
		})
	}
}

func TestTimeoutsValidate(t *testing.T) {
	t.Parallel()
	require.NoError(t, model.DefaultTimeouts().Validate())
}
