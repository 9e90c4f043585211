package functions

import (
	"testing"

	"github.com/stretchr/testify/require"
)

func TestMergeEnv(t *testing.T) {
	t.Parallel()
	base := []string{"PATH=/bin", "HOME=/home/u", "KEEP=yes"}

	t.Run("caller values layered over base", func(t *testing.T) {
		t.Parallel()
		merged := mergeEnv(base, []EnvVar{
			{Name: "HOME", Value: "/tmp/override"},
			{Name: "EXTRA", Value: "1"},
		})
		require.Contains(t, merged, "HOME=/tmp/override")
		require.Contains(t, merged, "EXTRA=1")
		require.Contains(t, merged, "KEEP=yes")
		require.NotContains(t, merged, "HOME=/home/u")
	})

	t.Run("last write wins within the overlay", func(t *testing.T) {
		t.Parallel()
		merged := mergeEnv(nil, []EnvVar{
			{Name: "A", Value: "first"},
			{Name: "A", Value: "second"},
		})
		require.Contains(t, merged, "A=second")
		require.NotContains(t, merged, "A=first")
	})

	t.Run("mandatory overrides always win", func(t *testing.T) {
		t.Parallel()
		merged := mergeEnv(nil, []EnvVar{
			{Name: "AzureFunctionsJobHost__FileWatchingEnabled", Value: "true"},
			{Name: "AzureFunctionsJobHost__Logging__Console__IsEnabled", Value: "false"},
		})
		require.Contains(t, merged, "AzureFunctionsJobHost__FileWatchingEnabled=false")
		require.Contains(t, merged, "AzureFunctionsJobHost__Logging__Console__IsEnabled=true")
	})

	t.Run("no duplicate names survive", func(t *testing.T) {
		t.Parallel()
		merged := mergeEnv(base, []EnvVar{{Name: "KEEP", Value: "still"}})
		names := map[string]int{}
		for _, kv := range merged {
			for i := 0; i < len(kv); i++ {
				if kv[i] == '=' {
					names[kv[:i]]++
					break
				}
			}
		}
		for name, count := range names {
			require.Equalf(t, 1, count, "name %s appears %d times", name, count)
		}
	})
}

func TestEnvFromMap(t *testing.T) {
	t.Parallel()
	overlay := EnvFromMap(map[string]string{"B": "2", "A": "1", "C": "3"})
	require.Equal(t, []EnvVar{{"A", "1"}, {"B", "2"}, {"C", "3"}}, overlay)
}

func TestProviderByName(t *testing.T) {
	t.Parallel()
	p, err := ProviderByName("csharp")
	require.NoError(t, err)
	require.Equal(t, "Job host started", p.ReadyPattern)

	_, err = ProviderByName("cobol")
	require.Error(t, err)
}
