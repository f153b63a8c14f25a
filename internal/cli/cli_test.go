package cli

import (
	"context"
	"errors"
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"github.com/vk/detflow/internal/testutil"
)

const graphSrc = `
node "ramp" {
  type      = "source.Ramp"
  constants = { length = 4 }
}

node "mean" {
  type = "signals.Mean"
}

node "out" {
  type = "print.Summary"
}

link {
  from = "ramp.signal"
  to   = "mean.signal"
}

link {
  from = "mean.mean"
  to   = "out.value"
}
`

func setup(t *testing.T) (dir string, out *testutil.SafeBuffer) {
	t.Helper()
	dir = t.TempDir()
	require.NoError(t, os.WriteFile(filepath.Join(dir, "graph.hcl"), []byte(graphSrc), 0o644))
	// Keep a stray detflow.yaml in the working directory out of the way.
	t.Chdir(dir)
	return dir, &testutil.SafeBuffer{}
}

func runCLI(out *testutil.SafeBuffer, args ...string) error {
	return New(out).Run(context.Background(), append([]string{"detflow"}, args...))
}

func requireExitCode(t *testing.T, err error, code int) {
	t.Helper()
	require.Error(t, err)
	var exitErr *ExitError
	require.ErrorAs(t, err, &exitErr)
	assert.Equal(t, code, exitErr.Code)
}

func TestRun(t *testing.T) {
	_, out := setup(t)

	err := runCLI(out, "--log-format", "json", "run", "graph.hcl")

	require.NoError(t, err)
	assert.Contains(t, out.String(), "      1.5\n")
	assert.Contains(t, out.String(), `"msg":"🏁 Graph run finished."`)
}

func TestRun_ConfigFile(t *testing.T) {
	dir, out := setup(t)
	cfgPath := filepath.Join(dir, "custom.yaml")
	require.NoError(t, os.WriteFile(cfgPath, []byte("log:\n  level: warn\n"), 0o644))

	err := runCLI(out, "--config", cfgPath, "run", "graph.hcl")

	require.NoError(t, err)
	assert.Contains(t, out.String(), "      1.5\n")
	assert.NotContains(t, out.String(), "Graph run finished.")
}

func TestRun_UsageErrors(t *testing.T) {
	testCases := []struct {
		name string
		args []string
	}{
		{name: "missing graph", args: []string{"run"}},
		{name: "too many graphs", args: []string{"run", "a.hcl", "b.hcl"}},
		{name: "bad log level", args: []string{"--log-level", "loud", "run", "graph.hcl"}},
		{name: "bad log format", args: []string{"--log-format", "xml", "run", "graph.hcl"}},
		{name: "missing config", args: []string{"--config", "nope.yaml", "run", "graph.hcl"}},
	}
	for _, tc := range testCases {
		t.Run(tc.name, func(t *testing.T) {
			_, out := setup(t)
			requireExitCode(t, runCLI(out, tc.args...), 2)
		})
	}
}

func TestRun_GraphError(t *testing.T) {
	dir, out := setup(t)
	bad := filepath.Join(dir, "bad.hcl")
	require.NoError(t, os.WriteFile(bad, []byte(`node "x" {`), 0o644))

	err := runCLI(out, "run", bad)

	require.Error(t, err)
	var exitErr *ExitError
	assert.False(t, errors.As(err, &exitErr), "graph errors are not usage errors")
	assert.Contains(t, err.Error(), "failed to load graph")
}

func TestNodes(t *testing.T) {
	_, out := setup(t)

	require.NoError(t, runCLI(out, "nodes"))

	text := out.String()
	assert.Contains(t, text, "source.Ramp\n    Generates a linear test signal.\n")
	assert.Contains(t, text, "    const length: int\n")
	assert.Contains(t, text, "    const amount: float (external)\n")
	assert.Contains(t, text, "    out   signal: signal\n")
}

func TestFormat(t *testing.T) {
	dir, out := setup(t)

	require.NoError(t, runCLI(out, "fmt", "graph.hcl"))
	printed := out.String()
	assert.Contains(t, printed, `node "ramp"`)

	require.NoError(t, runCLI(&testutil.SafeBuffer{}, "fmt", "-w", "graph.hcl"))
	written, err := os.ReadFile(filepath.Join(dir, "graph.hcl"))
	require.NoError(t, err)
	assert.Contains(t, printed, string(written))
}

func TestUnknownFlag(t *testing.T) {
	_, out := setup(t)

	err := runCLI(out, "--this-is-not-a-valid-flag")

	require.Error(t, err)
	assert.Contains(t, err.Error(), "flag provided but not defined")
}

func TestFormat_Directory(t *testing.T) {
	dir, out := setup(t)
	require.NoError(t, os.MkdirAll(filepath.Join(dir, "more"), 0o755))
	require.NoError(t, os.WriteFile(filepath.Join(dir, "more", "copy.hcl"), []byte(graphSrc), 0o644))

	require.NoError(t, runCLI(out, "fmt", "."))

	assert.Contains(t, out.String(), "# graph.hcl\n")
	assert.Contains(t, out.String(), "# "+filepath.Join("more", "copy.hcl")+"\n")
}
