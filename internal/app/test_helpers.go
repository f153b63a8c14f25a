package app

import (
	"os"
	"testing"

	"github.com/stretchr/testify/require"
	"github.com/vk/detflow/internal/config"
	"github.com/vk/detflow/internal/registry"
	"github.com/vk/detflow/internal/testutil"
)

// SetupAppTest creates a new app instance for system testing, logging at
// debug level into the returned buffer. A nil cfg means the defaults.
func SetupAppTest(t *testing.T, cfg *config.Config, modules ...registry.Module) (*App, *testutil.SafeBuffer) {
	t.Helper()

	if cfg == nil {
		cfg = config.Default()
	}
	cfg.Log.Level = config.LevelDebug

	logBuffer := &testutil.SafeBuffer{}
	testApp, err := NewApp(logBuffer, cfg, modules...)
	require.NoError(t, err)

	t.Cleanup(func() {
		testApp.Close()
		if os.Getenv("DETFLOW_TEST_LOGS") == "true" {
			t.Logf("--- Full Log Output for %s ---\n%s", t.Name(), logBuffer.String())
		}
	})

	return testApp, logBuffer
}
