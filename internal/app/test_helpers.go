package app

import (
	"testing"
	"time"

	"github.com/vk/viewgrid/internal/hcl"
	"github.com/vk/viewgrid/internal/registry"
	"github.com/vk/viewgrid/internal/testutil"
)

// SetupAppTest creates a new app instance over the HCL loader for system
// testing. It returns the app, its result output and its debug log.
func SetupAppTest(t *testing.T, cfg *Config, modules ...registry.Module) (*App, *testutil.SafeBuffer, *testutil.SafeBuffer) {
	t.Helper()

	out, logs := &testutil.SafeBuffer{}, &testutil.SafeBuffer{}
	cfg.LogLevel = "debug"
	testApp := NewApp(out, logs, cfg, hcl.NewLoader(), modules...)

	t.Cleanup(func() {
		if t.Failed() {
			t.Logf("--- Full Log Output for %s ---\n%s", t.Name(), logs.String())
		}
	})
	return testApp, out, logs
}

// NewTestConfig returns a valid configuration for the view at path.
func NewTestConfig(path string) *Config {
	return &Config{
		ViewPath:        path,
		Workers:         2,
		MaxJobSize:      16,
		MaxJobsInFlight: 8,
		JobTimeout:      30 * time.Second,
		MaxRetries:      1,
		LogFormat:       "text",
		LogLevel:        "debug",
	}
}
