// Package system holds end-to-end tests that compile HCL views and run
// them on the local engine.
package system

import (
	"context"
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/require"
	"github.com/vk/viewgrid/internal/hcl"
	"github.com/vk/viewgrid/internal/localsession"
	"github.com/vk/viewgrid/internal/registry"
	"github.com/vk/viewgrid/internal/scheduler"
	"github.com/vk/viewgrid/internal/session"
	"github.com/vk/viewgrid/internal/testutil"
	"github.com/vk/viewgrid/internal/value"
	"github.com/vk/viewgrid/internal/viewcycle"
	"github.com/vk/viewgrid/modules/portfolio"
	"github.com/vk/viewgrid/modules/rates"
)

// constants implements each output as a fixed value.
type constants map[string]float64

func (m constants) Register(r *registry.Registry) {
	for name, v := range m {
		v := v
		r.RegisterInvoker(name, registry.InvokerFunc(func(_ context.Context, inv *registry.Invocation) (map[string]any, error) {
			out := make(map[string]any, len(inv.Outputs))
			for _, spec := range inv.Outputs {
				out[spec.Name] = v
			}
			return out, nil
		}))
	}
}

// moduleFunc registers a plain function as a module.
type moduleFunc func(r *registry.Registry)

func (f moduleFunc) Register(r *registry.Registry) { f(r) }

func compile(t *testing.T, src string, modules ...registry.Module) (context.Context, session.Session, error) {
	t.Helper()
	ctx, _ := testutil.NewContext(t)
	dir := t.TempDir()
	require.NoError(t, os.WriteFile(filepath.Join(dir, "main.hcl"), []byte(src), 0o600), "failed to write hcl file")

	view, err := hcl.NewLoader().Load(ctx, dir)
	require.NoError(t, err)

	reg := registry.New()
	(&rates.Module{}).Register(reg)
	(&portfolio.Module{}).Register(reg)
	for _, m := range modules {
		m.Register(reg)
	}

	factory := &localsession.SessionFactory{
		Workers:   4,
		Scheduler: scheduler.Config{MaxJobSize: 1, MaxJobsInFlight: 8, JobTimeout: 10 * time.Second},
	}
	sess, err := factory.NewSession(ctx, view, reg)
	if err == nil {
		t.Cleanup(func() { require.NoError(t, sess.Close(ctx)) })
	}
	return ctx, sess, err
}

// runView compiles src and runs one full cycle.
func runView(t *testing.T, src string, modules ...registry.Module) (session.Session, *viewcycle.Cycle) {
	t.Helper()
	ctx, sess, err := compile(t, src, modules...)
	require.NoError(t, err)
	c, err := sess.RunFull(ctx, sess.Snapshot())
	require.NoError(t, err)
	return sess, c
}

// outcome returns the outcome of a top-level requirement such as
// "PresentValue(SWAP~A)".
func outcome(t *testing.T, c *viewcycle.Cycle, target, name string, constraints ...string) (value.Specification, viewcycle.Outcome) {
	t.Helper()
	props := value.Properties{}
	for i := 0; i+1 < len(constraints); i += 2 {
		props = props.With(constraints[i], constraints[i+1])
	}
	spec, o, ok := c.Lookup(value.NewRequirement(testutil.Target(target), name, props))
	require.True(t, ok, "no outcome for %s(%s)", name, target)
	return spec, o
}
