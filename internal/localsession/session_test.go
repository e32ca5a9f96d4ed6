package localsession

import (
	"testing"

	"github.com/benbjohnson/clock"
	promtestutil "github.com/prometheus/client_golang/prometheus/testutil"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	cerrors "github.com/vk/viewgrid/internal/errors"
	"github.com/vk/viewgrid/internal/hcl"
	"github.com/vk/viewgrid/internal/marketdata"
	"github.com/vk/viewgrid/internal/metrics"
	"github.com/vk/viewgrid/internal/registry"
	"github.com/vk/viewgrid/internal/scheduler"
	"github.com/vk/viewgrid/internal/testutil"
	"github.com/vk/viewgrid/internal/value"
	"github.com/vk/viewgrid/internal/viewcycle"
	"github.com/vk/viewgrid/modules/portfolio"
	"github.com/vk/viewgrid/modules/rates"
	"go.uber.org/goleak"
)

func TestMain(m *testing.M) {
	goleak.VerifyTestMain(m)
}

// pv returns the present value computed on target, whether or not it was
// requested directly.
func pv(t *testing.T, c *viewcycle.Cycle, target string) float64 {
	t.Helper()
	var o viewcycle.Outcome
	found := false
	for _, n := range c.Graph().Nodes() {
		if n.Target == testutil.Target(target) && !n.MarketData {
			o, found = c.Get(n.Outputs[0])
			break
		}
	}
	require.True(t, found, "no result for %s", target)
	require.False(t, o.Failed(), "%s failed: %v", target, o.Failure)
	return o.Value.(float64)
}

func TestSession_FullThenDelta(t *testing.T) {
	ctx, _ := testutil.NewContext(t)
	sess, err := New(ctx, Options{
		Registry:     testutil.SwapRegistry(t),
		Targets:      testutil.SwapTargets(),
		Requirements: []value.Requirement{testutil.Req("PORTFOLIO~P", rates.PresentValue)},
		MarketData:   testutil.DiscountFactors(0.98, 0.97),
		Workers:      2,
		Scheduler:    scheduler.Config{MaxJobSize: 1},
		Clock:        clock.NewMock(),
	})
	require.NoError(t, err)
	t.Cleanup(func() { require.NoError(t, sess.Close(ctx)) })
	assert.Equal(t, 6, sess.Graph().Len())
	assert.Len(t, sess.Graph().MarketDataLeaves(), 2)

	full, err := sess.RunFull(ctx, sess.Snapshot())
	require.NoError(t, err)
	assert.Equal(t, viewcycle.Full, full.Metadata().Kind)
	assert.Empty(t, full.Failures())
	assert.InDelta(t, 141300.0, pv(t, full, "PORTFOLIO~P"), 1e-6)
	assert.GreaterOrEqual(t, promtestutil.CollectAndCount(metrics.CycleDuration), 1)

	snap, changed := sess.Snapshot().Apply([]marketdata.Update{{Spec: testutil.Leaf("CURVE~Y", rates.DiscountFactor), Value: 0.96}})
	require.Len(t, changed, 1)
	delta := full.Graph().Delta(full.Graph().Invalidate(changed))

	next, err := sess.RunDelta(ctx, full, delta, snap)
	require.NoError(t, err)
	meta := next.Metadata()
	assert.Equal(t, viewcycle.Delta, meta.Kind)
	assert.Equal(t, full.ID(), meta.PriorID)
	assert.Equal(t, snap.Version(), meta.SnapshotVersion)
	assert.InDelta(t, 76800.0, pv(t, next, "SWAP~B"), 1e-6)
	assert.InDelta(t, 49000.0+76800.0+14700.0, pv(t, next, "PORTFOLIO~P"), 1e-6)
	assert.InDelta(t, 141300.0, pv(t, full, "PORTFOLIO~P"), 1e-6, "the prior cycle is not modified")
}

func TestNew_UnsatisfiableRequirement(t *testing.T) {
	ctx, _ := testutil.NewContext(t)
	_, err := New(ctx, Options{
		Registry:     testutil.SwapRegistry(t),
		Targets:      testutil.SwapTargets(),
		Requirements: []value.Requirement{testutil.Req("SWAP~A", "Gamma")},
	})
	require.Error(t, err)
	assert.True(t, cerrors.ErrUnsatisfiableRequirement.Equal(err))
}

func newRegistry() *registry.Registry {
	r := registry.New()
	(&rates.Module{}).Register(r)
	(&portfolio.Module{}).Register(r)
	return r
}

func TestSessionFactory_ExampleView(t *testing.T) {
	ctx, _ := testutil.NewContext(t)
	view, err := hcl.NewLoader().Load(ctx, "../../examples/swaps")
	require.NoError(t, err)

	factory := &SessionFactory{Workers: 2, Scheduler: scheduler.DefaultConfig()}
	sess, err := factory.NewSession(ctx, view, newRegistry())
	require.NoError(t, err)
	t.Cleanup(func() { require.NoError(t, sess.Close(ctx)) })

	c, err := sess.RunFull(ctx, sess.Snapshot())
	require.NoError(t, err)
	assert.Empty(t, c.Failures())

	dfY := 1 / (1 + 0.015*2)
	assert.InDelta(t, 49000.0, pv(t, c, "SWAP~A"), 1e-6)
	assert.InDelta(t, 49000.0+2e6*0.04*dfY+14700.0, pv(t, c, "PORTFOLIO~P"), 1e-6)
}

func TestSessionFactory_DuplicateFunction(t *testing.T) {
	ctx, _ := testutil.NewContext(t)
	view, err := hcl.NewLoader().Load(ctx, "../../examples/swaps")
	require.NoError(t, err)
	view.Functions = append(view.Functions, view.Functions[0])

	_, err = (&SessionFactory{}).NewSession(ctx, view, newRegistry())
	require.Error(t, err)
	assert.True(t, cerrors.ErrDuplicateFunction.Equal(err))
}
