package scheduler

import (
	"context"
	"sync"
	"testing"
	"time"

	"github.com/benbjohnson/clock"
	"github.com/google/go-cmp/cmp"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"github.com/vk/viewgrid/internal/calcjob"
	"github.com/vk/viewgrid/internal/depgraph"
	cerrors "github.com/vk/viewgrid/internal/errors"
	"github.com/vk/viewgrid/internal/localexecutor"
	"github.com/vk/viewgrid/internal/marketdata"
	"github.com/vk/viewgrid/internal/testutil"
	"github.com/vk/viewgrid/internal/testutil/fakepool"
	"github.com/vk/viewgrid/internal/value"
	"github.com/vk/viewgrid/internal/viewcycle"
	"go.uber.org/goleak"
)

func TestMain(m *testing.M) {
	goleak.VerifyTestMain(m)
}

// fixture builds the graph for reqs over both discount factors.
func fixture(t *testing.T, reqs ...value.Requirement) (context.Context, *depgraph.Graph, *marketdata.Snapshot) {
	t.Helper()
	ctx, _ := testutil.NewContext(t)
	snap := testutil.DiscountFactors(0.98, 0.97)
	g, err := depgraph.NewBuilder(testutil.SwapRegistry(t), testutil.SwapTargets()).Build(ctx, reqs, snap)
	require.NoError(t, err)
	return ctx, g, snap
}

func portfolio(t *testing.T) (context.Context, *depgraph.Graph, *marketdata.Snapshot) {
	return fixture(t, testutil.Req("PORTFOLIO~P", "PresentValue"))
}

func spec(t *testing.T, g *depgraph.Graph, target string) value.Specification {
	t.Helper()
	for _, n := range g.Nodes() {
		if n.Target == testutil.Target(target) {
			return n.Outputs[0]
		}
	}
	t.Fatalf("no node on %s", target)
	return value.Specification{}
}

func execute(ctx context.Context, t *testing.T, s *Scheduler, g *depgraph.Graph, snap Values) (*Report, *viewcycle.Cycle, error) {
	t.Helper()
	agg := viewcycle.NewAggregator(viewcycle.Metadata{ID: "c1"}, g, nil)
	report, err := s.Execute(ctx, Run{CycleID: "c1", Kind: "full", Graph: g, Snapshot: snap, Sink: agg})
	c, ferr := agg.Finalize()
	require.NoError(t, ferr, "every node is resolved even when the run fails")
	return report, c, err
}

func failure(t *testing.T, c *viewcycle.Cycle, spec value.Specification) *calcjob.Failure {
	t.Helper()
	o, ok := c.Get(spec)
	require.True(t, ok)
	require.True(t, o.Failed(), "%s should have failed", spec)
	return o.Failure
}

func TestExecute_PresentValueOnLocalPool(t *testing.T) {
	ctx, g, snap := fixture(t, testutil.Req("SWAP~A", "PresentValue"))
	pool := localexecutor.New(ctx, testutil.SwapRegistry(t), localexecutor.Config{Workers: 2})
	t.Cleanup(func() { require.NoError(t, pool.Close()) })

	report, c, err := execute(ctx, t, New(pool, Config{}), g, snap)
	require.NoError(t, err)

	v, ok := c.Value(spec(t, g, "SWAP~A"))
	require.True(t, ok)
	assert.InDelta(t, 49000.0, v, 1e-6)
	assert.Equal(t, 1, report.Jobs)
	assert.Equal(t, 1, report.Submissions)
	assert.Equal(t, 2, report.Done)
	assert.Equal(t, []State{Done, Done}, report.States)

	exec, _ := c.Execution(spec(t, g, "SWAP~A"))
	assert.Contains(t, pool.ComputeNodes(), exec.ComputeNode)
}

func TestExecute_PortfolioOnLocalPool(t *testing.T) {
	ctx, g, snap := portfolio(t)
	pool := localexecutor.New(ctx, testutil.SwapRegistry(t), localexecutor.Config{Workers: 3})
	t.Cleanup(func() { require.NoError(t, pool.Close()) })

	report, c, err := execute(ctx, t, New(pool, Config{MaxJobSize: 1}), g, snap)
	require.NoError(t, err)
	assert.Equal(t, 4, report.Jobs)

	_, o, ok := c.Lookup(testutil.Req("PORTFOLIO~P", "PresentValue"))
	require.True(t, ok)
	require.False(t, o.Failed())
	// 1e6*5%*0.98 + 2e6*4%*0.97 + 5e5*3%*0.98
	assert.InDelta(t, 141300.0, o.Value, 1e-6)
}

func TestExecute_DispatchesInNodeOrder(t *testing.T) {
	ctx, g, snap := portfolio(t)
	pool := fakepool.New(1, nil)

	_, _, err := execute(ctx, t, New(pool, Config{MaxJobSize: 1, MaxJobsInFlight: 1}), g, snap)
	require.NoError(t, err)

	var got [][]depgraph.NodeID
	for _, s := range pool.Submissions() {
		got = append(got, s.Nodes)
	}
	want := [][]depgraph.NodeID{{1}, {3}, {4}, {5}}
	if diff := cmp.Diff(want, got); diff != "" {
		t.Errorf("dispatch order mismatch (-want +got):\n%s", diff)
	}
}

func TestExecute_FailurePropagatesToDependentsOnly(t *testing.T) {
	ctx, g, snap := portfolio(t)
	pvB := spec(t, g, "SWAP~B")
	pool := fakepool.New(2, func(_ fakepool.Submission, job *calcjob.Job) fakepool.Outcome {
		res := &calcjob.Result{JobID: job.ID}
		for _, it := range job.Items {
			if it.Target == testutil.Target("SWAP~B") {
				res.Items = append(res.Items, calcjob.FailedItem(it.Node, calcjob.FunctionExecutionFailure, "boom"))
				continue
			}
			res.Items = append(res.Items, calcjob.Succeeded(it.Node, map[value.Specification]any{it.Outputs[0]: 1.0}))
		}
		return fakepool.Outcome{Result: res}
	})

	report, c, err := execute(ctx, t, New(pool, Config{}), g, snap)
	require.NoError(t, err, "node failures do not fail the run")
	assert.Equal(t, 4, report.Done)
	assert.Equal(t, 2, report.Failed)

	assert.Equal(t, calcjob.FunctionExecutionFailure, failure(t, c, pvB).Reason)
	f := failure(t, c, spec(t, g, "PORTFOLIO~P"))
	assert.Equal(t, calcjob.MissingInput, f.Reason)
	assert.Equal(t, pvB, f.FailedInput)

	for _, target := range []string{"SWAP~A", "SWAP~C"} {
		_, ok := c.Value(spec(t, g, target))
		assert.True(t, ok, "%s is independent of the failure", target)
	}
	assert.Len(t, pool.Submissions(), 1, "the portfolio node is never dispatched")
}

func TestExecute_TimeoutTwiceExhaustsRetries(t *testing.T) {
	ctx, g, snap := fixture(t, testutil.Req("SWAP~A", "PresentValue"))
	pool := fakepool.New(3, func(fakepool.Submission, *calcjob.Job) fakepool.Outcome {
		return fakepool.Outcome{TimedOut: true}
	})

	report, c, err := execute(ctx, t, New(pool, Config{MaxRetries: 1}), g, snap)
	require.NoError(t, err)

	subs := pool.Submissions()
	require.Len(t, subs, 2, "no third submission is attempted")
	assert.Equal(t, subs[0].JobID, subs[1].JobID)
	assert.Equal(t, 1, subs[1].Attempt)
	assert.Equal(t, []value.ComputeNodeID{subs[0].ComputeNode}, subs[1].Exclude)
	assert.NotEqual(t, subs[0].ComputeNode, subs[1].ComputeNode)

	assert.Equal(t, calcjob.WorkerUnavailable, failure(t, c, spec(t, g, "SWAP~A")).Reason)
	assert.Equal(t, 1, report.Retries)
	assert.Len(t, report.Excluded, 2)
}

func TestExecute_RetrySucceedsElsewhere(t *testing.T) {
	ctx, g, snap := fixture(t, testutil.Req("SWAP~A", "PresentValue"))
	pool := fakepool.New(2, func(s fakepool.Submission, job *calcjob.Job) fakepool.Outcome {
		if s.Attempt == 0 {
			return fakepool.Outcome{TimedOut: true}
		}
		return fakepool.Constant(7.0)(s, job)
	})

	report, c, err := execute(ctx, t, New(pool, Config{MaxRetries: 1}), g, snap)
	require.NoError(t, err)

	v, ok := c.Value(spec(t, g, "SWAP~A"))
	require.True(t, ok)
	assert.Equal(t, 7.0, v)

	exec, _ := c.Execution(spec(t, g, "SWAP~A"))
	assert.Equal(t, value.NewComputeNodeID("fake-2"), exec.ComputeNode)
	assert.Equal(t, []value.ComputeNodeID{value.NewComputeNodeID("fake-1")}, report.Excluded)
}

func TestExecute_BusyComputeNodeIsRetriedElsewhere(t *testing.T) {
	ctx, g, snap := fixture(t, testutil.Req("SWAP~A", "PresentValue"))
	pool := fakepool.New(2, func(s fakepool.Submission, job *calcjob.Job) fakepool.Outcome {
		if s.Attempt == 0 {
			return fakepool.Outcome{Busy: true}
		}
		return fakepool.Constant(7.0)(s, job)
	})

	report, c, err := execute(ctx, t, New(pool, Config{MaxRetries: 1}), g, snap)
	require.NoError(t, err)

	v, ok := c.Value(spec(t, g, "SWAP~A"))
	require.True(t, ok)
	assert.Equal(t, 7.0, v)
	assert.Equal(t, 1, report.Retries)
	assert.Equal(t, []value.ComputeNodeID{value.NewComputeNodeID("fake-1")}, report.Excluded)
}

func TestExecute_RespectsMaxJobsInFlight(t *testing.T) {
	ctx, g, snap := portfolio(t)
	pool := fakepool.New(4, func(fakepool.Submission, *calcjob.Job) fakepool.Outcome {
		return fakepool.Outcome{Hold: true}
	})
	t.Cleanup(func() { require.NoError(t, pool.Close()) })

	type result struct {
		report *Report
		err    error
	}
	agg := viewcycle.NewAggregator(viewcycle.Metadata{ID: "c1"}, g, nil)
	done := make(chan result, 1)
	go func() {
		s := New(pool, Config{MaxJobSize: 1, MaxJobsInFlight: 2})
		report, err := s.Execute(ctx, Run{CycleID: "c1", Kind: "full", Graph: g, Snapshot: snap, Sink: agg})
		done <- result{report, err}
	}()

	require.Eventually(t, func() bool { return pool.Outstanding() == 2 }, 5*time.Second, time.Millisecond,
		"two of the three ready swaps are submitted")

	timeout := time.After(5 * time.Second)
	var res result
	for finished := false; !finished; {
		assert.LessOrEqual(t, pool.Outstanding(), 2)
		pool.Release(1.0)
		select {
		case res = <-done:
			finished = true
		case <-time.After(5 * time.Millisecond):
		case <-timeout:
			t.Fatal("the run did not finish")
		}
	}

	require.NoError(t, res.err)
	assert.Equal(t, 6, res.report.Done)
	assert.Len(t, pool.Submissions(), 4)
	assert.Equal(t, 2, pool.Peak(), "outstanding submissions never exceed MaxJobsInFlight")
}

func TestExecute_RejectsResultsNotAnsweringTheJob(t *testing.T) {
	testCases := []struct {
		name   string
		tamper func(res *calcjob.Result, pNode depgraph.NodeID, pSpec value.Specification)
		reason string
	}{
		{
			name: "foreign job id",
			tamper: func(res *calcjob.Result, _ depgraph.NodeID, _ value.Specification) {
				res.JobID = "c1/other"
			},
			reason: "result belongs to job c1/other",
		},
		{
			name: "node outside the job",
			tamper: func(res *calcjob.Result, pNode depgraph.NodeID, pSpec value.Specification) {
				res.Items = append(res.Items, calcjob.Succeeded(pNode, map[value.Specification]any{pSpec: 1.0}))
			},
			reason: "is not part of the job",
		},
	}

	for _, tc := range testCases {
		t.Run(tc.name, func(t *testing.T) {
			ctx, g, snap := portfolio(t)
			pSpec := spec(t, g, "PORTFOLIO~P")
			pNode, ok := g.Producer(pSpec)
			require.True(t, ok)
			pool := fakepool.New(1, func(_ fakepool.Submission, job *calcjob.Job) fakepool.Outcome {
				res := fakepool.Succeed(job, func(calcjob.Item) any { return 1.0 })
				if job.Items[0].Target == testutil.Target("SWAP~A") {
					tc.tamper(res, pNode, pSpec)
				}
				return fakepool.Outcome{Result: res}
			})

			_, c, err := execute(ctx, t, New(pool, Config{MaxJobSize: 1}), g, snap)
			require.NoError(t, err, "a bad result fails the job, not the run")

			a := failure(t, c, spec(t, g, "SWAP~A"))
			assert.Equal(t, calcjob.WorkerUnavailable, a.Reason)
			assert.Contains(t, a.Message, tc.reason)
			p := failure(t, c, pSpec)
			assert.Equal(t, calcjob.MissingInput, p.Reason, "nothing was recorded for the portfolio node")
			_, ok = c.Value(spec(t, g, "SWAP~B"))
			assert.True(t, ok)
		})
	}
}

func TestExecute_AllComputeNodesExcluded(t *testing.T) {
	ctx, g, snap := fixture(t, testutil.Req("SWAP~A", "PresentValue"))
	pool := fakepool.New(1, func(fakepool.Submission, *calcjob.Job) fakepool.Outcome {
		return fakepool.Outcome{TimedOut: true}
	})

	_, c, err := execute(ctx, t, New(pool, Config{MaxRetries: 3}), g, snap)
	require.NoError(t, err)
	assert.Len(t, pool.Submissions(), 1, "the resubmission finds no eligible compute node")

	f := failure(t, c, spec(t, g, "SWAP~A"))
	assert.Equal(t, calcjob.WorkerUnavailable, f.Reason)
	assert.Contains(t, f.Message, "no compute node available")
}

func TestExecute_MissingMarketData(t *testing.T) {
	ctx, g, _ := portfolio(t)
	snap := marketdata.NewSnapshot(map[value.Specification]any{
		testutil.Leaf("CURVE~X", "DiscountFactor"): 0.98,
	})
	pool := fakepool.New(1, nil)

	_, c, err := execute(ctx, t, New(pool, Config{}), g, snap)
	require.NoError(t, err)

	dfY := spec(t, g, "CURVE~Y")
	assert.Equal(t, calcjob.MissingMarketData, failure(t, c, dfY).Reason)
	assert.Contains(t, failure(t, c, dfY).Message, "is missing from the snapshot")
	b := failure(t, c, spec(t, g, "SWAP~B"))
	assert.Equal(t, calcjob.MissingInput, b.Reason)
	assert.Equal(t, dfY, b.FailedInput)
	p := failure(t, c, spec(t, g, "PORTFOLIO~P"))
	assert.Equal(t, dfY, p.FailedInput, "failures reference the originating input")

	_, ok := c.Value(spec(t, g, "SWAP~A"))
	assert.True(t, ok)
}

func TestExecute_CancelMarksUnresolvedNodes(t *testing.T) {
	ctx, g, snap := portfolio(t)
	started := make(chan struct{})
	var once sync.Once
	pool := fakepool.New(1, func(fakepool.Submission, *calcjob.Job) fakepool.Outcome {
		once.Do(func() { close(started) })
		return fakepool.Outcome{Hold: true}
	})
	t.Cleanup(func() { require.NoError(t, pool.Close()) })

	ctx, cancel := context.WithCancel(ctx)
	go func() {
		<-started
		cancel()
	}()

	report, c, err := execute(ctx, t, New(pool, Config{}), g, snap)
	require.Error(t, err)
	assert.True(t, cerrors.ErrCancelled.Equal(err))
	assert.Equal(t, 2, report.Done, "the seeded leaves stay done")
	assert.Equal(t, 4, report.Failed)

	for _, target := range []string{"SWAP~A", "SWAP~B", "SWAP~C", "PORTFOLIO~P"} {
		assert.Equal(t, calcjob.Cancelled, failure(t, c, spec(t, g, target)).Reason)
	}
}

func TestExecute_InconsistentResultAborts(t *testing.T) {
	ctx, g, snap := fixture(t, testutil.Req("SWAP~A", "PresentValue"))
	foreign := value.NewSpecification(testutil.Target("SWAP~Z"), "PresentValue", value.Properties{}, testutil.SwapPV)
	pool := fakepool.New(1, func(_ fakepool.Submission, job *calcjob.Job) fakepool.Outcome {
		node := job.Items[0].Node
		return fakepool.Outcome{Result: &calcjob.Result{JobID: job.ID, Items: []calcjob.ResultItem{
			calcjob.Succeeded(node, map[value.Specification]any{foreign: 1.0}),
		}}}
	})

	_, c, err := execute(ctx, t, New(pool, Config{}), g, snap)
	require.Error(t, err)
	assert.True(t, cerrors.ErrUnknownSpecification.Equal(err))
	assert.Equal(t, calcjob.Cancelled, failure(t, c, spec(t, g, "SWAP~A")).Reason)
}

func TestExecute_LocalPoolDeadline(t *testing.T) {
	ctx, g, snap := fixture(t, testutil.Req("SWAP~A", "PresentValue"))
	mock := clock.NewMock()
	pool := localexecutor.New(ctx, testutil.SwapRegistry(t), localexecutor.Config{Workers: 1, Clock: mock})
	t.Cleanup(func() { require.NoError(t, pool.Close()) })

	report, _, err := execute(ctx, t, New(pool, Config{JobTimeout: time.Minute, Clock: mock}), g, snap)
	require.NoError(t, err)
	assert.Equal(t, 0, report.Retries, "jobs finishing before the deadline are not retried")
}

func TestState_String(t *testing.T) {
	assert.Equal(t, "PENDING", Pending.String())
	assert.Equal(t, "DISPATCHED", Dispatched.String())
	assert.Equal(t, "UNKNOWN", State(42).String())
}
