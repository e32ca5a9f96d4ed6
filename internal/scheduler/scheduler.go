package scheduler

import (
	"context"
	"fmt"
	"sort"
	"time"

	"github.com/benbjohnson/clock"
	"github.com/pingcap/errors"
	"github.com/vk/viewgrid/internal/builder"
	"github.com/vk/viewgrid/internal/calcjob"
	"github.com/vk/viewgrid/internal/ctxlog"
	"github.com/vk/viewgrid/internal/depgraph"
	cerrors "github.com/vk/viewgrid/internal/errors"
	"github.com/vk/viewgrid/internal/executor"
	"github.com/vk/viewgrid/internal/metrics"
	"github.com/vk/viewgrid/internal/value"
	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"
	"go.opentelemetry.io/otel/trace"
)

var tracer = otel.Tracer("github.com/vk/viewgrid/internal/scheduler")

// Scheduler executes graphs on a worker pool. It holds no per-cycle state
// and may run several cycles at once.
type Scheduler struct {
	pool executor.WorkerPool
	cfg  Config
}

// New creates a scheduler. Zero knobs fall back to DefaultConfig.
func New(pool executor.WorkerPool, cfg Config) *Scheduler {
	def := DefaultConfig()
	if cfg.MaxJobSize < 1 {
		cfg.MaxJobSize = def.MaxJobSize
	}
	if cfg.MaxJobsInFlight < 1 {
		cfg.MaxJobsInFlight = def.MaxJobsInFlight
	}
	if cfg.JobTimeout <= 0 {
		cfg.JobTimeout = def.JobTimeout
	}
	if cfg.MaxRetries < 0 {
		cfg.MaxRetries = 0
	}
	if cfg.Clock == nil {
		cfg.Clock = clock.New()
	}
	return &Scheduler{pool: pool, cfg: cfg}
}

// event is a completed submission delivered to the control loop.
type event struct {
	job     *calcjob.Job
	attempt int
	future  *executor.Future
	span    trace.Span
	started time.Time
}

// loop is the state of one Execute call. It is only touched by the control
// loop goroutine.
type loop struct {
	*Scheduler
	ctx     context.Context
	run     Run
	graph   *depgraph.Graph
	jobs    *builder.Builder
	states  []State
	waiting []int
	ready   []depgraph.NodeID

	events   chan event
	stop     chan struct{}
	inFlight int
	resolved int
	excluded []value.ComputeNodeID
	report   Report
}

// Execute runs the graph until every node is DONE or FAILED. It returns
// ErrCancelled when ctx ends first, after failing every unresolved node
// with reason Cancelled; results arriving afterwards are dropped. A Sink
// error is fatal and aborts the run the same way.
func (s *Scheduler) Execute(ctx context.Context, run Run) (*Report, error) {
	ctx = ctxlog.With(ctx, "cycle_id", run.CycleID)
	logger := ctxlog.FromContext(ctx)

	ctx, span := tracer.Start(ctx, "scheduler.Execute", trace.WithAttributes(
		attribute.String("cycle.id", run.CycleID),
		attribute.String("cycle.kind", run.Kind),
		attribute.Int("cycle.nodes", run.Graph.Len()),
	))
	defer span.End()

	n := run.Graph.Len()
	l := &loop{
		Scheduler: s,
		ctx:       ctx,
		run:       run,
		graph:     run.Graph,
		jobs:      builder.New(run.Graph, run.CycleID, s.cfg.MaxJobSize),
		states:    make([]State, n),
		waiting:   make([]int, n),
		events:    make(chan event),
		stop:      make(chan struct{}),
	}
	defer close(l.stop)

	logger.Debug("Scheduler: Starting cycle.", "nodes", n, "kind", run.Kind)
	err := l.execute()
	l.report.States = l.states
	l.report.Excluded = l.excluded
	for _, st := range l.states {
		switch st {
		case Done:
			l.report.Done++
		case Failed:
			l.report.Failed++
		}
	}
	l.report.Jobs = l.jobs.Jobs()

	if err != nil {
		span.RecordError(err)
		span.SetStatus(codes.Error, err.Error())
		return &l.report, err
	}
	logger.Debug("Scheduler: Cycle resolved.", "done", l.report.Done, "failed", l.report.Failed,
		"jobs", l.report.Jobs, "submissions", l.report.Submissions)
	return &l.report, nil
}

func (l *loop) execute() error {
	if err := l.seed(); err != nil {
		return l.abort(err)
	}

	for l.resolved < len(l.states) {
		if err := l.dispatch(); err != nil {
			return l.abort(err)
		}
		if l.resolved == len(l.states) {
			break
		}
		if l.inFlight == 0 && len(l.ready) == 0 {
			return l.abort(cerrors.ErrCycleNotResolved.GenWithStackByArgs(l.run.CycleID, len(l.states)-l.resolved))
		}

		select {
		case ev := <-l.events:
			l.inFlight--
			metrics.JobsInFlight.Dec()
			if err := l.handle(ev); err != nil {
				return l.abort(err)
			}
		case <-l.ctx.Done():
			return l.abort(cerrors.ErrCancelled.GenWithStackByArgs(l.run.CycleID))
		}
	}
	return nil
}

// seed resolves market-data and pre-resolved nodes and queues the nodes
// with no inputs.
func (l *loop) seed() error {
	order := l.graph.ExecutionOrder()
	for _, id := range order {
		l.waiting[id] = len(l.graph.Dependencies(id))
	}
	for _, id := range order {
		n := l.graph.Node(id)
		switch {
		case n.Preresolved:
			if err := l.seedFrom(n, l.run.Prior); err != nil {
				return err
			}
		case n.MarketData:
			if err := l.seedFrom(n, l.run.Snapshot); err != nil {
				return err
			}
		case l.states[id] == Pending && l.waiting[id] == 0:
			l.enqueue(id)
		}
	}
	return nil
}

func (l *loop) seedFrom(n *depgraph.Node, src Values) error {
	values := make(map[value.Specification]any, len(n.Outputs))
	for _, spec := range n.Outputs {
		var (
			v  any
			ok bool
		)
		if src != nil {
			v, ok = src.Value(spec)
		}
		if !ok {
			f := calcjob.Failure{
				Reason:      calcjob.MissingMarketData,
				Message:     cerrors.ErrMissingMarketData.GenWithStackByArgs(spec).Error(),
				FailedInput: spec,
			}
			if n.Preresolved {
				f.Reason = calcjob.MissingInput
				f.Message = fmt.Sprintf("prior cycle has no value for %s", spec)
			}
			return l.fail(n.ID, f)
		}
		values[spec] = v
	}
	if err := l.run.Sink.Seed(n.ID, values); err != nil {
		return err
	}
	return l.done(n.ID)
}

// enqueue marks a node READY and inserts it into the ready queue in node
// creation order.
func (l *loop) enqueue(id depgraph.NodeID) {
	l.states[id] = Ready
	i := sort.Search(len(l.ready), func(i int) bool { return l.ready[i] >= id })
	l.ready = append(l.ready, 0)
	copy(l.ready[i+1:], l.ready[i:])
	l.ready[i] = id
}

func (l *loop) done(id depgraph.NodeID) error {
	l.states[id] = Done
	l.resolved++
	metrics.NodeOutcomes.WithLabelValues("done", "none").Inc()
	for _, dep := range l.graph.Dependents(id) {
		if l.states[dep] != Pending {
			continue
		}
		l.waiting[dep]--
		if l.waiting[dep] == 0 {
			l.enqueue(dep)
		}
	}
	return nil
}

// fail records the failure of id unless the Sink already has it, then
// fails every unresolved descendant with a reference to the originating
// input.
func (l *loop) fail(id depgraph.NodeID, f calcjob.Failure) error {
	if err := l.run.Sink.Fail(id, f); err != nil {
		return err
	}
	return l.failed(id, f)
}

// failed transitions id, whose failure is already recorded, and propagates.
func (l *loop) failed(id depgraph.NodeID, f calcjob.Failure) error {
	l.states[id] = Failed
	l.resolved++
	metrics.NodeOutcomes.WithLabelValues("failed", f.Reason.String()).Inc()

	origin := f.FailedInput
	if !f.HasFailedInput() && len(l.graph.Node(id).Outputs) > 0 {
		origin = l.graph.Node(id).Outputs[0]
	}

	queue := append([]depgraph.NodeID(nil), l.graph.Dependents(id)...)
	for len(queue) > 0 {
		dep := queue[0]
		queue = queue[1:]
		if l.states[dep] == Done || l.states[dep] == Failed {
			continue
		}
		down := calcjob.Failure{
			Reason:      calcjob.MissingInput,
			Message:     fmt.Sprintf("input %s failed", origin),
			FailedInput: origin,
		}
		if err := l.run.Sink.Fail(dep, down); err != nil {
			return err
		}
		l.states[dep] = Failed
		l.resolved++
		metrics.NodeOutcomes.WithLabelValues("failed", calcjob.MissingInput.String()).Inc()
		queue = append(queue, l.graph.Dependents(dep)...)
	}
	return nil
}

// dispatch cuts and submits jobs while the in-flight bound allows.
func (l *loop) dispatch() error {
	for l.inFlight < l.cfg.MaxJobsInFlight {
		l.pruneReady()
		if len(l.ready) == 0 {
			return nil
		}
		job, rest := l.jobs.Next(l.ready, l.run.Sink)
		l.ready = rest
		for _, it := range job.Items {
			l.states[it.Node] = Dispatched
		}
		if err := l.submit(job, 0); err != nil {
			return err
		}
	}
	return nil
}

func (l *loop) pruneReady() {
	kept := l.ready[:0]
	for _, id := range l.ready {
		if l.states[id] == Ready {
			kept = append(kept, id)
		}
	}
	l.ready = kept
}

// submit sends a job to the pool. A submission the pool refuses fails the
// job's nodes with WorkerUnavailable.
func (l *loop) submit(job *calcjob.Job, attempt int) error {
	logger := ctxlog.FromContext(l.ctx)
	kind := "initial"
	if attempt > 0 {
		kind = "retry"
		l.report.Retries++
	}

	deadline := l.cfg.Clock.Now().Add(l.cfg.JobTimeout)
	_, span := tracer.Start(l.ctx, "scheduler.job", trace.WithAttributes(
		attribute.String("job.id", job.ID),
		attribute.Int("job.items", len(job.Items)),
		attribute.Int("job.attempt", attempt),
	))

	future, err := l.pool.Submit(l.ctx, job, deadline, executor.SubmitOptions{Exclude: l.excluded})
	if err != nil {
		span.RecordError(err)
		span.End()
		logger.Warn("Scheduler: Job could not be submitted.", "job_id", job.ID, "attempt", attempt, "error", err)
		metrics.JobOutcomes.WithLabelValues("unavailable").Inc()
		return l.failJob(job, err.Error())
	}

	l.report.Submissions++
	l.inFlight++
	metrics.JobSubmissions.WithLabelValues(kind).Inc()
	metrics.JobsInFlight.Inc()
	span.SetAttributes(attribute.String("job.compute_node", future.ComputeNode().String()))
	logger.Debug("Scheduler: Job submitted.", "job_id", job.ID, "items", len(job.Items),
		"attempt", attempt, "compute_node", future.ComputeNode().String())

	ev := event{job: job, attempt: attempt, future: future, span: span, started: l.cfg.Clock.Now()}
	go func() {
		select {
		case <-future.Done():
		case <-l.stop:
			span.End()
			return
		}
		select {
		case l.events <- ev:
		case <-l.stop:
			span.End()
		}
	}()
	return nil
}

func (l *loop) failJob(job *calcjob.Job, msg string) error {
	for _, it := range job.Items {
		if l.states[it.Node] == Done || l.states[it.Node] == Failed {
			continue
		}
		if err := l.fail(it.Node, calcjob.Failure{Reason: calcjob.WorkerUnavailable, Message: msg}); err != nil {
			return err
		}
	}
	return nil
}

func (l *loop) handle(ev event) error {
	logger := ctxlog.FromContext(l.ctx).With("job_id", ev.job.ID, "attempt", ev.attempt)
	defer ev.span.End()
	metrics.JobDuration.Observe(l.cfg.Clock.Since(ev.started).Seconds())

	res, err := ev.future.Result()
	if err != nil {
		ev.span.RecordError(err)
		outcome := "timed_out"
		switch {
		case cerrors.ErrJobTimedOut.Equal(err):
		case cerrors.ErrComputeNodeBusy.Equal(err):
			outcome = "busy"
		default:
			logger.Warn("Scheduler: Job failed in the worker pool.", "error", err)
			metrics.JobOutcomes.WithLabelValues("error").Inc()
			return l.failJob(ev.job, err.Error())
		}

		// The compute node is lost for the rest of the cycle.
		node := ev.future.ComputeNode()
		if res != nil && !res.ComputeNode.IsZero() {
			node = res.ComputeNode
		}
		l.exclude(node)
		metrics.JobOutcomes.WithLabelValues(outcome).Inc()
		if ev.attempt >= l.cfg.MaxRetries {
			logger.Warn("Scheduler: Job not run, retries exhausted.", "compute_node", node.String(), "error", err)
			return l.failJob(ev.job, cerrors.ErrWorkerUnavailable.GenWithStackByArgs(ev.job.ID).Error())
		}
		logger.Warn("Scheduler: Job not run, resubmitting.", "compute_node", node.String(), "error", err)
		return l.submit(ev.job, ev.attempt+1)
	}

	if reason := mismatch(ev.job, res); reason != "" {
		logger.Warn("Scheduler: Result does not answer the job.", "compute_node", ev.future.ComputeNode().String(), "reason", reason)
		metrics.JobOutcomes.WithLabelValues("invalid").Inc()
		return l.failJob(ev.job, fmt.Sprintf("compute node %s returned an invalid result for job %s: %s",
			ev.future.ComputeNode(), ev.job.ID, reason))
	}

	metrics.JobOutcomes.WithLabelValues("completed").Inc()
	if err := l.run.Sink.Record(res); err != nil {
		logger.Error("Scheduler: Inconsistent job result.", "error", err)
		return errors.Trace(err)
	}

	covered := make(map[depgraph.NodeID]bool, len(res.Items))
	for _, item := range res.Items {
		covered[item.Node] = true
		if l.states[item.Node] != Dispatched {
			continue
		}
		if item.Failed() {
			if err := l.failed(item.Node, *item.Failure); err != nil {
				return err
			}
			continue
		}
		if err := l.done(item.Node); err != nil {
			return err
		}
	}
	for _, it := range ev.job.Items {
		if !covered[it.Node] && l.states[it.Node] == Dispatched {
			msg := fmt.Sprintf("compute node %s returned no result for node %d", res.ComputeNode, it.Node)
			if err := l.fail(it.Node, calcjob.Failure{Reason: calcjob.WorkerUnavailable, Message: msg}); err != nil {
				return err
			}
		}
	}
	return nil
}

// mismatch reports why res is not a result of job, or "" when it is.
func mismatch(job *calcjob.Job, res *calcjob.Result) string {
	if res == nil {
		return "no result"
	}
	if res.JobID != job.ID {
		return fmt.Sprintf("result belongs to job %s", res.JobID)
	}
	for _, item := range res.Items {
		found := false
		for _, it := range job.Items {
			if it.Node == item.Node {
				found = true
				break
			}
		}
		if !found {
			return fmt.Sprintf("node %d is not part of the job", item.Node)
		}
	}
	return ""
}

func (l *loop) exclude(node value.ComputeNodeID) {
	for _, ex := range l.excluded {
		if ex == node {
			return
		}
	}
	l.excluded = append(l.excluded, node)
}

// abort fails every unresolved node with reason Cancelled and returns err.
func (l *loop) abort(err error) error {
	logger := ctxlog.FromContext(l.ctx)
	logger.Warn("Scheduler: Aborting cycle.", "error", err, "unresolved", len(l.states)-l.resolved)
	for i, st := range l.states {
		if st == Done || st == Failed {
			continue
		}
		f := calcjob.Failure{Reason: calcjob.Cancelled, Message: fmt.Sprintf("cycle %s was aborted", l.run.CycleID)}
		if sinkErr := l.run.Sink.Fail(depgraph.NodeID(i), f); sinkErr != nil {
			logger.Error("Scheduler: Could not record cancellation.", "node", i, "error", sinkErr)
		}
		l.states[i] = Failed
		l.resolved++
		metrics.NodeOutcomes.WithLabelValues("failed", calcjob.Cancelled.String()).Inc()
	}
	return err
}
