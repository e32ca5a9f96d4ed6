// Package localexecutor provides a concrete, in-process implementation of the
// executor.WorkerPool interface. Each compute node is a goroutine with its
// own bounded queue; jobs run their items in order by calling the registry's
// invokers.
package localexecutor

import (
	"context"
	"fmt"
	"sync"
	"time"

	"github.com/benbjohnson/clock"
	"github.com/pingcap/errors"
	"github.com/vk/viewgrid/internal/calcjob"
	"github.com/vk/viewgrid/internal/ctxlog"
	cerrors "github.com/vk/viewgrid/internal/errors"
	"github.com/vk/viewgrid/internal/executor"
	"github.com/vk/viewgrid/internal/registry"
	"github.com/vk/viewgrid/internal/value"
	"golang.org/x/sync/errgroup"
)

// Config configures a Pool.
type Config struct {
	// Workers is the number of compute nodes.
	Workers int
	// QueueSize bounds the submissions waiting on one compute node.
	QueueSize int
	// Name prefixes compute node ids, "<name>-<n>".
	Name  string
	Clock clock.Clock
}

// Pool implements executor.WorkerPool.
type Pool struct {
	reg   *registry.Registry
	clock clock.Clock
	nodes []*computeNode

	mu          sync.Mutex
	outstanding map[string]struct{}
	next        int
	closed      bool

	ctx    context.Context
	cancel context.CancelFunc
	group  *errgroup.Group
}

type computeNode struct {
	id    value.ComputeNodeID
	queue chan *submission
}

type submission struct {
	ctx    context.Context
	job    *calcjob.Job
	future *executor.Future
	cancel context.CancelFunc
}

var _ executor.WorkerPool = (*Pool)(nil)

// New starts a pool. The workers stop when ctx is done or Close is called.
// The context's logger is used for worker diagnostics.
func New(ctx context.Context, reg *registry.Registry, cfg Config) *Pool {
	if cfg.Workers < 1 {
		cfg.Workers = 1
	}
	if cfg.QueueSize < 1 {
		cfg.QueueSize = 16
	}
	if cfg.Name == "" {
		cfg.Name = "local"
	}
	if cfg.Clock == nil {
		cfg.Clock = clock.New()
	}

	ctx, cancel := context.WithCancel(ctx)
	g, gctx := errgroup.WithContext(ctx)
	p := &Pool{
		reg:         reg,
		clock:       cfg.Clock,
		outstanding: make(map[string]struct{}),
		ctx:         gctx,
		cancel:      cancel,
		group:       g,
	}
	for i := 0; i < cfg.Workers; i++ {
		n := &computeNode{
			id:    value.NewComputeNodeID(fmt.Sprintf("%s-%d", cfg.Name, i+1)),
			queue: make(chan *submission, cfg.QueueSize),
		}
		p.nodes = append(p.nodes, n)
		g.Go(func() error {
			return p.work(gctx, n)
		})
	}
	ctxlog.FromContext(ctx).Debug("Local worker pool started.", "workers", cfg.Workers)
	return p
}

// ComputeNodes implements executor.WorkerPool.
func (p *Pool) ComputeNodes() []value.ComputeNodeID {
	out := make([]value.ComputeNodeID, len(p.nodes))
	for i, n := range p.nodes {
		out[i] = n.id
	}
	return out
}

// Submit implements executor.WorkerPool. Compute nodes are chosen round
// robin among the ones not excluded. Submit does not wait for queue space;
// a job refused by a full queue gets a future already completed with
// ErrComputeNodeBusy.
func (p *Pool) Submit(ctx context.Context, job *calcjob.Job, deadline time.Time, opts executor.SubmitOptions) (*executor.Future, error) {
	p.mu.Lock()
	if p.closed {
		p.mu.Unlock()
		return nil, cerrors.ErrPoolClosed.GenWithStackByArgs()
	}
	if _, dup := p.outstanding[job.ID]; dup {
		p.mu.Unlock()
		return nil, cerrors.ErrDuplicateJob.GenWithStackByArgs(job.ID)
	}
	var target *computeNode
	for i := 0; i < len(p.nodes); i++ {
		n := p.nodes[(p.next+i)%len(p.nodes)]
		if !opts.Excludes(n.id) {
			target = n
			p.next = (p.next + i + 1) % len(p.nodes)
			break
		}
	}
	if target == nil {
		p.mu.Unlock()
		return nil, cerrors.ErrWorkerUnavailable.GenWithStackByArgs(job.ID)
	}
	p.outstanding[job.ID] = struct{}{}
	p.mu.Unlock()

	jobCtx, cancel := context.WithCancel(ctx)
	s := &submission{ctx: jobCtx, job: job, future: executor.NewFuture(target.id), cancel: cancel}

	// A full queue completes the future at once.
	select {
	case target.queue <- s:
	default:
		ctxlog.FromContext(p.ctx).Debug("Compute node queue is full, job rejected.",
			"compute_node", target.id.String(), "job_id", job.ID)
		p.finish(s, &calcjob.Result{JobID: job.ID, ComputeNode: target.id},
			cerrors.ErrComputeNodeBusy.GenWithStackByArgs(target.id, job.ID))
		return s.future, nil
	}

	timer := p.clock.AfterFunc(deadline.Sub(p.clock.Now()), func() {
		p.finish(s, &calcjob.Result{JobID: job.ID, ComputeNode: target.id},
			cerrors.ErrJobTimedOut.GenWithStackByArgs(job.ID, target.id))
	})
	go func() {
		<-s.future.Done()
		timer.Stop()
	}()

	// The worker may have drained its queue and exited already.
	if p.ctx.Err() != nil {
		p.drain(target)
	}
	return s.future, nil
}

// finish completes a submission once and releases its job id.
func (p *Pool) finish(s *submission, res *calcjob.Result, err error) {
	if !s.future.Complete(res, err) {
		return
	}
	s.cancel()
	p.mu.Lock()
	delete(p.outstanding, s.job.ID)
	p.mu.Unlock()
}

func (p *Pool) work(ctx context.Context, n *computeNode) error {
	logger := ctxlog.FromContext(ctx).With("compute_node", n.id.String())
	logger.Debug("Worker started.")
	for {
		select {
		case <-ctx.Done():
			p.drain(n)
			logger.Debug("Worker stopped.")
			return nil
		case s := <-n.queue:
			if err := s.ctx.Err(); err != nil {
				p.finish(s, nil, errors.Trace(err))
				continue
			}
			res := p.run(ctxlog.WithLogger(s.ctx, logger.With("job_id", s.job.ID)), n.id, s.job)
			p.finish(s, res, nil)
		}
	}
}

func (p *Pool) drain(n *computeNode) {
	for {
		select {
		case s := <-n.queue:
			p.finish(s, nil, cerrors.ErrPoolClosed.GenWithStackByArgs())
		default:
			return
		}
	}
}

// run executes the items of a job in order.
func (p *Pool) run(ctx context.Context, node value.ComputeNodeID, job *calcjob.Job) *calcjob.Result {
	res := &calcjob.Result{JobID: job.ID, ComputeNode: node, Items: make([]calcjob.ResultItem, len(job.Items))}
	for i, it := range job.Items {
		res.Items[i] = p.runItem(ctx, it)
	}
	return res
}

func (p *Pool) runItem(ctx context.Context, it calcjob.Item) (item calcjob.ResultItem) {
	logger := ctxlog.FromContext(ctx)
	defer func() {
		if r := recover(); r != nil {
			logger.Error("Function panicked.", "function", it.FunctionID, "target", it.Target, "panic", r)
			item = calcjob.FailedItem(it.Node, calcjob.FunctionExecutionFailure, fmt.Sprintf("panic: %v", r))
		}
	}()

	inv, ok := p.reg.InvokerFor(it.FunctionID)
	if !ok {
		impl := ""
		if d, found := p.reg.Function(it.FunctionID); found {
			impl = d.Implementation
		}
		err := cerrors.ErrUnknownImplementation.GenWithStackByArgs(it.FunctionID, impl)
		return calcjob.FailedItem(it.Node, calcjob.FunctionExecutionFailure, err.Error())
	}

	out, err := inv.Invoke(ctx, &registry.Invocation{
		FunctionID: it.FunctionID,
		Target:     it.Target,
		Attributes: it.Attributes,
		Inputs:     it.ResolvedInputs,
		Outputs:    it.Outputs,
	})
	if err != nil {
		logger.Debug("Function failed.", "function", it.FunctionID, "target", it.Target, "error", err)
		wrapped := cerrors.ErrFunctionExecution.GenWithStackByArgs(it.FunctionID, it.Target, err)
		return calcjob.FailedItem(it.Node, calcjob.FunctionExecutionFailure, wrapped.Error())
	}

	values := make(map[value.Specification]any, len(it.Outputs))
	for _, spec := range it.Outputs {
		v, ok := out[spec.Name]
		if !ok {
			return calcjob.FailedItem(it.Node, calcjob.FunctionExecutionFailure,
				fmt.Sprintf("function %s did not produce %s", it.FunctionID, spec.Name))
		}
		values[spec] = v
	}
	return calcjob.Succeeded(it.Node, values)
}

// Close stops the workers. Queued submissions complete with ErrPoolClosed.
func (p *Pool) Close() error {
	p.mu.Lock()
	if p.closed {
		p.mu.Unlock()
		return nil
	}
	p.closed = true
	p.mu.Unlock()

	p.cancel()
	return p.group.Wait()
}
