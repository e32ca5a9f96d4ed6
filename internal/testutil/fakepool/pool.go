// Package fakepool provides a scripted executor.WorkerPool for scheduler
// and session tests.
package fakepool

import (
	"context"
	"fmt"
	"sync"
	"time"

	"github.com/vk/viewgrid/internal/calcjob"
	"github.com/vk/viewgrid/internal/depgraph"
	cerrors "github.com/vk/viewgrid/internal/errors"
	"github.com/vk/viewgrid/internal/executor"
	"github.com/vk/viewgrid/internal/value"
)

// Submission is one accepted call to Submit.
type Submission struct {
	JobID string
	// Attempt counts earlier submissions of the same job id.
	Attempt     int
	ComputeNode value.ComputeNodeID
	Exclude     []value.ComputeNodeID
	Nodes       []depgraph.NodeID
}

// Outcome is what a script decides for one submission.
type Outcome struct {
	Result *calcjob.Result
	Err    error
	// TimedOut completes the future with ErrJobTimedOut.
	TimedOut bool
	// Busy completes the future with ErrComputeNodeBusy.
	Busy bool
	// Hold leaves the future pending until Release or Close.
	Hold bool
}

// Script decides the outcome of a submission.
type Script func(s Submission, job *calcjob.Job) Outcome

// Pool is a WorkerPool whose submissions complete synchronously, as the
// script says.
type Pool struct {
	script Script
	nodes  []value.ComputeNodeID

	mu          sync.Mutex
	next        int
	closed      bool
	outstanding map[string]*executor.Future
	held        map[string]*calcjob.Job
	peak        int
	attempts    map[string]int
	subs        []Submission
}

var _ executor.WorkerPool = (*Pool)(nil)

// New returns a pool with workers compute nodes named "fake-N". A nil script
// succeeds every item with Constant(1.0).
func New(workers int, script Script) *Pool {
	if script == nil {
		script = Constant(1.0)
	}
	p := &Pool{
		script:      script,
		outstanding: make(map[string]*executor.Future),
		held:        make(map[string]*calcjob.Job),
		attempts:    make(map[string]int),
	}
	for i := 0; i < workers; i++ {
		p.nodes = append(p.nodes, value.NewComputeNodeID(fmt.Sprintf("fake-%d", i+1)))
	}
	return p
}

// Submit implements executor.WorkerPool.
func (p *Pool) Submit(_ context.Context, job *calcjob.Job, _ time.Time, opts executor.SubmitOptions) (*executor.Future, error) {
	p.mu.Lock()
	if p.closed {
		p.mu.Unlock()
		return nil, cerrors.ErrPoolClosed.GenWithStackByArgs()
	}
	if _, dup := p.outstanding[job.ID]; dup {
		p.mu.Unlock()
		return nil, cerrors.ErrDuplicateJob.GenWithStackByArgs(job.ID)
	}
	var node value.ComputeNodeID
	for i := 0; i < len(p.nodes); i++ {
		n := p.nodes[(p.next+i)%len(p.nodes)]
		if !opts.Excludes(n) {
			node = n
			p.next = (p.next + i + 1) % len(p.nodes)
			break
		}
	}
	if node.IsZero() {
		p.mu.Unlock()
		return nil, cerrors.ErrWorkerUnavailable.GenWithStackByArgs(job.ID)
	}
	s := Submission{
		JobID:       job.ID,
		Attempt:     p.attempts[job.ID],
		ComputeNode: node,
		Exclude:     append([]value.ComputeNodeID(nil), opts.Exclude...),
		Nodes:       job.Nodes(),
	}
	p.attempts[job.ID]++
	p.subs = append(p.subs, s)
	future := executor.NewFuture(node)
	p.outstanding[job.ID] = future
	p.peak = max(p.peak, len(p.outstanding))
	p.mu.Unlock()

	out := p.script(s, job)
	switch {
	case out.Hold:
		p.mu.Lock()
		p.held[job.ID] = job
		p.mu.Unlock()
		return future, nil
	case out.Busy:
		p.complete(job.ID, future, &calcjob.Result{JobID: job.ID, ComputeNode: node},
			cerrors.ErrComputeNodeBusy.GenWithStackByArgs(node, job.ID))
	case out.TimedOut:
		p.complete(job.ID, future, &calcjob.Result{JobID: job.ID, ComputeNode: node},
			cerrors.ErrJobTimedOut.GenWithStackByArgs(job.ID, node))
	default:
		if out.Result != nil && out.Result.ComputeNode.IsZero() {
			out.Result.ComputeNode = node
		}
		p.complete(job.ID, future, out.Result, out.Err)
	}
	return future, nil
}

func (p *Pool) complete(id string, f *executor.Future, res *calcjob.Result, err error) {
	p.mu.Lock()
	delete(p.outstanding, id)
	p.mu.Unlock()
	f.Complete(res, err)
}

// ComputeNodes implements executor.WorkerPool.
func (p *Pool) ComputeNodes() []value.ComputeNodeID {
	return append([]value.ComputeNodeID(nil), p.nodes...)
}

// Close completes held futures with ErrPoolClosed.
func (p *Pool) Close() error {
	p.mu.Lock()
	p.closed = true
	held := p.outstanding
	p.outstanding = make(map[string]*executor.Future)
	p.held = make(map[string]*calcjob.Job)
	p.mu.Unlock()
	for _, f := range held {
		f.Complete(nil, cerrors.ErrPoolClosed.GenWithStackByArgs())
	}
	return nil
}

// Release completes every held submission, succeeding each item with v.
// It returns the number of released submissions.
func (p *Pool) Release(v any) int {
	p.mu.Lock()
	type release struct {
		future *executor.Future
		job    *calcjob.Job
	}
	var todo []release
	for id, job := range p.held {
		todo = append(todo, release{future: p.outstanding[id], job: job})
		delete(p.outstanding, id)
	}
	p.held = make(map[string]*calcjob.Job)
	p.mu.Unlock()

	for _, r := range todo {
		res := Succeed(r.job, func(calcjob.Item) any { return v })
		res.ComputeNode = r.future.ComputeNode()
		r.future.Complete(res, nil)
	}
	return len(todo)
}

// Outstanding returns the number of submissions whose future is not
// completed yet.
func (p *Pool) Outstanding() int {
	p.mu.Lock()
	defer p.mu.Unlock()
	return len(p.outstanding)
}

// Peak returns the highest number of outstanding submissions seen.
func (p *Pool) Peak() int {
	p.mu.Lock()
	defer p.mu.Unlock()
	return p.peak
}

// Submissions returns the accepted submissions in order.
func (p *Pool) Submissions() []Submission {
	p.mu.Lock()
	defer p.mu.Unlock()
	return append([]Submission(nil), p.subs...)
}

// Constant succeeds every item with v for each of its outputs.
func Constant(v any) Script {
	return func(_ Submission, job *calcjob.Job) Outcome {
		return Outcome{Result: Succeed(job, func(calcjob.Item) any { return v })}
	}
}

// Succeed builds a successful result for every item of job.
func Succeed(job *calcjob.Job, fn func(calcjob.Item) any) *calcjob.Result {
	res := &calcjob.Result{JobID: job.ID}
	for _, it := range job.Items {
		values := make(map[value.Specification]any, len(it.Outputs))
		for _, spec := range it.Outputs {
			values[spec] = fn(it)
		}
		res.Items = append(res.Items, calcjob.Succeeded(it.Node, values))
	}
	return res
}
