package executor

import (
	"context"
	"sync"

	"github.com/vk/viewgrid/internal/calcjob"
	"github.com/vk/viewgrid/internal/value"
)

// Future is the pending result of one submission.
type Future struct {
	done chan struct{}
	once sync.Once

	node value.ComputeNodeID
	res  *calcjob.Result
	err  error
}

// NewFuture returns a future that will be completed for the given compute
// node.
func NewFuture(node value.ComputeNodeID) *Future {
	return &Future{done: make(chan struct{}), node: node}
}

// Complete resolves the future. Only the first call has an effect; it
// reports whether this call won.
func (f *Future) Complete(res *calcjob.Result, err error) bool {
	won := false
	f.once.Do(func() {
		f.res, f.err = res, err
		close(f.done)
		won = true
	})
	return won
}

// Done is closed once the future is complete.
func (f *Future) Done() <-chan struct{} {
	return f.done
}

// ComputeNode is the node the job was submitted to.
func (f *Future) ComputeNode() value.ComputeNodeID {
	return f.node
}

// Result returns the outcome. It must only be called after Done is closed.
func (f *Future) Result() (*calcjob.Result, error) {
	return f.res, f.err
}

// Wait blocks until the future completes or ctx is done.
func (f *Future) Wait(ctx context.Context) (*calcjob.Result, error) {
	select {
	case <-f.done:
		return f.res, f.err
	case <-ctx.Done():
		return nil, ctx.Err()
	}
}
