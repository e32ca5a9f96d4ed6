package builder

import (
	"fmt"

	"github.com/vk/viewgrid/internal/calcjob"
	"github.com/vk/viewgrid/internal/depgraph"
	"github.com/vk/viewgrid/internal/value"
)

// Values supplies resolved input values.
type Values interface {
	Value(spec value.Specification) (any, bool)
}

// Builder cuts jobs for one cycle. It is not safe for concurrent use; the
// scheduler's control loop owns it.
type Builder struct {
	graph      *depgraph.Graph
	cycleID    string
	maxJobSize int
	seq        int
}

// New creates a job builder for graph. A maxJobSize below one means one node
// per job.
func New(g *depgraph.Graph, cycleID string, maxJobSize int) *Builder {
	if maxJobSize < 1 {
		maxJobSize = 1
	}
	return &Builder{graph: g, cycleID: cycleID, maxJobSize: maxJobSize}
}

// Next cuts one job from the head of queue and returns it together with the
// remaining queue. It returns a nil job for an empty queue.
func (b *Builder) Next(queue []depgraph.NodeID, values Values) (*calcjob.Job, []depgraph.NodeID) {
	if len(queue) == 0 {
		return nil, queue
	}

	affinity := b.graph.Node(queue[0]).Affinity()
	var (
		picked []depgraph.NodeID
		rest   = make([]depgraph.NodeID, 0, len(queue))
	)
	for _, id := range queue {
		if len(picked) < b.maxJobSize && b.graph.Node(id).Affinity() == affinity {
			picked = append(picked, id)
			continue
		}
		rest = append(rest, id)
	}

	b.seq++
	job := &calcjob.Job{
		ID:       fmt.Sprintf("%s/%d", b.cycleID, b.seq),
		CycleID:  b.cycleID,
		Affinity: affinity,
		Items:    make([]calcjob.Item, len(picked)),
	}
	for i, id := range picked {
		job.Items[i] = b.item(id, values)
	}
	return job, rest
}

func (b *Builder) item(id depgraph.NodeID, values Values) calcjob.Item {
	n := b.graph.Node(id)
	inputs := make(map[value.Specification]any, len(n.Inputs))
	for _, spec := range n.Inputs {
		if v, ok := values.Value(spec); ok {
			inputs[spec] = v
		}
	}
	return calcjob.Item{
		Node:           id,
		FunctionID:     n.FunctionID,
		Target:         n.Target,
		Attributes:     n.Attributes,
		ResolvedInputs: inputs,
		Outputs:        n.Outputs,
	}
}

// Jobs returns the number of jobs cut so far.
func (b *Builder) Jobs() int {
	return b.seq
}
