// Package live keeps a view's results current as market data changes.
//
// The Controller consumes a market-data Source. Every change is applied to
// the current snapshot, the affected part of the latest cycle's graph is
// invalidated, and a delta cycle recomputes only that part on top of the
// latest cycle. At most one delta cycle is in flight; changes arriving in
// the meantime are merged into the next one.
package live

import (
	"context"
	"sort"
	"sync"

	"github.com/pingcap/errors"
	"github.com/vk/viewgrid/internal/ctxlog"
	"github.com/vk/viewgrid/internal/depgraph"
	"github.com/vk/viewgrid/internal/marketdata"
	"github.com/vk/viewgrid/internal/metrics"
	"github.com/vk/viewgrid/internal/value"
	"github.com/vk/viewgrid/internal/viewcycle"
)

// Runner executes a delta graph on top of a prior cycle.
type Runner interface {
	RunDelta(ctx context.Context, prior *viewcycle.Cycle, delta *depgraph.Graph, snap *marketdata.Snapshot) (*viewcycle.Cycle, error)
}

// Listener is called with every published cycle, from the controller's
// loop. It must not block for long.
type Listener func(ctx context.Context, c *viewcycle.Cycle)

// Controller publishes a new cycle for every batch of market-data changes.
type Controller struct {
	runner Runner

	mu        sync.RWMutex
	latest    *viewcycle.Cycle
	snapshot  *marketdata.Snapshot
	listeners []Listener
}

// New creates a controller whose latest cycle is initial, computed from
// snap.
func New(runner Runner, initial *viewcycle.Cycle, snap *marketdata.Snapshot) *Controller {
	return &Controller{runner: runner, latest: initial, snapshot: snap}
}

// OnCycle registers a listener for published cycles.
func (c *Controller) OnCycle(l Listener) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.listeners = append(c.listeners, l)
}

// Latest returns the most recently published cycle.
func (c *Controller) Latest() *viewcycle.Cycle {
	c.mu.RLock()
	defer c.mu.RUnlock()
	return c.latest
}

// Snapshot returns the current market-data snapshot. It may be newer than
// the snapshot of the latest cycle.
func (c *Controller) Snapshot() *marketdata.Snapshot {
	c.mu.RLock()
	defer c.mu.RUnlock()
	return c.snapshot
}

type deltaResult struct {
	cycle   *viewcycle.Cycle
	err     error
	changed []value.Specification
}

// Run subscribes to the leaves of the latest cycle's graph and recomputes
// until ctx is done or the source ends. An in-flight delta cycle is waited
// for before Run returns.
func (c *Controller) Run(ctx context.Context, src marketdata.Source) error {
	logger := ctxlog.FromContext(ctx)
	leaves := c.Latest().Graph().MarketDataLeaves()
	updates, err := src.Subscribe(ctx, leaves)
	if err != nil {
		return errors.Annotate(err, "subscribing to market data")
	}
	logger.Info("Live recomputation started.", "leaves", len(leaves), "cycle_id", c.Latest().ID())

	pending := make(map[value.Specification]struct{})
	var inflight chan deltaResult
	for {
		if updates == nil && inflight == nil {
			logger.Info("Market data source ended, live recomputation stopped.")
			return nil
		}
		select {
		case <-ctx.Done():
			if inflight != nil {
				c.finish(ctx, <-inflight, pending)
			}
			logger.Info("Live recomputation stopped.")
			return nil

		case u, ok := <-updates:
			if !ok {
				updates = nil
				continue
			}
			changed := c.apply(u)
			if len(changed) == 0 {
				continue
			}
			if inflight != nil && len(pending) > 0 {
				metrics.CoalescedNotifications.Inc()
			}
			for _, spec := range changed {
				pending[spec] = struct{}{}
			}
			if inflight == nil {
				inflight = c.launch(ctx, pending)
			}

		case res := <-inflight:
			inflight = nil
			if c.finish(ctx, res, pending) {
				inflight = c.launch(ctx, pending)
			}
		}
	}
}

func (c *Controller) apply(u marketdata.Update) []value.Specification {
	c.mu.Lock()
	defer c.mu.Unlock()
	next, changed := c.snapshot.Apply([]marketdata.Update{u})
	c.snapshot = next
	return changed
}

// launch starts a delta cycle for the pending changes and empties the set.
// It returns nil when the changes affect no node.
func (c *Controller) launch(ctx context.Context, pending map[value.Specification]struct{}) chan deltaResult {
	logger := ctxlog.FromContext(ctx)
	changed := make([]value.Specification, 0, len(pending))
	for spec := range pending {
		changed = append(changed, spec)
		delete(pending, spec)
	}
	sort.Slice(changed, func(i, j int) bool { return changed[i].String() < changed[j].String() })

	prior, snap := c.Latest(), c.Snapshot()
	invalidated := prior.Graph().Invalidate(changed)
	if len(invalidated) == 0 {
		logger.Debug("Market data change affects no node.", "changed", len(changed))
		return nil
	}
	delta := prior.Graph().Delta(invalidated)
	logger.Debug("Starting delta cycle.", "prior_cycle_id", prior.ID(), "changed", len(changed),
		"invalidated", len(invalidated), "nodes", delta.Len(), "snapshot_version", snap.Version())

	ch := make(chan deltaResult, 1)
	go func() {
		cycle, err := c.runner.RunDelta(ctx, prior, delta, snap)
		ch <- deltaResult{cycle: cycle, err: err, changed: changed}
	}()
	return ch
}

// finish publishes a completed delta cycle. The changes of a failed cycle
// go back into pending. It reports whether another delta cycle is due.
func (c *Controller) finish(ctx context.Context, res deltaResult, pending map[value.Specification]struct{}) bool {
	logger := ctxlog.FromContext(ctx)
	if res.err != nil {
		due := len(pending) > 0
		for _, spec := range res.changed {
			pending[spec] = struct{}{}
		}
		logger.Warn("Delta cycle failed, changes are kept for the next cycle.", "error", res.err, "changed", len(res.changed))
		return due
	}

	c.mu.Lock()
	c.latest = res.cycle
	listeners := append([]Listener(nil), c.listeners...)
	c.mu.Unlock()

	meta := res.cycle.Metadata()
	logger.Info("Delta cycle published.", "cycle_id", meta.ID, "prior_cycle_id", meta.PriorID,
		"nodes", meta.Nodes, "failures", len(res.cycle.Failures()), "duration", meta.End.Sub(meta.Start))
	for _, l := range listeners {
		l(ctx, res.cycle)
	}
	return len(pending) > 0
}
