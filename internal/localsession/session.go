// Package localsession provides a concrete implementation of the session.Session
// and session.SessionFactory interfaces for local, in-process execution.
package localsession

import (
	"context"

	"github.com/benbjohnson/clock"
	"github.com/google/uuid"
	"github.com/pingcap/errors"
	"github.com/vk/viewgrid/internal/config"
	"github.com/vk/viewgrid/internal/ctxlog"
	"github.com/vk/viewgrid/internal/depgraph"
	"github.com/vk/viewgrid/internal/localexecutor"
	"github.com/vk/viewgrid/internal/marketdata"
	"github.com/vk/viewgrid/internal/metrics"
	"github.com/vk/viewgrid/internal/registry"
	"github.com/vk/viewgrid/internal/scheduler"
	"github.com/vk/viewgrid/internal/session"
	"github.com/vk/viewgrid/internal/value"
	"github.com/vk/viewgrid/internal/viewcycle"
)

// SessionFactory implements session.SessionFactory for local runs.
type SessionFactory struct {
	Workers   int
	Scheduler scheduler.Config
}

var _ session.SessionFactory = (*SessionFactory)(nil)

// NewSession registers the view's functions, validates the registry and
// compiles the view.
func (f *SessionFactory) NewSession(ctx context.Context, view *config.View, reg *registry.Registry) (session.Session, error) {
	logger := ctxlog.FromContext(ctx)
	for _, fn := range view.Functions {
		if err := reg.Register(fn.Descriptor()); err != nil {
			return nil, errors.Trace(err)
		}
	}
	if err := reg.ValidateRegistry(ctx); err != nil {
		return nil, err
	}
	logger.Debug("Registry validation passed.", "functions", len(reg.Functions()))

	return New(ctx, Options{
		Registry:     reg,
		Targets:      view.Targets,
		Requirements: view.Requirements,
		MarketData:   marketdata.NewSnapshot(view.MarketData),
		Workers:      f.Workers,
		Scheduler:    f.Scheduler,
	})
}

// Options are the parts of a local session.
type Options struct {
	Registry     *registry.Registry
	Targets      value.TargetResolver
	Requirements []value.Requirement
	MarketData   *marketdata.Snapshot
	Workers      int
	Scheduler    scheduler.Config
	Clock        clock.Clock
}

// Session implements session.Session for local runs.
type Session struct {
	graph     *depgraph.Graph
	snapshot  *marketdata.Snapshot
	pool      *localexecutor.Pool
	scheduler *scheduler.Scheduler
	clock     clock.Clock
}

var _ session.Session = (*Session)(nil)

// New compiles the requirements into a graph and starts a local worker
// pool. Graph construction errors are returned before any worker starts.
func New(ctx context.Context, opts Options) (*Session, error) {
	logger := ctxlog.FromContext(ctx)
	if opts.Clock == nil {
		opts.Clock = clock.New()
	}
	if opts.MarketData == nil {
		opts.MarketData = marketdata.NewSnapshot(nil)
	}

	g, err := depgraph.NewBuilder(opts.Registry, opts.Targets).Build(ctx, opts.Requirements, opts.MarketData)
	if err != nil {
		return nil, err
	}
	logger.Info("View compiled.", "requirements", len(opts.Requirements), "nodes", g.Len(),
		"market_data_leaves", len(g.MarketDataLeaves()))

	pool := localexecutor.New(ctx, opts.Registry, localexecutor.Config{Workers: opts.Workers, Clock: opts.Clock})
	cfg := opts.Scheduler
	if cfg.Clock == nil {
		cfg.Clock = opts.Clock
	}
	return &Session{
		graph:     g,
		snapshot:  opts.MarketData,
		pool:      pool,
		scheduler: scheduler.New(pool, cfg),
		clock:     opts.Clock,
	}, nil
}

// Graph implements session.Session.
func (s *Session) Graph() *depgraph.Graph {
	return s.graph
}

// Snapshot implements session.Session.
func (s *Session) Snapshot() *marketdata.Snapshot {
	return s.snapshot
}

// RunFull implements session.Session. When the run fails the partially
// resolved cycle is returned alongside the error.
func (s *Session) RunFull(ctx context.Context, snap *marketdata.Snapshot) (*viewcycle.Cycle, error) {
	meta := viewcycle.Metadata{ID: uuid.NewString(), SnapshotVersion: snap.Version()}
	agg := viewcycle.NewAggregator(meta, s.graph, s.clock)
	return s.run(ctx, viewcycle.Full, s.graph, snap, nil, agg)
}

// RunDelta implements session.Session.
func (s *Session) RunDelta(ctx context.Context, prior *viewcycle.Cycle, delta *depgraph.Graph, snap *marketdata.Snapshot) (*viewcycle.Cycle, error) {
	meta := viewcycle.Metadata{ID: uuid.NewString(), SnapshotVersion: snap.Version()}
	agg := viewcycle.NewDeltaAggregator(meta, delta, prior, s.clock)
	return s.run(ctx, viewcycle.Delta, delta, snap, prior, agg)
}

func (s *Session) run(ctx context.Context, kind viewcycle.Kind, g *depgraph.Graph, snap *marketdata.Snapshot, prior *viewcycle.Cycle, agg *viewcycle.Aggregator) (*viewcycle.Cycle, error) {
	run := scheduler.Run{
		CycleID:  agg.ID(),
		Kind:     string(kind),
		Graph:    g,
		Snapshot: snap,
		Sink:     agg,
	}
	if prior != nil {
		run.Prior = prior
	}

	start := s.clock.Now()
	report, err := s.scheduler.Execute(ctx, run)
	metrics.CycleDuration.WithLabelValues(string(kind)).Observe(s.clock.Since(start).Seconds())
	metrics.CycleNodes.WithLabelValues(string(kind)).Observe(float64(g.Len()))

	cycle, ferr := agg.Finalize()
	if ferr != nil {
		return nil, errors.Trace(ferr)
	}
	if err != nil {
		return cycle, err
	}
	ctxlog.FromContext(ctx).Debug("Cycle finished.", "cycle_id", cycle.ID(), "kind", kind,
		"done", report.Done, "failed", report.Failed, "jobs", report.Jobs, "retries", report.Retries)
	return cycle, nil
}

// Close stops the worker pool.
func (s *Session) Close(ctx context.Context) error {
	logger := ctxlog.FromContext(ctx)
	logger.Debug("Closing local session.")
	return s.pool.Close()
}
