// Package session defines the core interfaces for creating and managing a
// view session: one compiled dependency graph and the machinery that runs
// cycles over it. It abstracts away the details of local vs. remote
// execution.
package session

import (
	"context"

	"github.com/vk/viewgrid/internal/config"
	"github.com/vk/viewgrid/internal/depgraph"
	"github.com/vk/viewgrid/internal/marketdata"
	"github.com/vk/viewgrid/internal/registry"
	"github.com/vk/viewgrid/internal/viewcycle"
)

// SessionFactory creates a Session for a view. Different implementations can
// support various backends, such as local or distributed execution.
type SessionFactory interface {
	NewSession(ctx context.Context, view *config.View, reg *registry.Registry) (Session, error)
}

// Session is one compiled view.
type Session interface {
	// Graph returns the view's full dependency graph.
	Graph() *depgraph.Graph
	// Snapshot returns the market data the view was compiled against.
	Snapshot() *marketdata.Snapshot
	// RunFull executes the full graph against snap.
	RunFull(ctx context.Context, snap *marketdata.Snapshot) (*viewcycle.Cycle, error)
	// RunDelta executes a delta graph on top of prior.
	RunDelta(ctx context.Context, prior *viewcycle.Cycle, delta *depgraph.Graph, snap *marketdata.Snapshot) (*viewcycle.Cycle, error)
	// Close releases any resources held by the session. It accepts a context
	// to allow for graceful cleanup operations.
	Close(ctx context.Context) error
}
