package app

import (
	"context"
	"io"
	"log/slog"

	"github.com/pingcap/errors"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/vk/viewgrid/internal/config"
	"github.com/vk/viewgrid/internal/ctxlog"
	cerrors "github.com/vk/viewgrid/internal/errors"
	"github.com/vk/viewgrid/internal/live"
	"github.com/vk/viewgrid/internal/localsession"
	"github.com/vk/viewgrid/internal/marketdata"
	"github.com/vk/viewgrid/internal/marketdata/socketio"
	"github.com/vk/viewgrid/internal/metrics"
	"github.com/vk/viewgrid/internal/observability"
	"github.com/vk/viewgrid/internal/registry"
	"github.com/vk/viewgrid/internal/session"
	"github.com/vk/viewgrid/internal/viewcycle"
	"golang.org/x/sync/errgroup"
)

// App encapsulates the application's dependencies, configuration, and lifecycle.
type App struct {
	outW    io.Writer
	logger  *slog.Logger
	config  *Config
	loader  config.Loader
	modules []registry.Module
	metrics *prometheus.Registry
	source  marketdata.Source
}

// NewApp is the constructor for the main application. Results are written
// to outW and logs to logW. Without modules the core modules are used.
func NewApp(outW, logW io.Writer, cfg *Config, loader config.Loader, modules ...registry.Module) *App {
	logger := newLogger(cfg.LogLevel, cfg.LogFormat, logW)
	logger.Debug("Logger configured successfully.")

	if len(modules) == 0 {
		modules = coreModules
	}
	reg := prometheus.NewRegistry()
	metrics.InitMetrics(reg)

	return &App{
		outW:    outW,
		logger:  logger,
		config:  cfg,
		loader:  loader,
		modules: modules,
		metrics: reg,
	}
}

// SetSource replaces the socket.io feed of live mode.
func (a *App) SetSource(src marketdata.Source) {
	a.source = src
}

// Run compiles the view, runs one full cycle and prints its results. It
// fails when any value of the cycle failed.
func (a *App) Run(ctx context.Context) error {
	return a.serve(ctx, func(ctx context.Context) error {
		sess, err := a.open(ctx)
		if err != nil {
			return err
		}
		defer a.close(ctx, sess)

		c, err := a.runFull(ctx, sess)
		if err != nil {
			return err
		}
		if n := len(c.Failures()); n > 0 {
			return errors.Errorf("%d values failed in cycle %s", n, c.ID())
		}
		return nil
	})
}

// Live runs a full cycle and then keeps it current from the market-data
// feed until ctx is done. Every published cycle is printed.
func (a *App) Live(ctx context.Context) error {
	src, err := a.feed()
	if err != nil {
		return err
	}
	return a.serve(ctx, func(ctx context.Context) error {
		sess, err := a.open(ctx)
		if err != nil {
			return err
		}
		defer a.close(ctx, sess)

		initial, err := a.runFull(ctx, sess)
		if err != nil {
			return err
		}
		ctrl := live.New(sess, initial, sess.Snapshot())
		ctrl.OnCycle(func(_ context.Context, c *viewcycle.Cycle) {
			printCycle(a.outW, c)
		})
		return ctrl.Run(ctx, src)
	})
}

// Graph compiles the view and prints its dependency graph in execution
// order. Nothing is executed.
func (a *App) Graph(ctx context.Context) error {
	ctx = ctxlog.WithLogger(ctx, a.logger)
	sess, err := a.open(ctx)
	if err != nil {
		return err
	}
	defer a.close(ctx, sess)
	printGraph(a.outW, sess.Graph())
	return nil
}

func (a *App) feed() (marketdata.Source, error) {
	if a.source != nil {
		return a.source, nil
	}
	if a.config.Feed.URL == "" {
		return nil, cerrors.ErrInvalidConfig.GenWithStackByArgs("live mode needs feed.url")
	}
	return socketio.New(socketio.Config{URL: a.config.Feed.URL, Namespace: a.config.Feed.Namespace}), nil
}

// open loads the view and creates a session over a fresh registry.
func (a *App) open(ctx context.Context) (session.Session, error) {
	logger := ctxlog.FromContext(ctx)
	view, err := a.loader.Load(ctx, a.config.ViewPath)
	if err != nil {
		return nil, err
	}
	logger.Debug("View loaded.", "path", a.config.ViewPath, "targets", len(view.Targets), "functions", len(view.Functions))

	reg := registry.New()
	for _, mod := range a.modules {
		mod.Register(reg)
	}
	logger.Debug("All Go modules registered.", "count", len(a.modules))

	factory := &localsession.SessionFactory{Workers: a.config.Workers, Scheduler: a.config.SchedulerConfig()}
	return factory.NewSession(ctx, view, reg)
}

func (a *App) close(ctx context.Context, sess session.Session) {
	if err := sess.Close(ctx); err != nil {
		ctxlog.FromContext(ctx).Error("Session close failed.", "error", err)
	}
}

func (a *App) runFull(ctx context.Context, sess session.Session) (*viewcycle.Cycle, error) {
	c, err := sess.RunFull(ctx, sess.Snapshot())
	if c != nil {
		printCycle(a.outW, c)
	}
	if err != nil {
		return nil, errors.Annotate(err, "full cycle")
	}
	ctxlog.FromContext(ctx).Info("Full cycle finished.", "cycle_id", c.ID(), "nodes", c.Metadata().Nodes,
		"failures", len(c.Failures()))
	return c, nil
}

// serve runs fn with tracing set up and, when a port is configured, the
// health server next to it. The server stops once fn returns.
func (a *App) serve(ctx context.Context, fn func(ctx context.Context) error) error {
	ctx = ctxlog.WithLogger(ctx, a.logger)
	tp, err := observability.InitTracing(ctx, &observability.TracingConfig{
		ServiceName:    "viewgrid",
		ServiceVersion: "dev",
		OTLPEndpoint:   a.config.OTLPEndpoint,
		Insecure:       true,
		SampleRate:     1,
	})
	if err != nil {
		return err
	}
	defer func() {
		if err := tp.Shutdown(context.WithoutCancel(ctx)); err != nil {
			a.logger.Warn("Tracer shutdown failed.", "error", err)
		}
	}()

	g, gctx := errgroup.WithContext(ctx)
	runCtx, stop := context.WithCancel(gctx)
	defer stop()
	if a.config.HealthcheckPort > 0 {
		g.Go(func() error { return a.serveHealth(runCtx, a.config.HealthcheckPort) })
	}
	g.Go(func() error {
		defer stop()
		return fn(runCtx)
	})
	return g.Wait()
}
