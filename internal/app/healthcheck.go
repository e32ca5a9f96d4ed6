package app

import (
	"context"
	"fmt"
	"net"
	"time"

	"github.com/gofiber/fiber/v3"
	"github.com/gofiber/fiber/v3/middleware/adaptor"
	"github.com/pingcap/errors"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"github.com/vk/viewgrid/internal/ctxlog"
)

// newHealthServer builds the health and metrics endpoints.
func (a *App) newHealthServer(ctx context.Context) *fiber.App {
	logger := ctxlog.FromContext(ctx)
	srv := fiber.New()
	srv.Get("/health", func(c fiber.Ctx) error {
		logger.Debug("Health check endpoint hit.", "remote_addr", c.IP(), "path", c.Path())
		return c.SendString("OK")
	})
	srv.Get("/metrics", adaptor.HTTPHandler(promhttp.HandlerFor(a.metrics, promhttp.HandlerOpts{})))
	return srv
}

// serveHealth serves the health server on port until ctx is done.
func (a *App) serveHealth(ctx context.Context, port int) error {
	logger := ctxlog.FromContext(ctx)
	addr := fmt.Sprintf(":%d", port)
	ln, err := net.Listen("tcp", addr)
	if err != nil {
		return errors.Annotatef(err, "health check server on %s", addr)
	}

	srv := a.newHealthServer(ctx)
	go func() {
		<-ctx.Done()
		logger.Info("Shutting down health check server.")
		if err := srv.ShutdownWithTimeout(5 * time.Second); err != nil {
			logger.Error("Health check server shutdown failed.", "error", err)
		}
		_ = ln.Close()
	}()

	logger.Info("Health check server starting.", "address", fmt.Sprintf("http://localhost%s/health", addr))
	if err := srv.Listener(ln, fiber.ListenConfig{DisableStartupMessage: true}); err != nil && ctx.Err() == nil {
		return errors.Annotate(err, "health check server failed")
	}
	logger.Debug("Health check server shut down gracefully.")
	return nil
}
