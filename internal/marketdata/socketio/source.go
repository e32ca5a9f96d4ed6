// Package socketio is a live market-data Source backed by a socket.io feed.
//
// After connecting, the source emits a subscribe event listing the leaves it
// wants, then turns every tick event into a marketdata.Update.
package socketio

import (
	"context"
	"crypto/tls"
	"fmt"
	"net/url"
	"sync"
	"time"

	"github.com/vk/viewgrid/internal/ctxlog"
	"github.com/vk/viewgrid/internal/marketdata"
	"github.com/vk/viewgrid/internal/value"
	"github.com/zishang520/engine.io-client-go/transports"
	"github.com/zishang520/engine.io/v2/types"
	"github.com/zishang520/socket.io-client-go/socket"
)

// Config is the connection configuration of a feed.
type Config struct {
	URL                string
	Namespace          string
	SubscribeEvent     string
	TickEvent          string
	ConnectTimeout     time.Duration
	InsecureSkipVerify bool
}

func (c Config) withDefaults() Config {
	if c.Namespace == "" {
		c.Namespace = "/"
	}
	if c.SubscribeEvent == "" {
		c.SubscribeEvent = "subscribe"
	}
	if c.TickEvent == "" {
		c.TickEvent = "tick"
	}
	if c.ConnectTimeout <= 0 {
		c.ConnectTimeout = 15 * time.Second
	}
	return c
}

// Source implements marketdata.Source.
type Source struct {
	cfg Config
}

// New creates a source. Nothing is dialed until Subscribe.
func New(cfg Config) *Source {
	return &Source{cfg: cfg.withDefaults()}
}

// Subscribe connects to the feed and streams ticks for leaves until ctx is
// done.
func (s *Source) Subscribe(ctx context.Context, leaves []value.Specification) (<-chan marketdata.Update, error) {
	logger := ctxlog.FromContext(ctx).With("feed", s.cfg.URL, "namespace", s.cfg.Namespace)

	io, err := s.connect(ctx)
	if err != nil {
		return nil, err
	}

	out := make(chan marketdata.Update, 64)
	var (
		mu     sync.Mutex
		closed bool
	)

	io.On(types.EventName(s.cfg.TickEvent), func(data ...any) {
		for _, d := range data {
			u, err := DecodeTick(d)
			if err != nil {
				logger.Warn("Dropping malformed tick.", "error", err)
				continue
			}
			mu.Lock()
			if !closed {
				select {
				case out <- u:
				case <-ctx.Done():
				}
			}
			mu.Unlock()
		}
	})

	io.Emit(s.cfg.SubscribeEvent, EncodeSubscription(leaves))
	logger.Info("Subscribed to market data feed.", "sid", io.Id(), "leaves", len(leaves))

	go func() {
		<-ctx.Done()
		io.Disconnect()
		mu.Lock()
		closed = true
		close(out)
		mu.Unlock()
		logger.Info("Market data feed disconnected.")
	}()
	return out, nil
}

func (s *Source) connect(ctx context.Context) (*socket.Socket, error) {
	logger := ctxlog.FromContext(ctx)

	parsedURL, err := url.Parse(s.cfg.URL)
	if err != nil {
		return nil, fmt.Errorf("failed to parse feed URL: %w", err)
	}

	opts := socket.DefaultOptions()
	opts.SetPath(parsedURL.Path)
	if s.cfg.InsecureSkipVerify {
		logger.Warn("Skipping TLS certificate verification")
		opts.SetTLSClientConfig(&tls.Config{InsecureSkipVerify: true})
	}
	opts.SetTransports(types.NewSet(transports.WebSocket))

	connectChan := make(chan error, 1)
	baseURL := fmt.Sprintf("%s://%s", parsedURL.Scheme, parsedURL.Host)
	manager := socket.NewManager(baseURL, opts)
	io := manager.Socket(s.cfg.Namespace, opts)

	io.Once(types.EventName("connect"), func(...any) {
		connectChan <- nil
	})
	io.Once(types.EventName("connect_error"), func(errs ...any) {
		err, ok := errs[0].(error)
		if !ok {
			err = fmt.Errorf("%v", errs[0])
		}
		connectChan <- err
	})

	io.Connect()

	timer := time.NewTimer(s.cfg.ConnectTimeout)
	defer timer.Stop()
	select {
	case err := <-connectChan:
		if err != nil {
			io.Disconnect()
			return nil, fmt.Errorf("socket.io connection failed: %w", err)
		}
		logger.Debug("Connected to market data feed.", "sid", io.Id())
		return io, nil
	case <-ctx.Done():
		io.Disconnect()
		return nil, fmt.Errorf("context cancelled while waiting for socket.io connection")
	case <-timer.C:
		io.Disconnect()
		return nil, fmt.Errorf("timed out after %s waiting for socket.io connection", s.cfg.ConnectTimeout)
	}
}
