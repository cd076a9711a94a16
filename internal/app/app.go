// Package app wires the Nexa subsystems into a running application.
//
// The App struct owns the full lifecycle: New builds the session controller
// from already-constructed collaborators, Run serves the control API and
// optionally connects, and Shutdown tears everything down in order.
//
// For testing, pass mock providers and devices in [Deps] and inject metric
// instruments via functional options.
package app

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"net/http"
	"sync"
	"time"

	"golang.org/x/sync/errgroup"

	"github.com/webnexifystudio/nexa/internal/config"
	"github.com/webnexifystudio/nexa/internal/health"
	"github.com/webnexifystudio/nexa/internal/observe"
	"github.com/webnexifystudio/nexa/internal/session"
	"github.com/webnexifystudio/nexa/pkg/audio"
	"github.com/webnexifystudio/nexa/pkg/provider/s2s"
)

// shutdownTimeout bounds the HTTP server drain on shutdown.
const shutdownTimeout = 5 * time.Second

// Deps holds the collaborators built by main.go via the config registry.
type Deps struct {
	Provider s2s.Provider
	Devices  config.Devices

	// DevicesReady reports whether the device backend can open hardware.
	// Nil means always ready.
	DevicesReady func(ctx context.Context) error
}

// App owns all subsystem lifetimes.
type App struct {
	cfg     *config.Config
	deps    Deps
	logger  *slog.Logger
	metrics *observe.Metrics

	controller     *session.Controller
	handler        http.Handler
	metricsHandler http.Handler

	// closers are called in order during Shutdown.
	closers []func() error

	// stopOnce guards the Shutdown path.
	stopOnce sync.Once
}

// Option is a functional option for New.
type Option func(*App)

// WithLogger sets the logger. Default: [slog.Default].
func WithLogger(l *slog.Logger) Option {
	return func(a *App) { a.logger = l }
}

// WithMetrics injects metric instruments instead of [observe.DefaultMetrics].
func WithMetrics(m *observe.Metrics) Option {
	return func(a *App) { a.metrics = m }
}

// WithMetricsHandler mounts h at /metrics.
func WithMetricsHandler(h http.Handler) Option {
	return func(a *App) { a.metricsHandler = h }
}

// WithCloser registers fn to run during Shutdown after the session has been
// disconnected.
func WithCloser(fn func() error) Option {
	return func(a *App) { a.closers = append(a.closers, fn) }
}

// ─── New ─────────────────────────────────────────────────────────────────────

// New creates an App from cfg and deps. It does not touch any device or
// network resource; that happens on Connect.
func New(cfg *config.Config, deps Deps, opts ...Option) (*App, error) {
	if cfg == nil {
		return nil, errors.New("app: nil config")
	}
	if deps.Provider == nil {
		return nil, errors.New("app: no speech provider")
	}
	if deps.Devices.Microphone == nil || deps.Devices.Speaker == nil {
		return nil, errors.New("app: no audio devices")
	}

	a := &App{
		cfg:     cfg,
		deps:    deps,
		logger:  slog.Default(),
		metrics: observe.DefaultMetrics(),
	}
	for _, o := range opts {
		o(a)
	}

	a.controller = session.New(session.Config{
		Provider:     deps.Provider,
		ProviderName: cfg.Provider.Name,
		Microphone:   deps.Devices.Microphone,
		Speaker:      deps.Devices.Speaker,
		Session: s2s.SessionConfig{
			Modality:     modality(cfg.Agent.Modality),
			Instructions: cfg.Agent.Instructions,
			Voice:        cfg.Agent.Voice,
		},
		InputFormat:      audio.Format{SampleRate: cfg.Audio.InputSampleRate, Channels: 1},
		OutputFormat:     audio.Format{SampleRate: cfg.Audio.OutputSampleRate, Channels: 1},
		FrameSize:        cfg.Audio.FrameSize,
		QueueSize:        cfg.Audio.SendQueue,
		FlushOnInterrupt: cfg.Audio.FlushOnInterrupt,
	}, session.WithLogger(a.logger), session.WithMetrics(a.metrics))

	a.controller.OnStateChange(func(st session.Status) {
		a.logger.Info("session state changed", "state", st.State.String(), "error", st.Error)
	})

	a.handler = a.routes()
	return a, nil
}

func modality(m config.Modality) s2s.Modality {
	if m == config.ModalityText {
		return s2s.ModalityText
	}
	return s2s.ModalityAudio
}

// Controller returns the session controller.
func (a *App) Controller() *session.Controller { return a.controller }

// Handler returns the HTTP handler serving the control API, health checks
// and, if configured, /metrics.
func (a *App) Handler() http.Handler { return a.handler }

// ─── Run ─────────────────────────────────────────────────────────────────────

// Run serves the control API and, when session.auto_connect is set, connects
// once. It blocks until ctx is cancelled or the HTTP server fails, then
// disconnects. A failed auto-connect is logged and leaves the app running in
// the error state so the user can retry.
func (a *App) Run(ctx context.Context) error {
	g, gctx := errgroup.WithContext(ctx)

	if addr := a.cfg.Server.ListenAddr; addr != "" {
		srv := &http.Server{
			Addr:              addr,
			Handler:           a.handler,
			ReadHeaderTimeout: 10 * time.Second,
		}
		g.Go(func() error {
			a.logger.Info("control API listening", "addr", addr)
			if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
				return fmt.Errorf("app: serve: %w", err)
			}
			return nil
		})
		g.Go(func() error {
			<-gctx.Done()
			shutdownCtx, cancel := context.WithTimeout(context.Background(), shutdownTimeout)
			defer cancel()
			return srv.Shutdown(shutdownCtx)
		})
	}

	if a.cfg.Session.ShouldAutoConnect() {
		g.Go(func() error {
			if err := a.Connect(gctx); err != nil && !errors.Is(err, session.ErrCanceled) {
				a.logger.Warn("auto-connect failed", "err", err)
			}
			return nil
		})
	}

	g.Go(func() error {
		<-gctx.Done()
		if err := a.controller.Disconnect(); err != nil {
			a.logger.Warn("session disconnect error", "err", err)
		}
		return nil
	})

	err := g.Wait()
	if err != nil && !errors.Is(err, context.Canceled) {
		return err
	}
	return nil
}

// Connect connects the controller, applying session.connect_timeout.
func (a *App) Connect(ctx context.Context) error {
	if d := a.cfg.Session.ConnectTimeout; d > 0 {
		var cancel context.CancelFunc
		ctx, cancel = context.WithTimeout(ctx, d)
		defer cancel()
	}
	return a.controller.Connect(ctx)
}

// ─── Shutdown ────────────────────────────────────────────────────────────────

// Shutdown disconnects the session and runs the registered closers. It
// respects the context deadline: if ctx expires before all closers finish,
// remaining closers are skipped and the context error is returned.
func (a *App) Shutdown(ctx context.Context) error {
	var shutdownErr error
	a.stopOnce.Do(func() {
		a.logger.Info("shutting down", "closers", len(a.closers))

		if err := a.controller.Disconnect(); err != nil {
			a.logger.Warn("session disconnect error", "err", err)
		}

		for i, closer := range a.closers {
			select {
			case <-ctx.Done():
				a.logger.Warn("shutdown deadline exceeded", "remaining", len(a.closers)-i)
				shutdownErr = ctx.Err()
				return
			default:
			}
			if err := closer(); err != nil {
				a.logger.Warn("closer error", "index", i, "err", err)
			}
		}

		a.logger.Info("shutdown complete")
	})
	return shutdownErr
}

// ─── Health ──────────────────────────────────────────────────────────────────

func (a *App) checkers() []health.Checker {
	devices := a.deps.DevicesReady
	if devices == nil {
		devices = func(context.Context) error { return nil }
	}
	return []health.Checker{
		{Name: "config", Check: func(context.Context) error { return config.Validate(a.cfg) }},
		{Name: "devices", Check: devices},
		{Name: "session", Check: func(context.Context) error {
			if st := a.controller.Status(); st.State == session.StateError {
				return errors.New(st.Error)
			}
			return nil
		}},
	}
}
