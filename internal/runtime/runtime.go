// Package runtime wires the voice client together: telemetry, the local
// event bus, the history store, the pipeline client, capture and playback
// backends, the interaction controller, and the HTTP control surface.
package runtime

import (
	"context"
	"fmt"
	"log/slog"
	"net/http"
	"strings"
	"sync"
	"sync/atomic"
	"time"

	"github.com/barathvelmu/deterministic-voice-intelligence/internal/bus"
	"github.com/barathvelmu/deterministic-voice-intelligence/internal/capture"
	"github.com/barathvelmu/deterministic-voice-intelligence/internal/config"
	"github.com/barathvelmu/deterministic-voice-intelligence/internal/controller"
	"github.com/barathvelmu/deterministic-voice-intelligence/internal/history"
	"github.com/barathvelmu/deterministic-voice-intelligence/internal/natsserver"
	"github.com/barathvelmu/deterministic-voice-intelligence/internal/notify"
	"github.com/barathvelmu/deterministic-voice-intelligence/internal/pipeline"
	"github.com/barathvelmu/deterministic-voice-intelligence/internal/playback"
	"github.com/barathvelmu/deterministic-voice-intelligence/internal/presence"
)

type Runtime struct {
	cfg     config.Config
	version string
	logger  *slog.Logger

	httpServer  *http.Server
	tracerClose func(context.Context) error

	natsServer *natsserver.EmbeddedServer
	busClient  *bus.Client
	store      *history.Store
	ctrl       *controller.Controller
	heartbeat  *presence.Publisher

	baseURL atomic.Value // string
	ready   atomic.Bool
	wg      sync.WaitGroup
}

func New(cfg config.Config, version string, logger *slog.Logger) *Runtime {
	return &Runtime{
		cfg:     cfg,
		version: version,
		logger:  logger,
	}
}

// Start brings every component up and blocks until ctx is canceled, then
// shuts everything down in reverse order.
func (r *Runtime) Start(ctx context.Context) error {
	ctx, cancel := context.WithCancel(ctx)
	defer cancel()

	shutdownTelemetry, metricHandler, err := setupTelemetry(r.cfg, r.logger)
	if err != nil {
		return fmt.Errorf("failed to setup telemetry: %w", err)
	}
	r.tracerClose = shutdownTelemetry

	// Tears down whatever came up before a failed startup step.
	fail := func(err error) error {
		if r.store != nil {
			_ = r.store.Close()
		}
		r.busClient.Close()
		r.natsServer.Shutdown()
		shutdownCtx, cancelShutdown := context.WithTimeout(context.Background(), 5*time.Second)
		defer cancelShutdown()
		if closeErr := r.tracerClose(shutdownCtx); closeErr != nil {
			r.logger.Error("telemetry shutdown error", slog.String("error", closeErr.Error()))
		}
		return err
	}

	if err := r.startBus(ctx); err != nil {
		return fail(err)
	}

	store, err := history.Open(ctx, r.cfg.History, r.logger.With(slog.String("component", "history")))
	if err != nil {
		return fail(fmt.Errorf("failed to open history store: %w", err))
	}
	r.store = store

	r.baseURL.Store(r.resolveBaseURL(ctx))

	if err := r.startController(); err != nil {
		return fail(err)
	}

	if r.busClient != nil {
		r.heartbeat = presence.New(r.busClient, r.cfg.Node, r.version,
			func() string { return r.ctrl.State().String() }, r.logger)
		if err := r.heartbeat.Start(ctx); err != nil {
			r.logger.Warn("presence announce failed", slog.String("error", err.Error()))
		}
	}

	addr := fmt.Sprintf("%s:%d", r.cfg.HTTP.Bind, r.cfg.HTTP.Port)
	r.httpServer = &http.Server{
		Addr:              addr,
		Handler:           r.routes(metricHandler),
		ReadHeaderTimeout: 5 * time.Second,
	}

	r.wg.Add(1)
	go func() {
		defer r.wg.Done()
		if err := r.httpServer.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			r.logger.Error("http server failed", slog.String("error", err.Error()))
		}
	}()

	r.ready.Store(true)
	r.logger.Info("voice client started",
		slog.String("addr", addr),
		slog.String("endpoint", r.currentBaseURL()))

	<-ctx.Done()
	r.logger.Info("voice client stopping")
	r.ready.Store(false)

	shutdownCtx, cancelShutdown := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancelShutdown()

	if err := r.httpServer.Shutdown(shutdownCtx); err != nil {
		r.logger.Error("http shutdown error", slog.String("error", err.Error()))
	}
	r.wg.Wait()

	if r.heartbeat != nil {
		r.heartbeat.Close()
	}
	r.ctrl.Close()
	if err := r.store.Close(); err != nil {
		r.logger.Error("history close error", slog.String("error", err.Error()))
	}
	r.busClient.Close()
	r.natsServer.Shutdown()

	if r.tracerClose != nil {
		if err := r.tracerClose(shutdownCtx); err != nil {
			r.logger.Error("telemetry shutdown error", slog.String("error", err.Error()))
		}
	}

	return nil
}

func (r *Runtime) startBus(ctx context.Context) error {
	if !r.cfg.Bus.Enabled {
		r.logger.Info("event bus disabled")
		return nil
	}

	busCfg := r.cfg.Bus
	if busCfg.Embedded {
		ns, err := natsserver.Start(busCfg, r.logger.With(slog.String("component", "natsserver")))
		if err != nil {
			return fmt.Errorf("failed to start embedded bus: %w", err)
		}
		r.natsServer = ns
		busCfg.Servers = []string{fmt.Sprintf("nats://127.0.0.1:%d", busCfg.Port)}
	}

	client, err := bus.Connect(ctx, busCfg, r.logger.With(slog.String("component", "bus")))
	if err != nil {
		r.natsServer.Shutdown()
		return fmt.Errorf("failed to connect to bus: %w", err)
	}
	r.busClient = client
	return nil
}

func (r *Runtime) startController() error {
	recorder, err := r.buildRecorder()
	if err != nil {
		return err
	}
	player, err := r.buildPlayer()
	if err != nil {
		return err
	}

	timeout := time.Duration(r.cfg.Endpoint.RequestTimeout) * time.Millisecond
	pipe := pipeline.NewClient(r.currentBaseURL, timeout,
		r.logger.With(slog.String("component", "pipeline")))

	var notifier controller.Notifier
	if r.busClient != nil {
		notifier = notify.NewBusNotifier(r.busClient, r.logger)
	} else {
		notifier = notify.NewLogNotifier(r.logger)
	}

	r.ctrl = controller.New(r.cfg.Capture, recorder, player, pipe, notifier, r.store, r.logger)
	return nil
}

func (r *Runtime) buildRecorder() (capture.Recorder, error) {
	switch r.cfg.Capture.Mode {
	case "mock":
		return capture.NewMockRecorder(nil), nil
	default:
		rec, err := capture.NewExecRecorder(r.cfg.Capture.Command)
		if err != nil {
			return nil, fmt.Errorf("failed to build capture backend: %w", err)
		}
		return rec, nil
	}
}

func (r *Runtime) buildPlayer() (playback.Player, error) {
	switch r.cfg.Playback.Mode {
	case "mock":
		return playback.NewMockPlayer(), nil
	default:
		p, err := playback.NewExecPlayer(r.cfg.Playback.Command)
		if err != nil {
			return nil, fmt.Errorf("failed to build playback backend: %w", err)
		}
		return p, nil
	}
}

// resolveBaseURL picks the pipeline endpoint: a persisted user choice wins
// over config, config wins over the loopback default.
func (r *Runtime) resolveBaseURL(ctx context.Context) string {
	if saved, err := r.store.LoadEndpoint(ctx); err != nil {
		r.logger.Warn("failed to load persisted endpoint", slog.String("error", err.Error()))
	} else if saved != "" {
		return saved
	}
	if cfgURL := strings.TrimSpace(r.cfg.Endpoint.BaseURL); cfgURL != "" {
		return cfgURL
	}
	return pipeline.DefaultBaseURL
}

func (r *Runtime) currentBaseURL() string {
	if v, ok := r.baseURL.Load().(string); ok && v != "" {
		return v
	}
	return pipeline.DefaultBaseURL
}
