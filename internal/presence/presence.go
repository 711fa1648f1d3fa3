// Package presence announces the client on the local bus and keeps a
// periodic heartbeat so frontends can tell whether the daemon is alive and
// what state it is in.
package presence

import (
	"context"
	"log/slog"
	"sync"
	"time"

	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/metric"

	"github.com/barathvelmu/deterministic-voice-intelligence/internal/bus"
	"github.com/barathvelmu/deterministic-voice-intelligence/internal/config"
	"github.com/barathvelmu/deterministic-voice-intelligence/internal/protocol"
)

// StateFunc reports the current interaction state for heartbeats.
type StateFunc func() string

type Publisher struct {
	bus      *bus.Client
	cfg      config.NodeConfig
	version  string
	state    StateFunc
	log      *slog.Logger
	beats    metric.Int64Counter
	started  bool
	stopOnce sync.Once
	stop     chan struct{}
	done     chan struct{}
}

func New(client *bus.Client, cfg config.NodeConfig, version string, state StateFunc, log *slog.Logger) *Publisher {
	meter := otel.Meter("github.com/barathvelmu/deterministic-voice-intelligence/presence")
	beats, _ := meter.Int64Counter("voiced.heartbeats",
		metric.WithDescription("Presence heartbeats published on the bus"))

	return &Publisher{
		bus:     client,
		cfg:     cfg,
		version: version,
		state:   state,
		log:     log.With(slog.String("component", "presence")),
		beats:   beats,
		stop:    make(chan struct{}),
		done:    make(chan struct{}),
	}
}

// Start announces the node and begins the heartbeat loop.
func (p *Publisher) Start(ctx context.Context) error {
	announce := protocol.Announce{
		NodeID:    p.cfg.ID,
		Version:   p.version,
		Timestamp: time.Now().UTC(),
	}
	if err := p.bus.PublishJSON(protocol.SubjectPresenceAnnounce, announce); err != nil {
		return err
	}
	p.log.Info("announced presence", slog.String("node_id", p.cfg.ID))

	interval := time.Duration(p.cfg.HeartbeatInterval) * time.Millisecond
	p.started = true
	go p.loop(ctx, interval)
	return nil
}

func (p *Publisher) loop(ctx context.Context, interval time.Duration) {
	defer close(p.done)
	ticker := time.NewTicker(interval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			return
		case <-p.stop:
			return
		case <-ticker.C:
			beat := protocol.Heartbeat{
				NodeID:    p.cfg.ID,
				State:     p.state(),
				Timestamp: time.Now().UTC(),
			}
			if err := p.bus.PublishJSON(protocol.SubjectPresenceHeartbeat, beat); err != nil {
				p.log.Warn("heartbeat publish failed", slog.String("error", err.Error()))
				continue
			}
			p.beats.Add(ctx, 1)
		}
	}
}

// Close stops the heartbeat loop and waits for it to exit.
func (p *Publisher) Close() {
	p.stopOnce.Do(func() { close(p.stop) })
	if p.started {
		<-p.done
	}
}
