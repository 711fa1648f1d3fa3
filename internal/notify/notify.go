// Package notify fans interaction outcomes out to UI frontends. When the
// local bus is enabled, events are published as JSON on the voice.* subjects;
// otherwise they are only logged.
package notify

import (
	"log/slog"
	"time"

	"github.com/barathvelmu/deterministic-voice-intelligence/internal/bus"
	"github.com/barathvelmu/deterministic-voice-intelligence/internal/controller"
	"github.com/barathvelmu/deterministic-voice-intelligence/internal/protocol"
)

// BusNotifier publishes controller events on the local NATS bus.
type BusNotifier struct {
	bus *bus.Client
	log *slog.Logger
}

func NewBusNotifier(client *bus.Client, log *slog.Logger) *BusNotifier {
	return &BusNotifier{
		bus: client,
		log: log.With(slog.String("component", "notify")),
	}
}

func (n *BusNotifier) StateChanged(turnID string, state controller.State, reason string) {
	n.publish(protocol.SubjectState, protocol.StateChange{
		TurnID:    turnID,
		State:     state.String(),
		Reason:    reason,
		Timestamp: time.Now().UTC(),
	})
}

func (n *BusNotifier) Notice(level controller.NoticeLevel, message string) {
	n.publish(protocol.SubjectNotice, protocol.Notice{
		Level:     string(level),
		Message:   message,
		Timestamp: time.Now().UTC(),
	})
}

func (n *BusNotifier) TranscriptReady(turnID, text string) {
	n.publish(protocol.SubjectTranscript, protocol.Transcript{
		TurnID:    turnID,
		Text:      text,
		Timestamp: time.Now().UTC(),
	})
}

func (n *BusNotifier) ReplyReady(turnID, text string) {
	n.publish(protocol.SubjectReply, protocol.Reply{
		TurnID:    turnID,
		Text:      text,
		Timestamp: time.Now().UTC(),
	})
}

func (n *BusNotifier) Healthy() bool { return n.bus.Healthy() }

func (n *BusNotifier) publish(subject string, v any) {
	if err := n.bus.PublishJSON(subject, v); err != nil {
		n.log.Warn("publish failed",
			slog.String("subject", subject),
			slog.String("error", err.Error()))
	}
}

// LogNotifier is the fallback when the bus is disabled.
type LogNotifier struct {
	log *slog.Logger
}

func NewLogNotifier(log *slog.Logger) *LogNotifier {
	return &LogNotifier{log: log.With(slog.String("component", "notify"))}
}

func (n *LogNotifier) StateChanged(turnID string, state controller.State, reason string) {
	n.log.Info("state",
		slog.String("turn_id", turnID),
		slog.String("state", state.String()),
		slog.String("reason", reason))
}

func (n *LogNotifier) Notice(level controller.NoticeLevel, message string) {
	if level == controller.NoticeError {
		n.log.Warn("notice", slog.String("message", message))
		return
	}
	n.log.Info("notice", slog.String("message", message))
}

func (n *LogNotifier) TranscriptReady(turnID, text string) {
	n.log.Info("transcript", slog.String("turn_id", turnID), slog.String("text", text))
}

func (n *LogNotifier) ReplyReady(turnID, text string) {
	n.log.Info("reply", slog.String("turn_id", turnID), slog.String("text", text))
}
