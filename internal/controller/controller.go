// Package controller owns the single-button interaction state machine:
// Idle -> Listening -> Thinking -> Speaking -> Idle. At most one capture
// session, in-flight pipeline call, or playback session exists at any
// instant; every failure path resolves back to Idle.
package controller

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"strings"
	"sync"
	"time"

	"github.com/google/uuid"
	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/metric"

	"github.com/barathvelmu/deterministic-voice-intelligence/internal/capture"
	"github.com/barathvelmu/deterministic-voice-intelligence/internal/config"
	"github.com/barathvelmu/deterministic-voice-intelligence/internal/history"
	"github.com/barathvelmu/deterministic-voice-intelligence/internal/playback"
	"github.com/barathvelmu/deterministic-voice-intelligence/internal/wave"
)

// State is the interaction mode. Exactly one is active at any instant.
type State int

const (
	StateIdle State = iota
	StateListening
	StateThinking
	StateSpeaking
)

func (s State) String() string {
	switch s {
	case StateIdle:
		return "idle"
	case StateListening:
		return "listening"
	case StateThinking:
		return "thinking"
	case StateSpeaking:
		return "speaking"
	}
	return "unknown"
}

// NoticeLevel separates neutral outcomes from true errors so UIs can style
// them differently.
type NoticeLevel string

const (
	NoticeInfo  NoticeLevel = "info"
	NoticeError NoticeLevel = "error"
)

// Turn outcomes recorded in history.
const (
	OutcomeSpoken          = "spoken"
	OutcomeInterrupted     = "interrupted"
	OutcomeSilent          = "silent"
	OutcomeEmpty           = "empty"
	OutcomeError           = "error"
	OutcomePlaybackBlocked = "playback_blocked"
)

// Spoken and displayed when the agent returns an empty reply; never send an
// empty payload to synthesis.
const fallbackReply = "There is no text for me to speak."

// ErrBusy is returned when the control is activated while a turn is being
// processed.
var ErrBusy = errors.New("a turn is already being processed")

// ErrNothingToRetry is returned when no blocked reply is pending.
var ErrNothingToRetry = errors.New("no reply pending playback retry")

// Pipeline is the remote three-stage contract the controller drives.
type Pipeline interface {
	Transcribe(ctx context.Context, wavBytes []byte) (string, error)
	Converse(ctx context.Context, transcript string) (string, error)
	Synthesize(ctx context.Context, text string) ([]byte, error)
}

// Notifier receives user-facing outcomes.
type Notifier interface {
	StateChanged(turnID string, state State, reason string)
	Notice(level NoticeLevel, message string)
	TranscriptReady(turnID, text string)
	ReplyReady(turnID, text string)
}

// TurnLog records finished turns. The history store satisfies it.
type TurnLog interface {
	AppendTurn(ctx context.Context, turn history.Turn) error
}

type pendingReply struct {
	transcript string
	text       string
	audio      []byte
}

type Controller struct {
	captureCfg config.CaptureConfig
	recorder   capture.Recorder
	player     playback.Player
	pipeline   Pipeline
	notifier   Notifier
	turns      TurnLog
	logger     *slog.Logger

	turnCounter  metric.Int64Counter
	turnDuration metric.Float64Histogram

	mu        sync.Mutex
	state     State
	session   *capture.Session
	playSess  playback.Session
	pending   *pendingReply
	turnID    string
	turnStart time.Time
}

func New(
	captureCfg config.CaptureConfig,
	recorder capture.Recorder,
	player playback.Player,
	pipe Pipeline,
	notifier Notifier,
	turns TurnLog,
	logger *slog.Logger,
) *Controller {
	meter := otel.Meter("github.com/barathvelmu/deterministic-voice-intelligence/controller")
	turnCounter, _ := meter.Int64Counter("voiced.turns",
		metric.WithDescription("Completed interaction turns by outcome"))
	turnDuration, _ := meter.Float64Histogram("voiced.turn.duration",
		metric.WithDescription("Turn duration from recording start to terminal state"),
		metric.WithUnit("s"))

	return &Controller{
		captureCfg:   captureCfg,
		recorder:     recorder,
		player:       player,
		pipeline:     pipe,
		notifier:     notifier,
		turns:        turns,
		logger:       logger.With(slog.String("component", "controller")),
		turnCounter:  turnCounter,
		turnDuration: turnDuration,
	}
}

// State reports the current interaction mode.
func (c *Controller) State() State {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.state
}

// Toggle is the single overloaded control. Its meaning depends on state:
// start recording, stop recording and process, wait, or interrupt playback.
func (c *Controller) Toggle(ctx context.Context) error {
	c.mu.Lock()
	switch c.state {
	case StateIdle:
		return c.startListeningLocked(ctx)
	case StateListening:
		return c.stopListening(ctx)
	case StateThinking:
		c.mu.Unlock()
		c.notifier.Notice(NoticeInfo, "Still thinking, give me a second.")
		return ErrBusy
	case StateSpeaking:
		c.interruptLocked()
		return nil
	}
	c.mu.Unlock()
	return nil
}

// RetryPlayback replays a reply whose playback was blocked, without
// re-running transcription or reasoning.
func (c *Controller) RetryPlayback(ctx context.Context) error {
	c.mu.Lock()
	if c.state != StateIdle || c.pending == nil {
		c.mu.Unlock()
		return ErrNothingToRetry
	}
	pend := c.pending
	turnID := c.turnID
	// Claim the reply so a concurrent retry cannot double-play it.
	c.pending = nil
	c.mu.Unlock()

	sess, err := c.player.Play(ctx, pend.audio)

	c.mu.Lock()
	if c.state != StateIdle {
		// A toggle won the race while the player was starting; the new turn
		// owns the machine now, so back off.
		c.mu.Unlock()
		if sess != nil {
			sess.Stop()
		}
		return ErrNothingToRetry
	}
	if err != nil {
		c.pending = pend
		c.mu.Unlock()
		c.notifier.Notice(NoticeError, "Playback is still blocked: "+err.Error())
		return err
	}
	c.playSess = sess
	c.setStateLocked(turnID, StateSpeaking, "replaying blocked reply")
	c.mu.Unlock()

	go c.watchPlayback(sess, turnID, pend.transcript, pend.text)
	return nil
}

// Close interrupts any active capture or playback so the process can exit
// with the state machine at Idle.
func (c *Controller) Close() {
	c.mu.Lock()
	sess := c.session
	play := c.playSess
	c.session = nil
	c.playSess = nil
	c.state = StateIdle
	c.mu.Unlock()

	if sess != nil {
		_ = sess.Stop()
	}
	if play != nil {
		play.Stop()
	}
}

// startListeningLocked is entered holding the mutex and releases it.
func (c *Controller) startListeningLocked(ctx context.Context) error {
	defer c.mu.Unlock()

	sess := capture.NewSession(c.recorder, c.captureCfg)
	if err := sess.Start(ctx); err != nil {
		c.logger.Warn("capture start failed", slog.String("error", err.Error()))
		c.notifier.Notice(NoticeError, "Microphone unavailable: "+err.Error())
		return err
	}

	c.session = sess
	c.turnID = uuid.NewString()
	c.turnStart = time.Now()
	c.setStateLocked(c.turnID, StateListening, "recording started")
	return nil
}

// stopListening is entered holding the mutex, releases it, and runs the
// remainder of the turn on the calling goroutine.
func (c *Controller) stopListening(ctx context.Context) error {
	sess := c.session
	turnID := c.turnID
	c.session = nil
	c.mu.Unlock()

	if sess == nil {
		return nil
	}
	if err := sess.Stop(); err != nil {
		c.logger.Warn("capture stop reported error", slog.String("error", err.Error()))
	}

	clip, err := sess.Finalize()
	if errors.Is(err, capture.ErrNoAudio) {
		c.finishTurn(ctx, turnID, "no audio captured", "", "", OutcomeEmpty)
		c.notifier.Notice(NoticeInfo, "I didn't hear anything. Try again.")
		return nil
	}
	if err != nil {
		c.failTurn(ctx, turnID, "capture failed", err)
		return err
	}

	c.mu.Lock()
	c.setStateLocked(turnID, StateThinking, "processing")
	c.mu.Unlock()

	return c.runTurn(ctx, turnID, clip)
}

// runTurn drives encode -> transcribe -> converse -> synthesize -> play.
func (c *Controller) runTurn(ctx context.Context, turnID string, clip capture.Clip) error {
	canonical, err := c.normalize(clip)
	if err != nil {
		c.failTurn(ctx, turnID, "could not decode the recording", err)
		return err
	}

	transcript, err := c.pipeline.Transcribe(ctx, canonical)
	if err != nil {
		c.failTurn(ctx, turnID, "transcription failed", err)
		return err
	}
	transcript = strings.TrimSpace(transcript)
	if transcript == "" {
		// Terminal non-error outcome: no reasoning or synthesis calls.
		c.finishTurn(ctx, turnID, "no speech detected", "", "", OutcomeSilent)
		c.notifier.Notice(NoticeInfo, "I couldn't make out any speech in that recording.")
		return nil
	}
	c.notifier.TranscriptReady(turnID, transcript)

	reply, err := c.pipeline.Converse(ctx, transcript)
	if err != nil {
		c.failTurn(ctx, turnID, "the agent could not respond", err)
		return err
	}
	reply = strings.TrimSpace(reply)
	if reply == "" {
		reply = fallbackReply
	}
	c.notifier.ReplyReady(turnID, reply)

	audio, err := c.pipeline.Synthesize(ctx, reply)
	if err != nil {
		c.failTurn(ctx, turnID, "speech synthesis failed", err)
		return err
	}

	return c.startPlayback(ctx, turnID, transcript, reply, audio)
}

func (c *Controller) normalize(clip capture.Clip) ([]byte, error) {
	decoded, err := wave.Decode(clip.Data)
	if err != nil {
		return nil, err
	}
	mono := wave.Downmix(decoded)
	return wave.Encode(mono, decoded.SampleRate)
}

func (c *Controller) startPlayback(ctx context.Context, turnID, transcript, reply string, audio []byte) error {
	sess, err := c.player.Play(ctx, audio)
	if err != nil {
		// Keep the synthesized reply so a user gesture can retry playback
		// without re-running the pipeline.
		c.mu.Lock()
		c.pending = &pendingReply{transcript: transcript, text: reply, audio: audio}
		c.setStateLocked(turnID, StateIdle, "playback blocked")
		c.mu.Unlock()

		c.recordTurn(ctx, turnID, transcript, reply, OutcomePlaybackBlocked)
		c.notifier.Notice(NoticeError, "Playback was blocked. Tap retry to hear the reply.")
		return err
	}

	c.mu.Lock()
	c.pending = nil
	c.playSess = sess
	c.setStateLocked(turnID, StateSpeaking, "speaking")
	c.mu.Unlock()

	go c.watchPlayback(sess, turnID, transcript, reply)
	return nil
}

// watchPlayback consumes the one-shot completion signal. If the session was
// interrupted manually it is no longer current and the signal is ignored.
func (c *Controller) watchPlayback(sess playback.Session, turnID, transcript, reply string) {
	<-sess.Done()

	c.mu.Lock()
	if c.playSess != sess {
		c.mu.Unlock()
		return
	}
	c.playSess = nil
	c.setStateLocked(turnID, StateIdle, "playback finished")
	c.mu.Unlock()

	c.recordTurn(context.Background(), turnID, transcript, reply, OutcomeSpoken)
}

// interruptLocked is entered holding the mutex and releases it.
func (c *Controller) interruptLocked() {
	sess := c.playSess
	turnID := c.turnID
	c.playSess = nil
	c.setStateLocked(turnID, StateIdle, "playback interrupted")
	c.mu.Unlock()

	if sess != nil {
		sess.Stop()
	}
	c.recordTurn(context.Background(), turnID, "", "", OutcomeInterrupted)
}

func (c *Controller) failTurn(ctx context.Context, turnID, message string, err error) {
	c.logger.Warn("turn failed",
		slog.String("turn_id", turnID),
		slog.String("error", err.Error()))

	c.mu.Lock()
	c.setStateLocked(turnID, StateIdle, "turn failed")
	c.mu.Unlock()

	c.recordTurn(ctx, turnID, "", "", OutcomeError)
	c.notifier.Notice(NoticeError, fmt.Sprintf("Sorry, %s: %v", message, err))
}

func (c *Controller) finishTurn(ctx context.Context, turnID, reason, transcript, reply, outcome string) {
	c.mu.Lock()
	c.setStateLocked(turnID, StateIdle, reason)
	c.mu.Unlock()

	c.recordTurn(ctx, turnID, transcript, reply, outcome)
}

func (c *Controller) setStateLocked(turnID string, state State, reason string) {
	c.state = state
	c.logger.Info("state changed",
		slog.String("turn_id", turnID),
		slog.String("state", state.String()),
		slog.String("reason", reason))
	c.notifier.StateChanged(turnID, state, reason)
}

func (c *Controller) recordTurn(ctx context.Context, turnID, transcript, reply, outcome string) {
	c.mu.Lock()
	start := c.turnStart
	c.mu.Unlock()

	attrs := metric.WithAttributes(attribute.String("outcome", outcome))
	c.turnCounter.Add(ctx, 1, attrs)
	if !start.IsZero() {
		c.turnDuration.Record(ctx, time.Since(start).Seconds(), attrs)
	}

	if c.turns == nil {
		return
	}
	if err := c.turns.AppendTurn(ctx, history.Turn{
		TurnID:     turnID,
		Transcript: transcript,
		Reply:      reply,
		Outcome:    outcome,
	}); err != nil {
		c.logger.Warn("failed to record turn", slog.String("error", err.Error()))
	}
}
