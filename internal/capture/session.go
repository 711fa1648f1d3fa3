package capture

import (
	"bytes"
	"context"
	"errors"
	"sync"

	"github.com/barathvelmu/deterministic-voice-intelligence/internal/config"
)

// ErrNoAudio is the terminal outcome of finalizing a session that
// accumulated zero fragments. It is not a device failure.
var ErrNoAudio = errors.New("no audio captured")

// ErrAlreadyActive guards against starting a session twice.
var ErrAlreadyActive = errors.New("capture session already active")

// Clip is a finished recording: the concatenated fragments tagged with
// their source encoding.
type Clip struct {
	Encoding string
	Data     []byte
}

// Session owns one recording lifecycle: start, accumulate fragments in
// arrival order, stop exactly once, finalize into a Clip.
type Session struct {
	recorder Recorder
	cfg      config.CaptureConfig

	mu        sync.Mutex
	stream    Stream
	fragments [][]byte
	active    bool
	stopped   bool
	pumpDone  chan struct{}
}

func NewSession(recorder Recorder, cfg config.CaptureConfig) *Session {
	return &Session{recorder: recorder, cfg: cfg}
}

// Start acquires the capture stream and begins accumulating fragments.
func (s *Session) Start(ctx context.Context) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.active {
		return ErrAlreadyActive
	}

	stream, err := s.recorder.Start(ctx, s.cfg)
	if err != nil {
		return err
	}
	s.stream = stream
	s.active = true
	s.pumpDone = make(chan struct{})

	go func() {
		defer close(s.pumpDone)
		for fragment := range stream.Chunks() {
			s.Append(fragment)
		}
	}()
	return nil
}

// Append records a fragment, preserving arrival order. Empty fragments are
// dropped.
func (s *Session) Append(fragment []byte) {
	if len(fragment) == 0 {
		return
	}
	s.mu.Lock()
	s.fragments = append(s.fragments, fragment)
	s.mu.Unlock()
}

// Stop signals the device to finalize. Safe against overlapping stop
// signals; only the first takes effect.
func (s *Session) Stop() error {
	s.mu.Lock()
	if s.stopped || s.stream == nil {
		s.mu.Unlock()
		return nil
	}
	s.stopped = true
	stream := s.stream
	pumpDone := s.pumpDone
	s.mu.Unlock()

	err := stream.Stop()
	<-pumpDone

	s.mu.Lock()
	s.active = false
	s.mu.Unlock()
	return err
}

// Finalize concatenates the accumulated fragments into a Clip. Internal
// buffers are released on return regardless of outcome.
func (s *Session) Finalize() (Clip, error) {
	s.mu.Lock()
	fragments := s.fragments
	s.fragments = nil
	s.mu.Unlock()

	if len(fragments) == 0 {
		return Clip{}, ErrNoAudio
	}
	return Clip{
		Encoding: s.recorder.Encoding(),
		Data:     bytes.Join(fragments, nil),
	}, nil
}
