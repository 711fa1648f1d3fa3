package playback

import (
	"context"
	"sync"
)

// MockPlayer records played payloads and exposes the live session so tests
// can simulate natural completion or verify interruption.
type MockPlayer struct {
	mu       sync.Mutex
	playErr  error
	played   [][]byte
	sessions []*MockSession
}

func NewMockPlayer() *MockPlayer { return &MockPlayer{} }

// FailWith makes subsequent Play calls return a PlaybackError.
func (p *MockPlayer) FailWith(err error) {
	p.mu.Lock()
	p.playErr = err
	p.mu.Unlock()
}

func (p *MockPlayer) Play(_ context.Context, audio []byte) (Session, error) {
	p.mu.Lock()
	defer p.mu.Unlock()
	if p.playErr != nil {
		return nil, &PlaybackError{Err: p.playErr}
	}
	s := &MockSession{done: make(chan struct{})}
	p.played = append(p.played, audio)
	p.sessions = append(p.sessions, s)
	return s, nil
}

func (p *MockPlayer) Played() [][]byte {
	p.mu.Lock()
	defer p.mu.Unlock()
	return append([][]byte(nil), p.played...)
}

func (p *MockPlayer) LastSession() *MockSession {
	p.mu.Lock()
	defer p.mu.Unlock()
	if len(p.sessions) == 0 {
		return nil
	}
	return p.sessions[len(p.sessions)-1]
}

type MockSession struct {
	done     chan struct{}
	doneOnce sync.Once
	mu       sync.Mutex
	stopped  bool
}

func (s *MockSession) Done() <-chan struct{} { return s.done }

// Complete simulates the audio reaching its natural end.
func (s *MockSession) Complete() {
	s.doneOnce.Do(func() { close(s.done) })
}

func (s *MockSession) Stop() {
	s.mu.Lock()
	s.stopped = true
	s.mu.Unlock()
	s.doneOnce.Do(func() { close(s.done) })
}

func (s *MockSession) Stopped() bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.stopped
}
