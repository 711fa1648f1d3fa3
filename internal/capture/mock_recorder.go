package capture

import (
	"context"

	"github.com/barathvelmu/deterministic-voice-intelligence/internal/config"
)

// mockRecorder replays canned fragments, or fails with a DeviceError.
type mockRecorder struct {
	fragments [][]byte
	startErr  error
}

func NewMockRecorder(fragments [][]byte) Recorder {
	return &mockRecorder{fragments: fragments}
}

// NewFailingRecorder simulates an unavailable or denied capture device.
func NewFailingRecorder(err error) Recorder {
	return &mockRecorder{startErr: err}
}

func (m *mockRecorder) Encoding() string { return "wav" }

func (m *mockRecorder) Start(_ context.Context, _ config.CaptureConfig) (Stream, error) {
	if m.startErr != nil {
		return nil, &DeviceError{Op: "acquire", Err: m.startErr}
	}
	s := &mockStream{chunks: make(chan []byte, len(m.fragments)), stopped: make(chan struct{})}
	for _, f := range m.fragments {
		s.chunks <- f
	}
	go func() {
		<-s.stopped
		close(s.chunks)
	}()
	return s, nil
}

type mockStream struct {
	chunks  chan []byte
	stopped chan struct{}
}

func (s *mockStream) Chunks() <-chan []byte { return s.chunks }

func (s *mockStream) Stop() error {
	select {
	case <-s.stopped:
	default:
		close(s.stopped)
	}
	return nil
}
