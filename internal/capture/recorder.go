package capture

import (
	"context"
	"fmt"

	"github.com/barathvelmu/deterministic-voice-intelligence/internal/config"
)

// DeviceError reports that the capture device could not be acquired or
// driven. It is distinct from decode and transport failures so callers can
// surface a microphone-specific notice.
type DeviceError struct {
	Op  string
	Err error
}

func (e *DeviceError) Error() string {
	return fmt.Sprintf("capture device %s: %v", e.Op, e.Err)
}

func (e *DeviceError) Unwrap() error { return e.Err }

// Stream is a live microphone capture. Chunks is closed once the device has
// been stopped and drained.
type Stream interface {
	Chunks() <-chan []byte
	Stop() error
}

// Recorder abstracts capture backends. Encoding names the container the
// stream's concatenated fragments form (e.g. "wav").
type Recorder interface {
	Start(ctx context.Context, cfg config.CaptureConfig) (Stream, error)
	Encoding() string
}
