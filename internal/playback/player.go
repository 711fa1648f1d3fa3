// Package playback drives audio output for synthesized replies. A session
// either completes naturally (one-shot Done signal) or is interrupted via
// Stop; both release the underlying handle.
package playback

import (
	"context"
	"fmt"
)

// PlaybackError reports that audio output could not be started. Callers
// surface it distinctly from decode and transport failures because recovery
// typically needs a direct user action.
type PlaybackError struct {
	Err error
}

func (e *PlaybackError) Error() string {
	return fmt.Sprintf("start playback: %v", e.Err)
}

func (e *PlaybackError) Unwrap() error { return e.Err }

// Session is one playback lifecycle. Done is closed exactly once, when the
// audio finishes or the session is stopped. Stop is idempotent.
type Session interface {
	Done() <-chan struct{}
	Stop()
}

// Player starts playback sessions from opaque audio payloads.
type Player interface {
	Play(ctx context.Context, audio []byte) (Session, error)
}
