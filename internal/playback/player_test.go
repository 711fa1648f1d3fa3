package playback

import (
	"context"
	"errors"
	"testing"
	"time"
)

func TestMockSessionNaturalCompletion(t *testing.T) {
	player := NewMockPlayer()
	sess, err := player.Play(context.Background(), []byte("audio"))
	if err != nil {
		t.Fatalf("play: %v", err)
	}

	select {
	case <-sess.Done():
		t.Fatal("done fired before completion")
	default:
	}

	player.LastSession().Complete()
	select {
	case <-sess.Done():
	case <-time.After(time.Second):
		t.Fatal("done signal never fired")
	}
}

func TestStopIsIdempotent(t *testing.T) {
	player := NewMockPlayer()
	sess, err := player.Play(context.Background(), []byte("audio"))
	if err != nil {
		t.Fatalf("play: %v", err)
	}
	sess.Stop()
	sess.Stop()
	select {
	case <-sess.Done():
	case <-time.After(time.Second):
		t.Fatal("done signal never fired after stop")
	}
}

func TestPlayFailureIsPlaybackError(t *testing.T) {
	player := NewMockPlayer()
	player.FailWith(errors.New("output device busy"))
	_, err := player.Play(context.Background(), []byte("audio"))
	if err == nil {
		t.Fatal("expected error")
	}
	var playbackErr *PlaybackError
	if !errors.As(err, &playbackErr) {
		t.Fatalf("expected PlaybackError, got %T", err)
	}
}

func TestExecPlayerRejectsEmptyCommand(t *testing.T) {
	if _, err := NewExecPlayer(""); err == nil {
		t.Fatal("expected error for empty command")
	}
}

func TestExecPlayerCompletesWithShortCommand(t *testing.T) {
	player, err := NewExecPlayer("cat")
	if err != nil {
		t.Fatalf("new exec player: %v", err)
	}
	sess, err := player.Play(context.Background(), []byte("payload"))
	if err != nil {
		t.Fatalf("play: %v", err)
	}
	select {
	case <-sess.Done():
	case <-time.After(5 * time.Second):
		t.Fatal("exec session never completed")
	}
}
