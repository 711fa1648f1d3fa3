package capture

import (
	"bytes"
	"errors"
	"os/exec"
	"testing"
	"time"
)

func TestExecStreamKeepsTrailingOutput(t *testing.T) {
	cmd := exec.Command("sh", "-c", "printf head; sleep 0.4; printf tail")
	stream, err := startExecStream(cmd, 4096)
	if err != nil {
		t.Fatalf("start stream: %v", err)
	}

	var got bytes.Buffer
	done := make(chan struct{})
	go func() {
		defer close(done)
		for chunk := range stream.Chunks() {
			got.Write(chunk)
		}
	}()

	select {
	case <-done:
	case <-time.After(5 * time.Second):
		t.Fatal("stream never drained")
	}
	if err := stream.Stop(); err != nil {
		t.Fatalf("stop: %v", err)
	}
	if got.String() != "headtail" {
		t.Fatalf("output after the stop signal must not be truncated, got %q", got.String())
	}
}

func TestExecStreamImmediateExitIsDeviceError(t *testing.T) {
	cmd := exec.Command("sh", "-c", "echo no such device >&2; exit 3")
	_, err := startExecStream(cmd, 4096)
	if err == nil {
		t.Fatal("expected device error for a command that dies at once")
	}
	var devErr *DeviceError
	if !errors.As(err, &devErr) {
		t.Fatalf("expected DeviceError, got %T", err)
	}
}
