package capture

import (
	"bytes"
	"context"
	"errors"
	"fmt"
	"io"
	"os"
	"os/exec"
	"strconv"
	"sync"
	"time"

	"github.com/barathvelmu/deterministic-voice-intelligence/internal/config"
	"github.com/mattn/go-shellwords"
)

// execRecorder streams microphone audio through an external command
// (ffmpeg by default) that writes a WAV stream to stdout.
type execRecorder struct {
	cmd []string
}

func NewExecRecorder(command string) (Recorder, error) {
	parser := shellwords.NewParser()
	args, err := parser.Parse(command)
	if err != nil {
		return nil, fmt.Errorf("parse capture command: %w", err)
	}
	if len(args) == 0 {
		return nil, fmt.Errorf("capture command is empty")
	}
	return &execRecorder{cmd: args}, nil
}

func (r *execRecorder) Encoding() string { return "wav" }

func (r *execRecorder) Start(ctx context.Context, cfg config.CaptureConfig) (Stream, error) {
	if cfg.SampleRate <= 0 {
		cfg.SampleRate = 16000
	}
	if cfg.Channels <= 0 {
		cfg.Channels = 1
	}
	if cfg.InputFormat == "" {
		cfg.InputFormat = "pulse"
	}
	if cfg.InputDevice == "" {
		cfg.InputDevice = "default"
	}
	if cfg.ChunkBytes < 256 {
		cfg.ChunkBytes = 4096
	}

	base := r.cmd[0]
	args := append([]string{}, r.cmd[1:]...)
	args = append(args,
		"-nostdin",
		"-hide_banner",
		"-loglevel", "warning",
		"-f", cfg.InputFormat,
		"-i", cfg.InputDevice,
		"-ac", strconv.Itoa(cfg.Channels),
		"-ar", strconv.Itoa(cfg.SampleRate),
		"-f", "wav",
		"-",
	)

	return startExecStream(exec.CommandContext(ctx, base, args...), cfg.ChunkBytes)
}

func startExecStream(cmd *exec.Cmd, chunkBytes int) (Stream, error) {
	var stderr bytes.Buffer
	cmd.Stderr = &stderr

	stdout, err := cmd.StdoutPipe()
	if err != nil {
		return nil, &DeviceError{Op: "pipe", Err: err}
	}
	if err := cmd.Start(); err != nil {
		return nil, &DeviceError{Op: "start", Err: err}
	}

	s := &execStream{
		chunks:  make(chan []byte, 8),
		process: cmd.Process,
		waitErr: make(chan error, 1),
	}
	go s.read(cmd, stdout, chunkBytes)

	// A capture command that dies immediately usually means the device is
	// missing or permission was denied. The reader sees instant EOF and
	// reaps the process, so waitErr fires right away.
	select {
	case err := <-s.waitErr:
		if err != nil {
			return nil, &DeviceError{Op: "acquire", Err: fmt.Errorf("%w: %s", err, bytes.TrimSpace(stderr.Bytes()))}
		}
		return nil, &DeviceError{Op: "acquire", Err: errors.New("capture command exited before producing audio")}
	case <-time.After(250 * time.Millisecond):
	}

	return s, nil
}

type execStream struct {
	chunks  chan []byte
	process *os.Process
	waitErr chan error

	stopOnce sync.Once
	stopErr  error
}

func (s *execStream) Chunks() <-chan []byte { return s.chunks }

// read drains stdout to EOF before reaping the process; Wait closes the pipe,
// so calling it earlier can drop buffered trailing audio.
func (s *execStream) read(cmd *exec.Cmd, stdout io.ReadCloser, chunkBytes int) {
	for {
		buf := make([]byte, chunkBytes)
		n, err := stdout.Read(buf)
		if n > 0 {
			s.chunks <- buf[:n]
		}
		if err != nil {
			break
		}
	}
	s.waitErr <- cmd.Wait()
	close(s.chunks)
}

func (s *execStream) Stop() error {
	s.stopOnce.Do(func() {
		if s.process != nil {
			_ = s.process.Signal(os.Interrupt)
		}
		select {
		case err := <-s.waitErr:
			s.stopErr = normalizeStopErr(err)
		case <-time.After(1200 * time.Millisecond):
			if s.process != nil {
				_ = s.process.Kill()
			}
			s.stopErr = normalizeStopErr(<-s.waitErr)
		}
	})
	return s.stopErr
}

// Interrupting ffmpeg makes it flush and exit non-zero; that is a clean stop.
func normalizeStopErr(err error) error {
	if err == nil {
		return nil
	}
	var exitErr *exec.ExitError
	if errors.As(err, &exitErr) {
		return nil
	}
	return err
}
