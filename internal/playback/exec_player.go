package playback

import (
	"context"
	"fmt"
	"os"
	"os/exec"
	"sync"

	"github.com/mattn/go-shellwords"
)

// execPlayer pipes audio bytes into an external command (ffplay by default)
// and treats process exit as playback completion.
type execPlayer struct {
	cmd []string
}

func NewExecPlayer(command string) (Player, error) {
	parser := shellwords.NewParser()
	args, err := parser.Parse(command)
	if err != nil {
		return nil, fmt.Errorf("parse playback command: %w", err)
	}
	if len(args) == 0 {
		return nil, fmt.Errorf("playback command is empty")
	}
	return &execPlayer{cmd: args}, nil
}

func (p *execPlayer) Play(ctx context.Context, audio []byte) (Session, error) {
	base := p.cmd[0]
	args := append([]string{}, p.cmd[1:]...)
	cmd := exec.CommandContext(ctx, base, args...)

	stdin, err := cmd.StdinPipe()
	if err != nil {
		return nil, &PlaybackError{Err: err}
	}
	if err := cmd.Start(); err != nil {
		return nil, &PlaybackError{Err: err}
	}

	s := &execSession{
		process: cmd.Process,
		done:    make(chan struct{}),
	}

	go func() {
		_, _ = stdin.Write(audio)
		_ = stdin.Close()
		_ = cmd.Wait()
		s.finish()
	}()

	return s, nil
}

type execSession struct {
	process  *os.Process
	done     chan struct{}
	stopOnce sync.Once
	doneOnce sync.Once
}

func (s *execSession) Done() <-chan struct{} { return s.done }

func (s *execSession) finish() {
	s.doneOnce.Do(func() { close(s.done) })
}

// Stop kills the player process and releases the handle. Safe to call
// repeatedly; the waiter goroutine still closes Done.
func (s *execSession) Stop() {
	s.stopOnce.Do(func() {
		if s.process != nil {
			_ = s.process.Kill()
		}
	})
}
