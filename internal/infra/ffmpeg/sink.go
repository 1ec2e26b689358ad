package ffmpeg

import (
	"context"
	"os"
	"os/exec"
	"strconv"
	"sync"
	"time"

	"github.com/cockroachdb/errors"
	zlog "github.com/rs/zerolog/log"

	"github.com/osa030/voicebox/internal/app/playback"
	"github.com/osa030/voicebox/internal/domain/track"
)

var (
	errSinkClosed = errors.New("sink is closed")
	errBusy       = errors.New("sink is already playing")
	errIdle       = errors.New("sink is not playing")
)

// Sink streams one playable source at a time to a fixed output target.
type Sink struct {
	contextID string
	path      string
	target    string
	format    string
	codec     string
	bitrate   string
	stopGrace time.Duration
	command   commandFunc

	mu       sync.Mutex
	cmd      *exec.Cmd
	paused   bool
	stopping bool
	closed   bool
}

var _ playback.Sink = (*Sink)(nil)

// Play starts an ffmpeg process for src. The returned channel yields one
// value when the process exits: nil on natural end or Stop.
func (s *Sink) Play(ctx context.Context, src track.PlayableSource) (<-chan error, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	if s.closed {
		return nil, errors.Mark(errSinkClosed, playback.ErrTransport)
	}
	if s.cmd != nil {
		return nil, errors.Mark(errBusy, playback.ErrTransport)
	}
	if err := src.Validate(); err != nil {
		return nil, errors.Mark(err, playback.ErrTransport)
	}

	args := buildArgs(src, s.target, s.format, s.codec, s.bitrate)
	cmd := s.command(ctx, s.path, args...)
	stderr := newTailBuffer(2048)
	cmd.Stderr = stderr
	cmd.Cancel = func() error {
		return terminate(cmd.Process)
	}
	cmd.WaitDelay = s.stopGrace

	if err := cmd.Start(); err != nil {
		return nil, errors.Mark(errors.Wrap(err, "failed to start ffmpeg"), playback.ErrTransport)
	}

	s.cmd = cmd
	s.paused = false
	s.stopping = false

	zlog.Debug().Str("context", s.contextID).Int("pid", cmd.Process.Pid).Msgf("ffmpeg: started: %s", src.Title)

	completion := make(chan error, 1)
	go s.wait(ctx, cmd, stderr, completion)
	return completion, nil
}

func (s *Sink) wait(ctx context.Context, cmd *exec.Cmd, stderr *tailBuffer, completion chan<- error) {
	err := cmd.Wait()

	s.mu.Lock()
	stopped := s.stopping || ctx.Err() != nil
	if s.cmd == cmd {
		s.cmd = nil
		s.paused = false
		s.stopping = false
	}
	s.mu.Unlock()

	if err != nil && !stopped {
		zlog.Warn().Err(err).Str("context", s.contextID).Str("stderr", stderr.String()).Msg("ffmpeg: exited with error")
		completion <- errors.Mark(errors.Wrapf(err, "ffmpeg: %s", stderr.String()), playback.ErrTransport)
	} else {
		completion <- nil
	}
	close(completion)
}

// Pause suspends the running process.
func (s *Sink) Pause() error {
	s.mu.Lock()
	defer s.mu.Unlock()

	if s.cmd == nil {
		return errIdle
	}
	if s.paused {
		return nil
	}
	if err := suspend(s.cmd.Process); err != nil {
		return errors.Wrap(err, "failed to suspend ffmpeg")
	}
	s.paused = true
	return nil
}

// Resume continues a suspended process.
func (s *Sink) Resume() error {
	s.mu.Lock()
	defer s.mu.Unlock()

	if s.cmd == nil {
		return errIdle
	}
	if !s.paused {
		return nil
	}
	if err := resume(s.cmd.Process); err != nil {
		return errors.Wrap(err, "failed to resume ffmpeg")
	}
	s.paused = false
	return nil
}

// Stop terminates the running process. The completion channel of the
// current Play then yields nil. Stopping an idle sink is a no-op.
func (s *Sink) Stop() error {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.stopLocked()
}

func (s *Sink) stopLocked() error {
	if s.cmd == nil || s.stopping {
		return nil
	}
	s.stopping = true
	s.paused = false

	proc := s.cmd.Process
	if err := terminate(proc); err != nil {
		zlog.Debug().Err(err).Str("context", s.contextID).Msg("ffmpeg: terminate failed, killing")
		if err := proc.Kill(); err != nil && !errors.Is(err, os.ErrProcessDone) {
			return errors.Mark(errors.Wrap(err, "failed to kill ffmpeg"), playback.ErrTransport)
		}
		return nil
	}

	cmd := s.cmd
	time.AfterFunc(s.stopGrace, func() {
		s.mu.Lock()
		defer s.mu.Unlock()
		if s.cmd == cmd {
			zlog.Warn().Str("context", s.contextID).Int("pid", proc.Pid).Msg("ffmpeg: did not exit, killing")
			_ = proc.Kill()
		}
	})
	return nil
}

// IsPlaying reports whether a process is running and not suspended.
func (s *Sink) IsPlaying() bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.cmd != nil && !s.paused
}

// IsPaused reports whether the running process is suspended.
func (s *Sink) IsPaused() bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.cmd != nil && s.paused
}

// Close stops any running process and rejects further plays.
func (s *Sink) Close() error {
	s.mu.Lock()
	defer s.mu.Unlock()

	if s.closed {
		return nil
	}
	s.closed = true
	return s.stopLocked()
}

// tailBuffer keeps the last n bytes written to it.
type tailBuffer struct {
	mu  sync.Mutex
	n   int
	buf []byte
}

func newTailBuffer(n int) *tailBuffer {
	return &tailBuffer{n: n}
}

func (b *tailBuffer) Write(p []byte) (int, error) {
	b.mu.Lock()
	defer b.mu.Unlock()

	b.buf = append(b.buf, p...)
	if over := len(b.buf) - b.n; over > 0 {
		b.buf = b.buf[over:]
	}
	return len(p), nil
}

func (b *tailBuffer) String() string {
	b.mu.Lock()
	defer b.mu.Unlock()
	return string(b.buf)
}

func seconds(d time.Duration) string {
	s := int(d.Seconds())
	if s < 1 {
		s = 1
	}
	return strconv.Itoa(s)
}
