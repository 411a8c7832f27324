package audio

import (
	"context"
	"errors"
	"fmt"
	"os"
	"os/exec"
	"strconv"
	"strings"
	"sync"
	"time"

	"meetcap/internal/ports"
)

const (
	DefaultSampleRate = 48000
	DefaultChannels   = 2

	startupGrace = 250 * time.Millisecond
	stopTimeout  = 1200 * time.Millisecond
	stderrLimit  = 4096
)

// FFMPEGCapture reads s16le PCM from any ffmpeg input (a pulse source, a sink
// monitor) through an ffmpeg subprocess.
type FFMPEGCapture struct {
	command string
}

func NewFFMPEGCapture(command string) *FFMPEGCapture {
	if command == "" {
		command = "ffmpeg"
	}
	return &FFMPEGCapture{command: command}
}

// Start launches ffmpeg and returns once it has survived startupGrace. The
// process is interrupted when ctx ends or the session is stopped, and killed
// if it has not exited stopTimeout later.
func (c *FFMPEGCapture) Start(ctx context.Context, cfg ports.AudioConfig) (ports.AudioSession, error) {
	procCtx, cancel := context.WithCancel(ctx)
	cmd := exec.CommandContext(procCtx, c.command, captureArgs(cfg)...)
	cmd.Cancel = func() error {
		return cmd.Process.Signal(os.Interrupt)
	}
	cmd.WaitDelay = stopTimeout

	stderr := &tailBuffer{limit: stderrLimit}
	cmd.Stderr = stderr

	pcm, pcmWriter, err := os.Pipe()
	if err != nil {
		cancel()
		return nil, fmt.Errorf("failed to create ffmpeg stdout pipe: %w", err)
	}
	cmd.Stdout = pcmWriter

	if err := cmd.Start(); err != nil {
		cancel()
		_ = pcm.Close()
		_ = pcmWriter.Close()
		return nil, fmt.Errorf("failed to start ffmpeg: %w", err)
	}
	// ffmpeg owns the write end from here; EOF follows its exit.
	_ = pcmWriter.Close()

	proc := &captureProcess{
		pcm:    pcm,
		stderr: stderr,
		cancel: cancel,
		exited: make(chan struct{}),
	}
	go func() {
		proc.waitErr = cmd.Wait()
		close(proc.exited)
	}()

	select {
	case <-proc.exited:
		cancel()
		_ = pcm.Close()
		if proc.waitErr != nil {
			return nil, fmt.Errorf("ffmpeg exited before capture started: %w: %s", proc.waitErr, stderr.String())
		}
		return nil, errors.New("ffmpeg exited before capture started")
	case <-time.After(startupGrace):
	}
	return proc, nil
}

// captureArgs fills in defaults and builds the ffmpeg argument list.
func captureArgs(cfg ports.AudioConfig) []string {
	if cfg.SampleRate <= 0 {
		cfg.SampleRate = DefaultSampleRate
	}
	if cfg.Channels <= 0 {
		cfg.Channels = DefaultChannels
	}
	if cfg.InputFormat == "" {
		cfg.InputFormat = "pulse"
	}
	if cfg.InputDevice == "" {
		cfg.InputDevice = "default"
	}
	return []string{
		"-nostdin",
		"-hide_banner",
		"-loglevel", "warning",
		"-f", cfg.InputFormat,
		"-i", cfg.InputDevice,
		"-ac", strconv.Itoa(cfg.Channels),
		"-ar", strconv.Itoa(cfg.SampleRate),
		"-f", "s16le",
		"-",
	}
}

type captureProcess struct {
	pcm    *os.File
	stderr *tailBuffer
	cancel context.CancelFunc

	exited  chan struct{}
	waitErr error

	stopOnce sync.Once
	stopErr  error
}

func (p *captureProcess) Read(b []byte) (int, error) {
	return p.pcm.Read(b)
}

func (p *captureProcess) Close() error {
	return p.Stop()
}

func (p *captureProcess) Stop() error {
	p.stopOnce.Do(func() {
		p.cancel()
		<-p.exited

		p.stopErr = stopError(p.waitErr)
		if err := p.pcm.Close(); err != nil && !errors.Is(err, os.ErrClosed) && p.stopErr == nil {
			p.stopErr = err
		}
		if p.stopErr != nil {
			if tail := p.stderr.String(); tail != "" {
				p.stopErr = fmt.Errorf("%w: %s", p.stopErr, tail)
			}
		}
	})
	return p.stopErr
}

// stopError maps the outcome of an interrupted ffmpeg to nil. ffmpeg exits
// non-zero on SIGINT even after a clean flush.
func stopError(err error) error {
	var exitErr *exec.ExitError
	switch {
	case err == nil,
		errors.As(err, &exitErr),
		errors.Is(err, context.Canceled),
		errors.Is(err, exec.ErrWaitDelay):
		return nil
	default:
		return err
	}
}

// tailBuffer keeps the last limit bytes of ffmpeg's diagnostics.
type tailBuffer struct {
	mu    sync.Mutex
	buf   []byte
	limit int
}

func (b *tailBuffer) Write(p []byte) (int, error) {
	b.mu.Lock()
	defer b.mu.Unlock()
	b.buf = append(b.buf, p...)
	if over := len(b.buf) - b.limit; over > 0 {
		b.buf = append(b.buf[:0], b.buf[over:]...)
	}
	return len(p), nil
}

func (b *tailBuffer) String() string {
	b.mu.Lock()
	defer b.mu.Unlock()
	return strings.TrimSpace(string(b.buf))
}
