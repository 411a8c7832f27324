package usecase

import (
	"context"
	"errors"
	"fmt"
	"log"
	"sync"

	"meetcap/internal/domain"
	"meetcap/internal/ports"
	"meetcap/internal/transcript"
)

// CaptureConfig wires one CaptureCoordinator.
type CaptureConfig struct {
	// Tap is the system or process tap, already activated. May be nil for
	// configurations without a system audio path.
	Tap         ports.Tap
	NewRecorder ports.TapRecorderFactory
	// Microphone is used only when Files.MicrophonePath is set.
	Microphone ports.MicrophoneCapture
	Files      domain.RecordedFiles
	Executor   Executor
	Logger     *log.Logger

	transcripts *transcriptCollector
}

// CaptureCoordinator owns the tap recorder and microphone capture of one
// recording session.
type CaptureCoordinator struct {
	tap         ports.Tap
	newRecorder ports.TapRecorderFactory
	mic         ports.MicrophoneCapture
	files       domain.RecordedFiles
	executor    Executor
	logger      *log.Logger
	transcripts *transcriptCollector

	mu         sync.Mutex
	running    bool
	recorder   ports.TapRecorder
	micStarted bool
	transcript transcript.Timestamped
}

func NewCaptureCoordinator(cfg CaptureConfig) *CaptureCoordinator {
	if cfg.Executor == nil {
		cfg.Executor = inlineExecutor{}
	}
	if cfg.Logger == nil {
		cfg.Logger = log.Default()
	}
	return &CaptureCoordinator{
		tap:         cfg.Tap,
		newRecorder: cfg.NewRecorder,
		mic:         cfg.Microphone,
		files:       cfg.Files,
		executor:    cfg.Executor,
		logger:      cfg.Logger,
		transcripts: cfg.transcripts,
	}
}

// Start begins system audio recording, then microphone recording matched to
// the tap's stream format. If the microphone fails after the tap recorder
// started, the tap recorder is left running and the error wraps
// domain.ErrPartialStart.
func (c *CaptureCoordinator) Start(ctx context.Context) error {
	c.mu.Lock()
	defer c.mu.Unlock()
	if c.running {
		return domain.ErrAlreadyRunning
	}

	if c.files.SystemAudioPath != "" && c.tap != nil && c.recorder == nil {
		recorder := c.newRecorder(ownedTap{tap: c.tap, executor: c.executor}, c.transcripts.Sink(transcript.SourceSystem))
		if err := recorder.Start(ctx, c.files.SystemAudioPath); err != nil {
			return fmt.Errorf("failed to start system audio recording: %w", err)
		}
		c.recorder = recorder
	}

	if c.files.MicrophonePath != "" && c.mic != nil {
		if c.recorder == nil {
			return domain.ErrNoAudioSource
		}
		format, err := c.streamFormat(ctx)
		if err != nil {
			return c.partial(err)
		}
		if err := c.mic.Start(ctx, c.files.MicrophonePath, format, c.transcripts.Sink(transcript.SourceMicrophone)); err != nil {
			return c.partial(fmt.Errorf("failed to start microphone recording: %w", err))
		}
		c.micStarted = true
	}

	c.running = true
	return nil
}

func (c *CaptureCoordinator) partial(err error) error {
	c.logger.Printf("capture: system audio still recording to %s after microphone failure", c.files.SystemAudioPath)
	return fmt.Errorf("%w: %w", domain.ErrPartialStart, err)
}

// streamFormat reads the tap format on the owner executor.
func (c *CaptureCoordinator) streamFormat(ctx context.Context) (domain.SampleFormat, error) {
	var (
		format domain.SampleFormat
		ok     bool
	)
	err := c.executor.Do(ctx, func() error {
		format, ok = c.tap.StreamFormat()
		return nil
	})
	if err != nil {
		return domain.SampleFormat{}, err
	}
	if !ok {
		return domain.SampleFormat{}, fmt.Errorf("%w: tap stream format unavailable", domain.ErrNoAudioSource)
	}
	return format, nil
}

// ownedTap runs every call on the tap through the owner executor, so the
// recorder can be handed a tap without knowing about the executor.
type ownedTap struct {
	tap      ports.Tap
	executor Executor
}

func (t ownedTap) Target() domain.AudioSource {
	var target domain.AudioSource
	_ = t.executor.Do(context.Background(), func() error {
		target = t.tap.Target()
		return nil
	})
	return target
}

func (t ownedTap) Activate(ctx context.Context) error {
	return t.executor.Do(ctx, func() error { return t.tap.Activate(ctx) })
}

func (t ownedTap) Invalidate(ctx context.Context) error {
	return t.executor.Do(ctx, func() error { return t.tap.Invalidate(ctx) })
}

// StreamFormat reports false when the executor refuses the read.
func (t ownedTap) StreamFormat() (domain.SampleFormat, bool) {
	var (
		format domain.SampleFormat
		ok     bool
	)
	err := t.executor.Do(context.Background(), func() error {
		format, ok = t.tap.StreamFormat()
		return nil
	})
	return format, ok && err == nil
}

func (t ownedTap) Open(ctx context.Context) (ports.AudioSession, error) {
	var session ports.AudioSession
	err := t.executor.Do(ctx, func() error {
		var err error
		session, err = t.tap.Open(ctx)
		return err
	})
	return session, err
}

// Stop stops the microphone, then the tap recorder, then invalidates the tap.
// It is a no-op when not running.
func (c *CaptureCoordinator) Stop(ctx context.Context) error {
	c.mu.Lock()
	defer c.mu.Unlock()
	if !c.running {
		return nil
	}

	var errs []error
	if c.micStarted {
		if err := c.mic.Stop(); err != nil {
			errs = append(errs, fmt.Errorf("failed to stop microphone: %w", err))
		}
		c.micStarted = false
	}
	if c.recorder != nil {
		if err := c.recorder.Stop(); err != nil {
			errs = append(errs, fmt.Errorf("failed to stop system audio recording: %w", err))
		}
		c.recorder = nil
	}
	if c.tap != nil {
		// teardown runs to completion even if the caller's context is done
		teardown := context.WithoutCancel(ctx)
		err := c.executor.Do(teardown, func() error { return c.tap.Invalidate(teardown) })
		if err != nil {
			errs = append(errs, fmt.Errorf("failed to invalidate tap: %w", err))
		}
	}
	c.running = false

	c.transcript = c.transcripts.Finish()
	return errors.Join(errs...)
}

func (c *CaptureCoordinator) SystemLevel() float64 {
	c.mu.Lock()
	recorder := c.recorder
	c.mu.Unlock()
	if recorder == nil {
		return 0
	}
	return recorder.Level()
}

func (c *CaptureCoordinator) MicrophoneLevel() float64 {
	c.mu.Lock()
	started := c.micStarted
	c.mu.Unlock()
	if !started {
		return 0
	}
	return c.mic.AudioLevel()
}

func (c *CaptureCoordinator) Levels() domain.AudioLevels {
	return domain.AudioLevels{System: c.SystemLevel(), Microphone: c.MicrophoneLevel()}
}

func (c *CaptureCoordinator) RecordedFiles() domain.RecordedFiles {
	return c.files
}

func (c *CaptureCoordinator) IsRunning() bool {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.running
}

// Transcript is the merged live transcript, available after Stop.
func (c *CaptureCoordinator) Transcript() transcript.Timestamped {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.transcript
}
