package usecase

import (
	"context"
	"errors"
	"fmt"
	"log"
	"os"

	"meetcap/internal/domain"
	"meetcap/internal/ports"
	"meetcap/internal/transcript"
)

// SessionManagerConfig wires the collaborators of a SessionManager.
type SessionManagerConfig struct {
	Taps        ports.TapFactory
	NewRecorder ports.TapRecorderFactory
	Microphone  ports.MicrophoneCapture
	Permissions ports.PermissionProvider
	Executor    Executor
	// Transcription is optional; without it sessions record audio only.
	Transcription ports.TranscriptionProvider
	Events        ports.EventSink
	Logger        *log.Logger
}

// SessionManager validates preconditions and builds running CaptureCoordinators.
type SessionManager struct {
	cfg SessionManagerConfig
}

func NewSessionManager(cfg SessionManagerConfig) *SessionManager {
	if cfg.Executor == nil {
		cfg.Executor = inlineExecutor{}
	}
	if cfg.Logger == nil {
		cfg.Logger = log.Default()
	}
	return &SessionManager{cfg: cfg}
}

// StartSession returns a started coordinator, or fails with no tap left
// active. The one exception is a microphone failure after the system audio
// recorder started, reported as domain.ErrPartialStart.
func (m *SessionManager) StartSession(ctx context.Context, cfg domain.RecordingConfiguration) (*CaptureCoordinator, error) {
	if cfg.EnableMicrophone {
		if m.cfg.Microphone == nil {
			return nil, fmt.Errorf("%w: no microphone capture configured", domain.ErrNoAudioSource)
		}
		status := domain.PermissionNotDetermined
		if m.cfg.Permissions != nil {
			status = m.cfg.Permissions.MicrophonePermissionStatus(ctx)
		}
		if status != domain.PermissionAuthorized {
			return nil, fmt.Errorf("%w (%s)", domain.ErrMicrophonePermissionDenied, status)
		}
	}

	if err := os.MkdirAll(cfg.SessionDir(), 0o755); err != nil {
		return nil, fmt.Errorf("failed to create session directory: %w", err)
	}

	tap, err := m.tapFor(cfg.Target)
	if err != nil {
		return nil, err
	}
	if err := m.cfg.Executor.Do(ctx, func() error { return tap.Activate(ctx) }); err != nil {
		return nil, fmt.Errorf("failed to activate tap for %s: %w", cfg.Target.Name, err)
	}

	var collector *transcriptCollector
	if m.cfg.Transcription != nil {
		collector = m.startTranscription(ctx, tap, cfg.EnableMicrophone)
	}

	var mic ports.MicrophoneCapture
	if cfg.EnableMicrophone {
		mic = m.cfg.Microphone
	}
	coordinator := NewCaptureCoordinator(CaptureConfig{
		Tap:         tap,
		NewRecorder: m.cfg.NewRecorder,
		Microphone:  mic,
		Files:       cfg.ExpectedFiles(),
		Executor:    m.cfg.Executor,
		Logger:      m.cfg.Logger,
		transcripts: collector,
	})

	if err := coordinator.Start(ctx); err != nil {
		if errors.Is(err, domain.ErrPartialStart) {
			return nil, err
		}
		collector.Finish()
		teardown := context.WithoutCancel(ctx)
		if invErr := m.cfg.Executor.Do(teardown, func() error { return tap.Invalidate(teardown) }); invErr != nil {
			m.cfg.Logger.Printf("session %s: failed to invalidate tap after start failure: %v", cfg.SessionID, invErr)
		}
		return nil, err
	}
	return coordinator, nil
}

func (m *SessionManager) tapFor(target domain.AudioSource) (ports.Tap, error) {
	var (
		tap ports.Tap
		err error
	)
	if target.IsSystemWide() {
		tap, err = m.cfg.Taps.SystemWide()
	} else {
		tap, err = m.cfg.Taps.ForProcess(target)
	}
	if err != nil {
		if errors.Is(err, domain.ErrUnsupportedTarget) || errors.Is(err, domain.ErrTapCreation) {
			return nil, err
		}
		return nil, fmt.Errorf("%w: %v", domain.ErrTapCreation, err)
	}
	return tap, nil
}

func (m *SessionManager) startTranscription(ctx context.Context, tap ports.Tap, withMicrophone bool) *transcriptCollector {
	var (
		format domain.SampleFormat
		ok     bool
	)
	err := m.cfg.Executor.Do(ctx, func() error {
		format, ok = tap.StreamFormat()
		return nil
	})
	if err != nil {
		m.cfg.Logger.Printf("transcription disabled: failed to read tap format: %v", err)
		return nil
	}
	if !ok {
		return nil
	}
	sources := []transcript.Source{transcript.SourceSystem}
	if withMicrophone {
		sources = append(sources, transcript.SourceMicrophone)
	}
	return newTranscriptCollector(ctx, m.cfg.Transcription, format, sources, m.cfg.Events, m.cfg.Logger)
}
