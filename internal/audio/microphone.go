package audio

import (
	"context"
	"log"
	"sync"

	"meetcap/internal/domain"
	"meetcap/internal/ports"
)

// MicrophoneConfig selects the ffmpeg input used for the microphone.
type MicrophoneConfig struct {
	InputFormat string
	Device      string
	ChunkSize   int
	Logger      *log.Logger
}

// Microphone records the default input, resampled to the requested format.
type Microphone struct {
	capture ports.AudioCapture
	cfg     MicrophoneConfig

	mu       sync.Mutex
	recorder *PCMRecorder
}

func NewMicrophone(capture ports.AudioCapture, cfg MicrophoneConfig) *Microphone {
	return &Microphone{capture: capture, cfg: cfg}
}

func (m *Microphone) Start(ctx context.Context, outputPath string, format domain.SampleFormat, sink ports.ChunkSink) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.recorder != nil {
		return ErrRecorderStarted
	}

	session, err := m.capture.Start(ctx, ports.AudioConfig{
		SampleRate:  format.SampleRate,
		Channels:    format.Channels,
		InputFormat: m.cfg.InputFormat,
		InputDevice: m.cfg.Device,
	})
	if err != nil {
		return err
	}

	recorder := NewPCMRecorder(format, sink, m.cfg.ChunkSize, m.cfg.Logger)
	if err := recorder.Start(session, outputPath); err != nil {
		_ = session.Stop()
		return err
	}
	m.recorder = recorder
	return nil
}

// Stop ends the recording. The microphone can be started again afterwards.
func (m *Microphone) Stop() error {
	m.mu.Lock()
	recorder := m.recorder
	m.recorder = nil
	m.mu.Unlock()
	if recorder == nil {
		return nil
	}
	return recorder.Stop()
}

func (m *Microphone) AudioLevel() float64 {
	m.mu.Lock()
	recorder := m.recorder
	m.mu.Unlock()
	if recorder == nil {
		return 0
	}
	return recorder.Level()
}
