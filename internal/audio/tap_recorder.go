package audio

import (
	"context"
	"errors"
	"log"
	"sync"

	"meetcap/internal/ports"
)

var ErrTapNotActivated = errors.New("tap has no stream format; activate it first")

// TapRecorder writes a tap's PCM stream to a WAV file.
type TapRecorder struct {
	tap       ports.Tap
	sink      ports.ChunkSink
	chunkSize int
	logger    *log.Logger

	mu       sync.Mutex
	recorder *PCMRecorder
}

func NewTapRecorder(tap ports.Tap, sink ports.ChunkSink, chunkSize int, logger *log.Logger) *TapRecorder {
	return &TapRecorder{tap: tap, sink: sink, chunkSize: chunkSize, logger: logger}
}

// NewTapRecorderFactory binds recorders with shared chunk settings.
func NewTapRecorderFactory(chunkSize int, logger *log.Logger) ports.TapRecorderFactory {
	return func(tap ports.Tap, sink ports.ChunkSink) ports.TapRecorder {
		return NewTapRecorder(tap, sink, chunkSize, logger)
	}
}

func (r *TapRecorder) Start(ctx context.Context, outputPath string) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	if r.recorder != nil {
		return ErrRecorderStarted
	}

	format, ok := r.tap.StreamFormat()
	if !ok {
		return ErrTapNotActivated
	}
	session, err := r.tap.Open(ctx)
	if err != nil {
		return err
	}

	recorder := NewPCMRecorder(format, r.sink, r.chunkSize, r.logger)
	if err := recorder.Start(session, outputPath); err != nil {
		_ = session.Stop()
		return err
	}
	r.recorder = recorder
	return nil
}

func (r *TapRecorder) Stop() error {
	r.mu.Lock()
	recorder := r.recorder
	r.mu.Unlock()
	if recorder == nil {
		return nil
	}
	return recorder.Stop()
}

func (r *TapRecorder) Level() float64 {
	r.mu.Lock()
	recorder := r.recorder
	r.mu.Unlock()
	if recorder == nil {
		return 0
	}
	return recorder.Level()
}
