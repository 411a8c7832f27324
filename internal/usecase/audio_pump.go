package usecase

import (
	"fmt"
	"sync/atomic"
	"time"

	"meetcap/internal/domain"
	"meetcap/internal/ports"
)

// streamSink forwards captured PCM chunks of one source to a transcription
// stream. After the first send failure it reports once and drops the rest;
// recording continues without transcription.
type streamSink struct {
	label  string
	stream ports.StreamingSession
	events ports.EventSink

	broken atomic.Bool
}

func newStreamSink(label string, stream ports.StreamingSession, events ports.EventSink) *streamSink {
	return &streamSink{label: label, stream: stream, events: events}
}

func (s *streamSink) WriteChunk(chunk []byte) {
	if s.broken.Load() {
		return
	}
	err := s.stream.SendAudio(chunk)
	if err == nil || !s.broken.CompareAndSwap(false, true) {
		return
	}
	if s.events != nil {
		s.events.SessionError(domain.ErrorCodeTranscription, fmt.Sprintf("failed to stream %s audio: %v", s.label, err))
	}
}

// waitForStream waits for the provider to flush its last results, closing the
// session if that takes longer than timeout.
func waitForStream(session ports.StreamingSession, timeout time.Duration) error {
	done := make(chan error, 1)
	go func() {
		done <- session.Wait()
	}()

	timer := time.NewTimer(timeout)
	defer timer.Stop()
	select {
	case err := <-done:
		return err
	case <-timer.C:
		_ = session.Close()
		return <-done
	}
}
