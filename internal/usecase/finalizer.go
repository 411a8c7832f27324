package usecase

import (
	"fmt"
	"os"
	"path/filepath"

	"meetcap/internal/domain"
	"meetcap/internal/ports"
	"meetcap/internal/transcript"
)

const TranscriptFileName = "transcript.txt"

// transcriptFinalizer writes the merged transcript next to the audio files.
type transcriptFinalizer struct {
	events ports.EventSink
}

func newTranscriptFinalizer(events ports.EventSink) transcriptFinalizer {
	return transcriptFinalizer{events: events}
}

// Finalize returns the written path, or "" when there was nothing to write.
func (f transcriptFinalizer) Finalize(sessionDir string, merged transcript.Timestamped) (string, error) {
	if merged.IsEmpty() {
		return "", nil
	}
	path := filepath.Join(sessionDir, TranscriptFileName)
	if err := os.WriteFile(path, []byte(merged.Format()), 0o644); err != nil {
		if f.events != nil {
			f.events.SessionError(domain.ErrorCodeTranscription, "transcript ready but could not be saved")
		}
		return "", fmt.Errorf("failed to write transcript: %w", err)
	}
	return path, nil
}
