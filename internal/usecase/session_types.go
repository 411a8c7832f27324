package usecase

import (
	"context"

	"github.com/google/uuid"

	"meetcap/internal/domain"
	"meetcap/internal/transcript"
)

// Executor serializes work that must run on the audio owner context.
type Executor interface {
	Do(ctx context.Context, fn func() error) error
}

// StopResult is what a finished recording hands downstream.
type StopResult struct {
	SessionID      string                 `json:"sessionId"`
	Files          domain.RecordedFiles   `json:"files"`
	Transcript     transcript.Timestamped `json:"-"`
	TranscriptPath string                 `json:"transcriptPath,omitempty"`
}

// NewRecordingConfiguration assigns a fresh session id.
func NewRecordingConfiguration(target domain.AudioSource, enableMicrophone bool, outputDir string) domain.RecordingConfiguration {
	return domain.RecordingConfiguration{
		SessionID:        uuid.NewString(),
		Target:           target,
		EnableMicrophone: enableMicrophone,
		OutputDir:        outputDir,
	}
}

type inlineExecutor struct{}

func (inlineExecutor) Do(_ context.Context, fn func() error) error {
	return fn()
}
