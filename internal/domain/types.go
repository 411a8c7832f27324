package domain

import (
	"path/filepath"
)

const (
	SystemAudioFileName = "system_recording.wav"
	MicrophoneFileName  = "microphone_recording.wav"
)

// RecordingStateKind models the top-level recording lifecycle.
type RecordingStateKind string

const (
	RecordingStateIdle      RecordingStateKind = "idle"
	RecordingStateStarting  RecordingStateKind = "starting"
	RecordingStateRecording RecordingStateKind = "recording"
	RecordingStateStopping  RecordingStateKind = "stopping"
	RecordingStateFailed    RecordingStateKind = "failed"
)

// ErrorCode identifies errors surfaced to observers.
type ErrorCode string

const (
	ErrorCodeStartup        ErrorCode = "startup"
	ErrorCodeRecordingStart ErrorCode = "recording_start"
	ErrorCodeRecordingStop  ErrorCode = "recording_stop"
	ErrorCodeDetection      ErrorCode = "detection"
	ErrorCodeTranscription  ErrorCode = "transcription"
)

// RecordingConfiguration describes one recording session.
type RecordingConfiguration struct {
	SessionID        string
	Target           AudioSource
	EnableMicrophone bool
	OutputDir        string
}

// SessionDir is the per-session directory holding the output files.
func (c RecordingConfiguration) SessionDir() string {
	return filepath.Join(c.OutputDir, c.SessionID)
}

// ExpectedFiles derives the output paths for the configuration.
func (c RecordingConfiguration) ExpectedFiles() RecordedFiles {
	dir := c.SessionDir()
	files := RecordedFiles{
		SystemAudioPath: filepath.Join(dir, SystemAudioFileName),
	}
	if c.EnableMicrophone {
		files.MicrophonePath = filepath.Join(dir, MicrophoneFileName)
	}
	if !c.Target.IsSystemWide() {
		files.ApplicationName = c.Target.Name
	}
	return files
}

// RecordedFiles lists the artifacts of a recording session.
type RecordedFiles struct {
	MicrophonePath  string `json:"microphonePath,omitempty"`
	SystemAudioPath string `json:"systemAudioPath,omitempty"`
	ApplicationName string `json:"applicationName,omitempty"`
}

// RecordingStatus summarizes the recording state for observers.
type RecordingStatus struct {
	State RecordingStateKind `json:"state"`
	Error string             `json:"error,omitempty"`
	Files *RecordedFiles     `json:"files,omitempty"`
}

// AudioLevels are instantaneous capture levels in the 0..1 range.
type AudioLevels struct {
	System     float64 `json:"system"`
	Microphone float64 `json:"microphone"`
}

// SampleFormat describes a linear PCM stream.
type SampleFormat struct {
	SampleRate int `json:"sampleRate"`
	Channels   int `json:"channels"`
	BitDepth   int `json:"bitDepth"`
}

// PermissionStatus is the microphone authorization state.
type PermissionStatus string

const (
	PermissionAuthorized    PermissionStatus = "authorized"
	PermissionDenied        PermissionStatus = "denied"
	PermissionNotDetermined PermissionStatus = "notDetermined"
)

// TranscriptKind identifies whether a stream event is partial or final text.
type TranscriptKind string

const (
	TranscriptKindPartial TranscriptKind = "partial"
	TranscriptKindFinal   TranscriptKind = "final"
)

// TranscriptEvent represents incremental transcription output from a provider.
// Start and End are seconds from the beginning of the stream.
type TranscriptEvent struct {
	Kind          TranscriptKind `json:"kind"`
	Text          string         `json:"text"`
	IsSpeechFinal bool           `json:"isSpeechFinal"`
	Start         float64        `json:"start"`
	End           float64        `json:"end"`
}
