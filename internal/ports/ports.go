package ports

import (
	"context"
	"io"

	"meetcap/internal/domain"
)

// AudioConfig describes how a capture device should be read.
type AudioConfig struct {
	SampleRate  int
	Channels    int
	InputFormat string
	InputDevice string
}

// AudioSession is a live capture session yielding s16le PCM.
type AudioSession interface {
	io.ReadCloser
	Stop() error
}

// AudioCapture creates capture sessions.
type AudioCapture interface {
	Start(ctx context.Context, cfg AudioConfig) (AudioSession, error)
}

// AudioObject is one active object reported by the OS audio subsystem.
type AudioObject struct {
	Handle   uint32
	PID      int
	Binary   string
	AppName  string
	BundleID string
	Running  bool
}

// AudioSubsystem lists active audio objects.
type AudioSubsystem interface {
	ListAudioObjects(ctx context.Context) ([]AudioObject, error)
}

// RunningApplication is a known application matched by process id.
type RunningApplication struct {
	PID        int
	Name       string
	BundleID   string
	BundlePath string
}

// ApplicationResolver resolves process ids to applications and raw process metadata.
type ApplicationResolver interface {
	RunningApplication(pid int) (RunningApplication, bool)
	ExecutablePath(pid int) (string, error)
	BinaryName(pid int) (string, error)
}

// WindowProvider enumerates visible windows. It fails when the
// screen-recording-equivalent permission is not granted.
type WindowProvider interface {
	CurrentWindows(ctx context.Context) ([]domain.Window, error)
}

// Tap is an OS-level audio resource yielding PCM from one process or the whole system.
type Tap interface {
	Target() domain.AudioSource
	Activate(ctx context.Context) error
	Invalidate(ctx context.Context) error
	// StreamFormat is unknown (false) until the tap is activated.
	StreamFormat() (domain.SampleFormat, bool)
	Open(ctx context.Context) (AudioSession, error)
}

// TapFactory constructs taps for the system or a single process.
type TapFactory interface {
	SystemWide() (Tap, error)
	ForProcess(source domain.AudioSource) (Tap, error)
}

// TapRecorder writes a tap's audio to a file.
type TapRecorder interface {
	Start(ctx context.Context, outputPath string) error
	Stop() error
	Level() float64
}

// TapRecorderFactory binds a recorder to a tap.
type TapRecorderFactory func(tap Tap, sink ChunkSink) TapRecorder

// MicrophoneCapture records the microphone format-matched to a tap.
type MicrophoneCapture interface {
	Start(ctx context.Context, outputPath string, format domain.SampleFormat, sink ChunkSink) error
	Stop() error
	AudioLevel() float64
}

// PermissionProvider reports microphone authorization.
type PermissionProvider interface {
	MicrophonePermissionStatus(ctx context.Context) domain.PermissionStatus
}

// ChunkSink receives raw PCM chunks as they are captured.
type ChunkSink interface {
	WriteChunk(chunk []byte)
}

// StreamingConfig describes provider-agnostic streaming settings.
type StreamingConfig struct {
	SampleRate     int
	Channels       int
	Encoding       string
	InterimResults bool
}

// StreamingSession is an active provider websocket session.
type StreamingSession interface {
	SendAudio(chunk []byte) error
	CloseSend() error
	Events() <-chan domain.TranscriptEvent
	Wait() error
	Close() error
}

// TranscriptionProvider starts streaming transcription sessions.
type TranscriptionProvider interface {
	StartStreaming(ctx context.Context, cfg StreamingConfig) (StreamingSession, error)
}

// EventSink emits backend state/events to observers.
type EventSink interface {
	RecordingStateChanged(status domain.RecordingStatus)
	MeetingStateChanged(event domain.MeetingEvent)
	SessionError(code domain.ErrorCode, detail string)
}
