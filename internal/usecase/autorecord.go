package usecase

import (
	"context"
	"log"
	"time"

	"meetcap/internal/domain"
)

// Recorder is the part of RecordingController the auto-recorder drives.
type Recorder interface {
	StartRecording(ctx context.Context, cfg domain.RecordingConfiguration) (domain.RecordedFiles, error)
	StopRecording(ctx context.Context) (*StopResult, error)
}

// SourceResolver finds the audio source of a meeting whose event arrived
// before its application showed up in the source snapshot.
type SourceResolver interface {
	ResolveSource(ctx context.Context, info domain.ActiveMeetingInfo) (*domain.AudioSource, error)
}

const defaultResolveRetry = 5 * time.Second

// AutoRecorder follows meeting events: it records the matched source while a
// meeting is active and stops when the meeting ends. Recordings it did not
// start are left alone.
type AutoRecorder struct {
	controller       Recorder
	enableMicrophone bool
	outputDir        string
	logger           *log.Logger

	sources      SourceResolver
	resolveRetry time.Duration
}

func NewAutoRecorder(controller Recorder, enableMicrophone bool, outputDir string, logger *log.Logger) *AutoRecorder {
	if logger == nil {
		logger = log.Default()
	}
	return &AutoRecorder{
		controller:       controller,
		enableMicrophone: enableMicrophone,
		outputDir:        outputDir,
		logger:           logger,
		resolveRetry:     defaultResolveRetry,
	}
}

// WithSourceResolver lets the recorder look up sources for active meetings
// that arrive without one, retrying every retry while the meeting lasts.
func (a *AutoRecorder) WithSourceResolver(sources SourceResolver, retry time.Duration) *AutoRecorder {
	a.sources = sources
	if retry > 0 {
		a.resolveRetry = retry
	}
	return a
}

// Run consumes events until ctx is done or the channel closes, stopping its
// own recording on the way out.
func (a *AutoRecorder) Run(ctx context.Context, events <-chan domain.MeetingEvent) error {
	var (
		owned   bool
		pending *domain.ActiveMeetingInfo
		retry   <-chan time.Time
	)
	defer func() {
		if owned {
			a.stop(context.WithoutCancel(ctx))
		}
	}()

	for {
		select {
		case <-ctx.Done():
			return ctx.Err()

		case <-retry:
			retry = nil
			if pending == nil || owned {
				continue
			}
			if source := a.resolve(ctx, pending); source != nil {
				pending = nil
				owned = a.start(ctx, *source)
				continue
			}
			retry = time.After(a.resolveRetry)

		case event, ok := <-events:
			if !ok {
				return nil
			}
			switch {
			case event.Active && !owned:
				source := event.Source
				if source == nil {
					source = a.resolve(ctx, event.Info)
				}
				if source == nil {
					if event.Info != nil && a.sources != nil {
						pending = event.Info
						retry = time.After(a.resolveRetry)
					}
					continue
				}
				pending, retry = nil, nil
				owned = a.start(ctx, *source)
			case !event.Active:
				pending, retry = nil, nil
				if owned {
					a.stop(ctx)
					owned = false
				}
			}
		}
	}
}

func (a *AutoRecorder) resolve(ctx context.Context, info *domain.ActiveMeetingInfo) *domain.AudioSource {
	if a.sources == nil || info == nil {
		return nil
	}
	source, err := a.sources.ResolveSource(ctx, *info)
	if err != nil {
		a.logger.Printf("auto-record: resolving %s audio: %v", info.AppName, err)
		return nil
	}
	if source == nil {
		a.logger.Printf("auto-record: %s is not producing audio yet", info.AppName)
	}
	return source
}

func (a *AutoRecorder) start(ctx context.Context, source domain.AudioSource) bool {
	cfg := NewRecordingConfiguration(source, a.enableMicrophone, a.outputDir)
	if _, err := a.controller.StartRecording(ctx, cfg); err != nil {
		a.logger.Printf("auto-record: not recording %s: %v", source.Name, err)
		return false
	}
	return true
}

func (a *AutoRecorder) stop(ctx context.Context) {
	result, err := a.controller.StopRecording(ctx)
	if err != nil {
		a.logger.Printf("auto-record: stop: %v", err)
	}
	if result != nil {
		a.logger.Printf("auto-record: saved %s", result.Files.SystemAudioPath)
	}
}
