package usecase

import (
	"context"
	"log"
	"sync"

	"meetcap/internal/domain"
	"meetcap/internal/ports"
)

// SessionStarter builds running capture coordinators.
type SessionStarter interface {
	StartSession(ctx context.Context, cfg domain.RecordingConfiguration) (*CaptureCoordinator, error)
}

// RecordingController is the top-level recording state machine:
// idle -> starting -> recording -> stopping -> idle, with failed reachable
// from starting.
type RecordingController struct {
	sessions  SessionStarter
	events    ports.EventSink
	finalizer transcriptFinalizer
	logger    *log.Logger

	mu      sync.Mutex
	state   domain.RecordingStateKind
	lastErr error
	config  domain.RecordingConfiguration
	active  *CaptureCoordinator
}

func NewRecordingController(sessions SessionStarter, events ports.EventSink, logger *log.Logger) *RecordingController {
	if logger == nil {
		logger = log.Default()
	}
	return &RecordingController{
		sessions:  sessions,
		events:    events,
		finalizer: newTranscriptFinalizer(events),
		logger:    logger,
		state:     domain.RecordingStateIdle,
	}
}

// StartRecording fails with domain.ErrAlreadyInProgress unless idle or failed.
// The capture outlives ctx; only StopRecording ends it.
func (c *RecordingController) StartRecording(ctx context.Context, cfg domain.RecordingConfiguration) (domain.RecordedFiles, error) {
	c.mu.Lock()
	if c.state != domain.RecordingStateIdle && c.state != domain.RecordingStateFailed {
		c.mu.Unlock()
		return domain.RecordedFiles{}, domain.ErrAlreadyInProgress
	}
	c.state = domain.RecordingStateStarting
	c.lastErr = nil
	c.config = cfg
	status := c.statusLocked()
	c.mu.Unlock()
	c.notify(status)

	coordinator, err := c.sessions.StartSession(context.WithoutCancel(ctx), cfg)

	c.mu.Lock()
	if err != nil {
		c.state = domain.RecordingStateFailed
		c.lastErr = err
		status = c.statusLocked()
		c.mu.Unlock()

		c.logger.Printf("recording %s failed to start: %v", cfg.SessionID, err)
		c.notify(status)
		c.reportError(domain.ErrorCodeRecordingStart, err.Error())
		return domain.RecordedFiles{}, err
	}
	c.state = domain.RecordingStateRecording
	c.active = coordinator
	status = c.statusLocked()
	c.mu.Unlock()

	c.notify(status)
	return coordinator.RecordedFiles(), nil
}

// StopRecording returns nil, nil unless recording. Files are returned even
// when teardown reports an error.
func (c *RecordingController) StopRecording(ctx context.Context) (*StopResult, error) {
	c.mu.Lock()
	if c.state != domain.RecordingStateRecording {
		c.mu.Unlock()
		return nil, nil
	}
	c.state = domain.RecordingStateStopping
	coordinator := c.active
	cfg := c.config
	status := c.statusLocked()
	c.mu.Unlock()
	c.notify(status)

	stopErr := coordinator.Stop(ctx)
	result := &StopResult{
		SessionID:  cfg.SessionID,
		Files:      coordinator.RecordedFiles(),
		Transcript: coordinator.Transcript(),
	}
	if path, err := c.finalizer.Finalize(cfg.SessionDir(), result.Transcript); err != nil {
		c.logger.Printf("recording %s: %v", cfg.SessionID, err)
	} else {
		result.TranscriptPath = path
	}

	c.mu.Lock()
	c.state = domain.RecordingStateIdle
	c.active = nil
	status = c.statusLocked()
	c.mu.Unlock()
	c.notify(status)

	if stopErr != nil {
		c.logger.Printf("recording %s stopped with errors: %v", cfg.SessionID, stopErr)
		c.reportError(domain.ErrorCodeRecordingStop, stopErr.Error())
	}
	return result, stopErr
}

// Close stops a live recording. Call it when the owner shuts down.
func (c *RecordingController) Close(ctx context.Context) error {
	_, err := c.StopRecording(ctx)
	return err
}

func (c *RecordingController) State() domain.RecordingStateKind {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.state
}

func (c *RecordingController) Status() domain.RecordingStatus {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.statusLocked()
}

// Levels reads the live meters; zero when not recording.
func (c *RecordingController) Levels() domain.AudioLevels {
	c.mu.Lock()
	active := c.active
	c.mu.Unlock()
	if active == nil {
		return domain.AudioLevels{}
	}
	return active.Levels()
}

func (c *RecordingController) statusLocked() domain.RecordingStatus {
	status := domain.RecordingStatus{State: c.state}
	if c.lastErr != nil {
		status.Error = c.lastErr.Error()
	}
	if c.state == domain.RecordingStateRecording && c.active != nil {
		files := c.active.RecordedFiles()
		status.Files = &files
	}
	return status
}

func (c *RecordingController) notify(status domain.RecordingStatus) {
	if c.events != nil {
		c.events.RecordingStateChanged(status)
	}
}

func (c *RecordingController) reportError(code domain.ErrorCode, detail string) {
	if c.events != nil {
		c.events.SessionError(code, detail)
	}
}
