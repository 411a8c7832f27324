package main

import (
	"context"
	"errors"
	"fmt"

	"github.com/wailsapp/wails/v2/pkg/runtime"

	"meetcap/internal/bootstrap"
	"meetcap/internal/domain"
	"meetcap/internal/meeting"
	"meetcap/internal/usecase"
)

const (
	eventRecording = "meetcap:recording"
	eventMeeting   = "meetcap:meeting"
	eventError     = "meetcap:error"
)

// App is the Wails application root.
type App struct {
	ctx context.Context

	services *bootstrap.Services
	bootErr  error
}

func NewApp() *App {
	return &App{}
}

func (a *App) startup(ctx context.Context) {
	a.ctx = ctx

	services, err := bootstrap.Build(a)
	if err != nil {
		a.bootErr = err
		a.SessionError(domain.ErrorCodeStartup, err.Error())
		return
	}

	a.services = &services
	usecase.WatchSources(ctx, services.Catalog, usecase.DefaultSourceRefresh, nil)
	services.Engine.StartMonitoring(ctx)
	if services.API != nil {
		go func() {
			if err := services.API.Serve(ctx); err != nil {
				a.SessionError(domain.ErrorCodeStartup, err.Error())
			}
		}()
	}
	a.RecordingStateChanged(services.Controller.Status())
}

func (a *App) shutdown(ctx context.Context) {
	if a.services == nil {
		return
	}
	if err := a.services.Close(ctx); err != nil {
		a.SessionError(domain.ErrorCodeRecordingStop, err.Error())
	}
}

// ListSources returns system audio followed by the capturable applications.
func (a *App) ListSources() ([]domain.AudioSource, error) {
	if err := a.requireReady(); err != nil {
		return nil, err
	}
	sources, err := a.services.Catalog.Enumerate(a.ctx)
	if err != nil {
		return nil, err
	}
	return append([]domain.AudioSource{domain.SystemWideSource()}, sources...), nil
}

// StartRecording records the source with the given pid; -1 records all
// system audio.
func (a *App) StartRecording(pid int, enableMicrophone bool) (domain.RecordedFiles, error) {
	if err := a.requireReady(); err != nil {
		return domain.RecordedFiles{}, err
	}
	target := domain.SystemWideSource()
	if pid != domain.SystemWidePID {
		source, ok := a.services.Catalog.Lookup(pid)
		if !ok {
			if _, err := a.services.Catalog.Enumerate(a.ctx); err == nil {
				source, ok = a.services.Catalog.Lookup(pid)
			}
		}
		if !ok {
			return domain.RecordedFiles{}, fmt.Errorf("no audio source with pid %d", pid)
		}
		target = source
	}
	// Errors reach the UI through SessionError from the controller.
	return a.services.Controller.StartRecording(a.ctx, a.services.NewConfiguration(target, enableMicrophone))
}

// StopRecording ends the current recording. It returns nil when idle.
func (a *App) StopRecording() (*usecase.StopResult, error) {
	if err := a.requireReady(); err != nil {
		return nil, err
	}
	return a.services.Controller.StopRecording(a.ctx)
}

// GetStatus returns the current recording status.
func (a *App) GetStatus() domain.RecordingStatus {
	if a.services == nil {
		if a.bootErr != nil {
			return domain.RecordingStatus{State: domain.RecordingStateFailed, Error: a.bootErr.Error()}
		}
		return domain.RecordingStatus{State: domain.RecordingStateIdle}
	}
	return a.services.Controller.Status()
}

func (a *App) GetLevels() domain.AudioLevels {
	if a.services == nil {
		return domain.AudioLevels{}
	}
	return a.services.Controller.Levels()
}

func (a *App) GetMeeting() meeting.State {
	if a.services == nil {
		return meeting.State{}
	}
	return a.services.Engine.State()
}

// GetRuntimeInfo returns non-sensitive config for the UI.
func (a *App) GetRuntimeInfo() map[string]string {
	if a.bootErr != nil {
		return map[string]string{"error": a.bootErr.Error()}
	}
	if a.services == nil {
		return map[string]string{}
	}

	cfg := a.services.Config
	info := map[string]string{
		"outputDir":        cfg.Recording.OutputDir,
		"microphone":       cfg.Audio.MicrophoneDevice,
		"microphoneFormat": cfg.Audio.MicrophoneInputFormat,
		"transcription":    "off",
	}
	if cfg.Deepgram.Enabled() {
		info["transcription"] = "Deepgram " + cfg.Deepgram.Model
	}
	if a.services.API != nil {
		info["api"] = "http://" + cfg.HTTP.Addr
	}
	return info
}

func (a *App) requireReady() error {
	if a.bootErr != nil {
		return a.bootErr
	}
	if a.services == nil {
		return errors.New("application is not initialized")
	}
	return nil
}

// RecordingStateChanged emits recording lifecycle updates to the frontend.
func (a *App) RecordingStateChanged(status domain.RecordingStatus) {
	if a.ctx == nil {
		return
	}
	runtime.EventsEmit(a.ctx, eventRecording, map[string]any{
		"state":   string(status.State),
		"message": recordingStateMessage(status.State),
		"error":   status.Error,
		"files":   status.Files,
	})
}

// MeetingStateChanged emits detection changes to the frontend.
func (a *App) MeetingStateChanged(event domain.MeetingEvent) {
	if a.ctx == nil {
		return
	}
	runtime.EventsEmit(a.ctx, eventMeeting, event)
}

// SessionError emits backend errors to the UI.
func (a *App) SessionError(code domain.ErrorCode, detail string) {
	if a.ctx == nil {
		return
	}
	runtime.EventsEmit(a.ctx, eventError, map[string]string{
		"code":    string(code),
		"message": errorMessage(code, detail),
		"detail":  detail,
	})
}

func recordingStateMessage(state domain.RecordingStateKind) string {
	switch state {
	case domain.RecordingStateIdle:
		return "Not recording"
	case domain.RecordingStateStarting:
		return "Starting recording..."
	case domain.RecordingStateRecording:
		return "Recording"
	case domain.RecordingStateStopping:
		return "Saving recording..."
	case domain.RecordingStateFailed:
		return "Recording failed"
	default:
		return ""
	}
}

func errorMessage(code domain.ErrorCode, detail string) string {
	switch code {
	case domain.ErrorCodeStartup:
		return "Startup failed"
	case domain.ErrorCodeRecordingStart:
		return "Could not start recording"
	case domain.ErrorCodeRecordingStop:
		return "Recording stopped with errors"
	case domain.ErrorCodeDetection:
		return "Meeting detection issue"
	case domain.ErrorCodeTranscription:
		return "Transcription error"
	default:
		if detail == "" {
			return "Unknown error"
		}
		return detail
	}
}
