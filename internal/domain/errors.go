package domain

import "errors"

var (
	ErrAlreadyInProgress          = errors.New("recording already in progress")
	ErrAlreadyRunning             = errors.New("audio recording coordinator already running")
	ErrNotRunning                 = errors.New("audio recording coordinator not running")
	ErrMicrophonePermissionDenied = errors.New("microphone permission denied")
	ErrNoAudioSource              = errors.New("no audio source available")
	ErrSubsystemQuery             = errors.New("audio subsystem query failed")
	ErrUnsupportedTarget          = errors.New("unsupported capture target")
	ErrTapCreation                = errors.New("failed to create audio tap")
	ErrWindowPermission           = errors.New("window enumeration not permitted")
	ErrPartialStart               = errors.New("system audio tap left running after microphone start failure")
)
