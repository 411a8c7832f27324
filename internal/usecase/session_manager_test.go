package usecase

import (
	"bytes"
	"context"
	"errors"
	"log"
	"os"
	"reflect"
	"strings"
	"testing"

	"meetcap/internal/domain"
	"meetcap/internal/executor"
	"meetcap/internal/ports"
)

type managerFixture struct {
	calls *callLog
	tap   *fakeTap
	taps  *fakeTapFactory
	mic   *fakeMic
	cfg   SessionManagerConfig
}

func newManagerFixture(permission domain.PermissionStatus) *managerFixture {
	calls := &callLog{}
	tap := &fakeTap{calls: calls}
	f := &managerFixture{
		calls: calls,
		tap:   tap,
		taps:  &fakeTapFactory{calls: calls, tap: tap},
		mic:   &fakeMic{calls: calls},
	}
	f.cfg = SessionManagerConfig{
		Taps:        f.taps,
		NewRecorder: fakeRecorderFactory(calls, nil),
		Microphone:  f.mic,
		Permissions: fakePermissions{status: permission},
		Logger:      quietLogger(),
	}
	return f
}

func TestSessionManagerPermissionDeniedTouchesNoTap(t *testing.T) {
	t.Parallel()

	for _, status := range []domain.PermissionStatus{domain.PermissionDenied, domain.PermissionNotDetermined} {
		f := newManagerFixture(status)
		manager := NewSessionManager(f.cfg)

		_, err := manager.StartSession(context.Background(), testConfiguration(t, true))
		if !errors.Is(err, domain.ErrMicrophonePermissionDenied) {
			t.Fatalf("%s: expected permission error, got %v", status, err)
		}
		if len(f.calls.snapshot()) != 0 {
			t.Fatalf("%s: expected no tap work, got %v", status, f.calls.snapshot())
		}
	}
}

func TestSessionManagerSkipsPermissionWithoutMicrophone(t *testing.T) {
	t.Parallel()

	f := newManagerFixture(domain.PermissionDenied)
	coordinator, err := NewSessionManager(f.cfg).StartSession(context.Background(), testConfiguration(t, false))
	if err != nil {
		t.Fatalf("start session: %v", err)
	}
	defer coordinator.Stop(context.Background())
	if f.calls.contains("mic.start") {
		t.Fatalf("microphone must not start when disabled")
	}
}

func TestSessionManagerProcessTarget(t *testing.T) {
	t.Parallel()

	f := newManagerFixture(domain.PermissionAuthorized)
	serial := executor.NewSerial()
	defer serial.Close()
	f.cfg.Executor = serial

	cfg := testConfiguration(t, true)
	coordinator, err := NewSessionManager(f.cfg).StartSession(context.Background(), cfg)
	if err != nil {
		t.Fatalf("start session: %v", err)
	}
	if f.taps.lastTarget.PID != cfg.Target.PID {
		t.Fatalf("expected process tap for pid %d, got %+v", cfg.Target.PID, f.taps.lastTarget)
	}
	if _, err := os.Stat(cfg.SessionDir()); err != nil {
		t.Fatalf("session directory missing: %v", err)
	}
	if err := coordinator.Stop(context.Background()); err != nil {
		t.Fatalf("stop: %v", err)
	}
	want := []string{"taps.process", "tap.activate", "recorder.start", "mic.start", "mic.stop", "recorder.stop", "tap.invalidate"}
	if got := f.calls.snapshot(); !reflect.DeepEqual(got, want) {
		t.Fatalf("unexpected calls: %v", got)
	}
}

func TestSessionManagerSystemWideTarget(t *testing.T) {
	t.Parallel()

	f := newManagerFixture(domain.PermissionAuthorized)
	cfg := NewRecordingConfiguration(domain.SystemWideSource(), false, t.TempDir())
	coordinator, err := NewSessionManager(f.cfg).StartSession(context.Background(), cfg)
	if err != nil {
		t.Fatalf("start session: %v", err)
	}
	defer coordinator.Stop(context.Background())
	if !f.calls.contains("taps.system") || f.calls.contains("taps.process") {
		t.Fatalf("expected system tap, got %v", f.calls.snapshot())
	}
	if coordinator.RecordedFiles().ApplicationName != "" {
		t.Fatalf("system-wide recording has no application name")
	}
}

func TestSessionManagerTapCreationFailure(t *testing.T) {
	t.Parallel()

	f := newManagerFixture(domain.PermissionAuthorized)
	f.taps.processErr = errors.New("no sink inputs")
	_, err := NewSessionManager(f.cfg).StartSession(context.Background(), testConfiguration(t, false))
	if !errors.Is(err, domain.ErrTapCreation) {
		t.Fatalf("expected ErrTapCreation, got %v", err)
	}

	f = newManagerFixture(domain.PermissionAuthorized)
	f.taps.processErr = domain.ErrUnsupportedTarget
	_, err = NewSessionManager(f.cfg).StartSession(context.Background(), testConfiguration(t, false))
	if !errors.Is(err, domain.ErrUnsupportedTarget) {
		t.Fatalf("expected ErrUnsupportedTarget, got %v", err)
	}
}

func TestSessionManagerActivationFailure(t *testing.T) {
	t.Parallel()

	f := newManagerFixture(domain.PermissionAuthorized)
	f.tap.activateErr = errors.New("pactl exited 1")
	_, err := NewSessionManager(f.cfg).StartSession(context.Background(), testConfiguration(t, false))
	if err == nil || !errors.Is(err, f.tap.activateErr) {
		t.Fatalf("expected activation error, got %v", err)
	}
	if f.calls.contains("recorder.start") {
		t.Fatalf("recorder must not start after failed activation")
	}
}

func TestSessionManagerStartFailureInvalidatesTap(t *testing.T) {
	t.Parallel()

	f := newManagerFixture(domain.PermissionAuthorized)
	f.cfg.NewRecorder = fakeRecorderFactory(f.calls, errors.New("disk full"))
	_, err := NewSessionManager(f.cfg).StartSession(context.Background(), testConfiguration(t, false))
	if err == nil {
		t.Fatalf("expected start failure")
	}
	if !f.calls.contains("tap.invalidate") {
		t.Fatalf("expected tap invalidation, got %v", f.calls.snapshot())
	}
}

func TestSessionManagerPartialStartKeepsTap(t *testing.T) {
	t.Parallel()

	f := newManagerFixture(domain.PermissionAuthorized)
	f.mic.startErr = errors.New("device busy")
	_, err := NewSessionManager(f.cfg).StartSession(context.Background(), testConfiguration(t, true))
	if !errors.Is(err, domain.ErrPartialStart) {
		t.Fatalf("expected ErrPartialStart, got %v", err)
	}
	if f.calls.contains("tap.invalidate") {
		t.Fatalf("partial start must leave the tap running")
	}
}

func TestSessionManagerStreamsTranscription(t *testing.T) {
	t.Parallel()

	f := newManagerFixture(domain.PermissionAuthorized)
	system := newFakeStreamingSession()
	system.events <- domain.TranscriptEvent{Kind: domain.TranscriptKindFinal, Text: "agenda", Start: 1, End: 2}
	mic := newFakeStreamingSession()
	provider := &fakeProvider{sessions: []ports.StreamingSession{system, mic}}
	f.cfg.Transcription = provider

	coordinator, err := NewSessionManager(f.cfg).StartSession(context.Background(), testConfiguration(t, true))
	if err != nil {
		t.Fatalf("start session: %v", err)
	}
	if provider.calls != 2 {
		t.Fatalf("expected a stream per source, got %d", provider.calls)
	}
	if err := coordinator.Stop(context.Background()); err != nil {
		t.Fatalf("stop: %v", err)
	}
	if got := coordinator.Transcript().Text(); got != "agenda" {
		t.Fatalf("unexpected transcript %q", got)
	}
}

func TestSessionManagerMicrophoneWithoutCapture(t *testing.T) {
	t.Parallel()

	f := newManagerFixture(domain.PermissionAuthorized)
	f.cfg.Microphone = nil
	_, err := NewSessionManager(f.cfg).StartSession(context.Background(), testConfiguration(t, true))
	if !errors.Is(err, domain.ErrNoAudioSource) {
		t.Fatalf("expected ErrNoAudioSource, got %v", err)
	}
}

func TestSessionManagerLogsRefusedTranscriptionFormatRead(t *testing.T) {
	t.Parallel()

	f := newManagerFixture(domain.PermissionAuthorized)
	var logs bytes.Buffer
	f.cfg.Logger = log.New(&logs, "", 0)
	f.cfg.Executor = &closingExecutor{allow: 1, err: executor.ErrClosed}
	f.cfg.Transcription = &fakeProvider{}

	coordinator, err := NewSessionManager(f.cfg).StartSession(context.Background(), testConfiguration(t, false))
	if err != nil {
		t.Fatalf("start session: %v", err)
	}
	defer func() { _ = coordinator.Stop(context.Background()) }()

	if !strings.Contains(logs.String(), "failed to read tap format") || !strings.Contains(logs.String(), executor.ErrClosed.Error()) {
		t.Fatalf("expected the refused read to be logged, got %q", logs.String())
	}
}

// closingExecutor runs the first allow jobs inline, then refuses the rest.
type closingExecutor struct {
	allow int
	err   error
	calls int
}

func (e *closingExecutor) Do(_ context.Context, fn func() error) error {
	e.calls++
	if e.calls > e.allow {
		return e.err
	}
	return fn()
}
