package usecase

import (
	"context"
	"errors"
	"path/filepath"
	"reflect"
	"sync"
	"sync/atomic"
	"testing"

	"meetcap/internal/audio"
	"meetcap/internal/domain"
	"meetcap/internal/ports"
)

func newTestCoordinator(t *testing.T, calls *callLog, mic *fakeMic, recorderErr error) (*CaptureCoordinator, domain.RecordedFiles) {
	t.Helper()
	dir := t.TempDir()
	files := domain.RecordedFiles{SystemAudioPath: filepath.Join(dir, domain.SystemAudioFileName)}
	cfg := CaptureConfig{
		Tap:         &fakeTap{calls: calls, activated: true},
		NewRecorder: fakeRecorderFactory(calls, recorderErr),
		Files:       files,
		Logger:      quietLogger(),
	}
	if mic != nil {
		files.MicrophonePath = filepath.Join(dir, domain.MicrophoneFileName)
		cfg.Files = files
		cfg.Microphone = mic
	}
	return NewCaptureCoordinator(cfg), files
}

func TestCoordinatorStopsInReverseOrder(t *testing.T) {
	t.Parallel()

	calls := &callLog{}
	mic := &fakeMic{calls: calls, level: 0.3}
	coordinator, files := newTestCoordinator(t, calls, mic, nil)

	if err := coordinator.Start(context.Background()); err != nil {
		t.Fatalf("start: %v", err)
	}
	if !coordinator.IsRunning() {
		t.Fatalf("expected running")
	}
	if mic.format.SampleRate != 48000 || mic.format.Channels != 2 {
		t.Fatalf("microphone not matched to tap format: %+v", mic.format)
	}
	if coordinator.RecordedFiles() != files {
		t.Fatalf("unexpected files: %+v", coordinator.RecordedFiles())
	}
	if levels := coordinator.Levels(); levels.System != 0.5 || levels.Microphone != 0.3 {
		t.Fatalf("unexpected levels: %+v", levels)
	}

	if err := coordinator.Stop(context.Background()); err != nil {
		t.Fatalf("stop: %v", err)
	}
	want := []string{"recorder.start", "mic.start", "mic.stop", "recorder.stop", "tap.invalidate"}
	if got := calls.snapshot(); !reflect.DeepEqual(got, want) {
		t.Fatalf("unexpected call order: %v", got)
	}
	if coordinator.IsRunning() || coordinator.Levels() != (domain.AudioLevels{}) {
		t.Fatalf("expected stopped coordinator with zero levels")
	}
}

func TestCoordinatorRejectsDoubleStart(t *testing.T) {
	t.Parallel()

	coordinator, _ := newTestCoordinator(t, &callLog{}, nil, nil)
	if err := coordinator.Start(context.Background()); err != nil {
		t.Fatalf("start: %v", err)
	}
	if err := coordinator.Start(context.Background()); !errors.Is(err, domain.ErrAlreadyRunning) {
		t.Fatalf("expected ErrAlreadyRunning, got %v", err)
	}
}

func TestCoordinatorStopWhenNotRunningIsNoop(t *testing.T) {
	t.Parallel()

	calls := &callLog{}
	coordinator, _ := newTestCoordinator(t, calls, nil, nil)
	if err := coordinator.Stop(context.Background()); err != nil {
		t.Fatalf("stop: %v", err)
	}
	if len(calls.snapshot()) != 0 {
		t.Fatalf("expected no calls, got %v", calls.snapshot())
	}
}

func TestCoordinatorMicrophoneOnlyHasNoSource(t *testing.T) {
	t.Parallel()

	calls := &callLog{}
	coordinator := NewCaptureCoordinator(CaptureConfig{
		Microphone: &fakeMic{calls: calls},
		Files:      domain.RecordedFiles{MicrophonePath: filepath.Join(t.TempDir(), domain.MicrophoneFileName)},
		Logger:     quietLogger(),
	})
	if err := coordinator.Start(context.Background()); !errors.Is(err, domain.ErrNoAudioSource) {
		t.Fatalf("expected ErrNoAudioSource, got %v", err)
	}
	if calls.contains("mic.start") {
		t.Fatalf("microphone must not start without system audio")
	}
}

func TestCoordinatorMicrophoneFailureLeavesTapRunning(t *testing.T) {
	t.Parallel()

	calls := &callLog{}
	micErr := errors.New("device busy")
	coordinator, _ := newTestCoordinator(t, calls, &fakeMic{calls: calls, startErr: micErr}, nil)

	err := coordinator.Start(context.Background())
	if !errors.Is(err, domain.ErrPartialStart) || !errors.Is(err, micErr) {
		t.Fatalf("expected partial start wrapping mic error, got %v", err)
	}
	if calls.contains("recorder.stop") || calls.contains("tap.invalidate") {
		t.Fatalf("system audio must keep running, got %v", calls.snapshot())
	}
	if coordinator.SystemLevel() != 0.5 {
		t.Fatalf("expected live system meter")
	}
}

func TestCoordinatorRecorderFailure(t *testing.T) {
	t.Parallel()

	calls := &callLog{}
	coordinator, _ := newTestCoordinator(t, calls, &fakeMic{calls: calls}, errors.New("disk full"))
	if err := coordinator.Start(context.Background()); err == nil || errors.Is(err, domain.ErrPartialStart) {
		t.Fatalf("expected plain start failure, got %v", err)
	}
	if coordinator.IsRunning() || calls.contains("mic.start") {
		t.Fatalf("nothing should be running, got %v", calls.snapshot())
	}
}

func TestCoordinatorRecorderTapCallsRunOnOwnerExecutor(t *testing.T) {
	t.Parallel()

	owner := &ownerExecutor{}
	tap := &affinityTap{fakeTap: fakeTap{calls: &callLog{}, activated: true}, owner: owner}
	coordinator := NewCaptureCoordinator(CaptureConfig{
		Tap:         tap,
		NewRecorder: audio.NewTapRecorderFactory(0, quietLogger()),
		Files:       domain.RecordedFiles{SystemAudioPath: filepath.Join(t.TempDir(), domain.SystemAudioFileName)},
		Executor:    owner,
		Logger:      quietLogger(),
	})

	// The fake tap refuses to stream, so the recorder fails after opening it.
	if err := coordinator.Start(context.Background()); err == nil {
		t.Fatalf("expected start to fail on the fake tap")
	}

	ops, outside := tap.snapshot()
	if want := []string{"StreamFormat", "Open"}; !reflect.DeepEqual(ops, want) {
		t.Fatalf("unexpected tap operations: %v", ops)
	}
	if len(outside) != 0 {
		t.Fatalf("tap operations ran off the owner executor: %v", outside)
	}
}

func TestOwnedTapReportsNoFormatWhenExecutorRefuses(t *testing.T) {
	t.Parallel()

	tap := ownedTap{
		tap:      &fakeTap{calls: &callLog{}, activated: true},
		executor: refusingExecutor{err: errors.New("executor closed")},
	}
	if _, ok := tap.StreamFormat(); ok {
		t.Fatalf("expected no format from a refused read")
	}
	if _, err := tap.Open(context.Background()); err == nil || err.Error() != "executor closed" {
		t.Fatalf("expected executor error, got %v", err)
	}
}

// ownerExecutor runs jobs inline but marks when a job is running, standing in
// for the single owner goroutine.
type ownerExecutor struct {
	mu     sync.Mutex
	inside atomic.Bool
}

func (e *ownerExecutor) Do(_ context.Context, fn func() error) error {
	e.mu.Lock()
	defer e.mu.Unlock()
	e.inside.Store(true)
	defer e.inside.Store(false)
	return fn()
}

type refusingExecutor struct {
	err error
}

func (e refusingExecutor) Do(context.Context, func() error) error { return e.err }

// affinityTap records each tap operation and whether it ran on the owner.
type affinityTap struct {
	fakeTap
	owner *ownerExecutor

	mu      sync.Mutex
	ops     []string
	outside []string
}

func (t *affinityTap) record(op string) {
	t.mu.Lock()
	defer t.mu.Unlock()
	t.ops = append(t.ops, op)
	if !t.owner.inside.Load() {
		t.outside = append(t.outside, op)
	}
}

func (t *affinityTap) snapshot() ([]string, []string) {
	t.mu.Lock()
	defer t.mu.Unlock()
	return append([]string(nil), t.ops...), append([]string(nil), t.outside...)
}

func (t *affinityTap) StreamFormat() (domain.SampleFormat, bool) {
	t.record("StreamFormat")
	return t.fakeTap.StreamFormat()
}

func (t *affinityTap) Open(ctx context.Context) (ports.AudioSession, error) {
	t.record("Open")
	return t.fakeTap.Open(ctx)
}

func (t *affinityTap) Invalidate(ctx context.Context) error {
	t.record("Invalidate")
	return t.fakeTap.Invalidate(ctx)
}
