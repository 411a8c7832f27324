package meeting

import (
	"context"
	"io"
	"log"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"meetcap/internal/domain"
)

func TestEngineHighestConfidenceDetectorWins(t *testing.T) {
	t.Parallel()

	windows := &fakeWindows{windows: []domain.Window{
		{Title: "Zoom Meeting participants", BundleID: "us.zoom.xos"},
		{Title: "Meeting with Sam | Microsoft Teams", BundleID: "com.microsoft.teams2"},
	}}
	teams := NewDetector(AppDefinition{
		Name:      "Microsoft Teams",
		BundleIDs: []string{"com.microsoft.teams2"},
		Patterns:  []Pattern{{Keyword: "Meeting with", Confidence: domain.ConfidenceHigh}},
	})
	zoom := NewDetector(AppDefinition{
		Name:      "Zoom",
		BundleIDs: []string{"us.zoom.xos"},
		Patterns:  []Pattern{{Keyword: "Meeting", Confidence: domain.ConfidenceMedium}},
	})
	sources := &fakeSnapshot{sources: []domain.AudioSource{
		{PID: 10, Name: "Zoom", BundleID: "us.zoom.xos"},
		{PID: 20, Name: "Teams", BundleID: "com.microsoft.teams2"},
	}}

	// Zoom is first in the roster; Teams must still win on confidence.
	engine := NewEngine(windows, sources, []Detector{zoom, teams}, testEngineConfig())
	events, unsubscribe := engine.Subscribe()
	defer unsubscribe()

	engine.StartMonitoring(context.Background())
	defer engine.StopMonitoring()

	event := nextActive(t, events)
	require.NotNil(t, event.Info)
	assert.Equal(t, "Microsoft Teams", event.Info.AppName)
	assert.Equal(t, "Meeting with Sam | Microsoft Teams", event.Info.Title)
	assert.Equal(t, domain.ConfidenceHigh, event.Info.Confidence)
	require.NotNil(t, event.Source)
	assert.Equal(t, 20, event.Source.PID)

	state := engine.State()
	assert.True(t, state.Active)
	assert.True(t, state.HasPermission)
}

func TestEngineTieKeepsFirstDetector(t *testing.T) {
	t.Parallel()

	first := NewDetector(AppDefinition{Name: "A", BundleIDs: []string{"a"}, Patterns: []Pattern{{Keyword: "call", Confidence: domain.ConfidenceMedium}}})
	second := NewDetector(AppDefinition{Name: "B", BundleIDs: []string{"b"}, Patterns: []Pattern{{Keyword: "call", Confidence: domain.ConfidenceMedium}}})
	engine := NewEngine(&fakeWindows{}, nil, []Detector{first, second}, testEngineConfig())

	detector, result := engine.detect([]domain.Window{
		{Title: "call b", BundleID: "b"},
		{Title: "call a", BundleID: "a"},
	})
	require.NotNil(t, detector)
	assert.Equal(t, "A", detector.Name())
	assert.Equal(t, "call a", result.Title)
}

func TestEngineIgnoresWindowsOfOtherApps(t *testing.T) {
	t.Parallel()

	engine := NewEngine(&fakeWindows{}, nil, DefaultDetectors(), testEngineConfig())
	detector, _ := engine.detect([]domain.Window{{Title: "Zoom Meeting", BundleID: "org.gnome.Terminal"}})
	assert.Nil(t, detector)
}

func TestEngineWindowFailureClearsStateAndKeepsPolling(t *testing.T) {
	t.Parallel()

	windows := &fakeWindows{windows: []domain.Window{{Title: "Zoom Meeting", BundleID: "zoom"}}}
	engine := NewEngine(windows, nil, DefaultDetectors(), testEngineConfig())
	events, unsubscribe := engine.Subscribe()
	defer unsubscribe()

	engine.StartMonitoring(context.Background())
	defer engine.StopMonitoring()

	nextActive(t, events)

	windows.setErr(domain.ErrWindowPermission)
	event := nextEvent(t, events)
	assert.False(t, event.Active)
	require.Eventually(t, func() bool { return !engine.State().HasPermission }, time.Second, 5*time.Millisecond)

	windows.setErr(nil)
	nextActive(t, events)
	assert.True(t, engine.State().HasPermission)
}

func TestEngineSuppressesDuplicateEvents(t *testing.T) {
	t.Parallel()

	windows := &fakeWindows{windows: []domain.Window{{Title: "Zoom Meeting", BundleID: "zoom"}}}
	engine := NewEngine(windows, nil, DefaultDetectors(), testEngineConfig())
	events, unsubscribe := engine.Subscribe()
	defer unsubscribe()

	engine.StartMonitoring(context.Background())
	nextActive(t, events)

	require.Eventually(t, func() bool { return windows.callCount() >= 4 }, time.Second, 2*time.Millisecond)
	engine.StopMonitoring()
	engine.Wait()

	event := nextEvent(t, events)
	assert.False(t, event.Active, "expected only the inactive transition after the first active event")
}

func TestEngineStopDuringInFlightTickLeavesInactive(t *testing.T) {
	t.Parallel()

	windows := &blockingWindows{
		called:  make(chan struct{}, 1),
		release: make(chan struct{}),
		windows: []domain.Window{{Title: "Zoom Meeting", BundleID: "zoom"}},
	}
	engine := NewEngine(windows, nil, DefaultDetectors(), testEngineConfig())
	events, unsubscribe := engine.Subscribe()
	defer unsubscribe()

	engine.StartMonitoring(context.Background())
	<-windows.called

	engine.StopMonitoring()
	assert.False(t, engine.IsMonitoring())
	close(windows.release)
	engine.Wait()

	initial := <-events
	assert.False(t, initial.Active)
	select {
	case event := <-events:
		t.Fatalf("unexpected event after stop: %+v", event)
	case <-time.After(50 * time.Millisecond):
	}
	assert.False(t, engine.State().Active)
}

func TestEngineStartIsIdempotentAndRestartable(t *testing.T) {
	t.Parallel()

	windows := &fakeWindows{}
	engine := NewEngine(windows, nil, nil, testEngineConfig())

	engine.StartMonitoring(context.Background())
	engine.StartMonitoring(context.Background())
	assert.True(t, engine.IsMonitoring())

	engine.StopMonitoring()
	engine.StopMonitoring()
	assert.False(t, engine.IsMonitoring())

	engine.StartMonitoring(context.Background())
	assert.True(t, engine.IsMonitoring())
	engine.StopMonitoring()
}

func TestEngineNotifiesSink(t *testing.T) {
	t.Parallel()

	sink := &recordingSink{}
	windows := &fakeWindows{windows: []domain.Window{{Title: "Zoom Meeting", BundleID: "zoom"}}}
	cfg := testEngineConfig()
	cfg.Sink = sink
	engine := NewEngine(windows, nil, nil, cfg)

	engine.StartMonitoring(context.Background())
	require.Eventually(t, func() bool { return len(sink.snapshot()) == 1 }, time.Second, 2*time.Millisecond)
	engine.StopMonitoring()

	got := sink.snapshot()
	require.Len(t, got, 2)
	assert.True(t, got[0].Active)
	assert.False(t, got[1].Active)
}

func TestEngineStopResetsPermission(t *testing.T) {
	t.Parallel()

	windows := &fakeWindows{err: domain.ErrWindowPermission}
	engine := NewEngine(windows, nil, DefaultDetectors(), testEngineConfig())

	engine.StartMonitoring(context.Background())
	require.Eventually(t, func() bool { return !engine.State().HasPermission }, time.Second, 2*time.Millisecond)
	engine.StopMonitoring()

	assert.Equal(t, State{HasPermission: true}, engine.State())
}

func TestEngineSlowSubscriberGetsLatestEvent(t *testing.T) {
	t.Parallel()

	windows := &fakeWindows{windows: []domain.Window{{Title: "Zoom Meeting", BundleID: "zoom"}}}
	engine := NewEngine(windows, nil, DefaultDetectors(), testEngineConfig())
	events, unsubscribe := engine.Subscribe()
	defer unsubscribe()

	// Nothing reads events while the meeting starts, goes through several
	// titles and ends.
	engine.StartMonitoring(context.Background())
	for _, title := range []string{"Zoom Meeting 1", "Zoom Meeting 2", "Zoom Meeting 3"} {
		calls := windows.callCount()
		windows.setWindows([]domain.Window{{Title: title, BundleID: "zoom"}})
		require.Eventually(t, func() bool { return windows.callCount() > calls+1 }, time.Second, 2*time.Millisecond)
	}
	engine.StopMonitoring()
	engine.Wait()

	event := nextEvent(t, events)
	assert.False(t, event.Active, "the final inactive transition must not be lost")
	select {
	case extra := <-events:
		t.Fatalf("expected only the latest event, got %+v", extra)
	default:
	}
}

func TestEngineMatchSource(t *testing.T) {
	t.Parallel()

	sources := &fakeSnapshot{sources: []domain.AudioSource{
		{PID: 7, Name: "Firefox", BundleID: "firefox"},
		{PID: 10, Name: "Zoom", BundleID: "zoom"},
	}}
	engine := NewEngine(&fakeWindows{}, sources, DefaultDetectors(), testEngineConfig())

	source := engine.MatchSource("Zoom")
	require.NotNil(t, source)
	assert.Equal(t, 10, source.PID)
	assert.Nil(t, engine.MatchSource("Webex"))
	assert.Nil(t, NewEngine(&fakeWindows{}, nil, nil, testEngineConfig()).MatchSource("Zoom"))
}

func testEngineConfig() EngineConfig {
	return EngineConfig{Interval: 5 * time.Millisecond, Logger: log.New(io.Discard, "", 0)}
}

func nextEvent(t *testing.T, events <-chan domain.MeetingEvent) domain.MeetingEvent {
	t.Helper()
	select {
	case event := <-events:
		return event
	case <-time.After(2 * time.Second):
		t.Fatalf("timed out waiting for meeting event")
	}
	return domain.MeetingEvent{}
}

func nextActive(t *testing.T, events <-chan domain.MeetingEvent) domain.MeetingEvent {
	t.Helper()
	deadline := time.After(2 * time.Second)
	for {
		select {
		case event := <-events:
			if event.Active {
				return event
			}
		case <-deadline:
			t.Fatalf("timed out waiting for active meeting event")
		}
	}
}

type fakeWindows struct {
	mu      sync.Mutex
	windows []domain.Window
	err     error
	calls   int
}

func (f *fakeWindows) CurrentWindows(_ context.Context) ([]domain.Window, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.calls++
	if f.err != nil {
		return nil, f.err
	}
	return append([]domain.Window(nil), f.windows...), nil
}

func (f *fakeWindows) setWindows(windows []domain.Window) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.windows = windows
}

func (f *fakeWindows) setErr(err error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.err = err
}

func (f *fakeWindows) callCount() int {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.calls
}

type blockingWindows struct {
	called  chan struct{}
	release chan struct{}
	windows []domain.Window
}

func (b *blockingWindows) CurrentWindows(_ context.Context) ([]domain.Window, error) {
	select {
	case b.called <- struct{}{}:
	default:
	}
	<-b.release
	return b.windows, nil
}

type fakeSnapshot struct {
	sources []domain.AudioSource
}

func (f *fakeSnapshot) Snapshot() []domain.AudioSource { return f.sources }

type recordingSink struct {
	mu     sync.Mutex
	events []domain.MeetingEvent
}

func (r *recordingSink) RecordingStateChanged(_ domain.RecordingStatus) {}

func (r *recordingSink) MeetingStateChanged(event domain.MeetingEvent) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.events = append(r.events, event)
}

func (r *recordingSink) SessionError(_ domain.ErrorCode, _ string) {}

func (r *recordingSink) snapshot() []domain.MeetingEvent {
	r.mu.Lock()
	defer r.mu.Unlock()
	return append([]domain.MeetingEvent(nil), r.events...)
}
