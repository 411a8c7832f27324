package meeting

import (
	"context"
	"log"
	"sync"
	"time"

	"meetcap/internal/domain"
	"meetcap/internal/ports"
)

const DefaultPollInterval = time.Second

// SourceSnapshot exposes the most recent audio source enumeration.
type SourceSnapshot interface {
	Snapshot() []domain.AudioSource
}

// State is the engine's published state.
type State struct {
	Active        bool                      `json:"active"`
	Info          *domain.ActiveMeetingInfo `json:"info,omitempty"`
	Source        *domain.AudioSource       `json:"source,omitempty"`
	HasPermission bool                      `json:"hasPermission"`
}

// EngineConfig holds optional engine collaborators.
type EngineConfig struct {
	Interval time.Duration
	Logger   *log.Logger
	Sink     ports.EventSink
}

// Engine polls visible windows and publishes whether a meeting is active.
type Engine struct {
	windows   ports.WindowProvider
	sources   SourceSnapshot
	detectors []Detector
	interval  time.Duration
	logger    *log.Logger
	sink      ports.EventSink

	mu          sync.Mutex
	cancel      context.CancelFunc
	done        chan struct{}
	generation  uint64
	state       State
	last        domain.MeetingEvent
	subscribers map[int]chan domain.MeetingEvent
	nextID      int
}

func NewEngine(windows ports.WindowProvider, sources SourceSnapshot, detectors []Detector, cfg EngineConfig) *Engine {
	if cfg.Interval <= 0 {
		cfg.Interval = DefaultPollInterval
	}
	if cfg.Logger == nil {
		cfg.Logger = log.Default()
	}
	if len(detectors) == 0 {
		detectors = DefaultDetectors()
	}
	return &Engine{
		windows:     windows,
		sources:     sources,
		detectors:   detectors,
		interval:    cfg.Interval,
		logger:      cfg.Logger,
		sink:        cfg.Sink,
		state:       State{HasPermission: true},
		subscribers: make(map[int]chan domain.MeetingEvent),
	}
}

// StartMonitoring spawns the poll loop. It is a no-op when already monitoring.
func (e *Engine) StartMonitoring(ctx context.Context) {
	e.mu.Lock()
	defer e.mu.Unlock()
	if e.cancel != nil {
		return
	}

	e.generation++
	loopCtx, cancel := context.WithCancel(ctx)
	done := make(chan struct{})
	e.cancel = cancel
	e.done = done
	go e.run(loopCtx, e.generation, done)
}

// StopMonitoring cancels the poll loop and resets published state to the
// inactive state of a fresh engine.
func (e *Engine) StopMonitoring() {
	e.mu.Lock()
	if e.cancel == nil {
		e.mu.Unlock()
		return
	}
	e.cancel()
	e.cancel = nil
	e.generation++
	emitted, event := e.setStateLocked(State{HasPermission: true})
	e.mu.Unlock()

	if emitted {
		e.notifySink(event)
	}
}

// Wait blocks until the current poll loop, if any, has exited.
func (e *Engine) Wait() {
	e.mu.Lock()
	done := e.done
	e.mu.Unlock()
	if done != nil {
		<-done
	}
}

func (e *Engine) IsMonitoring() bool {
	e.mu.Lock()
	defer e.mu.Unlock()
	return e.cancel != nil
}

// State returns a copy of the published state.
func (e *Engine) State() State {
	e.mu.Lock()
	defer e.mu.Unlock()
	return e.state
}

// Subscribe returns a stream of collapsed meeting events, starting with the
// current one. Consecutive duplicates are suppressed. A slow subscriber skips
// intermediate events but always receives the latest one.
func (e *Engine) Subscribe() (<-chan domain.MeetingEvent, func()) {
	e.mu.Lock()
	defer e.mu.Unlock()

	id := e.nextID
	e.nextID++
	ch := make(chan domain.MeetingEvent, 1)
	ch <- e.last
	e.subscribers[id] = ch

	var once sync.Once
	return ch, func() {
		once.Do(func() {
			e.mu.Lock()
			defer e.mu.Unlock()
			if sub, ok := e.subscribers[id]; ok {
				delete(e.subscribers, id)
				close(sub)
			}
		})
	}
}

func (e *Engine) run(ctx context.Context, generation uint64, done chan struct{}) {
	defer close(done)

	timer := time.NewTimer(0)
	defer timer.Stop()

	for {
		select {
		case <-ctx.Done():
			return
		case <-timer.C:
		}
		if ctx.Err() != nil {
			return
		}

		e.tick(ctx, generation)
		timer.Reset(e.interval)
	}
}

func (e *Engine) tick(ctx context.Context, generation uint64) {
	windows, err := e.windows.CurrentWindows(ctx)
	if ctx.Err() != nil {
		return
	}
	if err != nil {
		e.logger.Printf("meeting detection: window enumeration failed: %v", err)
		e.publish(generation, State{HasPermission: false})
		return
	}

	detector, best := e.detect(windows)
	if detector == nil {
		e.publish(generation, State{HasPermission: true})
		return
	}

	info := &domain.ActiveMeetingInfo{
		AppName:    detector.Name(),
		Title:      best.Title,
		Confidence: best.Confidence,
	}
	e.publish(generation, State{
		Active:        true,
		Info:          info,
		Source:        e.matchSource(detector),
		HasPermission: true,
	})
}

// detect reduces all detectors' positive results to the highest confidence.
// Ties keep the first found.
func (e *Engine) detect(windows []domain.Window) (Detector, domain.MeetingDetectionResult) {
	var (
		bestDetector Detector
		best         domain.MeetingDetectionResult
	)
	for _, detector := range e.detectors {
		owned := make([]domain.Window, 0, len(windows))
		for _, window := range windows {
			if Owns(detector, window.BundleID) {
				owned = append(owned, window)
			}
		}
		if len(owned) == 0 {
			continue
		}
		result := detector.Detect(owned)
		if !result.Active {
			continue
		}
		if bestDetector == nil || result.Confidence > best.Confidence {
			bestDetector = detector
			best = result
		}
	}
	return bestDetector, best
}

// MatchSource joins the named meeting application with the most recent source
// enumeration. It returns nil when the app is unknown or not producing a source.
func (e *Engine) MatchSource(appName string) *domain.AudioSource {
	for _, detector := range e.detectors {
		if detector.Name() == appName {
			return e.matchSource(detector)
		}
	}
	return nil
}

func (e *Engine) matchSource(detector Detector) *domain.AudioSource {
	if e.sources == nil {
		return nil
	}
	for _, source := range e.sources.Snapshot() {
		if Owns(detector, source.BundleID) {
			matched := source
			return &matched
		}
	}
	return nil
}

func (e *Engine) publish(generation uint64, state State) {
	e.mu.Lock()
	if generation != e.generation {
		e.mu.Unlock()
		return
	}
	emitted, event := e.setStateLocked(state)
	e.mu.Unlock()

	if emitted {
		e.notifySink(event)
	}
}

func (e *Engine) setStateLocked(state State) (bool, domain.MeetingEvent) {
	e.state = state

	event := domain.MeetingEvent{Active: state.Active}
	if state.Active {
		event.Info = state.Info
		event.Source = state.Source
	}
	if event.SameAs(e.last) {
		return false, event
	}
	e.last = event

	// Senders hold e.mu, so after the drain the send cannot block.
	for _, sub := range e.subscribers {
		select {
		case <-sub:
		default:
		}
		sub <- event
	}
	return true, event
}

func (e *Engine) notifySink(event domain.MeetingEvent) {
	if e.sink != nil {
		e.sink.MeetingStateChanged(event)
	}
}
