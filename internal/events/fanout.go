// Package events broadcasts backend events to several observers.
package events

import (
	"sync"

	"meetcap/internal/domain"
	"meetcap/internal/ports"
)

// Fanout is a ports.EventSink that forwards every event to each registered
// sink in registration order.
type Fanout struct {
	mu    sync.RWMutex
	sinks []ports.EventSink
}

func NewFanout(sinks ...ports.EventSink) *Fanout {
	f := &Fanout{}
	for _, sink := range sinks {
		f.Add(sink)
	}
	return f
}

// Add registers a sink. Nil sinks are ignored.
func (f *Fanout) Add(sink ports.EventSink) {
	if sink == nil {
		return
	}
	f.mu.Lock()
	defer f.mu.Unlock()
	f.sinks = append(f.sinks, sink)
}

func (f *Fanout) Len() int {
	f.mu.RLock()
	defer f.mu.RUnlock()
	return len(f.sinks)
}

func (f *Fanout) RecordingStateChanged(status domain.RecordingStatus) {
	for _, sink := range f.snapshot() {
		sink.RecordingStateChanged(status)
	}
}

func (f *Fanout) MeetingStateChanged(event domain.MeetingEvent) {
	for _, sink := range f.snapshot() {
		sink.MeetingStateChanged(event)
	}
}

func (f *Fanout) SessionError(code domain.ErrorCode, detail string) {
	for _, sink := range f.snapshot() {
		sink.SessionError(code, detail)
	}
}

func (f *Fanout) snapshot() []ports.EventSink {
	f.mu.RLock()
	defer f.mu.RUnlock()
	out := make([]ports.EventSink, len(f.sinks))
	copy(out, f.sinks)
	return out
}
