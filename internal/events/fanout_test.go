package events

import (
	"testing"

	"github.com/stretchr/testify/assert"

	"meetcap/internal/domain"
)

func TestFanoutForwardsToEverySink(t *testing.T) {
	t.Parallel()

	first := &recordingSink{}
	second := &recordingSink{}
	fanout := NewFanout(first, nil)
	fanout.Add(second)
	fanout.Add(nil)
	assert.Equal(t, 2, fanout.Len())

	fanout.RecordingStateChanged(domain.RecordingStatus{State: domain.RecordingStateRecording})
	fanout.MeetingStateChanged(domain.MeetingEvent{Active: true})
	fanout.SessionError(domain.ErrorCodeDetection, "no display")

	for _, sink := range []*recordingSink{first, second} {
		assert.Equal(t, []string{"recording:recording", "meeting:true", "error:detection"}, sink.calls)
	}
}

func TestEmptyFanoutIsSafe(t *testing.T) {
	t.Parallel()

	fanout := NewFanout()
	fanout.RecordingStateChanged(domain.RecordingStatus{})
	fanout.MeetingStateChanged(domain.MeetingEvent{})
	fanout.SessionError(domain.ErrorCodeStartup, "")
	assert.Zero(t, fanout.Len())
}

type recordingSink struct {
	calls []string
}

func (r *recordingSink) RecordingStateChanged(status domain.RecordingStatus) {
	r.calls = append(r.calls, "recording:"+string(status.State))
}

func (r *recordingSink) MeetingStateChanged(event domain.MeetingEvent) {
	if event.Active {
		r.calls = append(r.calls, "meeting:true")
		return
	}
	r.calls = append(r.calls, "meeting:false")
}

func (r *recordingSink) SessionError(code domain.ErrorCode, _ string) {
	r.calls = append(r.calls, "error:"+string(code))
}
