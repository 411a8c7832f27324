package output

import (
	"bytes"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"

	"meetcap/internal/domain"
)

func TestFormatDuration(t *testing.T) {
	assert.Equal(t, "5s", formatDuration(5*time.Second))
	assert.Equal(t, "2m05s", formatDuration(2*time.Minute+5*time.Second))
	assert.Equal(t, "1h02m03s", formatDuration(time.Hour+2*time.Minute+3*time.Second))
	assert.Equal(t, "1s", formatDuration(1400*time.Millisecond))
}

func TestSources(t *testing.T) {
	var buf bytes.Buffer
	f := NewFormatter(&buf)

	f.Sources([]domain.AudioSource{
		domain.SystemWideSource(),
		{PID: 4242, Kind: domain.SourceKindApplication, Name: "Zoom", IsProducingAudio: true, BundleID: "zoom"},
	})

	out := buf.String()
	assert.Contains(t, out, "PID")
	assert.Contains(t, out, "4242")
	assert.Contains(t, out, "Zoom")
	assert.Contains(t, out, "▶")
	assert.NotContains(t, out, "-1")
}

func TestSourcesEmpty(t *testing.T) {
	var buf bytes.Buffer
	NewFormatter(&buf).Sources(nil)
	assert.Contains(t, buf.String(), "No audio sources found")
}

func TestRecordingMessages(t *testing.T) {
	var buf bytes.Buffer
	f := NewFormatter(&buf)

	f.RecordingStarted(domain.RecordedFiles{ApplicationName: "Zoom"})
	f.RecordingStarted(domain.RecordedFiles{})
	f.RecordedFiles(domain.RecordedFiles{SystemAudioPath: "/tmp/s/system_recording.wav"})
	f.RecordingStopped(61 * time.Second)

	out := buf.String()
	assert.Contains(t, out, "Recording Zoom")
	assert.Contains(t, out, "Recording system audio")
	assert.Contains(t, out, "/tmp/s/system_recording.wav")
	assert.NotContains(t, out, "Microphone saved")
	assert.Contains(t, out, "(1m01s)")
}

func TestMeeting(t *testing.T) {
	var buf bytes.Buffer
	f := NewFormatter(&buf)

	f.Meeting(domain.MeetingEvent{Active: true, Info: &domain.ActiveMeetingInfo{AppName: "Zoom", Title: "Standup", Confidence: domain.ConfidenceHigh}})
	f.Meeting(domain.MeetingEvent{})

	assert.Contains(t, buf.String(), "Zoom: Standup (high confidence)")
	assert.Contains(t, buf.String(), "No meeting")
}

func TestLevelMeter(t *testing.T) {
	var buf bytes.Buffer
	meter := NewLevelMeter(&buf)
	meter.Update(domain.AudioLevels{System: 0.5, Microphone: 0.25})

	assert.Contains(t, buf.String(), "sys  50%")
	assert.Contains(t, buf.String(), "mic  25%")
	meter.Finish()

	assert.Equal(t, 0, percent(-0.1))
	assert.Equal(t, 100, percent(1.7))
}
