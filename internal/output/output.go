package output

import (
	"fmt"
	"io"
	"text/tabwriter"
	"time"

	"meetcap/internal/domain"
)

type Formatter struct {
	w io.Writer
}

func NewFormatter(w io.Writer) *Formatter {
	return &Formatter{w: w}
}

func (f *Formatter) Sources(sources []domain.AudioSource) {
	if len(sources) == 0 {
		f.Info("No audio sources found")
		return
	}
	fmt.Fprintf(f.w, "🔊 Audio sources:\n\n")
	tw := tabwriter.NewWriter(f.w, 0, 0, 2, ' ', 0)
	fmt.Fprintln(tw, "  PID\tNAME\tKIND\tAUDIO\tBUNDLE")
	for _, s := range sources {
		pid := fmt.Sprintf("%d", s.PID)
		if s.IsSystemWide() {
			pid = "-"
		}
		playing := ""
		if s.IsProducingAudio {
			playing = "▶"
		}
		fmt.Fprintf(tw, "  %s\t%s\t%s\t%s\t%s\n", pid, s.Name, s.Kind, playing, s.BundleID)
	}
	_ = tw.Flush()
}

func (f *Formatter) RecordingStarted(files domain.RecordedFiles) {
	target := "system audio"
	if files.ApplicationName != "" {
		target = files.ApplicationName
	}
	fmt.Fprintf(f.w, "🎙️  Recording %s (Ctrl+C to stop)\n", target)
}

func (f *Formatter) RecordingStopped(duration time.Duration) {
	fmt.Fprintf(f.w, "⏹️  Recording stopped (%s)\n", formatDuration(duration))
}

func (f *Formatter) RecordedFiles(files domain.RecordedFiles) {
	if files.SystemAudioPath != "" {
		fmt.Fprintf(f.w, "✅ System audio saved: %s\n", files.SystemAudioPath)
	}
	if files.MicrophonePath != "" {
		fmt.Fprintf(f.w, "✅ Microphone saved: %s\n", files.MicrophonePath)
	}
}

func (f *Formatter) TranscriptSaved(path string) {
	fmt.Fprintf(f.w, "📝 Transcript saved: %s\n", path)
}

func (f *Formatter) Meeting(event domain.MeetingEvent) {
	if !event.Active || event.Info == nil {
		fmt.Fprintf(f.w, "💤 No meeting\n")
		return
	}
	fmt.Fprintf(f.w, "📞 %s: %s (%s confidence)\n", event.Info.AppName, event.Info.Title, event.Info.Confidence)
}

func (f *Formatter) Listening(addr string) {
	fmt.Fprintf(f.w, "🌐 API listening on http://%s\n", addr)
}

func (f *Formatter) Error(msg string) {
	fmt.Fprintf(f.w, "❌ %s\n", msg)
}

func (f *Formatter) Info(msg string) {
	fmt.Fprintf(f.w, "ℹ️  %s\n", msg)
}

func (f *Formatter) Success(msg string) {
	fmt.Fprintf(f.w, "✅ %s\n", msg)
}

func (f *Formatter) Warning(msg string) {
	fmt.Fprintf(f.w, "⚠️  %s\n", msg)
}

func formatDuration(d time.Duration) string {
	d = d.Round(time.Second)
	h := d / time.Hour
	d -= h * time.Hour
	m := d / time.Minute
	d -= m * time.Minute
	s := d / time.Second

	if h > 0 {
		return fmt.Sprintf("%dh%02dm%02ds", h, m, s)
	}
	if m > 0 {
		return fmt.Sprintf("%dm%02ds", m, s)
	}
	return fmt.Sprintf("%ds", s)
}
