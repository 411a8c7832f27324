// Package transcript models source-tagged, time-ordered transcript segments.
package transcript

import (
	"fmt"
	"sort"
	"strings"
)

// Source tags which capture a segment came from.
type Source string

const (
	SourceSystem     Source = "system"
	SourceMicrophone Source = "microphone"
)

// Label is the speaker label used in formatted output.
func (s Source) Label() string {
	if s == SourceMicrophone {
		return "You"
	}
	return "Others"
}

// Segment is a span of text, in seconds relative to recording start.
type Segment struct {
	Text   string  `json:"text"`
	Start  float64 `json:"start"`
	End    float64 `json:"end"`
	Source Source  `json:"source"`
}

func (s Segment) Duration() float64 {
	return s.End - s.Start
}

// Timestamped is an immutable sequence of segments kept sorted by start time.
type Timestamped struct {
	segments []Segment
}

// New copies segments and sorts them by start time. A segment whose end
// precedes its start is clamped to zero length.
func New(segments ...Segment) Timestamped {
	out := make([]Segment, len(segments))
	copy(out, segments)
	for i := range out {
		if out[i].End < out[i].Start {
			out[i].End = out[i].Start
		}
	}
	sort.SliceStable(out, func(i, j int) bool {
		return out[i].Start < out[j].Start
	})
	return Timestamped{segments: out}
}

// Merged concatenates a and b and re-sorts.
func Merged(a, b Timestamped) Timestamped {
	all := make([]Segment, 0, len(a.segments)+len(b.segments))
	all = append(all, a.segments...)
	all = append(all, b.segments...)
	return New(all...)
}

func (t Timestamped) Merged(other Timestamped) Timestamped {
	return Merged(t, other)
}

// Segments returns a copy of the ordered segments.
func (t Timestamped) Segments() []Segment {
	out := make([]Segment, len(t.segments))
	copy(out, t.segments)
	return out
}

func (t Timestamped) Len() int {
	return len(t.segments)
}

func (t Timestamped) IsEmpty() bool {
	return len(t.segments) == 0
}

// TotalDuration is the maximum end time across segments, 0 if empty.
func (t Timestamped) TotalDuration() float64 {
	var total float64
	for _, segment := range t.segments {
		if segment.End > total {
			total = segment.End
		}
	}
	return total
}

// BySource keeps only the segments from one source.
func (t Timestamped) BySource(source Source) Timestamped {
	out := make([]Segment, 0, len(t.segments))
	for _, segment := range t.segments {
		if segment.Source == source {
			out = append(out, segment)
		}
	}
	return Timestamped{segments: out}
}

// Between returns segments overlapping the [from, to] window.
func (t Timestamped) Between(from, to float64) Timestamped {
	out := make([]Segment, 0, len(t.segments))
	for _, segment := range t.segments {
		if segment.End >= from && segment.Start <= to {
			out = append(out, segment)
		}
	}
	return Timestamped{segments: out}
}

// Text joins the segment texts in order.
func (t Timestamped) Text() string {
	parts := make([]string, 0, len(t.segments))
	for _, segment := range t.segments {
		if text := strings.TrimSpace(segment.Text); text != "" {
			parts = append(parts, text)
		}
	}
	return strings.Join(parts, " ")
}

// Format renders one "[mm:ss] Speaker: text" line per segment.
func (t Timestamped) Format() string {
	var builder strings.Builder
	for _, segment := range t.segments {
		text := strings.TrimSpace(segment.Text)
		if text == "" {
			continue
		}
		fmt.Fprintf(&builder, "[%s] %s: %s\n", formatOffset(segment.Start), segment.Source.Label(), text)
	}
	return builder.String()
}

func formatOffset(seconds float64) string {
	if seconds < 0 {
		seconds = 0
	}
	total := int(seconds)
	h := total / 3600
	m := (total % 3600) / 60
	s := total % 60
	if h > 0 {
		return fmt.Sprintf("%d:%02d:%02d", h, m, s)
	}
	return fmt.Sprintf("%02d:%02d", m, s)
}
