package domain

import (
	"fmt"
	"strings"
)

// Confidence is the ordered strength of a meeting match (high > medium > low).
type Confidence int

const (
	ConfidenceLow Confidence = iota + 1
	ConfidenceMedium
	ConfidenceHigh
)

func (c Confidence) String() string {
	switch c {
	case ConfidenceLow:
		return "low"
	case ConfidenceMedium:
		return "medium"
	case ConfidenceHigh:
		return "high"
	default:
		return "none"
	}
}

func (c Confidence) MarshalText() ([]byte, error) {
	return []byte(c.String()), nil
}

func (c *Confidence) UnmarshalText(text []byte) error {
	parsed, err := ParseConfidence(string(text))
	if err != nil {
		return err
	}
	*c = parsed
	return nil
}

// ParseConfidence parses "high", "medium" or "low".
func ParseConfidence(value string) (Confidence, error) {
	switch strings.ToLower(strings.TrimSpace(value)) {
	case "high":
		return ConfidenceHigh, nil
	case "medium":
		return ConfidenceMedium, nil
	case "low":
		return ConfidenceLow, nil
	default:
		return 0, fmt.Errorf("unknown confidence %q", value)
	}
}

// MeetingDetectionResult is one detector's verdict for a tick.
type MeetingDetectionResult struct {
	Active     bool       `json:"active"`
	Title      string     `json:"title,omitempty"`
	Confidence Confidence `json:"confidence"`
}

// ActiveMeetingInfo is derived once per detection cycle.
type ActiveMeetingInfo struct {
	AppName    string     `json:"appName"`
	Title      string     `json:"title"`
	Confidence Confidence `json:"confidence"`
}

// MeetingEvent is the collapsed meeting state: inactive, or active with info.
type MeetingEvent struct {
	Active bool               `json:"active"`
	Info   *ActiveMeetingInfo `json:"info,omitempty"`
	Source *AudioSource       `json:"source,omitempty"`
}

// SameAs reports whether two events are duplicates by (title, app name).
func (e MeetingEvent) SameAs(other MeetingEvent) bool {
	if e.Active != other.Active {
		return false
	}
	if !e.Active {
		return true
	}
	if e.Info == nil || other.Info == nil {
		return e.Info == other.Info
	}
	return e.Info.Title == other.Info.Title && e.Info.AppName == other.Info.AppName
}

// Window is one visible top-level window.
type Window struct {
	Title    string `json:"title"`
	BundleID string `json:"bundleId"`
}
