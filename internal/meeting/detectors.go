package meeting

import (
	"strings"

	"meetcap/internal/domain"
)

// Detector classifies the windows of one meeting application.
type Detector interface {
	Name() string
	BundleIDs() []string
	Detect(windows []domain.Window) domain.MeetingDetectionResult
}

// AppDefinition is the data behind a detector: which windows it owns and
// which titles count as a meeting.
type AppDefinition struct {
	Name      string
	BundleIDs []string
	Patterns  []Pattern
}

type patternDetector struct {
	name      string
	bundleIDs []string
	matcher   *Matcher
}

// NewDetector builds the pattern-backed detector for an application.
func NewDetector(def AppDefinition) Detector {
	ids := make([]string, 0, len(def.BundleIDs))
	for _, id := range def.BundleIDs {
		ids = append(ids, strings.ToLower(strings.TrimSpace(id)))
	}
	return &patternDetector{
		name:      def.Name,
		bundleIDs: ids,
		matcher:   NewMatcher(def.Patterns),
	}
}

func (d *patternDetector) Name() string { return d.name }

func (d *patternDetector) BundleIDs() []string {
	out := make([]string, len(d.bundleIDs))
	copy(out, d.bundleIDs)
	return out
}

// Detect keeps the best window match; on equal confidence the first window wins.
func (d *patternDetector) Detect(windows []domain.Window) domain.MeetingDetectionResult {
	var best domain.MeetingDetectionResult
	for _, window := range windows {
		confidence, ok := d.matcher.BestMatch(window.Title)
		if !ok {
			continue
		}
		if !best.Active || confidence > best.Confidence {
			best = domain.MeetingDetectionResult{Active: true, Title: window.Title, Confidence: confidence}
		}
	}
	return best
}

// Owns reports whether a window's bundle id belongs to the detector.
func Owns(d Detector, bundleID string) bool {
	return containsID(d.BundleIDs(), bundleID)
}

var (
	teamsBundleIDs = []string{
		"com.microsoft.teams",
		"com.microsoft.teams2",
		"teams-for-linux",
		"microsoft teams - preview",
	}
	zoomBundleIDs = []string{
		"us.zoom.xos",
		"zoom",
		"zoom.us",
		"us.zoom.zoom",
	}
	browserBundleIDs = []string{
		"com.google.chrome",
		"com.apple.safari",
		"org.mozilla.firefox",
		"com.microsoft.edgemac",
		"com.brave.browser",
		"company.thebrowser.browser",
		"google-chrome",
		"chromium",
		"chromium-browser",
		"firefox",
		"microsoft-edge",
		"brave-browser",
	}
)

// DefaultApps is the fixed roster of meeting applications.
func DefaultApps() []AppDefinition {
	return []AppDefinition{
		{
			Name:      "Microsoft Teams",
			BundleIDs: teamsBundleIDs,
			Patterns: []Pattern{
				{Keyword: "Meeting with", Confidence: domain.ConfidenceHigh},
				{Keyword: "Call with", Confidence: domain.ConfidenceHigh},
				{Keyword: "Meeting in", Confidence: domain.ConfidenceHigh, Exclusions: []string{"chat"}},
				{Keyword: "Meeting", Confidence: domain.ConfidenceMedium, Exclusions: []string{"calendar", "chat", "activity", "meeting notes"}},
				{Keyword: "Call", Confidence: domain.ConfidenceLow, Exclusions: []string{"calls |", "call history", "calendar"}},
			},
		},
		{
			Name:      "Zoom",
			BundleIDs: zoomBundleIDs,
			Patterns: []Pattern{
				{Keyword: "Zoom Meeting", Confidence: domain.ConfidenceHigh},
				{Keyword: "Zoom Webinar", Confidence: domain.ConfidenceHigh},
				{Keyword: "Meeting", Confidence: domain.ConfidenceMedium, Exclusions: []string{"schedule", "upcoming", "meetings"}},
				{Keyword: "Screen Share", Confidence: domain.ConfidenceMedium},
				{Keyword: "zoom share", Confidence: domain.ConfidenceLow},
			},
		},
		{
			Name:      "Google Meet",
			BundleIDs: browserBundleIDs,
			Patterns: []Pattern{
				{Keyword: "Meet - ", Confidence: domain.ConfidenceHigh, CaseSensitive: true, Exclusions: []string{"meet - landing"}},
				{Keyword: "meet.google.com/", Confidence: domain.ConfidenceHigh, Exclusions: []string{"meet.google.com/landing"}},
				{Keyword: "Google Meet", Confidence: domain.ConfidenceMedium, Exclusions: []string{"landing", "home", "new meeting"}},
			},
		},
	}
}

// DefaultDetectors builds detectors for DefaultApps.
func DefaultDetectors() []Detector {
	return BuildDetectors(DefaultApps(), nil)
}

// BuildDetectors builds one detector per app, appending any extra patterns
// keyed by application name (case-insensitive).
func BuildDetectors(apps []AppDefinition, extra map[string][]Pattern) []Detector {
	detectors := make([]Detector, 0, len(apps))
	for _, app := range apps {
		def := app
		if more := extra[strings.ToLower(app.Name)]; len(more) > 0 {
			def.Patterns = append(append([]Pattern(nil), app.Patterns...), more...)
		}
		detectors = append(detectors, NewDetector(def))
	}
	return detectors
}

// IsMeetingApp reports whether a bundle id belongs to a dedicated meeting
// application. Browsers are excluded: they only sometimes host meetings.
func IsMeetingApp(bundleID string) bool {
	return containsID(teamsBundleIDs, bundleID) || containsID(zoomBundleIDs, bundleID)
}

func containsID(ids []string, bundleID string) bool {
	needle := strings.ToLower(strings.TrimSpace(bundleID))
	if needle == "" {
		return false
	}
	for _, id := range ids {
		if id == needle {
			return true
		}
	}
	return false
}
