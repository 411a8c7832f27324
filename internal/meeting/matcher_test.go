package meeting

import (
	"math/rand"
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"meetcap/internal/domain"
)

func TestMatcherOrdersByConfidence(t *testing.T) {
	t.Parallel()

	m := NewMatcher([]Pattern{
		{Keyword: "call", Confidence: domain.ConfidenceLow},
		{Keyword: "meeting", Confidence: domain.ConfidenceMedium},
		{Keyword: "meeting with", Confidence: domain.ConfidenceHigh},
	})

	got, ok := m.BestMatch("Meeting with Alice - call")
	require.True(t, ok)
	assert.Equal(t, domain.ConfidenceHigh, got)

	ordered := m.Patterns()
	require.Len(t, ordered, 3)
	assert.Equal(t, domain.ConfidenceHigh, ordered[0].Confidence)
	assert.Equal(t, domain.ConfidenceLow, ordered[2].Confidence)
}

func TestMatcherNoMatch(t *testing.T) {
	t.Parallel()

	m := NewMatcher([]Pattern{{Keyword: "Zoom Meeting", Confidence: domain.ConfidenceHigh}})
	_, ok := m.BestMatch("Inbox - Mail")
	assert.False(t, ok)
}

func TestMatcherCaseSensitivity(t *testing.T) {
	t.Parallel()

	m := NewMatcher([]Pattern{{Keyword: "Meet - ", Confidence: domain.ConfidenceHigh, CaseSensitive: true}})
	_, ok := m.BestMatch("meet - abc-defg-hij")
	assert.False(t, ok)

	got, ok := m.BestMatch("Meet - abc-defg-hij")
	require.True(t, ok)
	assert.Equal(t, domain.ConfidenceHigh, got)

	insensitive := NewMatcher([]Pattern{{Keyword: "ZOOM meeting", Confidence: domain.ConfidenceMedium}})
	_, ok = insensitive.BestMatch("zoom MEETING")
	assert.True(t, ok)
}

func TestMatcherExclusionsAreCaseInsensitive(t *testing.T) {
	t.Parallel()

	m := NewMatcher([]Pattern{
		{Keyword: "Meeting", Confidence: domain.ConfidenceMedium, CaseSensitive: true, Exclusions: []string{"CALENDAR"}},
	})

	_, ok := m.BestMatch("Meeting | Calendar | Microsoft Teams")
	assert.False(t, ok)

	_, ok = m.BestMatch("Meeting | calendar")
	assert.False(t, ok)

	_, ok = m.BestMatch("Meeting | General")
	assert.True(t, ok)
}

func TestMatcherExcludedHighFallsBackToLower(t *testing.T) {
	t.Parallel()

	m := NewMatcher([]Pattern{
		{Keyword: "Zoom Meeting", Confidence: domain.ConfidenceHigh, Exclusions: []string{"scheduled"}},
		{Keyword: "Zoom", Confidence: domain.ConfidenceLow},
	})

	got, ok := m.BestMatch("Scheduled Zoom Meeting")
	require.True(t, ok)
	assert.Equal(t, domain.ConfidenceLow, got)
}

func TestMatcherSkipsBlankKeywords(t *testing.T) {
	t.Parallel()

	m := NewMatcher([]Pattern{{Keyword: "  ", Confidence: domain.ConfidenceHigh}})
	_, ok := m.BestMatch("anything")
	assert.False(t, ok)
}

// The best match never exceeds the strongest pattern that matches and is not excluded.
func TestMatcherNeverExceedsStrongestEligiblePattern(t *testing.T) {
	t.Parallel()

	words := []string{"meeting", "call", "zoom", "teams", "chat", "calendar", "with", "Share"}
	rng := rand.New(rand.NewSource(42))

	for round := 0; round < 200; round++ {
		patterns := make([]Pattern, rng.Intn(6)+1)
		for i := range patterns {
			p := Pattern{
				Keyword:       words[rng.Intn(len(words))],
				Confidence:    domain.Confidence(rng.Intn(3) + 1),
				CaseSensitive: rng.Intn(2) == 0,
			}
			if rng.Intn(2) == 0 {
				p.Exclusions = []string{strings.ToUpper(words[rng.Intn(len(words))])}
			}
			patterns[i] = p
		}

		titleWords := make([]string, rng.Intn(4)+1)
		for i := range titleWords {
			titleWords[i] = words[rng.Intn(len(words))]
		}
		title := strings.Join(titleWords, " ")

		var strongest domain.Confidence
		for _, p := range patterns {
			matched := strings.Contains(title, p.Keyword)
			if !p.CaseSensitive {
				matched = strings.Contains(strings.ToLower(title), strings.ToLower(p.Keyword))
			}
			excluded := false
			for _, ex := range p.Exclusions {
				if strings.Contains(strings.ToLower(title), strings.ToLower(ex)) {
					excluded = true
				}
			}
			if matched && !excluded && p.Confidence > strongest {
				strongest = p.Confidence
			}
		}

		got, ok := NewMatcher(patterns).BestMatch(title)
		if strongest == 0 {
			assert.False(t, ok, "title %q", title)
			continue
		}
		require.True(t, ok, "title %q", title)
		assert.Equal(t, strongest, got, "title %q", title)
	}
}
