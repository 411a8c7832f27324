package meeting

import (
	"sort"
	"strings"

	"golang.org/x/text/cases"

	"meetcap/internal/domain"
)

// Pattern is one keyword rule for classifying a window title.
type Pattern struct {
	Keyword       string
	Confidence    domain.Confidence
	CaseSensitive bool
	Exclusions    []string
}

// Matcher classifies window titles against an ordered pattern list.
type Matcher struct {
	patterns []compiledPattern
}

type compiledPattern struct {
	Pattern
	folded     string
	exclusions []string
}

// NewMatcher orders patterns by descending confidence so the first match is
// also the highest-confidence match. Equal confidences keep input order.
func NewMatcher(patterns []Pattern) *Matcher {
	compiled := make([]compiledPattern, 0, len(patterns))
	for _, p := range patterns {
		if strings.TrimSpace(p.Keyword) == "" {
			continue
		}
		cp := compiledPattern{Pattern: p, folded: fold(p.Keyword)}
		for _, exclusion := range p.Exclusions {
			if exclusion = strings.TrimSpace(exclusion); exclusion != "" {
				cp.exclusions = append(cp.exclusions, fold(exclusion))
			}
		}
		compiled = append(compiled, cp)
	}
	sort.SliceStable(compiled, func(i, j int) bool {
		return compiled[i].Confidence > compiled[j].Confidence
	})
	return &Matcher{patterns: compiled}
}

// BestMatch returns the confidence of the first matching, non-excluded pattern.
func (m *Matcher) BestMatch(title string) (domain.Confidence, bool) {
	foldedTitle := fold(title)
	for _, p := range m.patterns {
		var matched bool
		if p.CaseSensitive {
			matched = strings.Contains(title, p.Keyword)
		} else {
			matched = strings.Contains(foldedTitle, p.folded)
		}
		if !matched || p.excluded(foldedTitle) {
			continue
		}
		return p.Confidence, true
	}
	return 0, false
}

// Patterns returns the patterns in match order.
func (m *Matcher) Patterns() []Pattern {
	out := make([]Pattern, len(m.patterns))
	for i, p := range m.patterns {
		out[i] = p.Pattern
	}
	return out
}

func (p compiledPattern) excluded(foldedTitle string) bool {
	for _, exclusion := range p.exclusions {
		if strings.Contains(foldedTitle, exclusion) {
			return true
		}
	}
	return false
}

func fold(s string) string {
	return cases.Fold().String(s)
}
