package meeting

import (
	"errors"
	"fmt"
	"os"
	"strings"

	"meetcap/internal/domain"
)

// PatternParser parses one line of a patterns file.
type PatternParser interface {
	CanParse(line string) bool
	Parse(line string) (app string, pattern Pattern, err error)
}

// LoadPatterns reads extra meeting patterns from a file, keyed by lowercase
// application name. A missing file or empty path yields no patterns.
//
// Two line formats are accepted:
//
//	Zoom | high | Breakout Room | cs | lobby, waiting
//	Microsoft Teams: Town hall => medium
func LoadPatterns(path string) (map[string][]Pattern, error) {
	return LoadPatternsWithParsers(path, defaultPatternParsers())
}

// LoadPatternsWithParsers allows parser extension without loader changes.
func LoadPatternsWithParsers(path string, parsers []PatternParser) (map[string][]Pattern, error) {
	if len(parsers) == 0 {
		parsers = defaultPatternParsers()
	}
	if strings.TrimSpace(path) == "" {
		return map[string][]Pattern{}, nil
	}

	contents, err := os.ReadFile(path)
	if err != nil {
		if errors.Is(err, os.ErrNotExist) {
			return map[string][]Pattern{}, nil
		}
		return nil, fmt.Errorf("failed to read patterns file %q: %w", path, err)
	}

	patterns, err := parsePatterns(string(contents), parsers)
	if err != nil {
		return nil, fmt.Errorf("failed to parse patterns file %q: %w", path, err)
	}
	return patterns, nil
}

func parsePatterns(contents string, parsers []PatternParser) (map[string][]Pattern, error) {
	out := map[string][]Pattern{}
	for index, raw := range strings.Split(contents, "\n") {
		line := strings.TrimSpace(raw)
		if line == "" || strings.HasPrefix(line, "#") {
			continue
		}

		parsed := false
		for _, parser := range parsers {
			if !parser.CanParse(line) {
				continue
			}
			app, pattern, err := parser.Parse(line)
			if err != nil {
				return nil, fmt.Errorf("line %d: %w", index+1, err)
			}
			key := strings.ToLower(app)
			out[key] = append(out[key], pattern)
			parsed = true
			break
		}

		if !parsed {
			return nil, fmt.Errorf("line %d: unsupported pattern format", index+1)
		}
	}
	return out, nil
}

func defaultPatternParsers() []PatternParser {
	return []PatternParser{pipePatternParser{}, arrowPatternParser{}}
}

type pipePatternParser struct{}

func (pipePatternParser) CanParse(line string) bool {
	return strings.Count(line, "|") >= 2
}

func (pipePatternParser) Parse(line string) (string, Pattern, error) {
	fields := strings.Split(line, "|")
	for i := range fields {
		fields[i] = strings.TrimSpace(fields[i])
	}
	if len(fields) > 5 {
		return "", Pattern{}, errors.New("too many fields")
	}

	app := fields[0]
	if app == "" {
		return "", Pattern{}, errors.New("application name cannot be empty")
	}
	confidence, err := domain.ParseConfidence(fields[1])
	if err != nil {
		return "", Pattern{}, err
	}
	if fields[2] == "" {
		return "", Pattern{}, errors.New("keyword cannot be empty")
	}

	pattern := Pattern{Keyword: fields[2], Confidence: confidence}
	if len(fields) > 3 {
		for _, flag := range strings.Fields(fields[3]) {
			switch strings.ToLower(flag) {
			case "cs", "case-sensitive":
				pattern.CaseSensitive = true
			case "-":
			default:
				return "", Pattern{}, fmt.Errorf("unsupported pattern flag %q", flag)
			}
		}
	}
	if len(fields) > 4 {
		for _, exclusion := range strings.Split(fields[4], ",") {
			if exclusion = strings.TrimSpace(exclusion); exclusion != "" {
				pattern.Exclusions = append(pattern.Exclusions, exclusion)
			}
		}
	}
	return app, pattern, nil
}

type arrowPatternParser struct{}

func (arrowPatternParser) CanParse(line string) bool {
	return strings.Contains(line, ":") && strings.Contains(line, "=>")
}

func (arrowPatternParser) Parse(line string) (string, Pattern, error) {
	head, confidenceText, ok := strings.Cut(line, "=>")
	if !ok {
		return "", Pattern{}, errors.New("invalid arrow pattern")
	}
	app, keyword, ok := strings.Cut(head, ":")
	if !ok {
		return "", Pattern{}, errors.New("invalid arrow pattern")
	}
	app = strings.TrimSpace(app)
	keyword = strings.TrimSpace(keyword)
	if app == "" || keyword == "" {
		return "", Pattern{}, errors.New("application and keyword cannot be empty")
	}
	confidence, err := domain.ParseConfidence(confidenceText)
	if err != nil {
		return "", Pattern{}, err
	}
	return app, Pattern{Keyword: keyword, Confidence: confidence}, nil
}
