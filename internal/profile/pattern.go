package profile

import (
	"fmt"
	"regexp"
	"strings"
)

// PatternKind tags a compiled filter pattern.
type PatternKind int

const (
	// PatternRegex is a case-insensitive regular expression.
	PatternRegex PatternKind = iota
	// PatternLiteral is a case-insensitive substring, written as "quoted".
	PatternLiteral
)

// Pattern is a filter pattern parsed once at profile load.
type Pattern struct {
	Source string
	Kind   PatternKind
	// Key identifies equivalent patterns: lowercase with spaces and hyphens removed.
	Key string

	literal string
	re      *regexp.Regexp
}

// CompilePattern parses a raw pattern. A value wrapped in double quotes is a
// literal; anything else is a regular expression.
func CompilePattern(source string) (Pattern, error) {
	trimmed := strings.TrimSpace(source)
	p := Pattern{Source: source, Key: patternKey(trimmed)}

	if len(trimmed) >= 2 && strings.HasPrefix(trimmed, `"`) && strings.HasSuffix(trimmed, `"`) {
		p.Kind = PatternLiteral
		p.literal = strings.ToLower(trimmed[1 : len(trimmed)-1])
		p.Key = patternKey(trimmed[1 : len(trimmed)-1])
		return p, nil
	}

	re, err := regexp.Compile("(?i)" + trimmed)
	if err != nil {
		return Pattern{}, fmt.Errorf("%w: pattern %q: %v", ErrInvalidProfile, source, err)
	}
	p.Kind = PatternRegex
	p.re = re
	return p, nil
}

// Match reports whether the pattern matches any of the texts.
func (p Pattern) Match(texts ...string) bool {
	for _, t := range texts {
		if t == "" {
			continue
		}
		switch p.Kind {
		case PatternLiteral:
			if strings.Contains(strings.ToLower(t), p.literal) {
				return true
			}
		default:
			if p.re != nil && p.re.MatchString(t) {
				return true
			}
		}
	}
	return false
}

func (p Pattern) String() string {
	return p.Source
}

func patternKey(s string) string {
	s = strings.ToLower(s)
	s = strings.ReplaceAll(s, " ", "")
	return strings.ReplaceAll(s, "-", "")
}
