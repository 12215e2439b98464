// Package textproc holds pure text transforms applied to aggregated provider output.
package textproc

import (
	"fmt"
	"regexp"
	"strings"
)

// Default marker rewrite: spoken "question 3" (or "pergunta 3") becomes a
// paragraph break followed by a normalized "Question 3:" heading.
const (
	DefaultMarkerPattern     = `(?i)\b(?:question|pergunta|quest[aã]o)\s+(?:number\s+|n[uú]mero\s+)?(\d{1,3})\b[\s:.,)-]*`
	DefaultMarkerReplacement = "\n\nQuestion $1: "
)

// MarkerRewriter rewrites question markers detected in a transcript.
type MarkerRewriter struct {
	re          *regexp.Regexp
	replacement string
}

// NewMarkerRewriter compiles pattern. An empty pattern falls back to DefaultMarkerPattern.
func NewMarkerRewriter(pattern, replacement string) (*MarkerRewriter, error) {
	if pattern == "" {
		pattern = DefaultMarkerPattern
		if replacement == "" {
			replacement = DefaultMarkerReplacement
		}
	}
	re, err := regexp.Compile(pattern)
	if err != nil {
		return nil, fmt.Errorf("compiling question marker pattern: %w", err)
	}
	return &MarkerRewriter{re: re, replacement: replacement}, nil
}

// Rewrite applies the replacement to every match and collapses the blank-line
// runs the replacement may introduce.
func (m *MarkerRewriter) Rewrite(text string) string {
	if m == nil || text == "" {
		return text
	}
	out := m.re.ReplaceAllString(text, m.replacement)
	return collapseBlankLines(out)
}

var blankRuns = regexp.MustCompile(`[ \t]*\n(?:[ \t]*\n)+[ \t]*`)

func collapseBlankLines(s string) string {
	s = blankRuns.ReplaceAllString(s, "\n\n")
	return strings.TrimSpace(s)
}
