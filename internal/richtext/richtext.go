// Package richtext renders the HTML job descriptions written in the
// dispatcher editor as plain text for technicians.
package richtext

import (
	"html"
	"regexp"
	"strings"

	"github.com/microcosm-cc/bluemonday"
)

var (
	sourceSpace = regexp.MustCompile(`\s+`)
	lineBreak   = regexp.MustCompile(`(?i)<br\s*/?>`)
	blockEnd    = regexp.MustCompile(`(?i)</(p|div|h[1-6]|ul|ol|tr|table|blockquote|pre)\s*>`)
	listItem    = regexp.MustCompile(`(?i)<li(\s[^>]*)?>`)
	inlineSpace = regexp.MustCompile(`[ \t]+`)
	blankRuns   = regexp.MustCompile(`\n{3,}`)

	strict = bluemonday.StrictPolicy()
)

// PlainText converts an HTML fragment to plain text. Paragraphs and other
// blocks end with a line break, list items become "- " lines, and runs of
// blank lines collapse to one.
func PlainText(s string) string {
	if strings.TrimSpace(s) == "" {
		return ""
	}

	s = sourceSpace.ReplaceAllString(s, " ")
	s = lineBreak.ReplaceAllString(s, "\n")
	s = blockEnd.ReplaceAllString(s, "\n")
	s = listItem.ReplaceAllString(s, "\n- ")

	s = html.UnescapeString(strict.Sanitize(s))
	s = strings.ReplaceAll(s, "\u00a0", " ")

	lines := strings.Split(s, "\n")
	for i, line := range lines {
		lines[i] = strings.TrimSpace(inlineSpace.ReplaceAllString(line, " "))
	}
	s = strings.Join(lines, "\n")
	s = blankRuns.ReplaceAllString(s, "\n\n")

	return strings.TrimSpace(s)
}
