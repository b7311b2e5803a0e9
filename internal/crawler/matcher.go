package crawler

import (
	"bytes"
	"strings"

	"github.com/PuerkitoBio/goquery"
	"golang.org/x/text/cases"
)

// Matcher is the optional content-search predicate.
// It looks for a case-insensitive substring in the visible text of a page.
type Matcher struct {
	// text is the search text as configured. It doubles as the match marker.
	text string

	// folded is text after Unicode case folding.
	folded string
}

// NewMatcher returns a matcher for text, or nil when text is blank.
func NewMatcher(text string) *Matcher {
	if strings.TrimSpace(text) == "" {
		return nil
	}
	return &Matcher{
		text:   text,
		folded: cases.Fold().String(text),
	}
}

// Marker returns the tag recorded on matching nodes.
func (m *Matcher) Marker() string {
	return m.text
}

// Match reports whether the visible text of content contains the search
// text, ignoring case. Script and style bodies are not visible text.
// A nil Matcher never matches.
func (m *Matcher) Match(content []byte) bool {
	if m == nil {
		return false
	}

	doc, err := goquery.NewDocumentFromReader(bytes.NewReader(content))
	if err != nil {
		return false
	}
	doc.Find("script, style, noscript, template").Remove()

	// cases.Caser keeps state between calls, so each match gets its own.
	text := cases.Fold().String(doc.Text())
	return strings.Contains(text, m.folded)
}
