package crawler

import (
	"bytes"
	"io"
	"strings"

	"golang.org/x/net/html"

	"github.com/nao1215/sitemapper/internal/urlnorm"
)

// skippedSchemes are href prefixes that never lead to a crawlable page.
var skippedSchemes = []string{"javascript:", "mailto:", "tel:", "data:"}

// Parser extracts hyperlinks from HTML content.
//
// Design decision: We use golang.org/x/net/html for parsing rather than
// regex because:
//  1. It correctly handles malformed HTML common on the web
//  2. <base href> and nested markup are resolved the way browsers do
type Parser struct {
	// base is the address the page was served from.
	base string
}

// ParseResult contains the information extracted from one page.
type ParseResult struct {
	// Title is the page title from the <title> tag.
	Title string

	// BaseHref is the document base from <base href>, if any.
	BaseHref string

	// Links are canonical absolute URLs in document order, without duplicates.
	Links []string
}

// NewParser creates a parser that resolves relative links against base.
func NewParser(base string) *Parser {
	return &Parser{base: base}
}

// Parse parses HTML content and extracts every anchor target.
// Anchors that cannot be resolved to an http(s) URL are dropped.
func (p *Parser) Parse(content io.Reader) (*ParseResult, error) {
	doc, err := html.Parse(content)
	if err != nil {
		return nil, err
	}

	result := &ParseResult{Links: make([]string, 0)}
	var hrefs []string

	// Walk iteratively so deeply nested markup cannot exhaust the stack.
	stack := []*html.Node{doc}
	for len(stack) > 0 {
		n := stack[len(stack)-1]
		stack = stack[:len(stack)-1]

		if n.Type == html.ElementNode {
			switch n.Data {
			case "title":
				if result.Title == "" && n.FirstChild != nil && n.FirstChild.Type == html.TextNode {
					result.Title = strings.TrimSpace(n.FirstChild.Data)
				}
			case "base":
				if result.BaseHref == "" {
					result.BaseHref = strings.TrimSpace(getAttr(n, "href"))
				}
			case "a":
				if href, ok := hasAttr(n, "href"); ok {
					hrefs = append(hrefs, href)
				}
			}
		}

		// Push children in reverse so they are visited in document order.
		for c := n.LastChild; c != nil; c = c.PrevSibling {
			stack = append(stack, c)
		}
	}

	base := p.base
	if result.BaseHref != "" {
		if resolved, err := urlnorm.Canonicalize(result.BaseHref, p.base); err == nil {
			base = resolved
		}
	}

	seen := make(map[string]struct{}, len(hrefs))
	for _, href := range hrefs {
		link, ok := resolveHref(href, base)
		if !ok {
			continue
		}
		if _, dup := seen[link]; dup {
			continue
		}
		seen[link] = struct{}{}
		result.Links = append(result.Links, link)
	}

	return result, nil
}

// ExtractLinks returns the canonical absolute targets of every anchor in
// content, resolved against base. It never fails: unparsable markup yields
// whatever links could be recovered, possibly none.
func ExtractLinks(content []byte, base string) []string {
	result, err := NewParser(base).Parse(bytes.NewReader(content))
	if err != nil {
		return []string{}
	}
	return result.Links
}

// resolveHref canonicalizes one href. Fragment-only links, non-web schemes
// and unparsable targets are rejected.
func resolveHref(href, base string) (string, bool) {
	href = strings.TrimSpace(href)
	if href == "" || strings.HasPrefix(href, "#") {
		return "", false
	}

	lower := strings.ToLower(href)
	for _, scheme := range skippedSchemes {
		if strings.HasPrefix(lower, scheme) {
			return "", false
		}
	}

	link, err := urlnorm.Canonicalize(href, base)
	if err != nil {
		return "", false
	}
	return link, true
}

// getAttr returns the value of an HTML attribute, or "".
func getAttr(n *html.Node, key string) string {
	v, _ := hasAttr(n, key)
	return v
}

// hasAttr returns the value of an HTML attribute and whether it is present.
func hasAttr(n *html.Node, key string) (string, bool) {
	for _, attr := range n.Attr {
		if attr.Key == key {
			return attr.Val, true
		}
	}
	return "", false
}
