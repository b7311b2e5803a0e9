package report

import (
	"errors"
	"fmt"
	"io"
	"slices"
	"strings"

	"github.com/nao1215/sitemapper/internal/model"
)

// Format names an output format.
type Format string

const (
	// FormatJSON is the persisted report document.
	FormatJSON Format = "json"

	// FormatText is an indented tree for the terminal.
	FormatText Format = "text"

	// FormatDOT is a Graphviz digraph.
	FormatDOT Format = "dot"

	// FormatMarkdown is a shareable summary with broken links and the tree.
	FormatMarkdown Format = "markdown"
)

// ErrUnknownFormat is returned for format names no writer handles.
var ErrUnknownFormat = errors.New("unknown report format")

// Formats lists every supported format.
func Formats() []Format {
	return []Format{FormatJSON, FormatText, FormatDOT, FormatMarkdown}
}

// ParseFormat converts a user supplied name to a Format. "md" is accepted
// for Markdown.
func ParseFormat(s string) (Format, error) {
	f := Format(strings.ToLower(strings.TrimSpace(s)))
	if f == "md" {
		f = FormatMarkdown
	}
	if !slices.Contains(Formats(), f) {
		return "", fmt.Errorf("%w: %q (want one of json, text, dot, markdown)", ErrUnknownFormat, s)
	}
	return f, nil
}

// Writer defines the interface for report output.
// Implementations render a sitemap tree in various formats.
//
// Design decision: We use an interface to allow different output formats
// and destinations. This enables writing to files, stdout, or HTTP
// responses with the same API.
type Writer interface {
	// Write outputs the tree to the configured destination.
	// Returns the number of bytes written and any error encountered.
	Write(tree *model.TreeNode) (int, error)
}

// SummaryWriter is implemented by writers that can also render a summary
// on its own.
type SummaryWriter interface {
	WriteSummary(summary *model.Summary) (int, error)
}

// NewWriter returns the writer for format.
func NewWriter(format Format, output io.Writer) (Writer, error) {
	switch format {
	case FormatJSON:
		return NewJSONWriter(output, WithPrettyPrint()), nil
	case FormatText:
		return NewTextWriter(output), nil
	case FormatDOT:
		return NewDOTWriter(output), nil
	case FormatMarkdown:
		return NewMarkdownWriter(output), nil
	default:
		return nil, fmt.Errorf("%w: %q", ErrUnknownFormat, format)
	}
}

// MultiWriter writes to multiple Writers simultaneously.
// This is useful for saving the JSON document while printing a tree.
//
// Design decision: We implement this as a separate type rather than
// using io.MultiWriter because each destination has its own format.
type MultiWriter struct {
	writers []Writer
}

// NewMultiWriter creates a Writer that writes to all provided Writers.
func NewMultiWriter(writers ...Writer) *MultiWriter {
	return &MultiWriter{writers: writers}
}

// Write outputs the tree to all configured Writers.
// Returns the total bytes written across all writers.
// Stops on first error encountered.
func (m *MultiWriter) Write(tree *model.TreeNode) (int, error) {
	var total int
	for _, w := range m.writers {
		n, err := w.Write(tree)
		total += n
		if err != nil {
			return total, err
		}
	}
	return total, nil
}

// baseWriter provides common functionality for report writers.
type baseWriter struct {
	output io.Writer
}

// newBaseWriter creates a baseWriter with the given output destination.
func newBaseWriter(output io.Writer) baseWriter {
	return baseWriter{output: output}
}

// label is the one-line description of a node shared by the text, DOT and
// Markdown renderers, e.g. "https://example.test/a (200)".
func label(n *model.TreeNode) string {
	var b strings.Builder
	b.WriteString(n.URL)
	b.WriteString(" (")
	b.WriteString(n.Status.String())
	b.WriteString(")")
	if n.RedirectedFrom != nil {
		b.WriteString(" <- ")
		b.WriteString(*n.RedirectedFrom)
	}
	if n.MatchResult != nil {
		b.WriteString(" [match: ")
		b.WriteString(*n.MatchResult)
		b.WriteString("]")
	}
	return b.String()
}

// isBroken reports whether a node failed or answered with an error status.
func isBroken(s model.Status) bool {
	return s.Kind == model.StatusError || (s.Kind == model.StatusSuccess && s.Code >= 400)
}
