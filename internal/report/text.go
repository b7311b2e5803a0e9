package report

import (
	"fmt"
	"io"
	"strings"

	"github.com/nao1215/sitemapper/internal/model"
	"github.com/nao1215/sitemapper/internal/sitemap"
)

// TextWriter outputs the tree with box-drawing connectors, one node per
// line, for terminal display.
//
// Design decision: We use plain text without ANSI colors because:
// 1. It works in all terminals without compatibility issues
// 2. It's easier to pipe to files or other tools
type TextWriter struct {
	baseWriter

	// withSummary appends the summary block after the tree.
	withSummary bool
}

// TextWriterOption configures a TextWriter.
type TextWriterOption func(*TextWriter)

// WithSummary appends the summary block after the tree.
func WithSummary(show bool) TextWriterOption {
	return func(w *TextWriter) {
		w.withSummary = show
	}
}

// NewTextWriter creates a TextWriter that outputs to the given writer.
func NewTextWriter(output io.Writer, opts ...TextWriterOption) *TextWriter {
	w := &TextWriter{baseWriter: newBaseWriter(output)}

	for _, opt := range opts {
		opt(w)
	}

	return w
}

// Write outputs the tree.
func (w *TextWriter) Write(tree *model.TreeNode) (int, error) {
	var sb strings.Builder
	writeTree(&sb, tree)

	if w.withSummary {
		sb.WriteString("\n")
		writeSummaryText(&sb, sitemap.Summarize(tree))
	}

	return io.WriteString(w.output, sb.String())
}

// WriteSummary outputs the summary block only.
func (w *TextWriter) WriteSummary(summary *model.Summary) (int, error) {
	var sb strings.Builder
	writeSummaryText(&sb, summary)
	return io.WriteString(w.output, sb.String())
}

// writeTree renders tree like:
//
//	https://example.test/ (200)
//	├── https://example.test/a (200)
//	│   └── https://example.test/c (200)
//	└── https://example.test/b (404)
func writeTree(sb *strings.Builder, tree *model.TreeNode) {
	if tree == nil {
		return
	}

	type frame struct {
		node   *model.TreeNode
		line   string
		indent string
	}

	stack := []frame{{node: tree}}
	for len(stack) > 0 {
		top := stack[len(stack)-1]
		stack = stack[:len(stack)-1]

		sb.WriteString(top.line)
		sb.WriteString(label(top.node))
		sb.WriteString("\n")

		for i := len(top.node.Links) - 1; i >= 0; i-- {
			last := i == len(top.node.Links)-1
			connector, indent := "├── ", "│   "
			if last {
				connector, indent = "└── ", "    "
			}
			stack = append(stack, frame{
				node:   top.node.Links[i],
				line:   top.indent + connector,
				indent: top.indent + indent,
			})
		}
	}
}

// writeSummaryText writes the summary banner.
func writeSummaryText(sb *strings.Builder, s *model.Summary) {
	sb.WriteString(strings.Repeat("=", 70))
	sb.WriteString("\n")
	sb.WriteString("                         SITEMAPPER REPORT\n")
	sb.WriteString(strings.Repeat("=", 70))
	sb.WriteString("\n\n")

	fmt.Fprintf(sb, "Root:           %s\n", s.Root)
	fmt.Fprintf(sb, "Generated:      %s\n", s.GeneratedAt.Format("2006-01-02 15:04:05 MST"))
	fmt.Fprintf(sb, "Nodes:          %d (%d visited, %d unvisited)\n", s.Total, s.Visited, s.Unvisited)
	fmt.Fprintf(sb, "Max depth:      %d\n", s.MaxDepth)
	sb.WriteString("\n")

	sb.WriteString(strings.Repeat("-", 70))
	sb.WriteString("\n")
	sb.WriteString("STATUS SUMMARY\n")
	sb.WriteString(strings.Repeat("-", 70))
	sb.WriteString("\n\n")

	fmt.Fprintf(sb, "  OK:            %d\n", s.OK)
	fmt.Fprintf(sb, "  REDIRECTED:    %d\n", s.Redirected)
	fmt.Fprintf(sb, "  CLIENT ERRORS: %d\n", s.ClientErrors)
	fmt.Fprintf(sb, "  SERVER ERRORS: %d\n", s.ServerErrors)
	fmt.Fprintf(sb, "  FETCH ERRORS:  %d\n", s.FetchErrors)
	fmt.Fprintf(sb, "  MATCHES:       %d\n", s.Matches)
	sb.WriteString("\n")

	if s.HasBroken() {
		sb.WriteString(strings.Repeat("-", 70))
		sb.WriteString("\n")
		sb.WriteString("BROKEN LINKS\n")
		sb.WriteString(strings.Repeat("-", 70))
		sb.WriteString("\n\n")

		for _, b := range s.Broken {
			fmt.Fprintf(sb, "  [!] %s (%s)\n", b.URL, b.Status)
			if b.Parent != "" {
				fmt.Fprintf(sb, "      linked from %s\n", b.Parent)
			}
		}
		sb.WriteString("\n")
	}

	sb.WriteString(strings.Repeat("=", 70))
	sb.WriteString("\n")
}
