package report

import (
	"io"
	"strconv"
	"strings"

	"github.com/nao1215/markdown"
	"github.com/nao1215/markdown/mermaid/piechart"
	"github.com/nao1215/sitemapper/internal/model"
	"github.com/nao1215/sitemapper/internal/sitemap"
)

// MarkdownWriter outputs reports in Markdown format.
// This format is designed for documentation and sharing.
//
// Design decision: We use the nao1215/markdown library for fluent markdown
// generation which provides:
// 1. Type-safe markdown generation
// 2. Support for tables, lists, and code blocks
// 3. GitHub-flavored markdown alerts
type MarkdownWriter struct {
	baseWriter
}

// NewMarkdownWriter creates a MarkdownWriter that outputs to the given writer.
func NewMarkdownWriter(output io.Writer) *MarkdownWriter {
	return &MarkdownWriter{
		baseWriter: newBaseWriter(output),
	}
}

// Write outputs the summary followed by the tree.
func (w *MarkdownWriter) Write(tree *model.TreeNode) (int, error) {
	return w.write(sitemap.Summarize(tree), tree)
}

// WriteSummary outputs the summary sections only.
func (w *MarkdownWriter) WriteSummary(summary *model.Summary) (int, error) {
	return w.write(summary, nil)
}

func (w *MarkdownWriter) write(summary *model.Summary, tree *model.TreeNode) (int, error) {
	md := markdown.NewMarkdown(w.output)

	w.writeHeader(md, summary)
	w.writeSummary(md, summary)
	w.writeBroken(md, summary)
	if tree != nil {
		w.writeMatches(md, tree)
		w.writeTree(md, tree)
	}
	w.writeFooter(md)

	return len(md.String()), md.Build()
}

// writeHeader writes the report header with crawl information.
func (w *MarkdownWriter) writeHeader(md *markdown.Markdown, s *model.Summary) {
	md.H1("Sitemap Report")
	md.PlainText("")

	md.Table(markdown.TableSet{
		Header: []string{"Property", "Value"},
		Rows: [][]string{
			{"Root", "`" + s.Root + "`"},
			{"Generated", s.GeneratedAt.Format("2006-01-02 15:04:05 MST")},
			{"Nodes", strconv.Itoa(s.Total)},
			{"Visited", strconv.Itoa(s.Visited)},
			{"Max Depth", strconv.Itoa(s.MaxDepth)},
		},
	})
	md.PlainText("")
}

// writeSummary writes the status table, chart and alert.
func (w *MarkdownWriter) writeSummary(md *markdown.Markdown, s *model.Summary) {
	md.H2("Status Summary")
	md.PlainText("")

	md.Table(markdown.TableSet{
		Header: []string{"Status", "Count"},
		Rows: [][]string{
			{"✅ OK", strconv.Itoa(s.OK)},
			{"↪️ Redirected", strconv.Itoa(s.Redirected)},
			{"🟠 Client Errors", strconv.Itoa(s.ClientErrors)},
			{"🔴 Server Errors", strconv.Itoa(s.ServerErrors)},
			{"❌ Fetch Errors", strconv.Itoa(s.FetchErrors)},
			{"⚪ Unvisited", strconv.Itoa(s.Unvisited)},
			{"🔍 Matches", strconv.Itoa(s.Matches)},
			{"**Total**", "**" + strconv.Itoa(s.Total) + "**"},
		},
	})
	md.PlainText("")

	if s.Total > 0 {
		w.writePieChart(md, s)
	}
	w.writeAlert(md, s)
}

// writePieChart writes a mermaid pie chart for the status distribution.
func (w *MarkdownWriter) writePieChart(md *markdown.Markdown, s *model.Summary) {
	chart := piechart.NewPieChart(
		io.Discard,
		piechart.WithTitle("Status Distribution"),
		piechart.WithShowData(true),
	)

	other := s.Visited - s.OK - s.ClientErrors - s.ServerErrors - s.FetchErrors
	parts := []struct {
		label string
		count int
	}{
		{"OK", s.OK},
		{"Other", other},
		{"Client Errors", s.ClientErrors},
		{"Server Errors", s.ServerErrors},
		{"Fetch Errors", s.FetchErrors},
		{"Unvisited", s.Unvisited},
	}
	for _, slice := range parts {
		if slice.count > 0 {
			chart.LabelAndIntValue(slice.label, uint64(slice.count))
		}
	}

	md.PlainText("")
	md.CodeBlocks(markdown.SyntaxHighlightMermaid, chart.String())
	md.PlainText("")
}

// writeAlert writes an alert describing the overall health of the site.
func (w *MarkdownWriter) writeAlert(md *markdown.Markdown, s *model.Summary) {
	switch {
	case s.ServerErrors > 0 || s.FetchErrors > 0:
		md.Cautionf("%d page(s) failed with a server or network error.", s.ServerErrors+s.FetchErrors)
	case s.ClientErrors > 0:
		md.Warningf("%d broken link(s) found.", s.ClientErrors)
	case s.Unvisited > 0:
		md.Importantf("The crawl stopped with %d page(s) unvisited. Run crawl again to resume.", s.Unvisited)
	default:
		md.Tip("Every discovered page answered successfully.")
	}
	md.PlainText("")
}

// writeBroken writes the broken links table.
func (w *MarkdownWriter) writeBroken(md *markdown.Markdown, s *model.Summary) {
	md.H2("Broken Links")
	md.PlainText("")

	if !s.HasBroken() {
		md.PlainText("No broken links detected.")
		md.PlainText("")
		return
	}

	rows := make([][]string, len(s.Broken))
	for i, b := range s.Broken {
		parent := "-"
		if b.Parent != "" {
			parent = "`" + b.Parent + "`"
		}
		rows[i] = []string{"`" + b.URL + "`", truncateString(b.Status, 60), parent}
	}

	md.Table(markdown.TableSet{
		Header: []string{"URL", "Status", "Linked From"},
		Rows:   rows,
	})
	md.PlainText("")
}

// writeMatches lists pages that contained the search text.
func (w *MarkdownWriter) writeMatches(md *markdown.Markdown, tree *model.TreeNode) {
	var matches []string
	_ = sitemap.Walk(tree, func(n, _ *model.TreeNode, _ int) error {
		if n.Matched() {
			matches = append(matches, "`"+n.URL+"`")
		}
		return nil
	})
	if len(matches) == 0 {
		return
	}

	md.H2("Search Matches")
	md.PlainText("")
	md.BulletList(matches...)
	md.PlainText("")
}

// writeTree writes the text tree inside a code block.
func (w *MarkdownWriter) writeTree(md *markdown.Markdown, tree *model.TreeNode) {
	var sb strings.Builder
	writeTree(&sb, tree)

	md.H2("Tree")
	md.PlainText("")
	md.CodeBlocks(markdown.SyntaxHighlight("text"), strings.TrimRight(sb.String(), "\n"))
	md.PlainText("")
}

// writeFooter writes the report footer.
func (w *MarkdownWriter) writeFooter(md *markdown.Markdown) {
	md.HorizontalRule()
	md.PlainText("")
	md.PlainTextf("*Report generated by [sitemapper](https://github.com/nao1215/sitemapper)*")
}

// truncateString truncates a string to maxLen bytes with ellipsis.
func truncateString(s string, maxLen int) string {
	if len(s) <= maxLen {
		return s
	}
	if maxLen <= 3 {
		return s[:maxLen]
	}
	return s[:maxLen-3] + "..."
}
