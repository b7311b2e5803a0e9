package report

import (
	"fmt"
	"io"
	"strings"

	"github.com/nao1215/sitemapper/internal/model"
	"github.com/nao1215/sitemapper/internal/sitemap"
)

// DOTWriter outputs the tree as a Graphviz digraph. Render it with
// `dot -Tpng sitemap.dot -o sitemap.png`.
type DOTWriter struct {
	baseWriter
}

// NewDOTWriter creates a DOTWriter that outputs to the given writer.
func NewDOTWriter(output io.Writer) *DOTWriter {
	return &DOTWriter{baseWriter: newBaseWriter(output)}
}

// Write outputs the digraph. Nodes are numbered in document order; broken
// nodes are red, unvisited ones gray and redirect targets dashed.
func (w *DOTWriter) Write(tree *model.TreeNode) (int, error) {
	var sb strings.Builder
	sb.WriteString("digraph sitemap {\n")
	sb.WriteString("  rankdir=LR;\n")
	sb.WriteString("  node [shape=box, fontname=\"Helvetica\"];\n")

	ids := make(map[*model.TreeNode]int)
	_ = sitemap.Walk(tree, func(n, parent *model.TreeNode, _ int) error {
		id := len(ids)
		ids[n] = id

		fmt.Fprintf(&sb, "  n%d [label=%s%s];\n", id, quoteDOT(label(n)), dotStyle(n))
		if parent != nil {
			fmt.Fprintf(&sb, "  n%d -> n%d;\n", ids[parent], id)
		}
		return nil
	})

	sb.WriteString("}\n")
	return io.WriteString(w.output, sb.String())
}

// dotStyle returns the extra attributes for a node.
func dotStyle(n *model.TreeNode) string {
	var attrs []string
	switch {
	case isBroken(n.Status):
		attrs = append(attrs, "color=red")
	case n.Status.Kind == model.StatusUnvisited || n.Status.Kind == model.StatusPending:
		attrs = append(attrs, "color=gray", "fontcolor=gray")
	}
	if n.RedirectedFrom != nil {
		attrs = append(attrs, "style=dashed")
	}
	if n.MatchResult != nil {
		attrs = append(attrs, "penwidth=2")
	}

	if len(attrs) == 0 {
		return ""
	}
	return ", " + strings.Join(attrs, ", ")
}

// quoteDOT returns s as a DOT double-quoted string.
func quoteDOT(s string) string {
	r := strings.NewReplacer(`\`, `\\`, `"`, `\"`, "\n", `\n`)
	return `"` + r.Replace(s) + `"`
}
