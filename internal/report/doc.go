// Package report renders a sitemap tree for people and tools.
//
// This package contains writers for different output formats:
//   - JSONWriter: the persisted report document, readable by sitemap.Decode
//   - TextWriter: an indented tree for terminal display
//   - DOTWriter: a Graphviz digraph
//   - MarkdownWriter: a shareable summary with broken links and the tree
//
// Design decision: We separate report writing from the tree structure
// (which is in the model package) to follow the single responsibility
// principle. This allows adding new output formats without modifying
// the core data structures.
//
// Writers implement the Writer interface, allowing them to be used
// interchangeably and composed for multi-format output.
package report
