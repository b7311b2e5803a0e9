// Package sitemap rebuilds the discovered link graph as a tree.
//
// The store keeps nodes in a flat table with parent pointers. Build turns
// that arena into a nested model.TreeNode once traversal has halted. The
// nested form is the persisted report document; Encode and Decode move it
// to and from JSON without loss.
//
// Design decision: Build and Walk use an explicit stack instead of
// recursion because:
//  1. A store may legally hold chains as deep as the configured depth limit
//  2. A damaged store could contain parent cycles
//
// Both are bounded by MaxTreeDepth.
package sitemap
