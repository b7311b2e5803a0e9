// Package model defines the data structures shared by the sitemapper packages.
//
// This package contains the following main types:
//   - Node: One canonical URL's crawl record as kept in the node store
//   - Status: The lifecycle stage of a node (unvisited, pending, success, error)
//   - TreeNode: A node of the reconstructed sitemap tree and the persisted
//     report document
//   - Summary: Aggregated counts over a tree for quick display
//
// Design decision: We keep models in their own package because the store,
// the crawler, the tree reconstructor and the report writers all exchange
// them; centralizing them prevents import cycles.
package model
