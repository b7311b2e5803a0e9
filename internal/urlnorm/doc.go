// Package urlnorm maps raw addresses to the canonical string identity used
// everywhere sitemapper compares URLs.
//
// Every identity check in the crawler (seen-set membership, node keys,
// parent pointers, redirect targets) goes through Canonicalize, so two
// spellings of the same resource can never become two nodes.
//
// # Canonical form
//
//   - Relative references are resolved against the base URL
//   - A missing scheme becomes https when there is no base
//   - Scheme and host are lower-cased; port and userinfo are kept
//   - The fragment is removed
//   - The query string is kept byte for byte
//   - An empty path becomes "/"; deeper paths keep their trailing slash
//     exactly as resolved
//
// Canonicalize is pure and idempotent.
package urlnorm
