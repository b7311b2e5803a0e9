// Package api exposes a crawl store over a read-only JSON HTTP API.
//
// It lets a browser or a script look at a sitemap while a crawl of the same
// store is paused, without exporting a report first. Routes:
//
//	GET /healthz              liveness probe
//	GET /api/tree             the sitemap tree (?root= selects a subtree)
//	GET /api/summary          status totals and broken links
//	GET /api/counts           node totals per stored status
//	GET /api/nodes?url=       one node, with its children
//	GET /api/runs             crawler invocation history (?limit=)
//	GET /api/report           the tree rendered as ?format=text|dot|markdown|json
package api
