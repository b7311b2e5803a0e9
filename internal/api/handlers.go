package api

import (
	"bytes"
	"errors"
	"log/slog"
	"net/http"
	"strconv"
	"time"

	"github.com/nao1215/sitemapper/internal/database"
	"github.com/nao1215/sitemapper/internal/model"
	"github.com/nao1215/sitemapper/internal/report"
	"github.com/nao1215/sitemapper/internal/sitemap"
	"github.com/nao1215/sitemapper/internal/urlnorm"
)

// defaultRunLimit caps /api/runs when no limit is given.
const defaultRunLimit = 20

// Handler holds API route handlers.
type Handler struct {
	store  Store
	logger *slog.Logger
}

// NewHandler creates a new Handler.
func NewHandler(store Store, logger *slog.Logger) *Handler {
	return &Handler{store: store, logger: logger}
}

// NodeResponse is the JSON form of a single stored node.
type NodeResponse struct {
	URL            string       `json:"url"`
	Status         model.Status `json:"status"`
	State          string       `json:"state"`
	RedirectedFrom string       `json:"redirectedFrom,omitempty"`
	Parent         string       `json:"parent,omitempty"`
	Depth          int          `json:"depth"`
	MatchResult    string       `json:"matchResult,omitempty"`
	DiscoveredAt   time.Time    `json:"discoveredAt"`
	FetchedAt      *time.Time   `json:"fetchedAt,omitempty"`
	Children       []string     `json:"children"`
}

func newNodeResponse(n *model.Node, children []model.Node) NodeResponse {
	resp := NodeResponse{
		URL:            n.URL,
		Status:         n.Status,
		State:          string(n.Status.Kind),
		RedirectedFrom: n.RedirectedFrom,
		Parent:         n.Parent,
		Depth:          n.Depth,
		MatchResult:    n.MatchResult,
		DiscoveredAt:   n.DiscoveredAt,
		Children:       make([]string, 0, len(children)),
	}
	if !n.FetchedAt.IsZero() {
		fetched := n.FetchedAt
		resp.FetchedAt = &fetched
	}
	for _, c := range children {
		resp.Children = append(resp.Children, c.URL)
	}
	return resp
}

// Tree handles GET /api/tree.
func (h *Handler) Tree(w http.ResponseWriter, r *http.Request) {
	tree, ok := h.buildTree(w, r)
	if !ok {
		return
	}
	writeJSON(w, http.StatusOK, tree)
}

// Summary handles GET /api/summary.
func (h *Handler) Summary(w http.ResponseWriter, r *http.Request) {
	tree, ok := h.buildTree(w, r)
	if !ok {
		return
	}
	writeJSON(w, http.StatusOK, sitemap.Summarize(tree))
}

// Counts handles GET /api/counts.
func (h *Handler) Counts(w http.ResponseWriter, r *http.Request) {
	counts, err := h.store.Counts(r.Context())
	if err != nil {
		h.internalError(w, "count nodes", err)
		return
	}
	writeJSON(w, http.StatusOK, map[string]any{
		"counts":    counts,
		"remaining": counts.Remaining(),
	})
}

// Node handles GET /api/nodes?url=. Addresses that were redirected are
// answered with the node they redirected to.
func (h *Handler) Node(w http.ResponseWriter, r *http.Request) {
	raw := r.URL.Query().Get("url")
	if raw == "" {
		writeJSON(w, http.StatusBadRequest, errorBody("url is required"))
		return
	}
	canonical, err := urlnorm.Canonicalize(raw, "")
	if err != nil {
		writeJSON(w, http.StatusBadRequest, errorBody(err.Error()))
		return
	}

	ctx := r.Context()
	resolved, err := h.store.Resolve(ctx, canonical)
	if err != nil {
		if errors.Is(err, database.ErrNodeNotFound) {
			writeJSON(w, http.StatusNotFound, errorBody("not found"))
			return
		}
		h.internalError(w, "resolve node", err)
		return
	}

	n, err := h.store.Node(ctx, resolved)
	if err != nil {
		h.internalError(w, "get node", err)
		return
	}
	if n == nil {
		writeJSON(w, http.StatusNotFound, errorBody("not found"))
		return
	}

	children, err := h.store.Children(ctx, n.URL)
	if err != nil {
		h.internalError(w, "list children", err)
		return
	}
	writeJSON(w, http.StatusOK, newNodeResponse(n, children))
}

// Runs handles GET /api/runs.
func (h *Handler) Runs(w http.ResponseWriter, r *http.Request) {
	limit := defaultRunLimit
	if s := r.URL.Query().Get("limit"); s != "" {
		n, err := strconv.Atoi(s)
		if err != nil || n < 0 {
			writeJSON(w, http.StatusBadRequest, errorBody("limit must be a non-negative integer"))
			return
		}
		limit = n
	}

	runs, err := h.store.ListRuns(r.Context(), limit)
	if err != nil {
		h.internalError(w, "list runs", err)
		return
	}
	if runs == nil {
		runs = []model.Run{}
	}
	writeJSON(w, http.StatusOK, map[string]any{"runs": runs})
}

// Report handles GET /api/report?format=. The default format is text.
func (h *Handler) Report(w http.ResponseWriter, r *http.Request) {
	name := r.URL.Query().Get("format")
	if name == "" {
		name = string(report.FormatText)
	}
	format, err := report.ParseFormat(name)
	if err != nil {
		writeJSON(w, http.StatusBadRequest, errorBody(err.Error()))
		return
	}

	tree, ok := h.buildTree(w, r)
	if !ok {
		return
	}

	var buf bytes.Buffer
	writer, err := report.NewWriter(format, &buf)
	if err != nil {
		h.internalError(w, "create report writer", err)
		return
	}
	if _, err := writer.Write(tree); err != nil {
		h.internalError(w, "render report", err)
		return
	}

	w.Header().Set("Content-Type", contentType(format))
	w.WriteHeader(http.StatusOK)
	_, _ = w.Write(buf.Bytes())
}

// buildTree reconstructs the tree selected by the optional root parameter
// and writes the error response itself when that fails.
func (h *Handler) buildTree(w http.ResponseWriter, r *http.Request) (*model.TreeNode, bool) {
	root := r.URL.Query().Get("root")
	if root != "" {
		canonical, err := urlnorm.Canonicalize(root, "")
		if err != nil {
			writeJSON(w, http.StatusBadRequest, errorBody(err.Error()))
			return nil, false
		}
		root = canonical
	}

	tree, err := sitemap.Build(r.Context(), h.store, root)
	switch {
	case err == nil:
		return tree, true
	case errors.Is(err, sitemap.ErrNoRoot), errors.Is(err, database.ErrNodeNotFound):
		writeJSON(w, http.StatusNotFound, errorBody("not found"))
	case errors.Is(err, sitemap.ErrTreeTooDeep):
		writeJSON(w, http.StatusUnprocessableEntity, errorBody(err.Error()))
	default:
		h.internalError(w, "build tree", err)
	}
	return nil, false
}

func (h *Handler) internalError(w http.ResponseWriter, op string, err error) {
	h.logger.Error(op+" failed", slog.String("error", err.Error()))
	writeJSON(w, http.StatusInternalServerError, errorBody("internal error"))
}

func contentType(f report.Format) string {
	switch f {
	case report.FormatJSON:
		return "application/json; charset=utf-8"
	case report.FormatDOT:
		return "text/vnd.graphviz; charset=utf-8"
	case report.FormatMarkdown:
		return "text/markdown; charset=utf-8"
	default:
		return "text/plain; charset=utf-8"
	}
}
