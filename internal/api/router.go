package api

import (
	"context"
	"log/slog"
	"net/http"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"

	"github.com/nao1215/sitemapper/internal/model"
	"github.com/nao1215/sitemapper/internal/sitemap"
)

// Store is the read side of a crawl store that the API serves.
// *database.CrawlDB satisfies it.
type Store interface {
	sitemap.Source
	Node(ctx context.Context, url string) (*model.Node, error)
	Children(ctx context.Context, url string) ([]model.Node, error)
	Counts(ctx context.Context) (model.Counts, error)
	ListRuns(ctx context.Context, limit int) ([]model.Run, error)
}

// NewRouter creates a chi router with every route mounted.
// A nil logger uses slog.Default().
func NewRouter(store Store, logger *slog.Logger) chi.Router {
	if logger == nil {
		logger = slog.Default()
	}
	h := NewHandler(store, logger)

	r := chi.NewRouter()
	r.Use(middleware.RequestID)
	r.Use(requestLogger(logger))
	r.Use(middleware.Recoverer)

	r.Get("/healthz", func(w http.ResponseWriter, _ *http.Request) {
		writeJSON(w, http.StatusOK, map[string]string{"status": "ok"})
	})

	r.Route("/api", func(r chi.Router) {
		r.Get("/tree", h.Tree)
		r.Get("/summary", h.Summary)
		r.Get("/counts", h.Counts)
		r.Get("/nodes", h.Node)
		r.Get("/runs", h.Runs)
		r.Get("/report", h.Report)
	})

	return r
}

// requestLogger logs one debug line per request through logger.
func requestLogger(logger *slog.Logger) func(http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			ww := middleware.NewWrapResponseWriter(w, r.ProtoMajor)
			start := time.Now()
			next.ServeHTTP(ww, r)
			logger.Debug("request",
				"method", r.Method,
				"path", r.URL.Path,
				"status", ww.Status(),
				"bytes", ww.BytesWritten(),
				"duration", time.Since(start),
				"request_id", middleware.GetReqID(r.Context()),
			)
		})
	}
}
