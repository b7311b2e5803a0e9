package main

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"net"
	"net/http"
	"time"

	"github.com/spf13/cobra"
	"golang.org/x/sync/errgroup"

	"github.com/nao1215/sitemapper/internal/api"
)

const (
	// defaultServeAddr is the listen address of the API server.
	// Loopback only, since the API has no authentication.
	defaultServeAddr = "127.0.0.1:8080"

	// shutdownTimeout bounds graceful shutdown of the API server.
	shutdownTimeout = 10 * time.Second
)

// NewServeCmd creates the serve command.
func NewServeCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "serve <url>",
		Short: "Serve a stored crawl over a read-only JSON API",
		Long: `Serve exposes the stored crawl of a site over HTTP.

Endpoints:
  GET /healthz          liveness probe
  GET /api/tree         sitemap tree (?root= selects a subtree)
  GET /api/summary      status totals and broken links
  GET /api/counts       node totals per stored status
  GET /api/nodes?url=   one node with its children
  GET /api/runs         crawl history (?limit=)
  GET /api/report       rendered report (?format=text|json|dot|markdown)

Do not run serve and crawl on the same site at the same time.

Examples:
  sitemapper serve https://example.com
  sitemapper serve --addr :9000 https://example.com`,
		Args: cobra.ExactArgs(1),
		RunE: runServeCmd,
	}

	cmd.Flags().StringP("addr", "a", defaultServeAddr, "Listen address")

	return cmd
}

// runServeCmd executes the serve command.
func runServeCmd(cmd *cobra.Command, args []string) error {
	addr, err := cmd.Flags().GetString("addr")
	if err != nil {
		return err
	}

	logger := setupLogger(getVerboseFlag(cmd))
	slog.SetDefault(logger)

	db, err := openSiteDB(getDBDir(cmd), args[0], false)
	if err != nil {
		return err
	}
	defer db.Close()

	ln, err := net.Listen("tcp", addr)
	if err != nil {
		return fmt.Errorf("failed to listen on %s: %w", addr, err)
	}

	ctx, cancel := signalContext(logger)
	defer cancel()

	server := &http.Server{
		Handler:           api.NewRouter(db, logger),
		ReadHeaderTimeout: 10 * time.Second,
	}

	fmt.Fprintf(cmd.OutOrStdout(), "Serving %s on http://%s\n", db.Path(), ln.Addr())
	return serveAPI(ctx, server, ln, logger)
}

// serveAPI runs server on ln until ctx is cancelled, then shuts it down.
func serveAPI(ctx context.Context, server *http.Server, ln net.Listener, logger *slog.Logger) error {
	g, gCtx := errgroup.WithContext(ctx)

	g.Go(func() error {
		logger.Info("starting HTTP server", "address", ln.Addr().String())
		if err := server.Serve(ln); err != nil && !errors.Is(err, http.ErrServerClosed) {
			return fmt.Errorf("HTTP server error: %w", err)
		}
		return nil
	})

	g.Go(func() error {
		<-gCtx.Done()
		logger.Info("shutting down server...")

		shutdownCtx, cancel := context.WithTimeout(context.Background(), shutdownTimeout)
		defer cancel()
		if err := server.Shutdown(shutdownCtx); err != nil {
			logger.Error("HTTP server shutdown error", "error", err)
		}
		return nil
	})

	return g.Wait()
}
