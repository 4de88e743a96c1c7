package cmd

import (
	"context"
	"fmt"
	"log/slog"
	"net/http"
	"os"
	"os/signal"
	"path/filepath"
	"syscall"
	"time"

	"github.com/prometheus/client_golang/prometheus/promhttp"
	"github.com/spf13/cobra"

	"github.com/leafmark/reader/internal/document"
	"github.com/leafmark/reader/internal/ocr"
	"github.com/leafmark/reader/internal/ocrcache"
	"github.com/leafmark/reader/internal/server"
	"github.com/leafmark/reader/internal/store"
)

// serveCmd represents the serve command.
var serveCmd = &cobra.Command{
	Use:   "serve",
	Short: "Start the HTTP reading session API",
	Long: `Start an HTTP server exposing reading sessions over a REST API plus a
WebSocket event stream per session.

The server provides the following endpoints:
  POST   /sessions                   - Open a reading session
  GET    /sessions/{id}/page.png     - Rendered current page
  GET    /sessions/{id}/text         - Page text layer
  POST   /sessions/{id}/search       - Full-text search
  GET/POST /sessions/{id}/annotations - Highlights and bookmarks
  GET    /sessions/{id}/events       - WebSocket event stream
  GET    /health                     - Health check
  GET    /metrics                    - Prometheus metrics

Examples:
  reader serve --library ./books
  reader serve --host 0.0.0.0 --port 3000 --library /srv/books`,
	SilenceUsage: true,
	RunE: func(cmd *cobra.Command, args []string) error {
		cfg := GetConfig()

		host := cfg.Server.Host
		if cmd.Flags().Changed("host") {
			host, _ = cmd.Flags().GetString("host")
		}
		port := cfg.Server.Port
		if cmd.Flags().Changed("port") {
			port, _ = cmd.Flags().GetInt("port")
		}
		if port < 1 || port > 65535 {
			return fmt.Errorf("invalid port number: %d (must be between 1 and 65535)", port)
		}

		library, _ := cmd.Flags().GetString("library")
		if library == "" {
			return fmt.Errorf("a --library directory is required")
		}
		if info, err := os.Stat(library); err != nil || !info.IsDir() {
			return fmt.Errorf("library is not a directory: %s", library)
		}

		ctx, cancel := context.WithCancel(context.Background())
		defer cancel()

		db, err := store.OpenSQLite(filepath.Join(cfg.DataDir, "reader.db"))
		if err != nil {
			return fmt.Errorf("opening reading data store: %w", err)
		}
		defer func() { _ = db.Close() }()

		cache, err := ocrcache.NewStore(cfg.CachePath())
		if err != nil {
			return fmt.Errorf("opening OCR cache: %w", err)
		}
		defer func() { _ = cache.Close() }()

		deps := server.Deps{
			Source:      document.NewDirSource(library),
			Cache:       cache,
			Progress:    db,
			Annotations: db,
		}
		if cfg.Text.OCREnabled {
			engine, err := ocr.NewTesseractEngine(cfg.Text.OCRLanguages)
			if err != nil {
				slog.Warn("OCR engine unavailable, scanned pages will have no text layer", "error", err)
			} else {
				defer func() { _ = engine.Close() }()
				deps.OCR = engine
			}
		}

		readerServer, err := server.NewServer(cfg, deps)
		if err != nil {
			return fmt.Errorf("failed to initialize server: %w", err)
		}
		defer func() { _ = readerServer.Close() }()

		if enabled, _ := cmd.Flags().GetBool("rate-limit-enabled"); enabled {
			rpm, _ := cmd.Flags().GetInt("requests-per-minute")
			maxSessions, _ := cmd.Flags().GetInt("max-open-sessions")
			readerServer.SetRateLimiter(server.NewRateLimiter(server.RateLimiterConfig{
				RequestsPerMinute: rpm,
				MaxOpenSessions:   maxSessions,
			}))
		}

		mux := http.NewServeMux()
		readerServer.SetupRoutes(mux)
		mux.Handle("/metrics", promhttp.Handler())

		httpServer := &http.Server{
			Addr:              fmt.Sprintf("%s:%d", host, port),
			Handler:           mux,
			ReadHeaderTimeout: 5 * time.Second,
			ReadTimeout:       cfg.Server.ReadTimeout,
			WriteTimeout:      cfg.Server.WriteTimeout,
		}

		go func() {
			slog.Info("Starting reader server", "host", host, "port", port, "library", library)
			if err := httpServer.ListenAndServe(); err != nil && err != http.ErrServerClosed {
				slog.Error("Server error", "error", err)
				cancel()
			}
		}()

		sigChan := make(chan os.Signal, 1)
		signal.Notify(sigChan, syscall.SIGTERM, syscall.SIGINT)

		select {
		case sig := <-sigChan:
			slog.Info("Received shutdown signal", "signal", sig.String())
		case <-ctx.Done():
			slog.Info("Context cancelled, initiating shutdown")
		}

		shutdownTimeout, _ := cmd.Flags().GetInt("shutdown-timeout")
		shutdownCtx, shutdownCancel := context.WithTimeout(context.Background(),
			time.Duration(shutdownTimeout)*time.Second)
		defer shutdownCancel()

		slog.Info("Shutting down HTTP server")
		if err := httpServer.Shutdown(shutdownCtx); err != nil {
			slog.Error("HTTP server shutdown error", "error", err)
		}

		if err := readerServer.Close(); err != nil {
			slog.Error("Server cleanup error", "error", err)
		}

		slog.Info("Graceful shutdown completed")
		return nil
	},
}

func init() {
	rootCmd.AddCommand(serveCmd)
	serveCmd.Flags().StringP("host", "H", "localhost", "server host")
	serveCmd.Flags().IntP("port", "p", 8080, "server port")
	serveCmd.Flags().StringP("library", "l", "", "directory containing the book library")
	serveCmd.Flags().Int("shutdown-timeout", 10, "shutdown timeout in seconds")
	serveCmd.Flags().Bool("rate-limit-enabled", false, "enable rate limiting")
	serveCmd.Flags().Int("requests-per-minute", 60, "maximum requests per minute per client")
	serveCmd.Flags().Int("max-open-sessions", 8, "maximum open sessions per user")
}
