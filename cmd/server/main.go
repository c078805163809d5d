package main

import (
	"context"
	"flag"
	"fmt"
	"net/http"
	"os"
	"os/signal"
	"path/filepath"
	"syscall"
	"time"

	"github.com/me/tessera/internal/batch"
	"github.com/me/tessera/internal/config"
	"github.com/me/tessera/internal/logging"
	"github.com/me/tessera/internal/orchestrator"
	"github.com/me/tessera/internal/server"
	"github.com/me/tessera/internal/store"
	"github.com/me/tessera/internal/upload"
)

func main() {
	cfg := config.DefaultServerConfig()

	flag.StringVar(&cfg.Addr, "addr", cfg.Addr, "Listen address")
	flag.StringVar(&cfg.LogLevel, "log-level", cfg.LogLevel, "Log level (debug, info, warn, error)")
	flag.StringVar(&cfg.LogFormat, "log-format", cfg.LogFormat, "Log format (text, json)")
	flag.StringVar(&cfg.DBPath, "db", cfg.DBPath, "Database path (default ~/.tessera/tessera.db)")
	flag.StringVar(&cfg.BackendURL, "backend", cfg.BackendURL, "Batch-execution service URL")
	flag.StringVar(&cfg.BackendToken, "backend-token", cfg.BackendToken, "Batch-execution auth token (or TESSERA_BACKEND_TOKEN env)")
	flag.DurationVar(&cfg.PollInterval, "poll-interval", cfg.PollInterval, "Status reconciliation interval")
	flag.DurationVar(&cfg.PollTimeout, "poll-timeout", cfg.PollTimeout, "Bound on a single status fetch")
	flag.StringVar(&cfg.UploadBucket, "upload-bucket", cfg.UploadBucket, "S3 bucket for acquisition staging (empty disables)")
	debug := flag.Bool("debug", false, "Shorthand for --log-level=debug")

	flag.Parse()

	if *debug {
		cfg.LogLevel = "debug"
	}
	if cfg.BackendToken == "" {
		cfg.BackendToken = os.Getenv("TESSERA_BACKEND_TOKEN")
	}
	if cfg.BackendURL == "" {
		fmt.Fprintln(os.Stderr, "a batch-execution service URL is required (--backend)")
		os.Exit(1)
	}

	logger := logging.New(logging.ParseLevel(cfg.LogLevel), cfg.LogFormat)

	// Resolve database path.
	dbPath := cfg.DBPath
	if dbPath == "" {
		home, err := os.UserHomeDir()
		if err != nil {
			fmt.Fprintf(os.Stderr, "cannot determine home directory: %v\n", err)
			os.Exit(1)
		}
		dir := filepath.Join(home, ".tessera")
		if err := os.MkdirAll(dir, 0o755); err != nil {
			fmt.Fprintf(os.Stderr, "cannot create %s: %v\n", dir, err)
			os.Exit(1)
		}
		dbPath = filepath.Join(dir, "tessera.db")
	}

	// Open store and run migrations.
	st, err := store.NewSQLiteStore(dbPath, logger)
	if err != nil {
		fmt.Fprintf(os.Stderr, "open database: %v\n", err)
		os.Exit(1)
	}
	defer st.Close()

	if err := st.Migrate(context.Background()); err != nil {
		fmt.Fprintf(os.Stderr, "migrate database: %v\n", err)
		os.Exit(1)
	}
	logger.Info("database ready", "path", dbPath)

	// Batch-execution backend.
	caller := batch.NewHTTPRPCCaller(batch.ClientConfig{
		URL:     cfg.BackendURL,
		Token:   cfg.BackendToken,
		Timeout: cfg.PollTimeout,
	}, logger)
	backend := batch.NewService(caller, logger)

	// Workflow manager; pick up persisted workflows from previous runs.
	mgr := orchestrator.NewManager(backend, st, orchestrator.PollerConfig{
		Interval: cfg.PollInterval,
		Timeout:  cfg.PollTimeout,
	}, logger)
	if err := mgr.Restore(context.Background()); err != nil {
		fmt.Fprintf(os.Stderr, "restore workflows: %v\n", err)
		os.Exit(1)
	}

	var serverOpts []server.Option
	if cfg.UploadBucket != "" {
		stager, err := upload.NewS3Uploader(context.Background(), cfg.UploadBucket, "acquisitions", logger)
		if err != nil {
			fmt.Fprintf(os.Stderr, "configure upload stager: %v\n", err)
			os.Exit(1)
		}
		serverOpts = append(serverOpts, server.WithStager(stager))
		logger.Info("upload staging enabled", "bucket", cfg.UploadBucket)
	}

	srv := server.New(cfg, mgr, st, logger, serverOpts...)

	httpServer := &http.Server{
		Addr:    cfg.Addr,
		Handler: srv.Handler(),
	}

	// Graceful shutdown
	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	go func() {
		logger.Info("server starting", "addr", cfg.Addr, "backend", cfg.BackendURL)
		if err := httpServer.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			logger.Error("server failed", "error", err)
			os.Exit(1)
		}
	}()

	<-ctx.Done()
	logger.Info("shutting down")

	// Stop reconciliation before the HTTP server.
	mgr.Close()

	shutdownCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()

	if err := httpServer.Shutdown(shutdownCtx); err != nil {
		fmt.Fprintf(os.Stderr, "shutdown error: %v\n", err)
		os.Exit(1)
	}
	logger.Info("server stopped")
}
