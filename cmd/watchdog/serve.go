package main

import (
	"context"
	"errors"
	"log/slog"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/spf13/cobra"

	"github.com/docutag/watchdog/api"
	"github.com/docutag/watchdog/tracing"
)

func init() {
	cmd := &cobra.Command{
		Use:   "serve",
		Short: "Run the HTTP API",
		Long: "Serve scans, scan history, settings and the remote classifier endpoint. " +
			"Settings are stored in the database.",
		Args: cobra.NoArgs,
		Run:  runServe,
	}

	cmd.Flags().String("port", "", "Server port (default: $PORT or 8080)")
	cmd.Flags().Bool("disable-cors", false, "Disable CORS")

	rootCmd.AddCommand(cmd)
}

func runServe(cmd *cobra.Command, args []string) {
	logger := slog.Default()
	logger.Info("watchdog service initializing", "version", "1.0.0")

	cfg := loadConfig()
	if port, _ := cmd.Flags().GetString("port"); port != "" {
		cfg.ListenAddr = ":" + port
	}
	if disable, _ := cmd.Flags().GetBool("disable-cors"); disable {
		cfg.CORSEnabled = false
	}

	// Initialize tracing
	tp, err := tracing.InitTracer(cmd.Context(), cfg.ServiceName)
	if err != nil {
		logger.Warn("failed to initialize tracer, continuing without tracing", "error", err)
	} else {
		defer func() {
			if err := tp.Shutdown(context.Background()); err != nil {
				logger.Error("error shutting down tracer", "error", err)
			}
		}()
		logger.Info("tracing initialized successfully")
	}

	server, err := api.NewServer(api.Config{
		Addr:           cfg.ListenAddr,
		DBConfig:       cfg.DB,
		AnalyzerConfig: analyzerConfig(cfg),
		StoragePath:    cfg.StoragePath,
		S3:             cfg.S3,
		CORSEnabled:    cfg.CORSEnabled,
	})
	if err != nil {
		exitErr("create server", err)
	}

	// Initialize database metrics
	metricsCtx, stopMetrics := context.WithCancel(context.Background())
	defer stopMetrics()
	go func() {
		ticker := time.NewTicker(15 * time.Second)
		defer ticker.Stop()
		for {
			select {
			case <-metricsCtx.Done():
				return
			case <-ticker.C:
				server.UpdateDBMetrics()
			}
		}
	}()
	logger.Info("database metrics initialized")

	// Start server in a goroutine
	errCh := make(chan error, 1)
	go func() {
		logger.Info("watchdog service starting",
			"addr", cfg.ListenAddr,
			"database_driver", cfg.DB.Driver,
			"storage_path", cfg.StoragePath,
			"s3", cfg.S3 != nil,
		)
		if err := server.Start(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			errCh <- err
		}
	}()

	// Wait for interrupt signal
	quit := make(chan os.Signal, 1)
	signal.Notify(quit, syscall.SIGINT, syscall.SIGTERM)
	select {
	case <-quit:
	case err := <-errCh:
		logger.Error("server error", "error", err)
		os.Exit(1)
	}

	// Graceful shutdown
	logger.Info("shutting down gracefully")
	ctx, cancel := context.WithTimeout(context.Background(), 30*time.Second)
	defer cancel()

	if err := server.Shutdown(ctx); err != nil {
		logger.Error("server shutdown error", "error", err)
		os.Exit(1)
	}

	logger.Info("server stopped")
}
