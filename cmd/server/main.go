package main

import (
	"context"
	"flag"
	"fmt"
	"log/slog"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/aws/aws-sdk-go-v2/aws"
	"github.com/aws/aws-sdk-go-v2/service/s3"

	"github.com/liviaellen/audio-sentiment-profiling/internal/archive"
	"github.com/liviaellen/audio-sentiment-profiling/internal/config"
	"github.com/liviaellen/audio-sentiment-profiling/internal/emotion"
	"github.com/liviaellen/audio-sentiment-profiling/internal/ingest"
	"github.com/liviaellen/audio-sentiment-profiling/internal/metrics"
	"github.com/liviaellen/audio-sentiment-profiling/internal/scratch"
	"github.com/liviaellen/audio-sentiment-profiling/internal/server"
)

const defaultConfigPath = "configs/config.yaml"

func main() {
	// Parse command line flags
	configPath := flag.String("config", defaultConfigPath, "Path to configuration file")
	flag.Parse()

	// Load configuration
	cfg, err := config.Load(*configPath)
	if err != nil {
		fmt.Fprintf(os.Stderr, "Failed to load configuration: %v\n", err)
		os.Exit(1)
	}

	// Initialize logger based on configuration
	logger := initLogger(cfg.Logging)

	logger.Info("Service starting",
		slog.String("service", server.ServiceName),
		slog.String("version", server.ServiceVersion),
		slog.String("config_path", *configPath),
	)

	// Log configuration summary (without sensitive data)
	logger.Info("Configuration loaded",
		slog.String("bind_address", cfg.Server.Address),
		slog.Int("port", cfg.Server.Port),
		slog.Int64("max_body_bytes", cfg.Server.MaxBodyBytes),
		slog.String("analysis_endpoint", cfg.Analysis.Endpoint),
		slog.Bool("analysis_key_set", cfg.Analysis.APIKey != ""),
		slog.String("archive_bucket", cfg.Archive.Bucket),
		slog.String("scratch_dir", cfg.Audio.ScratchDir),
		slog.String("log_level", cfg.Logging.Level),
	)

	// Initialize Prometheus metrics
	appMetrics := metrics.NewMetrics()
	logger.Info("Prometheus metrics initialized")

	// Initialize scratch store for per-request artifacts
	scratchStore, err := scratch.NewStore(cfg.Audio.ScratchDir)
	if err != nil {
		logger.Error("Failed to create scratch store", slog.String("error", err.Error()))
		os.Exit(1)
	}

	// Initialize emotion analysis client
	analyzer, err := emotion.NewClient(emotion.Config{
		Endpoint: cfg.Analysis.Endpoint,
		APIKey:   cfg.Analysis.APIKey,
		Timeout:  cfg.Analysis.GetTimeoutDuration(),
	}, logger)
	if err != nil {
		logger.Error("Failed to create analysis client", slog.String("error", err.Error()))
		os.Exit(1)
	}

	// Initialize archive uploader; an unset bucket disables archival.
	uploader := archive.NewUploader(newS3Client(&cfg.Archive), archive.Config{
		Bucket:  cfg.Archive.Bucket,
		Prefix:  cfg.Archive.Prefix,
		Timeout: cfg.Archive.GetTimeoutDuration(),
	}, logger)
	if cfg.Archive.Bucket == "" {
		logger.Warn("Archive bucket not configured, uploads will be skipped")
	}

	// Wire the ingestion pipeline
	pipeline := ingest.NewPipeline(analyzer, uploader, scratchStore, logger, appMetrics)

	// Initialize and start the HTTP server
	httpServer := server.NewHTTPServer(cfg, logger, pipeline, appMetrics)
	if err := httpServer.Start(); err != nil {
		logger.Error("Failed to start HTTP server", slog.String("error", err.Error()))
		os.Exit(1)
	}

	// Setup signal handling for graceful shutdown
	sigChan := make(chan os.Signal, 1)
	signal.Notify(sigChan, os.Interrupt, syscall.SIGTERM)

	logger.Info("Service started successfully, waiting for signals...",
		slog.String("address", fmt.Sprintf("%s:%d", cfg.Server.Address, cfg.Server.Port)),
	)

	sig := <-sigChan
	logger.Info("Received shutdown signal", slog.String("signal", sig.String()))

	logger.Info("Starting graceful shutdown...")

	shutdownCtx, shutdownCancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer shutdownCancel()

	if err := httpServer.Stop(shutdownCtx); err != nil {
		logger.Error("Error stopping HTTP server", slog.String("error", err.Error()))
	}

	// Get final statistics
	stats := pipeline.Stats()
	logger.Info("Final pipeline statistics",
		slog.Uint64("requests_processed", stats.RequestsProcessed),
		slog.Uint64("requests_rejected", stats.RequestsRejected),
		slog.Uint64("bytes_ingested", stats.BytesIngested),
		slog.Uint64("analysis_runs", stats.AnalysisRuns),
		slog.Uint64("archive_runs", stats.ArchiveRuns),
	)

	logger.Info("Service stopped")
}

// newS3Client builds the object-store client from static configuration.
// Returns nil when no bucket is configured; the uploader then skips.
func newS3Client(cfg *config.ArchiveConfig) archive.S3Client {
	if cfg.Bucket == "" {
		return nil
	}

	accessKey, secretKey := cfg.AccessKey, cfg.SecretKey
	opts := s3.Options{
		Region: cfg.Region,
		Credentials: aws.CredentialsProviderFunc(func(context.Context) (aws.Credentials, error) {
			return aws.Credentials{
				AccessKeyID:     accessKey,
				SecretAccessKey: secretKey,
				Source:          "service configuration",
			}, nil
		}),
	}

	if opts.Region == "" {
		opts.Region = "us-east-1"
	}

	// S3-compatible stores (MinIO, R2) need a custom endpoint and
	// path-style addressing.
	if cfg.Endpoint != "" {
		opts.BaseEndpoint = aws.String(cfg.Endpoint)
		opts.UsePathStyle = true
	}

	return s3.New(opts)
}

// initLogger creates and configures the structured logger based on configuration
func initLogger(cfg config.LoggingConfig) *slog.Logger {
	var level slog.Level
	switch cfg.Level {
	case "debug":
		level = slog.LevelDebug
	case "info":
		level = slog.LevelInfo
	case "warn":
		level = slog.LevelWarn
	case "error":
		level = slog.LevelError
	default:
		level = slog.LevelInfo // default fallback
	}

	opts := &slog.HandlerOptions{
		Level:     level,
		AddSource: level == slog.LevelDebug, // Add source info for debug level
	}

	// Determine output destination
	var output *os.File
	switch cfg.Output {
	case "stderr":
		output = os.Stderr
	case "stdout", "":
		output = os.Stdout
	default:
		// Assume it's a file path
		file, err := os.OpenFile(cfg.Output, os.O_CREATE|os.O_WRONLY|os.O_APPEND, 0644)
		if err != nil {
			fmt.Fprintf(os.Stderr, "Failed to open log file %s: %v, falling back to stdout\n", cfg.Output, err)
			output = os.Stdout
		} else {
			output = file
		}
	}

	// Create handler based on format
	var handler slog.Handler
	switch cfg.Format {
	case "json":
		handler = slog.NewJSONHandler(output, opts)
	case "text", "":
		handler = slog.NewTextHandler(output, opts)
	default:
		handler = slog.NewTextHandler(output, opts)
	}

	return slog.New(handler)
}
