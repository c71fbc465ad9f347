package server

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"net/http"
	"strconv"
	"time"

	"github.com/prometheus/client_golang/prometheus/promhttp"

	"github.com/liviaellen/audio-sentiment-profiling/internal/config"
	"github.com/liviaellen/audio-sentiment-profiling/internal/ingest"
	"github.com/liviaellen/audio-sentiment-profiling/internal/metrics"
)

const (
	// ServiceName identifies the service in health and log output.
	ServiceName = "audio-sentiment-profiling"
	// ServiceVersion is reported by the health endpoint.
	ServiceVersion = "1.0.0"
)

// HTTPServer exposes the ingestion endpoint and the monitoring API.
type HTTPServer struct {
	server    *http.Server
	logger    *slog.Logger
	config    *config.Config
	pipeline  *ingest.Pipeline
	metrics   *metrics.Metrics
	startTime time.Time
}

// NewHTTPServer creates the HTTP front end.
func NewHTTPServer(cfg *config.Config, logger *slog.Logger,
	pipeline *ingest.Pipeline, m *metrics.Metrics) *HTTPServer {

	h := &HTTPServer{
		logger:    logger,
		config:    cfg,
		pipeline:  pipeline,
		metrics:   m,
		startTime: time.Now(),
	}

	mux := http.NewServeMux()
	h.setupRoutes(mux)

	h.server = &http.Server{
		Addr:         fmt.Sprintf("%s:%d", cfg.Server.Address, cfg.Server.Port),
		Handler:      mux,
		ReadTimeout:  cfg.Server.GetReadTimeout(),
		WriteTimeout: cfg.Server.GetWriteTimeout(),
		IdleTimeout:  60 * time.Second,
	}

	return h
}

// setupRoutes configures HTTP API routes
func (h *HTTPServer) setupRoutes(mux *http.ServeMux) {
	// Audio ingestion endpoint
	mux.HandleFunc("/audio", h.withMetrics("/audio", h.handleAudio))

	// Health check endpoint
	mux.HandleFunc("/health", h.withMetrics("/health", h.handleHealth))

	// Configuration endpoint
	mux.HandleFunc("/config", h.withMetrics("/config", h.handleConfig))

	// Statistics endpoint
	mux.HandleFunc("/stats", h.withMetrics("/stats", h.handleStats))

	// Prometheus metrics endpoint (no metrics needed for metrics endpoint)
	mux.Handle("/metrics", promhttp.HandlerFor(h.metrics.Registry(), promhttp.HandlerOpts{}))

	// Root endpoint with API documentation
	mux.HandleFunc("/", h.withMetrics("/", h.handleRoot))
}

// withMetrics wraps an HTTP handler with metrics collection
func (h *HTTPServer) withMetrics(endpoint string, handler http.HandlerFunc) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		startTime := time.Now()

		// Capture the status code written by the handler.
		ww := &responseWriter{ResponseWriter: w, statusCode: 200}

		handler(ww, r)

		duration := time.Since(startTime).Seconds()
		statusCode := strconv.Itoa(ww.statusCode)

		h.metrics.RecordHTTPRequest(r.Method, endpoint, statusCode, duration)

		if ww.statusCode >= 400 {
			errorType := "client_error"
			if ww.statusCode >= 500 {
				errorType = "server_error"
			}
			h.metrics.RecordHTTPError(r.Method, endpoint, errorType)
		}
	}
}

// responseWriter wraps http.ResponseWriter to capture status code
type responseWriter struct {
	http.ResponseWriter
	statusCode int
}

func (rw *responseWriter) WriteHeader(code int) {
	rw.statusCode = code
	rw.ResponseWriter.WriteHeader(code)
}

// Start starts the HTTP server
func (h *HTTPServer) Start() error {
	h.logger.Info("Starting HTTP server",
		slog.String("address", h.server.Addr),
	)

	go func() {
		if err := h.server.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			h.logger.Error("HTTP server error", slog.String("error", err.Error()))
		}
	}()

	return nil
}

// Stop gracefully stops the HTTP server
func (h *HTTPServer) Stop(ctx context.Context) error {
	h.logger.Info("Stopping HTTP server...")

	return h.server.Shutdown(ctx)
}

// Handler exposes the route mux, mainly for tests.
func (h *HTTPServer) Handler() http.Handler {
	return h.server.Handler
}

// handleAudio implements the POST /audio ingestion endpoint.
//
// Query parameters: sample_rate (required positive integer), uid
// (required), analyze_emotion and save_to_storage (optional booleans,
// both default true). The request body is the raw PCM payload.
func (h *HTTPServer) handleAudio(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodPost {
		writeError(w, http.StatusMethodNotAllowed, "Method not allowed")
		return
	}

	q := r.URL.Query()

	sampleRate, err := strconv.Atoi(q.Get("sample_rate"))
	if err != nil {
		writeError(w, http.StatusBadRequest, "sample_rate must be an integer")
		return
	}

	if sampleRate < h.config.Audio.MinSampleRate || sampleRate > h.config.Audio.MaxSampleRate {
		writeError(w, http.StatusBadRequest, fmt.Sprintf("sample_rate must be between %d and %d",
			h.config.Audio.MinSampleRate, h.config.Audio.MaxSampleRate))
		return
	}

	uid := q.Get("uid")

	analyzeEmotion, err := boolParam(q.Get("analyze_emotion"), true)
	if err != nil {
		writeError(w, http.StatusBadRequest, "analyze_emotion must be a boolean")
		return
	}

	saveToStorage, err := boolParam(q.Get("save_to_storage"), true)
	if err != nil {
		writeError(w, http.StatusBadRequest, "save_to_storage must be a boolean")
		return
	}

	body, err := io.ReadAll(http.MaxBytesReader(w, r.Body, h.config.Server.MaxBodyBytes))
	if err != nil {
		var maxErr *http.MaxBytesError
		if errors.As(err, &maxErr) {
			writeError(w, http.StatusRequestEntityTooLarge,
				fmt.Sprintf("payload exceeds %d bytes", maxErr.Limit))
			return
		}
		writeError(w, http.StatusBadRequest, "failed to read request body")
		return
	}

	result, err := h.pipeline.Process(r.Context(), ingest.Request{
		UID:            uid,
		SampleRate:     sampleRate,
		Payload:        body,
		AnalyzeEmotion: analyzeEmotion,
		SaveToStorage:  saveToStorage,
	})
	if err != nil {
		if ingest.IsValidationError(err) {
			writeError(w, http.StatusBadRequest, err.Error())
			return
		}

		// Internal faults are logged in full but never leaked.
		h.logger.Error("Ingestion failed",
			slog.String("uid", uid),
			slog.String("error", err.Error()),
		)
		writeError(w, http.StatusInternalServerError, "Internal server error")
		return
	}

	writeJSON(w, http.StatusOK, result)
}

// handleHealth implements the /health endpoint
func (h *HTTPServer) handleHealth(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodGet {
		writeError(w, http.StatusMethodNotAllowed, "Method not allowed")
		return
	}

	health := map[string]any{
		"status":    "healthy",
		"timestamp": time.Now().UTC(),
		"uptime":    time.Since(h.startTime).String(),
		"service": map[string]any{
			"name":    ServiceName,
			"version": ServiceVersion,
		},
	}

	writeJSON(w, http.StatusOK, health)
}

// handleConfig implements the /config endpoint
func (h *HTTPServer) handleConfig(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodGet {
		writeError(w, http.StatusMethodNotAllowed, "Method not allowed")
		return
	}

	// Sanitized configuration: credentials are intentionally omitted.
	sanitized := map[string]any{
		"server": map[string]any{
			"address":        h.config.Server.Address,
			"port":           h.config.Server.Port,
			"read_timeout":   h.config.Server.ReadTimeout,
			"write_timeout":  h.config.Server.WriteTimeout,
			"max_body_bytes": h.config.Server.MaxBodyBytes,
		},
		"audio": map[string]any{
			"min_sample_rate": h.config.Audio.MinSampleRate,
			"max_sample_rate": h.config.Audio.MaxSampleRate,
			"scratch_dir":     h.config.Audio.ScratchDir,
		},
		"analysis": map[string]any{
			"endpoint": h.config.Analysis.Endpoint,
			"timeout":  h.config.Analysis.Timeout,
		},
		"archive": map[string]any{
			"bucket":  h.config.Archive.Bucket,
			"prefix":  h.config.Archive.Prefix,
			"region":  h.config.Archive.Region,
			"timeout": h.config.Archive.Timeout,
		},
		"logging": map[string]any{
			"level":  h.config.Logging.Level,
			"format": h.config.Logging.Format,
			"output": h.config.Logging.Output,
		},
	}

	writeJSON(w, http.StatusOK, sanitized)
}

// handleStats implements the /stats endpoint
func (h *HTTPServer) handleStats(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodGet {
		writeError(w, http.StatusMethodNotAllowed, "Method not allowed")
		return
	}

	stats := map[string]any{
		"uptime":    time.Since(h.startTime).String(),
		"timestamp": time.Now().UTC(),
		"pipeline":  h.pipeline.Stats(),
	}

	writeJSON(w, http.StatusOK, stats)
}

// handleRoot implements the / endpoint with API documentation
func (h *HTTPServer) handleRoot(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodGet {
		writeError(w, http.StatusMethodNotAllowed, "Method not allowed")
		return
	}

	if r.URL.Path != "/" {
		http.NotFound(w, r)
		return
	}

	apiDoc := map[string]any{
		"service": "Audio Sentiment Profiling Service",
		"version": ServiceVersion,
		"endpoints": map[string]any{
			"POST /audio":  "Ingest raw PCM audio (query: sample_rate, uid, analyze_emotion, save_to_storage)",
			"GET /health":  "Service health check",
			"GET /config":  "Get service configuration",
			"GET /stats":   "Get service statistics",
			"GET /metrics": "Prometheus metrics",
			"GET /":        "API documentation",
		},
		"timestamp": time.Now().UTC(),
	}

	writeJSON(w, http.StatusOK, apiDoc)
}

// boolParam parses an optional boolean query parameter.
func boolParam(value string, defaultValue bool) (bool, error) {
	if value == "" {
		return defaultValue, nil
	}
	return strconv.ParseBool(value)
}

func writeJSON(w http.ResponseWriter, status int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	json.NewEncoder(w).Encode(v)
}

func writeError(w http.ResponseWriter, status int, message string) {
	writeJSON(w, status, map[string]string{"error": message})
}
