package server

import (
	"bytes"
	"context"
	"encoding/json"
	"io"
	"log/slog"
	"net/http"
	"net/http/httptest"
	"os"
	"strings"
	"testing"

	"github.com/liviaellen/audio-sentiment-profiling/internal/archive"
	"github.com/liviaellen/audio-sentiment-profiling/internal/config"
	"github.com/liviaellen/audio-sentiment-profiling/internal/emotion"
	"github.com/liviaellen/audio-sentiment-profiling/internal/ingest"
	"github.com/liviaellen/audio-sentiment-profiling/internal/metrics"
	"github.com/liviaellen/audio-sentiment-profiling/internal/scratch"
)

func testLogger() *slog.Logger {
	return slog.New(slog.NewTextHandler(io.Discard, nil))
}

func testConfig() *config.Config {
	return &config.Config{
		Server: config.ServerConfig{
			Address:      "127.0.0.1",
			Port:         8080,
			ReadTimeout:  10,
			WriteTimeout: 10,
			MaxBodyBytes: 1 << 20,
		},
		Audio: config.AudioConfig{
			MinSampleRate: 8000,
			MaxSampleRate: 48000,
		},
		Analysis: config.AnalysisConfig{
			Endpoint: "wss://inference.example.com/v0/stream/models",
			APIKey:   "secret-key",
			Timeout:  10,
		},
		Archive: config.ArchiveConfig{
			Bucket:    "recordings",
			Region:    "us-east-1",
			AccessKey: "AKIATEST",
			SecretKey: "super-secret",
			Timeout:   10,
		},
		Logging: config.LoggingConfig{
			Level:  "info",
			Format: "json",
			Output: "stdout",
		},
	}
}

type stubAnalyzer struct {
	outcome  emotion.Outcome
	calls    int
	lastPath string
}

func (s *stubAnalyzer) Analyze(_ context.Context, path string) emotion.Outcome {
	s.calls++
	s.lastPath = path
	return s.outcome
}

type stubArchiver struct {
	outcome archive.Outcome
	calls   int
}

func (s *stubArchiver) Store(_ context.Context, _, _ string) archive.Outcome {
	s.calls++
	return s.outcome
}

func floatPtr(v float64) *float64 { return &v }

func analyzedOutcome() emotion.Outcome {
	return emotion.Analyzed([]emotion.PredictionWindow{
		{
			Time:     emotion.TimeSpan{Begin: floatPtr(0), End: floatPtr(0.5)},
			Emotions: []emotion.EmotionScore{{Name: "Joy", Score: 0.9}},
		},
		{
			Time:     emotion.TimeSpan{Begin: floatPtr(0.5), End: floatPtr(1)},
			Emotions: []emotion.EmotionScore{{Name: "Sadness", Score: 0.1}},
		},
	})
}

func newTestServer(t *testing.T, analyzer ingest.Analyzer, archiver ingest.Archiver) *HTTPServer {
	t.Helper()

	store, err := scratch.NewStore(t.TempDir())
	if err != nil {
		t.Fatalf("NewStore failed: %v", err)
	}

	m := metrics.NewMetrics()
	pipeline := ingest.NewPipeline(analyzer, archiver, store, testLogger(), m)
	return NewHTTPServer(testConfig(), testLogger(), pipeline, m)
}

func postAudio(t *testing.T, h *HTTPServer, query string, body []byte) *httptest.ResponseRecorder {
	t.Helper()
	req := httptest.NewRequest(http.MethodPost, "/audio?"+query, bytes.NewReader(body))
	rec := httptest.NewRecorder()
	h.Handler().ServeHTTP(rec, req)
	return rec
}

func TestAudioEndpointSuccess(t *testing.T) {
	analyzer := &stubAnalyzer{outcome: analyzedOutcome()}
	archiver := &stubArchiver{outcome: archive.Stored("s3://recordings/user1_x.wav")}
	h := newTestServer(t, analyzer, archiver)

	payload := make([]byte, 16000)
	rec := postAudio(t, h, "sample_rate=16000&uid=user1", payload)

	if rec.Code != http.StatusOK {
		t.Fatalf("Expected 200, got %d: %s", rec.Code, rec.Body.String())
	}

	var result struct {
		Message       string `json:"message"`
		Filename      string `json:"filename"`
		UID           string `json:"uid"`
		SampleRate    int    `json:"sample_rate"`
		DataSizeBytes int    `json:"data_size_bytes"`
		Timestamp     string `json:"timestamp"`
		Analysis      *struct {
			Success     bool `json:"success"`
			Predictions []struct {
				Emotions []struct {
					Name  string  `json:"name"`
					Score float64 `json:"score"`
				} `json:"emotions"`
			} `json:"predictions"`
		} `json:"emotion_analysis"`
		Storage *struct {
			Stored  bool   `json:"stored"`
			Locator string `json:"locator"`
		} `json:"storage"`
	}
	if err := json.Unmarshal(rec.Body.Bytes(), &result); err != nil {
		t.Fatalf("Failed to decode response: %v", err)
	}

	if result.Message != "Audio processed successfully" {
		t.Errorf("Unexpected message: %q", result.Message)
	}
	if result.UID != "user1" || result.SampleRate != 16000 || result.DataSizeBytes != 16000 {
		t.Errorf("Metadata mismatch: %+v", result)
	}
	if !strings.HasPrefix(result.Filename, "user1_") {
		t.Errorf("Unexpected filename: %s", result.Filename)
	}

	if result.Analysis == nil || !result.Analysis.Success {
		t.Fatal("Expected successful analysis outcome in response")
	}
	if len(result.Analysis.Predictions) != 2 ||
		result.Analysis.Predictions[0].Emotions[0].Name != "Joy" ||
		result.Analysis.Predictions[1].Emotions[0].Name != "Sadness" {
		t.Errorf("Prediction order not preserved in response: %+v", result.Analysis.Predictions)
	}

	if result.Storage == nil || !result.Storage.Stored || result.Storage.Locator == "" {
		t.Fatal("Expected stored archive outcome with locator")
	}

	// Scratch artifact must be gone once the response is written.
	if _, err := os.Stat(analyzer.lastPath); !os.IsNotExist(err) {
		t.Errorf("Scratch artifact still exists: %s", analyzer.lastPath)
	}
}

func TestAudioEndpointEmptyBody(t *testing.T) {
	analyzer := &stubAnalyzer{outcome: analyzedOutcome()}
	archiver := &stubArchiver{outcome: archive.Stored("s3://x/y")}
	h := newTestServer(t, analyzer, archiver)

	rec := postAudio(t, h, "sample_rate=16000&uid=user1", nil)

	if rec.Code != http.StatusBadRequest {
		t.Fatalf("Expected 400, got %d", rec.Code)
	}

	var body map[string]string
	if err := json.Unmarshal(rec.Body.Bytes(), &body); err != nil {
		t.Fatalf("Failed to decode error body: %v", err)
	}
	if body["error"] == "" {
		t.Error("Expected explanatory error message")
	}

	if analyzer.calls != 0 || archiver.calls != 0 {
		t.Error("Downstream calls must not run for an empty payload")
	}
}

func TestAudioEndpointParameterValidation(t *testing.T) {
	tests := []struct {
		name  string
		query string
	}{
		{"missing sample_rate", "uid=user1"},
		{"non-numeric sample_rate", "sample_rate=fast&uid=user1"},
		{"sample_rate out of bounds", "sample_rate=96000&uid=user1"},
		{"missing uid", "sample_rate=16000"},
		{"bad analyze_emotion", "sample_rate=16000&uid=u&analyze_emotion=maybe"},
		{"bad save_to_storage", "sample_rate=16000&uid=u&save_to_storage=2x"},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			h := newTestServer(t, &stubAnalyzer{outcome: analyzedOutcome()},
				&stubArchiver{outcome: archive.Stored("s3://x/y")})

			rec := postAudio(t, h, tt.query, []byte{1, 2, 3, 4})
			if rec.Code != http.StatusBadRequest {
				t.Errorf("Expected 400, got %d", rec.Code)
			}
		})
	}
}

func TestAudioEndpointTogglesOmitOutcomes(t *testing.T) {
	analyzer := &stubAnalyzer{outcome: analyzedOutcome()}
	archiver := &stubArchiver{outcome: archive.Stored("s3://x/y")}
	h := newTestServer(t, analyzer, archiver)

	rec := postAudio(t, h, "sample_rate=16000&uid=user1&analyze_emotion=false&save_to_storage=false",
		[]byte{1, 2, 3, 4})

	if rec.Code != http.StatusOK {
		t.Fatalf("Expected 200, got %d", rec.Code)
	}

	if analyzer.calls != 0 || archiver.calls != 0 {
		t.Error("Toggled-off stages must not run")
	}

	// The outcome keys must be absent, not null.
	var raw map[string]json.RawMessage
	if err := json.Unmarshal(rec.Body.Bytes(), &raw); err != nil {
		t.Fatalf("Failed to decode response: %v", err)
	}
	if _, ok := raw["emotion_analysis"]; ok {
		t.Error("emotion_analysis must be omitted when analysis is disabled")
	}
	if _, ok := raw["storage"]; ok {
		t.Error("storage must be omitted when archival is disabled")
	}
}

func TestAudioEndpointArchiveFaultIsolated(t *testing.T) {
	analyzer := &stubAnalyzer{outcome: analyzedOutcome()}
	archiver := &stubArchiver{outcome: archive.Skipped("upload rejected: AccessDenied")}
	h := newTestServer(t, analyzer, archiver)

	rec := postAudio(t, h, "sample_rate=16000&uid=user1", make([]byte, 16000))

	if rec.Code != http.StatusOK {
		t.Fatalf("Expected 200 despite archive fault, got %d", rec.Code)
	}

	var result struct {
		Analysis *emotion.Outcome `json:"emotion_analysis"`
		Storage  *archive.Outcome `json:"storage"`
	}
	if err := json.Unmarshal(rec.Body.Bytes(), &result); err != nil {
		t.Fatalf("Failed to decode response: %v", err)
	}

	if result.Storage == nil || result.Storage.Stored {
		t.Error("Expected skipped storage outcome")
	}
	if result.Storage != nil && result.Storage.Reason != "upload rejected: AccessDenied" {
		t.Errorf("Skip reason lost: %q", result.Storage.Reason)
	}

	if result.Analysis == nil || !result.Analysis.Success {
		t.Error("Analysis outcome must be unaffected by the archive fault")
	}
}

func TestAudioEndpointMethodNotAllowed(t *testing.T) {
	h := newTestServer(t, &stubAnalyzer{}, &stubArchiver{})

	req := httptest.NewRequest(http.MethodGet, "/audio?sample_rate=16000&uid=u", nil)
	rec := httptest.NewRecorder()
	h.Handler().ServeHTTP(rec, req)

	if rec.Code != http.StatusMethodNotAllowed {
		t.Errorf("Expected 405, got %d", rec.Code)
	}
}

func TestHealthEndpoint(t *testing.T) {
	h := newTestServer(t, &stubAnalyzer{}, &stubArchiver{})

	req := httptest.NewRequest(http.MethodGet, "/health", nil)
	rec := httptest.NewRecorder()
	h.Handler().ServeHTTP(rec, req)

	if rec.Code != http.StatusOK {
		t.Fatalf("Expected 200, got %d", rec.Code)
	}

	var health struct {
		Status  string `json:"status"`
		Service struct {
			Name string `json:"name"`
		} `json:"service"`
	}
	if err := json.Unmarshal(rec.Body.Bytes(), &health); err != nil {
		t.Fatalf("Failed to decode health response: %v", err)
	}

	if health.Status != "healthy" {
		t.Errorf("Expected healthy status, got %q", health.Status)
	}
	if health.Service.Name != ServiceName {
		t.Errorf("Expected service name %q, got %q", ServiceName, health.Service.Name)
	}
}

func TestConfigEndpointOmitsSecrets(t *testing.T) {
	h := newTestServer(t, &stubAnalyzer{}, &stubArchiver{})

	req := httptest.NewRequest(http.MethodGet, "/config", nil)
	rec := httptest.NewRecorder()
	h.Handler().ServeHTTP(rec, req)

	if rec.Code != http.StatusOK {
		t.Fatalf("Expected 200, got %d", rec.Code)
	}

	body := rec.Body.String()
	for _, secret := range []string{"secret-key", "super-secret", "AKIATEST", "api_key", "access_key", "secret_key"} {
		if strings.Contains(body, secret) {
			t.Errorf("Config response leaks %q", secret)
		}
	}
}

func TestStatsEndpoint(t *testing.T) {
	analyzer := &stubAnalyzer{outcome: analyzedOutcome()}
	archiver := &stubArchiver{outcome: archive.Stored("s3://x/y")}
	h := newTestServer(t, analyzer, archiver)

	postAudio(t, h, "sample_rate=16000&uid=user1", make([]byte, 128))

	req := httptest.NewRequest(http.MethodGet, "/stats", nil)
	rec := httptest.NewRecorder()
	h.Handler().ServeHTTP(rec, req)

	if rec.Code != http.StatusOK {
		t.Fatalf("Expected 200, got %d", rec.Code)
	}

	var stats struct {
		Pipeline ingest.Stats `json:"pipeline"`
	}
	if err := json.Unmarshal(rec.Body.Bytes(), &stats); err != nil {
		t.Fatalf("Failed to decode stats: %v", err)
	}

	if stats.Pipeline.RequestsProcessed != 1 {
		t.Errorf("Expected 1 processed request, got %d", stats.Pipeline.RequestsProcessed)
	}
	if stats.Pipeline.BytesIngested != 128 {
		t.Errorf("Expected 128 bytes ingested, got %d", stats.Pipeline.BytesIngested)
	}
}

func TestRootEndpoint(t *testing.T) {
	h := newTestServer(t, &stubAnalyzer{}, &stubArchiver{})

	req := httptest.NewRequest(http.MethodGet, "/", nil)
	rec := httptest.NewRecorder()
	h.Handler().ServeHTTP(rec, req)

	if rec.Code != http.StatusOK {
		t.Fatalf("Expected 200, got %d", rec.Code)
	}

	if !strings.Contains(rec.Body.String(), "POST /audio") {
		t.Error("Expected API documentation in root response")
	}
}

func TestMetricsEndpoint(t *testing.T) {
	h := newTestServer(t, &stubAnalyzer{}, &stubArchiver{})

	req := httptest.NewRequest(http.MethodGet, "/metrics", nil)
	rec := httptest.NewRecorder()
	h.Handler().ServeHTTP(rec, req)

	if rec.Code != http.StatusOK {
		t.Fatalf("Expected 200, got %d", rec.Code)
	}
}
