package ingest

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"sync"
	"time"

	"github.com/liviaellen/audio-sentiment-profiling/internal/archive"
	"github.com/liviaellen/audio-sentiment-profiling/internal/audio"
	"github.com/liviaellen/audio-sentiment-profiling/internal/emotion"
	"github.com/liviaellen/audio-sentiment-profiling/internal/metrics"
	"github.com/liviaellen/audio-sentiment-profiling/internal/scratch"
)

// Validation errors surfaced to the HTTP layer as client errors.
// Everything else that goes wrong inside the pipeline either degrades
// into an outcome field or is an internal fault.
var (
	ErrEmptyPayload      = errors.New("no audio data received")
	ErrInvalidSampleRate = errors.New("sample rate must be a positive integer")
	ErrMissingUID        = errors.New("uid cannot be empty")
)

// Analyzer is the emotion analysis boundary.
type Analyzer interface {
	Analyze(ctx context.Context, path string) emotion.Outcome
}

// Archiver is the object-storage boundary.
type Archiver interface {
	Store(ctx context.Context, path, name string) archive.Outcome
}

// Request is one complete audio upload plus its metadata.
type Request struct {
	UID            string
	SampleRate     int
	Payload        []byte
	AnalyzeEmotion bool
	SaveToStorage  bool
}

// Result aggregates the ingestion response. Outcome fields are nil, and
// omitted from JSON, when the corresponding stage was toggled off.
type Result struct {
	Message       string           `json:"message"`
	Filename      string           `json:"filename"`
	UID           string           `json:"uid"`
	SampleRate    int              `json:"sample_rate"`
	DataSizeBytes int              `json:"data_size_bytes"`
	Timestamp     string           `json:"timestamp"`
	Analysis      *emotion.Outcome `json:"emotion_analysis,omitempty"`
	Archive       *archive.Outcome `json:"storage,omitempty"`
}

// Stats is a snapshot of pipeline counters.
type Stats struct {
	RequestsProcessed uint64  `json:"requests_processed"`
	RequestsRejected  uint64  `json:"requests_rejected"`
	BytesIngested     uint64  `json:"bytes_ingested"`
	AnalysisRuns      uint64  `json:"analysis_runs"`
	ArchiveRuns       uint64  `json:"archive_runs"`
	SuccessRate       float64 `json:"success_rate"`
}

// Pipeline runs one ingestion per call and is safe for concurrent use;
// all mutable per-request state lives on the stack.
type Pipeline struct {
	analyzer Analyzer
	archiver Archiver
	scratch  *scratch.Store
	logger   *slog.Logger
	metrics  *metrics.Metrics

	// Counters snapshotted under one lock.
	mu                sync.RWMutex
	requestsProcessed uint64
	requestsRejected  uint64
	bytesIngested     uint64
	analysisRuns      uint64
	archiveRuns       uint64
}

// NewPipeline wires the orchestrator with its collaborators.
func NewPipeline(analyzer Analyzer, archiver Archiver, store *scratch.Store,
	logger *slog.Logger, m *metrics.Metrics) *Pipeline {
	return &Pipeline{
		analyzer: analyzer,
		archiver: archiver,
		scratch:  store,
		logger:   logger,
		metrics:  m,
	}
}

// Process runs the five-stage ingestion pipeline for one upload.
//
// Only validation failures and internal faults return an error; analyzer
// and uploader failures are captured inside the result. The scratch
// artifact is removed before Process returns, on every path.
func (p *Pipeline) Process(ctx context.Context, req Request) (*Result, error) {
	p.metrics.RequestsReceived.Inc()

	// Stage 1: validate. The empty payload is the only input that aborts
	// before any resource exists; the parameter checks fail equally fast.
	if err := p.validate(req); err != nil {
		p.metrics.RequestsRejected.Inc()
		p.mu.Lock()
		p.requestsRejected++
		p.mu.Unlock()
		return nil, err
	}

	// Stage 2: name and frame.
	now := time.Now().UTC()
	timestamp := formatTimestamp(now)
	filename := fmt.Sprintf("%s_%s.wav", req.UID, timestamp)

	framed, err := audio.FrameWAV(req.SampleRate, req.Payload)
	if err != nil {
		return nil, fmt.Errorf("failed to frame audio: %w", err)
	}

	if d, derr := audio.Duration(framed); derr == nil {
		p.metrics.ArtifactDuration.Observe(d)
	}
	p.metrics.PayloadBytes.Observe(float64(len(req.Payload)))

	// Stage 3: acquire scratch storage; released on all exit paths below.
	handle, err := p.scratch.Acquire(framed)
	if err != nil {
		return nil, fmt.Errorf("failed to stage artifact: %w", err)
	}
	defer func() {
		// Best effort: the request already has its result, and a retry
		// would most likely fail the same way.
		if rerr := handle.Release(); rerr != nil {
			p.logger.Warn("Failed to release scratch artifact",
				slog.String("path", handle.Path()),
				slog.String("error", rerr.Error()),
			)
		}
	}()

	p.logger.Info("Artifact staged",
		slog.String("uid", req.UID),
		slog.String("filename", filename),
		slog.Int("payload_bytes", len(req.Payload)),
		slog.Int("sample_rate", req.SampleRate),
	)

	// Stage 4: fan out. The two calls share the artifact but nothing
	// else; each runs in its own goroutine and neither can cancel or
	// outlive the other's failure.
	var (
		wg              sync.WaitGroup
		analysisOutcome *emotion.Outcome
		archiveOutcome  *archive.Outcome
	)

	if req.AnalyzeEmotion {
		wg.Add(1)
		go func() {
			defer wg.Done()
			start := time.Now()
			outcome := p.analyzer.Analyze(ctx, handle.Path())
			p.metrics.AnalysisDuration.Observe(time.Since(start).Seconds())
			p.metrics.AnalysisRequests.Inc()
			if !outcome.Success {
				p.metrics.AnalysisUnavailable.Inc()
				p.logger.Warn("Emotion analysis unavailable",
					slog.String("uid", req.UID),
					slog.String("reason", outcome.Error),
				)
			} else {
				p.logger.Info("Emotion analysis complete",
					slog.String("uid", req.UID),
					slog.Int("predictions", outcome.TotalPredictions),
				)
			}
			analysisOutcome = &outcome
		}()
	}

	if req.SaveToStorage {
		wg.Add(1)
		go func() {
			defer wg.Done()
			start := time.Now()
			outcome := p.archiver.Store(ctx, handle.Path(), filename)
			p.metrics.ArchiveDuration.Observe(time.Since(start).Seconds())
			if outcome.Stored {
				p.metrics.ArchiveUploads.Inc()
				p.logger.Info("Artifact archived",
					slog.String("uid", req.UID),
					slog.String("locator", outcome.Locator),
				)
			} else {
				p.metrics.ArchiveSkips.Inc()
				p.logger.Warn("Artifact archival skipped",
					slog.String("uid", req.UID),
					slog.String("reason", outcome.Reason),
				)
			}
			archiveOutcome = &outcome
		}()
	}

	wg.Wait()

	// Stage 5: the deferred release runs after assembly; both downstream
	// calls have completed, so the artifact is no longer needed.
	p.metrics.RequestsProcessed.Inc()
	p.mu.Lock()
	p.requestsProcessed++
	p.bytesIngested += uint64(len(req.Payload))
	if req.AnalyzeEmotion {
		p.analysisRuns++
	}
	if req.SaveToStorage {
		p.archiveRuns++
	}
	p.mu.Unlock()

	return &Result{
		Message:       "Audio processed successfully",
		Filename:      filename,
		UID:           req.UID,
		SampleRate:    req.SampleRate,
		DataSizeBytes: len(req.Payload),
		Timestamp:     timestamp,
		Analysis:      analysisOutcome,
		Archive:       archiveOutcome,
	}, nil
}

// validate applies the fail-fast input checks.
func (p *Pipeline) validate(req Request) error {
	if len(req.Payload) == 0 {
		return ErrEmptyPayload
	}

	if req.SampleRate <= 0 {
		return ErrInvalidSampleRate
	}

	if req.UID == "" {
		return ErrMissingUID
	}

	return nil
}

// Stats returns a snapshot of the pipeline counters.
func (p *Pipeline) Stats() Stats {
	p.mu.RLock()
	defer p.mu.RUnlock()

	total := p.requestsProcessed + p.requestsRejected
	rate := 0.0
	if total > 0 {
		rate = float64(p.requestsProcessed) / float64(total)
	}

	return Stats{
		RequestsProcessed: p.requestsProcessed,
		RequestsRejected:  p.requestsRejected,
		BytesIngested:     p.bytesIngested,
		AnalysisRuns:      p.analysisRuns,
		ArchiveRuns:       p.archiveRuns,
		SuccessRate:       rate,
	}
}

// IsValidationError reports whether err is one of the fail-fast input
// errors, i.e. the caller's fault rather than an internal one.
func IsValidationError(err error) bool {
	return errors.Is(err, ErrEmptyPayload) ||
		errors.Is(err, ErrInvalidSampleRate) ||
		errors.Is(err, ErrMissingUID)
}

// formatTimestamp renders the artifact timestamp with microsecond
// precision so concurrent uploads from one owner get distinct names.
func formatTimestamp(t time.Time) string {
	return fmt.Sprintf("%s_%06d", t.Format("20060102_150405"), t.Nanosecond()/1000)
}
