// Package observe provides application-wide observability primitives for
// medscribe: OpenTelemetry metrics, tracing, structured logging, and HTTP
// middleware that ties them together.
//
// Metrics are recorded through the OpenTelemetry Metrics API. A Prometheus
// exporter bridge is available via [InitProvider] so that metrics can still be
// scraped via the standard /metrics endpoint. A package-level default
// [Metrics] instance ([DefaultMetrics]) is provided for convenience; tests
// should use [NewMetrics] with a custom [metric.MeterProvider] to avoid
// cross-test pollution.
package observe

import (
	"context"
	"sync"

	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/metric"
)

// meterName is the instrumentation scope name used for all medscribe metrics.
const meterName = "github.com/nxtwrld/medscribe"

// Metrics holds all OpenTelemetry metric instruments for the capture
// pipeline. All fields are safe for concurrent use — the underlying OTel
// types handle their own synchronisation.
type Metrics struct {
	// --- Histograms ---

	// STTDuration tracks transcription latency per chunk.
	STTDuration metric.Float64Histogram

	// ChunkAudioDuration tracks the audio length of emitted chunks.
	ChunkAudioDuration metric.Float64Histogram

	// OverlapSimilarity tracks the combined similarity of detected overlap
	// pairs.
	OverlapSimilarity metric.Float64Histogram

	// --- Counters ---

	// FramesProcessed counts PCM frames run through the VAD.
	FramesProcessed metric.Int64Counter

	// Utterances counts closed utterances. Use with attribute:
	//   attribute.String("end", "natural"|"timeout")
	Utterances metric.Int64Counter

	// ChunksEmitted counts flushed audio chunks. Use with attribute:
	//   attribute.Bool("forced", ...)
	ChunksEmitted metric.Int64Counter

	// TimeoutRecoveries counts stuck-speech recoveries. Use with attribute:
	//   attribute.String("reason", ...)
	TimeoutRecoveries metric.Int64Counter

	// SegmentsMerged counts transcript segments absorbed by overlap merging.
	SegmentsMerged metric.Int64Counter

	// DuplicatesRemoved counts pure duplicate renderings collapsed.
	DuplicatesRemoved metric.Int64Counter

	// STTErrors counts failed transcription calls. Use with attribute:
	//   attribute.String("provider", ...)
	STTErrors metric.Int64Counter

	// --- Gauges ---

	// ActiveSessions tracks the number of live capture sessions.
	ActiveSessions metric.Int64UpDownCounter

	// --- HTTP middleware ---

	// HTTPRequestDuration tracks HTTP request processing time. Use with attributes:
	//   attribute.String("method", ...), attribute.String("path", ...)
	HTTPRequestDuration metric.Float64Histogram
}

// latencyBuckets defines histogram bucket boundaries (in seconds) for
// transcription latency.
var latencyBuckets = []float64{
	0.01, 0.025, 0.05, 0.1, 0.25, 0.5, 1, 2.5, 5, 10,
}

// audioBuckets covers chunk audio lengths up to the batch window.
var audioBuckets = []float64{
	0.1, 0.5, 1, 2, 5, 10, 15, 20, 30, 45,
}

// similarityBuckets spans the [0,1] similarity range around the detection and
// merge thresholds.
var similarityBuckets = []float64{
	0.1, 0.2, 0.3, 0.4, 0.5, 0.6, 0.7, 0.8, 0.9, 0.95,
}

// NewMetrics creates a fully initialised [Metrics] struct using the given
// [metric.MeterProvider]. Returns an error if any instrument creation fails.
func NewMetrics(mp metric.MeterProvider) (*Metrics, error) {
	m := mp.Meter(meterName)
	var err error
	met := &Metrics{}

	// Histograms.
	if met.STTDuration, err = m.Float64Histogram("medscribe.stt.duration",
		metric.WithDescription("Latency of speech-to-text transcription per chunk."),
		metric.WithUnit("s"),
		metric.WithExplicitBucketBoundaries(latencyBuckets...),
	); err != nil {
		return nil, err
	}
	if met.ChunkAudioDuration, err = m.Float64Histogram("medscribe.chunk.audio_duration",
		metric.WithDescription("Audio length of emitted chunks."),
		metric.WithUnit("s"),
		metric.WithExplicitBucketBoundaries(audioBuckets...),
	); err != nil {
		return nil, err
	}
	if met.OverlapSimilarity, err = m.Float64Histogram("medscribe.overlap.similarity",
		metric.WithDescription("Combined similarity of detected transcript overlap pairs."),
		metric.WithExplicitBucketBoundaries(similarityBuckets...),
	); err != nil {
		return nil, err
	}

	// Counters.
	if met.FramesProcessed, err = m.Int64Counter("medscribe.frames.processed",
		metric.WithDescription("Total PCM frames run through the VAD."),
	); err != nil {
		return nil, err
	}
	if met.Utterances, err = m.Int64Counter("medscribe.utterances",
		metric.WithDescription("Total closed utterances by end kind."),
	); err != nil {
		return nil, err
	}
	if met.ChunksEmitted, err = m.Int64Counter("medscribe.chunks.emitted",
		metric.WithDescription("Total flushed audio chunks."),
	); err != nil {
		return nil, err
	}
	if met.TimeoutRecoveries, err = m.Int64Counter("medscribe.timeout.recoveries",
		metric.WithDescription("Total stuck-speech recoveries by reason."),
	); err != nil {
		return nil, err
	}
	if met.SegmentsMerged, err = m.Int64Counter("medscribe.overlap.segments_merged",
		metric.WithDescription("Total transcript segments absorbed by overlap merging."),
	); err != nil {
		return nil, err
	}
	if met.DuplicatesRemoved, err = m.Int64Counter("medscribe.overlap.duplicates_removed",
		metric.WithDescription("Total pure duplicate renderings collapsed."),
	); err != nil {
		return nil, err
	}
	if met.STTErrors, err = m.Int64Counter("medscribe.stt.errors",
		metric.WithDescription("Total failed transcription calls by provider."),
	); err != nil {
		return nil, err
	}

	// Gauges (UpDownCounters).
	if met.ActiveSessions, err = m.Int64UpDownCounter("medscribe.active_sessions",
		metric.WithDescription("Number of live capture sessions."),
	); err != nil {
		return nil, err
	}

	// HTTP middleware histogram.
	if met.HTTPRequestDuration, err = m.Float64Histogram("medscribe.http.request.duration",
		metric.WithDescription("HTTP request latency by method and path."),
		metric.WithUnit("s"),
	); err != nil {
		return nil, err
	}

	return met, nil
}

// defaultMetrics is the lazily-initialised package-level Metrics instance.
var (
	defaultMetrics     *Metrics
	defaultMetricsOnce sync.Once
)

// DefaultMetrics returns the package-level [Metrics] instance, creating it on
// first call using [otel.GetMeterProvider]. Subsequent calls return the same
// pointer. Panics if instrument creation fails (should not happen with the
// global provider).
func DefaultMetrics() *Metrics {
	defaultMetricsOnce.Do(func() {
		var err error
		defaultMetrics, err = NewMetrics(otel.GetMeterProvider())
		if err != nil {
			panic("observe: failed to create default metrics: " + err.Error())
		}
	})
	return defaultMetrics
}

// Attr is a convenience alias for [attribute.String] to reduce verbosity at
// call sites.
func Attr(key, value string) attribute.KeyValue {
	return attribute.String(key, value)
}

// RecordFrame counts one PCM frame run through the VAD.
func (m *Metrics) RecordFrame(ctx context.Context) {
	m.FramesProcessed.Add(ctx, 1)
}

// RecordUtterance records one closed utterance with its end kind
// ("natural" or "timeout").
func (m *Metrics) RecordUtterance(ctx context.Context, end string) {
	m.Utterances.Add(ctx, 1,
		metric.WithAttributes(attribute.String("end", end)),
	)
}

// RecordChunk records one emitted chunk and its audio length.
func (m *Metrics) RecordChunk(ctx context.Context, forced bool, audioSeconds float64) {
	m.ChunksEmitted.Add(ctx, 1,
		metric.WithAttributes(attribute.Bool("forced", forced)),
	)
	m.ChunkAudioDuration.Record(ctx, audioSeconds)
}

// RecordTimeoutRecovery records one stuck-speech recovery by reason.
func (m *Metrics) RecordTimeoutRecovery(ctx context.Context, reason string) {
	m.TimeoutRecoveries.Add(ctx, 1,
		metric.WithAttributes(attribute.String("reason", reason)),
	)
}

// RecordSTT records one transcription call outcome and its latency.
func (m *Metrics) RecordSTT(ctx context.Context, provider string, seconds float64, err error) {
	m.STTDuration.Record(ctx, seconds,
		metric.WithAttributes(attribute.String("provider", provider)),
	)
	if err != nil {
		m.STTErrors.Add(ctx, 1,
			metric.WithAttributes(attribute.String("provider", provider)),
		)
	}
}

// RecordMergePass records the outcome of one overlap merge pass.
func (m *Metrics) RecordMergePass(ctx context.Context, merged, duplicates int, similarities []float64) {
	if merged > 0 {
		m.SegmentsMerged.Add(ctx, int64(merged))
	}
	if duplicates > 0 {
		m.DuplicatesRemoved.Add(ctx, int64(duplicates))
	}
	for _, s := range similarities {
		m.OverlapSimilarity.Record(ctx, s)
	}
}
