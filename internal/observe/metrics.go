// Package observe provides application-wide observability primitives:
// OpenTelemetry metrics, tracing helpers, and the HTTP middleware that ties
// them together.
//
// Metrics are recorded through the OpenTelemetry Metrics API. A Prometheus
// exporter bridge is installed by [InitProvider] so that metrics can be
// scraped via the standard /metrics endpoint. Tests should use [NewMetrics]
// with a private [metric.MeterProvider] to avoid cross-test pollution.
package observe

import (
	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/metric"
)

// meterName is the instrumentation scope name used for all metrics.
const meterName = "github.com/AnshuAditya03/Anshu-backend"

// MeterProvider returns the globally registered [metric.MeterProvider], as
// installed by [InitProvider].
func MeterProvider() metric.MeterProvider {
	return otel.GetMeterProvider()
}

// Metrics holds all OpenTelemetry metric instruments for the application.
// All fields are safe for concurrent use; the underlying OTel types handle
// their own synchronisation.
type Metrics struct {
	// --- Latency histograms per pipeline stage ---

	// STTDuration tracks batch speech-to-text transcription latency. Streaming
	// recognition is continuous and is not timed per call.
	STTDuration metric.Float64Histogram

	// LLMDuration tracks the duration of the whole retried generation stage.
	LLMDuration metric.Float64Histogram

	// TTSDuration tracks text-to-speech synthesis latency.
	TTSDuration metric.Float64Histogram

	// --- Counters ---

	// TurnsTotal counts completed turns.
	TurnsTotal metric.Int64Counter

	// GenerationFailures counts individual failed generation attempts
	// (each failed attempt inside the retry loop, not just exhausted turns).
	GenerationFailures metric.Int64Counter

	// DuplicateFinals counts final transcript events dropped because a turn
	// was already in flight on the same streaming connection.
	DuplicateFinals metric.Int64Counter

	// --- Gauges ---

	// ActiveStreams tracks the number of live streaming connections.
	ActiveStreams metric.Int64UpDownCounter

	// --- HTTP middleware ---

	// HTTPRequestDuration tracks HTTP request processing time. Use with
	// attributes: attribute.String("method", …), attribute.String("path", …).
	HTTPRequestDuration metric.Float64Histogram
}

// latencyBuckets defines histogram bucket boundaries (in seconds) sized for
// the latencies of remote generation and synthesis calls.
var latencyBuckets = []float64{
	0.01, 0.025, 0.05, 0.1, 0.25, 0.5, 1, 2.5, 5, 10,
}

// NewMetrics creates a fully initialised [Metrics] struct using the given
// [metric.MeterProvider]. Returns an error if any instrument creation fails.
func NewMetrics(mp metric.MeterProvider) (*Metrics, error) {
	m := mp.Meter(meterName)
	var err error
	met := &Metrics{}

	// Histograms.
	if met.STTDuration, err = m.Float64Histogram("anshu.stt.duration",
		metric.WithDescription("Latency of speech-to-text transcription."),
		metric.WithUnit("s"),
		metric.WithExplicitBucketBoundaries(latencyBuckets...),
	); err != nil {
		return nil, err
	}
	if met.LLMDuration, err = m.Float64Histogram("anshu.llm.duration",
		metric.WithDescription("Latency of the generation stage including retries."),
		metric.WithUnit("s"),
		metric.WithExplicitBucketBoundaries(latencyBuckets...),
	); err != nil {
		return nil, err
	}
	if met.TTSDuration, err = m.Float64Histogram("anshu.tts.duration",
		metric.WithDescription("Latency of text-to-speech synthesis."),
		metric.WithUnit("s"),
		metric.WithExplicitBucketBoundaries(latencyBuckets...),
	); err != nil {
		return nil, err
	}

	// Counters.
	if met.TurnsTotal, err = m.Int64Counter("anshu.turns.total",
		metric.WithDescription("Completed turns."),
	); err != nil {
		return nil, err
	}
	if met.GenerationFailures, err = m.Int64Counter("anshu.generation.failures",
		metric.WithDescription("Failed generation attempts, counted per retry attempt."),
	); err != nil {
		return nil, err
	}
	if met.DuplicateFinals, err = m.Int64Counter("anshu.stream.duplicate_finals",
		metric.WithDescription("Final transcript events dropped while a turn was in flight."),
	); err != nil {
		return nil, err
	}

	// Gauges.
	if met.ActiveStreams, err = m.Int64UpDownCounter("anshu.stream.active",
		metric.WithDescription("Live streaming connections."),
	); err != nil {
		return nil, err
	}

	// HTTP.
	if met.HTTPRequestDuration, err = m.Float64Histogram("anshu.http.request.duration",
		metric.WithDescription("HTTP request processing time."),
		metric.WithUnit("s"),
		metric.WithExplicitBucketBoundaries(latencyBuckets...),
	); err != nil {
		return nil, err
	}

	return met, nil
}
