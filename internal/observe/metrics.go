// Package observe provides application-wide observability primitives for
// Nexa: OpenTelemetry metrics, distributed tracing, trace-aware logging and
// HTTP middleware that ties them together.
//
// Metrics are recorded through the OpenTelemetry Metrics API. A Prometheus
// exporter bridge is installed by [InitProvider] so that metrics can be
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

// meterName is the instrumentation scope name used for all Nexa metrics.
const meterName = "github.com/webnexifystudio/nexa"

// Capture results recorded on [Metrics.CaptureFrames].
const (
	CaptureSent            = "sent"
	CaptureDroppedNotReady = "dropped_not_ready"
	CaptureDroppedFull     = "dropped_full"
)

// Metrics holds all OpenTelemetry metric instruments for the application.
// All fields are safe for concurrent use; the underlying OTel types handle
// their own synchronisation.
type Metrics struct {
	// --- Capture path ---

	// CaptureFrames counts encoded microphone frames. Use with attribute:
	//   attribute.String("result", CaptureSent|CaptureDroppedNotReady|CaptureDroppedFull)
	CaptureFrames metric.Int64Counter

	// CaptureSendErrors counts sink errors returned while sending audio.
	CaptureSendErrors metric.Int64Counter

	// --- Playback path ---

	// PlaybackChunks counts inbound chunks scheduled on the output timeline.
	PlaybackChunks metric.Int64Counter

	// PlaybackResyncs counts chunks whose start was moved forward to the
	// device clock because the timeline had fallen behind.
	PlaybackResyncs metric.Int64Counter

	// DecodeErrors counts inbound chunks dropped because they failed to decode.
	DecodeErrors metric.Int64Counter

	// Interruptions counts server barge-in signals.
	Interruptions metric.Int64Counter

	// ScheduleLead tracks how far ahead of the device clock each chunk was
	// scheduled, in seconds.
	ScheduleLead metric.Float64Histogram

	// --- Session ---

	// ConnectDuration tracks the time from Connect to the remote open signal.
	ConnectDuration metric.Float64Histogram

	// ActiveSessions tracks the number of connected remote sessions.
	ActiveSessions metric.Int64UpDownCounter

	// SessionErrors counts session failures. Use with attribute:
	//   attribute.String("kind", "permission"|"device"|"connection")
	SessionErrors metric.Int64Counter

	// ProviderErrors counts provider errors. Use with attributes:
	//   attribute.String("provider", ...), attribute.String("kind", ...)
	ProviderErrors metric.Int64Counter

	// --- HTTP middleware ---

	// HTTPRequestDuration tracks HTTP request processing time. Use with attributes:
	//   attribute.String("method", ...), attribute.String("path", ...)
	HTTPRequestDuration metric.Float64Histogram
}

// latencyBuckets defines histogram bucket boundaries (in seconds) optimised
// for voice-pipeline latencies.
var latencyBuckets = []float64{
	0.01, 0.025, 0.05, 0.1, 0.25, 0.5, 1, 2.5, 5, 10,
}

// NewMetrics creates a fully initialised [Metrics] struct using the given
// [metric.MeterProvider]. Returns an error if any instrument creation fails.
func NewMetrics(mp metric.MeterProvider) (*Metrics, error) {
	m := mp.Meter(meterName)
	var err error
	met := &Metrics{}

	// Capture.
	if met.CaptureFrames, err = m.Int64Counter("nexa.capture.frames",
		metric.WithDescription("Encoded microphone frames by result."),
	); err != nil {
		return nil, err
	}
	if met.CaptureSendErrors, err = m.Int64Counter("nexa.capture.send_errors",
		metric.WithDescription("Errors returned by the outbound audio sink."),
	); err != nil {
		return nil, err
	}

	// Playback.
	if met.PlaybackChunks, err = m.Int64Counter("nexa.playback.chunks",
		metric.WithDescription("Inbound audio chunks scheduled for playback."),
	); err != nil {
		return nil, err
	}
	if met.PlaybackResyncs, err = m.Int64Counter("nexa.playback.resyncs",
		metric.WithDescription("Chunks moved forward to the device clock after an underrun."),
	); err != nil {
		return nil, err
	}
	if met.DecodeErrors, err = m.Int64Counter("nexa.playback.decode_errors",
		metric.WithDescription("Inbound chunks dropped because they could not be decoded."),
	); err != nil {
		return nil, err
	}
	if met.Interruptions, err = m.Int64Counter("nexa.playback.interruptions",
		metric.WithDescription("Server barge-in signals that reset the playback timeline."),
	); err != nil {
		return nil, err
	}
	if met.ScheduleLead, err = m.Float64Histogram("nexa.playback.schedule_lead",
		metric.WithDescription("Distance between the device clock and a chunk's scheduled start."),
		metric.WithUnit("s"),
		metric.WithExplicitBucketBoundaries(latencyBuckets...),
	); err != nil {
		return nil, err
	}

	// Session.
	if met.ConnectDuration, err = m.Float64Histogram("nexa.session.connect.duration",
		metric.WithDescription("Time from Connect until the remote session is open."),
		metric.WithUnit("s"),
		metric.WithExplicitBucketBoundaries(latencyBuckets...),
	); err != nil {
		return nil, err
	}
	if met.ActiveSessions, err = m.Int64UpDownCounter("nexa.active_sessions",
		metric.WithDescription("Number of connected remote sessions."),
	); err != nil {
		return nil, err
	}
	if met.SessionErrors, err = m.Int64Counter("nexa.session.errors",
		metric.WithDescription("Session failures by kind."),
	); err != nil {
		return nil, err
	}
	if met.ProviderErrors, err = m.Int64Counter("nexa.provider.errors",
		metric.WithDescription("Total provider errors by provider and kind."),
	); err != nil {
		return nil, err
	}

	// HTTP middleware histogram.
	if met.HTTPRequestDuration, err = m.Float64Histogram("nexa.http.request.duration",
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

// RecordCaptureFrame increments the capture frame counter for result.
func (m *Metrics) RecordCaptureFrame(ctx context.Context, result string) {
	m.CaptureFrames.Add(ctx, 1, metric.WithAttributes(attribute.String("result", result)))
}

// RecordSessionError increments the session error counter for kind.
func (m *Metrics) RecordSessionError(ctx context.Context, kind string) {
	m.SessionErrors.Add(ctx, 1, metric.WithAttributes(attribute.String("kind", kind)))
}

// RecordProviderError is a convenience method that records a provider error
// counter increment.
func (m *Metrics) RecordProviderError(ctx context.Context, provider, kind string) {
	m.ProviderErrors.Add(ctx, 1,
		metric.WithAttributes(
			attribute.String("provider", provider),
			attribute.String("kind", kind),
		),
	)
}
