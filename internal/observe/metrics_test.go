package observe

import (
	"context"
	"testing"

	"go.opentelemetry.io/otel/metric"
	sdkmetric "go.opentelemetry.io/otel/sdk/metric"
	"go.opentelemetry.io/otel/sdk/metric/metricdata"
)

// newTestMetrics returns a Metrics instance backed by a ManualReader for
// programmatic metric inspection.
func newTestMetrics(t *testing.T) (*Metrics, *sdkmetric.ManualReader) {
	t.Helper()
	reader := sdkmetric.NewManualReader()
	mp := sdkmetric.NewMeterProvider(sdkmetric.WithReader(reader))
	t.Cleanup(func() { _ = mp.Shutdown(context.Background()) })

	m, err := NewMetrics(mp)
	if err != nil {
		t.Fatalf("NewMetrics: %v", err)
	}
	return m, reader
}

// collect gathers all metric data from the reader.
func collect(t *testing.T, reader *sdkmetric.ManualReader) metricdata.ResourceMetrics {
	t.Helper()
	var rm metricdata.ResourceMetrics
	if err := reader.Collect(context.Background(), &rm); err != nil {
		t.Fatalf("Collect: %v", err)
	}
	return rm
}

// findMetric searches for a metric by name across all scope metrics.
func findMetric(rm metricdata.ResourceMetrics, name string) *metricdata.Metrics {
	for _, sm := range rm.ScopeMetrics {
		for i := range sm.Metrics {
			if sm.Metrics[i].Name == name {
				return &sm.Metrics[i]
			}
		}
	}
	return nil
}

// sumFor returns the value of the data point of an int64 sum whose attribute
// key equals value, and whether such a point exists.
func sumFor(t *testing.T, rm metricdata.ResourceMetrics, name, key, value string) (int64, bool) {
	t.Helper()
	met := findMetric(rm, name)
	if met == nil {
		t.Fatalf("metric %q not found", name)
	}
	sum, ok := met.Data.(metricdata.Sum[int64])
	if !ok {
		t.Fatalf("metric %q is not a sum", name)
	}
	for _, dp := range sum.DataPoints {
		if key == "" {
			return dp.Value, true
		}
		for _, kv := range dp.Attributes.ToSlice() {
			if string(kv.Key) == key && kv.Value.AsString() == value {
				return dp.Value, true
			}
		}
	}
	return 0, false
}

func TestNewMetrics_CreatesWithoutError(t *testing.T) {
	m, _ := newTestMetrics(t)
	if m == nil {
		t.Fatal("NewMetrics returned nil")
	}
}

func TestHistogramObservation(t *testing.T) {
	m, reader := newTestMetrics(t)
	ctx := context.Background()

	histograms := []struct {
		name string
		h    metric.Float64Histogram
	}{
		{"nexa.playback.schedule_lead", m.ScheduleLead},
		{"nexa.session.connect.duration", m.ConnectDuration},
		{"nexa.http.request.duration", m.HTTPRequestDuration},
	}

	for _, tc := range histograms {
		tc.h.Record(ctx, 0.123)
		tc.h.Record(ctx, 0.456)
	}

	rm := collect(t, reader)

	for _, tc := range histograms {
		t.Run(tc.name, func(t *testing.T) {
			met := findMetric(rm, tc.name)
			if met == nil {
				t.Fatalf("metric %q not found", tc.name)
			}
			hist, ok := met.Data.(metricdata.Histogram[float64])
			if !ok {
				t.Fatalf("metric %q is not a histogram", tc.name)
			}
			if len(hist.DataPoints) == 0 {
				t.Fatalf("metric %q has no data points", tc.name)
			}
			if got := hist.DataPoints[0].Count; got != 2 {
				t.Errorf("sample count = %d, want 2", got)
			}
		})
	}
}

func TestRecordCaptureFrame(t *testing.T) {
	m, reader := newTestMetrics(t)
	ctx := context.Background()

	m.RecordCaptureFrame(ctx, CaptureSent)
	m.RecordCaptureFrame(ctx, CaptureSent)
	m.RecordCaptureFrame(ctx, CaptureDroppedFull)

	rm := collect(t, reader)
	if got, ok := sumFor(t, rm, "nexa.capture.frames", "result", CaptureSent); !ok || got != 2 {
		t.Errorf("sent = %d (found %v), want 2", got, ok)
	}
	if got, ok := sumFor(t, rm, "nexa.capture.frames", "result", CaptureDroppedFull); !ok || got != 1 {
		t.Errorf("dropped_full = %d (found %v), want 1", got, ok)
	}
	if _, ok := sumFor(t, rm, "nexa.capture.frames", "result", CaptureDroppedNotReady); ok {
		t.Error("unexpected dropped_not_ready data point")
	}
}

func TestRecordSessionError(t *testing.T) {
	m, reader := newTestMetrics(t)
	m.RecordSessionError(context.Background(), "permission")

	rm := collect(t, reader)
	if got, ok := sumFor(t, rm, "nexa.session.errors", "kind", "permission"); !ok || got != 1 {
		t.Errorf("permission errors = %d (found %v), want 1", got, ok)
	}
}

func TestProviderErrorsCounter(t *testing.T) {
	m, reader := newTestMetrics(t)
	m.RecordProviderError(context.Background(), "gemini-live", "receive")

	rm := collect(t, reader)
	if got, ok := sumFor(t, rm, "nexa.provider.errors", "provider", "gemini-live"); !ok || got != 1 {
		t.Errorf("provider errors = %d (found %v), want 1", got, ok)
	}
}

func TestPlaybackCounters(t *testing.T) {
	m, reader := newTestMetrics(t)
	ctx := context.Background()

	m.PlaybackChunks.Add(ctx, 3)
	m.PlaybackResyncs.Add(ctx, 1)
	m.DecodeErrors.Add(ctx, 2)
	m.Interruptions.Add(ctx, 1)

	rm := collect(t, reader)
	counters := []struct {
		name string
		want int64
	}{
		{"nexa.playback.chunks", 3},
		{"nexa.playback.resyncs", 1},
		{"nexa.playback.decode_errors", 2},
		{"nexa.playback.interruptions", 1},
	}
	for _, tc := range counters {
		t.Run(tc.name, func(t *testing.T) {
			if got, _ := sumFor(t, rm, tc.name, "", ""); got != tc.want {
				t.Errorf("value = %d, want %d", got, tc.want)
			}
		})
	}
}

func TestActiveSessionsGauge(t *testing.T) {
	m, reader := newTestMetrics(t)
	ctx := context.Background()

	// UpDownCounters are additive: connect twice, disconnect once.
	m.ActiveSessions.Add(ctx, 1)
	m.ActiveSessions.Add(ctx, 1)
	m.ActiveSessions.Add(ctx, -1)

	rm := collect(t, reader)
	if got, _ := sumFor(t, rm, "nexa.active_sessions", "", ""); got != 1 {
		t.Errorf("active sessions = %d, want 1", got)
	}
}

func TestDefaultMetrics_ReturnsSameInstance(t *testing.T) {
	a := DefaultMetrics()
	b := DefaultMetrics()
	if a != b {
		t.Error("DefaultMetrics returned different pointers")
	}
}
