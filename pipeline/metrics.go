package pipeline

import (
	"context"

	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/metric"
)

// meterName is the instrumentation scope for all pitchscope metrics.
const meterName = "github.com/RyanBlaney/pitchscope"

// Metrics holds the OpenTelemetry instruments recorded by pipelines and
// sessions. The instruments synchronise internally, so one Metrics may be
// shared across sessions.
type Metrics struct {
	// Frames counts processed frames. Attribute: outcome.
	Frames metric.Int64Counter

	// FrameDuration tracks the synchronous per-frame pipeline cost.
	FrameDuration metric.Float64Histogram

	// Level records the normalized input level of every frame.
	Level metric.Float64Histogram

	// DroppedResults counts results discarded because the consumer fell
	// behind.
	DroppedResults metric.Int64Counter

	// ActiveSessions tracks running capture loops.
	ActiveSessions metric.Int64UpDownCounter
}

// frameBuckets are histogram boundaries in seconds around typical per-frame
// costs (YIN on 2048 samples is in the low milliseconds).
var frameBuckets = []float64{
	0.0001, 0.00025, 0.0005, 0.001, 0.0025, 0.005, 0.01, 0.025, 0.05, 0.1,
}

var levelBuckets = []float64{
	0.01, 0.025, 0.05, 0.1, 0.2, 0.4, 0.6, 0.8, 1,
}

// NewMetrics creates every instrument from mp. Pass otel.GetMeterProvider()
// to record into the global provider.
func NewMetrics(mp metric.MeterProvider) (*Metrics, error) {
	m := mp.Meter(meterName)
	var err error
	met := &Metrics{}

	if met.Frames, err = m.Int64Counter("pitchscope.frames",
		metric.WithDescription("Processed frames by outcome."),
	); err != nil {
		return nil, err
	}
	if met.FrameDuration, err = m.Float64Histogram("pitchscope.frame.duration",
		metric.WithDescription("Pipeline latency per frame."),
		metric.WithUnit("s"),
		metric.WithExplicitBucketBoundaries(frameBuckets...),
	); err != nil {
		return nil, err
	}
	if met.Level, err = m.Float64Histogram("pitchscope.level",
		metric.WithDescription("Normalized RMS level per frame."),
		metric.WithExplicitBucketBoundaries(levelBuckets...),
	); err != nil {
		return nil, err
	}
	if met.DroppedResults, err = m.Int64Counter("pitchscope.results.dropped",
		metric.WithDescription("Results dropped because the consumer was not keeping up."),
	); err != nil {
		return nil, err
	}
	if met.ActiveSessions, err = m.Int64UpDownCounter("pitchscope.active_sessions",
		metric.WithDescription("Number of running capture sessions."),
	); err != nil {
		return nil, err
	}

	return met, nil
}

func (m *Metrics) recordFrame(ctx context.Context, r Result) {
	if m == nil {
		return
	}
	m.Frames.Add(ctx, 1, metric.WithAttributes(attribute.String("outcome", string(r.Outcome))))
	m.FrameDuration.Record(ctx, r.Elapsed.Seconds())
	m.Level.Record(ctx, r.Level)
}

func (m *Metrics) recordDrop(ctx context.Context) {
	if m == nil {
		return
	}
	m.DroppedResults.Add(ctx, 1)
}

func (m *Metrics) sessionStarted(ctx context.Context) {
	if m == nil {
		return
	}
	m.ActiveSessions.Add(ctx, 1)
}

func (m *Metrics) sessionStopped(ctx context.Context) {
	if m == nil {
		return
	}
	m.ActiveSessions.Add(ctx, -1)
}
