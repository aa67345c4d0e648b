// Package observe records assistant activity as OpenTelemetry metrics. The
// instruments are exported to the default Prometheus registry by
// [InitProvider] and scraped from the status server's /metrics endpoint.
package observe

import (
	"context"
	"time"

	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/metric"

	"jarvis/internal/application"
)

const meterName = "jarvis"

// latencyBuckets are in seconds and cover a local model answering in a few
// seconds up to a long utterance.
var latencyBuckets = []float64{
	0.05, 0.1, 0.25, 0.5, 1, 2, 4, 8, 16, 32,
}

// Metrics implements [application.Observer].
type Metrics struct {
	SpeechStarts   metric.Int64Counter
	Turns          metric.Int64Counter
	Overflows      metric.Int64Counter
	StageDuration  metric.Float64Histogram
	StageErrors    metric.Int64Counter
	TurnDuration   metric.Float64Histogram
	SpeechDuration metric.Float64Histogram
}

func NewMetrics(mp metric.MeterProvider) (*Metrics, error) {
	m := mp.Meter(meterName)
	var err error
	met := &Metrics{}

	if met.SpeechStarts, err = m.Int64Counter("jarvis.speech.starts",
		metric.WithDescription("Speech onsets detected."),
	); err != nil {
		return nil, err
	}
	if met.Turns, err = m.Int64Counter("jarvis.turns",
		metric.WithDescription("Completed turns by whether a reply was produced."),
	); err != nil {
		return nil, err
	}
	if met.Overflows, err = m.Int64Counter("jarvis.capture.overflows",
		metric.WithDescription("Frames read after the capture buffer overflowed."),
	); err != nil {
		return nil, err
	}
	if met.StageDuration, err = m.Float64Histogram("jarvis.stage.duration",
		metric.WithDescription("Latency of transcription, inference and synthesis."),
		metric.WithUnit("s"),
		metric.WithExplicitBucketBoundaries(latencyBuckets...),
	); err != nil {
		return nil, err
	}
	if met.StageErrors, err = m.Int64Counter("jarvis.stage.errors",
		metric.WithDescription("Failed stage calls by stage."),
	); err != nil {
		return nil, err
	}
	if met.TurnDuration, err = m.Float64Histogram("jarvis.turn.duration",
		metric.WithDescription("Time from end of speech until the assistant listens again."),
		metric.WithUnit("s"),
		metric.WithExplicitBucketBoundaries(latencyBuckets...),
	); err != nil {
		return nil, err
	}
	if met.SpeechDuration, err = m.Float64Histogram("jarvis.utterance.duration",
		metric.WithDescription("Length of captured utterances."),
		metric.WithUnit("s"),
		metric.WithExplicitBucketBoundaries(latencyBuckets...),
	); err != nil {
		return nil, err
	}

	return met, nil
}

func (m *Metrics) SpeechStarted(ctx context.Context) {
	m.SpeechStarts.Add(ctx, 1)
}

func (m *Metrics) CaptureOverflowed(ctx context.Context) {
	m.Overflows.Add(ctx, 1)
}

func (m *Metrics) StageCompleted(ctx context.Context, stage application.Stage, took time.Duration, err error) {
	attrs := metric.WithAttributes(attribute.String("stage", string(stage)))
	m.StageDuration.Record(ctx, took.Seconds(), attrs)
	if err != nil {
		m.StageErrors.Add(ctx, 1, attrs)
	}
}

func (m *Metrics) TurnCompleted(ctx context.Context, utterance, total time.Duration, replied bool) {
	m.Turns.Add(ctx, 1, metric.WithAttributes(attribute.Bool("replied", replied)))
	m.TurnDuration.Record(ctx, total.Seconds())
	m.SpeechDuration.Record(ctx, utterance.Seconds())
}

var _ application.Observer = (*Metrics)(nil)
