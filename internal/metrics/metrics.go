// Package metrics holds the OpenTelemetry instruments of the frame loop.
package metrics

import (
	"context"
	"fmt"
	"time"

	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/metric"
	"go.opentelemetry.io/otel/metric/noop"
)

const instrumentationName = "vigil/internal/metrics"

func meter() metric.Meter {
	return otel.Meter(instrumentationName)
}

// Metrics holds the frame loop instruments. Without an SDK installed they are no-ops.
type Metrics struct {
	processed       metric.Int64Counter
	noPerson        metric.Int64Counter
	noFace          metric.Int64Counter
	inferenceErrors metric.Int64Counter
	transitions     metric.Int64Counter
	frameDuration   metric.Float64Histogram
}

// New creates the instruments on m, or on the global meter provider when m is nil.
func New(m metric.Meter) (*Metrics, error) {
	if m == nil {
		m = meter()
	}
	var (
		x   Metrics
		err error
	)

	x.processed, err = m.Int64Counter("vigil.frames.processed",
		metric.WithDescription("Frames run through the pipeline"))
	if err != nil {
		return nil, fmt.Errorf("creating processed counter: %w", err)
	}
	x.noPerson, err = m.Int64Counter("vigil.frames.no_person",
		metric.WithDescription("Frames without a detected person"))
	if err != nil {
		return nil, fmt.Errorf("creating no_person counter: %w", err)
	}
	x.noFace, err = m.Int64Counter("vigil.frames.no_face",
		metric.WithDescription("Frames without a detected face"))
	if err != nil {
		return nil, fmt.Errorf("creating no_face counter: %w", err)
	}
	x.inferenceErrors, err = m.Int64Counter("vigil.inference.errors",
		metric.WithDescription("Failed sidecar calls"))
	if err != nil {
		return nil, fmt.Errorf("creating inference error counter: %w", err)
	}
	x.transitions, err = m.Int64Counter("vigil.state.transitions",
		metric.WithDescription("Activity label changes and sleep state transitions"))
	if err != nil {
		return nil, fmt.Errorf("creating transitions counter: %w", err)
	}
	x.frameDuration, err = m.Float64Histogram("vigil.frame.duration",
		metric.WithDescription("Time to process one frame"),
		metric.WithUnit("ms"))
	if err != nil {
		return nil, fmt.Errorf("creating frame duration histogram: %w", err)
	}
	return &x, nil
}

// Setup creates the instruments on the global meter provider when enabled,
// and on a no-op provider otherwise.
func Setup(enabled bool) (*Metrics, error) {
	if !enabled {
		return New(noop.NewMeterProvider().Meter(instrumentationName))
	}
	return New(nil)
}

// FrameProcessed records one finished frame and how long it took.
func (m *Metrics) FrameProcessed(ctx context.Context, mode string, d time.Duration) {
	if m == nil {
		return
	}
	attrs := metric.WithAttributes(attribute.String("mode", mode))
	m.processed.Add(ctx, 1, attrs)
	m.frameDuration.Record(ctx, float64(d.Microseconds())/1000, attrs)
}

// NoPerson counts a frame without a pose detection.
func (m *Metrics) NoPerson(ctx context.Context) {
	if m == nil {
		return
	}
	m.noPerson.Add(ctx, 1)
}

// NoFace counts a frame without a face detection.
func (m *Metrics) NoFace(ctx context.Context) {
	if m == nil {
		return
	}
	m.noFace.Add(ctx, 1)
}

// InferenceError counts a failed call to the named sidecar.
func (m *Metrics) InferenceError(ctx context.Context, sidecar string) {
	if m == nil {
		return
	}
	m.inferenceErrors.Add(ctx, 1, metric.WithAttributes(attribute.String("sidecar", sidecar)))
}

// Transition counts a state change of the given kind ("activity" or "sleep").
func (m *Metrics) Transition(ctx context.Context, kind, to string) {
	if m == nil {
		return
	}
	m.transitions.Add(ctx, 1, metric.WithAttributes(
		attribute.String("kind", kind),
		attribute.String("to", to),
	))
}
