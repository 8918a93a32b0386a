package metrics

import (
	"context"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/metric"
	"go.opentelemetry.io/otel/metric/noop"
)

func TestNew_GlobalProvider(t *testing.T) {
	m, err := New(nil)
	require.NoError(t, err)
	assert.NotNil(t, m)
}

// countingProvider counts how often a meter is requested from it.
type countingProvider struct {
	noop.MeterProvider
	meters int
}

func (p *countingProvider) Meter(name string, opts ...metric.MeterOption) metric.Meter {
	p.meters++
	return p.MeterProvider.Meter(name, opts...)
}

func TestSetup_GatesGlobalProvider(t *testing.T) {
	// the provider stays installed; every other test only needs a working meter
	p := &countingProvider{}
	otel.SetMeterProvider(p)

	m, err := Setup(false)
	require.NoError(t, err)
	assert.NotNil(t, m)
	assert.Zero(t, p.meters)

	m, err = Setup(true)
	require.NoError(t, err)
	assert.NotNil(t, m)
	assert.Equal(t, 1, p.meters)
}

func TestRecording(t *testing.T) {
	m, err := New(noop.NewMeterProvider().Meter("test"))
	require.NoError(t, err)

	ctx := context.Background()
	assert.NotPanics(t, func() {
		m.FrameProcessed(ctx, "activity", 12*time.Millisecond)
		m.NoPerson(ctx)
		m.NoFace(ctx)
		m.InferenceError(ctx, "pose")
		m.Transition(ctx, "sleep", "SLEEPING")
	})
}

func TestNilMetricsIsNoop(t *testing.T) {
	var m *Metrics
	ctx := context.Background()
	assert.NotPanics(t, func() {
		m.FrameProcessed(ctx, "sleep", time.Millisecond)
		m.NoPerson(ctx)
		m.NoFace(ctx)
		m.InferenceError(ctx, "face")
		m.Transition(ctx, "activity", "walking")
	})
}
