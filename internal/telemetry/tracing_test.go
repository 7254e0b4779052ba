package telemetry

import (
	"context"
	"testing"

	"github.com/BreederHQ/server/internal/config"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.opentelemetry.io/otel"
	sdktrace "go.opentelemetry.io/otel/sdk/trace"
)

func TestInitTracingDisabled(t *testing.T) {
	before := otel.GetTracerProvider()

	shutdown, err := InitTracing(context.Background(), config.TracingConfig{Enabled: false, Exporter: "bogus"}, "1.0.0")
	require.NoError(t, err)
	require.NoError(t, shutdown(context.Background()))
	assert.Equal(t, before, otel.GetTracerProvider())
}

func TestInitTracingRejectsBadConfig(t *testing.T) {
	tests := []struct {
		name string
		cfg  config.TracingConfig
		want string
	}{
		{name: "sample rate above one", cfg: config.TracingConfig{Enabled: true, Exporter: "none", SampleRate: 1.5}, want: "invalid sample rate"},
		{name: "negative sample rate", cfg: config.TracingConfig{Enabled: true, Exporter: "none", SampleRate: -0.1}, want: "invalid sample rate"},
		{name: "unknown exporter", cfg: config.TracingConfig{Enabled: true, Exporter: "jaeger", SampleRate: 1}, want: "unsupported exporter"},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			_, err := InitTracing(context.Background(), tt.cfg, "1.0.0")
			require.Error(t, err)
			assert.Contains(t, err.Error(), tt.want)
		})
	}
}

func TestInitTracingDiscardExporter(t *testing.T) {
	prev := otel.GetTracerProvider()
	t.Cleanup(func() { otel.SetTracerProvider(prev) })

	shutdown, err := InitTracing(context.Background(), config.TracingConfig{
		Enabled:     true,
		Exporter:    "none",
		ServiceName: "breederhq-test",
		SampleRate:  1,
	}, "1.0.0")
	require.NoError(t, err)

	_, span := Tracer("domain/draftboard").Start(context.Background(), "draftboard.MakePick")
	assert.True(t, span.SpanContext().IsSampled())
	span.End()

	require.NoError(t, shutdown(context.Background()))
}

func TestNewSampler(t *testing.T) {
	assert.Contains(t, newSampler(1).Description(), "AlwaysOnSampler")
	assert.Contains(t, newSampler(0).Description(), "AlwaysOffSampler")
	assert.Contains(t, newSampler(0.25).Description(), "TraceIDRatioBased{0.25}")
	assert.IsType(t, sdktrace.ParentBased(sdktrace.AlwaysSample()), newSampler(0.5))
}
