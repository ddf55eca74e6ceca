package telemetry

import (
	"context"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.opentelemetry.io/otel"
	sdkmetric "go.opentelemetry.io/otel/sdk/metric"
	sdktrace "go.opentelemetry.io/otel/sdk/trace"
	"go.uber.org/zap/zaptest"

	"github.com/BaSui01/agentrouter/config"
)

// saveAndRestoreGlobalProviders snapshots the global OTel providers so
// tests don't leak state into each other.
func saveAndRestoreGlobalProviders(t *testing.T) {
	t.Helper()
	origTP := otel.GetTracerProvider()
	origMP := otel.GetMeterProvider()
	t.Cleanup(func() {
		otel.SetTracerProvider(origTP)
		otel.SetMeterProvider(origMP)
	})
}

func shutdown(t *testing.T, p *Providers) {
	t.Cleanup(func() {
		ctx, cancel := context.WithTimeout(context.Background(), time.Second)
		defer cancel()
		_ = p.Shutdown(ctx)
	})
}

func TestInit_Disabled(t *testing.T) {
	saveAndRestoreGlobalProviders(t)
	before := otel.GetTracerProvider()

	p, err := Init(config.TelemetryConfig{Enabled: false}, zaptest.NewLogger(t))
	require.NoError(t, err)
	require.NotNil(t, p)

	assert.False(t, p.Enabled())
	assert.Nil(t, p.tp)
	assert.Nil(t, p.mp)
	assert.Equal(t, before, otel.GetTracerProvider(), "disabled telemetry must not replace globals")

	// noop tracer 产生的 span 不会被记录
	_, span := p.Tracer().Start(context.Background(), "dispatch")
	assert.False(t, span.SpanContext().IsValid())
	span.End()
}

func TestInit_Enabled(t *testing.T) {
	saveAndRestoreGlobalProviders(t)

	p, err := Init(config.TelemetryConfig{
		Enabled:      true,
		OTLPEndpoint: "localhost:4317",
		SampleRate:   1.0,
	}, nil)
	require.NoError(t, err)
	shutdown(t, p)

	assert.True(t, p.Enabled())
	_, tpIsSDK := otel.GetTracerProvider().(*sdktrace.TracerProvider)
	_, mpIsSDK := otel.GetMeterProvider().(*sdkmetric.MeterProvider)
	assert.True(t, tpIsSDK)
	assert.True(t, mpIsSDK)

	_, span := p.Tracer().Start(context.Background(), "dispatch")
	assert.True(t, span.SpanContext().IsValid())
	assert.True(t, span.SpanContext().IsSampled())
	span.End()
}

func TestInit_ZeroSampleRateStillCreatesValidSpans(t *testing.T) {
	saveAndRestoreGlobalProviders(t)

	p, err := Init(config.TelemetryConfig{
		Enabled:      true,
		OTLPEndpoint: "localhost:4317",
		SampleRate:   0,
	}, zaptest.NewLogger(t))
	require.NoError(t, err)
	shutdown(t, p)

	_, span := p.Tracer().Start(context.Background(), "dispatch")
	assert.True(t, span.SpanContext().IsValid())
	assert.False(t, span.SpanContext().IsSampled())
	span.End()
}

func TestProviders_Shutdown_Nil(t *testing.T) {
	var p *Providers
	assert.NoError(t, p.Shutdown(context.Background()))
	assert.False(t, p.Enabled())
	assert.NotNil(t, p.Tracer())
}

func TestProviders_Shutdown_Real(t *testing.T) {
	saveAndRestoreGlobalProviders(t)

	p, err := Init(config.TelemetryConfig{
		Enabled:      true,
		OTLPEndpoint: "localhost:4317",
		ServiceName:  "agentrouter-shutdown-test",
		SampleRate:   1.0,
	}, zaptest.NewLogger(t))
	require.NoError(t, err)

	// 没有 collector 时导出可能失败，这里只关心不会 panic 且在期限内返回
	ctx, cancel := context.WithTimeout(context.Background(), time.Second)
	defer cancel()
	assert.NotPanics(t, func() { _ = p.Shutdown(ctx) })
}

func TestBuildVersion(t *testing.T) {
	// 测试二进制的版本通常是 "(devel)"
	assert.Equal(t, "dev", buildVersion())
}
