// Copyright The OpenTelemetry Authors
// SPDX-License-Identifier: Apache-2.0

package operation

import (
	"context"
	"log/slog"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.opentelemetry.io/otel/attribute"
	sdkmetric "go.opentelemetry.io/otel/sdk/metric"
	"go.opentelemetry.io/otel/sdk/metric/metricdata"
	"go.opentelemetry.io/otel/sdk/resource"
	semconv "go.opentelemetry.io/otel/semconv/v1.37.0"

	"github.com/open-telemetry/opentelemetry-go-library-instrumentation/pkg/inst-api-semconv/instrumenter/utils"
)

var testConfig = DurationConfig{
	Name:            "graphql.operation.duration",
	Description:     "Duration of GraphQL operations.",
	Buckets:         utils.DurationSecondsBuckets,
	AttributeAdvice: []attribute.Key{"op"},
}

func newTestMeterProvider(views ...sdkmetric.View) (*sdkmetric.MeterProvider, *sdkmetric.ManualReader) {
	reader := sdkmetric.NewManualReader()
	res := resource.NewWithAttributes(
		semconv.SchemaURL,
		semconv.ServiceName("my-service"),
		semconv.ServiceVersion("v0.1.0"),
	)
	mp := sdkmetric.NewMeterProvider(
		sdkmetric.WithResource(res),
		sdkmetric.WithReader(reader),
		sdkmetric.WithView(views...),
	)
	return mp, reader
}

func newTestDurationMetrics(t *testing.T, cfg DurationConfig) (*DurationMetrics, *sdkmetric.ManualReader) {
	t.Helper()
	mp, reader := newTestMeterProvider()
	m, err := NewDurationMetrics(cfg, mp.Meter("test-meter"), slog.Default())
	require.NoError(t, err)
	return m, reader
}

func collectPoints(t *testing.T, reader *sdkmetric.ManualReader, name string) []metricdata.HistogramDataPoint[float64] {
	t.Helper()
	rm := &metricdata.ResourceMetrics{}
	require.NoError(t, reader.Collect(context.Background(), rm))
	for _, sm := range rm.ScopeMetrics {
		for _, m := range sm.Metrics {
			if m.Name != name {
				continue
			}
			assert.Equal(t, "s", m.Unit)
			hist, ok := m.Data.(metricdata.Histogram[float64])
			require.True(t, ok, "expected a float64 histogram")
			return hist.DataPoints
		}
	}
	return nil
}

func TestDurationMetricsRecordsElapsedSeconds(t *testing.T) {
	m, reader := newTestDurationMetrics(t, testConfig)

	ctx := m.OnStart(context.Background(),
		[]attribute.KeyValue{attribute.String("op", "query")}, time.Unix(0, 1_000_000_000))
	m.OnEnd(ctx, []attribute.KeyValue{attribute.String("status", "ok")}, time.Unix(0, 1_250_000_000))

	points := collectPoints(t, reader, testConfig.Name)
	require.Len(t, points, 1)
	assert.Equal(t, uint64(1), points[0].Count)
	assert.InDelta(t, 0.25, points[0].Sum, 1e-12)
	assert.Equal(t, utils.DurationSecondsBuckets, points[0].Bounds)
	assert.Equal(t, attribute.NewSet(
		attribute.String("op", "query"),
		attribute.String("status", "ok"),
	), points[0].Attributes)
}

func TestDurationMetricsEndAttributesWin(t *testing.T) {
	m, reader := newTestDurationMetrics(t, testConfig)

	ctx := m.OnStart(context.Background(), []attribute.KeyValue{attribute.Int("a", 1)}, time.Unix(0, 0))
	m.OnEnd(ctx, []attribute.KeyValue{attribute.Int("a", 2)}, time.Unix(1, 0))

	points := collectPoints(t, reader, testConfig.Name)
	require.Len(t, points, 1)
	assert.Equal(t, attribute.NewSet(attribute.Int("a", 2)), points[0].Attributes)
}

func TestDurationMetricsEmptyEndAttributes(t *testing.T) {
	m, reader := newTestDurationMetrics(t, testConfig)
	start := []attribute.KeyValue{attribute.String("op", "query"), attribute.Bool("flag", true)}

	ctx := m.OnStart(context.Background(), start, time.Unix(0, 0))
	m.OnEnd(ctx, nil, time.Unix(0, 5_000_000))

	points := collectPoints(t, reader, testConfig.Name)
	require.Len(t, points, 1)
	assert.Equal(t, attribute.NewSet(start...), points[0].Attributes)
	assert.InDelta(t, 0.005, points[0].Sum, 1e-12)
}

func TestDurationMetricsStartAttributesAreCopied(t *testing.T) {
	m, reader := newTestDurationMetrics(t, testConfig)
	start := []attribute.KeyValue{attribute.String("op", "query")}

	ctx := m.OnStart(context.Background(), start, time.Unix(0, 0))
	start[0] = attribute.String("op", "mutation")
	m.OnEnd(ctx, nil, time.Unix(1, 0))

	points := collectPoints(t, reader, testConfig.Name)
	require.Len(t, points, 1)
	assert.Equal(t, attribute.NewSet(attribute.String("op", "query")), points[0].Attributes)
}

func TestDurationMetricsMissingState(t *testing.T) {
	m, reader := newTestDurationMetrics(t, testConfig)

	assert.NotPanics(t, func() {
		m.OnEnd(context.Background(), []attribute.KeyValue{attribute.String("status", "ok")}, time.Now())
	})
	assert.Empty(t, collectPoints(t, reader, testConfig.Name))
}

func TestDurationMetricsDoesNotMutateParentContext(t *testing.T) {
	m, reader := newTestDurationMetrics(t, testConfig)
	parent := context.Background()

	derived := m.OnStart(parent, nil, time.Unix(0, 0))
	assert.NotEqual(t, parent, derived)

	m.OnEnd(parent, nil, time.Unix(1, 0))
	assert.Empty(t, collectPoints(t, reader, testConfig.Name))
}

func TestDurationMetricsNestedRecordersDoNotCollide(t *testing.T) {
	mp, reader := newTestMeterProvider()
	meter := mp.Meter("test-meter")
	operation, err := NewDurationMetrics(DurationConfig{Name: "graphql.operation.duration"}, meter, nil)
	require.NoError(t, err)
	fetcher, err := NewDurationMetrics(DurationConfig{Name: "graphql.datafetcher.duration"}, meter, nil)
	require.NoError(t, err)

	ctx := operation.OnStart(context.Background(),
		[]attribute.KeyValue{attribute.String("graphql.operation.type", "query")}, time.Unix(0, 0))
	ctx = fetcher.OnStart(ctx,
		[]attribute.KeyValue{attribute.String("graphql.field.name", "user")}, time.Unix(0, 100_000_000))
	fetcher.OnEnd(ctx, nil, time.Unix(0, 300_000_000))
	operation.OnEnd(ctx, nil, time.Unix(0, 500_000_000))

	opPoints := collectPoints(t, reader, "graphql.operation.duration")
	require.Len(t, opPoints, 1)
	assert.InDelta(t, 0.5, opPoints[0].Sum, 1e-12)
	assert.Equal(t, attribute.NewSet(attribute.String("graphql.operation.type", "query")), opPoints[0].Attributes)

	fetchPoints := collectPoints(t, reader, "graphql.datafetcher.duration")
	require.Len(t, fetchPoints, 1)
	assert.InDelta(t, 0.2, fetchPoints[0].Sum, 1e-12)
	assert.Equal(t, attribute.NewSet(attribute.String("graphql.field.name", "user")), fetchPoints[0].Attributes)
}

func TestDurationMetricsSameNameRecordersDoNotCollide(t *testing.T) {
	mp, _ := newTestMeterProvider()
	meter := mp.Meter("test-meter")
	first, err := NewDurationMetrics(testConfig, meter, nil)
	require.NoError(t, err)
	second, err := NewDurationMetrics(testConfig, meter, nil)
	require.NoError(t, err)

	ctx := first.OnStart(context.Background(), []attribute.KeyValue{attribute.String("op", "a")}, time.Unix(0, 0))
	ctx = second.OnStart(ctx, []attribute.KeyValue{attribute.String("op", "b")}, time.Unix(5, 0))

	firstState, ok := first.key.Get(ctx)
	require.True(t, ok)
	assert.Equal(t, time.Unix(0, 0), firstState.startTime)
	secondState, ok := second.key.Get(ctx)
	require.True(t, ok)
	assert.Equal(t, time.Unix(5, 0), secondState.startTime)
}

func TestDurationMetricsRepeatedEndRecordsAgain(t *testing.T) {
	m, reader := newTestDurationMetrics(t, testConfig)

	ctx := m.OnStart(context.Background(), nil, time.Unix(0, 0))
	m.OnEnd(ctx, nil, time.Unix(1, 0))
	m.OnEnd(ctx, nil, time.Unix(2, 0))

	points := collectPoints(t, reader, testConfig.Name)
	require.Len(t, points, 1)
	assert.Equal(t, uint64(2), points[0].Count)
	assert.InDelta(t, 3.0, points[0].Sum, 1e-12)
}

func TestDurationMetricsNegativeElapsedPassesThrough(t *testing.T) {
	m, reader := newTestDurationMetrics(t, testConfig)

	ctx := m.OnStart(context.Background(), nil, time.Unix(2, 0))
	m.OnEnd(ctx, nil, time.Unix(1, 0))

	points := collectPoints(t, reader, testConfig.Name)
	require.Len(t, points, 1)
	assert.InDelta(t, -1.0, points[0].Sum, 1e-12)
}

func TestDurationConfigViewKeepsAdvisedAttributes(t *testing.T) {
	mp, reader := newTestMeterProvider(testConfig.View())
	m, err := NewDurationMetrics(testConfig, mp.Meter("test-meter"), nil)
	require.NoError(t, err)

	ctx := m.OnStart(context.Background(),
		[]attribute.KeyValue{attribute.String("op", "query"), attribute.String("path", "/a/b")}, time.Unix(0, 0))
	m.OnEnd(ctx, []attribute.KeyValue{attribute.String("status", "ok")}, time.Unix(1, 0))

	points := collectPoints(t, reader, testConfig.Name)
	require.Len(t, points, 1)
	assert.Equal(t, attribute.NewSet(attribute.String("op", "query")), points[0].Attributes)
	assert.Equal(t, utils.DurationSecondsBuckets, points[0].Bounds)
}

func TestDurationMetricsFilterToAdviceWithoutView(t *testing.T) {
	cfg := testConfig
	cfg.FilterToAdvice = true
	m, reader := newTestDurationMetrics(t, cfg)

	for _, id := range []string{"a", "b", "c"} {
		ctx := m.OnStart(context.Background(),
			[]attribute.KeyValue{attribute.String("op", "index"), attribute.String("id", id)}, time.Unix(0, 0))
		m.OnEnd(ctx, []attribute.KeyValue{attribute.String("result", "created")}, time.Unix(1, 0))
	}

	points := collectPoints(t, reader, cfg.Name)
	require.Len(t, points, 1)
	assert.Equal(t, uint64(3), points[0].Count)
	assert.Equal(t, attribute.NewSet(attribute.String("op", "index")), points[0].Attributes)
}

func TestDurationMetricsUnfilteredWithoutView(t *testing.T) {
	m, reader := newTestDurationMetrics(t, testConfig)

	for _, id := range []string{"a", "b"} {
		ctx := m.OnStart(context.Background(),
			[]attribute.KeyValue{attribute.String("op", "query"), attribute.String("id", id)}, time.Unix(0, 0))
		m.OnEnd(ctx, nil, time.Unix(1, 0))
	}

	assert.Len(t, collectPoints(t, reader, testConfig.Name), 2)
}

func TestDurationConfigViewWithoutAdvice(t *testing.T) {
	cfg := DurationConfig{Name: "test.duration"}
	_, match := cfg.View()(sdkmetric.Instrument{Name: "test.duration", Kind: sdkmetric.InstrumentKindHistogram})
	assert.False(t, match)
}

func TestFactoryNilMeter(t *testing.T) {
	listener := Factory(testConfig, slog.Default())(nil)
	require.NotNil(t, listener)

	assert.NotPanics(t, func() {
		ctx := listener.OnStart(context.Background(), nil, time.Unix(0, 0))
		listener.OnEnd(ctx, nil, time.Unix(1, 0))
	})
}

func TestNewDurationMetricsNilMeter(t *testing.T) {
	m, err := NewDurationMetrics(testConfig, nil, nil)
	require.Error(t, err)
	require.NotNil(t, m)
}

func TestDurationMetricsConcurrentOperations(t *testing.T) {
	m, reader := newTestDurationMetrics(t, testConfig)
	const n = 32

	done := make(chan struct{})
	for i := 0; i < n; i++ {
		go func() {
			defer func() { done <- struct{}{} }()
			ctx := m.OnStart(context.Background(), []attribute.KeyValue{attribute.String("op", "query")}, time.Unix(0, 0))
			m.OnEnd(ctx, nil, time.Unix(0, 10_000_000))
		}()
	}
	for i := 0; i < n; i++ {
		<-done
	}

	points := collectPoints(t, reader, testConfig.Name)
	require.Len(t, points, 1)
	assert.Equal(t, uint64(n), points[0].Count)
}
