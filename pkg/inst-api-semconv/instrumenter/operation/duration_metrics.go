// Copyright The OpenTelemetry Authors
// SPDX-License-Identifier: Apache-2.0

package operation

import (
	"context"
	"fmt"
	"log/slog"
	"time"

	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/metric"
	"go.opentelemetry.io/otel/metric/noop"
	sdkmetric "go.opentelemetry.io/otel/sdk/metric"

	instrumenter "github.com/open-telemetry/opentelemetry-go-library-instrumentation/pkg/inst-api"
	"github.com/open-telemetry/opentelemetry-go-library-instrumentation/pkg/inst-api-semconv/instrumenter/utils"
)

const (
	nanosPerSecond = float64(time.Second)
	secondsUnit    = "s"
)

// DurationConfig describes one duration histogram. It is fixed for the
// lifetime of the DurationMetrics created from it.
type DurationConfig struct {
	// Name is the histogram name, e.g. graphql.operation.duration.
	Name        string
	Description string
	// Buckets is the explicit bucket boundary advice.
	Buckets []float64
	// AttributeAdvice lists the attribute keys expected on the recorded
	// samples. The metric API has no attribute advice; View turns it into
	// an SDK attribute filter.
	AttributeAdvice []attribute.Key
	// FilterToAdvice drops every attribute not listed in AttributeAdvice
	// before recording, whether or not View is installed.
	FilterToAdvice bool
}

// View returns an SDK view that keeps only the advised attributes on the
// histogram described by c.
func (c DurationConfig) View() sdkmetric.View {
	if len(c.AttributeAdvice) == 0 {
		return func(sdkmetric.Instrument) (sdkmetric.Stream, bool) {
			return sdkmetric.Stream{}, false
		}
	}
	return sdkmetric.NewView(
		sdkmetric.Instrument{Name: c.Name, Kind: sdkmetric.InstrumentKindHistogram},
		sdkmetric.Stream{AttributeFilter: attribute.NewAllowKeysFilter(c.AttributeAdvice...)},
	)
}

type durationState struct {
	startAttributes []attribute.KeyValue
	startTime       time.Time
}

// DurationMetrics is an instrumenter.OperationListener recording the
// duration of every operation that went through both OnStart and OnEnd.
type DurationMetrics struct {
	name     string
	key      *instrumenter.ContextKey[durationState]
	duration metric.Float64Histogram
	filter   attribute.Filter
	logger   *slog.Logger
}

// NewDurationMetrics creates the histogram described by cfg. If the
// histogram cannot be created the error is returned together with a
// listener that records nothing.
func NewDurationMetrics(cfg DurationConfig, meter metric.Meter, logger *slog.Logger) (*DurationMetrics, error) {
	if logger == nil {
		logger = slog.Default()
	}
	buckets := cfg.Buckets
	if len(buckets) == 0 {
		buckets = utils.DurationSecondsBuckets
	}
	m := &DurationMetrics{
		name:   cfg.Name,
		key:    instrumenter.NewContextKey[durationState](cfg.Name + "-metrics-state"),
		logger: logger,
	}
	if cfg.FilterToAdvice {
		m.filter = attribute.NewAllowKeysFilter(cfg.AttributeAdvice...)
	}
	d, err := utils.NewFloat64Histogram(cfg.Name, secondsUnit, cfg.Description, meter, buckets...)
	if d == nil {
		d = noop.Float64Histogram{}
	}
	m.duration = d
	return m, err
}

// Factory returns an instrumenter.OperationMetrics creating DurationMetrics
// for cfg. Creation errors are logged.
func Factory(cfg DurationConfig, logger *slog.Logger) instrumenter.OperationMetrics {
	return func(meter metric.Meter) instrumenter.OperationListener {
		m, err := NewDurationMetrics(cfg, meter, logger)
		if err != nil {
			m.logger.Error("failed to create duration histogram", "metric", cfg.Name, "error", err)
		}
		return m
	}
}

func (m *DurationMetrics) OnStart(ctx context.Context, startAttributes []attribute.KeyValue,
	startTime time.Time,
) context.Context {
	return m.key.With(ctx, durationState{
		startAttributes: append([]attribute.KeyValue(nil), startAttributes...),
		startTime:       startTime,
	})
}

func (m *DurationMetrics) OnEnd(ctx context.Context, endAttributes []attribute.KeyValue, endTime time.Time) {
	state, ok := m.key.Get(ctx)
	if !ok {
		if m.logger.Enabled(ctx, slog.LevelDebug) {
			m.logger.DebugContext(ctx, "no state present when ending context, cannot record operation metrics",
				"metric", m.name, "context", fmt.Sprint(ctx))
		}
		return
	}
	elapsed := float64(endTime.Sub(state.startTime)) / nanosPerSecond
	set := mergeAttributes(state.startAttributes, endAttributes)
	if m.filter != nil {
		set, _ = set.Filter(m.filter)
	}
	m.duration.Record(ctx, elapsed, metric.WithAttributeSet(set))
}

// mergeAttributes overlays end on start. attribute.NewSet keeps the last
// value of a duplicated key, so end values win.
func mergeAttributes(start, end []attribute.KeyValue) attribute.Set {
	merged := make([]attribute.KeyValue, 0, len(start)+len(end))
	merged = append(merged, start...)
	merged = append(merged, end...)
	return attribute.NewSet(merged...)
}
