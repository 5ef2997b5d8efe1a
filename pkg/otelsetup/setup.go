// Copyright The OpenTelemetry Authors
// SPDX-License-Identifier: Apache-2.0

package otelsetup

import (
	"context"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"os"
	"time"

	"go.opentelemetry.io/contrib/exporters/autoexport"
	"go.opentelemetry.io/contrib/instrumentation/runtime"
	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/propagation"
	sdkmetric "go.opentelemetry.io/otel/sdk/metric"
	"go.opentelemetry.io/otel/sdk/resource"
	sdktrace "go.opentelemetry.io/otel/sdk/trace"
	semconv "go.opentelemetry.io/otel/semconv/v1.37.0"
)

const (
	// Default export intervals and batch sizes
	defaultTraceBatchTimeout = 5 * time.Second
	defaultTraceBatchSize    = 512

	runtimeMetricsName = "runtimemetrics"
)

// SDK holds the providers created by Setup.
type SDK struct {
	Logger *slog.Logger
	// TracerProvider is nil when no traces endpoint is configured.
	TracerProvider *sdktrace.TracerProvider
	MeterProvider  *sdkmetric.MeterProvider

	shutdownTimeout time.Duration
}

type setupOptions struct {
	views        []sdkmetric.View
	metricReader sdkmetric.Reader
	logWriter    io.Writer
	setGlobals   bool
}

type Option func(*setupOptions)

// WithViews installs metric views, e.g. the attribute filters of the
// duration histograms.
func WithViews(views ...sdkmetric.View) Option {
	return func(o *setupOptions) {
		o.views = append(o.views, views...)
	}
}

// WithMetricReader replaces the autoexport metric reader.
func WithMetricReader(reader sdkmetric.Reader) Option {
	return func(o *setupOptions) {
		o.metricReader = reader
	}
}

// WithLogWriter sets where the JSON logs go. Defaults to stdout.
func WithLogWriter(w io.Writer) Option {
	return func(o *setupOptions) {
		o.logWriter = w
	}
}

// WithoutGlobals keeps the created providers out of the otel globals.
func WithoutGlobals() Option {
	return func(o *setupOptions) {
		o.setGlobals = false
	}
}

// NewLogger returns the JSON logger used by the instrumentations.
func NewLogger(w io.Writer, level slog.Level) *slog.Logger {
	return slog.New(slog.NewJSONHandler(w, &slog.HandlerOptions{Level: level}))
}

// Setup initializes the OpenTelemetry SDK. It never panics; a failure to
// build one of the providers is logged and the others are still set up.
func Setup(ctx context.Context, cfg Config, opts ...Option) (sdk *SDK, retErr error) {
	o := setupOptions{logWriter: os.Stdout, setGlobals: true}
	for _, opt := range opts {
		opt(&o)
	}

	logger := NewLogger(o.logWriter, cfg.SlogLevel())
	sdk = &SDK{Logger: logger, shutdownTimeout: cfg.ShutdownTimeout}

	defer func() {
		if rec := recover(); rec != nil {
			logger.Error("panic during OpenTelemetry setup", "panic", rec)
			retErr = fmt.Errorf("panic during OpenTelemetry setup: %v", rec)
		}
	}()

	res := newResource(ctx, cfg, logger)

	if err := sdk.setupTraceProvider(ctx, cfg, res); err != nil {
		logger.Warn("failed to setup trace provider", "error", err)
	}
	if err := sdk.setupMeterProvider(ctx, res, o); err != nil {
		return sdk, fmt.Errorf("setup meter provider: %w", err)
	}

	if o.setGlobals {
		if sdk.TracerProvider != nil {
			otel.SetTracerProvider(sdk.TracerProvider)
		}
		otel.SetMeterProvider(sdk.MeterProvider)
		otel.SetTextMapPropagator(propagation.NewCompositeTextMapPropagator(
			propagation.TraceContext{},
			propagation.Baggage{},
		))
	}

	if cfg.Instrumented(runtimeMetricsName) {
		if err := runtime.Start(runtime.WithMeterProvider(sdk.MeterProvider)); err != nil {
			logger.Warn("failed to start runtime metrics", "error", err)
		} else {
			logger.Debug("runtime metrics enabled")
		}
	}

	logger.Info("OpenTelemetry initialized",
		"service_name", cfg.ServiceName,
		"instrumentation_name", cfg.InstrumentationName,
		"instrumentation_version", cfg.InstrumentationVersion)
	return sdk, nil
}

// newResource puts the environment last so OTEL_RESOURCE_ATTRIBUTES and
// OTEL_SERVICE_NAME override the configured values.
func newResource(ctx context.Context, cfg Config, logger *slog.Logger) *resource.Resource {
	attrs := []resource.Option{
		resource.WithProcess(),
		resource.WithOS(),
		resource.WithHost(),
	}
	serviceAttrs := resource.WithAttributes(semconv.ServiceName(cfg.ServiceName))
	if cfg.ServiceVersion != "" {
		serviceAttrs = resource.WithAttributes(
			semconv.ServiceName(cfg.ServiceName),
			semconv.ServiceVersion(cfg.ServiceVersion),
		)
	}
	attrs = append(attrs, serviceAttrs, resource.WithFromEnv())

	res, err := resource.New(ctx, attrs...)
	if err != nil {
		// partial resources are still usable
		logger.Warn("failed to create resource", "error", err)
		if res == nil {
			res = resource.Default()
		}
	}
	return res
}

func (s *SDK) setupTraceProvider(ctx context.Context, cfg Config, res *resource.Resource) error {
	endpoint := cfg.TracesEndpoint()
	if endpoint == "" {
		s.Logger.Debug("no OTLP endpoint configured, skipping trace provider setup")
		return nil
	}
	traceExporter, err := autoexport.NewSpanExporter(ctx)
	if err != nil {
		return fmt.Errorf("create span exporter: %w", err)
	}
	s.TracerProvider = sdktrace.NewTracerProvider(
		sdktrace.WithResource(res),
		sdktrace.WithBatcher(traceExporter,
			sdktrace.WithBatchTimeout(defaultTraceBatchTimeout),
			sdktrace.WithMaxExportBatchSize(defaultTraceBatchSize),
		),
	)
	s.Logger.Info("trace provider initialized", "endpoint", endpoint)
	return nil
}

func (s *SDK) setupMeterProvider(ctx context.Context, res *resource.Resource, o setupOptions) error {
	reader := o.metricReader
	if reader == nil {
		var err error
		reader, err = autoexport.NewMetricReader(ctx)
		if err != nil {
			return fmt.Errorf("create metric reader: %w", err)
		}
	}
	s.MeterProvider = sdkmetric.NewMeterProvider(
		sdkmetric.WithResource(res),
		sdkmetric.WithReader(reader),
		sdkmetric.WithView(o.views...),
	)
	s.Logger.Debug("meter provider initialized", "views", len(o.views))
	return nil
}

// Shutdown flushes and stops the providers. Without a deadline on ctx it is
// bounded by the configured shutdown timeout.
func (s *SDK) Shutdown(ctx context.Context) error {
	if _, ok := ctx.Deadline(); !ok && s.shutdownTimeout > 0 {
		var cancel context.CancelFunc
		ctx, cancel = context.WithTimeout(ctx, s.shutdownTimeout)
		defer cancel()
	}

	var errs []error
	if s.TracerProvider != nil {
		if err := s.TracerProvider.Shutdown(ctx); err != nil {
			s.Logger.Error("failed to shutdown tracer provider", "error", err)
			errs = append(errs, fmt.Errorf("shutdown tracer provider: %w", err))
		}
	}
	if s.MeterProvider != nil {
		if err := s.MeterProvider.Shutdown(ctx); err != nil {
			s.Logger.Error("failed to shutdown meter provider", "error", err)
			errs = append(errs, fmt.Errorf("shutdown meter provider: %w", err))
		}
	}
	return errors.Join(errs...)
}
