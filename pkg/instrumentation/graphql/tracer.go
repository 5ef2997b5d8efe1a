// Copyright The OpenTelemetry Authors
// SPDX-License-Identifier: Apache-2.0

package graphql

import (
	"context"
	"log/slog"

	gql "github.com/99designs/gqlgen/graphql"
	"go.opentelemetry.io/otel/metric"
	"go.opentelemetry.io/otel/sdk/instrumentation"
	semconv "go.opentelemetry.io/otel/semconv/v1.37.0"
	"go.opentelemetry.io/otel/trace"

	instrumenter "github.com/open-telemetry/opentelemetry-go-library-instrumentation/pkg/inst-api"
	"github.com/open-telemetry/opentelemetry-go-library-instrumentation/pkg/inst-api-semconv/instrumenter/operation"
	"github.com/open-telemetry/opentelemetry-go-library-instrumentation/pkg/instrumentation/shared"
)

const (
	instrumentationName = "github.com/open-telemetry/opentelemetry-go-library-instrumentation/pkg/instrumentation/graphql"
	instrumentationKey  = "graphql"
	extensionName       = "OpenTelemetry"
)

type config struct {
	tracerProvider      trace.TracerProvider
	meterProvider       metric.MeterProvider
	logger              *slog.Logger
	enabler             instrumenter.InstrumentEnabler
	captureDocument     bool
	dataFetchers        bool
	trivialDataFetchers bool
}

type Option func(*config)

func WithTracerProvider(provider trace.TracerProvider) Option {
	return func(c *config) {
		c.tracerProvider = provider
	}
}

func WithMeterProvider(provider metric.MeterProvider) Option {
	return func(c *config) {
		c.meterProvider = provider
	}
}

func WithLogger(logger *slog.Logger) Option {
	return func(c *config) {
		c.logger = logger
	}
}

// WithEnabler overrides the OTEL_GO_*_INSTRUMENTATIONS based gate.
func WithEnabler(enabler instrumenter.InstrumentEnabler) Option {
	return func(c *config) {
		c.enabler = enabler
	}
}

// WithCaptureDocument records the raw operation document as graphql.document.
// Off by default since documents may carry sensitive literals.
func WithCaptureDocument(capture bool) Option {
	return func(c *config) {
		c.captureDocument = capture
	}
}

// WithDataFetchers toggles field level spans and metrics. On by default.
func WithDataFetchers(enabled bool) Option {
	return func(c *config) {
		c.dataFetchers = enabled
	}
}

// WithTrivialDataFetchers also instruments fields that are read from the
// parent object without a resolver.
func WithTrivialDataFetchers(enabled bool) Option {
	return func(c *config) {
		c.trivialDataFetchers = enabled
	}
}

// Tracer is a gqlgen handler extension.
type Tracer struct {
	operations          instrumenter.Instrumenter[OperationRequest, OperationResponse]
	dataFetchers        instrumenter.Instrumenter[DataFetcherRequest, any]
	dataFetchersEnabled bool
	trivialDataFetchers bool
}

var _ interface {
	gql.HandlerExtension
	gql.ResponseInterceptor
	gql.FieldInterceptor
} = &Tracer{}

// NewTracer builds the extension. Register it with
// handler.Server.Use(graphql.NewTracer()).
func NewTracer(opts ...Option) *Tracer {
	c := config{dataFetchers: true}
	for _, opt := range opts {
		opt(&c)
	}
	if c.logger == nil {
		c.logger = shared.Logger()
	}
	if c.enabler == nil {
		c.enabler = shared.NewEnabler(instrumentationKey)
	}

	operations := &instrumenter.Builder[OperationRequest, OperationResponse]{}
	operations.Init().
		SetInstrumentEnabler(c.enabler).
		SetSpanNameExtractor(operationSpanNameExtractor{}).
		SetSpanKindExtractor(&instrumenter.AlwaysInternalExtractor[OperationRequest]{}).
		AddAttributesExtractor(&operationAttrsExtractor{captureDocument: c.captureDocument}).
		AddOperationMetrics(operation.Factory(OperationMetrics(), c.logger))

	dataFetchers := &instrumenter.Builder[DataFetcherRequest, any]{}
	dataFetchers.Init().
		SetInstrumentEnabler(c.enabler).
		SetSpanNameExtractor(dataFetcherSpanNameExtractor{}).
		SetSpanKindExtractor(&instrumenter.AlwaysInternalExtractor[DataFetcherRequest]{}).
		AddAttributesExtractor(&dataFetcherAttrsExtractor{}).
		AddOperationMetrics(operation.Factory(DataFetcherMetrics(), c.logger))

	return &Tracer{
		operations:          build(operations, c),
		dataFetchers:        build(dataFetchers, c),
		dataFetchersEnabled: c.dataFetchers,
		trivialDataFetchers: c.trivialDataFetchers,
	}
}

func build[REQUEST any, RESPONSE any](b *instrumenter.Builder[REQUEST, RESPONSE], c config,
) instrumenter.Instrumenter[REQUEST, RESPONSE] {
	b.SetInstrumentationScope(instrumentation.Scope{
		Name:      instrumentationName,
		Version:   shared.ModuleVersion(),
		SchemaURL: semconv.SchemaURL,
	})
	if c.meterProvider != nil {
		b.SetMeterProvider(c.meterProvider)
	}
	if c.tracerProvider != nil {
		return b.BuildInstrumenterWithTracer(c.tracerProvider.Tracer(instrumentationName,
			trace.WithInstrumentationVersion(b.Scope.Version),
			trace.WithSchemaURL(semconv.SchemaURL)))
	}
	return b.BuildInstrumenter()
}

func (*Tracer) ExtensionName() string {
	return extensionName
}

func (*Tracer) Validate(gql.ExecutableSchema) error {
	return nil
}

// InterceptResponse records one operation per response.
func (t *Tracer) InterceptResponse(ctx context.Context, next gql.ResponseHandler) *gql.Response {
	if !gql.HasOperationContext(ctx) {
		return next(ctx)
	}
	request := operationRequest(gql.GetOperationContext(ctx))
	ctx = t.operations.Start(ctx, request)

	resp := next(ctx)

	response := OperationResponse{}
	if resp != nil {
		response.Errors = resp.Errors
	}
	t.operations.End(ctx, instrumenter.Invocation[OperationRequest, OperationResponse]{
		Request:  request,
		Response: response,
	})
	return resp
}

// InterceptField records one data fetch per resolved field. Trivial fields
// are skipped unless WithTrivialDataFetchers is set.
func (t *Tracer) InterceptField(ctx context.Context, next gql.Resolver) (any, error) {
	if !t.dataFetchersEnabled {
		return next(ctx)
	}
	fc := gql.GetFieldContext(ctx)
	if fc == nil {
		return next(ctx)
	}
	request := dataFetcherRequest(fc)
	if request.Trivial && !t.trivialDataFetchers {
		return next(ctx)
	}
	ctx = t.dataFetchers.Start(ctx, request)

	res, err := next(ctx)

	t.dataFetchers.End(ctx, instrumenter.Invocation[DataFetcherRequest, any]{
		Request:  request,
		Response: res,
		Err:      err,
	})
	return res, err
}

func operationRequest(oc *gql.OperationContext) OperationRequest {
	request := OperationRequest{
		Name:     oc.OperationName,
		Document: oc.RawQuery,
	}
	if oc.Operation != nil {
		request.Type = string(oc.Operation.Operation)
		if request.Name == "" {
			request.Name = oc.Operation.Name
		}
	}
	return request
}

func dataFetcherRequest(fc *gql.FieldContext) DataFetcherRequest {
	request := DataFetcherRequest{
		Path:       fc.Path().String(),
		ParentType: fc.Object,
		Trivial:    !fc.IsResolver && !fc.IsMethod,
	}
	if fc.Field.Field != nil {
		request.FieldName = fc.Field.Name
	}
	return request
}
